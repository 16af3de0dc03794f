package models

// ScanStatus represents the current state of a scan
type ScanStatus string

const (
	StatusPending  ScanStatus = "pending"
	StatusRunning  ScanStatus = "running"
	StatusComplete ScanStatus = "complete"
	StatusFailed   ScanStatus = "failed"
)

// RecordType represents the DNS record types enumerated for a target
type RecordType string

const (
	RecordA    RecordType = "A"
	RecordAAAA RecordType = "AAAA"
	RecordMX   RecordType = "MX"
	RecordNS   RecordType = "NS"
	RecordTXT  RecordType = "TXT"
)

// RecordTypes is the fixed lookup order used by the resolver.
var RecordTypes = []RecordType{RecordA, RecordAAAA, RecordMX, RecordNS, RecordTXT}

// ProbeKind identifies which probe produced a result
type ProbeKind string

const (
	ProbeHTTP   ProbeKind = "http"
	ProbeBanner ProbeKind = "banner"
)
