package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hakim/inspector/internal/models"
)

// Profile is a named set of scan resource bounds.
type Profile struct {
	Name        string
	Description string
	RateLimit   float64
	Concurrency int
	Timeout     time.Duration
}

// builtinProfiles is the registry of all known profiles.
var builtinProfiles = map[string]Profile{
	"gentle": {
		Name:        "gentle",
		Description: "Low-impact scan for fragile or production hosts",
		RateLimit:   2,
		Concurrency: 2,
		Timeout:     10 * time.Second,
	},
	"default": {
		Name:        "default",
		Description: "Balanced settings, same as running without a profile",
		RateLimit:   10,
		Concurrency: 5,
		Timeout:     5 * time.Second,
	},
	"aggressive": {
		Name:        "aggressive",
		Description: "Fast scan for lab targets you own",
		RateLimit:   100,
		Concurrency: 50,
		Timeout:     3 * time.Second,
	},
}

// BuiltinProfiles returns the available profiles.
func BuiltinProfiles() map[string]Profile {
	// Return a copy so callers cannot mutate the registry.
	out := make(map[string]Profile, len(builtinProfiles))
	for k, v := range builtinProfiles {
		out[k] = v
	}
	return out
}

// ProfileNames lists profile names in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(builtinProfiles))
	for name := range builtinProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetProfile returns a profile by name, or an error if not found.
func GetProfile(name string) (*Profile, error) {
	p, ok := builtinProfiles[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(ProfileNames(), ", "))
	}
	cp := p
	return &cp, nil
}

// ScanConfig returns the profile's bounds as a scan configuration.
func (p *Profile) ScanConfig() models.ScanConfig {
	return models.ScanConfig{
		RateLimit:      p.RateLimit,
		MaxConcurrency: p.Concurrency,
		Timeout:        p.Timeout,
	}
}
