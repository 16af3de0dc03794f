// Package report persists scan results as JSON and renders them for humans.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/hakim/inspector/internal/models"
)

// maxCollisions caps the _N suffixes tried for reports saved in the same second
const maxCollisions = 1000

// FileSink writes reports into a directory
type FileSink struct {
	fs  afero.Fs
	dir string
	now func() time.Time
}

// NewFileSink returns a sink writing into dir on fs
func NewFileSink(fs afero.Fs, dir string) *FileSink {
	return &FileSink{fs: fs, dir: dir, now: time.Now}
}

// Save writes result as report_<YYYYMMDDTHHMMSSZ>.json and returns its path.
// A report saved in the same second gets a _N suffix instead of replacing
// the earlier file.
func (s *FileSink) Save(result *models.ScanResult) (string, error) {
	stamp := s.now().UTC().Format("20060102T150405Z")
	base := "report_" + stamp

	for n := 0; n < maxCollisions; n++ {
		name := base + ".json"
		if n > 0 {
			name = fmt.Sprintf("%s_%d.json", base, n)
		}

		path, err := s.write(result, name, os.O_EXCL)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		return path, err
	}

	return "", fmt.Errorf("no free report name for %s in %s", base, s.dir)
}

// SaveAs writes result under an explicit file name, replacing any existing file
func (s *FileSink) SaveAs(result *models.ScanResult, name string) (string, error) {
	return s.write(result, name, os.O_TRUNC)
}

func (s *FileSink) write(result *models.ScanResult, name string, mode int) (string, error) {
	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("creating report directory %s: %w", s.dir, err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}

	path := filepath.Join(s.dir, name)
	f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|mode, 0644)
	if err != nil {
		return "", fmt.Errorf("creating report %s: %w", path, err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return "", fmt.Errorf("writing report to %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing report %s: %w", path, err)
	}

	return path, nil
}

// Load decodes a report written by Save
func Load(fs afero.Fs, path string) (*models.ScanResult, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading report %s: %w", path, err)
	}

	var result models.ScanResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing report %s: %w", path, err)
	}
	return &result, nil
}
