package marker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultName is the marker file name unless pipeline.marker_name overrides it.
// The production deployment sets config_casava-1.8.2.txt.
const DefaultName = "downstream-marker"

var (
	ErrExists = errors.New("marker: already exists")
)

// Markers locates and manipulates submission markers. A marker lives in the
// parent of an analysis out_dir and its presence means downstream work has
// been triggered for that analysis.
type Markers struct {
	name      string
	exclusive bool
}

// New returns Markers using file name. With exclusive set, Claim fails with
// ErrExists instead of truncating a marker another process already created.
func New(name string, exclusive bool) *Markers {
	if name == "" {
		name = DefaultName
	}
	return &Markers{name: name, exclusive: exclusive}
}

// Path returns the marker path for outDir
func (m *Markers) Path(outDir string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(outDir)), m.name)
}

// DownstreamDir returns the directory holding the marker and samplesheet
func (m *Markers) DownstreamDir(outDir string) string {
	return filepath.Dir(filepath.Clean(outDir))
}

// Exists reports whether the marker for outDir is present. A stat failure
// other than "not exist" is returned with exists=true so callers never
// resubmit on an unreadable directory.
func (m *Markers) Exists(outDir string) (bool, error) {
	_, err := os.Stat(m.Path(outDir))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return true, fmt.Errorf("marker: stat %s: %w", m.Path(outDir), err)
}

// Claim creates the marker file and returns it open for writing
func (m *Markers) Claim(outDir string) (*os.File, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if m.exclusive {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}

	f, err := os.OpenFile(m.Path(outDir), flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrExists, m.Path(outDir))
		}
		return nil, fmt.Errorf("marker: create %s: %w", m.Path(outDir), err)
	}
	return f, nil
}

// Remove deletes the marker. A missing marker is not an error.
func (m *Markers) Remove(outDir string) error {
	err := os.Remove(m.Path(outDir))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("marker: remove %s: %w", m.Path(outDir), err)
	}
	return nil
}
