// Package export writes the calculation history as CSV or XLSX files.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/eap-emissions-calculator/internal/emissions"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Location selects where export files are written.
type Location string

const (
	// LocationExternal writes into the user's shared downloads directory.
	LocationExternal Location = "external"

	// LocationInternal writes into the application's own data directory.
	LocationInternal Location = "internal"
)

const (
	// fileNamePrefix is the prefix of every export file name.
	fileNamePrefix = "CO2_Emissions_"

	// timestampLayout renders yyyyMMdd_HHmmss.
	timestampLayout = "20060102_150405"

	// SubDir is the directory created under the selected location.
	SubDir = "Emissions"
)

// ErrNoData is returned when there is nothing to export.
var ErrNoData = errors.New("no data to export")

// ErrUnknownFormat is returned for an unsupported export format.
var ErrUnknownFormat = errors.New("unknown export format")

// ErrUnknownLocation is returned for an unsupported export location.
var ErrUnknownLocation = errors.New("unknown export location")

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ParseLocation parses a location name, case-insensitively.
func ParseLocation(s string) (Location, error) {
	switch Location(strings.ToLower(strings.TrimSpace(s))) {
	case LocationExternal:
		return LocationExternal, nil
	case LocationInternal:
		return LocationInternal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLocation, s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// FileName returns the export file name for a file created at t,
// e.g. CO2_Emissions_20261015_093000.csv.
func FileName(t time.Time, f Format) string {
	return fileNamePrefix + t.Format(timestampLayout) + "." + string(f)
}

// Dirs holds the base directories export locations resolve to.
type Dirs struct {
	// Downloads is the shared downloads directory (external location).
	Downloads string

	// Data is the application's data directory (internal location).
	Data string
}

// Dir returns the export directory for loc.
func (d Dirs) Dir(loc Location) (string, error) {
	switch loc {
	case LocationExternal:
		return filepath.Join(d.Downloads, SubDir), nil
	case LocationInternal:
		return filepath.Join(d.Data, SubDir), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLocation, loc)
	}
}

// Write renders records in format f to w.
func Write(w io.Writer, f Format, records []emissions.Record) error {
	if len(records) == 0 {
		return ErrNoData
	}
	switch f {
	case FormatCSV:
		return WriteCSV(w, records)
	case FormatXLSX:
		return WriteXLSX(w, records)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// maxNameAttempts bounds the numbered names tried when an export file name
// is already taken.
const maxNameAttempts = 100

// createUnique creates name in dir without replacing an existing file.
// A taken name gets a numeric suffix: CO2_Emissions_20261015_093000_2.csv.
func createUnique(dir, name string) (*os.File, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; i <= maxNameAttempts; i++ {
		candidate := name
		if i > 1 {
			candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		file, err := os.OpenFile(filepath.Join(dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return file, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create export file: %w", err)
		}
	}
	return nil, fmt.Errorf("create export file: no free name for %s", name)
}

// Exporter writes export files into resolved directories.
type Exporter struct {
	dirs   Dirs
	now    func() time.Time
	logger zerolog.Logger
}

// NewExporter creates an Exporter writing under dirs.
func NewExporter(dirs Dirs, logger zerolog.Logger) *Exporter {
	return &Exporter{dirs: dirs, now: time.Now, logger: logger}
}

// ExportFile writes records to a new file at loc and returns its path.
// The target directory is created when missing.
func (e *Exporter) ExportFile(records []emissions.Record, f Format, loc Location) (string, error) {
	if len(records) == 0 {
		return "", ErrNoData
	}
	dir, err := e.dirs.Dir(loc)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	file, err := createUnique(dir, FileName(e.now(), f))
	if err != nil {
		return "", err
	}
	path := file.Name()

	if err := Write(file, f, records); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		e.logger.Error().Err(err).Str("path", path).Msg("export failed")
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}

	e.logger.Info().
		Str("path", path).
		Str("format", string(f)).
		Str("location", string(loc)).
		Int("records", len(records)).
		Msg("export written")
	return path, nil
}
