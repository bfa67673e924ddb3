package emissions

import (
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// CSV column indices of data/energy_sources.csv.
const (
	colSourceID             = 0 // id
	colSourceName           = 1 // name
	colSourceUnit           = 2 // unit
	colSourceEnergyFactor   = 3 // energy_factor_kwh
	colSourceEmissionFactor = 4 // emission_factor_kg
)

//go:embed data/energy_sources.csv
var energySourcesCSV string

// use a single instance of Validate, it caches struct info
var validate = validator.New()

// Table is an ordered, immutable emission factor table.
type Table struct {
	sources []EnergySource
	byID    map[string]int
}

var (
	defaultTable     *Table
	defaultTableOnce sync.Once
)

// NewTable validates sources and builds a Table keeping their order.
// Every source must have an ID, a name and a unit, non-negative factors,
// and IDs must be unique.
func NewTable(sources []EnergySource) (*Table, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no sources", ErrInvalidTable)
	}
	t := &Table{
		sources: make([]EnergySource, 0, len(sources)),
		byID:    make(map[string]int, len(sources)),
	}
	for i, s := range sources {
		s.ID = strings.TrimSpace(s.ID)
		if err := validate.Struct(s); err != nil {
			return nil, fmt.Errorf("%w: source %d: %v", ErrInvalidTable, i, err)
		}
		if _, dup := t.byID[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate source id %q", ErrInvalidTable, s.ID)
		}
		t.byID[s.ID] = len(t.sources)
		t.sources = append(t.sources, s)
	}
	return t, nil
}

// parseSourcesCSV reads a factor table in the embedded CSV layout.
// Malformed rows are logged and skipped.
func parseSourcesCSV(r io.Reader) ([]EnergySource, error) {
	reader := csv.NewReader(r)

	// Skip header row
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var sources []EnergySource
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn().Err(err).Msg("skipping malformed energy source row")
			continue
		}
		if len(record) <= colSourceEmissionFactor {
			continue
		}

		energy, err := parseEuropeanFloat(record[colSourceEnergyFactor])
		if err != nil {
			logger.Warn().Str("id", record[colSourceID]).Err(err).Msg("invalid energy factor")
			continue
		}
		emission, err := parseEuropeanFloat(record[colSourceEmissionFactor])
		if err != nil {
			logger.Warn().Str("id", record[colSourceID]).Err(err).Msg("invalid emission factor")
			continue
		}

		sources = append(sources, EnergySource{
			ID:             strings.TrimSpace(record[colSourceID]),
			Name:           strings.TrimSpace(record[colSourceName]),
			Unit:           strings.TrimSpace(record[colSourceUnit]),
			EnergyFactor:   energy,
			EmissionFactor: emission,
		})
	}
	return sources, nil
}

func parseDefaultTable() {
	sources, err := parseSourcesCSV(strings.NewReader(energySourcesCSV))
	if err != nil {
		logger.Error().Err(err).Msg("failed to parse embedded energy sources")
		defaultTable = &Table{byID: map[string]int{}}
		return
	}
	t, err := NewTable(sources)
	if err != nil {
		logger.Error().Err(err).Msg("embedded energy sources are invalid")
		defaultTable = &Table{byID: map[string]int{}}
		return
	}
	defaultTable = t
}

// DefaultTable returns the built-in factor table. It is parsed from the
// embedded CSV on first use.
func DefaultTable() *Table {
	defaultTableOnce.Do(parseDefaultTable)
	return defaultTable
}

// Sources returns a copy of the sources in table order.
func (t *Table) Sources() []EnergySource {
	out := make([]EnergySource, len(t.sources))
	copy(out, t.sources)
	return out
}

// SourceByID looks up a source by its ID.
func (t *Table) SourceByID(id string) (EnergySource, bool) {
	i, ok := t.byID[strings.TrimSpace(id)]
	if !ok {
		return EnergySource{}, false
	}
	return t.sources[i], true
}

// SourceAt returns the source at the zero-based position in table order.
func (t *Table) SourceAt(position int) (EnergySource, bool) {
	if position < 0 || position >= len(t.sources) {
		return EnergySource{}, false
	}
	return t.sources[position], true
}

// Len returns the number of sources in the table.
func (t *Table) Len() int {
	return len(t.sources)
}

// ParseSourcesCSV reads and validates a factor table in the embedded CSV
// layout: a header row followed by id, name, unit, energy and emission
// factor columns.
func ParseSourcesCSV(r io.Reader) (*Table, error) {
	sources, err := parseSourcesCSV(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	return NewTable(sources)
}
