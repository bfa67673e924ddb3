package emissions

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// sourcesFile is the YAML layout of a custom factor table:
//
//	sources:
//	  - id: natural_gas
//	    name: Природен газ
//	    unit: м³
//	    energy_factor_kwh: 9.3
//	    emission_factor_kg: 1.9
type sourcesFile struct {
	Sources []EnergySource `yaml:"sources"`
}

// LoadSourcesFile reads a custom factor table from a YAML file.
func LoadSourcesFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ParseSourcesYAML(data)
}

// ParseSourcesYAML parses and validates a YAML factor table.
func ParseSourcesYAML(data []byte) (*Table, error) {
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	t, err := NewTable(f.Sources)
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("sources", t.Len()).Msg("loaded custom energy source table")
	return t, nil
}
