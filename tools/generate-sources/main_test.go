package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/eap-emissions-calculator/internal/emissions"
)

func TestRenderCSV(t *testing.T) {
	sources := []emissions.EnergySource{
		{ID: "natural_gas", Name: "Природен газ", Unit: "м³", EnergyFactor: 9.3, EmissionFactor: 1.9},
		{ID: "wood_pellets", Name: "Дървесни пелети, брикети", Unit: "кг", EnergyFactor: 4.7, EmissionFactor: 0.2},
	}

	data, err := renderCSV(sources)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,name,unit,energy_factor_kwh,emission_factor_kg", lines[0])
	assert.Equal(t, "natural_gas,Природен газ,м³,9.3,1.9", lines[1])
	assert.Equal(t, `wood_pellets,"Дървесни пелети, брикети",кг,4.7,0.2`, lines[2])
}

// The default table must survive a render and reload unchanged.
func TestRenderCSV_DefaultTableMatchesEmbedded(t *testing.T) {
	def := emissions.DefaultTable()

	data, err := renderCSV(def.Sources())
	require.NoError(t, err)

	reloaded, err := emissions.ParseSourcesCSV(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Equal(t, def.Sources(), reloaded.Sources())
}
