// Package main regenerates the embedded energy source table from a YAML
// factor file.
//
// The YAML layout is the one accepted by the calculator's -sources option.
// The tool validates the table and writes it to
// internal/emissions/data/energy_sources.csv for embedding at build time.
//
// Usage:
//
//	go run ./tools/generate-sources --in factors.yaml [--out-dir DIR] [--min-rows N]
//
// Flags:
//
//	--in        YAML factor table to convert (required)
//	--out-dir   Output directory (default: ./internal/emissions/data)
//	--min-rows  Minimum number of sources the table must contain
package main

import (
	"bytes"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rshade/eap-emissions-calculator/internal/emissions"
)

const (
	// outputFileName is the name of the generated CSV file.
	outputFileName = "energy_sources.csv"

	// defaultMinRows matches the size of the shipped table.
	defaultMinRows = 13
)

var csvHeader = []string{"id", "name", "unit", "energy_factor_kwh", "emission_factor_kg"}

func main() {
	in := flag.String("in", "", "YAML factor table to convert")
	outDir := flag.String("out-dir", "./internal/emissions/data", "Output directory for the CSV file")
	minRows := flag.Int("min-rows", defaultMinRows, "Minimum number of sources expected")
	flag.Parse()

	if *in == "" {
		fmt.Fprintln(os.Stderr, "Error: --in is required")
		os.Exit(2)
	}

	table, err := emissions.LoadSourcesFile(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", *in, err)
		os.Exit(1)
	}
	if table.Len() < *minRows {
		fmt.Fprintf(os.Stderr, "Validation error: %d sources found, expected at least %d\n", table.Len(), *minRows)
		os.Exit(1)
	}

	data, err := renderCSV(table.Sources())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering CSV: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	outPath := filepath.Join(*outDir, outputFileName)
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully wrote %s (%d sources, %d bytes)\n", outPath, table.Len(), len(data))
}

// renderCSV writes sources in the embedded table layout.
func renderCSV(sources []emissions.EnergySource) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, s := range sources {
		row := []string{
			s.ID,
			s.Name,
			s.Unit,
			strconv.FormatFloat(s.EnergyFactor, 'f', -1, 64),
			strconv.FormatFloat(s.EmissionFactor, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write %s: %w", s.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
