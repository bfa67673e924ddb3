package export

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/rshade/eap-emissions-calculator/internal/emissions"
)

// WriteCSV writes the history as UTF-8 CSV: a header line, one line per
// record and a final totals line. Only source names are quoted, and only when
// they contain a separator, quote or line break.
func WriteCSV(w io.Writer, records []emissions.Record) error {
	bw := bufio.NewWriter(w)

	bw.WriteString(strings.Join(emissions.TableHeaders(), ","))
	bw.WriteByte('\n')

	for _, r := range records {
		bw.WriteString(escapeCSV(r.Source.Name))
		bw.WriteByte(',')
		bw.WriteString(formatNumber(r.Quantity))
		bw.WriteByte(',')
		bw.WriteString(r.Source.Unit)
		bw.WriteByte(',')
		bw.WriteString(formatNumber(r.Energy))
		bw.WriteByte(',')
		bw.WriteString(formatNumber(r.Emissions))
		bw.WriteByte('\n')
	}

	totals := emissions.SumRecords(records)
	bw.WriteString(emissions.TotalLabel + ",,,")
	bw.WriteString(formatNumber(totals.Energy))
	bw.WriteByte(',')
	bw.WriteString(formatNumber(totals.Emissions))

	return bw.Flush()
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\n\r") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

// formatNumber renders the shortest representation that round-trips,
// always with a fractional part ("93.0", "6.75").
func formatNumber(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
