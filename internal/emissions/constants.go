// Package emissions provides the energy source factor table and the
// calculator that converts fuel and energy quantities into delivered energy
// (kWh) and CO2 emissions (kg).
package emissions

const (
	// AmountPrecision is the number of decimal places totals are rounded to
	// and amounts are displayed with.
	AmountPrecision = 2

	// TotalLabel is the label of the totals row in exported tables.
	TotalLabel = "ОБЩО"
)

// Column headers of the results table, in display order.
const (
	HeaderSource    = "Източник"
	HeaderQuantity  = "Количество"
	HeaderUnit      = "Ед."
	HeaderEnergy    = "Енергия (kWh)"
	HeaderEmissions = "CO₂ (kg)"
)

// TableHeaders returns the results table headers in display order.
func TableHeaders() []string {
	return []string{HeaderSource, HeaderQuantity, HeaderUnit, HeaderEnergy, HeaderEmissions}
}
