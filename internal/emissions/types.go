package emissions

// EnergySource is one row of the emission factor table.
type EnergySource struct {
	// ID is the stable identifier used by the CLI and the API (e.g. "natural_gas").
	ID string `yaml:"id" json:"id" validate:"required"`

	// Name is the display name of the fuel or energy carrier.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Unit is the unit the quantity is entered in (m³, л, kg, kWh).
	Unit string `yaml:"unit" json:"unit" validate:"required"`

	// EnergyFactor is the delivered energy per unit in kWh.
	EnergyFactor float64 `yaml:"energy_factor_kwh" json:"energy_factor_kwh" validate:"gte=0"`

	// EmissionFactor is the CO2 emitted per unit in kg.
	EmissionFactor float64 `yaml:"emission_factor_kg" json:"emission_factor_kg" validate:"gte=0"`
}

// DisplayLabel returns the label shown in source pickers, e.g. "Нафта (л)".
func (s EnergySource) DisplayLabel() string {
	return s.Name + " (" + s.Unit + ")"
}

// Record is a single calculation in the history.
type Record struct {
	ID        string       `json:"id"`
	Source    EnergySource `json:"source"`
	Quantity  float64      `json:"quantity"`
	Energy    float64      `json:"energy_kwh"`
	Emissions float64      `json:"emissions_kg"`
}

// NewRecord creates a record for quantity units of source. The ID is left
// empty; the Calculator assigns one when the record is added.
func NewRecord(source EnergySource, quantity float64) Record {
	r := Record{Source: source}
	r.setQuantity(quantity)
	return r
}

func (r *Record) setQuantity(quantity float64) {
	r.Quantity = quantity
	r.Energy = quantity * r.Source.EnergyFactor
	r.Emissions = quantity * r.Source.EmissionFactor
}

// Totals is the aggregate over all records, rounded to AmountPrecision.
type Totals struct {
	Energy    float64 `json:"energy_kwh"`
	Emissions float64 `json:"emissions_kg"`
}
