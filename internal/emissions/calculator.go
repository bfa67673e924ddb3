package emissions

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
)

// Calculator keeps the ordered calculation history over a factor table.
// It is safe for concurrent use.
type Calculator struct {
	table *Table

	mu      sync.RWMutex
	records []Record
}

// NewCalculator creates an empty calculator over table. A nil table selects
// DefaultTable.
func NewCalculator(table *Table) *Calculator {
	if table == nil {
		table = DefaultTable()
	}
	return &Calculator{table: table}
}

// Table returns the factor table the calculator uses.
func (c *Calculator) Table() *Table {
	return c.table
}

// Add appends a calculation of quantity units of the source identified by
// sourceID. The quantity must be strictly positive, and neither the record
// nor the history totals may overflow.
func (c *Calculator) Add(sourceID string, quantity float64) (Record, error) {
	if !isFinite(quantity) {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidQuantity, quantity)
	}
	if quantity <= 0 {
		return Record{}, ErrNonPositiveQuantity
	}
	source, ok := c.table.SourceByID(sourceID)
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownSource, sourceID)
	}

	r := NewRecord(source, quantity)
	r.ID = uuid.New().String()

	c.mu.Lock()
	defer c.mu.Unlock()

	next := append(c.records[:len(c.records):len(c.records)], r)
	if err := checkRange(next); err != nil {
		return Record{}, err
	}
	c.records = next
	return r, nil
}

// AddInput parses the raw quantity text and then behaves like Add.
func (c *Calculator) AddInput(sourceID, text string) (Record, error) {
	q, err := ParseQuantity(text)
	if err != nil {
		return Record{}, err
	}
	return c.Add(sourceID, q)
}

// UpdateQuantity changes the quantity of the record with the given ID and
// recomputes its energy and emissions. Zero is allowed; negative quantities
// are rejected. It reports whether the record changed.
func (c *Calculator) UpdateQuantity(id string, quantity float64) (Record, bool, error) {
	if !isFinite(quantity) {
		return Record{}, false, fmt.Errorf("%w: %v", ErrInvalidQuantity, quantity)
	}
	if quantity < 0 {
		return Record{}, false, ErrNegativeQuantity
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(id)
	if i < 0 {
		return Record{}, false, fmt.Errorf("%w: %q", ErrRecordNotFound, id)
	}
	if c.records[i].Quantity == quantity {
		return c.records[i], false, nil
	}

	next := make([]Record, len(c.records))
	copy(next, c.records)
	next[i].setQuantity(quantity)
	if err := checkRange(next); err != nil {
		return Record{}, false, err
	}
	c.records = next
	return next[i], true, nil
}

// UpdateInput parses an edited quantity. A blank edit resets the quantity to
// zero instead of failing.
func (c *Calculator) UpdateInput(id, text string) (Record, bool, error) {
	q, err := ParseQuantity(text)
	switch {
	case errors.Is(err, ErrEmptyQuantity):
		q = 0
	case err != nil:
		return Record{}, false, err
	}
	return c.UpdateQuantity(id, q)
}

// Remove deletes the record with the given ID.
func (c *Calculator) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrRecordNotFound, id)
	}
	c.records = append(c.records[:i], c.records[i+1:]...)
	return nil
}

// Record returns the record with the given ID.
func (c *Calculator) Record(id string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := c.indexLocked(id)
	if i < 0 {
		return Record{}, false
	}
	return c.records[i], true
}

// Records returns a snapshot of the history in insertion order.
func (c *Calculator) Records() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// Len returns the number of records.
func (c *Calculator) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Totals sums energy and emissions over all records, rounded to two decimals.
func (c *Calculator) Totals() Totals {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return SumRecords(c.records)
}

// Reset clears the history.
func (c *Calculator) Reset() {
	c.mu.Lock()
	c.records = nil
	c.mu.Unlock()
}

// Restore replaces the history with records, e.g. after loading from a store.
// Energy and emissions are recomputed from each record's own factors and
// records without an ID get a fresh one.
func (c *Calculator) Restore(records []Record) {
	restored := make([]Record, len(records))
	for i, r := range records {
		r.setQuantity(r.Quantity)
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		restored[i] = r
	}

	c.mu.Lock()
	c.records = restored
	c.mu.Unlock()
}

func (c *Calculator) indexLocked(id string) int {
	for i := range c.records {
		if c.records[i].ID == id {
			return i
		}
	}
	return -1
}

// SumRecords totals energy and emissions of records, rounded to two decimals.
func SumRecords(records []Record) Totals {
	var t Totals
	for _, r := range records {
		t.Energy += r.Energy
		t.Emissions += r.Emissions
	}
	t.Energy = Round2(t.Energy)
	t.Emissions = Round2(t.Emissions)
	return t
}

// checkRange reports ErrQuantityOutOfRange when any record or the unrounded
// totals of records are not finite.
func checkRange(records []Record) error {
	var energy, emissions float64
	for _, r := range records {
		if !isFinite(r.Energy) || !isFinite(r.Emissions) {
			return fmt.Errorf("%w: %v %s of %s", ErrQuantityOutOfRange, r.Quantity, r.Source.Unit, r.Source.ID)
		}
		energy += r.Energy
		emissions += r.Emissions
	}
	if !isFinite(energy) || !isFinite(emissions) {
		return fmt.Errorf("%w: history totals overflow", ErrQuantityOutOfRange)
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
