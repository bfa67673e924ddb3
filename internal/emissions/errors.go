package emissions

import "errors"

var (
	// ErrEmptyQuantity is returned when no quantity was entered.
	ErrEmptyQuantity = errors.New("quantity is required")

	// ErrInvalidQuantity is returned when the quantity is not a number.
	ErrInvalidQuantity = errors.New("quantity is not a valid number")

	// ErrNonPositiveQuantity is returned when a new calculation has a quantity <= 0.
	ErrNonPositiveQuantity = errors.New("quantity must be a positive number")

	// ErrNegativeQuantity is returned when an edited quantity is below zero.
	ErrNegativeQuantity = errors.New("quantity must not be negative")

	// ErrQuantityOutOfRange is returned when a quantity is so large that its
	// energy, emissions or the history totals overflow.
	ErrQuantityOutOfRange = errors.New("quantity is out of range")

	// ErrUnknownSource is returned for a source ID not present in the table.
	ErrUnknownSource = errors.New("unknown energy source")

	// ErrRecordNotFound is returned for a record ID not present in the history.
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidTable is returned when a factor table fails validation.
	ErrInvalidTable = errors.New("invalid energy source table")
)
