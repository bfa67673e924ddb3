package emissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.00", FormatAmount(0))
	assert.Equal(t, "93.00", FormatAmount(93))
	assert.Equal(t, "6.75", FormatAmount(6.75))
	assert.Equal(t, "1358.00", FormatAmount(1358))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.23, Round2(1.234))
	assert.Equal(t, 0.99, Round2(0.9872))
	assert.Equal(t, 0.0, Round2(0))
	assert.Equal(t, 100.0, Round2(99.999))
	assert.Equal(t, 1.5e308, Round2(1.5e308), "values without cents stay finite")
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr error
	}{
		{name: "integer", input: "10", want: 10},
		{name: "decimal point", input: "2.5", want: 2.5},
		{name: "decimal comma", input: "2,5", want: 2.5},
		{name: "whitespace", input: "  7 ", want: 7},
		{name: "negative parses", input: "-1", want: -1},
		{name: "empty", input: "", wantErr: ErrEmptyQuantity},
		{name: "blank", input: "   ", wantErr: ErrEmptyQuantity},
		{name: "letters", input: "abc", wantErr: ErrInvalidQuantity},
		{name: "nan", input: "NaN", wantErr: ErrInvalidQuantity},
		{name: "inf", input: "Inf", wantErr: ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuantity(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
