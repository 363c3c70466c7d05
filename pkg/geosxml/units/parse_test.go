package units

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{name: "meters", input: "5 m", want: 5},
		{name: "no whitespace", input: "5m", want: 5},
		{name: "bracketed", input: "2[ft]", want: 0.6096},
		{name: "bracketed with space", input: "2.5 [MPa]", want: 2.5e6},
		{name: "centimeters", input: "200 cm", want: 2},
		{name: "kilograms", input: "3 kg", want: 3},
		{name: "grams", input: "3 g", want: 0.003},
		{name: "density", input: "1000 kg/m^3", want: 1000},
		{name: "density grams", input: "1 g/cm^3", want: 1000},
		{name: "acceleration", input: "9.81 m/s^2", want: 9.81},
		{name: "negative exponent", input: "2 m.s^-1", want: 2},
		{name: "product", input: "3 N*m", want: 3},
		{name: "scientific", input: "1.5e3 Pa", want: 1500},
		{name: "negative number", input: "-4 km", want: -4000},
		{name: "leading dot", input: ".5 m", want: 0.5},
		{name: "dimensionless", input: "42", want: 42},
		{name: "celsius", input: "25 degC", want: 298.15},
		{name: "fahrenheit", input: "32 degF", want: 273.15},
		{name: "bar", input: "1 bar", want: 1e5},
		{name: "millidarcy", input: "1 mD", want: 9.869233e-16},
		{name: "centipoise", input: "1 cP", want: 1e-3},
		{name: "days", input: "1 day", want: 86400},
		{name: "microsecond", input: "1 us", want: 1e-6},
		{name: "micro sign", input: "1 µs", want: 1e-6},
		{name: "degrees", input: "180 deg", want: 3.141592653589793},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9*max(1, abs(tt.want)))
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "no number", input: "m"},
		{name: "empty", input: ""},
		{name: "bad number in brackets", input: "abc[m]"},
		{name: "unknown symbol", input: "5 furlong"},
		{name: "fractional exponent", input: "5 m^2.5"},
		{name: "missing exponent", input: "5 m^"},
		{name: "dangling operator", input: "5 kg/"},
		{name: "unbalanced bracket", input: "5 m]"},
		{name: "affine in composite", input: "5 degC/s"},
		{name: "affine with power", input: "5 degC^2"},
		{name: "digit as unit", input: "5 5"},
		{name: "infinity in brackets", input: "inf[m]"},
		{name: "nan in brackets", input: "NaN[m]"},
		{name: "spelled infinity", input: "Infinity [Pa]"},
		{name: "hex float", input: "0x1p4[m]"},
		{name: "overflow after scaling", input: "1e300[km^3]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			var mu *MalformedUnitError
			assert.True(t, errors.As(err, &mu), "expected *MalformedUnitError, got %T", err)
		})
	}
}

func TestParseQuantityDimension(t *testing.T) {
	q, err := ParseQuantity("1000 kg/m^3")
	require.NoError(t, err)
	assert.Equal(t, Dimension{-3, 1, 0, 0, 0, 0, 0}, q.Dim)
	assert.Equal(t, "m^-3*kg", q.Dim.String())
	assert.Equal(t, "kg/m^3", q.Unit)

	q, err = ParseQuantity("3 N")
	require.NoError(t, err)
	assert.Equal(t, Dimension{1, 1, -2, 0, 0, 0, 0}, q.Dim)
}

func TestRoundTrip(t *testing.T) {
	for _, unit := range []string{"m", "cm", "ft", "kg", "g", "s", "h", "Pa", "MPa", "psi", "bar",
		"degC", "degF", "K", "mD", "cP", "kg/m^3", "m/s^2", "L", "bbl"} {
		for _, n := range []float64{0, 1, -3.5, 1234.5678, 1e-7} {
			t.Run(unit, func(t *testing.T) {
				literal := strconv.FormatFloat(n, 'g', -1, 64) + " " + unit
				si, err := Parse(literal)
				require.NoError(t, err)

				back, err := Express(si, unit)
				require.NoError(t, err)
				assert.InDelta(t, n, back, 1e-9*max(1, abs(n)))

				again, err := Parse(strconv.FormatFloat(back, 'g', -1, 64) + " " + unit)
				require.NoError(t, err)
				assert.InDelta(t, si, again, 1e-9*max(1, abs(si)))
			})
		}
	}
}

func TestConvert(t *testing.T) {
	got, err := Convert(1, "km", "m")
	require.NoError(t, err)
	assert.InDelta(t, 1000, got, 1e-9)

	got, err = Convert(100, "degC", "degF")
	require.NoError(t, err)
	assert.InDelta(t, 212, got, 1e-9)

	_, err = Convert(1, "m", "s")
	require.Error(t, err)
}

func TestIsUnit(t *testing.T) {
	assert.True(t, IsUnit("m"))
	assert.True(t, IsUnit("km"))
	assert.True(t, IsUnit("MPa"))
	assert.True(t, IsUnit("min"))
	assert.False(t, IsUnit("kpsi"))
	assert.False(t, IsUnit("L2"))
	assert.False(t, IsUnit("pi"))
}

func TestSymbolsSorted(t *testing.T) {
	names := Symbols()
	require.NotEmpty(t, names)
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "Pa")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
