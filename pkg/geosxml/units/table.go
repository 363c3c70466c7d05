package units

import (
	"math"
	"sort"
	"strconv"
)

// Dimension holds the exponents of a unit over the seven SI base units,
// in the order m, kg, s, A, K, mol, cd.
type Dimension [7]int

const (
	dimLength = iota
	dimMass
	dimTime
	dimCurrent
	dimTemperature
	dimAmount
	dimLuminosity
)

var baseSymbols = [7]string{"m", "kg", "s", "A", "K", "mol", "cd"}

// IsZero reports whether d is dimensionless.
func (d Dimension) IsZero() bool {
	return d == Dimension{}
}

func (d Dimension) add(o Dimension, sign int) Dimension {
	for i := range d {
		d[i] += sign * o[i]
	}
	return d
}

func (d Dimension) scale(n int) Dimension {
	for i := range d {
		d[i] *= n
	}
	return d
}

// String renders d in base units, e.g. "kg*m^-3".
func (d Dimension) String() string {
	if d.IsZero() {
		return "1"
	}
	out := ""
	for i, exp := range d {
		if exp == 0 {
			continue
		}
		if out != "" {
			out += "*"
		}
		out += baseSymbols[i]
		if exp != 1 {
			out += "^" + strconv.Itoa(exp)
		}
	}
	return out
}

// symbol describes one entry of the unit table. SI value = magnitude*scale + offset.
type symbol struct {
	scale      float64
	offset     float64
	dim        Dimension
	prefixable bool
	affine     bool
}

func dim(pairs ...int) Dimension {
	var d Dimension
	for i := 0; i+1 < len(pairs); i += 2 {
		d[pairs[i]] = pairs[i+1]
	}
	return d
}

var (
	length      = dim(dimLength, 1)
	mass        = dim(dimMass, 1)
	duration    = dim(dimTime, 1)
	force       = dim(dimMass, 1, dimLength, 1, dimTime, -2)
	pressure    = dim(dimMass, 1, dimLength, -1, dimTime, -2)
	energy      = dim(dimMass, 1, dimLength, 2, dimTime, -2)
	power       = dim(dimMass, 1, dimLength, 2, dimTime, -3)
	volume      = dim(dimLength, 3)
	area        = dim(dimLength, 2)
	frequency   = dim(dimTime, -1)
	viscosity   = dim(dimMass, 1, dimLength, -1, dimTime, -1)
	temperature = dim(dimTemperature, 1)
)

const (
	footInMeters = 0.3048
	poundInKg    = 0.45359237
	gravity      = 9.80665
)

// symbols is the process-wide unit table. It is populated here and never written afterwards.
var symbols = map[string]symbol{
	// SI base units
	"m":   {scale: 1, dim: length, prefixable: true},
	"g":   {scale: 1e-3, dim: mass, prefixable: true},
	"s":   {scale: 1, dim: duration, prefixable: true},
	"A":   {scale: 1, dim: dim(dimCurrent, 1), prefixable: true},
	"K":   {scale: 1, dim: temperature, prefixable: true},
	"mol": {scale: 1, dim: dim(dimAmount, 1), prefixable: true},
	"cd":  {scale: 1, dim: dim(dimLuminosity, 1), prefixable: true},

	// time
	"min": {scale: 60, dim: duration},
	"h":   {scale: 3600, dim: duration},
	"hr":  {scale: 3600, dim: duration},
	"day": {scale: 86400, dim: duration},
	"yr":  {scale: 365.25 * 86400, dim: duration},

	// derived SI
	"N":  {scale: 1, dim: force, prefixable: true},
	"Pa": {scale: 1, dim: pressure, prefixable: true},
	"J":  {scale: 1, dim: energy, prefixable: true},
	"W":  {scale: 1, dim: power, prefixable: true},
	"Hz": {scale: 1, dim: frequency, prefixable: true},
	"L":  {scale: 1e-3, dim: volume, prefixable: true},
	"P":  {scale: 0.1, dim: viscosity, prefixable: true},
	"D":  {scale: 9.869233e-13, dim: area, prefixable: true},

	// pressure
	"bar": {scale: 1e5, dim: pressure, prefixable: true},
	"atm": {scale: 101325, dim: pressure},
	"psi": {scale: poundInKg * gravity / (0.0254 * 0.0254), dim: pressure},

	// imperial
	"in":  {scale: 0.0254, dim: length},
	"ft":  {scale: footInMeters, dim: length},
	"yd":  {scale: 3 * footInMeters, dim: length},
	"mi":  {scale: 5280 * footInMeters, dim: length},
	"lb":  {scale: poundInKg, dim: mass},
	"lbm": {scale: poundInKg, dim: mass},
	"lbf": {scale: poundInKg * gravity, dim: force},
	"bbl": {scale: 0.158987294928, dim: volume},

	// temperature
	"degC": {scale: 1, offset: 273.15, dim: temperature, affine: true},
	"degF": {scale: 5.0 / 9.0, offset: 459.67 * 5.0 / 9.0, dim: temperature, affine: true},

	// angle
	"rad": {scale: 1},
	"deg": {scale: math.Pi / 180},
}

var prefixes = map[string]float64{
	"Y": 1e24, "Z": 1e21, "E": 1e18, "P": 1e15, "T": 1e12, "G": 1e9, "M": 1e6,
	"k": 1e3, "h": 1e2, "da": 1e1, "d": 1e-1, "c": 1e-2, "m": 1e-3, "u": 1e-6,
	"µ": 1e-6, "n": 1e-9, "p": 1e-12, "f": 1e-15, "a": 1e-18,
}

// lookup resolves a bare symbol, trying exact matches before SI prefixes.
func lookup(name string) (symbol, bool) {
	if s, ok := symbols[name]; ok {
		return s, true
	}
	for p, factor := range prefixes {
		if len(name) <= len(p) || name[:len(p)] != p {
			continue
		}
		s, ok := symbols[name[len(p):]]
		if !ok || !s.prefixable {
			continue
		}
		s.scale *= factor
		return s, true
	}
	return symbol{}, false
}

// IsUnit reports whether name is a known unit symbol, optionally carrying an SI prefix.
func IsUnit(name string) bool {
	_, ok := lookup(name)
	return ok
}

// Symbols returns the base symbols of the unit table in sorted order.
func Symbols() []string {
	names := make([]string, 0, len(symbols))
	for name := range symbols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
