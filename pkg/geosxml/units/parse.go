// Package units parses numeric literals carrying physical units and normalizes them to SI.
//
// A literal is a number followed by a unit, either bare or bracketed:
//
//	5 m
//	1000 kg/m^3
//	2.5[MPa]
//	-40 degC
//
// Composite units are products (*, . or ·) and quotients (/) of symbols raised to integer powers.
// Every known symbol accepts the usual SI prefixes where that makes sense (km, mD, cP, MPa).
package units

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MalformedUnitError reports a literal that could not be normalized.
type MalformedUnitError struct {
	Input  string
	Reason string
}

func (e *MalformedUnitError) Error() string {
	return fmt.Sprintf("malformed unit literal %q: %s", e.Input, e.Reason)
}

func malformed(input, format string, args ...interface{}) error {
	return &MalformedUnitError{Input: input, Reason: fmt.Sprintf(format, args...)}
}

// Unit is a parsed unit expression. SI value = magnitude*Scale + Offset.
type Unit struct {
	Text   string
	Scale  float64
	Offset float64
	Dim    Dimension
}

// Quantity is a literal normalized to SI.
type Quantity struct {
	Value float64
	Unit  string
	Dim   Dimension
}

var numberPrefix = regexp.MustCompile(`^[+-]?([0-9]+\.?[0-9]*|\.[0-9]+)([eE][+-]?[0-9]+)?`)

// Parse returns the SI magnitude of a unit literal such as "5 m" or "2[ft]".
func Parse(s string) (float64, error) {
	q, err := ParseQuantity(s)
	if err != nil {
		return 0, err
	}
	return q.Value, nil
}

// ParseQuantity parses a unit literal and keeps its dimension.
func ParseQuantity(s string) (Quantity, error) {
	text := strings.TrimSpace(s)
	numText, unitText, err := split(text)
	if err != nil {
		return Quantity{}, err
	}

	// ParseFloat alone would accept inf, nan and hex floats
	if numberPrefix.FindString(numText) != numText {
		return Quantity{}, malformed(s, "invalid number %q", numText)
	}
	magnitude, err := strconv.ParseFloat(numText, 64)
	if err != nil {
		return Quantity{}, malformed(s, "invalid number %q", numText)
	}

	u, err := ParseUnit(unitText)
	if err != nil {
		if mu, ok := err.(*MalformedUnitError); ok {
			mu.Input = s
		}
		return Quantity{}, err
	}

	value := magnitude*u.Scale + u.Offset
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return Quantity{}, malformed(s, "value out of range")
	}
	return Quantity{
		Value: value,
		Unit:  u.Text,
		Dim:   u.Dim,
	}, nil
}

// split separates the numeric part from the unit part of a literal.
func split(text string) (string, string, error) {
	if strings.HasSuffix(text, "]") {
		open := strings.LastIndex(text, "[")
		if open < 0 {
			return "", "", malformed(text, "unbalanced ']'")
		}
		return strings.TrimSpace(text[:open]), strings.TrimSpace(text[open+1 : len(text)-1]), nil
	}

	num := numberPrefix.FindString(text)
	if num == "" {
		return "", "", malformed(text, "missing numeric value")
	}
	return num, strings.TrimSpace(text[len(num):]), nil
}

// ParseUnit parses a unit expression like "kg/m^3". The empty string is dimensionless.
func ParseUnit(expr string) (Unit, error) {
	u := Unit{Text: strings.TrimSpace(expr), Scale: 1}
	if u.Text == "" {
		return u, nil
	}

	factors, err := scanFactors(u.Text)
	if err != nil {
		return Unit{}, err
	}

	for _, f := range factors {
		sym, ok := lookup(f.name)
		if !ok {
			return Unit{}, malformed(expr, "unknown unit symbol %q", f.name)
		}
		if sym.affine {
			if len(factors) > 1 || f.exp != 1 {
				return Unit{}, malformed(expr, "affine unit %q cannot be combined or raised to a power", f.name)
			}
			u.Offset = sym.offset
		}
		u.Scale *= pow(sym.scale, f.exp)
		u.Dim = u.Dim.add(sym.dim.scale(f.exp), 1)
	}

	return u, nil
}

type factor struct {
	name string
	exp  int
}

// scanFactors splits a composite unit into symbols with signed integer exponents.
func scanFactors(expr string) ([]factor, error) {
	var factors []factor
	sign := 1
	pos := 0
	expectSymbol := true

	for pos < len(expr) {
		r, size := utf8.DecodeRuneInString(expr[pos:])
		switch {
		case r == ' ' || r == '\t':
			pos += size
			continue

		case !expectSymbol && (r == '*' || r == '.' || r == '·'):
			sign = 1
			expectSymbol = true
			pos += size
			continue

		case !expectSymbol && r == '/':
			sign = -1
			expectSymbol = true
			pos += size
			continue

		case expectSymbol && isSymbolRune(r):
			start := pos
			for pos < len(expr) {
				r, size = utf8.DecodeRuneInString(expr[pos:])
				if !isSymbolRune(r) {
					break
				}
				pos += size
			}
			f := factor{name: expr[start:pos], exp: 1}

			if pos < len(expr) && expr[pos] == '^' {
				pos++
				end := pos
				if end < len(expr) && (expr[end] == '+' || expr[end] == '-') {
					end++
				}
				end = skipDigits(expr, end)
				if end+1 < len(expr) && expr[end] == '.' && isDigit(expr[end+1]) {
					end = skipDigits(expr, end+1)
				}
				n, err := strconv.Atoi(expr[pos:end])
				if err != nil {
					return nil, malformed(expr, "exponent %q of %q is not an integer", expr[pos:end], f.name)
				}
				f.exp = n
				pos = end
			}
			f.exp *= sign
			factors = append(factors, f)
			expectSymbol = false
			continue
		}

		return nil, malformed(expr, "unexpected %q at position %d", r, pos)
	}

	if expectSymbol {
		return nil, malformed(expr, "unit expression ends with an operator")
	}
	return factors, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func skipDigits(s string, pos int) int {
	for pos < len(s) && isDigit(s[pos]) {
		pos++
	}
	return pos
}

func isSymbolRune(r rune) bool {
	return unicode.IsLetter(r) || r == 'µ'
}

func pow(base float64, exp int) float64 {
	result := 1.0
	if exp < 0 {
		base = 1 / base
		exp = -exp
	}
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// Express re-expresses an SI magnitude in the given unit.
func Express(si float64, unit string) (float64, error) {
	u, err := ParseUnit(unit)
	if err != nil {
		return 0, err
	}
	return (si - u.Offset) / u.Scale, nil
}

// Convert converts value from one unit to another of the same dimension.
func Convert(value float64, from, to string) (float64, error) {
	src, err := ParseUnit(from)
	if err != nil {
		return 0, err
	}
	dst, err := ParseUnit(to)
	if err != nil {
		return 0, err
	}
	if src.Dim != dst.Dim {
		return 0, malformed(from, "cannot convert %s to %s", src.Dim, dst.Dim)
	}
	return (value*src.Scale + src.Offset - dst.Offset) / dst.Scale, nil
}
