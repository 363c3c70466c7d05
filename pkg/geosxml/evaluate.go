package geosxml

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/benjaminschreck/go-geosxml/pkg/geosxml/units"
	"github.com/benjaminschreck/go-geosxml/pkg/geosxml/xml"
)

// bracketed unit literals such as 1.5[ft] or -2e3 [kg/m^3]. The first group is the character
// before the literal, so digits inside names like x3[m] are left alone.
var unitLiteralRegex = regexp.MustCompile(`(^|[^A-Za-z0-9_.])([+-]?(?:[0-9]+(?:\.[0-9]*)?|\.[0-9]+)(?:[eE][+-]?[0-9]+)?)\s*\[([^\[\]]+)\]`)

// FormatNumber renders an expression result with the given number of significant digits
func FormatNumber(v float64, precision int) string {
	s := strconv.FormatFloat(v, 'g', precision, 64)
	if s == "-0" {
		return "0"
	}
	return s
}

// evaluate parses and evaluates one expression body
func (e *Expander) evaluate(src string, resolve ParameterResolver) (float64, error) {
	node, err := ParseExpression(src, e.registry)
	if err != nil {
		return 0, err
	}

	result, err := node.Evaluate(resolve)
	if err != nil {
		return 0, classifyEvaluationError(src, err)
	}
	e.Logger().DebugExpression(src, result)
	return result, nil
}

// classifyEvaluationError keeps errors that already belong to the taxonomy and wraps the rest
func classifyEvaluationError(src string, err error) error {
	var (
		syntax    *ExpressionSyntaxError
		undefined *UndefinedParameterError
		eval      *ExpressionEvaluationError
		unit      *MalformedUnitError
		circular  *CircularParameterError
	)
	switch {
	case errors.As(err, &syntax), errors.As(err, &undefined), errors.As(err, &eval),
		errors.As(err, &unit), errors.As(err, &circular):
		return err
	}
	return NewExpressionEvaluationError(src, err)
}

// evaluateValue replaces every delimited expression in an attribute value by its result
func (e *Expander) evaluateValue(value string, resolve ParameterResolver) (string, error) {
	segments, err := SplitExpressions(value, e.config.ExpressionOpen, e.config.ExpressionClose)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, seg := range segments {
		if seg.Type == SegmentText {
			b.WriteString(seg.Value)
			continue
		}
		result, err := e.evaluate(seg.Value, resolve)
		if err != nil {
			return "", err
		}
		b.WriteString(FormatNumber(result, e.config.Precision))
	}
	return b.String(), nil
}

// convertUnitLiterals rewrites bracketed unit literals outside expressions to SI values
func (e *Expander) convertUnitLiterals(value string) (string, error) {
	matches := unitLiteralRegex.FindAllStringSubmatchIndex(value, -1)
	if len(matches) == 0 {
		return value, nil
	}

	var b strings.Builder
	lastEnd := 0
	for _, m := range matches {
		// m[4] is where the literal starts, after the boundary character
		b.WriteString(value[lastEnd:m[4]])
		si, err := units.Parse(value[m[4]:m[1]])
		if err != nil {
			return "", err
		}
		b.WriteString(FormatNumber(si, e.config.Precision))
		lastEnd = m[1]
	}
	b.WriteString(value[lastEnd:])
	return b.String(), nil
}

// evaluateExpressions runs the expression pass over every attribute value in the tree
func (e *Expander) evaluateExpressions(doc *xml.Document, table *ParameterTable) error {
	resolver := &parameterResolver{expander: e, table: table}
	open := e.config.ExpressionOpen

	var firstErr error
	count := 0
	doc.Walk(doc.Root(), func(id xml.NodeID) bool {
		if firstErr != nil {
			return false
		}
		node := doc.Node(id)
		for i := range node.Attrs {
			attr := &node.Attrs[i]
			value := attr.Value
			var err error

			if HasExpression(value, open) {
				value, err = e.evaluateValue(value, resolver.resolve)
				count++
			}
			if err == nil && e.config.ConvertUnitLiterals {
				value, err = e.convertUnitLiterals(value)
			}
			if err != nil {
				firstErr = WithLocation(err, node.Source, doc.Path(id), attr.Name)
				return false
			}
			attr.Value = value
		}
		return true
	})

	if firstErr == nil {
		e.Logger().WithField("attributes", count).Debug("Expressions evaluated")
	}
	return firstErr
}
