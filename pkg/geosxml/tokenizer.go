package geosxml

import (
	"regexp"
	"strings"
)

// SegmentType represents the type of an attribute value segment
type SegmentType int

const (
	SegmentText SegmentType = iota
	SegmentExpression
)

// Segment is a piece of an attribute value: literal text or the body of a delimited expression
type Segment struct {
	Type  SegmentType
	Value string
	// Pos is the byte offset of the segment in the original value, delimiter included
	Pos int
}

var (
	// $name$ parameter references
	parameterTokenRegex = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)\$`)
)

// SplitExpressions splits an attribute value into text and expression segments
func SplitExpressions(value, open, close string) ([]Segment, error) {
	var segments []Segment
	pos := 0

	logger := GetLogger()

	for pos < len(value) {
		start := strings.Index(value[pos:], open)
		if start < 0 {
			break
		}
		start += pos

		bodyStart := start + len(open)
		end := strings.Index(value[bodyStart:], close)
		if end < 0 {
			return nil, NewExpressionSyntaxError(value, start, "unterminated expression delimiter")
		}
		end += bodyStart

		if start > pos {
			segments = append(segments, Segment{Type: SegmentText, Value: value[pos:start], Pos: pos})
		}
		segments = append(segments, Segment{Type: SegmentExpression, Value: value[bodyStart:end], Pos: start})
		if logger.IsDebugMode() {
			logger.WithField("expression", value[bodyStart:end]).Debug("Found expression")
		}

		pos = end + len(close)
	}

	if pos < len(value) {
		segments = append(segments, Segment{Type: SegmentText, Value: value[pos:], Pos: pos})
	}

	return segments, nil
}

// HasExpression reports whether value contains an expression opening delimiter
func HasExpression(value, open string) bool {
	return strings.Contains(value, open)
}

// ParameterTokens returns the names of all $name$ references in value, in order, with repeats
func ParameterTokens(value string) []string {
	matches := parameterTokenRegex.FindAllStringSubmatch(value, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// HasParameterTokens reports whether value contains a $name$ reference
func HasParameterTokens(value string) bool {
	return parameterTokenRegex.MatchString(value)
}

// replaceParameterTokens substitutes every $name$ in value using lookup. The first lookup error
// stops the substitution.
func replaceParameterTokens(value string, lookup func(name string) (string, error)) (string, error) {
	matches := parameterTokenRegex.FindAllStringSubmatchIndex(value, -1)
	if len(matches) == 0 {
		return value, nil
	}

	var b strings.Builder
	lastEnd := 0
	for _, m := range matches {
		b.WriteString(value[lastEnd:m[0]])
		replacement, err := lookup(value[m[2]:m[3]])
		if err != nil {
			return "", err
		}
		b.WriteString(replacement)
		lastEnd = m[1]
	}
	b.WriteString(value[lastEnd:])
	return b.String(), nil
}
