package geosxml

import (
	"fmt"

	"github.com/benjaminschreck/go-geosxml/pkg/geosxml/xml"
)

// Reference is one use of a parameter name inside an attribute value
type Reference struct {
	Name      string
	File      string
	NodePath  string
	Attribute string
	// Bare is true for a bare name inside an expression rather than a $name$ token
	Bare bool
}

func (r Reference) String() string {
	if r.File != "" {
		return fmt.Sprintf("%s:%s@%s", r.File, r.NodePath, r.Attribute)
	}
	return fmt.Sprintf("%s@%s", r.NodePath, r.Attribute)
}

// ReferenceReport summarizes parameter declarations and uses in a document
type ReferenceReport struct {
	// Declared lists declared names in document order
	Declared []string
	// Referenced lists every use in document order
	Referenced []Reference
	// Unused lists declared names that are never referenced
	Unused []string
	// Undefined lists uses of names that are not declared
	Undefined []Reference
}

// Err returns the undefined references as errors, or nil
func (r ReferenceReport) Err() error {
	multi := NewMultiError()
	for _, ref := range r.Undefined {
		multi.Add(WithLocation(&UndefinedParameterError{Name: ref.Name}, ref.File, ref.NodePath, ref.Attribute))
	}
	return multi.Err()
}

// CollectReferences scans a document with the default configuration. Unlike an expansion it
// reports every problem instead of stopping at the first one.
func CollectReferences(doc *xml.Document) ReferenceReport {
	return collectReferences(doc, DefaultConfig(), GetDefaultFunctionRegistry())
}

// CollectReferences scans a document using this expander's delimiters and functions.
func (e *Expander) CollectReferences(doc *xml.Document) ReferenceReport {
	return collectReferences(doc, e.config, e.registry)
}

func collectReferences(doc *xml.Document, config *Config, registry FunctionRegistry) ReferenceReport {
	var report ReferenceReport
	declared := make(map[string]bool)

	doc.Walk(doc.Root(), func(id xml.NodeID) bool {
		node := doc.Node(id)
		isDeclaration := node.Tag == parameterTag && doc.Parent(id) != xml.NoNode && doc.Tag(doc.Parent(id)) == parametersTag

		if isDeclaration {
			if name, ok := doc.Attr(id, "name"); ok && !declared[name] {
				declared[name] = true
				report.Declared = append(report.Declared, name)
			}
		}

		for _, attr := range node.Attrs {
			if isDeclaration && attr.Name == "name" {
				continue
			}
			at := Reference{File: node.Source, NodePath: doc.Path(id), Attribute: attr.Name}

			for _, name := range ParameterTokens(attr.Value) {
				ref := at
				ref.Name = name
				report.Referenced = append(report.Referenced, ref)
			}

			for _, name := range expressionNames(attr.Value, config, registry) {
				ref := at
				ref.Name = name
				ref.Bare = true
				report.Referenced = append(report.Referenced, ref)
			}
		}
		return true
	})

	used := make(map[string]bool)
	for _, ref := range report.Referenced {
		if declared[ref.Name] {
			used[ref.Name] = true
			continue
		}
		if _, isConstant := constants[ref.Name]; ref.Bare && isConstant {
			continue
		}
		report.Undefined = append(report.Undefined, ref)
	}
	for _, name := range report.Declared {
		if !used[name] {
			report.Unused = append(report.Unused, name)
		}
	}

	return report
}

// expressionNames returns the bare names used by the expressions in value. Values that do not
// parse contribute nothing; the expression pass reports them.
func expressionNames(value string, config *Config, registry FunctionRegistry) []string {
	if !HasExpression(value, config.ExpressionOpen) {
		return nil
	}
	segments, err := SplitExpressions(value, config.ExpressionOpen, config.ExpressionClose)
	if err != nil {
		return nil
	}

	var names []string
	for _, seg := range segments {
		if seg.Type != SegmentExpression {
			continue
		}
		// $name$ tokens are counted separately; stand in a number so the rest still parses
		body := parameterTokenRegex.ReplaceAllString(seg.Value, "1")
		node, err := ParseExpression(body, registry)
		if err != nil {
			continue
		}
		names = append(names, ParameterNames(node)...)
	}
	return names
}
