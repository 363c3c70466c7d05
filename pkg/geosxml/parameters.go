package geosxml

import (
	"fmt"
	"sort"
	"strings"

	"github.com/benjaminschreck/go-geosxml/pkg/geosxml/units"
	"github.com/benjaminschreck/go-geosxml/pkg/geosxml/xml"
)

const (
	parametersTag = "Parameters"
	parameterTag  = "Parameter"
)

// Parameter is one entry of a ParameterTable
type Parameter struct {
	Name  string
	Value string
	// Location is where the parameter was declared, or "override"
	Location string
}

// ParameterTable maps parameter names to their values for one expansion pass
type ParameterTable struct {
	entries map[string]*Parameter
	order   []string
}

// NewParameterTable creates an empty table
func NewParameterTable() *ParameterTable {
	return &ParameterTable{entries: make(map[string]*Parameter)}
}

// ParametersFromMap builds a table from plain name/value pairs, e.g. for a one-off evaluation
func ParametersFromMap(values map[string]string) *ParameterTable {
	t := NewParameterTable()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t.Set(name, values[name])
	}
	return t
}

// Declare adds a parameter read from the document. Declaring a name twice is an error.
func (t *ParameterTable) Declare(name, value, location string) error {
	if existing, ok := t.entries[name]; ok {
		return &DuplicateParameterError{Name: name, First: existing.Location, Second: location}
	}
	t.entries[name] = &Parameter{Name: name, Value: value, Location: location}
	t.order = append(t.order, name)
	return nil
}

// Set adds or replaces a parameter
func (t *ParameterTable) Set(name, value string) {
	if existing, ok := t.entries[name]; ok {
		existing.Value = value
		existing.Location = "override"
		return
	}
	t.entries[name] = &Parameter{Name: name, Value: value, Location: "override"}
	t.order = append(t.order, name)
}

// Get returns the value of a parameter
func (t *ParameterTable) Get(name string) (string, bool) {
	if t == nil {
		return "", false
	}
	p, ok := t.entries[name]
	if !ok {
		return "", false
	}
	return p.Value, true
}

// Lookup returns the full entry for a parameter
func (t *ParameterTable) Lookup(name string) (*Parameter, bool) {
	p, ok := t.entries[name]
	return p, ok
}

// Names returns parameter names in declaration order
func (t *ParameterTable) Names() []string {
	return append([]string(nil), t.order...)
}

// Len returns the number of parameters
func (t *ParameterTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// Resolve replaces $name$ references inside parameter values with the referenced values.
// References may nest up to maxDepth levels.
func (t *ParameterTable) Resolve(maxDepth int) error {
	resolved := make(map[string]bool, len(t.order))

	var resolve func(name string, chain []string) (string, error)
	resolve = func(name string, chain []string) (string, error) {
		p, ok := t.entries[name]
		if !ok {
			return "", &UndefinedParameterError{Name: name}
		}
		if resolved[name] {
			return p.Value, nil
		}
		for _, c := range chain {
			if c == name {
				return "", &CircularParameterError{Chain: append(append([]string(nil), chain...), name)}
			}
		}
		if len(chain) >= maxDepth {
			return "", NewDocumentError("resolve parameters", "",
				fmt.Errorf("parameter %q nests deeper than %d levels", name, maxDepth))
		}

		next := append(append([]string(nil), chain...), name)
		value, err := replaceParameterTokens(p.Value, func(ref string) (string, error) {
			return resolve(ref, next)
		})
		if err != nil {
			return "", err
		}
		if HasParameterTokens(value) {
			return "", &MarkupError{Element: parameterTag,
				Message: fmt.Sprintf("value of %q leaves parameter token in %q after substitution", name, value)}
		}
		p.Value = value
		resolved[name] = true
		return value, nil
	}

	for _, name := range t.order {
		if _, err := resolve(name, nil); err != nil {
			return err
		}
	}
	return nil
}

// collectParameters gathers every <Parameters> block in document order into table and removes
// the blocks from the tree.
func collectParameters(doc *xml.Document, table *ParameterTable) error {
	blocks := doc.FindAll(parametersTag)

	for _, block := range blocks {
		for _, child := range doc.Children(block) {
			node := doc.Node(child)
			location := nodeLocation(doc, child)

			if node.Tag != parameterTag {
				return WithLocation(&MarkupError{Element: parametersTag,
					Message: fmt.Sprintf("unexpected child <%s>", node.Tag)}, node.Source, doc.Path(child), "")
			}
			name, ok := doc.Attr(child, "name")
			if !ok || !isIdentifier(name) {
				return WithLocation(&MarkupError{Element: parameterTag,
					Message: fmt.Sprintf("invalid or missing name %q", name)}, node.Source, doc.Path(child), "name")
			}
			value, ok := doc.Attr(child, "value")
			if !ok {
				return WithLocation(&MarkupError{Element: parameterTag,
					Message: fmt.Sprintf("parameter %q has no value", name)}, node.Source, doc.Path(child), "value")
			}

			if err := table.Declare(name, value, location); err != nil {
				return WithLocation(err, node.Source, doc.Path(child), "name")
			}
		}
	}

	for _, block := range blocks {
		doc.Detach(block)
	}
	return nil
}

func nodeLocation(doc *xml.Document, id xml.NodeID) string {
	if source := doc.Node(id).Source; source != "" {
		return source + ":" + doc.Path(id)
	}
	return doc.Path(id)
}

// substituteParameters replaces every $name$ token in every attribute value of the tree
func substituteParameters(doc *xml.Document, table *ParameterTable) error {
	var firstErr error
	doc.Walk(doc.Root(), func(id xml.NodeID) bool {
		if firstErr != nil {
			return false
		}
		node := doc.Node(id)
		for i := range node.Attrs {
			attr := &node.Attrs[i]
			if !HasParameterTokens(attr.Value) {
				continue
			}
			value, err := replaceParameterTokens(attr.Value, func(name string) (string, error) {
				if v, ok := table.Get(name); ok {
					return v, nil
				}
				return "", &UndefinedParameterError{Name: name}
			})
			if err == nil && HasParameterTokens(value) {
				// a substituted value joined with its neighbours into a new token
				err = &MarkupError{Element: node.Tag,
					Message: fmt.Sprintf("substitution in %s leaves parameter token in %q", attr.Name, value)}
			}
			if err != nil {
				firstErr = WithLocation(err, node.Source, doc.Path(id), attr.Name)
				return false
			}
			attr.Value = value
		}
		return true
	})
	return firstErr
}

// parameterResolver evaluates parameters referenced by bare name inside expressions. A value
// must be a number, a unit literal or a single delimited expression.
type parameterResolver struct {
	expander *Expander
	table    *ParameterTable
	chain    []string
}

func (r *parameterResolver) resolve(name string) (float64, error) {
	raw, ok := r.table.Get(name)
	if !ok {
		return 0, &UndefinedParameterError{Name: name}
	}
	for _, c := range r.chain {
		if c == name {
			return 0, &CircularParameterError{Chain: append(append([]string(nil), r.chain...), name)}
		}
	}
	if len(r.chain) >= r.expander.config.MaxParameterDepth {
		return 0, NewExpressionEvaluationError(raw,
			fmt.Errorf("parameter %q nests deeper than %d levels", name, r.expander.config.MaxParameterDepth))
	}

	value := strings.TrimSpace(raw)
	open, close := r.expander.config.ExpressionOpen, r.expander.config.ExpressionClose
	if strings.HasPrefix(value, open) && strings.HasSuffix(value, close) && len(value) >= len(open)+len(close) {
		body := value[len(open) : len(value)-len(close)]
		if !strings.Contains(body, open) && !strings.Contains(body, close) {
			nested := &parameterResolver{
				expander: r.expander,
				table:    r.table,
				chain:    append(append([]string(nil), r.chain...), name),
			}
			return r.expander.evaluate(body, nested.resolve)
		}
	}

	v, err := units.Parse(value)
	if err != nil {
		return 0, NewExpressionEvaluationError(name,
			fmt.Errorf("parameter %q has non-numeric value %q", name, raw))
	}
	if _, err := checkFinite(v, name); err != nil {
		return 0, NewExpressionEvaluationError(name, err)
	}
	return v, nil
}
