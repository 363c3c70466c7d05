package xml

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
)

// Parse reads an XML document.
func Parse(r io.Reader) (*Document, error) {
	return ParseWithSource(r, "")
}

// ParseFile reads the XML document stored at path. Nodes record path as their source.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseWithSource(f, path)
}

// ParseWithSource reads an XML document and tags every node with source.
//
// Raw tokens are used so namespace prefixes such as xsi:noNamespaceSchemaLocation survive
// unchanged; element nesting is checked here instead of by the decoder.
func ParseWithSource(r io.Reader, source string) (*Document, error) {
	decoder := xml.NewDecoder(r)
	doc := &Document{root: NoNode}
	var open []NodeID

	for {
		token, err := decoder.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, syntaxError(decoder, source, err.Error())
		}

		switch t := token.(type) {
		case xml.StartElement:
			id := doc.NewNode(qualified(t.Name), source)
			for _, a := range t.Attr {
				name := qualified(a.Name)
				if _, dup := doc.Attr(id, name); dup {
					return nil, syntaxError(decoder, source, fmt.Sprintf("duplicate attribute %q on <%s>", name, t.Name.Local))
				}
				doc.nodes[id].Attrs = append(doc.nodes[id].Attrs, Attr{Name: name, Value: a.Value})
			}

			if len(open) == 0 {
				if doc.root != NoNode {
					return nil, syntaxError(decoder, source, "multiple root elements")
				}
				doc.root = id
			} else {
				parent := open[len(open)-1]
				doc.nodes[parent].Children = append(doc.nodes[parent].Children, id)
				doc.nodes[id].Parent = parent
			}
			open = append(open, id)

		case xml.EndElement:
			if len(open) == 0 {
				return nil, syntaxError(decoder, source, fmt.Sprintf("unexpected </%s>", qualified(t.Name)))
			}
			top := open[len(open)-1]
			if doc.nodes[top].Tag != qualified(t.Name) {
				return nil, syntaxError(decoder, source,
					fmt.Sprintf("element <%s> closed by </%s>", doc.nodes[top].Tag, qualified(t.Name)))
			}
			open = open[:len(open)-1]
		}
	}

	if len(open) > 0 {
		return nil, syntaxError(decoder, source, fmt.Sprintf("unclosed element <%s>", doc.nodes[open[len(open)-1]].Tag))
	}
	if doc.root == NoNode {
		return nil, syntaxError(decoder, source, "no root element")
	}
	return doc, nil
}

func qualified(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}

// SyntaxError reports malformed XML input.
type SyntaxError struct {
	Source string
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.Source, e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

func syntaxError(d *xml.Decoder, source, msg string) error {
	line, col := d.InputPos()
	return &SyntaxError{Source: source, Line: line, Column: col, Msg: msg}
}
