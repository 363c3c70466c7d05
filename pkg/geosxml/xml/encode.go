package xml

import (
	"bufio"
	"encoding/xml"
	"io"
	"strings"
)

// DefaultIndent is used by Write when no indent is given.
const DefaultIndent = "  "

// Write serializes the attached part of the document as indented XML with a declaration.
func Write(w io.Writer, doc *Document, indent string) error {
	if indent == "" {
		indent = DefaultIndent
	}
	bw := bufio.NewWriter(w)
	bw.WriteString(`<?xml version="1.0" ?>` + "\n")

	type frame struct {
		id    NodeID
		depth int
		close bool
	}
	stack := []frame{{id: doc.root}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &doc.nodes[f.id]
		pad := strings.Repeat(indent, f.depth)

		if f.close {
			bw.WriteString(pad + "</" + n.Tag + ">\n")
			continue
		}

		bw.WriteString(pad + "<" + n.Tag)
		for _, a := range n.Attrs {
			bw.WriteString(" " + a.Name + `="`)
			if err := xml.EscapeText(bw, []byte(a.Value)); err != nil {
				return err
			}
			bw.WriteByte('"')
		}
		if len(n.Children) == 0 {
			bw.WriteString("/>\n")
			continue
		}
		bw.WriteString(">\n")

		stack = append(stack, frame{id: f.id, depth: f.depth, close: true})
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: n.Children[i], depth: f.depth + 1})
		}
	}

	return bw.Flush()
}

// String renders the document with the default indent.
func (d *Document) String() string {
	var b strings.Builder
	_ = Write(&b, d, DefaultIndent)
	return b.String()
}
