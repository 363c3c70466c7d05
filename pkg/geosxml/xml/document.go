package xml

import (
	"fmt"
	"strings"
)

// NodeID addresses a node inside a Document.
type NodeID int

// NoNode is the parent of the root and of detached nodes.
const NoNode NodeID = -1

// Attr is a single attribute. Names are unique within a node.
type Attr struct {
	Name  string
	Value string
}

// Node is one element of the tree.
type Node struct {
	Tag      string
	Attrs    []Attr
	Children []NodeID
	Parent   NodeID
	// Source is the file the node was read from, if any.
	Source string
}

// Document is an arena-backed element tree.
type Document struct {
	nodes []Node
	root  NodeID
}

// NewDocument creates a document holding a single root element.
func NewDocument(rootTag string) *Document {
	doc := &Document{}
	doc.root = doc.NewNode(rootTag, "")
	return doc
}

// Root returns the ID of the root element.
func (d *Document) Root() NodeID {
	return d.root
}

// Len returns the number of nodes in the arena, including detached ones.
func (d *Document) Len() int {
	return len(d.nodes)
}

// Node returns the node with the given ID. The pointer is invalidated by NewNode and Import.
func (d *Document) Node(id NodeID) *Node {
	return &d.nodes[id]
}

// Tag returns the tag of a node.
func (d *Document) Tag(id NodeID) string {
	return d.nodes[id].Tag
}

// Children returns a copy of the child list of a node.
func (d *Document) Children(id NodeID) []NodeID {
	children := d.nodes[id].Children
	out := make([]NodeID, len(children))
	copy(out, children)
	return out
}

// Parent returns the parent of a node, or NoNode.
func (d *Document) Parent(id NodeID) NodeID {
	return d.nodes[id].Parent
}

// NewNode allocates a detached node.
func (d *Document) NewNode(tag, source string) NodeID {
	d.nodes = append(d.nodes, Node{Tag: tag, Parent: NoNode, Source: source})
	return NodeID(len(d.nodes) - 1)
}

// AppendChild attaches child as the last child of parent.
func (d *Document) AppendChild(parent, child NodeID) error {
	if err := d.checkAttachable(parent, child); err != nil {
		return err
	}
	d.nodes[parent].Children = append(d.nodes[parent].Children, child)
	d.nodes[child].Parent = parent
	return nil
}

// AddElement is a shorthand for NewNode followed by AppendChild.
func (d *Document) AddElement(parent NodeID, tag string, attrs ...Attr) NodeID {
	id := d.NewNode(tag, d.nodes[parent].Source)
	d.nodes[id].Attrs = append(d.nodes[id].Attrs, attrs...)
	d.nodes[parent].Children = append(d.nodes[parent].Children, id)
	d.nodes[id].Parent = parent
	return id
}

func (d *Document) checkAttachable(parent, child NodeID) error {
	if d.nodes[child].Parent != NoNode {
		return fmt.Errorf("node %d already has parent %d", child, d.nodes[child].Parent)
	}
	if child == d.root {
		return fmt.Errorf("root node cannot be attached")
	}
	for p := parent; p != NoNode; p = d.nodes[p].Parent {
		if p == child {
			return fmt.Errorf("attaching node %d under %d would create a cycle", child, parent)
		}
	}
	return nil
}

// Replace puts the given detached nodes in place of id, in order, and detaches id.
func (d *Document) Replace(id NodeID, with []NodeID) error {
	parent := d.nodes[id].Parent
	if parent == NoNode {
		return fmt.Errorf("cannot replace node %d without a parent", id)
	}
	for _, w := range with {
		if err := d.checkAttachable(parent, w); err != nil {
			return err
		}
	}

	siblings := d.nodes[parent].Children
	pos := indexOf(siblings, id)
	updated := make([]NodeID, 0, len(siblings)-1+len(with))
	updated = append(updated, siblings[:pos]...)
	updated = append(updated, with...)
	updated = append(updated, siblings[pos+1:]...)
	d.nodes[parent].Children = updated

	for _, w := range with {
		d.nodes[w].Parent = parent
	}
	d.nodes[id].Parent = NoNode
	return nil
}

// Detach removes a node (and its subtree) from its parent.
func (d *Document) Detach(id NodeID) {
	parent := d.nodes[id].Parent
	if parent == NoNode {
		return
	}
	siblings := d.nodes[parent].Children
	if pos := indexOf(siblings, id); pos >= 0 {
		d.nodes[parent].Children = append(siblings[:pos:pos], siblings[pos+1:]...)
	}
	d.nodes[id].Parent = NoNode
}

func indexOf(ids []NodeID, id NodeID) int {
	for i, c := range ids {
		if c == id {
			return i
		}
	}
	return -1
}

// Import deep-copies the subtree rooted at id in src into d and returns the new, detached node.
func (d *Document) Import(src *Document, id NodeID) NodeID {
	n := src.nodes[id]
	copyID := d.NewNode(n.Tag, n.Source)
	d.nodes[copyID].Attrs = append([]Attr(nil), n.Attrs...)
	for _, child := range n.Children {
		c := d.Import(src, child)
		d.nodes[copyID].Children = append(d.nodes[copyID].Children, c)
		d.nodes[c].Parent = copyID
	}
	return copyID
}

// Clone returns a deep copy of the whole arena, detached nodes included.
func (d *Document) Clone() *Document {
	out := &Document{nodes: make([]Node, len(d.nodes)), root: d.root}
	for i, n := range d.nodes {
		n.Attrs = append([]Attr(nil), n.Attrs...)
		n.Children = append([]NodeID(nil), n.Children...)
		out.nodes[i] = n
	}
	return out
}

// Attr returns the value of an attribute.
func (d *Document) Attr(id NodeID, name string) (string, bool) {
	for _, a := range d.nodes[id].Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets or adds an attribute, keeping the position of an existing one.
func (d *Document) SetAttr(id NodeID, name, value string) {
	attrs := d.nodes[id].Attrs
	for i := range attrs {
		if attrs[i].Name == name {
			attrs[i].Value = value
			return
		}
	}
	d.nodes[id].Attrs = append(attrs, Attr{Name: name, Value: value})
}

// RemoveAttr deletes an attribute if present.
func (d *Document) RemoveAttr(id NodeID, name string) {
	attrs := d.nodes[id].Attrs
	for i := range attrs {
		if attrs[i].Name == name {
			d.nodes[id].Attrs = append(attrs[:i:i], attrs[i+1:]...)
			return
		}
	}
}

// Walk visits the subtree rooted at id in document order. Returning false from fn skips the
// children of the visited node. The walk uses an explicit stack.
func (d *Document) Walk(id NodeID, fn func(NodeID) bool) {
	stack := []NodeID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(cur) {
			continue
		}
		children := d.nodes[cur].Children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}

// FindAll returns every attached node with the given tag in document order.
func (d *Document) FindAll(tag string) []NodeID {
	var out []NodeID
	d.Walk(d.root, func(id NodeID) bool {
		if d.nodes[id].Tag == tag {
			out = append(out, id)
		}
		return true
	})
	return out
}

// Path returns a readable location such as /Problem/Solvers/SolidMechanics[@name='lag'].
// Siblings sharing a tag without a name are told apart by a zero-based index.
func (d *Document) Path(id NodeID) string {
	var parts []string
	for cur := id; cur != NoNode; cur = d.nodes[cur].Parent {
		parts = append(parts, d.step(cur))
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(parts[i])
	}
	return b.String()
}

func (d *Document) step(id NodeID) string {
	n := d.nodes[id]
	if name, ok := d.Attr(id, "name"); ok {
		return fmt.Sprintf("%s[@name='%s']", n.Tag, name)
	}
	if n.Parent == NoNode {
		return n.Tag
	}
	index, count := 0, 0
	for _, sib := range d.nodes[n.Parent].Children {
		if d.nodes[sib].Tag != n.Tag {
			continue
		}
		if sib == id {
			index = count
		}
		count++
	}
	if count > 1 {
		return fmt.Sprintf("%s[%d]", n.Tag, index)
	}
	return n.Tag
}
