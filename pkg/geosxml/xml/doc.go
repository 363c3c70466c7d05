// Package xml provides the in-memory document tree used by the geosxml preprocessor.
//
// A Document is an arena of nodes addressed by NodeID. Children are stored as ordered ID slices
// and every node keeps the ID of its parent, so the tree can be walked in both directions without
// cyclic pointers. Nodes that are detached stay in the arena but are no longer reachable from the
// root.
//
// # Structure Organization
//
//   - document.go: Document, Node, Attr and the structural operations (append, replace, detach)
//   - decode.go: building a Document from XML text with encoding/xml
//   - encode.go: writing a Document back out as indented XML
//
// # Usage
//
//	doc, err := xml.Parse(file)
//	if err != nil {
//	    return err
//	}
//	for _, id := range doc.Children(doc.Root()) {
//	    fmt.Println(doc.Node(id).Tag)
//	}
//
// Only elements and their attributes are kept. Comments, processing instructions and character
// data between elements are dropped, since GEOS input decks carry all their data in attributes.
package xml
