package geosxml

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/benjaminschreck/go-geosxml/pkg/geosxml/xml"
)

const (
	includedTag = "Included"
	fileTag     = "File"
)

// InclusionRecord is the chain of files currently being expanded, outermost first
type InclusionRecord struct {
	chain []string
}

// Push enters a file. Entering a file already on the chain is a circular inclusion.
func (r *InclusionRecord) Push(path string) error {
	if r.Contains(path) {
		return &CircularInclusionError{Path: path, Chain: r.Chain()}
	}
	r.chain = append(r.chain, path)
	return nil
}

// Pop leaves the innermost file
func (r *InclusionRecord) Pop() {
	if len(r.chain) > 0 {
		r.chain = r.chain[:len(r.chain)-1]
	}
}

// Contains reports whether path is on the chain
func (r *InclusionRecord) Contains(path string) bool {
	for _, p := range r.chain {
		if p == path {
			return true
		}
	}
	return false
}

// Chain returns a copy of the chain
func (r *InclusionRecord) Chain() []string {
	return append([]string(nil), r.chain...)
}

// Depth returns the number of files on the chain
func (r *InclusionRecord) Depth() int {
	return len(r.chain)
}

type includeFrameKind int

const (
	frameVisit includeFrameKind = iota
	frameEnter
	frameLeave
)

type includeFrame struct {
	kind includeFrameKind
	id   xml.NodeID
	// file is the absolute path of the file the node came from, or the file being entered
	file string
}

// includer runs the inclusion pass over one document
type includer struct {
	ctx    context.Context
	doc    *xml.Document
	cache  *DocumentCache
	config *Config
	logger *Logger
	record InclusionRecord
	files  []string
	seen   map[string]bool
	// rootless is 1 when the document has no file of its own on the record
	rootless int
}

// resolveIncludes replaces every <Included> node by the root children of the referenced files,
// depth first, until none remain. It returns the absolute paths of all files read.
func (e *Expander) resolveIncludes(ctx context.Context, doc *xml.Document, baseFile string) ([]string, error) {
	inc := &includer{
		ctx:    ctx,
		doc:    doc,
		cache:  e.cache,
		config: e.config,
		logger: e.Logger(),
		seen:   make(map[string]bool),
	}
	return inc.run(baseFile)
}

func (inc *includer) run(baseFile string) ([]string, error) {
	var stack []includeFrame
	if baseFile != "" {
		abs, err := filepath.Abs(baseFile)
		if err != nil {
			return nil, NewDocumentError("resolve path", baseFile, err)
		}
		inc.addFile(abs)
		stack = append(stack,
			includeFrame{kind: frameLeave},
			includeFrame{kind: frameVisit, id: inc.doc.Root(), file: abs},
			includeFrame{kind: frameEnter, file: abs})
	} else {
		inc.rootless = 1
		stack = append(stack, includeFrame{kind: frameVisit, id: inc.doc.Root()})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch f.kind {
		case frameEnter:
			if err := inc.record.Push(f.file); err != nil {
				return nil, err
			}
			continue
		case frameLeave:
			inc.record.Pop()
			continue
		}

		if inc.doc.Tag(f.id) != includedTag {
			children := inc.doc.Children(f.id)
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, includeFrame{kind: frameVisit, id: children[i], file: f.file})
			}
			continue
		}

		frames, err := inc.expand(f)
		if err != nil {
			return nil, err
		}
		stack = append(stack, frames...)
	}

	return inc.files, nil
}

// expand splices the files referenced by one <Included> node and returns the frames that scan
// the spliced content, already in stack order.
func (inc *includer) expand(f includeFrame) ([]includeFrame, error) {
	doc := inc.doc
	location := func(err error, attr string) error {
		return WithLocation(err, f.file, doc.Path(f.id), attr)
	}

	type included struct {
		path  string
		nodes []xml.NodeID
	}
	var loaded []included
	var spliced []xml.NodeID

	for _, child := range doc.Children(f.id) {
		if tag := doc.Tag(child); tag != fileTag {
			return nil, location(&MarkupError{Element: includedTag,
				Message: fmt.Sprintf("unexpected child <%s>", tag)}, "")
		}
		name, ok := doc.Attr(child, "name")
		if !ok || name == "" {
			return nil, WithLocation(&MarkupError{Element: fileTag, Message: "missing name attribute"},
				f.file, doc.Path(child), "name")
		}

		if err := inc.ctx.Err(); err != nil {
			return nil, err
		}

		path := name
		if !filepath.IsAbs(path) {
			dir := "."
			if f.file != "" {
				dir = filepath.Dir(f.file)
			}
			path = filepath.Join(dir, path)
		}
		path, err := filepath.Abs(path)
		if err != nil {
			return nil, location(NewDocumentError("resolve path", name, err), "name")
		}

		if inc.record.Contains(path) {
			return nil, location(&CircularInclusionError{Path: path, Chain: inc.record.Chain()}, "")
		}
		if inc.record.Depth()+inc.rootless > inc.config.MaxIncludeDepth {
			return nil, location(NewDocumentError("include", path,
				fmt.Errorf("inclusion nested deeper than %d levels", inc.config.MaxIncludeDepth)), "")
		}

		src, err := inc.cache.Load(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, location(&IncludeNotFoundError{Path: path, From: f.file}, "")
			}
			return nil, location(err, "")
		}
		inc.logger.WithFields(Fields{"file": path, "from": f.file, "depth": inc.record.Depth()}).Debug("Including file")
		inc.addFile(path)

		var nodes []xml.NodeID
		for _, c := range src.Children(src.Root()) {
			nodes = append(nodes, doc.Import(src, c))
		}
		loaded = append(loaded, included{path: path, nodes: nodes})
		spliced = append(spliced, nodes...)
	}

	if err := doc.Replace(f.id, spliced); err != nil {
		return nil, location(NewDocumentError("include", "", err), "")
	}

	// Each file's content is scanned with that file on the inclusion record.
	var frames []includeFrame
	for i := len(loaded) - 1; i >= 0; i-- {
		frames = append(frames, includeFrame{kind: frameLeave})
		for j := len(loaded[i].nodes) - 1; j >= 0; j-- {
			frames = append(frames, includeFrame{kind: frameVisit, id: loaded[i].nodes[j], file: loaded[i].path})
		}
		frames = append(frames, includeFrame{kind: frameEnter, file: loaded[i].path})
	}
	return frames, nil
}

func (inc *includer) addFile(path string) {
	if !inc.seen[path] {
		inc.seen[path] = true
		inc.files = append(inc.files, path)
	}
}
