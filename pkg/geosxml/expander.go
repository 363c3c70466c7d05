package geosxml

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/benjaminschreck/go-geosxml/pkg/geosxml/xml"
)

// Expander runs the preprocessing passes over input decks.
// Use New() or NewWithConfig() to create one. An Expander is safe for concurrent use.
type Expander struct {
	config   *Config
	registry *DefaultFunctionRegistry
	cache    *DocumentCache
	logger   atomic.Pointer[Logger]
}

// Result is the output of one expansion
type Result struct {
	// Document is the flattened tree: no <Included> or <Parameters> nodes and no $name$ tokens remain
	Document *xml.Document
	// Files lists the absolute paths of every file read, the input first
	Files []string
	// Parameters is the resolved parameter table, overrides applied
	Parameters *ParameterTable
}

// Option configures a single expansion
type Option func(*processOptions)

type processOptions struct {
	ctx       context.Context
	overrides map[string]string
}

// WithOverrides replaces or adds parameters after the document's own declarations are collected
func WithOverrides(overrides map[string]string) Option {
	return func(o *processOptions) {
		if o.overrides == nil {
			o.overrides = make(map[string]string, len(overrides))
		}
		for k, v := range overrides {
			o.overrides[k] = v
		}
	}
}

// WithContext makes the expansion stop between passes and included files once ctx is done
func WithContext(ctx context.Context) Option {
	return func(o *processOptions) {
		o.ctx = ctx
	}
}

// New creates an expander with the global configuration.
func New() *Expander {
	e, err := NewWithConfig(GetGlobalConfig())
	if err != nil {
		// The global configuration may carry a bad allow-list from the environment.
		Warn("Ignoring invalid configuration: %v", err)
		e, _ = NewWithConfig(DefaultConfig())
	}
	return e
}

// NewWithConfig creates an expander with a custom configuration. Unset fields take their defaults.
func NewWithConfig(config *Config) (*Expander, error) {
	config = NewConfigWithDefaults(config)
	if err := config.Validate(); err != nil {
		return nil, err
	}

	registry, err := NewRestrictedRegistry(GetDefaultFunctionRegistry(), config.AllowedFunctions)
	if err != nil {
		return nil, err
	}

	e := &Expander{
		config:   config,
		registry: registry,
		cache: NewDocumentCacheWithConfig(CacheConfig{
			MaxSize: config.CacheMaxSize,
			TTL:     config.CacheTTL,
		}),
	}
	e.logger.Store(GetLogger())
	return e, nil
}

// Config returns the expander's configuration.
func (e *Expander) Config() *Config {
	return e.config
}

// Cache returns the document cache shared by all expansions of this expander.
func (e *Expander) Cache() *DocumentCache {
	return e.cache
}

// SetLogger replaces the logger used by this expander. It may be called while expansions run.
func (e *Expander) SetLogger(logger *Logger) {
	if logger == nil {
		logger = GetLogger()
	}
	e.logger.Store(logger)
}

// Logger returns the logger used by this expander.
func (e *Expander) Logger() *Logger {
	return e.logger.Load()
}

// RegisterFunction adds a function that expressions may call.
func (e *Expander) RegisterFunction(fn Function) error {
	return e.registry.RegisterFunction(fn)
}

// Functions returns the names of the functions expressions may call.
func (e *Expander) Functions() []string {
	return e.registry.ListFunctions()
}

// ProcessFile reads the deck at path and expands it.
func (e *Expander) ProcessFile(path string, opts ...Option) (*Result, error) {
	abs, doc, err := e.loadInput(path)
	if err != nil {
		return nil, err
	}
	return e.process(doc, abs, opts)
}

// loadInput reads a top-level deck through the cache and returns a private copy of it
func (e *Expander) loadInput(path string) (string, *xml.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", nil, NewDocumentError("resolve path", path, err)
	}

	src, err := e.cache.Load(abs)
	if err != nil {
		if IsDocumentError(err) {
			return "", nil, err
		}
		return "", nil, NewDocumentError("read", abs, err)
	}
	return abs, src.Clone(), nil
}

// IncludeFile runs only the inclusion pass over the deck at path. Parameters and expressions are
// left as written, which is what reference checks need. Result.Parameters is nil.
func (e *Expander) IncludeFile(path string, opts ...Option) (*Result, error) {
	abs, doc, err := e.loadInput(path)
	if err != nil {
		return nil, err
	}

	options := &processOptions{ctx: context.Background()}
	for _, opt := range opts {
		opt(options)
	}

	files, err := e.resolveIncludes(options.ctx, doc, abs)
	if err != nil {
		return nil, err
	}
	return &Result{Document: doc, Files: files}, nil
}

// Process expands an in-memory document. Relative includes resolve against baseFile's directory,
// or the working directory when baseFile is empty. doc itself is left unchanged.
func (e *Expander) Process(doc *xml.Document, baseFile string, opts ...Option) (*Result, error) {
	return e.process(doc.Clone(), baseFile, opts)
}

func (e *Expander) process(doc *xml.Document, baseFile string, opts []Option) (*Result, error) {
	options := &processOptions{ctx: context.Background()}
	for _, opt := range opts {
		opt(options)
	}
	ctx := options.ctx
	logger := e.Logger().WithField("file", baseFile)

	// Pass 1: inclusion
	files, err := e.resolveIncludes(ctx, doc, baseFile)
	if err != nil {
		return nil, err
	}
	logger.WithField("files", len(files)).Debug("Includes resolved")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := e.CollectReferences(doc)
	for _, name := range report.Unused {
		if _, overridden := options.overrides[name]; !overridden {
			logger.Warn("Parameter %q is declared but never used", name)
		}
	}

	// Pass 2: parameters
	table := NewParameterTable()
	if err := collectParameters(doc, table); err != nil {
		return nil, err
	}
	applyOverrides(table, options.overrides)
	if err := table.Resolve(e.config.MaxParameterDepth); err != nil {
		return nil, WithLocation(err, baseFile, "", "")
	}
	if err := substituteParameters(doc, table); err != nil {
		return nil, err
	}
	logger.WithField("parameters", table.Len()).Debug("Parameters substituted")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Pass 3: expressions
	if err := e.evaluateExpressions(doc, table); err != nil {
		return nil, err
	}

	return &Result{Document: doc, Files: files, Parameters: table}, nil
}

func applyOverrides(table *ParameterTable, overrides map[string]string) {
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		table.Set(name, overrides[name])
	}
}

// CompileFile expands input and writes the flattened deck to output. An empty output writes a
// uniquely named prep_<uuid>.xml next to the input. It returns the path written.
func (e *Expander) CompileFile(input, output string, opts ...Option) (string, error) {
	result, err := e.ProcessFile(input, opts...)
	if err != nil {
		return "", err
	}

	if output == "" {
		output = filepath.Join(filepath.Dir(input), "prep_"+uuid.NewString()+".xml")
	}

	if err := e.WriteDocument(result.Document, output); err != nil {
		return "", err
	}
	e.Logger().WithFields(Fields{"input": input, "output": output}).Info("Deck compiled")
	return output, nil
}

// WriteDocument writes doc to path through a temporary file, so readers never see a partial deck.
func (e *Expander) WriteDocument(doc *xml.Document, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".geosxml-*.tmp")
	if err != nil {
		return NewDocumentError("write", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := xml.Write(tmp, doc, e.config.Indent); err != nil {
		tmp.Close()
		return NewDocumentError("write", path, err)
	}
	if err := tmp.Close(); err != nil {
		return NewDocumentError("write", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return NewDocumentError("write", path, err)
	}
	return nil
}

// Evaluate evaluates one expression. The surrounding delimiters are optional. $name$ tokens are
// substituted from params first, and bare names resolve against params, then pi and e.
func (e *Expander) Evaluate(src string, params *ParameterTable) (float64, error) {
	if params == nil {
		params = NewParameterTable()
	}
	if err := params.Resolve(e.config.MaxParameterDepth); err != nil {
		return 0, err
	}
	body := strings.TrimSpace(src)
	open, close := e.config.ExpressionOpen, e.config.ExpressionClose
	if strings.HasPrefix(body, open) && strings.HasSuffix(body, close) && len(body) >= len(open)+len(close) {
		body = body[len(open) : len(body)-len(close)]
	}

	body, err := replaceParameterTokens(body, func(name string) (string, error) {
		if v, ok := params.Get(name); ok {
			return v, nil
		}
		return "", &UndefinedParameterError{Name: name}
	})
	if err != nil {
		return 0, err
	}

	resolver := &parameterResolver{expander: e, table: params}
	return e.evaluate(body, resolver.resolve)
}

// EvaluateString evaluates one expression with the default configuration and no parameters
func EvaluateString(src string) (float64, error) {
	return New().Evaluate(src, nil)
}

// Format renders a result the way the expression pass writes it
func (e *Expander) Format(v float64) string {
	return FormatNumber(v, e.config.Precision)
}

func (r *Result) String() string {
	if r == nil || r.Document == nil {
		return ""
	}
	return r.Document.String()
}

// Summary describes the result in one line
func (r *Result) Summary() string {
	return fmt.Sprintf("%d files, %d parameters, %d nodes", len(r.Files), r.Parameters.Len(), r.Document.Len())
}
