package geosxml

import (
	"errors"
	"fmt"
	"strings"

	"github.com/benjaminschreck/go-geosxml/pkg/geosxml/units"
)

// MalformedUnitError reports a unit literal that could not be normalized.
type MalformedUnitError = units.MalformedUnitError

// ExpressionSyntaxError represents malformed expression text or a construct outside the grammar
type ExpressionSyntaxError struct {
	Expression string
	Position   int
	Message    string
}

func (e *ExpressionSyntaxError) Error() string {
	return fmt.Sprintf("syntax error in expression %q at position %d: %s", e.Expression, e.Position, e.Message)
}

// NewExpressionSyntaxError creates a new syntax error
func NewExpressionSyntaxError(expression string, position int, message string) error {
	return &ExpressionSyntaxError{
		Expression: expression,
		Position:   position,
		Message:    message,
	}
}

// UndefinedParameterError represents a reference to a parameter missing from the table
type UndefinedParameterError struct {
	Name string
}

func (e *UndefinedParameterError) Error() string {
	return fmt.Sprintf("undefined parameter %q", e.Name)
}

// ExpressionEvaluationError represents a runtime fault while evaluating an expression
type ExpressionEvaluationError struct {
	Expression string
	Cause      error
}

func (e *ExpressionEvaluationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("evaluation error for expression %q: %v", e.Expression, e.Cause)
	}
	return fmt.Sprintf("evaluation error for expression %q", e.Expression)
}

func (e *ExpressionEvaluationError) Unwrap() error {
	return e.Cause
}

// NewExpressionEvaluationError creates a new evaluation error
func NewExpressionEvaluationError(expression string, cause error) error {
	return &ExpressionEvaluationError{
		Expression: expression,
		Cause:      cause,
	}
}

// CircularInclusionError reports a file that includes itself, directly or through other files.
type CircularInclusionError struct {
	Path  string
	Chain []string
}

func (e *CircularInclusionError) Error() string {
	return fmt.Sprintf("circular inclusion of %q: %s -> %s", e.Path, strings.Join(e.Chain, " -> "), e.Path)
}

// IncludeNotFoundError reports an included file that does not exist.
type IncludeNotFoundError struct {
	Path string
	From string
}

func (e *IncludeNotFoundError) Error() string {
	if e.From != "" {
		return fmt.Sprintf("included file %q not found (included from %q)", e.Path, e.From)
	}
	return fmt.Sprintf("included file %q not found", e.Path)
}

// DuplicateParameterError reports a parameter declared more than once.
type DuplicateParameterError struct {
	Name   string
	First  string
	Second string
}

func (e *DuplicateParameterError) Error() string {
	return fmt.Sprintf("parameter %q declared twice (%s and %s)", e.Name, e.First, e.Second)
}

// CircularParameterError reports parameters whose values reference each other.
type CircularParameterError struct {
	Chain []string
}

func (e *CircularParameterError) Error() string {
	return fmt.Sprintf("circular parameter reference: %s", strings.Join(e.Chain, " -> "))
}

// MarkupError represents a malformed preprocessing directive
type MarkupError struct {
	Element string
	Message string
}

func (e *MarkupError) Error() string {
	return fmt.Sprintf("invalid <%s>: %s", e.Element, e.Message)
}

// DocumentError represents an error during document operations
type DocumentError struct {
	Operation string
	Path      string
	Cause     error
}

func (e *DocumentError) Error() string {
	if e.Path != "" && e.Cause != nil {
		return fmt.Sprintf("document error during %s of '%s': %v", e.Operation, e.Path, e.Cause)
	} else if e.Path != "" {
		return fmt.Sprintf("document error during %s of '%s'", e.Operation, e.Path)
	} else if e.Cause != nil {
		return fmt.Sprintf("document error during %s: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("document error during %s", e.Operation)
}

func (e *DocumentError) Unwrap() error {
	return e.Cause
}

// NewDocumentError creates a new document error
func NewDocumentError(operation, path string, cause error) error {
	return &DocumentError{
		Operation: operation,
		Path:      path,
		Cause:     cause,
	}
}

// LocationError attaches the position of the offending markup to an error.
type LocationError struct {
	File      string
	NodePath  string
	Attribute string
	Cause     error
}

func (e *LocationError) Error() string {
	var parts []string
	if e.File != "" {
		parts = append(parts, "file="+e.File)
	}
	if e.NodePath != "" {
		parts = append(parts, "node="+e.NodePath)
	}
	if e.Attribute != "" {
		parts = append(parts, "attribute="+e.Attribute)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("[%s]: %v", strings.Join(parts, ", "), e.Cause)
	}
	return e.Cause.Error()
}

func (e *LocationError) Unwrap() error {
	return e.Cause
}

// WithLocation wraps an error with the markup location it was raised at
func WithLocation(err error, file, nodePath, attribute string) error {
	if err == nil {
		return nil
	}
	var existing *LocationError
	if errors.As(err, &existing) {
		return err
	}
	return &LocationError{
		File:      file,
		NodePath:  nodePath,
		Attribute: attribute,
		Cause:     err,
	}
}

// MultiError collects multiple errors
type MultiError struct {
	errors []error
}

// NewMultiError creates a new multi-error collector
func NewMultiError() *MultiError {
	return &MultiError{
		errors: make([]error, 0),
	}
}

// Add adds an error to the collection (ignores nil errors)
func (m *MultiError) Add(err error) {
	if err != nil {
		m.errors = append(m.errors, err)
	}
}

// Len returns the number of errors
func (m *MultiError) Len() int {
	return len(m.errors)
}

// Err returns the multi-error or nil if empty
func (m *MultiError) Err() error {
	if len(m.errors) == 0 {
		return nil
	}
	if len(m.errors) == 1 {
		return m.errors[0]
	}
	return m
}

func (m *MultiError) Error() string {
	if len(m.errors) == 0 {
		return "no errors"
	}

	if len(m.errors) == 1 {
		return m.errors[0].Error()
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("%d errors occurred:", len(m.errors)))
	for i, err := range m.errors {
		parts = append(parts, fmt.Sprintf("  [%d] %v", i+1, err))
	}
	return strings.Join(parts, "\n")
}

// Unwrap exposes the collected errors to errors.Is and errors.As
func (m *MultiError) Unwrap() []error {
	return m.errors
}

// IsMalformedUnitError checks if an error is a malformed unit error
func IsMalformedUnitError(err error) bool {
	var target *MalformedUnitError
	return errors.As(err, &target)
}

// IsExpressionSyntaxError checks if an error is an expression syntax error
func IsExpressionSyntaxError(err error) bool {
	var target *ExpressionSyntaxError
	return errors.As(err, &target)
}

// IsUndefinedParameterError checks if an error is an undefined parameter error
func IsUndefinedParameterError(err error) bool {
	var target *UndefinedParameterError
	return errors.As(err, &target)
}

// IsExpressionEvaluationError checks if an error is an expression evaluation error
func IsExpressionEvaluationError(err error) bool {
	var target *ExpressionEvaluationError
	return errors.As(err, &target)
}

// IsCircularInclusionError checks if an error is a circular inclusion error
func IsCircularInclusionError(err error) bool {
	var target *CircularInclusionError
	return errors.As(err, &target)
}

// IsIncludeNotFoundError checks if an error is an include not found error
func IsIncludeNotFoundError(err error) bool {
	var target *IncludeNotFoundError
	return errors.As(err, &target)
}

// IsDuplicateParameterError checks if an error is a duplicate parameter error
func IsDuplicateParameterError(err error) bool {
	var target *DuplicateParameterError
	return errors.As(err, &target)
}

// IsDocumentError checks if an error is a document error
func IsDocumentError(err error) bool {
	var target *DocumentError
	return errors.As(err, &target)
}
