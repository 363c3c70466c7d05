package geosxml

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Function represents a callable math function in expressions
type Function interface {
	// Call executes the function with the given arguments
	Call(args ...float64) (float64, error)

	// Name returns the function name
	Name() string

	// MinArgs returns the minimum number of arguments required
	MinArgs() int

	// MaxArgs returns the maximum number of arguments allowed (-1 for unlimited)
	MaxArgs() int
}

// FunctionRegistry is the allow-list of functions an expression may call
type FunctionRegistry interface {
	// RegisterFunction adds a function to the registry
	RegisterFunction(fn Function) error

	// GetFunction retrieves a function by name
	GetFunction(name string) (Function, bool)

	// ListFunctions returns all registered function names
	ListFunctions() []string
}

// DefaultFunctionRegistry is the default implementation of FunctionRegistry
type DefaultFunctionRegistry struct {
	functions map[string]Function
	mutex     sync.RWMutex
}

// NewFunctionRegistry creates a new, empty function registry
func NewFunctionRegistry() *DefaultFunctionRegistry {
	return &DefaultFunctionRegistry{
		functions: make(map[string]Function),
	}
}

func (r *DefaultFunctionRegistry) RegisterFunction(fn Function) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	name := fn.Name()
	if name == "" {
		return fmt.Errorf("function name cannot be empty")
	}
	if !isIdentifier(name) {
		return fmt.Errorf("function name %q is not an identifier", name)
	}

	r.functions[name] = fn
	return nil
}

func (r *DefaultFunctionRegistry) GetFunction(name string) (Function, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	fn, exists := r.functions[name]
	return fn, exists
}

func (r *DefaultFunctionRegistry) ListFunctions() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var globalRegistry *DefaultFunctionRegistry
var registryOnce sync.Once

// GetDefaultFunctionRegistry returns the registry holding every built-in function
func GetDefaultFunctionRegistry() FunctionRegistry {
	registryOnce.Do(func() {
		globalRegistry = NewFunctionRegistry()
		registerMathFunctions(globalRegistry)
	})
	return globalRegistry
}

// NewRestrictedRegistry copies the named functions out of base into a new registry.
// An empty allow-list copies everything.
func NewRestrictedRegistry(base FunctionRegistry, allowed []string) (*DefaultFunctionRegistry, error) {
	registry := NewFunctionRegistry()
	if len(allowed) == 0 {
		allowed = base.ListFunctions()
	}
	for _, name := range allowed {
		fn, ok := base.GetFunction(name)
		if !ok {
			return nil, fmt.Errorf("unknown function in allow-list: %s", name)
		}
		if err := registry.RegisterFunction(fn); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// SimpleFunctionImpl provides a basic implementation of Function
type SimpleFunctionImpl struct {
	name    string
	minArgs int
	maxArgs int
	handler func(args ...float64) (float64, error)
}

func NewSimpleFunction(name string, minArgs, maxArgs int, handler func(args ...float64) (float64, error)) Function {
	return &SimpleFunctionImpl{
		name:    name,
		minArgs: minArgs,
		maxArgs: maxArgs,
		handler: handler,
	}
}

func (f *SimpleFunctionImpl) Call(args ...float64) (float64, error) {
	argCount := len(args)
	if argCount < f.minArgs {
		return 0, fmt.Errorf("function %s requires at least %d arguments, got %d", f.name, f.minArgs, argCount)
	}
	if f.maxArgs >= 0 && argCount > f.maxArgs {
		return 0, fmt.Errorf("function %s accepts at most %d arguments, got %d", f.name, f.maxArgs, argCount)
	}

	return f.handler(args...)
}

func (f *SimpleFunctionImpl) Name() string {
	return f.name
}

func (f *SimpleFunctionImpl) MinArgs() int {
	return f.minArgs
}

func (f *SimpleFunctionImpl) MaxArgs() int {
	return f.maxArgs
}

func unary(name string, fn func(float64) float64) Function {
	return NewSimpleFunction(name, 1, 1, func(args ...float64) (float64, error) {
		return fn(args[0]), nil
	})
}

func binary(name string, fn func(float64, float64) float64) Function {
	return NewSimpleFunction(name, 2, 2, func(args ...float64) (float64, error) {
		return fn(args[0], args[1]), nil
	})
}

// bounded wraps a unary function whose domain is [lo, hi].
func bounded(name string, lo, hi float64, fn func(float64) float64) Function {
	return NewSimpleFunction(name, 1, 1, func(args ...float64) (float64, error) {
		if args[0] < lo || args[0] > hi {
			return 0, fmt.Errorf("%s(%g): argument outside domain [%g, %g]", name, args[0], lo, hi)
		}
		return fn(args[0]), nil
	})
}

// registerMathFunctions registers the built-in allow-list
func registerMathFunctions(registry *DefaultFunctionRegistry) {
	for _, fn := range []Function{
		unary("sin", math.Sin),
		unary("cos", math.Cos),
		unary("tan", math.Tan),
		bounded("asin", -1, 1, math.Asin),
		bounded("acos", -1, 1, math.Acos),
		unary("atan", math.Atan),
		binary("atan2", math.Atan2),
		unary("sinh", math.Sinh),
		unary("cosh", math.Cosh),
		unary("tanh", math.Tanh),
		unary("exp", math.Exp),
		bounded("log", math.SmallestNonzeroFloat64, math.Inf(1), math.Log),
		bounded("log10", math.SmallestNonzeroFloat64, math.Inf(1), math.Log10),
		bounded("log2", math.SmallestNonzeroFloat64, math.Inf(1), math.Log2),
		bounded("sqrt", 0, math.Inf(1), math.Sqrt),
		unary("cbrt", math.Cbrt),
		binary("pow", math.Pow),
		unary("abs", math.Abs),
		unary("floor", math.Floor),
		unary("ceil", math.Ceil),
		unary("round", math.Round),
		binary("hypot", math.Hypot),
		NewSimpleFunction("min", 1, -1, func(args ...float64) (float64, error) {
			result := args[0]
			for _, v := range args[1:] {
				result = math.Min(result, v)
			}
			return result, nil
		}),
		NewSimpleFunction("max", 1, -1, func(args ...float64) (float64, error) {
			result := args[0]
			for _, v := range args[1:] {
				result = math.Max(result, v)
			}
			return result, nil
		}),
	} {
		if err := registry.RegisterFunction(fn); err != nil {
			panic(err)
		}
	}
}
