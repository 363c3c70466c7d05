package geosxml

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/benjaminschreck/go-geosxml/pkg/geosxml/units"
)

// ParameterResolver returns the numeric value of a named parameter
type ParameterResolver func(name string) (float64, error)

// ExpressionNode represents a node in the expression AST
type ExpressionNode interface {
	String() string
	Evaluate(resolve ParameterResolver) (float64, error)
}

// NumberNode represents a numeric literal, already normalized to SI when it carried a unit
type NumberNode struct {
	Value float64
	Unit  string
}

func (n *NumberNode) String() string {
	if n.Unit != "" {
		return fmt.Sprintf("Number(%g[%s])", n.Value, n.Unit)
	}
	return fmt.Sprintf("Number(%g)", n.Value)
}

func (n *NumberNode) Evaluate(resolve ParameterResolver) (float64, error) {
	return n.Value, nil
}

// ParameterNode represents a named parameter or constant reference
type ParameterNode struct {
	Name string
}

func (n *ParameterNode) String() string {
	return fmt.Sprintf("Parameter(%s)", n.Name)
}

func (n *ParameterNode) Evaluate(resolve ParameterResolver) (float64, error) {
	if resolve != nil {
		value, err := resolve(n.Name)
		if err == nil {
			return value, nil
		}
		// only a miss on this very name falls through to the constants
		var undefined *UndefinedParameterError
		if !errors.As(err, &undefined) || undefined.Name != n.Name {
			return 0, err
		}
	}
	if value, ok := constants[n.Name]; ok {
		return value, nil
	}
	return 0, &UndefinedParameterError{Name: n.Name}
}

var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

// BinaryOpNode represents a binary operation
type BinaryOpNode struct {
	Left     ExpressionNode
	Operator string
	Right    ExpressionNode
}

func (n *BinaryOpNode) String() string {
	return fmt.Sprintf("BinaryOp(%s %s %s)", n.Left.String(), n.Operator, n.Right.String())
}

func (n *BinaryOpNode) Evaluate(resolve ParameterResolver) (float64, error) {
	leftVal, err := n.Left.Evaluate(resolve)
	if err != nil {
		return 0, err
	}

	rightVal, err := n.Right.Evaluate(resolve)
	if err != nil {
		return 0, err
	}

	return EvaluateBinaryOperation(leftVal, n.Operator, rightVal)
}

// UnaryOpNode represents a unary operation
type UnaryOpNode struct {
	Operator string
	Operand  ExpressionNode
}

func (n *UnaryOpNode) String() string {
	return fmt.Sprintf("UnaryOp(%s %s)", n.Operator, n.Operand.String())
}

func (n *UnaryOpNode) Evaluate(resolve ParameterResolver) (float64, error) {
	operandVal, err := n.Operand.Evaluate(resolve)
	if err != nil {
		return 0, err
	}

	switch n.Operator {
	case "-":
		return -operandVal, nil
	case "+":
		return operandVal, nil
	default:
		return 0, fmt.Errorf("unknown unary operator: %s", n.Operator)
	}
}

// FunctionCallNode represents a call to an allow-listed function
type FunctionCallNode struct {
	Name     string
	Function Function
	Args     []ExpressionNode
}

func (n *FunctionCallNode) String() string {
	args := make([]string, len(n.Args))
	for i, arg := range n.Args {
		args[i] = arg.String()
	}
	return fmt.Sprintf("FunctionCall(%s, [%s])", n.Name, strings.Join(args, ", "))
}

func (n *FunctionCallNode) Evaluate(resolve ParameterResolver) (float64, error) {
	args := make([]float64, len(n.Args))
	for i, arg := range n.Args {
		val, err := arg.Evaluate(resolve)
		if err != nil {
			return 0, err
		}
		args[i] = val
	}

	result, err := n.Function.Call(args...)
	if err != nil {
		return 0, err
	}
	return checkFinite(result, n.Name)
}

// ExpressionToken represents a token in an expression
type ExpressionToken struct {
	Type  ExpressionTokenType
	Value string
	Pos   int
}

type ExpressionTokenType int

const (
	ExprTokenIdentifier ExpressionTokenType = iota
	ExprTokenNumber
	ExprTokenUnit
	ExprTokenOperator
	ExprTokenLeftParen
	ExprTokenRightParen
	ExprTokenComma
	ExprTokenEOF
)

var (
	identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*`)
	numberRegex     = regexp.MustCompile(`^([0-9]+(\.[0-9]*)?|\.[0-9]+)([eE][+-]?[0-9]+)?`)
	operatorRegex   = regexp.MustCompile(`^(\*\*|\+|\-|\*|\/|\%|\^)`)
)

func isIdentifier(s string) bool {
	return identifierRegex.FindString(s) == s && s != ""
}

// TokenizeExpression tokenizes an expression string
func TokenizeExpression(expr string) ([]ExpressionToken, error) {
	var tokens []ExpressionToken
	pos := 0

	for pos < len(expr) {
		if expr[pos] == ' ' || expr[pos] == '\t' || expr[pos] == '\n' || expr[pos] == '\r' {
			pos++
			continue
		}

		remaining := expr[pos:]

		if match := identifierRegex.FindString(remaining); match != "" {
			tokens = append(tokens, ExpressionToken{Type: ExprTokenIdentifier, Value: match, Pos: pos})
			pos += len(match)
			continue
		}

		if match := numberRegex.FindString(remaining); match != "" {
			tokens = append(tokens, ExpressionToken{Type: ExprTokenNumber, Value: match, Pos: pos})
			pos += len(match)
			continue
		}

		if match := operatorRegex.FindString(remaining); match != "" {
			tokens = append(tokens, ExpressionToken{Type: ExprTokenOperator, Value: match, Pos: pos})
			pos += len(match)
			continue
		}

		switch expr[pos] {
		case '(':
			tokens = append(tokens, ExpressionToken{Type: ExprTokenLeftParen, Value: "(", Pos: pos})
			pos++
			continue
		case ')':
			tokens = append(tokens, ExpressionToken{Type: ExprTokenRightParen, Value: ")", Pos: pos})
			pos++
			continue
		case ',':
			tokens = append(tokens, ExpressionToken{Type: ExprTokenComma, Value: ",", Pos: pos})
			pos++
			continue
		case '[':
			// Bracketed unit, only meaningful right after a number
			end := strings.IndexByte(remaining, ']')
			if end < 0 {
				return nil, NewExpressionSyntaxError(expr, pos, "unterminated unit bracket")
			}
			tokens = append(tokens, ExpressionToken{Type: ExprTokenUnit, Value: remaining[1:end], Pos: pos})
			pos += end + 1
			continue
		}

		return nil, NewExpressionSyntaxError(expr, pos, fmt.Sprintf("unexpected character %q", expr[pos]))
	}

	tokens = append(tokens, ExpressionToken{Type: ExprTokenEOF, Pos: pos})

	return tokens, nil
}

// ParseExpression parses an expression string into an AST. Function calls are checked against
// the registry; a nil registry means the built-in allow-list.
func ParseExpression(expr string, registry FunctionRegistry) (ExpressionNode, error) {
	tokens, err := TokenizeExpression(expr)
	if err != nil {
		return nil, err
	}
	if registry == nil {
		registry = GetDefaultFunctionRegistry()
	}

	parser := &ExpressionParser{
		source:   expr,
		tokens:   tokens,
		registry: registry,
	}

	node, err := parser.parseExpression()
	if err != nil {
		return nil, err
	}

	if token := parser.current(); token.Type != ExprTokenEOF {
		return nil, parser.errorf("unexpected trailing token %q", token.Value)
	}

	return node, nil
}

// ExpressionParser parses expressions into AST nodes
type ExpressionParser struct {
	source   string
	tokens   []ExpressionToken
	pos      int
	registry FunctionRegistry
}

func (p *ExpressionParser) current() ExpressionToken {
	if p.pos >= len(p.tokens) {
		return ExpressionToken{Type: ExprTokenEOF, Pos: len(p.source)}
	}
	return p.tokens[p.pos]
}

func (p *ExpressionParser) peek() ExpressionToken {
	if p.pos+1 >= len(p.tokens) {
		return ExpressionToken{Type: ExprTokenEOF, Pos: len(p.source)}
	}
	return p.tokens[p.pos+1]
}

func (p *ExpressionParser) advance() {
	if p.pos < len(p.tokens) {
		p.pos++
	}
}

func (p *ExpressionParser) errorf(format string, args ...interface{}) error {
	return NewExpressionSyntaxError(p.source, p.current().Pos, fmt.Sprintf(format, args...))
}

func (p *ExpressionParser) isOperator(values ...string) bool {
	token := p.current()
	if token.Type != ExprTokenOperator {
		return false
	}
	for _, v := range values {
		if token.Value == v {
			return true
		}
	}
	return false
}

// parseExpression parses a complete expression
func (p *ExpressionParser) parseExpression() (ExpressionNode, error) {
	return p.parseTerm()
}

// parseTerm parses addition and subtraction (lowest precedence)
func (p *ExpressionParser) parseTerm() (ExpressionNode, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}

	for p.isOperator("+", "-") {
		op := p.current().Value
		p.advance()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Left: left, Operator: op, Right: right}
	}

	return left, nil
}

// parseFactor parses multiplication, division, and modulo
func (p *ExpressionParser) parseFactor() (ExpressionNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.isOperator("*", "/", "%") {
		op := p.current().Value
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Left: left, Operator: op, Right: right}
	}

	return left, nil
}

// parseUnary parses unary expressions (-, +)
func (p *ExpressionParser) parseUnary() (ExpressionNode, error) {
	if p.isOperator("-", "+") {
		op := p.current().Value
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryOpNode{Operator: op, Operand: operand}, nil
	}

	return p.parsePower()
}

// parsePower parses exponentiation, which binds tighter than unary minus and is right associative
func (p *ExpressionParser) parsePower() (ExpressionNode, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	if p.isOperator("^", "**") {
		p.advance()
		exponent, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &BinaryOpNode{Left: base, Operator: "^", Right: exponent}, nil
	}

	return base, nil
}

// parsePrimary parses numbers, unit literals, parameters, calls and parenthesized expressions
func (p *ExpressionParser) parsePrimary() (ExpressionNode, error) {
	token := p.current()

	switch token.Type {
	case ExprTokenNumber:
		p.advance()
		value, err := strconv.ParseFloat(token.Value, 64)
		if err != nil {
			return nil, NewExpressionSyntaxError(p.source, token.Pos, fmt.Sprintf("invalid number: %s", token.Value))
		}
		return p.parseUnitSuffix(value, token)

	case ExprTokenIdentifier:
		p.advance()
		if p.current().Type == ExprTokenLeftParen {
			return p.parseFunctionCall(token)
		}
		return &ParameterNode{Name: token.Value}, nil

	case ExprTokenLeftParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.current().Type != ExprTokenRightParen {
			return nil, p.errorf("expected ')' after expression")
		}
		p.advance()
		return expr, nil

	case ExprTokenEOF:
		return nil, p.errorf("unexpected end of expression")

	default:
		return nil, p.errorf("unexpected token %q", token.Value)
	}
}

// parseUnitSuffix attaches an optional unit to a number. A bracketed unit always applies; a bare
// identifier applies only when it is a known unit symbol and is not a function name.
func (p *ExpressionParser) parseUnitSuffix(value float64, number ExpressionToken) (ExpressionNode, error) {
	next := p.current()
	var unitText string

	switch {
	case next.Type == ExprTokenUnit:
		unitText = next.Value
	case next.Type == ExprTokenIdentifier && p.peek().Type != ExprTokenLeftParen && units.IsUnit(next.Value):
		unitText = next.Value
	default:
		return &NumberNode{Value: value}, nil
	}
	p.advance()

	u, err := units.ParseUnit(unitText)
	if err != nil {
		if mu, ok := err.(*units.MalformedUnitError); ok {
			mu.Input = number.Value + "[" + unitText + "]"
		}
		return nil, err
	}
	si := value*u.Scale + u.Offset
	if math.IsInf(si, 0) || math.IsNaN(si) {
		return nil, &units.MalformedUnitError{Input: number.Value + "[" + unitText + "]", Reason: "value out of range"}
	}
	return &NumberNode{Value: si, Unit: u.Text}, nil
}

// parseFunctionCall parses a call and checks it against the allow-list
func (p *ExpressionParser) parseFunctionCall(name ExpressionToken) (ExpressionNode, error) {
	fn, ok := p.registry.GetFunction(name.Value)
	if !ok {
		return nil, NewExpressionSyntaxError(p.source, name.Pos, fmt.Sprintf("function %q is not allowed", name.Value))
	}
	p.advance() // consume '('

	var args []ExpressionNode
	if p.current().Type == ExprTokenRightParen {
		p.advance()
	} else {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			if p.current().Type == ExprTokenComma {
				p.advance()
				continue
			}
			if p.current().Type == ExprTokenRightParen {
				p.advance()
				break
			}
			return nil, p.errorf("expected ',' or ')' in function arguments")
		}
	}

	if len(args) < fn.MinArgs() || (fn.MaxArgs() >= 0 && len(args) > fn.MaxArgs()) {
		return nil, NewExpressionSyntaxError(p.source, name.Pos,
			fmt.Sprintf("function %s called with %d arguments", name.Value, len(args)))
	}

	return &FunctionCallNode{Name: name.Value, Function: fn, Args: args}, nil
}

// EvaluateBinaryOperation evaluates a binary operation between two values
func EvaluateBinaryOperation(left float64, operator string, right float64) (float64, error) {
	switch operator {
	case "+":
		return checkFinite(left+right, operator)
	case "-":
		return checkFinite(left-right, operator)
	case "*":
		return checkFinite(left*right, operator)
	case "/":
		if right == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return checkFinite(left/right, operator)
	case "%":
		if right == 0 {
			return 0, fmt.Errorf("modulo by zero")
		}
		return checkFinite(math.Mod(left, right), operator)
	case "^", "**":
		return checkFinite(math.Pow(left, right), "^")
	default:
		return 0, fmt.Errorf("unknown binary operator: %s", operator)
	}
}

func checkFinite(v float64, op string) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s produced a non-finite result", op)
	}
	return v, nil
}

// ParameterNames returns the parameter names referenced by an expression, in order of appearance.
// Constants such as pi are included; callers decide how to treat them.
func ParameterNames(node ExpressionNode) []string {
	var names []string
	seen := map[string]bool{}
	var visit func(ExpressionNode)
	visit = func(n ExpressionNode) {
		switch v := n.(type) {
		case *ParameterNode:
			if !seen[v.Name] {
				seen[v.Name] = true
				names = append(names, v.Name)
			}
		case *BinaryOpNode:
			visit(v.Left)
			visit(v.Right)
		case *UnaryOpNode:
			visit(v.Operand)
		case *FunctionCallNode:
			for _, arg := range v.Args {
				visit(arg)
			}
		}
	}
	visit(node)
	return names
}
