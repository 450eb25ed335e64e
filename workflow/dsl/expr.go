package dsl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// node is an evaluable expression AST node.
type node interface {
	eval(b Bindings) (any, error)
}

// collectRefs appends every params./steps. reference under n to refs.
func collectRefs(n node, refs *[]string) {
	switch v := n.(type) {
	case *pathNode:
		*refs = append(*refs, v.path)
	case *filterNode:
		collectRefs(v.input, refs)
		for _, arg := range v.args {
			collectRefs(arg, refs)
		}
	case *binaryNode:
		collectRefs(v.left, refs)
		collectRefs(v.right, refs)
	case *notNode:
		collectRefs(v.operand, refs)
	case *isNode:
		collectRefs(v.operand, refs)
	case *inNode:
		collectRefs(v.needle, refs)
		collectRefs(v.haystack, refs)
	case *listNode:
		for _, elem := range v.elems {
			collectRefs(elem, refs)
		}
	}
}

// undefinedRefError is raised in strict mode when a reference does not
// resolve. Resolve and Evaluate map it onto their own error codes.
type undefinedRefError struct {
	path string
}

func (e *undefinedRefError) Error() string {
	return fmt.Sprintf("undefined reference %q", e.path)
}

// --- AST nodes ---

type literalNode struct {
	value any
}

func (n *literalNode) eval(Bindings) (any, error) { return n.value, nil }

type listNode struct {
	elems []node
}

func (n *listNode) eval(b Bindings) (any, error) {
	out := make([]any, len(n.elems))
	for i, elem := range n.elems {
		v, err := elem.eval(b)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type pathNode struct {
	path string
}

func (n *pathNode) eval(b Bindings) (any, error) {
	v := lookupPath(n.path, b)
	if isUndefined(v) && b.Strict {
		return nil, &undefinedRefError{path: n.path}
	}
	return v, nil
}

type binaryNode struct {
	op          string // ==, !=, >, >=, <, <=, and, or
	left, right node
}

func (n *binaryNode) eval(b Bindings) (any, error) {
	switch n.op {
	case "and":
		left, err := n.left.eval(b)
		if err != nil {
			return nil, err
		}
		if !truthy(left) {
			return false, nil
		}
		right, err := n.right.eval(b)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	case "or":
		left, err := n.left.eval(b)
		if err != nil {
			return nil, err
		}
		if truthy(left) {
			return true, nil
		}
		right, err := n.right.eval(b)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	}

	left, err := n.left.eval(b)
	if err != nil {
		return nil, err
	}
	right, err := n.right.eval(b)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	case ">", ">=", "<", "<=":
		return compareOrdered(left, n.op, right), nil
	}
	return nil, fmt.Errorf("unknown operator %q", n.op)
}

type notNode struct {
	operand node
}

func (n *notNode) eval(b Bindings) (any, error) {
	v, err := n.operand.eval(b)
	if err != nil {
		return nil, err
	}
	return !truthy(v), nil
}

// isNode implements "is none", "is defined", "is not defined".
type isNode struct {
	operand node
	test    string // "none" or "defined"
	negate  bool
}

func (n *isNode) eval(b Bindings) (any, error) {
	v, err := n.operand.eval(b)
	var result bool
	switch n.test {
	case "none":
		if err != nil {
			return nil, err
		}
		result = v == nil
	case "defined":
		// "is defined" observes missing references directly, so an
		// undefined reference is a result here, never an error.
		var undefErr *undefinedRefError
		if err != nil {
			if !errors.As(err, &undefErr) {
				return nil, err
			}
			result = false
		} else {
			result = !isUndefined(v)
		}
	}
	if n.negate {
		result = !result
	}
	return result, nil
}

type inNode struct {
	needle, haystack node
	negate           bool
}

func (n *inNode) eval(b Bindings) (any, error) {
	needle, err := n.needle.eval(b)
	if err != nil {
		return nil, err
	}
	haystack, err := n.haystack.eval(b)
	if err != nil {
		return nil, err
	}
	result := contains(needle, haystack)
	if n.negate {
		result = !result
	}
	return result, nil
}

// filterNode applies a pipe filter to its input value.
type filterNode struct {
	input node
	name  string
	args  []node
}

func (n *filterNode) eval(b Bindings) (any, error) {
	input, err := n.input.eval(b)
	if err != nil {
		// default() recovers a missing reference even in strict mode;
		// every other filter propagates it.
		var undefErr *undefinedRefError
		if n.name == "default" && errors.As(err, &undefErr) {
			input = undefined{path: undefErr.path}
		} else {
			return nil, err
		}
	}

	switch n.name {
	case "default":
		if len(n.args) != 1 {
			return nil, fmt.Errorf("default filter takes exactly one argument")
		}
		if isUndefined(input) || input == nil {
			return n.args[0].eval(b)
		}
		return input, nil
	case "upper":
		return strings.ToUpper(stringify(input)), nil
	case "lower":
		return strings.ToLower(stringify(input)), nil
	case "length":
		switch v := input.(type) {
		case undefined:
			return float64(0), nil
		case nil:
			return float64(0), nil
		case string:
			return float64(len(v)), nil
		case []any:
			return float64(len(v)), nil
		case map[string]any:
			return float64(len(v)), nil
		default:
			return float64(len(stringify(input))), nil
		}
	case "first":
		switch v := input.(type) {
		case []any:
			if len(v) == 0 {
				return nil, nil
			}
			return v[0], nil
		case string:
			if v == "" {
				return "", nil
			}
			return string([]rune(v)[0]), nil
		default:
			return input, nil
		}
	case "last":
		switch v := input.(type) {
		case []any:
			if len(v) == 0 {
				return nil, nil
			}
			return v[len(v)-1], nil
		case string:
			if v == "" {
				return "", nil
			}
			r := []rune(v)
			return string(r[len(r)-1]), nil
		default:
			return input, nil
		}
	default:
		return nil, fmt.Errorf("unknown filter %q", n.name)
	}
}

// --- Parser ---

type exprParser struct {
	tokens []token
	pos    int
}

func parseExpression(expr string) (node, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	p := &exprParser{tokens: tokens}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		t := p.tokens[p.pos]
		return nil, fmt.Errorf("unexpected token %q at position %d", t.value, t.pos)
	}
	return n, nil
}

func (p *exprParser) peek() *token {
	if p.pos < len(p.tokens) {
		return &p.tokens[p.pos]
	}
	return nil
}

func (p *exprParser) advance() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

func (p *exprParser) peekIdent(value string) bool {
	t := p.peek()
	return t != nil && t.kind == tkIdent && t.value == value
}

// parseOr handles: expr or expr
func (p *exprParser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peekIdent("or") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "or", left: left, right: right}
	}
	return left, nil
}

// parseAnd handles: expr and expr
func (p *exprParser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peekIdent("and") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "and", left: left, right: right}
	}
	return left, nil
}

// parseNot handles: not expr
func (p *exprParser) parseNot() (node, error) {
	if p.peekIdent("not") {
		// "not in" is handled by parseComparison; only treat "not" as a
		// unary operator when it does not precede "in".
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notNode{operand: operand}, nil
	}
	return p.parseComparison()
}

// parseComparison handles: expr (==|!=|>|<|>=|<=) expr, membership, and
// "is" tests.
func (p *exprParser) parseComparison() (node, error) {
	left, err := p.parsePipe()
	if err != nil {
		return nil, err
	}

	t := p.peek()
	if t == nil {
		return left, nil
	}

	if t.kind == tkOp {
		op := p.advance().value
		right, err := p.parsePipe()
		if err != nil {
			return nil, err
		}
		return &binaryNode{op: op, left: left, right: right}, nil
	}

	if t.kind == tkIdent {
		switch t.value {
		case "in":
			p.advance()
			haystack, err := p.parsePipe()
			if err != nil {
				return nil, err
			}
			return &inNode{needle: left, haystack: haystack}, nil
		case "not":
			// "x not in y"
			if p.pos+1 < len(p.tokens) && p.tokens[p.pos+1].kind == tkIdent && p.tokens[p.pos+1].value == "in" {
				p.advance()
				p.advance()
				haystack, err := p.parsePipe()
				if err != nil {
					return nil, err
				}
				return &inNode{needle: left, haystack: haystack, negate: true}, nil
			}
		case "is":
			p.advance()
			negate := false
			if p.peekIdent("not") {
				p.advance()
				negate = true
			}
			next := p.peek()
			if next == nil || next.kind != tkIdent {
				return nil, fmt.Errorf("expected test name after \"is\"")
			}
			test := p.advance().value
			switch test {
			case "none", "null":
				return &isNode{operand: left, test: "none", negate: negate}, nil
			case "defined":
				return &isNode{operand: left, test: "defined", negate: negate}, nil
			default:
				return nil, fmt.Errorf("unknown test %q", test)
			}
		}
	}

	return left, nil
}

// parsePipe handles: primary | filter | filter(arg, ...)
func (p *exprParser) parsePipe() (node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek() != nil && p.peek().kind == tkPipe {
		p.advance()
		t := p.peek()
		if t == nil || t.kind != tkIdent {
			return nil, fmt.Errorf("expected filter name after |")
		}
		name := p.advance().value
		filter := &filterNode{input: left, name: name}
		if p.peek() != nil && p.peek().kind == tkLParen {
			p.advance()
			for {
				if p.peek() != nil && p.peek().kind == tkRParen {
					break
				}
				arg, err := p.parseOr()
				if err != nil {
					return nil, err
				}
				filter.args = append(filter.args, arg)
				if p.peek() != nil && p.peek().kind == tkComma {
					p.advance()
					continue
				}
				break
			}
			if p.peek() == nil || p.peek().kind != tkRParen {
				return nil, fmt.Errorf("expected closing parenthesis in filter arguments")
			}
			p.advance()
		}
		left = filter
	}
	return left, nil
}

// parsePrimary handles literals, references, and parenthesized
// expressions.
func (p *exprParser) parsePrimary() (node, error) {
	t := p.peek()
	if t == nil {
		return nil, fmt.Errorf("unexpected end of expression")
	}

	switch t.kind {
	case tkNumber:
		p.advance()
		f, err := strconv.ParseFloat(t.value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t.value)
		}
		return &literalNode{value: f}, nil

	case tkString:
		p.advance()
		return &literalNode{value: t.value}, nil

	case tkIdent:
		p.advance()
		switch t.value {
		case "true", "True":
			return &literalNode{value: true}, nil
		case "false", "False":
			return &literalNode{value: false}, nil
		case "none", "null", "None":
			return &literalNode{value: nil}, nil
		}
		return &pathNode{path: t.value}, nil

	case tkLParen:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek() == nil || p.peek().kind != tkRParen {
			return nil, fmt.Errorf("expected closing parenthesis")
		}
		p.advance()
		return inner, nil

	case tkLBracket:
		p.advance()
		list := &listNode{}
		for p.peek() != nil && p.peek().kind != tkRBracket {
			elem, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			list.elems = append(list.elems, elem)
			if p.peek() != nil && p.peek().kind == tkComma {
				p.advance()
				continue
			}
			break
		}
		if p.peek() == nil || p.peek().kind != tkRBracket {
			return nil, fmt.Errorf("expected closing bracket in list literal")
		}
		p.advance()
		return list, nil

	default:
		return nil, fmt.Errorf("unexpected token %q at position %d", t.value, t.pos)
	}
}
