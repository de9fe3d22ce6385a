package condition

// program is a compiled expression: a closure over the parsed tree.
type program func(s *scope) (any, error)

// scope binds the roots an expression may read.
type scope struct {
	roots map[string]any
}

// Roots readable from expressions. Any other bare identifier is rejected at
// compile time.
var roots = map[string]bool{
	"flags":      true,
	"state":      true,
	"timestamp":  true,
	"customData": true,
}

type parser struct {
	tokens []token
	pos    int
}

// compile parses src into a reusable program.
func compile(src string) (program, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	prog, err := p.ternary()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, errorf(tok.pos, "unexpected token %q", tok.text)
	}
	return prog, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isOp(ops ...string) (string, bool) {
	tok := p.peek()
	if tok.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if tok.text == op {
			return op, true
		}
	}
	return "", false
}

func (p *parser) expect(op string) error {
	tok := p.next()
	if tok.kind != tokOp || tok.text != op {
		if tok.kind == tokEOF {
			return errorf(tok.pos, "expected %q, got end of expression", op)
		}
		return errorf(tok.pos, "expected %q, got %q", op, tok.text)
	}
	return nil
}

func (p *parser) ternary() (program, error) {
	cond, err := p.logicalOr()
	if err != nil {
		return nil, err
	}
	if _, ok := p.isOp("?"); !ok {
		return cond, nil
	}
	p.next()
	then, err := p.ternary()
	if err != nil {
		return nil, err
	}
	if err := p.expect(":"); err != nil {
		return nil, err
	}
	otherwise, err := p.ternary()
	if err != nil {
		return nil, err
	}
	return func(s *scope) (any, error) {
		c, err := cond(s)
		if err != nil {
			return nil, err
		}
		if truthy(c) {
			return then(s)
		}
		return otherwise(s)
	}, nil
}

func (p *parser) logicalOr() (program, error) {
	left, err := p.logicalAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.isOp("||"); !ok {
			return left, nil
		}
		p.next()
		right, err := p.logicalAnd()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(s *scope) (any, error) {
			v, err := l(s)
			if err != nil || truthy(v) {
				return v, err
			}
			return right(s)
		}
	}
}

func (p *parser) logicalAnd() (program, error) {
	left, err := p.equality()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.isOp("&&"); !ok {
			return left, nil
		}
		p.next()
		right, err := p.equality()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(s *scope) (any, error) {
			v, err := l(s)
			if err != nil || !truthy(v) {
				return v, err
			}
			return right(s)
		}
	}
}

func (p *parser) equality() (program, error) {
	return p.binaryLevel(p.relational, func(op string, a, b any) any {
		switch op {
		case "===":
			return strictEquals(a, b)
		case "!==":
			return !strictEquals(a, b)
		case "==":
			return looseEquals(a, b)
		default:
			return !looseEquals(a, b)
		}
	}, "===", "!==", "==", "!=")
}

func (p *parser) relational() (program, error) {
	return p.binaryLevel(p.additive, func(op string, a, b any) any {
		return compare(op, a, b)
	}, "<=", ">=", "<", ">")
}

func (p *parser) additive() (program, error) {
	return p.binaryLevel(p.multiplicative, arithmetic, "+", "-")
}

func (p *parser) multiplicative() (program, error) {
	return p.binaryLevel(p.unary, arithmetic, "*", "/", "%")
}

// binaryLevel parses a left-associative chain of operators of equal
// precedence.
func (p *parser) binaryLevel(operand func() (program, error), apply func(op string, a, b any) any, ops ...string) (program, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.isOp(ops...)
		if !ok {
			return left, nil
		}
		p.next()
		right, err := operand()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(s *scope) (any, error) {
			a, err := l(s)
			if err != nil {
				return nil, err
			}
			b, err := right(s)
			if err != nil {
				return nil, err
			}
			return apply(op, a, b), nil
		}
	}
}

func (p *parser) unary() (program, error) {
	op, ok := p.isOp("!", "-", "+")
	if !ok {
		return p.postfix()
	}
	p.next()
	operand, err := p.unary()
	if err != nil {
		return nil, err
	}
	return func(s *scope) (any, error) {
		v, err := operand(s)
		if err != nil {
			return nil, err
		}
		switch op {
		case "!":
			return !truthy(v), nil
		case "-":
			return -toNumber(v), nil
		default:
			return toNumber(v), nil
		}
	}, nil
}

func (p *parser) postfix() (program, error) {
	target, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.isOp(".", "[", "(")
		if !ok {
			return target, nil
		}
		tok := p.next()
		var key program
		switch op {
		case "(":
			return nil, errorf(tok.pos, "function calls are not supported")
		case ".":
			name := p.next()
			if name.kind != tokIdent {
				return nil, errorf(name.pos, "expected property name after '.'")
			}
			k := name.text
			key = func(*scope) (any, error) { return k, nil }
		case "[":
			key, err = p.ternary()
			if err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
		}
		obj := target
		target = func(s *scope) (any, error) {
			o, err := obj(s)
			if err != nil {
				return nil, err
			}
			k, err := key(s)
			if err != nil {
				return nil, err
			}
			return member(o, k)
		}
	}
}

func (p *parser) primary() (program, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		n := tok.num
		return constant(n), nil
	case tokString:
		str := tok.text
		return constant(str), nil
	case tokIdent:
		switch tok.text {
		case "true":
			return constant(true), nil
		case "false":
			return constant(false), nil
		case "null":
			return constant(nil), nil
		case "undefined":
			return constant(undefined), nil
		}
		if !roots[tok.text] {
			return nil, errorf(tok.pos, "unknown identifier %q", tok.text)
		}
		name := tok.text
		return func(s *scope) (any, error) {
			if v, ok := s.roots[name]; ok {
				return v, nil
			}
			return undefined, nil
		}, nil
	case tokOp:
		if tok.text == "(" {
			inner, err := p.ternary()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return inner, nil
		}
		return nil, errorf(tok.pos, "unexpected operator %q", tok.text)
	}
	return nil, errorf(tok.pos, "unexpected end of expression")
}

func constant(v any) program {
	return func(*scope) (any, error) { return v, nil }
}
