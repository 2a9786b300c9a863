package ir

import (
	"fmt"
	"strconv"
	"unicode"
)

// ParseExpr parses the textual spelling of an index expression, the form
// kernel files and String() both use. The grammar is tiny:
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/" | "%") unary }
//	unary   = [ "-" ] primary
//	primary = number | name | name "[" expr { "," expr } "]"
//	        | "min" "(" expr "," expr ")" | "max" "(" expr "," expr ")"
//	        | "(" expr ")"
//
// "/" is floor division, matching Eval.
func ParseExpr(src string) (Expr, error) {
	p := &exprParser{src: src}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("parsing %q: unexpected %q at offset %d", src, p.src[p.pos:], p.pos)
	}
	return e, nil
}

// ParseCond parses "lhs OP rhs" where OP is one of < <= == != >= >.
func ParseCond(src string) (Cond, error) {
	p := &exprParser{src: src}
	l, err := p.parseExpr()
	if err != nil {
		return Cond{}, err
	}
	p.skipSpace()
	op, err := p.cmpOp()
	if err != nil {
		return Cond{}, fmt.Errorf("parsing %q: %w", src, err)
	}
	r, err := p.parseExpr()
	if err != nil {
		return Cond{}, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return Cond{}, fmt.Errorf("parsing %q: unexpected %q at offset %d", src, p.src[p.pos:], p.pos)
	}
	return Cond{L: l, Op: op, R: r}, nil
}

type exprParser struct {
	src string
	pos int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *exprParser) parseExpr() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			left = Bin{Op: OpAdd, L: left, R: right}
		case '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			left = Bin{Op: OpSub, L: left, R: right}
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseTerm() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		var op BinOp
		switch p.peek() {
		case '*':
			op = OpMul
		case '/':
			op = OpDiv
		case '%':
			op = OpMod
		default:
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = Bin{Op: op, L: left, R: right}
	}
}

func (p *exprParser) parseUnary() (Expr, error) {
	p.skipSpace()
	if p.peek() == '-' {
		p.pos++
		e, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return Sub(Num(0), e), nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (Expr, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, fmt.Errorf("parsing %q: unexpected end of input", p.src)
	}
	c := p.src[p.pos]
	switch {
	case c == '(':
		p.pos++
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return e, nil
	case c >= '0' && c <= '9':
		start := p.pos
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
		n, err := strconv.ParseInt(p.src[start:p.pos], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", p.src, err)
		}
		return Num(n), nil
	case isIdentStart(rune(c)):
		name := p.ident()
		p.skipSpace()
		if name == "min" || name == "max" {
			if p.peek() == '(' {
				p.pos++
				l, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				if err := p.expect(','); err != nil {
					return nil, err
				}
				r, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				if err := p.expect(')'); err != nil {
					return nil, err
				}
				op := OpMin
				if name == "max" {
					op = OpMax
				}
				return Bin{Op: op, L: l, R: r}, nil
			}
		}
		if p.peek() == '[' {
			p.pos++
			var idx []Expr
			for {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				idx = append(idx, e)
				p.skipSpace()
				if p.peek() == ',' {
					p.pos++
					continue
				}
				break
			}
			if err := p.expect(']'); err != nil {
				return nil, err
			}
			return Ref{Array: name, Index: idx}, nil
		}
		return Var(name), nil
	default:
		return nil, fmt.Errorf("parsing %q: unexpected %q at offset %d", p.src, string(c), p.pos)
	}
}

func (p *exprParser) ident() string {
	start := p.pos
	for p.pos < len(p.src) && isIdentPart(rune(p.src[p.pos])) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *exprParser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		return fmt.Errorf("parsing %q: expected %q at offset %d", p.src, string(c), p.pos)
	}
	p.pos++
	return nil
}

func (p *exprParser) cmpOp() (CmpOp, error) {
	two := ""
	if p.pos+1 < len(p.src) {
		two = p.src[p.pos : p.pos+2]
	}
	switch two {
	case "<=", "==", "!=", ">=":
		p.pos += 2
		return CmpOp(two), nil
	}
	switch p.peek() {
	case '<':
		p.pos++
		return CmpLt, nil
	case '>':
		p.pos++
		return CmpGt, nil
	}
	return "", fmt.Errorf("expected comparison operator at offset %d", p.pos)
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
