package ir

import "fmt"

// CmpOp enumerates comparison operators usable in guard conditions.
type CmpOp string

const (
	CmpLt CmpOp = "<"
	CmpLe CmpOp = "<="
	CmpEq CmpOp = "=="
	CmpNe CmpOp = "!="
	CmpGe CmpOp = ">="
	CmpGt CmpOp = ">"
)

// Cond is a single comparison used as a conditional guard around an
// instruction. Split introduces clamp guards of the form
// outer*factor + inner < extent.
type Cond struct {
	L  Expr
	Op CmpOp
	R  Expr
}

func (c Cond) String() string {
	return fmt.Sprintf("%s %s %s", c.L, c.Op, c.R)
}

// SubstCond applies Subst to both sides of c.
func SubstCond(c Cond, repl map[string]Expr) Cond {
	return Cond{L: Subst(c.L, repl), Op: c.Op, R: Subst(c.R, repl)}
}

// EvalCond evaluates c under b.
func EvalCond(c Cond, b Binding) (bool, error) {
	l, err := Eval(c.L, b)
	if err != nil {
		return false, err
	}
	r, err := Eval(c.R, b)
	if err != nil {
		return false, err
	}
	switch c.Op {
	case CmpLt:
		return l < r, nil
	case CmpLe:
		return l <= r, nil
	case CmpEq:
		return l == r, nil
	case CmpNe:
		return l != r, nil
	case CmpGe:
		return l >= r, nil
	case CmpGt:
		return l > r, nil
	default:
		return false, fmt.Errorf("unknown comparison %q", string(c.Op))
	}
}
