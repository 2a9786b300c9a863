package ir

import (
	"fmt"
	"sort"
	"strings"
)

// Expr is a sealed interface over integer index expressions.
// Only Num, Var, Ref, and Bin implement it.
type Expr interface {
	expr() // Sealed - only IR node types implement it.

	// String renders the expression deterministically. Binary nodes are
	// fully parenthesized so rendered output never depends on precedence.
	String() string
}

// Num is an integer literal.
type Num int64

func (Num) expr() {}

func (n Num) String() string { return fmt.Sprintf("%d", int64(n)) }

// Var references an iname or a scalar parameter by name.
type Var string

func (Var) expr() {}

func (v Var) String() string { return string(v) }

// Ref is an array element reference. An empty Index slice denotes a
// rank-zero (scalar) location.
type Ref struct {
	Array string
	Index []Expr
}

func (Ref) expr() {}

func (r Ref) String() string {
	parts := make([]string, len(r.Index))
	for i, e := range r.Index {
		parts[i] = e.String()
	}
	return r.Array + "[" + strings.Join(parts, ", ") + "]"
}

// BinOp enumerates the binary operators the IR supports.
type BinOp string

const (
	OpAdd BinOp = "+"
	OpSub BinOp = "-"
	OpMul BinOp = "*"
	// OpDiv is floor division. Bounds synthesized by split rely on
	// floor semantics for non-negative operands.
	OpDiv BinOp = "/"
	OpMod BinOp = "%"
	OpMin BinOp = "min"
	OpMax BinOp = "max"
)

// Bin is a binary operation over two subexpressions.
type Bin struct {
	Op   BinOp
	L, R Expr
}

func (Bin) expr() {}

func (b Bin) String() string {
	switch b.Op {
	case OpMin, OpMax:
		return fmt.Sprintf("%s(%s, %s)", string(b.Op), b.L, b.R)
	default:
		return fmt.Sprintf("(%s %s %s)", b.L, b.Op, b.R)
	}
}

// Add returns l+r with constant folding and identity elimination.
// The smart constructors keep split-synthesized bounds readable and keep
// rendered trees stable across equivalent construction paths.
func Add(l, r Expr) Expr {
	ln, lok := l.(Num)
	rn, rok := r.(Num)
	switch {
	case lok && rok:
		return Num(int64(ln) + int64(rn))
	case lok && ln == 0:
		return r
	case rok && rn == 0:
		return l
	}
	return Bin{Op: OpAdd, L: l, R: r}
}

// Sub returns l-r with constant folding.
func Sub(l, r Expr) Expr {
	ln, lok := l.(Num)
	rn, rok := r.(Num)
	switch {
	case lok && rok:
		return Num(int64(ln) - int64(rn))
	case rok && rn == 0:
		return l
	}
	return Bin{Op: OpSub, L: l, R: r}
}

// Mul returns l*r with constant folding and identity/zero elimination.
func Mul(l, r Expr) Expr {
	ln, lok := l.(Num)
	rn, rok := r.(Num)
	switch {
	case lok && rok:
		return Num(int64(ln) * int64(rn))
	case lok && ln == 0, rok && rn == 0:
		return Num(0)
	case lok && ln == 1:
		return r
	case rok && rn == 1:
		return l
	}
	return Bin{Op: OpMul, L: l, R: r}
}

// CeilDiv returns ceil(l/r) for non-negative l and positive r, expressed
// as (l + r - 1) / r with floor division.
func CeilDiv(l, r Expr) Expr {
	if ln, ok := l.(Num); ok {
		if rn, ok := r.(Num); ok && rn > 0 {
			return Num((int64(ln) + int64(rn) - 1) / int64(rn))
		}
	}
	if rn, ok := r.(Num); ok {
		return Bin{Op: OpDiv, L: Add(l, Num(int64(rn)-1)), R: r}
	}
	return Bin{Op: OpDiv, L: Sub(Add(l, r), Num(1)), R: r}
}

// Subst returns e with every Var whose name appears in repl replaced by the
// mapped expression. Substitution recurses into Ref index expressions.
// Nodes without a matched Var are returned unchanged.
func Subst(e Expr, repl map[string]Expr) Expr {
	switch v := e.(type) {
	case Num:
		return v
	case Var:
		if r, ok := repl[string(v)]; ok {
			return r
		}
		return v
	case Ref:
		idx := make([]Expr, len(v.Index))
		for i, sub := range v.Index {
			idx[i] = Subst(sub, repl)
		}
		return Ref{Array: v.Array, Index: idx}
	case Bin:
		return Bin{Op: v.Op, L: Subst(v.L, repl), R: Subst(v.R, repl)}
	default:
		panic(fmt.Sprintf("ir: unknown expression type %T", e))
	}
}

// CollectVars adds every Var name occurring in e to out.
func CollectVars(e Expr, out map[string]bool) {
	switch v := e.(type) {
	case Num:
	case Var:
		out[string(v)] = true
	case Ref:
		for _, sub := range v.Index {
			CollectVars(sub, out)
		}
	case Bin:
		CollectVars(v.L, out)
		CollectVars(v.R, out)
	}
}

// Vars returns the sorted list of Var names occurring in e.
func Vars(e Expr) []string {
	set := make(map[string]bool)
	CollectVars(e, set)
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CollectRefs appends every Ref occurring in e (including refs nested in
// index expressions) to out, in left-to-right order.
func CollectRefs(e Expr, out *[]Ref) {
	switch v := e.(type) {
	case Num, Var:
	case Ref:
		for _, sub := range v.Index {
			CollectRefs(sub, out)
		}
		*out = append(*out, v)
	case Bin:
		CollectRefs(v.L, out)
		CollectRefs(v.R, out)
	}
}

// Binding supplies variable values and array contents during evaluation.
// Implemented by the evaluator's environment; tests may supply fixed maps.
type Binding interface {
	// Value returns the value bound to an iname or scalar parameter.
	Value(name string) (int64, bool)
	// Load reads one array element. The engine treats reads during bound
	// evaluation as observable events, so Load may record a trace entry.
	Load(array string, index []int64) (int64, error)
}

// Eval evaluates e under b. Division and modulus follow floor semantics
// (the result rounds toward negative infinity), matching the bounds that
// split synthesizes.
func Eval(e Expr, b Binding) (int64, error) {
	switch v := e.(type) {
	case Num:
		return int64(v), nil
	case Var:
		val, ok := b.Value(string(v))
		if !ok {
			return 0, fmt.Errorf("unbound variable %q", string(v))
		}
		return val, nil
	case Ref:
		idx := make([]int64, len(v.Index))
		for i, sub := range v.Index {
			n, err := Eval(sub, b)
			if err != nil {
				return 0, err
			}
			idx[i] = n
		}
		return b.Load(v.Array, idx)
	case Bin:
		l, err := Eval(v.L, b)
		if err != nil {
			return 0, err
		}
		r, err := Eval(v.R, b)
		if err != nil {
			return 0, err
		}
		switch v.Op {
		case OpAdd:
			return l + r, nil
		case OpSub:
			return l - r, nil
		case OpMul:
			return l * r, nil
		case OpDiv:
			if r == 0 {
				return 0, fmt.Errorf("division by zero in %s", e)
			}
			return floorDiv(l, r), nil
		case OpMod:
			if r == 0 {
				return 0, fmt.Errorf("modulus by zero in %s", e)
			}
			return l - floorDiv(l, r)*r, nil
		case OpMin:
			if l < r {
				return l, nil
			}
			return r, nil
		case OpMax:
			if l > r {
				return l, nil
			}
			return r, nil
		default:
			return 0, fmt.Errorf("unknown operator %q", string(v.Op))
		}
	default:
		return 0, fmt.Errorf("unknown expression type %T", e)
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// ConstValue returns the value of e if it is a literal.
func ConstValue(e Expr) (int64, bool) {
	n, ok := e.(Num)
	return int64(n), ok
}
