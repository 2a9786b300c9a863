package analysis

import (
	"github.com/tessellae/loopforge/internal/ir"
)

// affineCoeff decomposes e as coeff*v + rest, where v does not occur in
// rest. It returns ok=false when e depends on v in a way that does not fit
// that shape (v inside an array index, a divisor, a modulus, or a product
// of two v-dependent factors).
//
// The decomposition powers the two distinctness proofs the engine needs:
// a nonzero coefficient means e is injective in v while every other
// variable is held fixed.
func affineCoeff(e ir.Expr, v string) (coeff int64, ok bool) {
	switch n := e.(type) {
	case ir.Num:
		return 0, true
	case ir.Var:
		if string(n) == v {
			return 1, true
		}
		return 0, true
	case ir.Ref:
		if dependsOn(e, v) {
			return 0, false
		}
		return 0, true
	case ir.Bin:
		switch n.Op {
		case ir.OpAdd, ir.OpSub:
			cl, okL := affineCoeff(n.L, v)
			cr, okR := affineCoeff(n.R, v)
			if !okL || !okR {
				return 0, false
			}
			if n.Op == ir.OpSub {
				return cl - cr, true
			}
			return cl + cr, true
		case ir.OpMul:
			lConst, lIsConst := ir.ConstValue(n.L)
			rConst, rIsConst := ir.ConstValue(n.R)
			switch {
			case lIsConst && rIsConst:
				return 0, true
			case lIsConst:
				c, ok := affineCoeff(n.R, v)
				if !ok {
					return 0, false
				}
				return lConst * c, true
			case rIsConst:
				c, ok := affineCoeff(n.L, v)
				if !ok {
					return 0, false
				}
				return rConst * c, true
			default:
				if dependsOn(n.L, v) || dependsOn(n.R, v) {
					return 0, false
				}
				return 0, true
			}
		default:
			// Division, modulus, min, max: only safe when v is absent.
			if dependsOn(e, v) {
				return 0, false
			}
			return 0, true
		}
	default:
		return 0, false
	}
}

// dependsOn reports whether v occurs anywhere in e.
func dependsOn(e ir.Expr, v string) bool {
	set := make(map[string]bool)
	ir.CollectVars(e, set)
	return set[v]
}

// distinctAcross reports whether e provably takes distinct values for
// distinct values of v while all other variables are held fixed.
func distinctAcross(e ir.Expr, v string) bool {
	c, ok := affineCoeff(e, v)
	return ok && c != 0
}
