package analysis

import (
	"fmt"
	"sort"

	"github.com/tessellae/loopforge/internal/ir"
)

// RaceKind classifies why a parallel-tagged iname is unsafe for an
// instruction.
type RaceKind string

const (
	// RaceMissingAxis: the instruction is not nested in the parallel
	// iname, so every concurrent instance of the axis would repeat its
	// write to the same locations.
	RaceMissingAxis RaceKind = "missing-axis"

	// RaceUnprovenDistinct: the write's index could not be proven to land
	// on distinct locations for distinct axis values.
	RaceUnprovenDistinct RaceKind = "unproven-distinct"

	// RaceUnhandledReduction: the axis is a reduction dimension for the
	// instruction and no combination strategy is attached to it.
	RaceUnhandledReduction RaceKind = "unhandled-reduction"
)

// Race reports one conflict between an instruction and a parallel axis.
type Race struct {
	InsnID string
	Iname  string
	Kind   RaceKind
	Detail string
}

func (r Race) String() string {
	return fmt.Sprintf("instruction %s vs parallel iname %s: %s (%s)", r.InsnID, r.Iname, r.Kind, r.Detail)
}

// CheckRaces verifies, statically, that no two concurrently-executing
// iteration instances write the same unsynchronized location. Reductions
// with a declared combination strategy are the sanctioned exception.
//
// The distinctness proof is deliberately narrow: each write dimension must
// decompose as an affine combination of parallel axes plus an
// iname-free remainder, and the axis coefficients must satisfy the
// mixed-radix condition (each coefficient strictly dominates the maximal
// contribution of all smaller-coefficient axes). Anything the proof cannot
// cover is reported as a race.
func CheckRaces(k *ir.Kernel) []Race {
	axes := make(map[string]axisInfo)
	var axisNames []string
	for i := range k.Inames {
		in := &k.Inames[i]
		if in.Retired || !ir.IsParallel(in.Tag) {
			continue
		}
		axes[in.Name] = axisInfo{idx: i, extent: ir.Sub(in.Hi, in.Lo)}
		axisNames = append(axisNames, in.Name)
	}
	if len(axes) == 0 {
		return nil
	}
	sort.Strings(axisNames)

	activeInames := make(map[string]bool)
	for i := range k.Inames {
		if !k.Inames[i].Retired {
			activeInames[k.Inames[i].Name] = true
		}
	}

	var races []Race
	for ii := range k.Insns {
		in := &k.Insns[ii]
		within := in.WithinSet()
		reduction := make(map[string]bool)
		for _, v := range ReductionDims(in) {
			reduction[v] = true
		}

		// Axes the distinctness proof must cover.
		var mustCover []string
		for _, p := range axisNames {
			switch {
			case !within[p]:
				races = append(races, Race{
					InsnID: in.ID, Iname: p, Kind: RaceMissingAxis,
					Detail: "instruction does not iterate over the axis, writes would repeat per instance",
				})
			case reduction[p]:
				if k.Inames[axes[p].idx].Combine == ir.CombineNone {
					races = append(races, Race{
						InsnID: in.ID, Iname: p, Kind: RaceUnhandledReduction,
						Detail: "reduction dimension carries a parallel role without a combination strategy",
					})
				}
				// A declared strategy makes the scheduler privatize the
				// accumulation, so the axis needs no distinctness proof.
			default:
				mustCover = append(mustCover, p)
			}
		}
		if len(mustCover) == 0 {
			continue
		}

		covered := make(map[string]bool)
		for _, dim := range in.Write.Index {
			resolved, ok := resolveDim(dim, mustCover, activeInames,
				func(name string) (int64, bool) {
					idx, found := k.Active(name)
					if !found {
						return 0, false
					}
					return ir.ConstValue(ir.Sub(k.Inames[idx].Hi, k.Inames[idx].Lo))
				})
			if !ok {
				continue
			}
			for _, p := range resolved {
				covered[p] = true
			}
		}
		for _, p := range mustCover {
			if !covered[p] {
				races = append(races, Race{
					InsnID: in.ID, Iname: p, Kind: RaceUnprovenDistinct,
					Detail: fmt.Sprintf("write %s not provably distinct across the axis", in.Write),
				})
			}
		}
	}
	return races
}

// axisInfo records one active parallel iname: its arena index and extent.
type axisInfo struct {
	idx    int
	extent ir.Expr
}

// resolveDim checks one write dimension. The dimension must be affine in
// every active iname it mentions (axes and sequential inames alike). When
// the coefficients of all those terms satisfy the mixed-radix condition,
// the dimension is injective over the whole iteration box, so two
// instances differing in any axis write distinct locations even though
// each instance sweeps the sequential inames independently. Returns the
// axes the dimension proves distinct.
func resolveDim(dim ir.Expr, axisNames []string, activeInames map[string]bool, extentOf func(string) (int64, bool)) ([]string, bool) {
	type term struct {
		name  string
		coeff int64
		axis  bool
	}
	isAxis := make(map[string]bool, len(axisNames))
	for _, p := range axisNames {
		isAxis[p] = true
	}

	vars := make(map[string]bool)
	ir.CollectVars(dim, vars)

	var terms []term
	axisTerms := 0
	for v := range vars {
		if !activeInames[v] {
			continue // parameters are fixed for the whole launch
		}
		c, ok := affineCoeff(dim, v)
		if !ok || c == 0 {
			// Non-affine occurrence; c == 0 with v present means the
			// decomposition lost it, which affineCoeff only reports for
			// products of v-dependent factors. Either way: unprovable.
			return nil, false
		}
		t := term{name: v, coeff: abs64(c), axis: isAxis[v]}
		if t.axis {
			axisTerms++
		}
		terms = append(terms, t)
	}
	if axisTerms == 0 {
		return nil, false
	}

	sort.Slice(terms, func(i, j int) bool {
		if terms[i].coeff != terms[j].coeff {
			return terms[i].coeff < terms[j].coeff
		}
		return terms[i].name < terms[j].name
	})

	// Mixed-radix injectivity: the maximal contribution of all
	// smaller-coefficient terms must fit strictly under the next
	// coefficient. The largest term needs no extent bound.
	var sum int64
	for i, t := range terms {
		if i > 0 && sum > t.coeff-1 {
			return nil, false
		}
		if i < len(terms)-1 {
			extent, ok := extentOf(t.name)
			if !ok || extent <= 0 {
				return nil, false
			}
			sum += t.coeff * (extent - 1)
		}
	}

	var resolved []string
	for _, t := range terms {
		if t.axis {
			resolved = append(resolved, t.name)
		}
	}
	return resolved, true
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
