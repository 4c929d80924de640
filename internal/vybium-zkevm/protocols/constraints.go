package protocols

import (
	"errors"
	"fmt"
	"runtime"
	"sort"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrDegreeExceeded is returned when a constraint is declared above the ceiling
	ErrDegreeExceeded = errors.New("constraint degree exceeds ceiling")

	// ErrUnsatisfiable is returned when a trace violates at least one constraint
	ErrUnsatisfiable = errors.New("trace does not satisfy constraints")
)

// AIRConstraints is a set of polynomial constraints over rows of type R.
//
// Constraints are divided into four kinds:
// 1. Initial: evaluated on the first row
// 2. Consistency: evaluated on every row
// 3. Transition: evaluated on every pair of consecutive rows
// 4. Terminal: evaluated on the last row
//
// A constraint holds when its evaluator returns zero. Lookups are checked
// alongside: whenever the filter is one, the tuple must be in the table.
type AIRConstraints[R any] struct {
	maxDegree int

	initialConstraints     []*ConstraintPolynomial[R]
	consistencyConstraints []*ConstraintPolynomial[R]
	transitionConstraints  []*TransitionConstraintPolynomial[R]
	terminalConstraints    []*ConstraintPolynomial[R]
	lookups                []*Lookup[R]

	errs []error
}

// ConstraintPolynomial is a constraint over a single row
type ConstraintPolynomial[R any] struct {
	Name      string
	Degree    int
	Evaluator func(row *R) field.Element
}

// TransitionConstraintPolynomial is a constraint over two consecutive rows
type TransitionConstraintPolynomial[R any] struct {
	Name      string
	Degree    int
	Evaluator func(lv, nv *R) field.Element
}

// Lookup asserts that a tuple built from two consecutive rows is a member
// of Table whenever the filter is one. Filters must be boolean.
type Lookup[R any] struct {
	Name      string
	Degree    int // degree of the filter
	Table     LookupTable
	Evaluator func(lv, nv *R) (filter field.Element, tuple []field.Element)
}

// LookupTable is a fixed relation that lookups are checked against
type LookupTable interface {
	Name() string
	Contains(tuple []field.Element) bool
}

// NewAIRConstraints creates an empty constraint system with a degree ceiling
func NewAIRConstraints[R any](maxDegree int) *AIRConstraints[R] {
	return &AIRConstraints[R]{maxDegree: maxDegree}
}

func (air *AIRConstraints[R]) checkDegree(name string, degree int) {
	if degree > air.maxDegree {
		air.errs = append(air.errs, fmt.Errorf("%w: %s has degree %d, ceiling %d",
			ErrDegreeExceeded, name, degree, air.maxDegree))
	}
}

// AddInitialConstraint adds a first-row constraint
func (air *AIRConstraints[R]) AddInitialConstraint(name string, degree int, eval func(row *R) field.Element) {
	air.checkDegree(name, degree)
	air.initialConstraints = append(air.initialConstraints, &ConstraintPolynomial[R]{
		Name:      name,
		Degree:    degree,
		Evaluator: eval,
	})
}

// AddConsistencyConstraint adds a per-row constraint
func (air *AIRConstraints[R]) AddConsistencyConstraint(name string, degree int, eval func(row *R) field.Element) {
	air.checkDegree(name, degree)
	air.consistencyConstraints = append(air.consistencyConstraints, &ConstraintPolynomial[R]{
		Name:      name,
		Degree:    degree,
		Evaluator: eval,
	})
}

// AddTransitionConstraint adds a constraint between consecutive rows
func (air *AIRConstraints[R]) AddTransitionConstraint(name string, degree int, eval func(lv, nv *R) field.Element) {
	air.checkDegree(name, degree)
	air.transitionConstraints = append(air.transitionConstraints, &TransitionConstraintPolynomial[R]{
		Name:      name,
		Degree:    degree,
		Evaluator: eval,
	})
}

// AddTerminalConstraint adds a last-row constraint
func (air *AIRConstraints[R]) AddTerminalConstraint(name string, degree int, eval func(row *R) field.Element) {
	air.checkDegree(name, degree)
	air.terminalConstraints = append(air.terminalConstraints, &ConstraintPolynomial[R]{
		Name:      name,
		Degree:    degree,
		Evaluator: eval,
	})
}

// AddLookup adds a filtered lookup between consecutive rows
func (air *AIRConstraints[R]) AddLookup(name string, degree int, table LookupTable,
	eval func(lv, nv *R) (field.Element, []field.Element),
) {
	air.checkDegree(name, degree)
	air.lookups = append(air.lookups, &Lookup[R]{
		Name:      name,
		Degree:    degree,
		Table:     table,
		Evaluator: eval,
	})
}

// Validate returns every degree violation recorded while building
func (air *AIRConstraints[R]) Validate() error {
	return errors.Join(air.errs...)
}

// MaxDegree returns the maximum declared degree
func (air *AIRConstraints[R]) MaxDegree() int {
	maxDeg := 0
	for _, c := range air.initialConstraints {
		maxDeg = max(maxDeg, c.Degree)
	}
	for _, c := range air.consistencyConstraints {
		maxDeg = max(maxDeg, c.Degree)
	}
	for _, c := range air.transitionConstraints {
		maxDeg = max(maxDeg, c.Degree)
	}
	for _, c := range air.terminalConstraints {
		maxDeg = max(maxDeg, c.Degree)
	}
	for _, l := range air.lookups {
		maxDeg = max(maxDeg, l.Degree)
	}
	return maxDeg
}

// NumConstraints returns the number of polynomial constraints, lookups excluded
func (air *AIRConstraints[R]) NumConstraints() int {
	return len(air.initialConstraints) +
		len(air.consistencyConstraints) +
		len(air.transitionConstraints) +
		len(air.terminalConstraints)
}

// NumLookups returns the number of lookups
func (air *AIRConstraints[R]) NumLookups() int {
	return len(air.lookups)
}

// ConstraintNames lists every constraint and lookup name in evaluation order
func (air *AIRConstraints[R]) ConstraintNames() []string {
	names := make([]string, 0, air.NumConstraints()+air.NumLookups())
	for _, c := range air.initialConstraints {
		names = append(names, c.Name)
	}
	for _, c := range air.consistencyConstraints {
		names = append(names, c.Name)
	}
	for _, c := range air.transitionConstraints {
		names = append(names, c.Name)
	}
	for _, c := range air.terminalConstraints {
		names = append(names, c.Name)
	}
	for _, l := range air.lookups {
		names = append(names, l.Name)
	}
	return names
}

// Violation is one constraint that does not hold on one row
type Violation struct {
	Row        int
	Constraint string
	Value      field.Element
}

func (v Violation) String() string {
	return fmt.Sprintf("row %d: %s = %s", v.Row, v.Constraint, v.Value)
}

// Check evaluates every constraint and lookup on rows. Rows are split into
// chunks checked concurrently; the trace is read-only here so chunks never
// interact. parallelism <= 0 uses one goroutine per CPU. The result is
// sorted by row, then by constraint order.
func (air *AIRConstraints[R]) Check(rows []R, parallelism int) []Violation {
	n := len(rows)
	if n == 0 {
		return nil
	}

	var out []Violation
	for _, c := range air.initialConstraints {
		if v := c.Evaluator(&rows[0]); !v.IsZero() {
			out = append(out, Violation{Row: 0, Constraint: c.Name, Value: v})
		}
	}

	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	chunk := (n + parallelism - 1) / parallelism
	results := make([][]Violation, parallelism)

	var g errgroup.Group
	g.SetLimit(parallelism)
	for w := 0; w < parallelism; w++ {
		start, end := w*chunk, min((w+1)*chunk, n)
		if start >= end {
			break
		}
		g.Go(func() error {
			results[w] = air.checkRange(rows, start, end)
			return nil
		})
	}
	_ = g.Wait()
	for _, r := range results {
		out = append(out, r...)
	}

	for _, c := range air.terminalConstraints {
		if v := c.Evaluator(&rows[n-1]); !v.IsZero() {
			out = append(out, Violation{Row: n - 1, Constraint: c.Name, Value: v})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Row < out[j].Row })
	return out
}

func (air *AIRConstraints[R]) checkRange(rows []R, start, end int) []Violation {
	var out []Violation
	for i := start; i < end; i++ {
		lv := &rows[i]
		for _, c := range air.consistencyConstraints {
			if v := c.Evaluator(lv); !v.IsZero() {
				out = append(out, Violation{Row: i, Constraint: c.Name, Value: v})
			}
		}
		if i+1 == len(rows) {
			continue
		}
		nv := &rows[i+1]
		for _, c := range air.transitionConstraints {
			if v := c.Evaluator(lv, nv); !v.IsZero() {
				out = append(out, Violation{Row: i, Constraint: c.Name, Value: v})
			}
		}
		for _, l := range air.lookups {
			filter, tuple := l.Evaluator(lv, nv)
			switch {
			case filter.IsZero():
			case !filter.Equal(field.One):
				out = append(out, Violation{Row: i, Constraint: l.Name + "/filter", Value: filter})
			case !l.Table.Contains(tuple):
				out = append(out, Violation{Row: i, Constraint: l.Name, Value: filter})
			}
		}
	}
	return out
}

// Verify returns ErrUnsatisfiable describing the first violations, or nil
func (air *AIRConstraints[R]) Verify(rows []R, parallelism int) error {
	vs := air.Check(rows, parallelism)
	if len(vs) == 0 {
		return nil
	}
	const shown = 5
	msg := vs[0].String()
	for _, v := range vs[1:min(len(vs), shown)] {
		msg += "; " + v.String()
	}
	if len(vs) > shown {
		msg += fmt.Sprintf("; and %d more", len(vs)-shown)
	}
	return fmt.Errorf("%w: %s", ErrUnsatisfiable, msg)
}

// EvaluateComposition folds every polynomial constraint into one value per
// row as a random linear combination:
// h(row) = Σ α_i · constraint_i(row)
//
// where α_i are challenges drawn from the transcript after the trace was
// committed. Lookups are argued separately and are not folded in.
func (air *AIRConstraints[R]) EvaluateComposition(rows []R, challenges []field.Element) ([]field.Element, error) {
	if len(challenges) < air.NumConstraints() {
		return nil, fmt.Errorf("need %d challenges, got %d", air.NumConstraints(), len(challenges))
	}
	n := len(rows)
	composition := make([]field.Element, n)
	for i := range composition {
		composition[i] = field.Zero
	}
	if n == 0 {
		return composition, nil
	}

	idx := 0
	for _, c := range air.initialConstraints {
		composition[0] = composition[0].Add(c.Evaluator(&rows[0]).Mul(challenges[idx]))
		idx++
	}

	for i := 0; i < n; i++ {
		local := idx
		for _, c := range air.consistencyConstraints {
			composition[i] = composition[i].Add(c.Evaluator(&rows[i]).Mul(challenges[local]))
			local++
		}
	}
	idx += len(air.consistencyConstraints)

	for i := 0; i+1 < n; i++ {
		local := idx
		for _, c := range air.transitionConstraints {
			composition[i] = composition[i].Add(c.Evaluator(&rows[i], &rows[i+1]).Mul(challenges[local]))
			local++
		}
	}
	idx += len(air.transitionConstraints)

	for _, c := range air.terminalConstraints {
		composition[n-1] = composition[n-1].Add(c.Evaluator(&rows[n-1]).Mul(challenges[idx]))
		idx++
	}

	return composition, nil
}
