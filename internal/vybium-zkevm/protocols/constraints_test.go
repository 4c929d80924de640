package protocols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"
)

type counterRow struct {
	Clock field.Element
	Value field.Element
	IsOn  field.Element
}

// counterAIR: clock starts at 0 and increments, value is boolean-gated into u32
func counterAIR() *AIRConstraints[counterRow] {
	air := NewAIRConstraints[counterRow](3)
	air.AddInitialConstraint("clock_starts_at_0", 1, func(r *counterRow) field.Element {
		return r.Clock
	})
	air.AddConsistencyConstraint("is_on_bool", 2, func(r *counterRow) field.Element {
		return r.IsOn.Mul(r.IsOn.Sub(field.One))
	})
	air.AddTransitionConstraint("clock_increments", 1, func(lv, nv *counterRow) field.Element {
		return nv.Clock.Sub(lv.Clock.Add(field.One))
	})
	air.AddTerminalConstraint("ends_off", 1, func(r *counterRow) field.Element {
		return r.IsOn
	})
	air.AddLookup("value_u32", 1, U32Table, func(lv, nv *counterRow) (field.Element, []field.Element) {
		return lv.IsOn, []field.Element{lv.Value}
	})
	return air
}

func goodRows(n int) []counterRow {
	rows := make([]counterRow, n)
	for i := range rows {
		rows[i] = counterRow{Clock: field.New(uint64(i)), Value: field.New(uint64(i * 7)), IsOn: field.One}
	}
	rows[n-1].IsOn = field.Zero
	return rows
}

func TestAIRCheckAcceptsValidTrace(t *testing.T) {
	air := counterAIR()
	require.NoError(t, air.Validate())
	assert.Equal(t, 4, air.NumConstraints())
	assert.Equal(t, 1, air.NumLookups())
	assert.Equal(t, 2, air.MaxDegree())

	for _, p := range []int{0, 1, 3, 64} {
		assert.Empty(t, air.Check(goodRows(17), p), "parallelism %d", p)
	}
}

func TestAIRCheckReportsViolations(t *testing.T) {
	air := counterAIR()
	rows := goodRows(8)
	rows[3].Clock = field.New(100)
	rows[5].Value = field.New(1 << 33)
	rows[6].IsOn = field.New(2)

	vs := air.Check(rows, 2)
	names := make(map[string]int)
	for _, v := range vs {
		if _, seen := names[v.Constraint]; !seen {
			names[v.Constraint] = v.Row
		}
	}
	assert.Equal(t, 2, names["clock_increments"])
	assert.Equal(t, 5, names["value_u32"])
	assert.Equal(t, 6, names["is_on_bool"])
	assert.Equal(t, 6, names["value_u32/filter"])

	for i := 1; i < len(vs); i++ {
		assert.LessOrEqual(t, vs[i-1].Row, vs[i].Row)
	}

	err := air.Verify(rows, 1)
	assert.ErrorIs(t, err, ErrUnsatisfiable)
}

func TestAIRDegreeCeiling(t *testing.T) {
	air := NewAIRConstraints[counterRow](3)
	air.AddConsistencyConstraint("cubic", 3, func(r *counterRow) field.Element { return field.Zero })
	require.NoError(t, air.Validate())

	air.AddTransitionConstraint("quartic", 4, func(lv, nv *counterRow) field.Element { return field.Zero })
	assert.ErrorIs(t, air.Validate(), ErrDegreeExceeded)
}

func TestEvaluateComposition(t *testing.T) {
	air := counterAIR()
	challenges := []field.Element{field.New(3), field.New(5), field.New(7), field.New(11)}

	comp, err := air.EvaluateComposition(goodRows(4), challenges)
	require.NoError(t, err)
	for i, v := range comp {
		assert.True(t, v.IsZero(), "row %d", i)
	}

	rows := goodRows(4)
	rows[0].Clock = field.New(2)
	comp, err = air.EvaluateComposition(rows, challenges)
	require.NoError(t, err)
	// initial: 3·2, transition: 7·(1 - 3)
	want := field.New(6).Add(field.New(7).Mul(field.Zero.Sub(field.New(2))))
	assert.True(t, comp[0].Equal(want))

	_, err = air.EvaluateComposition(rows, challenges[:2])
	assert.Error(t, err)
}

func TestTupleTable(t *testing.T) {
	tbl := NewTupleTable("pairs", 2)
	tbl.Insert(field.New(1), field.New(2))
	tbl.Insert(field.New(1), field.New(2))
	tbl.Insert(field.New(9))

	assert.Equal(t, 1, tbl.Len())
	assert.True(t, tbl.Contains([]field.Element{field.New(1), field.New(2)}))
	assert.False(t, tbl.Contains([]field.Element{field.New(2), field.New(1)}))
	assert.False(t, tbl.Contains([]field.Element{field.New(1)}))

	assert.True(t, U32Table.Contains([]field.Element{field.New(1<<32 - 1), field.Zero}))
	assert.False(t, U32Table.Contains([]field.Element{field.New(1 << 32)}))
	assert.False(t, U32Table.Contains(nil))
}
