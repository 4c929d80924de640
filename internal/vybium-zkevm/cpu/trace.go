package cpu

import (
	"fmt"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/hash"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/merkle"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/utils"
)

// TraceTable is the CPU execution trace: one row per cycle followed by
// padding rows.
type TraceTable struct {
	Rows []ExecutionRow
}

// NewTraceTable wraps rows
func NewTraceTable(rows []ExecutionRow) *TraceTable {
	return &TraceTable{Rows: rows}
}

// Len returns the number of rows including padding
func (t *TraceTable) Len() int { return len(t.Rows) }

// PaddingRow returns the padding row that follows last: registers and the
// cached top are carried, every flag and channel is off.
func PaddingRow(last *ExecutionRow) ExecutionRow {
	r := NewExecutionRow()
	r.ProgramCounter = last.ProgramCounter
	r.Gas = last.Gas
	r.StackLen = last.StackLen
	r.Context = last.Context
	r.IsKernelMode = last.IsKernelMode
	r.MemChannels[0].Value = last.MemChannels[0].Value
	r.PartialChannel.Value = r.MemChannels[0].Value
	return r
}

// Pad appends padding rows until the trace has length rows. The last row of
// a padded trace is always a padding row.
func (t *TraceTable) Pad(length int) error {
	if len(t.Rows) == 0 {
		return fmt.Errorf("cannot pad an empty trace")
	}
	if length <= len(t.Rows) {
		return fmt.Errorf("padded length %d must exceed %d cycles", length, len(t.Rows))
	}
	for len(t.Rows) < length {
		t.Rows = append(t.Rows, PaddingRow(&t.Rows[len(t.Rows)-1]))
	}
	return nil
}

// Cycles returns the number of non-padding rows
func (t *TraceTable) Cycles() int {
	n := 0
	for i := range t.Rows {
		if t.Rows[i].IsCpuCycle.Equal(field.One) {
			n++
		}
	}
	return n
}

func rowDigest(r *ExecutionRow) hash.Digest {
	values := r.Columns()
	// Pad to multiple of 10 for Tip5
	for len(values)%10 != 0 {
		values = append(values, field.Zero)
	}
	return hash.HashVarlen(values)
}

// Commit builds the Merkle tree over the row digests
func (t *TraceTable) Commit() (*merkle.MerkleTree, error) {
	if !utils.IsPowerOfTwo(len(t.Rows)) {
		return nil, fmt.Errorf("trace length %d is not a power of two", len(t.Rows))
	}
	leaves := make([]hash.Digest, len(t.Rows))
	for i := range t.Rows {
		leaves[i] = rowDigest(&t.Rows[i])
	}
	tree, err := merkle.New(leaves)
	if err != nil {
		return nil, fmt.Errorf("failed to create Merkle tree: %w", err)
	}
	return tree, nil
}

// DigestBytes serializes a digest little-endian, eight bytes per element
func DigestBytes(d hash.Digest) []byte {
	out := make([]byte, len(d)*8)
	for i, elem := range d {
		val := elem.Value()
		for j := 0; j < 8; j++ {
			out[i*8+j] = byte(val >> (j * 8))
		}
	}
	return out
}

// Composition commits to the trace, draws one challenge per constraint from
// the Fiat-Shamir channel and evaluates the composition column. On a valid
// trace every entry is zero.
func (t *TraceTable) Composition(air *AIR, hashFunc string) ([]field.Element, hash.Digest, error) {
	tree, err := t.Commit()
	if err != nil {
		return nil, hash.Digest{}, err
	}
	root := tree.Root()

	channel := utils.NewChannel(hashFunc)
	channel.SendElements([]field.Element{field.New(uint64(t.Len())), field.New(uint64(NumColumns))})
	channel.Send(DigestBytes(root))
	challenges := channel.ReceiveRandomElements(air.NumConstraints())

	composition, err := air.EvaluateComposition(t.Rows, challenges)
	if err != nil {
		return nil, root, err
	}
	return composition, root, nil
}
