package witness

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/core"
)

func runRecovery(p HintProvider) (*uint256.Int, *Circuit) {
	c := NewCircuit(core.BN254Base, p)
	y, _ := c.RecoverPoint(core.BN254, uint256.NewInt(1), 0)
	c.Inverse(uint256.NewInt(5))
	return y, c
}

func TestRecordAndReplay(t *testing.T) {
	rec := NewRecorder(NewOracleProvider())
	y1, c1 := runRecovery(rec)
	require.NoError(t, c1.Err())
	require.Len(t, rec.Exchanges(), 3)

	rep := NewReplayer(rec.Exchanges())
	y2, c2 := runRecovery(rep)
	require.NoError(t, c2.Err())
	assert.True(t, y1.Eq(y2))
	assert.Equal(t, 0, rep.Remaining())

	again := NewRecorder(NewOracleProvider())
	runRecovery(again)
	assert.Equal(t, rec.Digest(), again.Digest())
}

func TestReplayerRejectsDeviation(t *testing.T) {
	rec := NewRecorder(NewOracleProvider())
	runRecovery(rec)

	rep := NewReplayer(rec.Exchanges())
	c := NewCircuit(core.BN254Base, rep)
	c.Inverse(uint256.NewInt(6))
	assert.ErrorIs(t, c.Err(), ErrUnsatisfiable)

	_, err := NewReplayer(nil).Hint(HintRequest{Field: "bn254_base", Kind: HintSqrt, Input: uint256.NewInt(1)})
	assert.ErrorIs(t, err, ErrHintRejected)
}

func TestOracleProviderErrors(t *testing.T) {
	p := NewOracleProvider()

	_, err := p.Hint(HintRequest{Field: "nope", Kind: HintSqrt, Input: uint256.NewInt(1)})
	assert.ErrorIs(t, err, ErrHintRejected)
	assert.ErrorIs(t, err, core.ErrUnknownField)

	_, err = p.Hint(HintRequest{Field: "bn254_base", Kind: HintKind(9), Input: uint256.NewInt(1)})
	assert.ErrorIs(t, err, ErrHintRejected)

	_, err = p.Hint(HintRequest{Field: "bn254_base", Kind: HintSqrt})
	assert.ErrorIs(t, err, ErrHintRejected)
}
