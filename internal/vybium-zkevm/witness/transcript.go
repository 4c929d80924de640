package witness

import (
	"fmt"

	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// Exchange is one answered request
type Exchange struct {
	Request HintRequest
	Answer  *uint256.Int
}

// Recorder forwards requests to an inner provider and keeps every exchange,
// so the same trace can be regenerated later with a Replayer.
type Recorder struct {
	inner     HintProvider
	exchanges []Exchange
}

// NewRecorder wraps a provider
func NewRecorder(inner HintProvider) *Recorder {
	return &Recorder{inner: inner}
}

// Hint implements HintProvider
func (r *Recorder) Hint(req HintRequest) (*uint256.Int, error) {
	h, err := r.inner.Hint(req)
	if err != nil {
		return nil, err
	}
	r.exchanges = append(r.exchanges, Exchange{Request: req, Answer: h.Clone()})
	return h, nil
}

// Exchanges returns the recorded exchanges in request order
func (r *Recorder) Exchanges() []Exchange {
	return append([]Exchange(nil), r.exchanges...)
}

// Digest returns the transcript digest of the recorded exchanges
func (r *Recorder) Digest() [32]byte {
	return TranscriptDigest(r.exchanges)
}

// TranscriptDigest hashes exchanges with sha3-256. Two runs that asked the
// same questions in the same order and got the same answers share a digest.
func TranscriptDigest(exchanges []Exchange) [32]byte {
	h := sha3.New256()
	for _, ex := range exchanges {
		fmt.Fprintf(h, "%s=", ex.Request)
		b := ex.Answer.Bytes32()
		h.Write(b[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Replayer answers from a recorded transcript and rejects any request that
// deviates from it.
type Replayer struct {
	exchanges []Exchange
	next      int
}

// NewReplayer creates a replayer over recorded exchanges
func NewReplayer(exchanges []Exchange) *Replayer {
	return &Replayer{exchanges: exchanges}
}

// Hint implements HintProvider
func (r *Replayer) Hint(req HintRequest) (*uint256.Int, error) {
	if r.next >= len(r.exchanges) {
		return nil, fmt.Errorf("%w: transcript exhausted at %s", ErrHintRejected, req)
	}
	ex := r.exchanges[r.next]
	if ex.Request.String() != req.String() {
		return nil, fmt.Errorf("%w: request %d is %s, transcript has %s", ErrHintRejected, r.next, req, ex.Request)
	}
	r.next++
	return ex.Answer.Clone(), nil
}

// Remaining returns the number of unreplayed exchanges
func (r *Replayer) Remaining() int {
	return len(r.exchanges) - r.next
}
