package witness

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/core"
)

var (
	// ErrHintRejected is returned when a provider cannot answer a request
	ErrHintRejected = errors.New("hint rejected")

	// ErrUnsatisfiable marks a circuit holding at least one false constraint
	ErrUnsatisfiable = errors.New("constraint system unsatisfiable")
)

// HintKind selects the relation a hint is claimed to satisfy
type HintKind int

const (
	// HintInverse asks for h with h·x = 1
	HintInverse HintKind = iota
	// HintSqrt asks for h with h^2 = x
	HintSqrt
	// HintHalf asks for q = floor(x / 2) over the integers
	HintHalf
)

// String returns the wire name of the kind
func (k HintKind) String() string {
	switch k {
	case HintInverse:
		return "inverse"
	case HintSqrt:
		return "sqrt"
	case HintHalf:
		return "half"
	default:
		return fmt.Sprintf("HintKind(%d)", int(k))
	}
}

// HintRequest is one synchronous question to a provider
type HintRequest struct {
	Field string
	Kind  HintKind
	Input *uint256.Int
}

// String returns a stable encoding used by transcripts
func (r HintRequest) String() string {
	return fmt.Sprintf("%s/%s/%s", r.Field, r.Kind, r.Input.Hex())
}

// HintProvider answers hint requests. Answers are untrusted: every value is
// checked by the constraint that consumes it. Providers must be
// deterministic so a trace can be regenerated bit for bit.
type HintProvider interface {
	Hint(req HintRequest) (*uint256.Int, error)
}

// OracleProvider is the honest provider. It computes answers with the field
// library; when no answer exists it returns zero, which fails the check.
type OracleProvider struct {
	fields map[string]core.HintField
}

// NewOracleProvider serves the registered fields plus any extra ones
func NewOracleProvider(extra ...core.HintField) *OracleProvider {
	p := &OracleProvider{fields: make(map[string]core.HintField)}
	for _, name := range core.FieldNames() {
		f, _ := core.LookupField(name)
		p.fields[name] = f
	}
	for _, f := range extra {
		p.fields[f.Name()] = f
	}
	return p
}

// Hint implements HintProvider
func (p *OracleProvider) Hint(req HintRequest) (*uint256.Int, error) {
	if req.Input == nil {
		return nil, fmt.Errorf("%w: nil input", ErrHintRejected)
	}
	f, ok := p.fields[req.Field]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %q", ErrHintRejected, core.ErrUnknownField, req.Field)
	}

	switch req.Kind {
	case HintInverse:
		h, _ := f.Inverse(req.Input)
		return h, nil
	case HintSqrt:
		h, _ := f.Sqrt(req.Input)
		return h, nil
	case HintHalf:
		return new(uint256.Int).Rsh(req.Input, 1), nil
	default:
		return nil, fmt.Errorf("%w: unsupported kind %s", ErrHintRejected, req.Kind)
	}
}

// ProviderFunc adapts a function to HintProvider
type ProviderFunc func(req HintRequest) (*uint256.Int, error)

// Hint implements HintProvider
func (fn ProviderFunc) Hint(req HintRequest) (*uint256.Int, error) { return fn(req) }
