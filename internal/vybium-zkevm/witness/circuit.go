package witness

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/core"
)

// Check is one evaluated constraint
type Check struct {
	Name      string
	Satisfied bool
}

// Circuit evaluates verification constraints over a hint field as soon as
// they are emitted. Hints are fetched synchronously from the provider right
// before the constraint that consumes them. A Circuit is not safe for
// concurrent use.
type Circuit struct {
	field    core.HintField
	provider HintProvider
	logger   zerolog.Logger

	checks   []Check
	failures []string
}

// Option configures a Circuit
type Option func(*Circuit)

// WithLogger logs unsatisfied constraints at warn level
func WithLogger(l zerolog.Logger) Option {
	return func(c *Circuit) { c.logger = l }
}

// NewCircuit creates a circuit over f that takes hints from p
func NewCircuit(f core.HintField, p HintProvider, opts ...Option) *Circuit {
	c := &Circuit{field: f, provider: p, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Field returns the hint field
func (c *Circuit) Field() core.HintField { return c.field }

// Checks returns every evaluated constraint in emission order
func (c *Circuit) Checks() []Check { return append([]Check(nil), c.checks...) }

// Satisfied reports whether every constraint so far holds
func (c *Circuit) Satisfied() bool { return len(c.failures) == 0 }

// Err returns ErrUnsatisfiable naming the failed constraints, or nil
func (c *Circuit) Err() error {
	if c.Satisfied() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsatisfiable, strings.Join(c.failures, ", "))
}

func (c *Circuit) record(name string, ok bool) {
	c.checks = append(c.checks, Check{Name: name, Satisfied: ok})
	if !ok {
		c.failures = append(c.failures, name)
		c.logger.Warn().Str("field", c.field.Name()).Str("constraint", name).Msg("constraint not satisfied")
	}
}

// Fail records a constraint that cannot hold
func (c *Circuit) Fail(name string) { c.record(name, false) }

// AssertEqual emits a == b over the field
func (c *Circuit) AssertEqual(name string, a, b *uint256.Int) {
	c.record(name, c.field.Reduce(a).Eq(c.field.Reduce(b)))
}

// AssertTrue emits a constraint whose truth was computed by the caller from
// already constrained values.
func (c *Circuit) AssertTrue(name string, ok bool) { c.record(name, ok) }

// hint fetches an untrusted value. A provider error leaves the circuit
// unsatisfiable and yields zero so evaluation can continue.
func (c *Circuit) hint(kind HintKind, x *uint256.Int) *uint256.Int {
	req := HintRequest{Field: c.field.Name(), Kind: kind, Input: x.Clone()}
	h, err := c.provider.Hint(req)
	if err != nil || h == nil {
		c.logger.Warn().Err(err).Str("request", req.String()).Msg("hint unavailable")
		c.record("hint/"+kind.String(), false)
		return new(uint256.Int)
	}
	return h.Clone()
}
