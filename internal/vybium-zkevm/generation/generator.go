package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/core"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/cpu"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/utils"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/witness"
)

var (
	// ErrInvalidOpcode is returned for an opcode that does not decode in the
	// current mode, including syscalls the kernel does not serve
	ErrInvalidOpcode = errors.New("invalid opcode")

	// ErrInvalidJump is returned for a taken jump to anything but JUMPDEST
	ErrInvalidJump = errors.New("invalid jump destination")

	// ErrTraceTooLong is returned when execution does not halt within the
	// configured trace length
	ErrTraceTooLong = errors.New("trace too long")

	// ErrKernelFault is returned when kernel code misbehaves
	ErrKernelFault = errors.New("kernel fault")
)

// Outcome is how a transaction ended
type Outcome int

const (
	OutcomeStop Outcome = iota
	OutcomeOutOfGas
	OutcomeStackUnderflow
	OutcomeStackOverflow
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStop:
		return "stop"
	case OutcomeOutOfGas:
		return "out_of_gas"
	case OutcomeStackUnderflow:
		return "stack_underflow"
	case OutcomeStackOverflow:
		return "stack_overflow"
	}
	return "unknown"
}

func outcomeOf(f cpu.Flag) Outcome {
	switch f {
	case cpu.FlagExcOutOfGas:
		return OutcomeOutOfGas
	case cpu.FlagExcStackUnderflow:
		return OutcomeStackUnderflow
	case cpu.FlagExcStackOverflow:
		return OutcomeStackOverflow
	}
	return OutcomeStop
}

// HintRecord is what one hint syscall returned to its caller. Input is the
// argument reduced into the hint field.
type HintRecord struct {
	Routine string
	Kind    witness.HintKind
	Input   *uint256.Int
	Output  *uint256.Int
	Exists  bool
}

// Result is a generated, padded trace and what the run produced
type Result struct {
	Trace   *cpu.TraceTable
	Outcome Outcome
	Cycles  int
	Gas     uint64
	Stack   []uint256.Int

	Hints      []HintRecord
	Transcript []witness.Exchange
}

// Generator runs programs and records their CPU trace
type Generator struct {
	cfg      *utils.Config
	kernel   *Kernel
	field    core.HintField
	provider witness.HintProvider
	logger   zerolog.Logger
	air      *cpu.AIR
}

// Option configures a Generator
type Option func(*Generator)

// WithLogger sets the generator logger
func WithLogger(l zerolog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// WithHintProvider replaces the honest oracle
func WithHintProvider(p witness.HintProvider) Option {
	return func(g *Generator) { g.provider = p }
}

// WithKernel replaces the default kernel
func WithKernel(k *Kernel) Option {
	return func(g *Generator) { g.kernel = k }
}

// WithHintField overrides the configured hint field, for fields outside the
// registry such as small test fields
func WithHintField(f core.HintField) Option {
	return func(g *Generator) { g.field = f }
}

// NewGenerator creates a generator for cfg
func NewGenerator(cfg *utils.Config, opts ...Option) (*Generator, error) {
	if cfg == nil {
		cfg = utils.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	g := &Generator{cfg: cfg, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(g)
	}

	if g.field == nil {
		f, err := core.LookupField(cfg.HintField)
		if err != nil {
			return nil, err
		}
		g.field = f
	}
	if g.kernel == nil {
		k, err := AssembleKernel(g.field, DefaultRoutines...)
		if err != nil {
			return nil, err
		}
		g.kernel = k
	}
	if kf := g.kernel.Field(); kf != nil && kf.Name() != g.field.Name() {
		return nil, fmt.Errorf("kernel checks hints in %s, generator uses %s", kf.Name(), g.field.Name())
	}
	if g.provider == nil {
		g.provider = witness.NewOracleProvider(g.field)
	}

	air, err := cpu.BuildAIR(cpu.Params{
		GasAllocation:  cfg.GasAllocation,
		MaxStackLen:    uint64(cfg.MaxStackLen),
		MaxDegree:      cfg.MaxConstraintDegree,
		Syscalls:       g.kernel.Entries,
		SyscallEffects: g.kernel.Effects(),
		KernelCode:     g.kernel.Code,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build constraints: %w", err)
	}
	g.air = air
	return g, nil
}

// AIR returns the constraint system generated traces satisfy
func (g *Generator) AIR() *cpu.AIR { return g.air }

// Kernel returns the kernel the generator runs syscalls in
func (g *Generator) Kernel() *Kernel { return g.kernel }

// Config returns the generator configuration
func (g *Generator) Config() *utils.Config { return g.cfg }

// Run executes code from an empty stack until a terminal row and returns
// the padded trace.
func (g *Generator) Run(ctx context.Context, code []byte) (*Result, error) {
	recorder := witness.NewRecorder(g.provider)
	s := newState(g, code, witness.NewCircuit(g.field, recorder, witness.WithLogger(g.logger)))

	g.logger.Debug().Int("code_len", len(code)).Uint64("allocation", g.cfg.GasAllocation).Msg("transaction start")

	var terminal cpu.Flag
	for {
		if len(s.rows)%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		// the trace must still fit its padding row
		if len(s.rows)+1 >= g.cfg.MaxTraceLength {
			return nil, fmt.Errorf("%w: no terminal row within %d rows", ErrTraceTooLong, g.cfg.MaxTraceLength)
		}
		f, done, err := s.step()
		if err != nil {
			return nil, fmt.Errorf("row %d, pc %d: %w", len(s.rows), s.pc, err)
		}
		if done {
			terminal = f
			break
		}
	}

	trace := cpu.NewTraceTable(s.rows)
	cycles := len(s.rows)
	if err := trace.Pad(utils.NextPowerOfTwo(cycles + 1)); err != nil {
		return nil, err
	}

	res := &Result{
		Trace:      trace,
		Outcome:    outcomeOf(terminal),
		Cycles:     cycles,
		Gas:        s.gas,
		Stack:      append([]uint256.Int(nil), s.stack...),
		Hints:      s.hints,
		Transcript: recorder.Exchanges(),
	}
	g.logger.Debug().Str("outcome", res.Outcome.String()).Int("cycles", cycles).Int("rows", trace.Len()).
		Uint64("gas", res.Gas).Msg("transaction end")
	return res, nil
}
