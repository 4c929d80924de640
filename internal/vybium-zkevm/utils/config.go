package utils

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"reflect"

	"github.com/naoina/toml"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"
)

const (
	// GasBound is the exclusive bound every gas value is re-checked against
	// at syscall boundaries.
	GasBound uint64 = 1 << 32

	// MaxNativeCost is the largest declared cost of a single native instruction.
	MaxNativeCost uint64 = 10
)

// Config holds the parameters of one trace generation run
type Config struct {
	// Transaction parameters
	GasAllocation uint64 // Read-only gas bound fixed by kernel setup

	// Machine parameters
	MaxStackLen    int // Depth above which a push faults with stack overflow
	MaxTraceLength int // Hard cap on unpadded rows

	// Constraint system parameters
	MaxConstraintDegree int // Degree ceiling every constraint must respect

	// Hints
	HintField string // Default field for prover_input requests

	// Transcript hash: "sha3" or "sha256"
	HashFunction string

	// Number of goroutines used to check rows; 0 means one per CPU
	Parallelism int
}

// DefaultConfig returns the configuration used by the CLI and the tests
func DefaultConfig() *Config {
	return &Config{
		GasAllocation:       21000,
		MaxStackLen:         1024,
		MaxTraceLength:      1 << 20,
		MaxConstraintDegree: 3,
		HintField:           "secp256k1_base",
		HashFunction:        "sha3",
		Parallelism:         0,
	}
}

// Keys in config files are the exported field names, unknown keys are rejected.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// LoadConfig reads a TOML file on top of DefaultConfig
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := tomlSettings.NewDecoder(bytes.NewReader(data)).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.GasAllocation >= GasBound {
		return fmt.Errorf("gas allocation %d must be below 2^32", c.GasAllocation)
	}

	if c.MaxStackLen <= 0 {
		return fmt.Errorf("max stack length must be positive")
	}

	if c.MaxTraceLength <= 0 {
		return fmt.Errorf("max trace length must be positive")
	}

	if c.MaxConstraintDegree < 2 {
		return fmt.Errorf("max constraint degree must be at least 2, got %d", c.MaxConstraintDegree)
	}

	if c.HashFunction != "sha256" && c.HashFunction != "sha3" {
		return fmt.Errorf("hash function must be 'sha256' or 'sha3', got '%s'", c.HashFunction)
	}

	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative")
	}

	return c.checkGasHeadroom()
}

// checkGasHeadroom re-derives the accumulator bound: the largest gas value a
// trace can reach is a syscall-reported value below 2^32 plus the native
// charges of every remaining row. That sum must stay below the trace field
// modulus so the gas column never wraps.
func (c *Config) checkGasHeadroom() error {
	reach := new(big.Int).SetUint64(MaxNativeCost)
	reach.Mul(reach, big.NewInt(int64(c.MaxTraceLength)))
	reach.Add(reach, new(big.Int).SetUint64(GasBound))

	modulus := new(big.Int).SetUint64(field.P)
	if reach.Cmp(modulus) >= 0 {
		return fmt.Errorf("max trace length %d lets gas reach %s, not below field modulus %s",
			c.MaxTraceLength, reach, modulus)
	}
	return nil
}

// WithGasAllocation sets the gas allocation
func (c *Config) WithGasAllocation(gas uint64) *Config {
	c.GasAllocation = gas
	return c
}

// WithMaxStackLen sets the stack overflow bound
func (c *Config) WithMaxStackLen(n int) *Config {
	c.MaxStackLen = n
	return c
}

// WithMaxTraceLength sets the row cap
func (c *Config) WithMaxTraceLength(n int) *Config {
	c.MaxTraceLength = n
	return c
}

// WithMaxConstraintDegree sets the degree ceiling
func (c *Config) WithMaxConstraintDegree(d int) *Config {
	c.MaxConstraintDegree = d
	return c
}

// WithHintField sets the default prover_input field
func (c *Config) WithHintField(name string) *Config {
	c.HintField = name
	return c
}

// WithHashFunction sets the transcript hash
func (c *Config) WithHashFunction(hashFunc string) *Config {
	c.HashFunction = hashFunc
	return c
}

// WithParallelism sets the number of row-checking goroutines
func (c *Config) WithParallelism(n int) *Config {
	c.Parallelism = n
	return c
}

// Clone creates a copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
