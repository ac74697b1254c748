// Package config holds the resource limits and solver options exposed by
// glee generate's CLI surface, loadable from flags or from an on-disk YAML
// run file.
package config

import (
	"flag"
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v2"
)

// EngineConfig mirrors the resource-limit and solver-option fields wired
// into glee.Executor by cmd/glee/generate.go. Kept as its own struct (rather
// than flags read directly into glee.Executor) so the same values can come
// from either a flag.FlagSet or a YAML run file, matching KLEE's convention
// of accepting the same options via CLI flag or a saved run config.
type EngineConfig struct {
	Verbose            bool          `yaml:"verbose"`
	MaxForks           int           `yaml:"max_forks"`
	MaxInstructions    int           `yaml:"max_instructions"`
	MaxTime            time.Duration `yaml:"max_time"`
	DebugCheckWitness  bool          `yaml:"debug_check_witness"`
	VerboseAddressInfo bool          `yaml:"verbose_address_info"`

	// MaxDepth caps the symbolic-branch depth per path (0 means unlimited).
	MaxDepth int `yaml:"max_depth"`

	// MaxMemory caps the live heap of the state being executed, in
	// megabytes (0 means unlimited); heaps are not summed across states. MaxMemoryInhibit switches the cap's enforcement
	// from "kill a state at random" (the default) to "inhibit forking".
	MaxMemory        int  `yaml:"max_memory"`
	MaxMemoryInhibit bool `yaml:"max_memory_inhibit"`

	// MaxStackFrames aborts a state whose call stack exceeds this depth (0
	// means unlimited).
	MaxStackFrames int `yaml:"max_stack_frames"`

	// MaxSymArraySize concretizes a symbolic index into an array with more
	// than this many elements, rather than forking the bounds check on it
	// (0 means never concretize).
	MaxSymArraySize int `yaml:"max_sym_array_size"`

	// SimplifySymIndices pre-simplifies array/slice addresses against the
	// constraint manager's learned equalities before bounds-checking them.
	SimplifySymIndices bool `yaml:"simplify_sym_indices"`

	// EqualitySubstitution and RewriteEqualities gate the constraint
	// manager's §4.2 equality-learning and rewrite passes. Both default to
	// true (see DefaultEngineConfig), matching KLEE's cl::opt defaults.
	EqualitySubstitution bool `yaml:"equality_substitution"`
	RewriteEqualities    bool `yaml:"rewrite_equalities"`

	// ExternalCalls selects the policy for calls to functions with no SSA
	// body: "none" (default), "concrete", or "all".
	ExternalCalls string `yaml:"external_calls"`

	// ExitOnErrorType halts the whole run after the first state terminates
	// with this Reason, e.g. "ptr" or "assert". Empty disables it.
	ExitOnErrorType string `yaml:"exit_on_error_type"`

	// Seed seeds the engine's deterministic pseudo-random choices (fork
	// inhibition tie-breaks, select-case arbitration, --max-memory's
	// random-kill victim).
	Seed int64 `yaml:"seed"`

	// DebugPrintInstructionsDir, when non-empty, makes every terminal state
	// write a Graphviz dump of its constraint set to <dir>/state<id>.dot.
	DebugPrintInstructionsDir string `yaml:"debug_print_instructions_dir"`

	// SolverTimeout bounds every individual solver query (§5 "Failure of
	// solver"). Zero disables the bound entirely.
	SolverTimeout time.Duration `yaml:"solver_timeout"`
}

// DefaultEngineConfig returns an EngineConfig with the same defaults KLEE
// ships (both equality options on, external calls refused, seed 1 for
// reproducibility). Load's caller should start from this rather than the
// zero value, since a zero-value bool would silently flip
// EqualitySubstitution/RewriteEqualities off.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		EqualitySubstitution: true,
		RewriteEqualities:    true,
		ExternalCalls:        "none",
		Seed:                 1,
	}
}

// RegisterFlags binds fs's flags to c's fields, using c's current values as
// defaults. Call this after Load so a YAML run file's values act as the
// base and any flag actually passed on the command line overrides them.
func (c *EngineConfig) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.Verbose, "v", c.Verbose, "verbose")
	fs.IntVar(&c.MaxForks, "max-forks", c.MaxForks, "maximum number of states created over the run, terminated ones included (0 means unlimited)")
	fs.IntVar(&c.MaxInstructions, "max-instructions", c.MaxInstructions, "maximum number of instructions to execute per run (0 means unlimited)")
	fs.DurationVar(&c.MaxTime, "max-time", c.MaxTime, `maximum wall-clock time per run, e.g. "30s" (0 means unlimited)`)
	fs.BoolVar(&c.DebugCheckWitness, "debug-check-witness", c.DebugCheckWitness, "verify every solver answer against its own constraints")
	fs.BoolVar(&c.VerboseAddressInfo, "verbose-address-info", c.VerboseAddressInfo, "include a solver witness and live allocation list in pointer-error diagnostics")
	fs.StringVar(&c.DebugPrintInstructionsDir, "debug-print-instructions", c.DebugPrintInstructionsDir, "write a Graphviz .dot dump of each terminal state's constraints to this directory")
	fs.IntVar(&c.MaxDepth, "max-depth", c.MaxDepth, "maximum symbolic-branch depth per path (0 means unlimited)")
	fs.IntVar(&c.MaxMemory, "max-memory", c.MaxMemory, "maximum live heap megabytes of the executing state (0 means unlimited)")
	fs.BoolVar(&c.MaxMemoryInhibit, "max-memory-inhibit", c.MaxMemoryInhibit, "at the memory cap, inhibit forking instead of killing a state at random")
	fs.IntVar(&c.MaxStackFrames, "max-stack-frames", c.MaxStackFrames, "abort a state whose call stack exceeds this many frames (0 means unlimited)")
	fs.IntVar(&c.MaxSymArraySize, "max-sym-array-size", c.MaxSymArraySize, "concretize a symbolic index into an array with more than this many elements (0 disables)")
	fs.BoolVar(&c.SimplifySymIndices, "simplify-sym-indices", c.SimplifySymIndices, "simplify array/slice addresses against learned equalities before bounds-checking")
	fs.BoolVar(&c.EqualitySubstitution, "equality-substitution", c.EqualitySubstitution, "learn equalities of the form k == x from constraints (§4.2)")
	fs.BoolVar(&c.RewriteEqualities, "rewrite-equalities", c.RewriteEqualities, "substitute learned equalities back into constraints already in the set")
	fs.StringVar(&c.ExternalCalls, "external-calls", c.ExternalCalls, `policy for calls with no SSA body: "none", "concrete", or "all"`)
	fs.StringVar(&c.ExitOnErrorType, "exit-on-error-type", c.ExitOnErrorType, `halt the run after the first state terminates with this reason, e.g. "ptr"`)
	fs.Int64Var(&c.Seed, "seed", c.Seed, "seed the engine's pseudo-random tie-breaks")
	fs.DurationVar(&c.SolverTimeout, "solver-timeout", c.SolverTimeout, `maximum time per solver query, e.g. "10s" (0 means unlimited)`)
}

// Load reads an EngineConfig from a YAML run file at path. Unset fields
// keep DefaultEngineConfig's values, so a run file only needs to mention
// the options it wants to override.
func Load(path string) (*EngineConfig, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c := DefaultEngineConfig()
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
