package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"go/format"
	"go/token"
	"io/ioutil"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gleelang/glee"
	"github.com/gleelang/glee/config"
	"github.com/gleelang/glee/go/ast/astutil"
	"github.com/gleelang/glee/z3"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

var (
	SymbolicTestPrefix = "SymbolicTest"
)

// GenerateCommand represents a command for generating test cases.
type GenerateCommand struct{}

// NewGenerateCommand returns a new instance of GenerateCommand.
func NewGenerateCommand() *GenerateCommand {
	return &GenerateCommand{}
}

// Run executes the "generate" subcommand.
func (cmd *GenerateCommand) Run(ctx context.Context, args []string) error {
	// A run file, if named by -config, loads first and acts as the base;
	// any flag actually passed on the command line below overrides it.
	cfg := config.DefaultEngineConfig()
	if path := configPathArg(args); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = *loaded
	}

	fs := flag.NewFlagSet("glee-generate", flag.ContinueOnError)
	fs.String("config", "", "path to a YAML run config; flags passed alongside it take precedence")
	cfg.RegisterFlags(fs)
	fs.Usage = cmd.usage
	if err := fs.Parse(args); err != nil {
		return err
	} else if fs.NArg() == 0 {
		return fmt.Errorf("package required")
	} else if fs.NArg() > 1 {
		return fmt.Errorf("too many packages specified")
	}

	log.SetFlags(0)
	if !cfg.Verbose {
		log.SetOutput(ioutil.Discard)
	}

	// Load the initial set of packages.
	initial, err := packages.Load(&packages.Config{
		Mode:  packages.LoadAllSyntax,
		Tests: true,
	}, fs.Args()...)
	if err != nil {
		return err
	} else if packages.PrintErrors(initial) > 0 {
		return fmt.Errorf("packages contain errors")
	}

	// Build program in SSA form.
	prog, pkgs := ssautil.AllPackages(initial, ssa.BuilderMode(0))
	for i, pkg := range pkgs {
		if pkg == nil {
			return fmt.Errorf("cannot build SSA for package %s", initial[i])
		}
		pkg.SetDebugMode(true)
	}
	prog.Build()

	// Ensure program depends on runtime package.
	if prog.ImportedPackage("runtime") == nil {
		return fmt.Errorf("program does not depend on runtime")
	}

	// TODO: Execute existing tests to determine test coverage.

	// Find matching glee test cases.
	var fns []*ssa.Function
	for _, pkg := range pkgs {
		for _, m := range pkg.Members {
			if m, ok := m.(*ssa.Function); ok && strings.HasPrefix(m.Name(), SymbolicTestPrefix) {
				fns = append(fns, m)
			}
		}
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].Name() < fns[j].Name() })

	// Execute functions using the symbolic execution engine.
	for _, fn := range fns {
		if err := cmd.generateFunction(ctx, fn, &cfg); err != nil {
			return err
		}
	}
	return nil
}

// configPathArg scans args for a -config flag without fully parsing them,
// since the loaded run file's values must be registered as flag defaults
// before the real flag.FlagSet parses the rest of args.
func configPathArg(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "-config" || arg == "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(arg, "-config="):
			return strings.TrimPrefix(arg, "-config=")
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}

// dumpStateDOT writes state's constraint set as a Graphviz dump to
// <dir>/state<id>.dot, creating dir if necessary.
func dumpStateDOT(dir string, state *glee.ExecutionState) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, fmt.Sprintf("state%d.dot", state.ID())))
	if err != nil {
		return err
	}
	defer f.Close()

	return glee.DumpDOTAll(f, state.Constraints())
}

// generateFunction performs symbolic execution over a function and generates test cases.
func (cmd *GenerateCommand) generateFunction(ctx context.Context, fn *ssa.Function, cfg *config.EngineConfig) error {
	var buf bytes.Buffer
	format.Node(&buf, token.NewFileSet(), fn.Syntax())

	log.Printf("[begin]")
	log.Print(buf.String())

	z3Solver := z3.NewSolver()
	defer z3Solver.Close()

	e := glee.NewExecutor(fn)
	e.Solver = glee.NewSolverChain(z3Solver, cfg.DebugCheckWitness, cfg.SolverTimeout)
	e.MaxForks = cfg.MaxForks
	e.MaxInstructions = cfg.MaxInstructions
	e.MaxTime = cfg.MaxTime
	e.VerboseAddressInfo = cfg.VerboseAddressInfo
	e.MaxDepth = cfg.MaxDepth
	e.MaxMemory = cfg.MaxMemory
	e.MaxMemoryInhibit = cfg.MaxMemoryInhibit
	e.MaxStackFrames = cfg.MaxStackFrames
	e.MaxSymArraySize = cfg.MaxSymArraySize
	e.SimplifySymIndices = cfg.SimplifySymIndices
	e.ExternalCalls = cfg.ExternalCalls
	e.ExitOnErrorType = glee.Reason(cfg.ExitOnErrorType)
	e.Rand = rand.New(rand.NewSource(cfg.Seed))
	e.RootState().ConstraintManager().EqualitySubstitution = cfg.EqualitySubstitution
	e.RootState().ConstraintManager().RewriteEqualities = cfg.RewriteEqualities

	for {
		state, err := e.ExecuteNextState()
		if err == glee.ErrNoStateAvailable {
			break
		} else if err != nil {
			return err
		}

		// Report when a new state occurs.
		if !state.Terminated() {
			fmt.Printf("non-terminal state#%d\n", state.ID())
			fmt.Println("")
			continue
		}

		// If we reach a terminal state then generate test case from solution.
		fmt.Printf("terminal state#%d\n", state.ID())

		if cfg.DebugPrintInstructionsDir != "" {
			if err := dumpStateDOT(cfg.DebugPrintInstructionsDir, state); err != nil {
				return err
			}
		}

		// Copy the AST node for the function.
		syntax := astutil.Clone(fn.Syntax())

		// TODO: Rewrite symbolic results.
		arrays, values, err := state.Values()
		for i, array := range arrays {
			value := values[i]
			fmt.Printf("%s => %x\n", array.String(), value)
		}

		// Print new test case.
		format.Node(os.Stdout, token.NewFileSet(), syntax)
	}

	log.Print("[end]")
	log.Print("")

	return nil
}

func (cmd *GenerateCommand) usage() {
	fmt.Fprintln(os.Stderr, `
usage: glee generate [arguments] [package]

Arguments:

	-config PATH
	    Load options from a YAML run config. Flags passed alongside it
	    take precedence over the loaded values.

	-v
	    Enable verbose logging.

	-max-forks N
	    Limit the number of states created over the run.

	-max-instructions N
	    Limit the number of instructions executed per run.

	-max-time DURATION
	    Limit wall-clock time per run, e.g. "30s".

	-debug-check-witness
	    Verify every solver answer against its own constraints.

	-verbose-address-info
	    Include a solver witness and live allocation list in
	    pointer-error diagnostics.

	-debug-print-instructions DIR
	    Write a Graphviz .dot dump of each terminal state's constraints
	    to DIR.

	-max-depth N
	    Limit the symbolic-branch depth per path.

	-max-memory MB
	    Limit the live heap megabytes of the executing state.

	-max-memory-inhibit
	    At the memory cap, inhibit forking instead of killing a state
	    at random.

	-max-stack-frames N
	    Abort a state whose call stack exceeds this many frames.

	-max-sym-array-size N
	    Concretize a symbolic index into an array of more than N elements.

	-simplify-sym-indices
	    Simplify array/slice addresses against learned equalities
	    before bounds-checking.

	-equality-substitution
	    Learn equalities of the form k == x from constraints.

	-rewrite-equalities
	    Substitute learned equalities back into existing constraints.

	-external-calls {none,concrete,all}
	    Policy for calls to functions with no SSA body.

	-exit-on-error-type REASON
	    Halt the run after the first state terminates with REASON,
	    e.g. "ptr".

	-seed N
	    Seed the engine's pseudo-random tie-breaks.

	-solver-timeout DURATION
	    Limit wall-clock time per solver query, e.g. "10s".
`[1:])
}
