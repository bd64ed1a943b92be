// loomrun hosts a LoomScript program: it opens a runtime, loads the main
// executable module and drives its frame loop.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/loomscript/manifest"
	"github.com/chazu/loomscript/native"
	"github.com/chazu/loomscript/vm"
)

func main() {
	dir := flag.String("C", ".", "Project directory searched for loom.toml / loom.yaml")
	binDir := flag.String("bin", "", "Directory holding executable modules (overrides the manifest)")
	ticks := flag.Int("ticks", -1, "Number of frames to run (overrides the manifest)")
	var validate optionalBool
	flag.Var(&validate, "validate", "Run the type validator after every load (-validate=false turns it off)")
	compileOnly := flag.Bool("compile-only", false, "Load catalogs without running any script code")
	verbosity := flag.Int("v", -1, "Log verbosity (overrides the manifest)")
	logPath := flag.String("log", "", "Write logs to a file instead of stderr")
	profile := flag.Bool("profile", false, "Print the most invoked methods on exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: loomrun [options] [main-assembly]\n\n")
		fmt.Fprintf(os.Stderr, "Loads a compiled LoomScript program and runs its frame loop.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  loomrun                      # Run the manifest's main assembly\n")
		fmt.Fprintf(os.Stderr, "  loomrun -ticks 60 Game       # Run bin/Game.loom for 60 frames\n")
		fmt.Fprintf(os.Stderr, "  loomrun -C ./demo -validate  # Use ./demo/loom.toml, validate types\n")
	}
	flag.Parse()

	cfg, err := manifest.FindAndLoad(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg == nil {
		cfg = manifest.Default()
	}
	applyFlags(cfg, *binDir, *ticks, *verbosity, validate, *compileOnly)
	if flag.NArg() > 0 {
		cfg.MainAssembly = flag.Arg(0)
	}
	if cfg.MainAssembly == "" {
		fmt.Fprintf(os.Stderr, "Error: no main assembly given and none set in the manifest\n")
		flag.Usage()
		os.Exit(2)
	}

	var path *string
	if *logPath != "" {
		path = logPath
	}
	commonlog.Configure(cfg.LogVerbosity, path)

	vm.SetCommandLine(os.Args)
	if err := run(cfg, *profile); err != nil {
		reportFatal(err)
		os.Exit(1)
	}
}

// optionalBool is a boolean flag that remembers whether it was given, so
// that either value can override the manifest.
type optionalBool struct {
	set, value bool
}

func (b *optionalBool) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	b.set, b.value = true, v
	return nil
}

func (b *optionalBool) String() string {
	if b == nil || !b.set {
		return ""
	}
	return strconv.FormatBool(b.value)
}

func (b *optionalBool) IsBoolFlag() bool { return true }

func applyFlags(cfg *manifest.Runtime, binDir string, ticks, verbosity int, validate optionalBool, compileOnly bool) {
	if binDir != "" {
		cfg.BinDir = binDir
		if binDir[len(binDir)-1] != os.PathSeparator {
			cfg.BinDir += string(os.PathSeparator)
		}
	}
	if ticks >= 0 {
		cfg.Ticks = ticks
	}
	if verbosity >= 0 {
		cfg.LogVerbosity = verbosity
	}
	if validate.set {
		cfg.ValidateTypes = validate.value
	}
	if compileOnly {
		cfg.CompileOnly = true
	}
}

// run opens a runtime, loads the main assembly and ticks it. Fatal
// runtime errors are returned as *vm.FatalError.
func run(cfg *manifest.Runtime, profile bool) error {
	s := vm.New(cfg, native.NewRegistry())
	return vm.Safely(func() {
		s.Open()
		defer s.Close()

		var p *vm.Profiler
		if profile {
			p = s.EnableProfiler()
		}

		s.LoadExecutableAssembly(cfg.MainAssembly, false)
		if cfg.CompileOnly {
			return
		}
		for i := 0; i < cfg.Ticks; i++ {
			s.Tick()
		}

		if p != nil {
			printProfile(p)
		}
	})
}

func printProfile(p *vm.Profiler) {
	stats := p.Stats()
	fmt.Printf("%d methods profiled, %d script calls, %d native calls, %d untracked\n",
		stats.TotalMethods, stats.ScriptInvocations, stats.NativeInvocations, stats.UntrackedCalls)
	for _, m := range p.TopMethods(10) {
		fmt.Printf("  %8d  %s\n", p.GetMethodProfile(m).InvocationCount, m.FullMemberName())
	}
}

// reportFatal prints the error report. The report lines were already
// logged, so on a terminal only the message is repeated.
func reportFatal(err error) {
	fe, ok := err.(*vm.FatalError)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		fmt.Fprintf(os.Stderr, "\x1b[31mfatal:\x1b[0m %s\n", fe.Message)
		return
	}
	for _, line := range fe.Report {
		fmt.Fprintln(os.Stderr, line)
	}
}
