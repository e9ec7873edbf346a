package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pboyd/retext"
	"github.com/pboyd/retext/apis"
	"github.com/pboyd/retext/config"
	"github.com/pboyd/retext/descriptor"
	"github.com/pboyd/retext/discovery"
	"github.com/pboyd/retext/internal/logging"
	"github.com/pboyd/retext/resolver"
	"github.com/pboyd/retext/typesys"
)

// ExitError carries the process exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

const usage = `retext - check runtime translation patches.

Usage:
  retext lint [options] ROOT...
  retext match -type TYPE -method METHOD -text TEXT [options] ROOT...
  retext plan -types MODEL.yaml [options] ROOT...

Every directory under a ROOT is a module. Descriptors are read from each
module's patch directory.
`

// command adds its own flags to fs and returns the function that runs it.
type command func(fs *flag.FlagSet) func(e *env, args []string) error

var commands = map[string]command{
	"lint":  lintCommand,
	"match": matchCommand,
	"plan":  planCommand,
}

// env is what every command gets after the common flags are handled.
type env struct {
	out io.Writer
	cfg *config.Config
	log *slog.Logger
}

type commonFlags struct {
	config    string
	logLevel  string
	logFormat string
	workers   int
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.config, "config", "", "Path to a TOML configuration file.")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn or error.")
	fs.StringVar(&c.logFormat, "log-format", "", "Log format: text or json.")
	fs.IntVar(&c.workers, "workers", 0, "Number of modules scanned at once. 0 uses half the CPUs.")
}

func (c *commonFlags) env(out, logW io.Writer) (*env, error) {
	cfg := config.Default()
	if c.config != "" {
		var err error
		cfg, err = config.Load(c.config)
		if err != nil {
			return nil, &ExitError{Code: 2, Message: err.Error()}
		}
	}

	cfg.Apply(config.WithLog(c.logLevel, c.logFormat))
	if c.workers > 0 {
		cfg.Apply(config.WithWorkers(c.workers))
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}

	return &env{
		out: out,
		cfg: cfg,
		log: logging.New(cfg.Log.Level, cfg.Log.Format, logW),
	}, nil
}

func run(out, logW io.Writer, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return &ExitError{Code: 2, Message: "missing command"}
	}

	name := args[0]
	switch name {
	case "help", "-h", "-help", "--help":
		fmt.Fprint(out, usage)
		return nil
	}

	cmd, ok := commands[name]
	if !ok {
		return &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", name)}
	}

	fs := flag.NewFlagSet("retext "+name, flag.ContinueOnError)
	fs.SetOutput(out)
	var common commonFlags
	common.register(fs)
	runCmd := cmd(fs)

	if err := fs.Parse(args[1:]); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return &ExitError{Code: 2, Message: err.Error()}
	}

	e, err := common.env(out, logW)
	if err != nil {
		return err
	}
	return runCmd(e, fs.Args())
}

// roots returns the command line roots, or the configured ones.
func (e *env) roots(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if len(e.cfg.Discovery.Roots) > 0 {
		return e.cfg.Discovery.Roots, nil
	}
	return nil, &ExitError{Code: 2, Message: "no roots given"}
}

func (e *env) scan(args []string) (*discovery.Result, error) {
	roots, err := e.roots(args)
	if err != nil {
		return nil, err
	}
	return discovery.Scan(context.Background(), roots, e.cfg.DiscoveryOptions(e.log))
}

func lintCommand(*flag.FlagSet) func(*env, []string) error {
	return runLint
}

func runLint(e *env, args []string) error {
	result, err := e.scan(args)
	if err != nil {
		return err
	}

	for _, f := range result.Files {
		fmt.Fprintf(e.out, "%s: %d patches, %d entries\n", f.Path, len(f.Patches), f.Entries())
		for _, err := range f.Errs {
			fmt.Fprintf(e.out, "  error: %v\n", err)
		}
		for _, w := range f.Warnings {
			fmt.Fprintf(e.out, "  warning: %s\n", w)
		}
	}
	for _, err := range result.Errs {
		fmt.Fprintf(e.out, "error: %v\n", err)
	}

	malformed := len(result.Malformed())
	fmt.Fprintf(e.out, "%d files, %d malformed entries\n", len(result.Files), malformed)
	if malformed > 0 || len(result.Errs) > 0 {
		return &ExitError{Code: 1}
	}
	return nil
}

type matchOptions struct {
	typeName, method, module, text string
}

func matchCommand(fs *flag.FlagSet) func(*env, []string) error {
	var o matchOptions
	fs.StringVar(&o.typeName, "type", "", "Declared type name.")
	fs.StringVar(&o.method, "method", "", "Declared method name.")
	fs.StringVar(&o.module, "module", "", "Module hint.")
	fs.StringVar(&o.text, "text", "", "Text to translate.")
	return func(e *env, args []string) error {
		return runMatch(e, o, args)
	}
}

func runMatch(e *env, o matchOptions, args []string) error {
	if o.typeName == "" || o.method == "" {
		return &ExitError{Code: 2, Message: "-type and -method are required"}
	}

	result, err := e.scan(args)
	if err != nil {
		return err
	}

	// Register every descriptor for the target under one ordinary method,
	// the way the engine would after resolving it.
	var patches []descriptor.Patch
	for _, p := range result.Patches() {
		if p.Type != o.typeName || p.Method != o.method {
			continue
		}
		if o.module != "" && p.Module != "" && p.Module != o.module {
			continue
		}
		p.Module = ""
		patches = append(patches, p)
	}

	model := typesys.New()
	model.Type("", o.typeName).Method(o.method, apis.ShapeOrdinary)
	engine := retext.New(model, nil, retext.WithLogger(e.log))
	engine.Apply(context.Background(), patches)

	if s, ok := engine.Match(apis.NewUnitID(o.typeName, o.method), o.text); ok {
		fmt.Fprintln(e.out, s)
	} else {
		fmt.Fprintln(e.out, "no match")
	}
	return nil
}

func planCommand(fs *flag.FlagSet) func(*env, []string) error {
	types := fs.String("types", "", "YAML type model to resolve against.")
	return func(e *env, args []string) error {
		return runPlan(e, *types, args)
	}
}

func runPlan(e *env, types string, args []string) error {
	if types == "" {
		return &ExitError{Code: 2, Message: "-types is required"}
	}
	model, err := typesys.LoadFile(types)
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}

	result, err := e.scan(args)
	if err != nil {
		return err
	}

	r := resolver.New(model, e.cfg.ResolverOptions(e.log)...)

	var resolved, degraded, notFound int
	units := map[apis.UnitID]bool{}
	for _, p := range result.Patches() {
		u, err := r.Resolve(p.Type, p.Method, p.Module)
		if err != nil {
			notFound++
			fmt.Fprintf(e.out, "%s: %v\n", p.Target(), err)
			continue
		}
		resolved++
		units[u.ID()] = true

		var notes []string
		if u.Substituted {
			notes = append(notes, "substituted")
		}
		if u.Degraded {
			degraded++
			notes = append(notes, "degraded")
		}
		line := fmt.Sprintf("%s -> %s", p.Target(), u.ID())
		if len(notes) > 0 {
			line += " (" + strings.Join(notes, ", ") + ")"
		}
		fmt.Fprintln(e.out, line)
	}

	fmt.Fprintf(e.out, "%d targets, %d resolved, %d degraded, %d not found, %d units\n",
		resolved+notFound, resolved, degraded, notFound, len(units))
	return nil
}
