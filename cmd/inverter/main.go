package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/edp1096/invertermodel/internal/ctxlog"
	"github.com/edp1096/invertermodel/pkg/analysis"
	"github.com/edp1096/invertermodel/pkg/device"
	"github.com/edp1096/invertermodel/pkg/netlist"
	"github.com/edp1096/invertermodel/pkg/util"
)

// exitError carries a process exit code back to main.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

type config struct {
	path      string
	logLevel  string
	logFormat string
	plotPath  string
	noTotals  bool
	listTypes bool
}

func parseArgs(args []string, outW io.Writer) (*config, bool, error) {
	fs := flag.NewFlagSet("inverter", flag.ContinueOnError)
	fs.SetOutput(outW)
	fs.Usage = func() {
		fmt.Fprint(outW, `
inverter - evaluate an inverter model and its total derivatives.

Usage:
  inverter [options] MODEL.hcl

Options:
`)
		fs.PrintDefaults()
	}

	cfg := &config{}
	fs.StringVar(&cfg.path, "f", "", "Path to the model file.")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Logging level: 'debug', 'info', 'warn' or 'error'.")
	fs.StringVar(&cfg.logFormat, "log-format", "text", "Log output format: 'text' or 'json'.")
	fs.StringVar(&cfg.plotPath, "plot", "", "Write the Newton convergence plot to this file (png, svg or pdf).")
	fs.BoolVar(&cfg.noTotals, "no-totals", false, "Skip the totals block of the model file.")
	fs.BoolVar(&cfg.listTypes, "types", false, "List the component types and exit.")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &exitError{code: 2, msg: err.Error()}
	}
	if cfg.listTypes {
		return cfg, false, nil
	}

	if cfg.path == "" && fs.NArg() > 0 {
		cfg.path = fs.Arg(0)
	}
	if cfg.path == "" {
		fs.Usage()
		return nil, true, nil
	}

	cfg.logFormat = strings.ToLower(cfg.logFormat)
	if cfg.logFormat != "text" && cfg.logFormat != "json" {
		return nil, false, &exitError{code: 2, msg: "invalid log-format: must be 'text' or 'json'"}
	}
	cfg.logLevel = strings.ToLower(cfg.logLevel)
	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &exitError{code: 2, msg: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	return cfg, false, nil
}

func newLogger(levelStr, formatStr string, w io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if formatStr == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func run(outW, errW io.Writer, args []string) error {
	cfg, exit, err := parseArgs(args, outW)
	if err != nil || exit {
		return err
	}
	if cfg.listTypes {
		for _, t := range append(device.Types(), "inverter") {
			fmt.Fprintln(outW, t)
		}
		return nil
	}

	logger := newLogger(cfg.logLevel, cfg.logFormat, errW)
	ctx := ctxlog.WithLogger(context.Background(), logger)

	model, err := netlist.Load(ctx, cfg.path)
	if err != nil {
		return err
	}
	p, err := model.Problem(ctx)
	if err != nil {
		return err
	}

	logger.Info("Evaluating model.", "model", model.Name, "blocks", len(p.Plan().Blocks()))
	results, err := p.Evaluate(ctx)
	if err != nil {
		return err
	}
	printResults(outW, p, results)

	for _, block := range p.State().Blocks() {
		logger.Info("Block converged.", "block", block, "iterations", p.State().Iterations(block))
	}

	if model.Totals != nil && !cfg.noTotals {
		jac, err := p.TotalDerivatives(ctx, model.Totals.Of, model.Totals.Wrt)
		if err != nil {
			return err
		}
		printTotals(outW, jac)
	}

	if cfg.plotPath != "" {
		if err := util.PlotConvergence(p.State().Histories(), model.Name, cfg.plotPath); err != nil {
			return err
		}
		logger.Info("Convergence plot written.", "path", cfg.plotPath)
	}
	return nil
}

func printResults(w io.Writer, p *analysis.Problem, results map[string][]float64) {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "\nResults:")
	fmt.Fprintln(w, "========")
	for _, name := range names {
		unit := ""
		if v, err := p.Plan().Lookup(name); err == nil && v.Unit.Family() != "dimensionless" {
			unit = v.Unit.String()
		}
		vals := make([]string, len(results[name]))
		for i, x := range results[name] {
			vals[i] = util.FormatValueFactor(x, unit)
		}
		fmt.Fprintf(w, "%-48s %s\n", name, strings.Join(vals, ", "))
	}
}

func printTotals(w io.Writer, jac *analysis.Jacobian) {
	fmt.Fprintln(w, "\nTotal derivatives:")
	fmt.Fprintln(w, "==================")
	for _, of := range jac.Of {
		for _, wrt := range jac.Wrt {
			d, _ := jac.Get(of, wrt)
			rows, cols := d.Dims()
			for i := range rows {
				for j := range cols {
					fmt.Fprintf(w, "d %-28s / d %-28s %s\n", index(of, i, rows), index(wrt, j, cols), util.FormatMagnitude(d.At(i, j)))
				}
			}
		}
	}
}

func index(name string, i, n int) string {
	if n == 1 {
		return name
	}
	return fmt.Sprintf("%s[%d]", name, i)
}
