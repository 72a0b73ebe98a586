package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"canlog/internal/app"
	"canlog/internal/config"
	"canlog/internal/export"
	"canlog/internal/logfile"
	"canlog/internal/telemetry"
)

var version = "dev"

const usage = `canlog reconstructs telemetry logs into forward-filled tables.

Usage:
  canlog columns <log> [flags]            list the columns a log contains
  canlog convert <log> [-o out.csv] [flags]
                                          reconstruct a log into CSV
  canlog compact <in> <out> [flags]       re-encode and compress a log
  canlog jobs list                        list saved conversion jobs
  canlog jobs run <job-id>                run a saved job now
  canlog serve                            run scheduled and file-watch jobs
  canlog mcp                              serve the MCP tools on stdio
  canlog version

Run "canlog <command> --help" for the flags of a command.
`

func main() {
	log.SetFlags(log.LstdFlags)
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "canlog: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("no command given")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "columns":
		return runColumns(ctx, rest)
	case "convert":
		return runConvert(ctx, rest)
	case "compact":
		return runCompact(ctx, rest)
	case "jobs":
		return runJobs(ctx, rest)
	case "serve":
		return runServe(ctx, rest)
	case "mcp":
		return runMCP(ctx, rest)
	case "version", "--version":
		fmt.Println("canlog", version)
		return nil
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// newFlagSet returns a flag set carrying the shared config flags.
func newFlagSet(name string) (*pflag.FlagSet, *config.Flags) {
	fs := pflag.NewFlagSet("canlog "+name, pflag.ContinueOnError)
	return fs, config.RegisterFlags(fs)
}

// parse parses args and loads the layered config. It returns the
// positional arguments, or pflag.ErrHelp after printing help.
func parse(fs *pflag.FlagSet, cf *config.Flags, args []string, positional int) (*config.Config, []string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() != positional {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
		return nil, nil, fmt.Errorf("expected %d argument(s), got %d", positional, fs.NArg())
	}
	cfg, err := cf.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, fs.Args(), nil
}

// ── One-off commands ───────────────────────────────────────

func openLog(path, format string, cfg *config.Config) (telemetry.Source, error) {
	src, err := logfile.Open(path, format)
	if err != nil {
		return nil, err
	}
	return logfile.Sequenced(src, cfg.ReorderWindow), nil
}

func runColumns(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("columns")
	format := fs.String("format", "", "log format (default: detect from extension)")
	cfg, pos, err := parse(fs, cf, args, 1)
	if err != nil {
		return ignoreHelp(err)
	}

	src, err := openLog(pos[0], *format, cfg)
	if err != nil {
		return err
	}
	schema, err := telemetry.Discover(ctx, src, cfg.Options())
	if err != nil {
		return err
	}
	for _, name := range schema.Names() {
		fmt.Println(name)
	}
	fmt.Fprintf(os.Stderr, "%d columns, %d of %d messages relevant\n",
		len(schema.Columns), schema.Relevant, schema.Messages)
	return nil
}

func runConvert(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("convert")
	format := fs.String("format", "", "log format (default: detect from extension)")
	output := fs.StringP("output", "o", "-", "CSV output file, - for stdout")
	selected := fs.StringArrayP("select", "s", nil, "column name or glob pattern to keep (repeatable)")
	keepRepeats := fs.Bool("keep-repeats", false, "emit a row for every message, even if nothing changed")
	skipBad := fs.Bool("skip-bad", false, "skip malformed messages instead of failing")
	cfg, pos, err := parse(fs, cf, args, 1)
	if err != nil {
		return ignoreHelp(err)
	}

	src, err := openLog(pos[0], *format, cfg)
	if err != nil {
		return err
	}
	opts := cfg.Options()
	opts.KeepRepeats = *keepRepeats
	if *skipBad {
		opts.OnMessageError = func(e *telemetry.MessageError) error {
			log.Printf("convert: skipping %v", e)
			return nil
		}
	}

	start := time.Now()
	schema, table, err := telemetry.Convert(ctx, src, *selected, opts)
	if err != nil {
		return err
	}

	n, err := writeCSVFile(ctx, *output, table)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d rows x %d columns from %d messages in %s\n",
		n, len(table.Columns), schema.Messages, time.Since(start).Round(time.Millisecond))
	return nil
}

// writeCSVFile writes table to path, or to stdout for "-".
func writeCSVFile(ctx context.Context, path string, table *telemetry.Table) (int, error) {
	if path == "-" {
		return export.WriteCSV(ctx, os.Stdout, table)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	n, err := export.WriteCSV(ctx, f, table)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	return n, err
}

func runCompact(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("compact")
	inFormat := fs.String("in-format", "", "input log format (default: detect from extension)")
	outFormat := fs.String("format", "", "output log format (default: detect from output extension)")
	comp := fs.String("compress", "zstd", "output compression: none, zstd or lz4")
	_, pos, err := parse(fs, cf, args, 2)
	if err != nil {
		return ignoreHelp(err)
	}

	c, err := logfile.ParseCompression(*comp)
	if err != nil {
		return err
	}
	src, err := logfile.Open(pos[0], *inFormat)
	if err != nil {
		return err
	}
	w, err := logfile.Create(pos[1], *outFormat, c)
	if err != nil {
		return err
	}
	n, err := logfile.Copy(ctx, w, src)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %d messages to %s\n", n, pos[1])
	return nil
}

// ── Catalog commands ───────────────────────────────────────

func runJobs(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: canlog jobs list | canlog jobs run <job-id>")
	}
	sub, rest := args[0], args[1:]

	fs, cf := newFlagSet("jobs " + sub)
	positional := 0
	if sub == "run" {
		positional = 1
	}
	cfg, pos, err := parse(fs, cf, rest, positional)
	if err != nil {
		return ignoreHelp(err)
	}
	a, err := app.New(cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	switch sub {
	case "list":
		jobs, err := a.Conversions.ListJobs()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tLOG\tTRIGGER\tLAST STATUS")
		for _, j := range jobs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.Name, j.LogPath, j.TriggerType, j.LastStatus)
		}
		return tw.Flush()
	case "run":
		result, err := a.Conversions.RunJob(ctx, pos[0])
		if result != nil {
			fmt.Fprintf(os.Stderr, "%s: %d rows x %d columns to %s in %s\n",
				result.Status, result.RowsWritten, len(result.Columns), result.Destination,
				result.Duration.Round(time.Millisecond))
		}
		return err
	default:
		return fmt.Errorf("unknown jobs command %q", sub)
	}
}

func runServe(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("serve")
	cfg, _, err := parse(fs, cf, args, 0)
	if err != nil {
		return ignoreHelp(err)
	}
	a, err := app.New(cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Serve(ctx)
}

func runMCP(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("mcp")
	cfg, _, err := parse(fs, cf, args, 0)
	if err != nil {
		return ignoreHelp(err)
	}
	// stdout carries the protocol.
	log.SetOutput(os.Stderr)
	a, err := app.New(cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.ServeMCP(ctx, version)
}

func ignoreHelp(err error) error {
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	return err
}
