// Command deltascan reads a Delta table and prints its version, schema and
// data.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/deltascan/pkg/delta"
	"github.com/grafana/deltascan/pkg/scan"
	util_log "github.com/grafana/deltascan/pkg/util/log"
)

func main() {
	cfg, tableRoot, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, cfg, tableRoot, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// parseArgs builds the config from the flag defaults, the config file and the
// explicit flags, in increasing order of precedence.
func parseArgs(args []string, usage io.Writer) (Config, string, error) {
	var cfg Config
	fs := flag.NewFlagSet("deltascan", flag.ContinueOnError)
	cfg.RegisterFlags(fs)

	app := kingpin.New("deltascan", "Reads a Delta table and prints its version, schema and data.")
	app.UsageWriter(usage)
	app.ErrorWriter(usage)
	app.Terminate(nil)
	bridgeFlags(app, fs)
	tableRoot := app.Arg("table-root", "Path or URL of the table (file://, s3://).").Required().String()

	args = normalizeArgs(args, fs)
	if _, err := app.Parse(args); err != nil {
		app.Usage(args)
		return Config{}, "", err
	}

	if cfg.ConfigFile != "" {
		if err := loadConfigFile(cfg.ConfigFile, &cfg); err != nil {
			return Config{}, "", err
		}
		// Explicit flags win over the file.
		if _, err := app.Parse(args); err != nil {
			return Config{}, "", err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, "", fmt.Errorf("invalid config: %w", err)
	}
	return cfg, *tableRoot, nil
}

// bridgeFlags exposes every flag of fs on app. The flag values are shared,
// so parsing app sets the config fields fs was registered with.
func bridgeFlags(app *kingpin.Application, fs *flag.FlagSet) {
	fs.VisitAll(func(f *flag.Flag) {
		app.Flag(f.Name, f.Usage).SetValue(f.Value)
	})
}

// normalizeArgs turns single-dash long flags (-log.level) into the
// double-dash form kingpin expects. Negative numbers are never taken for
// flags. Boolean flags given an explicit value (-print-data=false) become
// --print-data or --no-print-data.
func normalizeArgs(args []string, fs *flag.FlagSet) []string {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		if arg == "--" {
			return append(out, args[i:]...)
		}
		if _, err := strconv.ParseFloat(arg, 64); err == nil && arg[0] == '-' {
			// kingpin reads a separate -10 as a flag, so it is joined to the
			// flag expecting it: -scan.version -10 becomes --scan.version=-10.
			if n := len(out); n > 0 && strings.HasPrefix(out[n-1], "--") && !strings.Contains(out[n-1], "=") && !isBoolFlag(fs, strings.TrimPrefix(out[n-1], "--")) {
				out[n-1] += "=" + arg
				continue
			}
			out = append(out, arg)
			continue
		}
		if len(arg) > 2 && arg[0] == '-' && arg[1] != '-' {
			arg = "-" + arg
		}
		if name, value, ok := strings.Cut(strings.TrimPrefix(arg, "--"), "="); ok && strings.HasPrefix(arg, "--") && isBoolFlag(fs, name) {
			if b, err := strconv.ParseBool(value); err == nil && !b {
				arg = "--no-" + name
			} else {
				arg = "--" + name
			}
		}
		out = append(out, arg)
	}
	return out
}

func isBoolFlag(fs *flag.FlagSet, name string) bool {
	f := fs.Lookup(name)
	if f == nil {
		return false
	}
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}

func run(ctx context.Context, cfg Config, tableRoot string, stdout, stderr io.Writer) error {
	logger, err := util_log.InitLogger(cfg.Log, stderr, newConsoleSink(stderr))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics := scan.NewMetrics(reg)
	defer func() {
		if cfg.MetricsTextfile == "" {
			return
		}
		if err := prometheus.WriteToTextfile(cfg.MetricsTextfile, reg); err != nil {
			level.Warn(logger).Log("msg", "failed to write metrics", "path", cfg.MetricsTextfile, "err", err)
		}
	}()

	fmt.Fprintf(stdout, "Reading table at %s\n", tableRoot)

	engine, err := delta.NewEngine(tableRoot, cfg.Options, cfg.Scan, cfg.Storage, util_log.Component(logger, "delta"), reg)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer engine.Close()

	ts, err := scan.NewTableScan(ctx, engine, tableRoot, scan.ScanOptions{Columns: cfg.Print.Columns}, util_log.Component(logger, "scan"), metrics)
	if err != nil {
		return err
	}
	defer ts.Close()

	fmt.Fprintf(stdout, "version: %d\n\n", ts.Snapshot.Version())
	printSchema(stdout, ts.Snapshot.Schema(), ts.Context.Partitions)

	if err := ts.Run(ctx); err != nil {
		return err
	}

	if cfg.Print.Data {
		printData(stdout, logger, ts.Context.Accumulator, cfg.Print.Limit)
	}

	if cfg.Print.Stats {
		printStats(stdout, ts.Context.Accumulator, engine)
	}
	return nil
}

// printData concatenates the accumulated records and prints them. A
// concatenation failure is logged and nothing is printed; the scan itself
// succeeded.
func printData(w io.Writer, logger log.Logger, acc *scan.Accumulator, limit int) {
	rec, err := acc.Finalize()
	if err != nil {
		level.Error(logger).Log("msg", "failed to concatenate record batches", "batches", acc.Len(), "err", err)
		return
	}
	printRecord(w, rec, limit)
	if rec != nil {
		rec.Release()
	}
}

func printStats(w io.Writer, acc *scan.Accumulator, engine *delta.Engine) {
	fmt.Fprintf(w, "\nrecords: %d, rows: %s\n", acc.Len(), humanize.Comma(acc.NumRows()))
	if st := engine.Stats(); st != nil {
		fmt.Fprintf(w, "storage: %s read, %d gets, %d range gets, %d lists\n",
			humanize.Bytes(uint64(st.BytesRead.Load())),
			st.Gets.Load(),
			st.GetRanges.Load(),
			st.Iters.Load(),
		)
	}
}
