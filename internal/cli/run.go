package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/zkbench/internal/bench"
	"github.com/wesleyorama2/zkbench/internal/config"
	"github.com/wesleyorama2/zkbench/internal/coord"
	"github.com/wesleyorama2/zkbench/internal/output"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a node-creation benchmark",
		Long: `Create nodes under a fresh root from many concurrent workers until the
duration elapses, then count the root's children and report throughput.

Quick run against a local ensemble:
  zkbench run --workers 1000 --duration 10s

Client-counted names with one session per worker:
  zkbench run --mode ephemeral --sessions per-worker --workers 200

Dry run against the in-process service:
  zkbench run --address mem:// --workers 10 --duration 2s

Config file mode (flags override file values):
  zkbench run --config bench.yaml --workers 50`,
		Args:          cobra.NoArgs,
		RunE:          runBenchmark,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetFlagErrorFunc(flagError)

	f := cmd.Flags()
	f.StringP("config", "c", "", "Configuration file (YAML or JSON)")
	f.String("address", "", "Comma-separated servers, or mem:// (default 127.0.0.1:2181)")
	f.String("duration", "", "Measurement window, e.g. 10s or 10 (default 10s)")
	f.Int("workers", 0, "Number of concurrent workers (default 10)")
	f.String("mode", "", "Creation mode: ephemeral, ephemeral-sequential, persistent-sequential, persistent (default ephemeral-sequential)")
	f.String("root", "", "Benchmark root node (default /benchmark)")
	f.String("prefix", "", "Child node name prefix (default node_)")
	f.String("sessions", "", "Session policy: shared or per-worker (default shared)")
	f.Int("batch", 0, "Creates per request; > 1 sends multi-ops (default 1)")
	f.Float64("rate", 0, "Per-worker creates/sec cap, 0 = unlimited")
	f.String("session-timeout", "", "Service session timeout (default 10s)")
	f.String("connect-timeout", "", "Session establishment timeout (default 5s)")
	f.String("settle", "", "Settle strategy before counting: fixed or poll (default fixed)")
	f.String("settle-delay", "", "Fixed settle delay (default 1s)")
	f.Bool("cleanup", false, "Delete the root after counting")
	f.Bool("json", false, "Print the result as JSON")
	f.StringP("output", "o", "", "Write the result to a file (.json, .yaml)")
	f.Bool("no-color", false, "Disable colored output")
	f.BoolP("quiet", "q", false, "Only print the final count and throughput")
	f.BoolP("verbose", "v", false, "Enable debug logging")

	return cmd
}

// runBenchmark runs one benchmark from the merged file and flag configuration.
func runBenchmark(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	outputPath, _ := cmd.Flags().GetString("output")
	noColor, _ := cmd.Flags().GetBool("no-color")
	quiet, _ := cmd.Flags().GetBool("quiet")
	verbose, _ := cmd.Flags().GetBool("verbose")

	console := output.NewConsole(output.ConsoleConfig{
		Writer:  cmd.OutOrStdout(),
		NoColor: noColor,
		Quiet:   quiet || jsonOutput,
	})

	cfg, err := buildConfig(cmd)
	if err != nil {
		return reported(console, err)
	}

	log := newLogger(verbose)
	defer log.Sync()

	runner, err := newRunner(cfg, log)
	if err != nil {
		return reported(console, err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := runner.Options()
	console.PrintHeader(output.RunInfo{
		Address:  cfg.Address,
		Root:     opts.Root,
		Mode:     opts.Mode.String(),
		Sessions: string(opts.Sessions),
		Workers:  opts.Workers,
		Batch:    opts.Batch,
		Duration: opts.Duration,
	})

	// Progress updates while the runner works.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if runner.IsRunning() {
					console.PrintProgress(runner.Stats())
				}
			}
		}
	}()

	result, runErr := runner.Run(ctx)
	close(done)
	wg.Wait()

	if runErr != nil {
		return reported(console, runErr)
	}

	if jsonOutput {
		if err := output.WriteResult(cmd.OutOrStdout(), result, output.FormatJSON); err != nil {
			return err
		}
	} else {
		console.PrintSummary(result)
	}

	if outputPath != "" {
		if err := output.WriteResultFile(outputPath, result); err != nil {
			return reported(console, err)
		}
		if !quiet && !jsonOutput {
			fmt.Fprintf(cmd.OutOrStdout(), "Results written to: %s\n", outputPath)
		}
	}
	return nil
}

// buildConfig loads the config file, if any, applies flags that were set
// explicitly and validates the result.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
		cfg = loaded
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()

	if f.Changed("address") {
		cfg.Address, _ = f.GetString("address")
	}
	if f.Changed("root") {
		cfg.Root, _ = f.GetString("root")
	}
	if f.Changed("prefix") {
		cfg.Prefix, _ = f.GetString("prefix")
	}
	if f.Changed("mode") {
		cfg.Mode = enumFlag(cmd, "mode")
	}
	if f.Changed("sessions") {
		cfg.Sessions = enumFlag(cmd, "sessions")
	}
	if f.Changed("workers") {
		cfg.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("batch") {
		cfg.Batch, _ = f.GetInt("batch")
	}
	if f.Changed("rate") {
		cfg.Rate, _ = f.GetFloat64("rate")
	}
	if f.Changed("cleanup") {
		cfg.Cleanup, _ = f.GetBool("cleanup")
	}
	if f.Changed("settle") {
		cfg.Settle.Strategy = enumFlag(cmd, "settle")
	}

	durations := []struct {
		flag string
		dst  *config.Duration
	}{
		{"duration", &cfg.Duration},
		{"session-timeout", &cfg.SessionTimeout},
		{"connect-timeout", &cfg.ConnectTimeout},
		{"settle-delay", &cfg.Settle.Delay},
	}
	for _, d := range durations {
		if !f.Changed(d.flag) {
			continue
		}
		s, _ := f.GetString(d.flag)
		parsed, err := config.ParseDurationString(s)
		if err != nil {
			return fmt.Errorf("--%s: %w", d.flag, err)
		}
		*d.dst = config.Duration(parsed)
	}
	return nil
}

// enumFlag reads a keyword flag in the lowercase form config files use.
func enumFlag(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return strings.ToLower(strings.TrimSpace(v))
}

// newRunner turns a validated config into a bench.Runner.
func newRunner(cfg *config.Config, log *zap.Logger) (*bench.Runner, error) {
	mode, err := coord.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	sessions, err := bench.ParseSessionPolicy(cfg.Sessions)
	if err != nil {
		return nil, err
	}

	return bench.NewRunner(bench.Options{
		Client:   newClient(cfg, log),
		Root:     cfg.Root,
		Prefix:   cfg.Prefix,
		Mode:     mode,
		Workers:  cfg.Workers,
		Duration: cfg.Duration.Std(),
		Sessions: sessions,
		Batch:    cfg.Batch,
		Rate:     cfg.Rate,
		Settler:  newSettler(cfg, log),
		Cleanup:  cfg.Cleanup,
		Logger:   log,
	})
}

func newClient(cfg *config.Config, log *zap.Logger) coord.Client {
	if cfg.IsMemory() {
		return coord.NewMemory(coord.MemoryOptions{Latency: coord.DefaultMemoryLatency})
	}
	return coord.NewZooKeeper(coord.ZooKeeperOptions{
		Servers:        coord.ParseServers(cfg.Address),
		SessionTimeout: cfg.SessionTimeout.Std(),
		ConnectTimeout: cfg.ConnectTimeout.Std(),
		Logger:         log,
	})
}

func newSettler(cfg *config.Config, log *zap.Logger) bench.Settler {
	if cfg.Settle.Strategy == config.SettlePoll {
		return bench.PollUntilStable{
			Interval: cfg.Settle.Interval.Std(),
			Timeout:  cfg.Settle.Timeout.Std(),
			Logger:   log,
		}
	}
	return bench.FixedDelay{Delay: cfg.Settle.Delay.Std()}
}

func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
