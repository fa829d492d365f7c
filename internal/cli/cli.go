// ============================================================================
// Ping Agent CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra command tree for the agent and its result collector
//
// Command Structure:
//   ping-agent                     # Root command
//   ├── run                        # Start the agent
//   ├── collector                  # Start a gRPC result collector
//   │   └── --listen              # Override collector.listen
//   ├── validate [checks-file]     # Check config (and a checks file)
//   ├── status                     # Print effective configuration
//   ├── --config, -c               # Config file (default: configs/agent.yaml)
//   └── --version
//
// run Command:
//   1. Load config, apply defaults, validate
//   2. Build logger, metrics registry and result sink
//   3. Create the agent and feed it from the checks file (optionally watched)
//   4. Serve /metrics if enabled
//   5. On SIGINT/SIGTERM stop the command loop, halt every wheel, close the sink
//
//   Examples:
//     ./ping-agent run
//     ./ping-agent run -c deploy/agent.yaml
//
// collector Command:
//   Receives result events from agents configured with the grpc sink. Events
//   are logged and, when sink.kind is redis, forwarded to the Redis stream.
//
// ============================================================================

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ChuLiYu/ping-agent/internal/agent"
	"github.com/ChuLiYu/ping-agent/internal/logging"
	"github.com/ChuLiYu/ping-agent/internal/metrics"
	"github.com/ChuLiYu/ping-agent/internal/server"
	"github.com/ChuLiYu/ping-agent/internal/sink"
	"github.com/ChuLiYu/ping-agent/internal/source"
	"github.com/ChuLiYu/ping-agent/pkg/types"
)

// Version is overridden at build time with -ldflags "-X ...cli.Version=..."
var Version = "dev"

var configFile string

// BuildCLI assembles the root command
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ping-agent",
		Short: "ping-agent: an interval-wheel check scheduler",
		Long: `ping-agent runs periodic monitoring checks:
- one time wheel per check interval, spreading checks across the period
- bounded worker pools and a shared HTTP client pool
- result events delivered to memory, a gRPC collector or a Redis stream
- Prometheus metrics`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/agent.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildCollectorCommand())
	rootCmd.AddCommand(buildValidateCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// ============================================================================
// run
// ============================================================================

func buildRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the agent",
		Long:  "Start the agent, load checks from the configured checks file and deliver results to the configured sink",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runAgent(ctx, cfg)
		},
	}
}

// runAgent runs the agent until ctx is cancelled or a component fails
func runAgent(ctx context.Context, cfg *Config) error {
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewCollector(reg)

	s, err := sink.New(cfg.Sink)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}
	defer func() {
		if err := sink.Close(s); err != nil {
			log.Warn("failed to close sink", zap.Error(err))
		}
	}()

	a := agent.New(cfg.AgentConfig(), s, m, log.Named("agent"))
	defer a.Stop()

	log.Info("agent starting",
		zap.String("config", configFile),
		zap.String("sink", cfg.Sink.Kind),
		zap.Duration("tick", cfg.Agent.Tick),
		zap.Int("workers_per_wheel", cfg.Agent.WorkerPoolSize))

	cmds := make(chan types.Command, 64)
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			log.Info("metrics server listening", zap.Int("port", cfg.Metrics.Port))
			return metrics.StartServer(gctx, cfg.Metrics.Port, reg)
		})
	}

	if cfg.Checks.File != "" {
		src := source.NewFileSource(cfg.Checks.File, log.Named("source"))
		src.SetDebounce(cfg.Checks.Debounce)
		g.Go(func() error {
			if cfg.Checks.Watch {
				return src.Watch(gctx, cmds)
			}
			_, err := src.Emit(gctx, cmds)
			return err
		})
	} else {
		log.Warn("no checks file configured, agent is idle")
	}

	g.Go(func() error {
		a.Run(gctx, cmds)
		return nil
	})

	err = g.Wait()
	log.Info("shutting down", zap.Duration("uptime", a.Stats().Uptime))
	return err
}

// ============================================================================
// collector
// ============================================================================

func buildCollectorCommand() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "collector",
		Short: "Start a gRPC result collector",
		Long:  "Receive result events from agents using the grpc sink, log them and forward them to Redis when sink.kind is redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Collector.Listen = listen
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runCollector(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides collector.listen")
	return cmd
}

func runCollector(ctx context.Context, cfg *Config) error {
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// Forwarding to another collector would loop; only Redis is a useful downstream
	var downstream sink.Sink = sink.Discard{}
	if cfg.Sink.Kind == sink.KindRedis {
		r := sink.NewRedisFromConfig(cfg.Sink)
		defer r.Close()
		downstream = r
		log.Info("forwarding events to redis", zap.String("stream", r.Stream()))
	}

	return server.Serve(ctx, cfg.Collector.Listen, server.NewCollector(downstream, log.Named("collector")))
}

// ============================================================================
// validate
// ============================================================================

func buildValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [checks-file]",
		Short: "Validate the config and a checks file",
		Long:  "Load and validate the config file, then the checks file given as argument or configured under checks.file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return validate(cmd.OutOrStdout(), configFile, path)
		},
	}
}

func validate(out io.Writer, cfgPath, checksPath string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "config %s: ok\n", cfgPath)

	if checksPath == "" {
		checksPath = cfg.Checks.File
	}
	if checksPath == "" {
		return nil
	}

	checks, err := source.Load(checksPath)
	if err != nil {
		return err
	}
	for i := range checks {
		if err := checks[i].ValidateMax(cfg.Agent.MaxInterval); err != nil {
			return fmt.Errorf("check %s: %w", checks[i].ID, err)
		}
	}
	fmt.Fprintf(out, "checks %s: %d checks ok\n", checksPath, len(checks))
	return nil
}

// ============================================================================
// status
// ============================================================================

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show effective configuration and schedule status",
		Long:  "Print the effective configuration after defaults and how the checks file spreads across interval wheels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd.OutOrStdout(), configFile)
		},
	}
}

func showStatus(out io.Writer, cfgPath string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  ├─ Config File:        %s\n", cfgPath)
	fmt.Fprintf(out, "  ├─ Tick:               %s\n", cfg.Agent.Tick)
	fmt.Fprintf(out, "  ├─ Workers per Wheel:  %d (queue %d)\n", cfg.Agent.WorkerPoolSize, cfg.Agent.WorkerQueueSize)
	fmt.Fprintf(out, "  ├─ Job Timeout:        %s\n", cfg.Agent.JobTimeout)
	fmt.Fprintf(out, "  ├─ Max Interval:       %s\n", cfg.Agent.MaxInterval)
	fmt.Fprintf(out, "  ├─ Policies:           duplicate=%s unsupported=%s reclaim_empty_wheels=%t\n",
		cfg.Agent.DuplicatePolicy, cfg.Agent.UnsupportedPolicy, cfg.Agent.ReclaimEmptyWheels)
	fmt.Fprintf(out, "  ├─ HTTP Pool:          %d clients\n", cfg.Resources.HTTPPoolSize)
	fmt.Fprintf(out, "  └─ Sink:               %s\n", cfg.Sink.Kind)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Metrics:")
	if cfg.Metrics.Enabled {
		fmt.Fprintf(out, "  └─ Enabled on http://localhost:%d/metrics\n", cfg.Metrics.Port)
	} else {
		fmt.Fprintln(out, "  └─ Disabled")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Schedule:")
	if cfg.Checks.File == "" {
		fmt.Fprintln(out, "  └─ No checks file configured")
		return nil
	}
	checks, err := source.Load(cfg.Checks.File)
	if err != nil {
		fmt.Fprintf(out, "  └─ %s: %v\n", cfg.Checks.File, err)
		return nil
	}

	perInterval := make(map[time.Duration]int)
	for _, c := range checks {
		perInterval[c.Interval]++
	}
	intervals := make([]time.Duration, 0, len(perInterval))
	for iv := range perInterval {
		intervals = append(intervals, iv)
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i] < intervals[j] })

	fmt.Fprintf(out, "  ├─ Checks:  %d in %s\n", len(checks), cfg.Checks.File)
	for i, iv := range intervals {
		branch := "├─"
		if i == len(intervals)-1 {
			branch = "└─"
		}
		buckets := int(iv / time.Second)
		fmt.Fprintf(out, "  %s Wheel %-8s %d checks over %d buckets\n", branch, iv, perInterval[iv], buckets)
	}
	return nil
}

// Execute runs the root command and exits non-zero on error
func Execute() {
	if err := BuildCLI().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
