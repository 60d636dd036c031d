package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/mobileperf/leakmon/database"
	"github.com/mobileperf/leakmon/leak"
	"github.com/mobileperf/leakmon/monitor"
	"github.com/mobileperf/leakmon/sampler"
	"github.com/mobileperf/leakmon/web"
)

type options struct {
	configFile string
	listenAddr string
	dataDir    string
	interval   time.Duration
	pretty     bool
	debug      bool

	targetID string
	name     string
	platform string
	bundleID string
	pid      int32
	command  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "leakmon",
		Short:         "Poll app performance counters and watch the memory series for leaks",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default ./leakmon.yaml if present)")
	flags.StringVar(&opts.listenAddr, "listen", ":8080", "web server listen address")
	flags.StringVar(&opts.dataDir, "data-dir", "data", "directory for the sqlite store")
	flags.DurationVar(&opts.interval, "interval", time.Second, "polling cadence per target")
	flags.BoolVar(&opts.pretty, "pretty", false, "human-readable log output")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")

	flags.StringVar(&opts.targetID, "target-id", "", "identifier for the initial target (defaults to name or pid)")
	flags.StringVar(&opts.name, "name", "", "display name of the initial target")
	flags.StringVar(&opts.platform, "platform", "", "platform of the initial target (ios, android, local)")
	flags.StringVar(&opts.bundleID, "bundle-id", "", "bundle or package identifier of the initial target")
	flags.Int32Var(&opts.pid, "pid", 0, "monitor a local process by pid")
	flags.StringVar(&opts.command, "command", "", "monitor via a bridge command streaming counters on stdout")

	return cmd
}

// loadDetectorDefaults reads detector thresholds from the config file
// and environment on top of the built-in defaults.
func loadDetectorDefaults(configFile string) (leak.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEAKMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := leak.DefaultConfig()
	v.SetDefault("detector.leak_threshold_mb", def.LeakThresholdMB)
	v.SetDefault("detector.time_window_sec", def.TimeWindowSec)
	v.SetDefault("detector.growth_rate_threshold", def.GrowthRateThreshold)
	v.SetDefault("detector.alert_cooldown_sec", def.AlertCooldownSec)
	v.SetDefault("detector.min_samples", def.MinSamples)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return leak.Config{}, fmt.Errorf("failed to read config file: %v", err)
		}
	} else {
		v.SetConfigName("leakmon")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return leak.Config{}, fmt.Errorf("failed to read config file: %v", err)
			}
		}
	}

	cfg := leak.Config{
		LeakThresholdMB:     v.GetFloat64("detector.leak_threshold_mb"),
		TimeWindowSec:       v.GetInt("detector.time_window_sec"),
		GrowthRateThreshold: v.GetFloat64("detector.growth_rate_threshold"),
		AlertCooldownSec:    v.GetInt("detector.alert_cooldown_sec"),
		MinSamples:          v.GetInt("detector.min_samples"),
	}
	if err := cfg.Validate(); err != nil {
		return leak.Config{}, err
	}
	return cfg, nil
}

func run(opts *options) error {
	log := newLogger(opts)

	defaults, err := loadDetectorDefaults(opts.configFile)
	if err != nil {
		return err
	}

	db, err := database.NewDB(opts.dataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := monitor.NewNotifier()
	manager := monitor.NewManager(db, notifier, defaults, opts.interval, log)

	g, ctx := errgroup.WithContext(ctx)
	manager.SetContext(ctx)

	if err := startInitialTarget(opts, manager, log); err != nil {
		return err
	}

	server := web.NewServer(db, manager, opts.listenAddr, log)
	g.Go(func() error {
		return server.Start(ctx)
	})

	log.Info().Str("listen", opts.listenAddr).Msg("leakmon running, press Ctrl+C to stop")

	err = g.Wait()
	manager.StopAll()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("shut down cleanly")
	return nil
}

// startInitialTarget wires the target given on the command line, if
// any. Further targets are started over the API.
func startInitialTarget(opts *options, manager *monitor.Manager, log zerolog.Logger) error {
	if opts.pid == 0 && opts.command == "" {
		return nil
	}

	var (
		smp sampler.Sampler
		err error
	)
	if opts.command != "" {
		parts := strings.Fields(opts.command)
		smp, err = sampler.NewCommandSampler(parts[0], parts[1:], log)
	} else {
		smp, err = sampler.NewProcessSampler(opts.pid)
	}
	if err != nil {
		return fmt.Errorf("failed to create sampler: %v", err)
	}

	id := opts.targetID
	if id == "" {
		if opts.name != "" {
			id = opts.name
		} else {
			id = fmt.Sprintf("pid-%d", opts.pid)
		}
	}

	info := leak.TargetInfo{
		Name:     opts.name,
		PID:      uint32(opts.pid),
		Platform: opts.platform,
		BundleID: opts.bundleID,
	}
	if info.Name == "" {
		info.Name = id
	}

	if _, err := manager.StartTarget(id, info, smp); err != nil {
		smp.Close()
		return err
	}
	return nil
}

func newLogger(opts *options) zerolog.Logger {
	level := zerolog.InfoLevel
	if opts.debug {
		level = zerolog.DebugLevel
	}
	if opts.pretty {
		w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		return zerolog.New(w).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}
