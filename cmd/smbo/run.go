package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/GoSim-25-26J-441/smbo/internal/harness"
	"github.com/GoSim-25-26J-441/smbo/internal/metrics"
	"github.com/GoSim-25-26J-441/smbo/internal/smbo"
	"github.com/GoSim-25-26J-441/smbo/internal/statusd"
	"github.com/GoSim-25-26J-441/smbo/pkg/config"
	"github.com/GoSim-25-26J-441/smbo/pkg/logger"
	"github.com/GoSim-25-26J-441/smbo/pkg/utils"
)

// runOptions is the configuration for running an optimization
type runOptions struct {
	ConfigFile string
	LogLevel   string
	Iterations int
	TimeBudget time.Duration
	Seed       int64
	ExportPath string
	HTTPAddr   string
	GRPCAddr   string

	flags *pflag.FlagSet
}

func (o *runOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ConfigFile, "config", "c", "smbo.yaml", "run configuration `file`")
	fs.StringVar(&o.LogLevel, "log-level", "", "override the log level (debug, info, warn, error)")
	fs.IntVar(&o.Iterations, "iterations", 0, "override the iteration budget")
	fs.DurationVar(&o.TimeBudget, "time-budget", 0, "override the wall-clock budget")
	fs.Int64Var(&o.Seed, "seed", 0, "override the random seed")
	fs.StringVarP(&o.ExportPath, "output", "o", "", "write the result to `file` (.json or .yaml)")
	fs.StringVar(&o.HTTPAddr, "http-addr", "", "serve status and metrics over HTTP on `addr`")
	fs.StringVar(&o.GRPCAddr, "grpc-addr", "", "serve gRPC health on `addr`")
	o.flags = fs
}

// newRunCommand creates a command for running an optimization
func newRunCommand(o *runOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an optimization",
		Long:  "Optimize an external program over the configured parameter space",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return o.run(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	o.addFlags(cmd.Flags())
	return cmd
}

// load reads the configuration file and applies flag overrides.
func (o *runOptions) load() (*config.RunConfig, error) {
	cfg, err := config.LoadRunConfig(o.ConfigFile)
	if err != nil {
		return nil, err
	}
	if o.changed("log-level") {
		cfg.LogLevel = o.LogLevel
	}
	if o.changed("iterations") {
		cfg.Iterations = o.Iterations
	}
	if o.changed("time-budget") {
		cfg.TimeBudget = o.TimeBudget.String()
	}
	if o.changed("seed") {
		seed := o.Seed
		cfg.Seed = &seed
	}
	if o.changed("output") {
		if cfg.Export == nil {
			cfg.Export = &config.Export{}
		}
		cfg.Export.Path = o.ExportPath
	}
	if o.changed("http-addr") || o.changed("grpc-addr") {
		if cfg.Status == nil {
			cfg.Status = &config.Status{}
		}
		if o.changed("http-addr") {
			cfg.Status.HTTPAddr = o.HTTPAddr
		}
		if o.changed("grpc-addr") {
			cfg.Status.GRPCAddr = o.GRPCAddr
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flag override: %w", err)
	}
	return cfg, nil
}

func (o *runOptions) changed(name string) bool {
	return o.flags != nil && o.flags.Changed(name)
}

func (o *runOptions) run(ctx context.Context, out, errOut io.Writer) error {
	cfg, err := o.load()
	if err != nil {
		return err
	}
	logger.SetDefault(logger.NewText(cfg.LogLevel, errOut))

	s, err := cfg.Space()
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	hc, err := cfg.HarnessConfig(s)
	if err != nil {
		return err
	}
	hc.Logger = logger.Default
	hc.Observer = recorder
	hc.RunID = utils.GenerateRunID()
	h, err := harness.New(hc)
	if err != nil {
		return err
	}

	seed := time.Now().UnixNano()
	lc, err := cfg.LoopConfig(s, h, seed)
	if err != nil {
		return err
	}
	lc.Logger = logger.Default
	if cfg.Seed == nil {
		logger.Info("no seed configured", "seed", lc.Seed)
	}

	var status *statusd.Server
	opts := []smbo.Option{
		smbo.WithRunID(h.RunID()),
		smbo.WithProgressReporter(recorder.ReportProgress),
		smbo.WithProgressReporter(func(p smbo.Progress) {
			if status != nil {
				status.ReportProgress(p)
			}
		}),
	}
	for _, p := range cfg.StopPredicates() {
		opts = append(opts, smbo.WithStopPredicate(p))
	}
	loop, err := smbo.New(lc, opts...)
	if err != nil {
		return err
	}

	serveDone := make(chan struct{})
	serveCtx, cancelServe := context.WithCancel(context.Background())
	if cfg.Status != nil && (cfg.Status.HTTPAddr != "" || cfg.Status.GRPCAddr != "") {
		status = statusd.New(loop, recorder)
		go func() {
			defer close(serveDone)
			if err := status.Serve(serveCtx, cfg.Status.HTTPAddr, cfg.Status.GRPCAddr); err != nil {
				logger.Error("status server stopped", "error", err)
			}
		}()
	} else {
		close(serveDone)
	}

	logger.Info("starting optimization",
		"run_id", loop.RunID(),
		"parameters", s.Dim(),
		"work_dir", h.WorkDir(),
		"direction", lc.Direction,
	)
	res, runErr := loop.Run(ctx)
	cancelServe()
	<-serveDone

	if cfg.Export != nil && cfg.Export.Path != "" {
		snap := loop.ResultLog().Export(loop.Direction(), cfg.Export.History)
		if err := snap.WriteFile(cfg.Export.Path); err != nil {
			return fmt.Errorf("failed to export result: %w", err)
		}
		logger.Info("result exported", "path", cfg.Export.Path)
	}

	if err := printResult(out, loop, res); err != nil {
		return err
	}
	return runErr
}

// resultSummary is the human-readable outcome printed after a run.
type resultSummary struct {
	RunID           string         `yaml:"run_id"`
	Reason          string         `yaml:"reason"`
	Detail          string         `yaml:"detail,omitempty"`
	Evaluations     int            `yaml:"evaluations"`
	Failures        int            `yaml:"failures"`
	FailureFraction float64        `yaml:"failure_fraction"`
	Iterations      int            `yaml:"iterations"`
	Duration        string         `yaml:"duration"`
	DesignWarning   string         `yaml:"design_warning,omitempty"`
	BestValue       *float64       `yaml:"best_value,omitempty"`
	BestPoint       map[string]any `yaml:"best_point,omitempty"`
}

func printResult(out io.Writer, loop *smbo.Loop, res *smbo.Result) error {
	if res == nil {
		return nil
	}
	summary := resultSummary{
		RunID:           loop.RunID(),
		Reason:          string(res.Reason),
		Detail:          res.Detail,
		Evaluations:     res.Evaluations,
		Failures:        res.Failures,
		FailureFraction: utils.Round(res.FailureFraction, 4),
		Iterations:      res.Iterations,
		Duration:        res.Duration.Round(time.Millisecond).String(),
		DesignWarning:   res.DesignWarning,
	}
	if res.Best != nil {
		v := res.Best.Value
		summary.BestValue = &v
		summary.BestPoint = map[string]any(res.Best.Point)
	}
	data, err := yaml.Marshal(summary)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}
