package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SchmidtDSE/josh/internal/builder"
	"github.com/SchmidtDSE/josh/internal/diagnostics"
	"github.com/SchmidtDSE/josh/internal/extensibility"
	"github.com/SchmidtDSE/josh/internal/primitives"
	"github.com/SchmidtDSE/josh/internal/production"
	"github.com/SchmidtDSE/josh/orchestrator"
)

func newRunCommand() *cobra.Command {
	var configPath string
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the demonstration forest scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := orchestrator.LoadConfig(v, configPath)
			if err != nil {
				return err
			}
			return runDemo(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().Int("steps", orchestrator.DefaultConfig().Steps, "time steps to simulate")
	cmd.Flags().Int("workers", orchestrator.DefaultConfig().Workers, "worker goroutines per substep")
	cmd.Flags().Bool("strict", false, "halt on the first handler error")
	cmd.Flags().Bool("verbose", false, "log every handler execution with timing")
	cmd.Flags().String("snapshot-dir", "", "export end-of-step snapshots to this directory")
	cmd.Flags().String("snapshot-format", "json", "snapshot format: json or yaml")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics and the live viewer on this address")
	v.BindPFlag("steps", cmd.Flags().Lookup("steps"))
	v.BindPFlag("workers", cmd.Flags().Lookup("workers"))
	v.BindPFlag("strict", cmd.Flags().Lookup("strict"))
	v.BindPFlag("verbose", cmd.Flags().Lookup("verbose"))
	v.BindPFlag("snapshot_dir", cmd.Flags().Lookup("snapshot-dir"))
	v.BindPFlag("snapshot_format", cmd.Flags().Lookup("snapshot-format"))
	v.BindPFlag("metrics_addr", cmd.Flags().Lookup("metrics-addr"))

	return cmd
}

// runDemo wires a small forest: a strip of patches, a tree per patch that
// ages, grows a fixed amount each step up to a height cap, and records how
// many trees lie within its neighborhood.
func runDemo(ctx context.Context, cfg orchestrator.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	units := primitives.NewConversionEngine(nil)
	units.Aliases().Register("meter", "m")
	units.Aliases().Register("meters", "m")
	units.Register("cm", "m", func(d decimal.Decimal) (decimal.Decimal, error) {
		return d.Div(decimal.NewFromInt(100)), nil
	})

	replicate := orchestrator.NewReplicate(units)
	if err := registerDemoSchemas(replicate); err != nil {
		return err
	}
	if err := plantDemoForest(replicate); err != nil {
		return err
	}

	opts := []orchestrator.Option{orchestrator.WithResourceReader(demoElevationReader())}
	if cfg.SnapshotDir != "" {
		sink, err := newSnapshotSink(cfg)
		if err != nil {
			return err
		}
		opts = append(opts, orchestrator.WithSnapshotSink(sink))
	}
	if cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		metrics := diagnostics.NewMetrics(registry)
		viewer := production.NewLiveViewer()
		defer viewer.Close()
		opts = append(opts, orchestrator.WithMetrics(metrics), orchestrator.WithViewer(viewer))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.Handle("/live", viewer)
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("joshsim: metrics server: %v", err)
			}
		}()
		defer server.Close()
	}

	runner, err := orchestrator.NewRunner(cfg, replicate, opts...)
	if err != nil {
		return err
	}
	log.Printf("joshsim: run %s starting: %d steps, %d workers", runner.RunID(), cfg.Steps, cfg.Workers)
	if err := runner.Run(ctx); err != nil {
		return err
	}
	log.Printf("joshsim: run %s complete: %d entities", runner.RunID(), len(replicate.Entities()))
	return nil
}

func newSnapshotSink(cfg orchestrator.Config) (orchestrator.SnapshotSink, error) {
	switch cfg.SnapshotFormat {
	case "yaml":
		return production.NewYAMLSnapshotWriter(cfg.SnapshotDir)
	default:
		return production.NewJSONSnapshotWriter(cfg.SnapshotDir)
	}
}

// demoElevationReader stands in for a raster reader: a synthetic elevation
// surface rising with the cell's grid coordinates. Every patch reads it
// once through the run's resource cache.
func demoElevationReader() production.ResourceReader {
	return production.ResourceReaderFunc(func(ctx context.Context, pathOrURL string, g primitives.Geometry) (*primitives.Distribution, error) {
		elevation := 100 + 2*g.CenterX() + g.CenterY()
		return primitives.NewDistributionOf(
			primitives.NewDecimal(decimal.NewFromFloat(elevation), "m"),
		), nil
	})
}

func registerDemoSchemas(replicate *orchestrator.Replicate) error {
	readElevation := extensibility.Program{
		extensibility.ReadResource("demo://elevation"),
		extensibility.Mean(),
	}
	patch, err := builder.Entity("Patch").
		Initial("elevation", primitives.NewInt(120, "m")).
		Handler("elevation", primitives.Constant, nil, readElevation).
		Build()
	if err != nil {
		return fmt.Errorf("build Patch: %w", err)
	}

	age := extensibility.Program{
		extensibility.PushAttribute("prior.age"),
		extensibility.PushConst(primitives.NewInt(1, primitives.Count)),
		extensibility.Add(),
	}
	crowding := extensibility.Program{
		extensibility.PushConst(primitives.NewInt(2, primitives.Count)),
		extensibility.SpatialQueryFor("Tree"),
		extensibility.Count(),
	}
	grow := extensibility.Program{
		extensibility.PushAttribute("prior.height"),
		extensibility.PushConst(primitives.NewDecimal(decimal.RequireFromString("0.4"), "m")),
		extensibility.Add(),
		extensibility.PushConst(primitives.NewDecimal(decimal.Zero, "m")),
		extensibility.PushConst(primitives.NewDecimal(decimal.NewFromInt(30), "m")),
		extensibility.Bound(true, true),
	}
	tree, err := builder.Entity("Tree").
		Initial("age", primitives.NewInt(0, primitives.Count)).
		Initial("height", primitives.NewDecimal(decimal.RequireFromString("0.5"), "m")).
		Handler("age", primitives.Step, nil, age).
		Handler("crowding", primitives.Step, nil, crowding).
		Handler("height", primitives.Step, nil, grow).
		Build()
	if err != nil {
		return fmt.Errorf("build Tree: %w", err)
	}

	if err := replicate.RegisterSchema(patch); err != nil {
		return err
	}
	return replicate.RegisterSchema(tree)
}

func plantDemoForest(replicate *orchestrator.Replicate) error {
	const width, height = 8, 4
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			patchIndex := uint64(y*width + x)
			patch, err := replicate.AddPatch("Patch", primitives.NewGridPoint(x, y), patchIndex)
			if err != nil {
				return err
			}
			if _, err := replicate.AddMember("Tree", patch); err != nil {
				return err
			}
		}
	}
	return nil
}
