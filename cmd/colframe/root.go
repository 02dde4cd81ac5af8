package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/internal/pipeline"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/config"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/logger"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "COLFRAME"

// app carries what the subcommands share once PersistentPreRunE has run
type app struct {
	out      io.Writer
	v        *viper.Viper
	cfg      *config.IngestConfig
	logger   *zap.Logger
	shutdown []func(context.Context) error
}

// binding ties a config key to the flag that overrides it. Precedence is
// flag, then COLFRAME_<SECTION>_<KEY>, then the --config file, then the
// built-in default.
type binding struct {
	key     string
	flag    string
	def     func(*viper.Viper, *config.IngestConfig)
	resolve func(*viper.Viper, *config.IngestConfig)
}

func stringKey(key, flag string, field func(*config.IngestConfig) *string) binding {
	return binding{key, flag,
		func(v *viper.Viper, c *config.IngestConfig) { v.SetDefault(key, *field(c)) },
		func(v *viper.Viper, c *config.IngestConfig) { *field(c) = v.GetString(key) },
	}
}

func intKey(key, flag string, field func(*config.IngestConfig) *int) binding {
	return binding{key, flag,
		func(v *viper.Viper, c *config.IngestConfig) { v.SetDefault(key, *field(c)) },
		func(v *viper.Viper, c *config.IngestConfig) { *field(c) = v.GetInt(key) },
	}
}

func boolKey(key, flag string, field func(*config.IngestConfig) *bool) binding {
	return binding{key, flag,
		func(v *viper.Viper, c *config.IngestConfig) { v.SetDefault(key, *field(c)) },
		func(v *viper.Viper, c *config.IngestConfig) { *field(c) = v.GetBool(key) },
	}
}

func floatKey(key, flag string, field func(*config.IngestConfig) *float64) binding {
	return binding{key, flag,
		func(v *viper.Viper, c *config.IngestConfig) { v.SetDefault(key, *field(c)) },
		func(v *viper.Viper, c *config.IngestConfig) { *field(c) = v.GetFloat64(key) },
	}
}

var bindings = []binding{
	stringKey("name", "name", func(c *config.IngestConfig) *string { return &c.Name }),
	stringKey("source.path", "file", func(c *config.IngestConfig) *string { return &c.Source.Path }),
	stringKey("source.schema", "schema", func(c *config.IngestConfig) *string { return &c.Source.Schema }),
	intKey("source.rows", "rows", func(c *config.IngestConfig) *int { return &c.Source.Rows }),
	boolKey("source.header", "header", func(c *config.IngestConfig) *bool { return &c.Source.Header }),
	stringKey("source.delimiter", "delimiter", func(c *config.IngestConfig) *string { return &c.Source.Delimiter }),
	stringKey("source.quote", "quote", func(c *config.IngestConfig) *string { return &c.Source.Quote }),
	boolKey("source.mmap", "mmap", func(c *config.IngestConfig) *bool { return &c.Source.Mmap }),
	intKey("performance.workers", "workers", func(c *config.IngestConfig) *int { return &c.Performance.Workers }),
	intKey("performance.staging_bytes", "staging-bytes", func(c *config.IngestConfig) *int { return &c.Performance.StagingBytes }),
	intKey("performance.staging_slots", "staging-slots", func(c *config.IngestConfig) *int { return &c.Performance.StagingSlots }),
	intKey("performance.chunk_size", "chunk-size", func(c *config.IngestConfig) *int { return &c.Performance.ChunkSize }),
	stringKey("performance.overflow", "overflow", func(c *config.IngestConfig) *string { return &c.Performance.Overflow }),
	boolKey("reliability.ignore_errors", "ignore-errors", func(c *config.IngestConfig) *bool { return &c.Reliability.IgnoreErrors }),
	stringKey("observability.log_level", "log-level", func(c *config.IngestConfig) *string { return &c.Observability.LogLevel }),
	stringKey("observability.log_encoding", "log-encoding", func(c *config.IngestConfig) *string { return &c.Observability.LogEncoding }),
	stringKey("observability.metrics_addr", "metrics-addr", func(c *config.IngestConfig) *string { return &c.Observability.MetricsAddr }),
	boolKey("observability.enable_tracing", "trace", func(c *config.IngestConfig) *bool { return &c.Observability.EnableTracing }),
	floatKey("observability.tracing_sample_rate", "trace-sample-rate", func(c *config.IngestConfig) *float64 { return &c.Observability.TracingSampleRate }),
	boolKey("advanced.enable_compression", "compress", func(c *config.IngestConfig) *bool { return &c.Advanced.EnableCompression }),
	stringKey("advanced.compression_algorithm", "compression", func(c *config.IngestConfig) *string { return &c.Advanced.CompressionAlgorithm }),
	intKey("advanced.compression_level", "compression-level", func(c *config.IngestConfig) *int { return &c.Advanced.CompressionLevel }),
	boolKey("advanced.memory_snapshot", "memory", func(c *config.IngestConfig) *bool { return &c.Advanced.MemorySnapshot }),
	stringKey("export.path", "out", func(c *config.IngestConfig) *string { return &c.Export.Path }),
	stringKey("export.format", "format", func(c *config.IngestConfig) *string { return &c.Export.Format }),
	stringKey("export.compression", "export-compression", func(c *config.IngestConfig) *string { return &c.Export.Compression }),
	intKey("export.batch_size", "batch-size", func(c *config.IngestConfig) *int { return &c.Export.BatchSize }),
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out, v: viper.New()}

	root := &cobra.Command{
		Use:   "colframe",
		Short: "colframe - parallel CSV loading into a columnar table",
		Long: `colframe loads delimited text into fixed-width column buffers with a
pool of parallel decoders, then answers group-by and sum queries over them.

Every flag can also be set with a COLFRAME_<SECTION>_<KEY> environment
variable (for example COLFRAME_PERFORMANCE_WORKERS) or in a YAML file
passed with --config.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Path to a YAML config file")
	pf.String("name", "colframe", "Run name used in logs and traces")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-encoding", "json", "Log encoding (json, console)")
	pf.String("metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")
	pf.Bool("trace", false, "Export OpenTelemetry spans to stderr")
	pf.Float64("trace-sample-rate", 1.0, "Fraction of traces to sample")
	pf.Bool("pretty", false, "Indent JSON output")
	pf.String("cpuprofile", "", "Write a CPU profile of the command to this file")
	pf.String("memprofile", "", "Write a heap profile to this file when the command finishes")

	root.AddCommand(newVersionCmd(a), newLoadCmd(a), newQueryCmd(a), newExportCmd(a), newInferCmd(a), newBenchCmd(a))
	return root
}

// addInputFlags registers the flags that say how to read the file
func addInputFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("file", "f", "", "Delimited text file to load")
	f.Bool("header", false, "Skip the first line")
	f.String("delimiter", ",", "Field delimiter")
	f.String("quote", `"`, "Quote character; empty disables quoting")
	f.Bool("mmap", false, "Read the file through a memory map")
}

// addSourceFlags registers the input and pipeline flags shared by the
// commands that load a table
func addSourceFlags(cmd *cobra.Command) {
	addInputFlags(cmd)
	d := pipeline.DefaultConfig()
	f := cmd.Flags()
	f.StringP("schema", "s", "", "Schema as name:type[?],... (types: int32, int64, float32, float64, bool, string)")
	f.Int("rows", 0, "Row capacity; 0 counts the file's lines")
	f.IntP("workers", "w", d.Workers, "Number of parallel decoders")
	f.Int("staging-bytes", d.StagingBytes, "Byte capacity of each worker's staging region")
	f.Int("staging-slots", d.StagingSlots, "Line slots in each worker's staging region")
	f.Int("chunk-size", d.ChunkSize, "Read size in bytes")
	f.String("overflow", string(d.Overflow), "Full staging region policy (retry, block)")
	f.Bool("ignore-errors", false, "Skip and count malformed lines instead of failing")
}

// setup resolves configuration and starts logging, tracing, the metrics
// listener and profiling for the command being run. Whatever started is
// stopped again if a later step fails.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := a.configure(cmd); err != nil {
		_ = a.teardown()
		return err
	}
	return nil
}

func (a *app) configure(cmd *cobra.Command) error {
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	cfg := config.NewIngestConfig("colframe")
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := config.Load(path, cfg); err != nil {
			return err
		}
	}

	for _, b := range bindings {
		b.def(a.v, cfg)
		if f := cmd.Flags().Lookup(b.flag); f != nil {
			if err := a.v.BindPFlag(b.key, f); err != nil {
				return errors.Wrap(err, errors.ErrorTypeConfig, "failed to bind flag").WithDetail("flag", b.flag)
			}
		}
	}
	for _, b := range bindings {
		b.resolve(a.v, cfg)
	}
	a.cfg = cfg

	lcfg := logger.DefaultConfig()
	lcfg.Level = cfg.Observability.LogLevel
	lcfg.Encoding = cfg.Observability.LogEncoding
	if err := logger.Init(lcfg); err != nil {
		return err
	}
	a.logger = logger.With(
		zap.String("run", cfg.Name),
		zap.String("command", cmd.Name()),
	)

	if cfg.Observability.EnableTracing {
		tcfg := observability.DefaultTracingConfig()
		tcfg.ServiceVersion = version
		tcfg.SamplingRate = cfg.Observability.TracingSampleRate
		tcfg.Writer = os.Stderr
		shutdown, err := observability.InitTracing(tcfg)
		if err != nil {
			return err
		}
		a.shutdown = append(a.shutdown, shutdown)
	}

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		if err := a.serveMetrics(addr); err != nil {
			return err
		}
	}
	return a.startProfiles(cmd)
}

func (a *app) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to listen for metrics").WithDetail("addr", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	a.shutdown = append(a.shutdown, srv.Shutdown)
	return nil
}

// runE wraps a subcommand so teardown runs whether or not it fails
func (a *app) runE(fn func(cmd *cobra.Command) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) (err error) {
		defer func() {
			if terr := a.teardown(); err == nil {
				err = terr
			}
		}()
		return fn(cmd)
	}
}

func (a *app) teardown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var first error
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		if err := a.shutdown[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	a.shutdown = nil
	_ = logger.Sync()
	return first
}

func (a *app) pretty(cmd *cobra.Command) bool {
	p, _ := cmd.Flags().GetBool("pretty")
	return p
}

// pipelineConfig maps the performance and reliability sections onto the
// pipeline's own config
func pipelineConfig(cfg *config.IngestConfig) pipeline.Config {
	return pipeline.Config{
		Workers:      cfg.Performance.Workers,
		StagingBytes: cfg.Performance.StagingBytes,
		StagingSlots: cfg.Performance.StagingSlots,
		ChunkSize:    cfg.Performance.ChunkSize,
		Delimiter:    cfg.Source.DelimiterByte(),
		Quote:        cfg.Source.QuoteByte(),
		Header:       cfg.Source.Header,
		IgnoreErrors: cfg.Reliability.IgnoreErrors,
		Overflow:     pipeline.OverflowPolicy(cfg.Performance.Overflow),
	}
}
