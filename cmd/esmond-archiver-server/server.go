package main

import (
	"context"
	"flag"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/spf13/viper"

	"github.com/m-lab/esmond-archiver/internal/archiver"
	"github.com/m-lab/esmond-archiver/internal/handler"
	"github.com/m-lab/esmond-archiver/internal/netx"
	"github.com/m-lab/esmond-archiver/internal/summary"
	"github.com/m-lab/esmond-archiver/pkg/esmond/spec"
)

var (
	flagConfig = flag.String("config", "", "Optional YAML configuration file")

	// Set at build time.
	version = "dev"

	// Context for the whole program.
	ctx, cancel = context.WithCancel(context.Background())
)

// serverConfig is read from the configuration file and from environment
// variables prefixed with ESMOND_ARCHIVER_.
type serverConfig struct {
	Addr      string        `mapstructure:"addr"`
	SpoolDir  string        `mapstructure:"spool-dir"`
	Summaries string        `mapstructure:"summaries"`
	LogLevel  string        `mapstructure:"log-level"`
	CacheTTL  time.Duration `mapstructure:"cache-ttl"`
}

func loadConfig(v *viper.Viper, path string) (*serverConfig, error) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("log-level", "info")
	v.SetDefault("cache-ttl", netx.DefaultCacheTTL)
	v.SetDefault("spool-dir", "")
	v.SetDefault("summaries", "")
	v.SetEnvPrefix("esmond_archiver")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	cfg := &serverConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// httpServer creates a new *http.Server with explicit Read and Write
// timeouts. Archiving waits for two store requests, so the write timeout
// leaves room for both.
func httpServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  time.Minute,
		WriteTimeout: 4 * spec.HTTPTimeout,
	}
}

func newMux(h *handler.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(spec.ArchivePath, http.HandlerFunc(h.Archive))
	mux.Handle(spec.ValidatePath, http.HandlerFunc(h.Validate))
	mux.Handle(spec.TypesPath, http.HandlerFunc(h.Types))
	return mux
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(viper.New(), *flagConfig)
	rtx.Must(err, "Could not load configuration")

	// Initialize logging and metrics.
	log.SetReportCaller(true)
	log.SetReportTimestamp(true)
	level, err := log.ParseLevel(cfg.LogLevel)
	rtx.Must(err, "Invalid log level")
	log.SetLevel(level)

	promSrv := prometheusx.MustServeMetrics()
	defer promSrv.Close()

	opts := archiver.Options{
		ClientName:    "esmond-archiver-server",
		ClientVersion: version,
		SpoolDir:      cfg.SpoolDir,
	}
	if cfg.Summaries != "" {
		opts.Summaries, err = summary.LoadFile(cfg.Summaries)
		rtx.Must(err, "Could not load summaries")
	}
	norm := netx.NewNormalizer(nil, cfg.CacheTTL)
	defer norm.Close()
	opts.Normalizer = norm
	a := archiver.New(opts)
	defer a.Close()

	srv := httpServer(cfg.Addr, newMux(handler.New(a)))
	log.Info("About to listen for archive requests", "endpoint", cfg.Addr)
	go func() {
		err := srv.ListenAndServe()
		if err != http.ErrServerClosed {
			rtx.Must(err, "Could not start server")
		}
	}()
	defer srv.Close()

	<-ctx.Done()
	cancel()
}
