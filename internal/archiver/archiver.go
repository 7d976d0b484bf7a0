// Package archiver stores test runs in an esmond archive and reports the
// outcome in the form expected by the scheduler.
package archiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/m-lab/esmond-archiver/internal/metrics"
	"github.com/m-lab/esmond-archiver/internal/netx"
	"github.com/m-lab/esmond-archiver/internal/persistence"
	"github.com/m-lab/esmond-archiver/internal/record"
	"github.com/m-lab/esmond-archiver/internal/summary"
	"github.com/m-lab/esmond-archiver/pkg/client"
	"github.com/m-lab/esmond-archiver/pkg/esmond/model"
)

// Datatype is the spool subdirectory of abandoned records.
const Datatype = "esmond"

// unknownSubtest names spool files of runs whose test type cannot be used
// in a file name.
const unknownSubtest = "unknown"

// DefaultStoreTTL is how long an unused store client is kept.
const DefaultStoreTTL = 10 * time.Minute

// Store is an esmond archive.
type Store interface {
	CreateMetadata(ctx context.Context, md model.Metadata) (string, error)
	CreateData(ctx context.Context, key string, points []model.DataPoint) error
}

// Options configures an Archiver.
type Options struct {
	// ClientName and ClientVersion are sent as part of the user-agent.
	ClientName    string
	ClientVersion string

	// SpoolDir is where permanently abandoned records are saved. If empty,
	// they are only logged.
	SpoolDir string

	// Summaries replaces the default summary catalog for requests that do
	// not provide their own.
	Summaries summary.Catalog

	// Normalizer resolves addresses. If nil, one using the system resolver
	// is created and closed by Close.
	Normalizer *netx.Normalizer

	// NewStore returns the Store for a configuration. If nil, a
	// *client.Client is used. Stores are reused across requests with the
	// same configuration; a Store that also has a CloseIdleConnections
	// method has it called once it is evicted.
	NewStore func(clientName, clientVersion string, cfg client.Config) (Store, error)

	// StoreTTL is how long an unused Store is kept. Defaults to
	// DefaultStoreTTL.
	StoreTTL time.Duration
}

// storeKey identifies the configuration a Store was created with.
type storeKey struct {
	URL       string
	AuthToken string
	VerifySSL bool
	Bind      string
}

type idleCloser interface {
	CloseIdleConnections()
}

// Archiver archives test runs. It is safe for concurrent use.
type Archiver struct {
	opts     Options
	builder  *record.Builder
	ownsNorm bool

	storesMu sync.Mutex
	stores   *ttlcache.Cache[storeKey, Store]
	// waitEvictions unsubscribes from evictions once pending ones are done.
	waitEvictions func()
	closeOnce     sync.Once
}

// New returns an Archiver configured with opts.
func New(opts Options) *Archiver {
	a := &Archiver{}
	if opts.Normalizer == nil {
		opts.Normalizer = netx.NewNormalizer(nil, netx.DefaultCacheTTL)
		a.ownsNorm = true
	}
	if opts.NewStore == nil {
		opts.NewStore = newClient
	}
	if opts.StoreTTL == 0 {
		opts.StoreTTL = DefaultStoreTTL
	}
	a.opts = opts
	a.builder = record.NewBuilder(opts.Normalizer)
	a.stores = ttlcache.New(
		ttlcache.WithTTL[storeKey, Store](opts.StoreTTL),
	)
	a.waitEvictions = a.stores.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[storeKey, Store]) {
		if c, ok := item.Value().(idleCloser); ok {
			c.CloseIdleConnections()
		}
	})
	go a.stores.Start()
	return a
}

func newClient(name, version string, cfg client.Config) (Store, error) {
	c, err := client.New(name, version, cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases the resources owned by the Archiver. Cached stores have
// their idle connections closed.
func (a *Archiver) Close() {
	a.closeOnce.Do(func() {
		a.stores.Stop()
		a.stores.DeleteAll()
		a.waitEvictions()
		if a.ownsNorm {
			a.opts.Normalizer.Close()
		}
	})
}

// Archive stores req's run and returns the Verdict to report to the
// scheduler. It never panics.
func (a *Archiver) Archive(ctx context.Context, req Request) (v model.Verdict) {
	testType := req.Run.Test.Type
	logger := log.With("id", uuid.NewString(), "type", testType, "attempts", req.Attempts)
	result := "abandoned"
	defer func() {
		if r := recover(); r != nil {
			logger.Error("archive panicked", "panic", r)
			v = model.Abandon(fmt.Sprintf("Internal error while archiving: %v", r))
			result = "abandoned"
		}
		metrics.ArchiveTotal.WithLabelValues(testType, result).Inc()
	}()

	cfg, err := DecodeConfig(req.Data)
	if err != nil {
		logger.Warn("invalid archiver data", "error", err)
		result = "invalid"
		return model.Abandon(err.Error())
	}

	variant, includeRaw, err := record.Select(cfg.DataFormattingPolicy, testType)
	if errors.Is(err, record.ErrUnsupported) {
		logger.Info("skipping test type without a mapping", "policy", cfg.DataFormattingPolicy)
		result = "skipped"
		return model.Success()
	}
	if err != nil {
		result = "invalid"
		return model.Abandon(err.Error())
	}

	summaries := cfg.Catalog()
	if summaries == nil {
		summaries = a.opts.Summaries
	}
	ts := req.Run.Schedule.Start
	if ts.IsZero() {
		ts = time.Now()
	}
	rec, err := a.builder.Build(ctx, variant, record.Input{
		TestType:         testType,
		Spec:             req.Run.Test.Spec,
		LeadParticipant:  req.Run.LeadParticipant(),
		MeasurementAgent: cfg.MeasurementAgent,
		ToolName:         req.Run.Tool.Name,
		Duration:         req.Run.Schedule.DurationSeconds(),
		Timestamp:        ts,
		Result:           req.Run.Result,
		Summaries:        summaries,
		IncludeRaw:       includeRaw,
	})
	if err != nil {
		logger.Error("cannot build record", "error", err)
		result = "invalid"
		return model.Abandon(err.Error())
	}

	store, err := a.store(cfg)
	if err != nil {
		logger.Warn("cannot create store client", "error", err)
		result = "invalid"
		return model.Abandon(err.Error())
	}

	key, err := store.CreateMetadata(ctx, rec.Metadata)
	if err == nil {
		logger.Debug("metadata registered", "key", key)
		err = store.CreateData(ctx, key, rec.Data)
	}
	if err != nil {
		d := cfg.RetryPolicy.Evaluate(err.Error(), req.Attempts)
		if d.Retry {
			logger.Info("archiving failed, will retry", "error", err, "wait", d.Wait)
			result = "retry"
		} else {
			logger.Warn("archiving abandoned", "error", err)
			a.spool(logger, req, cfg, rec, d.Message)
		}
		return d.Verdict()
	}

	logger.Info("run archived", "key", key)
	result = "success"
	return model.Success()
}

// store returns the cached Store for cfg, creating it if needed.
func (a *Archiver) store(cfg *Config) (Store, error) {
	key := storeKey{
		URL:       cfg.URL,
		AuthToken: cfg.AuthToken,
		VerifySSL: cfg.VerifySSL,
		Bind:      cfg.Bind,
	}
	a.storesMu.Lock()
	defer a.storesMu.Unlock()
	if item := a.stores.Get(key); item != nil {
		return item.Value(), nil
	}
	s, err := a.opts.NewStore(a.opts.ClientName, a.opts.ClientVersion, client.Config{
		URL:       cfg.URL,
		AuthToken: cfg.AuthToken,
		VerifySSL: cfg.VerifySSL,
		Bind:      cfg.Bind,
		Emitter:   metrics.Emitter{Next: client.LogEmitter{}},
	})
	if err != nil {
		return nil, err
	}
	a.stores.Set(key, s, ttlcache.DefaultTTL)
	return s, nil
}

// spool saves a record that will not be retried.
func (a *Archiver) spool(logger *log.Logger, req Request, cfg *Config, rec model.Record, msg string) {
	if a.opts.SpoolDir == "" {
		return
	}
	b, err := json.Marshal(rec)
	if err != nil {
		logger.Error("cannot marshal abandoned record", "error", err)
		metrics.SpoolWritesTotal.WithLabelValues("error").Inc()
		return
	}
	id := uuid.NewString()
	entry := model.SpoolEntry{
		UUID:      id,
		Abandoned: time.Now().UTC(),
		URL:       cfg.URL,
		TestType:  req.Run.Test.Type,
		Attempts:  int64(req.Attempts) + 1,
		Error:     msg,
		Record:    string(b),
	}
	subtest := req.Run.Test.Type
	if !persistence.ValidName(subtest) {
		subtest = unknownSubtest
	}
	df, err := persistence.WriteDataFile(a.opts.SpoolDir, Datatype, subtest, id, entry)
	if err != nil {
		logger.Error("cannot spool abandoned record", "error", err)
		metrics.SpoolWritesTotal.WithLabelValues("error").Inc()
		return
	}
	logger.Info("abandoned record spooled", "path", df.Path)
	metrics.SpoolWritesTotal.WithLabelValues("ok").Inc()
}
