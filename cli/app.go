package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"ytarchive/analysis"
	"ytarchive/catalog"
	"ytarchive/config"
	"ytarchive/internal/batch"
	"ytarchive/internal/filestore"
	"ytarchive/internal/llm"
	"ytarchive/internal/logger"
	"ytarchive/internal/metrics"
	"ytarchive/internal/retry"
	"ytarchive/youtube"
)

// access is the kind of YouTube credentials a command needs.
type access int

const (
	accessNone access = iota
	accessPublic
	accessUser
)

// app is everything a command runs against. It is built once per
// invocation and bound to one batch.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *filestore.Store
	batch    batch.Context
	run      *metrics.Run
	provider youtube.Provider
	catalog  *catalog.Catalog
	llm      llm.Completer
	out      io.Writer

	closers []io.Closer
}

func loadConfig(globals *GlobalFlags) (*config.Config, error) {
	var path string
	if globals != nil {
		path = globals.Config
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if globals != nil {
		if globals.DataDir != "" {
			cfg.DataDir = globals.DataDir
		}
		if globals.Verbose {
			cfg.LogLevel = "debug"
		}
	}
	return cfg, nil
}

// openApp loads the configuration, takes the data root lock and builds the
// services of one run.
func openApp(ctx context.Context, globals *GlobalFlags, command string, need access) (*app, error) {
	cfg, err := loadConfig(globals)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	store, err := filestore.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	b := batch.New()
	a := &app{
		cfg:     cfg,
		logger:  log.With(zap.String("command", command), zap.String("batch_id", b.ID.String())),
		store:   store,
		batch:   b,
		run:     metrics.NewRun(command, b.ID.String(), b.Time),
		out:     os.Stdout,
		closers: []io.Closer{store},
	}

	if need != accessNone {
		provider, err := newProvider(ctx, cfg, need, log)
		if err != nil {
			return nil, errors.Join(err, a.Close())
		}
		a.provider = provider
	}

	captions := youtube.NewTimedtext("", nil)
	a.closers = append(a.closers, captions)
	a.catalog = catalog.New(store, a.provider, b, a.logger, catalog.WithTranscripts(captions))
	a.llm = llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Timeout: cfg.LLM.Timeout,
	})
	return a, nil
}

func newProvider(ctx context.Context, cfg *config.Config, need access, log *zap.Logger) (*youtube.APIProvider, error) {
	opts := youtube.Options{
		APIKey:            cfg.YouTube.APIKey,
		RequestsPerSecond: cfg.YouTube.RequestsPerSecond,
		DailyQuota:        cfg.YouTube.DailyQuota,
		Retry: retry.Config{
			MaxRetries:     cfg.YouTube.MaxRetries,
			InitialBackoff: cfg.YouTube.InitialBackoff,
			MaxBackoff:     cfg.YouTube.MaxBackoff,
			Multiplier:     2,
			JitterFraction: 0.1,
		},
	}
	if need == accessUser {
		if !cfg.HasUserCredentials() {
			return nil, errors.New("youtube.oauth_client_file is required for this command")
		}
		oauthCfg, err := youtube.OAuthConfig(cfg.YouTube.OAuthClientFile)
		if err != nil {
			return nil, err
		}
		client, err := youtube.UserClient(ctx, oauthCfg, cfg.YouTube.TokenFile)
		if errors.Is(err, youtube.ErrNoToken) {
			return nil, fmt.Errorf("%w: run `ytarchive auth` first", err)
		}
		if err != nil {
			return nil, err
		}
		opts.HTTPClient = client
	}
	return youtube.NewAPIProvider(ctx, opts, log)
}

// Close records the quota spent, writes the metrics textfile and releases
// the data root.
func (a *app) Close() error {
	if q, ok := a.provider.(interface{ QuotaUsed() int }); ok {
		a.run.SetQuota(q.QuotaUsed())
	}
	var errs []error
	if a.cfg != nil {
		errs = append(errs, a.run.WriteTextfile(a.cfg.MetricsFile, time.Now()))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// each runs fn for every id. Failures are logged and counted, and the
// loop goes on with the next id; the returned error summarizes them.
// Cancellation stops the loop.
func (a *app) each(ctx context.Context, kind string, ids []string, fn func(id string) error) error {
	failed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(id)
		a.run.Item(kind, err)
		if err != nil {
			failed++
			a.logger.Error("item failed", zap.String("kind", kind), zap.String("id", id), zap.Error(err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d %s items failed", failed, len(ids), kind)
	}
	return nil
}

func (a *app) filter() *analysis.Filter {
	return analysis.NewFilter(a.store, a.catalog.Videos, a.catalog.Channels, a.logger)
}

// execute runs fn against a freshly opened app and closes it. SIGINT
// cancels the context passed to fn.
func execute(globals *GlobalFlags, command string, need access, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := openApp(ctx, globals, command, need)
	if err != nil {
		return err
	}
	return errors.Join(fn(ctx, a), a.Close())
}
