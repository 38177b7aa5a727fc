// Package app wires the typofix subsystems into a running daemon.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP surface and the trigger loop, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithHosts, WithBackend, WithJournal, etc.). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/typofix/internal/backend"
	"github.com/MrWong99/typofix/internal/config"
	"github.com/MrWong99/typofix/internal/extract"
	"github.com/MrWong99/typofix/internal/health"
	"github.com/MrWong99/typofix/internal/journal"
	"github.com/MrWong99/typofix/internal/notify"
	"github.com/MrWong99/typofix/internal/observe"
	"github.com/MrWong99/typofix/internal/orchestrator"
	"github.com/MrWong99/typofix/internal/profile"
	"github.com/MrWong99/typofix/internal/write"
	"github.com/MrWong99/typofix/pkg/host"
	"github.com/MrWong99/typofix/pkg/host/desktop"
	"github.com/MrWong99/typofix/pkg/host/osascript"
	"github.com/MrWong99/typofix/pkg/types"
)

const (
	// serverShutdownTimeout bounds draining in-flight HTTP requests.
	serverShutdownTimeout = 5 * time.Second

	// readHeaderTimeout guards the local listener against slow clients.
	readHeaderTimeout = 5 * time.Second
)

// Hosts holds the operating-system adapters. A nil field disables the
// strategies that need it; the orchestrator escalates past them.
type Hosts struct {
	Accessibility host.Accessibility
	Clipboard     host.Clipboard
	Keyboard      host.Keyboard
	Scripting     host.Scripting
}

// starter is implemented by backends that load asynchronously.
type starter interface {
	Start(ctx context.Context)
}

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	cfgPath  string
	hosts    *Hosts
	registry *config.Registry
	levelVar *slog.LevelVar
	triggers <-chan struct{}
	extra    []notify.Notifier

	// Subsystems, initialised in New and torn down in Shutdown.
	backend  backend.Backend
	starter  starter
	journal  journal.Store
	pool     *pgxpool.Pool
	metrics  *observe.Metrics
	profiles *profile.Store
	hub      *notify.Hub
	ctrl     *orchestrator.Controller
	watcher  *config.Watcher
	handler  http.Handler

	// baseCtx bounds cycles started over HTTP. Shutdown cancels it.
	baseCtx context.Context
	cancel  context.CancelFunc

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHosts injects the host adapters instead of creating the platform ones.
func WithHosts(h Hosts) Option {
	return func(a *App) { a.hosts = &h }
}

// WithBackend injects a correction backend instead of building one from the
// registry. The backend is still wrapped in the correction cache.
func WithBackend(b backend.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithJournal injects an outcome journal instead of creating one from config.
func WithJournal(s journal.Store) Option {
	return func(a *App) { a.journal = s }
}

// WithMetrics injects a metrics instance instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithRegistry sets the registry backends are built from. Defaults to
// [NewRegistry].
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithConfigPath enables hot reload of the file at path. The file must hold
// the same configuration New was called with.
func WithConfigPath(path string) Option {
	return func(a *App) { a.cfgPath = path }
}

// WithLogLevel lets configuration reloads adjust the log level of the handler
// built on lv.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = lv }
}

// WithNotifier adds a notifier that receives every outcome alongside the log
// and the websocket hub.
func WithNotifier(n notify.Notifier) Option {
	return func(a *App) { a.extra = append(a.extra, n) }
}

// WithTriggers makes Run start a correction cycle for every value received on
// ch (e.g. from a global shortcut or a signal).
func WithTriggers(ch <-chan struct{}) Option {
	return func(a *App) { a.triggers = ch }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: profile loading, backend
// construction, journal connection and migration, and controller assembly.
// An on-device model is not loaded until Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	a.baseCtx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))

	defer func() {
		if err != nil {
			a.cancel()
			a.runClosers()
		}
	}()

	// ── 1. Profiles ──────────────────────────────────────────────────────
	table, err := BuildProfiles(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: init profiles: %w", err)
	}
	a.profiles = profile.NewStore(table)

	// ── 2. Backend ───────────────────────────────────────────────────────
	if err := a.initBackend(); err != nil {
		return nil, fmt.Errorf("app: init backend: %w", err)
	}

	// ── 3. Journal ───────────────────────────────────────────────────────
	if err := a.initJournal(ctx); err != nil {
		return nil, fmt.Errorf("app: init journal: %w", err)
	}

	// ── 4. Notifiers ─────────────────────────────────────────────────────
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.hub = notify.NewHub()
	a.closers = append(a.closers, func() error {
		a.hub.Close()
		return nil
	})
	notifier := append(notify.Multi{notify.Log{}, a.hub}, a.extra...)

	// ── 5. Controller ────────────────────────────────────────────────────
	if a.hosts == nil {
		a.hosts = defaultHosts()
	}
	h := a.hosts
	a.ctrl, err = orchestrator.New(orchestrator.Config{
		Accessibility: h.Accessibility,
		Clipboard:     h.Clipboard,
		Extractor:     extract.New(h.Accessibility, h.Keyboard, extract.WithScripting(h.Scripting)),
		Backend:       a.backend,
		Writer:        write.New(h.Accessibility, h.Keyboard, h.Scripting),
		Profiles:      a.profiles,
		Notifier:      notifier,
		Journal:       a.journal,
		Metrics:       a.metrics,
		Settings:      settingsFrom(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("app: init controller: %w", err)
	}

	// ── 6. HTTP surface ──────────────────────────────────────────────────
	a.handler = a.routes()

	// ── 7. Config watcher ────────────────────────────────────────────────
	if a.cfgPath != "" {
		w, err := config.NewWatcher(a.cfgPath, a.applyConfig,
			config.WithErrorHandler(func(error) {
				a.metrics.RecordConfigReload(a.baseCtx, "error")
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("app: init config watcher: %w", err)
		}
		a.watcher = w
		a.closers = append([]func() error{func() error {
			w.Stop()
			return nil
		}}, a.closers...)
	}

	return a, nil
}

// initBackend builds the backend from the registry unless one was injected,
// then wraps it in the correction cache.
func (a *App) initBackend() error {
	b := a.backend
	if b == nil {
		if a.registry == nil {
			a.registry = NewRegistry()
		}
		var err error
		b, err = a.registry.CreateBackend(a.cfg)
		if err != nil {
			return err
		}
	}
	if s, ok := b.(starter); ok {
		a.starter = s
	}
	cached, err := backend.NewCached(b, a.cfg.Correction.CacheEntries())
	if err != nil {
		return err
	}
	a.backend = cached
	return nil
}

// initJournal connects the outcome journal. PostgreSQL wins over a file when
// both are configured; with neither, outcomes are discarded.
func (a *App) initJournal(ctx context.Context) error {
	if a.journal != nil {
		return nil
	}
	jc := a.cfg.Journal
	switch {
	case jc.PostgresDSN != "":
		pool, err := pgxpool.New(ctx, jc.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
		store := journal.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		a.pool = pool
		a.journal = store
		slog.Info("outcome journal: postgres")
	case jc.Path != "":
		a.journal = journal.NewFileStore(jc.Path)
		slog.Info("outcome journal: file", "path", jc.Path)
	default:
		a.journal = journal.Nop{}
	}
	return nil
}

// BuildProfiles layers the built-in profiles, the profile file and the inline
// entries of cfg, later layers overriding earlier ones.
func BuildProfiles(cfg *config.Config) (*profile.Table, error) {
	t := profile.Builtin()
	if p := cfg.Profiles.Path; p != "" {
		entries, err := profile.LoadFile(p)
		if err != nil {
			return nil, err
		}
		if t, err = t.With("file:"+p, entries...); err != nil {
			return nil, err
		}
	}
	if len(cfg.Profiles.Apps) > 0 {
		var err error
		if t, err = t.With("config", cfg.Profiles.Apps...); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// settingsFrom derives the hot-reloadable controller settings from cfg.
func settingsFrom(cfg *config.Config) orchestrator.Settings {
	return orchestrator.Settings{
		Deadlines: orchestrator.Deadlines{
			Extract:    cfg.Deadlines.ExtractTimeout(),
			Correction: cfg.Correction.CorrectionDeadline(),
			Loading:    cfg.Correction.LoadingDeadline(),
			Validate:   cfg.Deadlines.ValidateTimeout(),
			Write:      cfg.Deadlines.WriteTimeout(),
		},
		MaxLengthRatio: cfg.Correction.MaxLengthRatio,
	}
}

// defaultHosts creates the platform adapters. Adapters that cannot be created
// are left nil with a warning so the daemon still serves its HTTP surface.
func defaultHosts() *Hosts {
	h := &Hosts{}
	if runtime.GOOS == "darwin" {
		osa := osascript.New()
		h.Accessibility = osa
		h.Scripting = osa
	} else {
		slog.Warn("no accessibility adapter for this platform; cycles will fail with no focused element", "os", runtime.GOOS)
	}
	if clip, err := desktop.NewClipboard(); err != nil {
		slog.Warn("system clipboard unavailable", "err", err)
	} else {
		h.Clipboard = clip
	}
	if kb, err := desktop.NewKeyboard(); err != nil {
		slog.Warn("keyboard simulation unavailable", "err", err)
	} else {
		h.Keyboard = kb
	}
	return h
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Controller returns the correction controller.
func (a *App) Controller() *orchestrator.Controller { return a.ctrl }

// Profiles returns the live profile store.
func (a *App) Profiles() *profile.Store { return a.profiles }

// Handler returns the HTTP handler serving health, metrics, events and the
// trigger endpoint.
func (a *App) Handler() http.Handler { return a.handler }

// ─── HTTP surface ────────────────────────────────────────────────────────────

// routes builds the HTTP surface. The websocket endpoint is mounted outside
// the request middleware since its connections outlive the request.
func (a *App) routes() http.Handler {
	api := http.NewServeMux()
	a.healthHandler().Register(api)
	api.Handle("GET /metrics", promhttp.Handler())
	api.HandleFunc("POST /trigger", a.handleTrigger)
	api.HandleFunc("DELETE /cache", a.handlePurgeCache)

	root := http.NewServeMux()
	root.Handle("GET /events", a.hub)
	root.Handle("/", observe.Middleware(a.metrics)(api))
	return root
}

func (a *App) healthHandler() *health.Handler {
	checkers := []health.Checker{{
		Name: "backend",
		Check: func(context.Context) error {
			switch s := a.backend.Status(); s {
			case backend.StatusReady:
				return nil
			case backend.StatusLoading:
				return errors.New("model loading")
			default:
				return fmt.Errorf("backend %s", s)
			}
		},
	}}
	if a.pool != nil {
		checkers = append(checkers, health.Checker{Name: "journal", Check: a.pool.Ping})
	}
	return health.New(checkers...).WithStatus(a.status)
}

// Status is the snapshot served on /statusz.
type Status struct {
	State             string  `json:"state"`
	Backend           string  `json:"backend"`
	BackendStatus     string  `json:"backend_status"`
	CachedCorrections int     `json:"cached_corrections"`
	Profiles          int     `json:"profiles"`
	Subscribers       int     `json:"subscribers"`
	MaxLengthRatio    float64 `json:"max_length_ratio"`
}

func (a *App) status(context.Context) any {
	s := Status{
		State:          a.ctrl.State().String(),
		Backend:        a.backend.ID(),
		BackendStatus:  a.backend.Status().String(),
		Profiles:       len(a.profiles.Table().Profiles()),
		Subscribers:    a.hub.Subscribers(),
		MaxLengthRatio: a.ctrl.Settings().MaxLengthRatio,
	}
	if c, ok := a.backend.(*backend.Cached); ok {
		s.CachedCorrections = c.Len()
	}
	return s
}

// triggerResponse is the body of a synchronous trigger.
type triggerResponse struct {
	notify.Outcome
	Message string `json:"message"`
}

// handleTrigger starts a correction cycle. By default the cycle runs in the
// background and the request returns 202, or 409 while another cycle is in
// flight. With ?wait=1 the request waits for the outcome and returns it.
func (a *App) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") != "" {
		o, _ := a.ctrl.Correct(a.baseCtx)
		code := http.StatusOK
		if o.Reason == types.ReasonBusy {
			code = http.StatusConflict
		}
		if o.CycleID != "" {
			w.Header().Set(observe.CorrelationHeader, o.CycleID)
		}
		observe.Annotate(r.Context(),
			attribute.String("outcome", o.Kind.String()),
			attribute.String("reason", string(o.Reason)),
		)
		writeJSON(w, code, triggerResponse{Outcome: o, Message: o.Message()})
		return
	}
	if !a.ctrl.Trigger(a.baseCtx) {
		observe.Annotate(r.Context(), attribute.String("outcome", "busy"))
		writeJSON(w, http.StatusConflict, map[string]string{"status": "busy"})
		return
	}
	observe.Annotate(r.Context(), attribute.String("outcome", "accepted"))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handlePurgeCache drops every cached correction and reports how many were
// dropped. Useful after changing the model behind a running backend.
func (a *App) handlePurgeCache(w http.ResponseWriter, _ *http.Request) {
	purged := 0
	if c, ok := a.backend.(*backend.Cached); ok {
		purged = c.Len()
		c.Purge()
		slog.Info("correction cache purged", "entries", purged)
	}
	writeJSON(w, http.StatusOK, map[string]int{"purged": purged})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("app: write response", "err", err)
	}
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// applyConfig applies a reloaded configuration. Settings, log level and
// profiles take effect for the next cycle; everything else needs a restart.
func (a *App) applyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.DeadlinesChanged || d.MaxLengthRatioChanged {
		a.ctrl.UpdateSettings(settingsFrom(new))
		slog.Info("correction settings updated",
			"max_length_ratio", new.Correction.MaxLengthRatio,
			"correction_deadline", new.Correction.CorrectionDeadline(),
		)
	}
	for _, key := range d.RestartRequired {
		slog.Warn("config change takes effect after restart", "key", key)
	}

	// The profile file is re-read on every reload since its content is not
	// part of the watched config.
	status := "ok"
	if t, err := BuildProfiles(new); err != nil {
		slog.Error("profile reload failed; keeping previous profiles", "err", err)
		status = "error"
	} else {
		a.profiles.Replace(t)
	}
	a.metrics.RecordConfigReload(a.baseCtx, status)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve starts loading an on-device model, serves HTTP on ln and runs the
// trigger loop until ctx is cancelled. It returns nil on a clean stop.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	if a.starter != nil {
		a.starter.Start(a.baseCtx)
	}

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return a.baseCtx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// Websocket subscribers are hijacked and would not be drained.
		a.hub.Close()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if a.triggers != nil {
		g.Go(func() error {
			if err := a.ctrl.Serve(gctx, a.triggers); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	slog.Info("typofix running",
		"addr", ln.Addr().String(),
		"backend", a.backend.ID(),
		"backend_status", a.backend.Status(),
	)
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown cancels any cycle started over HTTP, waits for it to restore the
// clipboard, and releases every subsystem. It is safe to call more than once;
// only the first call has an effect.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.cancel()

		done := make(chan struct{})
		go func() {
			a.ctrl.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded while a cycle was in flight")
			shutdownErr = ctx.Err()
			return
		}

		// Run closers in order.
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// runClosers releases whatever New had set up before it failed.
func (a *App) runClosers() {
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
}
