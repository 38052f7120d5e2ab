package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"kartetris.ai/internal/logging"
	"kartetris.ai/internal/persistence/matchlog"
	"kartetris.ai/internal/persistence/mirror"
	"kartetris.ai/internal/persistence/scoredb"
	"kartetris.ai/internal/protocol"
	"kartetris.ai/internal/sim/tuning"
	"kartetris.ai/internal/transport/api"
	"kartetris.ai/internal/transport/ws"
)

func main() {
	var (
		addr            = flag.String("addr", ":8080", "http listen address")
		dbPath          = flag.String("db", "./data/scores.sqlite", "ranking database path")
		matchlogDir     = flag.String("matchlog", "./data/matchlog", "match event log directory")
		disableMatchlog = flag.Bool("disable_matchlog", false, "do not record relayed events")
		logMode         = flag.String("log", os.Getenv("KT_LOG_MODE"), "log mode: dev, prod or silent")
		tuningPath      = flag.String("tuning", "", "tuning.yaml shared with clients; only validated here, the relay does not simulate")
		storeTimeout    = flag.Duration("store_timeout", 5*time.Second, "timeout for each score write")
	)
	flag.Parse()

	mode, err := logging.ParseMode(*logMode)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	logger := logging.New(mode).With("component", "server")
	fatal := func(msg string, err error) {
		logger.Error(msg, "err", err)
		os.Exit(1)
	}

	if err := lintTuning(*tuningPath, logger); err != nil {
		fatal("invalid tuning", err)
	}

	store, err := scoredb.Open(*dbPath, logger)
	if err != nil {
		fatal("open ranking db", err)
	}
	defer store.Close()

	validator, err := protocol.NewValidator()
	if err != nil {
		fatal("compile schemas", err)
	}

	cfg := ws.HubConfig{
		Store:        store,
		Validator:    validator,
		Logger:       logger.With("component", "hub"),
		StoreTimeout: *storeTimeout,
	}
	var mir *mirror.Mirror
	if !*disableMatchlog {
		mir, err = buildMirror(filepath.Dir(filepath.Clean(*matchlogDir)), logger.With("component", "mirror"))
		if err != nil {
			fatal("init mirror", err)
		}
		var opts matchlog.WriterOptions
		if mir != nil {
			defer mir.Close()
			opts.OnClose = mir.Enqueue
		}
		mlog := matchlog.NewWriterWithOptions(*matchlogDir, opts)
		defer mlog.Close()
		cfg.Recorder = mlog
	} else {
		logger.Info("match log disabled")
	}
	hub := ws.NewHub(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := hub.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("hub stopped", "err", err)
		}
	}()

	enableAdminHTTP := envBool("KT_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("KT_ENABLE_PPROF_HTTP", false)
	if !enableAdminHTTP {
		logger.Info("admin endpoints disabled (KT_ENABLE_ADMIN_HTTP=false)")
	}

	opts := api.Options{
		Ranking:   store,
		Relay:     hub,
		WS:        ws.NewServer(hub, logger.With("component", "ws")).Handler(),
		Logger:    logger.With("component", "http"),
		AdminHTTP: enableAdminHTTP,
	}
	if mir != nil {
		opts.Mirror = mir
	}
	router := api.NewRouter(opts)

	handler := router
	if enablePprofHTTP {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		mux.Handle("/", router)
		handler = mux
	} else {
		logger.Info("pprof endpoints disabled (KT_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info("listening", "addr", *addr, "db", *dbPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fatal("ListenAndServe", err)
	}
}

// lintTuning fails startup on a tuning file clients would reject. An empty
// path is allowed.
func lintTuning(path string, logger *slog.Logger) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	t, err := tuning.Load(path)
	if err != nil {
		return err
	}
	logger.Info("tuning validated", "path", path, "gravity_ms", t.GravityMs, "score_per_line", t.ScorePerLine)
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
