package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"

	"kartetris.ai/internal/logging"
	"kartetris.ai/internal/persistence/mirror"
	"kartetris.ai/internal/persistence/scoredb"
	"kartetris.ai/internal/protocol"
	"kartetris.ai/internal/transport/ws"
)

// RankingLimit is the number of entries GET /api/ranking returns.
const RankingLimit = 10

type Ranking interface {
	TopScores(ctx context.Context, n int) ([]protocol.RankingEntry, error)
	RecentMatches(ctx context.Context, n int) ([]scoredb.Match, error)
}

// Pinger is implemented by rankings that can report storage liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RelayMetrics interface {
	Metrics() ws.Metrics
}

type MirrorStats interface {
	Stats() mirror.Stats
}

type Options struct {
	Ranking Ranking
	Relay   RelayMetrics
	// Mirror adds object storage upload counters to /metrics when set.
	Mirror MirrorStats
	// WS serves the relay websocket at /ws when set.
	WS     http.Handler
	Logger *slog.Logger
	// AdminHTTP enables loopback-only /admin/v1 endpoints.
	AdminHTTP bool
}

func NewRouter(opts Options) http.Handler {
	log := logging.OrDiscard(opts.Logger)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(AccessLog(opts.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	r.Get("/readyz", func(rw http.ResponseWriter, req *http.Request) {
		if p, ok := opts.Ranking.(Pinger); ok {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				log.Warn("ranking store not ready", "err", err)
				http.Error(rw, "ranking store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ready"))
	})
	if opts.Relay != nil {
		r.Get("/metrics", metricsHandler(opts.Relay, opts.Mirror))
	}
	if opts.WS != nil {
		r.Handle("/ws", opts.WS)
	}

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })
		r.Use(cors)
		r.Get("/api/ranking", rankingHandler(opts.Ranking, log))
		r.Get("/api/matches", matchesHandler(opts.Ranking, log))
	})

	if opts.AdminHTTP && opts.Relay != nil {
		r.Route("/admin/v1", func(r chi.Router) {
			r.Use(loopbackOnly)
			r.Get("/state", func(rw http.ResponseWriter, _ *http.Request) {
				writeJSON(rw, http.StatusOK, opts.Relay.Metrics())
			})
		})
	}
	return r
}

func rankingHandler(src Ranking, log *slog.Logger) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if src == nil {
			writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve high scores"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		top, err := src.TopScores(ctx, RankingLimit)
		if err != nil {
			log.Error("ranking fetch", "err", err)
			writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve high scores"})
			return
		}
		if top == nil {
			top = []protocol.RankingEntry{}
		}
		writeJSON(rw, http.StatusOK, top)
	}
}

type matchJSON struct {
	RoomID      string    `json:"roomId"`
	WinnerName  string    `json:"winnerName"`
	LooserName  string    `json:"looserName"`
	WinnerScore int       `json:"winnerScore"`
	LooserScore int       `json:"looserScore"`
	Reason      string    `json:"reason,omitempty"`
	RecordedAt  time.Time `json:"recordedAt"`
}

func matchesHandler(src Ranking, log *slog.Logger) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		limit := 20
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 200 {
				writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "bad limit"})
				return
			}
			limit = n
		}
		if src == nil {
			writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve matches"})
			return
		}
		ms, err := src.RecentMatches(r.Context(), limit)
		if err != nil {
			log.Error("matches fetch", "err", err)
			writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve matches"})
			return
		}
		out := make([]matchJSON, 0, len(ms))
		for _, m := range ms {
			out = append(out, matchJSON(m))
		}
		writeJSON(rw, http.StatusOK, out)
	}
}

func metricsHandler(src RelayMetrics, mir MirrorStats) http.HandlerFunc {
	return func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := src.Metrics()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP kartetris_relay_waiting Peers waiting for an opponent.\n")
		fmt.Fprintf(rw, "# TYPE kartetris_relay_waiting gauge\n")
		fmt.Fprintf(rw, "kartetris_relay_waiting %d\n", m.Waiting)

		fmt.Fprintf(rw, "# HELP kartetris_relay_rooms Rooms with at least one connected peer.\n")
		fmt.Fprintf(rw, "# TYPE kartetris_relay_rooms gauge\n")
		fmt.Fprintf(rw, "kartetris_relay_rooms %d\n", m.Rooms)

		fmt.Fprintf(rw, "# HELP kartetris_relay_connections_total Connection lifecycle events.\n")
		fmt.Fprintf(rw, "# TYPE kartetris_relay_connections_total counter\n")
		fmt.Fprintf(rw, "kartetris_relay_connections_total{state=%q} %d\n", "connected", m.Connected)
		fmt.Fprintf(rw, "kartetris_relay_connections_total{state=%q} %d\n", "disconnected", m.Disconnected)

		fmt.Fprintf(rw, "# HELP kartetris_relay_matches_total Rooms created and how they ended.\n")
		fmt.Fprintf(rw, "# TYPE kartetris_relay_matches_total counter\n")
		fmt.Fprintf(rw, "kartetris_relay_matches_total{outcome=%q} %d\n", "started", m.Matches)
		fmt.Fprintf(rw, "kartetris_relay_matches_total{outcome=%q} %d\n", "result", m.Results)
		fmt.Fprintf(rw, "kartetris_relay_matches_total{outcome=%q} %d\n", "forfeit", m.Forfeits)

		fmt.Fprintf(rw, "# HELP kartetris_relay_frames_total Relayed frames by event.\n")
		fmt.Fprintf(rw, "# TYPE kartetris_relay_frames_total counter\n")
		fmt.Fprintf(rw, "kartetris_relay_frames_total{event=%q} %d\n", protocol.EventGameUpdate, m.Updates)
		fmt.Fprintf(rw, "kartetris_relay_frames_total{event=%q} %d\n", protocol.EventEffect, m.Effects)

		fmt.Fprintf(rw, "# HELP kartetris_relay_errors_total Rejected frames, store failures and dropped sends.\n")
		fmt.Fprintf(rw, "# TYPE kartetris_relay_errors_total counter\n")
		fmt.Fprintf(rw, "kartetris_relay_errors_total{kind=%q} %d\n", "protocol", m.ProtocolErrors)
		fmt.Fprintf(rw, "kartetris_relay_errors_total{kind=%q} %d\n", "store", m.StoreErrors)
		fmt.Fprintf(rw, "kartetris_relay_errors_total{kind=%q} %d\n", "dropped", m.DroppedFrames)

		if mir != nil {
			writeMirrorMetrics(rw, mir.Stats())
		}
	}
}

func writeMirrorMetrics(rw http.ResponseWriter, s mirror.Stats) {
	fmt.Fprintf(rw, "# HELP kartetris_mirror_queue_depth Match log files waiting for upload.\n")
	fmt.Fprintf(rw, "# TYPE kartetris_mirror_queue_depth gauge\n")
	fmt.Fprintf(rw, "kartetris_mirror_queue_depth %d\n", s.QueueDepth)
	fmt.Fprintf(rw, "# HELP kartetris_mirror_queue_capacity Upload queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE kartetris_mirror_queue_capacity gauge\n")
	fmt.Fprintf(rw, "kartetris_mirror_queue_capacity %d\n", s.QueueCapacity)

	fmt.Fprintf(rw, "# HELP kartetris_mirror_files_total Match log files by upload outcome.\n")
	fmt.Fprintf(rw, "# TYPE kartetris_mirror_files_total counter\n")
	fmt.Fprintf(rw, "kartetris_mirror_files_total{outcome=%q} %d\n", "enqueued", s.Enqueued)
	fmt.Fprintf(rw, "kartetris_mirror_files_total{outcome=%q} %d\n", "dropped", s.Dropped)
	fmt.Fprintf(rw, "kartetris_mirror_files_total{outcome=%q} %d\n", "uploaded", s.Uploaded)
	fmt.Fprintf(rw, "kartetris_mirror_files_total{outcome=%q} %d\n", "failed", s.Failed)

	fmt.Fprintf(rw, "# HELP kartetris_mirror_last_success_unix Unix time of the last successful upload.\n")
	fmt.Fprintf(rw, "# TYPE kartetris_mirror_last_success_unix gauge\n")
	fmt.Fprintf(rw, "kartetris_mirror_last_success_unix %d\n", s.LastSuccessUnix)
	fmt.Fprintf(rw, "# HELP kartetris_mirror_last_error_unix Unix time of the last failed upload.\n")
	fmt.Fprintf(rw, "# TYPE kartetris_mirror_last_error_unix gauge\n")
	fmt.Fprintf(rw, "kartetris_mirror_last_error_unix %d\n", s.LastErrorUnix)
}

// cors allows the browser client on another origin to read the API.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Access-Control-Allow-Origin", "*")
		rw.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			rw.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func isLoopbackRemote(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
