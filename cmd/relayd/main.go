// Command relayd connects to the Podwave realtime gateway, keeps the
// session alive across drops, and archives gateway traffic to Postgres.
//
// Startup: load config, verify gateway status and configured rooms over
// the platform REST API, open the archive pool, then hand the gateway
// URL to the resilient session client. Room joins are issued once the
// session first reaches connected; later reconnects restore membership
// automatically.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/podwave/relay/internal/api"
	"github.com/podwave/relay/internal/auth"
	"github.com/podwave/relay/internal/backoff"
	"github.com/podwave/relay/internal/config"
	"github.com/podwave/relay/internal/database"
	"github.com/podwave/relay/internal/monitor"
	"github.com/podwave/relay/internal/recorder"
	"github.com/podwave/relay/internal/rooms"
	"github.com/podwave/relay/internal/session"
	"github.com/podwave/relay/internal/transport"
	"github.com/podwave/relay/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/relayd.local.yaml", "path to config file")
	flag.Parse()

	// Populate the environment from .env if present. Real deployments
	// inject variables directly and have no .env file.
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting relayd",
		"version", version.Version,
		"commit", version.Commit,
		"built", version.BuildTime,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("relayd exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("relayd stopped")
}

func run(ctx context.Context, cfg *config.RelayConfig, logger *slog.Logger) error {
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	logger.Info("database pool ready", "host", cfg.Database.Host, "database", cfg.Database.Name)

	creds, err := auth.LoadCredentials(cfg.API.KeyID, cfg.API.SecretPath)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	apiClient := api.NewClient(cfg.API.BaseURL, creds,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	status, err := apiClient.GetGatewayStatus(ctx)
	if err != nil {
		return fmt.Errorf("gateway status check: %w", err)
	}
	if !status.GatewayActive || !status.RealtimeActive {
		// The session client retries on its own, so an inactive gateway
		// delays startup rather than aborting it.
		logger.Warn("gateway reports inactive",
			"gateway_active", status.GatewayActive,
			"realtime_active", status.RealtimeActive,
			"estimated_resume", status.EstimatedResumeTime,
		)
	}

	verifyRooms(ctx, apiClient, cfg.Rooms, logger)

	client := session.New(session.Config{
		Dial: transport.Dialer(transport.Options{
			HandshakeTimeout: cfg.Gateway.HandshakeTimeout,
			WriteTimeout:     cfg.Gateway.WriteTimeout,
			PingInterval:     cfg.Gateway.PingInterval,
			PongWait:         cfg.Gateway.PongWait,
			ReadLimit:        cfg.Gateway.ReadLimit,
			MessageBuffer:    cfg.Gateway.MessageBuffer,
			HeaderFunc:       gatewayHeader(creds),
			Logger:           logger,
		}),
		Backoff: backoff.Policy{
			InitialDelay: cfg.Session.ReconnectBaseDelay,
			MaxDelay:     cfg.Session.ReconnectMaxDelay,
			MaxAttempts:  cfg.Session.MaxAttempts,
		},
		QueueCapacity: cfg.Session.QueueCapacity,
		DedupCapacity: cfg.Session.DedupCapacity,
		DedupTrim:     cfg.Session.DedupTrim,
		Buffer:        cfg.Session.Buffer,
		Logger:        logger,
	})

	recCfg := recorder.Config{
		InstanceID:    cfg.Instance.ID,
		BatchSize:     cfg.Recorder.BatchSize,
		FlushInterval: cfg.Recorder.FlushInterval,
		BufferSize:    cfg.Recorder.BufferSize,
	}

	transRec := recorder.NewTransitionRecorder(recCfg, pool, logger)
	if err := transRec.Start(ctx); err != nil {
		return fmt.Errorf("start transition recorder: %w", err)
	}
	unsubTrans := client.OnStateChange(transRec.Record)

	eventRec := recorder.NewEventRecorder(recCfg, client.Messages(), pool, logger)
	if err := eventRec.Start(ctx); err != nil {
		return fmt.Errorf("start event recorder: %w", err)
	}

	// Membership is announced the first time the session connects.
	// Reconnects after that restore it without our help.
	var joinOnce sync.Once
	unsubJoin := client.OnStateChange(func(st session.Status) {
		if st.State != session.StateConnected {
			return
		}
		joinOnce.Do(func() { joinRooms(client, cfg.Rooms) })
	})

	mon := monitor.New(monitor.Config{Interval: cfg.Monitor.Interval}, logger)
	registerSamplers(mon, client, eventRec, transRec)
	if err := mon.Start(ctx); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: healthHandler(pool, client),
	}
	go func() {
		logger.Info("health server listening", "addr", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", "error", err)
		}
	}()

	client.Connect(cfg.Gateway.URL)

	logger.Info("relayd running", "gateway", cfg.Gateway.URL, "instance", cfg.Instance.ID)
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Stop the session first so the recorders see the final transition
	// and drain whatever the gateway delivered before the drop.
	client.Disconnect()
	unsubJoin()
	unsubTrans()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := mon.Stop(shutdownCtx); err != nil {
		logger.Warn("monitor stop", "error", err)
	}
	if err := eventRec.Stop(shutdownCtx); err != nil {
		logger.Warn("event recorder stop", "error", err)
	}
	if err := transRec.Stop(shutdownCtx); err != nil {
		logger.Warn("transition recorder stop", "error", err)
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown", "error", err)
	}
	return nil
}

// gatewayHeader returns a HeaderFunc that signs the gateway handshake
// freshly on every dial, so reconnect attempts never present a stale
// timestamp.
func gatewayHeader(creds *auth.Credentials) func() http.Header {
	return func() http.Header {
		h := http.Header{}
		for k, v := range creds.SignHandshake() {
			h.Set(k, v)
		}
		return h
	}
}

// verifyRooms looks up each configured room over the REST API. Lookup
// failures are logged and skipped: the gateway join is what actually
// establishes membership, and it reports its own errors.
func verifyRooms(ctx context.Context, apiClient *api.Client, cfg config.RoomsConfig, logger *slog.Logger) {
	for kind, id := range map[string]string{
		rooms.KindGame:          cfg.Game,
		rooms.KindCollaborative: cfg.Collaborative,
	} {
		if id == "" {
			continue
		}
		room, err := apiClient.GetRoom(ctx, kind, id)
		if err != nil {
			logger.Warn("room lookup failed", "kind", kind, "room_id", id, "error", err)
			continue
		}
		logger.Info("room verified",
			"kind", kind,
			"room_id", room.RoomID,
			"title", room.Title,
			"members", room.MemberCount,
			"room_state", room.State,
		)
	}
}

func joinRooms(client session.Client, cfg config.RoomsConfig) {
	if cfg.Game != "" {
		client.JoinRoom(rooms.KindGame, cfg.Game)
	}
	if cfg.Collaborative != "" {
		client.JoinRoom(rooms.KindCollaborative, cfg.Collaborative)
	}
}

func registerSamplers(mon *monitor.Monitor, client session.Client, eventRec *recorder.EventRecorder, transRec *recorder.TransitionRecorder) {
	mon.Register("session", monitor.SamplerFunc(func() []any {
		st := client.Stats()
		return []any{
			"state", string(st.State),
			"attempt", st.Attempt,
			"pending", st.Pending,
			"rooms", st.Rooms,
			"sent", st.Counters.Sent,
			"replayed", st.Counters.Replayed,
			"duplicates", st.Counters.Duplicates,
			"reconnects", st.Counters.Reconnects,
		}
	}))
	mon.Register("events", monitor.SamplerFunc(func() []any {
		m := eventRec.Stats()
		return []any{
			"inserts", m.Inserts,
			"conflicts", m.Conflicts,
			"errors", m.Errors,
			"dropped", m.Dropped,
		}
	}))
	mon.Register("transitions", monitor.SamplerFunc(func() []any {
		m := transRec.Stats()
		return []any{
			"inserts", m.Inserts,
			"errors", m.Errors,
		}
	}))
}

// healthHandler serves /health for liveness probes and /debug/session
// for operators poking at a live instance.
func healthHandler(pool *pgxpool.Pool, client session.Client) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}

		st := client.Status()
		health.Components["session"] = map[string]any{
			"state":   st.State,
			"attempt": st.Attempt,
		}
		switch st.State {
		case session.StateFailed:
			health.Status = "unhealthy"
		case session.StateReconnecting, session.StateDisconnected:
			if health.Status == "healthy" {
				health.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			slog.Error("failed to encode health response", "error", err)
		}
	})

	mux.HandleFunc("/debug/session", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		out := map[string]any{
			"stats":        client.Stats(),
			"reconnection": client.ReconnectionState(),
		}
		if err := json.NewEncoder(w).Encode(out); err != nil {
			slog.Error("failed to encode session debug", "error", err)
		}
	})

	return mux
}
