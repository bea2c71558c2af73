// sessionprobe connects to the Podwave gateway and streams session
// activity to the console.
// Usage: go run ./cmd/sessionprobe --config configs/relayd.local.yaml
//
// Required environment variables (referenced from the config file):
//
//	PODWAVE_ACCESS_KEY_ID - Access key ID from the Podwave console
//	PODWAVE_SECRET_PATH   - Path to the shared secret file
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/podwave/relay/internal/auth"
	"github.com/podwave/relay/internal/backoff"
	"github.com/podwave/relay/internal/config"
	"github.com/podwave/relay/internal/rooms"
	"github.com/podwave/relay/internal/session"
	"github.com/podwave/relay/internal/transport"
)

func main() {
	configPath := flag.String("config", "configs/relayd.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	sendRate := flag.Float64("send-rate", 0, "synthetic probe messages per second (0 = send nothing)")
	flag.Parse()

	_ = godotenv.Load()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config. The probe never touches the database, so skip the
	// full validation pass that requires it.
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	// Gateway handshakes must be signed
	creds, err := auth.LoadCredentials(cfg.API.KeyID, cfg.API.SecretPath)
	if err != nil {
		logger.Error("failed to load credentials", "error", err)
		logger.Info("Set environment variables: PODWAVE_ACCESS_KEY_ID and PODWAVE_SECRET_PATH")
		os.Exit(1)
	}
	logger.Info("using access key", "key_id", creds.KeyID)

	client := session.New(session.Config{
		Dial: transport.Dialer(transport.Options{
			HandshakeTimeout: cfg.Gateway.HandshakeTimeout,
			WriteTimeout:     cfg.Gateway.WriteTimeout,
			PingInterval:     cfg.Gateway.PingInterval,
			PongWait:         cfg.Gateway.PongWait,
			ReadLimit:        cfg.Gateway.ReadLimit,
			MessageBuffer:    cfg.Gateway.MessageBuffer,
			HeaderFunc:       signedHandshake(creds),
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

	// Print transitions and join configured rooms on the first connect.
	// Later reconnects restore membership on their own.
	var joinOnce sync.Once
	unsubscribe := client.OnStateChange(func(st session.Status) {
		fmt.Printf("[STATE] state=%s attempt=%d\n", st.State, st.Attempt)
		if st.State != session.StateConnected {
			return
		}
		joinOnce.Do(func() {
			if cfg.Rooms.Game != "" {
				client.JoinRoom(rooms.KindGame, cfg.Rooms.Game)
			}
			if cfg.Rooms.Collaborative != "" {
				client.JoinRoom(rooms.KindCollaborative, cfg.Rooms.Collaborative)
			}
		})
	})
	defer unsubscribe()

	// Start console printer
	go printInbound(ctx, client.Messages(), *verbose)

	// Optional paced sender
	if *sendRate > 0 {
		go sendProbes(ctx, client, *sendRate)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := client.Stats()
				logger.Info("stats",
					"state", st.State,
					"attempt", st.Attempt,
					"pending", st.Pending,
					"rooms", st.Rooms,
					"sent", st.Counters.Sent,
					"enqueued", st.Counters.Enqueued,
					"replayed", st.Counters.Replayed,
					"duplicates", st.Counters.Duplicates,
					"reconnects", st.Counters.Reconnects,
					"rejoins", st.Counters.Rejoins,
					"queue_evictions", st.QueueEvictions,
				)
			}
		}
	}()

	client.Connect(cfg.Gateway.URL)

	logger.Info("probe started - press Ctrl+C to stop", "gateway", cfg.Gateway.URL)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	client.Disconnect()

	final := client.Stats()
	data, _ := json.MarshalIndent(final, "", "  ")
	fmt.Printf("[FINAL STATS] %s\n", data)

	logger.Info("shutdown complete")
}

// signedHandshake signs the gateway handshake freshly on every dial.
func signedHandshake(creds *auth.Credentials) func() http.Header {
	return func() http.Header {
		h := http.Header{}
		for k, v := range creds.SignHandshake() {
			h.Set(k, v)
		}
		return h
	}
}

func printInbound(ctx context.Context, messages <-chan session.Inbound, verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if verbose {
				var pretty any
				if err := json.Unmarshal(msg.Data, &pretty); err == nil {
					data, _ := json.MarshalIndent(pretty, "", "  ")
					fmt.Printf("[EVENT] id=%s type=%s\n%s\n", msg.ID, msg.Type, data)
					continue
				}
			}
			fmt.Printf("[EVENT] id=%s type=%s bytes=%d received=%s\n",
				msg.ID, msg.Type, len(msg.Data), msg.ReceivedAt.Format(time.RFC3339Nano))
		}
	}
}

// sendProbes emits synthetic probe messages at the requested rate. The
// session buffers them through drops, so the probe doubles as a replay
// exercise when the gateway flaps.
func sendProbes(ctx context.Context, client session.Client, perSecond float64) {
	limiter := rate.NewLimiter(rate.Limit(perSecond), 1)
	seq := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		seq++
		payload, _ := json.Marshal(map[string]any{
			"type":    "probe_ping",
			"id":      uuid.NewString(),
			"seq":     seq,
			"sent_at": time.Now().UTC().Format(time.RFC3339Nano),
		})
		client.Send(payload)
	}
}
