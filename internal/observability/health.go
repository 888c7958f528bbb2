package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Probe reports the chat connection's liveness.
type Probe interface {
	IsReady() bool
	Latency() time.Duration
	GuildCount() int
}

type Server struct {
	probe   Probe
	port    int
	started time.Time
	logger  *zap.Logger
}

func NewServer(probe Probe, port int, logger *zap.Logger) *Server {
	return &Server{
		probe:   probe,
		port:    port,
		started: time.Now(),
		logger:  logger,
	}
}

type MemoryStatus struct {
	HeapAllocBytes uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes   uint64 `json:"heap_sys_bytes"`
	SysBytes       uint64 `json:"sys_bytes"`
	Goroutines     int    `json:"goroutines"`
}

type rootStatus struct {
	Status    string       `json:"status"`
	Uptime    float64      `json:"uptime"`
	Memory    MemoryStatus `json:"memory"`
	Guilds    int          `json:"guilds"`
	Timestamp string       `json:"timestamp"`
}

type healthStatus struct {
	Status   string  `json:"status"`
	BotReady bool    `json:"bot_ready"`
	WSPing   int64   `json:"ws_ping"`
	Uptime   float64 `json:"uptime"`
}

// ReadMemory samples the runtime's memory counters.
func ReadMemory() MemoryStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStatus{
		HeapAllocBytes: m.HeapAlloc,
		HeapSysBytes:   m.HeapSys,
		SysBytes:       m.Sys,
		Goroutines:     runtime.NumGoroutine(),
	}
}

// Handler returns the mux serving "/", "/health" and "/metrics".
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, rootStatus{
			Status:    "Bot is running",
			Uptime:    time.Since(s.started).Seconds(),
			Memory:    ReadMemory(),
			Guilds:    s.probe.GuildCount(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		ready := s.probe.IsReady()
		body := healthStatus{
			Status:   "healthy",
			BotReady: ready,
			WSPing:   s.probe.Latency().Milliseconds(),
			Uptime:   time.Since(s.started).Seconds(),
		}
		code := http.StatusOK
		if !ready {
			body.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, body)
	})

	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Health check server starting", zap.Int("port", s.port))

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}
