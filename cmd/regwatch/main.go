// Entry point for the regwatch monitoring service: chi HTTP API,
// background check loop, optional MCP stdio transport.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/veillelab/regwatch/monitor"
)

func main() {
	port := env("PORT", "8090")
	configPath := env("CONFIG", "")
	mcpTransport := env("MCP_TRANSPORT", "")
	logLevel := env("LOG_LEVEL", "info")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Config: YAML file when given, env overrides on top.
	var cfg *monitor.Config
	var err error
	if configPath != "" {
		cfg, err = monitor.LoadConfig(configPath)
		if err != nil {
			slog.Error("load config", "path", configPath, "error", err)
			os.Exit(1)
		}
	} else {
		cfg = monitor.DefaultConfig()
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}

	// Database.
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("create data dir", "dir", dir, "error", err)
			os.Exit(1)
		}
	}
	db, err := sql.Open("sqlite", cfg.DatabasePath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		slog.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	svc, err := monitor.New(db, cfg, logger)
	if err != nil {
		slog.Error("monitor service", "error", err)
		os.Exit(1)
	}
	defer svc.Stop()

	if err := svc.Bootstrap(ctx); err != nil {
		slog.Error("bootstrap sources", "error", err)
		os.Exit(1)
	}

	// Optional MCP over stdio.
	if mcpTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "regwatch",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		go func() {
			slog.Info("MCP stdio starting")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("MCP stdio", "error", err)
			}
		}()
	}

	// Start the check loop.
	svc.Start(ctx)

	// Router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{
			"status":    "ok",
			"scheduler": svc.SchedulerState(),
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sources", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, 200, svc.ListSources())
		})

		r.Post("/sources", func(w http.ResponseWriter, r *http.Request) {
			var req sourceRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			src := req.toSource()
			if err := svc.AddSource(r.Context(), src); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 201, src)
		})

		r.Get("/sources/{id}", func(w http.ResponseWriter, r *http.Request) {
			src, err := svc.GetSource(chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, src)
		})

		r.Put("/sources/{id}", func(w http.ResponseWriter, r *http.Request) {
			var req sourceRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			src := req.toSource()
			src.ID = chi.URLParam(r, "id")
			if req.Active == nil {
				existing, err := svc.GetSource(src.ID)
				if err != nil {
					writeError(w, statusFor(err), err)
					return
				}
				src.Active = existing.Active
			}
			if err := svc.UpdateSource(r.Context(), src); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			updated, err := svc.GetSource(src.ID)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, updated)
		})

		r.Delete("/sources/{id}", func(w http.ResponseWriter, r *http.Request) {
			purge := r.URL.Query().Get("purge") == "true"
			if err := svc.RemoveSource(r.Context(), chi.URLParam(r, "id"), purge); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			w.WriteHeader(204)
		})

		r.Post("/sources/{id}/check", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			if err := svc.ForceCheckOne(r.Context(), id); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "checked", "source_id": id})
		})

		r.Post("/sources/{id}/reactivate", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			if err := svc.ReactivateSource(id); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "reactivated", "source_id": id})
		})

		r.Get("/sources/{id}/health", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			state, failures, err := svc.SourceHealth(id)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, map[string]any{
				"source_id":            id,
				"state":                state,
				"consecutive_failures": failures,
			})
		})

		r.Post("/check", func(w http.ResponseWriter, r *http.Request) {
			if svc.Stopped() {
				writeError(w, 503, monitor.ErrStopped)
				return
			}
			// The cycle blocks until its slowest fetch completes; run it
			// in the background and let callers follow up via /checks.
			go func() {
				n, err := svc.ForceCheckAll(context.Background())
				if err != nil {
					slog.Warn("forced check cycle", "error", err)
					return
				}
				slog.Info("forced check cycle complete", "sources", n)
			}()
			writeJSON(w, 202, map[string]string{"status": "submitted"})
		})

		r.Get("/changes", func(w http.ResponseWriter, r *http.Request) {
			changes, err := svc.RecentChanges(r.Context(),
				r.URL.Query().Get("source_id"), queryInt(r, "limit", 50))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			if changes == nil {
				changes = []*monitor.Change{}
			}
			writeJSON(w, 200, changes)
		})

		r.Get("/checks", func(w http.ResponseWriter, r *http.Request) {
			history, err := svc.CheckHistory(r.Context(),
				r.URL.Query().Get("source_id"), queryInt(r, "limit", 50))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			if history == nil {
				history = []*monitor.CheckLogEntry{}
			}
			writeJSON(w, 200, history)
		})

		r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, 200, svc.Stats())
		})
	})

	// HTTP server.
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// sourceRequest is the JSON body for source create/update. The
// interval crosses the API as seconds.
type sourceRequest struct {
	Name            string `json:"name"`
	Endpoint        string `json:"endpoint"`
	SourceType      string `json:"source_type"`
	IntervalSeconds int64  `json:"check_interval_seconds"`
	Active          *bool  `json:"active"`
}

func (req *sourceRequest) toSource() *monitor.Source {
	src := &monitor.Source{
		Name:          req.Name,
		Endpoint:      req.Endpoint,
		SourceType:    req.SourceType,
		CheckInterval: time.Duration(req.IntervalSeconds) * time.Second,
		Active:        true,
	}
	if req.Active != nil {
		src.Active = *req.Active
	}
	return src
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, monitor.ErrSourceNotFound):
		return 404
	case errors.Is(err, monitor.ErrDuplicateSource):
		return 409
	case errors.Is(err, monitor.ErrInvalidInput):
		return 400
	case errors.Is(err, monitor.ErrQuotaExceeded):
		return 429
	case errors.Is(err, monitor.ErrStopped):
		return 503
	default:
		return 500
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
