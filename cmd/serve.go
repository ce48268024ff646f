package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cellardesk/cellar-cli/internal/backfill"
	"github.com/cellardesk/cellar-cli/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(requestLogger)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/api/wines/{id}/readiness", func(w http.ResponseWriter, req *http.Request) {
			wineID, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid wine id")
				return
			}
			res, err := env.Orch.Recompute(req.Context(), wineID)
			if err != nil {
				if eris.Is(err, backfill.ErrWineNotFound) {
					writeError(w, http.StatusNotFound, "wine not found")
					return
				}
				serverError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, res)
		})

		r.Post("/api/backfill", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Mode string `json:"mode"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if !model.ValidBackfillMode(body.Mode) {
				writeError(w, http.StatusBadRequest, "invalid mode")
				return
			}
			job, err := env.Orch.Start(req.Context(), model.BackfillMode(body.Mode))
			if err != nil {
				if eris.Is(err, backfill.ErrJobAlreadyRunning) {
					writeError(w, http.StatusConflict, "a backfill job is already running")
					return
				}
				serverError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, job)
		})

		r.Post("/api/backfill/{id}/step", func(w http.ResponseWriter, req *http.Request) {
			jobID := chi.URLParam(req, "id")
			done, err := env.Orch.Step(req.Context(), jobID)
			if err != nil {
				if eris.Is(err, backfill.ErrJobNotFound) {
					writeError(w, http.StatusNotFound, "job not found")
					return
				}
				serverError(w, err)
				return
			}
			job, err := env.Orch.Status(req.Context(), jobID)
			if err != nil {
				serverError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"done": done, "job": job})
		})

		r.Post("/api/backfill/{id}/resume", func(w http.ResponseWriter, req *http.Request) {
			jobID := chi.URLParam(req, "id")
			job, err := env.Orch.Status(req.Context(), jobID)
			if err != nil {
				if eris.Is(err, backfill.ErrJobNotFound) {
					writeError(w, http.StatusNotFound, "job not found")
					return
				}
				serverError(w, err)
				return
			}
			if job.Status.Terminal() && job.Status != model.JobFailed {
				writeError(w, http.StatusConflict, fmt.Sprintf("job is %s and cannot be resumed", job.Status))
				return
			}
			// Resume runs the whole step loop; drive it off the server
			// context so it survives the request.
			go func() {
				if err := env.Orch.Resume(ctx, jobID); err != nil {
					zap.L().Error("resume failed", zap.String("job_id", jobID), zap.Error(err))
				}
			}()
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "resuming", "job_id": jobID})
		})

		r.Post("/api/backfill/{id}/cancel", func(w http.ResponseWriter, req *http.Request) {
			if err := env.Orch.Cancel(req.Context(), chi.URLParam(req, "id")); err != nil {
				if eris.Is(err, backfill.ErrJobNotFound) {
					writeError(w, http.StatusNotFound, "job not found")
					return
				}
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "cancel requested"})
		})

		r.Get("/api/backfill/{id}", func(w http.ResponseWriter, req *http.Request) {
			job, err := env.Orch.Status(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				if eris.Is(err, backfill.ErrJobNotFound) {
					writeError(w, http.StatusNotFound, "job not found")
					return
				}
				serverError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, job)
		})

		r.Post("/api/lineup", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Candidates []model.Bottle    `json:"candidates"`
				Food       model.FoodProfile `json:"food"`
				Seats      int               `json:"seats"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			pool := body.Candidates
			if pool == nil {
				var err error
				pool, err = env.Store.GetInStockBottles(req.Context())
				if err != nil {
					serverError(w, err)
					return
				}
			}
			writeJSON(w, http.StatusOK, env.Orderer.Order(pool, body.Food, body.Seats))
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func serverError(w http.ResponseWriter, err error) {
	zap.L().Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// requestLogger logs every request with method, path, status and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
