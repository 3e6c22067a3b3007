package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/meridian-fs/recon-cli/internal/engine"
	"github.com/meridian-fs/recon-cli/internal/recordstore"
	"github.com/meridian-fs/recon-cli/internal/schema"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the audits, traces, and propagation over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, done, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer done()

		router := newRouter(e, serverOptions{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RatePerSecond:  cfg.Server.RatePerSecond,
			RateBurst:      cfg.Server.RateBurst,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

type serverOptions struct {
	AllowedOrigins []string
	RatePerSecond  float64
	RateBurst      int
}

// newRouter builds the HTTP surface over an engine.
func newRouter(e *engine.Engine, opts serverOptions) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	if opts.RatePerSecond > 0 {
		r.Use(throttle(rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.RateBurst)))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/templates", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, e.Templates())
		})

		r.Route("/companies/{company}", func(r chi.Router) {
			r.Get("/audits/{kind}", handleAudit(e))
			r.Get("/batches/{batch}", handleTrace(e))
			r.Post("/batches/{batch}/propagate", handlePropagate(e))
		})
	})

	return r
}

// throttle applies a shared token bucket across all requests.
func throttle(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, eris.New("rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleAudit(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		company := chi.URLParam(r, "company")
		account := r.URL.Query().Get("account")

		var (
			res any
			err error
		)
		switch chi.URLParam(r, "kind") {
		case "gl":
			res, err = e.ValidateGLBalances(ctx, company, account)
		case "check-matching":
			var start, end time.Time
			if start, err = parseDateParam(r, "start"); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if end, err = parseDateParam(r, "end"); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			res, err = e.AuditCheckGLMatching(ctx, company, account, start, end)
		case "duplicate-keys":
			res, err = e.AuditDuplicateCIDCHEC(ctx, company)
		case "voids":
			res, err = e.AuditVoidChecks(ctx, company)
		case "payees":
			res, err = e.AuditPayeeCIDVerification(ctx, company)
		default:
			writeError(w, http.StatusNotFound, eris.Errorf("unknown audit %q", chi.URLParam(r, "kind")))
			return
		}
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleTrace(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lin, err := e.FollowBatchNumber(r.Context(), chi.URLParam(r, "company"), chi.URLParam(r, "batch"))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lin)
	}
}

// propagateRequest is the POST body for a propagation. Template and the
// Type/Fields pair are mutually exclusive.
type propagateRequest struct {
	Template string            `json:"template,omitempty"`
	Type     string            `json:"type,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	Value    string            `json:"value"`
	Tables   []string          `json:"tables,omitempty"`
}

func handlePropagate(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req propagateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "decode request body"))
			return
		}

		var tpl schema.Template
		switch {
		case req.Template != "":
			var ok bool
			if tpl, ok = e.LookupTemplate(req.Template); !ok {
				writeError(w, http.StatusBadRequest, eris.Errorf("unknown template %q", req.Template))
				return
			}
		case req.Type != "" && len(req.Fields) > 0:
			tpl = schema.CustomTemplate(recordstore.FieldType(req.Type), req.Fields)
		default:
			writeError(w, http.StatusBadRequest, eris.New("template, or type with fields, is required"))
			return
		}

		include := req.Tables
		if len(include) == 0 {
			for table := range tpl.Fields {
				include = append(include, table)
			}
		}

		res, err := e.UpdateBatchFields(r.Context(), chi.URLParam(r, "company"), chi.URLParam(r, "batch"), tpl, req.Value, include)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "parse %s", name)
	}
	return ts, nil
}

// writeEngineError maps engine failures onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, recordstore.ErrTableNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
