package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/feedback"
	"github.com/sells-group/proposal-cli/internal/generator"
	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/monitoring"
	"github.com/sells-group/proposal-cli/internal/pipeline"
	"github.com/sells-group/proposal-cli/internal/resilience"
	"github.com/sells-group/proposal-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server for proposal generation requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store)
		alerter := monitoring.NewAlerter(cfg.Monitoring)
		watchdog := monitoring.NewWatchdog(collector, alerter, cfg.Monitoring)
		go watchdog.Run(ctx)

		handler := buildRouter(ctx, serveDeps{
			Pipeline:     env.Pipeline,
			Store:        env.Store,
			Collector:    collector,
			Breakers:     env.Breakers,
			Validator:    feedback.NewValidator(cfg.Feedback.HistoryLimit),
			Origins:      cfg.Server.AllowedOrigins,
			Lookback:     cfg.Monitoring.LookbackWindowHours,
			HistoryLimit: cfg.Feedback.HistoryLimit,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: handler,
		}

		// Graceful shutdown on a fresh context; the serve context is
		// already dead by the time it fires.
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// serveDeps carries what the HTTP handlers need. A nil Pipeline turns the
// generate webhook into an accept-and-drop stub, which tests rely on.
type serveDeps struct {
	Pipeline     *pipeline.Pipeline
	Store        store.Store
	Collector    *monitoring.Collector
	Breakers     *resilience.ServiceBreakers
	Validator    *feedback.Validator
	Origins      []string
	Lookback     int
	HistoryLimit int
}

// buildRouter assembles the HTTP surface: health and metrics probes, the
// async generation webhook, and synchronous feedback intake. The passed
// context outlives individual requests and bounds the async runs it spawns.
func buildRouter(ctx context.Context, deps serveDeps) http.Handler {
	origins := deps.Origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		resp := map[string]any{"status": "ok"}
		if deps.Breakers != nil {
			circuits := make(map[string]string)
			for service, state := range deps.Breakers.States() {
				circuits[service] = state.String()
			}
			resp["circuits"] = circuits
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	})

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		if deps.Collector == nil {
			http.Error(w, `{"error":"metrics unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		snap, err := deps.Collector.Collect(req.Context(), deps.Lookback)
		if err != nil {
			zap.L().Error("metrics collection failed", zap.Error(err))
			http.Error(w, `{"error":"metrics collection failed"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	})

	r.Post("/webhook/generate", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			ProposalID  string `json:"proposal_id"`
			TenantID    string `json:"tenant_id"`
			ClientName  string `json:"client_name"`
			CompanyName string `json:"company_name"`
			Industry    string `json:"industry"`
			Transcript  string `json:"transcript"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		if body.ProposalID == "" || body.TenantID == "" {
			http.Error(w, `{"error":"proposal_id and tenant_id are required"}`, http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(body.Transcript) == "" {
			http.Error(w, `{"error":"transcript is required"}`, http.StatusBadRequest)
			return
		}

		pctx := model.ProposalContext{
			ProposalID:  body.ProposalID,
			TenantID:    body.TenantID,
			ClientName:  body.ClientName,
			CompanyName: body.CompanyName,
			Industry:    body.Industry,
			Transcript:  body.Transcript,
		}

		// Run asynchronously under the server context so the run survives
		// this request but not a shutdown.
		go func() {
			if deps.Pipeline == nil {
				return
			}
			result, err := deps.Pipeline.Run(ctx, pctx)
			switch {
			case errors.Is(err, generator.ErrExhausted):
				zap.L().Warn("webhook run exhausted",
					zap.String("proposal_id", pctx.ProposalID),
					zap.Int("attempts", result.Attempts),
				)
			case err != nil:
				zap.L().Error("webhook run failed",
					zap.String("proposal_id", pctx.ProposalID),
					zap.Error(err),
				)
			default:
				zap.L().Info("webhook run complete",
					zap.String("proposal_id", pctx.ProposalID),
					zap.Float64("confidence", result.Metrics.OverallConfidence),
				)
			}
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":      "accepted",
			"proposal_id": body.ProposalID,
		})
	})

	r.Post("/feedback", func(w http.ResponseWriter, req *http.Request) {
		var in model.FeedbackInput
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		if in.UserID == "" || in.TenantID == "" || in.ProposalID == "" {
			http.Error(w, `{"error":"user_id, tenant_id, and proposal_id are required"}`, http.StatusBadRequest)
			return
		}
		if in.ProposalAt.IsZero() {
			in.ProposalAt = time.Now().UTC()
		}

		history, err := deps.Store.ListFeedback(req.Context(), store.FeedbackFilter{
			UserID: in.UserID,
			Limit:  deps.HistoryLimit,
		})
		if err != nil {
			zap.L().Error("feedback history lookup failed", zap.Error(err))
			http.Error(w, `{"error":"history lookup failed"}`, http.StatusInternalServerError)
			return
		}

		verdict := deps.Validator.Validate(in, history)
		rec, err := deps.Store.CreateFeedback(req.Context(), in.Record(verdict))
		if err != nil {
			zap.L().Error("feedback store failed", zap.Error(err))
			http.Error(w, `{"error":"store failed"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(rec)
	})

	return r
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
