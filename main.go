package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"Wallcheck/internal/auth"
	"Wallcheck/internal/calc/api579"
	"Wallcheck/internal/calc/assessment"
	"Wallcheck/internal/calc/batch"
	"Wallcheck/internal/calc/corrosion"
	"Wallcheck/internal/calc/geometry"
	"Wallcheck/internal/calc/importer"
	"Wallcheck/internal/calc/material"
	"Wallcheck/internal/calc/rbi"
	"Wallcheck/internal/calc/report"
	"Wallcheck/internal/config"
	"Wallcheck/internal/errs"
	"Wallcheck/internal/logging"
	"Wallcheck/internal/profile"
	"Wallcheck/internal/repo"
)

var wg sync.WaitGroup

func CORS(mux *mux.Router) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Expose-Headers", "Location, Content-Disposition")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		mux.ServeHTTP(w, r)
	})
}

// withLogger puts the server logger and the request line on every request context.
func withLogger(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logging.WithLogger(r.Context(), logger)
			ctx = logging.WithAttrs(ctx, slog.String("method", r.Method), slog.String("path", r.URL.Path))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func HandleList(mux *mux.Router, cfg config.Config, c config.Components, store repo.Store, logger *slog.Logger) {
	authEnv := &auth.Authenv{JWTkey: []byte(cfg.Server.TokenKey), Repo: store, Secure: cfg.Server.SecureCookie}
	limiter := auth.NewIPRateLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst)

	svc := assessment.NewService(c.Engine, c.Calculator, c.Intervals, store)

	mux.Use(withLogger(logger))
	api := mux.PathPrefix("/api").Subrouter()
	api.Use(limiter.LimitMiddleware)

	api.HandleFunc("/login", authEnv.AuthHandler).Methods("POST")
	api.HandleFunc("/register", authEnv.RegisterHandler).Methods("POST")

	secureApi := api.PathPrefix("/user").Subrouter()
	secureApi.Use(authEnv.AuthMiddleware)

	profileH := &profile.ProfileHandler{Policy: cfg.Assessment, Intervals: cfg.RBI, Materials: c.Materials}
	secureApi.HandleFunc("/profile", profileH.GetProfile).Methods("GET")

	assessH := &assessment.Handler{Service: svc}
	batchH := &batch.Handler{Service: svc, Workers: cfg.Server.BatchWorkers}
	reportH := &report.Handler{Source: svc}

	secureApi.HandleFunc("/assessments", assessH.Create).Methods("POST")
	secureApi.HandleFunc("/assessments/batch", batchH.Run).Methods("POST")
	secureApi.HandleFunc("/assessments/{id}", assessH.Get).Methods("GET")
	secureApi.HandleFunc("/assessments/{id}/record", assessH.Record).Methods("POST")
	secureApi.HandleFunc("/assessments/{id}/report.pdf", reportH.PDF).Methods("GET")
	secureApi.HandleFunc("/equipment/{id}/assessments", assessH.History).Methods("GET")
	secureApi.HandleFunc("/equipment/{id}/history.xlsx", reportH.History).Methods("GET")

	materialH := &material.Handler{Resolver: c.Materials}
	geometryH := &geometry.Handler{Resolver: c.Geometry}
	corrosionH := &corrosion.Handler{Engine: c.Engine}
	api579H := &api579.Handler{Calculator: c.Calculator}
	rbiH := &rbi.Handler{Service: c.Intervals}
	importH := &importer.Handler{}

	secureApi.HandleFunc("/tools/material/allowable", materialH.Calc).Methods("POST")
	secureApi.HandleFunc("/tools/material/grades", materialH.Grades).Methods("GET")
	secureApi.HandleFunc("/tools/geometry/resolve", geometryH.Calc).Methods("POST")
	secureApi.HandleFunc("/tools/corrosion/rate", corrosionH.Calc).Methods("POST")
	secureApi.HandleFunc("/tools/api579/calc", api579H.Calc).Methods("POST")
	secureApi.HandleFunc("/tools/rbi/calc", rbiH.Calc).Methods("POST")
	secureApi.HandleFunc("/import/readings", importH.Readings).Methods("POST")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(os.Stderr, slog.LevelInfo)
	ctx = logging.WithLogger(ctx, logger)

	cfg, err := config.Load("")
	if err != nil {
		fatal(ctx, "load configuration", err)
	}
	if cfg.Server.TokenKey == "" {
		fatal(ctx, "TOKEN_KEY environment variable is not set", nil)
	}
	components, err := cfg.Build()
	if err != nil {
		fatal(ctx, "build calculation services", err)
	}
	store, err := repo.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		fatal(ctx, "open database", err)
	}
	defer store.Close()

	mux := mux.NewRouter()
	HandleList(mux, cfg, components, store, logger)
	handler := CORS(mux)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: handler,
	}

	logging.Info(ctx, "starting server",
		slog.String("addr", cfg.Server.Addr),
		slog.Bool("tls", cfg.Server.TLS()),
		slog.String("database", cfg.Database.Driver),
		slog.String("materials", components.Materials.Table().Version()),
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		var err error
		if cfg.Server.TLS() {
			err = server.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(ctx, "server error", slog.Any("error", errs.Loggable(err)))
			cancel()
		}
	}()

	<-ctx.Done()
	logging.Info(ctx, "shutdown signal received, closing active connections")

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.Shutdown)
	defer stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "server shutdown failed", slog.Any("error", errs.Loggable(err)))
	}
	wg.Wait()
	logging.Info(ctx, "server stopped")
}

func fatal(ctx context.Context, msg string, err error) {
	if err != nil {
		logging.Error(ctx, msg, slog.Any("error", errs.Loggable(err)))
	} else {
		logging.Error(ctx, msg)
	}
	os.Exit(1)
}
