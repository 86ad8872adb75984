// Command perpkerneld runs the perpetual-futures risk engine kernel as a
// long-lived daemon: it loads or initializes an engine instance, serves an
// admin HTTP surface, and drives the keeper crank on a fixed cadence.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"perpkernel/config"
	"perpkernel/engine"
	"perpkernel/host"
	"perpkernel/observability/logging"
	"perpkernel/observability/metrics"
	telemetry "perpkernel/observability/otel"
	"perpkernel/storage"
)

const (
	configPathEnv = "PERPKERNEL_CONFIG"
	envNameEnv    = "PERPKERNEL_ENV"
)

func main() {
	var (
		configPath = flag.String("config", envOr(configPathEnv, "./perpkernel.toml"), "path to the TOML configuration file")
		useLevelDB = flag.Bool("persistent", false, "use a LevelDB-backed snapshot store instead of the in-memory store")
		crankEvery = flag.Duration("crank-interval", 2*time.Second, "interval between automatic keeper crank passes")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var logger = logging.Setup("perpkerneld", envOr(envNameEnv, "dev"))
	if cfg.LogPath != "" {
		logger = logging.SetupWithFile("perpkerneld", envOr(envNameEnv, "dev"), cfg.LogPath)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "perpkerneld",
		Environment: envOr(envNameEnv, "dev"),
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    true,
		Metrics:     cfg.OTLPEndpoint != "",
		Traces:      cfg.OTLPEndpoint != "",
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer shutdownTelemetry(context.Background())

	var db storage.Database
	if *useLevelDB {
		ldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			log.Fatalf("open leveldb at %s: %v", cfg.DataDir, err)
		}
		db = ldb
	} else {
		db = storage.NewMemDB()
	}
	defer db.Close()
	snapStore := storage.NewSnapshotStore(db)

	eng, err := loadOrInit(cfg, snapStore)
	if err != nil {
		log.Fatalf("init engine: %v", err)
	}

	session := host.NewSession(eng)
	ledger := host.NewMemLedger()
	adapter := host.NewAdapter(session, ledger)

	m := metrics.NewEngine()

	// slot is the engine's logical clock: it advances by one every crank
	// cadence tick (below), not wall-clock time directly, so funding/warmup
	// math stays in lockstep with how often the crank actually observes the
	// engine. Read from the HTTP handlers concurrently with the crank
	// goroutine's writes, hence the atomic.
	var slot atomic.Uint64
	nowSlot := func() uint64 { return slot.Add(1) }
	prices := engine.OraclePriceLookup(func(a *engine.Account) uint64 {
		return a.EntryPrice
	})
	scheduler := host.NewCrankScheduler(session, prices, cfg.Risk.CrankDefaultBudget, *crankEvery, func(ev engine.CrankEvent) {
		if ev.Err != nil {
			logger.Warn("crank event", "kind", ev.Kind, "account", ev.Account, "err", ev.Err)
			kind := "unknown"
			var kerr *engine.KernelError
			if errors.As(ev.Err, &kerr) {
				kind = kerr.Kind.String()
			}
			m.KernelErrors.WithLabelValues(kind).Inc()
		}
		if ev.Kind == engine.CrankLiquidated {
			m.Liquidations.Inc()
		}
		if ev.Kind == engine.CrankAccountTouched {
			m.CrankIterations.Inc()
		}
		// The observer runs inside KeeperCrank, while the scheduler already
		// holds the session lock, so it reads the engine directly.
		m.Observe(eng)
	})
	go func() {
		if err := scheduler.Run(ctx, nowSlot); err != nil && ctx.Err() == nil {
			logger.Error("crank scheduler stopped", "err", err)
		}
	}()

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	router.Get("/debug/snapshot", func(w http.ResponseWriter, r *http.Request) {
		data, err := session.Snapshot()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	})
	router.Post("/accounts/{id}/deposit", func(w http.ResponseWriter, r *http.Request) {
		idx, amount, err := parseAccountAmount(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := adapter.Deposit(idx, amount); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	router.Post("/accounts/{id}/withdraw", func(w http.ResponseWriter, r *http.Request) {
		idx, amount, err := parseAccountAmount(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var price uint64
		_, _ = fmt.Sscanf(r.URL.Query().Get("price"), "%d", &price)
		if err := adapter.Withdraw(idx, amount, price, slot.Load()); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	router.Get("/debug/account/{id}", func(w http.ResponseWriter, r *http.Request) {
		var idx uint16
		if _, err := fmt.Sscanf(chi.URLParam(r, "id"), "%d", &idx); err != nil {
			http.Error(w, "bad account id", http.StatusBadRequest)
			return
		}
		acc, ok := eng.Account(idx)
		if !ok {
			http.Error(w, "unused slot", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(acc)
	})

	httpHandler := otelhttp.NewHandler(router, "perpkerneld")
	server := &http.Server{Addr: cfg.ListenAddress, Handler: httpHandler}

	go func() {
		logger.Info("listening", "addr", cfg.ListenAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	data, err := session.Snapshot()
	if err != nil {
		logger.Error("final snapshot failed", "err", err)
		return
	}
	if err := snapStore.Save(data); err != nil {
		logger.Error("final snapshot save failed", "err", err)
	}
}

// loadOrInit restores the engine from the last saved snapshot, falling
// back to a fresh instance built from the configured risk parameters.
func loadOrInit(cfg *config.Config, store *storage.SnapshotStore) (*engine.Engine, error) {
	data, err := store.Load()
	if err != nil {
		return nil, err
	}
	if data != nil {
		return engine.Load(data)
	}
	params, err := cfg.Risk.ToEngineParams()
	if err != nil {
		return nil, err
	}
	return engine.NewEngine(params)
}

// parseAccountAmount reads the {id} path param and an "amount" query
// param shared by the deposit/withdraw routes.
func parseAccountAmount(r *http.Request) (uint16, *uint256.Int, error) {
	var idx uint16
	if _, err := fmt.Sscanf(chi.URLParam(r, "id"), "%d", &idx); err != nil {
		return 0, nil, fmt.Errorf("bad account id")
	}
	amount, err := uint256.FromDecimal(r.URL.Query().Get("amount"))
	if err != nil {
		return 0, nil, fmt.Errorf("bad amount: %w", err)
	}
	return idx, amount, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
