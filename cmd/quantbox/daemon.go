package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"quantbox/internal/config"
	"quantbox/internal/orchestrator"
	"quantbox/internal/store"
)

// runDaemon schedules save_all on the configured cron expression and
// serves /healthz and /metrics until ctx is cancelled.
func runDaemon(ctx context.Context, reg *config.Registry, db *store.DB, orch *orchestrator.Orchestrator, log zerolog.Logger) {
	tuning := reg.Tuning()
	schedule := tuning.Schedule
	if schedule == "" {
		schedule = "0 */30 * * * *" // every 30 minutes, seconds-field cron
	}

	lastRun := &runStatus{}

	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
		defer cancel()
		log.Info().Msg("scheduled save_all starting")
		results := orch.SaveAll(runCtx, reg.Exchanges())
		lastRun.record(results)
		log.Info().Msg("scheduled save_all finished")
	})
	if err != nil {
		log.Fatal().Err(err).Str("schedule", schedule).Msg("invalid cron schedule")
	}
	c.Start()
	defer c.Stop()

	router := chi.NewRouter()
	router.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET"}}))
	router.Get("/healthz", healthHandler(db))
	router.Get("/metrics", metricsHandler(lastRun))

	srv := &http.Server{Addr: ":8080", Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func healthHandler(db *store.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := db.QuickCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func metricsHandler(last *runStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cpuPct, _ := cpu.Percent(0, false)
		vmem, _ := mem.VirtualMemory()

		body := map[string]any{
			"last_run": last.snapshot(),
		}
		if len(cpuPct) > 0 {
			body["cpu_percent"] = cpuPct[0]
		}
		if vmem != nil {
			body["mem_used_percent"] = vmem.UsedPercent
		}
		_ = json.NewEncoder(w).Encode(body)
	}
}
