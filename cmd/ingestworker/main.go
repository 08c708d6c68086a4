// Command ingestworker runs the four queue-consumer stages (parse,
// policy, embedding, multimodal) as one process, fanning out a Worker
// goroutine per active tenant per stage. Every Worker type in this
// pipeline is already scoped to a single tenant (New(tenantID, ...)), so
// this binary's only real job is keeping that fan-out in sync with
// tenant onboarding: it re-lists the tenant registry on a fixed interval
// and starts workers for tenants it hasn't seen yet. A tenant is never
// torn down mid-process on suspension — the next restart picks up
// registry state fresh, which matches how the rest of the pipeline
// already treats tenant state as eventually- rather than immediately-
// consistent across process boundaries.
package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"ingestpipe/internal/bootstrap"
	"ingestpipe/internal/config"
	"ingestpipe/internal/domain"
	"ingestpipe/internal/embedindex"
	"ingestpipe/internal/multimodal"
	"ingestpipe/internal/observability"
	"ingestpipe/internal/parse"
	"ingestpipe/internal/policy"
)

const (
	pollTimeout    = 5 * time.Second
	rescanInterval = 30 * time.Second
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}
	observability.InitLogger("", "info")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect backends")
	}
	defer res.Close()

	assist := policy.NewAssistFromConfig(cfg.ClassificationAssist)
	engine := policy.New(res.Audit, res.Queue, assist)

	started := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup

	startTenant := func(tenantID string) {
		mu.Lock()
		if started[tenantID] {
			mu.Unlock()
			return
		}
		started[tenantID] = true
		mu.Unlock()

		vectors, err := res.VectorResolver(ctx, tenantID)
		if err != nil {
			log.Error().Err(err).Str("tenant_id", tenantID).Msg("open vector collections failed, skipping tenant")
			mu.Lock()
			delete(started, tenantID)
			mu.Unlock()
			return
		}

		parseWorker := parse.New(tenantID, res.Queue, res.Object, res.Documents, res.Audit)
		policyWorker := policy.NewWorker(tenantID, res.Queue, res.Object, res.Tenants, res.Documents, engine)
		embedWorker := embedindex.New(tenantID, res.Queue, vectors, cfg.Embedding, res.Documents, res.Audit)
		multimodalWorker := multimodal.New(tenantID, res.Queue, vectors, cfg.Embedding, cfg.ImageEmbedding, res.Transcriber, res.Vision, res.Audit)

		runStage := func(name string, run func(context.Context, time.Duration) error) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := run(ctx, pollTimeout); err != nil && ctx.Err() == nil {
					log.Error().Err(err).Str("tenant_id", tenantID).Str("stage", name).Msg("worker stopped")
				}
			}()
		}

		runStage("parse", parseWorker.Run)
		runStage("policy", policyWorker.Run)
		runStage("embedding", embedWorker.Run)
		runStage("multimodal", multimodalWorker.Run)

		log.Info().Str("tenant_id", tenantID).Msg("started workers for tenant")
	}

	rescan := func() {
		tenants, err := res.Tenants.List(ctx)
		if err != nil {
			log.Error().Err(err).Msg("list tenants failed")
			return
		}
		for _, t := range tenants {
			if t.State != domain.TenantActive {
				continue
			}
			startTenant(t.TenantID)
		}
	}

	rescan()
	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			rescan()
		}
	}
}
