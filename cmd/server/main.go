package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"

	"portal-chat/internal/agent"
	"portal-chat/internal/analytics"
	"portal-chat/internal/auth"
	"portal-chat/internal/cache"
	"portal-chat/internal/config"
	"portal-chat/internal/history"
	"portal-chat/internal/llm"
	"portal-chat/internal/scheduler"
	"portal-chat/internal/server"
	"portal-chat/internal/storage"
	"portal-chat/internal/store"
	"portal-chat/internal/store/db"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := llm.LoadAWSConfig(ctx, cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey)
	if err != nil {
		log.Fatalf("failed to load aws config: %v", err)
	}

	driver, err := db.NewDriver(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to open session store: %v", err)
	}
	sessions := store.New(driver)
	defer sessions.Close()
	if err := sessions.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate session store: %v", err)
	}

	catalog, err := agent.LoadCatalog(cfg.AgentsFilePath)
	if err != nil {
		log.Fatalf("failed to load agents: %v", err)
	}

	reg := agent.NewRegistry()
	for _, t := range []agent.Tool{
		agent.NewCurrentTimeTool(),
		agent.NewListAgentsTool(catalog),
		agent.NewSessionInfoTool(sessions),
	} {
		if err := reg.Register(t); err != nil {
			log.Fatalf("failed to register tool: %v", err)
		}
	}
	for _, command := range cfg.MCPServers {
		p, err := agent.ConnectMCP(ctx, command)
		if err != nil {
			log.Printf("⚠️ MCP server unavailable, its tools are skipped: %v", err)
			continue
		}
		defer p.Close()
		if err := p.RegisterAll(ctx, reg); err != nil {
			log.Printf("⚠️ failed to register MCP tools: %v", err)
		}
	}

	factory := llm.NewFactory(cfg, awsCfg)
	agents, err := agent.Build(catalog, reg, factory.CreateClient)
	if err != nil {
		log.Fatalf("failed to build agents: %v", err)
	}
	if _, ok := agents[cfg.DefaultAgent]; !ok {
		log.Fatalf("default agent %q is not in %s", cfg.DefaultAgent, cfg.AgentsFilePath)
	}

	backend, err := newCacheBackend(cfg, awsCfg)
	if err != nil {
		log.Fatalf("failed to init cache: %v", err)
	}
	responseCache := cache.New(backend, cfg.CacheReadTimeout, cfg.CacheTTL)

	tokenRepo, err := auth.NewFileRepository(cfg.TokensFilePath)
	if err != nil {
		log.Fatalf("failed to init token registry: %v", err)
	}
	authSvc, err := auth.NewWithRepo(tokenRepo, cfg.StaticTokens)
	if err != nil {
		log.Fatalf("failed to init auth: %v", err)
	}

	var rec *storage.FileRecorder
	if cfg.LogFilePath != "" {
		rec, err = storage.NewFileRecorder(cfg.LogFilePath)
		if err != nil {
			log.Fatalf("failed to init turn log: %v", err)
		}
	}

	opts := server.Options{
		Agents:       agents,
		DefaultAgent: cfg.DefaultAgent,
		Store:        sessions,
		Cache:        responseCache,
		Auth:         authSvc,
		Memory:       history.NewManager(cfg.HistoryWindow),
	}
	if rec != nil {
		opts.Recorder = rec
	}
	srv := server.New(opts)

	sched := scheduler.New()
	if err := sched.Add(scheduler.Job{
		Name: "session-reaper",
		Spec: cfg.ReaperSchedule,
		Run: func(ctx context.Context) error {
			_, err := srv.ReapIdleSessions(ctx, cfg.SessionIdleTimeout)
			return err
		},
	}); err != nil {
		log.Fatalf("failed to schedule reaper: %v", err)
	}
	if err := sched.Add(scheduler.Job{
		Name: "token-reload",
		Spec: cfg.TokenReloadSchedule,
		Run: func(context.Context) error {
			return authSvc.Reload()
		},
	}); err != nil {
		log.Fatalf("failed to schedule token reload: %v", err)
	}
	if rec != nil {
		if err := sched.Add(scheduler.Job{
			Name: "daily-report",
			Spec: cfg.ReportSchedule,
			Run: func(ctx context.Context) error {
				events, err := rec.LoadInteractions()
				if err != nil {
					return err
				}
				stats := analytics.AnalyzeDailyLogs(events, time.Now().UTC())
				log.Printf("📊 %s", stats.GenerateReportSummary())
				return nil
			},
		}); err != nil {
			log.Fatalf("failed to schedule report: %v", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	log.Printf("🚀 portal chat listening on %s with %d agents", cfg.ListenAddr, len(agents))
	if err := srv.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
	log.Printf("👋 shutting down")
}

func newCacheBackend(cfg *config.Config, awsCfg aws.Config) (cache.Backend, error) {
	switch cfg.CacheBackend {
	case "memory", "":
		return cache.NewMemory(), nil
	case "s3":
		if cfg.CacheS3Bucket == "" {
			return nil, fmt.Errorf("CACHE_S3_BUCKET is required for the s3 cache")
		}
		return cache.NewS3(awsCfg, cfg.CacheS3Bucket, cfg.CacheS3Prefix)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.CacheBackend)
	}
}
