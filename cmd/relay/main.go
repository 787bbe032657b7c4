package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/jordanhubbard/relay/internal/activity"
	"github.com/jordanhubbard/relay/internal/api"
	"github.com/jordanhubbard/relay/internal/cli"
	"github.com/jordanhubbard/relay/internal/connectors"
	"github.com/jordanhubbard/relay/internal/engine"
	"github.com/jordanhubbard/relay/internal/eventbus"
	"github.com/jordanhubbard/relay/internal/hotreload"
	"github.com/jordanhubbard/relay/internal/ledger"
	"github.com/jordanhubbard/relay/internal/metrics"
	"github.com/jordanhubbard/relay/internal/poster"
	"github.com/jordanhubbard/relay/internal/queue"
	"github.com/jordanhubbard/relay/internal/telemetry"
	"github.com/jordanhubbard/relay/internal/tokens"
	"github.com/jordanhubbard/relay/internal/webhook"
	"github.com/jordanhubbard/relay/internal/workdir"
	"github.com/jordanhubbard/relay/pkg/config"
	"github.com/jordanhubbard/relay/pkg/models"
)

const version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Relay v%s\n", version)
		return
	}

	cfg := loadConfig(*configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.OTLPEndpoint != "" {
		shutdown, err := telemetry.InitTelemetry(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			log.Fatalf("failed to initialize telemetry: %v", err)
		}
		defer shutdown(context.Background())
	}

	taskQueue := buildQueue(cfg)
	defer taskQueue.Close()

	posted := buildLedger(cfg)
	defer posted.Close()

	registry := webhook.NewRegistry(&cfg.Webhooks, posted)
	for _, p := range registry.ValidationDisabled(cfg.Webhooks.Secrets) {
		metrics.ValidationDisabled.WithLabelValues(string(p)).Set(1)
	}

	tokenSrc, err := tokens.NewService(cfg.Tokens, cfg.Providers.GitHubBaseURL)
	if err != nil {
		log.Fatalf("failed to build token service: %v", err)
	}

	resultPoster := poster.New([]connectors.Connector{
		connectors.NewGitHubConnector(cfg.Providers.GitHubBaseURL, tokenSrc),
		connectors.NewJiraConnector(cfg.Providers.JiraBaseURL, tokenSrc),
		connectors.NewSlackConnector(cfg.Providers.SlackBaseURL, tokenSrc),
		connectors.NewSentryConnector(cfg.Providers.SentryBaseURL, tokenSrc),
	}, posted)

	var observers multiObserver
	var queuedHooks []func(*models.QueuedTask)

	if cfg.Events.NATSURL != "" {
		bus, err := eventbus.Connect(cfg.Events.NATSURL, cfg.Events.StreamName)
		if err != nil {
			log.Fatalf("failed to connect event bus: %v", err)
		}
		defer bus.Close()
		observers = append(observers, bus)
		queuedHooks = append(queuedHooks, bus.TaskQueued)
	}

	var activityStore *activity.Store
	if cfg.Activity.PostgresDSN != "" {
		activityStore, err = activity.Open(cfg.Activity.PostgresDSN)
		if err != nil {
			log.Fatalf("failed to open activity log: %v", err)
		}
		defer activityStore.Close()
		observers = append(observers, activityStore)
	}

	streamHub := api.NewStreamHub()

	workdirs, err := workdir.NewManager(cfg.Agent.WorkdirRoot)
	if err != nil {
		log.Fatalf("failed to prepare workdir root: %v", err)
	}

	runner := cli.NewRunner(cfg.Agent, streamHub)
	executor := engine.NewCLIExecutor(runner, workdirs)
	eng := engine.New(taskQueue, executor, resultPoster, observers, cfg.Engine.NumWorkers, cfg.Queue.DequeueTimeout)

	server := api.NewServer(cfg.Server, registry, taskQueue, activityStore, streamHub)
	server.SetOnQueued(func(task *models.QueuedTask) {
		for _, hook := range queuedHooks {
			hook(task)
		}
	})

	watcher := hotreload.New(*configPath, func(newCfg *config.Config) {
		server.SwapRegistry(webhook.NewRegistry(&newCfg.Webhooks, posted))
	})
	go func() {
		if err := watcher.Run(ctx); err != nil {
			log.Printf("[Main] config watcher stopped: %v", err)
		}
	}()

	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(ctx) }()

	serverDone := make(chan error, 1)
	go func() { serverDone <- server.Start(ctx) }()

	log.Printf("[Main] relay v%s up, port %d, %d workers", version, cfg.Server.HTTPPort, cfg.Engine.NumWorkers)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("[Main] received %v, shutting down", sig)
	case err := <-serverDone:
		log.Printf("[Main] server exited: %v", err)
	}

	// Stop intake first, then let in-flight tasks drain.
	cancel()
	eng.Shutdown()
	if err := <-engineDone; err != nil {
		log.Printf("[Main] engine exited with error: %v", err)
	}

	log.Printf("[Main] shutdown complete")
}

// loadConfig reads the YAML file when it exists (defaults otherwise) and
// applies environment overrides.
func loadConfig(path string) *config.Config {
	cfg := config.DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		cfg, err = config.LoadConfigFromFile(path)
		if err != nil {
			log.Fatalf("failed to load config from %s: %v", path, err)
		}
	} else {
		log.Printf("[Main] no config file at %s, using defaults", path)
	}

	if port := os.Getenv("RELAY_HTTP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			log.Fatalf("invalid RELAY_HTTP_PORT %q", port)
		}
		cfg.Server.HTTPPort = p
	}
	if url := os.Getenv("RELAY_REDIS_URL"); url != "" {
		cfg.Queue.Backend = "redis"
		cfg.Queue.RedisURL = url
		cfg.Ledger.Backend = "redis"
		cfg.Ledger.RedisURL = url
		log.Printf("[Main] using redis from environment")
	}
	if url := os.Getenv("RELAY_NATS_URL"); url != "" {
		cfg.Events.NATSURL = url
	}
	if dsn := os.Getenv("RELAY_POSTGRES_DSN"); dsn != "" {
		cfg.Activity.PostgresDSN = dsn
	}
	if binary := os.Getenv("RELAY_AGENT_BINARY"); binary != "" {
		cfg.Agent.Binary = binary
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	return cfg
}

func buildQueue(cfg *config.Config) queue.TaskQueue {
	if cfg.Queue.Backend == "redis" {
		q, err := queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Key)
		if err != nil {
			log.Fatalf("failed to connect queue: %v", err)
		}
		return q
	}
	log.Printf("[Main] using in-memory queue")
	return queue.NewMemoryQueue()
}

func buildLedger(cfg *config.Config) ledger.PostedContentLedger {
	if cfg.Ledger.Backend == "redis" {
		l, err := ledger.NewRedisLedger(cfg.Ledger.RedisURL, cfg.Ledger.TTL)
		if err != nil {
			log.Fatalf("failed to connect ledger: %v", err)
		}
		return l
	}
	return ledger.NewMemoryLedger(cfg.Ledger.TTL)
}

// multiObserver fans lifecycle notifications out to every configured
// observer.
type multiObserver []engine.Observer

func (m multiObserver) TaskStarted(task *models.QueuedTask) {
	for _, o := range m {
		o.TaskStarted(task)
	}
}

func (m multiObserver) TaskFinished(task *models.QueuedTask, result *models.CLIResult) {
	for _, o := range m {
		o.TaskFinished(task, result)
	}
}
