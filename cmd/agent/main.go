package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	dockerclient "github.com/docker/docker/client"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/selivandex/superagent/internal/adapters/clickhouse"
	"github.com/selivandex/superagent/internal/adapters/config"
	"github.com/selivandex/superagent/internal/adapters/database"
	embeddingsRepo "github.com/selivandex/superagent/internal/adapters/embeddings"
	redisAdapter "github.com/selivandex/superagent/internal/adapters/redis"
	"github.com/selivandex/superagent/internal/agents"
	"github.com/selivandex/superagent/internal/genai"
	"github.com/selivandex/superagent/internal/notifications"
	"github.com/selivandex/superagent/internal/prompts"
	"github.com/selivandex/superagent/internal/rag"
	"github.com/selivandex/superagent/internal/sandbox"
	"github.com/selivandex/superagent/internal/sensor"
	"github.com/selivandex/superagent/internal/signer"
	"github.com/selivandex/superagent/internal/store"
	"github.com/selivandex/superagent/pkg/embeddings"
	"github.com/selivandex/superagent/pkg/logger"
	"github.com/selivandex/superagent/pkg/metrics"
	"github.com/selivandex/superagent/pkg/worker"
)

const usage = "usage: agent <trading|marketing> <session_id> <agent_id>"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if len(os.Args) != 4 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(ctx, os.Args[1], os.Args[2], os.Args[3]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, kindArg, sessionID, agentID string) error {
	kind := prompts.Kind(kindArg)
	if kind != prompts.KindTrading && kind != prompts.KindMarketing {
		return fmt.Errorf("unknown agent kind %q (%s)", kindArg, usage)
	}

	cfg, err := initConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Agent starting",
		zap.String("kind", kindArg),
		zap.String("session_id", sessionID),
		zap.String("agent_id", agentID),
	)

	// Start-of-session configuration; failures fold into defaults
	sessionCfg := agents.FetchSessionConfig(ctx, cfg.Agent.SessionConfigURL, 10*time.Second)

	registry, err := prompts.NewRegistry(kind, sessionCfg.Templates)
	if err != nil {
		// Template validation failure is fatal at process start
		return fmt.Errorf("prompt configuration invalid: %w", err)
	}

	// Outcome store backend: Postgres wins, then HTTP, then memory
	st, db, err := initStore(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	buffer := initMetrics(cfg)
	if buffer != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			buffer.Close(shutdownCtx)
		}()
	}

	index, err := initSemanticIndex(cfg, db, buffer)
	if err != nil {
		return err
	}

	generator := initGenerator(cfg)

	sb, err := initSandbox(ctx, cfg, agentID)
	if err != nil {
		return err
	}

	sn := initSensor(cfg, kind, agentID)

	guard, redisClient, err := initSessionGuard(cfg, agentID, sessionID)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	assisted := cfg.Agent.Assisted
	if sessionCfg.Assisted != nil {
		assisted = *sessionCfg.Assisted
	}
	instruments := cfg.Agent.Instruments
	if len(sessionCfg.Instruments) > 0 {
		instruments = sessionCfg.Instruments
	}

	orch := agents.New(
		agents.Config{
			AgentID:     agentID,
			SessionID:   sessionID,
			Role:        roleFor(kind, sessionCfg.Role),
			APIs:        apisFor(kind, sessionCfg.APIs),
			Instruments: instruments,
			SignerURL:   cfg.Signer.URL,
			Assisted:    assisted,
			Budgets: agents.Budgets{
				Research: cfg.Agent.ResearchAttempts,
				Strategy: cfg.Agent.StrategyAttempts,
				Code:     cfg.Agent.CodeAttempts,
			},
			RAGTopK: cfg.RAG.TopK,
		},
		registry, generator, sb, st, index, sn, buffer,
	)

	var notifier *notifications.Client
	if cfg.Notifications.BaseURL != "" {
		notifier = notifications.New(cfg.Notifications.BaseURL, cfg.Notifications.APIKey)
	}

	driver := agents.NewDriver(orch, st, index, guard, buffer, notifier)
	if err := driver.Bootstrap(ctx); err != nil {
		return fmt.Errorf("session bootstrap failed: %w", err)
	}

	worker.RunForever(ctx, driver, cfg.Agent.PacingInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return driver.Close(shutdownCtx)
}

// initConfig loads .env, processes the environment and initializes logging
func initConfig() (*config.Config, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// initStore selects the outcome store backend. The returned DB is non-nil
// only on the Postgres path.
func initStore(cfg *config.Config) (store.Store, *database.DB, error) {
	if dsn := cfg.Store.GetDSN(); dsn != "" {
		db, err := database.New(&cfg.Store)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.RunMigrations(db.Conn(), "./migrations"); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("✅ Outcome store: postgres", zap.String("host", cfg.Store.Host))
		return store.NewPostgresStore(db.DB()), db, nil
	}

	if cfg.Store.HTTPBaseURL != "" {
		logger.Info("✅ Outcome store: http", zap.String("base_url", cfg.Store.HTTPBaseURL))
		return store.NewHTTPStore(cfg.Store.HTTPBaseURL, cfg.Store.HTTPAPIKey), nil, nil
	}

	logger.Warn("⚠️ Outcome store: in-memory (no persistence)")
	return store.NewMemoryStore(), nil, nil
}

// initMetrics wires the ClickHouse pipeline when enabled; nil disables
// metric recording everywhere downstream
func initMetrics(cfg *config.Config) metrics.Buffer {
	if !cfg.ClickHouse.Enabled {
		return nil
	}

	writer, err := clickhouse.New(&cfg.ClickHouse)
	if err != nil {
		logger.Warn("ClickHouse not available, metrics disabled", zap.Error(err))
		return nil
	}

	return metrics.NewBufferedMetrics(metrics.BufferConfig{Writer: writer})
}

// initSemanticIndex builds the embedding client (with Postgres dedup when
// available) and opens the shard store
func initSemanticIndex(cfg *config.Config, db *database.DB, buffer metrics.Buffer) (*rag.Index, error) {
	var openaiClient *openai.Client
	if cfg.Generator.EmbeddingAPIKey != "" {
		openaiClient = openai.NewClient(cfg.Generator.EmbeddingAPIKey)
	}

	var repo embeddings.Repository
	if db != nil {
		repo = embeddingsRepo.NewRepository(db.DB())
	}

	embedClient := embeddings.NewClient(embeddings.Config{
		OpenAIClient:  openaiClient,
		Repository:    repo,
		MetricsBuffer: buffer,
	})

	index, err := rag.New(cfg.RAG.DataDir, embedClient.Generate)
	if err != nil {
		return nil, fmt.Errorf("failed to open semantic index: %w", err)
	}
	return index, nil
}

func initGenerator(cfg *config.Config) *genai.OpenAIGenerator {
	var sink genai.TokenSink
	if cfg.Generator.Streaming {
		sink = func(token string) { fmt.Print(token) }
	}

	return genai.NewOpenAIGenerator(genai.OpenAIConfig{
		APIKey:            cfg.Generator.APIKey,
		BaseURL:           cfg.Generator.BaseURL,
		Model:             cfg.Generator.Model,
		Streaming:         cfg.Generator.Streaming,
		Sink:              sink,
		ThinkingDelimiter: cfg.Generator.ThinkingDelimiter,
	})
}

func initSandbox(ctx context.Context, cfg *config.Config, agentID string) (*sandbox.Executor, error) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	sb, err := sandbox.New(ctx, cli, sandbox.Config{
		ContainerName: cfg.Sandbox.ContainerName,
		Image:         cfg.Sandbox.Image,
		CacheDir:      cfg.Sandbox.CacheDir,
		Timeout:       cfg.Sandbox.Timeout,
		Env: map[string]string{
			"AGENT_ID":        agentID,
			"TXN_SERVICE_URL": cfg.Signer.URL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to provision sandbox: %w", err)
	}
	return sb, nil
}

func initSensor(cfg *config.Config, kind prompts.Kind, agentID string) sensor.Sensor {
	if kind == prompts.KindMarketing {
		return sensor.NewMarketingSensor(cfg.Social.BearerToken, cfg.Social.Username, "followers")
	}

	var eth *ethclient.Client
	if cfg.Chain.RPCURL != "" {
		client, err := ethclient.Dial(cfg.Chain.RPCURL)
		if err != nil {
			logger.Warn("chain RPC unreachable, wallet sensor will report mock state", zap.Error(err))
		} else {
			eth = client
		}
	}

	return sensor.NewWalletSensor(
		signer.New(cfg.Signer.URL, agentID),
		eth,
		sensor.NewEtherscanIndexer(cfg.Chain.IndexerURL, cfg.Chain.IndexerAPIKey),
		sensor.NewCoinGeckoOracle(cfg.Chain.OracleURL),
	)
}

// initSessionGuard returns the redlock guard when Redis is enabled, the
// noop guard otherwise. The store's unique index stays authoritative.
func initSessionGuard(cfg *config.Config, agentID, sessionID string) (agents.SessionGuard, *redisAdapter.Client, error) {
	if !cfg.Redis.Enabled {
		return redisAdapter.NoopSessionLock{}, nil, nil
	}

	client, err := redisAdapter.New(&cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client.SessionGuard(agentID, sessionID), client, nil
}

func apisFor(kind prompts.Kind, custom []string) []string {
	if len(custom) > 0 {
		return custom
	}
	if kind == prompts.KindMarketing {
		return []string{"duckduckgo", "twitter", "reddit"}
	}
	return []string{"coingecko", "etherscan", "oneinch"}
}

func roleFor(kind prompts.Kind, custom string) string {
	if custom != "" {
		return custom
	}
	if kind == prompts.KindMarketing {
		return "a sharp, personable crypto community voice"
	}
	return ""
}
