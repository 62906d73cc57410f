package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"GuardianEye/internal/agent"
	"GuardianEye/internal/api"
	"GuardianEye/internal/auth"
	"GuardianEye/internal/checkpoint"
	"GuardianEye/internal/config"
	"GuardianEye/internal/graph"
	"GuardianEye/internal/job"
	"GuardianEye/internal/llm"
	"GuardianEye/internal/llm/factory"
	"GuardianEye/internal/observability/alerting"
	"GuardianEye/internal/observability/metrics"
	"GuardianEye/internal/orchestrator"
	"GuardianEye/internal/retrieval"
	"GuardianEye/internal/storage/mysql"
	"GuardianEye/internal/supervisor"
	"GuardianEye/pkg/logger"
)

// main 是 GuardianEye 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("guardianeyed 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("GUARDIANEYE_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "guardianeye.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: cfg.Logging.AuditPath != "",
			Path:    cfg.Logging.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	dataDir := cfg.Runtime.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	llmClient, err := factory.New(llm.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	retriever, err := buildRetriever(ctx, cfg)
	if err != nil {
		return err
	}

	specialists := make(map[string]*agent.Specialist)
	for _, team := range agent.Teams() {
		for _, name := range agent.TeamAgents(team) {
			var opts []agent.Option
			if name == agent.NameSecurityKnowledge {
				opts = append(opts, agent.WithRetriever(retriever))
			}
			specialist, err := agent.New(name, llmClient, opts...)
			if err != nil {
				return err
			}
			specialists[name] = specialist
		}
	}

	router, err := buildRouter(cfg, llmClient)
	if err != nil {
		return err
	}

	var graphOpts []graph.Option
	if cfg.Routing.AgentTimeoutSeconds > 0 {
		graphOpts = append(graphOpts, graph.WithAgentTimeout(time.Duration(cfg.Routing.AgentTimeoutSeconds)*time.Second))
	}
	workflow, err := graph.New(router, specialists, graphOpts...)
	if err != nil {
		return err
	}

	checkpoints, err := buildCheckpoints(cfg)
	if err != nil {
		return err
	}

	audit, auditCloser, err := buildAuditRepository(ctx, cfg, dataDir)
	if err != nil {
		return err
	}
	if auditCloser != nil {
		defer auditCloser()
	}

	alerts := buildAlerts(cfg)

	orchOpts := []orchestrator.Option{
		orchestrator.WithCheckpoints(checkpoints),
	}
	if audit != nil {
		orchOpts = append(orchOpts, orchestrator.WithAudit(audit))
	}
	if alerts != nil {
		orchOpts = append(orchOpts, orchestrator.WithAlerts(alerts))
	}
	orch, err := orchestrator.New(workflow, orchOpts...)
	if err != nil {
		return err
	}

	serverOpts := []api.Option{
		api.WithRetriever(retriever),
	}

	if cfg.Jobs.Enabled {
		jobService, processor, err := buildJobs(cfg, orch, alerts)
		if err != nil {
			return err
		}
		defer func() {
			_ = jobService.Close()
		}()

		processorCtx, processorCancel := context.WithCancel(ctx)
		defer processorCancel()
		go func() {
			if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("任务处理器异常退出", slog.Any("error", err))
			}
		}()

		serverOpts = append(serverOpts, api.WithJobs(jobService))
	}

	authService, err := buildAuth(ctx, cfg)
	if err != nil {
		return err
	}
	if authService != nil {
		serverOpts = append(serverOpts, api.WithAuth(authService))
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, orch, serverOpts...)

	logger.L().Info("guardianeyed 启动",
		slog.String("address", cfg.Server.Address),
		slog.String("routing_strategy", cfg.Routing.Strategy),
		slog.String("llm_provider", cfg.LLM.Provider),
	)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildRouter 根据配置组装两级路由器。
func buildRouter(cfg *config.Config, model llm.Client) (*supervisor.Router, error) {
	strategy, err := supervisor.ParseStrategy(cfg.Routing.Strategy)
	if err != nil {
		return nil, err
	}

	tables := supervisor.DefaultRoutingTables()
	if cfg.Routing.TablesPath != "" {
		loaded, err := supervisor.LoadRoutingTables(cfg.Routing.TablesPath)
		if err != nil {
			return nil, err
		}
		tables = loaded
	}

	var opts []supervisor.RouterOption
	if cfg.Routing.DecisionTimeoutSeconds > 0 {
		opts = append(opts, supervisor.WithDecisionTimeout(time.Duration(cfg.Routing.DecisionTimeoutSeconds)*time.Second))
	}
	return supervisor.NewRouter(strategy, tables, model, opts...)
}

// buildRetriever 组装知识库存储并在启动时播种语料。
func buildRetriever(ctx context.Context, cfg *config.Config) (retrieval.Retriever, error) {
	var retriever retrieval.Retriever
	switch cfg.Retrieval.Backend {
	case "", "memory":
		retriever = retrieval.NewMemoryStore()
	case "redis":
		store, err := retrieval.NewRedisStore(retrieval.RedisConfig{
			Address:   cfg.Retrieval.Address,
			Password:  cfg.Retrieval.Password,
			DB:        cfg.Retrieval.DB,
			KeyPrefix: cfg.Retrieval.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		retriever = store
	default:
		return nil, fmt.Errorf("未知的检索后端: %s", cfg.Retrieval.Backend)
	}

	count, err := retrieval.SeedDocuments(ctx, retriever)
	if err != nil {
		return nil, err
	}
	logger.L().Info("知识语料播种完成", slog.Int("documents", count))

	if cfg.Retrieval.SeedPath != "" {
		extra, err := loadSeedDocuments(cfg.Retrieval.SeedPath)
		if err != nil {
			return nil, err
		}
		if len(extra) > 0 {
			if _, err := retriever.AddDocuments(ctx, extra); err != nil {
				return nil, err
			}
			logger.L().Info("额外知识语料载入完成", slog.Int("documents", len(extra)))
		}
	}
	return retriever, nil
}

// loadSeedDocuments 读取 JSON 格式的知识文档列表。
func loadSeedDocuments(path string) ([]retrieval.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取知识语料失败: %w", err)
	}
	var docs []retrieval.Document
	if err := json.Unmarshal(content, &docs); err != nil {
		return nil, fmt.Errorf("解析知识语料失败: %w", err)
	}
	return docs, nil
}

// buildCheckpoints 组装会话快照存储。
func buildCheckpoints(cfg *config.Config) (checkpoint.Store, error) {
	switch cfg.Checkpoint.Backend {
	case "", "memory":
		return checkpoint.NewMemoryStore(), nil
	case "redis":
		return checkpoint.NewRedisStore(checkpoint.RedisConfig{
			Address:   cfg.Checkpoint.Address,
			Password:  cfg.Checkpoint.Password,
			DB:        cfg.Checkpoint.DB,
			TTL:       time.Duration(cfg.Checkpoint.TTLSeconds) * time.Second,
			KeyPrefix: cfg.Checkpoint.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("未知的快照后端: %s", cfg.Checkpoint.Backend)
	}
}

// buildAuditRepository 组装会话审计仓库。
func buildAuditRepository(ctx context.Context, cfg *config.Config, dataDir string) (mysql.ConversationRepository, func(), error) {
	switch cfg.Storage.Audit.Driver {
	case "", "memory":
		repo, err := mysql.NewMemoryConversationRepository(dataDir)
		if err != nil {
			return nil, nil, err
		}
		return repo, nil, nil
	case "mysql":
		repo, err := mysql.NewSQLConversationRepository(ctx, mysql.Config{DSN: cfg.Storage.Audit.DSN})
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("未知的审计存储驱动: %s", cfg.Storage.Audit.Driver)
	}
}

// buildAlerts 组装告警分发器。未配置任何渠道时返回 nil。
func buildAlerts(cfg *config.Config) alerting.Dispatcher {
	var notifiers []alerting.Notifier
	if len(cfg.Alerting.EmailTo) > 0 {
		notifiers = append(notifiers, &alerting.EmailNotifier{To: cfg.Alerting.EmailTo, SubjectPrefix: "[GuardianEye] "})
	}
	if cfg.Alerting.SlackChannel != "" {
		notifiers = append(notifiers, &alerting.SlackNotifier{ChannelID: cfg.Alerting.SlackChannel})
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewFanout(notifiers...)
}

// buildJobs 组装异步任务服务与处理器。
func buildJobs(cfg *config.Config, orch *orchestrator.Orchestrator, alerts alerting.Dispatcher) (*job.Service, *job.Processor, error) {
	var store job.Store
	switch cfg.Jobs.Store {
	case "", "memory":
		store = job.NewMemoryStore()
	case "mysql":
		mysqlStore, err := job.NewMySQLStore(cfg.Jobs.DSN)
		if err != nil {
			return nil, nil, err
		}
		store = mysqlStore
	default:
		return nil, nil, fmt.Errorf("未知的任务存储: %s", cfg.Jobs.Store)
	}

	var queue job.Queue
	switch cfg.Jobs.Queue {
	case "", "memory":
		queue = job.NewMemoryQueue(1024)
	case "redis":
		redisQueue, err := job.NewRedisQueue(job.RedisQueueConfig{
			Address: cfg.Jobs.QueueURL,
			Queue:   cfg.Jobs.QueueName,
		})
		if err != nil {
			return nil, nil, err
		}
		queue = redisQueue
	case "rabbitmq":
		rabbitQueue, err := job.NewRabbitMQQueue(job.RabbitMQConfig{
			URL:     cfg.Jobs.QueueURL,
			Queue:   cfg.Jobs.QueueName,
			Durable: true,
		})
		if err != nil {
			return nil, nil, err
		}
		queue = rabbitQueue
	default:
		return nil, nil, fmt.Errorf("未知的任务队列: %s", cfg.Jobs.Queue)
	}

	service := job.NewService(store, queue, cfg.Jobs.MaxRetries)

	processorOpts := []job.ProcessorOption{
		job.WithWorkerCount(cfg.Jobs.Workers),
		job.WithProcessorLogger(logger.Named("jobs")),
	}
	if alerts != nil {
		processorOpts = append(processorOpts, job.WithAlertDispatcher(alerts))
	}
	processor := job.NewProcessor(orch, store, queue, queue, processorOpts...)
	return service, processor, nil
}

// buildAuth 组装身份认证服务。模式为 disabled 时返回 nil。
func buildAuth(ctx context.Context, cfg *config.Config) (*auth.Service, error) {
	mode := auth.Mode(cfg.Auth.Mode)
	if mode == "" || mode == auth.ModeDisabled {
		return nil, nil
	}

	seeds := make([]auth.Seed, 0, len(cfg.Auth.Seed))
	for _, seed := range cfg.Auth.Seed {
		seeds = append(seeds, auth.Seed{
			Username:    seed.Username,
			Password:    seed.Password,
			Roles:       seed.Roles,
			Permissions: seed.Permissions,
			Disabled:    seed.Disabled,
		})
	}

	var store auth.Store
	if cfg.Storage.Audit.Driver == "mysql" {
		sqlStore, err := mysql.NewSQLAuthStore(ctx, mysql.Config{DSN: cfg.Storage.Audit.DSN})
		if err != nil {
			return nil, err
		}
		store = sqlStore
	} else {
		memStore, err := auth.NewMemoryStore(nil)
		if err != nil {
			return nil, err
		}
		store = memStore
	}

	return auth.NewService(ctx, auth.Config{
		Mode: mode,
		JWT: auth.JWTOptions{
			Secret:     cfg.Auth.JWT.Secret,
			Issuer:     cfg.Auth.JWT.Issuer,
			Audience:   cfg.Auth.JWT.Audience,
			AccessTTL:  cfg.Auth.JWT.AccessTTL,
			RefreshTTL: cfg.Auth.JWT.RefreshTTL,
		},
		Seeds: seeds,
	}, store)
}
