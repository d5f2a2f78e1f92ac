// cmd/container.go
//
// Composition root. Owns infrastructure (DB, Redis, AWS clients) and wires the
// job queue, connector registry, assistant and gateway together.
package main

import (
	"context"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ryan12324/openassistant/pkg/assistant"
	"github.com/ryan12324/openassistant/pkg/assistant/assistantanthropic"
	"github.com/ryan12324/openassistant/pkg/assistant/assistantmemory"
	"github.com/ryan12324/openassistant/pkg/assistant/assistantopenai"
	"github.com/ryan12324/openassistant/pkg/assistant/assistantpostgres"
	"github.com/ryan12324/openassistant/pkg/authx"
	"github.com/ryan12324/openassistant/pkg/config"
	"github.com/ryan12324/openassistant/pkg/connectors"
	"github.com/ryan12324/openassistant/pkg/connectors/s3files"
	"github.com/ryan12324/openassistant/pkg/connectorx"
	"github.com/ryan12324/openassistant/pkg/connectorx/connectorpostgres"
	"github.com/ryan12324/openassistant/pkg/connectorx/connectorredis"
	"github.com/ryan12324/openassistant/pkg/gateway"
	"github.com/ryan12324/openassistant/pkg/jobx"
	"github.com/ryan12324/openassistant/pkg/jobx/jobxmemory"
	"github.com/ryan12324/openassistant/pkg/jobx/jobxpostgres"
	"github.com/ryan12324/openassistant/pkg/jobx/jobxredis"
	"github.com/ryan12324/openassistant/pkg/logx"
	"github.com/ryan12324/openassistant/pkg/telemetry"
)

// Container holds shared infrastructure and the composed services.
type Container struct {
	Config *config.Config

	// Infrastructure
	DB     *sqlx.DB
	Redis  *redis.Client
	AWS    aws.Config
	SES    *ses.Client
	HTTP   *http.Client
	Tokens *authx.JWTService

	// Services
	Jobs        *jobx.Client
	Configs     *connectorpostgres.ConfigRepository
	Registry    *connectorx.Registry
	Broadcaster *connectorredis.Broadcaster
	Assistant   *assistant.Service
	Gateway     *gateway.Handler

	background sync.WaitGroup
}

func NewContainer(ctx context.Context, cfg *config.Config) *Container {
	logx.Info("🔧 Initializing application container...")

	c := &Container{Config: cfg}

	c.initInfrastructure(ctx)
	c.initModules(ctx)

	logx.Info("✅ Application container initialized")
	return c
}

// ---------------------------------------------------------------------------
// Infrastructure: DB, Redis, AWS
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure(ctx context.Context) {
	logx.Info("🏗️ Initializing infrastructure...")

	// 1. Database
	db, err := sqlx.Connect("postgres", c.Config.Database.DSN())
	if err != nil {
		logx.Fatalf("Failed to connect to database: %v", err)
	}
	db.SetMaxOpenConns(c.Config.Database.MaxOpenConns)
	db.SetMaxIdleConns(c.Config.Database.MaxIdleConns)
	db.SetConnMaxLifetime(c.Config.Database.ConnMaxLifetime)
	c.DB = db
	logx.Info("  ✅ Database connected")

	// 2. Redis
	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Address(),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if _, err := c.Redis.Ping(ctx).Result(); err != nil {
		logx.Fatalf("Failed to connect to Redis: %v (Redis is required)", err)
	}
	logx.Info("  ✅ Redis connected")

	// 3. AWS (SES for the email connector; S3 clients are built per instance)
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(c.Config.Connectors.AWSRegion))
	if err != nil {
		logx.Fatalf("Unable to load AWS SDK config: %v", err)
	}
	c.AWS = awsCfg
	c.SES = ses.NewFromConfig(awsCfg)
	logx.Infof("  ✅ AWS configured (region: %s)", c.Config.Connectors.AWSRegion)

	c.HTTP = &http.Client{Timeout: c.Config.Connectors.WebhookTimeout}

	logx.Info("✅ Infrastructure initialized")
}

// ---------------------------------------------------------------------------
// Module composition
// ---------------------------------------------------------------------------

func (c *Container) initModules(ctx context.Context) {
	logx.Info("📦 Initializing modules...")

	telemetry.Register()

	c.initJobs(ctx)
	c.initConnectors(ctx)
	c.initAssistant(ctx)

	c.Tokens = authx.NewJWTService(c.Config.Auth.JWTSecret, c.Config.Auth.Issuer, c.Config.Auth.TokenTTL)
	c.Gateway = gateway.NewHandler(gateway.Deps{
		Jobs:          c.Jobs,
		Connectors:    c.Registry,
		Configs:       c.Configs,
		Publisher:     c.Broadcaster,
		WebhookSecret: c.Config.Auth.WebhookSecret,
		Checks: map[string]gateway.HealthCheck{
			"db":    c.DB.PingContext,
			"redis": func(ctx context.Context) error { return c.Redis.Ping(ctx).Err() },
		},
	})
	if c.Config.Auth.WebhookSecret == "" {
		logx.Warn("  ⚠️ GATEWAY_WEBHOOK_SECRET is empty, inbound webhooks are disabled")
	}
	logx.Info("  ✅ Gateway ready")
}

func (c *Container) initJobs(ctx context.Context) {
	cfg := c.Config.Jobx

	var store jobx.Store
	switch cfg.Backend {
	case config.JobxBackendMemory:
		store = jobxmemory.NewMemoryStore()
	case config.JobxBackendRedis:
		store = jobxredis.NewRedisStore(c.Redis, cfg.RedisPrefix)
	default:
		pg := jobxpostgres.NewPostgresStore(c.DB)
		if err := pg.Migrate(ctx); err != nil {
			logx.Fatalf("Failed to migrate jobs table: %v", err)
		}
		store = pg
	}

	c.Jobs = jobx.NewClient(store,
		jobx.WithPollInterval(cfg.PollInterval),
		jobx.WithNudgeDelay(cfg.NudgeDelay),
		jobx.WithDefaultMaxRetries(cfg.MaxRetries),
		jobx.WithObserver(telemetry.JobObserver{}),
	)
	logx.Infof("  ✅ Job queue ready (backend: %s)", cfg.Backend)
}

func (c *Container) initConnectors(ctx context.Context) {
	c.Configs = connectorpostgres.NewConfigRepository(c.DB)
	if err := c.Configs.Migrate(ctx); err != nil {
		logx.Fatalf("Failed to migrate connector config table: %v", err)
	}

	c.Registry = connectorx.NewRegistry(
		connectors.NewCatalog(),
		connectors.Factories(connectors.Deps{
			HTTPClient: c.HTTP,
			Redis:      c.Redis,
			S3:         s3files.NewClient,
			SES:        c.SES,
			EmailFrom:  c.Config.Connectors.SESFrom,
		}),
		c.Configs,
		connectorx.WithObserver(telemetry.ConnectorObserver{}),
		connectorx.WithConnectTimeout(c.Config.Connectors.ConnectTimeout),
	)
	c.Broadcaster = connectorredis.NewBroadcaster(c.Redis, c.Config.Connectors.InvalidationChannel)
	logx.Infof("  ✅ Connector registry ready (%d definitions)", len(c.Registry.AllDefinitions()))
}

func (c *Container) initAssistant(ctx context.Context) {
	cfg := c.Config.Assistant

	var runtime assistant.Runtime
	switch cfg.Provider {
	case config.ProviderOpenAI:
		runtime = assistantopenai.New(cfg.OpenAIAPIKey, cfg.Model)
	default:
		runtime = assistantanthropic.New(cfg.AnthropicAPIKey, cfg.Model)
	}

	// Conversations live next to the jobs: an in-memory queue gets in-memory history.
	var store assistant.ConversationStore
	if c.Config.Jobx.Backend == config.JobxBackendMemory {
		store = assistantmemory.NewMemoryStore()
	} else {
		pg := assistantpostgres.NewConversationRepository(c.DB)
		if err := pg.Migrate(ctx); err != nil {
			logx.Fatalf("Failed to migrate conversation tables: %v", err)
		}
		store = pg
	}

	c.Assistant = assistant.NewService(runtime, c.Registry, store, c.Jobs,
		assistant.WithSystemPrompt(cfg.SystemPrompt),
		assistant.WithMaxTokens(cfg.MaxTokens),
		assistant.WithMaxToolIterations(cfg.MaxToolIterations),
		assistant.WithCompaction(cfg.CompactionThreshold, cfg.KeepRecent),
	)
	c.Assistant.Register(c.Jobs)
	logx.Infof("  ✅ Assistant ready (provider: %s, model: %s)", cfg.Provider, cfg.Model)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// StartBackgroundServices runs the job poller and the invalidation listener
// until ctx is cancelled.
func (c *Container) StartBackgroundServices(ctx context.Context) {
	logx.Info("🔄 Starting background services...")

	c.background.Add(2)
	go func() {
		defer c.background.Done()
		if err := c.Jobs.Start(ctx); err != nil {
			logx.Errorf("Job poller stopped: %v", err)
		}
	}()
	go func() {
		defer c.background.Done()
		if err := c.Broadcaster.Listen(ctx, c.Registry, nil); err != nil {
			logx.Errorf("Invalidation listener stopped: %v", err)
		}
	}()
}

// Cleanup waits for background services, which must already have been
// cancelled, then releases connectors and infrastructure. Services still
// running when ctx ends are abandoned.
func (c *Container) Cleanup(ctx context.Context) {
	logx.Info("🧹 Cleaning up resources...")

	if !c.waitBackground(ctx) {
		logx.Warn("  ⚠️ Background services did not stop in time, continuing shutdown")
	}

	if c.Registry != nil {
		c.Registry.DisconnectAll(ctx)
		logx.Info("  ✅ Connectors disconnected")
	}

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("Error closing database: %v", err)
		} else {
			logx.Info("  ✅ Database connection closed")
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("Error closing Redis: %v", err)
		} else {
			logx.Info("  ✅ Redis connection closed")
		}
	}

	logx.Info("✅ Cleanup complete")
}

// waitBackground reports whether the background services stopped before ctx ended.
func (c *Container) waitBackground(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		c.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func repeatString(s string, count int) string {
	result := ""
	for range count {
		result += s
	}
	return result
}
