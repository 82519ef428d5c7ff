package main

import (
	"context"
	"fmt"
	"log"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/engine/delayscheduler"
	"github.com/Abraxas-365/chatflow/engine/engineapi"
	"github.com/Abraxas-365/chatflow/engine/engineinfra"
	"github.com/Abraxas-365/chatflow/engine/integrations"
	"github.com/Abraxas-365/chatflow/engine/msgprocessor"
	"github.com/Abraxas-365/chatflow/engine/sessmanager"
	"github.com/Abraxas-365/chatflow/engine/stepper"
	"github.com/Abraxas-365/chatflow/engine/wfsrv"

	"github.com/Abraxas-365/chatflow/providers"
	"github.com/Abraxas-365/chatflow/providers/provideradapters/metacloud"
	"github.com/Abraxas-365/chatflow/providers/provideradapters/wagateway"
	"github.com/Abraxas-365/chatflow/providers/providerapi"
	"github.com/Abraxas-365/chatflow/providers/providersrv"

	"github.com/Abraxas-365/chatflow/pkg/config"
	"github.com/Abraxas-365/chatflow/pkg/kernel"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
)

// Container contains all application dependencies
type Container struct {
	// =================================================================
	// CONFIGURATION & INFRASTRUCTURE
	// =================================================================
	Config      *config.Config
	DB          *sqlx.DB
	RedisClient *redis.Client

	// =================================================================
	// ENGINE - REPOSITORIES
	// =================================================================
	WorkflowRepo engine.WorkflowRepository
	SessionRepo  engine.SessionRepository

	// =================================================================
	// ENGINE - SERVICES
	// =================================================================
	SessionManager     engine.SessionManager
	WorkflowService    *wfsrv.WorkflowService
	Stepper            engine.Stepper
	IntegrationInvoker engine.IntegrationInvoker
	DelayScheduler     *delayscheduler.RedisDelayScheduler
	MessageProcessor   *msgprocessor.MessageProcessor

	// =================================================================
	// PROVIDERS
	// =================================================================
	ProviderManager providers.Manager
	MetaAdapter     *metacloud.Adapter
	GatewayAdapter  *wagateway.Adapter

	// =================================================================
	// API HANDLERS
	// =================================================================
	WebhookHandler   *providerapi.WebhookHandler
	WebhookRoutes    *providerapi.WebhookRoutes
	WorkflowHandlers *engineapi.WorkflowHandlers
	SessionHandlers  *engineapi.SessionHandlers
	EngineRoutes     *engineapi.Routes

	// =================================================================
	// MAINTENANCE
	// =================================================================
	Cron *cron.Cron
}

// NewContainer creates a new dependency container
func NewContainer(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client) *Container {
	c := &Container{
		Config:      cfg,
		DB:          db,
		RedisClient: redisClient,
	}

	log.Println("📦 Initializing dependency container...")

	c.initProviderComponents()
	c.initEngineComponents()
	c.initAPIComponents()
	c.initMaintenanceJobs()

	log.Println("✅ Dependency container initialized successfully")
	return c
}

// =================================================================
// PROVIDERS INITIALIZATION 📡 (BEFORE ENGINE)
// =================================================================

func (c *Container) initProviderComponents() {
	log.Println("  📡 Initializing provider components...")

	c.ProviderManager = providersrv.NewManager(c.Config.Engine.SendTimeout)

	if c.Config.Providers.MetaCloud.IsEnabled() {
		c.MetaAdapter = metacloud.NewAdapter(c.Config.Providers.MetaCloud)
		c.ProviderManager.Register(c.MetaAdapter)
		log.Println("    ✅ Meta Cloud adapter registered")
	}

	if c.Config.Providers.Gateway.IsEnabled() {
		c.GatewayAdapter = wagateway.NewAdapter(c.Config.Providers.Gateway)
		c.ProviderManager.Register(c.GatewayAdapter)
		log.Println("    ✅ Gateway adapter registered")
	}

	if len(c.ProviderManager.List()) == 0 {
		log.Println("    ⚠️  No provider adapters configured")
	}

	log.Println("  ✅ Provider components initialized")
}

// =================================================================
// ENGINE INITIALIZATION ⚙️ (AFTER PROVIDERS)
// =================================================================

func (c *Container) initEngineComponents() {
	log.Println("  ⚙️  Initializing engine components...")

	c.WorkflowRepo = engineinfra.NewPostgresWorkflowRepository(c.DB)
	c.SessionRepo = engineinfra.NewPostgresSessionRepository(c.DB)
	log.Println("    ✅ Repositories initialized")

	c.DelayScheduler = delayscheduler.NewRedisDelayScheduler(
		c.RedisClient,
		c.Config.Engine.SyncDelayMax,
	)
	log.Println("    ✅ Delay scheduler initialized")

	c.SessionManager = sessmanager.NewSessionManager(
		c.SessionRepo,
		c.DelayScheduler,
		c.Config.Engine.MaxHistorySize,
		c.Config.Engine.SessionIdleTTL,
	)
	log.Println("    ✅ Session manager initialized")

	c.IntegrationInvoker = integrations.NewHTTPInvoker(c.Config.Engine.SendTimeout)
	c.Stepper = stepper.NewStepper(c.IntegrationInvoker, c.DelayScheduler)
	log.Println("    ✅ Stepper initialized")

	c.WorkflowService = wfsrv.NewWorkflowService(c.WorkflowRepo)
	log.Println("    ✅ Workflow service initialized")

	c.MessageProcessor = msgprocessor.NewMessageProcessor(
		c.WorkflowRepo,
		c.SessionManager,
		c.Stepper,
		c.ProviderManager,
		c.DelayScheduler,
		kernel.WorkflowID(c.Config.Engine.DefaultWorkflowID),
		c.Config.Engine.SaveRetries,
		c.Config.Engine.SendRetries,
	)
	log.Println("    ✅ Message processor initialized")

	// El scheduler entrega las continuaciones al procesador; la referencia
	// se cierra aquí porque ambos se necesitan mutuamente
	c.DelayScheduler.SetHandler(c.MessageProcessor)
	c.DelayScheduler.StartWorker(context.Background())
	log.Println("    ✅ Delay scheduler worker started")

	log.Println("  ✅ Engine components initialized")
}

// =================================================================
// API INITIALIZATION
// =================================================================

func (c *Container) initAPIComponents() {
	log.Println("  🛣️  Initializing API components...")

	c.WebhookHandler = providerapi.NewWebhookHandler(c.ProviderManager, c.MessageProcessor)
	c.WebhookRoutes = providerapi.NewWebhookRoutes(c.WebhookHandler)

	c.WorkflowHandlers = engineapi.NewWorkflowHandlers(c.WorkflowService)
	c.SessionHandlers = engineapi.NewSessionHandlers(c.SessionManager, c.SessionRepo)
	c.EngineRoutes = engineapi.NewRoutes(c.WorkflowHandlers, c.SessionHandlers)

	log.Println("  ✅ API components initialized")
}

// =================================================================
// MAINTENANCE JOBS 🧹
// =================================================================

func (c *Container) initMaintenanceJobs() {
	log.Println("  🧹 Initializing maintenance jobs...")

	c.Cron = cron.New()

	// Cierre de sesiones sin actividad reciente
	_, err := c.Cron.AddFunc("@every 10m", func() {
		ctx := context.Background()
		closed, err := c.SessionManager.CloseIdleSessions(ctx)
		if err != nil {
			log.Printf("❌ Idle session cleanup failed: %v", err)
			return
		}
		if closed > 0 {
			log.Printf("🧹 Closed %d idle sessions", closed)
		}
	})
	if err != nil {
		log.Fatalf("❌ Failed to register idle session job: %v", err)
	}

	c.Cron.Start()
	log.Println("  ✅ Maintenance jobs started")
}

// =================================================================
// UTILITY METHODS
// =================================================================

func (c *Container) Cleanup() {
	log.Println("🧹 Cleaning up container resources...")

	if c.Cron != nil {
		log.Println("  ⏲️  Stopping maintenance jobs...")
		c.Cron.Stop()
	}

	if c.DelayScheduler != nil {
		log.Println("  ⏰ Stopping delay scheduler...")
		c.DelayScheduler.StopWorker()
	}

	if c.DB != nil {
		log.Println("  🗄️  Closing database connections...")
		c.DB.Close()
	}

	if c.RedisClient != nil {
		log.Println("  🔴 Closing Redis connections...")
		c.RedisClient.Close()
	}

	log.Println("✅ Container cleanup complete")
}

func (c *Container) HealthCheck() map[string]bool {
	health := make(map[string]bool)

	if c.DB != nil {
		health["database"] = c.DB.Ping() == nil
	} else {
		health["database"] = false
	}

	if c.RedisClient != nil {
		health["redis"] = c.RedisClient.Ping(c.RedisClient.Context()).Err() == nil
	} else {
		health["redis"] = false
	}

	health["message_processor"] = c.MessageProcessor != nil
	health["delay_scheduler"] = c.DelayScheduler != nil
	health["provider_manager"] = c.ProviderManager != nil && len(c.ProviderManager.List()) > 0

	return health
}

func (c *Container) GetServiceNames() []string {
	return []string{
		"WorkflowService",
		"SessionManager",
		"MessageProcessor",
		"DelayScheduler",
		"ProviderManager",
	}
}

func (c *Container) GetPendingResumeCount(ctx context.Context) (int64, error) {
	if c.DelayScheduler != nil {
		return c.DelayScheduler.GetPendingCount(ctx)
	}
	return 0, fmt.Errorf("delay scheduler not initialized")
}
