package bootstrap

import (
	"context"
	"log"
	"time"

	"ai-library-agent/internal/config"
	"ai-library-agent/internal/controller"
	"ai-library-agent/internal/pkg/logger"
	"ai-library-agent/internal/pkg/serverutils"
	"ai-library-agent/internal/repository/implementation"
	"ai-library-agent/internal/repository/memory"
	"ai-library-agent/internal/repository/unitofwork"
	"ai-library-agent/internal/service"
	"ai-library-agent/internal/viewer"
	"ai-library-agent/internal/websocket"
	"ai-library-agent/pkg/agentstream"
	"ai-library-agent/pkg/backend"
	pktNats "ai-library-agent/pkg/nats"
	"ai-library-agent/pkg/reconcile"
	"ai-library-agent/pkg/refresolver"
	"ai-library-agent/pkg/workspace"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const workspaceTopic = "workspace.updates"

type Container struct {
	// Controllers
	ThreadController    controller.IThreadController
	ActionController    controller.IActionController
	ReferenceController controller.IReferenceController
	LibraryController   controller.ILibraryController
	WebSocketController controller.IWebSocketController

	Auth fiber.Handler

	// Background Services (Exposed for main.go to run)
	ConsumerService    service.IConsumerService
	ActionAuditService service.IActionAuditService
	// AuditEnabled is false when NATS is not configured or unreachable.
	AuditEnabled bool

	WebSocketHub *websocket.Hub
	Logger       logger.ILogger

	closers []func()
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.IsProduction())
	c := &Container{Logger: sysLogger}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermillLogger,
	)

	// 3. Infrastructure
	var natsPub *pktNats.Publisher
	var natsSub *pktNats.Subscriber
	if cfg.App.NatsURL != "" {
		var err error
		natsPub, err = pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			c.closers = append(c.closers, natsPub.Close)
		}
		natsSub, err = pktNats.NewSubscriber(cfg.App.NatsURL, sysLogger)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
		} else {
			c.closers = append(c.closers, natsSub.Close)
		}
	}

	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		cancel()
	}

	// WebSocket Hub + viewer bridge
	wsLogger := logger.NewIsolatedLogger("logs/websocket.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	bridge := viewer.NewBridge(wsHub, cfg.Agent.ViewerCallTimeout, wsLogger)
	wsHub.OnMessage(bridge.HandleMessage)
	c.WebSocketHub = wsHub

	// 4. Core
	backendClient := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token)
	libraryService := service.NewLibraryService(uowFactory, backendClient, cfg.Agent.LibraryID, sysLogger)
	resolver := refresolver.New(libraryService, sysLogger)
	stream := agentstream.NewClient(backendClient, sysLogger)

	reconcileCfg := reconcile.Config{
		ReadyTimeout:      cfg.Agent.ViewerReadyTimeout,
		ReadyPollInterval: cfg.Agent.ViewerReadyPollInterval,
		GraceWindow:       cfg.Agent.GraceWindow,
		AckAutoRetry:      cfg.Agent.AckAutoRetry,
		AckMaxTries:       uint(cfg.Agent.AckMaxTries),
		AckRetryInterval:  cfg.Agent.AckRetryInterval,
	}
	workspaces := memory.NewWorkspaceRepository(cfg.Agent.WorkspaceIdleTTL)
	workspaces.OnEvicted(func(key string, _ *workspace.Workspace) {
		stream.Cancel(key)
	})
	newWorkspace := func(key string, userID uuid.UUID) *workspace.Workspace {
		return workspace.New(key, userID.String(), workspace.Deps{
			Library:  libraryService,
			Resolver: resolver,
			Viewer:   bridge.For(userID),
			Acker:    backendClient,
			Logger:   sysLogger,
			Config:   reconcileCfg,
		})
	}

	// 5. Services
	publisherService := service.NewPublisherService(workspaceTopic, pubSub)

	var eventPublisher service.EventPublisher
	if natsPub != nil {
		eventPublisher = natsPub
	}
	c.ConsumerService = service.NewConsumerService(pubSub, workspaceTopic, workspaces, wsHub, eventPublisher, sysLogger)

	auditRepo := implementation.NewActionAuditRepository(db)
	var auditSub service.EventSubscriber
	if natsSub != nil {
		auditSub = natsSub
		c.AuditEnabled = true
	}
	c.ActionAuditService = service.NewActionAuditService(auditRepo, auditSub, sysLogger)

	threadService := service.NewThreadService(
		workspaces,
		newWorkspace,
		stream,
		libraryService,
		publisherService,
		cfg.Agent.LibraryID,
		sysLogger,
	)
	actionService := service.NewActionService(workspaces, sysLogger)
	referenceService := service.NewReferenceService(resolver, sysLogger)

	// 6. Controllers
	c.Auth = serverutils.NewJwtMiddleware(cfg.Auth.JwtSecret)
	c.ThreadController = controller.NewThreadController(threadService)
	c.ActionController = controller.NewActionController(actionService, c.ActionAuditService)
	c.ReferenceController = controller.NewReferenceController(referenceService)
	c.LibraryController = controller.NewLibraryController(libraryService)
	c.WebSocketController = controller.NewWebSocketController(wsHub, cfg.Auth.JwtSecret, wsLogger)

	return c
}

// Close releases broker connections and flushes logs.
func (c *Container) Close() {
	for _, fn := range c.closers {
		fn()
	}
	_ = c.Logger.Sync()
}
