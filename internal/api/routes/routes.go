package routes

import (
	"time"

	"stream-gateway/docs"
	"stream-gateway/internal/api/handlers"
	"stream-gateway/internal/api/middleware"
	"stream-gateway/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Options configure the HTTP surface around the hub.
type Options struct {
	AllowedOrigins []string
	// Topics accepted by the trigger endpoint.
	Topics []string
	// Authorizer gates the trigger and connection statistics endpoints.
	Authorizer   handlers.StreamAccess
	AuthzTimeout time.Duration
	// Presence adds cluster-wide online subjects to connection statistics.
	Presence handlers.PresenceReader
	// RateLimiter enables per-caller limits on the trigger endpoint when set.
	RateLimiter      middleware.RateLimiter
	TriggerRateLimit int
	Gatherer         prometheus.Gatherer
	HealthChecks     map[string]handlers.HealthCheck
}

type Router struct {
	engine        *gin.Engine
	opts          Options
	streamHandler *handlers.StreamHandler
	eventHandler  *handlers.EventHandler
	healthHandler *handlers.HealthHandler
	authMW        *middleware.AuthMiddleware
	rateLimitMW   *middleware.RateLimitMiddleware
}

func NewRouter(hub *websocket.Hub, validator websocket.CredentialValidator, opts Options) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(opts.AllowedOrigins))
	engine.Use(middleware.LogApi())

	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	r := &Router{
		engine:        engine,
		opts:          opts,
		streamHandler: handlers.NewStreamHandler(hub, websocket.NewUpgrader(opts.AllowedOrigins),
			opts.Authorizer, opts.AuthzTimeout, opts.Topics, opts.Presence),
		eventHandler:  handlers.NewEventHandler(hub, opts.Topics, opts.Authorizer, opts.AuthzTimeout),
		healthHandler: handlers.NewHealthHandler(opts.HealthChecks),
		authMW:        middleware.NewAuthMiddleware(validator),
	}
	if opts.RateLimiter != nil && opts.TriggerRateLimit > 0 {
		r.rateLimitMW = middleware.NewRateLimitMiddleware(opts.RateLimiter)
	}
	return r
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", r.healthHandler.Health)
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.opts.Gatherer, promhttp.HandlerOpts{})))

	docs.SwaggerInfo.BasePath = "/api/v1"
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// WebSocket endpoints authenticate in-band after the upgrade
	r.engine.GET("/ws", r.streamHandler.HandleWebSocket)

	api := r.engine.Group("/api/v1")
	api.GET("/stream", r.streamHandler.HandleWebSocket)
	api.GET("/events/streams", r.eventHandler.ListStreams)

	auth := api.Group("/")
	auth.Use(r.authMW.RequireAuth())
	{
		auth.GET("/stream/connections", r.streamHandler.GetConnections)

		trigger := []gin.HandlerFunc{}
		if r.rateLimitMW != nil {
			trigger = append(trigger, r.rateLimitMW.RateLimit(r.opts.TriggerRateLimit, time.Minute))
		}
		trigger = append(trigger, r.eventHandler.TriggerEvent)
		auth.POST("/events/trigger", trigger...)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
