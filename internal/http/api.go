package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"notekeeper/internal/domain"
	"notekeeper/internal/service"
)

const authRateWindow = time.Minute

// IdentityResolver turns request credentials into a principal.
type IdentityResolver interface {
	ResolveToken(ctx context.Context, token string) (domain.Principal, error)
	ResolveCredentials(ctx context.Context, email, password string) (domain.Principal, error)
	Issue(p domain.Principal) (string, time.Time, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config carries the handler's collaborators.
type Config struct {
	Users    service.UserService
	Notes    service.NoteService
	Archives service.ArchiveService
	Identity IdentityResolver
	Store    Pinger

	Limiter       RateLimiter
	AuthPerMinute int
	Metrics       *Metrics

	CORSOrigin  string
	ServiceName string
	Tracing     bool
	Logger      logrus.FieldLogger
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	users    service.UserService
	notes    service.NoteService
	archives service.ArchiveService
	identity IdentityResolver
	store    Pinger

	limiter       RateLimiter
	authPerMinute int
	metrics       *Metrics

	corsOrigin  string
	serviceName string
	tracing     bool
	log         logrus.FieldLogger
}

func NewHandler(cfg Config) *Handler {
	registerValidators()

	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	origin := cfg.CORSOrigin
	if origin == "" {
		origin = "*"
	}
	name := cfg.ServiceName
	if name == "" {
		name = "notekeeper"
	}
	return &Handler{
		users:         cfg.Users,
		notes:         cfg.Notes,
		archives:      cfg.Archives,
		identity:      cfg.Identity,
		store:         cfg.Store,
		limiter:       cfg.Limiter,
		authPerMinute: cfg.AuthPerMinute,
		metrics:       cfg.Metrics,
		corsOrigin:    origin,
		serviceName:   name,
		tracing:       cfg.Tracing,
		log:           log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	if h.tracing {
		router.Use(otelgin.Middleware(h.serviceName))
	}
	router.Use(h.requestLogger())
	if h.metrics != nil {
		router.Use(h.metrics.middleware())
		router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
	router.Use(corsMiddleware(h.corsOrigin))

	router.GET("/health", h.health)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", h.rateLimit("/auth/register"), h.register)
		authGroup.POST("/login", h.rateLimit("/auth/login"), h.login)
		authGroup.GET("/me", h.identify(), h.me)
	}

	notes := router.Group("/notes", h.identify())
	{
		notes.GET("", h.listNotes)
		notes.POST("", h.createNote)
		notes.POST("/import", h.importNotes)
		notes.GET("/:id", h.getNote)
		notes.PUT("/:id", h.updateNote)
		notes.DELETE("/:id", h.deleteNote)
	}

	exports := router.Group("/exports", h.identify())
	{
		exports.POST("", h.createExport)
		exports.GET("", h.listExports)
		exports.DELETE("", h.purgeExports)
	}
}

func corsMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if origin != "*" {
			c.Writer.Header().Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (h *Handler) health(c *gin.Context) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.log.WithError(err).Warn("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
