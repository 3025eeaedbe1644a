package v1

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-todo-share/internal/realtime"
	"github.com/adanyl0v/go-todo-share/internal/services"
)

type Handler interface {
	HandleLogin(c *gin.Context)
	HandleRegister(c *gin.Context)
	HandleLogout(c *gin.Context)
	HandleAuthMiddleware(c *gin.Context)

	HandleGetTasks(c *gin.Context)
	HandleGetTask(c *gin.Context)
	HandleCreateTask(c *gin.Context)
	HandleUpdateTask(c *gin.Context)
	HandleDeleteTask(c *gin.Context)

	HandleAddCollaborator(c *gin.Context)
	HandleUpdateCollaboratorRole(c *gin.Context)
	HandleRemoveCollaborator(c *gin.Context)

	HandleStream(c *gin.Context)
	HandleHealth(c *gin.Context)
}

// StreamHub is the part of the realtime hub the push channel drives.
type StreamHub interface {
	Attach(sessionID, userID string, sink realtime.Sink) error
	Detach(sessionID string)
	Subscribe(sessionID, taskID string) error
	Unsubscribe(sessionID, taskID string) error
	SubscribeOwnTasks(sessionID string) error
}

type StreamOptions struct {
	// AllowedOrigins are host patterns accepted besides the request host.
	AllowedOrigins []string
	MaxMessageSize int64
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type handlerImpl struct {
	logger zerolog.Logger
	auth   services.AuthService
	tasks  services.TaskService
	hub    StreamHub
	stream StreamOptions
	checks map[string]HealthCheck
}

func New(
	logger zerolog.Logger,
	authService services.AuthService,
	taskService services.TaskService,
	hub StreamHub,
	streamOptions StreamOptions,
	healthChecks map[string]HealthCheck,
) Handler {
	return &handlerImpl{
		logger: logger,
		auth:   authService,
		tasks:  taskService,
		hub:    hub,
		stream: streamOptions,
		checks: healthChecks,
	}
}

// RegisterRoutes mounts every v1 route on router.
func RegisterRoutes(router gin.IRouter, h Handler) {
	router.GET("/healthz", h.HandleHealth)

	authRouter := router.Group("/auth")
	authRouter.POST("/register", h.HandleRegister)
	authRouter.POST("/login", h.HandleLogin)
	authRouter.POST("/logout", h.HandleLogout)

	tasksRouter := router.Group("/tasks", h.HandleAuthMiddleware)
	tasksRouter.GET("", h.HandleGetTasks)
	tasksRouter.POST("", h.HandleCreateTask)
	tasksRouter.GET("/:id", h.HandleGetTask)
	tasksRouter.PUT("/:id", h.HandleUpdateTask)
	tasksRouter.DELETE("/:id", h.HandleDeleteTask)
	tasksRouter.POST("/:id/collaborators", h.HandleAddCollaborator)
	tasksRouter.PUT("/:id/collaborators/:collaboratorId", h.HandleUpdateCollaboratorRole)
	tasksRouter.DELETE("/:id/collaborators/:collaboratorId", h.HandleRemoveCollaborator)

	router.GET("/stream", h.HandleAuthMiddleware, h.HandleStream)
}
