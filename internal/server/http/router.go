// Package http wires the gin transport for the signing workflow: the
// authenticated owner API under /api and the token-scoped public signing
// surface under /public.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/signdesk/internal/repository"
	"github.com/and161185/signdesk/internal/service"
)

type Router struct {
	engine         *gin.Engine
	logger         *zap.Logger
	authHandler    *AuthHandler
	docHandler     *DocumentHandler
	authMiddleware *AuthMiddleware
}

func NewRouter(
	logger *zap.Logger,
	auth service.AuthService,
	docs service.DocumentService,
	users repository.UserRepository,
	signKey []byte,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	reqMiddleware := NewRequestMiddleware(logger)
	engine.Use(reqMiddleware.ProcessRequest())
	engine.Use(reqMiddleware.RecoverPanic())

	return &Router{
		engine:         engine,
		logger:         logger,
		authHandler:    NewAuthHandler(auth, logger),
		docHandler:     NewDocumentHandler(docs, logger),
		authMiddleware: NewAuthMiddleware(signKey, users),
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "up", "name": "signdesk"})
	})

	r.engine.POST("/api/auth/register", r.authHandler.Register)
	r.engine.POST("/api/auth/login", r.authHandler.Login)

	authorized := r.engine.Group("/api")
	authorized.Use(r.authMiddleware.RequireAuth())
	{
		authorized.POST("/documents", r.docHandler.Create)
		authorized.GET("/documents", r.docHandler.List)
		authorized.GET("/documents/:id", r.docHandler.Get)
		authorized.POST("/documents/:id/finalize", r.docHandler.Finalize)
		authorized.POST("/documents/:id/fields", r.docHandler.PlaceField)
		authorized.PATCH("/documents/:id/fields/:fieldID", r.docHandler.MoveField)
		authorized.DELETE("/documents/:id/fields/:fieldID", r.docHandler.DeleteField)
		authorized.POST("/documents/:id/fields/:fieldID/signature", r.docHandler.SubmitSignature)
		authorized.DELETE("/documents/:id/fields/:fieldID/signature", r.docHandler.Unsign)
		authorized.POST("/documents/:id/reject", r.docHandler.Reject)
		authorized.POST("/documents/:id/public-link", r.docHandler.IssuePublicLink)
		authorized.GET("/documents/:id/audit", r.docHandler.AuditTrail)
		authorized.GET("/audit", r.docHandler.AuditAcross)
	}

	public := r.engine.Group("/public")
	{
		public.GET("/:token", r.docHandler.PublicGet)
		public.POST("/:token/signatures", r.docHandler.PublicSubmit)
		public.POST("/:token/reject", r.docHandler.PublicReject)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
