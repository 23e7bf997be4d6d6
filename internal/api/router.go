// api/router.go
package api

import (
	"github.com/gin-gonic/gin"

	"viewsets/internal/telemetry"
)

// NewRouter регистрирует маршруты; служебные статические идут раньше CRUD.
func NewRouter(s *Server) *gin.Engine {
	r := gin.Default()
	r.Use(telemetry.Middleware())

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/meta", s.MetaListHandler())
		apiGroup.GET("/meta/:module/:entity", s.MetaEntityHandler())
		apiGroup.POST("/admin/lint", s.AdminLintHandler())

		apiGroup.POST("/:module/:entity", s.CreateHandler())
		apiGroup.GET("/:module/:entity", s.ListHandler())
		apiGroup.GET("/:module/:entity/:id", s.GetOneHandler())
		apiGroup.PUT("/:module/:entity/:id", s.ReplaceHandler())
		apiGroup.PATCH("/:module/:entity/:id", s.UpdateHandler())
		apiGroup.DELETE("/:module/:entity/:id", s.DeleteHandler())
	}
	return r
}
