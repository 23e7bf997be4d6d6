package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"viewsets/internal/dsl"
	"viewsets/internal/registry"
)

type lintReq struct {
	DSL     string `json:"dsl"`      // текст схем
	DSLRoot string `json:"dsl_root"` // или директория с *.dsl
}

// POST /api/admin/lint: проверка DSL без применения: те же ошибки, что дал бы
// старт сервера, все сразу.
func (s *Server) AdminLintHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req lintReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}

		var (
			ents map[string]*dsl.Entity
			err  error
		)
		switch {
		case strings.TrimSpace(req.DSL) != "":
			var list []*dsl.Entity
			if list, err = dsl.ParseString(req.DSL); err == nil {
				ents, err = dsl.Index(list)
			}
		case strings.TrimSpace(req.DSLRoot) != "":
			ents, err = dsl.LoadAllEntities(strings.TrimSpace(req.DSLRoot))
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "dsl or dsl_root is required"})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "DSL load error", "details": err.Error()})
			return
		}

		if issues := registry.Lint(ents, s.funcs); len(issues) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "schema has blocking issues",
				"issues": issues,
				"hint":   "fix DSL and retry",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "entities": len(ents)})
	}
}
