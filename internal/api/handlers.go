package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"viewsets/internal/errs"
	"viewsets/internal/viewset"
)

// entityNotFound: в URL нет такой схемы
func entityNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"errors": []FieldError{{Code: errs.CodeNotFound, Field: "entity", Message: "Entity not found"}}})
}

func notAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{"errors": []FieldError{{Code: "method_not_allowed", Message: "Method not allowed"}}})
}

// bindPayload читает JSON-объект тела; пустое тело = пустой payload
func bindPayload(c *gin.Context) (map[string]any, error) {
	var obj map[string]any
	if err := c.ShouldBindJSON(&obj); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, errs.Client("invalid_json", "", "Invalid JSON")
	}
	return obj, nil
}

// GET /api/:module/:entity
func (s *Server) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h, ok := s.handlerFor(c.Param("module"), c.Param("entity"))
		if !ok {
			entityNotFound(c)
			return
		}
		l, ok := h.(viewset.Lister)
		if !ok {
			notAllowed(c)
			return
		}
		p, err := parseListParams(c.Request.URL.Query())
		if err == nil {
			err = checkCapabilities(h, &p)
		}
		if err != nil {
			s.writeError(c, err)
			return
		}
		seq, err := l.List(c.Request.Context(), p)
		if err != nil {
			s.writeError(c, err)
			return
		}
		out, err := viewset.Collect(seq)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// GET /api/:module/:entity/:id
func (s *Server) GetOneHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h, ok := s.handlerFor(c.Param("module"), c.Param("entity"))
		if !ok {
			entityNotFound(c)
			return
		}
		r, ok := h.(viewset.Retriever)
		if !ok {
			notAllowed(c)
			return
		}
		p, err := parseListParams(c.Request.URL.Query())
		if err == nil {
			p = viewset.Params{Fields: p.Fields}
			err = checkCapabilities(h, &p)
		}
		if err != nil {
			s.writeError(c, err)
			return
		}
		out, err := r.Retrieve(c.Request.Context(), c.Param("id"), p)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// POST /api/:module/:entity
func (s *Server) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h, ok := s.handlerFor(c.Param("module"), c.Param("entity"))
		if !ok {
			entityNotFound(c)
			return
		}
		cr, ok := h.(viewset.Creator)
		if !ok {
			notAllowed(c)
			return
		}
		obj, err := bindPayload(c)
		if err != nil {
			s.writeError(c, err)
			return
		}
		out, err := cr.Create(c.Request.Context(), obj)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, out)
	}
}

// PATCH /api/:module/:entity/:id, частичное обновление
func (s *Server) UpdateHandler() gin.HandlerFunc {
	return s.writeHandler(func(h any) (writeFunc, bool) {
		up, ok := h.(viewset.Updater)
		if !ok {
			return nil, false
		}
		return up.Update, true
	})
}

// PUT /api/:module/:entity/:id, тело проверяется как полное
func (s *Server) ReplaceHandler() gin.HandlerFunc {
	return s.writeHandler(func(h any) (writeFunc, bool) {
		rp, ok := h.(viewset.Replacer)
		if !ok {
			return nil, false
		}
		return rp.Replace, true
	})
}

type writeFunc func(ctx context.Context, lookup string, payload map[string]any) (map[string]any, error)

func (s *Server) writeHandler(verb func(h any) (writeFunc, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		h, ok := s.handlerFor(c.Param("module"), c.Param("entity"))
		if !ok {
			entityNotFound(c)
			return
		}
		fn, ok := verb(h)
		if !ok {
			notAllowed(c)
			return
		}
		obj, err := bindPayload(c)
		if err != nil {
			s.writeError(c, err)
			return
		}
		out, err := fn(c.Request.Context(), c.Param("id"), obj)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// DELETE /api/:module/:entity/:id
func (s *Server) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h, ok := s.handlerFor(c.Param("module"), c.Param("entity"))
		if !ok {
			entityNotFound(c)
			return
		}
		d, ok := h.(viewset.Destroyer)
		if !ok {
			notAllowed(c)
			return
		}
		if err := d.Destroy(c.Request.Context(), c.Param("id")); err != nil {
			s.writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
