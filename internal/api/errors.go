package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"viewsets/internal/errs"
)

type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// statusFor: клиентские ошибки 400 (пустое тело и required: 422), нарушения
// ограничений хранилища 409, не найдено 404, остальное 500.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindClient:
		switch errs.CodeOf(err) {
		case errs.CodeEmptyBody, errs.CodeRequired:
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindStore:
		switch errs.CodeOf(err) {
		case errs.CodeUniqueViolation, errs.CodeFKViolation:
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}

// writeError отдаёт {"errors":[...]}; внутренние детали наружу не уходят.
func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"errors": []FieldError{{Code: "internal", Message: "internal error"}}})
		return
	}

	var list errs.Issues
	if !errors.As(err, &list) {
		var e *errs.Error
		if errors.As(err, &e) {
			list = errs.Issues{e}
		}
	}
	out := make([]FieldError, 0, len(list))
	for _, e := range list {
		msg := e.Message
		if e.Kind == errs.KindStore {
			msg = e.Op + ": " + e.Code
		}
		out = append(out, FieldError{Code: e.Code, Field: e.Field, Message: msg})
	}
	c.JSON(status, gin.H{"errors": out})
}
