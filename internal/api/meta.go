package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"viewsets/internal/registry"
)

// ===== META HANDLERS =====

type metaEntityListItem struct {
	Module string `json:"module"`
	Entity string `json:"entity"`
	Table  string `json:"table"`
}

// GET /api/meta
func (s *Server) MetaListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		out := make([]metaEntityListItem, 0, len(s.sets))
		for _, name := range s.names() {
			sc := s.sets[name].Schema()
			out = append(out, metaEntityListItem{Module: sc.Module, Entity: sc.Entity, Table: sc.Table})
		}
		c.JSON(http.StatusOK, out)
	}
}

type metaField struct {
	Name     string            `json:"name"`
	Kind     string            `json:"kind"`
	Type     string            `json:"type,omitempty"`
	RefFQN   string            `json:"refFQN,omitempty"`
	Depends  string            `json:"depends,omitempty"`
	PK       bool              `json:"pk,omitempty"`
	Required bool              `json:"required,omitempty"`
	Unique   bool              `json:"unique,omitempty"`
	ReadOnly bool              `json:"readonly,omitempty"`
	Default  any               `json:"default,omitempty"`
	Options  map[string]string `json:"options,omitempty"`
}

type metaEntity struct {
	Module   string      `json:"module"`
	Entity   string      `json:"entity"`
	PK       string      `json:"pk"`
	Lookup   string      `json:"lookup,omitempty"`
	Defaults []string    `json:"defaults"`
	Filters  []string    `json:"filters"`
	Fields   []metaField `json:"fields"`
	// {"unique":[["code"],["base","quote","date"]]}
	Constraints map[string]any `json:"constraints,omitempty"`
}

// GET /api/meta/:module/:entity
func (s *Server) MetaEntityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, ok := s.reg.Describe(c.Param("module") + "." + c.Param("entity"))
		if !ok {
			entityNotFound(c)
			return
		}
		c.JSON(http.StatusOK, describe(sc))
	}
}

func describe(sc *registry.Schema) metaEntity {
	out := metaEntity{
		Module:   sc.Module,
		Entity:   sc.Entity,
		PK:       sc.PK.Name,
		Defaults: sc.DefaultFields(),
		Filters:  sc.FilterNames(),
		Fields:   make([]metaField, 0, len(sc.Fields())),
	}
	if sc.Lookup != nil {
		out.Lookup = sc.Lookup.Name
	}
	for _, f := range sc.Fields() {
		mf := metaField{
			Name:     f.Name,
			Kind:     f.Kind.String(),
			PK:       f.PK,
			Required: f.Required,
			Unique:   f.Unique,
			ReadOnly: sc.IsReadOnly(f.Name),
			Default:  f.Default,
		}
		switch f.Kind {
		case registry.Stored:
			mf.Type = string(f.Type)
		case registry.ToOne, registry.ToMany:
			mf.RefFQN = f.Target.Name
		case registry.Computed:
			mf.Depends = f.Depends.String()
		}
		if len(f.Options) > 0 {
			mf.Options = make(map[string]string, len(f.Options))
			for k, v := range f.Options {
				mf.Options[k] = v
			}
		}
		out.Fields = append(out.Fields, mf)
	}
	if len(sc.Unique) > 0 {
		uniq := make([][]string, 0, len(sc.Unique))
		for _, set := range sc.Unique {
			uniq = append(uniq, append([]string(nil), set...))
		}
		out.Constraints = map[string]any{"unique": uniq}
	}
	return out
}
