package api

import (
	"log"
	"sort"

	"viewsets/internal/registry"
	"viewsets/internal/store"
	"viewsets/internal/viewset"
)

// Server держит по viewset'у на каждую схему реестра.
type Server struct {
	reg  *registry.Registry
	sets map[string]*viewset.Viewset // FQN -> viewset
	// verbs: то, что видит dispatch: сам viewset или его read-only обёртка
	verbs    map[string]any
	readOnly map[string]bool
	funcs    registry.Funcs
	logger   *log.Logger
}

type ServerOption func(*Server)

// WithFuncs: функции computed-полей для проверки DSL через /api/admin/lint
func WithFuncs(f registry.Funcs) ServerOption { return func(s *Server) { s.funcs = f } }

// WithReadOnly оставляет схемам только list/retrieve
func WithReadOnly(fqns ...string) ServerOption {
	return func(s *Server) {
		for _, n := range fqns {
			s.readOnly[n] = true
		}
	}
}

func WithServerLogger(l *log.Logger) ServerOption { return func(s *Server) { s.logger = l } }

// NewServer создаёт viewset для каждой схемы с одинаковыми возможностями opts.
func NewServer(reg *registry.Registry, st store.Store, opts []viewset.Option, sopts ...ServerOption) (*Server, error) {
	s := &Server{
		reg:      reg,
		sets:     map[string]*viewset.Viewset{},
		verbs:    map[string]any{},
		readOnly: map[string]bool{},
		funcs:    registry.Builtins(),
		logger:   log.Default(),
	}
	for _, o := range sopts {
		o(s)
	}
	vsOpts := append([]viewset.Option{viewset.WithLogger(s.logger)}, opts...)
	for _, sc := range reg.Schemas() {
		vs, err := viewset.New(reg, sc.Name, st, vsOpts...)
		if err != nil {
			return nil, err
		}
		s.sets[sc.Name] = vs
		s.verbs[sc.Name] = vs
		if s.readOnly[sc.Name] {
			s.verbs[sc.Name] = viewset.ReadOnly(vs)
		}
	}
	return s, nil
}

// Viewset: viewset схемы по FQN (для подключения хуков и тестов)
func (s *Server) Viewset(fqn string) (*viewset.Viewset, bool) {
	vs, ok := s.sets[fqn]
	return vs, ok
}

// Wait дожидается хуков всех viewset'ов (остановка сервера)
func (s *Server) Wait() {
	for _, vs := range s.sets {
		vs.Wait()
	}
}

func (s *Server) names() []string {
	out := make([]string, 0, len(s.sets))
	for name := range s.sets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
