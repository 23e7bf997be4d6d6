package api

import "strings"

// handlerFor ищет глаголы схемы по паре {module, entity} из URL: точное или
// регистронезависимое FQN; без модуля ищем по уникальному имени сущности.
func (s *Server) handlerFor(module, entity string) (any, bool) {
	entity = strings.TrimSpace(entity)
	if entity == "" {
		return nil, false
	}
	name := entity
	if m := strings.TrimSpace(module); m != "" {
		name = m + "." + entity
	}
	sc, ok := s.reg.Describe(name)
	if !ok {
		return nil, false
	}
	h, ok := s.verbs[sc.Name]
	return h, ok
}
