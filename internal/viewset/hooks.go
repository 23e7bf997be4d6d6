package viewset

import (
	"context"
	"fmt"
	"log"
	"sync"

	"viewsets/internal/errs"
	"viewsets/internal/registry"
)

// Event несёт состояние записи для пост-коммит хуков
type Event struct {
	Schema  *registry.Schema
	Created bool
	Before  map[string]any // nil при создании
	After   map[string]any // nil при удалении
}

// HookFunc: пост-коммит обработчик. Ошибка только логируется.
type HookFunc func(ctx context.Context, e Event) error

type Phase string

const (
	PostSave   Phase = "post_save"
	PostDelete Phase = "post_delete"
)

type Hook struct {
	Name  string
	Phase Phase
	Fn    HookFunc
}

func OnPostSave(name string, fn HookFunc) Hook {
	return Hook{Name: name, Phase: PostSave, Fn: fn}
}

func OnPostDelete(name string, fn HookFunc) Hook {
	return Hook{Name: name, Phase: PostDelete, Fn: fn}
}

// hooks запускает обработчики после коммита в отдельных горутинах;
// паника и ошибка изолированы от ответа.
type hooks struct {
	list   []Hook
	wg     sync.WaitGroup
	logger *log.Logger
}

func (h *hooks) add(hs ...Hook) { h.list = append(h.list, hs...) }

func (h *hooks) fire(ctx context.Context, phase Phase, e Event) {
	ctx = context.WithoutCancel(ctx)
	for _, hk := range h.list {
		if hk.Phase != phase {
			continue
		}
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if err := run(ctx, hk, e); err != nil {
				h.logger.Printf("hook %s (%s %s): %v", hk.Name, phase, e.Schema.Name, err)
			}
		}()
	}
}

func run(ctx context.Context, hk Hook, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.Hook(hk.Name, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := hk.Fn(ctx, e); err != nil {
		return errs.Hook(hk.Name, err)
	}
	return nil
}

// Wait дожидается всех запущенных хуков (остановка сервера, тесты).
func (v *Viewset) Wait() { v.hooks.wg.Wait() }
