package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"viewsets/internal/api"
	"viewsets/internal/config"
	"viewsets/internal/dsl"
	"viewsets/internal/errs"
	"viewsets/internal/registry"
	"viewsets/internal/sqlstore"
	"viewsets/internal/telemetry"
	"viewsets/internal/viewset"
)

func main() {
	cfg, err := config.Load("viewsets.yaml", os.Args[1:])
	if err != nil {
		log.Fatalf("Ошибка конфигурации: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, cfg.OTelService)
	if err != nil {
		log.Fatalf("Ошибка OpenTelemetry: %v", err)
	}

	// 1. DSL-сущности и реестр полей; все ошибки схемы сразу
	entities, err := dsl.LoadAllEntities(cfg.DSLDir)
	if err != nil {
		log.Fatalf("Ошибка загрузки DSL: %v", err)
	}
	fmt.Printf("Загружено сущностей: %d\n", len(entities))

	reg, err := registry.Build(entities, nil)
	if err != nil {
		var issues errs.Issues
		if errors.As(err, &issues) {
			for _, is := range issues {
				log.Printf("schema: %s [%s] %s", is.Field, is.Code, is.Message)
			}
		}
		log.Fatalf("Ошибка схемы: %v", err)
	}

	// 2. Хранилище
	d, err := sqlstore.DialectByName(cfg.Driver)
	if err != nil {
		log.Fatalf("Ошибка конфигурации: %v", err)
	}
	db, err := sqlstore.Open(ctx, d, cfg.DSN())
	if err != nil {
		log.Fatalf("Ошибка подключения к БД: %v", err)
	}
	defer db.Close()

	if cfg.AutoMigrate {
		ddl, err := sqlstore.GenerateDDL(reg, d)
		if err != nil {
			log.Fatalf("Ошибка генерации DDL: %v", err)
		}
		if err := sqlstore.ApplyDDL(ctx, db, ddl); err != nil {
			log.Fatalf("Ошибка применения DDL: %v", err)
		}
	}
	st := sqlstore.New(db, d, sqlstore.WithDebug(cfg.SQLDebug))

	// 3. Viewset'ы и REST API
	srv, err := api.NewServer(reg, st, []viewset.Option{
		viewset.WithPagination(cfg.DefaultLimit, cfg.MaxLimit),
		viewset.WithFilters(),
		viewset.WithFieldSelection(),
	}, api.WithReadOnly(cfg.ReadOnly...))
	if err != nil {
		log.Fatalf("Ошибка инициализации: %v", err)
	}

	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: api.NewRouter(srv)}
	go func() {
		fmt.Printf("Стартуем сервер viewsets на :%s (%s)...\n", cfg.Port, d.Name())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Ошибка сервера: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Останавливаемся...")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	srv.Wait()
	if err := shutdownTracing(sctx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
}
