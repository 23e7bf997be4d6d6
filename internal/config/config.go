package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port   string `yaml:"port"`
	DSLDir string `yaml:"dsl_dir"`

	// Хранилище: "sqlite" (default) | "postgres"
	Driver      string `yaml:"driver"`
	DBURL       string `yaml:"db_url"`      // postgres
	SQLitePath  string `yaml:"sqlite_path"` // sqlite: файл или ":memory:"
	AutoMigrate bool   `yaml:"auto_migrate"`
	SQLDebug    bool   `yaml:"sql_debug"`

	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`

	// Схемы только для чтения (FQN)
	ReadOnly []string `yaml:"read_only"`

	// OTLP gRPC; пустой endpoint выключает трассировку
	OTelEndpoint string `yaml:"otel_endpoint"`
	OTelService  string `yaml:"otel_service"`
}

func def() Config {
	return Config{
		Port:         "8080",
		DSLDir:       "dsl",
		Driver:       "sqlite",
		SQLitePath:   "viewsets.db",
		AutoMigrate:  true,
		DefaultLimit: 100,
		MaxLimit:     1000,
		OTelService:  "viewsets",
	}
}

func loadYAML(path string, c *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getenvBool(k string, fallback bool) bool {
	if v, ok := os.LookupEnv(k); ok {
		if b, ok := parseBool(v); ok {
			return b
		}
	}
	return fallback
}

func getenvInt(k string, fallback int) int {
	if v, ok := os.LookupEnv(k); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func parseBool(v string) (bool, bool) {
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	}
	return false, false
}

func splitCSV(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load слоями читает YAML (если файл есть) -> VIEWSETS_* -> флаги args.
// Флаг -config с другим путём перечитывает всё с начала.
func Load(yamlPath string, args []string) (Config, error) {
	cfg := def()

	if st, err := os.Stat(yamlPath); err == nil && !st.IsDir() {
		if err := loadYAML(yamlPath, &cfg); err != nil {
			return cfg, err
		}
	}

	// ENV overrides
	cfg.Port = getenv("VIEWSETS_PORT", cfg.Port)
	cfg.DSLDir = getenv("VIEWSETS_DSL_DIR", cfg.DSLDir)
	cfg.Driver = getenv("VIEWSETS_DRIVER", cfg.Driver)
	cfg.DBURL = getenv("VIEWSETS_DB_URL", cfg.DBURL)
	cfg.SQLitePath = getenv("VIEWSETS_SQLITE_PATH", cfg.SQLitePath)
	cfg.AutoMigrate = getenvBool("VIEWSETS_AUTO_MIGRATE", cfg.AutoMigrate)
	cfg.SQLDebug = getenvBool("VIEWSETS_SQL_DEBUG", cfg.SQLDebug)
	cfg.DefaultLimit = getenvInt("VIEWSETS_DEFAULT_LIMIT", cfg.DefaultLimit)
	cfg.MaxLimit = getenvInt("VIEWSETS_MAX_LIMIT", cfg.MaxLimit)
	if v := getenv("VIEWSETS_READ_ONLY", ""); v != "" {
		cfg.ReadOnly = splitCSV(v)
	}
	cfg.OTelEndpoint = getenv("VIEWSETS_OTEL_ENDPOINT", cfg.OTelEndpoint)
	cfg.OTelService = getenv("VIEWSETS_OTEL_SERVICE", cfg.OTelService)

	// Flags overrides
	fs := flag.NewFlagSet("viewsets", flag.ContinueOnError)
	configPath := fs.String("config", yamlPath, "Path to config YAML")
	port := fs.String("port", cfg.Port, "HTTP port")
	dsl := fs.String("dsl", cfg.DSLDir, "Path to DSL directory")
	driver := fs.String("driver", cfg.Driver, "Storage driver (sqlite/postgres)")
	db := fs.String("db", cfg.DBURL, "Postgres URL")
	sqlitePath := fs.String("sqlite", cfg.SQLitePath, "SQLite file path")
	auto := fs.String("auto-migrate", strconv.FormatBool(cfg.AutoMigrate), "Create missing tables on start (true/false)")
	debug := fs.String("sql-debug", strconv.FormatBool(cfg.SQLDebug), "Log compiled SQL (true/false)")
	defLimit := fs.Int("default-limit", cfg.DefaultLimit, "Default page size")
	maxLimit := fs.Int("max-limit", cfg.MaxLimit, "Maximum page size")
	readOnly := fs.String("read-only", strings.Join(cfg.ReadOnly, ","), "Comma-separated read-only schemas")
	otelEndpoint := fs.String("otel-endpoint", cfg.OTelEndpoint, "OTLP gRPC endpoint (empty = tracing off)")
	otelService := fs.String("otel-service", cfg.OTelService, "service.name for traces")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	// Если через флаг передали другой конфиг: перечитаем
	if *configPath != yamlPath {
		return Load(*configPath, args)
	}

	cfg.Port = strings.TrimSpace(*port)
	cfg.DSLDir = strings.TrimSpace(*dsl)
	cfg.Driver = strings.ToLower(strings.TrimSpace(*driver))
	cfg.DBURL = strings.TrimSpace(*db)
	cfg.SQLitePath = strings.TrimSpace(*sqlitePath)
	if b, ok := parseBool(*auto); ok {
		cfg.AutoMigrate = b
	}
	if b, ok := parseBool(*debug); ok {
		cfg.SQLDebug = b
	}
	cfg.DefaultLimit = *defLimit
	cfg.MaxLimit = *maxLimit
	cfg.ReadOnly = splitCSV(*readOnly)
	cfg.OTelEndpoint = strings.TrimSpace(*otelEndpoint)
	cfg.OTelService = strings.TrimSpace(*otelService)

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Driver {
	case "sqlite":
	case "postgres":
		if c.DBURL == "" {
			return fmt.Errorf("driver postgres requires db_url")
		}
	default:
		return fmt.Errorf("unknown driver %q (allowed: sqlite|postgres)", c.Driver)
	}
	if c.DefaultLimit <= 0 || c.MaxLimit < c.DefaultLimit {
		return fmt.Errorf("bad page limits: default=%d max=%d", c.DefaultLimit, c.MaxLimit)
	}
	return nil
}

// DSN собирает строку подключения для выбранного драйвера
func (c Config) DSN() string {
	if c.Driver == "postgres" {
		return c.DBURL
	}
	return c.SQLitePath
}
