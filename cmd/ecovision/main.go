package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/lox/ecovision/internal/api"
	"github.com/lox/ecovision/internal/climateapi"
	"github.com/lox/ecovision/internal/httputil"
	"github.com/lox/ecovision/internal/logger"
	"github.com/lox/ecovision/internal/store"
)

type CLI struct {
	APIURL      string        `name:"api-url" env:"ECOVISION_API_URL" default:"http://localhost:8000/api/v1" help:"Base URL of the climate API."`
	Port        string        `env:"PORT" default:"8080" help:"HTTP server port."`
	DB          string        `name:"db" env:"ECOVISION_DB" default:"data/ecovision.db" help:"Path to SQLite database."`
	LogLevel    string        `env:"LOG_LEVEL" default:"info" enum:"debug,info,warn,error" help:"Log level."`
	Timeout     time.Duration `env:"ECOVISION_TIMEOUT" default:"30s" help:"Climate API request timeout (0 disables)."`
	Retries     int           `env:"ECOVISION_RETRIES" default:"0" help:"Retries for failed climate API requests."`
	SessionTTL  time.Duration `name:"session-ttl" env:"ECOVISION_SESSION_TTL" default:"24h" help:"Idle time before a dashboard session is dropped."`
	MaxSessions int           `name:"max-sessions" env:"ECOVISION_MAX_SESSIONS" default:"10000" help:"Live dashboard sessions kept in memory."`
	CORSOrigins []string      `name:"cors-origins" env:"ECOVISION_CORS_ORIGINS" help:"Origins allowed to read /api/* (empty: same-origin only)."`
}

func main() {
	// A missing .env is fine; the environment and flags still apply.
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("ecovision"),
		kong.Description("Climate data dashboard."),
		kong.UsageOnError(),
	)

	log := logger.Get(cli.LogLevel)
	defer log.Sync()

	db, err := sql.Open("sqlite", cli.DB)
	kctx.FatalIfErrorf(err, "open database")
	defer db.Close()

	st := store.New(db, log)
	if err := st.Configure(); err != nil {
		log.Fatalw("configure_db_failed", "err", err)
	}
	if err := st.Migrate(); err != nil {
		log.Fatalw("migrate_failed", "err", err)
	}
	log.Infow("database_migrated", "path", cli.DB)

	client := climateapi.NewClient(cli.APIURL,
		climateapi.WithHTTPClient(httputil.NewClientWithTimeout(cli.Timeout)),
		climateapi.WithRetries(cli.Retries),
		climateapi.WithLogger(log),
	)

	server := api.NewServer(st, client, api.Config{
		Port:        cli.Port,
		SessionTTL:  cli.SessionTTL,
		MaxSessions: cli.MaxSessions,
		CORSOrigins: cli.CORSOrigins,
	}, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Infow("starting", "api_url", client.BaseURL(), "port", cli.Port, "retries", cli.Retries)
	if err := server.Run(ctx); err != nil {
		log.Fatalw("server_failed", "err", err)
	}
}
