// Package bootstrap is the start-up sequence shared by every binary: load
// .env and config, build the logger, open the shared clients, and tear
// them down in reverse order on exit.
package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mivahub/mivahub-backend/pkg/config"
	"github.com/mivahub/mivahub-backend/pkg/db"
	"github.com/mivahub/mivahub-backend/pkg/instance"
	"github.com/mivahub/mivahub-backend/pkg/logger"
	"github.com/mivahub/mivahub-backend/pkg/migrate"
	"github.com/mivahub/mivahub-backend/pkg/redis"
)

type closer struct {
	name string
	fn   func() error
}

// Process owns the lifetime of one binary. Ctx is cancelled on SIGINT or
// SIGTERM and carries service_kind and instance log fields.
type Process struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger
	Ctx    context.Context

	stop    context.CancelFunc
	closers []closer
	exit    func(code int)
}

// Start loads configuration for the named service. It exits the process
// when config cannot be loaded, since nothing useful can run without it.
func Start(name string) *Process {
	logg := logger.New(logger.Options{ServiceName: name})
	if err := godotenv.Load(); err != nil {
		logg.Debug(context.Background(), "bootstrap.dotenv.absent")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "bootstrap.config.failed", err)
		os.Exit(1)
	}
	cfg.Service.Kind = name

	return newProcess(name, cfg, logger.New(logger.Options{
		ServiceName: name,
		Env:         cfg.App.Env,
		Format:      cfg.App.LogFormat,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	}), os.Exit)
}

func newProcess(name string, cfg *config.Config, logg *logger.Logger, exit func(int)) *Process {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logg.WithFields(ctx, map[string]any{
		"service_kind": name,
		"instance":     instance.ID(),
	})
	return &Process{Name: name, Config: cfg, Logger: logg, Ctx: ctx, stop: stop, exit: exit}
}

// OnClose registers fn to run at shutdown. Closers run last-registered
// first, so dependents close before what they depend on.
func (p *Process) OnClose(name string, fn func() error) {
	p.closers = append(p.closers, closer{name: name, fn: fn})
}

// Close stops signal handling and runs every closer. Errors are logged, not
// returned: nothing can act on them this late.
func (p *Process) Close() {
	p.stop()
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if err := c.fn(); err != nil {
			p.Logger.Error(p.Logger.WithField(context.Background(), "resource", c.name), "bootstrap.close.failed", err)
		}
	}
	p.closers = nil
}

// Fatal logs err, releases resources and exits non-zero.
func (p *Process) Fatal(msg string, err error) {
	p.Logger.Error(p.Ctx, msg, err)
	p.Close()
	p.exit(1)
}

// Check is Fatal when err is non-nil.
func (p *Process) Check(msg string, err error) {
	if err != nil {
		p.Fatal(msg, err)
	}
}

// Database opens Postgres and, in dev, applies pending migrations.
func (p *Process) Database() *db.Client {
	client, err := db.New(p.Ctx, p.Config.DB, p.Logger)
	p.Check("bootstrap.db.failed", err)
	p.OnClose("db", client.Close)
	p.Check("bootstrap.migrate.failed", migrate.ApplyOnBoot(p.Ctx, p.Config, p.Logger, client))
	return client
}

func (p *Process) Redis() *redis.Client {
	client, err := redis.New(p.Ctx, p.Config.Redis, p.Logger)
	p.Check("bootstrap.redis.failed", err)
	p.OnClose("redis", client.Close)
	return client
}
