package bootstrap

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/botcore/core/config"
	coredatabase "github.com/m3rciful/botcore/core/database"
	"github.com/m3rciful/botcore/core/logger"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
// DB is nil when the database section is disabled.
type Result struct {
	DB *sqlx.DB
}

// Run initializes the logger and, when enabled, connects to the database and
// applies migrations.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	if !opts.Config.Database.Enabled {
		return &Result{}, nil
	}

	dbCfg := coredatabase.Config{
		Host:           opts.Config.Database.Host,
		Port:           opts.Config.Database.Port,
		User:           opts.Config.Database.User,
		Password:       opts.Config.Database.Password,
		Name:           opts.Config.Database.Name,
		SSLMode:        opts.Config.Database.SSLMode,
		MaxConnections: opts.Config.Database.MaxConnections,
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrateFn := opts.Migrate
	if migrateFn == nil {
		migrateFn = coredatabase.RunMigrations
	}
	if err := migrateFn(dbCfg); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	return &Result{DB: db}, nil
}
