package data

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"imagescan/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
)

// DefaultQueryTimeout bounds every data store query.
const DefaultQueryTimeout = 3 * time.Second

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewQueryStore,
	NewRedisCache,
	NewScanBloom,
	NewScanCacheRepo,
	NewGuildRepo,
	NewRuleRepo,
	NewDownloader,
	NewTextModerator,
	NewOCREngine,
	NewImageClassifier,
)

// Data struct for db client
type Data struct {
	Pool *pgxpool.Pool // pgxpool for queries (pgx/v5)
	DB   *sql.DB       // database/sql for migrations
}

// NewData new a data instance
func NewData(conf *conf.Data, logger log.Logger) (*Data, func(), error) {
	log := log.NewHelper(logger)
	ctx := context.Background()
	// config pool
	pgxConfig, err := newPgxPoolConfig(conf)
	if err != nil {
		return nil, nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pgxConfig)
	if err != nil {
		return nil, nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	// Also open database/sql for migrations
	db, err := sql.Open(driverName(conf), conf.Database.Source)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	// auto migrate
	if err := RunMigrate(conf, db); err != nil {
		pool.Close()
		db.Close()
		return nil, nil, err
	}

	cleanup := func() {
		log.Info("closing db connections")
		pool.Close()
		db.Close()
	}

	return &Data{
		Pool: pool,
		DB:   db,
	}, cleanup, nil
}

// newPgxPoolConfig creates a pgxpool.Config from conf.Data. Queries run over
// the simple protocol so arguments are escaped and interpolated client side,
// and the pool holds a single connection unless configured otherwise.
func newPgxPoolConfig(conf *conf.Data) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(conf.Database.Source)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 1
	if conf.Database.MaxConns > 0 {
		cfg.MaxConns = conf.Database.MaxConns
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	cfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(queryTimeout(conf).Milliseconds(), 10)

	return cfg, nil
}

func queryTimeout(conf *conf.Data) time.Duration {
	if d := conf.Database.QueryTimeout.AsDuration(); d > 0 {
		return d
	}
	return DefaultQueryTimeout
}

func driverName(conf *conf.Data) string {
	if conf.Database.Driver != "" {
		return conf.Database.Driver
	}
	return "postgres"
}
