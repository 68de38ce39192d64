package postgres

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/cryptoedge/exittune/internal/persistence"
)

// Duration wraps time.Duration so "30m" style strings parse from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.v2 unmarshalling for duration strings.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds PostgreSQL connection settings
type Config struct {
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    Duration `yaml:"query_timeout"`
}

// DefaultConfig returns production connection pool settings
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: Duration(30 * time.Minute),
		QueryTimeout:    Duration(30 * time.Second),
	}
}

// Connect opens a pooled connection and verifies it
func Connect(config Config) (*sqlx.DB, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := sqlx.Connect("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime))

	log.Info().
		Int("max_open_conns", config.MaxOpenConns).
		Int("max_idle_conns", config.MaxIdleConns).
		Msg("Connected to result store")

	return db, nil
}

// NewRepository wires all repositories over one connection pool
func NewRepository(db *sqlx.DB, queryTimeout time.Duration) *persistence.Repository {
	if queryTimeout <= 0 {
		queryTimeout = time.Duration(DefaultConfig().QueryTimeout)
	}
	return &persistence.Repository{
		Optimizations: NewOptimizationRepo(db, queryTimeout),
		WalkForward:   NewWalkForwardRepo(db, queryTimeout),
		RegimeStats:   NewRegimeStatsRepo(db, queryTimeout),
		Trades:        NewTradesRepo(db, queryTimeout),
	}
}
