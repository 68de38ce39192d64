package pricecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/cryptoedge/exittune/internal/domain"
)

// Provider resolves the price path for one trade from the (external) price
// cache. A missing series is a data gap, reported as (nil, nil); the engine
// skips and counts the trade, it never fails the run.
type Provider interface {
	PathFor(ctx context.Context, symbol, assetClass string, from time.Time, holdHours float64) (*domain.PricePath, error)
}

// Config holds the Redis adapter settings
type Config struct {
	Addr              string  `yaml:"addr"`
	Password          string  `yaml:"password"`
	DB                int     `yaml:"db"`
	KeyPrefix         string  `yaml:"key_prefix"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	BreakerName       string  `yaml:"breaker_name"`
}

// DefaultConfig returns production adapter settings
func DefaultConfig() Config {
	return Config{
		KeyPrefix:         "pricepath:",
		RequestsPerSecond: 200,
		Burst:             50,
		BreakerName:       "pricecache",
	}
}

// redisProvider reads JSON-encoded price series written by the price-cache
// subsystem. Reads go through a rate limiter and a circuit breaker so a
// degraded cache slows the batch down instead of hammering it.
type redisProvider struct {
	client  redis.Cmdable
	prefix  string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewRedisProvider creates a price-path provider over an existing client
func NewRedisProvider(client redis.Cmdable, config Config) Provider {
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = DefaultConfig().Burst
	}

	settings := gobreaker.Settings{
		Name:    config.BreakerName,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Price cache breaker state change")
		},
	}

	return &redisProvider{
		client:  client,
		prefix:  config.KeyPrefix,
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Connect dials Redis and returns a provider over the new client
func Connect(config Config) (Provider, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to price cache: %w", err)
	}
	return NewRedisProvider(client, config), nil
}

func (p *redisProvider) key(assetClass, symbol string) string {
	return fmt.Sprintf("%s%s:%s", p.prefix, assetClass, symbol)
}

// PathFor returns the cached series trimmed to [from, from+holdHours].
func (p *redisProvider) PathFor(ctx context.Context, symbol, assetClass string, from time.Time, holdHours float64) (*domain.PricePath, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	key := p.key(assetClass, symbol)
	raw, err := p.breaker.Execute(func() (interface{}, error) {
		val, err := p.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return nil, nil
		}
		return val, err
	})
	if err != nil {
		return nil, fmt.Errorf("price cache read for %s failed: %w", key, err)
	}
	if raw == nil {
		// Data gap: the cache has no series for this symbol.
		return nil, nil
	}

	var points []domain.PricePoint
	if err := json.Unmarshal(raw.([]byte), &points); err != nil {
		return nil, fmt.Errorf("malformed price series for %s: %w", key, err)
	}

	end := from.Add(time.Duration(holdHours * float64(time.Hour)))
	trimmed := make([]domain.PricePoint, 0, len(points))
	for _, pt := range points {
		if pt.Timestamp.Before(from) || pt.Timestamp.After(end) {
			continue
		}
		trimmed = append(trimmed, pt)
	}
	if len(trimmed) == 0 {
		return nil, nil
	}

	return &domain.PricePath{
		Symbol:     symbol,
		AssetClass: assetClass,
		Points:     trimmed,
	}, nil
}
