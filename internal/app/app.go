// Package app builds the bot's components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"shopbot/internal/config"
	"shopbot/internal/dedupe"
	"shopbot/internal/httpapi"
	"shopbot/internal/kstream"
	"shopbot/internal/line"
	"shopbot/internal/paapi"
	"shopbot/internal/processing"
	"shopbot/internal/shortener"
)

// App owns the long-lived clients. Close releases them.
type App struct {
	Handler *httpapi.Handler
	Search  *processing.Service

	closers []func() error
}

// New wires the webhook handler and everything behind it. Redis and Kafka
// are optional: without them dedupe is in-memory and outcomes are dropped.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		var err error
		if rdb, err = connectRedis(cfg.Redis); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
	}

	a.Search = newSearch(cfg, rdb, log)

	var store dedupe.Store = dedupe.NewMemoryStore()
	if rdb != nil {
		store = dedupe.NewRedisStore(rdb)
	}

	var outcomes httpapi.OutcomePublisher = kstream.Nop{}
	if cfg.Kafka.Broker != "" {
		p := kstream.NewProducer(cfg.Kafka.Broker, cfg.Kafka.Topic)
		a.closers = append(a.closers, p.Close)
		outcomes = p
	}

	messenger := line.NewClient(line.Config{
		ChannelSecret: cfg.Line.ChannelSecret,
		ChannelToken:  cfg.Line.ChannelToken,
		Endpoint:      cfg.Line.Endpoint,
		Timeout:       cfg.HTTP.ClientTimeout,
	})

	a.Handler = httpapi.NewHandler(httpapi.Config{
		Messenger:      messenger,
		Builder:        a.Search,
		Dedupe:         store,
		Outcomes:       outcomes,
		Log:            log,
		DedupeTTL:      cfg.Redis.DedupeTTL,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})

	log.Info().
		Bool("redis", rdb != nil).
		Bool("kafka", cfg.Kafka.Broker != "").
		Bool("bitly", cfg.Bitly.Token != "").
		Msg("app wired")
	return a, nil
}

// NewSearchOnly wires just the product search path, for the search command.
func NewSearchOnly(cfg *config.Config, log zerolog.Logger) (*App, error) {
	if err := cfg.ValidateSearch(); err != nil {
		return nil, err
	}
	return &App{Search: newSearch(cfg, nil, log)}, nil
}

func newSearch(cfg *config.Config, rdb *redis.Client, log zerolog.Logger) *processing.Service {
	search := paapi.NewClient(paapi.Config{
		AccessKey:   cfg.PAAPI.AccessKey,
		SecretKey:   cfg.PAAPI.SecretKey,
		PartnerTag:  cfg.PAAPI.PartnerTag,
		Host:        cfg.PAAPI.Host,
		Region:      cfg.PAAPI.Region,
		Marketplace: cfg.PAAPI.Marketplace,
		Timeout:     cfg.HTTP.ClientTimeout,
	})

	var short processing.Shortener = shortener.Passthrough{}
	if cfg.Bitly.Token != "" {
		short = shortener.NewBitly(cfg.Bitly.Token, cfg.Bitly.Endpoint, cfg.HTTP.ClientTimeout)
		if rdb != nil {
			short = shortener.NewCached(short, rdb, cfg.Bitly.CacheTTL, log)
		}
	}

	return processing.NewService(search, short, log)
}

func connectRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// Close releases clients in reverse creation order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
