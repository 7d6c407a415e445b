package redis

import (
	"context"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/config"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

func NewClient(cfg config.RedisConfig) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := rdb.Ping(ctx).Result()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	log.Info().Str("address", cfg.Address).Msg("Connected to Redis successfully")
	return rdb
}
