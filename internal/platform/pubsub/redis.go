package pubsub

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Options struct {
	Addr     string
	Password string
	DB       int
}

var RDB *redis.Client

// ConnectRedis opens the client used to share status events between
// instances and verifies it with a ping.
func ConnectRedis(ctx context.Context, opts Options, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}

	RDB = rdb
	logger.Info("connected to Redis", zap.String("addr", opts.Addr))
	return rdb, nil
}

func CloseRedis(logger *zap.Logger) {
	if RDB != nil {
		if err := RDB.Close(); err != nil {
			logger.Warn("closing redis", zap.Error(err))
			return
		}
		logger.Info("redis connection closed")
	}
}
