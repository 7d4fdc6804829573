package config

import "sync"

var (
	redisOnce   sync.Once
	redisConfig *RedisConfig
)

// RedisConfig covers both the asynq broker and progress snapshots.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func GetRedisConfig() *RedisConfig {
	redisOnce.Do(func() {
		loadEnv()
		redisConfig = &RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		}
	})
	return redisConfig
}
