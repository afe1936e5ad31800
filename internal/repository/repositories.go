package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"chat_gateway/pkg/logger"
)

type Repositories struct {
	User      UserRepository
	Room      RoomRepository
	Chat      ChatRepository
	RateLimit RateLimitRepository
}

func NewRepositories(db *pgxpool.Pool, rdb *redis.Client, log logger.Logger) *Repositories {
	repos := &Repositories{
		User: NewUserRepository(db, log),
		Room: NewRoomRepository(db, log),
		Chat: NewChatRepository(db, log),
	}

	if rdb != nil {
		repos.RateLimit = NewRateLimitRepository(rdb, log)
	} else {
		log.Warn("redis not configured, using in-process rate limit counters")
		repos.RateLimit = NewMemoryRateLimitRepository()
	}

	return repos
}
