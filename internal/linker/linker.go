package linker

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrExpired = errors.New("share link expired or unknown")

const keyPrefix = "MF:Link:"

// Manager hands out short-lived share tokens that resolve back to object
// keys. A token outliving its TTL simply stops resolving.
type Manager struct {
	client redis.UniversalClient
}

func NewManager(redisClient redis.UniversalClient) *Manager {
	return &Manager{
		client: redisClient,
	}
}

func (m *Manager) Create(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	token := GenerateToken()

	if err := m.client.Set(ctx, keyPrefix+token, objectKey, ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (m *Manager) Resolve(ctx context.Context, token string) (string, error) {
	key, err := m.client.Get(ctx, keyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrExpired
	}
	if err != nil {
		return "", err
	}
	return key, nil
}

func GenerateToken() string {
	src := rand.NewSource(time.Now().UnixNano() * 2)
	r := rand.New(src)

	str := strconv.Itoa(int(time.Now().UnixNano()))
	str += strconv.Itoa(r.Intn(65535))

	in := sha1.Sum([]byte(str))
	return base64.RawURLEncoding.EncodeToString(in[:])
}
