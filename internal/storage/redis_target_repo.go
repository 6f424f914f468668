package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/annel0/rts-aggro/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни записей, 0 — без ограничения
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "aggro:target:",
		TTL:       time.Minute,
	}
}

// RedisTargetRepo хранит снимки целей в Redis: один JSON-ключ на юнит.
// TTL защищает от мусора, если симуляция упала и не удалила снимки.
type RedisTargetRepo struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisTargetRepo подключается к Redis и проверяет соединение
func NewRedisTargetRepo(ctx context.Context, config *RedisConfig) (*RedisTargetRepo, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info("🔴 Connected to Redis at %s", config.Addr)
	return NewRedisTargetRepoWithClient(client, config.KeyPrefix, config.TTL), nil
}

// NewRedisTargetRepoWithClient оборачивает готовый клиент
func NewRedisTargetRepoWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisTargetRepo {
	return &RedisTargetRepo{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (r *RedisTargetRepo) key(unitID uint64) string {
	return r.keyPrefix + strconv.FormatUint(unitID, 10)
}

// Save сохраняет снимок юнита
func (r *RedisTargetRepo) Save(ctx context.Context, snap TargetSnapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := r.client.Set(ctx, r.key(snap.UnitID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot for unit %d: %w", snap.UnitID, err)
	}
	return nil
}

// Load получает снимок юнита
func (r *RedisTargetRepo) Load(ctx context.Context, unitID uint64) (TargetSnapshot, bool, error) {
	data, err := r.client.Get(ctx, r.key(unitID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return TargetSnapshot{}, false, nil // Снимок не найден
	} else if err != nil {
		return TargetSnapshot{}, false, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snap TargetSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return TargetSnapshot{}, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, true, nil
}

// Delete удаляет снимок юнита
func (r *RedisTargetRepo) Delete(ctx context.Context, unitID uint64) error {
	n, err := r.client.Del(ctx, r.key(unitID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: юнит %d", ErrNotFound, unitID)
	}
	return nil
}

// BatchSave записывает снимки одним пайплайном
func (r *RedisTargetRepo) BatchSave(ctx context.Context, snaps []TargetSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	if err := validateBatch(snaps); err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	for _, snap := range snaps {
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("failed to marshal snapshot for unit %d: %w", snap.UnitID, err)
		}
		pipe.Set(ctx, r.key(snap.UnitID), data, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Count возвращает количество снимков (SCAN по префиксу)
func (r *RedisTargetRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

// Close закрывает соединение с Redis
func (r *RedisTargetRepo) Close() error {
	return r.client.Close()
}
