package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/tinyurl/internal/models"
	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

// CacheRepository кэш ссылок поверх БД.
// Изменения ссылки оборачиваются в Lock и Commit/Tombstone/Unlock: пока изменение
// не завершено, Get промахивается, а Fill ничего не пишет. Если завершить изменение
// не удалось, метка живёт до истечения TTL, и всё это время чтения идут в БД.
type CacheRepository interface {
	Get(ctx context.Context, code string) (*models.Link, error)
	// Fill кладёт снимок из БД; более старый снимок не перезаписывает более новый
	Fill(ctx context.Context, link *models.Link) error
	Lock(ctx context.Context, code string) error
	// Commit снимает Lock и записывает состояние ссылки после изменения
	Commit(ctx context.Context, link *models.Link) error
	// Tombstone снимает Lock после удаления; до истечения TTL код не кэшируется
	Tombstone(ctx context.Context, code string) error
	// Unlock снимает Lock, если изменение в БД не состоялось
	Unlock(ctx context.Context, code string) error
}

// Запись хранится хешем link:<code>:
//
//	data     JSON ссылки
//	id       ID ссылки, новая ссылка с тем же кодом получает больший ID
//	clicks   счётчик на момент снимка, внутри одного ID только растёт
//	pending  число незавершённых изменений
//	deleted  ссылка удалена
var (
	fillScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'id', 'clicks', 'pending', 'deleted')
if cur[4] or tonumber(cur[3] or '0') > 0 then
	return 0
end
if cur[1] and (tonumber(cur[1]) > tonumber(ARGV[1]) or
	(tonumber(cur[1]) == tonumber(ARGV[1]) and tonumber(cur[2]) > tonumber(ARGV[2]))) then
	return 0
end
redis.call('HSET', KEYS[1], 'id', ARGV[1], 'clicks', ARGV[2], 'data', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

	// TTL продлевается только при первой блокировке, чтобы зависшая метка истекла
	lockScript = redis.NewScript(`
if redis.call('HINCRBY', KEYS[1], 'pending', 1) == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return 1
`)

	// ARGV: режим (commit, tombstone, unlock), id, clicks, data, ttl
	releaseScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'id', 'clicks', 'pending', 'deleted')
local pending = tonumber(cur[3] or '0')
if pending > 0 then
	pending = redis.call('HINCRBY', KEYS[1], 'pending', -1)
end
if ARGV[1] == 'tombstone' then
	redis.call('HDEL', KEYS[1], 'id', 'clicks', 'data')
	redis.call('HSET', KEYS[1], 'deleted', '1')
elseif ARGV[1] == 'commit' and not cur[4] then
	if not cur[1] or tonumber(cur[1]) < tonumber(ARGV[2]) or
		(tonumber(cur[1]) == tonumber(ARGV[2]) and tonumber(cur[2]) <= tonumber(ARGV[3])) then
		redis.call('HSET', KEYS[1], 'id', ARGV[2], 'clicks', ARGV[3], 'data', ARGV[4])
	end
end
if pending == 0 then
	if redis.call('HEXISTS', KEYS[1], 'data') == 0 and redis.call('HEXISTS', KEYS[1], 'deleted') == 0 then
		redis.call('DEL', KEYS[1])
	else
		redis.call('PEXPIRE', KEYS[1], ARGV[5])
	end
end
return pending
`)
)

const (
	releaseCommit    = "commit"
	releaseTombstone = "tombstone"
	releaseUnlock    = "unlock"
)

type cacheRepository struct {
	redis *RedisDB
	ttl   time.Duration
}

func NewCacheRepository(redis *RedisDB, ttl time.Duration) CacheRepository {
	return &cacheRepository{redis: redis, ttl: ttl}
}

func (r *cacheRepository) Get(ctx context.Context, code string) (*models.Link, error) {
	vals, err := r.redis.Client.HMGet(ctx, r.key(code), "data", "pending", "deleted").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cached link: %w", err)
	}

	data, ok := vals[0].(string)
	if !ok || vals[2] != nil || (vals[1] != nil && vals[1] != "0") {
		return nil, ErrCacheMiss
	}

	var link models.Link
	if err := json.Unmarshal([]byte(data), &link); err != nil {
		return nil, fmt.Errorf("failed to unmarshal link: %w", err)
	}

	return &link, nil
}

func (r *cacheRepository) Fill(ctx context.Context, link *models.Link) error {
	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to marshal link: %w", err)
	}

	return fillScript.Run(ctx, r.redis.Client, []string{r.key(link.Code)},
		link.ID, link.Clicks, data, r.ttl.Milliseconds(),
	).Err()
}

func (r *cacheRepository) Lock(ctx context.Context, code string) error {
	return lockScript.Run(ctx, r.redis.Client, []string{r.key(code)}, r.ttl.Milliseconds()).Err()
}

func (r *cacheRepository) Commit(ctx context.Context, link *models.Link) error {
	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to marshal link: %w", err)
	}

	return r.release(ctx, link.Code, releaseCommit, link.ID, link.Clicks, data)
}

func (r *cacheRepository) Tombstone(ctx context.Context, code string) error {
	return r.release(ctx, code, releaseTombstone, 0, 0, nil)
}

func (r *cacheRepository) Unlock(ctx context.Context, code string) error {
	return r.release(ctx, code, releaseUnlock, 0, 0, nil)
}

func (r *cacheRepository) release(ctx context.Context, code, mode string, id, clicks int64, data []byte) error {
	return releaseScript.Run(ctx, r.redis.Client, []string{r.key(code)},
		mode, id, clicks, data, r.ttl.Milliseconds(),
	).Err()
}

func (r *cacheRepository) key(code string) string {
	return "link:" + code
}

// noopCache используется, когда Redis не настроен
type noopCache struct{}

func NewNoopCache() CacheRepository {
	return noopCache{}
}

func (noopCache) Get(context.Context, string) (*models.Link, error) { return nil, ErrCacheMiss }
func (noopCache) Fill(context.Context, *models.Link) error          { return nil }
func (noopCache) Lock(context.Context, string) error                { return nil }
func (noopCache) Commit(context.Context, *models.Link) error        { return nil }
func (noopCache) Tombstone(context.Context, string) error           { return nil }
func (noopCache) Unlock(context.Context, string) error              { return nil }
