package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/model"

	"github.com/go-redis/redis/v8"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	shortlinkIndexKey = "shortlinks"
	profileIndexKey   = "profiles"

	activityMaxEntries = 1000
	activityTTL        = 90 * 24 * time.Hour
)

func shortlinkKey(key string) string { return "shortlink:" + key }
func ownerShortlinksKey(owner string) string { return "owner:" + owner + ":shortlinks" }
func profileKey(username string) string { return "profile:" + username }
func apiKeyIndexKey(apiKey string) string { return "apikey:" + apiKey }
func userKey(username string) string { return "user:" + username }
func visitsKey(key string) string { return "visits:" + key }
func visitsLastKey(key string) string { return "visits:last:" + key }
func usageDaysKey(apiKey string) string { return "usage:" + apiKey + ":days" }
func usageDayKey(apiKey, date string) string {
	return "usage:" + apiKey + ":" + date
}
func activityKey(username string) string { return "activity:" + username }

// NewRedis returns a Store whose repositories share one Redis client.
func NewRedis(client *redis.Client) *Store {
	return &Store{
		Shortlinks: &RedisShortlinks{redis: client},
		Profiles:   &RedisProfiles{redis: client},
		Visits:     &RedisVisits{redis: client},
		Usage:      &RedisUsage{redis: client},
		Users:      &RedisUsers{redis: client},
		Activity:   &RedisActivity{redis: client},
		ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		close: func(context.Context) error {
			return client.Close()
		},
	}
}

func getJSON(ctx context.Context, client *redis.Client, key string, dst interface{}) error {
	data, err := client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// RedisShortlinks stores each shortlink as JSON under shortlink:{key}, with
// a per-owner SET and a global SET as indexes.
type RedisShortlinks struct {
	redis *redis.Client
}

func (s *RedisShortlinks) GetByKey(ctx context.Context, key string) (*model.Shortlink, error) {
	var link model.Shortlink
	if err := getJSON(ctx, s.redis, shortlinkKey(key), &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (s *RedisShortlinks) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.redis.Exists(ctx, shortlinkKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisShortlinks) Create(ctx context.Context, link *model.Shortlink) error {
	data, err := json.Marshal(link)
	if err != nil {
		return err
	}

	// SETNX makes the key globally unique without a read-modify-write race.
	ok, err := s.redis.SetNX(ctx, shortlinkKey(link.Key), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrKeyExists
	}

	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, ownerShortlinksKey(link.Owner), link.Key)
		pipe.SAdd(ctx, shortlinkIndexKey, link.Key)
		return nil
	})
	return err
}

func (s *RedisShortlinks) Update(ctx context.Context, link *model.Shortlink) error {
	data, err := json.Marshal(link)
	if err != nil {
		return err
	}
	ok, err := s.redis.SetXX(ctx, shortlinkKey(link.Key), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// maxTxRetries bounds optimistic WATCH retries.
const maxTxRetries = 5

func (s *RedisShortlinks) SetLiveness(ctx context.Context, key string, update LivenessUpdate) error {
	redisKey := shortlinkKey(key)
	apply := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, redisKey).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		var link model.Shortlink
		if err := json.Unmarshal(data, &link); err != nil {
			return fmt.Errorf("decode %s: %w", redisKey, err)
		}
		if !update.applyTo(&link) {
			return nil
		}
		data, err = json.Marshal(&link)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetXX(ctx, redisKey, data, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, apply, redisKey)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return fmt.Errorf("set liveness %s: %w", key, redis.TxFailedErr)
}

func (s *RedisShortlinks) Delete(ctx context.Context, key string) error {
	link, err := s.GetByKey(ctx, key)
	if err != nil {
		return err
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, shortlinkKey(key))
		pipe.SRem(ctx, ownerShortlinksKey(link.Owner), key)
		pipe.SRem(ctx, shortlinkIndexKey, key)
		return nil
	})
	return err
}

func (s *RedisShortlinks) ListByOwner(ctx context.Context, owner string) ([]model.Shortlink, error) {
	keys, err := s.redis.SMembers(ctx, ownerShortlinksKey(owner)).Result()
	if err != nil {
		return nil, err
	}
	return s.load(ctx, keys)
}

func (s *RedisShortlinks) CountByOwner(ctx context.Context, owner string) (int, error) {
	n, err := s.redis.SCard(ctx, ownerShortlinksKey(owner)).Result()
	return int(n), err
}

func (s *RedisShortlinks) ListAll(ctx context.Context) ([]model.Shortlink, error) {
	keys, err := s.redis.SMembers(ctx, shortlinkIndexKey).Result()
	if err != nil {
		return nil, err
	}
	return s.load(ctx, keys)
}

func (s *RedisShortlinks) load(ctx context.Context, keys []string) ([]model.Shortlink, error) {
	links := make([]model.Shortlink, 0, len(keys))
	if len(keys) == 0 {
		return links, nil
	}

	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = shortlinkKey(k)
	}
	values, err := s.redis.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, err
	}

	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry outlived its document.
			continue
		}
		var link model.Shortlink
		if err := json.Unmarshal([]byte(raw), &link); err != nil {
			continue
		}
		links = append(links, link)
	}
	return links, nil
}

// RedisProfiles keeps profile:{username} plus an apikey:{key} -> username index.
type RedisProfiles struct {
	redis *redis.Client
}

func (s *RedisProfiles) Get(ctx context.Context, username string) (*model.Profile, error) {
	var profile model.Profile
	if err := getJSON(ctx, s.redis, profileKey(username), &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *RedisProfiles) GetByAPIKey(ctx context.Context, apiKey string) (*model.Profile, error) {
	username, err := s.redis.Get(ctx, apiKeyIndexKey(apiKey)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return s.Get(ctx, username)
}

func (s *RedisProfiles) Create(ctx context.Context, profile *model.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	ok, err := s.redis.SetNX(ctx, profileKey(profile.Username), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrKeyExists
	}

	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, profileIndexKey, profile.Username)
		if profile.APIKey != "" {
			pipe.Set(ctx, apiKeyIndexKey(profile.APIKey), profile.Username, 0)
		}
		return nil
	})
	return err
}

func (s *RedisProfiles) Update(ctx context.Context, profile *model.Profile) error {
	old, err := s.Get(ctx, profile.Username)
	if err != nil {
		return err
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, profileKey(profile.Username), data, 0)
		if old.APIKey != "" && old.APIKey != profile.APIKey {
			pipe.Del(ctx, apiKeyIndexKey(old.APIKey))
		}
		if profile.APIKey != "" {
			pipe.Set(ctx, apiKeyIndexKey(profile.APIKey), profile.Username, 0)
		}
		return nil
	})
	return err
}

func (s *RedisProfiles) List(ctx context.Context) ([]model.Profile, error) {
	names, err := s.redis.SMembers(ctx, profileIndexKey).Result()
	if err != nil {
		return nil, err
	}
	profiles := make([]model.Profile, 0, len(names))
	for _, name := range names {
		p, err := s.Get(ctx, name)
		if err == ErrNotFound {
			continue
		} else if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, nil
}

// RedisVisits appends visits to visits:{key} and tracks the last visit time
// per IP in visits:last:{key} for the dedup check.
type RedisVisits struct {
	redis *redis.Client
}

func (s *RedisVisits) HasRecent(ctx context.Context, key, ip string, since time.Time) (bool, error) {
	raw, err := s.redis.HGet(ctx, visitsLastKey(key), ip).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, err
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, nil
	}
	return nanos > since.UnixNano(), nil
}

func (s *RedisVisits) Insert(ctx context.Context, visit *model.Visit) error {
	data, err := json.Marshal(visit)
	if err != nil {
		return err
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, visitsKey(visit.ShortlinkKey), data)
		pipe.HSet(ctx, visitsLastKey(visit.ShortlinkKey), visit.IP, visit.VisitedAt.UnixNano())
		return nil
	})
	return err
}

func (s *RedisVisits) ListByShortlink(ctx context.Context, key string) ([]model.Visit, error) {
	entries, err := s.redis.LRange(ctx, visitsKey(key), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	visits := make([]model.Visit, 0, len(entries))
	for _, entry := range entries {
		var v model.Visit
		if err := json.Unmarshal([]byte(entry), &v); err != nil {
			continue
		}
		visits = append(visits, v)
	}
	return visits, nil
}

func (s *RedisVisits) DeleteByShortlink(ctx context.Context, key string) error {
	return s.redis.Del(ctx, visitsKey(key), visitsLastKey(key)).Err()
}

// RedisUsage keeps a per-day total in usage:{apiKey}:days and the
// per-shortlink split in usage:{apiKey}:{date}.
type RedisUsage struct {
	redis *redis.Client
}

func (s *RedisUsage) Increment(ctx context.Context, apiKey, shortlink, date string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, usageDaysKey(apiKey), date, 1)
		pipe.HIncrBy(ctx, usageDayKey(apiKey, date), shortlink, 1)
		return nil
	})
	return err
}

func (s *RedisUsage) Sum(ctx context.Context, apiKey, from, to string) (int64, error) {
	days, err := s.redis.HGetAll(ctx, usageDaysKey(apiKey)).Result()
	if err != nil {
		return 0, err
	}
	var total int64
	for date, raw := range days {
		// YYYY-MM-DD compares correctly as a string.
		if date < from || date > to {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("usage counter %s/%s: %w", apiKey, date, err)
		}
		total += n
	}
	return total, nil
}

type RedisUsers struct {
	redis *redis.Client
}

func (s *RedisUsers) Get(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := getJSON(ctx, s.redis, userKey(username), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *RedisUsers) Create(ctx context.Context, user *model.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	ok, err := s.redis.SetNX(ctx, userKey(user.Username), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrKeyExists
	}
	return nil
}

func (s *RedisUsers) Update(ctx context.Context, user *model.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	ok, err := s.redis.SetXX(ctx, userKey(user.Username), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

type RedisActivity struct {
	redis *redis.Client
}

func (s *RedisActivity) Log(ctx context.Context, username string, entry model.ActivityLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal activity log: %w", err)
	}

	key := activityKey(username)
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, activityMaxEntries-1)
		pipe.Expire(ctx, key, activityTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store activity log: %w", err)
	}
	return nil
}

func (s *RedisActivity) List(ctx context.Context, username string, offset, limit int) ([]model.ActivityLog, int, error) {
	key := activityKey(username)

	total, err := s.redis.LLen(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return nil, 0, err
	}

	entries, err := s.redis.LRange(ctx, key, int64(offset), int64(offset+limit-1)).Result()
	if err != nil && err != redis.Nil {
		return nil, 0, err
	}

	activities := make([]model.ActivityLog, 0, len(entries))
	for _, entry := range entries {
		var a model.ActivityLog
		if err := json.Unmarshal([]byte(entry), &a); err != nil {
			continue
		}
		activities = append(activities, a)
	}
	return activities, int(total), nil
}
