package store

import (
	"context"

	"github.com/karmashop-resbrevis/karmapurgex/cache"
	"github.com/karmashop-resbrevis/karmapurgex/model"

	"github.com/rs/zerolog/log"
)

// Approximate size of a cached record.
const cachedEntryCost = 1024

// WithCache wraps the shortlink and profile repositories, the two lookups
// on every resolution, with a read-through cache. A nil cache returns s.
func WithCache(s *Store, c *cache.Cache) *Store {
	if c == nil {
		return s
	}
	wrapped := *s
	wrapped.Shortlinks = &CachedShortlinks{next: s.Shortlinks, cache: c}
	wrapped.Profiles = &CachedProfiles{next: s.Profiles, cache: c}
	return &wrapped
}

func shortlinkCacheKey(key string) string { return "shortlink:" + key }
func apiKeyCacheKey(apiKey string) string { return "apikey:" + apiKey }

type CachedShortlinks struct {
	next  ShortlinkRepository
	cache *cache.Cache
}

func (s *CachedShortlinks) GetByKey(ctx context.Context, key string) (*model.Shortlink, error) {
	if cached, found := s.cache.Get(shortlinkCacheKey(key)); found {
		if link, ok := cached.(model.Shortlink); ok {
			log.Debug().Str("key", key).Msg("Cache hit")
			return &link, nil
		}
	}

	link, err := s.next.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	s.cache.Set(shortlinkCacheKey(key), *link, cachedEntryCost)
	return link, nil
}

func (s *CachedShortlinks) Exists(ctx context.Context, key string) (bool, error) {
	return s.next.Exists(ctx, key)
}

func (s *CachedShortlinks) Create(ctx context.Context, link *model.Shortlink) error {
	return s.next.Create(ctx, link)
}

func (s *CachedShortlinks) Update(ctx context.Context, link *model.Shortlink) error {
	s.cache.Delete(shortlinkCacheKey(link.Key))
	return s.next.Update(ctx, link)
}

func (s *CachedShortlinks) SetLiveness(ctx context.Context, key string, update LivenessUpdate) error {
	s.cache.Delete(shortlinkCacheKey(key))
	return s.next.SetLiveness(ctx, key, update)
}

func (s *CachedShortlinks) Delete(ctx context.Context, key string) error {
	s.cache.Delete(shortlinkCacheKey(key))
	return s.next.Delete(ctx, key)
}

func (s *CachedShortlinks) ListByOwner(ctx context.Context, owner string) ([]model.Shortlink, error) {
	return s.next.ListByOwner(ctx, owner)
}

func (s *CachedShortlinks) CountByOwner(ctx context.Context, owner string) (int, error) {
	return s.next.CountByOwner(ctx, owner)
}

func (s *CachedShortlinks) ListAll(ctx context.Context) ([]model.Shortlink, error) {
	return s.next.ListAll(ctx)
}

// CachedProfiles caches the API-key lookup only; owner-facing reads go to
// the store.
type CachedProfiles struct {
	next  ProfileRepository
	cache *cache.Cache
}

func (s *CachedProfiles) Get(ctx context.Context, username string) (*model.Profile, error) {
	return s.next.Get(ctx, username)
}

func (s *CachedProfiles) GetByAPIKey(ctx context.Context, apiKey string) (*model.Profile, error) {
	if cached, found := s.cache.Get(apiKeyCacheKey(apiKey)); found {
		if p, ok := cached.(model.Profile); ok {
			return &p, nil
		}
	}

	p, err := s.next.GetByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	s.cache.Set(apiKeyCacheKey(apiKey), *p, cachedEntryCost)
	return p, nil
}

func (s *CachedProfiles) Create(ctx context.Context, profile *model.Profile) error {
	return s.next.Create(ctx, profile)
}

func (s *CachedProfiles) Update(ctx context.Context, profile *model.Profile) error {
	if old, err := s.next.Get(ctx, profile.Username); err == nil && old.APIKey != "" {
		s.cache.Delete(apiKeyCacheKey(old.APIKey))
	}
	s.cache.Delete(apiKeyCacheKey(profile.APIKey))
	return s.next.Update(ctx, profile)
}

func (s *CachedProfiles) List(ctx context.Context) ([]model.Profile, error) {
	return s.next.List(ctx)
}
