// Package store persists shortlinks, owner profiles, visits, usage counters,
// credentials and the activity trail. Redis is the primary backend; MongoDB
// is an alternate selected with storage.driver.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/model"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrKeyExists = errors.New("key already exists")
)

type ShortlinkRepository interface {
	GetByKey(ctx context.Context, key string) (*model.Shortlink, error)
	// Exists reports whether key is taken by any owner.
	Exists(ctx context.Context, key string) (bool, error)
	// Create fails with ErrKeyExists when the key is already taken.
	Create(ctx context.Context, link *model.Shortlink) error
	Update(ctx context.Context, link *model.Shortlink) error
	Delete(ctx context.Context, key string) error
	ListByOwner(ctx context.Context, owner string) ([]model.Shortlink, error)
	CountByOwner(ctx context.Context, owner string) (int, error)
	ListAll(ctx context.Context) ([]model.Shortlink, error)
	// SetLiveness writes only the liveness fields of a shortlink. A status
	// is applied only while the stored URL still equals the checked one.
	SetLiveness(ctx context.Context, key string, update LivenessUpdate) error
}

// LivenessUpdate carries the result of re-checking a shortlink's
// destinations. Empty URLs are skipped.
type LivenessUpdate struct {
	URL             string
	Status          model.LivenessStatus
	SecondaryURL    string
	SecondaryStatus model.LivenessStatus
	CheckedAt       time.Time
}

type ProfileRepository interface {
	Get(ctx context.Context, username string) (*model.Profile, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*model.Profile, error)
	// Create fails with ErrKeyExists when the username already has a profile.
	Create(ctx context.Context, profile *model.Profile) error
	Update(ctx context.Context, profile *model.Profile) error
	List(ctx context.Context) ([]model.Profile, error)
}

type VisitRepository interface {
	// HasRecent reports whether a visit for (key, ip) was recorded after
	// since.
	HasRecent(ctx context.Context, key, ip string, since time.Time) (bool, error)
	Insert(ctx context.Context, visit *model.Visit) error
	ListByShortlink(ctx context.Context, key string) ([]model.Visit, error)
	DeleteByShortlink(ctx context.Context, key string) error
}

type UsageRepository interface {
	// Increment adds one to the (apiKey, shortlinkKey, date) counter,
	// creating it when absent.
	Increment(ctx context.Context, apiKey, shortlinkKey, date string) error
	// Sum totals every counter of apiKey with from <= date <= to.
	Sum(ctx context.Context, apiKey, from, to string) (int64, error)
}

type UserRepository interface {
	Get(ctx context.Context, username string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) error
}

type ActivityRepository interface {
	Log(ctx context.Context, username string, entry model.ActivityLog) error
	// List returns one page, most recent first, plus the total entry count.
	List(ctx context.Context, username string, offset, limit int) ([]model.ActivityLog, int, error)
}

// Store bundles the repositories of one backend.
type Store struct {
	Shortlinks ShortlinkRepository
	Profiles   ProfileRepository
	Visits     VisitRepository
	Usage      UsageRepository
	Users      UserRepository
	Activity   ActivityRepository

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

// Ping checks the backend connection.
func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// DeleteShortlink removes a shortlink together with all of its visits.
func (s *Store) DeleteShortlink(ctx context.Context, key string) error {
	if err := s.Visits.DeleteByShortlink(ctx, key); err != nil {
		return fmt.Errorf("delete visits of %s: %w", key, err)
	}
	if err := s.Shortlinks.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete shortlink %s: %w", key, err)
	}
	return nil
}

// applyTo copies the statuses whose URL still matches onto link and reports
// whether anything changed.
func (u LivenessUpdate) applyTo(link *model.Shortlink) bool {
	changed := false
	if u.URL != "" && link.URL == u.URL && link.PrimaryURLStatus != u.Status {
		link.PrimaryURLStatus = u.Status
		changed = true
	}
	if u.SecondaryURL != "" && link.SecondaryURL == u.SecondaryURL && link.SecondaryURLStatus != u.SecondaryStatus {
		link.SecondaryURLStatus = u.SecondaryStatus
		changed = true
	}
	if changed {
		link.UpdatedAt = u.CheckedAt
	}
	return changed
}
