// Package jobs runs the periodic maintenance tasks: destination liveness
// refresh, subscription expiry and limiter cleanup.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/config"
	"github.com/karmashop-resbrevis/karmapurgex/metrics"
	"github.com/karmashop-resbrevis/karmapurgex/model"
	"github.com/karmashop-resbrevis/karmapurgex/store"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const jobTimeout = 10 * time.Minute

type LivenessChecker interface {
	Check(ctx context.Context, url string) model.LivenessStatus
}

type Sweeper interface {
	Sweep(maxIdle time.Duration) int
}

type Runner struct {
	links    store.ShortlinkRepository
	profiles store.ProfileRepository
	checker  LivenessChecker
	sweeper  Sweeper
	now      func() time.Time
}

func NewRunner(links store.ShortlinkRepository, profiles store.ProfileRepository, checker LivenessChecker, sweeper Sweeper) *Runner {
	return &Runner{links: links, profiles: profiles, checker: checker, sweeper: sweeper, now: time.Now}
}

// RefreshLiveness re-checks every destination URL and stores changed
// statuses. Only the liveness fields are written, so owner edits made while
// a check runs are kept. It returns the number of shortlinks updated.
func (j *Runner) RefreshLiveness(ctx context.Context) (int, error) {
	links, err := j.links.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list shortlinks: %w", err)
	}

	updated := 0
	for i := range links {
		link := &links[i]
		update := store.LivenessUpdate{}
		changed := false

		if link.URL != "" {
			update.URL = link.URL
			update.Status = j.checker.Check(ctx, link.URL)
			changed = update.Status != link.PrimaryURLStatus
		}
		if link.SecondaryURL != "" {
			update.SecondaryURL = link.SecondaryURL
			update.SecondaryStatus = j.checker.Check(ctx, link.SecondaryURL)
			changed = changed || update.SecondaryStatus != link.SecondaryURLStatus
		}
		if !changed {
			continue
		}

		update.CheckedAt = j.now()
		if err := j.links.SetLiveness(ctx, link.Key, update); err != nil {
			log.Error().Err(err).Str("key", link.Key).Msg("Failed to store liveness status")
			continue
		}
		updated++
	}
	return updated, nil
}

// ExpireProfiles marks approved profiles whose period has ended as expired.
func (j *Runner) ExpireProfiles(ctx context.Context) (int, error) {
	profiles, err := j.profiles.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list profiles: %w", err)
	}

	now := j.now()
	expired := 0
	for i := range profiles {
		p := &profiles[i]
		if p.Status != model.ProfileApproved || !p.Lapsed(now) {
			continue
		}
		p.Status = model.ProfileExpired
		p.UpdatedAt = now
		if err := j.profiles.Update(ctx, p); err != nil {
			log.Error().Err(err).Str("username", p.Username).Msg("Failed to expire profile")
			continue
		}
		expired++
	}
	return expired, nil
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) (int, error)
}

// Scheduler wires a Runner into cron.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
}

func NewScheduler(cfg config.JobsConfig, runner *Runner) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		runner: runner,
	}

	jobs := []job{
		{"liveness_refresh", cfg.LivenessSchedule, runner.RefreshLiveness},
		{"subscription_expiry", cfg.ExpirySchedule, runner.ExpireProfiles},
	}
	if runner.sweeper != nil {
		jobs = append(jobs, job{"limiter_sweep", "@every 10m", func(context.Context) (int, error) {
			return runner.sweeper.Sweep(30 * time.Minute), nil
		}})
	}

	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		name, run := job.name, job.run
		if _, err := s.cron.AddFunc(job.spec, func() { s.execute(name, run) }); err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", name, job.spec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) execute(name string, run func(ctx context.Context) (int, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	n, err := run(ctx)
	if err != nil {
		metrics.JobRunsTotal.WithLabelValues(name, "error").Inc()
		log.Error().Err(err).Str("job", name).Msg("Scheduled job failed")
		return
	}
	metrics.JobRunsTotal.WithLabelValues(name, "ok").Inc()
	log.Info().Str("job", name).Int("affected", n).Dur("duration", time.Since(start)).Msg("Scheduled job finished")
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and returns a context done when running jobs end.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
