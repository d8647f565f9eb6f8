package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"campus-platform/internal/events"
	"campus-platform/pkg/metrics"
)

// Service evaluates and updates request budgets.
//
// Named policy: FAIL-OPEN. When the counter store is unreachable on a check,
// the request is allowed with a full remaining budget. Availability beats
// strict throttling here; the failure is still logged and counted. The access
// decision engine deliberately does the opposite.
type Service struct {
	store  CounterStore
	events *events.Service
	log    *slog.Logger
	clock  func() time.Time

	configs   map[string]Config
	ipConfigs map[string]Config
	retention time.Duration
}

// Options tunes non-default service behavior.
type Options struct {
	// Configs replaces the static per-user budget table.
	Configs map[string]Config
	// IPConfigs replaces the static IP-scoped budget table.
	IPConfigs map[string]Config
	// Retention bounds how long stale counter rows survive cleanup.
	Retention time.Duration
}

func NewService(store CounterStore, ev *events.Service, log *slog.Logger, opts Options) *Service {
	s := &Service{
		store:     store,
		events:    ev,
		log:       log,
		clock:     time.Now,
		configs:   opts.Configs,
		ipConfigs: opts.IPConfigs,
		retention: opts.Retention,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.configs == nil {
		s.configs = DefaultConfigs()
	}
	if s.ipConfigs == nil {
		s.ipConfigs = DefaultIPConfigs()
	}
	if s.retention <= 0 {
		s.retention = 24 * time.Hour
	}
	return s
}

// WithClock overrides the time source. Tests only.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// CheckRateLimit evaluates and consumes one attempt from the subject's budget
// for the action. An override config, when supplied, wins over the static
// table and permits otherwise-unknown actions.
func (s *Service) CheckRateLimit(ctx context.Context, subjectID, action string, override *Config) (Result, error) {
	if subjectID == "" || action == "" {
		return Result{}, fmt.Errorf("%w: subject and action required", ErrInvalidArgument)
	}
	cfg, err := s.resolveConfig(s.configs, action, override)
	if err != nil {
		return Result{}, err
	}
	res := s.check(ctx, subjectKey(subjectID, action), cfg, metrics.ScopeSubject, action)
	return res, nil
}

// CheckIPRateLimit is the same algorithm over an IP-scoped key and the
// IP-scoped budget table.
func (s *Service) CheckIPRateLimit(ctx context.Context, ip, action string) (Result, error) {
	if ip == "" || action == "" {
		return Result{}, fmt.Errorf("%w: ip and action required", ErrInvalidArgument)
	}
	cfg, err := s.resolveConfig(s.ipConfigs, action, nil)
	if err != nil {
		return Result{}, err
	}
	res := s.check(ctx, ipKey(ip, action), cfg, metrics.ScopeIP, action)
	return res, nil
}

func (s *Service) resolveConfig(table map[string]Config, action string, override *Config) (Config, error) {
	if override != nil {
		return *override, nil
	}
	cfg, ok := table[action]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return cfg, nil
}

// check runs the window algorithm for one key. It never returns an error:
// counter-store failures fail open, and the caller has already validated
// arguments and config.
func (s *Service) check(ctx context.Context, key string, cfg Config, scope, action string) Result {
	now := s.clock().UTC()

	entry, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		// fall through to window evaluation
	case errors.Is(err, ErrNotFound):
		fresh := Entry{Key: key, Attempts: 1, WindowStart: now, UpdatedAt: now}
		s.persist(ctx, fresh, scope, action)
		metrics.RateLimitDecisions.WithLabelValues(scope, action, metrics.OutcomeAllowed).Inc()
		return Result{Allowed: true, RemainingAttempts: cfg.MaxAttempts - 1}
	default:
		return s.failOpen(key, cfg, scope, action, err)
	}

	// Active block: nothing changes until it clears.
	if entry.BlockedUntil != nil && entry.BlockedUntil.After(now) {
		metrics.RateLimitDecisions.WithLabelValues(scope, action, metrics.OutcomeDenied).Inc()
		until := *entry.BlockedUntil
		return Result{Allowed: false, RemainingAttempts: 0, BlockedUntil: &until}
	}

	// Expired window (including a lapsed block): fresh start.
	if now.Sub(entry.WindowStart) > cfg.Window {
		entry.Attempts = 1
		entry.WindowStart = now
		entry.BlockedUntil = nil
		entry.UpdatedAt = now
		s.persist(ctx, entry, scope, action)
		metrics.RateLimitDecisions.WithLabelValues(scope, action, metrics.OutcomeAllowed).Inc()
		return Result{Allowed: true, RemainingAttempts: cfg.MaxAttempts - 1}
	}

	if entry.Attempts < cfg.MaxAttempts {
		entry.Attempts++
		entry.UpdatedAt = now
		s.persist(ctx, entry, scope, action)
		metrics.RateLimitDecisions.WithLabelValues(scope, action, metrics.OutcomeAllowed).Inc()
		return Result{Allowed: true, RemainingAttempts: cfg.MaxAttempts - entry.Attempts}
	}

	// Budget exhausted: this attempt triggers the block. Attempts records the
	// triggering attempt and then stops moving until the window or block clears.
	until := now.Add(cfg.BlockDuration)
	entry.Attempts++
	entry.BlockedUntil = &until
	entry.UpdatedAt = now
	s.persist(ctx, entry, scope, action)
	metrics.RateLimitDecisions.WithLabelValues(scope, action, metrics.OutcomeDenied).Inc()
	return Result{Allowed: false, RemainingAttempts: 0, BlockedUntil: &until}
}

// persist applies a counter write. Counters are best-effort: a failed write is
// logged and counted, never surfaced to the request path.
func (s *Service) persist(ctx context.Context, e Entry, scope, action string) {
	if err := s.store.Upsert(ctx, e); err != nil {
		metrics.RateLimitFailOpen.WithLabelValues(scope, action).Inc()
		s.log.Error("ratelimit counter write failed", "key", e.Key, "err", err)
	}
}

func (s *Service) failOpen(key string, cfg Config, scope, action string, err error) Result {
	metrics.RateLimitFailOpen.WithLabelValues(scope, action).Inc()
	s.log.Error("ratelimit counter read failed, failing open", "key", key, "err", err)
	return Result{Allowed: true, RemainingAttempts: cfg.MaxAttempts}
}

// RecordEnrollmentAttempt appends a forensic attempt record independent of the
// counters. Failures here are logged and swallowed; this call must never block
// the enrollment flow.
func (s *Service) RecordEnrollmentAttempt(ctx context.Context, subjectID, resourceID, ip, userAgent string) {
	if s.events == nil || subjectID == "" {
		return
	}
	meta := map[string]any{"resource_id": resourceID}
	if ip != "" {
		meta[events.MetaClientIP] = ip
	}
	if userAgent != "" {
		meta[events.MetaUserAgent] = userAgent
	}
	err := s.events.Append(ctx, events.AccessEvent{
		SubjectID: subjectID,
		Type:      events.EventTypeAccessGranted,
		Resource:  "enrollment",
		Action:    "enrollment_attempt",
		Metadata:  meta,
	})
	if err != nil {
		metrics.ForensicWriteFailures.WithLabelValues("enrollment_attempt").Inc()
		s.log.Warn("enrollment attempt record failed", "subject_id", subjectID, "err", err)
	}
}

// ClearRateLimit deletes the counter row for (subject, action). Storage errors
// propagate; admins calling this need to know it did not happen.
func (s *Service) ClearRateLimit(ctx context.Context, subjectID, action string) error {
	if subjectID == "" || action == "" {
		return fmt.Errorf("%w: subject and action required", ErrInvalidArgument)
	}
	if err := s.store.Delete(ctx, subjectKey(subjectID, action)); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// GetRateLimitStatus evaluates every known action's current state for the
// subject without consuming attempts.
func (s *Service) GetRateLimitStatus(ctx context.Context, subjectID string) (map[string]Result, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("%w: subject required", ErrInvalidArgument)
	}
	now := s.clock().UTC()

	out := make(map[string]Result, len(s.configs))
	for action, cfg := range s.configs {
		entry, err := s.store.Get(ctx, subjectKey(subjectID, action))
		switch {
		case errors.Is(err, ErrNotFound):
			out[action] = Result{Allowed: true, RemainingAttempts: cfg.MaxAttempts}
			continue
		case err != nil:
			out[action] = s.failOpen(subjectKey(subjectID, action), cfg, metrics.ScopeSubject, action, err)
			continue
		}

		switch {
		case entry.BlockedUntil != nil && entry.BlockedUntil.After(now):
			until := *entry.BlockedUntil
			out[action] = Result{Allowed: false, RemainingAttempts: 0, BlockedUntil: &until}
		case now.Sub(entry.WindowStart) > cfg.Window:
			out[action] = Result{Allowed: true, RemainingAttempts: cfg.MaxAttempts}
		case entry.Attempts >= cfg.MaxAttempts:
			out[action] = Result{Allowed: false, RemainingAttempts: 0}
		default:
			out[action] = Result{Allowed: true, RemainingAttempts: cfg.MaxAttempts - entry.Attempts}
		}
	}
	return out, nil
}

// CleanupExpiredEntries purges counter rows untouched for the retention
// period. Errors are logged and swallowed; the job reruns anyway.
func (s *Service) CleanupExpiredEntries(ctx context.Context) {
	cutoff := s.clock().UTC().Add(-s.retention)
	if err := s.store.DeleteOlderThan(ctx, cutoff); err != nil {
		s.log.Warn("ratelimit cleanup failed", "cutoff", cutoff, "err", err)
	}
}
