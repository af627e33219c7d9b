// Package domain defines the daily engagement and rewards engine: daily workouts,
// streaks, pop-up challenges and trivia.
package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/mudmantim/switchline-backend-sub000/internal/catalog"
)

// Service orchestrates engagement workflows.
type Service struct {
	repo    Repository
	clock   Clock
	loc     *time.Location
	sampler Sampler
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithClock overrides the wall clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithLocation sets the zone whose midnight bounds a day.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithSampler overrides the random source used for scheduling and question picks.
func WithSampler(sampler Sampler) Option {
	return func(s *Service) {
		s.sampler = sampler
	}
}

// NewService constructs a Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		clock:   SystemClock,
		loc:     time.Local,
		sampler: globalSampler{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// now returns the current time in the service zone with local midnight.
func (s *Service) now() (time.Time, time.Time) {
	now := s.clock.Now().In(s.loc)
	return now, StartOfDay(now, s.loc)
}

// FitnessLevel returns the user's tier.
func (s *Service) FitnessLevel(ctx context.Context, userID string) (catalog.Tier, error) {
	return s.repo.FitnessTier(ctx, userID)
}

// UpdateFitnessLevel validates and stores a new tier.
func (s *Service) UpdateFitnessLevel(ctx context.Context, userID, raw string) (catalog.Tier, error) {
	tier, err := catalog.ParseTier(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTier, err)
	}
	if err := s.repo.SetFitnessTier(ctx, userID, tier); err != nil {
		return "", err
	}
	return tier, nil
}

// Stats returns the user's ledger.
func (s *Service) Stats(ctx context.Context, userID string) (Ledger, error) {
	return s.repo.Ledger(ctx, userID)
}
