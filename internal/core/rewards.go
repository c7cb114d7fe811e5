package core

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog/log"

	"gwi.com/streak-chat/internal/metrics"
	"gwi.com/streak-chat/internal/store"
)

const (
	MessagePoints     = 1
	StreakBonusPoints = 5
	BoostCost         = 10
)

// Accrual is the reward earned by one turn, computed from the profile as it
// was before the turn.
type Accrual struct {
	PointsToAdd    int
	Streak         int
	LastActivity   civil.Date
	StreakExtended bool
	BoostApplied   bool
}

// ComputeAccrual applies the per-message reward, the consecutive-day streak
// bonus and an optional boost to profile p for a turn taken on today.
//
// The boost cost is netted against the points earned by the same turn, so a
// boosted turn usually lowers the balance.
func ComputeAccrual(p store.Profile, isBoost bool, today civil.Date) Accrual {
	a := Accrual{
		PointsToAdd:  MessagePoints,
		Streak:       p.CurrentStreak,
		LastActivity: today,
	}

	last := p.LastActivityDate
	switch {
	case last.Valid && !last.Date.Before(today):
		// Already credited today. A date after today only happens with clock
		// skew; keep it so last_activity_date never moves backwards.
		a.LastActivity = last.Date
	case last.Valid && last.Date == today.AddDays(-1):
		a.Streak++
		a.StreakExtended = true
		a.PointsToAdd += StreakBonusPoints
	default:
		a.Streak = 1
	}

	if isBoost && p.TotalPoints >= BoostCost {
		a.PointsToAdd -= BoostCost
		a.BoostApplied = true
	}
	return a
}

// Category is the ledger category for the accrual's net points.
func (a Accrual) Category() store.LedgerCategory {
	switch {
	case a.PointsToAdd > MessagePoints:
		return store.CategoryStreak
	case a.PointsToAdd > 0:
		return store.CategoryMessage
	default:
		return store.CategoryBoost
	}
}

// LedgerEntry returns the entry recording the accrual, or nil when it nets to zero.
func (a Accrual) LedgerEntry() *store.LedgerEntry {
	if a.PointsToAdd == 0 {
		return nil
	}
	entry := &store.LedgerEntry{Amount: a.PointsToAdd, Category: a.Category()}
	switch entry.Category {
	case store.CategoryStreak:
		entry.Description = fmt.Sprintf("Message reward + streak bonus (%d-day streak)", a.Streak)
	case store.CategoryMessage:
		entry.Description = "Message reward"
	default:
		entry.Description = fmt.Sprintf("Boost used (-%d points)", BoostCost)
	}
	return entry
}

func (a Accrual) update() store.ProfileUpdate {
	return store.ProfileUpdate{
		PointsDelta:      a.PointsToAdd,
		CurrentStreak:    a.Streak,
		LastActivityDate: a.LastActivity,
	}
}

// AccrualResult reports what a reward accrual did. Skipped is set when the
// user had no profile.
type AccrualResult struct {
	UserID  string
	Skipped bool
	Accrual Accrual
	Err     error
}

type RewardStore interface {
	GetProfile(ctx context.Context, userID string) (*store.Profile, error)
	ApplyAccrual(ctx context.Context, prev store.Profile, upd store.ProfileUpdate, entry *store.LedgerEntry) error
}

type RewardService struct {
	store RewardStore
	loc   *time.Location
	now   func() time.Time
}

func NewRewardService(st RewardStore, loc *time.Location) *RewardService {
	if loc == nil {
		loc = time.UTC
	}
	return &RewardService{store: st, loc: loc, now: time.Now}
}

// Today is the current calendar date in the reward time zone.
func (s *RewardService) Today() civil.Date {
	return civil.DateOf(s.now().In(s.loc))
}

// Accrue loads the user's profile, computes the accrual for a turn on today
// and stores it. A missing profile is a no-op. When another turn updated the
// profile in between, nothing is written and store.ErrStaleProfile is returned.
func (s *RewardService) Accrue(ctx context.Context, userID string, isBoost bool, today civil.Date) (AccrualResult, error) {
	res := AccrualResult{UserID: userID}

	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil {
		log.Warn().Str("user_id", userID).Msg("No profile found, skipping reward accrual")
		res.Skipped = true
		return res, nil
	}

	res.Accrual = ComputeAccrual(*profile, isBoost, today)
	if err := s.store.ApplyAccrual(ctx, *profile, res.Accrual.update(), res.Accrual.LedgerEntry()); err != nil {
		return res, fmt.Errorf("failed to apply accrual: %w", err)
	}
	return res, nil
}

func recordAccrual(res AccrualResult) {
	switch {
	case res.Err != nil:
		metrics.RecordAccrual("error", "", 0)
	case res.Skipped:
		metrics.RecordAccrual("skipped", "", 0)
	default:
		metrics.RecordAccrual("applied", string(res.Accrual.Category()), res.Accrual.PointsToAdd)
	}
}
