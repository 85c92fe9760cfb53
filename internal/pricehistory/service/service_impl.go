package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subtrack/internal/clock"
	pricehistorydomain "github.com/smallbiznis/subtrack/internal/pricehistory/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  pricehistorydomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  pricehistorydomain.Repository
}

func New(p Params) pricehistorydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("pricehistory.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// reconcileAction is the outcome of the price change decision table.
type reconcileAction int

const (
	actionOpenNew reconcileAction = iota
	actionUpdateInPlace
	actionReplaceFuture
)

func (a reconcileAction) String() string {
	switch a {
	case actionUpdateInPlace:
		return "update_in_place"
	case actionReplaceFuture:
		return "replace_future"
	default:
		return "open_new"
	}
}

// decideReconcile maps the latest ledger entry to an action:
//
//	latest                  action
//	none                    open new entry at today
//	open, start <= today    update amount in place
//	open, start > today     delete it, open new entry at today
//	closed, end >= today    update amount in place
//	closed, end < today     open new entry at today
func decideReconcile(latest *pricehistorydomain.Entry, today time.Time) reconcileAction {
	switch {
	case latest == nil:
		return actionOpenNew
	case latest.IsOpen() && !latest.StartDate.After(today):
		return actionUpdateInPlace
	case latest.IsOpen():
		return actionReplaceFuture
	case !latest.EndDate.Before(today):
		return actionUpdateInPlace
	default:
		return actionOpenNew
	}
}

func (s *Service) AppendOrOpen(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, amount int64, today time.Time) (*pricehistorydomain.Entry, error) {
	if err := validate(subscriptionID, amount); err != nil {
		return nil, err
	}
	today = clock.DateOf(today)

	open, err := s.repo.FindOpen(ctx, tx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		if open.StartDate.Equal(today) && open.Amount == amount {
			return open, nil
		}
		if err := s.retire(ctx, tx, open, today); err != nil {
			return nil, err
		}
	}

	return s.openEntry(ctx, tx, subscriptionID, amount, today)
}

func (s *Service) ReconcilePriceChange(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, newAmount int64, today time.Time) (*pricehistorydomain.Entry, error) {
	if err := validate(subscriptionID, newAmount); err != nil {
		return nil, err
	}
	today = clock.DateOf(today)

	latest, err := s.repo.FindLatest(ctx, tx, subscriptionID)
	if err != nil {
		return nil, err
	}

	action := decideReconcile(latest, today)
	s.log.Debug("reconcile price change",
		zap.String("subscription_id", subscriptionID.String()),
		zap.String("action", action.String()),
		zap.Int64("amount", newAmount),
	)

	switch action {
	case actionUpdateInPlace:
		now := s.clock.Now()
		if err := s.repo.UpdateAmount(ctx, tx, latest.ID, newAmount, now); err != nil {
			return nil, err
		}
		latest.Amount = newAmount
		latest.CreatedAt = now
		return latest, nil

	case actionReplaceFuture:
		if err := s.repo.Delete(ctx, tx, latest.ID); err != nil {
			return nil, err
		}
		return s.openEntry(ctx, tx, subscriptionID, newAmount, today)

	default:
		// A stray open period older than latest would break the single open entry rule.
		open, err := s.repo.FindOpen(ctx, tx, subscriptionID)
		if err != nil {
			return nil, err
		}
		if open != nil {
			if err := s.retire(ctx, tx, open, today); err != nil {
				return nil, err
			}
		}
		return s.openEntry(ctx, tx, subscriptionID, newAmount, today)
	}
}

func (s *Service) List(ctx context.Context, subscriptionID snowflake.ID, order pricehistorydomain.Order) ([]pricehistorydomain.Entry, error) {
	if subscriptionID == 0 {
		return nil, pricehistorydomain.ErrInvalidSubscription
	}
	return s.repo.ListBySubscription(ctx, s.db, subscriptionID, order)
}

// retire ends an open period at today. A period that has not started yet is
// removed instead, since closing it would leave end before start.
func (s *Service) retire(ctx context.Context, tx *gorm.DB, open *pricehistorydomain.Entry, today time.Time) error {
	if open.StartDate.After(today) {
		return s.repo.Delete(ctx, tx, open.ID)
	}
	return s.repo.Close(ctx, tx, open.ID, today)
}

func (s *Service) openEntry(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, amount int64, today time.Time) (*pricehistorydomain.Entry, error) {
	entry := &pricehistorydomain.Entry{
		ID:             s.genID.Generate(),
		SubscriptionID: subscriptionID,
		Amount:         amount,
		StartDate:      today,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func validate(subscriptionID snowflake.ID, amount int64) error {
	if subscriptionID == 0 {
		return pricehistorydomain.ErrInvalidSubscription
	}
	if amount < 0 {
		return pricehistorydomain.ErrInvalidAmount
	}
	return nil
}
