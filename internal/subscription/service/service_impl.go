package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingcycledomain "github.com/smallbiznis/subtrack/internal/billingcycle/domain"
	"github.com/smallbiznis/subtrack/internal/clock"
	notificationdomain "github.com/smallbiznis/subtrack/internal/notification/domain"
	"github.com/smallbiznis/subtrack/internal/observability/metrics"
	"github.com/smallbiznis/subtrack/internal/ownercontext"
	pricehistorydomain "github.com/smallbiznis/subtrack/internal/pricehistory/domain"
	subscriptiondomain "github.com/smallbiznis/subtrack/internal/subscription/domain"
	"github.com/smallbiznis/subtrack/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	repo    subscriptiondomain.Repository
	metrics *metrics.Metrics

	pricehistorysvc pricehistorydomain.Service
	notificationsvc notificationdomain.Service
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    subscriptiondomain.Repository
	Metrics *metrics.Metrics `optional:"true"`

	PriceHistorySvc pricehistorydomain.Service
	NotificationSvc notificationdomain.Service
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,

		pricehistorysvc: p.PriceHistorySvc,
		notificationsvc: p.NotificationSvc,
	}
}

func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateRequest) (resp subscriptiondomain.DetailResponse, err error) {
	defer func() { s.record(ctx, "create", err) }()

	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return subscriptiondomain.DetailResponse{}, err
	}

	today := s.clock.Today()
	sub, err := s.buildSubscription(ownerID, req, today)
	if err != nil {
		return subscriptiondomain.DetailResponse{}, err
	}

	var history []pricehistorydomain.Entry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureNameAvailable(ctx, tx, ownerID, sub.NameKey, 0, sub.Name); err != nil {
			return err
		}
		if err := s.repo.Insert(ctx, tx, sub); err != nil {
			return storageErr(err, sub.Name)
		}

		if sub.CurrentAmount > 0 {
			entry, err := s.pricehistorysvc.AppendOrOpen(ctx, tx, sub.ID, sub.CurrentAmount, today)
			if err != nil {
				return storageErr(err, sub.Name)
			}
			history = append(history, *entry)
			s.metrics.RecordPriceLedgerAction(ctx, "open_new")
		}

		n, err := s.notificationsvc.NotifySubscriptionCreated(ctx, tx, subjectOf(sub), sub.CurrentAmount, sub.NextPaymentDate)
		if err != nil {
			return storageErr(err, sub.Name)
		}
		s.recordNotification(ctx, n)
		return nil
	})
	if err != nil {
		return subscriptiondomain.DetailResponse{}, classify(err)
	}

	s.log.Info("subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("owner_id", ownerID.String()),
		zap.String("billing_cycle", string(sub.BillingCycle)),
	)

	if history == nil {
		history = []pricehistorydomain.Entry{}
	}
	return subscriptiondomain.DetailResponse{
		Response:     toResponse(sub, today),
		PriceHistory: history,
	}, nil
}

func (s *Service) Update(ctx context.Context, id string, req subscriptiondomain.UpdateRequest) (resp subscriptiondomain.Response, err error) {
	defer func() { s.record(ctx, "update", err) }()

	ownerID, subscriptionID, err := s.identify(ctx, id)
	if err != nil {
		return subscriptiondomain.Response{}, err
	}

	today := s.clock.Today()
	var updated *subscriptiondomain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.loadForUpdate(ctx, tx, ownerID, subscriptionID)
		if err != nil {
			return err
		}

		next, err := applyPatch(*current, req, today)
		if err != nil {
			return err
		}
		if next.NameKey != current.NameKey {
			if err := s.ensureNameAvailable(ctx, tx, ownerID, next.NameKey, current.ID, next.Name); err != nil {
				return err
			}
		}

		next.UpdatedAt = s.clock.Now()
		if err := s.repo.Save(ctx, tx, &next); err != nil {
			return storageErr(err, next.Name)
		}

		if err := s.afterUpdate(ctx, tx, current, &next, today); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return subscriptiondomain.Response{}, classify(err)
	}

	return toResponse(updated, today), nil
}

// afterUpdate keeps the price ledger in step and emits change notifications.
func (s *Service) afterUpdate(ctx context.Context, tx *gorm.DB, before, after *subscriptiondomain.Subscription, today time.Time) error {
	subject := subjectOf(after)

	if after.CurrentAmount != before.CurrentAmount {
		if _, err := s.pricehistorysvc.ReconcilePriceChange(ctx, tx, after.ID, after.CurrentAmount, today); err != nil {
			return storageErr(err, after.Name)
		}
		s.metrics.RecordPriceLedgerAction(ctx, "reconcile")

		n, err := s.notificationsvc.NotifyPriceChanged(ctx, tx, subject, before.CurrentAmount, after.CurrentAmount)
		if err != nil {
			return storageErr(err, after.Name)
		}
		s.recordNotification(ctx, n)
	}

	if before.NextPaymentDate != nil && after.NextPaymentDate != nil && !before.NextPaymentDate.Equal(*after.NextPaymentDate) {
		n, err := s.notificationsvc.NotifyPaymentDateChanged(ctx, tx, subject, *before.NextPaymentDate, *after.NextPaymentDate)
		if err != nil {
			return storageErr(err, after.Name)
		}
		s.recordNotification(ctx, n)
	}

	if after.AutoRenewal != before.AutoRenewal {
		n, err := s.notificationsvc.NotifyAutoRenewalChanged(ctx, tx, subject, after.AutoRenewal)
		if err != nil {
			return storageErr(err, after.Name)
		}
		s.recordNotification(ctx, n)
	}
	return nil
}

func (s *Service) Archive(ctx context.Context, id string) (resp subscriptiondomain.Response, err error) {
	defer func() { s.record(ctx, "archive", err) }()

	ownerID, subscriptionID, err := s.identify(ctx, id)
	if err != nil {
		return subscriptiondomain.Response{}, err
	}

	today := s.clock.Today()
	var archived *subscriptiondomain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.loadForUpdate(ctx, tx, ownerID, subscriptionID)
		if err != nil {
			return err
		}

		sub.State = subscriptiondomain.StateArchived
		sub.ArchivedDate = &today
		sub.NotificationsEnabled = false
		sub.UpdatedAt = s.clock.Now()
		if err := s.repo.Save(ctx, tx, sub); err != nil {
			return storageErr(err, sub.Name)
		}
		archived = sub
		return nil
	})
	if err != nil {
		return subscriptiondomain.Response{}, classify(err)
	}

	s.log.Info("subscription archived", zap.String("subscription_id", archived.ID.String()))
	return toResponse(archived, today), nil
}

func (s *Service) Renew(ctx context.Context, id string) (resp subscriptiondomain.Response, err error) {
	defer func() { s.record(ctx, "renew", err) }()

	ownerID, subscriptionID, err := s.identify(ctx, id)
	if err != nil {
		return subscriptiondomain.Response{}, err
	}

	today := s.clock.Today()
	var renewed *subscriptiondomain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.loadForUpdate(ctx, tx, ownerID, subscriptionID)
		if err != nil {
			return err
		}

		anchor := today
		if sub.NextPaymentDate != nil {
			anchor = *sub.NextPaymentDate
		}
		nextDate, err := billingcycledomain.NextDate(anchor, sub.BillingCycle)
		if err != nil {
			return fmt.Errorf("%w: %w", subscriptiondomain.ErrInvalidRange, err)
		}

		previous := sub.NextPaymentDate
		sub.NextPaymentDate = &nextDate
		sub.UpdatedAt = s.clock.Now()
		if err := s.repo.Save(ctx, tx, sub); err != nil {
			return storageErr(err, sub.Name)
		}

		if previous != nil {
			n, err := s.notificationsvc.NotifyPaymentDateChanged(ctx, tx, subjectOf(sub), *previous, nextDate)
			if err != nil {
				return storageErr(err, sub.Name)
			}
			s.recordNotification(ctx, n)
		}
		renewed = sub
		return nil
	})
	if err != nil {
		return subscriptiondomain.Response{}, classify(err)
	}

	return toResponse(renewed, today), nil
}

func (s *Service) Get(ctx context.Context, id string) (subscriptiondomain.DetailResponse, error) {
	ownerID, subscriptionID, err := s.identify(ctx, id)
	if err != nil {
		return subscriptiondomain.DetailResponse{}, err
	}

	sub, err := s.repo.FindByID(ctx, s.db, ownerID, subscriptionID)
	if err != nil {
		return subscriptiondomain.DetailResponse{}, classify(err)
	}
	if sub == nil {
		return subscriptiondomain.DetailResponse{}, subscriptiondomain.ErrNotFound
	}

	history, err := s.pricehistorysvc.List(ctx, sub.ID, pricehistorydomain.OrderAsc)
	if err != nil {
		return subscriptiondomain.DetailResponse{}, classify(err)
	}
	if history == nil {
		history = []pricehistorydomain.Entry{}
	}

	return subscriptiondomain.DetailResponse{
		Response:     toResponse(sub, s.clock.Today()),
		PriceHistory: history,
	}, nil
}

func (s *Service) List(ctx context.Context, req subscriptiondomain.ListRequest) ([]subscriptiondomain.Response, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.List(ctx, s.db, ownerID, req.IncludeArchived)
	if err != nil {
		return nil, classify(err)
	}

	today := s.clock.Today()
	out := make([]subscriptiondomain.Response, 0, len(items))
	for i := range items {
		out = append(out, toResponse(&items[i], today))
	}
	return out, nil
}

func (s *Service) PriceHistory(ctx context.Context, id string, order pricehistorydomain.Order) ([]pricehistorydomain.Entry, error) {
	ownerID, subscriptionID, err := s.identify(ctx, id)
	if err != nil {
		return nil, err
	}

	sub, err := s.repo.FindByID(ctx, s.db, ownerID, subscriptionID)
	if err != nil {
		return nil, classify(err)
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrNotFound
	}

	entries, err := s.pricehistorysvc.List(ctx, sub.ID, order)
	if err != nil {
		return nil, classify(err)
	}
	if entries == nil {
		entries = []pricehistorydomain.Entry{}
	}
	return entries, nil
}

func (s *Service) loadForUpdate(ctx context.Context, tx *gorm.DB, ownerID, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	sub, err := s.repo.FindByIDForUpdate(ctx, tx, ownerID, id)
	if err != nil {
		return nil, storageErr(err, "")
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrNotFound
	}
	if sub.IsArchived() {
		return nil, fmt.Errorf("%w: subscription is archived", subscriptiondomain.ErrInvalidState)
	}
	return sub, nil
}

func (s *Service) ensureNameAvailable(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID, nameKey string, self snowflake.ID, name string) error {
	existing, err := s.repo.FindByNameKey(ctx, tx, ownerID, nameKey)
	if err != nil {
		return storageErr(err, name)
	}
	if existing != nil && existing.ID != self {
		return fmt.Errorf("%w: %q", subscriptiondomain.ErrNameConflict, name)
	}
	return nil
}

func (s *Service) identify(ctx context.Context, id string) (snowflake.ID, snowflake.ID, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	subscriptionID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || subscriptionID == 0 {
		return 0, 0, subscriptiondomain.ErrNotFound
	}
	return ownerID, subscriptionID, nil
}

func (s *Service) record(ctx context.Context, operation string, err error) {
	s.metrics.RecordSubscriptionOperation(ctx, operation, outcomeOf(err))
	if err != nil && errors.Is(err, subscriptiondomain.ErrPersistenceFailure) {
		s.log.Error("subscription operation failed",
			zap.String("operation", operation),
			zap.Error(err),
		)
	}
}

func (s *Service) recordNotification(ctx context.Context, n *notificationdomain.Notification) {
	if n != nil {
		s.metrics.RecordNotification(ctx, string(n.Type))
	}
}

func ownerFromContext(ctx context.Context) (snowflake.ID, error) {
	ownerID, ok := ownercontext.OwnerIDFromContext(ctx)
	if !ok {
		return 0, subscriptiondomain.ErrInvalidOwner
	}
	return ownerID, nil
}

func subjectOf(sub *subscriptiondomain.Subscription) notificationdomain.Subject {
	return notificationdomain.Subject{
		OwnerID:        sub.OwnerID,
		SubscriptionID: sub.ID,
		Name:           sub.Name,
	}
}

var categories = []error{
	subscriptiondomain.ErrNotFound,
	subscriptiondomain.ErrNameConflict,
	subscriptiondomain.ErrInvalidDate,
	subscriptiondomain.ErrInvalidRange,
	subscriptiondomain.ErrInvalidState,
	subscriptiondomain.ErrPersistenceFailure,
	subscriptiondomain.ErrInvalidOwner,
}

// storageErr turns a write failure into a categorized error.
func storageErr(err error, name string) error {
	if err == nil {
		return nil
	}
	for _, category := range categories {
		if errors.Is(err, category) {
			return err
		}
	}
	if db.IsDuplicateKeyErr(err) {
		return fmt.Errorf("%w: %q", subscriptiondomain.ErrNameConflict, name)
	}
	if errors.Is(err, pricehistorydomain.ErrInvalidAmount) {
		return fmt.Errorf("%w: %w", subscriptiondomain.ErrInvalidRange, err)
	}
	return errors.Join(subscriptiondomain.ErrPersistenceFailure, err)
}

// classify makes sure every error leaving the service carries a category.
func classify(err error) error {
	return storageErr(err, "")
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	for _, category := range categories {
		if errors.Is(err, category) {
			return category.Error()
		}
	}
	return "error"
}
