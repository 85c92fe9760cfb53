package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subtrack/internal/clock"
	notificationdomain "github.com/smallbiznis/subtrack/internal/notification/domain"
	"github.com/smallbiznis/subtrack/internal/ownercontext"
	"github.com/smallbiznis/subtrack/pkg/db/pagination"
	"github.com/smallbiznis/subtrack/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     notificationdomain.Repository
	Composer notificationdomain.Composer `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     notificationdomain.Repository
	composer notificationdomain.Composer
}

func New(p Params) notificationdomain.Service {
	composer := p.Composer
	if composer.Currency == "" {
		composer = notificationdomain.DefaultComposer()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("notification.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		composer: composer,
	}
}

func (s *Service) NotifySubscriptionCreated(ctx context.Context, tx *gorm.DB, subject notificationdomain.Subject, amount int64, nextPayment *time.Time) (*notificationdomain.Notification, error) {
	return s.emit(ctx, tx, subject, s.composer.SubscriptionCreated(subject.Name, amount, nextPayment))
}

// NotifyPriceChanged returns nil when the amount did not change.
func (s *Service) NotifyPriceChanged(ctx context.Context, tx *gorm.DB, subject notificationdomain.Subject, oldAmount, newAmount int64) (*notificationdomain.Notification, error) {
	draft, ok := s.composer.PriceChanged(subject.Name, oldAmount, newAmount)
	if !ok {
		return nil, nil
	}
	return s.emit(ctx, tx, subject, draft)
}

func (s *Service) NotifyPaymentDateChanged(ctx context.Context, tx *gorm.DB, subject notificationdomain.Subject, oldDate, newDate time.Time) (*notificationdomain.Notification, error) {
	if oldDate.Equal(newDate) {
		return nil, nil
	}
	return s.emit(ctx, tx, subject, s.composer.PaymentDateChanged(subject.Name, oldDate, newDate))
}

func (s *Service) NotifyAutoRenewalChanged(ctx context.Context, tx *gorm.DB, subject notificationdomain.Subject, enabled bool) (*notificationdomain.Notification, error) {
	return s.emit(ctx, tx, subject, s.composer.AutoRenewalChanged(subject.Name, enabled))
}

func (s *Service) RemindPayment(ctx context.Context, tx *gorm.DB, subject notificationdomain.Subject, paymentDate time.Time, amount int64, today time.Time) (bool, error) {
	if err := validateSubject(subject); err != nil {
		return false, err
	}
	today = clock.DateOf(today)
	paymentDate = clock.DateOf(paymentDate)

	exists, err := s.repo.ExistsReminderForDay(ctx, tx, subject.SubscriptionID, today)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	daysLeft := int(paymentDate.Sub(today).Hours() / 24)
	notification := s.build(ctx, subject, s.composer.PaymentReminder(subject.Name, paymentDate, amount, daysLeft))
	notification.ReminderDay = &today

	created, err := s.repo.InsertIfAbsent(ctx, tx, notification)
	if err != nil {
		return false, err
	}
	if created {
		s.log.Info("payment reminder created",
			zap.String("subscription_id", subject.SubscriptionID.String()),
			zap.String("payment_date", paymentDate.Format(time.DateOnly)),
			zap.Int("days_left", daysLeft),
		)
	}
	return created, nil
}

func (s *Service) List(ctx context.Context, req notificationdomain.ListRequest) (notificationdomain.ListResponse, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return notificationdomain.ListResponse{}, err
	}

	page := req.Pagination.Normalize()
	items, err := s.repo.List(ctx, s.db, notificationdomain.ListFilter{
		OwnerID:    ownerID,
		UnreadOnly: req.UnreadOnly,
		Limit:      page.Limit + 1,
		Offset:     page.Offset,
	})
	if err != nil {
		return notificationdomain.ListResponse{}, err
	}

	items, info := pagination.BuildOffsetPageInfo(items, page)
	if items == nil {
		items = []notificationdomain.Notification{}
	}
	return notificationdomain.ListResponse{PageInfo: info, Notifications: items}, nil
}

func (s *Service) MarkRead(ctx context.Context, id string) (notificationdomain.Notification, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return notificationdomain.Notification{}, err
	}
	notificationID, err := parseID(id)
	if err != nil {
		return notificationdomain.Notification{}, err
	}

	var out notificationdomain.Notification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByID(ctx, tx, ownerID, notificationID)
		if err != nil {
			return err
		}
		if existing == nil {
			return notificationdomain.ErrNotFound
		}
		if !existing.Read {
			if err := s.repo.MarkRead(ctx, tx, ownerID, notificationID, s.clock.Now()); err != nil {
				return err
			}
			existing, err = s.repo.FindByID(ctx, tx, ownerID, notificationID)
			if err != nil {
				return err
			}
		}
		out = *existing
		return nil
	})
	if err != nil {
		return notificationdomain.Notification{}, err
	}
	return out, nil
}

func (s *Service) MarkAllRead(ctx context.Context) (int64, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return 0, err
	}
	return s.repo.MarkAllRead(ctx, s.db, ownerID, s.clock.Now())
}

func (s *Service) UnreadCount(ctx context.Context) (int64, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return 0, err
	}
	return s.repo.CountUnread(ctx, s.db, ownerID)
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, subject notificationdomain.Subject, draft notificationdomain.Draft) (*notificationdomain.Notification, error) {
	if err := validateSubject(subject); err != nil {
		return nil, err
	}
	if !draft.Type.Valid() {
		return nil, notificationdomain.ErrInvalidNotification
	}
	notification := s.build(ctx, subject, draft)
	if err := s.repo.Insert(ctx, tx, notification); err != nil {
		return nil, err
	}
	return notification, nil
}

func (s *Service) build(ctx context.Context, subject notificationdomain.Subject, draft notificationdomain.Draft) *notificationdomain.Notification {
	now := s.clock.Now()
	actionURL := notificationdomain.ActionURL(subject.SubscriptionID)
	var metadata datatypes.JSONMap
	if meta := correlation.StampMetadata(ctx, draft.Metadata); len(meta) > 0 {
		metadata = datatypes.JSONMap(meta)
	}
	return &notificationdomain.Notification{
		ID:             s.genID.Generate(),
		OwnerID:        subject.OwnerID,
		SubscriptionID: subject.SubscriptionID,
		Type:           draft.Type,
		Title:          draft.Title,
		Message:        draft.Message,
		ScheduledDate:  now,
		ActionURL:      &actionURL,
		Metadata:       metadata,
		CreatedAt:      now,
	}
}

func validateSubject(subject notificationdomain.Subject) error {
	if subject.OwnerID == 0 || subject.SubscriptionID == 0 {
		return notificationdomain.ErrInvalidSubject
	}
	return nil
}

func ownerFromContext(ctx context.Context) (snowflake.ID, error) {
	ownerID, ok := ownercontext.OwnerIDFromContext(ctx)
	if !ok {
		return 0, notificationdomain.ErrInvalidOwner
	}
	return ownerID, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, notificationdomain.ErrNotFound
	}
	return id, nil
}
