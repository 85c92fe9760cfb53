package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/subtrack/internal/clock"
	notificationdomain "github.com/smallbiznis/subtrack/internal/notification/domain"
	notificationrepository "github.com/smallbiznis/subtrack/internal/notification/repository"
	notificationservice "github.com/smallbiznis/subtrack/internal/notification/service"
	"github.com/smallbiznis/subtrack/internal/ownercontext"
	pricehistorydomain "github.com/smallbiznis/subtrack/internal/pricehistory/domain"
	pricehistoryrepository "github.com/smallbiznis/subtrack/internal/pricehistory/repository"
	pricehistoryservice "github.com/smallbiznis/subtrack/internal/pricehistory/service"
	subscriptiondomain "github.com/smallbiznis/subtrack/internal/subscription/domain"
	"github.com/smallbiznis/subtrack/internal/subscription/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testOwner snowflake.ID = 4242

// failingNotificationRepo fails every insert after the wrapped repository
// has been asked to write.
type failingNotificationRepo struct {
	notificationdomain.Repository
	fail bool
}

func (r *failingNotificationRepo) Insert(ctx context.Context, db *gorm.DB, n *notificationdomain.Notification) error {
	if r.fail {
		return errors.New("disk full")
	}
	return r.Repository.Insert(ctx, db, n)
}

type fixture struct {
	svc       *Service
	db        *gorm.DB
	clock     *clock.FakeClock
	notifRepo *failingNotificationRepo
	ctx       context.Context
}

func setup(t *testing.T, now time.Time) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&subscriptiondomain.Subscription{},
		&pricehistorydomain.Entry{},
		&notificationdomain.Notification{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(now)
	log := zap.NewNop()

	priceSvc := pricehistoryservice.New(pricehistoryservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: pricehistoryrepository.Provide(),
	})
	notifRepo := &failingNotificationRepo{Repository: notificationrepository.Provide()}
	notifSvc := notificationservice.New(notificationservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: notifRepo,
	})

	svc := NewService(ServiceParam{
		DB:              db,
		Log:             log,
		GenID:           node,
		Clock:           clk,
		Repo:            repository.Provide(),
		PriceHistorySvc: priceSvc,
		NotificationSvc: notifSvc,
	}).(*Service)

	return &fixture{
		svc:       svc,
		db:        db,
		clock:     clk,
		notifRepo: notifRepo,
		ctx:       ownercontext.WithOwnerID(context.Background(), testOwner),
	}
}

func strPtr(v string) *string { return &v }
func intPtr(v int) *int { return &v }
func i64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool { return &v }

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func TestCreateComputesNextPaymentAndOpensLedger(t *testing.T) {
	f := setup(t, time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC))

	resp, err := f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{
		Name:          "Netflix",
		CurrentAmount: 1000,
		BillingCycle:  "monthly",
		ConnectedDate: strPtr("2024-01-01"),
	})
	require.NoError(t, err)

	require.NotNil(t, resp.NextPaymentDate)
	assert.Equal(t, "2024-02-01", *resp.NextPaymentDate)
	assert.Equal(t, subscriptiondomain.StateActive, resp.State)
	assert.Equal(t, 3, resp.NotifyDaysBefore)
	require.NotNil(t, resp.DaysRemaining)
	assert.Equal(t, 31, *resp.DaysRemaining)

	require.Len(t, resp.PriceHistory, 1)
	entry := resp.PriceHistory[0]
	assert.Equal(t, int64(1000), entry.Amount)
	assert.True(t, entry.StartDate.Equal(clock.Date(2024, time.January, 1)))
	assert.Nil(t, entry.EndDate)

	var notifications []notificationdomain.Notification
	require.NoError(t, f.db.Find(&notifications).Error)
	require.Len(t, notifications, 1)
	assert.Equal(t, notificationdomain.TypeSubscriptionCreated, notifications[0].Type)
	assert.Equal(t, testOwner, notifications[0].OwnerID)
}

func TestCreateFreeSubscriptionHasNoLedger(t *testing.T) {
	f := setup(t, time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC))

	resp, err := f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{Name: "Trial", BillingCycle: "yearly"})
	require.NoError(t, err)
	assert.Empty(t, resp.PriceHistory)
	assert.Equal(t, "2025-01-01", *resp.NextPaymentDate)
	assert.Equal(t, int64(0), f.count(t, &pricehistorydomain.Entry{}))
}

func TestCreateValidation(t *testing.T) {
	f := setup(t, time.Date(2024, time.March, 10, 10, 0, 0, 0, time.UTC))

	cases := []struct {
		name string
		req  subscriptiondomain.CreateRequest
		want error
	}{
		{"past next payment", subscriptiondomain.CreateRequest{Name: "a", NextPaymentDate: strPtr("2024-03-09")}, subscriptiondomain.ErrInvalidDate},
		{"future connected date", subscriptiondomain.CreateRequest{Name: "b", ConnectedDate: strPtr("2024-03-11")}, subscriptiondomain.ErrInvalidDate},
		{"malformed date", subscriptiondomain.CreateRequest{Name: "c", ConnectedDate: strPtr("10.03.2024")}, subscriptiondomain.ErrInvalidDate},
		{"notify days too low", subscriptiondomain.CreateRequest{Name: "d", NotifyDaysBefore: intPtr(0)}, subscriptiondomain.ErrInvalidRange},
		{"notify days too high", subscriptiondomain.CreateRequest{Name: "e", NotifyDaysBefore: intPtr(31)}, subscriptiondomain.ErrInvalidRange},
		{"unknown cycle", subscriptiondomain.CreateRequest{Name: "f", BillingCycle: "weekly"}, subscriptiondomain.ErrInvalidRange},
		{"negative amount", subscriptiondomain.CreateRequest{Name: "g", CurrentAmount: -1}, subscriptiondomain.ErrInvalidRange},
		{"blank name", subscriptiondomain.CreateRequest{Name: "  "}, subscriptiondomain.ErrInvalidRange},
		{"unknown category", subscriptiondomain.CreateRequest{Name: "h", Category: "food"}, subscriptiondomain.ErrInvalidRange},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(f.ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, int64(0), f.count(t, &subscriptiondomain.Subscription{}))
	assert.Equal(t, int64(0), f.count(t, &notificationdomain.Notification{}))
}

func TestCreateAcceptsBoundaryDates(t *testing.T) {
	f := setup(t, time.Date(2024, time.March, 10, 10, 0, 0, 0, time.UTC))

	resp, err := f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{
		Name:             "Boundary",
		ConnectedDate:    strPtr("2024-03-10"),
		NextPaymentDate:  strPtr("2024-03-10"),
		NotifyDaysBefore: intPtr(30),
		BillingCycle:     "mounthly",
	})
	require.NoError(t, err)
	assert.Equal(t, "monthly", resp.BillingCycle)
	assert.Equal(t, 0, *resp.DaysRemaining)
}

func TestCreateNameConflictPerOwner(t *testing.T) {
	f := setup(t, time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC))

	_, err := f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{Name: "Spotify Premium", CurrentAmount: 500})
	require.NoError(t, err)

	_, err = f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{Name: "spotify  premium"})
	assert.ErrorIs(t, err, subscriptiondomain.ErrNameConflict)

	other := ownercontext.WithOwnerID(context.Background(), 777)
	_, err = f.svc.Create(other, subscriptiondomain.CreateRequest{Name: "Spotify Premium"})
	assert.NoError(t, err)
}

func TestCreateKeepsPunctuatedNamesDistinct(t *testing.T) {
	f := setup(t, time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC))

	first, err := f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{Name: "Apple TV", CurrentAmount: 699})
	require.NoError(t, err)
	assert.Equal(t, "apple-tv", first.Slug)

	second, err := f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{Name: "Apple TV+", CurrentAmount: 999})
	require.NoError(t, err)
	assert.Equal(t, "Apple TV+", second.Name)

	_, err = f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{Name: "Disney+", CurrentAmount: 799})
	require.NoError(t, err)
	_, err = f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{Name: "Disney", CurrentAmount: 799})
	require.NoError(t, err)

	_, err = f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{Name: " apple   tv "})
	assert.ErrorIs(t, err, subscriptiondomain.ErrNameConflict)

	assert.Equal(t, int64(4), f.count(t, &subscriptiondomain.Subscription{}))
}

func TestCreateRollsBackOnFailure(t *testing.T) {
	f := setup(t, time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC))
	f.notifRepo.fail = true

	_, err := f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{Name: "Netflix", CurrentAmount: 1000})
	require.Error(t, err)
	assert.ErrorIs(t, err, subscriptiondomain.ErrPersistenceFailure)

	assert.Equal(t, int64(0), f.count(t, &subscriptiondomain.Subscription{}))
	assert.Equal(t, int64(0), f.count(t, &pricehistorydomain.Entry{}))
	assert.Equal(t, int64(0), f.count(t, &notificationdomain.Notification{}))
}

func TestCreateRequiresOwner(t *testing.T) {
	f := setup(t, time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC))

	_, err := f.svc.Create(context.Background(), subscriptiondomain.CreateRequest{Name: "x"})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidOwner)
}

func TestUpdatePriceReconcilesLedger(t *testing.T) {
	f := setup(t, time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC))
	created, err := f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{Name: "Gym", CurrentAmount: 1000})
	require.NoError(t, err)

	// Same day edit collapses into the open entry.
	_, err = f.svc.Update(f.ctx, created.ID, subscriptiondomain.UpdateRequest{CurrentAmount: i64Ptr(1200)})
	require.NoError(t, err)

	f.clock.AdvanceDays(10)
	updated, err := f.svc.Update(f.ctx, created.ID, subscriptiondomain.UpdateRequest{CurrentAmount: i64Ptr(1500)})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), updated.CurrentAmount)

	history, err := f.svc.PriceHistory(f.ctx, created.ID, pricehistorydomain.OrderAsc)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(1500), history[0].Amount)
	assert.Nil(t, history[0].EndDate)

	var priceChanged int64
	require.NoError(t, f.db.Model(&notificationdomain.Notification{}).
		Where("type = ?", notificationdomain.TypePriceChanged).
		Count(&priceChanged).Error)
	assert.Equal(t, int64(2), priceChanged)
}

func TestUpdateCycleRecomputesFromExistingNextDate(t *testing.T) {
	f := setup(t, time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC))
	created, err := f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{
		Name:            "Cloud",
		NextPaymentDate: strPtr("2024-01-31"),
	})
	require.NoError(t, err)

	updated, err := f.svc.Update(f.ctx, created.ID, subscriptiondomain.UpdateRequest{BillingCycle: strPtr("quarterly")})
	require.NoError(t, err)
	assert.Equal(t, "quarterly", updated.BillingCycle)
	assert.Equal(t, "2024-04-30", *updated.NextPaymentDate)

	var moved int64
	require.NoError(t, f.db.Model(&notificationdomain.Notification{}).
		Where("type = ?", notificationdomain.TypePaymentDateChanged).
		Count(&moved).Error)
	assert.Equal(t, int64(1), moved)
}

func TestUpdateRejections(t *testing.T) {
	f := setup(t, time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC))
	first, err := f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{Name: "One"})
	require.NoError(t, err)
	_, err = f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{Name: "Two"})
	require.NoError(t, err)

	_, err = f.svc.Update(f.ctx, first.ID, subscriptiondomain.UpdateRequest{Name: strPtr("two")})
	assert.ErrorIs(t, err, subscriptiondomain.ErrNameConflict)

	_, err = f.svc.Update(f.ctx, first.ID, subscriptiondomain.UpdateRequest{NextPaymentDate: strPtr("2024-01-14")})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidDate)

	_, err = f.svc.Update(f.ctx, first.ID, subscriptiondomain.UpdateRequest{NotifyDaysBefore: intPtr(45)})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidRange)

	_, err = f.svc.Update(f.ctx, first.ID, subscriptiondomain.UpdateRequest{BillingCycle: strPtr("daily")})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidRange)

	_, err = f.svc.Update(f.ctx, "123", subscriptiondomain.UpdateRequest{Name: strPtr("x")})
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotFound)

	stranger := ownercontext.WithOwnerID(context.Background(), 999)
	_, err = f.svc.Update(stranger, first.ID, subscriptiondomain.UpdateRequest{Name: strPtr("x")})
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotFound)

	// Renaming to itself with different casing is allowed.
	renamed, err := f.svc.Update(f.ctx, first.ID, subscriptiondomain.UpdateRequest{Name: strPtr("ONE")})
	require.NoError(t, err)
	assert.Equal(t, "ONE", renamed.Name)
}

func TestUpdateAutoRenewalNotifies(t *testing.T) {
	f := setup(t, time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC))
	created, err := f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{Name: "News"})
	require.NoError(t, err)

	updated, err := f.svc.Update(f.ctx, created.ID, subscriptiondomain.UpdateRequest{AutoRenewal: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, updated.AutoRenewal)

	var n notificationdomain.Notification
	require.NoError(t, f.db.Where("type = ?", notificationdomain.TypeAutoRenewalChanged).First(&n).Error)
	assert.Contains(t, n.Message, "enabled")
}

func TestArchiveIsTerminal(t *testing.T) {
	f := setup(t, time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC))
	created, err := f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{Name: "Old", CurrentAmount: 700})
	require.NoError(t, err)

	archived, err := f.svc.Archive(f.ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StateArchived, archived.State)
	require.NotNil(t, archived.ArchivedDate)
	assert.Equal(t, "2024-01-15", *archived.ArchivedDate)
	assert.False(t, archived.NotificationsEnabled)
	assert.Nil(t, archived.DaysRemaining)

	_, err = f.svc.Update(f.ctx, created.ID, subscriptiondomain.UpdateRequest{CurrentAmount: i64Ptr(900), Name: strPtr("New")})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidState)

	_, err = f.svc.Archive(f.ctx, created.ID)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidState)

	_, err = f.svc.Renew(f.ctx, created.ID)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidState)

	got, err := f.svc.Get(f.ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Old", got.Name)
	assert.Equal(t, int64(700), got.CurrentAmount)
	require.Len(t, got.PriceHistory, 1)
	assert.Equal(t, int64(700), got.PriceHistory[0].Amount)
}

func TestRenewAdvancesOneCycle(t *testing.T) {
	f := setup(t, time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC))
	created, err := f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{
		Name:            "Yearly",
		BillingCycle:    "yearly",
		NextPaymentDate: strPtr("2024-02-29"),
	})
	require.NoError(t, err)

	renewed, err := f.svc.Renew(f.ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-02-28", *renewed.NextPaymentDate)

	_, err = f.svc.Renew(f.ctx, "not-a-number")
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotFound)
}

func TestListOrdersByNextPaymentAndHidesArchived(t *testing.T) {
	f := setup(t, time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC))
	late, err := f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{Name: "Late", NextPaymentDate: strPtr("2024-03-01")})
	require.NoError(t, err)
	_, err = f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{Name: "Soon", NextPaymentDate: strPtr("2024-01-05")})
	require.NoError(t, err)
	gone, err := f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{Name: "Gone"})
	require.NoError(t, err)
	_, err = f.svc.Archive(f.ctx, gone.ID)
	require.NoError(t, err)

	active, err := f.svc.List(f.ctx, subscriptiondomain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "Soon", active[0].Name)
	assert.Equal(t, late.ID, active[1].ID)

	all, err := f.svc.List(f.ctx, subscriptiondomain.ListRequest{IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPriceHistoryRequiresOwnership(t *testing.T) {
	f := setup(t, time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC))
	created, err := f.svc.Create(f.ctx, subscriptiondomain.CreateRequest{Name: "Mine", CurrentAmount: 100})
	require.NoError(t, err)

	stranger := ownercontext.WithOwnerID(context.Background(), 999)
	_, err = f.svc.PriceHistory(stranger, created.ID, pricehistorydomain.OrderAsc)
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotFound)
}
