package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/subtrack/internal/clock"
	notificationdomain "github.com/smallbiznis/subtrack/internal/notification/domain"
	"github.com/smallbiznis/subtrack/internal/notification/repository"
	"github.com/smallbiznis/subtrack/internal/ownercontext"
	"github.com/smallbiznis/subtrack/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T, now time.Time) (*Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&notificationdomain.Notification{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(now)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	}).(*Service)
	return svc, db, clk
}

func testSubject() notificationdomain.Subject {
	return notificationdomain.Subject{OwnerID: 100, SubscriptionID: 200, Name: "Netflix"}
}

func TestRemindPaymentOncePerDay(t *testing.T) {
	now := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	svc, db, clk := setupService(t, now)
	ctx := context.Background()
	today := clock.DateOf(now)
	payment := clock.Date(2024, time.March, 4)

	created, err := svc.RemindPayment(ctx, db, testSubject(), payment, 1099, today)
	require.NoError(t, err)
	assert.True(t, created)

	clk.Advance(3 * time.Hour)
	created, err = svc.RemindPayment(ctx, db, testSubject(), payment, 1099, today)
	require.NoError(t, err)
	assert.False(t, created)

	clk.AdvanceDays(1)
	created, err = svc.RemindPayment(ctx, db, testSubject(), payment, 1099, today.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, created)

	var count int64
	require.NoError(t, db.Model(&notificationdomain.Notification{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestRemindPaymentMessage(t *testing.T) {
	now := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	svc, db, _ := setupService(t, now)

	_, err := svc.RemindPayment(context.Background(), db, testSubject(), clock.Date(2024, time.March, 4), 1099, clock.DateOf(now))
	require.NoError(t, err)

	var stored notificationdomain.Notification
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, notificationdomain.TypePaymentReminder, stored.Type)
	assert.Equal(t, "In 3 days (04.03.2024) 10.99 USD will be charged for 'Netflix'.", stored.Message)
	require.NotNil(t, stored.ActionURL)
	assert.Equal(t, "/subscriptions/200", *stored.ActionURL)
	require.NotNil(t, stored.ReminderDay)
	assert.True(t, stored.ReminderDay.Equal(clock.Date(2024, time.March, 1)))
}

func TestNotifyPriceChangedSkipsEqualAmounts(t *testing.T) {
	svc, db, _ := setupService(t, time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC))

	n, err := svc.NotifyPriceChanged(context.Background(), db, testSubject(), 500, 500)
	require.NoError(t, err)
	assert.Nil(t, n)

	n, err = svc.NotifyPriceChanged(context.Background(), db, testSubject(), 500, 700)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, notificationdomain.TypePriceChanged, n.Type)
}

func TestEmitRejectsMissingSubject(t *testing.T) {
	svc, db, _ := setupService(t, time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC))

	_, err := svc.NotifyAutoRenewalChanged(context.Background(), db, notificationdomain.Subject{Name: "x"}, true)
	assert.ErrorIs(t, err, notificationdomain.ErrInvalidSubject)
}

func TestInboxOperations(t *testing.T) {
	now := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	svc, db, clk := setupService(t, now)
	ctx := ownercontext.WithOwnerID(context.Background(), 100)

	var ids []snowflake.ID
	for i := 0; i < 3; i++ {
		n, err := svc.NotifyAutoRenewalChanged(ctx, db, testSubject(), i%2 == 0)
		require.NoError(t, err)
		ids = append(ids, n.ID)
		clk.Advance(time.Minute)
	}
	other := notificationdomain.Subject{OwnerID: 999, SubscriptionID: 300, Name: "Other"}
	_, err := svc.NotifyAutoRenewalChanged(ctx, db, other, true)
	require.NoError(t, err)

	count, err := svc.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	page, err := svc.List(ctx, notificationdomain.ListRequest{Pagination: pagination.Pagination{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, page.Notifications, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, ids[2], page.Notifications[0].ID)

	read, err := svc.MarkRead(ctx, ids[0].String())
	require.NoError(t, err)
	assert.True(t, read.Read)
	assert.NotNil(t, read.SentAt)

	unread, err := svc.List(ctx, notificationdomain.ListRequest{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread.Notifications, 2)
	assert.False(t, unread.HasMore)

	updated, err := svc.MarkAllRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	count, err = svc.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	otherCtx := ownercontext.WithOwnerID(context.Background(), 999)
	count, err = svc.UnreadCount(otherCtx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMarkReadScopedToOwner(t *testing.T) {
	svc, db, _ := setupService(t, time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC))
	n, err := svc.NotifyAutoRenewalChanged(context.Background(), db, testSubject(), true)
	require.NoError(t, err)

	_, err = svc.MarkRead(ownercontext.WithOwnerID(context.Background(), 999), n.ID.String())
	assert.ErrorIs(t, err, notificationdomain.ErrNotFound)

	_, err = svc.MarkRead(context.Background(), n.ID.String())
	assert.ErrorIs(t, err, notificationdomain.ErrInvalidOwner)
}
