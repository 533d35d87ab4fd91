package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"smallbiznis-picks/pkg/errutil"
	"smallbiznis-picks/services/ledger"
	"smallbiznis-picks/services/ledger/ledgertest"
	"smallbiznis-picks/services/quest"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type trackerMock struct {
	events []quest.Event
	err    error
}

func (m *trackerMock) TrackEvent(ctx context.Context, tx *gorm.DB, ev quest.Event) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.events = append(m.events, ev)
	return nil, nil
}

func newTestService(t *testing.T) (*Service, *ledgertest.Env, *trackerMock) {
	t.Helper()
	env := ledgertest.New(t, Models()...)
	tracker := &trackerMock{}
	svc := NewService(Params{DB: env.DB, Node: env.Node, UoW: env.UoW, Ledger: env.Ledger, Quests: tracker})
	return svc, env, tracker
}

func newVenue(t *testing.T, svc *Service, owner string) *Venue {
	t.Helper()
	venue, err := svc.CreateVenue(context.Background(), CreateVenueRequest{OwnerID: owner, Name: "Warung " + owner})
	require.NoError(t, err)
	return venue
}

func countTasks(t *testing.T, env *ledgertest.Env) int64 {
	var n int64
	require.NoError(t, env.DB.Model(&Task{}).Count(&n).Error)
	return n
}

func TestCreateVenue(t *testing.T) {
	svc, _, tracker := newTestService(t)
	ctx := context.Background()

	venue, err := svc.CreateVenue(ctx, CreateVenueRequest{OwnerID: "owner-1", Name: "  Kopi Kenangan Senja "})
	require.NoError(t, err)
	require.Equal(t, "kopi-kenangan-senja", venue.Slug)
	require.Equal(t, "Kopi Kenangan Senja", venue.Name)
	require.Len(t, tracker.events, 1)
	require.Equal(t, quest.TriggerRestaurantOnboarded, tracker.events[0].Trigger)

	_, err = svc.CreateVenue(ctx, CreateVenueRequest{OwnerID: "owner-2", Name: "Kopi Kenangan Senja"})
	require.ErrorIs(t, err, ErrSlugTaken)
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))

	_, err = svc.CreateVenue(ctx, CreateVenueRequest{Name: "No Owner"})
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))

	got, err := svc.GetVenue(ctx, venue.ID)
	require.NoError(t, err)
	require.Equal(t, venue.ID, got.ID)
}

func TestCreateTaskReservesReward(t *testing.T) {
	svc, env, tracker := newTestService(t)
	venue := newVenue(t, svc, "owner")
	env.Fund(t, "owner", 500)

	task, err := svc.CreateTask(context.Background(), CreateTaskRequest{
		VenueID:      venue.ID,
		Title:        "Post a story",
		Description:  "Tag us in an instagram story",
		Platform:     PlatformInstagram,
		RewardAmount: "200",
	})
	require.NoError(t, err)
	require.Equal(t, StatusActive, task.Status)
	require.Equal(t, ReservationReserved, ReservationState(task))
	require.Equal(t, "owner", task.OwnerID)

	require.Equal(t, ledger.BalanceSnapshot{UserID: "owner", Balance: 500, Reserved: 200, Available: 300}, env.Balance(t, "owner"))
	require.Equal(t, quest.TriggerTaskCreated, tracker.events[len(tracker.events)-1].Trigger)
}

func TestCreateTaskWithoutFundsLeavesNothing(t *testing.T) {
	svc, env, _ := newTestService(t)
	venue := newVenue(t, svc, "owner")
	env.Fund(t, "owner", 100)

	_, err := svc.CreateTask(context.Background(), CreateTaskRequest{
		VenueID: venue.ID, Title: "Review us", Description: "Leave a google review", RewardAmount: 150,
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	require.Equal(t, int64(0), countTasks(t, env))
	require.Equal(t, int64(0), env.Balance(t, "owner").Reserved)
}

func TestCreateTaskQuestFailureRollsBack(t *testing.T) {
	svc, env, tracker := newTestService(t)
	venue := newVenue(t, svc, "owner")
	env.Fund(t, "owner", 500)
	tracker.err = errors.New("quest store down")

	_, err := svc.CreateTask(context.Background(), CreateTaskRequest{
		VenueID: venue.ID, Title: "Review us", Description: "Leave a google review", RewardAmount: 150,
	})
	require.Error(t, err)
	require.Equal(t, int64(0), countTasks(t, env))
	require.Equal(t, int64(1), env.Entries(t, "owner"))
}

func TestCreateTaskValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	venue := newVenue(t, svc, "owner")

	cases := map[string]CreateTaskRequest{
		"fractional reward": {VenueID: venue.ID, Title: "Review us", Description: "Leave a review", RewardAmount: "12.5"},
		"zero reward":       {VenueID: venue.ID, Title: "Review us", Description: "Leave a review", RewardAmount: 0},
		"short title":       {VenueID: venue.ID, Title: "Hi", Description: "Leave a review", RewardAmount: 10},
		"unknown platform":  {VenueID: venue.ID, Title: "Review us", Description: "Leave a review", Platform: "myspace", RewardAmount: 10},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateTask(context.Background(), req)
			require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))
		})
	}

	_, err := svc.CreateTask(context.Background(), CreateTaskRequest{VenueID: "missing", Title: "Review us", Description: "Leave a review", RewardAmount: 10})
	require.ErrorIs(t, err, ErrVenueNotFound)
}

func TestDeleteReleasesReservationOnce(t *testing.T) {
	svc, env, _ := newTestService(t)
	ctx := context.Background()
	venue := newVenue(t, svc, "owner")
	env.Fund(t, "owner", 500)

	task, err := svc.CreateTask(ctx, CreateTaskRequest{VenueID: venue.ID, Title: "Review us", Description: "Leave a review", RewardAmount: 200})
	require.NoError(t, err)

	paused, err := svc.UpdateStatus(ctx, task.ID, StatusPaused)
	require.NoError(t, err)
	require.Equal(t, StatusPaused, paused.Status)
	require.Equal(t, int64(200), env.Balance(t, "owner").Reserved)

	deleted, err := svc.UpdateStatus(ctx, task.ID, StatusDeleted)
	require.NoError(t, err)
	require.Equal(t, StatusDeleted, deleted.Status)
	require.Equal(t, ReservationReleased, deleted.Reservation)
	require.Equal(t, int64(0), env.Balance(t, "owner").Reserved)

	again, err := svc.UpdateStatus(ctx, task.ID, StatusActive)
	require.NoError(t, err)
	require.Equal(t, StatusDeleted, again.Status)
	require.Equal(t, int64(3), env.Entries(t, "owner"))

	tasks, err := svc.ListByVenue(ctx, venue.ID)
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestDeleteConsumedTaskKeepsLedger(t *testing.T) {
	svc, env, _ := newTestService(t)
	ctx := context.Background()
	venue := newVenue(t, svc, "owner")
	env.Fund(t, "owner", 500)

	task, err := svc.CreateTask(ctx, CreateTaskRequest{VenueID: venue.ID, Title: "Review us", Description: "Leave a review", RewardAmount: 200})
	require.NoError(t, err)

	require.NoError(t, env.DB.Transaction(func(tx *gorm.DB) error {
		return svc.MarkConsumed(ctx, tx, task.ID)
	}))
	err = env.DB.Transaction(func(tx *gorm.DB) error {
		return svc.MarkConsumed(ctx, tx, task.ID)
	})
	require.ErrorIs(t, err, ErrNotReserved)

	deleted, err := svc.UpdateStatus(ctx, task.ID, StatusDeleted)
	require.NoError(t, err)
	require.Equal(t, ReservationConsumed, deleted.Reservation)
	require.Equal(t, int64(2), env.Entries(t, "owner"))
}

func TestUpdateStatusUnknownTask(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.UpdateStatus(context.Background(), "missing", StatusPaused)
	require.ErrorIs(t, err, ErrTaskNotFound)
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))

	_, err = svc.UpdateStatus(context.Background(), "missing", "archived")
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))
}

func TestListByVenueNewestFirst(t *testing.T) {
	svc, env, _ := newTestService(t)
	ctx := context.Background()
	venue := newVenue(t, svc, "owner")
	env.Fund(t, "owner", 500)

	first, err := svc.CreateTask(ctx, CreateTaskRequest{VenueID: venue.ID, Title: "First task", Description: "Leave a review", RewardAmount: 10})
	require.NoError(t, err)
	require.NoError(t, env.DB.Model(&Task{}).Where("id = ?", first.ID).Update("created_at", first.CreatedAt.Add(-time.Second)).Error)
	second, err := svc.CreateTask(ctx, CreateTaskRequest{VenueID: venue.ID, Title: "Second task", Description: "Leave a review", RewardAmount: 10})
	require.NoError(t, err)

	tasks, err := svc.ListByVenue(ctx, venue.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, second.ID, tasks[0].ID)
	require.Equal(t, first.ID, tasks[1].ID)
}
