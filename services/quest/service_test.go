package quest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smallbiznis-picks/pkg/errutil"
	"smallbiznis-picks/services/ledger/ledgertest"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *ledgertest.Env) {
	t.Helper()
	env := ledgertest.New(t, Models()...)
	svc := NewService(Params{DB: env.DB, Node: env.Node, UoW: env.UoW, Ledger: env.Ledger})
	require.NoError(t, svc.Seed(context.Background()))
	return svc, env
}

func TestSeedIsIdempotent(t *testing.T) {
	svc, env := newTestService(t)
	require.NoError(t, svc.Seed(context.Background()))

	var n int64
	require.NoError(t, env.DB.Model(&Quest{}).Count(&n).Error)
	require.Equal(t, int64(len(DefaultQuests())), n)
}

func TestTrackEventCompletesOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	ev := Event{UserID: "player-1", Role: PersonaPlayer, Trigger: TriggerMissionSubmitted, ReferenceID: "sub-1"}

	completed, err := svc.TrackEvent(ctx, nil, ev)
	require.NoError(t, err)
	require.Equal(t, []string{"player_first_submission"}, completed)

	ev.ReferenceID = "sub-2"
	completed, err = svc.TrackEvent(ctx, nil, ev)
	require.NoError(t, err)
	require.Empty(t, completed)

	states, err := svc.State(ctx, "player-1", PersonaPlayer)
	require.NoError(t, err)
	for _, st := range states {
		if st.Key == "player_first_submission" {
			require.Equal(t, StatusCompleted, st.Status)
			require.Equal(t, 1, st.Progress)
			require.NotNil(t, st.CompletedAt)
		} else {
			require.Equal(t, StatusInProgress, st.Status)
		}
	}
}

func TestTrackEventRespectsPersona(t *testing.T) {
	svc, _ := newTestService(t)

	completed, err := svc.TrackEvent(context.Background(), nil, Event{
		UserID: "venue-1", Role: PersonaVenue, Trigger: TriggerMissionSubmitted, ReferenceID: "sub-1",
	})
	require.NoError(t, err)
	require.Empty(t, completed)

	states, err := svc.State(context.Background(), "venue-1", PersonaVenue)
	require.NoError(t, err)
	require.Len(t, states, 3)
}

func TestClaimReward(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()

	_, err := svc.ClaimReward(ctx, "player-1", "player_first_submission")
	require.ErrorIs(t, err, ErrQuestNotCompleted)
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))

	_, err = svc.TrackEvent(ctx, nil, Event{UserID: "player-1", Role: PersonaPlayer, Trigger: TriggerMissionSubmitted, ReferenceID: "sub-1"})
	require.NoError(t, err)

	res, err := svc.ClaimReward(ctx, "player-1", "player_first_submission")
	require.NoError(t, err)
	require.Equal(t, ClaimClaimed, res.Status)
	require.Equal(t, int64(40), res.RewardPicks)
	require.Equal(t, int64(40), env.Balance(t, "player-1").Balance)

	res, err = svc.ClaimReward(ctx, "player-1", "player_first_submission")
	require.NoError(t, err)
	require.Equal(t, ClaimAlreadyClaimed, res.Status)
	require.Equal(t, int64(40), env.Balance(t, "player-1").Balance)
	require.Equal(t, int64(1), env.Entries(t, "player-1"))

	completed, err := svc.TrackEvent(ctx, nil, Event{UserID: "player-1", Role: PersonaPlayer, Trigger: TriggerMissionSubmitted, ReferenceID: "sub-2"})
	require.NoError(t, err)
	require.Empty(t, completed)
}

func TestClaimUnknownQuest(t *testing.T) {
	svc, env := newTestService(t)

	_, err := svc.ClaimReward(context.Background(), "player-1", "nope")
	require.ErrorIs(t, err, ErrQuestNotFound)
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))

	require.NoError(t, env.DB.Model(&Quest{}).Where("`key` = ?", "player_daily_claim").Update("active", false).Error)
	_, err = svc.ClaimReward(context.Background(), "player-1", "player_daily_claim")
	require.ErrorIs(t, err, ErrQuestNotFound)
}
