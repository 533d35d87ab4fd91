package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"smallbiznis-picks/pkg/config"
	"smallbiznis-picks/pkg/health"
	"smallbiznis-picks/services/claim"
	"smallbiznis-picks/services/ledger"
	"smallbiznis-picks/services/ledger/ledgertest"
	"smallbiznis-picks/services/quest"
	"smallbiznis-picks/services/referral"
	"smallbiznis-picks/services/submission"
	"smallbiznis-picks/services/task"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type api struct {
	t      *testing.T
	env    *ledgertest.Env
	engine *gin.Engine
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var models []any
	for _, m := range [][]any{task.Models(), submission.Models(), claim.Models(), referral.Models(), quest.Models()} {
		models = append(models, m...)
	}
	env := ledgertest.New(t, models...)

	cfg := &config.Config{Rewards: config.Rewards{
		DailyClaimAmount:     50,
		DailyClaimCooldown:   24 * time.Hour,
		ReferrerBonus:        180,
		ReferredBonus:        120,
		MaxSubmissionsPerDay: 5,
	}}

	quests := quest.NewService(quest.Params{DB: env.DB, Node: env.Node, UoW: env.UoW, Ledger: env.Ledger})
	require.NoError(t, quests.Seed(context.Background()))

	tasks := task.NewService(task.Params{DB: env.DB, Node: env.Node, UoW: env.UoW, Ledger: env.Ledger, Quests: quests})
	referrals := referral.NewService(referral.Params{DB: env.DB, Node: env.Node, UoW: env.UoW, Ledger: env.Ledger, Quests: quests, Config: cfg})
	handler := NewHandler(HandlerParams{
		Ledger:    env.Ledger,
		Tasks:     tasks,
		Referrals: referrals,
		Quests:    quests,
		Submissions: submission.NewService(submission.Params{
			DB: env.DB, Node: env.Node, UoW: env.UoW, Ledger: env.Ledger,
			Tasks: tasks, Quests: quests, Referrals: referrals, Config: cfg,
		}),
		Claims: claim.NewService(claim.Params{DB: env.DB, Node: env.Node, UoW: env.UoW, Ledger: env.Ledger, Quests: quests, Config: cfg}),
	})

	engine := gin.New()
	Routes(engine, health.ProvideHealth(health.HealthParams{DB: env.DB}), handler, nil, time.Hour)

	return &api{t: t, env: env, engine: engine}
}

func (a *api) call(method, path, body string, out any) int {
	a.t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	if out != nil {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	a := newAPI(t)
	a.env.Fund(t, "owner", 500)

	var venue task.Venue
	require.Equal(t, http.StatusCreated, a.call(http.MethodPost, "/v1/venues", `{"owner_id":"owner","name":"Warung Senja"}`, &venue))
	require.Equal(t, "warung-senja", venue.Slug)

	var created task.Task
	require.Equal(t, http.StatusCreated, a.call(http.MethodPost, "/v1/venues/"+venue.ID+"/tasks",
		`{"title":"Post a reel","description":"Share our new menu","platform":"instagram","reward_amount":200}`, &created))
	require.EqualValues(t, 200, created.RewardAmount)

	var bal ledger.BalanceSnapshot
	require.Equal(t, http.StatusOK, a.call(http.MethodGet, "/v1/users/owner/balance", "", &bal))
	require.EqualValues(t, 500, bal.Balance)
	require.EqualValues(t, 200, bal.Reserved)
	require.EqualValues(t, 300, bal.Available)

	var sub submission.Submission
	require.Equal(t, http.StatusCreated, a.call(http.MethodPost, "/v1/tasks/"+created.ID+"/submissions",
		`{"user_id":"player","proof_url":"https://instagram.com/p/abc"}`, &sub))

	require.Equal(t, http.StatusOK, a.call(http.MethodPost, "/v1/submissions/"+sub.ID+"/approve", "", &sub))
	require.Equal(t, submission.StatusApproved, sub.Status)

	require.Equal(t, http.StatusConflict, a.call(http.MethodPost, "/v1/submissions/"+sub.ID+"/approve", "", nil))

	require.Equal(t, http.StatusOK, a.call(http.MethodGet, "/v1/users/player/balance", "", &bal))
	require.EqualValues(t, 200, bal.Balance)

	var report ledger.Report
	require.Equal(t, http.StatusOK, a.call(http.MethodGet, "/v1/users/owner/reconcile", "", &report))
	require.True(t, report.Valid)
}

func TestDailyClaimOverHTTP(t *testing.T) {
	a := newAPI(t)

	var view claim.AdView
	require.Equal(t, http.StatusCreated, a.call(http.MethodPost, "/v1/users/player/ad-views", `{"placement_key":"daily"}`, &view))

	var result claim.Result
	require.Equal(t, http.StatusOK, a.call(http.MethodPost, "/v1/users/player/daily-claim", `{"ad_view_id":"`+view.ID+`"}`, &result))
	require.EqualValues(t, 50, result.Amount)

	var status claim.Status
	require.Equal(t, http.StatusOK, a.call(http.MethodGet, "/v1/users/player/daily-claim", "", &status))
	require.False(t, status.CanClaim)

	require.Equal(t, http.StatusConflict, a.call(http.MethodPost, "/v1/users/player/daily-claim", `{"ad_view_id":"`+view.ID+`"}`, nil))
}

func TestAdjustmentsAndEntries(t *testing.T) {
	a := newAPI(t)

	var bal ledger.BalanceSnapshot
	require.Equal(t, http.StatusOK, a.call(http.MethodPost, "/v1/admin/users/u1/adjustments",
		`{"direction":"credit","amount":"1000","reference_id":"adj-1","reason":"launch"}`, &bal))
	require.EqualValues(t, 1000, bal.Balance)

	require.Equal(t, http.StatusOK, a.call(http.MethodPost, "/v1/admin/users/u1/adjustments",
		`{"direction":"debit","amount":250,"reference_id":"adj-2"}`, &bal))
	require.EqualValues(t, 750, bal.Balance)

	require.Equal(t, http.StatusBadRequest, a.call(http.MethodPost, "/v1/admin/users/u1/adjustments",
		`{"direction":"debit","amount":1.5,"reference_id":"adj-3"}`, nil))

	require.Equal(t, http.StatusConflict, a.call(http.MethodPost, "/v1/admin/users/u1/adjustments",
		`{"direction":"debit","amount":5000,"reference_id":"adj-4"}`, nil))

	var page struct {
		Data []ledger.LedgerEntry `json:"data"`
	}
	require.Equal(t, http.StatusOK, a.call(http.MethodGet, "/v1/users/u1/entries?limit=10", "", &page))
	require.Len(t, page.Data, 2)

	require.Equal(t, http.StatusNotFound, a.call(http.MethodGet, "/v1/users/nobody/balance", "", nil))
}

func TestOpsEndpoints(t *testing.T) {
	a := newAPI(t)

	require.Equal(t, http.StatusOK, a.call(http.MethodGet, "/healthz", "", nil))
	require.Equal(t, http.StatusOK, a.call(http.MethodGet, "/readyz", "", nil))

	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
