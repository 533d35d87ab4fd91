package httpapi

import (
	"time"

	"smallbiznis-picks/pkg/config"
	"smallbiznis-picks/pkg/health"
	"smallbiznis-picks/pkg/middleware"
	"smallbiznis-picks/services/claim"
	"smallbiznis-picks/services/ledger"
	"smallbiznis-picks/services/quest"
	"smallbiznis-picks/services/referral"
	"smallbiznis-picks/services/submission"
	"smallbiznis-picks/services/task"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)

type Handler struct {
	ledger      *ledger.Service
	tasks       *task.Service
	submissions *submission.Service
	claims      *claim.Service
	referrals   *referral.Service
	quests      *quest.Service
}

type HandlerParams struct {
	fx.In
	Ledger      *ledger.Service
	Tasks       *task.Service
	Submissions *submission.Service
	Claims      *claim.Service
	Referrals   *referral.Service
	Quests      *quest.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		ledger:      p.Ledger,
		tasks:       p.Tasks,
		submissions: p.Submissions,
		claims:      p.Claims,
		referrals:   p.Referrals,
		quests:      p.Quests,
	}
}

type RegisterParams struct {
	fx.In
	Engine  *gin.Engine
	Config  *config.Config
	Health  health.HealthService
	Handler *Handler
	Redis   *redis.Client `optional:"true"`
}

func Register(p RegisterParams) {
	var store middleware.IdempotencyStore
	if p.Redis != nil {
		store = middleware.NewRedisIdempotencyStore(p.Redis)
	}
	Routes(p.Engine, p.Health, p.Handler, store, p.Config.Idempotency.TTL)
}

// Routes mounts every endpoint on r. A nil store disables HTTP response
// replay.
func Routes(r *gin.Engine, h health.HealthService, api *Handler, store middleware.IdempotencyStore, ttl time.Duration) {
	r.Use(middleware.RequestID(), middleware.AccessLog())

	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	if store != nil {
		v1.Use(middleware.Idempotency(store, ttl))
	}
	v1.Use(middleware.Error())

	users := v1.Group("/users/:userId")
	users.GET("/balance", api.GetBalance)
	users.GET("/entries", api.ListEntries)
	users.GET("/reconcile", api.Reconcile)
	users.POST("/ad-views", api.RecordAdView)
	users.GET("/daily-claim", api.DailyClaimStatus)
	users.POST("/daily-claim", api.DailyClaim)
	users.GET("/referrals", api.ReferralSnapshot)
	users.GET("/quests", api.QuestState)
	users.POST("/quests/:questKey/claim", api.ClaimQuest)

	v1.POST("/admin/users/:userId/adjustments", api.Adjust)

	v1.POST("/venues", api.CreateVenue)
	v1.GET("/venues/:venueId", api.GetVenue)
	v1.GET("/venues/:venueId/tasks", api.ListTasks)
	v1.POST("/venues/:venueId/tasks", api.CreateTask)

	v1.PATCH("/tasks/:taskId", api.UpdateTaskStatus)
	v1.DELETE("/tasks/:taskId", api.DeleteTask)
	v1.POST("/tasks/:taskId/submissions", api.Submit)

	v1.GET("/submissions/:submissionId", api.GetSubmission)
	v1.POST("/submissions/:submissionId/approve", api.ApproveSubmission)
	v1.POST("/submissions/:submissionId/reject", api.RejectSubmission)

	v1.POST("/referrals/apply", api.ApplyReferralCode)
}
