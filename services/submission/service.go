package submission

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"smallbiznis-picks/pkg/config"
	"smallbiznis-picks/pkg/db/option"
	"smallbiznis-picks/pkg/errutil"
	"smallbiznis-picks/pkg/logger"
	"smallbiznis-picks/pkg/points"
	"smallbiznis-picks/pkg/repository"
	"smallbiznis-picks/pkg/uow"
	"smallbiznis-picks/services/ledger"
	"smallbiznis-picks/services/quest"
	"smallbiznis-picks/services/referral"
	"smallbiznis-picks/services/task"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrAlreadyProcessed   = errors.New("submission already processed")
	ErrTaskNotActive      = errors.New("task is not active")
	ErrDailyLimit         = errors.New("daily submission limit reached")
	ErrOwnTask            = errors.New("cannot submit to your own task")
	ErrInvalidProof       = errors.New("invalid proof url")
)

// Approval steps, recorded in entry metadata.
const (
	stepReleaseReserve = "release_reserve"
	stepOwnerDebit     = "owner_debit"
	stepUserCredit     = "user_credit"
)

type Service struct {
	node      *snowflake.Node
	uow       uow.UnitOfWork
	ledger    ledger.Ledger
	tasks     task.Catalog
	quests    quest.Tracker
	referrals referral.Qualifier
	rewards   config.Rewards
	tracer    trace.Tracer

	submissions repository.Repository[Submission]
}

type Params struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	UoW       uow.UnitOfWork
	Ledger    ledger.Ledger
	Tasks     task.Catalog
	Quests    quest.Tracker
	Referrals referral.Qualifier
	Config    *config.Config
}

func NewService(p Params) *Service {
	return &Service{
		node:        p.Node,
		uow:         p.UoW,
		ledger:      p.Ledger,
		tasks:       p.Tasks,
		quests:      p.Quests,
		referrals:   p.Referrals,
		rewards:     p.Config.Rewards,
		tracer:      otel.Tracer("smallbiznis-picks/submission"),
		submissions: repository.ProvideStore[Submission](p.DB),
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Create records a pending proof for an active task, at most
// MaxSubmissionsPerDay per user per UTC day.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Submission, error) {
	ctx, span := s.tracer.Start(ctx, "submission.Create", trace.WithAttributes(
		attribute.String("task_id", req.TaskID),
		attribute.String("user_id", req.UserID),
	))
	defer span.End()

	if req.UserID == "" {
		return nil, errutil.ValidationFailed("user id is required", nil)
	}
	if u, err := url.Parse(req.ProofURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errutil.ValidationFailed("proof url must be an absolute url", ErrInvalidProof,
			errutil.WithDetails(errutil.Detail{Field: "proof_url", Message: "must be an absolute url"}))
	}

	var sub *Submission
	err := s.uow.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
		t, err := s.tasks.Get(ctx, tx, req.TaskID)
		if err != nil {
			return err
		}
		if t.Status != task.StatusActive {
			return errutil.ValidationFailed("task is not active", ErrTaskNotActive)
		}
		if t.OwnerID == req.UserID {
			return errutil.ValidationFailed("cannot submit to your own task", ErrOwnTask)
		}

		now := time.Now().UTC()
		submitted, err := s.submissions.WithTrx(tx).Count(ctx, &Submission{UserID: req.UserID},
			option.ApplyOperator(option.Condition{Field: "created_at", Operator: option.GTE, Value: startOfDay(now)}),
		)
		if err != nil {
			return err
		}
		if submitted >= s.rewards.MaxSubmissionsPerDay {
			return errutil.Conflict("daily submission limit reached", ErrDailyLimit)
		}

		sub = &Submission{
			ID:        s.node.Generate().String(),
			TaskID:    t.ID,
			UserID:    req.UserID,
			ProofURL:  req.ProofURL,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.submissions.WithTrx(tx).Create(ctx, sub); err != nil {
			return err
		}

		_, err = s.quests.TrackEvent(ctx, tx, quest.Event{
			UserID:      req.UserID,
			Role:        quest.PersonaPlayer,
			Trigger:     quest.TriggerMissionSubmitted,
			ReferenceID: sub.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func (s *Service) Get(ctx context.Context, submissionID string) (*Submission, error) {
	sub, err := s.submissions.FindOne(ctx, &Submission{ID: submissionID})
	if err != nil {
		zap.L().Error("failed to query submission", zap.String("submission_id", submissionID), zap.Error(err))
		return nil, err
	}
	if sub == nil {
		return nil, errutil.NotFound("submission not found", ErrSubmissionNotFound)
	}
	return sub, nil
}

func (s *Service) lockPending(ctx context.Context, tx *gorm.DB, submissionID string) (*Submission, error) {
	sub, err := s.submissions.WithTrx(tx).FindOne(ctx, &Submission{ID: submissionID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, errutil.NotFound("submission not found", ErrSubmissionNotFound)
	}
	if sub.Status != StatusPending {
		return nil, errutil.Conflict("submission already processed", ErrAlreadyProcessed)
	}
	return sub, nil
}

func (s *Service) review(ctx context.Context, tx *gorm.DB, sub *Submission, status Status) error {
	now := time.Now().UTC()
	if err := s.submissions.WithTrx(tx).Update(ctx, sub.ID, map[string]any{
		"status":      status,
		"reviewed_at": now,
		"updated_at":  now,
	}); err != nil {
		return err
	}
	sub.Status = status
	sub.ReviewedAt = &now
	sub.UpdatedAt = now
	return nil
}

// Approve settles a pending submission: the task reward reserved on the venue
// owner is released, debited from the owner and credited to the contributor.
// Every leg commits together or not at all.
func (s *Service) Approve(ctx context.Context, submissionID string) (sub *Submission, err error) {
	ctx, span := s.tracer.Start(ctx, "submission.Approve", trace.WithAttributes(attribute.String("submission_id", submissionID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	err = s.uow.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		sub, err = s.lockPending(ctx, tx, submissionID)
		if err != nil {
			return err
		}

		t, err := s.tasks.Lock(ctx, tx, sub.TaskID)
		if err != nil {
			return err
		}
		if task.ReservationState(t) != task.ReservationReserved {
			return errutil.Conflict(fmt.Sprintf("task reward is %s", task.ReservationState(t)), task.ErrNotReserved)
		}

		if err := s.review(ctx, tx, sub, StatusApproved); err != nil {
			return err
		}

		reward := points.Amount(t.RewardAmount)
		ref := func(step, counterparty string) ledger.Reference {
			return ledger.Reference{
				Kind:               ledger.RefSubmissionApproval,
				ReferenceID:        sub.ID,
				CounterpartyUserID: counterparty,
				Metadata:           map[string]any{"submissionId": sub.ID, "step": step},
			}
		}

		if _, err := s.ledger.ReleaseReserve(ctx, tx, t.OwnerID, reward, ref(stepReleaseReserve, "")); err != nil {
			return err
		}
		if _, err := s.ledger.Debit(ctx, tx, t.OwnerID, reward, ref(stepOwnerDebit, sub.UserID)); err != nil {
			return err
		}
		if _, err := s.ledger.Credit(ctx, tx, sub.UserID, reward, ref(stepUserCredit, t.OwnerID)); err != nil {
			return err
		}

		if err := s.tasks.MarkConsumed(ctx, tx, t.ID); err != nil {
			return err
		}

		events := []quest.Event{
			{UserID: sub.UserID, Role: quest.PersonaPlayer, Trigger: quest.TriggerSubmissionApproved, ReferenceID: sub.ID},
			{UserID: t.OwnerID, Role: quest.PersonaVenue, Trigger: quest.TriggerSubmissionReviewed, ReferenceID: sub.ID},
		}
		for _, ev := range events {
			if _, err := s.quests.TrackEvent(ctx, tx, ev); err != nil {
				return err
			}
		}

		_, err = s.referrals.Qualify(ctx, tx, sub.UserID, referral.ReasonSubmissionApproved)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("submission approved",
		zap.String("submission_id", sub.ID),
		zap.String("task_id", sub.TaskID),
		zap.String("user_id", sub.UserID),
	)
	return sub, nil
}

// Reject closes a pending submission without moving points.
func (s *Service) Reject(ctx context.Context, submissionID string) (*Submission, error) {
	ctx, span := s.tracer.Start(ctx, "submission.Reject", trace.WithAttributes(attribute.String("submission_id", submissionID)))
	defer span.End()

	var sub *Submission
	err := s.uow.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		sub, err = s.lockPending(ctx, tx, submissionID)
		if err != nil {
			return err
		}

		t, err := s.tasks.Get(ctx, tx, sub.TaskID)
		if err != nil {
			return err
		}

		if err := s.review(ctx, tx, sub, StatusRejected); err != nil {
			return err
		}

		_, err = s.quests.TrackEvent(ctx, tx, quest.Event{
			UserID:      t.OwnerID,
			Role:        quest.PersonaVenue,
			Trigger:     quest.TriggerSubmissionReviewed,
			ReferenceID: sub.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return sub, nil
}
