package quest

import (
	"context"
	"errors"
	"time"

	"smallbiznis-picks/pkg/db/option"
	"smallbiznis-picks/pkg/errutil"
	"smallbiznis-picks/pkg/logger"
	"smallbiznis-picks/pkg/points"
	"smallbiznis-picks/pkg/repository"
	"smallbiznis-picks/pkg/uow"
	"smallbiznis-picks/services/ledger"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrQuestNotFound     = errors.New("quest not found")
	ErrQuestNotCompleted = errors.New("quest is not completed yet")
)

// Tracker is what the other orchestrators need from quests.
type Tracker interface {
	TrackEvent(ctx context.Context, tx *gorm.DB, ev Event) ([]string, error)
}

type Service struct {
	node   *snowflake.Node
	uow    uow.UnitOfWork
	ledger ledger.Ledger
	tracer trace.Tracer

	quests   repository.Repository[Quest]
	progress repository.Repository[Progress]
}

var _ Tracker = (*Service)(nil)

type Params struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	UoW    uow.UnitOfWork
	Ledger ledger.Ledger
}

func NewService(p Params) *Service {
	return &Service{
		node:     p.Node,
		uow:      p.UoW,
		ledger:   p.Ledger,
		tracer:   otel.Tracer("smallbiznis-picks/quest"),
		quests:   repository.ProvideStore[Quest](p.DB),
		progress: repository.ProvideStore[Progress](p.DB),
	}
}

// Seed installs the default quest catalogue. Existing keys are left untouched.
func (s *Service) Seed(ctx context.Context) error {
	now := time.Now().UTC()
	for _, q := range DefaultQuests() {
		q.ID = s.node.Generate().String()
		q.Active = true
		q.CreatedAt = now
		q.UpdatedAt = now
		if _, err := s.quests.CreateIgnoreConflict(ctx, &q); err != nil {
			zap.L().Error("failed to seed quest", zap.String("key", q.Key), zap.Error(err))
			return err
		}
	}
	return nil
}

// TrackEvent advances every active quest listening for ev.Trigger and returns
// the keys of quests that completed because of it. Claimed quests are not
// touched.
func (s *Service) TrackEvent(ctx context.Context, tx *gorm.DB, ev Event) ([]string, error) {
	if tx == nil {
		var completed []string
		err := s.uow.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
			var err error
			completed, err = s.TrackEvent(ctx, tx, ev)
			return err
		})
		return completed, err
	}

	ctx, span := s.tracer.Start(ctx, "quest.TrackEvent", trace.WithAttributes(
		attribute.String("user_id", ev.UserID),
		attribute.String("trigger", string(ev.Trigger)),
	))
	defer span.End()

	log := logger.FromContext(ctx).With(zap.String("user_id", ev.UserID), zap.String("trigger", string(ev.Trigger)))

	quests, err := s.quests.WithTrx(tx).Find(ctx, &Quest{Trigger: ev.Trigger, Active: true},
		option.ApplyOperator(option.Condition{Field: "persona", Operator: option.IN, Value: personas(ev.Role)}),
	)
	if err != nil {
		log.Error("failed to query quests", zap.Error(err))
		return nil, err
	}

	increment := max(1, ev.Increment)
	now := time.Now().UTC()

	var completed []string
	for _, q := range quests {
		existing, err := s.progress.WithTrx(tx).FindOne(ctx, &Progress{UserID: ev.UserID, QuestID: q.ID}, option.WithLockingUpdate())
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.Status == StatusClaimed {
			continue
		}

		current := 0
		if existing != nil {
			current = existing.Progress
		}
		next := min(q.TargetCount, current+increment)
		completes := next >= q.TargetCount && (existing == nil || existing.Status == StatusInProgress)

		if existing == nil {
			p := &Progress{
				ID:        s.node.Generate().String(),
				UserID:    ev.UserID,
				QuestID:   q.ID,
				Progress:  next,
				Status:    StatusInProgress,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if completes {
				p.Status = StatusCompleted
				p.CompletedAt = &now
			}
			if err := s.progress.WithTrx(tx).Create(ctx, p); err != nil {
				log.Error("failed to create quest progress", zap.String("quest", q.Key), zap.Error(err))
				return nil, err
			}
		} else {
			updates := map[string]any{"progress": next, "updated_at": now}
			if completes {
				updates["status"] = StatusCompleted
				updates["completed_at"] = now
			}
			if err := s.progress.WithTrx(tx).Update(ctx, existing.ID, updates); err != nil {
				log.Error("failed to update quest progress", zap.String("quest", q.Key), zap.Error(err))
				return nil, err
			}
		}

		if completes {
			completed = append(completed, q.Key)
			log.Info("quest completed", zap.String("quest", q.Key), zap.String("reference_id", ev.ReferenceID))
		}
	}

	return completed, nil
}

// State lists the active quests for role with the user's progress on each.
func (s *Service) State(ctx context.Context, userID string, role Persona) ([]State, error) {
	ctx, span := s.tracer.Start(ctx, "quest.State", trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	quests, err := s.quests.Find(ctx, &Quest{Active: true},
		option.ApplyOperator(option.Condition{Field: "persona", Operator: option.IN, Value: personas(role)}),
		func(db *gorm.DB) *gorm.DB { return db.Order("persona ASC").Order("created_at ASC") },
	)
	if err != nil {
		zap.L().Error("failed to query quests", zap.Error(err))
		return nil, err
	}

	progress, err := s.progress.Find(ctx, &Progress{UserID: userID})
	if err != nil {
		zap.L().Error("failed to query quest progress", zap.Error(err))
		return nil, err
	}
	byQuest := make(map[string]*Progress, len(progress))
	for _, p := range progress {
		byQuest[p.QuestID] = p
	}

	out := make([]State, 0, len(quests))
	for _, q := range quests {
		st := State{
			Key:         q.Key,
			Title:       q.Title,
			Description: q.Description,
			Persona:     q.Persona,
			Trigger:     q.Trigger,
			TargetCount: q.TargetCount,
			RewardPicks: q.RewardPicks,
			RewardXP:    q.RewardXP,
			Status:      StatusInProgress,
		}
		if p, ok := byQuest[q.ID]; ok {
			st.Progress = p.Progress
			st.Status = p.Status
			st.CompletedAt = p.CompletedAt
			st.RewardClaimedAt = p.RewardClaimedAt
		}
		out = append(out, st)
	}

	return out, nil
}

// ClaimReward pays a completed quest once. A second claim reports
// already_claimed without touching the ledger.
func (s *Service) ClaimReward(ctx context.Context, userID, questKey string) (*ClaimResult, error) {
	ctx, span := s.tracer.Start(ctx, "quest.ClaimReward", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("quest", questKey),
	))
	defer span.End()

	var result *ClaimResult
	err := s.uow.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
		q, err := s.quests.WithTrx(tx).FindOne(ctx, &Quest{Key: questKey})
		if err != nil {
			return err
		}
		if q == nil || !q.Active {
			return errutil.NotFound("quest not found", ErrQuestNotFound)
		}

		p, err := s.progress.WithTrx(tx).FindOne(ctx, &Progress{UserID: userID, QuestID: q.ID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if p == nil || p.Status == StatusInProgress {
			return errutil.ValidationFailed("quest is not completed yet", ErrQuestNotCompleted)
		}

		result = &ClaimResult{QuestKey: q.Key, RewardPicks: q.RewardPicks, RewardXP: q.RewardXP, Status: ClaimAlreadyClaimed}
		if p.Status == StatusClaimed {
			return nil
		}

		if q.RewardPicks > 0 {
			if _, err := s.ledger.Credit(ctx, tx, userID, points.Amount(q.RewardPicks), ledger.Reference{
				Kind:        ledger.RefOnboardingQuestReward,
				ReferenceID: p.ID,
				Metadata:    map[string]any{"questKey": q.Key},
			}); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		if err := s.progress.WithTrx(tx).Update(ctx, p.ID, map[string]any{
			"status":            StatusClaimed,
			"reward_claimed_at": now,
			"updated_at":        now,
		}); err != nil {
			return err
		}

		result.Status = ClaimClaimed
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("quest reward claimed",
		zap.String("user_id", userID),
		zap.String("quest", questKey),
		zap.String("status", string(result.Status)),
	)
	return result, nil
}
