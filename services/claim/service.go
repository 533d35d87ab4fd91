package claim

import (
	"context"
	"errors"
	"time"

	"smallbiznis-picks/pkg/config"
	"smallbiznis-picks/pkg/db/option"
	"smallbiznis-picks/pkg/errutil"
	"smallbiznis-picks/pkg/featureflags"
	"smallbiznis-picks/pkg/logger"
	"smallbiznis-picks/pkg/points"
	"smallbiznis-picks/pkg/repository"
	"smallbiznis-picks/pkg/uow"
	"smallbiznis-picks/services/ledger"
	"smallbiznis-picks/services/quest"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FeatureDailyClaim switches daily claims off per user when set to false.
const FeatureDailyClaim = "daily_claim"

var (
	ErrAdViewNotFound = errors.New("ad view not found")
	ErrAdViewOwner    = errors.New("ad view does not belong to this user")
	ErrAdViewClaimed  = errors.New("ad view already claimed")
	ErrCooldownActive = errors.New("daily claim cooldown active")
	ErrClaimDisabled  = errors.New("daily claim is disabled")
)

var latestClaim = option.QuerySortBy{SortBy: "claimed_at", OrderBy: "desc", Allow: map[string]bool{"claimed_at": true}}

type Service struct {
	node    *snowflake.Node
	uow     uow.UnitOfWork
	ledger  ledger.Ledger
	quests  quest.Tracker
	flags   featureflags.FeatureFlag
	rewards config.Rewards
	tracer  trace.Tracer
	now     func() time.Time

	views  repository.Repository[AdView]
	claims repository.Repository[DailyClaim]
}

type Params struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	UoW    uow.UnitOfWork
	Ledger ledger.Ledger
	Quests quest.Tracker
	Config *config.Config
	Flags  featureflags.FeatureFlag `optional:"true"`
}

func NewService(p Params) *Service {
	return &Service{
		node:    p.Node,
		uow:     p.UoW,
		ledger:  p.Ledger,
		quests:  p.Quests,
		flags:   p.Flags,
		rewards: p.Config.Rewards,
		tracer:  otel.Tracer("smallbiznis-picks/claim"),
		now:     func() time.Time { return time.Now().UTC() },
		views:   repository.ProvideStore[AdView](p.DB),
		claims:  repository.ProvideStore[DailyClaim](p.DB),
	}
}

func (s *Service) RecordAdView(ctx context.Context, req RecordAdViewRequest) (*AdView, error) {
	if req.UserID == "" {
		return nil, errutil.ValidationFailed("user id is required", nil)
	}
	if req.PlacementKey == "" {
		return nil, errutil.ValidationFailed("placement key is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "placement_key", Message: "required"}))
	}

	view := &AdView{
		ID:           s.node.Generate().String(),
		UserID:       req.UserID,
		PlacementKey: req.PlacementKey,
		SessionID:    req.SessionID,
		Metadata:     []byte(`{"source":"daily-claim-placeholder"}`),
		CreatedAt:    s.now(),
	}
	if err := s.views.Create(ctx, view); err != nil {
		zap.L().Error("failed to create ad view", zap.String("user_id", req.UserID), zap.Error(err))
		return nil, err
	}
	return view, nil
}

func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	last, err := s.claims.FindOne(ctx, &DailyClaim{UserID: userID}, option.WithSortBy(latestClaim))
	if err != nil {
		zap.L().Error("failed to query daily claim", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	st := &Status{CanClaim: true, Amount: s.rewards.DailyClaimAmount}
	if last != nil {
		st.CanClaim = !last.CooldownEndsAt.After(s.now())
		st.CooldownEndsAt = &last.CooldownEndsAt
		st.LastClaimedAt = &last.ClaimedAt
	}
	return st, nil
}

// Claim credits the daily reward against an unclaimed ad view of the user,
// once per cooldown window.
func (s *Service) Claim(ctx context.Context, userID, adViewID string) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "claim.Claim", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("ad_view_id", adViewID),
	))
	defer span.End()

	if s.flags != nil && !s.flags.IsEnabled(ctx, userID, FeatureDailyClaim, true) {
		return nil, errutil.Forbidden("daily claim is disabled", ErrClaimDisabled)
	}

	var result *Result
	err := s.uow.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
		view, err := s.views.WithTrx(tx).FindOne(ctx, &AdView{ID: adViewID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if view == nil {
			return errutil.NotFound("ad view not found", ErrAdViewNotFound)
		}
		if view.UserID != userID {
			return errutil.ValidationFailed("ad view does not belong to this user", ErrAdViewOwner)
		}

		used, err := s.claims.WithTrx(tx).FindOne(ctx, &DailyClaim{AdViewID: view.ID})
		if err != nil {
			return err
		}
		if used != nil {
			return errutil.Conflict("ad view already claimed", ErrAdViewClaimed)
		}

		now := s.now()
		last, err := s.claims.WithTrx(tx).FindOne(ctx, &DailyClaim{UserID: userID}, option.WithSortBy(latestClaim))
		if err != nil {
			return err
		}
		if last != nil && last.CooldownEndsAt.After(now) {
			return errutil.Conflict("daily claim cooldown active, come back later", ErrCooldownActive)
		}

		claim := &DailyClaim{
			ID:             s.node.Generate().String(),
			UserID:         userID,
			AdViewID:       view.ID,
			Amount:         s.rewards.DailyClaimAmount,
			ClaimedAt:      now,
			CooldownEndsAt: now.Add(s.rewards.DailyClaimCooldown),
		}
		if err := s.claims.WithTrx(tx).Create(ctx, claim); err != nil {
			return err
		}

		if _, err := s.ledger.Credit(ctx, tx, userID, points.Amount(claim.Amount), ledger.Reference{
			Kind:        ledger.RefDailyClaim,
			ReferenceID: claim.ID,
			Metadata:    map[string]any{"adPlaceholderViewId": view.ID},
		}); err != nil {
			return err
		}

		if _, err := s.quests.TrackEvent(ctx, tx, quest.Event{
			UserID:      userID,
			Role:        quest.PersonaPlayer,
			Trigger:     quest.TriggerDailyClaim,
			ReferenceID: claim.ID,
		}); err != nil {
			return err
		}

		result = &Result{ClaimID: claim.ID, Amount: claim.Amount, CooldownEndsAt: claim.CooldownEndsAt}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("daily claim credited", zap.String("user_id", userID), zap.String("claim_id", result.ClaimID))
	return result, nil
}
