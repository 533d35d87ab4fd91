package referral

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
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

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	codePrefix     = "BITE-"
	snapshotLimit  = 25
	maxCodeSuffix  = 1000
	codeSourceTail = 6
)

var (
	ErrInvalidCode = errors.New("referral code is invalid")
	ErrOwnCode     = errors.New("cannot apply your own referral code")
)

// Qualifier pays out a pending referral when the referred user does
// something that counts.
type Qualifier interface {
	Qualify(ctx context.Context, tx *gorm.DB, referredUserID string, reason Reason) (*Referral, error)
}

type Service struct {
	node    *snowflake.Node
	uow     uow.UnitOfWork
	ledger  ledger.Ledger
	quests  quest.Tracker
	rewards config.Rewards
	tracer  trace.Tracer

	codes     repository.Repository[Code]
	referrals repository.Repository[Referral]
}

var _ Qualifier = (*Service)(nil)

type Params struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	UoW    uow.UnitOfWork
	Ledger ledger.Ledger
	Quests quest.Tracker
	Config *config.Config
}

func NewService(p Params) *Service {
	return &Service{
		node:      p.Node,
		uow:       p.UoW,
		ledger:    p.Ledger,
		quests:    p.Quests,
		rewards:   p.Config.Rewards,
		tracer:    otel.Tracer("smallbiznis-picks/referral"),
		codes:     repository.ProvideStore[Code](p.DB),
		referrals: repository.ProvideStore[Referral](p.DB),
	}
}

func baseCode(userID string) string {
	tail := userID
	if len(tail) > codeSourceTail {
		tail = tail[len(tail)-codeSourceTail:]
	}
	return codePrefix + strings.ToUpper(tail)
}

func (s *Service) uniqueCode(ctx context.Context, tx *gorm.DB, userID string) (string, error) {
	base := baseCode(userID)
	candidate := base
	for i := 2; ; i++ {
		existing, err := s.codes.WithTrx(tx).FindOne(ctx, &Code{Code: candidate})
		if err != nil {
			return "", err
		}
		if existing == nil {
			return candidate, nil
		}
		if i >= maxCodeSuffix {
			break
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return fmt.Sprintf("%s-%s", base, s.node.Generate().String()), nil
}

// GetOrCreateCode returns the user's active code, creating one on first use.
func (s *Service) GetOrCreateCode(ctx context.Context, tx *gorm.DB, userID string) (*Code, error) {
	if userID == "" {
		return nil, errutil.ValidationFailed("user id is required", nil)
	}
	if tx == nil {
		var code *Code
		err := s.uow.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
			var err error
			code, err = s.GetOrCreateCode(ctx, tx, userID)
			return err
		})
		return code, err
	}

	existing, err := s.codes.WithTrx(tx).FindOne(ctx, &Code{UserID: userID, Active: true},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
	)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	value, err := s.uniqueCode(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	code := &Code{
		ID:        s.node.Generate().String(),
		UserID:    userID,
		Code:      value,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.codes.WithTrx(tx).Create(ctx, code); err != nil {
		logger.FromContext(ctx).Error("failed to create referral code", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return code, nil
}

// ApplyCode links referredUserID to the owner of code. A user can be referred
// once; applying again returns the existing referral.
func (s *Service) ApplyCode(ctx context.Context, referredUserID, code string, metadata map[string]any) (*Referral, error) {
	ctx, span := s.tracer.Start(ctx, "referral.ApplyCode", trace.WithAttributes(attribute.String("user_id", referredUserID)))
	defer span.End()

	if referredUserID == "" {
		return nil, errutil.ValidationFailed("user id is required", nil)
	}

	var meta datatypes.JSON
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return nil, errutil.ValidationFailed("metadata is not serialisable", err)
		}
		meta = b
	}

	var referral *Referral
	err := s.uow.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
		rc, err := s.codes.WithTrx(tx).FindOne(ctx, &Code{Code: strings.ToUpper(strings.TrimSpace(code))})
		if err != nil {
			return err
		}
		if rc == nil || !rc.Active {
			return errutil.NotFound("referral code is invalid", ErrInvalidCode)
		}
		if rc.UserID == referredUserID {
			return errutil.ValidationFailed("you cannot apply your own referral code", ErrOwnCode)
		}

		existing, err := s.referrals.WithTrx(tx).FindOne(ctx, &Referral{ReferredUserID: referredUserID})
		if err != nil {
			return err
		}
		if existing != nil {
			referral = existing
			return nil
		}

		now := time.Now().UTC()
		referral = &Referral{
			ID:             s.node.Generate().String(),
			ReferrerUserID: rc.UserID,
			ReferredUserID: referredUserID,
			CodeID:         rc.ID,
			Status:         StatusApplied,
			Metadata:       meta,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.referrals.WithTrx(tx).Create(ctx, referral); err != nil {
			return err
		}

		_, err = s.quests.TrackEvent(ctx, tx, quest.Event{
			UserID:      referredUserID,
			Role:        quest.PersonaPlayer,
			Trigger:     quest.TriggerReferralApplied,
			ReferenceID: referral.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return referral, nil
}

// Qualify rewards both sides of the referral of referredUserID. It returns
// (nil, nil) when the user was not referred and is a no-op once rewarded.
func (s *Service) Qualify(ctx context.Context, tx *gorm.DB, referredUserID string, reason Reason) (*Referral, error) {
	if tx == nil {
		var referral *Referral
		err := s.uow.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
			var err error
			referral, err = s.Qualify(ctx, tx, referredUserID, reason)
			return err
		})
		return referral, err
	}

	ctx, span := s.tracer.Start(ctx, "referral.Qualify", trace.WithAttributes(
		attribute.String("user_id", referredUserID),
		attribute.String("reason", string(reason)),
	))
	defer span.End()

	referral, err := s.referrals.WithTrx(tx).FindOne(ctx, &Referral{ReferredUserID: referredUserID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if referral == nil || referral.Status == StatusRewarded {
		return referral, nil
	}

	now := time.Now().UTC()
	qualifiedAt := now
	if referral.QualifiedAt != nil {
		qualifiedAt = *referral.QualifiedAt
	}
	if err := s.referrals.WithTrx(tx).Update(ctx, referral.ID, map[string]any{
		"status":       StatusRewarded,
		"qualified_at": qualifiedAt,
		"rewarded_at":  now,
		"updated_at":   now,
	}); err != nil {
		return nil, err
	}
	referral.Status = StatusRewarded
	referral.QualifiedAt = &qualifiedAt
	referral.RewardedAt = &now

	legs := []struct {
		userID       string
		counterparty string
		amount       int64
		role         string
	}{
		{referral.ReferrerUserID, referredUserID, s.rewards.ReferrerBonus, "referrer"},
		{referredUserID, referral.ReferrerUserID, s.rewards.ReferredBonus, "referred"},
	}
	for _, leg := range legs {
		if _, err := s.ledger.Credit(ctx, tx, leg.userID, points.Amount(leg.amount), ledger.Reference{
			Kind:               ledger.RefReferralBonus,
			ReferenceID:        referral.ID,
			CounterpartyUserID: leg.counterparty,
			Metadata:           map[string]any{"reason": string(reason), "role": leg.role},
		}); err != nil {
			return nil, err
		}
	}

	for _, userID := range []string{referral.ReferrerUserID, referredUserID} {
		if _, err := s.quests.TrackEvent(ctx, tx, quest.Event{
			UserID:      userID,
			Role:        quest.PersonaPlayer,
			Trigger:     quest.TriggerReferralConversion,
			ReferenceID: referral.ID,
		}); err != nil {
			return nil, err
		}
	}

	logger.FromContext(ctx).Info("referral rewarded",
		zap.String("referral_id", referral.ID),
		zap.String("referrer_user_id", referral.ReferrerUserID),
		zap.String("referred_user_id", referredUserID),
	)
	return referral, nil
}

// Snapshot returns the user's code and their latest referrals.
func (s *Service) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	code, err := s.GetOrCreateCode(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	referrals, err := s.referrals.Find(ctx, &Referral{ReferrerUserID: userID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
		func(db *gorm.DB) *gorm.DB { return db.Limit(snapshotLimit) },
	)
	if err != nil {
		zap.L().Error("failed to query referrals", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	return &Snapshot{Code: code.Code, Referrals: referrals}, nil
}
