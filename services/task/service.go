package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"smallbiznis-picks/pkg/db/option"
	"smallbiznis-picks/pkg/errutil"
	"smallbiznis-picks/pkg/logger"
	"smallbiznis-picks/pkg/points"
	"smallbiznis-picks/pkg/repository"
	"smallbiznis-picks/pkg/uow"
	"smallbiznis-picks/services/ledger"
	"smallbiznis-picks/services/quest"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrVenueNotFound  = errors.New("venue not found")
	ErrTaskNotFound   = errors.New("task not found")
	ErrSlugTaken      = errors.New("venue slug already taken")
	ErrNotReserved    = errors.New("task reward is not reserved")
	ErrInvalidRequest = errors.New("invalid task request")
)

type Service struct {
	node   *snowflake.Node
	uow    uow.UnitOfWork
	ledger ledger.Ledger
	quests quest.Tracker
	tracer trace.Tracer

	venues repository.Repository[Venue]
	tasks  repository.Repository[Task]
}

type Params struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	UoW    uow.UnitOfWork
	Ledger ledger.Ledger
	Quests quest.Tracker
}

func NewService(p Params) *Service {
	return &Service{
		node:   p.Node,
		uow:    p.UoW,
		ledger: p.Ledger,
		quests: p.Quests,
		tracer: otel.Tracer("smallbiznis-picks/task"),
		venues: repository.ProvideStore[Venue](p.DB),
		tasks:  repository.ProvideStore[Task](p.DB),
	}
}

func invalid(field, msg string) error {
	return errutil.ValidationFailed(msg, ErrInvalidRequest, errutil.WithDetails(errutil.Detail{Field: field, Message: msg}))
}

func (s *Service) CreateVenue(ctx context.Context, req CreateVenueRequest) (*Venue, error) {
	ctx, span := s.tracer.Start(ctx, "task.CreateVenue", trace.WithAttributes(attribute.String("owner_id", req.OwnerID)))
	defer span.End()

	name := strings.TrimSpace(req.Name)
	if req.OwnerID == "" {
		return nil, invalid("owner_id", "owner id is required")
	}
	if n := utf8.RuneCountInString(name); n < 2 || n > 120 {
		return nil, invalid("name", "name must be between 2 and 120 characters")
	}

	source := req.Slug
	if source == "" {
		source = name
	}
	venueSlug := slug.Make(source)
	if venueSlug == "" {
		return nil, invalid("slug", "slug must contain letters or digits")
	}

	now := time.Now().UTC()
	venue := &Venue{
		ID:        s.node.Generate().String(),
		OwnerID:   req.OwnerID,
		Name:      name,
		Slug:      venueSlug,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
		created, err := s.venues.WithTrx(tx).CreateIgnoreConflict(ctx, venue)
		if err != nil {
			return err
		}
		if !created {
			return errutil.Conflict(fmt.Sprintf("slug %q is already taken", venueSlug), ErrSlugTaken)
		}

		_, err = s.quests.TrackEvent(ctx, tx, quest.Event{
			UserID:      req.OwnerID,
			Role:        quest.PersonaVenue,
			Trigger:     quest.TriggerRestaurantOnboarded,
			ReferenceID: venue.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("venue created", zap.String("venue_id", venue.ID), zap.String("slug", venue.Slug))
	return venue, nil
}

func (s *Service) GetVenue(ctx context.Context, venueID string) (*Venue, error) {
	venue, err := s.venues.FindOne(ctx, &Venue{ID: venueID})
	if err != nil {
		zap.L().Error("failed to query venue", zap.String("venue_id", venueID), zap.Error(err))
		return nil, err
	}
	if venue == nil {
		return nil, errutil.NotFound("venue not found", ErrVenueNotFound)
	}
	return venue, nil
}

// CreateTask creates an active task and reserves its reward on the venue
// owner in the same unit of work.
func (s *Service) CreateTask(ctx context.Context, req CreateTaskRequest) (*Task, error) {
	ctx, span := s.tracer.Start(ctx, "task.CreateTask", trace.WithAttributes(attribute.String("venue_id", req.VenueID)))
	defer span.End()

	reward, err := points.Parse(req.RewardAmount)
	if err != nil {
		return nil, err
	}
	if reward == 0 {
		return nil, invalid("reward_amount", "reward must be greater than zero")
	}

	title := strings.TrimSpace(req.Title)
	if n := utf8.RuneCountInString(title); n < 3 || n > 120 {
		return nil, invalid("title", "title must be between 3 and 120 characters")
	}
	if n := utf8.RuneCountInString(req.Description); n < 5 || n > 2000 {
		return nil, invalid("description", "description must be between 5 and 2000 characters")
	}

	platform := req.Platform
	if platform == "" {
		platform = PlatformOther
	}
	if !platform.Valid() {
		return nil, invalid("platform", fmt.Sprintf("unknown platform %q", platform))
	}

	var task *Task
	err = s.uow.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
		venue, err := s.venues.WithTrx(tx).FindOne(ctx, &Venue{ID: req.VenueID})
		if err != nil {
			return err
		}
		if venue == nil {
			return errutil.NotFound("venue not found", ErrVenueNotFound)
		}

		now := time.Now().UTC()
		task = &Task{
			ID:           s.node.Generate().String(),
			VenueID:      venue.ID,
			OwnerID:      venue.OwnerID,
			Title:        title,
			Description:  req.Description,
			Platform:     platform,
			RewardAmount: reward.Int64(),
			Status:       StatusActive,
			Reservation:  ReservationReserved,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.tasks.WithTrx(tx).Create(ctx, task); err != nil {
			return err
		}

		if _, err := s.ledger.Reserve(ctx, tx, venue.OwnerID, reward, ledger.Reference{
			Kind:        ledger.RefTaskCreation,
			ReferenceID: task.ID,
			Metadata:    map[string]any{"taskId": task.ID, "venueId": venue.ID},
		}); err != nil {
			return err
		}

		_, err = s.quests.TrackEvent(ctx, tx, quest.Event{
			UserID:      venue.OwnerID,
			Role:        quest.PersonaVenue,
			Trigger:     quest.TriggerTaskCreated,
			ReferenceID: task.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("task created",
		zap.String("task_id", task.ID),
		zap.String("venue_id", task.VenueID),
		zap.Int64("reward", task.RewardAmount),
	)
	return task, nil
}

// UpdateStatus moves a task between active, paused and deleted. Deleting a
// task whose reward is still reserved releases it. Deleted tasks are final
// and returned unchanged.
func (s *Service) UpdateStatus(ctx context.Context, taskID string, status Status) (*Task, error) {
	ctx, span := s.tracer.Start(ctx, "task.UpdateStatus", trace.WithAttributes(
		attribute.String("task_id", taskID),
		attribute.String("status", string(status)),
	))
	defer span.End()

	if !status.Valid() {
		return nil, invalid("status", fmt.Sprintf("unknown status %q", status))
	}

	var task *Task
	err := s.uow.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		task, err = s.Lock(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if task.Status == StatusDeleted {
			return nil
		}

		updates := map[string]any{"status": status, "updated_at": time.Now().UTC()}
		release := status == StatusDeleted && task.Reservation == ReservationReserved
		if release {
			updates["reservation"] = ReservationReleased
		}
		if err := s.tasks.WithTrx(tx).Update(ctx, task.ID, updates); err != nil {
			return err
		}

		if release {
			if _, err := s.ledger.ReleaseReserve(ctx, tx, task.OwnerID, points.Amount(task.RewardAmount), ledger.Reference{
				Kind:        ledger.RefTaskDeletion,
				ReferenceID: task.ID,
				Metadata:    map[string]any{"taskId": task.ID},
			}); err != nil {
				return err
			}
			task.Reservation = ReservationReleased
		}
		task.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	return task, nil
}

// Lock reads the task FOR UPDATE inside tx.
func (s *Service) Lock(ctx context.Context, tx *gorm.DB, taskID string) (*Task, error) {
	task, err := s.tasks.WithTrx(tx).FindOne(ctx, &Task{ID: taskID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, errutil.NotFound("task not found", ErrTaskNotFound)
	}
	return task, nil
}

func (s *Service) Get(ctx context.Context, tx *gorm.DB, taskID string) (*Task, error) {
	task, err := s.tasks.WithTrx(tx).FindOne(ctx, &Task{ID: taskID})
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, errutil.NotFound("task not found", ErrTaskNotFound)
	}
	return task, nil
}

// MarkConsumed records that the reserved reward was paid out. Only a reserved
// task can be consumed.
func (s *Service) MarkConsumed(ctx context.Context, tx *gorm.DB, taskID string) error {
	res := tx.WithContext(ctx).Model(&Task{}).
		Where("id = ? AND reservation = ?", taskID, ReservationReserved).
		Updates(map[string]any{"reservation": ReservationConsumed, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return errutil.Conflict("task reward is not reserved", ErrNotReserved)
	}
	return nil
}

// ListByVenue returns the venue's non-deleted tasks, newest first.
func (s *Service) ListByVenue(ctx context.Context, venueID string) ([]*Task, error) {
	tasks, err := s.tasks.Find(ctx, &Task{VenueID: venueID},
		option.ApplyOperator(option.Condition{Field: "status", Operator: option.NEQ, Value: StatusDeleted}),
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
	)
	if err != nil {
		zap.L().Error("failed to query list tasks", zap.String("venue_id", venueID), zap.Error(err))
		return nil, err
	}
	return tasks, nil
}

// ReservationState reports what happened to the task's reserved reward.
func ReservationState(t *Task) Reservation {
	if t == nil || t.Reservation == "" {
		return ReservationUnreserved
	}
	return t.Reservation
}
