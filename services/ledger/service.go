package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"smallbiznis-picks/pkg/errutil"
	"smallbiznis-picks/pkg/logger"
	"smallbiznis-picks/pkg/points"
	"smallbiznis-picks/pkg/uow"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	health "google.golang.org/grpc/health/grpc_health_v1"
)

const maxReferenceIDLength = 191

// Ledger is the balance mutation API used by the orchestrators. Every call
// takes the caller's transaction; a nil tx runs the call in its own unit of
// work.
type Ledger interface {
	GetBalance(ctx context.Context, tx *gorm.DB, userID string) (BalanceSnapshot, error)
	Credit(ctx context.Context, tx *gorm.DB, userID string, amount points.Amount, ref Reference) (BalanceSnapshot, error)
	Debit(ctx context.Context, tx *gorm.DB, userID string, amount points.Amount, ref Reference) (BalanceSnapshot, error)
	Reserve(ctx context.Context, tx *gorm.DB, userID string, amount points.Amount, ref Reference) (BalanceSnapshot, error)
	ReleaseReserve(ctx context.Context, tx *gorm.DB, userID string, amount points.Amount, ref Reference) (BalanceSnapshot, error)
}

type Service struct {
	health.UnimplementedHealthServer

	db    *gorm.DB
	node  *snowflake.Node
	uow   uow.UnitOfWork
	store *store

	tracer    trace.Tracer
	mutations metric.Int64Counter
}

var _ Ledger = (*Service)(nil)

type ServiceParams struct {
	fx.In
	DB             *gorm.DB
	Node           *snowflake.Node
	UoW            uow.UnitOfWork
	TracerProvider trace.TracerProvider `optional:"true"`
	MeterProvider  metric.MeterProvider `optional:"true"`
}

func NewService(p ServiceParams) (*Service, error) {
	tp := p.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := p.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	mutations, err := mp.Meter("smallbiznis-picks/ledger").Int64Counter("ledger.mutations",
		metric.WithDescription("Ledger mutations by entry kind and outcome."),
	)
	if err != nil {
		return nil, err
	}

	return &Service{
		db:        p.DB,
		node:      p.Node,
		uow:       p.UoW,
		store:     newStore(p.DB),
		tracer:    tp.Tracer("smallbiznis-picks/ledger"),
		mutations: mutations,
	}, nil
}

type outcome string

const (
	outcomeApplied  outcome = "applied"
	outcomeReplayed outcome = "replayed"
	outcomeRejected outcome = "rejected"
)

type mutation struct {
	userID string
	amount int64
	kind   EntryKind
	ref    Reference
}

func (m mutation) key() idempotencyKey {
	return idempotencyKey{
		ReferenceKind: m.ref.Kind,
		ReferenceID:   m.ref.ReferenceID,
		Kind:          m.kind,
		UserID:        m.userID,
	}
}

func (m mutation) validate() error {
	if m.userID == "" {
		return errutil.ValidationFailed("user id is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "user_id", Message: "required"}))
	}
	if m.amount <= 0 {
		return errutil.ValidationFailed("amount must be greater than zero", ErrNonPositiveAmount,
			errutil.WithDetails(errutil.Detail{Field: "amount", Message: "must be greater than zero"}))
	}
	if !m.ref.Kind.Valid() {
		return invalidReference(fmt.Sprintf("unknown reference kind %q", m.ref.Kind))
	}
	if m.ref.ReferenceID == "" {
		return invalidReference("reference id is required")
	}
	if len(m.ref.ReferenceID) > maxReferenceIDLength {
		return invalidReference("reference id is too long")
	}
	if m.ref.CounterpartyUserID == m.userID {
		return invalidReference("counterparty must differ from the account owner")
	}
	return nil
}

// check enforces 0 <= reserved <= balance for the state after m.
func (m mutation) check(a *Account) error {
	switch m.kind {
	case EntryEarn:
		if a.Balance > math.MaxInt64-m.amount {
			return errutil.ValidationFailed("amount overflows the account balance", ErrAmountOverflow)
		}
	case EntrySpend, EntryReserve:
		if a.Available() < m.amount {
			return errutil.Conflict(fmt.Sprintf("insufficient available balance: need=%d available=%d", m.amount, a.Available()), ErrInsufficientBalance)
		}
	case EntryRelease:
		if a.Reserved < m.amount {
			return errutil.Conflict(fmt.Sprintf("cannot release %d, only %d reserved", m.amount, a.Reserved), ErrCannotRelease)
		}
	}
	return nil
}

// applyTo returns the account as it is after m.
func (m mutation) applyTo(a Account) Account {
	switch m.kind {
	case EntryEarn:
		a.Balance += m.amount
	case EntrySpend:
		a.Balance -= m.amount
	case EntryReserve:
		a.Reserved += m.amount
	case EntryRelease:
		a.Reserved -= m.amount
	}
	return a
}

func (s *Service) GetBalance(ctx context.Context, tx *gorm.DB, userID string) (BalanceSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.GetBalance", trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	account, err := s.store.findAccount(ctx, tx, userID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to query account", zap.String("user_id", userID), zap.Error(err))
		return BalanceSnapshot{}, err
	}
	if account == nil {
		return BalanceSnapshot{}, accountNotFound(userID)
	}

	return snapshotOf(account), nil
}

// OpenAccount pre-seeds a zero account. Opening an existing account is a no-op.
func (s *Service) OpenAccount(ctx context.Context, tx *gorm.DB, userID string) (BalanceSnapshot, error) {
	if userID == "" {
		return BalanceSnapshot{}, errutil.ValidationFailed("user id is required", nil)
	}

	var snap BalanceSnapshot
	open := func(ctx context.Context, tx *gorm.DB) error {
		account, err := s.store.openAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		snap = snapshotOf(account)
		return nil
	}

	if tx != nil {
		return snap, open(ctx, tx)
	}
	return snap, s.uow.Do(ctx, open)
}

// Credit adds amount to the balance and records an earn entry. The account is
// created on first credit.
func (s *Service) Credit(ctx context.Context, tx *gorm.DB, userID string, amount points.Amount, ref Reference) (BalanceSnapshot, error) {
	return s.apply(ctx, tx, mutation{userID: userID, amount: amount.Int64(), kind: EntryEarn, ref: ref})
}

// Debit removes amount from the balance. Only available funds can be spent.
func (s *Service) Debit(ctx context.Context, tx *gorm.DB, userID string, amount points.Amount, ref Reference) (BalanceSnapshot, error) {
	return s.apply(ctx, tx, mutation{userID: userID, amount: amount.Int64(), kind: EntrySpend, ref: ref})
}

// Reserve earmarks available funds without changing the balance.
func (s *Service) Reserve(ctx context.Context, tx *gorm.DB, userID string, amount points.Amount, ref Reference) (BalanceSnapshot, error) {
	return s.apply(ctx, tx, mutation{userID: userID, amount: amount.Int64(), kind: EntryReserve, ref: ref})
}

// ReleaseReserve frees previously reserved funds.
func (s *Service) ReleaseReserve(ctx context.Context, tx *gorm.DB, userID string, amount points.Amount, ref Reference) (BalanceSnapshot, error) {
	return s.apply(ctx, tx, mutation{userID: userID, amount: amount.Int64(), kind: EntryRelease, ref: ref})
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, m mutation) (snap BalanceSnapshot, err error) {
	ctx, span := s.tracer.Start(ctx, "ledger."+string(m.kind), trace.WithAttributes(
		attribute.String("user_id", m.userID),
		attribute.Int64("amount", m.amount),
		attribute.String("reference_kind", string(m.ref.Kind)),
		attribute.String("reference_id", m.ref.ReferenceID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := m.validate(); err != nil {
		s.record(ctx, m, outcomeRejected)
		return BalanceSnapshot{}, err
	}

	if tx != nil {
		return s.applyTx(ctx, tx, m)
	}

	err = s.uow.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		snap, err = s.applyTx(ctx, tx, m)
		return err
	})
	return snap, err
}

func (s *Service) applyTx(ctx context.Context, tx *gorm.DB, m mutation) (BalanceSnapshot, error) {
	log := logger.FromContext(ctx).With(
		zap.String("user_id", m.userID),
		zap.String("kind", string(m.kind)),
		zap.String("reference_kind", string(m.ref.Kind)),
		zap.String("reference_id", m.ref.ReferenceID),
	)

	account, err := s.store.lockAccount(ctx, tx, m.userID)
	if err != nil {
		log.Error("failed to lock account", zap.Error(err))
		return BalanceSnapshot{}, err
	}
	if account == nil {
		if m.kind != EntryEarn {
			s.record(ctx, m, outcomeRejected)
			return BalanceSnapshot{}, accountNotFound(m.userID)
		}
		if account, err = s.store.openAccount(ctx, tx, m.userID); err != nil {
			log.Error("failed to open account", zap.Error(err))
			return BalanceSnapshot{}, err
		}
	}

	existing, err := s.store.findEntry(ctx, tx, m.key())
	if err != nil {
		log.Error("failed to query idempotency key", zap.Error(err))
		return BalanceSnapshot{}, err
	}
	if existing != nil {
		return s.replay(ctx, log, account, existing, m)
	}

	if err := m.check(account); err != nil {
		s.record(ctx, m, outcomeRejected)
		log.Info("ledger mutation rejected", zap.Int64("amount", m.amount), zap.Error(err))
		return BalanceSnapshot{}, err
	}

	entry, err := s.newEntry(account, m)
	if err != nil {
		return BalanceSnapshot{}, err
	}

	inserted, err := s.store.insertEntry(ctx, tx, entry)
	if err != nil {
		log.Error("failed to insert ledger entry", zap.Error(err))
		return BalanceSnapshot{}, err
	}
	if !inserted {
		// A concurrent transaction won either the idempotency key or the
		// account sequence.
		existing, err := s.store.findEntry(ctx, tx, m.key())
		if err != nil {
			return BalanceSnapshot{}, err
		}
		if existing == nil {
			return BalanceSnapshot{}, uow.ErrSerialization
		}
		current, err := s.store.lockAccount(ctx, tx, m.userID)
		if err != nil {
			return BalanceSnapshot{}, err
		}
		return s.replay(ctx, log, current, existing, m)
	}

	next := m.applyTo(*account)
	next.Version = entry.Sequence
	next.LastEntryHash = entry.Hash
	next.UpdatedAt = entry.CreatedAt
	if err := s.store.advanceAccount(ctx, tx, account.Version, &next); err != nil {
		log.Warn("failed to advance account", zap.Error(err))
		return BalanceSnapshot{}, err
	}

	s.record(ctx, m, outcomeApplied)
	log.Debug("ledger mutation applied", zap.Int64("amount", m.amount), zap.Int64("sequence", entry.Sequence))

	return snapshotOf(&next), nil
}

// replay handles a repeated idempotency key: same amount is a silent no-op,
// a different amount is a caller bug and is refused.
func (s *Service) replay(ctx context.Context, log *zap.Logger, account *Account, existing *LedgerEntry, m mutation) (BalanceSnapshot, error) {
	if existing.Amount != m.amount {
		s.record(ctx, m, outcomeRejected)
		log.Warn("idempotent replay with a different amount",
			zap.Int64("original_amount", existing.Amount),
			zap.Int64("replay_amount", m.amount),
			zap.String("entry_id", existing.ID),
		)
		return BalanceSnapshot{}, errutil.Conflict(
			fmt.Sprintf("reference %s/%s was already applied with amount %d", m.ref.Kind, m.ref.ReferenceID, existing.Amount),
			ErrIdempotencyMismatch,
		)
	}

	s.record(ctx, m, outcomeReplayed)
	log.Info("ledger mutation already applied", zap.String("entry_id", existing.ID))

	return snapshotOf(account), nil
}

func (s *Service) newEntry(account *Account, m mutation) (*LedgerEntry, error) {
	var meta datatypes.JSON
	if len(m.ref.Metadata) > 0 {
		b, err := json.Marshal(m.ref.Metadata)
		if err != nil {
			return nil, errutil.ValidationFailed("metadata is not serialisable", err)
		}
		meta = datatypes.JSON(b)
	}

	var counterparty *string
	if m.ref.CounterpartyUserID != "" {
		c := m.ref.CounterpartyUserID
		counterparty = &c
	}

	previous := account.LastEntryHash
	if previous == "" {
		previous = GenesisHash
	}

	entry := &LedgerEntry{
		ID:                 s.node.Generate().String(),
		UserID:             m.userID,
		Kind:               m.kind,
		Amount:             m.amount,
		ReferenceKind:      m.ref.Kind,
		ReferenceID:        m.ref.ReferenceID,
		CounterpartyUserID: counterparty,
		Metadata:           meta,
		Sequence:           account.Version + 1,
		PreviousHash:       previous,
		// millisecond precision survives every supported database
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	entry.Hash = entry.GenerateHash()

	return entry, nil
}

func (s *Service) record(ctx context.Context, m mutation, o outcome) {
	s.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(m.kind)),
		attribute.String("outcome", string(o)),
	))
}
