package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// GenesisHash is the previous_hash of the first entry of every account.
const GenesisHash = "GENESIS"

type EntryKind string

const (
	EntryEarn    EntryKind = "earn"
	EntrySpend   EntryKind = "spend"
	EntryReserve EntryKind = "reserve"
	EntryRelease EntryKind = "release"
	// EntryAdjustment is reserved for manual corrections recorded for audit
	// only; it does not move balance or reserved during replay.
	EntryAdjustment EntryKind = "adjustment"
)

type ReferenceKind string

const (
	RefTaskCreation          ReferenceKind = "task_creation"
	RefTaskDeletion          ReferenceKind = "task_deletion"
	RefSubmissionApproval    ReferenceKind = "submission_approval"
	RefDailyClaim            ReferenceKind = "daily_claim"
	RefReferralBonus         ReferenceKind = "referral_bonus"
	RefOnboardingQuestReward ReferenceKind = "onboarding_quest_reward"
	RefAdminAdjustment       ReferenceKind = "admin_adjustment"
)

var referenceKinds = map[ReferenceKind]bool{
	RefTaskCreation:          true,
	RefTaskDeletion:          true,
	RefSubmissionApproval:    true,
	RefDailyClaim:            true,
	RefReferralBonus:         true,
	RefOnboardingQuestReward: true,
	RefAdminAdjustment:       true,
}

func (k ReferenceKind) Valid() bool {
	return referenceKinds[k]
}

// Reference tags a mutation with the business event that caused it.
// ReferenceID must be unique per logical event; Metadata is sealed into the
// entry hash but never read back by the engine.
type Reference struct {
	Kind               ReferenceKind  `json:"kind"`
	ReferenceID        string         `json:"reference_id"`
	CounterpartyUserID string         `json:"counterparty_user_id,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// Account is the materialised balance of one user. It always equals the
// replay of the user's ledger entries.
type Account struct {
	UserID        string    `gorm:"column:user_id;primaryKey;size:191" json:"user_id"`
	Balance       int64     `gorm:"column:balance;not null;default:0" json:"balance"`
	Reserved      int64     `gorm:"column:reserved;not null;default:0" json:"reserved"`
	Version       int64     `gorm:"column:version;not null;default:0" json:"version"`
	LastEntryHash string    `gorm:"column:last_entry_hash;size:64" json:"last_entry_hash"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

func (a Account) Available() int64 {
	return a.Balance - a.Reserved
}

type LedgerEntry struct {
	ID                 string         `gorm:"column:id;primaryKey;size:32" json:"id"`
	UserID             string         `gorm:"column:user_id;size:191;not null;uniqueIndex:idx_ledger_entries_idempotency,priority:4;uniqueIndex:idx_ledger_entries_sequence,priority:1" json:"user_id"`
	Kind               EntryKind      `gorm:"column:kind;size:16;not null;uniqueIndex:idx_ledger_entries_idempotency,priority:3" json:"kind"`
	Amount             int64          `gorm:"column:amount;not null" json:"amount"`
	ReferenceKind      ReferenceKind  `gorm:"column:reference_kind;size:32;not null;uniqueIndex:idx_ledger_entries_idempotency,priority:1" json:"reference_kind"`
	ReferenceID        string         `gorm:"column:reference_id;size:191;not null;uniqueIndex:idx_ledger_entries_idempotency,priority:2" json:"reference_id"`
	CounterpartyUserID *string        `gorm:"column:counterparty_user_id;size:191" json:"counterparty_user_id"`
	Metadata           datatypes.JSON `gorm:"column:metadata" json:"metadata"`
	Sequence           int64          `gorm:"column:sequence;not null;uniqueIndex:idx_ledger_entries_sequence,priority:2" json:"sequence"`
	PreviousHash       string         `gorm:"column:previous_hash;size:64;not null" json:"previous_hash"`
	Hash               string         `gorm:"column:hash;size:64;not null" json:"hash"`
	CreatedAt          time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (m *LedgerEntry) HashFields() map[string]string {
	counterparty := ""
	if m.CounterpartyUserID != nil {
		counterparty = *m.CounterpartyUserID
	}

	return map[string]string{
		"id":                   m.ID,
		"user_id":              m.UserID,
		"kind":                 string(m.Kind),
		"amount":               fmt.Sprintf("%d", m.Amount),
		"reference_kind":       string(m.ReferenceKind),
		"reference_id":         m.ReferenceID,
		"counterparty_user_id": counterparty,
		"sequence":             fmt.Sprintf("%d", m.Sequence),
		"created_at":           m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":        m.PreviousHash,
		"metadata":             canonicalMetadata(m.Metadata),
	}
}

// canonicalMetadata re-encodes metadata with sorted keys and no whitespace so
// the hash survives databases that normalise stored JSON.
func canonicalMetadata(raw datatypes.JSON) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ""
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		// unparseable bytes still take part in the hash verbatim
		return string(raw)
	}
	if v == nil {
		return ""
	}

	b, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(b)
}

func (m *LedgerEntry) GenerateHash() string {
	fields := m.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

// BalanceSnapshot is what every ledger operation returns.
type BalanceSnapshot struct {
	UserID    string `json:"user_id"`
	Balance   int64  `json:"balance"`
	Reserved  int64  `json:"reserved"`
	Available int64  `json:"available"`
}

func snapshotOf(a *Account) BalanceSnapshot {
	return BalanceSnapshot{
		UserID:    a.UserID,
		Balance:   a.Balance,
		Reserved:  a.Reserved,
		Available: a.Available(),
	}
}

// idempotencyKey mirrors the unique index on ledger_entries.
type idempotencyKey struct {
	ReferenceKind ReferenceKind
	ReferenceID   string
	Kind          EntryKind
	UserID        string
}

// Models lists the tables owned by the ledger, for migrations.
func Models() []any {
	return []any{&Account{}, &LedgerEntry{}}
}
