package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestGenerateHashCoversMetadata(t *testing.T) {
	entry := func(meta string) *LedgerEntry {
		return &LedgerEntry{
			ID:            "1",
			UserID:        "u",
			Kind:          EntryReserve,
			Amount:        40,
			ReferenceKind: RefTaskCreation,
			ReferenceID:   "task-1",
			Metadata:      datatypes.JSON(meta),
			Sequence:      2,
			PreviousHash:  GenesisHash,
			CreatedAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}
	}

	base := entry(`{"task_id":"task-1","slots":4}`).GenerateHash()
	require.Equal(t, base, entry("{ \"slots\": 4,\n \"task_id\": \"task-1\" }").GenerateHash())
	require.NotEqual(t, base, entry(`{"task_id":"task-9","slots":4}`).GenerateHash())
	require.NotEqual(t, base, entry(`{"task_id":"task-1","slots":4.0}`).GenerateHash())

	require.Equal(t, entry("").GenerateHash(), entry("null").GenerateHash())
	require.NotEqual(t, entry("").GenerateHash(), base)
}
