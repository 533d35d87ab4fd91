package gen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"smallbiznis-picks/pkg/config"
)

func TestNewNode(t *testing.T) {
	node, err := NewNode(&config.Config{NodeID: 7})
	require.NoError(t, err)
	require.Equal(t, int64(7), node.Generate().Node())

	_, err = NewNode(&config.Config{NodeID: 5000})
	require.Error(t, err)
}
