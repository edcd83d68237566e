package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	wrapped := WrapString(strings.Repeat("word ", 30))
	for _, line := range strings.Split(wrapped, "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2"}, SplitList(" a:1, ,b:2,"))
	assert.Empty(t, SplitList(""))
}

func TestParseMembers(t *testing.T) {
	t.Run("names and numeric ids", func(t *testing.T) {
		members, err := ParseMembers("node-1=localhost:63001, 7=localhost:63007")
		require.NoError(t, err)
		assert.Equal(t, map[uint64]string{
			ReplicaID("node-1"): "localhost:63001",
			7:                   "localhost:63007",
		}, members)
	})

	t.Run("empty list", func(t *testing.T) {
		members, err := ParseMembers("")
		require.NoError(t, err)
		assert.Empty(t, members)
	})

	for _, in := range []string{"node-1", "node-1=", "=localhost:1", "a=x,a=y"} {
		t.Run("invalid "+in, func(t *testing.T) {
			_, err := ParseMembers(in)
			assert.Error(t, err)
		})
	}
}

func TestReplicaID(t *testing.T) {
	assert.Equal(t, uint64(3), ReplicaID("3"))
	assert.Equal(t, ReplicaID("node-1"), ReplicaID("node-1"))
	assert.NotEqual(t, ReplicaID("node-1"), ReplicaID("node-2"))
	assert.NotEqual(t, uint64(0), ReplicaID("0"))
}
