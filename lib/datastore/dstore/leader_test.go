package dstore

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/dTX/lib/tx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedLeader struct {
	id  uint64
	ok  bool
	err error
}

func (l fixedLeader) Leader() (uint64, bool, error) {
	return l.id, l.ok, l.err
}

func TestLeaderResolver(t *testing.T) {
	endpoints := map[uint64]string{1: "node-1:8080", 2: "node-2:8080"}

	tests := []struct {
		name     string
		leader   fixedLeader
		endpoint string
		severity tx.ErrorSeverity
		wantErr  bool
	}{
		{name: "known leader", leader: fixedLeader{id: 2, ok: true}, endpoint: "node-2:8080"},
		{name: "no leader", leader: fixedLeader{}, wantErr: true, severity: tx.SeverityWarning},
		{name: "leader without endpoint", leader: fixedLeader{id: 3, ok: true}, wantErr: true, severity: tx.SeverityError},
		{name: "lookup error", leader: fixedLeader{err: errors.New("shard not found")}, wantErr: true, severity: tx.SeverityError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			endpoint, err := NewLeaderResolver(tc.leader, endpoints).Endpoint()
			if !tc.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tc.endpoint, endpoint)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.severity, tx.ToDocumented(err).Severity)
		})
	}
}
