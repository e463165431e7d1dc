package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/cellcore/internal/domain/shared"
	"github.com/orris-inc/cellcore/internal/domain/subscriber"
	vo "github.com/orris-inc/cellcore/internal/domain/subscriber/valueobjects"
)

func milenage(imsi, number, key string) *subscriber.Profile {
	return &subscriber.Profile{
		IMSI:      imsi,
		Algorithm: vo.AlgorithmMilenage,
		Secret:    subscriber.Secret{Key: key, OP: "11"},
		Number:    number,
		Active:    true,
	}
}

func TestReloadReconciles(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()
	table := Policy{Mode: vo.PolicyTable}

	_, err := s.Reload(ctx, []*subscriber.Profile{
		milenage("001", "1001", "k1"),
		milenage("002", "1002", "k2"),
		milenage("003", "1003", "k3"),
		milenage("004", "1004", "k4"),
	}, table)
	require.NoError(t, err)

	for _, r := range []*subscriber.Registered{
		online("001", "00000001", "1001"),
		online("002", "00000002", "1002"),
		online("003", "00000003", "1003"),
	} {
		_, err := s.Upsert(ctx, r)
		require.NoError(t, err)
	}
	offline := online("004", "00000004", "1004")
	offline.Location = ""
	_, err = s.Upsert(ctx, offline)
	require.NoError(t, err)

	deactivated := milenage("002", "1002", "k2")
	deactivated.Active = false
	report, err := s.Reload(ctx, []*subscriber.Profile{
		milenage("003", "2003", "k3"),
		deactivated,
		milenage("005", "1005", "k5"),
	}, table)
	require.NoError(t, err)

	assert.Equal(t, []string{"005"}, report.Added)
	assert.Equal(t, []string{"001", "004"}, report.Removed)
	assert.Equal(t, []string{"002"}, report.Deactivated)
	assert.Equal(t, []string{"003"}, report.Renumbered)
	assert.Equal(t, []string{"001", "002"}, report.ForcedOut)

	_, ok := s.Registered("001")
	assert.False(t, ok)
	_, ok = s.Registered("002")
	assert.False(t, ok)
	_, ok = s.Registered("004")
	assert.True(t, ok, "offline registrations are left to expire")

	r, ok := s.Registered("003")
	require.True(t, ok)
	assert.Equal(t, "2003", r.Number)
	assert.Equal(t, "00000003", r.TMSI)
}

func TestReloadKeepsSequenceWhenSecretUnchanged(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()
	table := Policy{Mode: vo.PolicyTable}

	_, err := s.Reload(ctx, []*subscriber.Profile{milenage("001", "", "k1"), milenage("002", "", "k2")}, table)
	require.NoError(t, err)
	require.NoError(t, s.SaveAuth(ctx, "001", subscriber.AuthState{Phase: vo.AuthPhaseChallenged}, "000000000040"))
	require.NoError(t, s.SaveAuth(ctx, "002", subscriber.AuthState{Phase: vo.AuthPhaseChallenged}, "000000000040"))

	_, err = s.Reload(ctx, []*subscriber.Profile{milenage("001", "", "k1"), milenage("002", "", "rotated")}, table)
	require.NoError(t, err)

	p1, _ := s.Profile("001")
	assert.Equal(t, "000000000040", p1.Sequence)
	assert.Equal(t, vo.AuthPhaseChallenged, p1.Auth.Phase)

	p2, _ := s.Profile("002")
	assert.Empty(t, p2.Sequence)
	assert.Equal(t, vo.AuthPhaseIdle, p2.Auth.Phase)
}

func TestReloadRejectsInvalidTable(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()
	_, err := s.Reload(ctx, []*subscriber.Profile{milenage("001", "", "k1")}, Policy{Mode: vo.PolicyTable})
	require.NoError(t, err)

	_, err = s.Reload(ctx, []*subscriber.Profile{milenage("002", "", "k"), milenage("002", "", "k")}, Policy{Mode: vo.PolicyTable})
	assert.Error(t, err)

	broken := milenage("003", "", "k")
	broken.Secret.OP = ""
	_, err = s.Reload(ctx, []*subscriber.Profile{broken}, Policy{Mode: vo.PolicyTable})
	assert.Error(t, err)

	_, ok := s.Profile("001")
	assert.True(t, ok, "failed reload leaves the table untouched")
}

func TestRestore(t *testing.T) {
	s, sections, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, sections.Set(ctx, shared.SectionRegistered, "001",
		`{"imsi":"001","tmsi":"00000001","number":"1001","location":"sip:001@10.0.0.1","expires":"2026-05-04T11:00:00Z"}`))
	require.NoError(t, sections.Set(ctx, shared.SectionRegistered, "002", `not json`))
	require.NoError(t, sections.Set(ctx, shared.SectionRegistered, "003", `{"number":"1003","location":"sip:x"}`))
	require.NoError(t, sections.Set(ctx, shared.SectionSequence, "001", "0000000000A0"))

	_, err := s.Reload(ctx, []*subscriber.Profile{milenage("001", "1001", "k1")}, Policy{Mode: vo.PolicyTable})
	require.NoError(t, err)
	require.NoError(t, s.Restore(ctx))

	r, ok := s.Registered("001")
	require.True(t, ok)
	assert.Equal(t, "00000001", r.TMSI)
	assert.True(t, r.Expires.Equal(testNow.Add(time.Hour)))

	_, ok = s.Registered("002")
	assert.False(t, ok)
	_, ok = s.Registered("003")
	assert.False(t, ok, "location without tmsi is invalid")

	p, _ := s.Profile("001")
	assert.Equal(t, "0000000000A0", p.Sequence)
}
