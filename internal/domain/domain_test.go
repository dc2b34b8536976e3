package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInvite_CheckUsable(t *testing.T) {
	now := time.Date(2026, 12, 20, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)
	three := 3
	zero := 0

	tests := []struct {
		name      string
		inv       Invite
		wantErr   error
		remaining int
	}{
		{name: "fresh", inv: Invite{ExpiresAt: &future, MaxUses: &three}, remaining: 3},
		{name: "partly used", inv: Invite{ExpiresAt: &future, MaxUses: &three, UseCount: 2}, remaining: 1},
		{name: "default max uses", inv: Invite{ExpiresAt: &future, MaxUses: &zero, UseCount: 1}, remaining: 2},
		{name: "exhausted", inv: Invite{ExpiresAt: &future, MaxUses: &three, UseCount: 3}, wantErr: ErrInviteExhausted},
		{name: "over used", inv: Invite{ExpiresAt: &future, MaxUses: &three, UseCount: 5}, wantErr: ErrInviteExhausted},
		{name: "expired", inv: Invite{ExpiresAt: &past, MaxUses: &three, UseCount: 1}, wantErr: ErrInviteExpired, remaining: 2},
		{name: "expired and exhausted", inv: Invite{ExpiresAt: &past, MaxUses: &three, UseCount: 3}, wantErr: ErrInviteExhausted},
		{name: "expires exactly now", inv: Invite{ExpiresAt: &now, MaxUses: &three}, remaining: 3},
		{name: "legacy unused", inv: Invite{}, remaining: 1},
		{name: "legacy used", inv: Invite{UsedAt: &past}, wantErr: ErrInviteAlreadyUsed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.inv.CheckUsable(now)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.remaining, tt.inv.RemainingUses())
		})
	}
}

func TestStatus_Transitions(t *testing.T) {
	all := []Status{StatusPending, StatusApproved, StatusRejected}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusApproved}:  true,
		{StatusPending, StatusRejected}:  true,
		{StatusApproved, StatusRejected}: true,
	}

	for _, from := range all {
		for _, to := range all {
			require.Equal(t, allowed[[2]Status{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	require.False(t, Status("archived").IsValid())
}

func TestParsePosition(t *testing.T) {
	for _, in := range []string{"", "auto"} {
		p, err := ParsePosition(in)
		require.NoError(t, err)
		require.Equal(t, PositionAuto, p)
	}
	for _, p := range Positions() {
		got, err := ParsePosition(string(p))
		require.NoError(t, err)
		require.Equal(t, p, got)
	}
	for _, in := range []string{"0", "14", "01", "-1", "Star", "top"} {
		_, err := ParsePosition(in)
		require.ErrorIs(t, err, ErrInvalidPosition, in)
	}
}

func TestPosition_Label(t *testing.T) {
	require.Equal(t, "Auto", PositionAuto.Label())
	require.Equal(t, "Star", PositionStar.Label())
	require.Equal(t, "Ornament 1 (Top)", Position("1").Label())
	require.Equal(t, "Ornament 13", Position("13").Label())
	require.Len(t, Positions(), OrnamentSlots+1)
}
