// Package storetest is a conformance suite shared by every store.Store driver.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/aliuyar1234/holidaytree/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run exercises newStore against the store.Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("InviteRoundTrip", func(t *testing.T) { testInviteRoundTrip(t, newStore) })
	t.Run("DuplicateInviteCode", func(t *testing.T) { testDuplicateInviteCode(t, newStore) })
	t.Run("ListInvitesNewestFirst", func(t *testing.T) { testListInvitesNewestFirst(t, newStore) })
	t.Run("CreateSubmissionConsumesUse", func(t *testing.T) { testCreateSubmissionConsumesUse(t, newStore) })
	t.Run("CreateSubmissionRejectsUnusableInvite", func(t *testing.T) { testCreateSubmissionRejectsUnusable(t, newStore) })
	t.Run("LegacyInviteSingleUse", func(t *testing.T) { testLegacyInviteSingleUse(t, newStore) })
	t.Run("ConcurrentSubmissionsRespectLimit", func(t *testing.T) { testConcurrentSubmissions(t, newStore) })
	t.Run("ListSubmissionsFilter", func(t *testing.T) { testListSubmissionsFilter(t, newStore) })
	t.Run("UpdateSubmissionPrecondition", func(t *testing.T) { testUpdateSubmissionPrecondition(t, newStore) })
	t.Run("ImageKeyInUse", func(t *testing.T) { testImageKeyInUse(t, newStore) })
	t.Run("AppendAudit", func(t *testing.T) { testAppendAudit(t, newStore) })
}

func open(t *testing.T, newStore Factory) store.Store {
	t.Helper()
	s := newStore(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// NewInvite builds an expiring invite with the given limit.
func NewInvite(code string, expiresAt time.Time, maxUses int) domain.Invite {
	return domain.Invite{
		ID:        uuid.New(),
		Code:      code,
		ExpiresAt: &expiresAt,
		MaxUses:   &maxUses,
	}
}

// NewSubmission builds a submission for inviteID with a unique image key.
func NewSubmission(inviteID uuid.UUID, name string) domain.Submission {
	id := uuid.New()
	key := fmt.Sprintf("submissions/%s.jpg", id)
	return domain.Submission{
		ID:       id,
		InviteID: inviteID,
		Name:     name,
		Phone:    "+43 660 1234567",
		ImageKey: key,
		ImageURL: "/media/" + key,
	}
}

func use(name string) store.InviteUse {
	return store.InviteUse{Name: name, Phone: "+43 660 1234567", At: time.Now()}
}

func testInviteRoundTrip(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	inv := NewInvite("ABC234", time.Now().Add(24*time.Hour).Truncate(time.Millisecond), 3)
	created, err := s.CreateInvite(ctx, inv)
	require.NoError(t, err)
	require.Equal(t, inv.ID, created.ID)
	require.Equal(t, "ABC234", created.Code)
	require.False(t, created.CreatedAt.IsZero())
	require.NotNil(t, created.ExpiresAt)
	require.True(t, inv.ExpiresAt.Equal(*created.ExpiresAt))
	require.Equal(t, 3, *created.MaxUses)
	require.Equal(t, 0, created.UseCount)
	require.Nil(t, created.UsedAt)

	byID, err := s.GetInvite(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, created.Code, byID.Code)

	byCode, err := s.GetInviteByCode(ctx, "ABC234")
	require.NoError(t, err)
	require.Equal(t, inv.ID, byCode.ID)

	_, err = s.GetInviteByCode(ctx, "ZZZZZZ")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetInvite(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testDuplicateInviteCode(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	expires := time.Now().Add(time.Hour)
	_, err := s.CreateInvite(ctx, NewInvite("DUPE22", expires, 3))
	require.NoError(t, err)

	_, err = s.CreateInvite(ctx, NewInvite("DUPE22", expires, 3))
	require.ErrorIs(t, err, store.ErrConflict)
}

func testListInvitesNewestFirst(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	expires := time.Now().Add(time.Hour)
	for _, code := range []string{"AAAAA2", "BBBBB2", "CCCCC2"} {
		_, err := s.CreateInvite(ctx, NewInvite(code, expires, 3))
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	invites, err := s.ListInvites(ctx)
	require.NoError(t, err)
	require.Len(t, invites, 3)
	require.Equal(t, "CCCCC2", invites[0].Code)
	require.Equal(t, "AAAAA2", invites[2].Code)
}

func testCreateSubmissionConsumesUse(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	inv, err := s.CreateInvite(ctx, NewInvite("USE234", time.Now().Add(time.Hour), 3))
	require.NoError(t, err)

	sub := NewSubmission(inv.ID, "Anna")
	created, updated, err := s.CreateSubmission(ctx, sub, use("Anna"))
	require.NoError(t, err)

	require.Equal(t, sub.ID, created.ID)
	require.Equal(t, domain.StatusPending, created.Status)
	require.Equal(t, domain.PositionAuto, created.Position)
	require.Nil(t, created.ReviewedAt)
	require.False(t, created.CreatedAt.IsZero())
	require.Equal(t, sub.ImageKey, created.ImageKey)

	require.Equal(t, 1, updated.UseCount)
	require.NotNil(t, updated.UsedBy)
	require.Equal(t, "Anna", *updated.UsedBy)
	require.NotNil(t, updated.UsedByPhone)
	require.NotNil(t, updated.LastUsedAt)
	require.Nil(t, updated.UsedAt)
	require.Equal(t, 2, updated.RemainingUses())
}

func testCreateSubmissionRejectsUnusable(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	expired, err := s.CreateInvite(ctx, NewInvite("OLD234", time.Now().Add(-time.Hour), 3))
	require.NoError(t, err)
	_, _, err = s.CreateSubmission(ctx, NewSubmission(expired.ID, "Late"), use("Late"))
	require.ErrorIs(t, err, domain.ErrInviteExpired)

	one, err := s.CreateInvite(ctx, NewInvite("ONE234", time.Now().Add(time.Hour), 1))
	require.NoError(t, err)
	_, _, err = s.CreateSubmission(ctx, NewSubmission(one.ID, "First"), use("First"))
	require.NoError(t, err)
	_, _, err = s.CreateSubmission(ctx, NewSubmission(one.ID, "Second"), use("Second"))
	require.ErrorIs(t, err, domain.ErrInviteExhausted)

	subs, err := s.ListSubmissions(ctx, store.SubmissionFilter{})
	require.NoError(t, err)
	require.Len(t, subs, 1)

	_, _, err = s.CreateSubmission(ctx, NewSubmission(uuid.New(), "Ghost"), use("Ghost"))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testLegacyInviteSingleUse(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	legacy, err := s.CreateInvite(ctx, domain.Invite{ID: uuid.New(), Code: "LEG234"})
	require.NoError(t, err)
	require.True(t, legacy.IsLegacy())
	require.Nil(t, legacy.MaxUses)

	_, updated, err := s.CreateSubmission(ctx, NewSubmission(legacy.ID, "Once"), use("Once"))
	require.NoError(t, err)
	require.NotNil(t, updated.UsedAt)
	require.Equal(t, 0, updated.RemainingUses())

	_, _, err = s.CreateSubmission(ctx, NewSubmission(legacy.ID, "Twice"), use("Twice"))
	require.ErrorIs(t, err, domain.ErrInviteAlreadyUsed)
}

func testConcurrentSubmissions(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	const limit = 3
	const attempts = 8

	inv, err := s.CreateInvite(ctx, NewInvite("RACE23", time.Now().Add(time.Hour), limit))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exhausted int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("racer-%d", i)
			_, _, err := s.CreateSubmission(ctx, NewSubmission(inv.ID, name), use(name))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInviteExhausted):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, limit, succeeded)
	require.Equal(t, attempts-limit, exhausted)

	final, err := s.GetInvite(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, limit, final.UseCount)
}

func testListSubmissionsFilter(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	inv, err := s.CreateInvite(ctx, NewInvite("LIST23", time.Now().Add(time.Hour), 10))
	require.NoError(t, err)

	var ids []uuid.UUID
	for _, name := range []string{"one", "two", "three"} {
		created, _, err := s.CreateSubmission(ctx, NewSubmission(inv.ID, name), use(name))
		require.NoError(t, err)
		ids = append(ids, created.ID)
		time.Sleep(2 * time.Millisecond)
	}

	_, err = s.UpdateSubmission(ctx, ids[1], store.SubmissionUpdate{
		From:          []domain.Status{domain.StatusPending},
		Status:        domain.StatusApproved,
		SetReviewedAt: true,
		At:            time.Now(),
	})
	require.NoError(t, err)

	all, err := s.ListSubmissions(ctx, store.SubmissionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "three", all[0].Name)

	pending, err := s.ListSubmissions(ctx, store.SubmissionFilter{Status: domain.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 2)

	approved, err := s.ListSubmissions(ctx, store.SubmissionFilter{Status: domain.StatusApproved})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	require.Equal(t, ids[1], approved[0].ID)
	require.NotNil(t, approved[0].ReviewedAt)

	rejected, err := s.ListSubmissions(ctx, store.SubmissionFilter{Status: domain.StatusRejected})
	require.NoError(t, err)
	require.Empty(t, rejected)
}

func testUpdateSubmissionPrecondition(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	inv, err := s.CreateInvite(ctx, NewInvite("UPD234", time.Now().Add(time.Hour), 3))
	require.NoError(t, err)
	sub, _, err := s.CreateSubmission(ctx, NewSubmission(inv.ID, "Mod"), use("Mod"))
	require.NoError(t, err)

	reviewedAt := time.Now().Truncate(time.Millisecond)
	approved, err := s.UpdateSubmission(ctx, sub.ID, store.SubmissionUpdate{
		From:          []domain.Status{domain.StatusPending},
		Status:        domain.StatusApproved,
		Position:      domain.PositionStar,
		SetReviewedAt: true,
		At:            reviewedAt,
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusApproved, approved.Status)
	require.Equal(t, domain.PositionStar, approved.Position)
	require.NotNil(t, approved.ReviewedAt)
	require.True(t, reviewedAt.Equal(*approved.ReviewedAt))

	// Not pending anymore.
	_, err = s.UpdateSubmission(ctx, sub.ID, store.SubmissionUpdate{
		From:          []domain.Status{domain.StatusPending},
		Status:        domain.StatusRejected,
		SetReviewedAt: true,
		At:            time.Now(),
	})
	require.ErrorIs(t, err, store.ErrConflict)

	// Position change keeps reviewed_at.
	moved, err := s.UpdateSubmission(ctx, sub.ID, store.SubmissionUpdate{
		From:     []domain.Status{domain.StatusApproved},
		Status:   domain.StatusApproved,
		Position: "7",
		At:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, domain.Position("7"), moved.Position)
	require.True(t, reviewedAt.Equal(*moved.ReviewedAt))

	_, err = s.UpdateSubmission(ctx, uuid.New(), store.SubmissionUpdate{
		From:   []domain.Status{domain.StatusPending},
		Status: domain.StatusApproved,
		At:     time.Now(),
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testImageKeyInUse(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	inv, err := s.CreateInvite(ctx, NewInvite("KEY234", time.Now().Add(time.Hour), 3))
	require.NoError(t, err)
	sub := NewSubmission(inv.ID, "Keyed")
	_, _, err = s.CreateSubmission(ctx, sub, use("Keyed"))
	require.NoError(t, err)

	inUse, err := s.ImageKeyInUse(ctx, sub.ImageKey)
	require.NoError(t, err)
	require.True(t, inUse)

	inUse, err = s.ImageKeyInUse(ctx, "submissions/orphan.jpg")
	require.NoError(t, err)
	require.False(t, inUse)
}

func testAppendAudit(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	require.NoError(t, s.AppendAudit(ctx, domain.AuditEvent{
		ID:        uuid.New(),
		Action:    "invite.created",
		SubjectID: uuid.New(),
		Meta:      map[string]any{"code": "ABC234"},
	}))
	require.NoError(t, s.AppendAudit(ctx, domain.AuditEvent{ID: uuid.New(), Action: "admin.login"}))
}
