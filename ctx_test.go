package session_test

import (
	"context"
	"testing"

	session "github.com/campex/go-session"
	"github.com/stretchr/testify/assert"
)

func TestIdentityContextRoundTrip(t *testing.T) {
	id := fakeIdentity{id: "u1", email: "a@ves.ac.in", emailVerified: true}
	ctx := session.WithIdentity(context.Background(), id)

	got, ok := session.IdentityFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", got.ID())
	assert.Equal(t, "a@ves.ac.in", got.Email())
}

func TestIdentityFromContextMissing(t *testing.T) {
	got, ok := session.IdentityFromContext(context.Background())
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestSnapshotContextRoundTrip(t *testing.T) {
	snap := session.Snapshot{
		Identity: fakeIdentity{id: "u1", email: "a@ves.ac.in", emailVerified: true},
		Profile:  &session.Profile{FullName: "Asha Bhat", AcademicYear: session.YearSE},
	}
	ctx := session.WithSnapshot(context.Background(), snap)

	got, ok := session.SnapshotFromContext(ctx)
	assert.True(t, ok)
	assert.True(t, got.ProfileComplete())
}

func TestSnapshotFromContextMissing(t *testing.T) {
	_, ok := session.SnapshotFromContext(context.Background())
	assert.False(t, ok)
}

func TestSnapshotFromRouter(t *testing.T) {
	snap := session.Snapshot{
		Identity: fakeIdentity{id: "u1", email: "a@ves.ac.in", emailVerified: true},
	}

	ctx := new(MockContext)
	ctx.On("Locals", session.SnapshotLocalsKey).Return(snap)

	got, ok := session.SnapshotFromRouter(ctx, "")
	assert.True(t, ok)
	assert.True(t, got.Authenticated())
	ctx.AssertExpectations(t)
}

func TestSnapshotFromRouterMissing(t *testing.T) {
	ctx := new(MockContext)
	ctx.On("Locals", "other").Return(nil)

	_, ok := session.SnapshotFromRouter(ctx, "other")
	assert.False(t, ok)
	ctx.AssertExpectations(t)
}
