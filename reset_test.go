package session_test

import (
	"context"
	"testing"
	"time"

	session "github.com/campex/go-session"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetFlowHappyPath(t *testing.T) {
	verifier := &fakeVerifier{}
	flow := session.NewResetFlow(verifier)
	ctx := context.Background()

	assert.Equal(t, session.ResetStateRequest, flow.State())

	require.NoError(t, flow.RequestCode(ctx, "a@ves.ac.in"))
	assert.Equal(t, session.ResetStateAwaitingCode, flow.State())
	assert.Equal(t, "a@ves.ac.in", flow.Email())

	require.NoError(t, flow.SubmitCode(ctx, "654321"))
	assert.Equal(t, session.ResetStateCodeVerified, flow.State())

	require.NoError(t, flow.SubmitNewPassword(ctx, "newpass99", "newpass99"))
	assert.Equal(t, session.ResetStateDone, flow.State())
}

func TestResetFlowRequestValidation(t *testing.T) {
	flow := session.NewResetFlow(&fakeVerifier{})

	for _, email := range []string{"", "not-an-email"} {
		err := flow.RequestCode(context.Background(), email)
		assert.Error(t, err, "email %q", email)
	}
	assert.Equal(t, session.ResetStateRequest, flow.State())
}

func TestResetFlowRequestCooldown(t *testing.T) {
	clock := newFakeClock()
	verifier := &fakeVerifier{}
	flow := session.NewResetFlow(verifier, session.WithResetClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, flow.RequestCode(ctx, "a@ves.ac.in"))
	assert.Equal(t, 60*time.Second, flow.ResendAvailableIn())

	err := flow.RequestCode(ctx, "a@ves.ac.in")
	require.Error(t, err)
	assert.True(t, session.IsResendCooldown(err))

	// a different account is not throttled by the first request
	require.NoError(t, flow.RequestCode(ctx, "b@ves.ac.in"))
	assert.Equal(t, "b@ves.ac.in", flow.Email())

	clock.Advance(61 * time.Second)
	require.NoError(t, flow.RequestCode(ctx, "b@ves.ac.in"))
}

func TestResetFlowDispatchFailureKeepsState(t *testing.T) {
	verifier := &fakeVerifier{
		sendErr: goerrors.New("smtp down", goerrors.CategoryOperation),
	}
	flow := session.NewResetFlow(verifier)

	err := flow.RequestCode(context.Background(), "a@ves.ac.in")
	require.Error(t, err)
	assert.Equal(t, session.ResetStateRequest, flow.State())
}

func TestResetFlowWrongCodeKeepsState(t *testing.T) {
	verifier := &fakeVerifier{}
	flow := session.NewResetFlow(verifier)
	ctx := context.Background()

	require.NoError(t, flow.RequestCode(ctx, "a@ves.ac.in"))

	verifier.verifyErr = session.ErrInvalidCode
	err := flow.SubmitCode(ctx, "000000")
	require.Error(t, err)
	assert.True(t, session.IsInvalidCode(err))
	assert.Equal(t, session.ResetStateAwaitingCode, flow.State())

	verifier.verifyErr = nil
	require.NoError(t, flow.SubmitCode(ctx, "654321"))
	assert.Equal(t, session.ResetStateCodeVerified, flow.State())
}

func TestResetFlowMalformedCodeRejectedLocally(t *testing.T) {
	flow := session.NewResetFlow(&fakeVerifier{})
	ctx := context.Background()

	require.NoError(t, flow.RequestCode(ctx, "a@ves.ac.in"))

	err := flow.SubmitCode(ctx, "12ab56")
	require.Error(t, err)
	assert.True(t, session.IsInvalidCode(err))
	assert.Equal(t, session.ResetStateAwaitingCode, flow.State())
}

func TestResetFlowPasswordValidation(t *testing.T) {
	flow := session.NewResetFlow(&fakeVerifier{})
	ctx := context.Background()

	require.NoError(t, flow.RequestCode(ctx, "a@ves.ac.in"))
	require.NoError(t, flow.SubmitCode(ctx, "654321"))

	tests := []struct {
		name     string
		password string
		confirm  string
	}{
		{"too short", "ab1", "ab1"},
		{"no digit", "abcdefgh", "abcdefgh"},
		{"mismatch", "newpass99", "newpass98"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := flow.SubmitNewPassword(ctx, tt.password, tt.confirm)
			assert.Error(t, err)
			assert.Equal(t, session.ResetStateCodeVerified, flow.State())
		})
	}
}

func TestResetFlowBackendFailureKeepsState(t *testing.T) {
	verifier := &fakeVerifier{}
	flow := session.NewResetFlow(verifier)
	ctx := context.Background()

	require.NoError(t, flow.RequestCode(ctx, "a@ves.ac.in"))
	require.NoError(t, flow.SubmitCode(ctx, "654321"))

	verifier.resetErr = session.ErrCodeExpired
	err := flow.SubmitNewPassword(ctx, "newpass99", "newpass99")
	require.Error(t, err)
	assert.Equal(t, session.ResetStateCodeVerified, flow.State())
}

func TestResetFlowOutOfOrderOperations(t *testing.T) {
	flow := session.NewResetFlow(&fakeVerifier{})
	ctx := context.Background()

	var richErr *goerrors.Error

	err := flow.SubmitCode(ctx, "654321")
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, session.TextCodeInvalidTransition, richErr.TextCode)

	err = flow.SubmitNewPassword(ctx, "newpass99", "newpass99")
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, session.TextCodeInvalidTransition, richErr.TextCode)
}

func TestResetFlowDoneIsTerminal(t *testing.T) {
	flow := session.NewResetFlow(&fakeVerifier{})
	ctx := context.Background()

	require.NoError(t, flow.RequestCode(ctx, "a@ves.ac.in"))
	require.NoError(t, flow.SubmitCode(ctx, "654321"))
	require.NoError(t, flow.SubmitNewPassword(ctx, "newpass99", "newpass99"))

	assert.Error(t, flow.RequestCode(ctx, "a@ves.ac.in"))
	assert.Error(t, flow.SubmitCode(ctx, "654321"))
	assert.Error(t, flow.SubmitNewPassword(ctx, "newpass99", "newpass99"))
}
