package session

import (
	"context"
	"crypto/subtle"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// PasswordSetter applies a new credential at the identity backend.
type PasswordSetter interface {
	SetPassword(ctx context.Context, email, newPassword string) error
}

type FinalizeResetMessage struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
	OnResponse  func(resp *FinalizeResetResponse)
}

func (e FinalizeResetMessage) Type() string { return "session.finalize_reset" }

type FinalizeResetResponse struct {
	Success bool
}

type FinalizeResetHandler struct {
	repo      RepositoryManager
	passwords PasswordSetter
	now       func() time.Time
}

func NewFinalizeResetHandler(repo RepositoryManager, passwords PasswordSetter) *FinalizeResetHandler {
	return &FinalizeResetHandler{
		repo:      repo,
		passwords: passwords,
		now:       time.Now,
	}
}

func (h *FinalizeResetHandler) Execute(ctx context.Context, event FinalizeResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizeResetHandler) execute(ctx context.Context, event FinalizeResetMessage) error {
	resp := &FinalizeResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		latest, err := h.repo.VerificationCodes().LatestUnusedTx(ctx, tx, event.Email, PurposePasswordReset)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidCode.WithMetadata(map[string]any{
					"email": event.Email,
				})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve reset code")
		}

		if subtle.ConstantTimeCompare([]byte(latest.Code), []byte(event.Code)) != 1 {
			return ErrInvalidCode.WithMetadata(map[string]any{
				"email": event.Email,
			})
		}

		if CodeExpired(latest, h.now()) {
			return ErrCodeExpired.WithMetadata(map[string]any{
				"email":      event.Email,
				"expired_at": latest.ExpiresAt,
			})
		}

		if err := h.repo.VerificationCodes().ConsumeTx(ctx, tx, latest.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume reset code")
		}

		// retire any older outstanding reset codes once the newest succeeds
		if err := h.repo.VerificationCodes().InvalidateForEmail(ctx, tx, event.Email, PurposePasswordReset); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retire reset codes")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password reset transaction failed")
	}

	if err := h.passwords.SetPassword(ctx, event.Email, event.NewPassword); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply new password").
			WithMetadata(map[string]any{"email": event.Email})
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
