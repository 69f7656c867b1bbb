package session

import (
	"context"
	"crypto/subtle"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type VerifyCodeMessage struct {
	Email   string      `json:"email"`
	Code    string      `json:"code"`
	Purpose CodePurpose `json:"purpose"`
	// Consume marks the code used on match. Password reset checks the code
	// twice (once to unlock the form, once to apply the new password) and
	// only the second check consumes.
	Consume    bool `json:"consume"`
	OnResponse func(resp *VerifyCodeResponse)
}

func (e VerifyCodeMessage) Type() string { return "session.verify_code" }

type VerifyCodeResponse struct {
	Verified bool
	Expired  bool
}

type VerifyCodeHandler struct {
	repo RepositoryManager
	now  func() time.Time
}

func NewVerifyCodeHandler(repo RepositoryManager) *VerifyCodeHandler {
	return &VerifyCodeHandler{
		repo: repo,
		now:  time.Now,
	}
}

func (h *VerifyCodeHandler) Execute(ctx context.Context, event VerifyCodeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during code verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyCodeHandler) execute(ctx context.Context, event VerifyCodeMessage) error {
	resp := &VerifyCodeResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// only the newest outstanding code matches; older dispatches stay
		// dead even if their digits are guessed
		latest, err := h.repo.VerificationCodes().LatestUnusedTx(ctx, tx, event.Email, event.Purpose)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidCode.WithMetadata(map[string]any{
					"email": event.Email,
				})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve verification code")
		}

		if subtle.ConstantTimeCompare([]byte(latest.Code), []byte(event.Code)) != 1 {
			return ErrInvalidCode.WithMetadata(map[string]any{
				"email": event.Email,
			})
		}

		if CodeExpired(latest, h.now()) {
			resp.Expired = true
			return ErrCodeExpired.WithMetadata(map[string]any{
				"email":      event.Email,
				"expired_at": latest.ExpiresAt,
			})
		}

		if event.Consume {
			if err := h.repo.VerificationCodes().ConsumeTx(ctx, tx, latest.ID); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume verification code")
			}
		}

		resp.Verified = true
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "code verification transaction failed")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
