package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SendCodeMessage struct {
	Email      string      `json:"email"`
	Purpose    CodePurpose `json:"purpose"`
	OnResponse func(resp *SendCodeResponse)
}

func (e SendCodeMessage) Type() string { return "session.send_code" }

type SendCodeResponse struct {
	Code    *VerificationCode
	RetryIn time.Duration
	Success bool
}

type SendCodeHandler struct {
	repo     RepositoryManager
	mailer   EmailSender
	now      func() time.Time
	cooldown time.Duration
}

func NewSendCodeHandler(repo RepositoryManager, mailer EmailSender) *SendCodeHandler {
	return &SendCodeHandler{
		repo:     repo,
		mailer:   mailer,
		now:      time.Now,
		cooldown: DefaultResendCooldown,
	}
}

func (h *SendCodeHandler) Execute(ctx context.Context, event SendCodeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during code dispatch",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SendCodeHandler) execute(ctx context.Context, event SendCodeMessage) error {
	resp := &SendCodeResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Purpose != PurposeEmailVerification && event.Purpose != PurposePasswordReset {
		return goerrors.New("unknown code purpose", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"purpose": event.Purpose})
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		latest, err := h.repo.VerificationCodes().LatestUnusedTx(ctx, tx, event.Email, event.Purpose)
		if err != nil && !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check outstanding codes")
		}

		now := h.now()
		if WithinResendWindow(latest, now, h.cooldown) {
			resp.RetryIn = h.cooldown - now.Sub(*latest.CreatedAt)
			return ErrResendCooldown.WithMetadata(map[string]any{
				"retry_in_seconds": int(resp.RetryIn.Seconds()),
			})
		}

		code, err := generateCode()
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate code")
		}

		record := &VerificationCode{
			ID:        uuid.New(),
			Email:     event.Email,
			Code:      code,
			Purpose:   event.Purpose,
			ExpiresAt: now.Add(codeTTL(event.Purpose)),
		}

		if record, err = h.repo.VerificationCodes().CreateTx(ctx, tx, record); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not persist verification code")
		}

		resp.Code = record
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "code dispatch transaction failed")
	}

	if h.mailer != nil {
		subject := "Your verification code"
		if event.Purpose == PurposePasswordReset {
			subject = "Your password reset code"
		}
		body := fmt.Sprintf("Your code is %s. It expires in %d minutes.",
			resp.Code.Code,
			int(codeTTL(event.Purpose).Minutes()),
		)
		if err := h.mailer.Send(ctx, event.Email, subject, body); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send code email").
				WithMetadata(map[string]any{"email": event.Email})
		}
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// generateCode returns a uniformly random 6 digit code, zero padded.
func generateCode() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
