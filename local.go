package session

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// EmailVerifiedMarker flips the verified flag at the identity backend after
// a successful email verification.
type EmailVerifiedMarker interface {
	MarkEmailVerified(ctx context.Context, email string) error
}

// LocalVerifier implements CodeVerifier on top of the command handlers and
// a bun backed store. It serves self hosted deployments and integration
// tests; hosted deployments use the API client instead.
type LocalVerifier struct {
	send     *SendCodeHandler
	verify   *VerifyCodeHandler
	finalize *FinalizeResetHandler
	marker   EmailVerifiedMarker
	logger   Logger
}

// NewLocalVerifier wires the code handlers over a shared repository manager.
// marker may be nil when the identity backend tracks verification itself.
func NewLocalVerifier(repo RepositoryManager, mailer EmailSender, passwords PasswordSetter, marker EmailVerifiedMarker) *LocalVerifier {
	return &LocalVerifier{
		send:     NewSendCodeHandler(repo, mailer),
		verify:   NewVerifyCodeHandler(repo),
		finalize: NewFinalizeResetHandler(repo, passwords),
		marker:   marker,
		logger:   defLogger{},
	}
}

func (v *LocalVerifier) SendVerificationCode(ctx context.Context, email string) error {
	return v.send.Execute(ctx, SendCodeMessage{
		Email:   email,
		Purpose: PurposeEmailVerification,
	})
}

func (v *LocalVerifier) VerifyCode(ctx context.Context, email, code string) error {
	err := v.verify.Execute(ctx, VerifyCodeMessage{
		Email:   email,
		Code:    code,
		Purpose: PurposeEmailVerification,
		Consume: true,
	})
	if err != nil {
		return err
	}

	if v.marker != nil {
		if err := v.marker.MarkEmailVerified(ctx, email); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark email verified").
				WithMetadata(map[string]any{"email": email})
		}
	}

	return nil
}

func (v *LocalVerifier) SendPasswordResetCode(ctx context.Context, email string) error {
	return v.send.Execute(ctx, SendCodeMessage{
		Email:   email,
		Purpose: PurposePasswordReset,
	})
}

func (v *LocalVerifier) VerifyResetCode(ctx context.Context, email, code string) error {
	return v.verify.Execute(ctx, VerifyCodeMessage{
		Email:   email,
		Code:    code,
		Purpose: PurposePasswordReset,
		Consume: false,
	})
}

func (v *LocalVerifier) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	return v.finalize.Execute(ctx, FinalizeResetMessage{
		Email:       email,
		Code:        code,
		NewPassword: newPassword,
	})
}

var _ CodeVerifier = (*LocalVerifier)(nil)

// LocalProfileStore implements ProfileStore over the bun repositories,
// scoped to the identity returned by current.
type LocalProfileStore struct {
	repo    RepositoryManager
	create  *CreateProfileHandler
	current func() Identity
	logger  Logger
}

func NewLocalProfileStore(repo RepositoryManager, current func() Identity) *LocalProfileStore {
	return &LocalProfileStore{
		repo:    repo,
		create:  NewCreateProfileHandler(repo),
		current: current,
		logger:  defLogger{},
	}
}

var _ ProfileStore = (*LocalProfileStore)(nil)

func (s *LocalProfileStore) identity() (Identity, error) {
	ident := s.current()
	if ident == nil {
		return nil, ErrIdentityNotFound
	}
	return ident, nil
}

func (s *LocalProfileStore) FetchMine(ctx context.Context) (*Profile, error) {
	ident, err := s.identity()
	if err != nil {
		return nil, err
	}

	profile, err := s.repo.Profiles().GetByUID(ctx, ident.ID())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// expected before onboarding completes, not an application error
			return nil, ErrProfileNotFound.WithMetadata(map[string]any{
				"uid": ident.ID(),
			})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to fetch profile").
			WithTextCode(TextCodeProfileFetch)
	}

	return profile, nil
}

func (s *LocalProfileStore) CreateProfile(ctx context.Context, payload ProfileSetupPayload) (*Profile, error) {
	ident, err := s.identity()
	if err != nil {
		return nil, err
	}

	var created *Profile
	err = s.create.Execute(ctx, CreateProfileMessage{
		UID:           ident.ID(),
		Email:         ident.Email(),
		EmailVerified: ident.EmailVerified(),
		Payload:       payload,
		UseHashid:     true,
		OnResponse: func(resp *CreateProfileResponse) {
			created = resp.Profile
		},
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (s *LocalProfileStore) UpdateProfile(ctx context.Context, payload UpdateProfilePayload) (*Profile, error) {
	ident, err := s.identity()
	if err != nil {
		return nil, err
	}

	if err := payload.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid profile update").
			WithCode(goerrors.CodeBadRequest)
	}

	var updated *Profile
	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := s.repo.Profiles().GetByUIDTx(ctx, tx, ident.ID())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrProfileNotFound.WithMetadata(map[string]any{
					"uid": ident.ID(),
				})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load profile for update")
		}

		if payload.FullName != nil {
			record.FullName = *payload.FullName
		}
		if payload.AcademicYear != nil {
			record.AcademicYear = *payload.AcademicYear
		}
		if payload.PhoneNumber != nil {
			record.PhoneNumber = *payload.PhoneNumber
		}
		if payload.ProfilePhotoURL != nil {
			record.ProfilePhotoURL = *payload.ProfilePhotoURL
		}

		updated, err = s.repo.Profiles().UpdateTx(ctx, tx, record, repository.UpdateByID(record.ID.String()))
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update profile").
				WithTextCode(TextCodeProfileUpdate)
		}

		return nil
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "profile update transaction failed")
	}

	return updated, nil
}

func (s *LocalProfileStore) DeleteProfile(ctx context.Context) error {
	ident, err := s.identity()
	if err != nil {
		return err
	}

	if err := s.repo.Profiles().DeleteByUID(ctx, ident.ID()); err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrProfileNotFound.WithMetadata(map[string]any{
				"uid": ident.ID(),
			})
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete profile")
	}

	return nil
}
