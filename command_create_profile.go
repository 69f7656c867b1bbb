package session

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type CreateProfileMessage struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Payload       ProfileSetupPayload
	UseHashid     bool
	OnResponse    func(resp *CreateProfileResponse)
}

func (e CreateProfileMessage) Type() string { return "session.create_profile" }

type CreateProfileResponse struct {
	Profile *Profile
	Success bool
}

type CreateProfileHandler struct {
	repo RepositoryManager
}

func NewCreateProfileHandler(repo RepositoryManager) *CreateProfileHandler {
	return &CreateProfileHandler{repo: repo}
}

func (h *CreateProfileHandler) Execute(ctx context.Context, event CreateProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile creation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *CreateProfileHandler) execute(ctx context.Context, event CreateProfileMessage) error {
	resp := &CreateProfileResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Payload.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid profile payload").
			WithCode(goerrors.CodeBadRequest)
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if existing, err := h.repo.Profiles().GetByUIDTx(ctx, tx, event.UID); err == nil && existing != nil {
			return goerrors.New("profile already exists", goerrors.CategoryConflict).
				WithCode(goerrors.CodeConflict).
				WithMetadata(map[string]any{"uid": event.UID})
		} else if err != nil && !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check existing profile")
		}

		profile := &Profile{
			UID:             event.UID,
			Email:           event.Email,
			FullName:        event.Payload.FullName,
			AcademicYear:    event.Payload.AcademicYear,
			PhoneNumber:     event.Payload.PhoneNumber,
			ProfilePhotoURL: event.Payload.ProfilePhotoURL,
			EmailValidated:  event.EmailVerified,
		}

		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				profile.ID = id
			}
		}
		if profile.ID == uuid.Nil {
			profile.ID = uuid.New()
		}

		created, err := h.repo.Profiles().CreateTx(ctx, tx, profile)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create profile")
		}

		resp.Profile = created
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "profile creation transaction failed")
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
