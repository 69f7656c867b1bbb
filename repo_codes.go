package session

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var consumeCodeSQL = `UPDATE "verification_codes" AS "vcode"
SET
	"is_used" = TRUE,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"vcode"."id" = ?
AND "vcode"."is_used" = FALSE
RETURNING *;`

type VerificationCodes interface {
	repository.Repository[*VerificationCode]

	LatestUnused(ctx context.Context, email string, purpose CodePurpose) (*VerificationCode, error)
	LatestUnusedTx(ctx context.Context, tx bun.IDB, email string, purpose CodePurpose) (*VerificationCode, error)
	Consume(ctx context.Context, id uuid.UUID) error
	ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	InvalidateForEmail(ctx context.Context, tx bun.IDB, email string, purpose CodePurpose) error
}

type codes struct {
	repository.Repository[*VerificationCode]
	db *bun.DB
}

var _ VerificationCodes = (*codes)(nil)

func NewVerificationCodesRepository(db *bun.DB) VerificationCodes {
	repo := repository.NewRepository[*VerificationCode](db, repository.ModelHandlers[*VerificationCode]{
		NewRecord: func() *VerificationCode { return &VerificationCode{} },
		GetID: func(c *VerificationCode) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *VerificationCode, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &codes{
		Repository: repo,
		db:         db,
	}
}

func (a *codes) LatestUnused(ctx context.Context, email string, purpose CodePurpose) (*VerificationCode, error) {
	return a.LatestUnusedTx(ctx, a.db, email, purpose)
}

// LatestUnusedTx returns the newest unconsumed code for the email and
// purpose. Expiry is not filtered here so callers can distinguish a wrong
// code from an expired one.
func (a *codes) LatestUnusedTx(ctx context.Context, tx bun.IDB, email string, purpose CodePurpose) (*VerificationCode, error) {
	record := &VerificationCode{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", email).
		Where("?TableAlias.purpose = ?", purpose).
		Where("?TableAlias.is_used = ?", false).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email":   email,
					"purpose": purpose,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *codes) Consume(ctx context.Context, id uuid.UUID) error {
	return a.ConsumeTx(ctx, a.db, id)
}

// ConsumeTx marks a code used. The is_used predicate makes consumption
// single shot even under concurrent submissions.
func (a *codes) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := a.Repository.RawTx(ctx, tx, consumeCodeSQL, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

// InvalidateForEmail retires all outstanding codes for an email and purpose,
// run before issuing a fresh code so only the newest dispatch verifies.
func (a *codes) InvalidateForEmail(ctx context.Context, tx bun.IDB, email string, purpose CodePurpose) error {
	_, err := tx.NewRaw(`
		UPDATE "verification_codes" AS "vcode"
		SET
			"is_used" = TRUE,
			"updated_at" = CURRENT_TIMESTAMP
		WHERE
			"vcode"."email" = ?
			AND "vcode"."purpose" = ?
			AND "vcode"."is_used" = FALSE;
	`, email, purpose).Exec(ctx)

	return err
}
