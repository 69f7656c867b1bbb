package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AcademicYear is the student's year of study
type AcademicYear = string

const (
	// YearFE is first year engineering
	YearFE AcademicYear = "FE"
	// YearSE is second year engineering
	YearSE AcademicYear = "SE"
	// YearTE is third year engineering
	YearTE AcademicYear = "TE"
	// YearBE is final year engineering
	YearBE AcademicYear = "BE"
)

// AcademicYears lists the accepted values in display order.
var AcademicYears = []AcademicYear{YearFE, YearSE, YearTE, YearBE}

// Profile is the application user record, distinct from the identity
// provider's account. FullName and AcademicYear define profile completeness.
type Profile struct {
	bun.BaseModel   `bun:"table:profiles,alias:prf"`
	ID              uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UID             string     `bun:"uid,unique" json:"uid,omitempty"`
	Email           string     `bun:"email,notnull,unique" json:"email,omitempty"`
	FullName        string     `bun:"full_name" json:"full_name,omitempty"`
	AcademicYear    string     `bun:"academic_year" json:"academic_year,omitempty"`
	PhoneNumber     string     `bun:"phone_number" json:"phone_number,omitempty"`
	ProfilePhotoURL string     `bun:"profile_photo_url" json:"profile_photo_url,omitempty"`
	EmailValidated  bool       `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	CreatedAt       *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt       *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt       *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// CodePurpose distinguishes the two one-time-code flows
type CodePurpose = string

const (
	// PurposeEmailVerification codes confirm a signup email
	PurposeEmailVerification CodePurpose = "email_verification"
	// PurposePasswordReset codes authorize a password change
	PurposePasswordReset CodePurpose = "password_reset"
)

const (
	// CodeLength is the fixed number of digits in a one-time code
	CodeLength = 6
	// VerificationCodeTTL is how long an email verification code stays valid
	VerificationCodeTTL = 5 * time.Minute
	// PasswordResetCodeTTL is how long a password reset code stays valid
	PasswordResetCodeTTL = 10 * time.Minute
	// DefaultResendCooldown throttles client-side resend requests
	DefaultResendCooldown = 60 * time.Second
)

// VerificationCode is a single-use, expiring one-time code record.
type VerificationCode struct {
	bun.BaseModel `bun:"table:verification_codes,alias:vcode"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	Code          string     `bun:"code,notnull" json:"code,omitempty"`
	Purpose       string     `bun:"purpose,notnull" json:"purpose,omitempty"`
	Used          bool       `bun:"is_used" json:"is_used,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// codeTTL returns the validity window for a purpose.
func codeTTL(purpose CodePurpose) time.Duration {
	if purpose == PurposePasswordReset {
		return PasswordResetCodeTTL
	}
	return VerificationCodeTTL
}
