package session

import (
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

const (
	// DefaultCollegeDomain is the email domain accepted at signup.
	DefaultCollegeDomain = "ves.ac.in"
	// PasswordMinLength is the minimum accepted password length.
	PasswordMinLength = 8
)

var (
	hasDigit = regexp.MustCompile(`[0-9]`)
	sixDigit = regexp.MustCompile(`^[0-9]{6}$`)
)

// SignupPayload carries signup form fields.
type SignupPayload struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate checks the payload against the accepted college domain and the
// configured minimum password length. The domain check runs client side so
// users learn before an identity exists.
func (p SignupPayload) Validate(domain string, minLength int) error {
	if domain == "" {
		domain = DefaultCollegeDomain
	}
	if minLength <= 0 {
		minLength = PasswordMinLength
	}

	return validation.ValidateStruct(&p,
		validation.Field(&p.Email,
			validation.Required,
			is.Email,
			validation.By(emailDomainRule(domain)),
		),
		validation.Field(&p.Password,
			validation.Required,
			validation.Length(minLength, 0),
			validation.Match(hasDigit).Error("must contain at least one number"),
		),
		validation.Field(&p.ConfirmPassword,
			validation.Required,
			validation.By(func(value any) error {
				if s, _ := value.(string); s != p.Password {
					return fmt.Errorf("passwords do not match")
				}
				return nil
			}),
		),
	)
}

func emailDomainRule(domain string) validation.RuleFunc {
	suffix := "@" + domain
	return func(value any) error {
		email, _ := value.(string)
		if !strings.HasSuffix(strings.ToLower(email), suffix) {
			return fmt.Errorf("must be a %s address", suffix)
		}
		return nil
	}
}

// LoginPayload carries login form fields.
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (p LoginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Password, validation.Required),
	)
}

// CodePayload carries a one-time code submission.
type CodePayload struct {
	Code string `json:"code"`
}

func (p CodePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Code,
			validation.Required,
			validation.Match(sixDigit).Error("must be a 6 digit code"),
		),
	)
}

// ProfileSetupPayload carries the profile creation form.
type ProfileSetupPayload struct {
	FullName        string `json:"full_name"`
	AcademicYear    string `json:"academic_year"`
	PhoneNumber     string `json:"phone_number,omitempty"`
	ProfilePhotoURL string `json:"profile_photo_url,omitempty"`
}

func (p ProfileSetupPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.FullName, validation.Required, validation.Length(1, 120)),
		validation.Field(&p.AcademicYear,
			validation.Required,
			validation.In(YearFE, YearSE, YearTE, YearBE),
		),
		validation.Field(&p.PhoneNumber, validation.By(optionalPhoneRule)),
		validation.Field(&p.ProfilePhotoURL, is.URL),
	)
}

// UpdateProfilePayload carries a partial profile update. Nil fields are
// left untouched.
type UpdateProfilePayload struct {
	FullName        *string `json:"full_name,omitempty"`
	AcademicYear    *string `json:"academic_year,omitempty"`
	PhoneNumber     *string `json:"phone_number,omitempty"`
	ProfilePhotoURL *string `json:"profile_photo_url,omitempty"`
}

func (p UpdateProfilePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.FullName, validation.NilOrNotEmpty, validation.Length(1, 120)),
		validation.Field(&p.AcademicYear,
			validation.NilOrNotEmpty,
			validation.In(YearFE, YearSE, YearTE, YearBE),
		),
		validation.Field(&p.PhoneNumber, validation.By(optionalPhonePtrRule)),
		validation.Field(&p.ProfilePhotoURL, is.URL),
	)
}

// ResetPasswordPayload carries the final step of a password reset.
type ResetPasswordPayload struct {
	Email           string `json:"email"`
	Code            string `json:"code"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (p ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Code,
			validation.Required,
			validation.Match(sixDigit).Error("must be a 6 digit code"),
		),
		validation.Field(&p.NewPassword,
			validation.Required,
			validation.Length(PasswordMinLength, 0),
			validation.Match(hasDigit).Error("must contain at least one number"),
		),
		validation.Field(&p.ConfirmPassword,
			validation.Required,
			validation.By(func(value any) error {
				if s, _ := value.(string); s != p.NewPassword {
					return fmt.Errorf("passwords do not match")
				}
				return nil
			}),
		),
	)
}

func optionalPhoneRule(value any) error {
	s, _ := value.(string)
	return validatePhone(s)
}

func optionalPhonePtrRule(value any) error {
	s, _ := value.(*string)
	if s == nil {
		return nil
	}
	return validatePhone(*s)
}

// validatePhone accepts bare 10 digit Indian numbers as well as E.164 input.
func validatePhone(raw string) error {
	if raw == "" {
		return nil
	}

	num, err := phonenumbers.Parse(raw, "IN")
	if err != nil {
		return fmt.Errorf("not a valid phone number")
	}
	if !phonenumbers.IsValidNumber(num) {
		return fmt.Errorf("not a valid phone number")
	}
	return nil
}

// FormatValidationErrorToMap flattens an ozzo validation error into a
// field to message map suitable for rendering next to form inputs.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if goerrors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["_"] = err.Error()
	return out
}
