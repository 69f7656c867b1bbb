package session_test

import (
	"testing"

	session "github.com/campex/go-session"
	"github.com/stretchr/testify/assert"
)

func TestSignupPayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload session.SignupPayload
		wantErr bool
	}{
		{
			"valid",
			session.SignupPayload{Email: "a@ves.ac.in", Password: "secret123", ConfirmPassword: "secret123"},
			false,
		},
		{
			"uppercase domain accepted",
			session.SignupPayload{Email: "a@VES.AC.IN", Password: "secret123", ConfirmPassword: "secret123"},
			false,
		},
		{
			"missing email",
			session.SignupPayload{Password: "secret123", ConfirmPassword: "secret123"},
			true,
		},
		{
			"not an email",
			session.SignupPayload{Email: "nope", Password: "secret123", ConfirmPassword: "secret123"},
			true,
		},
		{
			"outside college domain",
			session.SignupPayload{Email: "a@gmail.com", Password: "secret123", ConfirmPassword: "secret123"},
			true,
		},
		{
			"password too short",
			session.SignupPayload{Email: "a@ves.ac.in", Password: "abc1", ConfirmPassword: "abc1"},
			true,
		},
		{
			"password without digit",
			session.SignupPayload{Email: "a@ves.ac.in", Password: "abcdefgh", ConfirmPassword: "abcdefgh"},
			true,
		},
		{
			"confirmation mismatch",
			session.SignupPayload{Email: "a@ves.ac.in", Password: "secret123", ConfirmPassword: "secret124"},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate("", 0)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSignupPayloadValidateCustomDomain(t *testing.T) {
	payload := session.SignupPayload{
		Email:           "a@example.edu",
		Password:        "secret123",
		ConfirmPassword: "secret123",
	}

	assert.NoError(t, payload.Validate("example.edu", 0))
	assert.Error(t, payload.Validate("", 0))
}

func TestSignupPayloadValidateCustomMinLength(t *testing.T) {
	payload := session.SignupPayload{
		Email:           "a@ves.ac.in",
		Password:        "ab1",
		ConfirmPassword: "ab1",
	}

	assert.NoError(t, payload.Validate("", 3))
	assert.Error(t, payload.Validate("", 0))
}

func TestLoginPayloadValidate(t *testing.T) {
	assert.NoError(t, session.LoginPayload{Email: "a@ves.ac.in", Password: "x"}.Validate())
	assert.Error(t, session.LoginPayload{Email: "", Password: "x"}.Validate())
	assert.Error(t, session.LoginPayload{Email: "a@ves.ac.in", Password: ""}.Validate())
	assert.Error(t, session.LoginPayload{Email: "nope", Password: "x"}.Validate())
}

func TestCodePayloadValidate(t *testing.T) {
	tests := []struct {
		code    string
		wantErr bool
	}{
		{"123456", false},
		{"000000", false},
		{"", true},
		{"12345", true},
		{"1234567", true},
		{"12a456", true},
		{"12 456", true},
	}

	for _, tt := range tests {
		err := session.CodePayload{Code: tt.code}.Validate()
		if tt.wantErr {
			assert.Error(t, err, "code %q", tt.code)
		} else {
			assert.NoError(t, err, "code %q", tt.code)
		}
	}
}

func TestProfileSetupPayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload session.ProfileSetupPayload
		wantErr bool
	}{
		{
			"minimal valid",
			session.ProfileSetupPayload{FullName: "Asha Bhat", AcademicYear: session.YearFE},
			false,
		},
		{
			"all fields",
			session.ProfileSetupPayload{
				FullName:        "Asha Bhat",
				AcademicYear:    session.YearBE,
				PhoneNumber:     "9876543210",
				ProfilePhotoURL: "https://cdn.example.com/p/1.jpg",
			},
			false,
		},
		{
			"missing name",
			session.ProfileSetupPayload{AcademicYear: session.YearFE},
			true,
		},
		{
			"missing year",
			session.ProfileSetupPayload{FullName: "Asha Bhat"},
			true,
		},
		{
			"unknown year",
			session.ProfileSetupPayload{FullName: "Asha Bhat", AcademicYear: "PhD"},
			true,
		},
		{
			"bad phone",
			session.ProfileSetupPayload{FullName: "Asha Bhat", AcademicYear: session.YearFE, PhoneNumber: "12345"},
			true,
		},
		{
			"bad photo url",
			session.ProfileSetupPayload{FullName: "Asha Bhat", AcademicYear: session.YearFE, ProfilePhotoURL: "::nope"},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUpdateProfilePayloadValidate(t *testing.T) {
	str := func(s string) *string { return &s }

	assert.NoError(t, session.UpdateProfilePayload{}.Validate())
	assert.NoError(t, session.UpdateProfilePayload{FullName: str("Asha Bhat")}.Validate())
	assert.NoError(t, session.UpdateProfilePayload{AcademicYear: str(session.YearTE)}.Validate())
	assert.NoError(t, session.UpdateProfilePayload{PhoneNumber: str("+919876543210")}.Validate())

	assert.Error(t, session.UpdateProfilePayload{FullName: str("")}.Validate())
	assert.Error(t, session.UpdateProfilePayload{AcademicYear: str("PhD")}.Validate())
	assert.Error(t, session.UpdateProfilePayload{PhoneNumber: str("12345")}.Validate())
}

func TestResetPasswordPayloadValidate(t *testing.T) {
	valid := session.ResetPasswordPayload{
		Email:           "a@ves.ac.in",
		Code:            "654321",
		NewPassword:     "newpass99",
		ConfirmPassword: "newpass99",
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(p *session.ResetPasswordPayload)
	}{
		{"missing email", func(p *session.ResetPasswordPayload) { p.Email = "" }},
		{"bad code", func(p *session.ResetPasswordPayload) { p.Code = "12" }},
		{"short password", func(p *session.ResetPasswordPayload) { p.NewPassword = "ab1"; p.ConfirmPassword = "ab1" }},
		{"no digit", func(p *session.ResetPasswordPayload) { p.NewPassword = "abcdefgh"; p.ConfirmPassword = "abcdefgh" }},
		{"mismatch", func(p *session.ResetPasswordPayload) { p.ConfirmPassword = "other999" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestFormatValidationErrorToMap(t *testing.T) {
	err := session.SignupPayload{}.Validate("", 0)
	out := session.FormatValidationErrorToMap(err)
	assert.Contains(t, out, "email")
	assert.Contains(t, out, "password")

	assert.Empty(t, session.FormatValidationErrorToMap(nil))

	out = session.FormatValidationErrorToMap(assert.AnError)
	assert.Contains(t, out, "_")
}
