package session

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// RegisterOnboardingRoutes mounts signup, login, verification, profile
// setup, and password reset endpoints on the given router.
func RegisterOnboardingRoutes[T any](app router.Router[T], opts ...OnboardingControllerOption) {

	controller := NewOnboardingController(opts...)

	app.Get(controller.Routes.Signup, controller.SignupShow).
		SetName("signup.get")
	app.Post(controller.Routes.Signup, controller.SignupPost).
		SetName("signup.post")

	app.Get(controller.Routes.Login, controller.LoginShow).
		SetName("login.get")
	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("login.post")

	app.Get(controller.Routes.Logout, controller.LogOut).
		SetName("logout.get")

	app.Get(controller.Routes.VerifyEmail, controller.VerifyShow).
		SetName("verify.get")
	app.Post(controller.Routes.VerifyEmail, controller.VerifyPost).
		SetName("verify.post")
	app.Post(fmt.Sprintf("%s/resend", controller.Routes.VerifyEmail), controller.ResendPost).
		SetName("verify-resend.post")

	app.Get(controller.Routes.ProfileSetup, controller.ProfileSetupShow).
		SetName("profile-setup.get")
	app.Post(controller.Routes.ProfileSetup, controller.ProfileSetupPost).
		SetName("profile-setup.post")

	app.Get(controller.Routes.PasswordReset, controller.ResetRequestShow).
		SetName("pwd-reset.get")
	app.Post(controller.Routes.PasswordReset, controller.ResetRequestPost).
		SetName("pwd-reset.post")
	app.Post(fmt.Sprintf("%s/verify", controller.Routes.PasswordReset), controller.ResetCodePost).
		SetName("pwd-reset-verify.post")
	app.Post(fmt.Sprintf("%s/finalize", controller.Routes.PasswordReset), controller.ResetFinalizePost).
		SetName("pwd-reset-finalize.post")
}

type OnboardingControllerRoutes struct {
	Home          string
	Login         string
	Logout        string
	Signup        string
	VerifyEmail   string
	ProfileSetup  string
	PasswordReset string
}

type OnboardingControllerViews struct {
	Login         string
	Signup        string
	VerifyEmail   string
	ProfileSetup  string
	PasswordReset string
}

type OnboardingController struct {
	Logger       Logger
	Provider     IdentityProvider
	Flow         *Flow
	Reset        *ResetFlow
	Session      *Manager
	Guard        *RouteGuard
	Routes       *OnboardingControllerRoutes
	Views        *OnboardingControllerViews
	ErrorHandler router.ErrorHandler
}

type OnboardingControllerOption func(*OnboardingController) *OnboardingController

func NewOnboardingController(opts ...OnboardingControllerOption) *OnboardingController {
	c := &OnboardingController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &OnboardingControllerRoutes{
			Home:          "/",
			Login:         "/login",
			Logout:        "/logout",
			Signup:        "/signup",
			VerifyEmail:   "/verify-email",
			ProfileSetup:  "/profile-setup",
			PasswordReset: "/password-reset",
		},
		Views: &OnboardingControllerViews{
			Login:         "login",
			Signup:        "signup",
			VerifyEmail:   "verify_email",
			ProfileSetup:  "profile_setup",
			PasswordReset: "password_reset",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Provider == nil {
		panic("Missing IdentityProvider in onboarding controller...")
	}

	if c.Flow == nil {
		panic("Missing onboarding Flow in onboarding controller...")
	}

	if c.Session == nil {
		panic("Missing session Manager in onboarding controller...")
	}

	return c
}

func WithControllerProvider(p IdentityProvider) OnboardingControllerOption {
	return func(c *OnboardingController) *OnboardingController {
		c.Provider = p
		return c
	}
}

func WithControllerFlow(f *Flow) OnboardingControllerOption {
	return func(c *OnboardingController) *OnboardingController {
		c.Flow = f
		return c
	}
}

func WithControllerResetFlow(r *ResetFlow) OnboardingControllerOption {
	return func(c *OnboardingController) *OnboardingController {
		c.Reset = r
		return c
	}
}

func WithControllerSession(m *Manager) OnboardingControllerOption {
	return func(c *OnboardingController) *OnboardingController {
		c.Session = m
		return c
	}
}

func WithControllerGuard(g *RouteGuard) OnboardingControllerOption {
	return func(c *OnboardingController) *OnboardingController {
		c.Guard = g
		return c
	}
}

func WithControllerLogger(l Logger) OnboardingControllerOption {
	return func(c *OnboardingController) *OnboardingController {
		if l != nil {
			c.Logger = l
		}
		return c
	}
}

func (a *OnboardingController) SignupShow(ctx router.Context) error {
	return ctx.Render(a.Views.Signup, router.ViewContext{
		"errors": map[string]string{},
		"record": nil,
	})
}

// SignupForm is the signup form payload
type SignupForm struct {
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (a *OnboardingController) SignupPost(ctx router.Context) error {
	payload := new(SignupForm)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("signup parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Signup, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	err := a.Flow.SubmitSignup(ctx.Context(), SignupPayload{
		Email:           payload.Email,
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
	})
	if err != nil {
		a.Logger.Error("signup submit: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message": err.Error(),
		}).Render(a.Views.Signup, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	target := appendNavQuery(a.Routes.VerifyEmail, &NavState{
		Email:    payload.Email,
		CodeSent: a.Flow.CodeSent(),
	})
	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Check your inbox for a verification code",
	}).Redirect(target, fiber.StatusSeeOther)
}

func (a *OnboardingController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": map[string]string{},
		"record": nil,
	})
}

// LoginForm is the login form payload
type LoginForm struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

func (a *OnboardingController) LoginPost(ctx router.Context) error {
	payload := new(LoginForm)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := (LoginPayload{Email: payload.Email, Password: payload.Password}).Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	identity, err := a.Provider.SignIn(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		a.Logger.Error("login error: %v", err)
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors": map[string]string{"authentication": "Authentication Error"},
			"record": payload,
		})
	}

	if !identity.EmailVerified() {
		// entering from login means no dispatch just happened, so the
		// resend button must be immediately available
		if err := a.Flow.ResumeAwaitingCode(ctx.Context(), identity.Email(), false); err != nil {
			a.Logger.Warn("resume onboarding: %v", err)
		}

		target := appendNavQuery(a.Routes.VerifyEmail, &NavState{
			Email:    identity.Email(),
			CodeSent: false,
		})
		return ctx.Redirect(target, router.StatusSeeOther)
	}

	redirect := a.Routes.Home
	if a.Guard != nil {
		redirect = a.Guard.GetRedirect(ctx, a.Routes.Home)
	}

	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *OnboardingController) LogOut(ctx router.Context) error {
	if err := a.Session.SignOut(ctx.Context()); err != nil {
		a.Logger.Error("sign out failed: %v", err)
		return a.ErrorHandler(ctx, err)
	}
	return ctx.Redirect(a.Routes.Home, router.StatusTemporaryRedirect)
}

func (a *OnboardingController) VerifyShow(ctx router.Context) error {
	nav := NavStateFromQuery(ctx.OriginalURL())
	email := nav.Email
	if email == "" {
		email = a.Flow.Email()
	}

	return ctx.Render(a.Views.VerifyEmail, router.ViewContext{
		"email":     email,
		"code_sent": a.Flow.CodeSent(),
		"resend_in": int(a.Flow.ResendAvailableIn().Seconds()),
	})
}

// CodeForm is the verification code form payload
type CodeForm struct {
	Code string `form:"code" json:"code"`
}

func (a *OnboardingController) VerifyPost(ctx router.Context) error {
	payload := new(CodeForm)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := a.Flow.SubmitCode(ctx.Context(), payload.Code); err != nil {
		a.Logger.Info("code rejected: %v", err)
		// the form clears the entered digits; only the failure reason
		// travels back
		return flash.WithError(ctx, router.ViewContext{
			"error_message": verifyErrorMessage(err),
		}).Render(a.Views.VerifyEmail, router.ViewContext{
			"email":     a.Flow.Email(),
			"code_sent": a.Flow.CodeSent(),
			"resend_in": int(a.Flow.ResendAvailableIn().Seconds()),
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Email verified",
	}).Redirect(a.Routes.ProfileSetup, fiber.StatusSeeOther)
}

func (a *OnboardingController) ResendPost(ctx router.Context) error {
	if err := a.Flow.ResendCode(ctx.Context()); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message": verifyErrorMessage(err),
		}).Render(a.Views.VerifyEmail, router.ViewContext{
			"email":     a.Flow.Email(),
			"code_sent": a.Flow.CodeSent(),
			"resend_in": int(a.Flow.ResendAvailableIn().Seconds()),
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "A new code is on its way",
	}).Redirect(a.Routes.VerifyEmail, fiber.StatusSeeOther)
}

func (a *OnboardingController) ProfileSetupShow(ctx router.Context) error {
	return ctx.Render(a.Views.ProfileSetup, router.ViewContext{
		"errors":         map[string]string{},
		"record":         nil,
		"academic_years": AcademicYears,
	})
}

// ProfileSetupForm is the profile setup form payload
type ProfileSetupForm struct {
	FullName        string `form:"full_name" json:"full_name"`
	AcademicYear    string `form:"academic_year" json:"academic_year"`
	PhoneNumber     string `form:"phone_number" json:"phone_number"`
	ProfilePhotoURL string `form:"profile_photo_url" json:"profile_photo_url"`
}

func (a *OnboardingController) ProfileSetupPost(ctx router.Context) error {
	payload := new(ProfileSetupForm)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	err := a.Flow.SubmitProfile(ctx.Context(), ProfileSetupPayload{
		FullName:        payload.FullName,
		AcademicYear:    payload.AcademicYear,
		PhoneNumber:     payload.PhoneNumber,
		ProfilePhotoURL: payload.ProfilePhotoURL,
	})
	if err != nil {
		a.Logger.Error("profile setup: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message": err.Error(),
		}).Render(a.Views.ProfileSetup, router.ViewContext{
			"record":         payload,
			"validation":     FormatValidationErrorToMap(err),
			"academic_years": AcademicYears,
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Welcome aboard",
	}).Redirect(a.Routes.Home, fiber.StatusSeeOther)
}

func (a *OnboardingController) ResetRequestShow(ctx router.Context) error {
	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"stage": string(ResetStateRequest),
	})
}

func (a *OnboardingController) ResetRequestPost(ctx router.Context) error {
	payload := new(LoginForm)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := a.Reset.RequestCode(ctx.Context(), payload.Email); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message": verifyErrorMessage(err),
		}).Render(a.Views.PasswordReset, router.ViewContext{
			"stage": string(a.Reset.State()),
			"email": payload.Email,
		})
	}

	// same response whether or not the account exists
	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"stage": string(ResetStateAwaitingCode),
		"email": payload.Email,
	})
}

func (a *OnboardingController) ResetCodePost(ctx router.Context) error {
	payload := new(CodeForm)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := a.Reset.SubmitCode(ctx.Context(), payload.Code); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message": verifyErrorMessage(err),
		}).Render(a.Views.PasswordReset, router.ViewContext{
			"stage": string(a.Reset.State()),
			"email": a.Reset.Email(),
		})
	}

	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"stage": string(ResetStateCodeVerified),
		"email": a.Reset.Email(),
	})
}

// ResetPasswordForm is the final reset form payload
type ResetPasswordForm struct {
	NewPassword     string `form:"new_password" json:"new_password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (a *OnboardingController) ResetFinalizePost(ctx router.Context) error {
	payload := new(ResetPasswordForm)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := a.Reset.SubmitNewPassword(ctx.Context(), payload.NewPassword, payload.ConfirmPassword); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message": err.Error(),
		}).Render(a.Views.PasswordReset, router.ViewContext{
			"stage": string(a.Reset.State()),
			"email": a.Reset.Email(),
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Password updated, sign in with your new password",
	}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

// verifyErrorMessage maps tagged errors onto user facing copy.
func verifyErrorMessage(err error) string {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return "Something went wrong, try again"
	}

	switch richErr.TextCode {
	case TextCodeInvalidCode:
		return "That code is not right, try again"
	case TextCodeCodeExpired:
		return "That code expired, request a new one"
	case TextCodeResendCooldown:
		return "Hold on a moment before requesting another code"
	default:
		return richErr.Message
	}
}

func defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
		"error": richErr,
	})
}
