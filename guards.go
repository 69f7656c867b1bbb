package session

// GuardAction is the outcome of a route-guard decision.
type GuardAction string

const (
	// ActionRender lets the navigation target render.
	ActionRender GuardAction = "render"
	// ActionRedirect sends the user to Decision.Target instead.
	ActionRedirect GuardAction = "redirect"
	// ActionPlaceholder renders a neutral loading placeholder; no redirect
	// may be issued while the first identity notification is pending.
	ActionPlaceholder GuardAction = "placeholder"
)

// NavState is the explicit, typed payload carried on onboarding redirects.
// It replaces ambient router navigation state.
type NavState struct {
	Email    string
	CodeSent bool
}

// Routes names the navigation targets guards redirect to.
type Routes struct {
	Home         string
	Login        string
	Signup       string
	VerifyEmail  string
	ProfileSetup string
}

// DefaultRoutes returns the standard route table.
func DefaultRoutes() Routes {
	return Routes{
		Home:         "/",
		Login:        "/login",
		Signup:       "/signup",
		VerifyEmail:  "/verify-email",
		ProfileSetup: "/profile-setup",
	}
}

// Decision is a resolved guard outcome: render, placeholder, or redirect
// with an optional typed navigation payload. Guards never error; an upstream
// profile-fetch failure already surfaced as a nil profile in the snapshot.
type Decision struct {
	Action GuardAction
	Target string
	Nav    *NavState
}

// Guard decides render-vs-redirect for a navigation target from a snapshot.
type Guard func(s Snapshot, r Routes) Decision

func render() Decision {
	return Decision{Action: ActionRender}
}

func placeholder() Decision {
	return Decision{Action: ActionPlaceholder}
}

func redirect(target string, nav *NavState) Decision {
	return Decision{Action: ActionRedirect, Target: target, Nav: nav}
}

// continuation picks the onboarding step a signed-in, not-yet-complete user
// must resume at: email verification first, then profile setup.
func continuation(s Snapshot, r Routes) Decision {
	nav := &NavState{Email: s.Identity.Email()}
	if !s.Identity.EmailVerified() {
		return redirect(r.VerifyEmail, nav)
	}
	return redirect(r.ProfileSetup, nav)
}

// PublicOnly guards routes for anonymous visitors (landing, login, signup).
// A signed-in user with a complete profile goes Home; one mid-onboarding is
// sent to the continuation step with their email.
func PublicOnly(s Snapshot, r Routes) Decision {
	if s.Loading {
		return placeholder()
	}
	if s.Authenticated() {
		if s.ProfileComplete() {
			return redirect(r.Home, nil)
		}
		return continuation(s, r)
	}
	return render()
}

// RequiresAuth guards protected content. Identity presence is checked before
// profile completeness: an incomplete profile never grants access, but it
// never locks the user out of the onboarding path either.
func RequiresAuth(s Snapshot, r Routes) Decision {
	if s.Loading {
		return placeholder()
	}
	if !s.Authenticated() {
		return redirect(r.Login, nil)
	}
	if !s.ProfileComplete() {
		return continuation(s, r)
	}
	return render()
}

// RequiresAuthNoProfile guards the signup continuation itself. It redirects
// Home as soon as any profile exists, complete or not, while letting a fresh
// identity with no profile continue through signup.
func RequiresAuthNoProfile(s Snapshot, r Routes) Decision {
	if s.Loading {
		return placeholder()
	}
	if s.Authenticated() && s.Profile != nil {
		return redirect(r.Home, nil)
	}
	return render()
}
