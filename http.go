package session

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

const (
	// SnapshotLocalsKey is where guard middleware stores the snapshot.
	SnapshotLocalsKey = "session"
	// RejectedRouteCookie remembers the URL a guard bounced, so a later
	// login can return the user where they were headed.
	RejectedRouteCookie = "session_redirect"
)

// RouteGuard turns pure guard decisions into go-router middleware.
type RouteGuard struct {
	session      *Manager
	routes       Routes
	placeholder  string
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

// NewRouteGuard builds a guard middleware factory bound to a session
// manager. placeholderView is rendered while the snapshot is loading.
func NewRouteGuard(session *Manager, routes Routes, placeholderView string) *RouteGuard {
	g := &RouteGuard{
		session:     session,
		routes:      routes,
		placeholder: placeholderView,
		Logger:      defLogger{},
	}

	g.ErrorHandler = g.defaultErrHandler

	return g
}

// Middleware wraps a handler with a guard. The guard decides from the
// current snapshot only; handlers behind it can read the snapshot from
// locals without re-checking.
func (g *RouteGuard) Middleware(guard Guard) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			snap := g.session.Snapshot()
			decision := guard(snap, g.routes)

			switch decision.Action {
			case ActionPlaceholder:
				return ctx.Render(g.placeholder, router.ViewContext{})
			case ActionRedirect:
				target := decision.Target
				if target == g.routes.Login {
					g.SetRedirect(ctx)
				}
				if decision.Nav != nil {
					target = appendNavQuery(target, decision.Nav)
				}

				g.Logger.Debug("guard redirect from %s to %s", ctx.OriginalURL(), target)

				statusCode := http.StatusSeeOther
				if ctx.Method() == string(router.GET) {
					statusCode = http.StatusFound
				}
				return ctx.Redirect(target, statusCode)
			default:
				ctx.Locals(SnapshotLocalsKey, snap)
				return hf(ctx)
			}
		}
	}
}

// GetRedirect pops the rejected-route cookie, falling back to def.
func (g *RouteGuard) GetRedirect(ctx router.Context, def string) string {
	r := ctx.Cookies(RejectedRouteCookie)
	if r == "" {
		return def
	}
	g.cookieDel(ctx, RejectedRouteCookie)
	return r
}

// SetRedirect remembers the current URL for a post-login bounce back.
func (g *RouteGuard) SetRedirect(ctx router.Context) {
	ctx.Cookie(&router.Cookie{
		Name:     RejectedRouteCookie,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *RouteGuard) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *RouteGuard) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	g.Logger.Info(
		"guard error handler: %s category=%s details=%s",
		richErr.Message,
		richErr.Category,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
		"error": richErr,
	})
}

// appendNavQuery encodes the navigation state into the target URL. State is
// carried explicitly in the query string, never in ambient navigation
// payloads, so a full page reload reconstructs the same view.
func appendNavQuery(target string, nav *NavState) string {
	q := url.Values{}
	if nav.Email != "" {
		q.Set("email", nav.Email)
	}
	q.Set("code_sent", strconv.FormatBool(nav.CodeSent))

	sep := "?"
	if u, err := url.Parse(target); err == nil && u.RawQuery != "" {
		sep = "&"
	}
	return target + sep + q.Encode()
}

// NavStateFromQuery reconstructs navigation state from a redirect target,
// either a full URL or a bare query string.
func NavStateFromQuery(raw string) NavState {
	if u, err := url.Parse(raw); err == nil && u.RawQuery != "" {
		raw = u.RawQuery
	}

	q, err := url.ParseQuery(raw)
	if err != nil {
		return NavState{}
	}

	codeSent, _ := strconv.ParseBool(q.Get("code_sent"))
	return NavState{
		Email:    q.Get("email"),
		CodeSent: codeSent,
	}
}
