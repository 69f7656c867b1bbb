package session_test

import (
	"context"
	"database/sql"
	"io/fs"
	"regexp"
	"sort"
	"sync"
	"testing"

	session "github.com/campex/go-session"
	"github.com/campex/go-session/provider/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var codePattern = regexp.MustCompile(`[0-9]{6}`)

// captureMailer records outgoing mail so tests can read the dispatched code
// the same way a user would.
type captureMailer struct {
	mu   sync.Mutex
	last string
	sent int
}

func (m *captureMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = body
	m.sent++
	return nil
}

func (m *captureMailer) lastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return codePattern.FindString(m.last)
}

func setupRepo(t *testing.T) session.RepositoryManager {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	migrations := session.GetMigrationsFS()
	var files []string
	err = fs.WalkDir(migrations, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(files)

	for _, file := range files {
		ddl, err := fs.ReadFile(migrations, file)
		require.NoError(t, err)
		_, err = db.Exec(string(ddl))
		require.NoError(t, err, "migration %s", file)
	}

	repo := session.NewRepositoryManager(db)
	require.NoError(t, repo.Validate())
	return repo
}

type localStack struct {
	repo     session.RepositoryManager
	provider *memory.Provider
	mailer   *captureMailer
	verifier *session.LocalVerifier
}

func setupLocalStack(t *testing.T) *localStack {
	t.Helper()

	repo := setupRepo(t)
	provider := memory.NewProvider()
	mailer := &captureMailer{}

	return &localStack{
		repo:     repo,
		provider: provider,
		mailer:   mailer,
		verifier: session.NewLocalVerifier(repo, mailer, provider, provider),
	}
}

func TestLocalVerifierEmailVerification(t *testing.T) {
	stack := setupLocalStack(t)
	ctx := context.Background()

	ident, err := stack.provider.SignUp(ctx, "a@ves.ac.in", "secret123")
	require.NoError(t, err)
	require.False(t, ident.EmailVerified())

	require.NoError(t, stack.verifier.SendVerificationCode(ctx, "a@ves.ac.in"))
	code := stack.mailer.lastCode()
	require.Len(t, code, 6)

	require.NoError(t, stack.verifier.VerifyCode(ctx, "a@ves.ac.in", code))

	// the marker flipped the identity backend flag
	token, err := stack.provider.CurrentIDToken(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	var current session.Identity
	unsubscribe := stack.provider.OnUserChanged(func(i session.Identity) { current = i })
	defer unsubscribe()
	assert.True(t, current.EmailVerified())

	// codes are single use
	err = stack.verifier.VerifyCode(ctx, "a@ves.ac.in", code)
	require.Error(t, err)
	assert.True(t, session.IsInvalidCode(err))
}

func TestLocalVerifierWrongCode(t *testing.T) {
	stack := setupLocalStack(t)
	ctx := context.Background()

	require.NoError(t, stack.verifier.SendVerificationCode(ctx, "a@ves.ac.in"))

	wrong := "000000"
	if stack.mailer.lastCode() == wrong {
		wrong = "000001"
	}

	err := stack.verifier.VerifyCode(ctx, "a@ves.ac.in", wrong)
	require.Error(t, err)
	assert.True(t, session.IsInvalidCode(err))
}

func TestLocalVerifierNoOutstandingCode(t *testing.T) {
	stack := setupLocalStack(t)

	err := stack.verifier.VerifyCode(context.Background(), "a@ves.ac.in", "123456")
	require.Error(t, err)
	assert.True(t, session.IsInvalidCode(err))
}

func TestLocalVerifierResendThrottled(t *testing.T) {
	stack := setupLocalStack(t)
	ctx := context.Background()

	require.NoError(t, stack.verifier.SendVerificationCode(ctx, "a@ves.ac.in"))

	err := stack.verifier.SendVerificationCode(ctx, "a@ves.ac.in")
	require.Error(t, err)
	assert.True(t, session.IsResendCooldown(err))
	assert.Equal(t, 1, stack.mailer.sent)

	// a different purpose has its own throttle window
	assert.NoError(t, stack.verifier.SendPasswordResetCode(ctx, "a@ves.ac.in"))
}

func TestLocalVerifierPasswordReset(t *testing.T) {
	stack := setupLocalStack(t)
	ctx := context.Background()

	_, err := stack.provider.SignUp(ctx, "a@ves.ac.in", "secret123")
	require.NoError(t, err)

	require.NoError(t, stack.verifier.SendPasswordResetCode(ctx, "a@ves.ac.in"))
	code := stack.mailer.lastCode()
	require.Len(t, code, 6)

	// the check step does not consume, so the form can be revisited
	require.NoError(t, stack.verifier.VerifyResetCode(ctx, "a@ves.ac.in", code))
	require.NoError(t, stack.verifier.VerifyResetCode(ctx, "a@ves.ac.in", code))

	require.NoError(t, stack.verifier.ResetPassword(ctx, "a@ves.ac.in", code, "changed99"))

	_, err = stack.provider.SignIn(ctx, "a@ves.ac.in", "secret123")
	assert.ErrorIs(t, err, session.ErrBadCredentials)
	_, err = stack.provider.SignIn(ctx, "a@ves.ac.in", "changed99")
	assert.NoError(t, err)

	// finalizing consumed the code
	err = stack.verifier.ResetPassword(ctx, "a@ves.ac.in", code, "changed100")
	require.Error(t, err)
	assert.True(t, session.IsInvalidCode(err))
}

func TestLocalProfileStoreLifecycle(t *testing.T) {
	stack := setupLocalStack(t)
	ctx := context.Background()

	ident, err := stack.provider.SignUp(ctx, "a@ves.ac.in", "secret123")
	require.NoError(t, err)

	store := session.NewLocalProfileStore(stack.repo, func() session.Identity { return ident })

	_, err = store.FetchMine(ctx)
	require.Error(t, err)
	assert.True(t, session.IsProfileNotFound(err))

	created, err := store.CreateProfile(ctx, session.ProfileSetupPayload{
		FullName:     "Asha Bhat",
		AcademicYear: session.YearSE,
		PhoneNumber:  "9876543210",
	})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, ident.ID(), created.UID)
	assert.Equal(t, "a@ves.ac.in", created.Email)
	assert.True(t, session.IsProfileComplete(created))

	fetched, err := store.FetchMine(ctx)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, "Asha Bhat", fetched.FullName)

	// one profile per identity
	_, err = store.CreateProfile(ctx, session.ProfileSetupPayload{
		FullName:     "Someone Else",
		AcademicYear: session.YearTE,
	})
	assert.Error(t, err)

	name := "Asha B. Bhat"
	year := session.YearTE
	updated, err := store.UpdateProfile(ctx, session.UpdateProfilePayload{
		FullName:     &name,
		AcademicYear: &year,
	})
	require.NoError(t, err)
	assert.Equal(t, name, updated.FullName)
	assert.Equal(t, session.YearTE, updated.AcademicYear)

	require.NoError(t, store.DeleteProfile(ctx))

	_, err = store.FetchMine(ctx)
	require.Error(t, err)
	assert.True(t, session.IsProfileNotFound(err))
}

func TestLocalProfileStoreRequiresIdentity(t *testing.T) {
	stack := setupLocalStack(t)
	store := session.NewLocalProfileStore(stack.repo, func() session.Identity { return nil })

	_, err := store.FetchMine(context.Background())
	assert.ErrorIs(t, err, session.ErrIdentityNotFound)
}
