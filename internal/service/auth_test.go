package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/todo-api/internal/apperror"
	"github.com/sakif/todo-api/internal/auth"
	"github.com/sakif/todo-api/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository. Like the real
// store it enforces email uniqueness inside Create, under one lock.
type fakeUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*model.User
	byEmail map[string]*model.User
	nextID  int
	// set to a non-nil error to simulate a database failure
	createErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:    make(map[string]*model.User),
		byEmail: make(map[string]*model.User),
	}
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return f.createErr
	}
	if _, taken := f.byEmail[user.Email]; taken {
		return apperror.Conflict("Email already registered")
	}
	f.nextID++
	user.ID = "user-" + string(rune('a'+f.nextID-1))
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt

	stored := *user
	f.byID[user.ID] = &stored
	f.byEmail[user.Email] = &stored
	return nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.byEmail[email]
	if !ok {
		return nil, &apperror.AppError{Err: apperror.ErrNotFound, Message: "user not found"}
	}
	result := *u
	return &result, nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.byID[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *u
	return &result, nil
}

// newTestAuthService wires an AuthService with the cheapest bcrypt cost
// and a test-only secret.
func newTestAuthService(t *testing.T, repo *fakeUserRepo) (*AuthService, *auth.TokenService) {
	t.Helper()

	tokens, err := auth.NewTokenService(auth.Options{Secret: "test-secret-at-least-16-chars", TTL: time.Hour})
	require.NoError(t, err)
	passwords, err := auth.NewPasswordService(bcrypt.MinCost)
	require.NoError(t, err)

	return NewAuthService(repo, tokens, passwords, zerolog.Nop()), tokens
}

func requireField(t *testing.T, err error, field string) {
	t.Helper()

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr), "want *apperror.AppError, got %T", err)
	require.ErrorIs(t, err, apperror.ErrValidation)
	for _, fe := range appErr.Details() {
		if fe.Field == field {
			return
		}
	}
	t.Fatalf("no validation detail for field %q in %+v", field, appErr.Details())
}

// =========================================================================
// REGISTER
// =========================================================================

func TestRegister_IssuesTokenForNewUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc, tokens := newTestAuthService(t, repo)

	res, err := svc.Register(context.Background(), "  alice@example.com ", "password123")
	require.NoError(t, err)

	assert.NotEmpty(t, res.User.ID)
	assert.Equal(t, "alice@example.com", res.User.Email, "email is trimmed")
	assert.NotEqual(t, "password123", res.User.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(res.User.PasswordHash), []byte("password123")))

	claims, err := tokens.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.Subject)
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)

	_, err := svc.Register(context.Background(), "alice@example.com", "password123")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "alice@example.com", "another-password")
	require.ErrorIs(t, err, apperror.ErrConflict)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Email already registered", appErr.Message)
}

func TestRegister_ConcurrentDuplicatesCreateOneUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Register(context.Background(), "race@example.com", "password123")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperror.ErrConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)
	assert.Len(t, repo.byID, 1)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		field    string
	}{
		{"empty email", "", "password123", "email"},
		{"whitespace email", "   ", "password123", "email"},
		{"email without at", "alice.example.com", "password123", "email"},
		{"email too long", strings.Repeat("a", 250) + "@x.com", "password123", "email"},
		{"short password", "alice@example.com", "short", "password"},
		{"password over 72 bytes", "alice@example.com", strings.Repeat("p", 73), "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeUserRepo()
			svc, _ := newTestAuthService(t, repo)

			_, err := svc.Register(context.Background(), tt.email, tt.password)
			requireField(t, err, tt.field)
			assert.Empty(t, repo.byID, "nothing is stored on validation failure")
		})
	}
}

func TestRegister_ReportsEveryInvalidField(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())

	_, err := svc.Register(context.Background(), "", "short")
	requireField(t, err, "email")
	requireField(t, err, "password")
}

func TestRegister_PasswordBoundaries(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())

	_, err := svc.Register(context.Background(), "eight@example.com", "12345678")
	assert.NoError(t, err, "8 characters is the minimum")

	_, err = svc.Register(context.Background(), "max@example.com", strings.Repeat("p", 72))
	assert.NoError(t, err, "72 bytes is the maximum")
}

func TestRegister_RepositoryFailure(t *testing.T) {
	repo := newFakeUserRepo()
	repo.createErr = errors.New("disk full")
	svc, _ := newTestAuthService(t, repo)

	_, err := svc.Register(context.Background(), "alice@example.com", "password123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperror.ErrConflict)
	assert.Contains(t, err.Error(), "disk full")
}

// =========================================================================
// LOGIN
// =========================================================================

func TestLogin_Success(t *testing.T) {
	repo := newFakeUserRepo()
	svc, tokens := newTestAuthService(t, repo)

	reg, err := svc.Register(context.Background(), "alice@example.com", "password123")
	require.NoError(t, err)

	res, err := svc.Login(context.Background(), "alice@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, res.User.ID)

	claims, err := tokens.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.Subject)
}

func TestLogin_UnknownEmailAndWrongPasswordLookTheSame(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)

	_, err := svc.Register(context.Background(), "alice@example.com", "password123")
	require.NoError(t, err)

	_, wrongPassword := svc.Login(context.Background(), "alice@example.com", "wrong-password")
	_, unknownEmail := svc.Login(context.Background(), "nobody@example.com", "password123")

	for _, err := range []error{wrongPassword, unknownEmail} {
		require.ErrorIs(t, err, apperror.ErrUnauthenticated)
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "Invalid email or password", appErr.Message)
	}
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLogin_EmailIsCaseSensitive(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())

	_, err := svc.Register(context.Background(), "alice@example.com", "password123")
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "Alice@Example.com", "password123")
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

// =========================================================================
// CURRENT USER
// =========================================================================

func TestCurrentUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)

	reg, err := svc.Register(context.Background(), "alice@example.com", "password123")
	require.NoError(t, err)

	user, err := svc.CurrentUser(context.Background(), auth.Identity{Subject: reg.User.ID, Email: reg.User.Email})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)

	_, err = svc.CurrentUser(context.Background(), auth.Identity{Subject: "deleted-user"})
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}
