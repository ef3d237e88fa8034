package authpw

import (
	"context"
	"errors"
	"testing"
	"time"

	"talentpad/api/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users         map[string]store.User
	emailIndex    map[string]string // email -> userID
	verifications map[string]store.User
	resets        map[string]struct {
		userID    string
		expiresAt time.Time
		used      bool
	}
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:         make(map[string]store.User),
		emailIndex:    make(map[string]string),
		verifications: make(map[string]store.User),
		resets: make(map[string]struct {
			userID    string
			expiresAt time.Time
			used      bool
		}),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) error {
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return nil
}

func (m *mockUserStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	if user, ok := m.users[userID]; ok {
		user.VerificationToken = token
		user.VerificationExpiresAt = &expiresAt
		m.users[userID] = user
		m.verifications[token] = user
	}
	return nil
}

func (m *mockUserStore) VerifyUserEmail(ctx context.Context, token string) error {
	if user, ok := m.verifications[token]; ok {
		user.IsEmailVerified = true
		m.users[user.ID] = user
		m.emailIndex[user.Email] = user.ID
		return nil
	}
	return errors.New("invalid token")
}

func (m *mockUserStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	if user, ok := m.users[userID]; ok {
		user.PasswordHash = passwordHash
		m.users[userID] = user
		return nil
	}
	return errors.New("user not found")
}

func (m *mockUserStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	m.resets[token] = struct {
		userID    string
		expiresAt time.Time
		used      bool
	}{userID: userID, expiresAt: expiresAt, used: false}
	return nil
}

func (m *mockUserStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	if reset, ok := m.resets[token]; ok && !reset.used && time.Now().Before(reset.expiresAt) {
		return reset.userID, nil
	}
	return "", errors.New("invalid or expired token")
}

func (m *mockUserStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	if reset, ok := m.resets[token]; ok {
		reset.used = true
		m.resets[token] = reset
	}
	return nil
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	t.Run("successful sign up", func(t *testing.T) {
		resp, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "test@example.com",
			Password:    "password123",
			DisplayName: "Test User",
		})
		if err != nil {
			t.Fatalf("SignUp() error = %v", err)
		}
		if resp.UserID == "" || resp.VerificationToken == "" {
			t.Fatalf("unexpected response: %+v", resp)
		}
		if !resp.RequiresEmailVerify {
			t.Fatal("expected email verification to be required")
		}
		user, err := mockStore.GetUserByID(ctx, resp.UserID)
		if err != nil {
			t.Fatalf("created user not found: %v", err)
		}
		if user.PasswordHash == "password123" || user.PasswordHash == "" {
			t.Fatal("password must be stored hashed")
		}
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "test@example.com",
			Password:    "password123",
			DisplayName: "Other User",
		})
		if err == nil {
			t.Fatal("expected duplicate email to fail")
		}
	})

	t.Run("short password rejected", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "short@example.com",
			Password:    "short",
			DisplayName: "Short",
		})
		if err == nil {
			t.Fatal("expected short password to fail")
		}
	})
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	resp, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "signin@example.com",
		Password:    "password123",
		DisplayName: "Sign In",
	})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	t.Run("unverified user must verify first", func(t *testing.T) {
		signIn, err := svc.SignIn(ctx, SignInRequest{Email: "signin@example.com", Password: "password123"})
		if err != nil {
			t.Fatalf("SignIn() error = %v", err)
		}
		if !signIn.RequiresVerify {
			t.Fatal("expected verification to be required")
		}
	})

	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail() error = %v", err)
	}

	t.Run("verified user signs in", func(t *testing.T) {
		signIn, err := svc.SignIn(ctx, SignInRequest{Email: "signin@example.com", Password: "password123"})
		if err != nil {
			t.Fatalf("SignIn() error = %v", err)
		}
		if signIn.RequiresVerify {
			t.Fatal("verification should no longer be required")
		}
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, SignInRequest{Email: "signin@example.com", Password: "wrong-password"}); err == nil {
			t.Fatal("expected wrong password to fail")
		}
	})

	t.Run("unknown email rejected", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, SignInRequest{Email: "ghost@example.com", Password: "password123"}); err == nil {
			t.Fatal("expected unknown email to fail")
		}
	})
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	resp, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "reset@example.com",
		Password:    "password123",
		DisplayName: "Reset",
	})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail() error = %v", err)
	}

	token, err := svc.RequestPasswordReset(ctx, "reset@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset() error = %v", err)
	}
	if token == "" {
		t.Fatal("expected a reset token for a known email")
	}

	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "newpassword456"}); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "reset@example.com", Password: "password123"}); err == nil {
		t.Fatal("old password must no longer work")
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "reset@example.com", Password: "newpassword456"}); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}

	t.Run("unknown email does not leak", func(t *testing.T) {
		token, err := svc.RequestPasswordReset(ctx, "ghost@example.com")
		if err != nil || token != "" {
			t.Fatalf("unknown email must return empty token without error, got %q %v", token, err)
		}
	})

	t.Run("used token rejected", func(t *testing.T) {
		if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "anotherpass789"}); err == nil {
			t.Fatal("expected used token to fail")
		}
	})
}
