package authpw

import (
	"context"
	"errors"
	"testing"
	"time"

	"lifeboard/api/internal/store"
)

type fakeUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string
	resets     map[string]struct {
		userID    string
		expiresAt time.Time
		used      bool
	}
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
		resets: make(map[string]struct {
			userID    string
			expiresAt time.Time
			used      bool
		}),
	}
}

func (f *fakeUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if id, ok := f.emailIndex[email]; ok {
		return f.users[id], nil
	}
	return store.User{}, errors.New("user not found")
}

func (f *fakeUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return store.User{}, errors.New("user not found")
}

func (f *fakeUserStore) CreateUser(ctx context.Context, user store.User) error {
	f.users[user.ID] = user
	f.emailIndex[user.Email] = user.ID
	return nil
}

func (f *fakeUserStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	u, ok := f.users[userID]
	if !ok {
		return errors.New("user not found")
	}
	u.VerificationToken = token
	u.VerificationExpiresAt = &expiresAt
	f.users[userID] = u
	return nil
}

func (f *fakeUserStore) VerifyUserEmail(ctx context.Context, token string) error {
	for id, u := range f.users {
		if u.VerificationToken == token && token != "" {
			u.IsEmailVerified = true
			u.VerificationToken = ""
			f.users[id] = u
			return nil
		}
	}
	return errors.New("invalid token")
}

func (f *fakeUserStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	u, ok := f.users[userID]
	if !ok {
		return errors.New("user not found")
	}
	u.PasswordHash = passwordHash
	f.users[userID] = u
	return nil
}

func (f *fakeUserStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	f.resets[token] = struct {
		userID    string
		expiresAt time.Time
		used      bool
	}{userID: userID, expiresAt: expiresAt}
	return nil
}

func (f *fakeUserStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	if r, ok := f.resets[token]; ok && !r.used && time.Now().Before(r.expiresAt) {
		return r.userID, nil
	}
	return "", errors.New("invalid or expired token")
}

func (f *fakeUserStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	if r, ok := f.resets[token]; ok {
		r.used = true
		f.resets[token] = r
	}
	return nil
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	fs := newFakeUserStore()
	svc := NewService(fs)

	t.Run("successful sign up", func(t *testing.T) {
		resp, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "ada@example.com",
			Password:    "correct-horse",
			DisplayName: "Ada",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.UserID == "" {
			t.Error("expected UserID to be set")
		}
		if resp.VerificationToken == "" {
			t.Error("expected VerificationToken to be set")
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "ada@example.com",
			Password:    "correct-horse",
			DisplayName: "Ada Again",
		})
		if !errors.Is(err, ErrEmailTaken) {
			t.Errorf("expected ErrEmailTaken, got %v", err)
		}
	})

	t.Run("short password", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "bea@example.com",
			Password:    "short",
			DisplayName: "Bea",
		})
		if err == nil {
			t.Error("expected error for short password")
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		if _, err := svc.SignUp(ctx, SignUpRequest{}); err == nil {
			t.Error("expected error for missing fields")
		}
	})
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	fs := newFakeUserStore()
	svc := NewService(fs)

	resp, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "ada@example.com",
		Password:    "correct-horse",
		DisplayName: "Ada",
	})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("verify email: %v", err)
	}

	t.Run("successful sign in", func(t *testing.T) {
		got, err := svc.SignIn(ctx, SignInRequest{Email: "ada@example.com", Password: "correct-horse"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.User.Email != "ada@example.com" {
			t.Errorf("unexpected user email %q", got.User.Email)
		}
		if got.RequiresVerify {
			t.Error("expected RequiresVerify to be false for verified user")
		}
	})

	t.Run("email is case insensitive", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, SignInRequest{Email: "ADA@Example.com", Password: "correct-horse"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{Email: "ada@example.com", Password: "wrong"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{Email: "nobody@example.com", Password: "correct-horse"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unverified user flagged", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "cal@example.com",
			Password:    "correct-horse",
			DisplayName: "Cal",
		})
		if err != nil {
			t.Fatalf("sign up: %v", err)
		}
		got, err := svc.SignIn(ctx, SignInRequest{Email: "cal@example.com", Password: "correct-horse"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.RequiresVerify {
			t.Error("expected RequiresVerify to be true for unverified user")
		}
	})
}

func TestVerifyEmail(t *testing.T) {
	ctx := context.Background()
	fs := newFakeUserStore()
	svc := NewService(fs)

	resp, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "ada@example.com",
		Password:    "correct-horse",
		DisplayName: "Ada",
	})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}

	t.Run("valid token", func(t *testing.T) {
		if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		user, _ := fs.GetUserByID(ctx, resp.UserID)
		if !user.IsEmailVerified {
			t.Error("expected user to be verified")
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		if err := svc.VerifyEmail(ctx, "bogus"); err == nil {
			t.Error("expected error for invalid token")
		}
	})

	t.Run("empty token", func(t *testing.T) {
		if err := svc.VerifyEmail(ctx, ""); err == nil {
			t.Error("expected error for empty token")
		}
	})
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	fs := newFakeUserStore()
	svc := NewService(fs)

	resp, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "ada@example.com",
		Password:    "correct-horse",
		DisplayName: "Ada",
	})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("verify email: %v", err)
	}

	t.Run("unknown email yields no token and no error", func(t *testing.T) {
		token, err := svc.RequestPasswordReset(ctx, "nobody@example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token != "" {
			t.Error("expected empty token for unknown email")
		}
	})

	t.Run("reset with valid token", func(t *testing.T) {
		token, err := svc.RequestPasswordReset(ctx, "ada@example.com")
		if err != nil {
			t.Fatalf("request reset: %v", err)
		}
		if token == "" {
			t.Fatal("expected a reset token")
		}

		if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "brand-new-pass"}); err != nil {
			t.Fatalf("reset password: %v", err)
		}

		if _, err := svc.SignIn(ctx, SignInRequest{Email: "ada@example.com", Password: "correct-horse"}); err == nil {
			t.Error("expected old password to stop working")
		}
		if _, err := svc.SignIn(ctx, SignInRequest{Email: "ada@example.com", Password: "brand-new-pass"}); err != nil {
			t.Errorf("expected new password to work: %v", err)
		}
	})

	t.Run("token is single use", func(t *testing.T) {
		token, _ := svc.RequestPasswordReset(ctx, "ada@example.com")
		if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "another-new-pass"}); err != nil {
			t.Fatalf("first reset: %v", err)
		}
		if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "yet-another-pass"}); err == nil {
			t.Error("expected error reusing reset token")
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: "bogus", NewPassword: "brand-new-pass"})
		if err == nil {
			t.Error("expected error for invalid token")
		}
	})

	t.Run("short password", func(t *testing.T) {
		err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: "whatever", NewPassword: "short"})
		if err == nil {
			t.Error("expected error for short password")
		}
	})
}
