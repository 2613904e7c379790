package service

import (
	"errors"
	"testing"
	"time"

	"helmbridge"

	"golang.org/x/crypto/bcrypt"
)

type fakeAuthRepo struct {
	users     map[string]*helmbridge.User
	createErr error
	getErr    error
	nextID    int
}

func (f *fakeAuthRepo) Create(username, hash string) (int, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextID++
	if f.users == nil {
		f.users = make(map[string]*helmbridge.User)
	}
	f.users[username] = &helmbridge.User{ID: f.nextID, Username: username, PasswordHash: hash}
	return f.nextID, nil
}

func (f *fakeAuthRepo) GetByUsername(username string) (*helmbridge.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.users[username], nil
}

func testAuthConfig() Config {
	return Config{SigningKey: "test-signing-key", TokenTTL: time.Minute}
}

func TestAuth_SignUp_StoresBcryptHash(t *testing.T) {
	repo := &fakeAuthRepo{}
	svc := NewAuthService(repo, testAuthConfig())

	id, err := svc.SignUp("skipper", "hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected id 1, got %d", id)
	}
	u := repo.users["skipper"]
	if u == nil || u.PasswordHash == "hunter2" {
		t.Fatalf("password must be stored hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("hunter2")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
}

func TestAuth_SignUp_EmptyPasswordRejected(t *testing.T) {
	svc := NewAuthService(&fakeAuthRepo{}, testAuthConfig())
	if _, err := svc.SignUp("skipper", "   "); err == nil {
		t.Fatalf("expected error for blank password")
	}
}

func TestAuth_TokenRoundTrip(t *testing.T) {
	repo := &fakeAuthRepo{}
	svc := NewAuthService(repo, testAuthConfig())

	if _, err := svc.SignUp("skipper", "hunter2"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	token, err := svc.GenerateToken("skipper", "hunter2")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	userID, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if userID != 1 {
		t.Fatalf("expected user 1, got %d", userID)
	}
}

func TestAuth_GenerateToken_Failures(t *testing.T) {
	repo := &fakeAuthRepo{}
	svc := NewAuthService(repo, testAuthConfig())
	if _, err := svc.SignUp("skipper", "hunter2"); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	if _, err := svc.GenerateToken("ghost", "x"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := svc.GenerateToken("skipper", "wrong"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestAuth_ParseToken_RejectsForeignSignature(t *testing.T) {
	svcA := NewAuthService(&fakeAuthRepo{}, Config{SigningKey: "key-a", TokenTTL: time.Minute})
	svcB := NewAuthService(&fakeAuthRepo{}, Config{SigningKey: "key-b", TokenTTL: time.Minute})

	if _, err := svcA.SignUp("skipper", "hunter2"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	token, err := svcA.GenerateToken("skipper", "hunter2")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := svcB.ParseToken(token); err == nil {
		t.Fatalf("token signed with another key must not parse")
	}
}
