package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/enclave-chat/enclave-server/internal/config"
	"github.com/enclave-chat/enclave-server/internal/invite"
	"github.com/enclave-chat/enclave-server/internal/user"
)

// fakeUserRepo is an in-memory user.Repository for service tests.
type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*user.Credentials
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*user.Credentials)}
}

func (f *fakeUserRepo) Create(_ context.Context, params user.CreateParams) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.users {
		if c.Username == params.Username {
			return nil, user.ErrUsernameTaken
		}
	}
	f.nextID++
	c := &user.Credentials{
		User: user.User{
			ID:        f.nextID,
			Username:  params.Username,
			PublicKey: params.PublicKey,
			CreatedAt: time.Now(),
			LastSeen:  time.Now(),
		},
		PasswordHash: params.PasswordHash,
	}
	f.users[c.ID] = c
	u := c.User
	return &u, nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id int64) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.users[id]; ok {
		u := c.User
		return &u, nil
	}
	return nil, user.ErrNotFound
}

func (f *fakeUserRepo) GetByUsername(_ context.Context, username string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.users {
		if c.Username == username {
			u := c.User
			return &u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (f *fakeUserRepo) GetCredentials(_ context.Context, username string) (*user.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.users {
		if c.Username == username {
			cc := *c
			return &cc, nil
		}
	}
	return nil, user.ErrNotFound
}

func (f *fakeUserRepo) GetAll(_ context.Context) ([]user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]user.User, 0, len(f.users))
	for _, c := range f.users {
		out = append(out, c.User)
	}
	return out, nil
}

func (f *fakeUserRepo) UpdatePublicKey(_ context.Context, id int64, key []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.users[id]
	if !ok {
		return user.ErrNotFound
	}
	c.PublicKey = key
	return nil
}

func (f *fakeUserRepo) UpdateLastSeen(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.users[id]; ok {
		c.LastSeen = time.Now()
	}
	return nil
}

func (f *fakeUserRepo) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users), nil
}

func (f *fakeUserRepo) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return user.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

// fakeInviteRepo is an in-memory invite.Repository. consumeErr, when set,
// forces Consume to fail regardless of state.
type fakeInviteRepo struct {
	mu         sync.Mutex
	nextID     int64
	invites    map[string]*invite.Invite
	consumeErr error
}

func newFakeInviteRepo() *fakeInviteRepo {
	return &fakeInviteRepo{invites: make(map[string]*invite.Invite)}
}

func (f *fakeInviteRepo) add(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.invites[code] = &invite.Invite{ID: f.nextID, Code: code, CreatedAt: time.Now()}
}

func (f *fakeInviteRepo) Create(_ context.Context) (*invite.Invite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	inv := &invite.Invite{ID: f.nextID, Code: "generated-code", CreatedAt: time.Now()}
	f.invites[inv.Code] = inv
	out := *inv
	return &out, nil
}

func (f *fakeInviteRepo) GetByCode(_ context.Context, code string) (*invite.Invite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invites[code]
	if !ok {
		return nil, invite.ErrNotFound
	}
	out := *inv
	return &out, nil
}

func (f *fakeInviteRepo) Consume(_ context.Context, code string, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumeErr != nil {
		return f.consumeErr
	}
	inv, ok := f.invites[code]
	if !ok {
		return invite.ErrNotFound
	}
	if inv.UsedBy != nil {
		return invite.ErrAlreadyUsed
	}
	now := time.Now()
	inv.UsedBy = &userID
	inv.UsedAt = &now
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Argon2Memory:      16384,
		Argon2Iterations:  1,
		Argon2Parallelism: 1,
		Argon2SaltLength:  16,
		Argon2KeyLength:   32,
		JWTSecret:         "test-secret",
		JWTTTL:            time.Hour,
	}
}

func newTestService(users *fakeUserRepo, invites *fakeInviteRepo) *Service {
	return NewService(users, invites, testConfig(), zerolog.Nop())
}

func TestRegisterBootstrap(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeUserRepo(), newFakeInviteRepo())

	res, err := svc.Register(context.Background(), RegisterRequest{
		Username:  "alice",
		Password:  "hunter2",
		PublicKey: []byte{1, 2, 3},
	})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if res.User.Username != "alice" {
		t.Errorf("Username = %q, want alice", res.User.Username)
	}
	if res.Token == "" {
		t.Error("Register() returned empty token")
	}

	claims, err := ValidateToken(res.Token, "test-secret")
	if err != nil {
		t.Fatalf("token from Register() did not validate: %v", err)
	}
	if claims.UserID != res.User.ID {
		t.Errorf("token user_id = %d, want %d", claims.UserID, res.User.ID)
	}
}

func TestRegisterInviteRequiredAfterBootstrap(t *testing.T) {
	t.Parallel()

	users := newFakeUserRepo()
	svc := newTestService(users, newFakeInviteRepo())
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{Username: "alice", Password: "hunter2"}); err != nil {
		t.Fatalf("bootstrap Register() error: %v", err)
	}

	_, err := svc.Register(ctx, RegisterRequest{Username: "bob", Password: "hunter2"})
	if !errors.Is(err, ErrInviteRequired) {
		t.Errorf("second Register() error = %v, want ErrInviteRequired", err)
	}
}

func TestRegisterWithInvite(t *testing.T) {
	t.Parallel()

	users := newFakeUserRepo()
	invites := newFakeInviteRepo()
	svc := newTestService(users, invites)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{Username: "alice", Password: "hunter2"}); err != nil {
		t.Fatalf("bootstrap Register() error: %v", err)
	}
	invites.add("goodcode")

	res, err := svc.Register(ctx, RegisterRequest{
		Username: "bob", Password: "hunter2", InviteCode: "goodcode",
	})
	if err != nil {
		t.Fatalf("Register() with invite error: %v", err)
	}

	inv, err := invites.GetByCode(ctx, "goodcode")
	if err != nil {
		t.Fatalf("GetByCode() error: %v", err)
	}
	if inv.UsedBy == nil || *inv.UsedBy != res.User.ID {
		t.Errorf("invite UsedBy = %v, want %d", inv.UsedBy, res.User.ID)
	}
}

func TestRegisterInvalidInvite(t *testing.T) {
	t.Parallel()

	users := newFakeUserRepo()
	invites := newFakeInviteRepo()
	svc := newTestService(users, invites)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{Username: "alice", Password: "hunter2"}); err != nil {
		t.Fatalf("bootstrap Register() error: %v", err)
	}
	invites.add("spent")
	if err := invites.Consume(ctx, "spent", 1); err != nil {
		t.Fatalf("Consume() error: %v", err)
	}

	for _, code := range []string{"missing", "spent"} {
		_, err := svc.Register(ctx, RegisterRequest{
			Username: "bob", Password: "hunter2", InviteCode: code,
		})
		if !errors.Is(err, ErrInviteInvalid) {
			t.Errorf("Register(code=%s) error = %v, want ErrInviteInvalid", code, err)
		}
	}
}

func TestRegisterRollsBackUserWhenConsumeRaces(t *testing.T) {
	t.Parallel()

	users := newFakeUserRepo()
	invites := newFakeInviteRepo()
	svc := newTestService(users, invites)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{Username: "alice", Password: "hunter2"}); err != nil {
		t.Fatalf("bootstrap Register() error: %v", err)
	}

	// The pre-check sees an unused invite, then the consume loses the race.
	invites.add("contested")
	invites.consumeErr = invite.ErrAlreadyUsed

	_, err := svc.Register(ctx, RegisterRequest{
		Username: "bob", Password: "hunter2", InviteCode: "contested",
	})
	if !errors.Is(err, ErrInviteInvalid) {
		t.Fatalf("Register() error = %v, want ErrInviteInvalid", err)
	}

	if _, err := users.GetByUsername(ctx, "bob"); !errors.Is(err, user.ErrNotFound) {
		t.Errorf("user bob survived a failed invite consume: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeUserRepo(), newFakeInviteRepo())
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{Username: "ab", Password: "hunter2"}); !errors.Is(err, ErrUsernameLength) {
		t.Errorf("short username error = %v, want ErrUsernameLength", err)
	}
	if _, err := svc.Register(ctx, RegisterRequest{Username: "alice", Password: "12345"}); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("short password error = %v, want ErrPasswordTooShort", err)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	t.Parallel()

	users := newFakeUserRepo()
	invites := newFakeInviteRepo()
	svc := newTestService(users, invites)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{Username: "alice", Password: "hunter2"}); err != nil {
		t.Fatalf("bootstrap Register() error: %v", err)
	}
	invites.add("code1")

	_, err := svc.Register(ctx, RegisterRequest{
		Username: "alice", Password: "hunter2", InviteCode: "code1",
	})
	if !errors.Is(err, user.ErrUsernameTaken) {
		t.Errorf("duplicate Register() error = %v, want ErrUsernameTaken", err)
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()

	users := newFakeUserRepo()
	svc := newTestService(users, newFakeInviteRepo())
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{Username: "alice", Password: "hunter2"}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	res, err := svc.Login(ctx, LoginRequest{Username: "alice", Password: "hunter2"})
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if res.Token == "" {
		t.Error("Login() returned empty token")
	}

	if _, err := svc.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, LoginRequest{Username: "ghost", Password: "hunter2"}); !errors.Is(err, user.ErrNotFound) {
		t.Errorf("unknown user error = %v, want user.ErrNotFound", err)
	}
}

func TestLoginDoesNotTouchLastSeen(t *testing.T) {
	t.Parallel()

	users := newFakeUserRepo()
	svc := newTestService(users, newFakeInviteRepo())
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterRequest{Username: "alice", Password: "hunter2"})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	before := users.users[res.User.ID].LastSeen

	if _, err := svc.Login(ctx, LoginRequest{Username: "alice", Password: "hunter2"}); err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	// Only the gateway refreshes last_seen, and only on connect.
	if after := users.users[res.User.ID].LastSeen; !after.Equal(before) {
		t.Errorf("last_seen moved from %v to %v on login", before, after)
	}
}

func TestValidateInvite(t *testing.T) {
	t.Parallel()

	invites := newFakeInviteRepo()
	svc := newTestService(newFakeUserRepo(), invites)
	ctx := context.Background()

	invites.add("fresh")
	invites.add("spent")
	if err := invites.Consume(ctx, "spent", 1); err != nil {
		t.Fatalf("Consume() error: %v", err)
	}

	tests := []struct {
		code string
		want bool
	}{
		{code: "fresh", want: true},
		{code: "spent", want: false},
		{code: "missing", want: false},
	}
	for _, tt := range tests {
		got, err := svc.ValidateInvite(ctx, tt.code)
		if err != nil {
			t.Fatalf("ValidateInvite(%s) error: %v", tt.code, err)
		}
		if got != tt.want {
			t.Errorf("ValidateInvite(%s) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
