package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/enclave-chat/enclave-server/internal/auth"
	"github.com/enclave-chat/enclave-server/internal/config"
	"github.com/enclave-chat/enclave-server/internal/gateway"
	"github.com/enclave-chat/enclave-server/internal/invite"
	"github.com/enclave-chat/enclave-server/internal/message"
	"github.com/enclave-chat/enclave-server/internal/user"
)

// fakeUserRepo is an in-memory user.Repository.
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

// fakeMessageRepo is an in-memory message.Repository.
type fakeMessageRepo struct {
	mu       sync.Mutex
	nextID   int64
	messages []message.Message
	saveErr  error
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{}
}

func (f *fakeMessageRepo) Save(_ context.Context, params message.SaveParams) (*message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	msgType := params.Type
	if msgType == "" {
		msgType = message.TypeText
	}
	f.nextID++
	m := message.Message{
		ID:         f.nextID,
		SenderID:   params.SenderID,
		ReceiverID: params.ReceiverID,
		Type:       msgType,
		Content:    params.Content,
		Nonce:      params.Nonce,
		Timestamp:  time.Now(),
	}
	f.messages = append(f.messages, m)
	out := m
	return &out, nil
}

func (f *fakeMessageRepo) ListBetween(_ context.Context, a, b int64, limit, offset int) ([]message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]message.Message, 0)
	for i := len(f.messages) - 1; i >= 0; i-- {
		m := f.messages[i]
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, m)
		}
	}
	limit = message.ClampLimit(limit)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMessageRepo) MarkRead(_ context.Context, senderID, receiverID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.messages {
		m := &f.messages[i]
		if m.SenderID == senderID && m.ReceiverID == receiverID {
			m.Read = true
		}
	}
	return nil
}

func (f *fakeMessageRepo) DeleteBetween(_ context.Context, a, b int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.messages[:0]
	for _, m := range f.messages {
		between := (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
		if !between {
			kept = append(kept, m)
		}
	}
	f.messages = kept
	return nil
}

// fakeInviteRepo is an in-memory invite.Repository.
type fakeInviteRepo struct {
	mu      sync.Mutex
	nextID  int64
	invites map[string]*invite.Invite
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
	inv := &invite.Invite{ID: f.nextID, Code: "11112222333344445555666677778888", CreatedAt: time.Now()}
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

// fakeHub records envelope deliveries.
type fakeHub struct {
	mu     sync.Mutex
	online map[int64]bool
	sent   []sentEnvelope
}

type sentEnvelope struct {
	to  int64
	env gateway.Envelope
}

func newFakeHub(online ...int64) *fakeHub {
	h := &fakeHub{online: make(map[int64]bool)}
	for _, id := range online {
		h.online[id] = true
	}
	return h
}

func (f *fakeHub) IsOnline(userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[userID]
}

func (f *fakeHub) SendMessage(to int64, env gateway.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEnvelope{to: to, env: env})
}

func (f *fakeHub) delivered() []sentEnvelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentEnvelope(nil), f.sent...)
}

// testEnv bundles the app and its fakes.
type testEnv struct {
	app      *fiber.App
	cfg      *config.Config
	users    *fakeUserRepo
	messages *fakeMessageRepo
	invites  *fakeInviteRepo
	hub      *fakeHub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Argon2Memory:      16384,
		Argon2Iterations:  1,
		Argon2Parallelism: 1,
		Argon2SaltLength:  16,
		Argon2KeyLength:   32,
		JWTSecret:         "test-secret",
		JWTTTL:            time.Hour,
	}

	env := &testEnv{
		cfg:      cfg,
		users:    newFakeUserRepo(),
		messages: newFakeMessageRepo(),
		invites:  newFakeInviteRepo(),
		hub:      newFakeHub(),
	}

	env.app = fiber.New()
	Register(env.app, Deps{
		Config:   cfg,
		Users:    env.users,
		Messages: env.messages,
		Invites:  env.invites,
		Auth:     auth.NewService(env.users, env.invites, cfg, zerolog.Nop()),
		Hub:      env.hub,
		Log:      zerolog.Nop(),
	})
	return env
}

// addUser seeds an account and returns its id and a valid token.
func (e *testEnv) addUser(t *testing.T, username string) (int64, string) {
	t.Helper()

	u, err := e.users.Create(context.Background(), user.CreateParams{
		Username:     username,
		PasswordHash: "unused",
		PublicKey:    []byte{1},
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	token, err := auth.NewToken(u.ID, username, e.cfg.JWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("token for %s: %v", username, err)
	}
	return u.ID, token
}

// doJSON performs a request with an optional body and bearer token.
func (e *testEnv) doJSON(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	return resp
}

// decodeBody reads and JSON-decodes a response body.
func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("decoding JSON: %v\nraw: %s", err, raw)
	}
}

func wantStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()

	if resp.StatusCode != want {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, want, raw)
	}
}
