package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/contacts-manager/internal/repository"
	"github.com/iliyamo/contacts-manager/internal/testutil"
)

const testSecret = "test-secret"

// recorder keeps every published event.
type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	db       *sqlx.DB
	events   *recorder
	auth     *AuthService
	contacts *ContactService
	users    *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	log := zaptest.NewLogger(t)
	rec := &recorder{}
	userRepo := repository.NewUserRepo(db)
	contactRepo := repository.NewContactRepo(db)
	return &fixture{
		db:     db,
		events: rec,
		auth: NewAuthService(userRepo, AuthConfig{
			Secret:     testSecret,
			TokenTTL:   time.Hour,
			BcryptCost: bcrypt.MinCost,
		}, rec, log),
		contacts: NewContactService(contactRepo, userRepo, rec, log),
		users:    NewUserService(userRepo, rec, log),
	}
}

// register creates an account and returns the identity its token resolves to.
func (f *fixture) register(t *testing.T, name, email string) Identity {
	t.Helper()
	res, err := f.auth.Register(context.Background(), name, email, "secret1")
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	who, err := f.auth.Verify(res.Token)
	if err != nil {
		t.Fatalf("verify %s: %v", email, err)
	}
	return who
}

func (f *fixture) countRows(t *testing.T, table string) int {
	t.Helper()
	var n int
	if err := f.db.Get(&n, "SELECT COUNT(*) FROM "+table); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func expectKind(t *testing.T, err, kind error, msg string) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if msg != "" && se.Message != msg {
		t.Fatalf("expected message %q, got %q", msg, se.Message)
	}
}

func strPtr(s string) *string { return &s }
