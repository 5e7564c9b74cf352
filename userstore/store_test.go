package userstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authcore "github.com/vidyalay/authcore"
)

func newTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "ac", time.Hour)

	return store, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func seedUser(t *testing.T, store *Store, userID, identifier string, tokens ...string) {
	t.Helper()

	err := store.CreateUser(context.Background(), &authcore.UserRecord{
		UserID:       userID,
		Name:         "Asha Verma",
		Identifier:   identifier,
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=2$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		Roles:        authcore.RoleStudent,
	})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}

	if len(tokens) > 0 {
		if err := store.ReplaceRefreshTokens(context.Background(), userID, tokens); err != nil {
			t.Fatalf("seed tokens failed: %v", err)
		}
	}
}

func TestCreateAndFind(t *testing.T) {
	store, done := newTestStore(t)
	defer done()

	seedUser(t, store, "u1", "9876500001")

	byIdent, err := store.FindByIdentifier(context.Background(), "9876500001")
	if err != nil {
		t.Fatalf("find by identifier failed: %v", err)
	}
	if byIdent.UserID != "u1" || byIdent.Name != "Asha Verma" {
		t.Fatalf("unexpected record: %+v", byIdent)
	}

	byID, err := store.FindByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("find by id failed: %v", err)
	}
	if byID.Identifier != "9876500001" || byID.Roles != authcore.RoleStudent {
		t.Fatalf("unexpected record: %+v", byID)
	}

	if _, err := store.FindByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateDuplicateIdentifier(t *testing.T) {
	store, done := newTestStore(t)
	defer done()

	seedUser(t, store, "u1", "9876500001")

	err := store.CreateUser(context.Background(), &authcore.UserRecord{
		UserID:       "u2",
		Name:         "Someone Else",
		Identifier:   "9876500001",
		PasswordHash: "x",
		Roles:        authcore.RoleStudent,
	})
	if !errors.Is(err, ErrDuplicateIdentifier) {
		t.Fatalf("expected ErrDuplicateIdentifier, got %v", err)
	}
}

func TestReplaceAndFindByRefreshToken(t *testing.T) {
	store, done := newTestStore(t)
	defer done()

	seedUser(t, store, "u1", "9876500001", "tok-a", "tok-b")

	owner, err := store.FindByRefreshToken(context.Background(), "tok-a")
	if err != nil {
		t.Fatalf("find by refresh token failed: %v", err)
	}
	if owner.UserID != "u1" {
		t.Fatalf("expected owner u1, got %q", owner.UserID)
	}
	if len(owner.RefreshTokens) != 2 {
		t.Fatalf("expected 2 tokens, got %v", owner.RefreshTokens)
	}

	if _, err := store.FindByRefreshToken(context.Background(), "tok-unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Replacing drops the old reverse index entries.
	if err := store.ReplaceRefreshTokens(context.Background(), "u1", []string{"tok-c"}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	if _, err := store.FindByRefreshToken(context.Background(), "tok-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old token to be unindexed, got %v", err)
	}
}

func TestRotateRefreshToken(t *testing.T) {
	store, done := newTestStore(t)
	defer done()

	seedUser(t, store, "u1", "9876500001", "tok-a")

	outcome, err := store.RotateRefreshToken(context.Background(), "u1", "tok-a", "tok-b")
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if outcome != authcore.RotateOK {
		t.Fatalf("expected RotateOK, got %v", outcome)
	}

	// The presented token is gone and the replacement resolves.
	if _, err := store.FindByRefreshToken(context.Background(), "tok-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected rotated-out token to be gone, got %v", err)
	}
	owner, err := store.FindByRefreshToken(context.Background(), "tok-b")
	if err != nil || owner.UserID != "u1" {
		t.Fatalf("expected tok-b to resolve to u1: %v", err)
	}

	// Presenting the consumed token again misses the CAS.
	outcome, err = store.RotateRefreshToken(context.Background(), "u1", "tok-a", "tok-c")
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if outcome != authcore.RotateTokenMissing {
		t.Fatalf("expected RotateTokenMissing, got %v", outcome)
	}
}

func TestRotateUserMissing(t *testing.T) {
	store, done := newTestStore(t)
	defer done()

	outcome, err := store.RotateRefreshToken(context.Background(), "ghost", "tok-a", "tok-b")
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if outcome != authcore.RotateUserMissing {
		t.Fatalf("expected RotateUserMissing, got %v", outcome)
	}
}

func TestRotateConcurrentSingleWinner(t *testing.T) {
	store, done := newTestStore(t)
	defer done()

	seedUser(t, store, "u1", "9876500001", "tok-a")

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	outcomes := make(chan authcore.RotateOutcome, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			next := "tok-next-" + string(rune('a'+i))
			outcome, err := store.RotateRefreshToken(context.Background(), "u1", "tok-a", next)
			if err != nil {
				t.Errorf("rotate failed: %v", err)
				return
			}
			outcomes <- outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	wins := 0
	for outcome := range outcomes {
		if outcome == authcore.RotateOK {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one rotation winner, got %d", wins)
	}
}

func TestRemoveAndClear(t *testing.T) {
	store, done := newTestStore(t)
	defer done()

	seedUser(t, store, "u1", "9876500001", "tok-a", "tok-b")

	if err := store.RemoveRefreshToken(context.Background(), "u1", "tok-a"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	// Removing again is a no-op.
	if err := store.RemoveRefreshToken(context.Background(), "u1", "tok-a"); err != nil {
		t.Fatalf("second remove failed: %v", err)
	}

	user, err := store.FindByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(user.RefreshTokens) != 1 || user.RefreshTokens[0] != "tok-b" {
		t.Fatalf("expected only tok-b to remain, got %v", user.RefreshTokens)
	}

	if err := store.ClearRefreshTokens(context.Background(), "u1"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	user, err = store.FindByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(user.RefreshTokens) != 0 {
		t.Fatalf("expected no tokens after clear, got %v", user.RefreshTokens)
	}
	if _, err := store.FindByRefreshToken(context.Background(), "tok-b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected cleared token to be unindexed, got %v", err)
	}
}
