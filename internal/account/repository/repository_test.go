package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"health-portal/backend/internal/account/domain"
	"health-portal/backend/internal/autherr"
	"health-portal/backend/internal/db"
	"health-portal/backend/internal/db/migrate"
)

func newSQLiteRepo(t *testing.T) *SQLRepository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.db")
	if err := migrate.Run(db.DriverSQLite, path, "up"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	conn, err := db.Open(db.DriverSQLite, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewSQLRepository(conn, db.DriverSQLite)
}

// repos returns every implementation so the same behaviour is checked against each.
func repos(t *testing.T) map[string]Repository {
	return map[string]Repository{
		"memory": NewMemoryRepository(),
		"sqlite": newSQLiteRepo(t),
	}
}

func newAccount(username, email string) *domain.Account {
	return &domain.Account{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		Phone:        "252610000000",
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
		Role:         domain.RoleUser,
		Status:       domain.StatusActive,
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRepository_CreateAndGet(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := newAccount("alice", "alice@example.com")
			a.ProfilePictureRef = "profile_1.png"
			if err := repo.Create(ctx, a); err != nil {
				t.Fatalf("Create: %v", err)
			}

			byID, err := repo.GetByID(ctx, a.ID)
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			if byID.Email != "alice@example.com" || byID.Username != "alice" || byID.Verified {
				t.Errorf("GetByID = %+v", byID)
			}
			if byID.PasswordHash != a.PasswordHash || byID.ProfilePictureRef != "profile_1.png" {
				t.Errorf("GetByID hash/picture = %q/%q", byID.PasswordHash, byID.ProfilePictureRef)
			}
			if !byID.CreatedAt.Equal(a.CreatedAt) {
				t.Errorf("CreatedAt = %v, want %v", byID.CreatedAt, a.CreatedAt)
			}

			byEmail, err := repo.GetByEmail(ctx, "  ALICE@example.com")
			if err != nil {
				t.Fatalf("GetByEmail: %v", err)
			}
			if byEmail.ID != a.ID {
				t.Errorf("GetByEmail ID = %q, want %q", byEmail.ID, a.ID)
			}
		})
	}
}

func TestRepository_NotFound(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, autherr.ErrAccountNotFound) {
				t.Errorf("GetByID = %v, want ErrAccountNotFound", err)
			}
			if _, err := repo.GetByEmail(ctx, "nobody@example.com"); !errors.Is(err, autherr.ErrAccountNotFound) {
				t.Errorf("GetByEmail = %v, want ErrAccountNotFound", err)
			}
			verified := true
			if _, err := repo.Update(ctx, "missing", domain.Patch{Verified: &verified}); !errors.Is(err, autherr.ErrAccountNotFound) {
				t.Errorf("Update = %v, want ErrAccountNotFound", err)
			}
		})
	}
}

func TestRepository_CreateDuplicate(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := repo.Create(ctx, newAccount("alice", "alice@example.com")); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if err := repo.Create(ctx, newAccount("alice2", "alice@example.com")); !errors.Is(err, autherr.ErrDuplicateAccount) {
				t.Errorf("duplicate email: got %v, want ErrDuplicateAccount", err)
			}
			if err := repo.Create(ctx, newAccount("alice", "other@example.com")); !errors.Is(err, autherr.ErrDuplicateAccount) {
				t.Errorf("duplicate username: got %v, want ErrDuplicateAccount", err)
			}
		})
	}
}

func TestRepository_UpdatePartial(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := newAccount("bob", "bob@example.com")
			if err := repo.Create(ctx, a); err != nil {
				t.Fatalf("Create: %v", err)
			}
			email := "Bob2@Example.com"
			username := "Bob B"
			updated, err := repo.Update(ctx, a.ID, domain.Patch{Email: &email, Username: &username})
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if updated.Email != "bob2@example.com" || updated.Username != "Bob B" {
				t.Errorf("Update = %+v", updated)
			}
			if updated.Phone != a.Phone || updated.PasswordHash != a.PasswordHash {
				t.Error("Update changed fields outside the patch")
			}
			if _, err := repo.GetByEmail(ctx, "bob@example.com"); !errors.Is(err, autherr.ErrAccountNotFound) {
				t.Errorf("old email lookup = %v, want ErrAccountNotFound", err)
			}

			status := domain.StatusInactive
			reset := true
			updated, err = repo.Update(ctx, a.ID, domain.Patch{Status: &status, ResetAuthorized: &reset})
			if err != nil {
				t.Fatalf("Update status: %v", err)
			}
			if updated.Status != domain.StatusInactive || !updated.ResetAuthorized {
				t.Errorf("Update status = %+v", updated)
			}

			same, err := repo.Update(ctx, a.ID, domain.Patch{})
			if err != nil {
				t.Fatalf("empty Update: %v", err)
			}
			if same.Username != "Bob B" {
				t.Errorf("empty Update returned %+v", same)
			}
		})
	}
}

func TestRepository_UpdateDuplicate(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := newAccount("alice", "alice@example.com")
			b := newAccount("bob", "bob@example.com")
			for _, acc := range []*domain.Account{a, b} {
				if err := repo.Create(ctx, acc); err != nil {
					t.Fatalf("Create: %v", err)
				}
			}
			email := "alice@example.com"
			if _, err := repo.Update(ctx, b.ID, domain.Patch{Email: &email}); !errors.Is(err, autherr.ErrDuplicateAccount) {
				t.Errorf("Update to taken email = %v, want ErrDuplicateAccount", err)
			}
			got, err := repo.GetByID(ctx, b.ID)
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			if got.Email != "bob@example.com" {
				t.Errorf("failed update leaked: email = %q", got.Email)
			}
		})
	}
}

func TestRepository_ConsumeResetAuthorization(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := newAccount("carol", "carol@example.com")
			if err := repo.Create(ctx, a); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if _, err := repo.ConsumeResetAuthorization(ctx, a.ID, "hash-1"); !errors.Is(err, autherr.ErrResetNotAuthorized) {
				t.Errorf("consume without flag = %v, want ErrResetNotAuthorized", err)
			}
			reset := true
			if _, err := repo.Update(ctx, a.ID, domain.Patch{ResetAuthorized: &reset}); err != nil {
				t.Fatalf("Update: %v", err)
			}
			got, err := repo.ConsumeResetAuthorization(ctx, a.ID, "hash-2")
			if err != nil {
				t.Fatalf("ConsumeResetAuthorization: %v", err)
			}
			if got.PasswordHash != "hash-2" || got.ResetAuthorized {
				t.Errorf("ConsumeResetAuthorization = %+v", got)
			}
			if _, err := repo.ConsumeResetAuthorization(ctx, a.ID, "hash-3"); !errors.Is(err, autherr.ErrResetNotAuthorized) {
				t.Errorf("second consume = %v, want ErrResetNotAuthorized", err)
			}
			stored, err := repo.GetByID(ctx, a.ID)
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			if stored.PasswordHash != "hash-2" {
				t.Errorf("password hash = %q, want hash-2", stored.PasswordHash)
			}
			if _, err := repo.ConsumeResetAuthorization(ctx, uuid.New().String(), "x"); !errors.Is(err, autherr.ErrAccountNotFound) {
				t.Errorf("consume unknown = %v, want ErrAccountNotFound", err)
			}
		})
	}
}

func TestRepository_ConcurrentConsumeResetAuthorization(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := newAccount("dave", "dave@example.com")
			a.ResetAuthorized = true
			if err := repo.Create(ctx, a); err != nil {
				t.Fatalf("Create: %v", err)
			}
			const workers = 8
			var (
				wg    sync.WaitGroup
				mu    sync.Mutex
				won   int
				start = make(chan struct{})
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := repo.ConsumeResetAuthorization(ctx, a.ID, uuid.New().String())
					switch {
					case err == nil:
						mu.Lock()
						won++
						mu.Unlock()
					case !errors.Is(err, autherr.ErrResetNotAuthorized):
						t.Errorf("consume: %v", err)
					}
				}()
			}
			close(start)
			wg.Wait()
			if won != 1 {
				t.Errorf("successful consumes = %d, want exactly 1", won)
			}
		})
	}
}

func TestMemoryRepository_ConcurrentCreateSameEmail(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := newAccount(uuid.New().String(), "same@example.com")
			if err := repo.Create(ctx, a); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if created != 1 {
		t.Errorf("created = %d, want exactly 1", created)
	}
}

func TestSQLRepository_Rebind(t *testing.T) {
	r := &SQLRepository{driver: db.DriverPostgres}
	got := r.rebind("UPDATE accounts SET a = ?, b = ? WHERE id = ?")
	if got != "UPDATE accounts SET a = $1, b = $2 WHERE id = $3" {
		t.Errorf("rebind = %q", got)
	}
	r.driver = db.DriverSQLite
	if got := r.rebind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
}
