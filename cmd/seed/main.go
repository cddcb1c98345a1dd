// seed creates the initial admin account, since self-registration cannot assign the admin role.
// Idempotent: skips the insert if an account with SEED_ADMIN_EMAIL already exists.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	accountdomain "health-portal/backend/internal/account/domain"
	accountrepo "health-portal/backend/internal/account/repository"
	"health-portal/backend/internal/autherr"
	"health-portal/backend/internal/config"
	"health-portal/backend/internal/db"
	"health-portal/backend/internal/security"
)

const (
	defaultAdminEmail    = "admin@example.com"
	defaultAdminUsername = "admin"
	defaultAdminPhone    = "+10000000000"
)

func main() {
	email := flag.String("email", envOr("SEED_ADMIN_EMAIL", defaultAdminEmail), "admin email")
	username := flag.String("username", envOr("SEED_ADMIN_USERNAME", defaultAdminUsername), "admin username")
	phone := flag.String("phone", envOr("SEED_ADMIN_PHONE", defaultAdminPhone), "admin phone")
	flag.Parse()

	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if len(password) < 8 {
		log.Fatal("SEED_ADMIN_PASSWORD must be set (at least 8 characters)")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	accounts := accountrepo.NewSQLRepository(conn, cfg.DatabaseDriver)

	_, err = accounts.GetByEmail(ctx, *email)
	if err == nil {
		log.Printf("Seed already applied (%s exists). Skipping.", *email)
		return
	}
	if !errors.Is(err, autherr.ErrAccountNotFound) {
		log.Fatalf("seed check: %v", err)
	}

	hash, err := security.NewHasher(cfg.BcryptCost, cfg.HashConcurrency).Hash(ctx, password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	admin := &accountdomain.Account{
		ID:           uuid.New().String(),
		Username:     *username,
		Email:        accountdomain.NormalizeEmail(*email),
		Phone:        *phone,
		PasswordHash: hash,
		Role:         accountdomain.RoleAdmin,
		Status:       accountdomain.StatusActive,
		Verified:     true,
	}
	if err := admin.Validate(); err != nil {
		log.Fatalf("admin account: %v", err)
	}
	if err := accounts.Create(ctx, admin); err != nil {
		log.Fatalf("create admin: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Admin login: %s (id %s)\n", admin.Email, admin.ID)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
