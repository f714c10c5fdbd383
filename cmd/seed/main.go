// seed creates a verified ACTIVE demo identity for local testing. Safe to run repeatedly:
// nothing is written when the demo email is already registered.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"identity-session-engine/internal/config"
	"identity-session-engine/internal/db"
	"identity-session-engine/internal/identity/domain"
	identityrepo "identity-session-engine/internal/identity/repository"
	"identity-session-engine/internal/logger"
	"identity-session-engine/internal/security"
)

const (
	demoName       = "Demo User"
	demoEmail      = "demo@example.com"
	demoPhone      = "+51999888777"
	demoNationalID = "40000001"
	demoPassword   = "Demo!pass123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is not set; set it in the environment or .env")
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		log.Error("db open failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	created, err := seed(ctx, identityrepo.NewPostgresRepository(pool), security.NewHasher(cfg.Engine().BcryptCost))
	if err != nil {
		log.Error("seed failed", "error", err)
		os.Exit(1)
	}
	if !created {
		log.Info("seed already applied; skipping", "email", demoEmail)
		return
	}
	log.Info("seed completed")
	fmt.Printf("Demo login: %s / %s\n", demoEmail, demoPassword)
}

// seed inserts the demo identity unless its email is taken. It reports whether a row was written.
func seed(ctx context.Context, repo identityrepo.Repository, hasher *security.Hasher) (bool, error) {
	exists, err := repo.ExistsByEmail(ctx, demoEmail)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	hash, err := hasher.Hash([]byte(demoPassword))
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	return true, repo.Create(ctx, &domain.Identity{
		ID:           uuid.NewString(),
		FullName:     demoName,
		Email:        demoEmail,
		PhoneNumber:  demoPhone,
		NationalID:   demoNationalID,
		PasswordHash: hash,
		Verified:     true,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}
