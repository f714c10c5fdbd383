package main

import (
	"context"
	"testing"

	identityrepo "identity-session-engine/internal/identity/repository"
	"identity-session-engine/internal/security"
)

func TestSeed_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := identityrepo.NewMemoryRepository()
	hasher := security.NewHasher(4)

	created, err := seed(ctx, repo, hasher)
	if err != nil || !created {
		t.Fatalf("first seed = %v, %v; want true, nil", created, err)
	}
	created, err = seed(ctx, repo, hasher)
	if err != nil || created {
		t.Fatalf("second seed = %v, %v; want false, nil", created, err)
	}

	i, _ := repo.GetByEmail(ctx, demoEmail)
	if i == nil || !i.Verified || i.Status != "ACTIVE" {
		t.Fatalf("seeded identity = %+v, want verified ACTIVE", i)
	}
	ok, err := hasher.Verify(i.PasswordHash, []byte(demoPassword))
	if err != nil || !ok {
		t.Errorf("demo password should verify: %v", err)
	}
}
