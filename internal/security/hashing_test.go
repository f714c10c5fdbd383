package security

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"identity-session-engine/internal/autherr"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	password := []byte("Secret123!")
	hash, err := h.Hash(password)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" || hash == string(password) {
		t.Fatal("Hash returned empty or plaintext")
	}
	ok, err := h.Verify(hash, password)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("Verify should accept the hashed password")
	}
}

func TestHasher_VerifyWrongPassword(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, _ := h.Hash([]byte("Secret123!"))
	ok, err := h.Verify(hash, []byte("Secret124!"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("Verify with wrong password should fail")
	}
}

func TestHasher_HashIsSalted(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	a, _ := h.Hash([]byte("Secret123!"))
	b, _ := h.Hash([]byte("Secret123!"))
	if a == b {
		t.Error("two hashes of the same password should differ")
	}
}

func TestHasher_VerifyMalformedHashIsFailureNotError(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	ok, err := h.Verify("not-a-bcrypt-hash", []byte("Secret123!"))
	if err != nil {
		t.Fatalf("Verify malformed hash: want nil error, got %v", err)
	}
	if ok {
		t.Fatal("Verify malformed hash should fail")
	}
}

func TestHasher_EmptyInputsAreMalformed(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	if _, err := h.Hash(nil); !errors.Is(err, autherr.ErrMalformedInput) {
		t.Errorf("Hash(nil): want ErrMalformedInput, got %v", err)
	}
	if _, err := h.Verify("", []byte("x")); !errors.Is(err, autherr.ErrMalformedInput) {
		t.Errorf("Verify empty hash: want ErrMalformedInput, got %v", err)
	}
	if _, err := h.Verify("$2a$04$abc", nil); !errors.Is(err, autherr.ErrMalformedInput) {
		t.Errorf("Verify empty password: want ErrMalformedInput, got %v", err)
	}
}

func TestHasher_HashTooLong(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	_, err := h.Hash([]byte(strings.Repeat("a", 73)))
	if !errors.Is(err, autherr.ErrMalformedInput) {
		t.Errorf("Hash 73 bytes: want ErrMalformedInput, got %v", err)
	}
}

func TestHasher_Cost(t *testing.T) {
	testCases := []struct {
		in, want int
	}{
		{12, 12},
		{0, 12},
		{-1, 12},
		{2, bcrypt.MinCost},
		{40, bcrypt.MaxCost},
	}
	for _, tc := range testCases {
		if got := NewHasher(tc.in).Cost; got != tc.want {
			t.Errorf("NewHasher(%d).Cost = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestHasher_NeedsRehash(t *testing.T) {
	weak := NewHasher(bcrypt.MinCost)
	hash, err := weak.Hash([]byte("Secret123!"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if weak.NeedsRehash(hash) {
		t.Error("hash at current cost should not need rehash")
	}
	stronger := NewHasher(bcrypt.MinCost + 1)
	if !stronger.NeedsRehash(hash) {
		t.Error("hash below current cost should need rehash")
	}
	if !stronger.NeedsRehash("garbage") {
		t.Error("unparsable hash should need rehash")
	}
	// An older, weaker hash still verifies under the stronger policy.
	if ok, _ := stronger.Verify(hash, []byte("Secret123!")); !ok {
		t.Error("raising cost must not invalidate old hashes")
	}
}

func TestHasher_EqualizeTiming(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	h.EqualizeTiming([]byte("anything"))
	if len(h.dummyHash) == 0 {
		t.Fatal("dummy hash should be initialized")
	}
	first := string(h.dummyHash)
	h.EqualizeTiming([]byte("again"))
	if string(h.dummyHash) != first {
		t.Error("dummy hash should be computed once")
	}
}
