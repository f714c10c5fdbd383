package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"identity-session-engine/internal/autherr"
	"identity-session-engine/internal/config"
	"identity-session-engine/internal/otp/domain"
	"identity-session-engine/internal/otp/repository"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// sequence returns the queued codes in order, repeating the last one.
type sequence struct {
	mu    sync.Mutex
	codes []string
	calls int
}

func (s *sequence) Code(int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.codes) == 1 {
		return s.codes[0], nil
	}
	c := s.codes[0]
	s.codes = s.codes[1:]
	return c, nil
}

const alice = "id-alice"

func newManager(t *testing.T, codes ...string) (*Manager, *repository.MemoryRepository, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	repo := repository.NewMemoryRepository()
	opts := []Option{WithClock(c.Now)}
	if len(codes) > 0 {
		opts = append(opts, WithCodeSource(&sequence{codes: codes}))
	}
	return NewManager(repo, config.DefaultEngine(), opts...), repo, c
}

func wantReason(t *testing.T, err error, reason autherr.OTPReason, remaining int) {
	t.Helper()
	var rej *autherr.OTPRejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want OTPRejectedError", err)
	}
	if rej.Reason != reason || rej.AttemptsRemaining != remaining {
		t.Fatalf("got %s/%d, want %s/%d", rej.Reason, rej.AttemptsRemaining, reason, remaining)
	}
}

func TestIssue_ReturnsSixDigitCodeAndCooldown(t *testing.T) {
	m, repo, c := newManager(t)
	issued, err := m.Issue(context.Background(), alice, domain.PurposeEmailVerification)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(issued.Code) != 6 {
		t.Errorf("len(code) = %d, want 6", len(issued.Code))
	}
	for _, r := range issued.Code {
		if r < '0' || r > '9' {
			t.Fatalf("code %q contains non-digit", issued.Code)
		}
	}
	if issued.CooldownSeconds != 60 {
		t.Errorf("CooldownSeconds = %d, want 60", issued.CooldownSeconds)
	}
	if want := c.Now().Add(5 * time.Minute); !issued.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", issued.ExpiresAt, want)
	}
	stored, ok := repo.Get(issued.ChallengeID)
	if !ok {
		t.Fatal("challenge not persisted")
	}
	if stored.CodeHash == issued.Code || stored.CodeHash == "" {
		t.Error("challenge must store a digest, not the code")
	}
	if stored.Attempts != 0 || stored.Used {
		t.Errorf("fresh challenge = %+v", stored)
	}
}

func TestIssue_CooldownCountsDown(t *testing.T) {
	m, repo, c := newManager(t, "111111", "222222")
	ctx := context.Background()
	first, err := m.Issue(ctx, alice, domain.PurposeEmailVerification)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	prev := 61
	for _, step := range []time.Duration{0, 500 * time.Millisecond, 10 * time.Second, 30 * time.Second, 19 * time.Second} {
		c.Advance(step)
		_, err := m.Issue(ctx, alice, domain.PurposeEmailVerification)
		var cd *autherr.OTPCooldownError
		if !errors.As(err, &cd) {
			t.Fatalf("err = %v, want OTPCooldownError", err)
		}
		if cd.SecondsRemaining >= prev && step > time.Second {
			t.Errorf("SecondsRemaining = %d, want below %d", cd.SecondsRemaining, prev)
		}
		if cd.SecondsRemaining < 1 || cd.SecondsRemaining > 60 {
			t.Errorf("SecondsRemaining = %d out of range", cd.SecondsRemaining)
		}
		prev = cd.SecondsRemaining
	}
	if n := repo.Count(alice, domain.PurposeEmailVerification); n != 1 {
		t.Errorf("challenges = %d, want 1", n)
	}
	if err := m.Verify(ctx, alice, domain.PurposeEmailVerification, first.Code); err != nil {
		t.Errorf("first code should still verify: %v", err)
	}
}

func TestIssue_CooldownRoundsUp(t *testing.T) {
	m, _, c := newManager(t)
	ctx := context.Background()
	if _, err := m.Issue(ctx, alice, domain.PurposeEmailVerification); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	c.Advance(59*time.Second + 100*time.Millisecond)
	_, err := m.Issue(ctx, alice, domain.PurposeEmailVerification)
	var cd *autherr.OTPCooldownError
	if !errors.As(err, &cd) {
		t.Fatalf("err = %v, want OTPCooldownError", err)
	}
	if cd.SecondsRemaining != 1 {
		t.Errorf("SecondsRemaining = %d, want 1", cd.SecondsRemaining)
	}
}

func TestIssue_AfterCooldownInvalidatesPrevious(t *testing.T) {
	m, repo, c := newManager(t, "111111", "222222")
	ctx := context.Background()
	first, err := m.Issue(ctx, alice, domain.PurposeEmailVerification)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	c.Advance(60 * time.Second)
	second, err := m.Issue(ctx, alice, domain.PurposeEmailVerification)
	if err != nil {
		t.Fatalf("second Issue: %v", err)
	}
	if old, _ := repo.Get(first.ChallengeID); !old.Used {
		t.Error("previous challenge should be invalidated")
	}
	wantReason(t, m.Verify(ctx, alice, domain.PurposeEmailVerification, first.Code), autherr.OTPCodeMismatch, 2)
	if err := m.Verify(ctx, alice, domain.PurposeEmailVerification, second.Code); err != nil {
		t.Errorf("Verify second: %v", err)
	}
}

func TestIssue_NewCodeDiffersFromReplacedCode(t *testing.T) {
	src := &sequence{codes: []string{"424242", "424242", "424242", "909090"}}
	c := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	m := NewManager(repository.NewMemoryRepository(), config.DefaultEngine(), WithClock(c.Now), WithCodeSource(src))
	ctx := context.Background()
	first, err := m.Issue(ctx, alice, domain.PurposeEmailVerification)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	c.Advance(2 * time.Minute)
	second, err := m.Issue(ctx, alice, domain.PurposeEmailVerification)
	if err != nil {
		t.Fatalf("second Issue: %v", err)
	}
	if second.Code == first.Code {
		t.Errorf("replacement code %q equals the previous code", second.Code)
	}
}

func TestIssue_StuckCodeSourceFails(t *testing.T) {
	m, _, c := newManager(t, "424242")
	ctx := context.Background()
	if _, err := m.Issue(ctx, alice, domain.PurposeEmailVerification); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	c.Advance(2 * time.Minute)
	if _, err := m.Issue(ctx, alice, domain.PurposeEmailVerification); err == nil {
		t.Fatal("Issue should fail when the source only repeats the previous code")
	}
}

func TestIssue_ExpiredChallengeDoesNotBlock(t *testing.T) {
	m, _, c := newManager(t, "111111", "222222")
	ctx := context.Background()
	if _, err := m.Issue(ctx, alice, domain.PurposeEmailVerification); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	c.Advance(6 * time.Minute)
	if _, err := m.Issue(ctx, alice, domain.PurposeEmailVerification); err != nil {
		t.Errorf("Issue after expiry: %v", err)
	}
}

func TestIssue_PurposesAreIndependent(t *testing.T) {
	m, _, _ := newManager(t, "111111", "222222")
	ctx := context.Background()
	if _, err := m.Issue(ctx, alice, domain.PurposeEmailVerification); err != nil {
		t.Fatalf("Issue email: %v", err)
	}
	if _, err := m.Issue(ctx, alice, domain.PurposePhoneVerification); err != nil {
		t.Errorf("Issue phone should not hit email cooldown: %v", err)
	}
	if _, err := m.Issue(ctx, "id-bob", domain.PurposeEmailVerification); err != nil {
		t.Errorf("Issue for another identity: %v", err)
	}
}

func TestVerify_CorrectCodeConsumesChallenge(t *testing.T) {
	m, _, _ := newManager(t, "123456")
	ctx := context.Background()
	if _, err := m.Issue(ctx, alice, domain.PurposeEmailVerification); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := m.Verify(ctx, alice, domain.PurposeEmailVerification, "123456"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	wantReason(t, m.Verify(ctx, alice, domain.PurposeEmailVerification, "123456"), autherr.OTPNoActiveChallenge, 0)
}

func TestVerify_WrongCodeThreeTimesThenExhausted(t *testing.T) {
	m, repo, _ := newManager(t, "123456")
	ctx := context.Background()
	issued, err := m.Issue(ctx, alice, domain.PurposeEmailVerification)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	for _, want := range []int{2, 1, 0} {
		wantReason(t, m.Verify(ctx, alice, domain.PurposeEmailVerification, "000000"), autherr.OTPCodeMismatch, want)
	}
	if got, _ := repo.Get(issued.ChallengeID); got.Attempts != 3 || got.Used {
		t.Errorf("after three misses = %+v, want attempts 3 and unused", got)
	}
	wantReason(t, m.Verify(ctx, alice, domain.PurposeEmailVerification, "123456"), autherr.OTPAttemptsExhausted, 0)
	if got, _ := repo.Get(issued.ChallengeID); !got.Used {
		t.Error("exhausted challenge should be marked used")
	}
	wantReason(t, m.Verify(ctx, alice, domain.PurposeEmailVerification, "123456"), autherr.OTPNoActiveChallenge, 0)
}

func TestVerify_NoChallenge(t *testing.T) {
	m, _, _ := newManager(t)
	wantReason(t, m.Verify(context.Background(), alice, domain.PurposeEmailVerification, "123456"), autherr.OTPNoActiveChallenge, 0)
}

func TestVerify_ExpiredChallenge(t *testing.T) {
	m, _, c := newManager(t, "123456")
	ctx := context.Background()
	if _, err := m.Issue(ctx, alice, domain.PurposeEmailVerification); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	c.Advance(5 * time.Minute)
	wantReason(t, m.Verify(ctx, alice, domain.PurposeEmailVerification, "123456"), autherr.OTPNoActiveChallenge, 0)
}

func TestVerify_ConcurrentCorrectSubmitsSucceedOnce(t *testing.T) {
	m, _, _ := newManager(t, "123456")
	ctx := context.Background()
	if _, err := m.Issue(ctx, alice, domain.PurposeEmailVerification); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Verify(ctx, alice, domain.PurposeEmailVerification, "123456"); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Errorf("successful verifies = %d, want 1", ok)
	}
}

// gatedRepository holds every GetActive caller until all of them have read the challenge.
type gatedRepository struct {
	*repository.MemoryRepository
	arrived sync.WaitGroup
}

func (g *gatedRepository) GetActive(ctx context.Context, identityID string, purpose domain.Purpose, now time.Time) (*domain.Challenge, error) {
	c, err := g.MemoryRepository.GetActive(ctx, identityID, purpose, now)
	g.arrived.Done()
	g.arrived.Wait()
	return c, err
}

func TestVerify_ConcurrentGuessesStayWithinBudget(t *testing.T) {
	const guesses = 50
	c := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	repo := &gatedRepository{MemoryRepository: repository.NewMemoryRepository()}
	settings := config.DefaultEngine()
	m := NewManager(repo, settings, WithClock(c.Now), WithCodeSource(&sequence{codes: []string{"000042"}}))
	ctx := context.Background()

	repo.arrived.Add(1)
	if _, err := m.Issue(ctx, alice, domain.PurposeEmailVerification); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	repo.arrived.Add(guesses)
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		evaluated int
		succeeded int
	)
	for i := 0; i < guesses; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := m.Verify(ctx, alice, domain.PurposeEmailVerification, fmt.Sprintf("%06d", i))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				evaluated++
				return
			}
			if _, ok := AttemptsRemaining(err); ok {
				evaluated++
			}
		}(i)
	}
	wg.Wait()

	if evaluated > settings.OTPMaxAttempts {
		t.Errorf("guesses compared = %d, want at most %d", evaluated, settings.OTPMaxAttempts)
	}
	if succeeded > 1 {
		t.Errorf("successful verifies = %d, want at most 1", succeeded)
	}
}

func TestArgumentValidation(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	if _, err := m.Issue(ctx, "", domain.PurposeEmailVerification); !errors.Is(err, autherr.ErrMalformedInput) {
		t.Errorf("empty identity: %v", err)
	}
	if _, err := m.Issue(ctx, alice, "LOGIN"); !errors.Is(err, autherr.ErrMalformedInput) {
		t.Errorf("unknown purpose: %v", err)
	}
	if err := m.Verify(ctx, alice, "", "1"); !errors.Is(err, autherr.ErrMalformedInput) {
		t.Errorf("empty purpose: %v", err)
	}
}

func TestSweep_RemovesExpired(t *testing.T) {
	m, repo, c := newManager(t, "111111")
	ctx := context.Background()
	if _, err := m.Issue(ctx, alice, domain.PurposeEmailVerification); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	n, err := m.Sweep(ctx, c.Now())
	if err != nil || n != 0 {
		t.Fatalf("Sweep before expiry = %d, %v", n, err)
	}
	n, err = m.Sweep(ctx, c.Now().Add(10*time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("Sweep after expiry = %d, %v", n, err)
	}
	if repo.Count(alice, domain.PurposeEmailVerification) != 0 {
		t.Error("expired challenge should be gone")
	}
}

func TestCryptoCodeSource(t *testing.T) {
	src := CryptoCodeSource{}
	counts := make(map[byte]int)
	for i := 0; i < 200; i++ {
		code, err := src.Code(6)
		if err != nil {
			t.Fatalf("Code: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("len = %d", len(code))
		}
		for j := 0; j < len(code); j++ {
			if code[j] < '0' || code[j] > '9' {
				t.Fatalf("non-digit in %q", code)
			}
			counts[code[j]]++
		}
	}
	if len(counts) != 10 {
		t.Errorf("only %d distinct digits over 1200 draws", len(counts))
	}
	if _, err := src.Code(0); err == nil {
		t.Error("zero length should fail")
	}
}

func TestAttemptsRemaining(t *testing.T) {
	if n, ok := AttemptsRemaining(&autherr.OTPRejectedError{Reason: autherr.OTPCodeMismatch, AttemptsRemaining: 2}); !ok || n != 2 {
		t.Errorf("mismatch = %d, %v", n, ok)
	}
	if _, ok := AttemptsRemaining(&autherr.OTPRejectedError{Reason: autherr.OTPAttemptsExhausted}); ok {
		t.Error("exhausted should not report remaining attempts")
	}
}
