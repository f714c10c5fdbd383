package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"identity-session-engine/internal/config"
	otpdomain "identity-session-engine/internal/otp/domain"
	otprepo "identity-session-engine/internal/otp/repository"
	otpservice "identity-session-engine/internal/otp/service"
	sessiondomain "identity-session-engine/internal/session/domain"
	sessionrepo "identity-session-engine/internal/session/repository"
)

type failingDeleter struct{}

func (failingDeleter) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, errors.New("db down")
}

func TestSweeper_RemovesOnlyRowsPastRetention(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)

	tokens := sessionrepo.NewMemoryRepository()
	for id, exp := range map[string]time.Time{
		"long-expired": now.Add(-48 * time.Hour),
		"just-expired": now.Add(-time.Hour),
		"live":         now.Add(time.Hour),
	} {
		if err := tokens.Create(ctx, &sessiondomain.RefreshToken{ID: id, IdentityID: "id-1", TokenHash: "h-" + id, ExpiresAt: exp}); err != nil {
			t.Fatal(err)
		}
	}
	challenges := otprepo.NewMemoryRepository()
	if err := challenges.Create(ctx, &otpdomain.Challenge{ID: "c-old", IdentityID: "id-1", Purpose: otpdomain.PurposeEmailVerification, ExpiresAt: now.Add(-30 * time.Hour)}); err != nil {
		t.Fatal(err)
	}
	if err := challenges.Create(ctx, &otpdomain.Challenge{ID: "c-new", IdentityID: "id-1", Purpose: otpdomain.PurposeEmailVerification, ExpiresAt: now.Add(-time.Minute)}); err != nil {
		t.Fatal(err)
	}
	otp := otpservice.NewManager(challenges, config.DefaultEngine())

	s := NewSweeper(tokens, otp, 24*time.Hour, nil)
	s.now = func() time.Time { return now }
	nTok, nCh, err := s.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if nTok != 1 || nCh != 1 {
		t.Errorf("deleted tokens=%d challenges=%d, want 1 and 1", nTok, nCh)
	}
	if _, ok := challenges.Get("c-new"); !ok {
		t.Error("challenge inside retention should be kept")
	}
}

func TestSweeper_ContinuesAfterFailure(t *testing.T) {
	challenges := otprepo.NewMemoryRepository()
	otp := otpservice.NewManager(challenges, config.DefaultEngine())
	s := NewSweeper(failingDeleter{}, otp, time.Hour, nil)
	_, _, err := s.SweepOnce(context.Background())
	if err == nil {
		t.Fatal("SweepOnce should report the token failure")
	}
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(sessionrepo.NewMemoryRepository(), nil, time.Hour, nil).Run(ctx, time.Hour)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

type fakeReader struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

type fakePusher struct {
	mu    sync.Mutex
	got   []string
	fails int
}

func (p *fakePusher) PushEventJSON(_ context.Context, raw []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fails > 0 {
		p.fails--
		return errors.New("loki unavailable")
	}
	p.got = append(p.got, string(raw))
	return nil
}

func (p *fakePusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.got)
}

func TestForwarder_PushesAndSkipsFailures(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Value: []byte(`{"event_type":"a"}`)},
		{Value: []byte(`{"event_type":"b"}`)},
		{Value: []byte(`{"event_type":"c"}`)},
	}}
	pusher := &fakePusher{fails: 1}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewForwarder(reader, pusher, nil).Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for pusher.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if pusher.count() != 2 {
		t.Fatalf("pushed %d events, want 2", pusher.count())
	}
	if pusher.got[0] != `{"event_type":"b"}` {
		t.Errorf("first pushed = %s, want the second message", pusher.got[0])
	}
	if !reader.closed {
		t.Error("reader should be closed on shutdown")
	}
}
