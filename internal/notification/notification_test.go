package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"identity-session-engine/internal/config"
	"identity-session-engine/internal/devotp"
)

var fixedNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func TestSMTPNotifier_SendsHTMLMessage(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	n := NewSMTPNotifier(SMTPSettings{Host: "smtp.example.com", Username: "user", Password: "pw", From: "no-reply@example.com", FromName: "Armala"})
	n.now = func() time.Time { return fixedNow }
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotTo, gotMsg = addr, a, to, string(msg)
		return nil
	}

	err := n.SendVerificationCode(context.Background(), "alice@example.com", "Alice", "123456", fixedNow.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("SendVerificationCode: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if gotAuth == nil {
		t.Error("auth should be set when a username is configured")
	}
	if len(gotTo) != 1 || gotTo[0] != "alice@example.com" {
		t.Errorf("to = %v", gotTo)
	}
	for _, want := range []string{"To: alice@example.com", "Content-Type: text/html", "Hello Alice", "123456", "expires in 5 minutes", "<no-reply@example.com>"} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSMTPNotifier_Errors(t *testing.T) {
	n := NewSMTPNotifier(SMTPSettings{})
	if err := n.SendVerificationCode(context.Background(), "a@b.co", "", "1", fixedNow); err == nil {
		t.Error("unconfigured notifier should fail")
	}

	n = NewSMTPNotifier(SMTPSettings{Host: "h", From: "f@example.com"})
	n.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("connection refused") }
	err := n.SendVerificationCode(context.Background(), "a@b.co", "", "987654", fixedNow.Add(time.Minute))
	if err == nil {
		t.Fatal("send failure should be returned")
	}
	if strings.Contains(err.Error(), "987654") {
		t.Error("error must not contain the code")
	}
}

func TestSMSLocalNotifier_PostsDigits(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "api-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSMSLocalNotifier("api-key", srv.URL, "ARMALA")
	if n.Channel() != ChannelSMS {
		t.Errorf("Channel = %q", n.Channel())
	}
	if err := n.SendVerificationCode(context.Background(), "+51987654321", "", "123456", fixedNow); err != nil {
		t.Fatalf("SendVerificationCode: %v", err)
	}
	if body["numbers"] != "51987654321" || body["variables"] != "123456" || body["route"] != "otp" || body["sender_id"] != "ARMALA" {
		t.Errorf("body = %v", body)
	}
}

func TestSMSLocalNotifier_Failures(t *testing.T) {
	if err := NewSMSLocalNotifier("", "", "").SendVerificationCode(context.Background(), "+1", "", "1", fixedNow); err == nil {
		t.Error("missing API key should fail")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()
	err := NewSMSLocalNotifier("k", srv.URL, "").SendVerificationCode(context.Background(), "+1", "", "1", fixedNow)
	if err == nil || !strings.Contains(err.Error(), "status=502") {
		t.Errorf("err = %v, want status=502", err)
	}
	if got := NewSMSLocalNotifier("k", "", "").BaseURL; got != defaultSMSBaseURL {
		t.Errorf("BaseURL = %q", got)
	}
}

func TestDevNotifier_StoresCode(t *testing.T) {
	store := devotp.NewMemoryStore()
	n := NewDevNotifier(store, ChannelEmail, nil)
	if err := n.SendVerificationCode(context.Background(), "alice@example.com", "Alice", "123456", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("SendVerificationCode: %v", err)
	}
	if code, ok := store.Get(context.Background(), "alice@example.com"); !ok || code != "123456" {
		t.Errorf("store = %q, %v", code, ok)
	}
}

func TestNew_SelectsNotifier(t *testing.T) {
	store := devotp.NewMemoryStore()
	testCases := []struct {
		name    string
		cfg     config.Config
		want    Channel
		wantErr bool
	}{
		{"smtp default", config.Config{}, ChannelEmail, false},
		{"sms", config.Config{Notifier: "sms", SMSLocalAPIKey: "k"}, ChannelSMS, false},
		{"dev", config.Config{Notifier: "dev"}, ChannelEmail, false},
		{"unknown", config.Config{Notifier: "fax"}, "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			n, err := New(&tc.cfg, store, nil)
			if tc.wantErr {
				if err == nil {
					t.Fatal("New should fail")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if n.Channel() != tc.want {
				t.Errorf("Channel = %q, want %q", n.Channel(), tc.want)
			}
		})
	}
	if _, err := New(&config.Config{Notifier: "dev"}, nil, nil); err == nil {
		t.Error("dev notifier without a store should fail")
	}
}

func TestNew_ReturnToClientTeesIntoStore(t *testing.T) {
	store := devotp.NewMemoryStore()
	n, err := New(&config.Config{Notifier: "sms", SMSLocalAPIKey: "", OTPReturnToClient: true}, store, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// The SMS leg fails without an API key, but the dev store still receives the code.
	_ = n.SendVerificationCode(context.Background(), "+51987654321", "", "424242", time.Now().Add(time.Minute))
	if code, ok := store.Get(context.Background(), "+51987654321"); !ok || code != "424242" {
		t.Errorf("store = %q, %v", code, ok)
	}
}
