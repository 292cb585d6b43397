package channel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		countryCode string
		suffix      string
		want        string
	}{
		{"plain digits", "1155554444", "549", "@c.us", "5491155554444@c.us"},
		{"formatted number", "11 5555-4444", "549", "@c.us", "5491155554444@c.us"},
		{"no digits", "n/a", "549", "@c.us", ""},
		{"empty", "", "549", "@c.us", ""},
		{"no country code", "5551234", "", "@c.us", "5551234@c.us"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeAddress(tt.raw, tt.countryCode, tt.suffix)
			if got != tt.want {
				t.Errorf("NormalizeAddress(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestGatewaySendText(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody sendMessageRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, "secret", "ana", discardLogger(), nil)
	if err := g.SendText(context.Background(), "5491155554444@c.us", "hola"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}

	if gotPath != "/api/v1/sessions/ana/messages" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotBody.To != "5491155554444@c.us" || gotBody.Text != "hola" {
		t.Errorf("unexpected body: %+v", gotBody)
	}
	if gotBody.Media != nil {
		t.Error("expected no media payload for text send")
	}
}

func TestGatewaySendMedia(t *testing.T) {
	var gotBody sendMessageRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, "secret", "ana", discardLogger(), nil)
	media := Media{Data: []byte("pdf-bytes"), Mime: "application/pdf", Filename: "promo.pdf"}
	if err := g.SendMedia(context.Background(), "549111@c.us", media, "Hola Ana"); err != nil {
		t.Fatalf("SendMedia failed: %v", err)
	}

	if gotBody.Caption != "Hola Ana" {
		t.Errorf("unexpected caption %q", gotBody.Caption)
	}
	if gotBody.Media == nil {
		t.Fatal("expected media payload")
	}
	if gotBody.Media.Mime != "application/pdf" || gotBody.Media.Filename != "promo.pdf" {
		t.Errorf("unexpected media metadata: %+v", gotBody.Media)
	}
	want := base64.StdEncoding.EncodeToString([]byte("pdf-bytes"))
	if gotBody.Media.Data != want {
		t.Errorf("unexpected media data %q", gotBody.Media.Data)
	}
}

func TestGatewayErrorReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(errorResponse{Error: "number not on channel"})
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, "secret", "ana", discardLogger(), nil)
	err := g.SendText(context.Background(), "549111@c.us", "hola")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "number not on channel") {
		t.Errorf("expected failure reason in error, got %q", err)
	}
}

func TestGatewayStatusPolling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(sessionStatusResponse{State: "awaiting_pairing", Pairing: "code-1234"})
	}))
	defer srv.Close()

	statusCh := make(chan Status, 1)
	g := NewGateway(srv.URL, "secret", "ana", discardLogger(), func(s Status) {
		select {
		case statusCh <- s:
		default:
		}
	})
	defer g.Close()

	if got := g.Status(); got.State != StateDisconnected {
		t.Fatalf("expected initial state disconnected, got %q", got.State)
	}

	g.StartPolling(10 * time.Millisecond)

	select {
	case s := <-statusCh:
		if s.State != StateAwaitingPairing || s.Pairing != "code-1234" {
			t.Errorf("unexpected status: %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status change")
	}

	if got := g.Status(); got.State != StateAwaitingPairing {
		t.Errorf("expected cached status awaiting_pairing, got %q", got.State)
	}
}
