package authreq

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/fifire/topframe/internal/keys"
)

const appKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var delegated = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

func newSigner(t *testing.T) keys.Signer {
	t.Helper()
	s, err := keys.SignerFromHex(appKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return s
}

func TestSubmitSuccess(t *testing.T) {
	signer := newSigner(t)
	var got wireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != requestPath || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","answer":42,"requestId":"req-1"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", time.Second)
	resp, err := client.Submit(context.Background(), Request{Message: []byte("frame-bytes"), DelegatedAddress: delegated, Signer: signer})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.Answer != "42" || resp.RequestID != "req-1" {
		t.Fatalf("unexpected response %+v", resp)
	}

	if got.UserDelegatedAddress != delegated.Hex() || got.AppAddress != signer.Address().Hex() {
		t.Fatalf("unexpected payload %+v", got)
	}
	msg, err := hexutil.Decode(got.Message)
	if err != nil || string(msg) != "frame-bytes" {
		t.Fatalf("message not hex encoded: %q %v", got.Message, err)
	}
	sig, err := hexutil.Decode(got.ServiceSignature)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	signerAddr, err := keys.Recover(keys.Digest(msg, delegated.Bytes()), sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if signerAddr != signer.Address() {
		t.Fatalf("signature from %s, want %s", signerAddr.Hex(), signer.Address().Hex())
	}
}

func TestSubmitBadStatusCarriesPayload(t *testing.T) {
	body := `{"status":"error","message":"frame message expired"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Submit(context.Background(), Request{Message: []byte("m"), DelegatedAddress: delegated, Signer: newSigner(t)})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Status != "error" {
		t.Fatalf("unexpected status %q", statusErr.Status)
	}
	if !strings.Contains(err.Error(), body) {
		t.Fatalf("error should carry the full payload: %v", err)
	}
}

func TestSubmitHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Submit(context.Background(), Request{Message: []byte("m"), DelegatedAddress: delegated, Signer: newSigner(t)})
	if err == nil || !strings.Contains(err.Error(), "HTTP 502") {
		t.Fatalf("expected HTTP 502 error, got %v", err)
	}
}

func TestSubmitEmptyAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Submit(context.Background(), Request{Message: []byte("m"), DelegatedAddress: delegated, Signer: newSigner(t)})
	if !errors.Is(err, ErrEmptyAnswer) {
		t.Fatalf("expected ErrEmptyAnswer, got %v", err)
	}
}

func TestSubmitTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	if _, err := NewClient(url, time.Second).Submit(context.Background(), Request{Message: []byte("m"), DelegatedAddress: delegated, Signer: newSigner(t)}); err == nil {
		t.Fatal("expected transport error")
	}
}
