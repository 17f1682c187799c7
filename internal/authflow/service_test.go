package authflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fifire/topframe/internal/authreq"
	"github.com/fifire/topframe/internal/credstore"
	"github.com/fifire/topframe/internal/keys"
	"github.com/fifire/topframe/internal/leaderboard"
	"github.com/fifire/topframe/internal/logging"
	"github.com/fifire/topframe/internal/notification"
)

const (
	testMnemonic  = "test test test test test test test test test test test junk"
	authorityKey  = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	appPrivateKey = "0x5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a"
)

var primary = common.HexToAddress("0x1111111111111111111111111111111111111111")

type fixedGenerator struct {
	cred keys.Credential
	err  error
}

func (g fixedGenerator) Generate() (keys.Credential, error) { return g.cred, g.err }

type fakeSubmitter struct {
	calls int
	last  authreq.Request
	resp  authreq.Response
	err   error
}

func (f *fakeSubmitter) Submit(_ context.Context, req authreq.Request) (authreq.Response, error) {
	f.calls++
	f.last = req
	return f.resp, f.err
}

type countingCompleter struct {
	calls int
	last  keys.Credential
}

func (c *countingCompleter) Notify(_ context.Context, _ common.Address, cred keys.Credential) {
	c.calls++
	c.last = cred
}

type brokenStore struct{ CredentialStore }

func (brokenStore) Get(context.Context, common.Address) (keys.Credential, error) {
	return keys.Credential{}, errors.New("connection refused")
}

// quotaLimiter allows the first n calls per key.
type quotaLimiter struct {
	n    int
	seen map[string]int
	err  error
}

func (l *quotaLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.seen == nil {
		l.seen = map[string]int{}
	}
	l.seen[key]++
	return l.seen[key] <= l.n, l.err
}

func fixedCredential(t *testing.T) keys.Credential {
	t.Helper()
	m, err := keys.NewMnemonic(testMnemonic)
	if err != nil {
		t.Fatalf("mnemonic: %v", err)
	}
	cred, err := keys.Derive(m)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	return cred
}

func signer(t *testing.T, hexKey string) keys.Signer {
	t.Helper()
	s, err := keys.SignerFromHex(hexKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return s
}

func newService(t *testing.T, store CredentialStore, gen keys.Generator, sub Submitter, completer Completer, opts ...Option) *Service {
	t.Helper()
	return NewService(store, gen, sub, signer(t, appPrivateKey), completer, logging.Discard(), opts...)
}

func TestDecide(t *testing.T) {
	cases := []struct {
		name  string
		found bool
		in    Input
		want  Action
	}{
		{"first visit", false, Input{}, ActionSubmit},
		{"check status while unauthorized", false, Input{CheckStatus: true}, ActionWait},
		{"authorized", true, Input{}, ActionComplete},
		{"authorized check status", true, Input{CheckStatus: true}, ActionComplete},
	}
	for _, tc := range cases {
		if got := Decide(tc.found, tc.in); got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestHandleNeverReportsStateNew(t *testing.T) {
	ok := &fakeSubmitter{resp: authreq.Response{Status: authreq.StatusOK, Answer: "1"}}
	failing := &fakeSubmitter{err: errors.New("unavailable")}
	for _, sub := range []*fakeSubmitter{ok, failing} {
		svc := newService(t, credstore.New(credstore.NewMemoryRepository()), keys.BIP39Generator{}, sub, nil)
		for _, in := range []Input{{Primary: primary}, {Primary: primary, CheckStatus: true}} {
			if out := svc.Handle(context.Background(), in); out.State == StateNew {
				t.Fatalf("new identity was reported as %s: %+v", out.State, out)
			}
		}
	}
	if StateNew.String() != "new" {
		t.Fatalf("unexpected name %q", StateNew.String())
	}
}

func TestHandleSubmitPersistsCredential(t *testing.T) {
	ctx := context.Background()
	store := credstore.New(credstore.NewMemoryRepository())
	cred := fixedCredential(t)
	sub := &fakeSubmitter{resp: authreq.Response{Status: authreq.StatusOK, Answer: "4821", RequestID: "req-1"}}
	svc := newService(t, store, fixedGenerator{cred: cred}, sub, nil)

	out := svc.Handle(ctx, Input{Primary: primary, Message: []byte("frame-message")})

	if out.State != StatePending || out.Answer != "4821" {
		t.Fatalf("expected pending with answer, got %+v", out)
	}
	if out.Delegated != cred.Address {
		t.Fatalf("expected delegated %s, got %s", cred.Address.Hex(), out.Delegated.Hex())
	}
	if sub.calls != 1 || sub.last.DelegatedAddress != cred.Address || string(sub.last.Message) != "frame-message" {
		t.Fatalf("unexpected submission %+v (calls=%d)", sub.last, sub.calls)
	}
	ok, err := store.Has(ctx, cred.Address)
	if err != nil || !ok {
		t.Fatalf("expected mnemonic persisted, ok=%v err=%v", ok, err)
	}
}

func TestHandleSubmitWithGeneratedKey(t *testing.T) {
	ctx := context.Background()
	store := credstore.New(credstore.NewMemoryRepository())
	sub := &fakeSubmitter{resp: authreq.Response{Status: authreq.StatusOK, Answer: "77"}}
	svc := newService(t, store, keys.BIP39Generator{}, sub, nil)

	out := svc.Handle(ctx, Input{Primary: primary, Message: []byte("m")})
	if out.State != StatePending || out.Answer == "" {
		t.Fatalf("expected pending, got %+v", out)
	}
	if ok, _ := store.Has(ctx, out.Delegated); !ok {
		t.Fatal("expected generated mnemonic stored under its address")
	}
}

func TestHandleBadStatusShowsPayload(t *testing.T) {
	ctx := context.Background()
	store := credstore.New(credstore.NewMemoryRepository())
	cred := fixedCredential(t)
	body := []byte(`{"status":"rate_limited","answer":""}`)
	sub := &fakeSubmitter{err: &authreq.StatusError{Status: "rate_limited", Body: body}}
	svc := newService(t, store, fixedGenerator{cred: cred}, sub, nil)

	out := svc.Handle(ctx, Input{Primary: primary, Message: []byte("m")})

	if out.State != StateError || !out.Retryable {
		t.Fatalf("expected retryable error, got %+v", out)
	}
	if !strings.HasPrefix(out.ErrorText, "Error: ") || !strings.Contains(out.ErrorText, string(body)) {
		t.Fatalf("error text does not carry payload: %q", out.ErrorText)
	}
	if ok, _ := store.Has(ctx, cred.Address); ok {
		t.Fatal("failed submission must not persist a credential")
	}
}

func TestHandleGeneratorFailure(t *testing.T) {
	sub := &fakeSubmitter{}
	svc := newService(t, credstore.New(credstore.NewMemoryRepository()), fixedGenerator{err: errors.New("entropy unavailable")}, sub, nil)

	out := svc.Handle(context.Background(), Input{Primary: primary})
	if out.State != StateError || out.ErrorText != "Error: entropy unavailable" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if sub.calls != 0 {
		t.Fatal("submission must not happen without a key")
	}
}

func TestHandleCheckStatusNeverSubmits(t *testing.T) {
	sub := &fakeSubmitter{resp: authreq.Response{Status: authreq.StatusOK, Answer: "1"}}
	svc := newService(t, credstore.New(credstore.NewMemoryRepository()), keys.BIP39Generator{}, sub, nil)

	for i := 0; i < 5; i++ {
		out := svc.Handle(context.Background(), Input{Primary: primary, CheckStatus: true})
		if out.State != StatePending || out.Action != ActionWait || out.Answer != "" {
			t.Fatalf("poll %d: unexpected outcome %+v", i, out)
		}
	}
	if sub.calls != 0 {
		t.Fatalf("polling submitted %d requests", sub.calls)
	}
}

func TestHandleStoreFailureIsNotRetryable(t *testing.T) {
	sub := &fakeSubmitter{}
	svc := newService(t, brokenStore{}, keys.BIP39Generator{}, sub, nil)

	out := svc.Handle(context.Background(), Input{Primary: primary})
	if out.State != StateError || out.Retryable {
		t.Fatalf("expected non-retryable error, got %+v", out)
	}
	if !strings.Contains(out.ErrorText, "connection refused") {
		t.Fatalf("unexpected error text %q", out.ErrorText)
	}
	if sub.calls != 0 {
		t.Fatal("store failure must not lead to a submission")
	}
}

func TestHandleAuthorizedAlwaysCompletes(t *testing.T) {
	ctx := context.Background()
	store := credstore.New(credstore.NewMemoryRepository())
	cred := fixedCredential(t)
	if err := store.Put(ctx, cred.Address, cred.Mnemonic); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Associate(ctx, primary, cred.Address); err != nil {
		t.Fatalf("associate: %v", err)
	}

	sub := &fakeSubmitter{}
	completer := &countingCompleter{}
	svc := newService(t, store, keys.BIP39Generator{}, sub, completer)

	for _, in := range []Input{{Primary: primary}, {Primary: primary, CheckStatus: true}} {
		out := svc.Handle(ctx, in)
		if out.State != StateAuthorized || out.Delegated != cred.Address {
			t.Fatalf("expected authorized, got %+v", out)
		}
	}
	if completer.calls != 2 || completer.last.Address != cred.Address {
		t.Fatalf("expected notifier on every interaction, got %d", completer.calls)
	}
	if sub.calls != 0 {
		t.Fatal("authorized users must not resubmit")
	}
}

func TestHandleAuthorizedWithFailingSaveEndpoint(t *testing.T) {
	ctx := context.Background()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer failing.Close()

	store := credstore.New(credstore.NewMemoryRepository())
	cred := fixedCredential(t)
	_ = store.Put(ctx, cred.Address, cred.Mnemonic)
	_ = store.Associate(ctx, primary, cred.Address)

	board := leaderboard.NewClient(failing.URL, time.Second, logging.Discard())
	save := notification.NewSaveNotifier(failing.URL, signer(t, appPrivateKey).Address(), time.Second)
	completer := notification.NewCompletionNotifier(board, save, 10, logging.Discard())
	svc := newService(t, store, keys.BIP39Generator{}, &fakeSubmitter{}, completer)

	out := svc.Handle(ctx, Input{Primary: primary})
	if out.State != StateAuthorized || out.ErrorText != "" {
		t.Fatalf("notification failure leaked into outcome: %+v", out)
	}
}

func TestHandleLimitsOnlyFreshSubmissions(t *testing.T) {
	ctx := context.Background()
	store := credstore.New(credstore.NewMemoryRepository())
	sub := &fakeSubmitter{err: errors.New("service unavailable")}
	limiter := &quotaLimiter{n: 2}
	svc := newService(t, store, keys.BIP39Generator{}, sub, nil, WithLimiter(limiter))

	for i := 0; i < 2; i++ {
		if out := svc.Handle(ctx, Input{Primary: primary}); out.State != StateError || sub.calls != i+1 {
			t.Fatalf("attempt %d: expected submitted failure, got %+v (calls=%d)", i+1, out, sub.calls)
		}
	}
	out := svc.Handle(ctx, Input{Primary: primary})
	if out.State != StateError || !out.Retryable || !strings.Contains(out.ErrorText, ErrTooManyAttempts.Error()) {
		t.Fatalf("expected retryable rate-limit error, got %+v", out)
	}
	if sub.calls != 2 {
		t.Fatalf("limited attempt reached the service, calls=%d", sub.calls)
	}

	for i := 0; i < 3; i++ {
		if out := svc.Handle(ctx, Input{Primary: primary, CheckStatus: true}); out.State != StatePending {
			t.Fatalf("poll %d: expected pending, got %+v", i, out)
		}
	}
	if limiter.seen[primary.Hex()] != 3 {
		t.Fatalf("polls must not be counted, seen=%d", limiter.seen[primary.Hex()])
	}
}

func TestHandleAuthorizedIgnoresLimiter(t *testing.T) {
	ctx := context.Background()
	store := credstore.New(credstore.NewMemoryRepository())
	cred := fixedCredential(t)
	_ = store.Put(ctx, cred.Address, cred.Mnemonic)
	_ = store.Associate(ctx, primary, cred.Address)

	completer := &countingCompleter{}
	limiter := &quotaLimiter{n: 0}
	svc := newService(t, store, keys.BIP39Generator{}, &fakeSubmitter{}, completer, WithLimiter(limiter))

	for i := 0; i < 7; i++ {
		if out := svc.Handle(ctx, Input{Primary: primary}); out.State != StateAuthorized {
			t.Fatalf("interaction %d: expected authorized, got %+v", i+1, out)
		}
	}
	if completer.calls != 7 || len(limiter.seen) != 0 {
		t.Fatalf("expected 7 notifications and no limiter use, got %d %v", completer.calls, limiter.seen)
	}
}

func TestHandleLimiterFailsOpen(t *testing.T) {
	sub := &fakeSubmitter{resp: authreq.Response{Status: authreq.StatusOK, Answer: "77"}}
	limiter := &quotaLimiter{n: 1 << 30, err: errors.New("redis down")}
	svc := newService(t, credstore.New(credstore.NewMemoryRepository()), keys.BIP39Generator{}, sub, nil, WithLimiter(limiter))

	if out := svc.Handle(context.Background(), Input{Primary: primary}); out.State != StatePending || out.Answer != "77" {
		t.Fatalf("expected submission despite limiter error, got %+v", out)
	}
}

func TestApproveLinksPrimaryToDelegated(t *testing.T) {
	ctx := context.Background()
	store := credstore.New(credstore.NewMemoryRepository())
	cred := fixedCredential(t)
	authority := signer(t, authorityKey)
	sub := &fakeSubmitter{resp: authreq.Response{Status: authreq.StatusOK, Answer: "9"}}
	svc := newService(t, store, fixedGenerator{cred: cred}, sub, &countingCompleter{}, WithAuthority(authority.Address()))

	if out := svc.Handle(ctx, Input{Primary: primary, Message: []byte("m")}); out.State != StatePending {
		t.Fatalf("submit: %+v", out)
	}

	sig, err := authority.SignMessage(keys.Digest(primary.Bytes(), cred.Address.Bytes()))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := svc.Approve(ctx, Approval{Primary: primary, Delegated: cred.Address, Signature: sig}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	got, err := store.Get(ctx, primary)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Address != cred.Address {
		t.Fatalf("expected %s, got %s", cred.Address.Hex(), got.Address.Hex())
	}
	if out := svc.Handle(ctx, Input{Primary: primary, CheckStatus: true}); out.State != StateAuthorized {
		t.Fatalf("expected authorized after approval, got %+v", out)
	}
}

func TestApproveRejections(t *testing.T) {
	ctx := context.Background()
	store := credstore.New(credstore.NewMemoryRepository())
	cred := fixedCredential(t)
	authority := signer(t, authorityKey)
	impostor := signer(t, appPrivateKey)
	digest := keys.Digest(primary.Bytes(), cred.Address.Bytes())

	disabled := newService(t, store, keys.BIP39Generator{}, &fakeSubmitter{}, nil)
	if err := disabled.Approve(ctx, Approval{Primary: primary, Delegated: cred.Address}); !errors.Is(err, ErrCallbackDisabled) {
		t.Fatalf("expected disabled, got %v", err)
	}

	svc := newService(t, store, keys.BIP39Generator{}, &fakeSubmitter{}, nil, WithAuthority(authority.Address()))

	forged, _ := impostor.SignMessage(digest)
	if err := svc.Approve(ctx, Approval{Primary: primary, Delegated: cred.Address, Signature: forged}); !errors.Is(err, ErrUnauthorizedCallback) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := svc.Approve(ctx, Approval{Primary: primary, Delegated: cred.Address, Signature: []byte{1, 2}}); !errors.Is(err, ErrUnauthorizedCallback) {
		t.Fatalf("expected unauthorized for short signature, got %v", err)
	}

	genuine, _ := authority.SignMessage(digest)
	if err := svc.Approve(ctx, Approval{Primary: primary, Delegated: cred.Address, Signature: genuine}); !errors.Is(err, credstore.ErrNotFound) {
		t.Fatalf("expected not found for unknown delegated key, got %v", err)
	}
}
