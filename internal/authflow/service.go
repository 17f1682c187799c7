package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fifire/topframe/internal/authreq"
	"github.com/fifire/topframe/internal/credstore"
	"github.com/fifire/topframe/internal/keys"
	"github.com/fifire/topframe/internal/logging"
)

var (
	// ErrCallbackDisabled is returned by Approve when no authority address is configured.
	ErrCallbackDisabled = errors.New("authorization callback is disabled")
	// ErrUnauthorizedCallback is returned when the approval was not signed by the authority.
	ErrUnauthorizedCallback = errors.New("approval not signed by the authorization service")
	// ErrTooManyAttempts is reported when a primary address submits too often.
	ErrTooManyAttempts = errors.New("too many authorization attempts, try again later")
)

// CredentialStore is the subset of credstore.Store the flow needs.
type CredentialStore interface {
	Get(ctx context.Context, primary common.Address) (keys.Credential, error)
	Put(ctx context.Context, delegated common.Address, m keys.Mnemonic) error
	Associate(ctx context.Context, primary, delegated common.Address) error
}

// Submitter sends authorization requests.
type Submitter interface {
	Submit(ctx context.Context, req authreq.Request) (authreq.Response, error)
}

// Completer is told about every authorized interaction. It must not fail the flow.
type Completer interface {
	Notify(ctx context.Context, primary common.Address, cred keys.Credential)
}

// Limiter caps fresh submissions per primary address. Allow may return an
// error together with true to fail open.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Outcome is what Handle reports back to the screen.
type Outcome struct {
	State  State
	Action Action
	// Answer is the confirmation code for a fresh submission.
	Answer string
	// Delegated is set for fresh submissions and authorized users.
	Delegated common.Address
	// ErrorText is the user-facing message for StateError.
	ErrorText string
	// Retryable is false when retrying from this screen cannot help.
	Retryable bool
}

// Service executes the actions chosen by Decide.
type Service struct {
	store     CredentialStore
	generator keys.Generator
	submitter Submitter
	appSigner keys.Signer
	completer Completer
	limiter   Limiter
	authority common.Address
	logger    *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithAuthority enables Approve for callbacks signed by addr.
func WithAuthority(addr common.Address) Option {
	return func(s *Service) { s.authority = addr }
}

// WithLimiter caps how often one primary address may trigger a submission.
// Status polls and authorized users are never counted.
func WithLimiter(l Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

// NewService wires the flow's collaborators. completer may be nil.
func NewService(store CredentialStore, generator keys.Generator, submitter Submitter, appSigner keys.Signer, completer Completer, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		generator: generator,
		submitter: submitter,
		appSigner: appSigner,
		completer: completer,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle runs one interaction. It never returns an error: failures become
// StateError outcomes with a message the user can read.
func (s *Service) Handle(ctx context.Context, in Input) Outcome {
	log := logging.FromContext(ctx, s.logger).With("primary", in.Primary.Hex())

	cred, err := s.store.Get(ctx, in.Primary)
	found := err == nil
	if err != nil && !errors.Is(err, credstore.ErrNotFound) {
		log.Error("store get failed", "error", err)
		return failure(ActionWait, err, false)
	}

	action := Decide(found, in)
	switch action {
	case ActionComplete:
		if s.completer != nil {
			s.completer.Notify(ctx, in.Primary, cred)
		}
		return Outcome{State: StateAuthorized, Action: action, Delegated: cred.Address}
	case ActionWait:
		return Outcome{State: StatePending, Action: action}
	default:
		return s.submit(ctx, log, in)
	}
}

// submit generates a fresh key and persists it only after the service accepted
// it, so a failed attempt leaves nothing behind and a retry starts clean.
func (s *Service) submit(ctx context.Context, log *slog.Logger, in Input) Outcome {
	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, in.Primary.Hex())
		if err != nil {
			log.Warn("rate limit check failed", "error", err)
		}
		if !ok {
			log.Warn("auth submission rate limited")
			return failure(ActionSubmit, ErrTooManyAttempts, true)
		}
	}
	cred, err := s.generator.Generate()
	if err != nil {
		log.Error("generate delegated key failed", "error", err)
		return failure(ActionSubmit, err, true)
	}
	log = log.With("delegated", cred.Address.Hex())

	resp, err := s.submitter.Submit(ctx, authreq.Request{
		Message:          in.Message,
		DelegatedAddress: cred.Address,
		Signer:           s.appSigner,
	})
	if err != nil {
		log.Warn("auth request failed", "error", err)
		return failure(ActionSubmit, err, true)
	}

	if err := s.store.Put(ctx, cred.Address, cred.Mnemonic); err != nil {
		log.Error("store put failed", "error", err, "request_id", resp.RequestID)
		return failure(ActionSubmit, err, true)
	}

	log.Info("auth request submitted", "request_id", resp.RequestID)
	return Outcome{State: StatePending, Action: ActionSubmit, Answer: resp.Answer, Delegated: cred.Address}
}

func failure(action Action, err error, retryable bool) Outcome {
	return Outcome{
		State:     StateError,
		Action:    action,
		ErrorText: fmt.Sprintf("Error: %s", err.Error()),
		Retryable: retryable,
	}
}

// Approval is the authorization service's confirmation that Primary granted
// Delegated. Signature is an EIP-191 signature over keccak256(primary || delegated).
type Approval struct {
	Primary   common.Address
	Delegated common.Address
	Signature []byte
}

// Approve verifies an approval and links the primary address to its delegated key.
func (s *Service) Approve(ctx context.Context, a Approval) error {
	if s.authority == (common.Address{}) {
		return ErrCallbackDisabled
	}
	signer, err := keys.Recover(keys.Digest(a.Primary.Bytes(), a.Delegated.Bytes()), a.Signature)
	if err != nil || signer != s.authority {
		return ErrUnauthorizedCallback
	}
	if err := s.store.Associate(ctx, a.Primary, a.Delegated); err != nil {
		return fmt.Errorf("associate %s: %w", a.Delegated.Hex(), err)
	}
	logging.FromContext(ctx, s.logger).Info("delegated key approved", "primary", a.Primary.Hex(), "delegated", a.Delegated.Hex())
	return nil
}

// CallbackEnabled reports whether Approve can accept callbacks.
func (s *Service) CallbackEnabled() bool {
	return s.authority != (common.Address{})
}
