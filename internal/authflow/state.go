// Package authflow runs the delegated authorization handshake.
//
// Nothing about the flow is kept in memory. Every interaction is decided
// from the credential store and the current input alone, so any instance can
// serve the next interaction after a crash or a redeploy.
package authflow

import "github.com/ethereum/go-ethereum/common"

// State is what the user sees after an interaction.
type State int

const (
	// StateNew is the implicit starting state of an identity with nothing
	// stored. It is never reported: handling it always moves the identity on,
	// so Handle answers with StatePending or StateError instead.
	StateNew State = iota
	StatePending
	StateAuthorized
	StateError
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StatePending:
		return "pending"
	case StateAuthorized:
		return "authorized"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Action is the side effect an interaction calls for.
type Action int

const (
	// ActionSubmit generates a delegated key, submits it and persists it.
	ActionSubmit Action = iota
	// ActionWait redisplays the waiting screen without contacting the service.
	ActionWait
	// ActionComplete fires the completion notifier.
	ActionComplete
)

func (a Action) String() string {
	switch a {
	case ActionSubmit:
		return "submit"
	case ActionWait:
		return "wait"
	case ActionComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Input is one user interaction on the authorization screen.
type Input struct {
	Primary common.Address
	// CheckStatus is set when the user pressed the status button.
	CheckStatus bool
	// Message is the signed frame message forwarded to the authorization service.
	Message []byte
}

// Decide maps the stored state and the input to an action. found reports
// whether a credential is associated with in.Primary.
func Decide(found bool, in Input) Action {
	switch {
	case found:
		return ActionComplete
	case in.CheckStatus:
		return ActionWait
	default:
		return ActionSubmit
	}
}
