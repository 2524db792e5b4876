package audited

import (
	"errors"
	"fmt"

	"github.com/quartzdata/chronicle/pkg/audit"
)

// ErrActorRequired matches any rejected call via errors.Is, regardless of
// which operation was attempted.
var ErrActorRequired = errors.New("actor identity is required")

// ActorRequiredError reports a call rejected before reaching the storage
// engine because no actor identity was supplied. Op names the attempted
// operation.
type ActorRequiredError struct {
	Op audit.Operation
}

func (e *ActorRequiredError) Error() string {
	return fmt.Sprintf("%s operation requires an actor identity", e.Op)
}

func (e *ActorRequiredError) Unwrap() error {
	return ErrActorRequired
}
