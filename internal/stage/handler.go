package stage

import (
	"context"

	"repost/internal/ledger"
)

// Handler describes the contract the workflow manager needs from each stage.
type Handler interface {
	Prepare(context.Context, *ledger.Item) error
	Execute(context.Context, *ledger.Item) error
	HealthCheck(context.Context) Health
}
