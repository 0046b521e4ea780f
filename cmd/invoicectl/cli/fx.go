// Package cli implements the invoicectl operational commands. Each command writes to
// the supplied streams and returns a process exit code.
package cli

import (
	"context"
	"errors"
	"time"

	"github.com/odyssey-erp/odyssey-invoicing/internal/fx"
)

// Exit codes shared by the commands.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitGaps    = 10
)

// FXStore is the rate store the fx commands work against.
type FXStore interface {
	ListRates(ctx context.Context, currency string, from, to time.Time) ([]fx.Rate, error)
	Upsert(ctx context.Context, rates []fx.Rate) error
}

// FXOpsCLI offers operational helpers to manage stored conversion rates.
type FXOpsCLI struct {
	store FXStore
}

// NewFXOpsCLI constructs a new helper instance.
func NewFXOpsCLI(store FXStore) (*FXOpsCLI, error) {
	if store == nil {
		return nil, errors.New("fx cli: rate store required")
	}
	return &FXOpsCLI{store: store}, nil
}
