// README: Payment provider contract (capture and refund) plus a no-op gateway.
package payments

import (
	"context"
	"errors"
	"log"

	"dishpatch/internal/types"
)

var ErrDeclined = errors.New("payment declined")

type Gateway interface {
	// Capture charges the authorized amount for an order.
	Capture(ctx context.Context, orderID types.ID, amount types.Money) error
	// Refund returns amount to the customer and yields a provider transaction id.
	Refund(ctx context.Context, orderID types.ID, amount types.Money, reason string) (string, error)
}

// Nop accepts every capture and refund. Used for local development wiring.
type Nop struct{}

func (Nop) Capture(_ context.Context, orderID types.ID, amount types.Money) error {
	log.Printf("payments: capture order=%s amount=%d", orderID, amount.Amount)
	return nil
}

func (Nop) Refund(_ context.Context, orderID types.ID, amount types.Money, reason string) (string, error) {
	log.Printf("payments: refund order=%s amount=%d reason=%s", orderID, amount.Amount, reason)
	return "nop-" + string(orderID), nil
}
