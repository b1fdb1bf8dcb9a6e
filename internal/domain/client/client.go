// Package client models the subscribers registered by staff through the
// back-office, independent of the anonymous checkout flow.
package client

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// ErrDuplicateCode is returned when a generated client code collides with an
// existing one. Callers may simply retry registration.
var ErrDuplicateCode = errors.New("client code already exists")

// Client is a registered subscriber.
type Client struct {
	ID               string
	ClientCode       string
	Name             string
	Phone            string
	Email            string
	SubscriptionType string
	HasLoyalty       bool
	CreatedAt        time.Time
}

// Repository persists registered clients.
type Repository interface {
	Create(ctx context.Context, c *Client) error
	List(ctx context.Context, search string) ([]Client, error)
}

// NewCode generates a short uppercase client code. Uniqueness is enforced by
// the store; collisions surface as ErrDuplicateCode and can be retried.
func NewCode() string {
	return "ZP-" + strings.ToUpper(uuid.New().String()[:8])
}
