// Package realtime holds the snapshot store and change feed that sessions
// publish to after every accepted move.
package realtime

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no snapshot was saved under the id.
var ErrNotFound = errors.New("snapshot not found")

// Broker saves the latest snapshot of each game and fans out every new
// snapshot to subscribers of that game.
type Broker interface {
	Save(ctx context.Context, id string, snapshot []byte) error
	Load(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
	Publish(ctx context.Context, id string, snapshot []byte) error
	// Subscribe delivers snapshots published for id until ctx is done, then
	// closes the channel. Slow subscribers miss snapshots rather than block
	// the publisher.
	Subscribe(ctx context.Context, id string) (<-chan []byte, error)
	Close() error
}

// subscriberBuffer is how many snapshots a subscriber may fall behind.
const subscriberBuffer = 32
