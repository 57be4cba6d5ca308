package stream

import (
	"errors"
	"fmt"

	"sherlock/persist"
)

var (
	// ErrStreamInGracefulShutdown is returned by any operation attempted
	// while the Stream is being torn down.
	ErrStreamInGracefulShutdown = errors.New("stream: in graceful shutdown")

	// ErrPublisherAlreadyReleased is returned by MovePublisherTo when no
	// publisher handle is currently held.
	ErrPublisherAlreadyReleased = errors.New("stream: publisher already released")

	// ErrPublisherAlreadyOwned is returned by AcquirePublisher when a
	// publisher handle is already installed.
	ErrPublisherAlreadyOwned = errors.New("stream: publisher already owned")

	// ErrPublishToStreamWithReleasedPublisher is returned by Stream.Publish
	// or Stream.UpdateHead while publisher authority has been moved out.
	ErrPublishToStreamWithReleasedPublisher = errors.New("stream: publish attempted with released publisher")

	// ErrSubscriptionNotFound names the case of an HTTP terminate=<id>
	// request for an id with no live subscription. ServeHTTP does not
	// return it; it answers that case with a 404 whose body carries
	// "subscription_not_found".
	ErrSubscriptionNotFound = errors.New("stream: subscription not found")

	// ErrInconsistentTimestamp re-exports the persister's monotonicity
	// violation error so callers need not import package persist just to
	// check errors.Is against it.
	ErrInconsistentTimestamp = persist.ErrInconsistentTimestamp
)

// SchemaFormatNotFoundError is returned (and mapped to HTTP 404) when a
// schema request names a format this stream's descriptor has no text for.
type SchemaFormatNotFoundError struct {
	Format string
}

func (e *SchemaFormatNotFoundError) Error() string {
	return fmt.Sprintf("stream: unsupported schema format %q", e.Format)
}
