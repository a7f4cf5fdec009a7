package eventbus

import (
	"errors"
	"fmt"
)

// PublishFailedError reports that Publish could not establish durability
// for topic (spec §7). Callers should retry with backoff and eventually
// surface the failure.
type PublishFailedError struct {
	Topic  string
	Reason error
}

func (e *PublishFailedError) Error() string {
	return fmt.Sprintf("publish failed: topic %q: %v", e.Topic, e.Reason)
}

func (e *PublishFailedError) Unwrap() error { return e.Reason }

// SubscriptionFailedError reports that Subscribe could not establish a
// subscription (spec §7). Callers should surface the failure and restart
// the subscriber with backoff.
type SubscriptionFailedError struct {
	Topics []string
	Reason error
}

func (e *SubscriptionFailedError) Error() string {
	return fmt.Sprintf("subscribe failed: topics %v: %v", e.Topics, e.Reason)
}

func (e *SubscriptionFailedError) Unwrap() error { return e.Reason }

// IsPublishFailed reports whether err is, or wraps, a PublishFailedError.
func IsPublishFailed(err error) bool {
	var e *PublishFailedError
	return errors.As(err, &e)
}

// IsSubscriptionFailed reports whether err is, or wraps, a
// SubscriptionFailedError.
func IsSubscriptionFailed(err error) bool {
	var e *SubscriptionFailedError
	return errors.As(err, &e)
}
