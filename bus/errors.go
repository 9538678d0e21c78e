package bus

import "fmt"

// TransportError reports that the broker was unreachable or timed out.
// Callers retry with their own backoff; the bus never retries publishes
// on its own.
type TransportError struct {
	Op      string
	Subject string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Subject, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError reports a payload that failed schema validation at the
// bus boundary. These are acked and dropped: redelivering a malformed
// payload can never make it valid.
type ValidationError struct {
	Subject string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %v", e.Subject, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// DomainError reports a handler-side failure that is plausibly transient,
// such as an inference backend being down. Handlers return these to
// request a nak and broker redelivery.
type DomainError struct {
	Subject string
	Err     error
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("domain: %s: %v", e.Subject, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// ResourceError reports a cache or graph backend failure. Retrieval
// degrades gracefully: the failing source contributes zero results and
// the pipeline continues.
type ResourceError struct {
	Source string
	Err    error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource: %s: %v", e.Source, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// PublishError is returned by Publisher for any serialization or
// transport failure. It is never swallowed; callers decide whether to
// retry.
type PublishError struct {
	Subject string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %v", e.Subject, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
