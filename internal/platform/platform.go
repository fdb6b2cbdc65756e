package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/social-scheduler/internal/content"
	"github.com/social-scheduler/internal/models"
)

var (
	// ErrPublishFailure is a transient publish error; the attempt may be retried
	ErrPublishFailure = errors.New("publish failure")
	// ErrPublishRejected is a permanent publish error such as invalid credentials
	ErrPublishRejected = errors.New("publish rejected")
)

// Request is a finalized occurrence handed to a platform publisher
type Request struct {
	OccurrenceID string
	AccountID    string
	Platform     models.Platform
	ScheduledFor time.Time
	AssignedTime models.TimeOfDay
	Attempt      int
	Payload      content.Payload
}

// Receipt is returned on a successful publish
type Receipt struct {
	ExternalPostID string
}

// Publisher publishes one occurrence. Implementations must tolerate retries of the
// same OccurrenceID.
type Publisher interface {
	Publish(ctx context.Context, req Request) (Receipt, error)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, req Request) (Receipt, error)

// Publish calls f
func (f PublisherFunc) Publish(ctx context.Context, req Request) (Receipt, error) {
	return f(ctx, req)
}

// Retryable reports whether a publish error may be retried
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrPublishRejected)
}

// Rejected marks err as permanent
func Rejected(err error) error {
	return fmt.Errorf("%w: %v", ErrPublishRejected, err)
}

// StatusError classifies an HTTP response status from a platform API
func StatusError(status int, body string) error {
	switch {
	case status == http.StatusTooManyRequests, status >= 500:
		return fmt.Errorf("%w: %d %s", ErrPublishFailure, status, body)
	case status >= 400:
		return fmt.Errorf("%w: %d %s", ErrPublishRejected, status, body)
	}
	return nil
}

// Router dispatches requests to the publisher registered for their platform
type Router struct {
	publishers map[models.Platform]Publisher
	fallback   Publisher
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{publishers: make(map[models.Platform]Publisher)}
}

// Register sets the publisher for a platform
func (r *Router) Register(p models.Platform, pub Publisher) {
	r.publishers[p] = pub
}

// SetFallback sets the publisher used for platforms without a registration
func (r *Router) SetFallback(pub Publisher) {
	r.fallback = pub
}

// Platforms lists the explicitly registered platforms in name order
func (r *Router) Platforms() []models.Platform {
	out := make([]models.Platform, 0, len(r.publishers))
	for p := range r.publishers {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Publish routes the request
func (r *Router) Publish(ctx context.Context, req Request) (Receipt, error) {
	pub, ok := r.publishers[req.Platform]
	if !ok {
		pub = r.fallback
	}
	if pub == nil {
		return Receipt{}, Rejected(fmt.Errorf("no publisher for platform %s", req.Platform))
	}
	return pub.Publish(ctx, req)
}

var _ Publisher = (*Router)(nil)
