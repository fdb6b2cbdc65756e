package content

import (
	"context"
	"fmt"

	"github.com/social-scheduler/internal/models"
)

// Payload is the publishable content for one occurrence. The scheduler passes it
// from the provider to the platform publisher without looking inside.
type Payload struct {
	Ref  string      `json:"ref"`
	Data models.JSON `json:"data,omitempty"`
}

// Provider supplies the payload of an occurrence
type Provider interface {
	GetPayload(ctx context.Context, occurrenceID string) (Payload, error)
}

// Lookup is the read access StoreProvider needs
type Lookup interface {
	GetOccurrence(ctx context.Context, id string) (*models.Occurrence, error)
	GetPattern(ctx context.Context, id string) (*models.RecurrencePattern, error)
}

// StoreProvider builds payloads from the stored occurrence reference and, for recurring
// occurrences, the owning pattern's content template
type StoreProvider struct {
	lookup Lookup
}

// NewStoreProvider creates a provider backed by the repository
func NewStoreProvider(lookup Lookup) *StoreProvider {
	return &StoreProvider{lookup: lookup}
}

// GetPayload returns the payload for an occurrence
func (p *StoreProvider) GetPayload(ctx context.Context, occurrenceID string) (Payload, error) {
	occ, err := p.lookup.GetOccurrence(ctx, occurrenceID)
	if err != nil {
		return Payload{}, fmt.Errorf("occurrence %s not found: %w", occurrenceID, err)
	}

	payload := Payload{
		Ref: occ.PayloadRef,
		Data: models.JSON{
			"sequence": occ.Sequence,
		},
	}
	if occ.PatternID != nil {
		pattern, err := p.lookup.GetPattern(ctx, *occ.PatternID)
		if err != nil {
			return Payload{}, fmt.Errorf("pattern %s not found: %w", *occ.PatternID, err)
		}
		payload.Data["template"] = pattern.ContentTemplate
		if payload.Ref == "" {
			payload.Ref = pattern.ContentTemplate
		}
	}
	if occ.ProjectID != "" {
		payload.Data["project_id"] = occ.ProjectID
	}
	return payload, nil
}

// Static returns the same payload for every occurrence
type Static struct {
	Payload Payload
}

// GetPayload returns the configured payload
func (s Static) GetPayload(_ context.Context, _ string) (Payload, error) {
	return s.Payload, nil
}
