// Package shared holds contracts used by more than one domain package.
package shared

import "context"

// Persisted sections.
const (
	SectionTMSI       = "tmsi"
	SectionRegistered = "registered"
	SectionSequence   = "sequence"
)

// KeyLastTMSI is the key of the last issued temporary identity in SectionTMSI.
const KeyLastTMSI = "last"

// SectionStore is the key/value persistence collaborator.
type SectionStore interface {
	// Load returns every key of section. A missing section is empty, not an error.
	Load(ctx context.Context, section string) (map[string]string, error)
	Set(ctx context.Context, section, key, value string) error
	Delete(ctx context.Context, section, key string) error
}
