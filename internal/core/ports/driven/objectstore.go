package driven

import "context"

// ObjectStore fetches raw document bytes by storage reference. Upload
// happens out of band; the ingestion pipeline only ever reads.
type ObjectStore interface {
	// Download returns the raw bytes for a storage reference.
	// Returns domain.ErrNotFound when the object does not exist.
	Download(ctx context.Context, ref string) ([]byte, error)
}
