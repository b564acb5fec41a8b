// Package blob stores uploaded resume documents and mints short-lived,
// read-only access URLs for them. Document refs are permanent; minted URLs
// are never persisted and are generated fresh for every extraction attempt.
package blob

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Gateway is the blob-store contract shared by the producer and the worker.
type Gateway interface {
	// Upload stores the document and returns its permanent ref.
	Upload(ctx context.Context, ownerID, fileName string, data []byte) (string, error)
	// MintReadURL returns a time-limited, read-only URL for ref.
	MintReadURL(ctx context.Context, ref string, ttl time.Duration) (string, error)
}

// objectKey builds the permanent ref for one uploaded document. The random
// segment keeps two uploads of the same file name distinct.
func objectKey(ownerID, fileName string) string {
	return fmt.Sprintf("resumes/%s/%s/%s", ownerID, uuid.New().String(), fileName)
}
