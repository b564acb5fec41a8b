package blob

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/resumeiq/pipeline/internal/common"
)

// ClockSkewTolerance backdates a minted URL's validity start so a reader
// with a slightly slow clock does not reject a fresh token.
const ClockSkewTolerance = 5 * time.Minute

// MemGateway keeps objects in memory and mints self-describing URLs that
// carry their own validity window. Resolve enforces the window, which is
// what the URL-expiry tests exercise without live object storage.
type MemGateway struct {
	mu      sync.Mutex
	objects map[string][]byte

	Now func() time.Time
}

// NewMemGateway returns an empty in-memory gateway.
func NewMemGateway() *MemGateway {
	return &MemGateway{
		objects: make(map[string][]byte),
		Now:     time.Now,
	}
}

func (g *MemGateway) Upload(_ context.Context, ownerID, fileName string, data []byte) (string, error) {
	key := objectKey(ownerID, fileName)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects[key] = append([]byte(nil), data...)
	return key, nil
}

func (g *MemGateway) MintReadURL(_ context.Context, ref string, ttl time.Duration) (string, error) {
	g.mu.Lock()
	_, ok := g.objects[ref]
	g.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: object %s", common.ErrNotFound, ref)
	}

	now := g.Now().UTC()
	q := url.Values{}
	q.Set("st", now.Add(-ClockSkewTolerance).Format(time.RFC3339))
	q.Set("se", now.Add(ttl).Format(time.RFC3339))
	q.Set("sp", "r")
	return fmt.Sprintf("mem://%s?%s", ref, q.Encode()), nil
}

// Resolve reads the object behind a minted URL, enforcing the validity
// window and the read-only permission embedded in it.
func (g *MemGateway) Resolve(rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "mem" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	start, err := time.Parse(time.RFC3339, q.Get("st"))
	if err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}
	expiry, err := time.Parse(time.RFC3339, q.Get("se"))
	if err != nil {
		return nil, fmt.Errorf("parse expiry: %w", err)
	}
	if q.Get("sp") != "r" {
		return nil, fmt.Errorf("permission %q is not read-only", q.Get("sp"))
	}

	now := g.Now().UTC()
	if now.Before(start) {
		return nil, fmt.Errorf("url not yet valid")
	}
	if now.After(expiry) {
		return nil, fmt.Errorf("url expired at %s", expiry.Format(time.RFC3339))
	}

	ref := u.Host + u.Path
	g.mu.Lock()
	defer g.mu.Unlock()
	data, ok := g.objects[ref]
	if !ok {
		return nil, fmt.Errorf("%w: object %s", common.ErrNotFound, ref)
	}
	return append([]byte(nil), data...), nil
}
