package barcode

import (
	"context"
	"time"

	"github.com/wareflow/wareflow-backend/pkg/cache"
)

const claimKeyPrefix = "stockin:barcode-claim:"

// CacheClaimer claims barcodes with SET NX and an expiry. The claim only has
// to outlive the draft session; at commit time the UNIQUE indexes and the
// re-validation before insert are authoritative.
type CacheClaimer struct {
	client cache.Client
	ttl    time.Duration
}

// NewCacheClaimer creates a claimer on top of Redis or the in-process cache
func NewCacheClaimer(client cache.Client, ttl time.Duration) *CacheClaimer {
	return &CacheClaimer{client: client, ttl: ttl}
}

// Claim reserves barcode for owner. Re-claiming one's own barcode succeeds.
func (c *CacheClaimer) Claim(ctx context.Context, barcode, owner string) (bool, error) {
	key := claimKeyPrefix + barcode
	ok, err := c.client.SetNX(ctx, key, owner, c.ttl)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	holder, err := c.client.Get(ctx, key)
	if err == cache.ErrCacheMiss {
		// expired between the two calls
		return c.client.SetNX(ctx, key, owner, c.ttl)
	}
	if err != nil {
		return false, err
	}
	return holder == owner, nil
}

// Refresh extends the claims owner holds on codes by another TTL. A code
// whose claim lapsed is claimed again; a code now held by someone else is
// left alone and reported by the commit-time check instead.
func (c *CacheClaimer) Refresh(ctx context.Context, owner string, codes []string) error {
	for _, code := range codes {
		key := claimKeyPrefix + code
		holder, err := c.client.Get(ctx, key)
		switch {
		case err == cache.ErrCacheMiss:
			if _, err := c.client.SetNX(ctx, key, owner, c.ttl); err != nil {
				return err
			}
		case err != nil:
			return err
		case holder == owner:
			if err := c.client.Set(ctx, key, owner, c.ttl); err != nil {
				return err
			}
		}
	}
	return nil
}
