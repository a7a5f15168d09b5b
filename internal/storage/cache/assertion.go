package cache

import (
	"context"

	"github.com/opencreds/badgestore/internal/storage"
	"github.com/opencreds/badgestore/internal/types"
)

// AssertionCache decorates an AssertionRepository with read-through caching.
type AssertionCache struct {
	next  storage.AssertionRepository
	store *Store
}

var _ storage.AssertionRepository = (*AssertionCache)(nil)

// NewAssertionCache wraps next with the shared store.
func NewAssertionCache(next storage.AssertionRepository, store *Store) *AssertionCache {
	return &AssertionCache{next: next, store: store}
}

// Create invalidates the listings the new assertion appears in.
func (c *AssertionCache) Create(ctx context.Context, assertion *types.Assertion) (*types.Assertion, error) {
	created, err := c.next.Create(ctx, assertion)
	if err == nil {
		keys := []string{
			keyAssertionsByBadgeClass + created.BadgeClassID,
			keyAssertionsByIssuer + created.IssuerID,
		}
		if created.Recipient != nil && created.Recipient.Identity != "" {
			keys = append(keys, keyAssertionsByRecipient+created.Recipient.Identity)
		}
		c.store.delete(keys...)
	}
	return created, err
}

// FindByID serves from cache when possible. Misses are not cached.
func (c *AssertionCache) FindByID(ctx context.Context, id string) (*types.Assertion, error) {
	if assertion, ok := getAs[*types.Assertion](c.store, keyAssertion+id); ok {
		return assertion, nil
	}
	assertion, err := c.next.FindByID(ctx, id)
	if err == nil && assertion != nil {
		c.store.set(keyAssertion+assertion.ID, assertion)
	}
	return assertion, err
}

// FindAll always hits the database.
func (c *AssertionCache) FindAll(ctx context.Context) ([]*types.Assertion, error) {
	return c.next.FindAll(ctx)
}

// List always hits the database.
func (c *AssertionCache) List(ctx context.Context, page storage.Page) ([]*types.Assertion, error) {
	return c.next.List(ctx, page)
}

// FindByBadgeClass caches the badge class's assertion listing.
func (c *AssertionCache) FindByBadgeClass(ctx context.Context, badgeClassID string) ([]*types.Assertion, error) {
	if assertions, ok := getAs[[]*types.Assertion](c.store, keyAssertionsByBadgeClass+badgeClassID); ok {
		return assertions, nil
	}
	assertions, err := c.next.FindByBadgeClass(ctx, badgeClassID)
	if err == nil && assertions != nil {
		c.store.set(keyAssertionsByBadgeClass+badgeClassID, assertions)
	}
	return assertions, err
}

// FindByIssuer caches the issuer's assertion listing.
func (c *AssertionCache) FindByIssuer(ctx context.Context, issuerID string) ([]*types.Assertion, error) {
	if assertions, ok := getAs[[]*types.Assertion](c.store, keyAssertionsByIssuer+issuerID); ok {
		return assertions, nil
	}
	assertions, err := c.next.FindByIssuer(ctx, issuerID)
	if err == nil && assertions != nil {
		c.store.set(keyAssertionsByIssuer+issuerID, assertions)
	}
	return assertions, err
}

// FindByRecipient caches the recipient's assertion listing.
func (c *AssertionCache) FindByRecipient(ctx context.Context, recipientID string) ([]*types.Assertion, error) {
	if assertions, ok := getAs[[]*types.Assertion](c.store, keyAssertionsByRecipient+recipientID); ok {
		return assertions, nil
	}
	assertions, err := c.next.FindByRecipient(ctx, recipientID)
	if err == nil && assertions != nil {
		c.store.set(keyAssertionsByRecipient+recipientID, assertions)
	}
	return assertions, err
}

// Update invalidates the assertion and every listing it appears in; a
// revocation flips the revoked field inside cached slices we cannot patch.
func (c *AssertionCache) Update(ctx context.Context, id string, patch types.AssertionUpdate) (*types.Assertion, error) {
	assertion, err := c.next.Update(ctx, id, patch)
	if err == nil {
		c.store.delete(keyAssertion + id)
		c.store.delete(
			keyAssertionsByBadgeClass+assertion.BadgeClassID,
			keyAssertionsByIssuer+assertion.IssuerID,
		)
		if patch.Recipient.IsSet() {
			// The old identity's listing is not recoverable from the result.
			c.store.deletePrefix(keyAssertionsByRecipient)
		} else if assertion.Recipient != nil && assertion.Recipient.Identity != "" {
			c.store.delete(keyAssertionsByRecipient + assertion.Recipient.Identity)
		}
	}
	return assertion, err
}

// Delete sweeps the assertion and the listings it appeared in.
func (c *AssertionCache) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := c.next.Delete(ctx, id)
	if err == nil && deleted {
		c.store.delete(keyAssertion + id)
		c.store.deletePrefix(keyAssertionsByBadgeClass, keyAssertionsByIssuer, keyAssertionsByRecipient)
	}
	return deleted, err
}
