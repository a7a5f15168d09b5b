package storage

// MaxPageLimit bounds any single page of results.
const MaxPageLimit = 1000

// Page is a validated limit/offset window for listing methods.
type Page struct {
	Limit  int
	Offset int
}

// DefaultPage returns the first page at a moderate size.
func DefaultPage() Page {
	return Page{Limit: 50, Offset: 0}
}

// Validate checks bounds before any backend work happens.
func (p Page) Validate(op, entity string) error {
	if p.Limit <= 0 {
		return Validationf(op, entity, "", "limit must be positive, got %d", p.Limit)
	}
	if p.Limit > MaxPageLimit {
		return Validationf(op, entity, "", "limit must be at most %d, got %d", MaxPageLimit, p.Limit)
	}
	if p.Offset < 0 {
		return Validationf(op, entity, "", "offset must be non-negative, got %d", p.Offset)
	}
	return nil
}
