// Package search provides the durable store the ingestion pipeline and HTTP
// surface read and write emails through, with pluggable backends.
package search

import (
	"context"
	"errors"

	"github.com/brandon/onebox/pkg/types"
)

// ErrNotFound is returned when no email exists with the requested id.
var ErrNotFound = errors.New("email not found")

// Store is the search collaborator contract. Implementations must be safe
// for concurrent use; IndexEmail is an upsert keyed by the email's id.
type Store interface {
	IndexEmail(ctx context.Context, email *types.Email) error
	UpdateCategory(ctx context.Context, id string, category types.Category) error
	GetByID(ctx context.Context, id string) (*types.Email, error)
	Search(ctx context.Context, filters types.SearchFilters) (*types.SearchResult, error)
	CountsByCategory(ctx context.Context) (map[types.Category]int, error)
	HealthCheck(ctx context.Context) error
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// normalizePage clamps pagination values to sane bounds.
func normalizePage(filters *types.SearchFilters) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.Size <= 0 {
		filters.Size = defaultPageSize
	}
	if filters.Size > maxPageSize {
		filters.Size = maxPageSize
	}
}

// zeroFilled returns a counts map with every label present.
func zeroFilled() map[types.Category]int {
	counts := make(map[types.Category]int, len(types.Categories()))
	for _, c := range types.Categories() {
		counts[c] = 0
	}
	return counts
}
