package search

import (
	"fmt"
	"strings"

	pwerrors "github.com/pagewise-ai/pagewise/internal/errors"
	"github.com/pagewise-ai/pagewise/internal/store"
)

// validateQuery checks the query text and options before any index is
// touched. Validation errors are the only errors Search returns.
func validateQuery(query string, opts *SearchOptions, cfg EngineConfig) error {
	if strings.TrimSpace(query) == "" {
		return pwerrors.New(pwerrors.ErrCodeInvalidQuery, "query text must not be empty", nil)
	}

	if opts.TopK == 0 {
		opts.TopK = cfg.DefaultTopK
	}
	if opts.TopK < 1 {
		return pwerrors.New(pwerrors.ErrCodeInvalidTopK,
			fmt.Sprintf("top_k must be >= 1, got %d", opts.TopK), nil)
	}
	if opts.TopK > cfg.MaxTopK {
		opts.TopK = cfg.MaxTopK
	}

	for field := range opts.Filters {
		if !isFilterField(field) {
			return pwerrors.New(pwerrors.ErrCodeInvalidFilter,
				fmt.Sprintf("unknown filter field %q", field), nil).
				WithDetail("field", field).
				WithDetail("allowed", strings.Join(store.FilterFields, ", "))
		}
	}

	switch opts.FilterPolicy {
	case "", store.FilterPolicyStrict, store.FilterPolicyLenient:
	default:
		return pwerrors.New(pwerrors.ErrCodeInvalidFilter,
			fmt.Sprintf("unknown filter policy %q", opts.FilterPolicy), nil)
	}

	return nil
}

func isFilterField(field string) bool {
	for _, f := range store.FilterFields {
		if f == field {
			return true
		}
	}
	return false
}
