package types

import (
	"cmp"
	"slices"
	"strings"
)

// SortByRelevance orders records in place: popular first, then names that
// start with query (case-insensitive), then higher population (unknown last),
// then name.
func SortByRelevance(locations []Location, query string) {
	q := strings.ToLower(strings.TrimSpace(query))
	slices.SortStableFunc(locations, func(a, b Location) int {
		return CompareRelevance(a, b, q)
	})
}

// CompareRelevance compares two records for SortByRelevance. query must
// already be lowercased and trimmed.
func CompareRelevance(a, b Location, query string) int {
	if a.IsPopular != b.IsPopular {
		if a.IsPopular {
			return -1
		}
		return 1
	}

	if query != "" {
		ap := strings.HasPrefix(strings.ToLower(a.Name), query)
		bp := strings.HasPrefix(strings.ToLower(b.Name), query)
		if ap != bp {
			if ap {
				return -1
			}
			return 1
		}
	}

	switch {
	case a.Population != nil && b.Population == nil:
		return -1
	case a.Population == nil && b.Population != nil:
		return 1
	case a.Population != nil && b.Population != nil && *a.Population != *b.Population:
		return cmp.Compare(*b.Population, *a.Population)
	}

	return strings.Compare(a.Name, b.Name)
}
