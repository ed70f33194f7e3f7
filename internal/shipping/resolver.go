package shipping

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/width"
)

// ErrLocationNotResolved indicates no resolution strategy matched the input.
var ErrLocationNotResolved = errors.New("shipping: location not resolved")

// honorificSuffixes are the single trailing characters stripped before
// direct and substring matching (東京都 → 東京, 北海道 → 北海).
const honorificSuffixes = "都道府県"

// Resolver maps free-text destination input to a canonical rate table
// prefecture. Strategies are tried in order and the first hit wins:
// exact city alias, honorific-stripped direct match, then a permissive
// substring match against the table in row order. Substring hits are
// best-effort; callers should treat them as low confidence.
type Resolver struct {
	table   *RateTable
	aliases map[string]string
}

// NewResolver constructs a Resolver over the given rate table, using the
// built-in city alias map when aliases is nil.
func NewResolver(table *RateTable, aliases map[string]string) (*Resolver, error) {
	if table == nil {
		return nil, errors.New("shipping: resolver requires a rate table")
	}
	if aliases == nil {
		aliases = DefaultAliases()
	}
	return &Resolver{table: table, aliases: aliases}, nil
}

// Resolve returns the canonical prefecture for the input, or
// ErrLocationNotResolved when every strategy misses. A rate table load
// failure propagates as ErrDataSourceUnavailable.
func (r *Resolver) Resolve(ctx context.Context, input string) (string, error) {
	normalized := normalizeLocation(input)
	if normalized == "" {
		return "", ErrLocationNotResolved
	}

	if prefecture, ok := r.resolveAlias(normalized); ok {
		return prefecture, nil
	}

	prefectures, err := r.table.Prefectures(ctx)
	if err != nil {
		return "", err
	}

	if prefecture, ok := resolveDirect(normalized, prefectures); ok {
		return prefecture, nil
	}
	if prefecture, ok := resolveSubstring(normalized, prefectures); ok {
		return prefecture, nil
	}
	return "", ErrLocationNotResolved
}

func (r *Resolver) resolveAlias(input string) (string, bool) {
	prefecture, ok := r.aliases[input]
	return prefecture, ok
}

func resolveDirect(input string, prefectures []string) (string, bool) {
	stripped := stripHonorific(input)
	for _, prefecture := range prefectures {
		if stripped == stripHonorific(prefecture) {
			return prefecture, true
		}
	}
	return "", false
}

// resolveSubstring keeps the permissive first-row-wins policy: real
// input includes ward names, truncations, and addresses pasted whole,
// and some answer beats none. Ambiguous short inputs therefore resolve
// to whichever table row comes first.
func resolveSubstring(input string, prefectures []string) (string, bool) {
	stripped := stripHonorific(input)
	for _, prefecture := range prefectures {
		candidate := stripHonorific(prefecture)
		if strings.Contains(candidate, stripped) || strings.Contains(stripped, candidate) {
			return prefecture, true
		}
	}
	return "", false
}

// normalizeLocation folds width variants so full-width and half-width
// spellings of the same destination resolve identically.
func normalizeLocation(input string) string {
	return strings.TrimSpace(width.Fold.String(input))
}

func stripHonorific(name string) string {
	runes := []rune(name)
	if len(runes) < 2 {
		return name
	}
	last := runes[len(runes)-1]
	if strings.ContainsRune(honorificSuffixes, last) {
		return string(runes[:len(runes)-1])
	}
	return name
}
