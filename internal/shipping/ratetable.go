package shipping

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// ErrDataSourceUnavailable indicates the rate table could not be read or parsed.
// Callers that depend on rates must treat this as fatal rather than serve partial data.
var ErrDataSourceUnavailable = errors.New("shipping: rate data source unavailable")

// rate table column headers, in file order.
var rateTableHeader = []string{"地域", "都道府県名", "2kgまでの料金", "5kgまでの料金", "10kgまでの料金"}

// RateEntry is one row of the rate table. Prices are JPY per weight tier.
type RateEntry struct {
	Region     string `json:"region"`
	Prefecture string `json:"prefecture"`
	Tier2      int64  `json:"tier2"`
	Tier5      int64  `json:"tier5"`
	Tier10     int64  `json:"tier10"`
}

// PriceForWeight selects the tier price for the given total weight.
// Tiers are inclusive at their upper bound; anything above the 10kg
// bracket still ships at the tier10 price (the data source models no
// higher tier).
func (e RateEntry) PriceForWeight(weightKg float64) int64 {
	switch {
	case weightKg <= 2:
		return e.Tier2
	case weightKg <= 5:
		return e.Tier5
	default:
		return e.Tier10
	}
}

// RateTable loads and caches the prefecture rate table from a CSV source.
// The table is parsed at most once per process; concurrent first calls
// share the same in-flight load and see the same result.
type RateTable struct {
	path string

	once    sync.Once
	entries []RateEntry
	err     error
}

// NewRateTable constructs a RateTable backed by the CSV file at path.
// The source is not touched until Load or the first lookup.
func NewRateTable(path string) *RateTable {
	return &RateTable{path: path}
}

// Load parses the source into the in-memory cache. It is idempotent:
// subsequent calls return the cached outcome, including a cached error.
func (t *RateTable) Load(ctx context.Context) error {
	t.once.Do(func() {
		t.entries, t.err = parseRateFile(t.path)
	})
	if t.err != nil {
		return t.err
	}
	return ctx.Err()
}

// Lookup returns the rate entry whose prefecture exactly matches the key.
// The table is small (~50 rows) so a linear scan is fine.
func (t *RateTable) Lookup(ctx context.Context, prefecture string) (RateEntry, bool, error) {
	if err := t.Load(ctx); err != nil {
		return RateEntry{}, false, err
	}
	for _, entry := range t.entries {
		if entry.Prefecture == prefecture {
			return entry, true, nil
		}
	}
	return RateEntry{}, false, nil
}

// Entries returns a copy of the full table in file order.
func (t *RateTable) Entries(ctx context.Context) ([]RateEntry, error) {
	if err := t.Load(ctx); err != nil {
		return nil, err
	}
	out := make([]RateEntry, len(t.entries))
	copy(out, t.entries)
	return out, nil
}

// Prefectures returns the canonical prefecture keys in table order.
func (t *RateTable) Prefectures(ctx context.Context) ([]string, error) {
	if err := t.Load(ctx); err != nil {
		return nil, err
	}
	out := make([]string, len(t.entries))
	for i, entry := range t.entries {
		out[i] = entry.Prefecture
	}
	return out, nil
}

func parseRateFile(path string) ([]RateEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDataSourceUnavailable, path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrDataSourceUnavailable, path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrDataSourceUnavailable, path)
	}

	if err := validateHeader(records[0]); err != nil {
		return nil, err
	}

	entries := make([]RateEntry, 0, len(records)-1)
	for line, record := range records[1:] {
		if len(record) != len(rateTableHeader) {
			return nil, fmt.Errorf("%w: line %d has %d columns, want %d", ErrDataSourceUnavailable, line+2, len(record), len(rateTableHeader))
		}

		prefecture := strings.TrimSpace(record[1])
		if prefecture == "" {
			return nil, fmt.Errorf("%w: line %d has empty prefecture", ErrDataSourceUnavailable, line+2)
		}

		tier2, err := parsePrice(record[2], line+2)
		if err != nil {
			return nil, err
		}
		tier5, err := parsePrice(record[3], line+2)
		if err != nil {
			return nil, err
		}
		tier10, err := parsePrice(record[4], line+2)
		if err != nil {
			return nil, err
		}

		entries = append(entries, RateEntry{
			Region:     strings.TrimSpace(record[0]),
			Prefecture: prefecture,
			Tier2:      tier2,
			Tier5:      tier5,
			Tier10:     tier10,
		})
	}
	return entries, nil
}

func validateHeader(record []string) error {
	if len(record) != len(rateTableHeader) {
		return fmt.Errorf("%w: header has %d columns, want %d", ErrDataSourceUnavailable, len(record), len(rateTableHeader))
	}
	for i, want := range rateTableHeader {
		if strings.TrimSpace(record[i]) != want {
			return fmt.Errorf("%w: header column %d is %q, want %q", ErrDataSourceUnavailable, i+1, strings.TrimSpace(record[i]), want)
		}
	}
	return nil
}

func parsePrice(raw string, line int) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: line %d has non-numeric price %q", ErrDataSourceUnavailable, line, strings.TrimSpace(raw))
	}
	if value < 0 {
		return 0, fmt.Errorf("%w: line %d has negative price %d", ErrDataSourceUnavailable, line, value)
	}
	return value, nil
}
