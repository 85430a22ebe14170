package pipeline

import (
	"errors"
	"io/fs"

	"github.com/rotisserie/eris"

	localio "github.com/shpitdev/site-classifier/pkg/pipeline/io/local"
)

// CacheEntry is a previously written output row.
type CacheEntry struct {
	Row       Row
	Signature string
}

// Cache indexes prior output rows by site key. The first row for a key wins.
type Cache struct {
	entries map[string]CacheEntry
	order   []string
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: map[string]CacheEntry{}}
}

// LoadCache reads prior output at path. A missing file yields an empty cache.
// Output files lacking the identifying columns are treated as empty too.
func LoadCache(path string, cols Columns) (*Cache, error) {
	c := NewCache()
	if path == "" {
		return c, nil
	}
	cols = cols.withDefaults()
	t, err := localio.ReadTableFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "read prior output")
	}
	if !hasColumns(t.Header, cols.Company, cols.Address) {
		return c, nil
	}
	for _, rec := range t.Records {
		c.Add(NewRow(rec), cols)
	}
	return c, nil
}

// Add indexes row under its key unless the key is already present.
func (c *Cache) Add(row Row, cols Columns) {
	key := row.Key(cols)
	if _, ok := c.entries[key]; ok {
		return
	}
	c.entries[key] = CacheEntry{Row: row, Signature: row.Signature()}
	c.order = append(c.order, key)
}

// Lookup returns the entry for key when it was classified under signature.
func (c *Cache) Lookup(key, signature string) (CacheEntry, bool) {
	if c == nil {
		return CacheEntry{}, false
	}
	e, ok := c.entries[key]
	if !ok || e.Signature != signature {
		return CacheEntry{}, false
	}
	return e, true
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// Remaining returns cached rows whose keys are not in seen, in file order.
func (c *Cache) Remaining(seen map[string]struct{}) []Row {
	if c == nil {
		return nil
	}
	var out []Row
	for _, key := range c.order {
		if _, ok := seen[key]; ok {
			continue
		}
		out = append(out, c.entries[key].Row)
	}
	return out
}

func hasColumns(header []string, cols ...string) bool {
	have := make(map[string]struct{}, len(header))
	for _, h := range header {
		have[h] = struct{}{}
	}
	for _, c := range cols {
		if _, ok := have[c]; !ok {
			return false
		}
	}
	return true
}
