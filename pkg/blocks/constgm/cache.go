package constgm

import (
	"github.com/pkg/errors"

	"github.com/edp1096/toy-dsn/pkg/dsn"
)

// Cache memoizes searches by the full spec for composites whose
// sub-candidates share a tail gate. Only the cheapest generator is
// kept: bias current adds to a composite total independently of anything
// else the generator does.
type Cache struct {
	d    *Designer
	done map[Spec]cacheEntry
}

type cacheEntry struct {
	op  Op
	err error
}

func NewCache(d *Designer) *Cache {
	return &Cache{d: d, done: make(map[Spec]cacheEntry)}
}

// Best returns the minimum-current generator for spec. A NoSolution result
// is cached too.
func (c *Cache) Best(spec Spec) (Op, error) {
	if e, ok := c.done[spec]; ok {
		return e.op, e.err
	}
	var e cacheEntry
	cands, err := c.d.Search(spec)
	if err == nil {
		e.op, err = dsn.Select(cands, c.d.Compare)
	}
	e.err = errors.Wrap(err, "constant gm")
	c.done[spec] = e
	return e.op, e.err
}

// Len is the number of distinct searches run so far.
func (c *Cache) Len() int { return len(c.done) }
