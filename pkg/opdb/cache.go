package opdb

import (
	"math"
	"sync"
)

// Cached memoizes queries on a 1uV grid. Sweeps revisit the same bias
// points many times (every finger count of one leaf shares them).
type Cached struct {
	db Database

	mu    sync.Mutex
	table map[[3]int64]cachedOp
}

type cachedOp struct {
	op  OperatingPoint
	err error
}

func NewCached(db Database) *Cached {
	return &Cached{db: db, table: make(map[[3]int64]cachedOp)}
}

func quantize(v float64) int64 { return int64(math.Round(v * 1e6)) }

func (c *Cached) Query(vgs, vds, vbs float64) (OperatingPoint, error) {
	key := [3]int64{quantize(vgs), quantize(vds), quantize(vbs)}

	c.mu.Lock()
	hit, ok := c.table[key]
	c.mu.Unlock()
	if ok {
		return hit.op, hit.err
	}

	op, err := c.db.Query(vgs, vds, vbs)

	c.mu.Lock()
	c.table[key] = cachedOp{op: op, err: err}
	c.mu.Unlock()
	return op, err
}

// Len reports the number of memoized bias points.
func (c *Cached) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.table)
}
