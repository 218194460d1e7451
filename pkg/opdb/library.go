package opdb

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// DefaultIntent is the threshold flavor used when a role names none.
const DefaultIntent = "standard"

// Library hands out databases by device type, threshold intent and
// channel length.
type Library interface {
	Database(pol Polarity, intent string, lch float64) (Database, error)
}

// Models is a Library backed by analytic Mosfet models.
type Models struct {
	mu     sync.Mutex
	models map[string]*Mosfet
	dbs    map[string]*Cached
}

func NewModels() *Models {
	return &Models{
		models: make(map[string]*Mosfet),
		dbs:    make(map[string]*Cached),
	}
}

// DefaultModels registers the built-in standard n/p models.
func DefaultModels() *Models {
	lib := NewModels()
	lib.Add(DefaultIntent, NewMosfet(NMOS))
	lib.Add(DefaultIntent, NewMosfet(PMOS))
	return lib
}

func modelKey(pol Polarity, intent string) string {
	if intent == "" {
		intent = DefaultIntent
	}
	return pol.String() + "/" + intent
}

func (l *Models) Add(intent string, m *Mosfet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.models[modelKey(m.Type, intent)] = m
}

func (l *Models) Database(pol Polarity, intent string, lch float64) (Database, error) {
	key := modelKey(pol, intent)

	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.models[key]
	if !ok {
		return nil, errors.Errorf("no %s device model for intent %q", pol, intent)
	}

	dbKey := fmt.Sprintf("%s/%g", key, lch)
	if db, ok := l.dbs[dbKey]; ok {
		return db, nil
	}
	db := NewCached(m.WithLength(lch))
	l.dbs[dbKey] = db
	return db, nil
}
