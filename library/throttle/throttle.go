// Package throttle limits request rates globally and per key.
package throttle

import (
	"sync"

	"github.com/Laisky/errors/v2"
	"golang.org/x/time/rate"
)

// Config configuration for Throttle
type Config struct {
	TotalNPerSec, TotalBurst     int
	EachKeyNPerSec, EachKeyBurst int
}

// Throttle allows events while both the shared and the per-key budget have room.
type Throttle struct {
	sync.Mutex
	cfg   Config
	total *rate.Limiter
	keys  *sync.Map
}

// New create new Throttle
func New(cfg Config) (*Throttle, error) {
	if cfg.TotalNPerSec <= 0 || cfg.EachKeyNPerSec <= 0 {
		return nil, errors.New("NPerSec must bigger than 0")
	}
	if cfg.TotalBurst < cfg.TotalNPerSec || cfg.EachKeyBurst < cfg.EachKeyNPerSec {
		return nil, errors.New("burst must bigger than NPerSec")
	}

	return &Throttle{
		cfg:   cfg,
		total: rate.NewLimiter(rate.Limit(cfg.TotalNPerSec), cfg.TotalBurst),
		keys:  new(sync.Map),
	}, nil
}

// Allow reports whether key may proceed now, consuming one token of its budget
func (t *Throttle) Allow(key string) bool {
	var limiter *rate.Limiter
	if v, ok := t.keys.Load(key); ok {
		limiter = v.(*rate.Limiter)
	} else {
		t.Lock()
		if v, ok = t.keys.Load(key); ok {
			limiter = v.(*rate.Limiter)
		} else {
			limiter = rate.NewLimiter(rate.Limit(t.cfg.EachKeyNPerSec), t.cfg.EachKeyBurst)
			t.keys.Store(key, limiter)
		}
		t.Unlock()
	}

	return limiter.Allow() && t.total.Allow()
}
