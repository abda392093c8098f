package script

import "sync"

// Pool lazily spawns one worker engine per render worker. First use pays
// the script load cost; an init failure is reported once per slot and is
// fatal for the build.
type Pool struct {
	host  *Host
	slots []poolSlot
}

type poolSlot struct {
	once sync.Once
	eng  *Engine
	err  error
}

// NewPool sizes the pool for the given worker count.
func NewPool(host *Host, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{host: host, slots: make([]poolSlot, workers)}
}

// Engine returns the engine owned by worker, spawning it on first use.
// With scripting disabled it returns (nil, nil).
func (p *Pool) Engine(worker int) (*Engine, error) {
	if p == nil || !p.host.Enabled() {
		return nil, nil
	}
	s := &p.slots[worker]
	s.once.Do(func() {
		s.eng, s.err = p.host.Worker()
	})
	return s.eng, s.err
}

// Close releases every spawned engine.
func (p *Pool) Close() {
	if p == nil {
		return
	}
	for i := range p.slots {
		p.slots[i].eng.Close()
	}
}
