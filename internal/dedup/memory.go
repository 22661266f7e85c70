package dedup

import "sync"

// Memory suppresses duplicates within a single run.
type Memory struct{ m sync.Map }

func NewMemory() *Memory { return &Memory{} }

func (d *Memory) Seen(key string) bool {
	_, ok := d.m.LoadOrStore(key, struct{}{})
	return ok
}
