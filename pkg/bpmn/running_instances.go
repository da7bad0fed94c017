package bpmn

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// runningInstances owns one mutex per instance id so the façade can
// serialize at most one active advance per instance while letting
// different instances proceed fully in parallel. An LRU bounds how many
// idle mutexes are kept around; a mutex is only ever evicted while unlocked
// because all façade operations hold the instance's own mutex for their
// full duration before touching the cache.
type runningInstances struct {
	mu    sync.Mutex
	locks *lru.Cache[string, *sync.Mutex]
}

func newRunningInstances(capacity int) *runningInstances {
	cache, _ := lru.New[string, *sync.Mutex](capacity)
	return &runningInstances{locks: cache}
}

// lockFor returns the mutex for instanceId, creating it if this is the
// first time the instance has been touched since process start.
func (r *runningInstances) lockFor(instanceId string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.locks.Get(instanceId); ok {
		return m
	}
	m := &sync.Mutex{}
	r.locks.Add(instanceId, m)
	return m
}

// withInstanceLock runs fn while holding instanceId's mutex.
func (r *runningInstances) withInstanceLock(instanceId string, fn func() error) error {
	m := r.lockFor(instanceId)
	m.Lock()
	defer m.Unlock()
	return fn()
}
