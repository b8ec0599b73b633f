package state

import (
	"fmt"
	"sync"
	"time"
)

const registryKeyPrefix = "registry/"

// ServiceRecord is one entry in the IPC/process registry (spec §3
// "Ownership", §4.6.3, §6 "registry.json"): what the orchestrator
// published the last time it started name, and where to find it.
type ServiceRecord struct {
	Name      string
	PID       int
	Port      int
	StartedAt time.Time
	Version   string
}

// Registry is the process-wide IPC/port registry, modeled as a scoped
// handle obtained once at orchestrator startup and passed explicitly into
// components (spec §9 "Global state"), backed by the same embedded
// database as cursors and checkpoints rather than the separate
// registry.json/ports.json files a filesystem-only implementation would
// use — Badger already gives the file-locked, atomic read-modify-write
// spec §5 requires for "a file lock held for the duration of the
// read-modify-write".
type Registry struct {
	store *Store
	mu    sync.Mutex // serializes read-modify-write across the whole registry
}

// NewRegistry wraps an open Store for service registry persistence.
func NewRegistry(s *Store) *Registry {
	return &Registry{store: s}
}

// Get returns the published record for name, if any.
func (r *Registry) Get(name string) (ServiceRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(name)
}

func (r *Registry) getLocked(name string) (ServiceRecord, bool) {
	var rec ServiceRecord
	if err := r.store.getJSON(registryKeyPrefix+name, &rec); err != nil {
		return ServiceRecord{}, false
	}
	return rec, true
}

// List returns every published record, in no particular order.
func (r *Registry) List() ([]ServiceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked()
}

func (r *Registry) listLocked() ([]ServiceRecord, error) {
	var out []ServiceRecord
	err := r.store.scanPrefix(registryKeyPrefix, func() any { return &ServiceRecord{} }, func(key string, v any) error {
		out = append(out, *(v.(*ServiceRecord)))
		return nil
	})
	return out, err
}

// Publish writes or replaces the record for rec.Name.
func (r *Registry) Publish(rec ServiceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.publishLocked(rec)
}

func (r *Registry) publishLocked(rec ServiceRecord) error {
	if rec.Name == "" {
		return fmt.Errorf("state: service record requires a Name")
	}
	return r.store.putJSON(registryKeyPrefix+rec.Name, rec)
}

// Remove deletes the record for name, called as part of graceful shutdown
// (spec §4.6.5 "The registry is updated before and after each transition").
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.delete(registryKeyPrefix + name)
}

// ReserveCandidatePort runs pick, which receives every currently-published
// port, under the registry-wide lock and publishes the resulting record —
// the single atomic read-modify-write spec §4.6.2/§5 calls for, so no two
// services can race each other onto the same port.
func (r *Registry) ReserveCandidatePort(pick func(heldPorts map[int]bool) (ServiceRecord, error)) (ServiceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.listLocked()
	if err != nil {
		return ServiceRecord{}, err
	}
	held := make(map[int]bool, len(existing))
	for _, rec := range existing {
		held[rec.Port] = true
	}

	rec, err := pick(held)
	if err != nil {
		return ServiceRecord{}, err
	}
	if err := r.publishLocked(rec); err != nil {
		return ServiceRecord{}, err
	}
	return rec, nil
}
