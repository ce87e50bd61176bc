package service

import (
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
)

// Registry is the in-memory store of named circular regions. Mutations are
// serialized by a single write lock, so a capacity check and the insert it
// guards can never interleave with another writer. Observers are called in
// mutation order, one mutation at a time.
type Registry struct {
	mu        sync.RWMutex
	fences    map[string]domain.Geofence
	capacity  int
	observers []func([]domain.Geofence)

	// writeMu is held from a mutation until its observers return.
	writeMu sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		fences:   make(map[string]domain.Geofence, domain.MaxGeofences),
		capacity: domain.MaxGeofences,
	}
}

// OnChange registers fn to be called with the registry contents after every
// successful mutation. Observers run outside the read/write lock but must not
// mutate the registry.
func (r *Registry) OnChange(fn func([]domain.Geofence)) {
	r.mu.Lock()
	r.observers = append(r.observers, fn)
	r.mu.Unlock()
}

// Add inserts a fence, overwriting any fence with the same name.
func (r *Registry) Add(name string, center domain.Coordinate, radius float64) error {
	name, err := normalizeName(name)
	if err != nil {
		return err
	}

	return r.mutate(func() (bool, error) {
		if _, exists := r.fences[name]; !exists && len(r.fences) >= r.capacity {
			return false, eris.Wrapf(domain.ErrCapacityExceeded, "registry: add %q", name)
		}
		r.fences[name] = domain.Geofence{Name: name, Center: center, Radius: radius}
		return true, nil
	})
}

// Replace removes oldName and inserts a fence under newName in one step.
// The capacity check accounts for the slot freed by oldName.
func (r *Registry) Replace(oldName, newName string, center domain.Coordinate, radius float64) error {
	newName, err := normalizeName(newName)
	if err != nil {
		return err
	}
	oldName = strings.TrimSpace(oldName)

	return r.mutate(func() (bool, error) {
		_, oldExists := r.fences[oldName]
		_, newExists := r.fences[newName]
		size := len(r.fences)
		if oldExists && oldName != newName {
			size--
		}
		if !newExists && size >= r.capacity {
			return false, eris.Wrapf(domain.ErrCapacityExceeded, "registry: replace %q with %q", oldName, newName)
		}
		delete(r.fences, oldName)
		r.fences[newName] = domain.Geofence{Name: newName, Center: center, Radius: radius}
		return true, nil
	})
}

// Remove deletes the named fence. Removing an absent name is a no-op.
func (r *Registry) Remove(name string) error {
	name = strings.TrimSpace(name)
	return r.mutate(func() (bool, error) {
		_, ok := r.fences[name]
		delete(r.fences, name)
		return ok, nil
	})
}

func (r *Registry) Get(name string) (domain.Geofence, error) {
	name = strings.TrimSpace(name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	gf, ok := r.fences[name]
	if !ok {
		return domain.Geofence{}, eris.Wrapf(domain.ErrNotFound, "registry: get %q", name)
	}
	return gf, nil
}

// List returns a copy of all fences sorted by name.
func (r *Registry) List() []domain.Geofence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fences)
}

func (r *Registry) Capacity() int {
	return r.capacity
}

func (r *Registry) Snapshot() domain.RegistrySnapshot {
	return domain.RegistrySnapshot{
		Geofences: r.List(),
		TakenAt:   time.Now().UTC(),
	}
}

// Restore replaces the registry contents with snap. Every entry is validated
// first; on error the registry is left untouched.
func (r *Registry) Restore(snap domain.RegistrySnapshot) error {
	if len(snap.Geofences) > r.capacity {
		return eris.Wrapf(domain.ErrCapacityExceeded, "registry: restore %d geofences", len(snap.Geofences))
	}

	fences := make(map[string]domain.Geofence, len(snap.Geofences))
	for _, gf := range snap.Geofences {
		name, err := normalizeName(gf.Name)
		if err != nil {
			return err
		}
		if err := gf.Center.Validate(); err != nil {
			return eris.Wrapf(err, "registry: restore %q", name)
		}
		if gf.Radius <= 0 {
			return eris.Errorf("registry: restore %q: radius must be positive", name)
		}
		gf.Name = name
		fences[name] = gf
	}

	return r.mutate(func() (bool, error) {
		r.fences = fences
		return true, nil
	})
}

func (r *Registry) listLocked() []domain.Geofence {
	out := make([]domain.Geofence, 0, len(r.fences))
	for _, gf := range r.fences {
		out = append(out, gf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// mutate runs fn under the write lock and, when fn reports a change, hands
// the resulting contents to every observer before the next mutation starts.
func (r *Registry) mutate(fn func() (bool, error)) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	changed, err := fn()
	if err != nil || !changed {
		r.mu.Unlock()
		return err
	}
	observers := slices.Clone(r.observers)
	fences := r.listLocked()
	r.mu.Unlock()

	for _, notify := range observers {
		notify(fences)
	}
	return nil
}

func normalizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", eris.Wrap(domain.ErrInvalidName, "registry: name must not be empty")
	}
	return trimmed, nil
}
