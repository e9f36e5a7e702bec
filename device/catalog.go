// SPDX-License-Identifier: EPL-2.0

package device

import (
	"fmt"
	"strconv"
	"sync"
)

// Catalog keeps the last enumeration per direction and resolves selections
// made against it.
type Catalog struct {
	backend Backend

	mu        sync.Mutex
	snapshots map[Direction][]Info
}

func NewCatalog(backend Backend) *Catalog {
	return &Catalog{
		backend:   backend,
		snapshots: make(map[Direction][]Info),
	}
}

// Enumerate lists endpoints and remembers the result as the snapshot that
// later selections are checked against.
func (c *Catalog) Enumerate(dir Direction) ([]Info, error) {
	infos, err := c.backend.Devices(dir)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s devices: %w", dir, err)
	}
	for i := range infos {
		infos[i].ID = strconv.Itoa(i)
	}

	c.mu.Lock()
	c.snapshots[dir] = infos
	c.mu.Unlock()

	return publicCopy(infos), nil
}

// Resolve returns the endpoint id names. An empty id selects the system
// default and resolves to nil.
//
// The id is checked against a fresh enumeration: it must still exist, and
// when a snapshot was taken it must still name the same endpoint.
func (c *Catalog) Resolve(dir Direction, id string) (*Info, error) {
	if id == "" {
		return nil, nil
	}
	idx, err := strconv.Atoi(id)
	if err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}

	c.mu.Lock()
	snapshot := c.snapshots[dir]
	c.mu.Unlock()

	fresh, err := c.backend.Devices(dir)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s devices: %w", dir, err)
	}
	if idx >= len(fresh) {
		if idx < len(snapshot) {
			return nil, fmt.Errorf("%w: %s device %s (%s) is gone", ErrStaleSelection, dir, id, snapshot[idx].Name)
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}

	info := fresh[idx]
	info.ID = id
	if idx < len(snapshot) && snapshot[idx].Name != info.Name {
		return nil, fmt.Errorf("%w: %s device %s was %q, now %q",
			ErrStaleSelection, dir, id, snapshot[idx].Name, info.Name)
	}
	return &info, nil
}

// ResolveName finds an endpoint by exact name in a fresh enumeration.
func (c *Catalog) ResolveName(dir Direction, name string) (*Info, error) {
	infos, err := c.Enumerate(dir)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Name == name {
			return c.Resolve(dir, info.ID)
		}
	}
	return nil, fmt.Errorf("%w: %s device named %q", ErrUnknownDevice, dir, name)
}

// publicCopy strips handles so callers only ever hold ids.
func publicCopy(infos []Info) []Info {
	out := make([]Info, len(infos))
	for i, info := range infos {
		info.handle = nil
		out[i] = info
	}
	return out
}
