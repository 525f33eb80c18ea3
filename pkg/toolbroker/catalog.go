package toolbroker

import "sync"

// catalog is the aggregated operation index. Each server owns one slice,
// replaced wholesale on every refresh so entries from a previous connection
// never leak into the next one. Slices survive disconnects: search and
// listing keep working against the last known surface of a server.
type catalog struct {
	mu sync.RWMutex

	// order is the registry declaration order and fixes cross-server
	// ordering for listings and search tie-breaks.
	order []string
	ops   map[string][]OperationDescriptor
	seen  map[string]bool
}

func newCatalog(order []string) *catalog {
	return &catalog{
		order: append([]string(nil), order...),
		ops:   make(map[string][]OperationDescriptor, len(order)),
		seen:  make(map[string]bool, len(order)),
	}
}

// replace swaps the server's slice in one step. Readers holding a snapshot
// from before the swap keep a consistent view; they never observe a
// half-written slice.
func (c *catalog) replace(server string, ops []OperationDescriptor) {
	fresh := make([]OperationDescriptor, len(ops))
	copy(fresh, ops)
	for i := range fresh {
		fresh[i].ServerName = server
	}
	c.mu.Lock()
	c.ops[server] = fresh
	c.seen[server] = true
	c.mu.Unlock()
}

func (c *catalog) operationsFor(server string) []OperationDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]OperationDescriptor(nil), c.ops[server]...)
}

// allOperations returns a snapshot in declaration order, preserving each
// server's own insertion order.
func (c *catalog) allOperations() []OperationDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var all []OperationDescriptor
	for _, server := range c.order {
		all = append(all, c.ops[server]...)
	}
	return all
}

func (c *catalog) countFor(server string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ops[server])
}

// seenServer reports whether the server's catalog has ever been refreshed
// during this process lifetime.
func (c *catalog) seenServer(server string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seen[server]
}
