// Package catalog is the authoritative in-memory zone mDNS responses are
// served from: a per-name Node holding typed RRsets, each independently
// flagged authoritative or cached.
package catalog

import (
	"strings"
	"sync"

	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/wire"
)

// rrsetKey identifies an RRset within a Node by (type, class), with the
// QU/cache-flush bit already masked off by the caller.
type rrsetKey struct {
	Type  protocol.RecordType
	Class protocol.Class
}

// RRset is every record sharing a (name, type, class); all its members
// share one authoritative flag (spec invariant: an RRset is never mixed).
type RRset struct {
	Authoritative bool
	Records       []wire.RR
}

// Node holds every RRset known for one canonical (lowercased) name.
type Node struct {
	mu     sync.RWMutex
	rrsets map[rrsetKey]*RRset
}

func newNode() *Node {
	return &Node{rrsets: make(map[rrsetKey]*RRset)}
}

// Catalog maps canonical domain names to Nodes. The zero value is not
// usable; construct with New.
type Catalog struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{nodes: make(map[string]*Node)}
}

func canonical(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

func (c *Catalog) nodeFor(name string, create bool) *Node {
	key := canonical(name)

	c.mu.RLock()
	n, ok := c.nodes[key]
	c.mu.RUnlock()
	if ok || !create {
		return n
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok = c.nodes[key]; ok {
		return n
	}
	n = newNode()
	c.nodes[key] = n
	return n
}

// Add inserts rr into the Node for rr.Name, deduplicating identical
// records and merging TTLs to the higher of the two on a duplicate.
// Adding an authoritative record marks the enclosing RRset authoritative.
func (c *Catalog) Add(rr wire.RR, authoritative bool) {
	n := c.nodeFor(rr.Name, true)
	n.mu.Lock()
	defer n.mu.Unlock()

	key := rrsetKey{Type: rr.Type, Class: rr.EffectiveClass()}
	set, ok := n.rrsets[key]
	if !ok {
		set = &RRset{Authoritative: authoritative}
		n.rrsets[key] = set
	}
	if authoritative {
		set.Authoritative = true
	}

	for i, existing := range set.Records {
		if wire.RDataEqual(existing.Data, rr.Data) {
			if rr.TTL > existing.TTL {
				set.Records[i].TTL = rr.TTL
			}
			set.Records[i].CacheFlush = set.Records[i].CacheFlush || rr.CacheFlush
			return
		}
	}
	set.Records = append(set.Records, rr)
}

// Remove deletes every RRset under name.
func (c *Catalog) Remove(name string) {
	key := canonical(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.nodes, key)
}

// RemoveRRset deletes one (type, class) RRset under name, leaving any
// others untouched.
func (c *Catalog) RemoveRRset(name string, rtype protocol.RecordType, class protocol.Class) {
	n := c.nodeFor(name, false)
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.rrsets, rrsetKey{Type: rtype, Class: class & protocol.ClassMask})
}

// Lookup returns every RRset under name, or nil if the name is unknown.
// Passing TypeANY to a filtered caller is the responsibility of the name
// server; Lookup always returns everything.
func (c *Catalog) Lookup(name string) []RRset {
	n := c.nodeFor(name, false)
	if n == nil {
		return nil
	}
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]RRset, 0, len(n.rrsets))
	for _, set := range n.rrsets {
		out = append(out, RRset{Authoritative: set.Authoritative, Records: append([]wire.RR(nil), set.Records...)})
	}
	return out
}

// LookupType returns the single RRset matching (name, type), or a zero
// RRset with Records == nil if absent.
func (c *Catalog) LookupType(name string, rtype protocol.RecordType, class protocol.Class) RRset {
	n := c.nodeFor(name, false)
	if n == nil {
		return RRset{}
	}
	n.mu.RLock()
	defer n.mu.RUnlock()

	set, ok := n.rrsets[rrsetKey{Type: rtype, Class: class & protocol.ClassMask}]
	if !ok {
		return RRset{}
	}
	return RRset{Authoritative: set.Authoritative, Records: append([]wire.RR(nil), set.Records...)}
}

// Names returns every canonical name currently present in the catalog.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.nodes))
	for name := range c.nodes {
		names = append(names, name)
	}
	return names
}
