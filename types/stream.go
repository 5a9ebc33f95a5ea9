// Package types defines the core domain types shared by the run outcome tracker.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"encoding/json"
	"errors"
	"sort"
)

// StreamDescriptor identifies a stream by name and optional namespace.
//
// The struct is comparable and is used as a map key throughout. An absent
// namespace (HasNamespace=false) is distinct from an empty-string namespace.
type StreamDescriptor struct {
	Name         string
	Namespace    string
	HasNamespace bool
}

// NewStream returns a descriptor without a namespace.
func NewStream(name string) StreamDescriptor {
	return StreamDescriptor{Name: name}
}

// NewNamespacedStream returns a descriptor with the given namespace, which may be empty.
func NewNamespacedStream(namespace, name string) StreamDescriptor {
	return StreamDescriptor{Name: name, Namespace: namespace, HasNamespace: true}
}

// NamespacePtr returns the namespace as a pointer, nil when absent.
func (d StreamDescriptor) NamespacePtr() *string {
	if !d.HasNamespace {
		return nil
	}
	ns := d.Namespace
	return &ns
}

// String renders the descriptor as "namespace:name", or "name" when no namespace is set.
func (d StreamDescriptor) String() string {
	if !d.HasNamespace {
		return d.Name
	}
	return d.Namespace + ":" + d.Name
}

// Less orders descriptors by namespace presence, namespace, then name.
func (d StreamDescriptor) Less(o StreamDescriptor) bool {
	if d.HasNamespace != o.HasNamespace {
		return !d.HasNamespace
	}
	if d.Namespace != o.Namespace {
		return d.Namespace < o.Namespace
	}
	return d.Name < o.Name
}

type streamDescriptorJSON struct {
	Name      string  `json:"name"`
	Namespace *string `json:"namespace,omitempty"`
}

// MarshalJSON omits the namespace when absent and keeps an empty-string namespace.
func (d StreamDescriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(streamDescriptorJSON{Name: d.Name, Namespace: d.NamespacePtr()})
}

// UnmarshalJSON treats a missing or null namespace as absent.
func (d *StreamDescriptor) UnmarshalJSON(data []byte) error {
	var raw streamDescriptorJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Name == "" {
		return errors.New("stream descriptor name must be non-empty")
	}
	d.Name = raw.Name
	d.Namespace = ""
	d.HasNamespace = false
	if raw.Namespace != nil {
		d.Namespace = *raw.Namespace
		d.HasNamespace = true
	}
	return nil
}

// StreamSet is an unordered set of stream descriptors.
type StreamSet map[StreamDescriptor]struct{}

// NewStreamSet builds a set from the given descriptors.
func NewStreamSet(streams ...StreamDescriptor) StreamSet {
	s := make(StreamSet, len(streams))
	for _, d := range streams {
		s[d] = struct{}{}
	}
	return s
}

// Add inserts d into the set.
func (s StreamSet) Add(d StreamDescriptor) {
	s[d] = struct{}{}
}

// Has reports whether d is in the set. Safe on a nil set.
func (s StreamSet) Has(d StreamDescriptor) bool {
	_, ok := s[d]
	return ok
}

// Intersect returns a new set holding descriptors present in both s and o.
func (s StreamSet) Intersect(o StreamSet) StreamSet {
	out := make(StreamSet)
	for d := range s {
		if o.Has(d) {
			out[d] = struct{}{}
		}
	}
	return out
}

// Sorted returns the descriptors in deterministic order.
func (s StreamSet) Sorted() []StreamDescriptor {
	out := make([]StreamDescriptor, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// MarshalJSON renders the set as a sorted array.
func (s StreamSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON reads the set from an array of descriptors.
func (s *StreamSet) UnmarshalJSON(data []byte) error {
	var list []StreamDescriptor
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = NewStreamSet(list...)
	return nil
}

// SyncMode is the configured read mode of a stream.
type SyncMode string

const (
	SyncModeFullRefresh SyncMode = "full_refresh"
	SyncModeIncremental SyncMode = "incremental"
)

// CatalogEntry is one configured stream.
type CatalogEntry struct {
	Stream   StreamDescriptor `json:"stream"`
	SyncMode SyncMode         `json:"sync_mode"`
}

// Catalog is the configured catalog for a connection.
// Entries keep the order in which they were configured.
type Catalog struct {
	Streams []CatalogEntry `json:"streams"`
}

// NewCatalog builds a catalog from entries.
func NewCatalog(entries ...CatalogEntry) Catalog {
	return Catalog{Streams: entries}
}

// Lookup returns the entry for d. When a descriptor appears more than once the
// last entry wins, matching map semantics.
func (c Catalog) Lookup(d StreamDescriptor) (CatalogEntry, bool) {
	var (
		found CatalogEntry
		ok    bool
	)
	for _, e := range c.Streams {
		if e.Stream == d {
			found, ok = e, true
		}
	}
	return found, ok
}

// Descriptors returns the catalog's descriptors in configuration order, without duplicates.
func (c Catalog) Descriptors() []StreamDescriptor {
	seen := make(StreamSet, len(c.Streams))
	out := make([]StreamDescriptor, 0, len(c.Streams))
	for _, e := range c.Streams {
		if seen.Has(e.Stream) {
			continue
		}
		seen.Add(e.Stream)
		out = append(out, e.Stream)
	}
	return out
}

// StreamsWithMode returns the set of streams configured with mode.
func (c Catalog) StreamsWithMode(mode SyncMode) StreamSet {
	out := make(StreamSet)
	for _, d := range c.Descriptors() {
		if e, _ := c.Lookup(d); e.SyncMode == mode {
			out.Add(d)
		}
	}
	return out
}
