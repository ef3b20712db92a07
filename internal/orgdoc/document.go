// Package orgdoc defines the Organization Document: the single JSON
// structure holding all operational data for one tenant. The sync layer
// treats every collection member as an opaque payload identified only
// by its "id" field.
package orgdoc

import "encoding/json"

// Entity is an opaque collection member. Identity is solely the "id"
// field; no other field is ever inspected by the sync layer.
type Entity = json.RawMessage

// Document is the unit of persistence and sync for one organization.
type Document struct {
	ID       string          `json:"id,omitempty"`
	Settings json.RawMessage `json:"settings,omitempty"`

	Users          []Entity `json:"users"`
	Shifts         []Entity `json:"shifts"`
	Properties     []Entity `json:"properties"`
	Clients        []Entity `json:"clients"`
	SupplyRequests []Entity `json:"supplyRequests"`
	InventoryItems []Entity `json:"inventoryItems"`
	ManualTasks    []Entity `json:"manualTasks"`
	LeaveRequests  []Entity `json:"leaveRequests"`
	Invoices       []Entity `json:"invoices"`
	Tutorials      []Entity `json:"tutorials"`
	TimeEntries    []Entity `json:"timeEntries"`
}

// CollectionNames lists every collection a document carries, in the
// order they are serialized. Legacy documents may be missing some of
// these fields; Normalize backfills them.
var CollectionNames = []string{
	"users",
	"shifts",
	"properties",
	"clients",
	"supplyRequests",
	"inventoryItems",
	"manualTasks",
	"leaveRequests",
	"invoices",
	"tutorials",
	"timeEntries",
}

// New returns an empty document for the given organization id with
// every collection initialized.
func New(id string) *Document {
	d := &Document{ID: id}
	d.Normalize()
	return d
}

func (d *Document) collectionRef(name string) *[]Entity {
	switch name {
	case "users":
		return &d.Users
	case "shifts":
		return &d.Shifts
	case "properties":
		return &d.Properties
	case "clients":
		return &d.Clients
	case "supplyRequests":
		return &d.SupplyRequests
	case "inventoryItems":
		return &d.InventoryItems
	case "manualTasks":
		return &d.ManualTasks
	case "leaveRequests":
		return &d.LeaveRequests
	case "invoices":
		return &d.Invoices
	case "tutorials":
		return &d.Tutorials
	case "timeEntries":
		return &d.TimeEntries
	}
	return nil
}

// IsCollection reports whether name is one of the document's collections.
func IsCollection(name string) bool {
	for _, known := range CollectionNames {
		if known == name {
			return true
		}
	}
	return false
}

// Collection returns the named collection, or nil if the name is unknown.
func (d *Document) Collection(name string) []Entity {
	ref := d.collectionRef(name)
	if ref == nil {
		return nil
	}
	return *ref
}

// SetCollection replaces the named collection. Unknown names are ignored
// and reported as false.
func (d *Document) SetCollection(name string, entities []Entity) bool {
	ref := d.collectionRef(name)
	if ref == nil {
		return false
	}
	if entities == nil {
		entities = []Entity{}
	}
	*ref = entities
	return true
}

// Normalize backfills every absent collection with an empty array.
// Consumers rely on collections always being present, never null; a
// server-side migration applies the same backfill to legacy documents.
func (d *Document) Normalize() {
	for _, name := range CollectionNames {
		ref := d.collectionRef(name)
		if *ref == nil {
			*ref = []Entity{}
		}
	}
}

// Clone returns a deep copy of the document, safe to hand to another
// goroutine while the original keeps mutating.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{ID: d.ID}
	if d.Settings != nil {
		out.Settings = append(json.RawMessage(nil), d.Settings...)
	}
	for _, name := range CollectionNames {
		src := *d.collectionRef(name)
		if src == nil {
			continue
		}
		dst := make([]Entity, len(src))
		for i, e := range src {
			dst[i] = append(Entity(nil), e...)
		}
		*out.collectionRef(name) = dst
	}
	return out
}

// EntityID extracts the stable identifier from an opaque entity.
// Entities without a string "id" field yield "".
func EntityID(e Entity) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(e, &probe); err != nil {
		return ""
	}
	return probe.ID
}
