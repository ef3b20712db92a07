package orgdoc

import (
	"encoding/json"
	"testing"
)

func TestNormalizeBackfillsMissingCollections(t *testing.T) {
	// A legacy document that predates several collections.
	raw := []byte(`{"id":"org_1","settings":{"name":"Shine Co"},"users":[{"id":"u1"}]}`)

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	doc.Normalize()

	for _, name := range CollectionNames {
		if doc.Collection(name) == nil {
			t.Errorf("collection %q is nil after Normalize", name)
		}
	}
	if len(doc.Users) != 1 {
		t.Fatalf("users = %d entities, want 1", len(doc.Users))
	}

	encoded, err := json.Marshal(&doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("re-unmarshal: %v", err)
	}
	for _, name := range CollectionNames {
		field, ok := decoded[name]
		if !ok {
			t.Errorf("collection %q absent from serialized document", name)
			continue
		}
		if string(field) == "null" {
			t.Errorf("collection %q serialized as null", name)
		}
	}
}

func TestCollectionAccessors(t *testing.T) {
	doc := New("org_1")

	shifts := []Entity{Entity(`{"id":"s1"}`), Entity(`{"id":"s2"}`)}
	if !doc.SetCollection("shifts", shifts) {
		t.Fatal("SetCollection(shifts) rejected a known collection")
	}
	if got := doc.Collection("shifts"); len(got) != 2 {
		t.Fatalf("Collection(shifts) = %d entities, want 2", len(got))
	}

	if doc.SetCollection("widgets", shifts) {
		t.Error("SetCollection accepted an unknown collection")
	}
	if doc.Collection("widgets") != nil {
		t.Error("Collection returned data for an unknown collection")
	}
	if IsCollection("widgets") {
		t.Error("IsCollection(widgets) = true")
	}
	if !IsCollection("timeEntries") {
		t.Error("IsCollection(timeEntries) = false")
	}

	// Setting nil stores an empty array, not null.
	doc.SetCollection("shifts", nil)
	if doc.Shifts == nil || len(doc.Shifts) != 0 {
		t.Fatalf("SetCollection(nil) stored %v, want empty array", doc.Shifts)
	}
}

func TestCloneIsDeep(t *testing.T) {
	doc := New("org_1")
	doc.Settings = json.RawMessage(`{"name":"before"}`)
	doc.SetCollection("properties", []Entity{Entity(`{"id":"p1","name":"Villa"}`)})

	clone := doc.Clone()
	doc.Settings = json.RawMessage(`{"name":"after"}`)
	doc.SetCollection("properties", []Entity{})

	if string(clone.Settings) != `{"name":"before"}` {
		t.Errorf("clone settings changed: %s", clone.Settings)
	}
	if len(clone.Properties) != 1 {
		t.Errorf("clone properties = %d entities, want 1", len(clone.Properties))
	}
	if clone.ID != "org_1" {
		t.Errorf("clone id = %q", clone.ID)
	}
}

func TestEntityID(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain id", raw: `{"id":"s1","status":"done"}`, want: "s1"},
		{name: "missing id", raw: `{"status":"done"}`, want: ""},
		{name: "malformed", raw: `{`, want: ""},
		{name: "non-string id", raw: `{"id":42}`, want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EntityID(Entity(tc.raw)); got != tc.want {
				t.Fatalf("EntityID(%s) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}
