package merge

import (
	"reflect"
	"testing"

	"turnhub/api/internal/orgdoc"
)

func entities(raw ...string) []orgdoc.Entity {
	out := make([]orgdoc.Entity, len(raw))
	for i, r := range raw {
		out[i] = orgdoc.Entity(r)
	}
	return out
}

func ids(list []orgdoc.Entity) []string {
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = orgdoc.EntityID(e)
	}
	return out
}

func TestReconcileEmptySides(t *testing.T) {
	some := entities(`{"id":"a"}`, `{"id":"b"}`)

	cases := []struct {
		name   string
		local  []orgdoc.Entity
		server []orgdoc.Entity
		want   []orgdoc.Entity
	}{
		{name: "empty local", local: nil, server: some, want: some},
		{name: "empty server", local: some, server: nil, want: some},
		{name: "both empty", local: []orgdoc.Entity{}, server: []orgdoc.Entity{}, want: []orgdoc.Entity{}},
		{name: "server reset does not purge local", local: some, server: []orgdoc.Entity{}, want: some},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Reconcile(tc.local, tc.server)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Reconcile = %v, want %v", ids(got), ids(tc.want))
			}
		})
	}
}

func TestReconcileLocalCopyWins(t *testing.T) {
	local := entities(`{"id":"s1","status":"done"}`)
	server := entities(`{"id":"s1","status":"pending"}`, `{"id":"s2","status":"pending"}`)

	got := Reconcile(local, server)

	if len(got) != 2 {
		t.Fatalf("merged %d entities, want 2", len(got))
	}
	if string(got[0]) != `{"id":"s1","status":"done"}` {
		t.Errorf("s1 = %s, want the local copy", got[0])
	}
	if string(got[1]) != `{"id":"s2","status":"pending"}` {
		t.Errorf("s2 = %s, want the server copy appended", got[1])
	}
}

func TestReconcileAppendsServerOnlyInServerOrder(t *testing.T) {
	local := entities(`{"id":"b"}`, `{"id":"a"}`)
	server := entities(`{"id":"z"}`, `{"id":"a"}`, `{"id":"x"}`, `{"id":"y"}`)

	got := Reconcile(local, server)

	want := []string{"b", "a", "z", "x", "y"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("merged order = %v, want %v", ids(got), want)
	}
}

func TestReconcileNeverDropsLocalEntities(t *testing.T) {
	local := entities(`{"id":"a"}`, `{"id":"b"}`, `{"id":"c"}`)
	servers := [][]orgdoc.Entity{
		nil,
		{},
		entities(`{"id":"a"}`),
		entities(`{"id":"d"}`, `{"id":"b"}`),
	}

	for _, server := range servers {
		got := Reconcile(local, server)
		for _, want := range []string{"a", "b", "c"} {
			found := false
			for _, e := range got {
				if orgdoc.EntityID(e) == want {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("entity %q dropped for server input %v", want, ids(server))
			}
		}
	}
}

func TestReconcileIdempotentWithSameServerSnapshot(t *testing.T) {
	local := entities(`{"id":"a","v":1}`, `{"id":"b","v":1}`)
	server := entities(`{"id":"b","v":2}`, `{"id":"c","v":2}`, `{"id":"d","v":2}`)

	once := Reconcile(local, server)
	twice := Reconcile(once, server)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("Reconcile not idempotent: first %v, second %v", ids(once), ids(twice))
	}
}

func TestReconcileDoesNotMutateInputs(t *testing.T) {
	local := entities(`{"id":"a"}`)
	server := entities(`{"id":"b"}`)
	_ = Reconcile(local, server)

	if len(local) != 1 || len(server) != 1 {
		t.Fatal("inputs were mutated")
	}

	got := Reconcile(local, server)
	got[0] = orgdoc.Entity(`{"id":"zzz"}`)
	if orgdoc.EntityID(local[0]) != "a" {
		t.Fatal("result aliases the local slice")
	}
}

func TestReconcileDeduplicatesServerIds(t *testing.T) {
	local := entities(`{"id":"a"}`)
	server := entities(`{"id":"b","v":1}`, `{"id":"b","v":2}`)

	got := Reconcile(local, server)
	want := []string{"a", "b"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("merged = %v, want %v", ids(got), want)
	}
}
