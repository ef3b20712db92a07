// Package merge reconciles a locally-held collection with the copy the
// server returned for the same entity type.
package merge

import "turnhub/api/internal/orgdoc"

// Reconcile produces the authoritative collection from a local and a
// server collection of the same entity type.
//
// The policy is deliberately local-first: the result is the local
// collection in its original order, followed by every server entity
// whose id the client has never seen, in server order. An entity
// present on both sides resolves to the local copy regardless of
// content — the client never loses a local edit, at the cost of never
// pulling a server-side change to an entity it already holds. An empty
// server collection never purges local data; only an explicit logout
// clears local state.
//
// Resolution is entity-granular and keyed only by id. Reconcile is
// pure: no side effects, deterministic, inputs are not mutated.
func Reconcile(local, server []orgdoc.Entity) []orgdoc.Entity {
	if len(server) == 0 {
		return local
	}
	if len(local) == 0 {
		return server
	}

	merged := make([]orgdoc.Entity, len(local), len(local)+len(server))
	copy(merged, local)

	seen := make(map[string]struct{}, len(local))
	for _, e := range local {
		seen[orgdoc.EntityID(e)] = struct{}{}
	}

	for _, e := range server {
		id := orgdoc.EntityID(e)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, e)
	}
	return merged
}
