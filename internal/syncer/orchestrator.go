// Package syncer owns the lifecycle of one authenticated session against
// one organization: hydration from the local snapshot, the background
// fetch-and-merge against the Organization Store, debounced full-document
// pushes, and the advisory unload guard while a push is in flight.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"turnhub/api/internal/merge"
	"turnhub/api/internal/orgdoc"
	"turnhub/api/internal/snapshot"
)

// State is the orchestrator lifecycle state. PendingPush is not a state
// of its own: it is observable through PendingPush() while Ready.
type State string

const (
	StateLoggedOut State = "logged_out"
	StateHydrating State = "hydrating"
	StateReady     State = "ready"
)

// DefaultDebounce is the quiet period after the last mutation before a
// full-document push is sent.
const DefaultDebounce = 1500 * time.Millisecond

// ErrNoSession is returned for mutations attempted outside a session.
var ErrNoSession = errors.New("syncer: no active session")

// ErrUnknownCollection is returned when a mutation names a collection
// the Organization Document does not carry.
var ErrUnknownCollection = errors.New("syncer: unknown collection")

// Cache is the Local Snapshot Cache the orchestrator persists through.
// *snapshot.Cache satisfies it.
type Cache interface {
	LoadUser() (json.RawMessage, error)
	SaveUser(user json.RawMessage) error
	LoadDocument() (*orgdoc.Document, error)
	SaveDocument(doc *orgdoc.Document) error
	Clear() error
}

// Remote is the Organization Store. *orgclient.Client satisfies it.
type Remote interface {
	FetchOrganization(ctx context.Context, id string) (*orgdoc.Document, error)
	PushSync(ctx context.Context, orgID string, doc *orgdoc.Document) error
}

// UnloadGuard is told when a push starts and finishes so the hosting
// application can ask the user not to leave. Advisory only.
type UnloadGuard interface {
	SetPendingPush(pending bool)
}

// Options tunes an Orchestrator. Zero values get defaults.
type Options struct {
	Debounce    time.Duration // quiet period before a push; DefaultDebounce if zero
	PushTimeout time.Duration // per-push request bound; 30s if zero
	Guard       UnloadGuard   // optional
}

// Orchestrator reconciles in-memory state, the Local Snapshot Cache and
// the Organization Store for a single session. All entry points are safe
// for concurrent use; in-memory state is only ever mutated through them.
type Orchestrator struct {
	cache       Cache
	remote      Remote
	guard       UnloadGuard
	debounce    time.Duration
	pushTimeout time.Duration

	mu           sync.Mutex
	state        State
	user         json.RawMessage
	doc          *orgdoc.Document
	timer        *time.Timer
	pushInFlight bool
	pushQueued   bool
}

// New creates an orchestrator in the LoggedOut state.
func New(cache Cache, remote Remote, opts Options) *Orchestrator {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = 30 * time.Second
	}
	return &Orchestrator{
		cache:       cache,
		remote:      remote,
		guard:       opts.Guard,
		debounce:    opts.Debounce,
		pushTimeout: opts.PushTimeout,
		state:       StateLoggedOut,
	}
}

// Hydrate restores a session from the Local Snapshot Cache. With no
// snapshot present (or a corrupt one) it lands in LoggedOut. With a
// snapshot it populates in-memory state immediately — the caller is
// interactive without waiting on the network — and kicks the one
// background FetchAndMerge of the session.
func (o *Orchestrator) Hydrate(ctx context.Context) State {
	o.mu.Lock()
	o.state = StateHydrating

	doc, err := o.cache.LoadDocument()
	if err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			// Corrupt snapshot: fall back to logged-out rather than
			// crash, and clear the rows so the next login starts clean.
			log.Printf("syncer: discarding unreadable snapshot: %v", err)
			if clearErr := o.cache.Clear(); clearErr != nil {
				log.Printf("syncer: clear snapshot: %v", clearErr)
			}
		}
		o.state = StateLoggedOut
		o.mu.Unlock()
		return StateLoggedOut
	}

	user, err := o.cache.LoadUser()
	if err != nil && !errors.Is(err, snapshot.ErrNotFound) {
		log.Printf("syncer: load cached user: %v", err)
	}

	o.doc = doc
	o.user = user
	o.state = StateReady
	o.mu.Unlock()

	go o.FetchAndMerge(ctx)
	return StateReady
}

// FetchAndMerge fetches the server's copy of the document once and folds
// it into in-memory state, collection by collection, local copy winning
// on any id conflict. Settings are not merged: the fetched settings
// overwrite local ones when present. Network or server errors are
// logged and ignored — local state is already usable.
func (o *Orchestrator) FetchAndMerge(ctx context.Context) {
	o.mu.Lock()
	if o.state != StateReady || o.doc == nil {
		o.mu.Unlock()
		return
	}
	orgID := o.doc.ID
	o.mu.Unlock()

	fetched, err := o.remote.FetchOrganization(ctx, orgID)
	if err != nil {
		log.Printf("syncer: background fetch skipped: %v", err)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	// A logout may have raced the fetch; its result is then irrelevant.
	if o.state != StateReady || o.doc == nil || o.doc.ID != orgID {
		return
	}

	for _, name := range orgdoc.CollectionNames {
		o.doc.SetCollection(name, merge.Reconcile(o.doc.Collection(name), fetched.Collection(name)))
	}
	if fetched.Settings != nil {
		o.doc.Settings = fetched.Settings
	}

	// Persist the merged result so a reload recovers it without
	// another network round trip.
	if err := o.cache.SaveDocument(o.doc); err != nil {
		log.Printf("syncer: persist merged snapshot: %v", err)
	}
}

// Login starts a fresh session from a server-provided user and document.
// No merge happens: local state is empty by definition at login.
func (o *Orchestrator) Login(user json.RawMessage, doc *orgdoc.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("syncer: login requires an organization document with an id")
	}
	doc = doc.Clone()
	doc.Normalize()

	o.mu.Lock()
	defer o.mu.Unlock()

	// Persist before activating: a login the snapshot never saw must not
	// leave a half-initialized session in memory.
	if err := o.cache.SaveUser(user); err != nil {
		return fmt.Errorf("persist user: %w", err)
	}
	if err := o.cache.SaveDocument(doc); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}

	o.user = user
	o.doc = doc
	o.state = StateReady
	return nil
}

// OnMutate replaces one in-memory collection, synchronously persists the
// entire document to the Local Snapshot Cache, and (re)arms the shared
// debounce timer. Rapid mutations coalesce into one push carrying the
// state after the last of them.
func (o *Orchestrator) OnMutate(collection string, entities []orgdoc.Entity) error {
	if !orgdoc.IsCollection(collection) {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateReady || o.doc == nil {
		return ErrNoSession
	}

	o.doc.SetCollection(collection, entities)
	return o.persistAndScheduleLocked()
}

// UpdateSettings replaces the organization settings through the same
// persist-and-debounce path as a collection mutation.
func (o *Orchestrator) UpdateSettings(settings json.RawMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateReady || o.doc == nil {
		return ErrNoSession
	}

	o.doc.Settings = settings
	return o.persistAndScheduleLocked()
}

func (o *Orchestrator) persistAndScheduleLocked() error {
	// The full document image is written on every mutation so the
	// snapshot is always a consistent whole, never a partial update.
	if err := o.cache.SaveDocument(o.doc); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}

	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(o.debounce, o.push)
	return nil
}

// push sends the current full document. Pushes are serialized: a push
// requested while one is in flight runs once, after the first completes,
// with whatever state is current by then.
func (o *Orchestrator) push() {
	o.mu.Lock()
	if o.state != StateReady || o.doc == nil {
		o.mu.Unlock()
		return
	}
	if o.pushInFlight {
		o.pushQueued = true
		o.mu.Unlock()
		return
	}
	o.pushInFlight = true
	doc := o.doc.Clone()
	o.mu.Unlock()

	if o.guard != nil {
		o.guard.SetPendingPush(true)
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.pushTimeout)
	err := o.remote.PushSync(ctx, doc.ID, doc)
	cancel()
	if err != nil {
		// No retry is scheduled: the next mutation's debounce timer
		// re-attempts with the latest state.
		log.Printf("syncer: push failed, server stale until next push: %v", err)
	}

	if o.guard != nil {
		o.guard.SetPendingPush(false)
	}

	o.mu.Lock()
	o.pushInFlight = false
	queued := o.pushQueued
	o.pushQueued = false
	o.mu.Unlock()

	if queued {
		go o.push()
	}
}

// Flush cancels any armed debounce timer and, if one was armed, pushes
// synchronously. Used at shutdown so a quiet-period edit is not lost.
func (o *Orchestrator) Flush() {
	o.mu.Lock()
	armed := o.timer != nil && o.timer.Stop()
	o.timer = nil
	o.mu.Unlock()

	if armed {
		o.push()
	}
}

// Logout clears in-memory state and deletes the snapshot. Unconditional:
// an in-flight push is neither awaited nor cancelled.
func (o *Orchestrator) Logout() {
	o.mu.Lock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.state = StateLoggedOut
	o.user = nil
	o.doc = nil
	o.pushQueued = false
	o.mu.Unlock()

	if err := o.cache.Clear(); err != nil {
		log.Printf("syncer: clear snapshot at logout: %v", err)
	}
}

// State returns the lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// PendingPush reports whether a push is currently in flight — the
// "syncing…" half of the ambient status indicator.
func (o *Orchestrator) PendingPush() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pushInFlight
}

// User returns the session user object, or nil when logged out.
func (o *Orchestrator) User() json.RawMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.user == nil {
		return nil
	}
	return append(json.RawMessage(nil), o.user...)
}

// OrgID returns the organization id of the current session, or "".
func (o *Orchestrator) OrgID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.doc == nil {
		return ""
	}
	return o.doc.ID
}

// Document returns a deep copy of the in-memory document, or nil when
// logged out. The copy is safe to serialize outside the lock.
func (o *Orchestrator) Document() *orgdoc.Document {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.doc.Clone()
}

// Collection returns a copy of one in-memory collection.
func (o *Orchestrator) Collection(name string) ([]orgdoc.Entity, error) {
	if !orgdoc.IsCollection(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateReady || o.doc == nil {
		return nil, ErrNoSession
	}
	src := o.doc.Collection(name)
	out := make([]orgdoc.Entity, len(src))
	copy(out, src)
	return out, nil
}
