// Package view owns the per-session view state: the live record set, the
// category registry, the grouping mode and category filter, and the derived
// grouped view with its totals.
package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/identity"
	"tally/internal/log"
	"tally/internal/records"
)

// ErrSignedOut is returned by commands issued while no identity is active.
var ErrSignedOut = errors.New("no signed-in user")

// Options tune a Coordinator. Zero values pick time.Now, time.Local, day
// mode and the default logger.
type Options struct {
	Clock     func() time.Time
	Location  *time.Location
	Mode      core.GroupingMode
	Logger    *log.Logger
	// RevokeFor is how long a signed-out session id stays unusable. Sessions
	// uses it; zero means 24h.
	RevokeFor time.Duration
}

// Snapshot is an immutable, consistent picture of the view state. Callers
// must not modify its slices.
type Snapshot struct {
	Version         uint64
	UserID          string
	SignedIn        bool
	Mode            core.GroupingMode
	Filter          core.CategoryFilter
	ReferenceNow    time.Time
	HeaderTotal     decimal.Decimal
	HeaderCaption   string
	Buckets         []core.BucketSummary
	Categories      []string
	Draft           core.RecordDraft
	ShowSuggestions bool
	Suggestions     []string
	DidYouMean      string
	StreamError     string
}

// Coordinator recomputes derived view state whenever records, the grouping
// mode or the category filter change. Record changes arrive only through
// the store subscription; commands never touch the local record set.
type Coordinator struct {
	store    records.Store
	identity identity.Provider
	clock    func() time.Time
	loc      *time.Location
	logger   *log.Logger

	mu          sync.RWMutex
	ctx         context.Context
	stopIdent   func()
	userID      string
	sub         records.Subscription
	gen         uint64
	streamErr   error
	records     []core.ExpenseRecord
	registry    *core.Registry
	mode        core.GroupingMode
	filter      core.CategoryFilter
	draft       core.RecordDraft
	suggestions bool
	refNow      time.Time
	grouped     core.GroupedView
	buckets     []core.BucketSummary
	header      decimal.Decimal
	version     uint64
	snapshot    Snapshot
	changed     chan struct{}
}

func New(store records.Store, provider identity.Provider, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if !opts.Mode.IsValid() {
		opts.Mode = core.Day
	}
	if opts.Logger == nil {
		opts.Logger = log.FromContext(context.Background())
	}
	c := &Coordinator{
		store:    store,
		identity: provider,
		clock:    opts.Clock,
		loc:      opts.Location,
		logger:   opts.Logger.WithComponent(log.ComponentView),
		registry: core.NewRegistry(),
		mode:     opts.Mode,
		filter:   core.AllCategories,
		draft:    emptyDraft(),
		changed:  make(chan struct{}),
	}
	c.mu.Lock()
	c.regroupLocked()
	c.publishLocked()
	c.mu.Unlock()
	return c
}

// Start follows the identity provider until Stop. ctx scopes the store
// subscriptions and must outlive single requests.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopIdent != nil {
		c.mu.Unlock()
		return errors.New("coordinator already started")
	}
	c.ctx = ctx
	c.stopIdent = c.identity.OnChange(func(userID string, ok bool) {
		c.bind(userID, ok)
	})
	c.mu.Unlock()

	userID, ok := c.identity.Current()
	return c.bind(userID, ok)
}

// Stop cancels the record subscription and detaches from the provider.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopIdent != nil {
		c.stopIdent()
		c.stopIdent = nil
	}
	c.teardownLocked()
	c.publishLocked()
}

// bind moves the coordinator to a new identity. The old subscription is
// always cancelled before a new one is opened.
func (c *Coordinator) bind(userID string, ok bool) error {
	c.mu.Lock()
	if ok && userID == c.userID && c.sub != nil {
		c.mu.Unlock()
		return nil
	}
	prev := c.userID
	c.teardownLocked()
	if !ok {
		if prev != "" {
			c.logger.InfoContext(c.ctx, "Identity lost, view cleared", log.FieldUserID, prev)
		}
		c.publishLocked()
		c.mu.Unlock()
		return nil
	}
	c.userID = userID
	gen := c.gen
	ctx := c.ctx
	c.publishLocked()
	c.mu.Unlock()

	sub, err := c.store.Subscribe(ctx, userID, func(recs []core.ExpenseRecord) {
		c.applySnapshot(gen, recs)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		// Identity moved on while subscribing.
		if sub != nil {
			sub.Cancel()
		}
		return nil
	}
	if err != nil {
		c.streamErr = records.WrapStoreError("subscribe", err)
		c.logger.ErrorContext(ctx, "Record subscription failed",
			log.FieldUserID, userID,
			log.FieldError, err)
		c.publishLocked()
		return c.streamErr
	}
	c.sub = sub
	c.logger.InfoContext(ctx, "Record subscription opened", log.FieldUserID, userID)
	return nil
}

func (c *Coordinator) teardownLocked() {
	if c.sub != nil {
		c.sub.Cancel()
		c.sub = nil
	}
	c.gen++
	c.userID = ""
	c.streamErr = nil
	c.records = nil
	c.registry = core.NewRegistry()
	c.filter = core.AllCategories
	c.draft = emptyDraft()
	c.suggestions = false
	c.regroupLocked()
}

// applySnapshot replaces the record set. Snapshots of a cancelled
// subscription are dropped.
func (c *Coordinator) applySnapshot(gen uint64, recs []core.ExpenseRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.records = recs
	c.streamErr = nil
	c.registry.ReconcileFromRecords(recs)
	c.regroupLocked()
	c.publishLocked()
	c.logger.DebugContext(c.ctx, "Snapshot applied",
		log.FieldUserID, c.userID,
		log.FieldRecordCount, len(recs))
}

// SetMode switches the grouping mode and regroups the held records.
func (c *Coordinator) SetMode(mode core.GroupingMode) error {
	if !mode.IsValid() {
		return core.ErrInvalidMode
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if mode == c.mode {
		return nil
	}
	c.mode = mode
	c.regroupLocked()
	c.publishLocked()
	return nil
}

// SetFilter changes the category filter. Only bucket visibility and totals
// are recomputed; bucket membership stays as is.
func (c *Coordinator) SetFilter(f core.CategoryFilter) {
	if f == "" {
		f = core.AllCategories
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if f == c.filter {
		return
	}
	c.filter = f
	c.buckets = core.Summarize(c.grouped, c.filter)
	c.publishLocked()
}

// UpdateDraft stores the in-progress form input.
func (c *Coordinator) UpdateDraft(d core.RecordDraft) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = d
	c.publishLocked()
}

// ShowSuggestions sets the visibility of the category suggestion list.
func (c *Coordinator) ShowSuggestions(show bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.suggestions == show {
		return
	}
	c.suggestions = show
	c.publishLocked()
}

// ToggleSuggestions flips the suggestion list visibility.
func (c *Coordinator) ToggleSuggestions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suggestions = !c.suggestions
	c.publishLocked()
}

// RegisterCategory adds a pending category to the suggestions. A label whose
// URL key belongs to another category is rejected.
func (c *Coordinator) RegisterCategory(label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID == "" {
		return ErrSignedOut
	}
	if other, ok := c.registry.SlugConflict(label); ok {
		return &core.ValidationError{Field: "label", Err: fmt.Errorf("%w: %s", core.ErrCategoryTaken, other)}
	}
	c.registry.Register(label)
	c.publishLocked()
	return nil
}

// RemoveCategory drops a label from the suggestions. Records keep it.
func (c *Coordinator) RemoveCategory(label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID == "" {
		return ErrSignedOut
	}
	c.registry.Remove(label)
	c.publishLocked()
	return nil
}

// CategoryBySlug resolves a URL key to a registered label.
func (c *Coordinator) CategoryBySlug(s string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry.BySlug(s)
}

// CategoryKeys lists registered categories starting with prefix, with their
// URL keys.
func (c *Coordinator) CategoryKeys(prefix string) []core.CategoryKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry.Keys(prefix)
}

// CategorySlug returns the URL key of a registered label.
func (c *Coordinator) CategorySlug(label string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry.SlugOf(label)
}

// Suggest lists registered categories starting with prefix.
func (c *Coordinator) Suggest(prefix string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry.Suggest(prefix)
}

// SubmitNewRecord validates the draft and hands it to the store. The record
// shows up with the next snapshot; on success the draft is cleared.
func (c *Coordinator) SubmitNewRecord(ctx context.Context, d core.RecordDraft) (string, error) {
	rec, err := d.Validate()
	if err != nil {
		return "", err
	}
	c.mu.RLock()
	userID := c.userID
	c.mu.RUnlock()
	if userID == "" {
		return "", ErrSignedOut
	}

	id, err := c.store.Add(ctx, userID, rec)
	if err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			return "", err
		}
		c.logger.ErrorContext(ctx, "Add record failed",
			log.FieldUserID, userID,
			log.FieldCategory, rec.Category,
			log.FieldError, err)
		return "", records.WrapStoreError("add", err)
	}

	c.mu.Lock()
	if c.userID == userID {
		c.draft = emptyDraft()
		c.suggestions = false
		c.publishLocked()
	}
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Record submitted",
		log.FieldUserID, userID,
		log.FieldRecordID, id,
		log.FieldCategory, rec.Category)
	return id, nil
}

// RequestDelete asks the store to delete recordID. Unknown ids are left to
// the store, which treats them as a no-op.
func (c *Coordinator) RequestDelete(ctx context.Context, recordID string) error {
	c.mu.RLock()
	userID := c.userID
	c.mu.RUnlock()
	if userID == "" {
		return ErrSignedOut
	}
	if err := c.store.Remove(ctx, userID, recordID); err != nil {
		c.logger.ErrorContext(ctx, "Delete record failed",
			log.FieldUserID, userID,
			log.FieldRecordID, recordID,
			log.FieldError, err)
		return records.WrapStoreError("remove", err)
	}
	return nil
}

// Snapshot returns the current view. If the calendar day rolled over since
// the last recompute, the view is regrouped against the new day first.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	snap, ref := c.snapshot, c.refNow
	c.mu.RUnlock()

	if sameDay(ref, c.clock(), c.loc) {
		return snap
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !sameDay(c.refNow, c.clock(), c.loc) {
		c.regroupLocked()
		c.publishLocked()
	}
	return c.snapshot
}

// Wait blocks until the view version exceeds after or ctx ends.
func (c *Coordinator) Wait(ctx context.Context, after uint64) (Snapshot, error) {
	for {
		c.mu.RLock()
		snap, ch := c.snapshot, c.changed
		c.mu.RUnlock()
		if snap.Version > after {
			return snap, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

func (c *Coordinator) regroupLocked() {
	c.refNow = c.clock()
	c.grouped = core.Partition(c.records, c.mode, c.refNow, c.loc)
	c.header = core.HeaderTotal(c.records, c.mode, c.refNow, c.loc)
	c.buckets = core.Summarize(c.grouped, c.filter)
}

func (c *Coordinator) publishLocked() {
	c.version++
	snap := Snapshot{
		Version:         c.version,
		UserID:          c.userID,
		SignedIn:        c.userID != "",
		Mode:            c.mode,
		Filter:          c.filter,
		ReferenceNow:    c.refNow,
		HeaderTotal:     c.header,
		HeaderCaption:   core.HeaderCaption(c.mode, c.refNow, c.loc),
		Buckets:         c.buckets,
		Categories:      c.registry.Labels(),
		Draft:           c.draft,
		ShowSuggestions: c.suggestions,
		Suggestions:     c.registry.Suggest(c.draft.Category),
	}
	if hint, ok := c.registry.Closest(c.draft.Category); ok {
		snap.DidYouMean = hint
	}
	if c.streamErr != nil {
		snap.StreamError = c.streamErr.Error()
	}
	c.snapshot = snap
	close(c.changed)
	c.changed = make(chan struct{})
}

func emptyDraft() core.RecordDraft {
	return core.RecordDraft{Quantity: "1"}
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
