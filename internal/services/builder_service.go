package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/soaringjerry/Pollen/internal/docstore"
	"github.com/soaringjerry/Pollen/internal/identity"
	"github.com/soaringjerry/Pollen/internal/models"
)

// SnapshotPolicy decides what a builder does with a remote snapshot that
// arrives while local edits have not been written yet.
type SnapshotPolicy string

const (
	// SnapshotOverwrite always replaces local state with the remote snapshot.
	SnapshotOverwrite SnapshotPolicy = "overwrite"
	// SnapshotPendingWins ignores remote snapshots while a local write is
	// pending or in flight; the pending write then publishes local state.
	SnapshotPendingWins SnapshotPolicy = "pending-wins"
)

func (p SnapshotPolicy) Valid() bool {
	return p == SnapshotOverwrite || p == SnapshotPendingWins
}

type BuilderConfig struct {
	AppID          string
	ShareBaseURL   string
	DebounceWindow time.Duration
	SnapshotPolicy SnapshotPolicy
	WriteTimeout   time.Duration
}

type BuilderService struct {
	store        DocumentStore
	cfg          BuilderConfig
	now          func() time.Time
	newDebouncer func() *Debouncer
}

func NewBuilderService(store DocumentStore, cfg BuilderConfig) *BuilderService {
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	if !cfg.SnapshotPolicy.Valid() {
		cfg.SnapshotPolicy = SnapshotPendingWins
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	s := &BuilderService{
		store: store,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
	s.newDebouncer = func() *Debouncer { return NewDebouncer(s.cfg.DebounceWindow) }
	return s
}

// CreateForm stores a new draft form owned by the caller.
func (s *BuilderService) CreateForm(ctx context.Context, owner identity.Identity) (models.Form, error) {
	if !ValidDocID(owner.UserID) {
		return models.Form{}, NewUnauthorizedError("unauthorized")
	}
	form := NewForm(owner.UserID, s.now())
	doc, err := encodeForm(form)
	if err != nil {
		return models.Form{}, err
	}
	id, err := s.store.Append(ctx, FormsCollection(s.cfg.AppID, owner.UserID), doc)
	if err != nil {
		return models.Form{}, NewPersistenceError("create form", err)
	}
	form.ID = id
	slog.Info("form created", slog.String("form_id", id), slog.String("owner", owner.UserID))
	return form, nil
}

// ListForms returns the owner's forms, newest first.
func (s *BuilderService) ListForms(ctx context.Context, ownerID string) ([]models.Form, error) {
	if !ValidDocID(ownerID) {
		return nil, NewUnauthorizedError("unauthorized")
	}
	snaps, err := s.store.List(ctx, FormsCollection(s.cfg.AppID, ownerID), docstore.Query{OrderBy: "createdAt", Desc: true})
	if err != nil {
		return nil, NewPersistenceError("list forms", err)
	}
	out := make([]models.Form, 0, len(snaps))
	for _, snap := range snaps {
		f, err := decodeForm(snap)
		if err != nil {
			slog.Warn("skipping undecodable form", slog.String("path", snap.Path), slog.String("error", err.Error()))
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *BuilderService) Load(ctx context.Context, ownerID, formID string) (models.Form, error) {
	if ownerID == "" {
		return models.Form{}, NewUnauthorizedError("unauthorized")
	}
	if formID == "" {
		return models.Form{}, NewInvalidError("form id required")
	}
	p, err := ownedFormPath(s.cfg.AppID, ownerID, formID)
	if err != nil {
		return models.Form{}, err
	}
	return readForm(ctx, s.store, p)
}

func (s *BuilderService) ShareLink(ownerID, formID string) string {
	return BuildShareLink(s.cfg.ShareBaseURL, formID, ownerID)
}

// Open starts an editing session on one of the owner's forms. The session
// follows remote changes until Close.
func (s *BuilderService) Open(ctx context.Context, owner identity.Identity, formID string) (*BuilderSession, error) {
	form, err := s.Load(ctx, owner.UserID, formID)
	if err != nil {
		return nil, err
	}
	p := FormPath(s.cfg.AppID, owner.UserID, formID)
	base := context.WithoutCancel(ctx)
	subCtx, cancel := context.WithCancel(base)
	ch, unsubscribe, err := s.store.Subscribe(subCtx, p)
	if err != nil {
		cancel()
		return nil, NewPersistenceError("subscribe form", err)
	}
	// The first snapshot is the current state; take it before following changes.
	select {
	case snap, ok := <-ch:
		if ok && snap.Exists {
			if f, err := decodeForm(snap); err == nil {
				form = f
			}
		}
	case <-ctx.Done():
		unsubscribe()
		cancel()
		return nil, ctx.Err()
	}
	b := &BuilderSession{
		svc:      s,
		owner:    owner,
		formID:   formID,
		path:     p,
		form:     form,
		debounce: s.newDebouncer(),
		baseCtx:  base,
		stopSub: func() {
			unsubscribe()
			cancel()
		},
		done: make(chan struct{}),
	}
	go b.follow(ch)
	return b, nil
}

// BuilderSession is one author's live editing view of a form. Edits update
// local state immediately and are persisted after the debounce window.
type BuilderSession struct {
	svc      *BuilderService
	owner    identity.Identity
	formID   string
	path     string
	debounce *Debouncer
	baseCtx  context.Context
	stopSub  func()
	done     chan struct{}

	mu       sync.Mutex
	form     models.Form
	dirty    bool
	inflight bool
	removed  bool
	closed   bool
	lastErr  error

	writeMu sync.Mutex
}

func (b *BuilderSession) follow(ch <-chan docstore.Snapshot) {
	defer close(b.done)
	for snap := range ch {
		b.applySnapshot(snap)
	}
}

func (b *BuilderSession) applySnapshot(snap docstore.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !snap.Exists {
		b.removed = true
		slog.Warn("form removed while editing", slog.String("form_id", b.formID))
		return
	}
	if b.svc.cfg.SnapshotPolicy == SnapshotPendingWins && (b.dirty || b.inflight) {
		slog.Debug("remote snapshot dropped, local edits pending", slog.String("form_id", b.formID))
		return
	}
	f, err := decodeForm(snap)
	if err != nil {
		slog.Error("decode form snapshot", slog.String("form_id", b.formID), slog.String("error", err.Error()))
		return
	}
	b.form = f
	b.removed = false
}

// Form returns a copy of the current local state.
func (b *BuilderSession) Form() models.Form {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.form.Clone()
}

func (b *BuilderSession) FormID() string { return b.formID }

func (b *BuilderSession) ShareLink() string { return b.svc.ShareLink(b.owner.UserID, b.formID) }

// Removed reports whether the form document disappeared from the store.
func (b *BuilderSession) Removed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removed
}

// Pending reports whether local edits are waiting to be written.
func (b *BuilderSession) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirty || b.inflight
}

// Err returns the error from the most recent write, if it failed.
func (b *BuilderSession) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

func (b *BuilderSession) SetField(field string, value any) (models.Form, error) {
	return b.edit(func(f models.Form) (models.Form, error) { return SetField(f, field, value) })
}

func (b *BuilderSession) AddQuestion(qt models.QuestionType) (models.Form, error) {
	return b.edit(func(f models.Form) (models.Form, error) { return AddQuestion(f, qt) })
}

func (b *BuilderSession) UpdateQuestion(index int, field string, value any) (models.Form, error) {
	return b.edit(func(f models.Form) (models.Form, error) { return UpdateQuestion(f, index, field, value) })
}

func (b *BuilderSession) DeleteQuestion(index int) (models.Form, error) {
	return b.edit(func(f models.Form) (models.Form, error) { return DeleteQuestion(f, index) })
}

func (b *BuilderSession) AddOption(qIndex int) (models.Form, error) {
	return b.edit(func(f models.Form) (models.Form, error) { return AddOption(f, qIndex, b.owner.UserID) })
}

func (b *BuilderSession) UpdateOption(qIndex, oIndex int, field string, value any) (models.Form, error) {
	return b.edit(func(f models.Form) (models.Form, error) { return UpdateOption(f, qIndex, oIndex, field, value) })
}

func (b *BuilderSession) DeleteOption(qIndex, oIndex int) (models.Form, error) {
	return b.edit(func(f models.Form) (models.Form, error) { return DeleteOption(f, qIndex, oIndex) })
}

func (b *BuilderSession) ReorderOption(qIndex, oIndex, direction int) (models.Form, error) {
	return b.edit(func(f models.Form) (models.Form, error) { return ReorderOption(f, qIndex, oIndex, direction) })
}

func (b *BuilderSession) edit(fn func(models.Form) (models.Form, error)) (models.Form, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return b.form.Clone(), NewConflictError("editing session closed")
	}
	next, err := fn(b.form)
	if err != nil {
		return b.form.Clone(), err
	}
	b.form = next
	b.dirty = true
	b.debounce.Schedule(b.persist)
	return next.Clone(), nil
}

// persist writes the current local form. Writes for a session never overlap.
func (b *BuilderSession) persist() {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.mu.Lock()
	form := b.form.Clone()
	b.dirty = false
	b.inflight = true
	b.mu.Unlock()

	err := b.write(form)

	b.mu.Lock()
	b.inflight = false
	b.lastErr = err
	b.mu.Unlock()
}

func (b *BuilderSession) write(form models.Form) error {
	doc, err := encodeForm(form)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(b.baseCtx, b.svc.cfg.WriteTimeout)
	defer cancel()
	if err := b.svc.store.Write(ctx, b.path, doc, docstore.WriteOptions{Merge: true}); err != nil {
		slog.Error("Error updating form", slog.String("form_id", b.formID), slog.String("error", err.Error()))
		return NewPersistenceError("update form", err)
	}
	slog.Debug("form saved", slog.String("form_id", b.formID), slog.Int("questions", len(form.Questions)))
	return nil
}

// Flush writes pending edits now instead of waiting for the window.
func (b *BuilderSession) Flush() error {
	if b.debounce.Flush() {
		return b.Err()
	}
	// wait out a write already in flight
	b.writeMu.Lock()
	err := b.Err()
	b.writeMu.Unlock()
	return err
}

// Close flushes pending edits and stops following remote changes.
func (b *BuilderSession) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := b.Flush()
	b.stopSub()
	<-b.done
	if err != nil {
		return fmt.Errorf("close builder %s: %w", b.formID, err)
	}
	return nil
}
