// Package workflow implements the document signing engine: the field store,
// the signing state machine, the audit ledger and the coordinator façade
// that applies commands atomically per document.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/signdesk/internal/capture"
	"github.com/and161185/signdesk/internal/errs"
	"github.com/and161185/signdesk/internal/geometry"
	"github.com/and161185/signdesk/internal/model"
)

// Persister is the write-behind persistence collaborator. Every method is
// called after an in-memory transition already succeeded; failures surface
// as *PersistError but never roll the transition back.
type Persister interface {
	InsertDocument(ctx context.Context, d *model.Document) error
	SaveFields(ctx context.Context, documentID uuid.UUID, fields []model.SignatureField) error
	SaveSigners(ctx context.Context, documentID uuid.UUID, signers []model.Signer) error
	SaveStatus(ctx context.Context, documentID uuid.UUID, status model.DocumentStatus) error
	SavePublicLink(ctx context.Context, documentID uuid.UUID, link string) error
	AppendSignature(ctx context.Context, sig model.Signature) error
	AppendAudit(ctx context.Context, documentID uuid.UUID, entries []model.AuditEntry) error
}

// PersistError reports a failed save after a successful in-memory
// transition. Snapshot is the state that was applied; callers may retry the
// save without re-deriving anything.
type PersistError struct {
	Snapshot *model.Document
	Err      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist document %s: %v", e.Snapshot.ID, e.Err)
}

func (e *PersistError) Unwrap() []error { return []error{errs.ErrPersistence, e.Err} }

type docEntry struct {
	mu  sync.Mutex
	doc *model.Document
}

// Coordinator owns all in-memory documents and serializes commands per
// document id. It is the sole mutation path; callers only ever observe
// snapshots.
type Coordinator struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*docEntry

	persist        Persister
	norm           *capture.Normalizer
	log            *zap.Logger
	persistTimeout time.Duration

	now   func() time.Time
	newID func() uuid.UUID
}

// New constructs a Coordinator. persist may not be nil; use a no-op
// implementation for purely in-memory use.
func New(persist Persister, norm *capture.Normalizer, log *zap.Logger, persistTimeout time.Duration) *Coordinator {
	if persistTimeout <= 0 {
		persistTimeout = 5 * time.Second
	}
	return &Coordinator{
		docs:           make(map[uuid.UUID]*docEntry),
		persist:        persist,
		norm:           norm,
		log:            log,
		persistTimeout: persistTimeout,
		now:            time.Now,
		newID:          func() uuid.UUID { return uuid.Must(uuid.NewV4()) },
	}
}

func (c *Coordinator) entry(id uuid.UUID) (*docEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, errs.ErrNotFound)
	}
	return e, nil
}

// Load hydrates a document fetched from the backing store. Existing
// in-memory state wins: the coordinator is the authority once loaded.
func (c *Coordinator) Load(d *model.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[d.ID]; ok {
		return
	}
	c.docs[d.ID] = &docEntry{doc: d.Clone()}
}

// Get returns a snapshot of one document.
func (c *Coordinator) Get(documentID uuid.UUID) (*model.Document, error) {
	e, err := c.entry(documentID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.Clone(), nil
}

// ListByOwner returns snapshots of the owner's documents, newest first.
func (c *Coordinator) ListByOwner(owner uuid.UUID) []*model.Document {
	c.mu.Lock()
	entries := make([]*docEntry, 0, len(c.docs))
	for _, e := range c.docs {
		entries = append(entries, e)
	}
	c.mu.Unlock()

	var out []*model.Document
	for _, e := range entries {
		e.mu.Lock()
		if e.doc.Owner == owner {
			out = append(out, e.doc.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

type saveOp func(ctx context.Context) error

// finish clones the mutated document and runs the write-behind saves with a
// bounded timeout. The snapshot is returned even when saving fails.
func (c *Coordinator) finish(ctx context.Context, d *model.Document, ops ...saveOp) (*model.Document, error) {
	snap := d.Clone()

	sctx, cancel := context.WithTimeout(ctx, c.persistTimeout)
	defer cancel()
	for _, op := range ops {
		if err := op(sctx); err != nil {
			c.log.Warn("write-behind save failed",
				zap.String("document", d.ID.String()),
				zap.Error(err),
			)
			return snap, &PersistError{Snapshot: snap, Err: err}
		}
	}
	return snap, nil
}

// NewSigner describes one signer at document setup time.
type NewSigner struct {
	Name  string
	Email string
	Order int
}

// CreateDocumentParams carries document setup data.
type CreateDocumentParams struct {
	Name         string
	Owner        uuid.UUID
	Size         int64
	Pages        []model.PageSize // from the rendering collaborator, indexed by page-1
	EnforceOrder bool
	Signers      []NewSigner
}

// CreateDocument registers a new draft document with its signer set.
func (c *Coordinator) CreateDocument(ctx context.Context, p CreateDocumentParams, actor Actor) (*model.Document, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("document name: %w", errs.ErrEmptyInput)
	}
	if len(p.Pages) == 0 {
		return nil, fmt.Errorf("page sizes: %w", errs.ErrInvalidGeometry)
	}
	seen := make(map[int]bool, len(p.Signers))
	for _, s := range p.Signers {
		if s.Order < 1 || seen[s.Order] {
			return nil, fmt.Errorf("signer order %d: %w", s.Order, errs.ErrInvalidAssignment)
		}
		seen[s.Order] = true
	}

	now := c.now()
	d := &model.Document{
		ID:           c.newID(),
		Name:         p.Name,
		Owner:        p.Owner,
		Size:         p.Size,
		Status:       model.DocDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
		PageCount:    len(p.Pages),
		Pages:        append([]model.PageSize(nil), p.Pages...),
		EnforceOrder: p.EnforceOrder,
	}
	for _, s := range p.Signers {
		d.Signers = append(d.Signers, model.Signer{
			ID:     c.newID(),
			Name:   s.Name,
			Email:  s.Email,
			Order:  s.Order,
			Status: model.SignerPending,
		})
	}
	c.appendAudit(d, actor, ActionDocumentCreated, "Document uploaded and prepared for signing")

	c.mu.Lock()
	c.docs[d.ID] = &docEntry{doc: d}
	c.mu.Unlock()

	return c.finish(ctx, d, func(sc context.Context) error {
		return c.persist.InsertDocument(sc, d)
	})
}

// Finalize moves a draft document to pending, locking the signer set. The
// transition is externally triggered; derivation takes over from here.
func (c *Coordinator) Finalize(ctx context.Context, documentID uuid.UUID, actor Actor) (*model.Document, error) {
	e, err := c.entry(documentID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.doc

	if d.Status != model.DocDraft {
		return nil, fmt.Errorf("document %s is %s: %w", d.ID, d.Status, errs.ErrDocumentLocked)
	}
	if len(d.Signers) == 0 {
		return nil, fmt.Errorf("no signers: %w", errs.ErrInvalidAssignment)
	}
	d.Status = model.DocPending
	deriveDocument(d)
	d.UpdatedAt = c.now()

	return c.finish(ctx, d, func(sc context.Context) error {
		return c.persist.SaveStatus(sc, d.ID, d.Status)
	})
}

// PlaceFieldParams carries field placement data measured in the unit space
// of the page the caller rendered.
type PlaceFieldParams struct {
	Page          int
	X, Y          float64
	Width, Height float64 // zero means the default field size
	Type          model.FieldType
	AssignedTo    uuid.UUID
	Required      bool
}

// PlaceField creates a new unsigned field on the document.
func (c *Coordinator) PlaceField(ctx context.Context, documentID uuid.UUID, p PlaceFieldParams, actor Actor) (*model.Document, error) {
	e, err := c.entry(documentID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.doc

	if d.Status.Terminal() {
		return nil, fmt.Errorf("document %s is %s: %w", d.ID, d.Status, errs.ErrDocumentLocked)
	}
	signer := d.SignerByID(p.AssignedTo)
	if signer == nil {
		return nil, fmt.Errorf("signer %s: %w", p.AssignedTo, errs.ErrInvalidAssignment)
	}
	page, ok := d.PageSizeOf(p.Page)
	if !ok {
		return nil, fmt.Errorf("page %d of %d: %w", p.Page, d.PageCount, errs.ErrInvalidGeometry)
	}
	w, h := p.Width, p.Height
	if w == 0 {
		w = geometry.DefaultFieldWidth
	}
	if h == 0 {
		h = geometry.DefaultFieldHeight
	}
	rect, err := geometry.Normalize(page, p.X, p.Y, w, h)
	if err != nil {
		return nil, err
	}
	if p.Type != model.FieldSignature && p.Type != model.FieldDate {
		return nil, fmt.Errorf("field type %q: %w", p.Type, errs.ErrUnsupportedFormat)
	}

	f := model.SignatureField{
		ID:         c.newID(),
		Type:       p.Type,
		Page:       p.Page,
		Rect:       rect,
		Required:   p.Required,
		AssignedTo: p.AssignedTo,
	}
	d.Fields = append(d.Fields, f)
	d.UpdatedAt = c.now()
	c.appendAudit(d, actor, ActionFieldPlaced, fieldPlacedDetails(&f, signer.Name))

	return c.finish(ctx, d,
		func(sc context.Context) error { return c.persist.SaveFields(sc, d.ID, d.Fields) },
		func(sc context.Context) error { return c.persist.AppendAudit(sc, d.ID, d.AuditTrail[len(d.AuditTrail)-1:]) },
	)
}

// MoveField repositions an existing field. The interactive drag belongs to
// the rendering collaborator; it calls this once with the drop coordinates.
func (c *Coordinator) MoveField(ctx context.Context, documentID, fieldID uuid.UUID, newX, newY float64, actor Actor) (*model.Document, error) {
	e, err := c.entry(documentID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.doc

	if d.Status.Terminal() {
		return nil, fmt.Errorf("document %s is %s: %w", d.ID, d.Status, errs.ErrDocumentLocked)
	}
	f := d.FieldByID(fieldID)
	if f == nil {
		return nil, fmt.Errorf("field %s: %w", fieldID, errs.ErrNotFound)
	}
	page, _ := d.PageSizeOf(f.Page)
	rect, err := geometry.Move(page, f.Rect, newX, newY)
	if err != nil {
		return nil, err
	}
	f.Rect = rect
	d.UpdatedAt = c.now()
	c.appendAudit(d, actor, ActionFieldMoved, fieldMovedDetails(f, newX, newY))

	return c.finish(ctx, d,
		func(sc context.Context) error { return c.persist.SaveFields(sc, d.ID, d.Fields) },
		func(sc context.Context) error { return c.persist.AppendAudit(sc, d.ID, d.AuditTrail[len(d.AuditTrail)-1:]) },
	)
}

// DeleteField removes an unsigned field while the document is still being
// prepared. Signed fields are never deleted.
func (c *Coordinator) DeleteField(ctx context.Context, documentID, fieldID uuid.UUID, actor Actor) (*model.Document, error) {
	e, err := c.entry(documentID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.doc

	if d.Status.Terminal() {
		return nil, fmt.Errorf("document %s is %s: %w", d.ID, d.Status, errs.ErrDocumentLocked)
	}
	f := d.FieldByID(fieldID)
	if f == nil {
		return nil, fmt.Errorf("field %s: %w", fieldID, errs.ErrNotFound)
	}
	if f.Signed {
		return nil, fmt.Errorf("field %s: %w", fieldID, errs.ErrFieldSigned)
	}
	details := fmt.Sprintf("%s field removed from page %d", f.Type, f.Page)
	for i := range d.Fields {
		if d.Fields[i].ID == fieldID {
			d.Fields = append(d.Fields[:i], d.Fields[i+1:]...)
			break
		}
	}
	d.UpdatedAt = c.now()
	c.appendAudit(d, actor, ActionFieldDeleted, details)

	return c.finish(ctx, d,
		func(sc context.Context) error { return c.persist.SaveFields(sc, d.ID, d.Fields) },
		func(sc context.Context) error { return c.persist.AppendAudit(sc, d.ID, d.AuditTrail[len(d.AuditTrail)-1:]) },
	)
}

// SubmitSignature applies a normalized capture to a field, appends the
// permanent Signature record and re-derives signer and document status.
func (c *Coordinator) SubmitSignature(ctx context.Context, documentID, fieldID, signerID uuid.UUID, capt capture.Capture, actor Actor) (*model.Document, error) {
	e, err := c.entry(documentID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.doc

	if d.Status.Terminal() {
		return nil, fmt.Errorf("document %s is %s: %w", d.ID, d.Status, errs.ErrDocumentLocked)
	}
	f := d.FieldByID(fieldID)
	if f == nil {
		return nil, fmt.Errorf("field %s: %w", fieldID, errs.ErrNotFound)
	}
	signer := d.SignerByID(signerID)
	if signer == nil {
		return nil, fmt.Errorf("signer %s: %w", signerID, errs.ErrNotFound)
	}
	if f.AssignedTo != signerID {
		return nil, fmt.Errorf("field %s assigned to %s: %w", fieldID, f.AssignedTo, errs.ErrWrongSigner)
	}
	if d.EnforceOrder && !orderSatisfied(d, signerID) {
		return nil, fmt.Errorf("signer %s (order %d): %w", signerID, signer.Order, errs.ErrOrderViolation)
	}
	res, err := c.norm.Normalize(capt)
	if err != nil {
		return nil, err
	}

	f.Signed = true
	f.SignatureType = res.Type
	f.SignatureText = res.Text
	f.SignatureImage = res.Image

	kind := model.SigSignature
	if f.Type == model.FieldDate {
		kind = model.SigDate
	}
	sig := model.Signature{
		ID:         c.newID(),
		SignerID:   signerID,
		DocumentID: d.ID,
		Page:       f.Page,
		Rect:       f.Rect, // copied now; later moves do not rewrite history
		Kind:       kind,
		Value:      res.Text,
		Image:      append([]byte(nil), res.Image...),
		CreatedAt:  c.now(),
	}
	d.Signatures = append(d.Signatures, sig)

	before := d.Status
	c.deriveSigner(d, signer)
	deriveDocument(d)
	d.UpdatedAt = c.now()

	c.appendAudit(d, actor, ActionFieldSigned, fieldSignedDetails(f, res.Type))
	newEntries := 1
	if marker := statusMarker(before, d.Status); marker != "" {
		c.appendAudit(d, actor, marker, markerDetails(marker))
		newEntries = 2
	}

	return c.finish(ctx, d,
		func(sc context.Context) error { return c.persist.SaveFields(sc, d.ID, d.Fields) },
		func(sc context.Context) error { return c.persist.SaveSigners(sc, d.ID, d.Signers) },
		func(sc context.Context) error { return c.persist.SaveStatus(sc, d.ID, d.Status) },
		func(sc context.Context) error { return c.persist.AppendSignature(sc, sig) },
		func(sc context.Context) error {
			return c.persist.AppendAudit(sc, d.ID, d.AuditTrail[len(d.AuditTrail)-newEntries:])
		},
	)
}

// Unsign clears a field's signed payload, reverting signer and document
// status downward as derivation dictates. The historical Signature record
// stays; only the working state resets.
func (c *Coordinator) Unsign(ctx context.Context, documentID, fieldID uuid.UUID, actor Actor) (*model.Document, error) {
	e, err := c.entry(documentID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.doc

	if d.Status == model.DocRejected {
		return nil, fmt.Errorf("document %s is rejected: %w", d.ID, errs.ErrDocumentLocked)
	}
	f := d.FieldByID(fieldID)
	if f == nil {
		return nil, fmt.Errorf("field %s: %w", fieldID, errs.ErrNotFound)
	}
	if !f.Signed {
		return nil, fmt.Errorf("field %s has no signature: %w", fieldID, errs.ErrNotFound)
	}

	f.Signed = false
	f.SignatureType = ""
	f.SignatureText = ""
	f.SignatureImage = nil

	if signer := d.SignerByID(f.AssignedTo); signer != nil {
		c.deriveSigner(d, signer)
	}
	deriveDocument(d)
	d.UpdatedAt = c.now()
	c.appendAudit(d, actor, ActionFieldUnsigned, fieldUnsignedDetails(f))

	return c.finish(ctx, d,
		func(sc context.Context) error { return c.persist.SaveFields(sc, d.ID, d.Fields) },
		func(sc context.Context) error { return c.persist.SaveSigners(sc, d.ID, d.Signers) },
		func(sc context.Context) error { return c.persist.SaveStatus(sc, d.ID, d.Status) },
		func(sc context.Context) error { return c.persist.AppendAudit(sc, d.ID, d.AuditTrail[len(d.AuditTrail)-1:]) },
	)
}

// Reject records a signer's decline. Rejection is terminal for the signer
// and drives the document to rejected. The caller's free-text reason is
// logged but never written into the audit trail.
func (c *Coordinator) Reject(ctx context.Context, documentID, signerID uuid.UUID, reason string, actor Actor) (*model.Document, error) {
	e, err := c.entry(documentID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.doc

	if d.Status.Terminal() {
		return nil, fmt.Errorf("document %s is %s: %w", d.ID, d.Status, errs.ErrDocumentLocked)
	}
	signer := d.SignerByID(signerID)
	if signer == nil {
		return nil, fmt.Errorf("signer %s: %w", signerID, errs.ErrNotFound)
	}
	if signer.Status != model.SignerPending {
		return nil, fmt.Errorf("signer %s is %s: %w", signerID, signer.Status, errs.ErrSignerTerminal)
	}

	signer.Status = model.SignerRejected
	d.Status = model.DocRejected
	d.UpdatedAt = c.now()
	c.appendAudit(d, actor, ActionDocumentRejected, fmt.Sprintf("Signer %s declined to sign", signer.Name))
	if reason != "" {
		c.log.Info("document rejected",
			zap.String("document", d.ID.String()),
			zap.String("signer", signerID.String()),
			zap.String("reason", reason),
		)
	}

	return c.finish(ctx, d,
		func(sc context.Context) error { return c.persist.SaveSigners(sc, d.ID, d.Signers) },
		func(sc context.Context) error { return c.persist.SaveStatus(sc, d.ID, d.Status) },
		func(sc context.Context) error { return c.persist.AppendAudit(sc, d.ID, d.AuditTrail[len(d.AuditTrail)-1:]) },
	)
}

// SetPublicLink attaches an opaque public signing link to the document.
func (c *Coordinator) SetPublicLink(ctx context.Context, documentID uuid.UUID, link string) (*model.Document, error) {
	e, err := c.entry(documentID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.doc

	d.PublicLink = link
	d.UpdatedAt = c.now()

	return c.finish(ctx, d, func(sc context.Context) error {
		return c.persist.SavePublicLink(sc, d.ID, link)
	})
}
