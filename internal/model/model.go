// Package model defines domain entities used by the workflow engine,
// services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// DocumentStatus is the lifecycle state of a document. Except for the
// draft->pending finalization, it is always derived from signer and field
// state, never set directly by clients.
type DocumentStatus string

const (
	DocDraft     DocumentStatus = "draft"
	DocPending   DocumentStatus = "pending"
	DocSigned    DocumentStatus = "signed" // at least one required field signed
	DocRejected  DocumentStatus = "rejected"
	DocCompleted DocumentStatus = "completed"
)

// Terminal reports whether no further signing mutations are accepted.
func (s DocumentStatus) Terminal() bool {
	return s == DocRejected || s == DocCompleted
}

// SignerStatus tracks one signer's progress. Transitions are forward-only,
// except that unsigning a field may revert signed back to pending.
type SignerStatus string

const (
	SignerPending  SignerStatus = "pending"
	SignerSigned   SignerStatus = "signed"
	SignerRejected SignerStatus = "rejected"
)

// FieldType distinguishes what a placed field collects.
type FieldType string

const (
	FieldSignature FieldType = "signature"
	FieldDate      FieldType = "date"
)

// CaptureMethod names how a signature mark was produced.
type CaptureMethod string

const (
	CaptureTyped    CaptureMethod = "typed"
	CaptureDrawn    CaptureMethod = "drawn"
	CaptureUploaded CaptureMethod = "uploaded"
)

// SignatureKind classifies an appended Signature record.
type SignatureKind string

const (
	SigSignature SignatureKind = "signature"
	SigInitial   SignatureKind = "initial"
	SigDate      SignatureKind = "date"
	SigText      SignatureKind = "text"
)

// Signer is a party that must complete fields on one document. The set of
// signers is immutable once the document leaves draft.
type Signer struct {
	ID       uuid.UUID    `json:"id"`
	Name     string       `json:"name"`
	Email    string       `json:"email"`
	Order    int          `json:"order"` // 1-based signing sequence position, unique per document
	Status   SignerStatus `json:"status"`
	SignedAt *time.Time   `json:"signedAt,omitempty"`
}

// Rect is a page-relative rectangle with all coordinates normalized to
// fractions of page width/height, so placement survives different render sizes.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"width"`
	H float64 `json:"height"`
}

// SignatureField is a placed, page-positioned region awaiting a mark.
// The signed payload is working state; the permanent record lives in Signature.
type SignatureField struct {
	ID         uuid.UUID `json:"id"`
	Type       FieldType `json:"type"`
	Page       int       `json:"page"` // 1-based
	Rect       Rect      `json:"rect"`
	Required   bool      `json:"required"`
	AssignedTo uuid.UUID `json:"assignedTo"`

	Signed         bool          `json:"signed"`
	SignatureType  CaptureMethod `json:"signatureType,omitempty"`
	SignatureText  string        `json:"signatureText,omitempty"` // typed captures only
	SignatureImage []byte        `json:"signatureImage,omitempty"`
}

// Signature is the permanent record appended when a field is signed.
// Position is copied from the field at signing time so later moves do not
// rewrite history. Never mutated or deleted.
type Signature struct {
	ID         uuid.UUID     `json:"id"`
	SignerID   uuid.UUID     `json:"signerId"`
	DocumentID uuid.UUID     `json:"documentId"`
	Page       int           `json:"page"`
	Rect       Rect          `json:"rect"`
	Kind       SignatureKind `json:"type"`
	Value      string        `json:"value,omitempty"`
	Image      []byte        `json:"imageData,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// AuditEntry is one immutable record of a state-changing action.
type AuditEntry struct {
	ID        uuid.UUID `json:"id"`
	Action    string    `json:"action"` // closed vocabulary, see workflow package
	User      string    `json:"user"`
	Timestamp time.Time `json:"timestamp"`
	IPAddress string    `json:"ipAddress"`
	Details   string    `json:"details"`
}

// TaggedAuditEntry is an audit entry annotated with its originating document,
// used by cross-document reporting.
type TaggedAuditEntry struct {
	AuditEntry
	DocumentID   uuid.UUID `json:"documentId"`
	DocumentName string    `json:"documentName"`
}

// PageSize is the declared render size of one page, supplied by the
// rendering collaborator.
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Document is the aggregate the workflow coordinator owns. Snapshots handed
// to callers are deep copies; internal state is never shared.
type Document struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Owner     uuid.UUID      `json:"owner"`
	Size      int64          `json:"size"` // underlying PDF byte size
	Status    DocumentStatus `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`

	PageCount int        `json:"pageCount"`
	Pages     []PageSize `json:"pages"` // indexed by page-1

	EnforceOrder bool `json:"enforceOrder"`

	Signers    []Signer         `json:"signers"`
	Fields     []SignatureField `json:"fields"`
	Signatures []Signature      `json:"signatures"` // append-only
	AuditTrail []AuditEntry     `json:"auditTrail"` // append-only

	PublicLink string `json:"publicLink,omitempty"`
}

// SignerByID returns the signer with the given id, or nil.
func (d *Document) SignerByID(id uuid.UUID) *Signer {
	for i := range d.Signers {
		if d.Signers[i].ID == id {
			return &d.Signers[i]
		}
	}
	return nil
}

// FieldByID returns the field with the given id, or nil.
func (d *Document) FieldByID(id uuid.UUID) *SignatureField {
	for i := range d.Fields {
		if d.Fields[i].ID == id {
			return &d.Fields[i]
		}
	}
	return nil
}

// PageSizeOf returns the declared size of a 1-based page number.
func (d *Document) PageSizeOf(page int) (PageSize, bool) {
	if page < 1 || page > len(d.Pages) {
		return PageSize{}, false
	}
	return d.Pages[page-1], true
}

// Clone returns a deep copy safe to hand outside the coordinator.
func (d *Document) Clone() *Document {
	cp := *d
	cp.Pages = append([]PageSize(nil), d.Pages...)
	cp.Signers = append([]Signer(nil), d.Signers...)
	cp.Fields = make([]SignatureField, len(d.Fields))
	for i, f := range d.Fields {
		f.SignatureImage = append([]byte(nil), f.SignatureImage...)
		cp.Fields[i] = f
	}
	cp.Signatures = make([]Signature, len(d.Signatures))
	for i, s := range d.Signatures {
		s.Image = append([]byte(nil), s.Image...)
		cp.Signatures[i] = s
	}
	cp.AuditTrail = append([]AuditEntry(nil), d.AuditTrail...)
	for i := range d.Signers {
		if d.Signers[i].SignedAt != nil {
			t := *d.Signers[i].SignedAt
			cp.Signers[i].SignedAt = &t
		}
	}
	return &cp
}

// Tokens collects issued access tokens for an owner session.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// User represents an owner account stored on the server.
type User struct {
	ID        uuid.UUID
	Name      string
	Email     string // unique
	PwdHash   []byte // Argon2id(password, Salt)
	Salt      []byte
	CreatedAt time.Time
}
