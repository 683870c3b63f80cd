package workflow

import (
	"fmt"
	"sort"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/signdesk/internal/model"
)

// Audit action vocabulary. Closed set: handlers never pass client-supplied
// action labels, and entry details are derived from command parameters only.
const (
	ActionDocumentCreated   = "document_created"
	ActionFieldPlaced       = "field_placed"
	ActionFieldMoved        = "field_moved"
	ActionFieldDeleted      = "field_deleted"
	ActionFieldSigned       = "field_signed"
	ActionFieldUnsigned     = "field_unsigned"
	ActionDocumentSigned    = "document_signed"
	ActionDocumentCompleted = "document_completed"
	ActionDocumentRejected  = "document_rejected"
)

// Actor identifies who performed a command, for audit attribution.
type Actor struct {
	Name string
	IP   string
}

// appendAudit adds one entry to the document's trail. The trail is
// append-only; nothing ever rewrites or prunes it.
func (c *Coordinator) appendAudit(d *model.Document, actor Actor, action, details string) {
	d.AuditTrail = append(d.AuditTrail, model.AuditEntry{
		ID:        c.newID(),
		Action:    action,
		User:      actor.Name,
		Timestamp: c.now(),
		IPAddress: actor.IP,
		Details:   details,
	})
}

func statusRank(s model.DocumentStatus) int {
	switch s {
	case model.DocDraft:
		return 0
	case model.DocPending:
		return 1
	case model.DocSigned:
		return 2
	default: // completed, rejected
		return 3
	}
}

// statusMarker returns the marker action for an upward document status
// transition, or "" when the transition carries no marker. Partial
// completion (pending -> signed) is visible through the status itself and
// the field_signed entry; only the terminal milestones get their own entry.
// Downward reverts after an unsign never re-announce a milestone.
func statusMarker(from, to model.DocumentStatus) string {
	if from == to || statusRank(to) <= statusRank(from) {
		return ""
	}
	switch to {
	case model.DocCompleted:
		return ActionDocumentCompleted
	case model.DocRejected:
		return ActionDocumentRejected
	}
	return ""
}

func markerDetails(action string) string {
	switch action {
	case ActionDocumentCompleted:
		return "All signatures collected"
	case ActionDocumentRejected:
		return "Signing declined"
	}
	return ""
}

// EntriesFor returns the full ordered audit trail of one document.
func (c *Coordinator) EntriesFor(documentID uuid.UUID) ([]model.AuditEntry, error) {
	e, err := c.entry(documentID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.AuditEntry(nil), e.doc.AuditTrail...), nil
}

// EntriesAcross merges the audit trails of several documents into one
// sequence ordered by timestamp, tagging each entry with its origin.
// Unknown document ids are skipped; reporting tolerates partial input.
func (c *Coordinator) EntriesAcross(documentIDs []uuid.UUID) []model.TaggedAuditEntry {
	var out []model.TaggedAuditEntry
	for _, id := range documentIDs {
		e, err := c.entry(id)
		if err != nil {
			continue
		}
		e.mu.Lock()
		for _, a := range e.doc.AuditTrail {
			out = append(out, model.TaggedAuditEntry{
				AuditEntry:   a,
				DocumentID:   e.doc.ID,
				DocumentName: e.doc.Name,
			})
		}
		e.mu.Unlock()
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func fieldPlacedDetails(f *model.SignatureField, signerName string) string {
	return fmt.Sprintf("%s field placed on page %d for %s", f.Type, f.Page, signerName)
}

func fieldMovedDetails(f *model.SignatureField, x, y float64) string {
	return fmt.Sprintf("Field moved to (%.0f, %.0f) on page %d", x, y, f.Page)
}

func fieldSignedDetails(f *model.SignatureField, method model.CaptureMethod) string {
	return fmt.Sprintf("%s field on page %d signed (%s)", f.Type, f.Page, method)
}

func fieldUnsignedDetails(f *model.SignatureField) string {
	return fmt.Sprintf("%s field on page %d cleared", f.Type, f.Page)
}
