package workflow

import (
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/signdesk/internal/model"
)

// Status derivation. Document and signer statuses are pure functions of
// field state, recomputed after every mutation; nothing outside this file
// writes them, except the rejected terminal marker and the externally
// triggered draft->pending finalization.

// requiredFieldsSigned reports whether the document has at least one
// required field and all of them are signed. A document with no required
// fields never derives as completed.
func requiredFieldsSigned(d *model.Document) bool {
	required := 0
	for i := range d.Fields {
		if !d.Fields[i].Required {
			continue
		}
		required++
		if !d.Fields[i].Signed {
			return false
		}
	}
	return required > 0
}

// anyRequiredSigned reports whether at least one required field is signed.
func anyRequiredSigned(d *model.Document) bool {
	for i := range d.Fields {
		if d.Fields[i].Required && d.Fields[i].Signed {
			return true
		}
	}
	return false
}

// signerComplete reports whether the signer has no remaining unsigned
// required fields. A signer with no required fields assigned stays pending
// until explicitly accounted for by the document-level derivation.
func signerComplete(d *model.Document, signerID uuid.UUID) bool {
	assigned := 0
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.AssignedTo != signerID || !f.Required {
			continue
		}
		assigned++
		if !f.Signed {
			return false
		}
	}
	return assigned > 0
}

// deriveSigner recomputes one signer's status from field state. Rejection is
// terminal and never recomputed; signed may revert to pending after unsign.
func (c *Coordinator) deriveSigner(d *model.Document, s *model.Signer) {
	if s.Status == model.SignerRejected {
		return
	}
	if signerComplete(d, s.ID) {
		if s.Status != model.SignerSigned {
			s.Status = model.SignerSigned
			t := c.now()
			s.SignedAt = &t
		}
		return
	}
	s.Status = model.SignerPending
	s.SignedAt = nil
}

// deriveDocument recomputes document status from signer and field state.
// Draft is left untouched: a document enters the derived lifecycle only
// once finalized. Rejected is terminal.
func deriveDocument(d *model.Document) {
	if d.Status == model.DocDraft || d.Status == model.DocRejected {
		return
	}
	for i := range d.Signers {
		if d.Signers[i].Status == model.SignerRejected {
			d.Status = model.DocRejected
			return
		}
	}
	switch {
	case requiredFieldsSigned(d):
		d.Status = model.DocCompleted
	case anyRequiredSigned(d):
		d.Status = model.DocSigned
	default:
		d.Status = model.DocPending
	}
}

// orderSatisfied reports whether every signer ordered before the given one
// has completed. Only consulted when the document enforces sequential
// signing.
func orderSatisfied(d *model.Document, signerID uuid.UUID) bool {
	me := d.SignerByID(signerID)
	if me == nil {
		return false
	}
	for i := range d.Signers {
		s := &d.Signers[i]
		if s.Order < me.Order && s.Status != model.SignerSigned {
			return false
		}
	}
	return true
}
