package repository

import (
	"context"

	"github.com/and161185/signdesk/internal/model"
	"github.com/gofrs/uuid/v5"
)

// DocumentRepository persists documents and their owned collections. The
// write methods are the workflow coordinator's write-behind targets; the
// fetch methods hydrate in-memory state.
type DocumentRepository interface {
	// InsertDocument stores a freshly created document with its signers,
	// fields and initial audit trail.
	InsertDocument(ctx context.Context, d *model.Document) error

	// Fetch loads one document aggregate.
	Fetch(ctx context.Context, id uuid.UUID) (*model.Document, error)

	// FetchAll loads every document aggregate (startup hydration).
	FetchAll(ctx context.Context) ([]*model.Document, error)

	// SaveFields replaces the document's field set.
	SaveFields(ctx context.Context, documentID uuid.UUID, fields []model.SignatureField) error

	// SaveSigners updates signer statuses.
	SaveSigners(ctx context.Context, documentID uuid.UUID, signers []model.Signer) error

	// SaveStatus updates the derived document status.
	SaveStatus(ctx context.Context, documentID uuid.UUID, status model.DocumentStatus) error

	// SavePublicLink stores the document's public signing link.
	SavePublicLink(ctx context.Context, documentID uuid.UUID, link string) error

	// AppendSignature appends one permanent signature record.
	AppendSignature(ctx context.Context, sig model.Signature) error

	// AppendAudit appends audit entries in order.
	AppendAudit(ctx context.Context, documentID uuid.UUID, entries []model.AuditEntry) error
}
