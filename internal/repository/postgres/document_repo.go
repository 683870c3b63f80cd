package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/signdesk/internal/errs"
	"github.com/and161185/signdesk/internal/model"
)

// DocumentRepo implements DocumentRepository using PostgreSQL. It is the
// write-behind target of the workflow coordinator; row state trails the
// in-memory state by design.
type DocumentRepo struct{ db *DB }

// NewDocumentRepo constructs a document repository.
func NewDocumentRepo(db *DB) *DocumentRepo { return &DocumentRepo{db: db} }

const insertFieldSQL = `
INSERT INTO fields (id, document_id, ftype, page, x, y, w, h, required, assigned_to, signed, sig_type, sig_text, sig_image)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

const insertAuditSQL = `
INSERT INTO audit_entries (id, document_id, action, actor, ts, ip, details)
VALUES ($1,$2,$3,$4,$5,$6,$7)`

const insertSignatureSQL = `
INSERT INTO signatures (id, document_id, signer_id, page, x, y, w, h, kind, value, image, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

// InsertDocument stores a new document aggregate in one transaction.
func (r *DocumentRepo) InsertDocument(ctx context.Context, d *model.Document) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	pages, err := json.Marshal(d.Pages)
	if err != nil {
		return err
	}
	const ins = `
INSERT INTO documents (id, name, owner, byte_size, status, enforce_order, page_count, pages, public_link, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	if _, err = tx.Exec(ctx, ins,
		d.ID, d.Name, d.Owner, d.Size, string(d.Status), d.EnforceOrder,
		d.PageCount, pages, d.PublicLink, d.CreatedAt, d.UpdatedAt,
	); err != nil {
		return err
	}

	const insSigner = `
INSERT INTO signers (id, document_id, name, email, ord, status, signed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`
	for _, s := range d.Signers {
		if _, err = tx.Exec(ctx, insSigner, s.ID, d.ID, s.Name, s.Email, s.Order, string(s.Status), s.SignedAt); err != nil {
			return err
		}
	}
	for _, f := range d.Fields {
		if _, err = tx.Exec(ctx, insertFieldSQL, fieldArgs(d.ID, f)...); err != nil {
			return err
		}
	}
	for _, sig := range d.Signatures {
		if _, err = tx.Exec(ctx, insertSignatureSQL, signatureArgs(sig)...); err != nil {
			return err
		}
	}
	for _, a := range d.AuditTrail {
		if _, err = tx.Exec(ctx, insertAuditSQL, a.ID, d.ID, a.Action, a.User, a.Timestamp, a.IPAddress, a.Details); err != nil {
			return err
		}
	}
	return nil
}

func fieldArgs(docID uuid.UUID, f model.SignatureField) []any {
	return []any{
		f.ID, docID, string(f.Type), f.Page,
		f.Rect.X, f.Rect.Y, f.Rect.W, f.Rect.H,
		f.Required, f.AssignedTo, f.Signed,
		string(f.SignatureType), f.SignatureText, f.SignatureImage,
	}
}

func signatureArgs(sig model.Signature) []any {
	return []any{
		sig.ID, sig.DocumentID, sig.SignerID, sig.Page,
		sig.Rect.X, sig.Rect.Y, sig.Rect.W, sig.Rect.H,
		string(sig.Kind), sig.Value, sig.Image, sig.CreatedAt,
	}
}

// SaveFields replaces the document's field set atomically.
func (r *DocumentRepo) SaveFields(ctx context.Context, documentID uuid.UUID, fields []model.SignatureField) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM fields WHERE document_id=$1`, documentID); err != nil {
		return err
	}
	for _, f := range fields {
		if _, err = tx.Exec(ctx, insertFieldSQL, fieldArgs(documentID, f)...); err != nil {
			return err
		}
	}
	return nil
}

// SaveSigners updates signer status rows.
func (r *DocumentRepo) SaveSigners(ctx context.Context, documentID uuid.UUID, signers []model.Signer) error {
	const q = `UPDATE signers SET status=$3, signed_at=$4 WHERE id=$1 AND document_id=$2`
	for _, s := range signers {
		if _, err := r.db.Pool.Exec(ctx, q, s.ID, documentID, string(s.Status), s.SignedAt); err != nil {
			return err
		}
	}
	return nil
}

// SaveStatus updates the derived document status.
func (r *DocumentRepo) SaveStatus(ctx context.Context, documentID uuid.UUID, status model.DocumentStatus) error {
	const q = `UPDATE documents SET status=$2, updated_at=now() WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, documentID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SavePublicLink stores the public signing link.
func (r *DocumentRepo) SavePublicLink(ctx context.Context, documentID uuid.UUID, link string) error {
	const q = `UPDATE documents SET public_link=$2, updated_at=now() WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, documentID, link)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// AppendSignature inserts one permanent signature record.
func (r *DocumentRepo) AppendSignature(ctx context.Context, sig model.Signature) error {
	_, err := r.db.Pool.Exec(ctx, insertSignatureSQL, signatureArgs(sig)...)
	return err
}

// AppendAudit inserts audit entries preserving command order.
func (r *DocumentRepo) AppendAudit(ctx context.Context, documentID uuid.UUID, entries []model.AuditEntry) error {
	for _, a := range entries {
		if _, err := r.db.Pool.Exec(ctx, insertAuditSQL,
			a.ID, documentID, a.Action, a.User, a.Timestamp, a.IPAddress, a.Details); err != nil {
			return err
		}
	}
	return nil
}

// Fetch loads one document aggregate.
func (r *DocumentRepo) Fetch(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	const q = `
SELECT id, name, owner, byte_size, status, enforce_order, page_count, pages, public_link, created_at, updated_at
FROM documents WHERE id=$1`
	row := r.db.Pool.QueryRow(ctx, q, id)

	var (
		d      model.Document
		status string
		pages  []byte
	)
	if err := row.Scan(&d.ID, &d.Name, &d.Owner, &d.Size, &status, &d.EnforceOrder,
		&d.PageCount, &pages, &d.PublicLink, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	d.Status = model.DocumentStatus(status)
	if err := json.Unmarshal(pages, &d.Pages); err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// FetchAll loads every stored document aggregate.
func (r *DocumentRepo) FetchAll(ctx context.Context) ([]*model.Document, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id FROM documents ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*model.Document, 0, len(ids))
	for _, id := range ids {
		d, err := r.Fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *DocumentRepo) loadChildren(ctx context.Context, d *model.Document) error {
	const qs = `
SELECT id, name, email, ord, status, signed_at
FROM signers WHERE document_id=$1 ORDER BY ord`
	rows, err := r.db.Pool.Query(ctx, qs, d.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			s      model.Signer
			status string
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.Order, &status, &s.SignedAt); err != nil {
			rows.Close()
			return err
		}
		s.Status = model.SignerStatus(status)
		d.Signers = append(d.Signers, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	const qf = `
SELECT id, ftype, page, x, y, w, h, required, assigned_to, signed, sig_type, sig_text, sig_image
FROM fields WHERE document_id=$1 ORDER BY id`
	rows, err = r.db.Pool.Query(ctx, qf, d.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			f            model.SignatureField
			ftype, stype string
		)
		if err := rows.Scan(&f.ID, &ftype, &f.Page,
			&f.Rect.X, &f.Rect.Y, &f.Rect.W, &f.Rect.H,
			&f.Required, &f.AssignedTo, &f.Signed, &stype, &f.SignatureText, &f.SignatureImage); err != nil {
			rows.Close()
			return err
		}
		f.Type = model.FieldType(ftype)
		f.SignatureType = model.CaptureMethod(stype)
		d.Fields = append(d.Fields, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	const qsig = `
SELECT id, signer_id, page, x, y, w, h, kind, value, image, created_at
FROM signatures WHERE document_id=$1 ORDER BY created_at`
	rows, err = r.db.Pool.Query(ctx, qsig, d.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			sig  model.Signature
			kind string
		)
		sig.DocumentID = d.ID
		if err := rows.Scan(&sig.ID, &sig.SignerID, &sig.Page,
			&sig.Rect.X, &sig.Rect.Y, &sig.Rect.W, &sig.Rect.H,
			&kind, &sig.Value, &sig.Image, &sig.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		sig.Kind = model.SignatureKind(kind)
		d.Signatures = append(d.Signatures, sig)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	const qa = `
SELECT id, action, actor, ts, ip, details
FROM audit_entries WHERE document_id=$1 ORDER BY seq`
	rows, err = r.db.Pool.Query(ctx, qa, d.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var a model.AuditEntry
		if err := rows.Scan(&a.ID, &a.Action, &a.User, &a.Timestamp, &a.IPAddress, &a.Details); err != nil {
			return err
		}
		d.AuditTrail = append(d.AuditTrail, a)
	}
	return rows.Err()
}
