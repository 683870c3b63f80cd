package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/signdesk/internal/capture"
	"github.com/and161185/signdesk/internal/errs"
	"github.com/and161185/signdesk/internal/limiter"
	"github.com/and161185/signdesk/internal/model"
	"github.com/and161185/signdesk/internal/publiclink"
	"github.com/and161185/signdesk/internal/repository"
	"github.com/and161185/signdesk/internal/workflow"
)

// tokenAttemptPrincipal keys public-link lookup attempts in the limiter.
// Lockout is per client IP; the token itself never reaches the limiter.
const tokenAttemptPrincipal = "public-link"

// DocumentService exposes the signing workflow to transports. Owner-scoped
// methods authorize against the document owner; token-scoped methods carry
// the signer identity inside the public-link token.
type DocumentService interface {
	// Bootstrap hydrates the coordinator from the backing store.
	Bootstrap(ctx context.Context) error

	Create(ctx context.Context, ownerID uuid.UUID, p workflow.CreateDocumentParams, actor workflow.Actor) (*model.Document, error)
	List(ctx context.Context, ownerID uuid.UUID) []*model.Document
	Get(ctx context.Context, ownerID, documentID uuid.UUID) (*model.Document, error)
	Finalize(ctx context.Context, ownerID, documentID uuid.UUID, actor workflow.Actor) (*model.Document, error)
	PlaceField(ctx context.Context, ownerID, documentID uuid.UUID, p workflow.PlaceFieldParams, actor workflow.Actor) (*model.Document, error)
	MoveField(ctx context.Context, ownerID, documentID, fieldID uuid.UUID, x, y float64, actor workflow.Actor) (*model.Document, error)
	DeleteField(ctx context.Context, ownerID, documentID, fieldID uuid.UUID, actor workflow.Actor) (*model.Document, error)
	SubmitSignature(ctx context.Context, ownerID, documentID, fieldID, signerID uuid.UUID, c capture.Capture, actor workflow.Actor) (*model.Document, error)
	Unsign(ctx context.Context, ownerID, documentID, fieldID uuid.UUID, actor workflow.Actor) (*model.Document, error)
	Reject(ctx context.Context, ownerID, documentID, signerID uuid.UUID, reason string, actor workflow.Actor) (*model.Document, error)
	IssuePublicLink(ctx context.Context, ownerID, documentID, signerID uuid.UUID) (string, error)
	AuditTrail(ctx context.Context, ownerID, documentID uuid.UUID) ([]model.AuditEntry, error)
	AuditAcross(ctx context.Context, ownerID uuid.UUID) []model.TaggedAuditEntry

	// Public signing surface, scoped by opaque token.
	GetByToken(ctx context.Context, token, ip string) (*model.Document, uuid.UUID, error)
	SubmitByToken(ctx context.Context, token string, fieldID uuid.UUID, c capture.Capture, ip string) (*model.Document, error)
	RejectByToken(ctx context.Context, token, reason, ip string) (*model.Document, error)
}

type DocumentServiceImpl struct {
	coord *workflow.Coordinator
	docs  repository.DocumentRepository
	links *publiclink.Issuer
	lim   limiter.Limiter
	log   *zap.Logger
}

// NewDocumentService constructs DocumentService with required dependencies.
func NewDocumentService(
	coord *workflow.Coordinator,
	docs repository.DocumentRepository,
	links *publiclink.Issuer,
	lim limiter.Limiter,
	log *zap.Logger,
) *DocumentServiceImpl {
	return &DocumentServiceImpl{coord: coord, docs: docs, links: links, lim: lim, log: log}
}

// Bootstrap loads every persisted document into the coordinator. Run once
// at startup, before the transport starts accepting commands.
func (s *DocumentServiceImpl) Bootstrap(ctx context.Context) error {
	all, err := s.docs.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	for _, d := range all {
		s.coord.Load(d)
	}
	s.log.Info("documents hydrated", zap.Int("count", len(all)))
	return nil
}

// owned returns the document snapshot if ownerID owns it.
func (s *DocumentServiceImpl) owned(ownerID, documentID uuid.UUID) (*model.Document, error) {
	d, err := s.coord.Get(documentID)
	if err != nil {
		return nil, err
	}
	if d.Owner != ownerID {
		return nil, fmt.Errorf("document %s: %w", documentID, errs.ErrUnauthorized)
	}
	return d, nil
}

func (s *DocumentServiceImpl) Create(ctx context.Context, ownerID uuid.UUID, p workflow.CreateDocumentParams, actor workflow.Actor) (*model.Document, error) {
	p.Owner = ownerID
	return s.coord.CreateDocument(ctx, p, actor)
}

func (s *DocumentServiceImpl) List(_ context.Context, ownerID uuid.UUID) []*model.Document {
	return s.coord.ListByOwner(ownerID)
}

func (s *DocumentServiceImpl) Get(_ context.Context, ownerID, documentID uuid.UUID) (*model.Document, error) {
	return s.owned(ownerID, documentID)
}

func (s *DocumentServiceImpl) Finalize(ctx context.Context, ownerID, documentID uuid.UUID, actor workflow.Actor) (*model.Document, error) {
	if _, err := s.owned(ownerID, documentID); err != nil {
		return nil, err
	}
	return s.coord.Finalize(ctx, documentID, actor)
}

func (s *DocumentServiceImpl) PlaceField(ctx context.Context, ownerID, documentID uuid.UUID, p workflow.PlaceFieldParams, actor workflow.Actor) (*model.Document, error) {
	if _, err := s.owned(ownerID, documentID); err != nil {
		return nil, err
	}
	return s.coord.PlaceField(ctx, documentID, p, actor)
}

func (s *DocumentServiceImpl) MoveField(ctx context.Context, ownerID, documentID, fieldID uuid.UUID, x, y float64, actor workflow.Actor) (*model.Document, error) {
	if _, err := s.owned(ownerID, documentID); err != nil {
		return nil, err
	}
	return s.coord.MoveField(ctx, documentID, fieldID, x, y, actor)
}

func (s *DocumentServiceImpl) DeleteField(ctx context.Context, ownerID, documentID, fieldID uuid.UUID, actor workflow.Actor) (*model.Document, error) {
	if _, err := s.owned(ownerID, documentID); err != nil {
		return nil, err
	}
	return s.coord.DeleteField(ctx, documentID, fieldID, actor)
}

func (s *DocumentServiceImpl) SubmitSignature(ctx context.Context, ownerID, documentID, fieldID, signerID uuid.UUID, c capture.Capture, actor workflow.Actor) (*model.Document, error) {
	if _, err := s.owned(ownerID, documentID); err != nil {
		return nil, err
	}
	return s.coord.SubmitSignature(ctx, documentID, fieldID, signerID, c, actor)
}

func (s *DocumentServiceImpl) Unsign(ctx context.Context, ownerID, documentID, fieldID uuid.UUID, actor workflow.Actor) (*model.Document, error) {
	if _, err := s.owned(ownerID, documentID); err != nil {
		return nil, err
	}
	return s.coord.Unsign(ctx, documentID, fieldID, actor)
}

func (s *DocumentServiceImpl) Reject(ctx context.Context, ownerID, documentID, signerID uuid.UUID, reason string, actor workflow.Actor) (*model.Document, error) {
	if _, err := s.owned(ownerID, documentID); err != nil {
		return nil, err
	}
	return s.coord.Reject(ctx, documentID, signerID, reason, actor)
}

// IssuePublicLink creates a token-scoped signing link for one signer and
// stores it on the document.
func (s *DocumentServiceImpl) IssuePublicLink(ctx context.Context, ownerID, documentID, signerID uuid.UUID) (string, error) {
	d, err := s.owned(ownerID, documentID)
	if err != nil {
		return "", err
	}
	if d.SignerByID(signerID) == nil {
		return "", fmt.Errorf("signer %s: %w", signerID, errs.ErrNotFound)
	}
	_, link, err := s.links.Issue(documentID, signerID)
	if err != nil {
		return "", err
	}
	if _, err := s.coord.SetPublicLink(ctx, documentID, link); err != nil {
		return link, err
	}
	return link, nil
}

func (s *DocumentServiceImpl) AuditTrail(_ context.Context, ownerID, documentID uuid.UUID) ([]model.AuditEntry, error) {
	if _, err := s.owned(ownerID, documentID); err != nil {
		return nil, err
	}
	return s.coord.EntriesFor(documentID)
}

// AuditAcross merges the audit trails of every document the owner holds.
func (s *DocumentServiceImpl) AuditAcross(_ context.Context, ownerID uuid.UUID) []model.TaggedAuditEntry {
	docs := s.coord.ListByOwner(ownerID)
	ids := make([]uuid.UUID, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return s.coord.EntriesAcross(ids)
}

// resolveToken verifies a public-link token under the attempt limiter.
func (s *DocumentServiceImpl) resolveToken(ctx context.Context, token, ip string) (uuid.UUID, uuid.UUID, error) {
	ipHash := limiter.HashIP(ip)
	allowed, _, err := s.lim.Allow(ctx, tokenAttemptPrincipal, ipHash)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if !allowed {
		return uuid.Nil, uuid.Nil, errs.ErrRateLimited
	}
	docID, signerID, err := s.links.Parse(token)
	if err != nil {
		if blocked, _, ferr := s.lim.Failure(ctx, tokenAttemptPrincipal, ipHash); ferr == nil && blocked {
			return uuid.Nil, uuid.Nil, errs.ErrRateLimited
		}
		return uuid.Nil, uuid.Nil, errs.ErrUnauthorized
	}
	_ = s.lim.Success(ctx, tokenAttemptPrincipal, ipHash)
	return docID, signerID, nil
}

// GetByToken returns the document snapshot and the signer the token is
// scoped to.
func (s *DocumentServiceImpl) GetByToken(ctx context.Context, token, ip string) (*model.Document, uuid.UUID, error) {
	docID, signerID, err := s.resolveToken(ctx, token, ip)
	if err != nil {
		return nil, uuid.Nil, err
	}
	d, err := s.coord.Get(docID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if d.SignerByID(signerID) == nil {
		return nil, uuid.Nil, errs.ErrUnauthorized
	}
	return d, signerID, nil
}

// SubmitByToken signs one field as the token's signer.
func (s *DocumentServiceImpl) SubmitByToken(ctx context.Context, token string, fieldID uuid.UUID, c capture.Capture, ip string) (*model.Document, error) {
	docID, signerID, err := s.resolveToken(ctx, token, ip)
	if err != nil {
		return nil, err
	}
	d, err := s.coord.Get(docID)
	if err != nil {
		return nil, err
	}
	signer := d.SignerByID(signerID)
	if signer == nil {
		return nil, errs.ErrUnauthorized
	}
	return s.coord.SubmitSignature(ctx, docID, fieldID, signerID, c, workflow.Actor{Name: signer.Name, IP: ip})
}

// RejectByToken declines signing as the token's signer.
func (s *DocumentServiceImpl) RejectByToken(ctx context.Context, token, reason, ip string) (*model.Document, error) {
	docID, signerID, err := s.resolveToken(ctx, token, ip)
	if err != nil {
		return nil, err
	}
	d, err := s.coord.Get(docID)
	if err != nil {
		return nil, err
	}
	signer := d.SignerByID(signerID)
	if signer == nil {
		return nil, errs.ErrUnauthorized
	}
	return s.coord.Reject(ctx, docID, signerID, reason, workflow.Actor{Name: signer.Name, IP: ip})
}
