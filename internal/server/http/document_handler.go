package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/signdesk/internal/capture"
	"github.com/and161185/signdesk/internal/model"
	"github.com/and161185/signdesk/internal/service"
	"github.com/and161185/signdesk/internal/workflow"
)

// DocumentHandler serves the owner-facing document workflow API and the
// token-scoped public signing surface.
type DocumentHandler struct {
	docs   service.DocumentService
	logger *zap.Logger
}

func NewDocumentHandler(docs service.DocumentService, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{docs: docs, logger: logger}
}

func (h *DocumentHandler) actor(c *gin.Context) workflow.Actor {
	_, name := currentUser(c)
	return workflow.Actor{Name: name, IP: c.ClientIP()}
}

func pathUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.FromString(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return uuid.Nil, false
	}
	return id, true
}

type newSignerRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
	Order int    `json:"order" binding:"required,min=1"`
}

type createDocumentRequest struct {
	Name         string             `json:"name" binding:"required"`
	Size         int64              `json:"size"`
	Pages        []model.PageSize   `json:"pages" binding:"required,min=1"`
	EnforceOrder bool               `json:"enforceOrder"`
	Signers      []newSignerRequest `json:"signers"`
}

func (h *DocumentHandler) Create(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ownerID, _ := currentUser(c)
	p := workflow.CreateDocumentParams{
		Name:         req.Name,
		Size:         req.Size,
		Pages:        req.Pages,
		EnforceOrder: req.EnforceOrder,
	}
	for _, s := range req.Signers {
		p.Signers = append(p.Signers, workflow.NewSigner{Name: s.Name, Email: s.Email, Order: s.Order})
	}
	d, err := h.docs.Create(c.Request.Context(), ownerID, p, h.actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *DocumentHandler) List(c *gin.Context) {
	ownerID, _ := currentUser(c)
	c.JSON(http.StatusOK, gin.H{"documents": h.docs.List(c.Request.Context(), ownerID)})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	docID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	ownerID, _ := currentUser(c)
	d, err := h.docs.Get(c.Request.Context(), ownerID, docID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *DocumentHandler) Finalize(c *gin.Context) {
	docID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	ownerID, _ := currentUser(c)
	d, err := h.docs.Finalize(c.Request.Context(), ownerID, docID, h.actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type placeFieldRequest struct {
	Page       int             `json:"page" binding:"required,min=1"`
	X          float64         `json:"x"`
	Y          float64         `json:"y"`
	Width      float64         `json:"width"`
	Height     float64         `json:"height"`
	Type       model.FieldType `json:"type" binding:"required"`
	AssignedTo uuid.UUID       `json:"assignedTo" binding:"required"`
	Required   bool            `json:"required"`
}

func (h *DocumentHandler) PlaceField(c *gin.Context) {
	docID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req placeFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ownerID, _ := currentUser(c)
	d, err := h.docs.PlaceField(c.Request.Context(), ownerID, docID, workflow.PlaceFieldParams{
		Page:       req.Page,
		X:          req.X,
		Y:          req.Y,
		Width:      req.Width,
		Height:     req.Height,
		Type:       req.Type,
		AssignedTo: req.AssignedTo,
		Required:   req.Required,
	}, h.actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

type moveFieldRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (h *DocumentHandler) MoveField(c *gin.Context) {
	docID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	fieldID, ok := pathUUID(c, "fieldID")
	if !ok {
		return
	}
	var req moveFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ownerID, _ := currentUser(c)
	d, err := h.docs.MoveField(c.Request.Context(), ownerID, docID, fieldID, req.X, req.Y, h.actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *DocumentHandler) DeleteField(c *gin.Context) {
	docID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	fieldID, ok := pathUUID(c, "fieldID")
	if !ok {
		return
	}
	ownerID, _ := currentUser(c)
	d, err := h.docs.DeleteField(c.Request.Context(), ownerID, docID, fieldID, h.actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type captureRequest struct {
	Method model.CaptureMethod `json:"method" binding:"required"`
	Text   string              `json:"text"`
	Font   string              `json:"font"`
	Image  []byte              `json:"image"` // base64 in JSON
}

func (r captureRequest) toCapture() capture.Capture {
	return capture.Capture{Method: r.Method, Text: r.Text, Font: capture.FontStyle(r.Font), Image: r.Image}
}

type submitSignatureRequest struct {
	SignerID uuid.UUID `json:"signerId" binding:"required"`
	captureRequest
}

func (h *DocumentHandler) SubmitSignature(c *gin.Context) {
	docID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	fieldID, ok := pathUUID(c, "fieldID")
	if !ok {
		return
	}
	var req submitSignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ownerID, _ := currentUser(c)
	d, err := h.docs.SubmitSignature(c.Request.Context(), ownerID, docID, fieldID, req.SignerID, req.toCapture(), h.actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *DocumentHandler) Unsign(c *gin.Context) {
	docID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	fieldID, ok := pathUUID(c, "fieldID")
	if !ok {
		return
	}
	ownerID, _ := currentUser(c)
	d, err := h.docs.Unsign(c.Request.Context(), ownerID, docID, fieldID, h.actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type rejectRequest struct {
	SignerID uuid.UUID `json:"signerId" binding:"required"`
	Reason   string    `json:"reason"`
}

func (h *DocumentHandler) Reject(c *gin.Context) {
	docID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ownerID, _ := currentUser(c)
	d, err := h.docs.Reject(c.Request.Context(), ownerID, docID, req.SignerID, req.Reason, h.actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type publicLinkRequest struct {
	SignerID uuid.UUID `json:"signerId" binding:"required"`
}

func (h *DocumentHandler) IssuePublicLink(c *gin.Context) {
	docID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req publicLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ownerID, _ := currentUser(c)
	link, err := h.docs.IssuePublicLink(c.Request.Context(), ownerID, docID, req.SignerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"link": link})
}

func (h *DocumentHandler) AuditTrail(c *gin.Context) {
	docID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	ownerID, _ := currentUser(c)
	entries, err := h.docs.AuditTrail(c.Request.Context(), ownerID, docID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *DocumentHandler) AuditAcross(c *gin.Context) {
	ownerID, _ := currentUser(c)
	c.JSON(http.StatusOK, gin.H{"entries": h.docs.AuditAcross(c.Request.Context(), ownerID)})
}

// Public signing surface.

func (h *DocumentHandler) PublicGet(c *gin.Context) {
	d, signerID, err := h.docs.GetByToken(c.Request.Context(), c.Param("token"), c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": d, "signerId": signerID})
}

type publicSubmitRequest struct {
	FieldID uuid.UUID `json:"fieldId" binding:"required"`
	captureRequest
}

func (h *DocumentHandler) PublicSubmit(c *gin.Context) {
	var req publicSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.docs.SubmitByToken(c.Request.Context(), c.Param("token"), req.FieldID, req.toCapture(), c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type publicRejectRequest struct {
	Reason string `json:"reason"`
}

func (h *DocumentHandler) PublicReject(c *gin.Context) {
	var req publicRejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.docs.RejectByToken(c.Request.Context(), c.Param("token"), req.Reason, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
