package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/docuport/portal-api/internal/distribution"
	"github.com/docuport/portal-api/internal/middleware"
	"github.com/docuport/portal-api/internal/models"
	apperrors "github.com/docuport/portal-api/pkg/errors"
)

// DocumentHandler handles document upload, listing and downloads
type DocumentHandler struct {
	distribution *distribution.Service
	logger       *logrus.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(distributionService *distribution.Service, logger *logrus.Logger) *DocumentHandler {
	return &DocumentHandler{
		distribution: distributionService,
		logger:       logger,
	}
}

// Create registers a document and assigns it to a distribution group
// @Summary Create document
// @Description Register a document and fan out notifications to the assigned group
// @Tags Documents
// @Accept json
// @Produce json
// @Param request body models.CreateDocumentRequest true "Document and assignment"
// @Success 201 {object} models.Document "Created"
// @Failure 400 {object} errors.ErrorResponse "Invalid group or targets"
// @Failure 403 {object} errors.ErrorResponse "Admin role required"
// @Router /api/v1/documents [post]
func (h *DocumentHandler) Create(c *fiber.Ctx) error {
	identity := middleware.Identity(c)
	if identity == nil {
		return middleware.RespondError(c, apperrors.Unauthenticated("Authentication required"))
	}

	var req models.CreateDocumentRequest
	if err := c.BodyParser(&req); err != nil {
		return middleware.RespondError(c, apperrors.NewAppError(
			apperrors.CodeBadRequest, "Invalid request body", err))
	}

	document, err := h.distribution.Assign(c.Context(), identity.UserID, req)
	if err != nil {
		return middleware.RespondError(c, err)
	}

	h.logger.WithFields(logrus.Fields{
		"document_id": document.DocumentID,
		"group":       req.Group,
		"admin_id":    identity.UserID,
	}).Info("Document assigned")

	return c.Status(fiber.StatusCreated).JSON(document)
}

// List returns the documents visible to the caller
// @Summary List documents
// @Description Admins see every document; distributors see only their assignments
// @Tags Documents
// @Produce json
// @Success 200 {array} models.DocumentView "Visible documents"
// @Router /api/v1/documents [get]
func (h *DocumentHandler) List(c *fiber.Ctx) error {
	identity := middleware.Identity(c)

	views, err := h.distribution.ListDocuments(c.Context(), identity)
	if err != nil {
		return middleware.RespondError(c, err)
	}

	return c.JSON(fiber.Map{
		"documents": views,
		"count":     len(views),
	})
}

// Get returns a single document if the caller may see it
// @Summary Get document
// @Description Fetch one document; distributors outside the assignment get 403
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} models.DocumentView "Document"
// @Failure 404 {object} errors.ErrorResponse "Not found or not assigned"
// @Router /api/v1/documents/{id} [get]
func (h *DocumentHandler) Get(c *fiber.Ctx) error {
	identity := middleware.Identity(c)

	view, err := h.distribution.GetDocument(c.Context(), identity, c.Params("id"))
	if err != nil {
		return middleware.RespondError(c, err)
	}

	return c.JSON(view)
}

// Download authorizes a file download and fires the distribution transition
// @Summary Download document
// @Description Authorize the download; a distributor's first open marks the assignment DONE
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} models.DownloadGrant "Download grant"
// @Failure 403 {object} errors.ErrorResponse "Not assigned to this document"
// @Failure 404 {object} errors.ErrorResponse "Not found"
// @Router /api/v1/documents/{id}/download [get]
func (h *DocumentHandler) Download(c *fiber.Ctx) error {
	identity := middleware.Identity(c)

	grant, err := h.distribution.AuthorizeDownload(c.Context(), identity, c.Params("id"))
	if err != nil {
		return middleware.RespondError(c, err)
	}

	h.logger.WithFields(logrus.Fields{
		"document_id": grant.DocumentID,
		"user_id":     identity.UserID,
		"status":      grant.Status,
	}).Info("Download authorized")

	return c.JSON(grant)
}
