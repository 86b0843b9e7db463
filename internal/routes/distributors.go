package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/docuport/portal-api/internal/distribution"
	"github.com/docuport/portal-api/internal/middleware"
	"github.com/docuport/portal-api/internal/models"
	apperrors "github.com/docuport/portal-api/pkg/errors"
)

// DistributorHandler handles distributor account management
type DistributorHandler struct {
	distribution *distribution.Service
	logger       *logrus.Logger
}

// NewDistributorHandler creates a new distributor handler
func NewDistributorHandler(distributionService *distribution.Service, logger *logrus.Logger) *DistributorHandler {
	return &DistributorHandler{
		distribution: distributionService,
		logger:       logger,
	}
}

// Create provisions a distributor account
// @Summary Create distributor
// @Description Provision a distributor account with login credentials
// @Tags Distributors
// @Accept json
// @Produce json
// @Param request body models.CreateDistributorRequest true "Distributor details"
// @Success 201 {object} models.Distributor "Created"
// @Failure 409 {object} errors.ErrorResponse "Email already registered"
// @Router /api/v1/distributors [post]
func (h *DistributorHandler) Create(c *fiber.Ctx) error {
	var req models.CreateDistributorRequest
	if err := c.BodyParser(&req); err != nil {
		return middleware.RespondError(c, apperrors.NewAppError(
			apperrors.CodeBadRequest, "Invalid request body", err))
	}

	distributor, err := h.distribution.ProvisionDistributor(c.Context(), req)
	if err != nil {
		return middleware.RespondError(c, err)
	}

	h.logger.WithFields(logrus.Fields{
		"distributor_id": distributor.DistributorID,
		"company":        distributor.CompanyName,
	}).Info("Distributor provisioned")

	return c.Status(fiber.StatusCreated).JSON(distributor)
}

// List returns all distributor accounts
// @Summary List distributors
// @Tags Distributors
// @Produce json
// @Success 200 {array} models.Distributor "Distributors"
// @Router /api/v1/distributors [get]
func (h *DistributorHandler) List(c *fiber.Ctx) error {
	distributors, err := h.distribution.ListDistributors(c.Context())
	if err != nil {
		return middleware.RespondError(c, err)
	}

	return c.JSON(fiber.Map{
		"distributors": distributors,
		"count":        len(distributors),
	})
}

type setStatusRequest struct {
	Status models.AccountStatus `json:"status"`
}

// SetStatus activates or deactivates a distributor account
// @Summary Set distributor status
// @Description Change account status; deactivation takes effect on the next login
// @Tags Distributors
// @Accept json
// @Param email path string true "Distributor email"
// @Param request body setStatusRequest true "New status"
// @Success 204 "Updated"
// @Failure 404 {object} errors.ErrorResponse "Unknown distributor"
// @Router /api/v1/distributors/{email}/status [put]
func (h *DistributorHandler) SetStatus(c *fiber.Ctx) error {
	var req setStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return middleware.RespondError(c, apperrors.NewAppError(
			apperrors.CodeBadRequest, "Invalid request body", err))
	}

	if req.Status != models.StatusActive && req.Status != models.StatusInactive {
		return middleware.RespondError(c, apperrors.NewAppError(
			apperrors.CodeBadRequest, "Status must be ACTIVE or INACTIVE", nil))
	}

	if err := h.distribution.SetDistributorStatus(c.Context(), c.Params("email"), req.Status); err != nil {
		return middleware.RespondError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
