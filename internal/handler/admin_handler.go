package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/promptgrade-api/internal/service"
	"github.com/noah-isme/promptgrade-api/internal/utils"
)

// AdminHandler exposes operator actions.
type AdminHandler struct {
	submissions service.SubmissionService
	logger      zerolog.Logger
}

// NewAdminHandler builds an admin handler instance.
func NewAdminHandler(submissions service.SubmissionService, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		submissions: submissions,
		logger:      logger.With().Str("component", "admin_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *AdminHandler) Register(router fiber.Router) {
	router.Post("/rescore", h.rescore)
}

func (h *AdminHandler) rescore(c *fiber.Ctx) error {
	summary, err := h.submissions.RescorePending(c.UserContext())
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("rescore failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	requestLogger(h.logger, c).Info().
		Int("processed", summary.Processed).
		Int("finalized", summary.Finalized).
		Msg("pending submissions rescored")
	return utils.SendSuccess(c, "pending submissions rescored", summary)
}
