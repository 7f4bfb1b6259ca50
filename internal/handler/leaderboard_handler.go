package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/promptgrade-api/internal/service"
	"github.com/noah-isme/promptgrade-api/internal/utils"
)

const maxLeaderboardLimit = 100

// LeaderboardHandler serves standings.
type LeaderboardHandler struct {
	service service.LeaderboardService
	logger  zerolog.Logger
}

// NewLeaderboardHandler builds a leaderboard handler instance.
func NewLeaderboardHandler(service service.LeaderboardService, logger zerolog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		service: service,
		logger:  logger.With().Str("component", "leaderboard_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *LeaderboardHandler) Register(router fiber.Router) {
	router.Get("", h.quick)
	router.Get("/final", h.final)
	router.Get("/top3", h.topThree)
}

func (h *LeaderboardHandler) quick(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil || limit < 0 || limit > maxLeaderboardLimit {
		return utils.SendError(c, fiber.StatusBadRequest, "limit must be between 1 and 100")
	}

	entries, err := h.service.Quick(c.UserContext(), limit)
	if err != nil {
		return h.internalError(c, err)
	}
	return utils.SendSuccess(c, "leaderboard retrieved", entries)
}

func (h *LeaderboardHandler) final(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil || limit < 0 || limit > maxLeaderboardLimit {
		return utils.SendError(c, fiber.StatusBadRequest, "limit must be between 1 and 100")
	}

	entries, err := h.service.Final(c.UserContext(), limit)
	if err != nil {
		return h.internalError(c, err)
	}
	return utils.SendSuccess(c, "final standings retrieved", entries)
}

func (h *LeaderboardHandler) topThree(c *fiber.Ctx) error {
	entries, err := h.service.TopThree(c.UserContext())
	if err != nil {
		return h.internalError(c, err)
	}
	return utils.SendSuccess(c, "top three retrieved", entries)
}

func (h *LeaderboardHandler) internalError(c *fiber.Ctx, err error) error {
	requestLogger(h.logger, c).Error().Err(err).Msg("failed to load leaderboard")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
