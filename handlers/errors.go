package handlers

import (
	"referral-engine/services"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{services.ErrInvalidCode, fiber.StatusBadRequest, "INVALID_CODE"},
	{services.ErrSelfReferral, fiber.StatusBadRequest, "SELF_REFERRAL"},
	{services.ErrMissingIdentity, fiber.StatusBadRequest, "MISSING_IDENTITY"},
	{services.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND"},
	{services.ErrAlreadyClaimed, fiber.StatusConflict, "ALREADY_CLAIMED"},
	{services.ErrRewardNotClaimable, fiber.StatusUnprocessableEntity, "NOT_CLAIMABLE"},
	{services.ErrRewardExpired, fiber.StatusGone, "REWARD_EXPIRED"},
	{services.ErrInvalidToken, fiber.StatusNotFound, "INVALID_TOKEN"},
	{services.ErrExpiredToken, fiber.StatusGone, "EXPIRED_TOKEN"},
}

// respondError maps engine errors to status codes. Anything unmapped is a
// storage failure and is logged with its cause.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return c.Status(m.status).JSON(fiber.Map{"error": m.target.Error(), "code": m.code})
		}
	}
	log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error", "code": "INTERNAL"})
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "invalid request body",
		"code":    "VALIDATION",
		"details": err.Error(),
	})
}
