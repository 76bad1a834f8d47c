// handlers/referral_routes.go
package handlers

import (
	"net/url"

	"referral-engine/middleware"
	"referral-engine/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ReferralAPI bundles the engine services behind the HTTP surface.
type ReferralAPI struct {
	Codes        *services.ReferralCodeRegistry
	Ledger       *services.ReferralLedger
	Clicks       *services.ClickValidator
	Claims       *services.ClaimTokenService
	Dashboard    *services.DashboardService
	ShareBaseURL string
	Log          *zap.Logger

	validate *validator.Validate
}

type createReferralRequest struct {
	Code      string `json:"code" validate:"required,max=16"`
	NewUserID string `json:"new_user_id" validate:"required"`
}

type referredUserRequest struct {
	ReferredUserID string `json:"referred_user_id" validate:"required"`
}

type clickRequest struct {
	ReferredProviderID string `json:"referred_provider_id" validate:"required"`
	CustomerUserID     string `json:"customer_user_id" validate:"omitempty,max=128"`
	VisitorID          string `json:"visitor_id" validate:"omitempty,max=128"`
}

type redeemRequest struct {
	Token string `json:"token" validate:"required,hexadecimal"`
}

func SetupReferralRoutes(app *fiber.App, api *ReferralAPI) {
	api.validate = validator.New()

	// 🔓 Service-to-service routes (gateway auth only)
	app.Post("/referrals", api.createReferral)
	app.Post("/referrals/activate", api.activateReferral)
	app.Post("/referrals/deactivate", api.deactivateReferral)
	app.Post("/clicks", api.recordClick)

	// 🔐 Caller-scoped routes
	secured := app.Group("/s", middleware.UserContextMiddleware(api.Log))
	secured.Get("/referrals/code", api.getCode)
	secured.Get("/referrals/dashboard", api.getDashboard)
	secured.Post("/rewards/:id/claim-token", api.issueClaimToken)
	secured.Post("/rewards/redeem", api.redeem)
}

func (api *ReferralAPI) parse(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return err
	}
	return api.validate.Struct(out)
}

func (api *ReferralAPI) getCode(c *fiber.Ctx) error {
	code, err := api.Codes.GetOrCreate(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, api.Log, err)
	}
	return c.JSON(fiber.Map{
		"code":           code.Code,
		"shareable_link": api.ShareBaseURL + "/join?ref=" + url.QueryEscape(code.Code),
	})
}

func (api *ReferralAPI) createReferral(c *fiber.Ctx) error {
	var req createReferralRequest
	if err := api.parse(c, &req); err != nil {
		return badRequest(c, err)
	}
	id, err := api.Ledger.Create(c.UserContext(), req.Code, req.NewUserID)
	if err != nil {
		return respondError(c, api.Log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"referral_id": id})
}

func (api *ReferralAPI) activateReferral(c *fiber.Ctx) error {
	var req referredUserRequest
	if err := api.parse(c, &req); err != nil {
		return badRequest(c, err)
	}
	n, err := api.Ledger.Activate(c.UserContext(), req.ReferredUserID)
	if err != nil {
		return respondError(c, api.Log, err)
	}
	return c.JSON(fiber.Map{"activated": n})
}

func (api *ReferralAPI) deactivateReferral(c *fiber.Ctx) error {
	var req referredUserRequest
	if err := api.parse(c, &req); err != nil {
		return badRequest(c, err)
	}
	n, err := api.Ledger.Deactivate(c.UserContext(), req.ReferredUserID)
	if err != nil {
		return respondError(c, api.Log, err)
	}
	return c.JSON(fiber.Map{"deactivated": n})
}

// recordClick is best effort: storage failures never break the profile page,
// they only report tracked=false.
func (api *ReferralAPI) recordClick(c *fiber.Ctx) error {
	var req clickRequest
	if err := api.parse(c, &req); err != nil {
		return badRequest(c, err)
	}
	valid, err := api.Clicks.RecordClick(c.UserContext(), services.ClickInput{
		ReferredUserID: req.ReferredProviderID,
		CustomerUserID: req.CustomerUserID,
		VisitorID:      req.VisitorID,
		IP:             c.IP(),
		UserAgent:      c.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		if errors.Is(err, services.ErrMissingIdentity) {
			return respondError(c, api.Log, err)
		}
		api.Log.Warn("click tracking failed", zap.String("referred", req.ReferredProviderID), zap.Error(err))
		return c.JSON(fiber.Map{"tracked": false})
	}
	return c.JSON(fiber.Map{"tracked": valid})
}

func (api *ReferralAPI) getDashboard(c *fiber.Ctx) error {
	view, err := api.Dashboard.Dashboard(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, api.Log, err)
	}
	return c.JSON(view)
}

func (api *ReferralAPI) issueClaimToken(c *fiber.Ctx) error {
	token, err := api.Claims.Issue(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return respondError(c, api.Log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"token":      token.Token,
		"reward_id":  token.RewardID,
		"expires_at": token.ExpiresAt,
	})
}

// redeem is keyed by the token alone: possession of the token is the authorisation.
func (api *ReferralAPI) redeem(c *fiber.Ctx) error {
	var req redeemRequest
	if err := api.parse(c, &req); err != nil {
		return badRequest(c, err)
	}
	grant, err := api.Claims.Redeem(c.UserContext(), req.Token)
	if err != nil {
		return respondError(c, api.Log, err)
	}
	return c.JSON(fiber.Map{"message": "Reward redeemed successfully", "credit": grant})
}
