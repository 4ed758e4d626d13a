package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SatsFox/app/models"
	"github.com/ManuelReschke/SatsFox/internal/pkg/lnurl"
	"github.com/ManuelReschke/SatsFox/internal/pkg/middleware"
	"github.com/ManuelReschke/SatsFox/internal/pkg/security"
)

const lnurlTimeout = 30 * time.Second

// LnurlController serves the LNURL-auth and LNURL-withdraw endpoints wallets
// talk to.
type LnurlController struct {
	auth     *lnurl.AuthService
	withdraw *lnurl.WithdrawService
	baseURL  string

	tokenSecret string
	tokenTTL    time.Duration
}

// LnurlControllerConfig carries the public base URL and optional session
// token settings.
type LnurlControllerConfig struct {
	BaseURL     string
	TokenSecret string
	TokenTTL    time.Duration
}

// NewLnurlController creates an LNURL controller.
func NewLnurlController(auth *lnurl.AuthService, withdraw *lnurl.WithdrawService, cfg LnurlControllerConfig) *LnurlController {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &LnurlController{
		auth:        auth,
		withdraw:    withdraw,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		tokenSecret: cfg.TokenSecret,
		tokenTTL:    cfg.TokenTTL,
	}
}

func (lc *LnurlController) url(path string) string {
	return lc.baseURL + path
}

// lnurlError is the LUD error body; wallets expect HTTP 200 with it for
// protocol failures.
func lnurlError(c *fiber.Ctx, status int, reason string) error {
	return c.Status(status).JSON(lnurl.Fail(reason))
}

// ============================================================================
// LNURL-AUTH
// ============================================================================

// HandleAuthRequest issues a new login challenge.
func (lc *LnurlController) HandleAuthRequest(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), lnurlTimeout)
	defer cancel()

	session, err := lc.auth.Create(ctx, 0)
	if err != nil {
		log.Errorf("[LNURLAuth] Failed to create session: %v", err)
		return lnurlError(c, fiber.StatusInternalServerError, "internal_error")
	}
	callback, encoded, err := lc.auth.Encode(lc.url("/lnurl/auth/callback"), session)
	if err != nil {
		log.Errorf("[LNURLAuth] Failed to encode callback: %v", err)
		return lnurlError(c, fiber.StatusInternalServerError, "internal_error")
	}

	return c.JSON(fiber.Map{
		"k1":        session.K1,
		"callback":  callback,
		"lnurl":     encoded,
		"expiresAt": session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// HandleAuthCallback verifies a wallet signature.
func (lc *LnurlController) HandleAuthCallback(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), lnurlTimeout)
	defer cancel()

	res, err := lc.auth.Verify(ctx, c.Query("k1"), c.Query("sig"), c.Query("key"))
	if err != nil {
		log.Errorf("[LNURLAuth] Verify failed: %v", err)
		return lnurlError(c, fiber.StatusInternalServerError, "internal_error")
	}
	return c.JSON(res)
}

// HandleAuthStatus reports a session's state. Verified sessions include a
// session token when tokens are configured.
func (lc *LnurlController) HandleAuthStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), lnurlTimeout)
	defer cancel()

	session, err := lc.auth.Status(ctx, c.Params("k1"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return lnurlError(c, fiber.StatusNotFound, lnurl.ReasonUnknownK1)
		}
		log.Errorf("[LNURLAuth] Status lookup failed: %v", err)
		return lnurlError(c, fiber.StatusInternalServerError, "internal_error")
	}

	body := fiber.Map{
		"status":     session.Status,
		"linkingKey": session.LinkingKey,
		"expiresAt":  session.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if session.Status == models.LnurlStatusVerified && lc.tokenSecret != "" {
		token, err := security.GenerateSessionToken(session.LinkingKeyValue(), session.K1, lc.tokenTTL, lc.tokenSecret)
		if err != nil {
			log.Errorf("[LNURLAuth] Failed to mint session token: %v", err)
		} else {
			body["token"] = token
		}
	}
	return c.JSON(body)
}

// HandleAuthMe echoes the linking key of a session token.
func (lc *LnurlController) HandleAuthMe(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"linkingKey": middleware.LinkingKeyFromCtx(c)})
}

// ============================================================================
// LNURL-WITHDRAW
// ============================================================================

type createWithdrawRequest struct {
	Min         int64  `query:"min" json:"min_withdrawable"`
	Max         int64  `query:"max" json:"max_withdrawable"`
	Description string `query:"description" json:"description"`
}

// HandleWithdrawCreate creates a withdraw offer for the authenticated tenant.
func (lc *LnurlController) HandleWithdrawCreate(c *fiber.Ctx) error {
	tenant, ok := middleware.TenantFromCtx(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req createWithdrawRequest
	if err := c.QueryParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid query"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), lnurlTimeout)
	defer cancel()

	session, err := lc.withdraw.Create(ctx, lnurl.CreateWithdrawInput{
		TenantID:        tenant.ID,
		MinWithdrawable: req.Min,
		MaxWithdrawable: req.Max,
		Description:     req.Description,
	})
	if err != nil {
		var verrs validator.ValidationErrors
		switch {
		case errors.Is(err, lnurl.ErrInvalidBounds):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_bounds", "message": "min must not exceed max"})
		case errors.As(err, &verrs):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "fields": validationFields(verrs)})
		default:
			log.Errorf("[LNURLWithdraw] Failed to create offer for tenant %d: %v", tenant.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
		}
	}

	requestURL := lc.url("/lnurl/withdraw/" + session.K1)
	encoded, err := lnurl.Encode(requestURL)
	if err != nil {
		log.Errorf("[LNURLWithdraw] Failed to encode request url: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.JSON(fiber.Map{
		"k1":         session.K1,
		"lnurl":      encoded,
		"requestUrl": requestURL,
		"expiresAt":  session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// HandleWithdrawRequest returns the withdrawRequest body for a pending offer.
func (lc *LnurlController) HandleWithdrawRequest(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), lnurlTimeout)
	defer cancel()

	session, err := lc.withdraw.Get(ctx, c.Params("k1"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return lnurlError(c, fiber.StatusOK, lnurl.ReasonUnknownK1)
		}
		log.Errorf("[LNURLWithdraw] Lookup failed: %v", err)
		return lnurlError(c, fiber.StatusInternalServerError, "internal_error")
	}
	switch session.Status {
	case models.LnurlStatusPending:
		return c.JSON(lc.withdraw.BuildWithdrawRequest(session, lc.url("/lnurl/withdraw/callback")))
	case models.LnurlStatusExpired:
		return lnurlError(c, fiber.StatusOK, lnurl.ReasonExpired)
	default:
		return lnurlError(c, fiber.StatusOK, lnurl.ReasonAlreadyUsed)
	}
}

// HandleWithdrawCallback pays the wallet's invoice.
func (lc *LnurlController) HandleWithdrawCallback(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), lnurlTimeout)
	defer cancel()

	res, err := lc.withdraw.Settle(ctx, c.Query("k1"), c.Query("pr"))
	if err != nil {
		log.Errorf("[LNURLWithdraw] Settle failed: %v", err)
		return lnurlError(c, fiber.StatusInternalServerError, "internal_error")
	}
	return c.JSON(res)
}
