package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"wablast/internal/app"
	typSession "wablast/internal/types"
	"wablast/pkg/auth"
	"wablast/pkg/log"
	"wablast/pkg/router"
	"wablast/pkg/whatsapp"
)

const initializeTimeout = 5 * time.Minute

// resolveSessionID prefers the id bound to a presented token, then an
// explicit session_id in the body, then a fresh random id.
func resolveSessionID(c *fiber.Ctx) string {
	if v := c.Locals("session_id"); v != nil {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}

	var req typSession.RequestInitSession
	if err := c.BodyParser(&req); err == nil {
		if id := strings.TrimSpace(req.SessionID); id != "" {
			return id
		}
	}

	return uuid.NewString()
}

// Init
// @Summary     Initialize a WhatsApp Session
// @Description Register a session and start the QR pairing flow
// @Tags        Session
// @Produce     json
// @Success     200
// @Router      /init [post]
func Init(c *fiber.Ctx) error {
	sessionID := resolveSessionID(c)

	handle, err := app.Registry.Create(sessionID)
	if err != nil {
		if errors.Is(err, whatsapp.ErrSessionExists) {
			return router.ResponseConflict(c, "WhatsApp Session Already Exists")
		}
		return router.ResponseInternalError(c, err.Error())
	}

	token, err := auth.GenerateSessionToken(sessionID)
	if err != nil {
		app.Registry.Destroy(sessionID)
		return router.ResponseInternalError(c, err.Error())
	}

	// Initialization continues in the background. Watchers follow progress
	// over the event stream; a failed session is removed so a later /init
	// can start over.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), initializeTimeout)
		defer cancel()

		if err := handle.Initialize(ctx); err != nil {
			log.SessionOp(sessionID, "init").WithError(err).Error("Failed to start session client")
			app.Registry.Destroy(sessionID)
			return
		}

		if err := handle.WaitReady(ctx); err != nil {
			log.SessionOp(sessionID, "init").WithError(err).Error("Session initialization failed")
			app.Registry.Destroy(sessionID)
			return
		}

		log.SessionOp(sessionID, "init").Info("Session is ready")
	}()

	return router.ResponseSuccessWithData(c, "Success Initialize WhatsApp Session", typSession.ResponseInitSession{
		Status:    "initializing",
		SessionID: sessionID,
		Token:     token,
	})
}

// Logout
// @Summary     Logout a WhatsApp Session
// @Description Log out remotely and remove local session state
// @Tags        Session
// @Produce     json
// @Success     200
// @Router      /logout [post]
func Logout(c *fiber.Ctx) error {
	sessionID := c.Locals("session_id").(string)

	handle := app.Registry.Get(sessionID)
	if handle == nil {
		return router.ResponseBadRequest(c, "No Active WhatsApp Session")
	}

	err := handle.Logout(c.UserContext())
	app.Registry.Destroy(sessionID)

	if err != nil {
		return router.ResponseInternalError(c, err.Error())
	}

	return router.ResponseSuccess(c, "Success Logout WhatsApp Session")
}

// Status
// @Summary     Get WhatsApp Session Status
// @Description Report the coarse connection state of the session
// @Tags        Session
// @Produce     json
// @Success     200
// @Router      /session-status [get]
func Status(c *fiber.Ctx) error {
	sessionID := c.Locals("session_id").(string)

	handle := app.Registry.Get(sessionID)
	if handle == nil {
		return router.ResponseSuccessWithData(c, "Success Get Session Status", typSession.ResponseSessionStatus{
			Status: "disconnected",
		})
	}

	return router.ResponseSuccessWithData(c, "Success Get Session Status", typSession.ResponseSessionStatus{
		Status: handle.State().Coarse(),
	})
}
