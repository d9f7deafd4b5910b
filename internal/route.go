package internal

import (
	"github.com/gofiber/fiber/v2"
	swagger "github.com/gofiber/swagger"

	"wablast/pkg/auth"
	"wablast/pkg/router"

	ctlEvents "wablast/internal/events"
	ctlIndex "wablast/internal/index"
	ctlMessage "wablast/internal/message"
	ctlSession "wablast/internal/session"
)

func Routes(app *fiber.App) {
	// Configure OpenAPI / Swagger
	specURL := router.BaseURL + "/docs/swagger.json"
	swaggerHandler := swagger.New(swagger.Config{
		URL: specURL,
	})

	// Route for Index
	// ---------------------------------------------
	if router.BaseURL == "" {
		app.Get("/", ctlIndex.Index)
	} else {
		app.Get(router.BaseURL, ctlIndex.Index)
		app.Get(router.BaseURL+"/", ctlIndex.Index)
	}

	// Route for OpenAPI / Swagger
	// ---------------------------------------------
	app.Get(router.BaseURL+"/docs/swagger.json", func(c *fiber.Ctx) error {
		return c.SendFile("docs/swagger.json")
	})
	app.Get(router.BaseURL+"/docs/*", swaggerHandler)

	// Session lifecycle routes. /init accepts an optional token so a client
	// can re-initialize under its previous session id.
	app.Post(router.BaseURL+"/init", auth.OptionalSessionAuth(), ctlSession.Init)

	sessionMiddleware := auth.SessionAuth()
	app.Post(router.BaseURL+"/logout", sessionMiddleware, ctlSession.Logout)
	app.Get(router.BaseURL+"/session-status", sessionMiddleware, ctlSession.Status)

	// Message dispatch route
	app.Post(router.BaseURL+"/send-message", sessionMiddleware, ctlMessage.Send)

	// Session event stream (token in query parameter)
	app.Get(router.BaseURL+"/ws", ctlEvents.Upgrade, ctlEvents.Stream)
}
