package router

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// HttpRateLimit applies a process-wide token bucket to all requests. The bucket
// refills at rps with a burst of the same size; rps <= 0 disables limiting.
func HttpRateLimit(rps int) fiber.Handler {
	if rps <= 0 {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	limiter := rate.NewLimiter(rate.Limit(rps), rps)
	return func(c *fiber.Ctx) error {
		if !limiter.Allow() {
			response := Response{
				Status:  false,
				Code:    fiber.StatusTooManyRequests,
				Message: "Too many requests",
				Error:   "Too many requests",
			}
			logError(c, response.Code, response.Message)
			return c.Status(response.Code).JSON(response)
		}
		return c.Next()
	}
}
