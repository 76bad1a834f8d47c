package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// FiberConfig reads the client address from X-Forwarded-For, since every
// request reaches the engine through the gateway. With trustedProxies set,
// only those peers may supply the header.
func FiberConfig(trustedProxies []string) fiber.Config {
	return fiber.Config{
		ReadTimeout:             10 * time.Second,
		WriteTimeout:            10 * time.Second,
		ProxyHeader:             fiber.HeaderXForwardedFor,
		EnableIPValidation:      true,
		EnableTrustedProxyCheck: len(trustedProxies) > 0,
		TrustedProxies:          trustedProxies,
	}
}
