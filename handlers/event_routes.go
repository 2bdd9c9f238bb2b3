package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/drakejin/cday2025-minigame-sub000/services"
)

const sseKeepAlive = 15 * time.Second

// SetupEventRoutes streams change signals over SSE. Clients refetch the
// resource named by the event type.
func SetupEventRoutes(app fiber.Router, hub *services.EventHub) {
	app.Get("/events/stream", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no") // nginx

		events, unsubscribe := hub.Subscribe(32)

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer unsubscribe()

			ticker := time.NewTicker(sseKeepAlive)
			defer ticker.Stop()

			// initial keepalive so proxies open the stream
			_, _ = w.WriteString(":\n\n")
			if err := w.Flush(); err != nil {
				return
			}

			for {
				select {
				case evt, ok := <-events:
					if !ok {
						return
					}
					payload, err := json.Marshal(evt)
					if err != nil {
						continue
					}
					fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload)
				case <-ticker.C:
					_, _ = w.WriteString(":\n\n")
				}
				// a flush error means the client went away
				if err := w.Flush(); err != nil {
					return
				}
			}
		})
		return nil
	})
}
