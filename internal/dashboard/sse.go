package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/council/internal/council"
	"go.uber.org/zap"
)

// sseBuffer bounds events queued for a slow client.
const sseBuffer = 64

// handleEvents streams controller events for one session. The first event
// is a snapshot of the current state; after that every later message, stage
// change and reset is forwarded as it happens, with periodic heartbeats.
func (s *Server) handleEvents(c *gin.Context) {
	ctrl := controller(c)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// Observers run under the controller lock; never block there.
	events := make(chan council.Event, sseBuffer)
	snap, unsubscribe := ctrl.SnapshotAndSubscribe(func(e council.Event) {
		select {
		case events <- e:
		default:
			s.logger.Warn("sse client too slow, dropping event", zap.String("session", c.Param("id")))
		}
	})
	defer unsubscribe()

	writeSSE(c.Writer, "snapshot", snap)
	c.Writer.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case e := <-events:
			writeSSE(c.Writer, string(e.Kind), e)
			c.Writer.Flush()
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
