package handlers

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/srgchrksv/docpodcaster/models"
	"github.com/srgchrksv/docpodcaster/services"
)

const writeWait = 10 * time.Second

// streamEvent is one message sent to a streaming client.
type streamEvent struct {
	Type    string                 `json:"type"` // progress, result or error
	Line    int                    `json:"line,omitempty"`
	Lines   int                    `json:"lines,omitempty"`
	Segment *models.PodcastSegment `json:"segment,omitempty"`
	Result  *podcastResponse       `json:"result,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Stream generates a podcast over a websocket. The first text message is the
// source document; a progress event follows every rendered line and the
// connection ends with a result or error event. Closing the socket cancels
// generation.
func (h *Handler) Stream(c *gin.Context) {
	documentID := c.Param("documentId")
	log := h.logger(c).With("document_id", documentID)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	_, message, err := conn.ReadMessage()
	if err != nil {
		log.Debug("client left before sending text", "error", err)
		return
	}
	text := string(message)
	if strings.TrimSpace(text) == "" {
		h.send(conn, log, streamEvent{Type: "error", Error: "source text is empty"})
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		// Nothing else is expected from the client; a read error means it is gone.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	if meta, ok := h.cached(ctx, log, documentID); ok {
		res := newPodcastResponse(meta, true)
		h.send(conn, log, streamEvent{Type: "result", Result: &res})
		return
	}

	meta, err := h.generate(ctx, log, documentID, text, func(p services.Progress) {
		seg := p.Segment
		h.send(conn, log, streamEvent{Type: "progress", Line: p.Line, Lines: p.Lines, Segment: &seg})
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		_, msg := errorStatus(err)
		h.send(conn, log, streamEvent{Type: "error", Error: msg})
		return
	}

	res := newPodcastResponse(meta, false)
	h.send(conn, log, streamEvent{Type: "result", Result: &res})
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (h *Handler) send(conn *websocket.Conn, log *slog.Logger, ev streamEvent) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(ev); err != nil {
		log.Debug("websocket write failed", "type", ev.Type, "error", err)
	}
}
