package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/wuweiapp/wuwei/internal/chat"
	"github.com/wuweiapp/wuwei/internal/llm"
	"github.com/wuweiapp/wuwei/internal/tools"
)

const (
	// historyWindow is how many transcript messages are replayed into
	// the loop as context for each new message.
	historyWindow = 20

	timeoutNotice = "Sorry, the request timed out. Please try again."
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Token auth happens before the upgrade; origin checking is left
	// to the deployment's reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inboundFrame is a client-to-server socket message.
type inboundFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// outboundFrame is a server-to-client socket message.
type outboundFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// handleChatSocket runs one conversation session over a WebSocket.
// Each inbound {type:"message"} frame produces exactly one
// {type:"complete"} frame; anything else inbound is dropped without a
// reply. Messages on one connection are processed one at a time, in
// order.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "user", u.ID)
		return
	}
	defer conn.Close()

	s.logger.Info("chat session opened", "user", u.ID)
	defer s.logger.Info("chat session closed", "user", u.ID)

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("chat read error", "error", err, "user", u.ID)
			}
			return
		}

		// Whitespace-only content is as empty as no content; the
		// trimmed text is what gets processed and persisted.
		content := strings.TrimSpace(frame.Content)
		if frame.Type != "message" || content == "" {
			continue
		}

		reply := s.processMessage(r.Context(), identityFrom(r), content)
		if err := conn.WriteJSON(outboundFrame{Type: "complete", Content: reply}); err != nil {
			s.logger.Debug("chat write error", "error", err, "user", u.ID)
			return
		}
	}
}

// processMessage persists the user's message, runs the agent under the
// configured deadline, persists the outcome, and returns the text to
// emit. Timeouts and failures become notices; they are persisted and
// emitted exactly like a normal reply.
func (s *Server) processMessage(parent context.Context, id tools.Identity, text string) string {
	history := s.loadHistory(id)

	if _, err := s.stores.Chat.Append(id.UserID, "user", text); err != nil {
		s.logger.Error("persist user message failed", "error", err, "user", id.UserID)
		return fmt.Sprintf("Sorry, something went wrong: %v", err)
	}

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	type outcome struct {
		reply string
		err   error
	}
	// Buffered so a result landing after the deadline doesn't leak the
	// goroutine. Late results are discarded, never persisted.
	done := make(chan outcome, 1)
	go func() {
		reply, err := s.loop.Run(ctx, id, history, text)
		done <- outcome{reply: reply, err: err}
	}()

	var reply string
	select {
	case <-ctx.Done():
		s.logger.Warn("agent run timed out", "user", id.UserID, "timeout", s.timeout)
		reply = timeoutNotice
	case out := <-done:
		if out.err != nil {
			s.logger.Error("agent run failed", "error", out.err, "user", id.UserID)
			reply = fmt.Sprintf("Sorry, something went wrong: %v", out.err)
		} else {
			reply = out.reply
		}
	}

	if _, err := s.stores.Chat.Append(id.UserID, "assistant", reply); err != nil {
		s.logger.Error("persist reply failed", "error", err, "user", id.UserID)
	}
	return reply
}

// loadHistory converts the recent transcript into loop messages.
func (s *Server) loadHistory(id tools.Identity) []llm.Message {
	recent, err := s.stores.Chat.ListRecent(id.UserID, historyWindow)
	if err != nil {
		s.logger.Warn("history load failed", "error", err, "user", id.UserID)
		return nil
	}

	history := make([]llm.Message, 0, len(recent))
	for _, m := range recent {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	return history
}

// handleChatHistory returns the recent transcript over plain HTTP, for
// rendering a conversation on page load.
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 50)

	msgs, err := s.stores.Chat.ListRecent(userFrom(r).ID, limit)
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "history query failed")
		return
	}
	if msgs == nil {
		msgs = []*chat.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"messages": msgs, "count": len(msgs)}, s.logger)
}
