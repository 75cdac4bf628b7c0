package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"astrixo/admin/internal/community"
	"astrixo/admin/internal/support"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 50 * time.Second
)

var errUnknownAction = &DomainError{
	Status:  http.StatusBadRequest,
	Code:    "UNKNOWN_ACTION",
	Message: "Unknown action",
}

// streamCommand is a client request on a stream socket.
type streamCommand struct {
	ID        string `json:"id,omitempty"`
	Action    string `json:"action"`
	TicketID  string `json:"ticketId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Text      string `json:"text,omitempty"`
	Status    string `json:"status,omitempty"`
	Filter    string `json:"filter,omitempty"`
}

type streamAck struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type ticketFrame struct {
	Type string `json:"type"`
	support.View
}

type roomFrame struct {
	Type     string             `json:"type"`
	Room     community.Category `json:"room"`
	Messages []messageView      `json:"messages"`
	State    string             `json:"state"`
	Sending  bool               `json:"sending"`
	Error    string             `json:"error,omitempty"`
}

type commandHandler func(ctx context.Context, cmd streamCommand) (any, error)

// streamHandlers route commands. Local commands change per-connection state
// and run on the stream goroutine in arrival order, so a later command always
// sees their effect. Everything else runs in its own goroutine.
type streamHandlers struct {
	local  map[string]commandHandler
	remote commandHandler
}

func (s *HTTPServer) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return s.corsOrigin == "*" || origin == "" || origin == s.corsOrigin
		},
	}
}

func (s *HTTPServer) handleTicketStream(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("app: ticket stream upgrade: %v", err)
		return
	}
	defer conn.Close()

	inbox := support.NewInbox(s.service.support)
	defer inbox.Close()

	render := func() any {
		return ticketFrame{Type: "tickets", View: inbox.View()}
	}
	handlers := streamHandlers{
		local: map[string]commandHandler{
			"open": func(_ context.Context, cmd streamCommand) (any, error) {
				return inbox.Open(cmd.TicketID)
			},
			"deselect": func(context.Context, streamCommand) (any, error) {
				inbox.Deselect()
				return nil, nil
			},
			"filter": func(_ context.Context, cmd streamCommand) (any, error) {
				return nil, inbox.SetFilter(cmd.Filter)
			},
		},
		remote: func(ctx context.Context, cmd streamCommand) (any, error) {
			switch cmd.Action {
			case "respond":
				return inbox.Respond(ctx, cmd.TicketID, cmd.Text)
			case "status":
				return nil, inbox.SetStatus(ctx, cmd.TicketID, support.Status(cmd.Status))
			case "delete":
				return nil, inbox.Delete(ctx, cmd.TicketID)
			default:
				return nil, errUnknownAction
			}
		},
	}
	s.runStream(r.Context(), conn, session, inbox.Changes(), render, handlers)
}

func (s *HTTPServer) handleRoomStream(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	categoryID := mux.Vars(r)["categoryId"]
	author := s.service.Author(r.Context(), session)
	category := s.service.community.Category(r.Context(), categoryID)

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("app: room stream upgrade: %v", err)
		return
	}
	defer conn.Close()

	room := s.service.community.OpenRoom(categoryID)
	defer room.Close()
	composer := room.NewComposer(author)

	render := func() any {
		snap := room.Snapshot()
		frame := roomFrame{
			Type:     "messages",
			Room:     category,
			Messages: messageViews(snap.Items),
			State:    snap.State.String(),
			Sending:  composer.Sending(),
		}
		if snap.Err != nil {
			frame.Error = "Erro ao carregar mensagens."
		}
		return frame
	}
	handle := func(ctx context.Context, cmd streamCommand) (any, error) {
		switch cmd.Action {
		case "send":
			msg, err := composer.Send(ctx, cmd.Text)
			if err != nil {
				return nil, err
			}
			return messageView{Message: msg, DisplayText: msg.DisplayText()}, nil
		case "edit":
			changed, err := s.service.community.Edit(ctx, categoryID, cmd.MessageID, author, cmd.Text)
			return map[string]any{"changed": changed}, err
		case "delete":
			changed, err := s.service.community.SoftDelete(ctx, categoryID, cmd.MessageID, author)
			return map[string]any{"changed": changed}, err
		default:
			return nil, errUnknownAction
		}
	}
	s.runStream(r.Context(), conn, session, room.Changes(), render, streamHandlers{remote: handle})
}

// runStream pushes render() first and after every change. Local commands run
// inline; the rest run in their own goroutine so a slow write does not stall
// the feed. It
// returns when the client goes away, the session ends or expires, or
// changes is closed. Every write happens on this goroutine.
func (s *HTTPServer) runStream(parent context.Context, conn *websocket.Conn, session Session, changes <-chan struct{}, render func() any, handlers streamHandlers) {
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	ended := make(chan struct{})
	var endOnce sync.Once
	stopWatch := s.service.OnSessionEnd(session, func() {
		endOnce.Do(func() { close(ended) })
	})
	defer stopWatch()

	expiry := time.NewTimer(time.Until(session.ExpiresAt))
	defer expiry.Stop()
	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	commands := make(chan streamCommand)
	replies := make(chan streamAck)
	readErr := make(chan error, 1)

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go readCommands(ctx, conn, commands, replies, readErr)

	if err := writeFrame(conn, render()); err != nil {
		return
	}
	for {
		select {
		case <-parent.Done():
			closeStream(conn, websocket.CloseGoingAway, "server shutting down")
			return
		case <-ended:
			closeStream(conn, websocket.ClosePolicyViolation, "session ended")
			return
		case <-expiry.C:
			closeStream(conn, websocket.ClosePolicyViolation, "session expired")
			return
		case err := <-readErr:
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("app: stream read: %v", err)
			}
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			if err := writeFrame(conn, render()); err != nil {
				return
			}
		case cmd := <-commands:
			if local, ok := handlers.local[cmd.Action]; ok {
				data, err := local(ctx, cmd)
				if err := writeFrame(conn, commandAck(cmd, data, err)); err != nil {
					return
				}
				// The selection and filter change without a feed signal.
				if err := writeFrame(conn, render()); err != nil {
					return
				}
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				data, err := handlers.remote(ctx, cmd)
				select {
				case replies <- commandAck(cmd, data, err):
				case <-ctx.Done():
				}
			}()
		case ack := <-replies:
			if err := writeFrame(conn, ack); err != nil {
				return
			}
			if err := writeFrame(conn, render()); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

func commandAck(cmd streamCommand, data any, err error) streamAck {
	ack := streamAck{Type: "ack", ID: cmd.ID, Action: cmd.Action, OK: err == nil, Data: data}
	if err != nil {
		_, ack.Code, ack.Error, _ = mapError(err)
		ack.Data = nil
	}
	return ack
}

// readCommands decodes client frames until the socket fails. Malformed
// frames are answered with an error ack and do not end the stream.
func readCommands(ctx context.Context, conn *websocket.Conn, commands chan<- streamCommand, replies chan<- streamAck, readErr chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		var cmd streamCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			select {
			case replies <- streamAck{Type: "ack", Code: "INVALID_BODY", Error: "invalid JSON body"}:
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case commands <- cmd:
		case <-ctx.Done():
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, frame any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(frame); err != nil {
		if !errors.Is(err, websocket.ErrCloseSent) {
			log.Printf("app: stream write: %v", err)
		}
		return err
	}
	return nil
}

func closeStream(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteWait))
}
