package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/MrWong99/rhymeslikedimes/internal/rhyme"
)

// wsWriteTimeout bounds a single frame write.
const wsWriteTimeout = 5 * time.Second

// wsReadLimit caps an incoming message.
const wsReadLimit = 64 << 10

// Message types exchanged over /ws.
const (
	msgAnalyze     = "analyze"
	msgSuggestion  = "suggestion"
	msgPing        = "ping"
	msgAnalysis    = "analysis"
	msgSuggestions = "suggestions"
	msgPong        = "pong"
	msgError       = "error"
)

// wsMessage is the envelope of every frame in both directions. Clients may
// omit id; the server then assigns one so replies can be correlated.
type wsMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wsErrorData struct {
	Message string `json:"message"`
}

// session is one WebSocket connection. Only the most recent analyze request
// may deliver its result; a newer one cancels the older and bumps gen.
type session struct {
	srv     *Server
	conn    *websocket.Conn
	id      string
	log     *slog.Logger
	limiter *rate.Limiter

	// mu serialises writes and guards gen and cancel.
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc

	wg sync.WaitGroup
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(wsReadLimit)

	ctx := r.Context()
	sess := &session{
		srv:     s,
		conn:    conn,
		id:      uuid.NewString(),
		limiter: rate.NewLimiter(s.wsLimit, s.wsBurst),
	}
	sess.log = s.log.With("session_id", sess.id)

	s.instr.ActiveSessions.Add(ctx, 1)
	defer s.instr.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	sess.log.Info("websocket session opened", "remote", r.RemoteAddr)
	err = sess.run(ctx)
	switch status := websocket.CloseStatus(err); {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		sess.log.Info("websocket session closed")
		conn.Close(websocket.StatusNormalClosure, "")
	case errors.Is(err, context.Canceled):
		sess.log.Info("websocket session ended by server")
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	default:
		sess.log.Warn("websocket session failed", "err", err)
	}
}

// run reads messages until the connection fails or ctx ends. In-flight
// requests are cancelled and awaited before it returns.
func (ss *session) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		ss.wg.Wait()
	}()

	for {
		typ, data, err := ss.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			ss.reply(ctx, msgError, "", wsErrorData{Message: "binary messages are not supported"})
			continue
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			ss.reply(ctx, msgError, "", wsErrorData{Message: "malformed message"})
			continue
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if !ss.limiter.Allow() {
			ss.reply(ctx, msgError, msg.ID, wsErrorData{Message: "rate limit exceeded"})
			continue
		}

		switch msg.Type {
		case msgPing:
			ss.reply(ctx, msgPong, msg.ID, nil)
		case msgAnalyze:
			var req analyzeRequest
			if err := decodeData(msg.Data, &req); err != nil {
				ss.reply(ctx, msgError, msg.ID, wsErrorData{Message: err.Error()})
				continue
			}
			ss.startAnalysis(ctx, msg.ID, req)
		case msgSuggestion:
			var req suggestionRequest
			if err := decodeData(msg.Data, &req); err != nil {
				ss.reply(ctx, msgError, msg.ID, wsErrorData{Message: err.Error()})
				continue
			}
			ss.wg.Add(1)
			go func() {
				defer ss.wg.Done()
				ss.suggest(ctx, msg.ID, req)
			}()
		default:
			ss.reply(ctx, msgError, msg.ID, wsErrorData{Message: "unknown message type " + strconv.Quote(msg.Type)})
		}
	}
}

// startAnalysis supersedes any running analysis and starts a new one.
func (ss *session) startAnalysis(ctx context.Context, id string, req analyzeRequest) {
	jobCtx, jobCancel := context.WithCancel(ctx)

	ss.mu.Lock()
	if ss.cancel != nil {
		ss.cancel()
	}
	ss.gen++
	gen := ss.gen
	ss.cancel = jobCancel
	ss.mu.Unlock()

	ss.wg.Add(1)
	go func() {
		defer ss.wg.Done()
		defer jobCancel()
		ss.analyze(jobCtx, ctx, gen, id, req)
	}()
}

// analyze runs one request. jobCtx is cancelled on supersession; sessCtx
// lives as long as the connection and is used for writing.
func (ss *session) analyze(jobCtx, sessCtx context.Context, gen uint64, id string, req analyzeRequest) {
	res, err := ss.srv.analyzer.Analyze(jobCtx, req.Bar, req.options(ss.srv.defaults()))

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if gen != ss.gen {
		ss.srv.instr.SupersededRequests.Add(sessCtx, 1)
		ss.log.Debug("analysis superseded", "id", id)
		return
	}
	if err != nil {
		if sessCtx.Err() != nil {
			return
		}
		msg := "failed to process request"
		if errors.Is(err, rhyme.ErrInvalidOptions) {
			msg = err.Error()
		} else {
			ss.log.Error("analysis failed", "id", id, "err", err)
		}
		ss.writeLocked(sessCtx, msgError, id, wsErrorData{Message: msg})
		return
	}
	body, err := newAnalyzeResponse(res)
	if err != nil {
		ss.log.Error("encode analysis", "id", id, "err", err)
		ss.writeLocked(sessCtx, msgError, id, wsErrorData{Message: "failed to process request"})
		return
	}
	ss.writeLocked(sessCtx, msgAnalysis, id, body)
}

func (ss *session) suggest(ctx context.Context, id string, req suggestionRequest) {
	resp, err := ss.srv.suggest(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		msg := "failed to process request"
		if errors.Is(err, rhyme.ErrInvalidOptions) {
			msg = err.Error()
		} else {
			ss.log.Error("suggestion failed", "id", id, "err", err)
		}
		ss.reply(ctx, msgError, id, wsErrorData{Message: msg})
		return
	}
	ss.reply(ctx, msgSuggestions, id, resp)
}

// reply writes one message.
func (ss *session) reply(ctx context.Context, typ, id string, data any) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.writeLocked(ctx, typ, id, data)
}

// writeLocked writes one message; ss.mu must be held.
func (ss *session) writeLocked(ctx context.Context, typ, id string, data any) {
	msg := wsMessage{Type: typ, ID: id}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			ss.log.Error("encode websocket message", "type", typ, "err", err)
			return
		}
		msg.Data = raw
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		ss.log.Error("encode websocket message", "type", typ, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := ss.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		ss.log.Debug("websocket write failed", "type", typ, "err", err)
	}
}

// decodeData decodes an optional message payload.
func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.New("invalid message data")
	}
	return nil
}
