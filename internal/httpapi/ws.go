package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"rkllmd/pkg/types"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The daemon binds locally and auth is out of scope here, so cross-origin
	// browser clients are accepted.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// wsLineWriter adapts the NDJSON stream to websocket framing: every complete
// line becomes one text message.
type wsLineWriter struct {
	conn  *websocket.Conn
	buf   []byte
	lines int
}

func (ww *wsLineWriter) Write(p []byte) (int, error) {
	ww.buf = append(ww.buf, p...)
	for {
		idx := indexByte(ww.buf, '\n')
		if idx < 0 {
			break
		}
		line := ww.buf[:idx]
		if len(line) > 0 {
			_ = ww.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := ww.conn.WriteMessage(websocket.TextMessage, line); err != nil {
				return 0, err
			}
			ww.lines++
		}
		ww.buf = ww.buf[idx+1:]
	}
	return len(p), nil
}

// serveGenerateWS streams token events over a websocket. The client sends a
// single JSON request message, then receives one text message per token event
// followed by a normal close.
func serveGenerateWS(svc Service, w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	var req types.InferRequest
	if _, msg, err := conn.ReadMessage(); err != nil {
		return
	} else if err := json.Unmarshal(msg, &req); err != nil {
		writeWSError(conn, http.StatusBadRequest, "invalid JSON request")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeWSError(conn, http.StatusBadRequest, "prompt is required")
		return
	}

	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	// Watch for the client going away so an abandoned stream cancels the
	// generation instead of running to completion.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	writer := &wsLineWriter{conn: conn}
	inferErr := svc.Infer(ctx, req, writer, nil)
	countStreamedTokens("websocket", writer.lines)
	if inferErr != nil {
		if ctx.Err() != nil {
			return
		}
		writeWSError(conn, statusForError(inferErr), inferErr.Error())
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// writeWSError sends a terminal error event and closes the stream.
func writeWSError(conn *websocket.Conn, code int, msg string) {
	b, err := json.Marshal(types.ErrorResponse{Error: msg, Code: code})
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteMessage(websocket.TextMessage, b)
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseInternalServerErr, ""))
}
