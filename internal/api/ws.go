package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dgnsrekt/chartdesk/internal/controller"
	"github.com/dgnsrekt/chartdesk/internal/overlay"
	"github.com/go-chi/chi/v5"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// pointerReply answers every frame received on the pointer socket.
type pointerReply struct {
	Type      string `json:"type"`
	Processed bool   `json:"processed"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
}

// pointerSocket streams pointer and key input for one session. Each text
// frame is a controller.PointerInput; each is answered with a pointerReply.
func pointerSocket(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "session_id")
		if _, err := svc.Info(id); err != nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("pointer socket upgrade failed", "session", id, "error", err)
			return
		}
		defer conn.Close()
		slog.Debug("pointer socket opened", "session", id)

		ctx := r.Context()
		for {
			data, op, err := wsutil.ReadClientData(conn)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					var closed wsutil.ClosedError
					if !errors.As(err, &closed) {
						slog.Debug("pointer socket read failed", "session", id, "error", err)
					}
				}
				return
			}
			if op != ws.OpText {
				continue
			}

			var in controller.PointerInput
			reply := pointerReply{}
			if err := json.Unmarshal(data, &in); err != nil {
				reply.Error, reply.Code = "invalid input frame", overlay.CodeValidation
			} else {
				reply.Type = in.Type
				reply.Processed, err = svc.Pointer(ctx, id, in)
				if err != nil {
					reply.Error = err.Error()
					var coded *overlay.CodedError
					if errors.As(err, &coded) {
						reply.Code, reply.Error = coded.Code, coded.Message
					}
				}
			}

			out, _ := json.Marshal(reply)
			if err := wsutil.WriteServerMessage(conn, ws.OpText, out); err != nil {
				slog.Debug("pointer socket write failed", "session", id, "error", err)
				return
			}
		}
	}
}
