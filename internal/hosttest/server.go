package hosttest

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"payengine/internal/backend"
)

// SocketPath is where Handler accepts socket connections.
const SocketPath = "/socket"

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// Handler serves the pt-token endpoint and the socket.
func (h *Host) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get(backend.PTTokenPath, h.servePTToken)
	r.Get(SocketPath, h.serveSocket)
	return r
}

func (h *Host) servePTToken(w http.ResponseWriter, r *http.Request) {
	tok, err := h.FetchPTToken(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tok)
}

func (h *Host) serveSocket(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	want := h.PTToken
	h.mu.Unlock()
	if r.URL.Query().Get("pt_token") != want {
		http.Error(w, "unknown pt_token", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		for _, out := range h.Handle(msg) {
			if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
				return
			}
		}
	}
}
