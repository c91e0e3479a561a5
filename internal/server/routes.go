package server

import (
	"net/http"

	"sdpflow/internal/handler"
	"sdpflow/internal/server/middleware"
)

func NewMux(h *handler.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/convert", h.HandleConvert)
	mux.HandleFunc("/api/ask", h.HandleAsk)
	mux.HandleFunc("/api/workflow", h.HandleWorkflow)
	mux.HandleFunc("/api/healthz", h.HandleHealthz)

	return middleware.CORS(middleware.Recover(mux))
}
