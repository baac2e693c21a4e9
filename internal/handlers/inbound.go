package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/emersion/go-message"
	"github.com/felo/inbox-library/internal/parser"
)

// maxIngressSize bounds an inbound payload, attachments included
const maxIngressSize = 50 << 20

type inboundResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
	State  string `json:"state,omitempty"`
}

// Inbound accepts a message from the mail transport. Once the body has been
// read the answer is always 200; routing failures end up on the fallback topic.
func (h *Handlers) Inbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngressSize))
	if err != nil {
		h.logger.WithError(err).Warn("Failed to read inbound payload")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	msg, err := h.parse(r, body)
	if err != nil {
		// keep the raw payload so nothing is lost
		out := h.router.Fallback(r.Context(), &parser.InboundMessage{Text: string(body)}, err)
		writeJSON(w, http.StatusOK, inboundResponse{Status: "accepted", Path: string(out.Path), State: string(out.State)})
		return
	}

	out := h.router.Route(r.Context(), msg)
	writeJSON(w, http.StatusOK, inboundResponse{Status: "accepted", Path: string(out.Path), State: string(out.State)})
}

func (h *Handlers) parse(r *http.Request, body []byte) (*parser.InboundMessage, error) {
	boundary := h.boundary
	if boundary == "" {
		var hdr message.Header
		hdr.Set("Content-Type", r.Header.Get("Content-Type"))
		_, params, err := hdr.ContentType()
		if err != nil {
			return nil, fmt.Errorf("invalid content type: %w", err)
		}
		boundary = params["boundary"]
	}
	if boundary == "" {
		return nil, errors.New("no multipart boundary")
	}
	return parser.ParseIngress(bytes.NewReader(body), boundary)
}

// Health reports whether the store is reachable
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.PingContext(r.Context()); err != nil {
			h.logger.WithError(err).Error("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
