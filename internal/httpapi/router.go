// Package httpapi exposes the audio-capture ingress over HTTP: session
// lifecycle controls, chunk ingestion, and the one-shot file path.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"campaign-scribe-service/internal/provider"
	"campaign-scribe-service/internal/session"
)

// maxAudioUpload caps one-shot file uploads at 100MB.
const maxAudioUpload = 100 << 20

// NewRouter constructs the HTTP router for the service.
func NewRouter(controller *session.Controller) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	h := &handlers{controller: controller}
	r.Route("/v1", func(r chi.Router) {
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Post("/start", h.start)
			r.Post("/audio", h.audio)
			r.Post("/pause", h.pause)
			r.Post("/resume", h.resume)
			r.Post("/stop", h.stop)
			r.Post("/capture", h.capture)
		})
		r.Post("/transcriptions/file", h.file)
	})

	return r
}

type handlers struct {
	controller *session.Controller
}

func (h *handlers) start(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	campaignID := r.URL.Query().Get("campaign")
	worldID := r.URL.Query().Get("world")

	transcriptID, err := h.controller.StartLiveSession(r.Context(), sessionID, campaignID, worldID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"transcriptId": transcriptID})
}

func (h *handlers) audio(w http.ResponseWriter, r *http.Request) {
	ts, err := strconv.ParseInt(r.URL.Query().Get("ts"), 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid ts query parameter", http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxAudioUpload))
	if err != nil || len(data) == 0 {
		http.Error(w, "empty audio chunk", http.StatusBadRequest)
		return
	}

	// Chunk routing never blocks and never fails the request; problems
	// surface as observer error events.
	h.controller.ProcessAudioChunk(data, ts)
	w.WriteHeader(http.StatusAccepted)
}

func (h *handlers) pause(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.PauseSession(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) resume(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.ResumeSession(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) stop(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.StopSession(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// capture accepts capture-side notices from the recording client: a
// state change ("recording", "stopped", "device-changed") or an error
// message when the client's microphone fails.
func (h *handlers) capture(w http.ResponseWriter, r *http.Request) {
	var notice struct {
		State string `json:"state"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(r.Body).Decode(&notice); err != nil {
		http.Error(w, "invalid capture notice", http.StatusBadRequest)
		return
	}
	if notice.Error != "" {
		h.controller.HandleCaptureError(errors.New(notice.Error))
	}
	if notice.State != "" {
		h.controller.HandleCaptureState(notice.State)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) file(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxAudioUpload))
	if err != nil || len(data) == 0 {
		http.Error(w, "empty audio file", http.StatusBadRequest)
		return
	}
	q := r.URL.Query()

	transcriptID, err := h.controller.ProcessAudioFile(r.Context(), data,
		q.Get("session"), q.Get("campaign"), q.Get("world"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"transcriptId": transcriptID})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrAlreadyActive), errors.Is(err, session.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, provider.ErrAllProvidersFailed), errors.Is(err, provider.ErrProviderUnavailable):
		status = http.StatusBadGateway
	}
	log.Debug().Err(err).Int("status", status).Msg("Request failed")
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("Response encode failed")
	}
}
