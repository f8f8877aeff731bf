package player

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"musicroom/internal/apperr"
	"musicroom/internal/device"
	"musicroom/internal/httpx"
	"musicroom/internal/sequence"
	"musicroom/internal/session"
)

type Handler struct {
	svc *Service
	log zerolog.Logger
}

func NewHandler(svc *Service, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Router serves the /me/player API. Callers mount it behind an identity
// middleware; requests without a user are rejected here as well.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(httpx.CurrentUser)

	r.Get("/", h.handleState)
	r.Put("/", h.handleTransfer)
	r.Put("/play", h.handlePlay)
	r.Put("/pause", h.handlePause)
	r.Put("/resume", h.handleResume)
	r.Put("/seek", h.handleSeek)
	r.Post("/next", h.handleNext)
	r.Post("/previous", h.handlePrevious)
	r.Put("/shuffle", h.handleShuffle)
	r.Put("/repeat", h.handleRepeat)
	r.Put("/volume", h.handleVolume)

	r.Get("/devices", h.handleDevices)
	r.Put("/devices/{deviceId}", h.handleRegisterDevice)

	r.Get("/queue", h.handleQueue)
	r.Post("/queue", h.handleAddToQueue)
	return r
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteAppError(w, h.log, r, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, st State, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.State(r.Context(), httpx.UserID(r))
	h.respond(w, r, st, err)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DeviceIDs []string `json:"deviceIds"`
		Play      bool     `json:"play"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	if len(body.DeviceIDs) != 1 || strings.TrimSpace(body.DeviceIDs[0]) == "" {
		h.fail(w, r, apperr.New(apperr.CodeInvalid, "deviceIds must hold exactly one id"))
		return
	}
	st, err := h.svc.Transfer(r.Context(), httpx.UserID(r), body.DeviceIDs[0], body.Play)
	h.respond(w, r, st, err)
}

type playBody struct {
	Context *session.ContextRef `json:"context"`
	Offset  int                 `json:"offset"`
}

func (h *Handler) handlePlay(w http.ResponseWriter, r *http.Request) {
	// an empty body resumes the current context
	var body playBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		h.fail(w, r, apperr.New(apperr.CodeInvalid, "invalid json body"))
		return
	}
	st, err := h.svc.Play(r.Context(), httpx.UserID(r), PlayRequest{
		Context:  body.Context,
		Offset:   body.Offset,
		DeviceID: r.URL.Query().Get("device_id"),
	})
	h.respond(w, r, st, err)
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Pause(r.Context(), httpx.UserID(r))
	h.respond(w, r, st, err)
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Resume(r.Context(), httpx.UserID(r))
	h.respond(w, r, st, err)
}

func (h *Handler) handleSeek(w http.ResponseWriter, r *http.Request) {
	pos, err := queryInt(r, "position_ms")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	st, err := h.svc.Seek(r.Context(), httpx.UserID(r), int64(pos))
	h.respond(w, r, st, err)
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Next(r.Context(), httpx.UserID(r))
	h.respond(w, r, st, err)
}

func (h *Handler) handlePrevious(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Previous(r.Context(), httpx.UserID(r))
	h.respond(w, r, st, err)
}

func (h *Handler) handleShuffle(w http.ResponseWriter, r *http.Request) {
	on, err := strconv.ParseBool(r.URL.Query().Get("state"))
	if err != nil {
		h.fail(w, r, apperr.New(apperr.CodeInvalid, "state must be true or false"))
		return
	}
	st, err := h.svc.SetShuffle(r.Context(), httpx.UserID(r), on)
	h.respond(w, r, st, err)
}

func (h *Handler) handleRepeat(w http.ResponseWriter, r *http.Request) {
	mode, err := session.ParseRepeatMode(r.URL.Query().Get("state"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	st, err := h.svc.SetRepeat(r.Context(), httpx.UserID(r), mode)
	h.respond(w, r, st, err)
}

func (h *Handler) handleVolume(w http.ResponseWriter, r *http.Request) {
	vol, err := queryInt(r, "volume_percent")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	st, err := h.svc.SetVolume(r.Context(), httpx.UserID(r), r.URL.Query().Get("device_id"), vol)
	h.respond(w, r, st, err)
}

func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.svc.Devices(r.Context(), httpx.UserID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (h *Handler) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name   string `json:"name"`
		Type   string `json:"type"`
		Volume *int   `json:"volumePercent"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	d := device.NewDevice(chi.URLParam(r, "deviceId"), strings.TrimSpace(body.Name), strings.TrimSpace(body.Type))
	if body.Volume != nil {
		d.Volume = *body.Volume
	}
	devices, err := h.svc.RegisterDevice(r.Context(), httpx.UserID(r), d)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Queue(r.Context(), httpx.UserID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleAddToQueue(w http.ResponseWriter, r *http.Request) {
	uri := strings.TrimSpace(r.URL.Query().Get("uri"))
	if uri == "" {
		h.fail(w, r, apperr.New(apperr.CodeInvalid, "uri is required"))
		return
	}
	n, err := h.svc.AddToQueue(r.Context(), httpx.UserID(r), sequence.TrackRef(uri))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"queueLength": n})
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, apperr.New(apperr.CodeInvalid, "%s is required", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.New(apperr.CodeInvalid, "%s must be an integer", name)
	}
	return v, nil
}
