package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
	"golang.org/x/crypto/bcrypt"
)

const (
	SessionCookie       = "nimmt_room_session"
	InternalTokenHeader = "X-Internal-Token"

	sessionMaxAge = 60 * 60 * 24 * 7
	qrSize        = 256
)

type HTTPHandler struct {
	dir Directory
	// tokenHash is the bcrypt hash of the internal token; nil disables the
	// internal routes.
	tokenHash []byte
}

type createRoomRequest struct {
	Title string `json:"title"`
}

type internalLeaveRequest struct {
	SessionID string `json:"sessionId"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type sessionResponse struct {
	SessionID *string `json:"sessionId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHTTPHandler(dir Directory, internalToken string) (*HTTPHandler, error) {
	h := &HTTPHandler{dir: dir}
	if internalToken != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(internalToken), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash internal token: %w", err)
		}
		h.tokenHash = hash
	}
	return h, nil
}

func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/session", h.handleSession)
	r.Route("/api/rooms", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Post("/{roomID}/join", h.handleJoin)
		r.Post("/{roomID}/leave", h.handleLeave)
		r.Get("/{roomID}/qr.png", h.handleQR)
	})
	r.Post("/internal/rooms/{roomID}/leave", h.handleInternalLeave)
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.dir.GetRooms(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("list rooms failed")
		writeError(w, http.StatusInternalServerError, "could not load rooms")
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (h *HTTPHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	// An empty or malformed body just means no title.
	_ = json.NewDecoder(r.Body).Decode(&req)

	meta, err := h.dir.CreateRoom(r.Context(), req.Title)
	if err != nil {
		log.Error().Err(err).Msg("create room failed")
		writeError(w, http.StatusInternalServerError, "could not create room")
		return
	}
	log.Info().Str("room", meta.RoomID).Str("title", meta.Title).Msg("room created")
	writeJSON(w, http.StatusOK, meta)
}

func (h *HTTPHandler) handleJoin(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	sessionID, isNew := sessionFromRequest(r)

	if err := h.dir.JoinRoom(r.Context(), roomID, sessionID); err != nil {
		switch {
		case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrRoomFull):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Error().Err(err).Str("room", roomID).Msg("join room failed")
			writeError(w, http.StatusInternalServerError, "join failed")
		}
		return
	}
	if isNew {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sessionID,
			Path:     "/",
			MaxAge:   sessionMaxAge,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *HTTPHandler) handleLeave(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		if err := h.dir.LeaveRoom(r.Context(), roomID, c.Value); err != nil {
			log.Error().Err(err).Str("room", roomID).Msg("leave room failed")
			writeError(w, http.StatusInternalServerError, "leave failed")
			return
		}
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *HTTPHandler) handleSession(w http.ResponseWriter, r *http.Request) {
	var resp sessionResponse
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		v := c.Value
		resp.SessionID = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleInternalLeave is called by room servers when a seat is released.
func (h *HTTPHandler) handleInternalLeave(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r.Header.Get(InternalTokenHeader)) {
		writeError(w, http.StatusUnauthorized, "invalid internal token")
		return
	}
	roomID := chi.URLParam(r, "roomID")

	var req internalLeaveRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "sessionId required")
		return
	}
	if err := h.dir.LeaveRoom(r.Context(), roomID, req.SessionID); err != nil {
		log.Error().Err(err).Str("room", roomID).Msg("internal leave failed")
		writeError(w, http.StatusInternalServerError, "leave failed")
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *HTTPHandler) authorized(token string) bool {
	if h.tokenHash == nil || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(h.tokenHash, []byte(token)) == nil
}

// handleQR renders an invite code pointing at the room page on this host.
func (h *HTTPHandler) handleQR(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if _, err := h.dir.GetRoom(r.Context(), roomID); err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "could not load room")
		return
	}

	png, err := qrcode.Encode(inviteURL(r, roomID), qrcode.Medium, qrSize)
	if err != nil {
		log.Error().Err(err).Str("room", roomID).Msg("qr encode failed")
		writeError(w, http.StatusInternalServerError, "could not render code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func inviteURL(r *http.Request, roomID string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return fmt.Sprintf("%s://%s/room/%s", scheme, r.Host, roomID)
}

func sessionFromRequest(r *http.Request) (string, bool) {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value, false
	}
	return "s_" + uuid.NewString(), true
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
