package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"clubing-chat/internal/domain"
	"clubing-chat/internal/middleware"
	"clubing-chat/internal/observability"
	"clubing-chat/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = validator.New()

// RoomHandler serves the chat room and history endpoints.
type RoomHandler struct {
	registry   *service.RoomRegistry
	visibility *service.VisibilityResolver
	store      *service.MessageStore
}

func NewRoomHandler(registry *service.RoomRegistry, visibility *service.VisibilityResolver, store *service.MessageStore) *RoomHandler {
	return &RoomHandler{
		registry:   registry,
		visibility: visibility,
		store:      store,
	}
}

// JoinRoomRequest admits participants to a club's room.
type JoinRoomRequest struct {
	ClubID       int64    `json:"clubId" validate:"gt=0"`
	Participants []string `json:"participants" validate:"required,min=1,max=500,dive,required"`
}

// MessagePage is one page of visible history.
type MessagePage struct {
	Messages []*domain.Message `json:"messages"`
	Skip     int               `json:"skip"`
	Limit    int               `json:"limit"`
}

// Join creates the club's room when needed and admits the participants.
// The caller must belong to the club. Responds 201 when this request
// created the room.
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.GetMemberID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	clubID := domain.ClubID(req.ClubID)
	ctx := observability.WithClubID(r.Context(), req.ClubID)

	if err := h.registry.RequireClubMember(ctx, clubID, callerID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	members := lo.Map(req.Participants, func(id string, _ int) domain.MemberID { return domain.MemberID(id) })
	room, created, err := h.registry.Join(ctx, clubID, members)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		observability.FromContext(ctx).Info("chat room created", slog.Int("participants", len(room.Participants)))
	}
	writeJSON(w, status, room)
}

// Get returns the room with its roster. The caller must belong to the club.
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.GetMemberID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	clubID, ok := clubIDParam(w, r)
	if !ok {
		return
	}

	if err := h.registry.RequireClubMember(r.Context(), clubID, callerID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	room, err := h.registry.GetRoom(r.Context(), clubID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// Messages returns the history visible to the caller, newest first.
func (h *RoomHandler) Messages(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.GetMemberID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	clubID, ok := clubIDParam(w, r)
	if !ok {
		return
	}

	skip, err := intQuery(r, "skip")
	if err != nil {
		writeError(w, http.StatusBadRequest, "skip must be a non-negative integer")
		return
	}
	limit, err := intQuery(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	skip, limit = h.store.Window(skip, limit)

	messages, err := h.visibility.VisibleHistory(r.Context(), clubID, callerID, skip, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if messages == nil {
		messages = []*domain.Message{}
	}

	writeJSON(w, http.StatusOK, MessagePage{Messages: messages, Skip: skip, Limit: limit})
}

func clubIDParam(w http.ResponseWriter, r *http.Request) (domain.ClubID, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "clubId"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid club id")
		return 0, false
	}
	return domain.ClubID(id), true
}

// intQuery parses an optional non-negative query parameter; absent is 0.
func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
