package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/orstracker/apiserver/internal/services"
	"github.com/orstracker/apiserver/internal/store"
	"github.com/orstracker/apiserver/types"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

// UserHandler provides user query and management endpoints.
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler constructs a UserHandler with the provided service.
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// UserRouter registers user routes on the given router.
func UserRouter(r chi.Router, handler *UserHandler) {
	r.Get("/getAllUser", handler.GetAllUsers)
	r.Get("/getUserById/{userID}", handler.GetUserById)
	r.Delete("/deleteUser/{userID}", handler.DeleteUser)
}

// UserListResponse is the paginated user listing payload.
type UserListResponse struct {
	Success    bool         `json:"success"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	Total      int64        `json:"total"`
	TotalPages int64        `json:"totalPages"`
	Data       []types.User `json:"data"`
}

// GetAllUsers lists users with pagination, free-text search over
// username/email and an exact role filter.
func (h *UserHandler) GetAllUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := store.UserListFilter{
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Role:   strings.TrimSpace(r.URL.Query().Get("role")),
		Skip:   int64((page - 1) * limit),
		Limit:  int64(limit),
	}

	users, total, err := h.userService.List(r.Context(), filter)
	if err != nil {
		writeServerError(w)
		return
	}

	totalPages := total / int64(limit)
	if total%int64(limit) != 0 {
		totalPages++
	}

	writeJSON(w, http.StatusOK, UserListResponse{
		Success:    true,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		Data:       users,
	})
}

// GetUserById fetches a single user.
func (h *UserHandler) GetUserById(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDFromHex(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    user,
	})
}

// DeleteUser removes a user and returns the deleted record.
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDFromHex(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	user, err := h.userService.Delete(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "User deleted successfully",
		"data":    user,
	})
}

func parsePagination(r *http.Request) (page, limit int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, errors.New("invalid page")
		}
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, errors.New("invalid limit")
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit, nil
}
