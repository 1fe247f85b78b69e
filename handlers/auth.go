package handlers

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/camden-git/parentsgallery/apierror"
	"github.com/camden-git/parentsgallery/models"
	"github.com/camden-git/parentsgallery/repository"
)

type AuthHandler struct {
	Users  *repository.Repository[models.User, *models.User]
	Tokens *TokenManager
	Log    logrus.FieldLogger
}

func NewAuthHandler(users *repository.Repository[models.User, *models.User], tokens *TokenManager, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{Users: users, Tokens: tokens, Log: log}
}

type LoginPayload struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=72"`
}

type LoginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	User      models.UserDTO `json:"user"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload LoginPayload
	if err := decodeAndValidate(w, r, &payload); err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}

	user, err := h.Users.First(r.Context(), map[string]any{"username": payload.Username})
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	if user == nil || !models.CheckPassword(user.PasswordHash, payload.Password) {
		h.Log.WithField("username", payload.Username).Info("failed login attempt")
		WriteAPIError(w, h.Log, apierror.Unauthorized("invalid username or password"))
		return
	}

	token, expiresAt, err := h.Tokens.IssueUserToken(user)
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	h.Log.WithField("user_id", user.ID).Info("user logged in")
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expiresAt, User: models.ToUserDTO(user)})
}

// Me returns the user behind the bearer token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		WriteAPIError(w, h.Log, apierror.Unauthorized("not logged in"))
		return
	}
	writeJSON(w, http.StatusOK, models.ToUserDTO(user))
}
