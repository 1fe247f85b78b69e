package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/camden-git/parentsgallery/apierror"
	"github.com/camden-git/parentsgallery/models"
	"github.com/camden-git/parentsgallery/repository"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	// UserContextKey holds the authenticated *models.User.
	UserContextKey ContextKey = "user"

	GalleryTokenHeader = "X-Gallery-Token"
	galleryTokenQuery  = "galleryToken"
)

// UserFromContext returns the user authenticated for this request, if any.
func UserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(UserContextKey).(*models.User)
	return user
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// Authenticator resolves bearer tokens to users. It is the only way
// requests are authenticated.
type Authenticator struct {
	Tokens *TokenManager
	Users  repository.Store[models.User]
	Log    logrus.FieldLogger
}

// authenticate returns the token's user, or an UnauthorizedError.
func (a *Authenticator) authenticate(ctx context.Context, tokenString string) (*models.User, error) {
	claims, err := a.Tokens.ParseUserToken(tokenString)
	if err != nil {
		return nil, apierror.Unauthorized("invalid or expired token")
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, apierror.Unauthorized("invalid or expired token")
	}
	user, err := a.Users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apierror.Unauthorized("user no longer exists")
	}
	// the role claim is authoritative for the lifetime of the token
	user.Role = claims.Role
	return user, nil
}

// RequireUser rejects requests without a valid bearer token with 401.
func (a *Authenticator) RequireUser(next http.Handler) http.Handler {
	return a.require(nil, next)
}

// RequireRole rejects requests without a valid bearer token with 401 and
// requests whose token carries another role with 403.
func (a *Authenticator) RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return a.require(&role, next)
	}
}

func (a *Authenticator) require(role *models.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			WriteAPIError(w, a.Log, apierror.Unauthorized("authorization header required"))
			return
		}
		user, err := a.authenticate(r.Context(), tokenString)
		if err != nil {
			WriteAPIError(w, a.Log, err)
			return
		}
		if role != nil && user.Role != *role {
			WriteAPIError(w, a.Log, apierror.Forbidden("requires role "+string(*role)))
			return
		}
		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth attaches the user when a valid bearer token is present and
// otherwise lets the request through anonymously.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tokenString, ok := bearerToken(r); ok {
			if user, err := a.authenticate(r.Context(), tokenString); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), UserContextKey, user))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// GalleryResolver maps a request to the gallery guarding it.
type GalleryResolver func(r *http.Request) (uint, error)

// GalleryLookup loads a gallery by id; nil when absent.
type GalleryLookup func(ctx context.Context, id uint) (*models.Gallery, error)

// GalleryAccess lets reads of an unprotected gallery through. A protected
// gallery needs an admin bearer token or a gallery token for that gallery,
// sent in X-Gallery-Token or the galleryToken query parameter. Must run
// after OptionalAuth.
func (a *Authenticator) GalleryAccess(resolve GalleryResolver, lookup GalleryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			galleryID, err := resolve(r)
			if err != nil {
				WriteAPIError(w, a.Log, err)
				return
			}
			g, err := lookup(r.Context(), galleryID)
			if err != nil {
				WriteAPIError(w, a.Log, err)
				return
			}
			if g == nil {
				WriteAPIError(w, a.Log, apierror.NotFound("gallery %d not found", galleryID))
				return
			}

			if !g.IsProtected() {
				next.ServeHTTP(w, r)
				return
			}
			if user := UserFromContext(r.Context()); user != nil && user.Role == models.RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}

			tokenString := r.Header.Get(GalleryTokenHeader)
			if tokenString == "" {
				tokenString = r.URL.Query().Get(galleryTokenQuery)
			}
			if tokenString == "" {
				WriteAPIError(w, a.Log, apierror.Unauthorized("gallery is password protected"))
				return
			}
			claims, err := a.Tokens.ParseGalleryToken(tokenString)
			if err != nil || claims.GalleryID != galleryID {
				WriteAPIError(w, a.Log, apierror.Unauthorized("invalid gallery token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one line per request through logrus.
func RequestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := log.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     status,
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"remote":     r.RemoteAddr,
			})
			switch {
			case status >= 500:
				entry.Error("request")
			case status >= 400:
				entry.Warn("request")
			default:
				entry.Info("request")
			}
		})
	}
}

// Timeout bounds each request by d. A handler that returns after the deadline
// without writing a response gets a TimeoutError (408).
func Timeout(d time.Duration, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			if errors.Is(ctx.Err(), context.DeadlineExceeded) && ww.Status() == 0 {
				WriteAPIError(ww, log, apierror.Timeout())
			}
		})
	}
}
