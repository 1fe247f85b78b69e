package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/camden-git/parentsgallery/apierror"
	"github.com/camden-git/parentsgallery/metrics"
	"github.com/camden-git/parentsgallery/models"
	"github.com/camden-git/parentsgallery/realtime"
	"github.com/camden-git/parentsgallery/repository"
	"github.com/camden-git/parentsgallery/services"
)

// RouterDeps is everything the HTTP surface needs.
type RouterDeps struct {
	Users     *repository.Repository[models.User, *models.User]
	Blogs     repository.Store[models.Blog]
	Galleries *services.GalleryService
	Actions   repository.Store[models.Action]
	Hub       *realtime.Hub
	Tokens    *TokenManager

	CORSOrigins    []string
	RequestTimeout time.Duration
	MaxUploadBytes int64
	RateLimitRPS   float64
	RateLimitBurst int
	FrontendDir    string

	// LoginLimiter and UnlockLimiter default to limiters built from
	// RateLimitRPS and RateLimitBurst.
	LoginLimiter  *RateLimiter
	UnlockLimiter *RateLimiter

	Log logrus.FieldLogger
}

// tokenFromQuery lets browsers, which cannot set headers on a websocket
// handshake, pass the bearer token as ?token=.
func tokenFromQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if token := r.URL.Query().Get("token"); token != "" {
				r.Header.Set("Authorization", "Bearer "+token)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func NewRouter(deps RouterDeps) http.Handler {
	log := deps.Log
	auth := &Authenticator{Tokens: deps.Tokens, Users: deps.Users, Log: log}
	admin := auth.RequireRole(models.RoleAdmin)
	timeout := Timeout(deps.RequestTimeout, log)

	loginLimiter := deps.LoginLimiter
	if loginLimiter == nil {
		loginLimiter = NewRateLimiter(deps.RateLimitRPS, deps.RateLimitBurst, log)
	}
	unlockLimiter := deps.UnlockLimiter
	if unlockLimiter == nil {
		unlockLimiter = NewRateLimiter(deps.RateLimitRPS, deps.RateLimitBurst, log)
	}

	galleryHandler := &GalleryHandler{
		Service:        deps.Galleries,
		Tokens:         deps.Tokens,
		Auth:           auth,
		MaxUploadBytes: deps.MaxUploadBytes,
		Log:            log,
	}
	authHandler := NewAuthHandler(deps.Users, deps.Tokens, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(PeerAddr)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", GalleryTokenHeader},
		ExposedHeaders:   []string{GalleryTokenHeader, totalCountHeader, "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	r.Use(metrics.InstrumentHandler)

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		api.With(tokenFromQuery, admin).Get("/events", deps.Hub.ServeWS)

		api.Route("/gallery", func(r chi.Router) {
			r.With(admin).Get("/{id}/export", galleryHandler.Export)
			r.Group(func(r chi.Router) {
				r.Use(timeout)
				MountCRUD(r, NewGalleryModule(deps.Galleries, log, galleryHandler.ItemGuard), auth)
				galleryHandler.Routes(r, unlockLimiter)
			})
		})

		api.Group(func(api chi.Router) {
			api.Use(timeout)
			api.Route("/auth", func(r chi.Router) {
				r.With(loginLimiter.Handler).Post("/login", authHandler.Login)
				r.With(auth.RequireUser).Get("/me", authHandler.Me)
			})
			api.Route("/users", func(r chi.Router) {
				MountCRUD(r, NewUserModule(deps.Users, log, admin), auth)
			})
			api.Route("/blog", func(r chi.Router) {
				MountCRUD(r, NewBlogModule(deps.Blogs, log), auth)
			})
			api.Route("/action", func(r chi.Router) {
				MountCRUD(r, NewActionModule(deps.Actions, log), auth)
			})
		})

		api.NotFound(func(w http.ResponseWriter, r *http.Request) {
			WriteAPIError(w, log, apierror.NotFound("no route for %s %s", r.Method, r.URL.Path))
		})
	})

	r.NotFound(SPAServer(deps.FrontendDir, log))
	return r
}
