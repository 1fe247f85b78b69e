package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/camden-git/parentsgallery/apierror"
	"github.com/camden-git/parentsgallery/models"
	"github.com/camden-git/parentsgallery/repository"
)

const (
	maxJSONBodyBytes = 1 << 20
	defaultPageLimit = 20
	maxPageLimit     = 200
	totalCountHeader = "X-Total-Count"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their json names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into dst and checks its validate tags.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apierror.BadRequest("request body is empty")
		}
		return apierror.BadRequest("invalid JSON body: %v", err)
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierror.BadRequest("invalid request: %v", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			fields = append(fields, fmt.Sprintf("%s (%s=%s)", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
	}
	return apierror.Validation("invalid fields: " + strings.Join(fields, ", "))
}

// parseID reads a positive numeric URL parameter.
func parseID(r *http.Request, param string) (uint, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apierror.BadRequest("invalid %s %q", param, raw)
	}
	return uint(id), nil
}

// CRUDModule binds a store to the uniform REST surface. C and E are the
// create and edit schemas; their validate tags are checked before the store
// is touched.
type CRUDModule[T any, C any, E any] struct {
	// Name is used in messages, e.g. "gallery".
	Name  string
	Store repository.Store[T]
	ToDTO func(*T) any
	// Create turns a validated create body into the record to add.
	Create func(ctx context.Context, in *C) (*T, error)
	// Changes turns a validated edit body into column changes.
	Changes func(in *E) (map[string]any, error)

	// ReadGuard wraps every read route. Reads are public when nil.
	ReadGuard func(http.Handler) http.Handler
	// ItemGuard additionally wraps GET /{id}.
	ItemGuard func(http.Handler) http.Handler
	// Filters maps accepted query parameters of GET /all to columns.
	Filters map[string]string
	// Paginate enables ?page= and ?limit= on GET /all.
	Paginate bool

	Log logrus.FieldLogger
}

// MountCRUD registers GET /all, GET /latest, GET /{id}, POST /add,
// PATCH /{id} and DELETE /{id}. Writes require an admin bearer token.
func MountCRUD[T any, C any, E any](r chi.Router, m *CRUDModule[T, C, E], auth *Authenticator) {
	r.Group(func(r chi.Router) {
		if m.ReadGuard != nil {
			r.Use(m.ReadGuard)
		}
		r.Get("/all", m.list)
		r.Get("/latest", m.latest)
		if m.ItemGuard != nil {
			r.With(m.ItemGuard).Get("/{id}", m.get)
		} else {
			r.Get("/{id}", m.get)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(models.RoleAdmin))
		r.Post("/add", m.add)
		r.Patch("/{id}", m.edit)
		r.Delete("/{id}", m.delete)
	})
}

func (m *CRUDModule[T, C, E]) toDTOs(items []T) []any {
	out := make([]any, len(items))
	for i := range items {
		out[i] = m.ToDTO(&items[i])
	}
	return out
}

func (m *CRUDModule[T, C, E]) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	where := map[string]any{}
	for param, column := range m.Filters {
		if v := query.Get(param); v != "" {
			where[column] = v
		}
	}

	items, err := m.Store.All(r.Context(), where, "")
	if err != nil {
		WriteAPIError(w, m.Log, err)
		return
	}

	if m.Paginate {
		page, limit, err := pageParams(query.Get("page"), query.Get("limit"))
		if err != nil {
			WriteAPIError(w, m.Log, err)
			return
		}
		w.Header().Set(totalCountHeader, strconv.Itoa(len(items)))
		items = paginate(items, page, limit)
	}
	writeJSON(w, http.StatusOK, m.toDTOs(items))
}

func pageParams(rawPage, rawLimit string) (int, int, error) {
	page, limit := 1, defaultPageLimit
	if rawPage == "" && rawLimit == "" {
		return 0, 0, nil
	}
	if rawPage != "" {
		p, err := strconv.Atoi(rawPage)
		if err != nil || p < 1 {
			return 0, 0, apierror.BadRequest("invalid page %q", rawPage)
		}
		page = p
	}
	if rawLimit != "" {
		l, err := strconv.Atoi(rawLimit)
		if err != nil || l < 1 || l > maxPageLimit {
			return 0, 0, apierror.BadRequest("invalid limit %q", rawLimit)
		}
		limit = l
	}
	return page, limit, nil
}

// paginate slices a full result; page 0 means no pagination was asked for.
func paginate[T any](items []T, page, limit int) []T {
	if page == 0 {
		return items
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func (m *CRUDModule[T, C, E]) latest(w http.ResponseWriter, r *http.Request) {
	item, err := m.Store.Latest(r.Context())
	if err != nil {
		WriteAPIError(w, m.Log, err)
		return
	}
	if item == nil {
		WriteAPIError(w, m.Log, apierror.NotFound("no %s found", m.Name))
		return
	}
	writeJSON(w, http.StatusOK, m.ToDTO(item))
}

func (m *CRUDModule[T, C, E]) get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		WriteAPIError(w, m.Log, err)
		return
	}
	item, err := m.Store.Get(r.Context(), id)
	if err != nil {
		WriteAPIError(w, m.Log, err)
		return
	}
	if item == nil {
		WriteAPIError(w, m.Log, apierror.NotFound("%s %d not found", m.Name, id))
		return
	}
	writeJSON(w, http.StatusOK, m.ToDTO(item))
}

func (m *CRUDModule[T, C, E]) add(w http.ResponseWriter, r *http.Request) {
	in := new(C)
	if err := decodeAndValidate(w, r, in); err != nil {
		WriteAPIError(w, m.Log, err)
		return
	}
	record, err := m.Create(r.Context(), in)
	if err != nil {
		WriteAPIError(w, m.Log, err)
		return
	}
	saved, err := m.Store.Add(r.Context(), record)
	if err != nil {
		WriteAPIError(w, m.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, MutationResponse{Message: m.Name + " created", Item: m.ToDTO(saved)})
}

func (m *CRUDModule[T, C, E]) edit(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		WriteAPIError(w, m.Log, err)
		return
	}
	in := new(E)
	if err := decodeAndValidate(w, r, in); err != nil {
		WriteAPIError(w, m.Log, err)
		return
	}
	changes, err := m.Changes(in)
	if err != nil {
		WriteAPIError(w, m.Log, err)
		return
	}
	if len(changes) == 0 {
		WriteAPIError(w, m.Log, apierror.Validation("no fields to update"))
		return
	}

	updated, err := m.Store.Edit(r.Context(), id, changes)
	if err != nil {
		WriteAPIError(w, m.Log, err)
		return
	}
	if updated == nil {
		WriteAPIError(w, m.Log, apierror.NotFound("%s %d not found", m.Name, id))
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Message: m.Name + " updated", Item: m.ToDTO(updated)})
}

func (m *CRUDModule[T, C, E]) delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		WriteAPIError(w, m.Log, err)
		return
	}
	deleted, err := m.Store.DeleteByID(r.Context(), id)
	if err != nil {
		WriteAPIError(w, m.Log, err)
		return
	}
	if !deleted {
		WriteAPIError(w, m.Log, apierror.NotFound("%s %d not found", m.Name, id))
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Message: m.Name + " deleted"})
}
