package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/camden-git/parentsgallery/apierror"
)

// APIErrorResponse is the body of every error response.
type APIErrorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// classify maps any error onto the client-visible taxonomy.
func classify(err error) *apierror.Error {
	if apiErr, ok := apierror.As(err); ok {
		return apiErr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apierror.Timeout()
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apierror.NotFound("resource not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apierror.Conflict("resource already exists")
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return apierror.BadRequest("referenced resource does not exist")
	}
	return apierror.Internal(err)
}

// WriteAPIError writes err as {name, message}. Internal causes are logged and
// never sent to the client.
func WriteAPIError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	apiErr := classify(err)
	if apiErr.Status >= http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
	} else {
		log.WithError(err).Debug("request rejected")
	}
	writeJSON(w, apiErr.Status, APIErrorResponse{Name: apiErr.Name, Message: apiErr.Message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// MutationResponse is returned by every write endpoint.
type MutationResponse struct {
	Message string `json:"message"`
	Item    any    `json:"item,omitempty"`
}
