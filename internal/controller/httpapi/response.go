package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/model"
)

var validate = validator.New()

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    model.ErrorKind `json:"code"`
	Message string          `json:"message"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error maps AppError kinds to their status codes. Anything else is a 500.
func Error(w http.ResponseWriter, logger *zap.Logger, err error) {
	if appErr, ok := model.AsAppError(err); ok {
		if appErr.Status >= http.StatusInternalServerError {
			logger.Warn("Upstream failure", zap.Error(err))
		}
		JSON(w, appErr.Status, errorBody{Error: errorDetail{Code: appErr.Kind, Message: appErr.Message}})
		return
	}
	logger.Error("Unhandled error", zap.Error(err))
	JSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{Code: "INTERNAL", Message: "internal server error"}})
}

// DecodeJSON decodes the request body and runs struct validation.
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.Errorf(model.ErrBadRequest, "invalid JSON body")
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return model.Errorf(model.ErrBadRequest, "field %s failed %s", verrs[0].Field(), verrs[0].Tag())
		}
		return model.Wrap(model.ErrBadRequest, err)
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.Errorf(model.ErrBadRequest, "invalid %s", name)
	}
	return id, nil
}
