// Package student contains the HTTP handlers for the student record
// resource.
//
// HANDLER PATTERN USED HERE — THE CLOSURE / FACTORY PATTERN:
// ────────────────────────────────────────────────────────────
// Each exported function receives its dependency (the record service)
// once at startup and returns the func(http.ResponseWriter, *http.Request)
// the router calls on every request:
//
//	router.HandleFunc("POST /records", student.New(svc))
//
// Route table:
//
//	GET    /records?pageNum=&pageSize=   page of records, highest score first
//	POST   /records                      create (form-encoded fields)
//	PUT    /records                      update (form-encoded fields)
//	DELETE /records?id=                  delete
//	GET    /records/exists?id=           200 if stored, 404 if not
package student

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/records-api/internal/codec"
	"github.com/aanand-mishra/records-api/internal/service/record"
	"github.com/aanand-mishra/records-api/internal/types"
	"github.com/aanand-mishra/records-api/internal/utils/response"
)

// decodeForm reads the form-encoded body into a Student. Only the first
// value of a repeated field is used.
func decodeForm(r *http.Request) (types.Student, error) {
	if err := r.ParseForm(); err != nil {
		return types.Student{}, &codec.DecodeError{Err: err}
	}

	fields := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}

	return codec.FromFieldMap(fields)
}

// writeFailure maps a service error to a status code. Validation and
// decode problems are the client's and are described; anything else is
// logged and answered with failMsg only.
func writeFailure(w http.ResponseWriter, r *http.Request, err error, failMsg string) {
	var verrs validator.ValidationErrors
	var decErr *codec.DecodeError

	switch {
	case errors.As(err, &verrs):
		response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(verrs))
	case errors.Is(err, record.ErrValidation), errors.As(err, &decErr):
		response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
	case errors.Is(err, context.DeadlineExceeded):
		slog.ErrorContext(r.Context(), failMsg, slog.String("error", err.Error()))
		response.WriteJSON(w, http.StatusGatewayTimeout, response.Failure(failMsg))
	default:
		slog.ErrorContext(r.Context(), failMsg, slog.String("error", err.Error()))
		response.WriteJSON(w, http.StatusInternalServerError, response.Failure(failMsg))
	}
}

// New handles POST /records.
//
//	curl -X POST -d 'id=s1&name=Ada&birthday=2001-02-03&score=97' localhost:8082/records
func New(svc *record.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := decodeForm(r)
		if err != nil {
			writeFailure(w, r, err, "record not created")
			return
		}

		slog.Info("creating a record", slog.String("id", s.ID))

		if err := svc.SaveRecord(r.Context(), s); err != nil {
			writeFailure(w, r, err, "record not created")
			return
		}

		response.WriteJSON(w, http.StatusCreated, response.OK("record created"))
	}
}

// Update handles PUT /records. The whole record is replaced.
func Update(svc *record.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := decodeForm(r)
		if err != nil {
			writeFailure(w, r, err, "record not updated")
			return
		}

		slog.Info("updating a record", slog.String("id", s.ID))

		if err := svc.UpdateRecord(r.Context(), s); err != nil {
			writeFailure(w, r, err, "record not updated")
			return
		}

		response.WriteJSON(w, http.StatusOK, response.OK("record updated"))
	}
}

// Delete handles DELETE /records?id=.
func Delete(svc *record.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		slog.Info("deleting a record", slog.String("id", id))

		if err := svc.RemoveRecord(r.Context(), id); err != nil {
			writeFailure(w, r, err, "record not deleted")
			return
		}

		response.WriteJSON(w, http.StatusOK, response.OK("record deleted"))
	}
}

// GetList handles GET /records?pageNum=&pageSize=.
//
// Missing or non-numeric paging values become 0, which the pagination
// calculator turns into page 1 / size 10.
func GetList(svc *record.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		pageNum, _ := strconv.Atoi(q.Get("pageNum"))
		pageSize, _ := strconv.Atoi(q.Get("pageSize"))

		page, err := svc.ListRecordsPage(r.Context(), pageNum, pageSize)
		if err != nil {
			writeFailure(w, r, err, "records unavailable")
			return
		}

		response.WriteJSON(w, http.StatusOK, page)
	}
}

// existsBody is the payload of GET /records/exists.
type existsBody struct {
	ID     string `json:"id"`
	Exists bool   `json:"exists"`
}

// Exists handles GET /records/exists?id=.
func Exists(svc *record.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			response.WriteJSON(w, http.StatusBadRequest, response.Failure("id is required"))
			return
		}

		ok, err := svc.RecordExists(r.Context(), id)
		if err != nil {
			writeFailure(w, r, err, "lookup failed")
			return
		}

		status := http.StatusOK
		if !ok {
			status = http.StatusNotFound
		}
		response.WriteJSON(w, status, existsBody{ID: id, Exists: ok})
	}
}

// Health handles GET /healthz by pinging the store.
func Health(svc *record.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Ping(r.Context()); err != nil {
			writeFailure(w, r, err, "store unreachable")
			return
		}
		response.WriteJSON(w, http.StatusOK, response.OK("healthy"))
	}
}
