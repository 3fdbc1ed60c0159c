// Package web exposes the item routes over HTTP. It parses query options,
// resolves the caller's access policy from the request context, and maps
// the error taxonomy onto status codes. Authentication itself happens
// upstream.
package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jsguru-git/api/internal/entries"
	"github.com/jsguru-git/api/internal/errs"
	"github.com/jsguru-git/api/internal/query"
	"github.com/jsguru-git/api/internal/schema"
)

// ItemsHandler serves the /items routes
type ItemsHandler struct {
	entries *entries.Service
	logger  *zap.Logger
}

// NewItemsHandler creates the items handler
func NewItemsHandler(service *entries.Service, logger *zap.Logger) *ItemsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ItemsHandler{entries: service, logger: logger}
}

// Routes mounts the item routes on a chi router
func (h *ItemsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{collection}", h.list)
	r.Post("/{collection}", h.create)
	r.Post("/{collection}/batch", h.batch(entries.VerbPost))
	r.Patch("/{collection}/batch", h.batch(entries.VerbPatch))
	r.Delete("/{collection}/batch", h.batch(entries.VerbDelete))
	r.Get("/{collection}/{id}", h.one("get"))
	r.Put("/{collection}/{id}", h.one("put"))
	r.Patch("/{collection}/{id}", h.one("patch"))
	r.Delete("/{collection}/{id}", h.one("delete"))
	r.Get("/{collection}/{id}/meta", h.meta)
	return r
}

func (h *ItemsHandler) list(w http.ResponseWriter, r *http.Request) {
	opts, err := parseOptions(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.entries.ListOrCreate(r.Context(), ACLFrom(r), chi.URLParam(r, "collection"), opts, nil)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *ItemsHandler) create(w http.ResponseWriter, r *http.Request) {
	record, err := decodeRecord(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.entries.ListOrCreate(r.Context(), ACLFrom(r), chi.URLParam(r, "collection"), nil, record)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

func (h *ItemsHandler) batch(verb string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := decodeRows(r)
		if err != nil {
			h.writeError(w, err)
			return
		}
		opts, err := parseOptions(r)
		if err != nil {
			h.writeError(w, err)
			return
		}

		result, err := h.entries.Batch(r.Context(), ACLFrom(r), chi.URLParam(r, "collection"), verb, rows, opts)
		if err != nil {
			h.writeError(w, err)
			return
		}
		// partial failures ride a 200 with the error envelope set
		h.writeJSON(w, http.StatusOK, result)
	}
}

func (h *ItemsHandler) one(verb string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := parseOptions(r)
		if err != nil {
			h.writeError(w, err)
			return
		}

		var payload schema.Record
		if verb == "put" || verb == "patch" {
			payload, err = decodeRecord(r)
			if err != nil {
				h.writeError(w, err)
				return
			}
		}

		soft := r.URL.Query().Get("soft") == "true"
		result, err := h.entries.GetOne(
			r.Context(),
			ACLFrom(r),
			chi.URLParam(r, "collection"),
			chi.URLParam(r, "id"),
			verb,
			payload,
			opts,
			soft,
		)
		if err != nil {
			h.writeError(w, err)
			return
		}

		status := http.StatusOK
		if verb == "delete" {
			status = http.StatusNoContent
		}
		h.writeJSON(w, status, result)
	}
}

func (h *ItemsHandler) meta(w http.ResponseWriter, r *http.Request) {
	result, err := h.entries.GetMetadata(
		r.Context(),
		ACLFrom(r),
		chi.URLParam(r, "collection"),
		chi.URLParam(r, "id"),
	)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *ItemsHandler) writeJSON(w http.ResponseWriter, status int, result *entries.Result) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusNoContent && result != nil && result.Error == nil && result.Data == nil {
		w.WriteHeader(status)
		return
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.Warn("response encode failed", zap.Error(err))
	}
}

// writeError maps the error taxonomy onto status codes and always emits the
// envelope
func (h *ItemsHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	switch {
	case errs.IsForbidden(err):
		status = http.StatusForbidden
	case errs.IsNotFound(err):
		status = http.StatusNotFound
	case errs.IsBadRequest(err):
		status = http.StatusBadRequest
	case errs.IsValidation(err):
		status = http.StatusUnprocessableEntity
	default:
		// store internals stay out of responses
		message = "internal error"
		h.logger.Error("request failed", zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	envelope := entries.Result{Error: &entries.ResultError{Message: message}}
	if encErr := json.NewEncoder(w).Encode(&envelope); encErr != nil {
		h.logger.Warn("error encode failed", zap.Error(encErr))
	}
}

func decodeRecord(r *http.Request) (schema.Record, error) {
	var record schema.Record
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		return nil, errs.BadRequest("invalid request body: %v", err)
	}
	return record, nil
}

func decodeRows(r *http.Request) ([]schema.Record, error) {
	var body struct {
		Rows []schema.Record `json:"rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, errs.BadRequest("invalid request body: %v", err)
	}
	return body.Rows, nil
}

// parseOptions builds query options from the request parameters: fields,
// filter[field][op], sort (leading - for descending), limit, offset, meta
func parseOptions(r *http.Request) (*query.Options, error) {
	opts := &query.Options{}
	params := r.URL.Query()

	if fields := params.Get("fields"); fields != "" {
		for _, f := range strings.Split(fields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				opts.Fields = append(opts.Fields, f)
			}
		}
	}

	for key, values := range params {
		if !strings.HasPrefix(key, "filter[") || len(values) == 0 {
			continue
		}
		field, opName, err := parseFilterKey(key)
		if err != nil {
			return nil, err
		}
		op, err := query.ParseOperator(opName)
		if err != nil {
			return nil, errs.BadRequest("%v", err)
		}
		if op == query.OpIn || op == query.OpNotIn {
			opts.WhereOp(field, op, strings.Split(values[0], ","))
		} else {
			opts.WhereOp(field, op, values[0])
		}
	}

	if sort := params.Get("sort"); sort != "" {
		for _, s := range strings.Split(sort, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if strings.HasPrefix(s, "-") {
				opts.OrderBy(s[1:], true)
			} else {
				opts.OrderBy(s, false)
			}
		}
	}

	if limit := params.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return nil, errs.BadRequest("invalid limit %q", limit)
		}
		opts.Limit = n
	}
	if offset := params.Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			return nil, errs.BadRequest("invalid offset %q", offset)
		}
		opts.Offset = n
	}

	if meta := params.Get("meta"); meta == "1" || meta == "true" {
		opts.Meta = true
	}

	return opts, nil
}

// parseFilterKey splits "filter[title][like]" into field and operator name
func parseFilterKey(key string) (field, op string, err error) {
	inner := strings.TrimPrefix(key, "filter[")
	parts := strings.Split(inner, "]")
	switch {
	case len(parts) == 2 && parts[1] == "":
		return parts[0], "", nil
	case len(parts) == 3 && strings.HasPrefix(parts[1], "[") && parts[2] == "":
		return parts[0], strings.TrimPrefix(parts[1], "["), nil
	default:
		return "", "", errs.BadRequest("invalid filter parameter %q", key)
	}
}
