package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Chinzzii/docstore/internal/store"
)

// resourceHandlers serves the CRUD route group of a single resource.
// One value is generated per resource name at startup.
type resourceHandlers struct {
	name string
	s    *Server
}

// listControl holds the reserved "_"-prefixed parameters of a list request.
type listControl struct {
	Sort  string `schema:"_sort"`
	Order string `schema:"_order"`
	Limit int    `schema:"_limit"`
}

var (
	errBodyTooLarge = errors.New("request body too large")
	errBadBody      = errors.New("invalid request body")
)

func (h resourceHandlers) register(r *mux.Router) {
	var base = "/" + h.name

	r.HandleFunc(base, h.list).Methods(http.MethodGet)
	r.HandleFunc(base, h.create).Methods(http.MethodPost)
	r.HandleFunc(base+"/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc(base+"/{id}", h.update).Methods(http.MethodPut)
	r.HandleFunc(base+"/{id}", h.delete).Methods(http.MethodDelete)
}

// list handles GET /api/{resource}. Query parameters not starting with "_"
// are equality filters; "_sort", "_order" and "_limit" control ordering.
func (h resourceHandlers) list(w http.ResponseWriter, r *http.Request) {
	var query, err = h.parseQuery(r.URL.Query())
	if err != nil {
		h.s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.s.respondJSON(w, http.StatusOK, h.s.store.List(h.name, query))
}

// get handles GET /api/{resource}/{id}.
func (h resourceHandlers) get(w http.ResponseWriter, r *http.Request) {
	var rec, err = h.s.store.Get(h.name, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	h.s.respondJSON(w, http.StatusOK, rec)
}

// create handles POST /api/{resource}.
func (h resourceHandlers) create(w http.ResponseWriter, r *http.Request) {
	var fields, err = h.s.decodeBody(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}
	rec, err := h.s.store.Create(h.name, fields)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.s.respondJSON(w, http.StatusCreated, rec)
}

// update handles PUT /api/{resource}/{id}.
func (h resourceHandlers) update(w http.ResponseWriter, r *http.Request) {
	var fields, err = h.s.decodeBody(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}
	rec, err := h.s.store.Update(h.name, mux.Vars(r)["id"], fields)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.s.respondJSON(w, http.StatusOK, rec)
}

// delete handles DELETE /api/{resource}/{id}. It responds 204 whether or
// not a record was removed.
func (h resourceHandlers) delete(w http.ResponseWriter, r *http.Request) {
	var id = mux.Vars(r)["id"]

	var n, err = h.s.store.Delete(h.name, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.s.log.WithFields(log.Fields{"resource": h.name, "id": id, "removed": n}).Debug("deleted")
	w.WriteHeader(http.StatusNoContent)
}

// fail maps a handler error onto its response.
func (h resourceHandlers) fail(w http.ResponseWriter, err error) {
	switch errors.Cause(err) {
	case store.ErrNotFound, store.ErrUnknownResource:
		h.s.respondError(w, http.StatusNotFound, "Not found")
	case store.ErrPersistence:
		h.s.respondError(w, http.StatusInternalServerError, err.Error())
	case errBodyTooLarge:
		h.s.respondError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errBadBody:
		h.s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h resourceHandlers) parseQuery(values url.Values) (store.Query, error) {
	var control = make(url.Values)
	var query = store.Query{Filters: make(map[string]string)}

	for key, vals := range values {
		if strings.HasPrefix(key, "_") {
			control[key] = vals
		} else if len(vals) != 0 {
			query.Filters[key] = vals[0]
		}
	}

	var lc listControl
	if err := h.s.decoder.Decode(&lc, control); err != nil {
		return query, errors.WithMessage(err, "invalid query parameters")
	} else if lc.Limit < 0 {
		return query, errors.New("_limit must not be negative")
	}
	if lc.Sort != "" {
		query.Sort = &store.Sort{Field: lc.Sort, Desc: store.ParseOrder(lc.Order)}
	}
	query.Limit = lc.Limit
	return query, nil
}

// decodeBody reads a JSON request body of any kind. Object bodies supply
// record fields; other JSON values, and an empty body, supply none.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request) (store.Record, error) {
	var b, err = io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.HTTP.MaxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, errors.WithMessage(errBadBody, err.Error())
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return store.Record{}, nil
	}

	var dec = json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var v any
	if err = dec.Decode(&v); err != nil {
		return nil, errors.WithMessage(errBadBody, err.Error())
	} else if err = dec.Decode(&struct{}{}); err != io.EOF {
		return nil, errors.WithMessage(errBadBody, "unexpected trailing content")
	}
	if obj, ok := v.(map[string]any); ok {
		return store.Record(obj), nil
	}
	return store.Record{}, nil
}
