package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/gitdm/gitdm/internal/api/middleware"
	"github.com/gitdm/gitdm/internal/api/presenter"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// handleList serves a page of a resource collection.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resource(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	page, err := positiveInt(q.Get("page"), 1)
	if err != nil {
		presenter.Error(w, r, "invalid page parameter", http.StatusBadRequest)
		return
	}
	size, err := positiveInt(q.Get("page_size"), defaultPageSize)
	if err != nil {
		presenter.Error(w, r, "invalid page_size parameter", http.StatusBadRequest)
		return
	}
	size = min(size, maxPageSize)

	all := s.data.list(res)
	start := (page - 1) * size
	if start > len(all) || (start == len(all) && page > 1) {
		presenter.Error(w, r, "Invalid page.", http.StatusNotFound)
		return
	}
	end := min(start+size, len(all))

	out := Page{
		Count:   len(all),
		Results: make([]json.RawMessage, 0, end-start),
	}
	for _, rec := range all[start:end] {
		out.Results = append(out.Results, rec.body)
	}
	if end < len(all) {
		out.Next = pageURL(r, page+1, size)
	}
	if page > 1 {
		out.Previous = pageURL(r, page-1, size)
	}

	log.Ctx(r.Context()).Debug().Str("resource", string(res)).Int("count", len(out.Results)).Msg("listed resource")
	presenter.JSON(w, r, out, http.StatusOK)
}

// handleDetail serves a single resource item.
func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resource(w, r)
	if !ok {
		return
	}
	body, ok := s.data.get(res, r.PathValue("id"))
	if !ok {
		presenter.Error(w, r, "No "+string(res)+" matches the given query.", http.StatusNotFound)
		return
	}
	presenter.JSON(w, r, body, http.StatusOK)
}

// handleCreate adds an item to a resource collection.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resource(w, r)
	if !ok {
		return
	}
	logger := log.Ctx(r.Context())

	var item map[string]any
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil || item == nil {
		logger.Warn().Err(err).Str("resource", string(res)).Msg("failed to decode item")
		presenter.Error(w, r, "JSON object expected", http.StatusBadRequest)
		return
	}
	if id, ok := item["id"]; ok {
		if _, isString := id.(string); !isString {
			presenter.Error(w, r, "id must be a string", http.StatusBadRequest)
			return
		}
	}

	body, err := s.data.create(res, item)
	if errors.Is(err, ErrDuplicateID) {
		presenter.Error(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to create item")
		presenter.Error(w, r, "could not store item", http.StatusInternalServerError)
		return
	}

	logger.Info().Str("resource", string(res)).Str("sub", middleware.SubjectCtx(r.Context())).Msg("created resource item")
	presenter.JSON(w, r, body, http.StatusCreated)
}

func (s *Server) resource(w http.ResponseWriter, r *http.Request) (Resource, bool) {
	res, err := ParseResource(r.PathValue("resource"))
	if err != nil {
		presenter.Error(w, r, "Not found.", http.StatusNotFound)
		return "", false
	}
	return res, true
}

func positiveInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}

func pageURL(r *http.Request, page, size int) *string {
	u := url.URL{Scheme: "http", Host: r.Host, Path: r.URL.Path}
	if r.TLS != nil {
		u.Scheme = "https"
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(size))
	u.RawQuery = q.Encode()
	s := u.String()
	return &s
}
