// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/feedscout/internal/services/search"
)

// SearchRequest asks for one feed to be fetched and extracted. Either URL or
// Feed (a configured feed name) must be set.
type SearchRequest struct {
	URL        string `json:"url"`
	Feed       string `json:"feed"`
	MaxResults int    `json:"max_results"`
}

// SearchHandler handles feed search endpoints.
type SearchHandler struct {
	service *search.Service
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(service *search.Service) *SearchHandler {
	return &SearchHandler{service: service}
}

// Routes registers the search routes.
func (h *SearchHandler) Routes(r chi.Router) {
	r.Post("/search", h.Search)
	r.Get("/feeds", h.ListFeeds)
	r.Get("/engines/{engineID}", h.GetEngineState)
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error().Err(err).Msg("Failed to decode search request")
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var (
		resp *search.Response
		err  error
	)
	switch {
	case strings.TrimSpace(req.URL) != "":
		resp, err = h.service.Search(r.Context(), req.URL, req.MaxResults)
	case strings.TrimSpace(req.Feed) != "":
		resp, err = h.service.SearchFeed(r.Context(), req.Feed, req.MaxResults)
	default:
		RespondError(w, http.StatusBadRequest, "url or feed is required")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("url", req.URL).Str("feed", req.Feed).Msg("Feed search failed")
		RespondError(w, http.StatusBadGateway, err.Error())
		return
	}

	RespondJSON(w, http.StatusOK, resp)
}

func (h *SearchHandler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.service.Feeds(r.Context()))
}

func (h *SearchHandler) GetEngineState(w http.ResponseWriter, r *http.Request) {
	engineID, err := strconv.ParseInt(chi.URLParam(r, "engineID"), 10, 64)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid engine ID")
		return
	}
	RespondJSON(w, http.StatusOK, h.service.EngineState(r.Context(), engineID))
}
