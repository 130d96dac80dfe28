// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/donorfinder/core"
	"github.com/poiesic/donorfinder/filter"
	"github.com/poiesic/donorfinder/indexer"
	"github.com/poiesic/donorfinder/search"
	"github.com/poiesic/donorfinder/storage"
)

// Parameter bounds.
const (
	DefaultBatchSize = 50
	MaxBatchSize     = 200

	DefaultListLimit = 50
	MaxListLimit     = 100
)

func (s *Server) health(c *gin.Context) {
	count, err := s.store.CountOrganizations(c.Request.Context())
	if err != nil {
		s.logger.Error("health check failed", "err", err)
		c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status:  "unhealthy",
			Service: ServiceName,
			Version: s.version,
			Error:   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:        "healthy",
		Service:       ServiceName,
		Version:       s.version,
		Organizations: count,
	})
}

func (s *Server) semanticSearch(c *gin.Context) {
	q, ok := c.GetQuery("q")
	if !ok {
		abortWithError(c, http.StatusBadRequest, "query parameter q is required")
		return
	}

	mode, err := core.ParseSearchMode(c.Query("search_type"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "search_type must be one of hybrid, semantic or keyword")
		return
	}
	orgType, err := core.ParseOrgType(c.Query("org_type"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "org_type must be one of foundation, charity or nonprofit")
		return
	}
	limit, err := intParam(c, "limit", search.DefaultLimit)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := intParam(c, "offset", 0)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.searcher.Search(c.Request.Context(), search.Request{
		Query:  q,
		Mode:   mode,
		Limit:  limit,
		Offset: offset,
		Overrides: search.Overrides{
			State:     c.Query("state"),
			CauseArea: c.Query("cause"),
			OrgType:   orgType,
		},
		Filter:  c.Query("filter"),
		Timeout: s.searchTimeout,
	})
	switch {
	case err == nil:
	case errors.Is(err, search.ErrUnknownState),
		errors.Is(err, search.ErrUnknownCauseArea),
		errors.Is(err, filter.ErrInvalidFilter):
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	default:
		s.logger.Error("search failed", "err", err, "request_id", c.GetString(requestIDKey))
		abortWithError(c, http.StatusInternalServerError, "search failed")
		return
	}

	c.JSON(http.StatusOK, newSearchResponse(resp))
}

func (s *Server) updateEmbeddings(c *gin.Context) {
	batchSize, err := intParam(c, "batch_size", DefaultBatchSize)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	batchSize = min(batchSize, MaxBatchSize)

	stats, err := s.indexer.IndexBatch(c.Request.Context(), batchSize)
	if err != nil {
		s.logger.Error("embedding update failed", "err", err, "request_id", c.GetString(requestIDKey))
		abortWithError(c, http.StatusInternalServerError, "embedding update failed")
		return
	}
	c.JSON(http.StatusOK, newEmbeddingUpdateResponse(stats))
}

func (s *Server) getOrganization(c *gin.Context) {
	id, err := parseEIN(c.Param("ein"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	org, err := s.store.GetOrganization(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		abortWithError(c, http.StatusNotFound, "organization not found")
		return
	}
	if err != nil {
		s.logger.Error("error retrieving organization", "ein", id, "err", err)
		abortWithError(c, http.StatusInternalServerError, "error retrieving organization")
		return
	}
	c.JSON(http.StatusOK, newOrganization(org))
}

func (s *Server) listOrganizations(c *gin.Context) {
	orgType, err := core.ParseOrgType(c.Query("org_type"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "org_type must be one of foundation, charity or nonprofit")
		return
	}
	limit, err := intParam(c, "limit", DefaultListLimit)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	state := strings.ToUpper(strings.TrimSpace(c.Query("state")))
	if state != "" && !core.IsStateToken(state) {
		abortWithError(c, http.StatusBadRequest, "state must be a two letter code")
		return
	}
	name := strings.ToLower(strings.TrimSpace(c.Query("q")))
	ntee := strings.ToUpper(strings.TrimSpace(c.Query("ntee")))

	fetch := storage.CandidateFilter{State: state, OrgType: orgType, NTEEPrefix: ntee, Limit: limit}
	if name != "" {
		fetch.Match = func(org *core.Organization) bool {
			return strings.Contains(strings.ToLower(org.Name), name)
		}
	}
	orgs, err := s.store.FindCandidates(c.Request.Context(), fetch)
	if err != nil {
		s.logger.Error("error listing organizations", "err", err)
		abortWithError(c, http.StatusInternalServerError, "error listing organizations")
		return
	}

	out := make([]Organization, 0, len(orgs))
	for _, org := range orgs {
		out = append(out, newOrganization(org))
	}
	c.JSON(http.StatusOK, out)
}

func intParam(c *gin.Context, name string, def int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

// parseEIN accepts "123456789" and "12-3456789".
func parseEIN(s string) (core.ID, error) {
	n, err := strconv.ParseUint(strings.ReplaceAll(strings.TrimSpace(s), "-", ""), 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid ein %q", s)
	}
	return core.ID(n), nil
}

func embeddingUpdateMessage(stats indexer.Stats) string {
	msg := fmt.Sprintf("Successfully updated %d embeddings", stats.Updated)
	if stats.Failed > 0 {
		msg += fmt.Sprintf(", %d errors occurred", stats.Failed)
	}
	return msg
}
