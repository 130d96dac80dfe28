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
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/donorfinder/core"
	"github.com/poiesic/donorfinder/indexer"
	"github.com/poiesic/donorfinder/search"
	"github.com/poiesic/donorfinder/storage"
)

// ServiceName is reported by the health check.
const ServiceName = "donorfinder"

var (
	// ErrSearcherRequired is returned when a searcher is not provided.
	ErrSearcherRequired = errors.New("searcher required")

	// ErrIndexerRequired is returned when an indexer is not provided.
	ErrIndexerRequired = errors.New("indexer required")

	// ErrStoreRequired is returned when an organization store is not provided.
	ErrStoreRequired = errors.New("organization store required")
)

// Searcher runs searches.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

// BatchIndexer embeds stale organizations on request.
type BatchIndexer interface {
	IndexBatch(ctx context.Context, batchSize int) (indexer.Stats, error)
}

// OrganizationStore reads organizations.
type OrganizationStore interface {
	storage.CandidateReader
	GetOrganization(ctx context.Context, id core.ID) (*core.Organization, error)
	CountOrganizations(ctx context.Context) (int, error)
}

// Server is the HTTP front end of the search engine.
type Server struct {
	searcher      Searcher
	indexer       BatchIndexer
	store         OrganizationStore
	version       string
	searchTimeout time.Duration
	logger        *slog.Logger
	router        *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVersion sets the version reported by the health check.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// WithSearchTimeout bounds query embedding and scoring of each search.
// Zero means no bound.
func WithSearchTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.searchTimeout = max(timeout, 0)
	}
}

// NewServer creates a server and registers its routes.
func NewServer(searcher Searcher, idx BatchIndexer, store OrganizationStore, opts ...Option) (*Server, error) {
	if searcher == nil {
		return nil, ErrSearcherRequired
	}
	if idx == nil {
		return nil, ErrIndexerRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	s := &Server{
		searcher: searcher,
		indexer:  idx,
		store:    store,
		version:  "dev",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "api")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestID(), requestLogger(s.logger), recovery(s.logger))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", s.health)
		v1.GET("/semantic-search", s.semanticSearch)
		v1.POST("/semantic-search/update-embeddings", s.updateEmbeddings)
		v1.GET("/organizations", s.listOrganizations)
		v1.GET("/organizations/:ein", s.getOrganization)
	}
	router.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, "not found")
	})
	s.router = router

	return s, nil
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message, RequestID: c.GetString(requestIDKey)})
}
