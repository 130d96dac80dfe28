package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/poiesic/donorfinder/ai/mock"
	"github.com/poiesic/donorfinder/core"
	"github.com/poiesic/donorfinder/indexer"
	"github.com/poiesic/donorfinder/lexicon"
	"github.com/poiesic/donorfinder/query"
	"github.com/poiesic/donorfinder/search"
	"github.com/poiesic/donorfinder/searchtext"
	"github.com/poiesic/donorfinder/storage"
	"github.com/poiesic/donorfinder/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server  *Server
	repo    storage.OrganizationRepository
	indexer *indexer.Indexer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	repo, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	lex := lexicon.MustLoad()
	builder, err := searchtext.NewBuilder(lex)
	require.NoError(t, err)
	parser, err := query.NewParser(lex)
	require.NoError(t, err)
	embedder := mock.NewMockEmbedder()

	_, err = repo.UpsertOrganizations(ctx,
		&core.Organization{Id: 1, StrEIN: "00-0000001", Name: "Bright Futures Preschool", City: "Oakland", State: "CA", NTEECode: "B21", Subsection: 3, OrgType: core.OrgTypeCharity},
		&core.Organization{Id: 2, Name: "Sunrise Montessori Academy", City: "Austin", State: "TX", NTEECode: "B21", Subsection: 3, OrgType: core.OrgTypeCharity},
		&core.Organization{Id: 3, Name: "Golden Gate Foundation", City: "San Francisco", State: "CA", NTEECode: "T20", Subsection: 3, OrgType: core.OrgTypeFoundation},
	)
	require.NoError(t, err)

	ix, err := indexer.NewIndexer(repo, embedder, builder)
	require.NoError(t, err)
	t.Cleanup(ix.Release)

	searcher, err := search.NewSearcher(repo, embedder, parser)
	require.NoError(t, err)

	server, err := NewServer(searcher, ix, repo, WithVersion("1.2.3"))
	require.NoError(t, err)
	return &testEnv{server: server, repo: repo, indexer: ix}
}

func (e *testEnv) indexAll(t *testing.T) {
	t.Helper()
	_, err := e.indexer.IndexBatch(context.Background(), 100)
	require.NoError(t, err)
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// fakeSearcher returns a fixed error.
type fakeSearcher struct{ err error }

func (f *fakeSearcher) Search(context.Context, search.Request) (*search.Response, error) {
	return nil, f.err
}

// fakeIndexer records the requested batch size.
type fakeIndexer struct{ batchSize int }

func (f *fakeIndexer) IndexBatch(_ context.Context, batchSize int) (indexer.Stats, error) {
	f.batchSize = batchSize
	return indexer.Stats{Updated: 3, Skipped: 1, Failed: 2}, nil
}

// brokenStore fails every call.
type brokenStore struct{}

func (brokenStore) FindCandidates(context.Context, storage.CandidateFilter) ([]*core.Organization, error) {
	return nil, storage.ErrStorageClosed
}
func (brokenStore) GetOrganization(context.Context, core.ID) (*core.Organization, error) {
	return nil, storage.ErrStorageClosed
}
func (brokenStore) CountOrganizations(context.Context) (int, error) {
	return 0, storage.ErrStorageClosed
}

func TestNewServer(t *testing.T) {
	s := &fakeSearcher{}
	ix := &fakeIndexer{}

	_, err := NewServer(nil, ix, brokenStore{})
	assert.ErrorIs(t, err, ErrSearcherRequired)

	_, err = NewServer(s, nil, brokenStore{})
	assert.ErrorIs(t, err, ErrIndexerRequired)

	_, err = NewServer(s, ix, nil)
	assert.ErrorIs(t, err, ErrStoreRequired)
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		env := newTestEnv(t)
		rec := do(t, env.server.Handler(), http.MethodGet, "/api/v1/health")
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode[HealthResponse](t, rec)
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, ServiceName, body.Service)
		assert.Equal(t, "1.2.3", body.Version)
		assert.Equal(t, 3, body.Organizations)
	})

	t.Run("unhealthy", func(t *testing.T) {
		server, err := NewServer(&fakeSearcher{}, &fakeIndexer{}, brokenStore{})
		require.NoError(t, err)

		rec := do(t, server.Handler(), http.MethodGet, "/api/v1/health")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decode[HealthResponse](t, rec)
		assert.Equal(t, "unhealthy", body.Status)
		assert.NotEmpty(t, body.Error)
	})
}

func TestSemanticSearch(t *testing.T) {
	env := newTestEnv(t)
	env.indexAll(t)

	rec := do(t, env.server.Handler(), http.MethodGet,
		"/api/v1/semantic-search?q="+url.QueryEscape("early childhood education in California"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	body := decode[SearchResponse](t, rec)
	assert.Equal(t, "early childhood education in California", body.Query)
	assert.Equal(t, core.SearchModeHybrid, body.SearchType)
	assert.Equal(t, "CA", body.QueryComponents.State)
	require.NotNil(t, body.QueryComponents.CauseArea)
	assert.Equal(t, "B21", body.QueryComponents.CauseArea.Code)
	assert.False(t, body.Degraded)

	require.Equal(t, 1, body.Count)
	top := body.Results[0]
	assert.Equal(t, uint64(1), top.EIN)
	assert.Equal(t, "Bright Futures Preschool", top.Name)
	assert.Equal(t, 1, top.Rank)
	assert.Equal(t, "hybrid", top.MatchType)
	assert.NotNil(t, top.SemanticScore)
	assert.NotNil(t, top.KeywordScore)
	assert.True(t, top.HasEmbedding)
	assert.Positive(t, top.FinalScore)
	assert.Equal(t, top.FinalScore, top.RelevanceScore)

	t.Run("final_score on the wire", func(t *testing.T) {
		var raw struct {
			Results []map[string]any `json:"results"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
		require.Len(t, raw.Results, 1)
		assert.Contains(t, raw.Results[0], "final_score")
	})
}

func TestSemanticSearch_Parameters(t *testing.T) {
	env := newTestEnv(t)
	env.indexAll(t)
	h := env.server.Handler()

	t.Run("keyword mode with overrides", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/semantic-search?q=preschool&search_type=keyword&state=Texas")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		body := decode[SearchResponse](t, rec)
		assert.Equal(t, core.SearchModeKeyword, body.SearchType)
		require.Equal(t, 1, body.Count)
		assert.Equal(t, uint64(2), body.Results[0].EIN)
		assert.Equal(t, "keyword", body.Results[0].MatchType)
		assert.Nil(t, body.Results[0].SemanticScore)
	})

	t.Run("filter", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/semantic-search?q=preschool&filter="+url.QueryEscape(`city == "Austin"`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode[SearchResponse](t, rec)
		require.Equal(t, 1, body.Count)
		assert.Equal(t, uint64(2), body.Results[0].EIN)
	})

	t.Run("request id is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/semantic-search?q=preschool", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	})

	bad := map[string]string{
		"missing q":        "/api/v1/semantic-search",
		"bad search type":  "/api/v1/semantic-search?q=x&search_type=fuzzy",
		"bad org type":     "/api/v1/semantic-search?q=x&org_type=club",
		"bad limit":        "/api/v1/semantic-search?q=x&limit=ten",
		"negative offset":  "/api/v1/semantic-search?q=x&offset=-1",
		"unknown state":    "/api/v1/semantic-search?q=x&state=Atlantis",
		"unknown cause":    "/api/v1/semantic-search?q=x&cause=" + url.QueryEscape("underwater basket weaving"),
		"invalid filter":   "/api/v1/semantic-search?q=x&filter=" + url.QueryEscape("ein >"),
		"non-bool filter":  "/api/v1/semantic-search?q=x&filter=" + url.QueryEscape("name"),
	}
	for name, target := range bad {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, target)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			body := decode[ErrorResponse](t, rec)
			assert.NotEmpty(t, body.Error)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestSemanticSearch_Failure(t *testing.T) {
	server, err := NewServer(&fakeSearcher{err: errors.New("boom")}, &fakeIndexer{}, brokenStore{})
	require.NoError(t, err)

	rec := do(t, server.Handler(), http.MethodGet, "/api/v1/semantic-search?q=preschool")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestUpdateEmbeddings(t *testing.T) {
	t.Run("indexes a batch", func(t *testing.T) {
		env := newTestEnv(t)

		rec := do(t, env.server.Handler(), http.MethodPost, "/api/v1/semantic-search/update-embeddings?batch_size=2")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode[EmbeddingUpdateResponse](t, rec)
		assert.Equal(t, 2, body.Updated)
		assert.Zero(t, body.Errors)
		assert.Equal(t, "Successfully updated 2 embeddings", body.Message)

		rec = do(t, env.server.Handler(), http.MethodPost, "/api/v1/semantic-search/update-embeddings")
		require.Equal(t, http.StatusOK, rec.Code)
		body = decode[EmbeddingUpdateResponse](t, rec)
		assert.Equal(t, 1, body.Updated)
		assert.Equal(t, 2, body.Skipped)
	})

	t.Run("batch size bounds", func(t *testing.T) {
		ix := &fakeIndexer{}
		server, err := NewServer(&fakeSearcher{}, ix, brokenStore{})
		require.NoError(t, err)

		rec := do(t, server.Handler(), http.MethodPost, "/api/v1/semantic-search/update-embeddings?batch_size=5000")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, MaxBatchSize, ix.batchSize)
		body := decode[EmbeddingUpdateResponse](t, rec)
		assert.Equal(t, "Successfully updated 3 embeddings, 2 errors occurred", body.Message)

		do(t, server.Handler(), http.MethodPost, "/api/v1/semantic-search/update-embeddings")
		assert.Equal(t, DefaultBatchSize, ix.batchSize)

		rec = do(t, server.Handler(), http.MethodPost, "/api/v1/semantic-search/update-embeddings?batch_size=x")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetOrganization(t *testing.T) {
	env := newTestEnv(t)
	h := env.server.Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/organizations/00-0000001")
	require.Equal(t, http.StatusOK, rec.Code)
	org := decode[Organization](t, rec)
	assert.Equal(t, uint64(1), org.EIN)
	assert.Equal(t, "00-0000001", org.StrEIN)
	assert.Equal(t, core.OrgTypeCharity, org.OrgType)
	assert.NotNil(t, org.UpdatedAt)

	rec = do(t, h, http.MethodGet, "/api/v1/organizations/999")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/organizations/abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	server, err := NewServer(&fakeSearcher{}, &fakeIndexer{}, brokenStore{})
	require.NoError(t, err)
	rec = do(t, server.Handler(), http.MethodGet, "/api/v1/organizations/1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListOrganizations(t *testing.T) {
	env := newTestEnv(t)
	h := env.server.Handler()

	list := func(target string) []Organization {
		rec := do(t, h, http.MethodGet, target)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode[[]Organization](t, rec)
	}
	eins := func(orgs []Organization) []uint64 {
		out := make([]uint64, len(orgs))
		for i, o := range orgs {
			out[i] = o.EIN
		}
		return out
	}

	assert.Equal(t, []uint64{1, 2, 3}, eins(list("/api/v1/organizations")))
	assert.Equal(t, []uint64{1, 3}, eins(list("/api/v1/organizations?state=ca")))
	assert.Equal(t, []uint64{3}, eins(list("/api/v1/organizations?org_type=foundation")))
	assert.Equal(t, []uint64{2}, eins(list("/api/v1/organizations?q=montessori")))
	assert.Equal(t, []uint64{1}, eins(list("/api/v1/organizations?limit=1")))
	assert.Equal(t, []uint64{1, 2}, eins(list("/api/v1/organizations?ntee=b2")))
	assert.Equal(t, []uint64{3}, eins(list("/api/v1/organizations?q=foundation&limit=1")))

	rec := do(t, h, http.MethodGet, "/api/v1/organizations?state=California")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/organizations?org_type=club")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNoRoute(t *testing.T) {
	env := newTestEnv(t)
	rec := do(t, env.server.Handler(), http.MethodGet, "/api/v2/anything")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, "not found", body.Error)
}
