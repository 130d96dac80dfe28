package propublica

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/donorfinder/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(WithBaseURL(server.URL), WithRetry(2, time.Millisecond))
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestClient_Search(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "preschool", q.Get("q"))
		assert.Equal(t, "CA", q.Get("state[id]"))
		assert.Equal(t, "3", q.Get("c_code[id]"))
		assert.Equal(t, "1", q.Get("page"))
		assert.Empty(t, q.Get("ntee[id]"))

		w.Write([]byte(`{"total_results": 1, "num_pages": 2, "cur_page": 1, "organizations": [
			{"ein": 123456789, "strein": "12-3456789", "name": "Bright Futures Preschool",
			 "city": "Oakland", "state": "CA", "ntee_code": "B21", "subseccd": 3}
		]}`))
	})

	resp, err := client.Search(context.Background(), SearchParams{Query: "preschool", State: "ca", Subsection: 3, Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.NumPages)
	require.Len(t, resp.Organizations, 1)
	assert.Equal(t, EIN(123456789), resp.Organizations[0].EIN)
	assert.Equal(t, 3, resp.Organizations[0].Subsection)
}

func TestClient_SearchNoResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	resp, err := client.Search(context.Background(), SearchParams{Query: "zzzz"})
	require.NoError(t, err)
	assert.Empty(t, resp.Organizations)
}

func TestClient_Organization(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/organizations/123456789.json":
			w.Write([]byte(`{"organization": {"ein": 123456789, "name": "Bright Futures Preschool", "state": "CA", "subseccd": 3}}`))
		case "/organizations/5.json":
			w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	org, err := client.Organization(ctx, 123456789)
	require.NoError(t, err)
	assert.Equal(t, "Bright Futures Preschool", org.Name)

	_, err = client.Organization(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = client.Organization(ctx, 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"organization": {"ein": 1, "name": "Finally"}}`))
	})

	org, err := client.Organization(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Finally", org.Name)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUp(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Organization(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.Organization(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Collect(t *testing.T) {
	pages := map[string]SearchResponse{
		"0": {NumPages: 2, Organizations: []Organization{
			{EIN: 1, Name: "Search One", State: "CA", Subsection: 3},
			{EIN: 2, Name: "Search Two", State: "CA", Subsection: 3},
		}},
		"1": {NumPages: 2, CurPage: 1, Organizations: []Organization{
			{EIN: 2, Name: "Search Two", State: "CA", Subsection: 3},
			{EIN: 3, Name: "Search Three", State: "CA", Subsection: 3},
			{EIN: 4, Name: "Search Four", State: "CA", Subsection: 3},
		}},
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/search.json" {
			writeJSON(t, w, pages[r.URL.Query().Get("page")])
			return
		}
		if r.URL.Path == "/organizations/2.json" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		ein := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/organizations/"), ".json")
		w.Write([]byte(`{"organization": {"ein": ` + ein + `, "name": "Detail ` + ein + `", "state": "ca", "ntee_code": "b21", "subseccd": 3}}`))
	})

	t.Run("limited", func(t *testing.T) {
		orgs, err := client.Collect(context.Background(), SearchParams{State: "CA"}, 3)
		require.NoError(t, err)
		require.Len(t, orgs, 3)

		assert.Equal(t, core.ID(1), orgs[0].Id)
		assert.Equal(t, "Detail 1", orgs[0].Name)
		assert.Equal(t, "CA", orgs[0].State)
		assert.Equal(t, "B21", orgs[0].NTEECode)
		assert.Equal(t, core.OrgTypeCharity, orgs[0].OrgType)

		// Detail lookup failed, the search record is used.
		assert.Equal(t, "Search Two", orgs[1].Name)
		assert.Equal(t, core.ID(3), orgs[2].Id)
	})

	t.Run("all pages", func(t *testing.T) {
		orgs, err := client.Collect(context.Background(), SearchParams{State: "CA"}, 0)
		require.NoError(t, err)
		assert.Len(t, orgs, 4)
	})
}

func TestEIN_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input string
		want  EIN
	}{
		{`123456789`, 123456789},
		{`"12-3456789"`, 123456789},
		{`"012345678"`, 12345678},
		{`null`, 0},
		{`""`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var got EIN
			require.NoError(t, json.Unmarshal([]byte(tt.input), &got))
			assert.Equal(t, tt.want, got)
		})
	}

	var bad EIN
	assert.Error(t, json.Unmarshal([]byte(`"not-an-ein"`), &bad))
}

func TestOrganization_ToCore(t *testing.T) {
	rec := Organization{
		EIN:        12345678,
		Name:       "  Golden Gate Foundation ",
		City:       "San Francisco",
		State:      "ca",
		NTEECode:   "t20",
		Subsection: 3,
	}

	org := rec.ToCore()
	assert.Equal(t, core.ID(12345678), org.Id)
	assert.Equal(t, "01-2345678", org.StrEIN)
	assert.Equal(t, "Golden Gate Foundation", org.Name)
	assert.Equal(t, "CA", org.State)
	assert.Equal(t, "T20", org.NTEECode)
	assert.Equal(t, core.OrgTypeFoundation, org.OrgType)
}
