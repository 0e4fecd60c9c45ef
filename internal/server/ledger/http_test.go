package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ztmed/emrsearch/internal/common"
)

func TestHTTPOracle_CheckAccess(t *testing.T) {
	grants := map[string]bool{
		"/access/rec-1/alice": true,
		"/access/rec-1/bob":   false,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, known := grants[r.URL.Path]
		if !known {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]bool{"hasAccess": allowed})
	}))
	defer srv.Close()

	oracle := NewHTTPOracle(srv.URL)
	ctx := context.Background()

	ok, err := oracle.CheckAccess(ctx, "rec-1", "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = oracle.CheckAccess(ctx, "rec-1", "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = oracle.CheckAccess(ctx, "rec-2", "alice")
	assert.ErrorIs(t, err, common.ErrBackendUnavailable)
}

func TestHTTPOracle_EscapesPathSegments(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		json.NewEncoder(w).Encode(map[string]bool{"hasAccess": true})
	}))
	defer srv.Close()

	oracle := NewHTTPOracle(srv.URL)
	_, err := oracle.CheckAccess(context.Background(), "rec/1", "user 1")
	require.NoError(t, err)
	assert.Equal(t, "/access/rec%2F1/user%201", gotPath)
}

func TestHTTPOracle_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	_, err := NewHTTPOracle(srv.URL).CheckAccess(context.Background(), "rec-1", "alice")
	assert.ErrorIs(t, err, common.ErrBackendUnavailable)
}

func TestHTTPOracle_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := NewHTTPOracle(srv.URL).CheckAccess(context.Background(), "rec-1", "alice")
	assert.ErrorIs(t, err, common.ErrBackendUnavailable)
}
