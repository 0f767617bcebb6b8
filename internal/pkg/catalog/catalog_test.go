package catalog

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWARCs_FollowsLinkHeaderPagination(t *testing.T) {
	var srv *httptest.Server
	page := 0

	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/warcs", r.URL.Path)
		assert.Equal(t, "collection-1", r.URL.Query().Get("collection"))

		page++
		switch page {
		case 1:
			w.Header().Set("Link", fmt.Sprintf(`<%s/warcs?page=2>; rel="next"`, srv.URL))
			w.Write([]byte(`{"results":[{"id":"w1","path":"/a.warc.gz"}]}`))
		default:
			w.Write([]byte(`{"results":[{"id":"w2","path":"/b.warc.gz"}]}`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	warcs, err := c.WARCs("collection-1", nil)
	require.NoError(t, err)
	require.Len(t, warcs, 2)
	assert.Equal(t, "w1", warcs[0].ID)
	assert.Equal(t, "w2", warcs[1].ID)
	assert.Equal(t, 2, page)
}

func TestCollections_NoNextLinkStopsAfterOnePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections", r.URL.Path)
		w.Write([]byte(`{"results":[{"id":"c1","name":"Collection One"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	cols, err := c.Collections("")
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "c1", cols[0].ID)
}
