// Package catalog is a REST client for the cataloging service that knows
// which WARCs belong to a collection/seed and which collections exist,
// paginated via RFC 5988 Link headers. It is the Go port of
// sfmutils/api_client.py's ApiClient.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tomnomnom/linkheader"

	"github.com/gwu-libraries/sfm-go/pkg/models"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: http.DefaultClient}
}

// get issues one paginated GET, following the chain via the Link header's
// rel="next" until exhausted, decoding each page's "results" array as T.
func get[T any](c *Client, path string, params map[string]string) ([]T, error) {
	var out []T

	u := c.baseURL + path
	query := url.Values{}
	for k, v := range params {
		if v == "" {
			continue
		}
		query.Set(k, v)
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	for u != "" {
		resp, err := c.http.Get(u)
		if err != nil {
			return nil, fmt.Errorf("requesting %s: %w", u, err)
		}

		var page struct {
			Results []T `json:"results"`
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading response body: %w", err)
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("parsing response from %s: %w", u, err)
		}
		out = append(out, page.Results...)

		u = ""
		for _, link := range linkheader.Parse(resp.Header.Get("Link")) {
			if link.Rel == "next" {
				u = link.URL
				break
			}
		}
	}

	return out, nil
}

// WARCs lists every WARC descriptor belonging to collectionID, optionally
// narrowed to specific seed uids, matching ApiClient.warcs()'s generator.
func (c *Client) WARCs(collectionID string, seedUIDs []string) ([]models.WARCDescriptor, error) {
	return get[models.WARCDescriptor](c, "/warcs", map[string]string{
		"collection": collectionID,
		"seed_uids":  strings.Join(seedUIDs, ","),
	})
}

// Collections lists collections whose id starts with idStartsWith (empty
// string lists all), matching ApiClient.collections().
func (c *Client) Collections(idStartsWith string) ([]models.CollectionDescriptor, error) {
	return get[models.CollectionDescriptor](c, "/collections", map[string]string{
		"id_starts_with": idStartsWith,
	})
}
