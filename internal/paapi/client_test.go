package paapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbot/internal/model"
)

const searchFixture = `{
  "SearchResult": {
    "TotalResultCount": 2,
    "Items": [
      {
        "ASIN": "B0HEAD0001",
        "DetailPageURL": "https://www.amazon.co.jp/dp/B0HEAD0001?tag=shop-22",
        "BrowseNodeInfo": {"BrowseNodes": [{"Id": "3477981"}, {"Id": "2285"}]},
        "ItemInfo": {"Title": {"DisplayValue": "Noise Cancelling Headphones"}},
        "Images": {"Primary": {"Large": {"URL": "https://m.media-amazon.com/images/I/1.jpg"}}},
        "Offers": {
          "Listings": [{"Price": {"DisplayAmount": "￥29,800"}}],
          "Summaries": [{"LowestPrice": {"DisplayAmount": "￥24,000"}}]
        }
      },
      {
        "ASIN": "B0HEAD0002",
        "DetailPageURL": "https://www.amazon.co.jp/dp/B0HEAD0002?tag=shop-22"
      }
    ]
  }
}`

func newTestClient(url string) *Client {
	c := NewClient(Config{
		AccessKey:   "AKIDEXAMPLE",
		SecretKey:   "secret",
		PartnerTag:  "shop-22",
		Host:        "webservices.amazon.co.jp",
		Region:      "us-west-2",
		Marketplace: "www.amazon.co.jp",
		Endpoint:    url,
	})
	c.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestSearchItems(t *testing.T) {
	t.Parallel()

	var gotReq searchItemsRequest
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		assert.Equal(t, searchPath, r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotReq)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchFixture))
	}))
	defer srv.Close()

	items, err := newTestClient(srv.URL).SearchItems(context.Background(), SearchRequest{
		Keywords:     "headphones",
		BrowseNodeID: "3477981",
		Resources:    []string{ResourceTitle, ResourceLargeImage, ResourceListPrice, ResourceLowestPrice},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, model.Item{
		ASIN:          "B0HEAD0001",
		Title:         "Noise Cancelling Headphones",
		ListPrice:     "￥29,800",
		LowestPrice:   "￥24,000",
		ImageURL:      "https://m.media-amazon.com/images/I/1.jpg",
		DetailURL:     "https://www.amazon.co.jp/dp/B0HEAD0001?tag=shop-22",
		BrowseNodeIDs: []string{"3477981", "2285"},
	}, items[0])
	assert.Equal(t, "", items[1].Title)
	assert.Equal(t, "", items[1].Price())

	assert.Equal(t, "headphones", gotReq.Keywords)
	assert.Equal(t, "3477981", gotReq.BrowseNodeID)
	assert.Equal(t, "shop-22", gotReq.PartnerTag)
	assert.Equal(t, "Associates", gotReq.PartnerType)
	assert.Equal(t, "www.amazon.co.jp", gotReq.Marketplace)

	assert.Equal(t, "amz-1.0", gotHeader.Get("Content-Encoding"))
	assert.Equal(t, searchTgt, gotHeader.Get("X-Amz-Target"))
	assert.Equal(t, "20261019T120000Z", gotHeader.Get("X-Amz-Date"))
	auth := gotHeader.Get("Authorization")
	assert.Contains(t, auth, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20261019/us-west-2/ProductAdvertisingAPI/aws4_request")
	assert.Contains(t, auth, "x-amz-target")
}

func TestSearchItemsNoResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"Errors":[{"Code":"NoResults","Message":"No results found for your request."}]}`))
	}))
	defer srv.Close()

	items, err := newTestClient(srv.URL).SearchItems(context.Background(), SearchRequest{Keywords: "zzzz"})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSearchItemsAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"Errors":[{"Code":"TooManyRequests","Message":"slow down"}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SearchItems(context.Background(), SearchRequest{Keywords: "headphones"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequest))
	assert.Contains(t, err.Error(), "TooManyRequests")
}

func TestSearchItemsNonJSONFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SearchItems(context.Background(), SearchRequest{Keywords: "headphones"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequest))
}
