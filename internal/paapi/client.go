// Package paapi is a minimal Amazon Product Advertising API 5.0 client
// covering SearchItems.
package paapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"shopbot/internal/model"
)

const (
	serviceName = "ProductAdvertisingAPI"
	searchPath  = "/paapi5/searchitems"
	searchTgt   = "com.amazon.paapi5.v1.ProductAdvertisingAPIv1.SearchItems"

	// errNoResults is the error code PA-API returns for an empty search.
	errNoResults = "NoResults"
)

// Resources selectable in a SearchItems call.
const (
	ResourceBrowseNodes = "BrowseNodeInfo.BrowseNodes"
	ResourceTitle       = "ItemInfo.Title"
	ResourceLargeImage  = "Images.Primary.Large"
	ResourceListPrice   = "Offers.Listings.Price"
	ResourceLowestPrice = "Offers.Summaries.LowestPrice"
)

// ErrRequest is returned when PA-API answers with an error.
var ErrRequest = errors.New("paapi: request failed")

// SearchRequest describes one SearchItems call. BrowseNodeID is optional.
type SearchRequest struct {
	Keywords     string
	BrowseNodeID string
	Resources    []string
	ItemCount    int
}

// Config holds credentials and marketplace settings.
type Config struct {
	AccessKey   string
	SecretKey   string
	PartnerTag  string
	Host        string
	Region      string
	Marketplace string
	// Endpoint overrides "https://" + Host, e.g. for tests.
	Endpoint string
	Timeout  time.Duration
}

// Client signs requests with AWS Signature Version 4.
type Client struct {
	endpoint    string
	region      string
	partnerTag  string
	marketplace string
	creds       aws.CredentialsProvider
	signer      *v4.Signer
	httpClient  *http.Client
	now         func() time.Time
}

// NewClient creates a PA-API client.
func NewClient(cfg Config) *Client {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "https://" + cfg.Host
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:    endpoint,
		region:      cfg.Region,
		partnerTag:  cfg.PartnerTag,
		marketplace: cfg.Marketplace,
		creds:       credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		signer:      v4.NewSigner(),
		httpClient:  &http.Client{Timeout: timeout},
		now:         time.Now,
	}
}

type searchItemsRequest struct {
	Keywords     string   `json:"Keywords"`
	BrowseNodeID string   `json:"BrowseNodeId,omitempty"`
	Resources    []string `json:"Resources"`
	ItemCount    int      `json:"ItemCount,omitempty"`
	PartnerTag   string   `json:"PartnerTag"`
	PartnerType  string   `json:"PartnerType"`
	Marketplace  string   `json:"Marketplace"`
}

type displayAmount struct {
	DisplayAmount string `json:"DisplayAmount"`
}

type apiItem struct {
	ASIN           string `json:"ASIN"`
	DetailPageURL  string `json:"DetailPageURL"`
	BrowseNodeInfo *struct {
		BrowseNodes []struct {
			ID string `json:"Id"`
		} `json:"BrowseNodes"`
	} `json:"BrowseNodeInfo"`
	ItemInfo *struct {
		Title *struct {
			DisplayValue string `json:"DisplayValue"`
		} `json:"Title"`
	} `json:"ItemInfo"`
	Images *struct {
		Primary *struct {
			Large *struct {
				URL string `json:"URL"`
			} `json:"Large"`
		} `json:"Primary"`
	} `json:"Images"`
	Offers *struct {
		Listings []struct {
			Price *displayAmount `json:"Price"`
		} `json:"Listings"`
		Summaries []struct {
			LowestPrice *displayAmount `json:"LowestPrice"`
		} `json:"Summaries"`
	} `json:"Offers"`
}

type apiError struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

type searchItemsResponse struct {
	SearchResult *struct {
		Items []apiItem `json:"Items"`
	} `json:"SearchResult"`
	Errors []apiError `json:"Errors"`
}

// SearchItems runs a keyword search. An empty result is not an error.
func (c *Client) SearchItems(ctx context.Context, sr SearchRequest) ([]model.Item, error) {
	body, err := json.Marshal(searchItemsRequest{
		Keywords:     sr.Keywords,
		BrowseNodeID: sr.BrowseNodeID,
		Resources:    sr.Resources,
		ItemCount:    sr.ItemCount,
		PartnerTag:   c.partnerTag,
		PartnerType:  "Associates",
		Marketplace:  c.marketplace,
	})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+searchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Content-Encoding", "amz-1.0")
	req.Header.Set("X-Amz-Target", searchTgt)

	if err := c.sign(ctx, req, body); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	var out searchItemsResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode/100 != 2 {
			return nil, fmt.Errorf("%w (status %d)", ErrRequest, resp.StatusCode)
		}
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	if len(out.Errors) > 0 {
		if out.Errors[0].Code == errNoResults {
			return nil, nil
		}
		return nil, fmt.Errorf("%w (status %d): %s: %s", ErrRequest, resp.StatusCode, out.Errors[0].Code, out.Errors[0].Message)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w (status %d)", ErrRequest, resp.StatusCode)
	}
	if out.SearchResult == nil {
		return nil, nil
	}

	items := make([]model.Item, 0, len(out.SearchResult.Items))
	for _, it := range out.SearchResult.Items {
		items = append(items, it.toModel())
	}
	return items, nil
}

func (c *Client) sign(ctx context.Context, req *http.Request, body []byte) error {
	creds, err := c.creds.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("retrieve credentials: %w", err)
	}
	sum := sha256.Sum256(body)
	if err := c.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), serviceName, c.region, c.now()); err != nil {
		return fmt.Errorf("sign search request: %w", err)
	}
	return nil
}

func (it apiItem) toModel() model.Item {
	item := model.Item{
		ASIN:      it.ASIN,
		DetailURL: it.DetailPageURL,
	}
	if it.BrowseNodeInfo != nil {
		for _, n := range it.BrowseNodeInfo.BrowseNodes {
			item.BrowseNodeIDs = append(item.BrowseNodeIDs, n.ID)
		}
	}
	if it.ItemInfo != nil && it.ItemInfo.Title != nil {
		item.Title = it.ItemInfo.Title.DisplayValue
	}
	if it.Images != nil && it.Images.Primary != nil && it.Images.Primary.Large != nil {
		item.ImageURL = it.Images.Primary.Large.URL
	}
	if it.Offers != nil {
		if len(it.Offers.Listings) > 0 && it.Offers.Listings[0].Price != nil {
			item.ListPrice = it.Offers.Listings[0].Price.DisplayAmount
		}
		if len(it.Offers.Summaries) > 0 && it.Offers.Summaries[0].LowestPrice != nil {
			item.LowestPrice = it.Offers.Summaries[0].LowestPrice.DisplayAmount
		}
	}
	return item
}
