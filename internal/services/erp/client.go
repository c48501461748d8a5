package erp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"storebridge/internal/logger"
)

// ErrNotFound marks a 404 from the ERP. Callers treat it as a valid
// empty result, not a failure.
var ErrNotFound = errors.New("erp: resource not found")

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logger.Logger
}

// NewClient builds an ERP REST client. requestsPerSecond caps the
// outbound request rate across all sync loops sharing the client.
func NewClient(baseURL, apiKey string, timeout time.Duration, requestsPerSecond int, logger *logger.Logger) *Client {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		logger:  logger,
	}
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("ERPAPIKEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API request failed: %d - %s - %s", resp.StatusCode, endpoint, string(body))
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// FetchCategories fetches one page of categories.
func (c *Client) FetchCategories(ctx context.Context, page, pageSize int) ([]RawCategory, error) {
	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", pageSize))
	params.Set("page", fmt.Sprintf("%d", page))

	var categories []RawCategory
	if err := c.get(ctx, "/categories", params, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// FetchCategoryByID fetches a single category.
func (c *Client) FetchCategoryByID(ctx context.Context, externalID int64) (*RawCategory, error) {
	var category RawCategory
	if err := c.get(ctx, fmt.Sprintf("/categories/%d", externalID), nil, &category); err != nil {
		return nil, err
	}
	return &category, nil
}

// FetchProducts fetches one page of products, sorted by ref so that
// pagination is stable across the run.
func (c *Client) FetchProducts(ctx context.Context, page, pageSize int) ([]RawProduct, error) {
	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", pageSize))
	params.Set("page", fmt.Sprintf("%d", page))
	params.Set("sortfield", "t.ref")
	params.Set("sortorder", "ASC")

	var products []RawProduct
	if err := c.get(ctx, "/products", params, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// FetchProductByID fetches a single product and joins in its document
// list as Photos. A failed document fetch degrades to a product with no
// images rather than an error.
func (c *Client) FetchProductByID(ctx context.Context, externalID int64) (*RawProduct, error) {
	var product RawProduct
	if err := c.get(ctx, fmt.Sprintf("/products/%d", externalID), nil, &product); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("modulepart", "product")
	params.Set("id", fmt.Sprintf("%d", externalID))

	var documents []RawImage
	if err := c.get(ctx, "/documents", params, &documents); err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("failed to fetch documents for product %d: %v", externalID, err)
		}
	} else {
		product.Photos = documents
	}

	return &product, nil
}

// FetchProductVariants fetches all variants of a product.
func (c *Client) FetchProductVariants(ctx context.Context, externalID int64) ([]RawVariant, error) {
	var variants []RawVariant
	if err := c.get(ctx, fmt.Sprintf("/products/%d/variants", externalID), nil, &variants); err != nil {
		return nil, err
	}
	return variants, nil
}

// FetchProductStock fetches the per-warehouse stock breakdown for a
// product.
func (c *Client) FetchProductStock(ctx context.Context, externalID int64) (*StockResponse, error) {
	var stock StockResponse
	if err := c.get(ctx, fmt.Sprintf("/products/%d/stock", externalID), nil, &stock); err != nil {
		return nil, err
	}
	return &stock, nil
}

// FetchProductCategories fetches the categories a product belongs to.
func (c *Client) FetchProductCategories(ctx context.Context, externalID int64) ([]RawCategory, error) {
	var categories []RawCategory
	if err := c.get(ctx, fmt.Sprintf("/categories/object/product/%d", externalID), nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}
