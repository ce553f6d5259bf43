// Package shopify is a minimal Shopify Admin REST client.
//
// Every method is a collaborator boundary: missing credentials are logged as a
// warning, transport and HTTP failures are logged as errors, and callers only
// ever see an empty or nil result.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"whoten/internal/state"
)

const defaultTimeout = 30 * time.Second

// maxErrBody caps how much of a failed response body is logged.
const maxErrBody = 2048

type Config struct {
	ShopDomain  string // e.g. your-shop.myshopify.com
	AccessToken string
	APIVersion  string
	LocationID  string
	Timeout     time.Duration

	// BaseURL overrides https://<ShopDomain>/admin/api/<APIVersion>. Tests only.
	BaseURL string
}

type Variant struct {
	ID                  int64  `json:"id,omitempty"`
	SKU                 string `json:"sku"`
	Price               string `json:"price"`
	InventoryQuantity   int    `json:"inventory_quantity"`
	InventoryManagement string `json:"inventory_management,omitempty"`
}

type Product struct {
	ID       int64     `json:"id,omitempty"`
	Title    string    `json:"title"`
	Handle   string    `json:"handle,omitempty"`
	BodyHTML string    `json:"body_html,omitempty"`
	Variants []Variant `json:"variants,omitempty"`
}

type Client struct {
	mu   sync.RWMutex
	cfg  Config
	base string
	http *http.Client

	st *state.State
}

func New(cfg Config, st *state.State) *Client {
	c := &Client{st: st}
	c.Apply(cfg)
	return c
}

// Apply swaps credentials and endpoint. Safe during in-flight requests.
func (c *Client) Apply(cfg Config) {
	cfg.ShopDomain = strings.TrimSpace(cfg.ShopDomain)
	cfg.AccessToken = strings.TrimSpace(cfg.AccessToken)
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" && cfg.ShopDomain != "" {
		base = fmt.Sprintf("https://%s/admin/api/%s", cfg.ShopDomain, cfg.APIVersion)
	}

	c.mu.Lock()
	c.cfg = cfg
	c.base = base
	c.http = &http.Client{Timeout: cfg.Timeout}
	c.mu.Unlock()
}

// Configured reports whether both the shop domain and access token are set.
func (c *Client) Configured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base != "" && c.cfg.AccessToken != ""
}

func (c *Client) snapshot() (base, token string, hc *http.Client) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base, c.cfg.AccessToken, c.http
}

// ListProducts fetches up to limit products. Failures yield an empty slice.
func (c *Client) ListProducts(ctx context.Context, limit int) []Product {
	if !c.Configured() {
		c.st.Warn("Shopify creds missing; skipping get_products", nil)
		return []Product{}
	}
	if limit <= 0 {
		limit = 50
	}
	base, token, hc := c.snapshot()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/products.json?limit="+strconv.Itoa(limit), http.NoBody)
	if err != nil {
		c.st.Error("Shopify get_products error", err.Error())
		return []Product{}
	}
	setHeaders(req, token)

	resp, err := hc.Do(req)
	if err != nil {
		c.st.Error("Shopify get_products error", err.Error())
		return []Product{}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.st.Error("Shopify get_products error", fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
		return []Product{}
	}

	var body struct {
		Products []Product `json:"products"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.st.Error("Shopify get_products error", err.Error())
		return []Product{}
	}
	if body.Products == nil {
		return []Product{}
	}
	return body.Products
}

// UpsertProduct creates p and returns the stored product, or nil on any failure.
// Existing products are not looked up; every call creates a new product.
func (c *Client) UpsertProduct(ctx context.Context, p Product) *Product {
	if !c.Configured() {
		c.st.Warn("Shopify creds missing; skipping upsert", nil)
		return nil
	}
	base, token, hc := c.snapshot()

	payload, err := json.Marshal(map[string]Product{"product": p})
	if err != nil {
		c.st.Error("Shopify upsert exception", err.Error())
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/products.json", bytes.NewReader(payload))
	if err != nil {
		c.st.Error("Shopify upsert exception", err.Error())
		return nil
	}
	setHeaders(req, token)

	resp, err := hc.Do(req)
	if err != nil {
		c.st.Error("Shopify upsert exception", err.Error())
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		c.st.Warn("Shopify create product failed", map[string]any{"status": resp.StatusCode, "body": string(b)})
		return nil
	}

	var body struct {
		Product *Product `json:"product"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.st.Error("Shopify upsert exception", err.Error())
		return nil
	}
	return body.Product
}

func setHeaders(req *http.Request, token string) {
	req.Header.Set("X-Shopify-Access-Token", token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}
