package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Item is one supplier offer before pricing.
type Item struct {
	Title     string  `json:"title"`
	SKU       string  `json:"sku"`
	Cost      float64 `json:"cost"`
	Inventory int     `json:"inventory"`
}

// Source yields the current supplier catalog.
type Source interface {
	Fetch(ctx context.Context) ([]Item, error)
}

// LocalSource returns a fixed two-item catalog after Delay.
type LocalSource struct {
	Delay time.Duration
}

func (s LocalSource) Fetch(ctx context.Context) ([]Item, error) {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return []Item{
		{Title: "Premium Brake Kit", SKU: "BK-PR-001", Cost: 120.00, Inventory: 25},
		{Title: "High-Temp Grease", SKU: "GR-HT-002", Cost: 9.50, Inventory: 200},
	}, nil
}

// HTTPSource GETs a JSON array of Items.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func (s HTTPSource) Fetch(ctx context.Context) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("supplier request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	hc := s.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supplier fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("supplier fetch: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	var items []Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("supplier decode: %w", err)
	}
	return items, nil
}

// NewSource maps a SUPPLIER_API_URL value to a Source.
func NewSource(url string, timeout time.Duration) Source {
	url = strings.TrimSpace(url)
	if url == "" || strings.EqualFold(url, "local") {
		return LocalSource{Delay: time.Second}
	}
	return HTTPSource{URL: url, Client: &http.Client{Timeout: timeout}}
}

// Pricing turns a cost into a sale price.
type Pricing struct {
	Margin   float64
	Decimals int
}

// Price is cost*(1+Margin) rounded half away from zero to Decimals places.
func (p Pricing) Price(cost float64) float64 {
	scale := math.Pow(10, float64(p.Decimals))
	return math.Round(cost*(1+p.Margin)*scale) / scale
}

// Format renders v with exactly Decimals places.
func (p Pricing) Format(v float64) string {
	return strconv.FormatFloat(v, 'f', p.Decimals, 64)
}
