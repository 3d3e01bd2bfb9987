// Package agreement is a client for the marketplace's agreement API. The
// gateway reads agreements and consumes the derived fully-signed flag; the
// agreement records themselves are owned by the backend.
package agreement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/subletsquare/lease-escrow-service/internal/model"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Get fetches one agreement by id.
func (c *Client) Get(ctx context.Context, agreementID string) (*model.Agreement, error) {
	u := fmt.Sprintf("%s/agreements/%s", c.BaseURL, url.PathEscape(agreementID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("agreement %s not found", agreementID)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("agreement api returned %d", resp.StatusCode)
	}
	var ag model.Agreement
	if err := json.NewDecoder(resp.Body).Decode(&ag); err != nil {
		return nil, err
	}
	return &ag, nil
}

// ListByUser fetches every agreement the user participates in, as owner or
// tenant.
func (c *Client) ListByUser(ctx context.Context, userID string) ([]model.Agreement, error) {
	u := fmt.Sprintf("%s/agreements?userId=%s", c.BaseURL, url.QueryEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("agreement api returned %d", resp.StatusCode)
	}
	var ags []model.Agreement
	if err := json.NewDecoder(resp.Body).Decode(&ags); err != nil {
		return nil, err
	}
	return ags, nil
}

// Sign flips the calling party's signature flag server-side. Which of the
// two flags flips is determined by the submitted user id.
func (c *Client) Sign(ctx context.Context, agreementID, userID string) (*model.Agreement, error) {
	body, err := json.Marshal(map[string]string{"userId": userID})
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/agreements/%s/sign", c.BaseURL, url.PathEscape(agreementID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("agreement api returned %d", resp.StatusCode)
	}
	var ag model.Agreement
	if err := json.NewDecoder(resp.Body).Decode(&ag); err != nil {
		return nil, err
	}
	return &ag, nil
}
