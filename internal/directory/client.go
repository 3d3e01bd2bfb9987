// Package directory is a client for the marketplace's user-directory API.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/subletsquare/lease-escrow-service/internal/escrow"
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

// User is the directory record. The wallet address field is optional: users
// who have not connected a wallet simply do not have one yet.
type User struct {
	ID            string `json:"_id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	WalletAddress string `json:"walletAddress"`
}

// GetUser looks a user up by id.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	u := fmt.Sprintf("%s/users?userId=%s", c.BaseURL, url.QueryEscape(userID))
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
		return nil, fmt.Errorf("user directory returned %d", resp.StatusCode)
	}
	var users []User
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("user %s not found", userID)
	}
	return &users[0], nil
}

// WalletAddress resolves a user's on-chain address. A record without a
// usable wallet address is a valid, expected response and is reported as
// TenantWalletMissing, not a transport error.
func (c *Client) WalletAddress(ctx context.Context, userID string) (common.Address, error) {
	user, err := c.GetUser(ctx, userID)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(user.WalletAddress) {
		return common.Address{}, escrow.Errorf(escrow.KindTenantWalletMissing, "directory.WalletAddress",
			"user %s has no wallet address on file", userID)
	}
	return common.HexToAddress(user.WalletAddress), nil
}
