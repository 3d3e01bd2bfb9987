package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/subletsquare/lease-escrow-service/internal/escrow"
)

func newDirectoryServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("userId") {
		case "tenant1":
			w.Write([]byte(`[{"_id":"tenant1","name":"Ada","walletAddress":"0xafC65d5831682d1bD4998F1aA798d8e60B9afd00"}]`))
		case "no-wallet":
			w.Write([]byte(`[{"_id":"no-wallet","name":"Ben","walletAddress":""}]`))
		case "bad-wallet":
			w.Write([]byte(`[{"_id":"bad-wallet","name":"Cas","walletAddress":"not-an-address"}]`))
		default:
			w.Write([]byte(`[]`))
		}
	}))
}

func TestWalletAddress(t *testing.T) {
	srv := newDirectoryServer(t)
	defer srv.Close()
	c := New(srv.URL)

	addr, err := c.WalletAddress(context.Background(), "tenant1")
	assert.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xafC65d5831682d1bD4998F1aA798d8e60B9afd00"), addr)
}

func TestWalletAddress_Missing(t *testing.T) {
	srv := newDirectoryServer(t)
	defer srv.Close()
	c := New(srv.URL)

	for _, userID := range []string{"no-wallet", "bad-wallet"} {
		_, err := c.WalletAddress(context.Background(), userID)
		assert.Error(t, err)
		assert.True(t, escrow.IsKind(err, escrow.KindTenantWalletMissing), "wrong kind for %s", userID)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	srv := newDirectoryServer(t)
	defer srv.Close()
	c := New(srv.URL)

	_, err := c.GetUser(context.Background(), "nobody")
	assert.Error(t, err)
	// An unknown user is a lookup failure, not a missing wallet.
	assert.False(t, escrow.IsKind(err, escrow.KindTenantWalletMissing))
}
