package blockfrost

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

func TestSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tx/submit", r.URL.Path)
		assert.Equal(t, "application/cbor", r.Header.Get("Content-Type"))
		assert.Equal(t, "mainnetKEY", r.Header.Get("project_id"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte{0x84, 0xa4, 0x00}, body)
		_, _ = io.WriteString(w, `"6f1c2b"`)
	}))
	defer srv.Close()

	hash, err := New(srv.URL, "mainnetKEY", 0).Submit(context.Background(), "84a400")
	require.NoError(t, err)
	assert.Equal(t, "6f1c2b", hash)
}

func TestSubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"status_code":400,"error":"Bad Request","message":"ValueNotConservedUTxO"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "k", 0)
	_, err := c.Submit(context.Background(), "84a400")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSubmitFailed))
	assert.Contains(t, err.Error(), "ValueNotConservedUTxO")

	_, err = c.Submit(context.Background(), "zz")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestCheckConfirmed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/txs/confirmed":
			_, _ = io.WriteString(w, `{"hash":"confirmed","block":"abc","block_height":100,"fees":"182485"}`)
		case "/txs/pending":
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"status_code":404,"message":"The requested component has not been found."}`)
		default:
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"message":"Usage is over limit."}`)
		}
	}))
	defer srv.Close()
	c := New(srv.URL, "k", 0)
	ctx := context.Background()

	ok, fee, err := c.CheckConfirmed(ctx, "confirmed")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 0.182485, fee, 1e-12)

	ok, fee, err = c.CheckConfirmed(ctx, "pending")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, fee)

	_, _, err = c.CheckConfirmed(ctx, "limited")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Usage is over limit.")
}

func TestBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/addresses/addr1known":
			_, _ = io.WriteString(w, `{"address":"addr1known","amount":[
				{"unit":"29d222ce763455e3d7a09a665ce554f00ac89d2e99a1a83d267170c64d494e","quantity":"5000"},
				{"unit":"lovelace","quantity":"523400000"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	c := New(srv.URL, "k", 0)

	bal, err := AddressBalance{Client: c, Address: "addr1known"}.Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 523.4, bal, 1e-9)

	bal, err = c.Balance(context.Background(), "addr1fresh")
	require.NoError(t, err)
	assert.Zero(t, bal)
}
