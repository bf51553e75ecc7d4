package net_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sooomo/tally/crypto"
	"github.com/sooomo/tally/id"
	tnet "github.com/sooomo/tally/net"
)

func TestDefaultSignRule(t *testing.T) {
	got := tnet.DefaultSignRule(map[string]string{"b": "2", "a": "1", "c": ""})
	assert.Equal(t, "a=1b=2c=", string(got))
}

func TestReplayInterceptMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	seen := map[string]bool{}
	r := gin.New()
	r.Use(tnet.ReplayInterceptMiddleware(func(_ context.Context, nonce string) bool {
		if seen[nonce] {
			return false
		}
		seen[nonce] = true
		return true
	}))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	do := func(nonce string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		if nonce != "" {
			req.Header.Set(tnet.HeaderSignNonce, nonce)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, do("n1"))
	assert.Equal(t, http.StatusForbidden, do("n1"))
	assert.Equal(t, http.StatusForbidden, do(""))
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(tnet.RateLimitMiddleware(rate.NewLimiter(rate.Every(time.Hour), 1)))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestSignatureMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cPub, cPri, err := crypto.NewEd25519KeyPair()
	require.NoError(t, err)
	sPub, sPri, err := crypto.NewEd25519KeyPair()
	require.NoError(t, err)
	clientSigner := crypto.NewEd25519Signer(sPub, cPri)
	serverSigner := crypto.NewEd25519Signer(cPub, sPri)

	r := gin.New()
	r.Use(tnet.SignatureMiddleware(func(*gin.Context) crypto.Signer { return serverSigner }, nil, 64))
	tnet.NewCounter(nil, 0).Register(r, nil, nil)

	body := []byte(`["", 4, "", "goodbye", ""]`)
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	nonce := id.NewUUIDWithoutDash()
	sign, err := clientSigner.SignToString(tnet.DefaultSignRule(map[string]string{
		"method":    http.MethodPost,
		"path":      "/count",
		"query":     "",
		"timestamp": ts,
		"body":      string(body),
		"nonce":     nonce,
	}))
	require.NoError(t, err)

	newReq := func(sig string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/count", bytes.NewReader(body))
		req.Header.Set(tnet.HeaderContentType, "application/json")
		req.Header.Set(tnet.HeaderSignTimestamp, ts)
		req.Header.Set(tnet.HeaderSignNonce, nonce)
		req.Header.Set(tnet.HeaderSignSignature, sig)
		return req
	}

	t.Run("valid", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, newReq(sign))
		require.Equal(t, http.StatusOK, w.Code)

		respSign := w.Header().Get(tnet.HeaderSignSignature)
		require.NotEmpty(t, respSign)
		data := tnet.DefaultSignRule(map[string]string{
			"method":    http.MethodPost,
			"path":      "/count",
			"query":     "",
			"timestamp": w.Header().Get(tnet.HeaderSignTimestamp),
			"body":      w.Body.String(),
			"nonce":     w.Header().Get(tnet.HeaderSignNonce),
		})
		assert.True(t, clientSigner.VerifyFromString(data, respSign))
		assert.Contains(t, w.Body.String(), `"empty_strings":3`)
	})

	t.Run("invalid", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, newReq("bm90IGEgc2lnbmF0dXJl"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("body_too_large", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/count", bytes.NewReader(bytes.Repeat([]byte("a"), 65)))
		req.Header.Set(tnet.HeaderSignSignature, sign)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}
