package net

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/sooomo/tally/crypto"
	"github.com/sooomo/tally/id"
)

var (
	HeaderSignTimestamp = "x-tally-timestamp"
	HeaderSignNonce     = "x-tally-nonce"
	HeaderSignSignature = "x-tally-signature"
)

func InitSignHeaders(bizType string) {
	HeaderSignTimestamp = fmt.Sprintf("x-%s-timestamp", bizType)
	HeaderSignNonce = fmt.Sprintf("x-%s-nonce", bizType)
	HeaderSignSignature = fmt.Sprintf("x-%s-signature", bizType)
}

// 用于生成待签名的内容
func DefaultSignRule(params map[string]string) []byte {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := strings.Builder{}
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("%s=%s", k, params[k]))
	}
	return []byte(b.String())
}

// 防止重放攻击的中间件，canNext 对同一个 nonce 只应返回一次 true
func ReplayInterceptMiddleware(canNext func(ctx context.Context, nonce string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce := c.GetHeader(HeaderSignNonce)
		if len(nonce) == 0 || !canNext(c.Request.Context(), nonce) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "no replay"})
			return
		}
		c.Next()
	}
}

func RateLimitMiddleware(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// 签名及验证的中间件，签名为 base64 字符串。
// maxBody 限制参与验签的请求体大小，websocket 握手只验签，不签响应。
func SignatureMiddleware(signerGetter func(ctx *gin.Context) crypto.Signer, signRule func(mp map[string]string) []byte, maxBody int64) gin.HandlerFunc {
	if signRule == nil {
		signRule = DefaultSignRule
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	return func(c *gin.Context) {
		signer := signerGetter(c)
		if signer == nil {
			c.AbortWithError(http.StatusInternalServerError, errors.New("signer get fail"))
			return
		}

		var reqBody []byte
		if c.Request.Body != nil {
			var err error
			reqBody, err = io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBody))
			if err != nil {
				c.AbortWithStatusJSON(readErrorStatus(err), gin.H{"error": "read body fail"})
				return
			}
			// 重置请求体
			c.Request.Body = io.NopCloser(bytes.NewReader(reqBody))
			c.Request.ContentLength = int64(len(reqBody))
		}

		reqSignData := signRule(map[string]string{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"query":     c.Request.URL.RawQuery,
			"timestamp": c.GetHeader(HeaderSignTimestamp),
			"body":      string(reqBody),
			"nonce":     c.GetHeader(HeaderSignNonce),
		})
		if !signer.VerifyFromString(reqSignData, c.GetHeader(HeaderSignSignature)) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}

		if c.IsWebsocket() {
			c.Next()
			return
		}

		// 响应头必须在写响应体之前设置，因此先缓冲整个响应
		w := c.Writer
		buffered := &bufferedWriter{ResponseWriter: w, body: &bytes.Buffer{}, status: http.StatusOK}
		c.Writer = buffered
		c.Next()
		c.Writer = w

		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		nonce := id.NewUUIDWithoutDash()
		respSign, err := signer.SignToString(signRule(map[string]string{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"query":     c.Request.URL.RawQuery,
			"timestamp": timestamp,
			"body":      buffered.body.String(),
			"nonce":     nonce,
		}))
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.WriteString("sign resp fail")
			return
		}
		w.Header().Set(HeaderSignTimestamp, timestamp)
		w.Header().Set(HeaderSignNonce, nonce)
		w.Header().Set(HeaderSignSignature, respSign)
		// 浏览器需要此头才能读取签名
		w.Header().Set("Access-Control-Expose-Headers", fmt.Sprintf("%v,%v,%v", HeaderSignTimestamp, HeaderSignNonce, HeaderSignSignature))
		w.WriteHeader(buffered.status)
		w.Write(buffered.body.Bytes())
	}
}

// 缓冲状态码与响应体，直到签名完成
type bufferedWriter struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (w *bufferedWriter) WriteHeader(code int) { w.status = code }

func (w *bufferedWriter) WriteHeaderNow() {}

func (w *bufferedWriter) Status() int { return w.status }

func (w *bufferedWriter) Written() bool { return w.body.Len() > 0 }

func (w *bufferedWriter) Size() int { return w.body.Len() }

func (w *bufferedWriter) Write(b []byte) (int, error) { return w.body.Write(b) }

func (w *bufferedWriter) WriteString(s string) (int, error) { return w.body.WriteString(s) }
