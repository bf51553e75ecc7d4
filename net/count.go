package net

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sooomo/tally"
	"github.com/sooomo/tally/crypto"
)

const (
	HeaderContentType = "Content-Type"
	ContentTypeFrame  = "application/x-tally-frame"
)

const (
	CodeOK          = 0
	CodeBadPayload  = 1
	CodeUnsupported = 2
	CodeInternal    = 3
)

type ReplyDto[TCode any, TData any] struct {
	Code TCode  `json:"code"`
	Msg  string `json:"msg"`
	Data TData  `json:"data"`
}

type TallyStore interface {
	GetTally(ctx context.Context, digest string) (tally.Tally, error)
	SetTally(ctx context.Context, digest string, t tally.Tally) error
}

type Counter struct {
	store   TallyStore
	maxBody int64
}

const DefaultMaxBody int64 = 1 << 20

// store 可以为空，此时不缓存
func NewCounter(store TallyStore, maxBody int64) *Counter {
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	return &Counter{store: store, maxBody: maxBody}
}

// frameSigner 为空时帧不带签名，/frame 与 /ws 共用
func (c *Counter) Register(r gin.IRouter, frameSigner crypto.Signer, socketOpts *SocketOptions) *Socket {
	socket := NewSocket(frameSigner, c.maxBody, socketOpts)
	r.POST("/count", c.CountHandler)
	r.POST("/frame", c.FrameHandler(frameSigner))
	r.GET("/ws", socket.Handler)
	return socket
}

func (c *Counter) readBody(ctx *gin.Context) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, c.maxBody))
}

// 只有超出大小限制才是 413，其余读取错误为 400
func readErrorStatus(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func reply(ctx *gin.Context, status, code int, msg string, t tally.Tally) {
	ctx.JSON(status, ReplyDto[int, tally.Tally]{Code: code, Msg: msg, Data: t})
}

// CountHandler 统计请求体中顶层数组的字符串与空字符串个数
func (c *Counter) CountHandler(ctx *gin.Context) {
	mediaType, _, _ := mime.ParseMediaType(ctx.GetHeader(HeaderContentType))
	marshaler := tally.MarshalerFor(mediaType)
	if marshaler == nil {
		reply(ctx, http.StatusUnsupportedMediaType, CodeUnsupported, "unsupported content type", tally.Tally{})
		return
	}
	body, err := c.readBody(ctx)
	if err != nil {
		reply(ctx, readErrorStatus(err), CodeBadPayload, err.Error(), tally.Tally{})
		return
	}

	digest := crypto.Digest(append([]byte(marshaler.ContentType()+"\n"), body...))
	if c.store != nil {
		if t, err := c.store.GetTally(ctx, digest); err == nil {
			reply(ctx, http.StatusOK, CodeOK, "ok", t)
			return
		}
	}

	seq, err := tally.DecodeSequence(marshaler, body)
	if err != nil {
		msg := "bad payload"
		if errors.Is(err, tally.ErrNotSequence) {
			msg = tally.ErrNotSequence.Error()
		}
		reply(ctx, http.StatusBadRequest, CodeBadPayload, msg, tally.Tally{})
		return
	}
	t := tally.TallyOf(seq)
	if c.store != nil {
		// 缓存写入失败不影响结果
		_ = c.store.SetTally(ctx, digest, t)
	}
	reply(ctx, http.StatusOK, CodeOK, "ok", t)
}

// FrameHandler 处理二进制计数帧，每个请求使用独立的协议实例
func (c *Counter) FrameHandler(signer crypto.Signer) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		body, err := c.readBody(ctx)
		if err != nil {
			ctx.AbortWithStatus(readErrorStatus(err))
			return
		}
		resp, err := tally.HandleCountFrame(tally.NewMsgPackProtocol(signer), body)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx.Data(http.StatusOK, ContentTypeFrame, resp)
	}
}
