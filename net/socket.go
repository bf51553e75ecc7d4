package net

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sooomo/tally"
	"github.com/sooomo/tally/crypto"
)

type SocketOptions struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	CheckOrigin      func(r *http.Request) bool
}

func (o *SocketOptions) withDefaults() SocketOptions {
	out := SocketOptions{}
	if o != nil {
		out = *o
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = time.Minute
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 10 * time.Second
	}
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = 10 * time.Second
	}
	return out
}

// Socket 在 websocket 连接上收发计数帧，每个连接一个协议实例
type Socket struct {
	signer    crypto.Signer
	maxFrame  int64
	opts      SocketOptions
	upgrader  websocket.Upgrader
	lineCount atomic.Int32 // 所有仍在连接状态的数量
}

func NewSocket(signer crypto.Signer, maxFrame int64, opts *SocketOptions) *Socket {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxBody
	}
	o := opts.withDefaults()
	return &Socket{
		signer:   signer,
		maxFrame: maxFrame,
		opts:     o,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: o.HandshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			WriteBufferPool:  &sync.Pool{},
			CheckOrigin:      o.CheckOrigin,
		},
	}
}

func (s *Socket) LiveCount() int { return int(s.lineCount.Load()) }

// Handler 升级为 websocket，升级失败时 upgrader 已写入错误响应
func (s *Socket) Handler(ctx *gin.Context) {
	conn, err := s.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(s.maxFrame)
	l := &Line{
		socket:    s,
		conn:      conn,
		proto:     tally.NewMsgPackProtocol(s.signer),
		writeChan: make(chan []byte, 64),
		closeChan: make(chan struct{}),
	}
	s.lineCount.Add(1)
	l.start()
}

type Line struct {
	socket     *Socket
	conn       *websocket.Conn
	proto      *tally.DefaultMessageProtocol
	lastActive atomic.Int64
	writeChan  chan []byte
	closeChan  chan struct{}
	closeOnce  sync.Once
}

func (l *Line) LastActive() time.Time { return time.Unix(l.lastActive.Load(), 0) }

func (l *Line) start() {
	l.lastActive.Store(time.Now().Unix())
	go l.readLoop()
	go l.writeLoop()
}

func (l *Line) readLoop() {
	l.conn.SetPingHandler(func(appData string) error {
		l.lastActive.Store(time.Now().Unix())
		return l.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(l.socket.opts.WriteTimeout))
	})
	for {
		if err := l.conn.SetReadDeadline(time.Now().Add(l.socket.opts.ReadTimeout)); err != nil {
			l.close(websocket.CloseInternalServerErr, "")
			return
		}
		msgType, data, err := l.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				l.close(websocket.CloseNormalClosure, "")
			} else if errors.Is(err, websocket.ErrReadLimit) {
				l.close(websocket.CloseMessageTooBig, "")
			} else {
				l.close(-1, "")
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			// 只接受二进制帧
			l.close(websocket.CloseUnsupportedData, "binary frames only")
			return
		}
		l.lastActive.Store(time.Now().Unix())

		resp, err := tally.HandleCountFrame(l.proto, data)
		if err != nil {
			l.close(websocket.CloseInvalidFramePayloadData, err.Error())
			return
		}
		select {
		case l.writeChan <- resp:
		case <-l.closeChan:
			return
		}
	}
}

func (l *Line) writeLoop() {
	for {
		select {
		case msg := <-l.writeChan:
			if err := l.conn.SetWriteDeadline(time.Now().Add(l.socket.opts.WriteTimeout)); err != nil {
				l.close(-1, "")
				return
			}
			if err := l.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				l.close(-1, "")
				return
			}
		case <-l.closeChan:
			return
		}
	}
}

// code < 0 时不发送关闭控制帧
func (l *Line) close(code int, text string) {
	l.closeOnce.Do(func() {
		close(l.closeChan)
		if code >= 0 {
			// 发送关闭消息，客户端才能正确识别关闭代码
			message := websocket.FormatCloseMessage(code, text)
			l.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(l.socket.opts.WriteTimeout))
		}
		l.conn.Close()
		l.socket.lineCount.Add(-1)
	})
}
