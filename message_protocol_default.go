package tally

import (
	"errors"
	"time"

	"github.com/sooomo/tally/crypto"
)

const (
	MsgTypeCount byte = 1
)

const (
	CodeOK         byte = 0
	CodeBadPayload byte = 1
	CodeBadType    byte = 2
)

var (
	ErrBadFrame       = errors.New("bad frame format")
	ErrNoSignature    = errors.New("bad frame format: no signature")
	ErrSignatureCheck = errors.New("signature verify fail")
)

var protocolStartTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// 请求帧: [msgType][ts:4][seq][sign?][body]
// 响应帧: [msgType][ts:4][seq][code][sign?][body]
// ts 为距 2025-01-01 的秒数。DefaultMessageProtocol 保存连接状态，不可并发使用。
type DefaultMessageProtocol struct {
	timestamp time.Time
	seqNumber byte
	signer    crypto.Signer
	marshaler PayloadMarshaler
}

func NewMsgPackProtocol(signer crypto.Signer) *DefaultMessageProtocol {
	return &DefaultMessageProtocol{signer: signer, marshaler: msgpackMarshaler}
}

func NewJsonProtocol(signer crypto.Signer) *DefaultMessageProtocol {
	return &DefaultMessageProtocol{signer: signer, marshaler: jsonMarshaler}
}

func (m *DefaultMessageProtocol) GetTimestamp() time.Time { return m.timestamp }

func (m *DefaultMessageProtocol) GetSeqNumber() int { return int(m.seqNumber) }

func (m *DefaultMessageProtocol) Marshaler() PayloadMarshaler { return m.marshaler }

func (m *DefaultMessageProtocol) header(msgType byte) []byte {
	ts := int32(m.timestamp.Sub(protocolStartTime).Seconds())
	return []byte{msgType, byte(ts >> 24), byte(ts >> 16), byte(ts >> 8), byte(ts), m.seqNumber}
}

func (m *DefaultMessageProtocol) seal(out, body []byte) ([]byte, error) {
	if m.signer != nil {
		dataToSign := append(append([]byte{}, out...), body...)
		signature, err := m.signer.Sign(dataToSign)
		if err != nil {
			return nil, err
		}
		out = append(out, signature...)
	}
	return append(out, body...), nil
}

func (m *DefaultMessageProtocol) open(data []byte, headLen int) ([]byte, error) {
	body := data[headLen:]
	if m.signer != nil {
		end := headLen + m.signer.Len()
		if len(data) < end {
			return nil, ErrNoSignature
		}
		signature := data[headLen:end]
		body = data[end:]
		dataToVerify := append(append([]byte{}, data[:headLen]...), body...)
		if !m.signer.Verify(dataToVerify, signature) {
			return nil, ErrSignatureCheck
		}
	}
	return body, nil
}

func (m *DefaultMessageProtocol) readMeta(data []byte) {
	ts := int64(data[1])<<24 | int64(data[2])<<16 | int64(data[3])<<8 | int64(data[4])
	m.timestamp = protocolStartTime.Add(time.Duration(ts) * time.Second)
	m.seqNumber = data[5]
}

func (m *DefaultMessageProtocol) EncodeReq(msgType byte, payload any) ([]byte, error) {
	body, err := m.marshaler.Marshal(payload)
	if err != nil {
		return nil, err
	}
	m.timestamp = time.Now()
	m.seqNumber++
	return m.seal(m.header(msgType), body)
}

// 响应沿用最近一次请求的时间戳与序号
func (m *DefaultMessageProtocol) EncodeResp(msgType, code byte, payload any) ([]byte, error) {
	body, err := m.marshaler.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return m.seal(append(m.header(msgType), code), body)
}

func (m *DefaultMessageProtocol) DecodeReq(data []byte, payload any) (msgType byte, err error) {
	if len(data) < 6 {
		return 0, ErrBadFrame
	}
	m.readMeta(data)
	body, err := m.open(data, 6)
	if err != nil {
		return 0, err
	}
	if err = m.marshaler.Unmarshal(body, payload); err != nil {
		return 0, err
	}
	return data[0], nil
}

func (m *DefaultMessageProtocol) DecodeResp(data []byte, payload any) (msgType, code byte, err error) {
	if len(data) < 7 {
		return 0, 0, ErrBadFrame
	}
	m.readMeta(data)
	body, err := m.open(data, 7)
	if err != nil {
		return 0, 0, err
	}
	if err = m.marshaler.Unmarshal(body, payload); err != nil {
		return 0, 0, err
	}
	return data[0], data[6], nil
}

// HandleCountFrame 解码计数请求帧，统计后编码响应帧。
// 帧本身无法解析或验签失败时返回 error；负载不是数组时仍返回带错误码的响应帧。
func HandleCountFrame(m *DefaultMessageProtocol, frame []byte) ([]byte, error) {
	var raw any
	msgType, err := m.DecodeReq(frame, &raw)
	if errors.Is(err, ErrBadFrame) || errors.Is(err, ErrNoSignature) || errors.Is(err, ErrSignatureCheck) {
		return nil, err
	}
	if err != nil {
		return m.EncodeResp(frame[0], CodeBadPayload, Tally{})
	}
	if msgType != MsgTypeCount {
		return m.EncodeResp(msgType, CodeBadType, Tally{})
	}
	seq, ok := raw.([]any)
	if !ok {
		return m.EncodeResp(msgType, CodeBadPayload, Tally{})
	}
	return m.EncodeResp(msgType, CodeOK, TallyOf(seq))
}
