package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
	"github.com/NolanKnievel/bucket-list-sub001/internal/protocol"
	"github.com/gorilla/websocket"
)

// Conn is one open transport. Read blocks; Close unblocks it.
type Conn interface {
	Read() ([]byte, error)
	Write(data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, groupID domain.GroupID, memberID domain.MemberID) (Conn, error)
}

// WSDialer connects to the server's group websocket endpoint.
type WSDialer struct {
	// BaseURL is the server root, e.g. ws://localhost:8080.
	BaseURL   string
	Header    http.Header
	WriteWait time.Duration
	Dialer    *websocket.Dialer
}

func (d WSDialer) url(groupID domain.GroupID, memberID domain.MemberID) string {
	base := strings.TrimRight(d.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	}
	return base + "/api/ws/groups/" + url.PathEscape(string(groupID)) + "?memberId=" + url.QueryEscape(string(memberID))
}

func (d WSDialer) Dial(ctx context.Context, groupID domain.GroupID, memberID domain.MemberID) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	ws, resp, err := dialer.DialContext(ctx, d.url(groupID, memberID), d.Header)
	if err != nil {
		if resp != nil {
			if herr := handshakeError(resp.StatusCode); herr != nil {
				herr.Err = err
				return nil, herr
			}
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	writeWait := d.WriteWait
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	return &wsConn{ws: ws, writeWait: writeWait}, nil
}

// handshakeError classifies a rejected upgrade. Rejections that retrying
// cannot fix are auth errors.
func handshakeError(status int) *Error {
	switch status {
	case http.StatusUnauthorized:
		return &Error{Kind: KindAuth, Code: protocol.CodeUnauthorized, Message: "upgrade rejected"}
	case http.StatusForbidden:
		return &Error{Kind: KindAuth, Code: protocol.CodeForbidden, Message: "not a member of this group"}
	case http.StatusNotFound:
		return &Error{Kind: KindAuth, Code: protocol.CodeNotFound, Message: "group not found"}
	}
	return nil
}

type wsConn struct {
	ws        *websocket.Conn
	writeWait time.Duration
	writeMu   sync.Mutex
}

func (c *wsConn) Read() ([]byte, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.ClosePolicyViolation {
				return nil, &Error{Kind: KindProtocol, Code: CodePolicyViolation, Message: "server closed the connection: " + ce.Text, Err: err}
			}
			return nil, err
		}
		if mt == websocket.TextMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.ws.Close()
}
