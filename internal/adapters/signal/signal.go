package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NolanKnievel/bucket-list-sub001/internal/app"
	"github.com/NolanKnievel/bucket-list-sub001/internal/core"
	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
	"github.com/NolanKnievel/bucket-list-sub001/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Hub is the part of the room hub a session talks to.
type Hub interface {
	Register(ctx context.Context, conn core.SignalConnection, groupID domain.GroupID, memberID domain.MemberID) error
	Unregister(conn core.SignalConnection)
}

// Groups verifies members and applies the mutations sessions relay.
type Groups interface {
	VerifyMember(ctx context.Context, groupID domain.GroupID, memberID domain.MemberID) (*domain.Member, error)
	AddItem(ctx context.Context, groupID domain.GroupID, memberID domain.MemberID, draft app.ItemDraft, exclude core.ConnectionID) (*domain.Item, error)
	SetItemCompleted(ctx context.Context, groupID domain.GroupID, itemID domain.ItemID, completed bool, exclude core.ConnectionID) (*domain.Item, error)
}

type Config struct {
	ReadLimit         int64
	PingPeriod        time.Duration
	PongWait          time.Duration
	WriteWait         time.Duration
	SendBuffer        int
	MaxProtocolErrors int
	RateBurst         int
	RateInterval      time.Duration
	// AllowedOrigins lists browser origins allowed to upgrade. "*" allows any.
	AllowedOrigins []string
}

func DefaultConfig() Config {
	return Config{
		ReadLimit:         64 << 10,
		PingPeriod:        50 * time.Second,
		PongWait:          60 * time.Second,
		WriteWait:         10 * time.Second,
		SendBuffer:        64,
		MaxProtocolErrors: 5,
		RateBurst:         20,
		RateInterval:      time.Second,
	}
}

type SignalWSController struct {
	hub     Hub
	groups  Groups
	cfg     Config
	limiter *RateLimiter
	origins originPolicy

	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[core.ConnectionID]*WsSignalConn
}

func NewSignalWSController(hub Hub, groups Groups, cfg Config) *SignalWSController {
	def := DefaultConfig()
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = def.ReadLimit
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.MaxProtocolErrors <= 0 {
		cfg.MaxProtocolErrors = def.MaxProtocolErrors
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = def.RateBurst
	}
	if cfg.RateInterval <= 0 {
		cfg.RateInterval = def.RateInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	ctl := &SignalWSController{
		hub:     hub,
		groups:  groups,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateBurst, cfg.RateInterval),
		origins: newOriginPolicy(cfg.AllowedOrigins),
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[core.ConnectionID]*WsSignalConn),
	}
	ctl.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     ctl.origins.check,
	}
	return ctl
}

// WsSignalConn is one live websocket session. The hub only ever sees it
// through core.SignalConnection.
type WsSignalConn struct {
	id       core.ConnectionID
	groupID  domain.GroupID
	memberID domain.MemberID
	ws       *websocket.Conn
	send     chan core.Frame

	mu          sync.RWMutex
	closed      bool
	closeCode   int
	closeReason string

	lastActivity atomic.Int64
	// protocolErrors is only touched by the read pump.
	protocolErrors int
}

func newWsSignalConn(ws *websocket.Conn, groupID domain.GroupID, memberID domain.MemberID, buffer int) *WsSignalConn {
	c := &WsSignalConn{
		id:        core.ConnectionID(uuid.NewString()),
		groupID:   groupID,
		memberID:  memberID,
		ws:        ws,
		send:      make(chan core.Frame, buffer),
		closeCode: websocket.CloseGoingAway,
	}
	c.touch()
	return c
}

func (c *WsSignalConn) ID() core.ConnectionID { return c.id }

func (c *WsSignalConn) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

func (c *WsSignalConn) touch() { c.lastActivity.Store(time.Now().UnixNano()) }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Close stops accepting frames. The write pump flushes what is queued,
// sends a close frame and releases the socket.
func (c *WsSignalConn) Close() {
	c.CloseWith(websocket.CloseGoingAway, "")
}

// CloseWith is Close with an explicit close code. Only the first call wins.
func (c *WsSignalConn) CloseWith(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.send)
}

func (c *WsSignalConn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *WsSignalConn) closeMessage() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return websocket.FormatCloseMessage(c.closeCode, c.closeReason)
}

// HandleSignal authorizes memberID for groupID, upgrades the request and
// starts the session pumps. Auth failures are answered before the upgrade.
func (ctl *SignalWSController) HandleSignal(c *gin.Context, groupID domain.GroupID, memberID domain.MemberID) {
	logger := log.With().Str("module", "signal").Str("group", string(groupID)).Str("member", string(memberID)).Logger()

	if ctl.ctx.Err() != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return
	}
	if memberID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "memberId required"})
		return
	}
	member, err := ctl.groups.VerifyMember(c.Request.Context(), groupID, memberID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrNotMember):
			logger.Warn().Msg("upgrade rejected: not a member")
			c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this group"})
		case errors.Is(err, store.ErrGroupNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		default:
			logger.Error().Err(err).Msg("verify member")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	groupID, memberID = member.GroupID, member.ID

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := newWsSignalConn(ws, groupID, memberID, ctl.cfg.SendBuffer)
	if err := ctl.hub.Register(c.Request.Context(), conn, groupID, memberID); err != nil {
		logger.Error().Err(err).Str("conn", string(conn.id)).Msg("hub register")
		deadline := time.Now().Add(ctl.cfg.WriteWait)
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "register failed"), deadline)
		_ = ws.Close()
		return
	}
	if !ctl.track(conn) {
		ctl.hub.Unregister(conn)
		_ = ws.Close()
		return
	}
	logger.Info().Str("conn", string(conn.id)).Msg("new WS connection")

	ctl.wg.Add(2)
	go ctl.writePump(conn)
	go ctl.readPump(conn)
}
