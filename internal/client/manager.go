package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
	"github.com/NolanKnievel/bucket-list-sub001/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Action is an outbound mutation waiting for a connected transport.
type Action struct {
	Type protocol.Type
	Data any
}

type StateChange struct {
	From State
	To   State
}

type Options struct {
	Dialer      Dialer
	Backoff     Backoff
	MaxAttempts int
}

// Manager runs the connection state machine for one member.
//
// Listeners are invoked on the manager's event loop. They may call any
// Manager method except Close.
type Manager struct {
	dialer  Dialer
	backoff Backoff

	inbox *mailbox
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once

	state atomic.Int32

	mu     sync.Mutex
	target struct {
		GroupID  domain.GroupID
		MemberID domain.MemberID
	}
	queue []Action

	// owned by the event loop
	machine     Machine
	conn        Conn
	writeFailed bool
	dialCancel  context.CancelFunc
	retry       *time.Timer
	ctx         context.Context
	cancel      context.CancelFunc

	onState        listeners[StateChange]
	onMemberJoined listeners[domain.Member]
	onItemAdded    listeners[protocol.ItemAdded]
	onItemUpdated  listeners[protocol.ItemUpdated]
	onError        listeners[*Error]
}

func NewManager(opts Options) *Manager {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff = DefaultBackoff()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		dialer:  opts.Dialer,
		backoff: opts.Backoff,
		inbox:   newMailbox(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		machine: Machine{State: Disconnected, MaxAttempts: opts.MaxAttempts},
		ctx:     ctx,
		cancel:  cancel,
	}
	go m.loop()
	return m
}

// loop messages
type (
	cmdConnect struct {
		groupID  domain.GroupID
		memberID domain.MemberID
		dropped  []Action
	}
	cmdReconnect  struct{}
	cmdDisconnect struct{}
	cmdFlush      struct{}
	dialResult    struct {
		gen  uint64
		conn Conn
		err  error
	}
	inbound struct {
		gen  uint64
		data []byte
	}
	readClosed struct {
		gen uint64
		err error
	}
	timerFired struct{ gen uint64 }
)

func (m *Manager) State() State { return State(m.state.Load()) }

// Connect starts a connect cycle for memberID in groupID. Queued actions
// addressed to another group are dropped and reported through OnError.
func (m *Manager) Connect(groupID domain.GroupID, memberID domain.MemberID) {
	m.mu.Lock()
	var dropped []Action
	if m.target.GroupID != "" && m.target.GroupID != groupID {
		dropped = m.queue
		m.queue = nil
	}
	m.target.GroupID, m.target.MemberID = groupID, memberID
	m.mu.Unlock()
	m.inbox.put(cmdConnect{groupID: groupID, memberID: memberID, dropped: dropped})
}

// Reconnect forces a fresh connect cycle; it is the way out of Failed.
func (m *Manager) Reconnect() { m.inbox.put(cmdReconnect{}) }

// Disconnect closes the connection and returns the queued actions that
// will not be sent.
func (m *Manager) Disconnect() []Action {
	m.mu.Lock()
	dropped := m.queue
	m.queue = nil
	m.mu.Unlock()
	m.inbox.put(cmdDisconnect{})
	return dropped
}

// Queued reports how many actions wait for a connection.
func (m *Manager) Queued() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// AddItem queues an item_added for the current group. MemberID defaults to
// the connecting member.
func (m *Manager) AddItem(item protocol.ItemInput) error {
	m.mu.Lock()
	if m.target.GroupID == "" {
		m.mu.Unlock()
		return ErrNoGroup
	}
	if item.MemberID == "" {
		item.MemberID = m.target.MemberID
	}
	m.queue = append(m.queue, Action{
		Type: protocol.TypeItemAdded,
		Data: protocol.ItemAdded{GroupID: m.target.GroupID, Item: item},
	})
	m.mu.Unlock()
	m.inbox.put(cmdFlush{})
	return nil
}

func (m *Manager) ToggleCompletion(itemID domain.ItemID, completed bool) error {
	m.mu.Lock()
	if m.target.GroupID == "" {
		m.mu.Unlock()
		return ErrNoGroup
	}
	m.queue = append(m.queue, Action{
		Type: protocol.TypeItemUpdated,
		Data: protocol.ItemUpdated{GroupID: m.target.GroupID, ItemID: itemID, Completed: completed},
	})
	m.mu.Unlock()
	m.inbox.put(cmdFlush{})
	return nil
}

func (m *Manager) OnStateChange(fn func(StateChange)) func() { return m.onState.add(fn) }
func (m *Manager) OnMemberJoined(fn func(domain.Member)) func() {
	return m.onMemberJoined.add(fn)
}
func (m *Manager) OnItemAdded(fn func(protocol.ItemAdded)) func() { return m.onItemAdded.add(fn) }
func (m *Manager) OnItemUpdated(fn func(protocol.ItemUpdated)) func() {
	return m.onItemUpdated.add(fn)
}
func (m *Manager) OnError(fn func(*Error)) func() { return m.onError.add(fn) }

// Close disconnects and stops the event loop. Queued actions are discarded.
func (m *Manager) Close() {
	m.once.Do(func() { close(m.stop) })
	<-m.done
}

func (m *Manager) loop() {
	defer close(m.done)
	for {
		select {
		case <-m.stop:
			m.apply(EvDisconnect{})
			m.cancel()
			return
		case <-m.inbox.ready:
			for _, msg := range m.inbox.drain() {
				m.handle(msg)
			}
		}
	}
}

func (m *Manager) handle(msg any) {
	switch e := msg.(type) {
	case cmdConnect:
		if len(e.dropped) > 0 {
			m.onError.emit(&Error{Kind: KindCapacity, Code: CodeDroppedActions, Message: "queued actions for the previous group were dropped", Details: e.dropped})
		}
		m.apply(EvConnect{GroupID: e.groupID, MemberID: e.memberID})
	case cmdReconnect:
		m.apply(EvReconnect{})
	case cmdDisconnect:
		m.apply(EvDisconnect{})
	case cmdFlush:
		if m.machine.State == Connected {
			m.flush()
		}
	case dialResult:
		if e.gen != m.machine.Generation || m.machine.State != Connecting {
			if e.conn != nil {
				_ = e.conn.Close()
			}
			return
		}
		m.dialCancel = nil
		if e.err != nil {
			m.apply(EvClosed{Gen: e.gen, Err: e.err, Terminal: isTerminal(e.err)})
			return
		}
		m.conn = e.conn
		m.writeFailed = false
		go m.read(e.gen, e.conn)
		m.apply(EvOpened{Gen: e.gen})
	case inbound:
		if e.gen == m.machine.Generation && m.machine.State == Connected {
			m.dispatch(e.gen, e.data)
		}
	case readClosed:
		m.apply(EvClosed{Gen: e.gen, Err: e.err, Terminal: isTerminal(e.err)})
	case timerFired:
		m.apply(EvTimerFired{Gen: e.gen})
	}
}

func (m *Manager) apply(ev Event) {
	next, effects := Transition(m.machine, ev)
	m.machine = next
	m.state.Store(int32(next.State))
	for _, eff := range effects {
		m.run(eff)
	}
}

func (m *Manager) run(eff Effect) {
	switch e := eff.(type) {
	case Dial:
		ctx, cancel := context.WithCancel(m.ctx)
		m.dialCancel = cancel
		log.Debug().Str("module", "client").Str("group", string(e.GroupID)).Uint64("gen", e.Gen).Msg("dialing")
		go func() {
			conn, err := m.dialer.Dial(ctx, e.GroupID, e.MemberID)
			m.inbox.put(dialResult{gen: e.Gen, conn: conn, err: err})
		}()
	case CloseTransport:
		if m.dialCancel != nil {
			m.dialCancel()
			m.dialCancel = nil
		}
		if m.conn != nil {
			_ = m.conn.Close()
			m.conn = nil
		}
	case SendJoin:
		frame, err := protocol.Frame(protocol.TypeJoin, protocol.Join{GroupID: e.GroupID, MemberID: e.MemberID})
		if err == nil {
			m.write(frame)
		}
	case FlushQueue:
		m.flush()
	case ScheduleRetry:
		delay := m.backoff.Delay(e.Attempt)
		log.Info().Str("module", "client").Int("attempt", e.Attempt+1).Dur("delay", delay).Msg("reconnecting")
		gen := e.Gen
		m.retry = time.AfterFunc(delay, func() { m.inbox.put(timerFired{gen: gen}) })
	case CancelRetry:
		if m.retry != nil {
			m.retry.Stop()
			m.retry = nil
		}
	case NotifyState:
		log.Info().Str("module", "client").Stringer("from", e.From).Stringer("to", e.To).Msg("state")
		m.onState.emit(StateChange{From: e.From, To: e.To})
	case NotifyError:
		m.onError.emit(e.Err)
	}
}

// write sends one frame. A failure is reported as a lost transport; the
// caller keeps whatever it failed to send.
func (m *Manager) write(frame []byte) bool {
	if m.conn == nil || m.writeFailed {
		return false
	}
	if err := m.conn.Write(frame); err != nil {
		m.writeFailed = true
		m.inbox.put(readClosed{gen: m.machine.Generation, err: err})
		return false
	}
	return true
}

// flush sends queued actions in issue order until the queue is empty or a
// write fails.
func (m *Manager) flush() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		a := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		frame, err := protocol.Frame(a.Type, a.Data)
		if err != nil {
			m.onError.emit(&Error{Kind: KindProtocol, Code: protocol.CodeMalformed, Message: "cannot encode action", Details: a, Err: err})
			continue
		}
		if !m.write(frame) {
			m.mu.Lock()
			m.queue = append([]Action{a}, m.queue...)
			m.mu.Unlock()
			return
		}
	}
}

func (m *Manager) read(gen uint64, conn Conn) {
	for {
		data, err := conn.Read()
		if err != nil {
			m.inbox.put(readClosed{gen: gen, err: err})
			return
		}
		m.inbox.put(inbound{gen: gen, data: data})
	}
}

func (m *Manager) dispatch(gen uint64, data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		m.onError.emit(&Error{Kind: KindProtocol, Code: protocol.CodeMalformed, Message: "bad frame from server", Err: err})
		return
	}
	switch env.Type {
	case protocol.TypeMemberJoined:
		var p protocol.MemberJoined
		if m.decode(env, &p) {
			m.onMemberJoined.emit(p)
		}
	case protocol.TypeItemAdded:
		var p protocol.ItemAdded
		if m.decode(env, &p) {
			m.onItemAdded.emit(p)
		}
	case protocol.TypeItemUpdated:
		var p protocol.ItemUpdated
		if m.decode(env, &p) {
			m.onItemUpdated.emit(p)
		}
	case protocol.TypeError:
		var p protocol.Error
		if !m.decode(env, &p) {
			return
		}
		e := fromServer(p)
		if e.Terminal() {
			m.apply(EvClosed{Gen: gen, Err: e, Terminal: true})
			return
		}
		m.onError.emit(e)
	default:
		m.onError.emit(&Error{Kind: KindProtocol, Code: protocol.CodeNotAllowed, Message: "unexpected " + string(env.Type) + " from server"})
	}
}

func (m *Manager) decode(env protocol.Envelope, dst any) bool {
	if err := protocol.DecodeData(env, dst); err != nil {
		m.onError.emit(&Error{Kind: KindProtocol, Code: protocol.CodeInvalidPayload, Message: "bad " + string(env.Type) + " payload", Err: err})
		return false
	}
	return true
}

// mailbox is an unbounded FIFO so posting never blocks, not even from a
// listener running on the loop.
type mailbox struct {
	mu    sync.Mutex
	items []any
	ready chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (mb *mailbox) put(v any) {
	mb.mu.Lock()
	mb.items = append(mb.items, v)
	mb.mu.Unlock()
	select {
	case mb.ready <- struct{}{}:
	default:
	}
}

func (mb *mailbox) drain() []any {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	items := mb.items
	mb.items = nil
	return items
}
