// Package realtime subscribes to server-pushed row changes over the BaaS realtime websocket.
//
// Every Subscribe call is its own channel, even for a topic that is already subscribed. Delivery is
// at-least-once and unordered relative to REST responses. Events that occur while a channel is not
// joined (before Subscribe, during a reconnect) are not replayed.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
)

var (
	// ErrClosed is returned by Subscribe after Close.
	ErrClosed = errors.New("realtime: bridge closed")
	// ErrNotConfigured is returned when the bridge has no URL (demo mode).
	ErrNotConfigured = errors.New("realtime: not configured")
	// ErrJoinRejected is returned when the server refuses a channel join.
	ErrJoinRejected = errors.New("realtime: join rejected")
	errDisconnected = errors.New("realtime: disconnected")
)

const (
	defaultHeartbeat   = 25 * time.Second
	defaultJoinTimeout = 10 * time.Second
	readLimit          = 1 << 20
)

// TokenSource supplies the user access token sent when joining. *session.Store implements it.
type TokenSource interface {
	AccessToken() string
}

// Filter selects the row changes a channel receives.
type Filter struct {
	// Event is INSERT, UPDATE, DELETE or "*" (default).
	Event  string
	Schema string // default "public"
	Table  string
	// Filter is a column filter such as "user_id=eq.42".
	Filter string
}

func (f Filter) binding() changeBinding {
	b := changeBinding{Event: f.Event, Schema: f.Schema, Table: f.Table, Filter: f.Filter}
	if b.Event == "" {
		b.Event = "*"
	}
	if b.Schema == "" {
		b.Schema = "public"
	}
	return b
}

// Channel is one subscription.
type Channel struct {
	id        uint64
	topic     string
	wireTopic string
	filter    Filter
	onEvent   func(Event)
	active    atomic.Bool
}

// Topic returns the logical topic passed to Subscribe.
func (c *Channel) Topic() string { return c.topic }

// Option configures a Bridge.
type Option func(*Bridge)

// WithHeartbeat sets the heartbeat interval.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.heartbeat = d
		}
	}
}

// WithJoinTimeout bounds how long Subscribe waits for the join reply.
func WithJoinTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.joinTimeout = d
		}
	}
}

// WithHTTPClient sets the HTTP client used for the websocket handshake.
func WithHTTPClient(hc *http.Client) Option {
	return func(b *Bridge) { b.httpClient = hc }
}

// WithReconnectBackoff sets the initial and maximum delay between reconnect attempts.
func WithReconnectBackoff(initial, max time.Duration) Option {
	return func(b *Bridge) {
		b.backoffInitial, b.backoffMax = initial, max
	}
}

// Bridge multiplexes channels over one websocket. The socket is dialled on the first Subscribe
// and closed when the last channel is unsubscribed.
type Bridge struct {
	url            string
	apiKey         string
	tokens         TokenSource
	heartbeat      time.Duration
	joinTimeout    time.Duration
	httpClient     *http.Client
	backoffInitial time.Duration
	backoffMax     time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	dialMu sync.Mutex // serialises dials

	mu           sync.Mutex
	conn         *websocket.Conn
	channels     map[string]*Channel // by wire topic
	pending      map[string]chan replyPayload
	ref          uint64
	nextID       uint64
	reconnecting bool
	closed       bool
}

// NewBridge returns a bridge for the realtime endpoint at rawURL (ws:// or wss://).
// tokens may be nil, in which case apiKey is sent as the access token.
func NewBridge(rawURL, apiKey string, tokens TokenSource, opts ...Option) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		url:            rawURL,
		apiKey:         apiKey,
		tokens:         tokens,
		heartbeat:      defaultHeartbeat,
		joinTimeout:    defaultJoinTimeout,
		backoffInitial: 500 * time.Millisecond,
		backoffMax:     30 * time.Second,
		ctx:            ctx,
		cancel:         cancel,
		channels:       make(map[string]*Channel),
		pending:        make(map[string]chan replyPayload),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// SubscribeContacts delivers every change to the contacts table.
func (b *Bridge) SubscribeContacts(ctx context.Context, onEvent func(Event)) (*Channel, error) {
	return b.Subscribe(ctx, "contacts-changes", Filter{Event: "*", Schema: "public", Table: "contacts"}, onEvent)
}

// SubscribeNotifications delivers notifications inserted for userID.
func (b *Bridge) SubscribeNotifications(ctx context.Context, userID string, onEvent func(Event)) (*Channel, error) {
	return b.Subscribe(ctx, "notifications-"+userID, Filter{
		Event:  "INSERT",
		Schema: "public",
		Table:  "notifications",
		Filter: "user_id=eq." + userID,
	}, onEvent)
}

// Subscribe opens a new channel on topic and waits until the server accepts the join.
func (b *Bridge) Subscribe(ctx context.Context, topic string, filter Filter, onEvent func(Event)) (*Channel, error) {
	if topic == "" {
		return nil, errors.New("realtime: topic is required")
	}
	if onEvent == nil {
		return nil, errors.New("realtime: onEvent is required")
	}
	if b.url == "" {
		return nil, ErrNotConfigured
	}
	conn, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.nextID++
	ch := &Channel{id: b.nextID, topic: topic, filter: filter, onEvent: onEvent}
	ch.wireTopic = topicPrefix + topic
	if _, taken := b.channels[ch.wireTopic]; taken {
		ch.wireTopic = topicPrefix + topic + ":" + strconv.FormatUint(ch.id, 10)
	}
	ch.active.Store(true)
	b.channels[ch.wireTopic] = ch
	b.mu.Unlock()

	if err := b.join(ctx, conn, ch); err != nil {
		b.mu.Lock()
		if b.channels[ch.wireTopic] == ch {
			delete(b.channels, ch.wireTopic)
		}
		b.mu.Unlock()
		ch.active.Store(false)
		return nil, err
	}
	return ch, nil
}

// Unsubscribe leaves ch. Unknown, nil or already-removed channels are ignored.
func (b *Bridge) Unsubscribe(ctx context.Context, ch *Channel) error {
	if ch == nil {
		return nil
	}
	b.mu.Lock()
	if b.channels[ch.wireTopic] != ch {
		b.mu.Unlock()
		return nil
	}
	delete(b.channels, ch.wireTopic)
	ch.active.Store(false)
	conn := b.conn
	idle := len(b.channels) == 0
	ref := b.nextRefLocked()
	b.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := b.write(ctx, conn, message{Topic: ch.wireTopic, Event: eventLeave, Payload: json.RawMessage("{}"), Ref: ref}); err != nil {
		log.Printf("realtime: leave %s: %v", ch.wireTopic, err)
	}
	if idle {
		b.dropConn(conn, websocket.StatusNormalClosure, "no channels")
	}
	return nil
}

// UpdateAccessToken sends a refreshed access token to every joined channel.
func (b *Bridge) UpdateAccessToken(ctx context.Context, token string) error {
	b.mu.Lock()
	conn := b.conn
	topics := make([]string, 0, len(b.channels))
	for t := range b.channels {
		topics = append(topics, t)
	}
	b.mu.Unlock()
	if conn == nil {
		return nil
	}
	payload, _ := json.Marshal(map[string]string{"access_token": token})
	var errs []error
	for _, t := range topics {
		if err := b.write(ctx, conn, message{Topic: t, Event: eventAccessToken, Payload: payload, Ref: b.nextRef()}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close leaves all channels and closes the socket. Later Subscribe calls return ErrClosed.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	conn := b.conn
	b.conn = nil
	for _, ch := range b.channels {
		ch.active.Store(false)
	}
	b.channels = make(map[string]*Channel)
	b.failPendingLocked()
	b.mu.Unlock()

	b.cancel()
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "bridge closed")
	}
	return nil
}

// connect returns the live connection, dialling it if needed.
func (b *Bridge) connect(ctx context.Context) (*websocket.Conn, error) {
	b.dialMu.Lock()
	defer b.dialMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if b.conn != nil {
		conn := b.conn
		b.mu.Unlock()
		return conn, nil
	}
	b.mu.Unlock()

	conn, err := b.dial(ctx)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "bridge closed")
		return nil, ErrClosed
	}
	b.conn = conn
	b.mu.Unlock()
	b.start(conn)
	return conn, nil
}

func (b *Bridge) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(b.url)
	if err != nil {
		return nil, fmt.Errorf("realtime: parse url: %w", err)
	}
	q := u.Query()
	if b.apiKey != "" {
		q.Set("apikey", b.apiKey)
	}
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPClient: b.httpClient})
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

// start runs the read and heartbeat loops for conn until it fails.
func (b *Bridge) start(conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(b.ctx)
	go func() {
		defer cancel()
		b.readLoop(connCtx, conn)
	}()
	go b.heartbeatLoop(connCtx, conn)
}

func (b *Bridge) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			b.disconnected(conn, err)
			return
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("realtime: bad frame: %v", err)
			continue
		}
		b.dispatch(msg)
	}
}

func (b *Bridge) dispatch(msg message) {
	switch msg.Event {
	case eventReply:
		var reply replyPayload
		_ = json.Unmarshal(msg.Payload, &reply)
		b.mu.Lock()
		waiter, ok := b.pending[msg.Ref]
		delete(b.pending, msg.Ref)
		b.mu.Unlock()
		if ok {
			waiter <- reply
		}
	case eventChanges:
		b.mu.Lock()
		ch := b.channels[msg.Topic]
		b.mu.Unlock()
		if ch == nil {
			return
		}
		var p changePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			log.Printf("realtime: bad change payload on %s: %v", msg.Topic, err)
			return
		}
		want := ch.filter.binding().Event
		if want != "*" && p.Data.Type != "" && p.Data.Type != want {
			return
		}
		if ch.active.Load() {
			ch.onEvent(p.event(ch.topic))
		}
	case eventError, eventClose:
		if msg.Topic != phoenixTopic {
			log.Printf("realtime: %s on %s", msg.Event, msg.Topic)
		}
	}
}

// heartbeatLoop sends a heartbeat every interval. A heartbeat still unanswered when the next one
// is due means the socket is half-open; it is closed so the read loop reconnects.
func (b *Bridge) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(b.heartbeat)
	defer t.Stop()
	var (
		ref    string
		waiter chan replyPayload
	)
	defer func() { b.forget(ref) }()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if waiter != nil {
				select {
				case <-waiter:
				default:
					log.Printf("realtime: heartbeat %s unanswered; dropping connection", ref)
					conn.CloseNow()
					return
				}
			}
			b.forget(ref)
			waiter = make(chan replyPayload, 1)
			b.mu.Lock()
			ref = b.nextRefLocked()
			b.pending[ref] = waiter
			b.mu.Unlock()

			err := b.write(ctx, conn, message{Topic: phoenixTopic, Event: eventHeartbeat, Payload: json.RawMessage("{}"), Ref: ref})
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("realtime: heartbeat failed: %v", err)
					conn.Close(websocket.StatusGoingAway, "heartbeat failed")
				}
				return
			}
		}
	}
}

// forget drops the reply waiter for ref, if any.
func (b *Bridge) forget(ref string) {
	if ref == "" {
		return
	}
	b.mu.Lock()
	delete(b.pending, ref)
	b.mu.Unlock()
}

// disconnected handles a dead socket: pending joins fail, and live channels are rejoined on a new socket.
func (b *Bridge) disconnected(conn *websocket.Conn, cause error) {
	b.mu.Lock()
	if b.conn != conn {
		b.mu.Unlock()
		return
	}
	b.conn = nil
	b.failPendingLocked()
	resume := !b.closed && len(b.channels) > 0 && !b.reconnecting
	if resume {
		b.reconnecting = true
	}
	b.mu.Unlock()

	if resume {
		log.Printf("realtime: connection lost: %v; reconnecting", cause)
		go b.reconnect()
	}
}

func (b *Bridge) reconnect() {
	defer func() {
		b.mu.Lock()
		b.reconnecting = false
		b.mu.Unlock()
	}()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.backoffInitial
	eb.MaxInterval = b.backoffMax

	_, err := backoff.Retry(b.ctx, func() (struct{}, error) {
		b.mu.Lock()
		idle := len(b.channels) == 0
		b.mu.Unlock()
		if idle {
			return struct{}{}, nil
		}
		conn, err := b.connect(b.ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		b.mu.Lock()
		chans := make([]*Channel, 0, len(b.channels))
		for _, ch := range b.channels {
			chans = append(chans, ch)
		}
		b.mu.Unlock()
		for _, ch := range chans {
			if err := b.join(b.ctx, conn, ch); err != nil {
				if errors.Is(err, ErrJoinRejected) {
					log.Printf("realtime: rejoin %s: %v", ch.wireTopic, err)
					continue
				}
				b.dropConn(conn, websocket.StatusGoingAway, "rejoin failed")
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(eb), backoff.WithMaxElapsedTime(0))
	if err != nil && b.ctx.Err() == nil {
		log.Printf("realtime: reconnect gave up: %v", err)
	}
}

// join sends phx_join for ch on conn and waits for the reply.
func (b *Bridge) join(ctx context.Context, conn *websocket.Conn, ch *Channel) error {
	var p joinPayload
	p.Config.PostgresChanges = []changeBinding{ch.filter.binding()}
	p.AccessToken = b.accessToken()
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}

	waiter := make(chan replyPayload, 1)
	b.mu.Lock()
	ref := b.nextRefLocked()
	b.pending[ref] = waiter
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, ref)
		b.mu.Unlock()
	}()

	if err := b.write(ctx, conn, message{Topic: ch.wireTopic, Event: eventJoin, Payload: payload, Ref: ref, JoinRef: ref}); err != nil {
		return fmt.Errorf("realtime: join %s: %w", ch.topic, err)
	}

	timer := time.NewTimer(b.joinTimeout)
	defer timer.Stop()
	select {
	case reply, ok := <-waiter:
		if !ok {
			return errDisconnected
		}
		if reply.Status != "ok" {
			return fmt.Errorf("%w: %s: %s", ErrJoinRejected, ch.topic, string(reply.Response))
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("realtime: join %s: timed out", ch.topic)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) accessToken() string {
	if b.tokens != nil {
		if t := b.tokens.AccessToken(); t != "" {
			return t
		}
	}
	return b.apiKey
}

func (b *Bridge) write(ctx context.Context, conn *websocket.Conn, msg message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// dropConn closes conn without triggering a reconnect.
func (b *Bridge) dropConn(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
		b.failPendingLocked()
	}
	b.mu.Unlock()
	conn.Close(code, reason)
}

// failPendingLocked wakes every waiter with a closed channel. b.mu must be held.
func (b *Bridge) failPendingLocked() {
	for ref, waiter := range b.pending {
		close(waiter)
		delete(b.pending, ref)
	}
}

func (b *Bridge) nextRef() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextRefLocked()
}

func (b *Bridge) nextRefLocked() string {
	b.ref++
	return strconv.FormatUint(b.ref, 10)
}
