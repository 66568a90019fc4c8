package polymarket

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polywhale/types"
)

const (
	DefaultWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

	heartbeatInterval = 20 * time.Second
	reconnectBackoff  = 5 * time.Second
	dialTimeout       = 10 * time.Second
)

// Connection states. Subscriptions issued while disconnected are remembered
// and replayed in the next handshake.
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateHandshaking
	stateLive
)

// WSClient maintains per-token L2 order books from the market data stream.
// One connection serves every subscribed token; books survive reconnects.
type WSClient struct {
	url     string
	backoff time.Duration

	mu           sync.RWMutex
	conn         *websocket.Conn
	writeMu      sync.Mutex
	state        connState
	reconnecting bool
	subscribed   map[string]bool // tokenID -> subscribed

	// Book data: tokenID -> live book
	books   map[string]*tokenBook
	booksMu sync.RWMutex

	stopCh  chan struct{}
	stopped sync.Once
}

// tokenBook is the mutable L2 state for one token. Prices are keyed by
// their wire string; a zero size removes the level.
type tokenBook struct {
	bids      map[string]decimal.Decimal
	asks      map[string]decimal.Decimal
	updatedAt time.Time
}

// wsBookMsg is a per-asset book update (full snapshot or delta — both are
// applied the same way, level by level).
type wsBookMsg struct {
	AssetID   string `json:"asset_id"`
	EventType string `json:"event_type"`
	Bids      []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"bids"`
	Asks []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"asks"`
}

// NewWSClient creates a client for the market channel.
func NewWSClient(url string) *WSClient {
	if url == "" {
		url = DefaultWSURL
	}
	return &WSClient{
		url:        url,
		backoff:    reconnectBackoff,
		subscribed: make(map[string]bool),
		books:      make(map[string]*tokenBook),
		stopCh:     make(chan struct{}),
	}
}

// Connect dials the stream, sends the handshake with the active
// subscription set, and starts the reader and heartbeat tasks. On a dial
// failure the retry loop keeps dialing in the background, so a transient
// startup error does not leave the book cache dead.
func (c *WSClient) Connect() error {
	err := c.connect()
	if err != nil {
		go c.reconnectLoop()
	}
	return err
}

func (c *WSClient) connect() error {
	c.mu.Lock()
	if c.state != stateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = stateConnecting
	c.mu.Unlock()

	log.Info().Str("url", c.url).Msg("Connecting to market data stream...")

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		c.setState(stateDisconnected)
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = stateHandshaking
	ids := c.subscribedIDs()
	c.mu.Unlock()

	// Handshake replays every remembered subscription.
	handshake := map[string]interface{}{
		"assets_ids": ids,
		"type":       "market",
	}
	if err := c.writeJSON(conn, handshake); err != nil {
		conn.Close()
		c.setState(stateDisconnected)
		return fmt.Errorf("handshake failed: %w", err)
	}

	c.setState(stateLive)

	go c.readMessages(conn)
	go c.heartbeat(conn)

	log.Info().Int("tokens", len(ids)).Msg("✅ Market data stream connected")
	return nil
}

// Subscribe registers token ids and, when live, requests them from the
// server. Resubscribing a known token is a no-op.
func (c *WSClient) Subscribe(tokenIDs ...string) error {
	c.mu.Lock()
	var fresh []string
	for _, id := range tokenIDs {
		if id == "" || c.subscribed[id] {
			continue
		}
		c.subscribed[id] = true
		fresh = append(fresh, id)
	}
	conn := c.conn
	live := c.state == stateLive
	c.mu.Unlock()

	if len(fresh) == 0 {
		return nil
	}
	if !live {
		// Remembered; reissued with the next handshake.
		return nil
	}

	msg := map[string]interface{}{
		"assets_ids": fresh,
		"operation":  "subscribe",
	}
	if err := c.writeJSON(conn, msg); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	log.Info().Int("tokens", len(fresh)).Msg("📡 Subscribed to order books")
	return nil
}

// Snapshot returns a sorted depth snapshot for the token, or false on a
// cache miss. Bids descend, asks ascend.
func (c *WSClient) Snapshot(tokenID string) (*types.MarketDepth, bool) {
	c.booksMu.RLock()
	defer c.booksMu.RUnlock()

	book, ok := c.books[tokenID]
	if !ok {
		return nil, false
	}

	depth := &types.MarketDepth{
		Bids: sortLevels(book.bids, true),
		Asks: sortLevels(book.asks, false),
	}
	return depth, true
}

// IsSubscribed reports whether the token is in the subscription set.
func (c *WSClient) IsSubscribed(tokenID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribed[tokenID]
}

// IsConnected reports whether the stream is live.
func (c *WSClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == stateLive
}

// Close shuts the connection down and drops all cached books.
func (c *WSClient) Close() {
	c.stopped.Do(func() { close(c.stopCh) })

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.state = stateDisconnected
	c.mu.Unlock()

	c.booksMu.Lock()
	c.books = make(map[string]*tokenBook)
	c.booksMu.Unlock()
}

func (c *WSClient) setState(s connState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// subscribedIDs requires c.mu held.
func (c *WSClient) subscribedIDs() []string {
	ids := make([]string, 0, len(c.subscribed))
	for id := range c.subscribed {
		ids = append(ids, id)
	}
	return ids
}

func (c *WSClient) writeJSON(conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WSClient) readMessages(conn *websocket.Conn) {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
				return
			default:
			}
			log.Error().Err(err).Msg("WebSocket read error")
			c.handleDisconnect()
			return
		}

		c.handleMessage(message)
	}
}

func (c *WSClient) handleMessage(data []byte) {
	// Server answers our heartbeats with a bare PONG text frame.
	if string(data) == "PONG" {
		return
	}

	// Updates arrive as a single object or an array of objects.
	var batch []wsBookMsg
	if err := json.Unmarshal(data, &batch); err != nil {
		var single wsBookMsg
		if err := json.Unmarshal(data, &single); err != nil {
			log.Debug().Str("data", truncate(string(data), 120)).Msg("Ignoring unparseable ws message")
			return
		}
		batch = []wsBookMsg{single}
	}

	for i := range batch {
		c.applyUpdate(&batch[i])
	}
}

func (c *WSClient) applyUpdate(msg *wsBookMsg) {
	if msg.AssetID == "" {
		return
	}

	c.booksMu.Lock()
	defer c.booksMu.Unlock()

	book, ok := c.books[msg.AssetID]
	if !ok {
		book = &tokenBook{
			bids: make(map[string]decimal.Decimal),
			asks: make(map[string]decimal.Decimal),
		}
		c.books[msg.AssetID] = book
	}

	for _, lvl := range msg.Bids {
		applyLevel(book.bids, lvl.Price, lvl.Size)
	}
	for _, lvl := range msg.Asks {
		applyLevel(book.asks, lvl.Price, lvl.Size)
	}
	book.updatedAt = time.Now()
}

// applyLevel sets a price level; a zero size deletes it.
func applyLevel(side map[string]decimal.Decimal, price, size string) {
	if price == "" {
		return
	}
	sz, err := decimal.NewFromString(size)
	if err != nil {
		return
	}
	if sz.IsZero() {
		delete(side, price)
		return
	}
	side[price] = sz
}

func sortLevels(side map[string]decimal.Decimal, desc bool) []types.MarketDepthLevel {
	levels := make([]types.MarketDepthLevel, 0, len(side))
	for p, s := range side {
		price, err := decimal.NewFromString(p)
		if err != nil {
			continue
		}
		levels = append(levels, types.MarketDepthLevel{Price: price, Size: s})
	}
	sort.Slice(levels, func(i, j int) bool {
		if desc {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
	return levels
}

func (c *WSClient) heartbeat(conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				// Reader notices the broken connection and reconnects.
				return
			}
		}
	}
}

func (c *WSClient) handleDisconnect() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = stateDisconnected
	c.mu.Unlock()

	c.reconnectLoop()
}

// reconnectLoop redials with a fixed backoff until the stream is live or
// the client is closed. At most one loop runs at a time.
func (c *WSClient) reconnectLoop() {
	c.mu.Lock()
	if c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	for {
		log.Warn().Dur("backoff", c.backoff).Msg("WebSocket disconnected, reconnecting...")

		select {
		case <-c.stopCh:
			return
		case <-time.After(c.backoff):
		}

		if err := c.connect(); err != nil {
			log.Error().Err(err).Msg("Reconnect failed")
			continue
		}
		return
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
