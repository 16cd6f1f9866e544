package eventbus

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/shelfsync/shelfsync/logging"
)

// Broadcaster relays bus events to websocket observers, letting an
// operator dashboard watch job completions and conflict reports live.
type Broadcaster struct {
	bus      *Bus
	upgrader websocket.Upgrader
	logger   *logging.Logger

	mu      sync.RWMutex
	clients map[string]*wsClient
	subs    map[EventType]SubscriptionID

	writeWait time.Duration
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewBroadcaster attaches a websocket relay to the bus. It subscribes
// to every event type in the closed set.
func NewBroadcaster(bus *Bus, logger *logging.Logger) *Broadcaster {
	if logger == nil {
		logger = logging.Default()
	}
	b := &Broadcaster{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:    logger.WithComponent("ws-broadcaster"),
		clients:   make(map[string]*wsClient),
		subs:      make(map[EventType]SubscriptionID),
		writeWait: 10 * time.Second,
	}

	for _, t := range []EventType{EventJobCompleted, EventJobCancelled, EventConflictDetected, EventBatchCommitted} {
		b.subs[t] = bus.On(t, b.relay)
	}
	return b
}

// ServeHTTP upgrades the request and registers the connection as an
// observer. Observers only receive; inbound messages are discarded.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed")
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 64),
	}

	b.mu.Lock()
	b.clients[client.id] = client
	b.mu.Unlock()

	go b.writePump(client)
	go b.readPump(client)
}

func (b *Broadcaster) relay(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Warn("event not serializable, dropping")
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, client := range b.clients {
		select {
		case client.send <- data:
		default:
			// Slow observer: drop the event rather than block Emit.
		}
	}
}

func (b *Broadcaster) writePump(client *wsClient) {
	defer client.conn.Close()

	for message := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(b.writeWait))
		if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	client.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (b *Broadcaster) readPump(client *wsClient) {
	defer b.drop(client)

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Broadcaster) drop(client *wsClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client.id]; ok {
		delete(b.clients, client.id)
		close(client.send)
	}
}

// Close detaches from the bus and disconnects all observers.
func (b *Broadcaster) Close() {
	for t, id := range b.subs {
		b.bus.Off(t, id)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, client := range b.clients {
		delete(b.clients, id)
		close(client.send)
	}
}

// ClientCount returns the number of connected observers.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
