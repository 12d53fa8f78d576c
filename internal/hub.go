package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub owns one fan-out channel per live room code. It implements Broadcaster
// for the push notification mode; join and leave are transport lifecycle and
// never require the room itself to still exist.
type Hub struct {
	mutex    sync.RWMutex
	channels map[string]*channel
	presence *PresenceTracker
	metrics  *Metrics
	log      *slog.Logger
}

func NewHub(presence *PresenceTracker, metrics *Metrics, log *slog.Logger) *Hub {
	return &Hub{
		channels: make(map[string]*channel),
		presence: presence,
		metrics:  metrics,
		log:      log,
	}
}

// Publish delivers the event to every current subscriber of the room's
// channel. No watchers means no channel and the event is dropped; the room
// state itself is always served from the registry, the socket is only a
// change notification.
func (hub *Hub) Publish(room string, event Event) {
	encoded, err := json.Marshal(event)
	if err != nil {
		hub.log.Error("hub: encode event", "room", room, "kind", event.Kind, "error", err)
		return
	}
	hub.mutex.RLock()
	ch := hub.channels[room]
	hub.mutex.RUnlock()
	if ch == nil {
		return
	}
	ch.broadcast <- encoded
}

// Join subscribes sub to the room's channel, creating it on first watcher.
func (hub *Hub) Join(room string, sub *Subscriber) {
	hub.mutex.Lock()
	ch, exists := hub.channels[room]
	if !exists {
		ch = newChannel(room)
		hub.channels[room] = ch
		go ch.run()
	}
	hub.mutex.Unlock()
	ch.register <- sub
	hub.presence.Watch(room)
}

// Leave unsubscribes sub and drops the channel once it is empty. Leaving a
// room whose channel is already gone is a no-op.
func (hub *Hub) Leave(room string, sub *Subscriber) {
	hub.mutex.RLock()
	ch := hub.channels[room]
	hub.mutex.RUnlock()
	if ch == nil {
		return
	}
	ch.unregister <- sub
	hub.presence.Unwatch(room)

	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	if ch, exists := hub.channels[room]; exists && ch.size() == 0 {
		delete(hub.channels, room)
	}
}

// a channel fans events out to all current subscribers of one room code.
type channel struct {
	code        string
	subscribers map[*Subscriber]bool
	register    chan *Subscriber
	unregister  chan *Subscriber
	broadcast   chan []byte
	mutex       sync.RWMutex
}

func newChannel(code string) *channel {
	return &channel{
		code:        code,
		subscribers: make(map[*Subscriber]bool),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		broadcast:   make(chan []byte, 256),
	}
}

func (ch *channel) size() int {
	ch.mutex.RLock()
	defer ch.mutex.RUnlock()
	return len(ch.subscribers)
}

func (ch *channel) run() {
	for {
		select {
		case sub := <-ch.register:
			ch.mutex.Lock()
			ch.subscribers[sub] = true
			ch.mutex.Unlock()
		case sub := <-ch.unregister:
			ch.mutex.Lock()
			if _, exists := ch.subscribers[sub]; exists {
				delete(ch.subscribers, sub)
				close(sub.send)
			}
			ch.mutex.Unlock()
		case payload := <-ch.broadcast:
			// A subscriber that can't keep up gets its send channel closed,
			// which ends its writePump; the slow socket never blocks the room.
			ch.mutex.Lock()
			for sub := range ch.subscribers {
				select {
				case sub.send <- payload:
				default:
					close(sub.send)
					delete(ch.subscribers, sub)
				}
			}
			ch.mutex.Unlock()
		}
	}
}

// Subscriber wraps a single watching websocket connection and its buffered
// send queue.
type Subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWatch upgrades the request and subscribes it to the room's channel.
// Unknown codes are rejected: watching never creates a room.
func ServeWatch(hub *Hub, registry *Registry, writer http.ResponseWriter, request *http.Request) {
	code := request.URL.Query().Get("room")
	if code == "" {
		http.Error(writer, "missing room query param", http.StatusBadRequest)
		return
	}
	if !registry.Exists(code) {
		http.Error(writer, "room not found", http.StatusNotFound)
		return
	}
	conn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		hub.log.Warn("hub: upgrade failed", "room", code, "error", err)
		return
	}

	sub := &Subscriber{conn: conn, send: make(chan []byte, 256)}
	hub.Join(code, sub)
	hub.metrics.IncWatcher()

	go sub.writePump()
	go sub.readPump(hub, code)
}

// readPump discards inbound frames; watchers are read-only. It exists to
// notice the close handshake and run cleanup.
func (sub *Subscriber) readPump(hub *Hub, code string) {
	defer func() {
		hub.Leave(code, sub)
		_ = sub.conn.Close()
		hub.metrics.DecWatcher()
	}()
	sub.conn.SetReadLimit(maxMsgSize)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (sub *Subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = sub.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
