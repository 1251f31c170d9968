package handlers

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"splitsteal-backend/internal/models"
)

const (
	sendBufferSize      = 16
	broadcastBufferSize = 100
	writeWait           = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Message struct {
	Type   string      `json:"type"`
	GameID uint64      `json:"game_id,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

type Client struct {
	AccountID models.AccountID
	Conn      *websocket.Conn
	send      chan *Message
}

type subscription struct {
	client *Client
	gameID uint64
	add    bool
}

type WebSocketHub struct {
	clients       map[*Client]bool
	subscriptions map[uint64]map[*Client]bool
	register      chan *Client
	unregister    chan *Client
	subscribe     chan subscription
	broadcast     chan *Message
	stop          chan struct{}
	stopOnce      sync.Once
	logger        zerolog.Logger
}

// WebSocketHandler pushes game updates to clients subscribed to a game id.
// It implements services.Broadcaster.
type WebSocketHandler struct {
	hub    *WebSocketHub
	clock  quartz.Clock
	logger zerolog.Logger
}

func NewWebSocketHandler(clock quartz.Clock, logger zerolog.Logger) *WebSocketHandler {
	logger = logger.With().Str("component", "websocket").Logger()
	hub := &WebSocketHub{
		clients:       make(map[*Client]bool),
		subscriptions: make(map[uint64]map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		subscribe:     make(chan subscription),
		broadcast:     make(chan *Message, broadcastBufferSize),
		stop:          make(chan struct{}),
		logger:        logger,
	}

	go hub.run()

	return &WebSocketHandler{
		hub:    hub,
		clock:  clock,
		logger: logger,
	}
}

func (h *WebSocketHandler) Stop() {
	h.hub.stopOnce.Do(func() { close(h.hub.stop) })
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to upgrade to websocket")
		return
	}

	client := &Client{
		AccountID: accountID(c),
		Conn:      conn,
		send:      make(chan *Message, sendBufferSize),
	}

	select {
	case h.hub.register <- client:
	case <-h.hub.stop:
		conn.Close()
		return
	}

	go h.writePump(client)

	defer func() {
		select {
		case h.hub.unregister <- client:
		case <-h.hub.stop:
		}
		conn.Close()
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug().Err(err).Str("account_id", string(client.AccountID)).Msg("websocket read failed")
			}
			return
		}

		h.handleMessage(client, &msg)
	}
}

func (h *WebSocketHandler) writePump(client *Client) {
	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				return
			}
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteJSON(msg); err != nil {
				h.logger.Debug().Err(err).Msg("websocket write failed")
				client.Conn.Close()
				return
			}
		case <-h.hub.stop:
			return
		}
	}
}

func (h *WebSocketHandler) handleMessage(client *Client, msg *Message) {
	switch msg.Type {
	case "PING":
		h.trySend(client, &Message{
			Type: "PONG",
			Data: gin.H{"timestamp": h.clock.Now().Unix()},
		})
	case "SUBSCRIBE_GAME", "UNSUBSCRIBE_GAME":
		id, ok := parseGameID(msg)
		if !ok {
			h.trySend(client, &Message{Type: "ERROR", Data: gin.H{"error": "Invalid game id"}})
			return
		}
		select {
		case h.hub.subscribe <- subscription{client: client, gameID: id, add: msg.Type == "SUBSCRIBE_GAME"}:
		case <-h.hub.stop:
		}
	}
}

func (h *WebSocketHandler) trySend(client *Client, msg *Message) {
	select {
	case client.send <- msg:
	default:
	}
}

func parseGameID(msg *Message) (uint64, bool) {
	if msg.GameID != 0 {
		return msg.GameID, true
	}
	switch v := msg.Data.(type) {
	case float64:
		if v > 0 {
			return uint64(v), true
		}
	case string:
		id, err := strconv.ParseUint(v, 10, 64)
		return id, err == nil && id > 0
	}
	return 0, false
}

// BroadcastGameUpdate queues the game for subscribers; it never blocks the caller.
func (h *WebSocketHandler) BroadcastGameUpdate(game *models.Game) {
	msg := &Message{
		Type:   "GAME_UPDATE",
		GameID: game.ID,
		Data:   models.NewGameView(game, h.clock.Now()),
	}

	select {
	case h.hub.broadcast <- msg:
	default:
		h.logger.Warn().Uint64("game_id", game.ID).Msg("broadcast queue full, dropping update")
	}
}

func (hub *WebSocketHub) run() {
	for {
		select {
		case client := <-hub.register:
			hub.clients[client] = true
			hub.logger.Debug().Str("account_id", string(client.AccountID)).Msg("client registered")

		case client := <-hub.unregister:
			if _, ok := hub.clients[client]; ok {
				delete(hub.clients, client)
				for id, subs := range hub.subscriptions {
					delete(subs, client)
					if len(subs) == 0 {
						delete(hub.subscriptions, id)
					}
				}
				close(client.send)
				hub.logger.Debug().Str("account_id", string(client.AccountID)).Msg("client unregistered")
			}

		case sub := <-hub.subscribe:
			if !hub.clients[sub.client] {
				continue
			}
			subs := hub.subscriptions[sub.gameID]
			if sub.add {
				if subs == nil {
					subs = make(map[*Client]bool)
					hub.subscriptions[sub.gameID] = subs
				}
				subs[sub.client] = true
			} else if subs != nil {
				delete(subs, sub.client)
			}

		case message := <-hub.broadcast:
			for client := range hub.subscriptions[message.GameID] {
				select {
				case client.send <- message:
				default:
				}
			}

		case <-hub.stop:
			for client := range hub.clients {
				client.Conn.Close()
			}
			hub.clients = nil
			return
		}
	}
}
