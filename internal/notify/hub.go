package notify

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var errHubBusy = errors.New("event hub: broadcast buffer full")

// hubClient 订阅事件流的 WebSocket 连接
type hubClient struct {
	id       string
	ticketID uint // 0 表示订阅全部工单
	conn     *websocket.Conn
	send     chan Event
	hub      *Hub
}

// Hub 将工单事件实时推送给 WebSocket 订阅者
type Hub struct {
	clients    map[string]*hubClient
	broadcast  chan Event
	register   chan *hubClient
	unregister chan *hubClient
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logrus.Logger
	upgrader   websocket.Upgrader
}

// NewHub 创建事件推送中心
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients:    make(map[string]*hubClient),
		broadcast:  make(chan Event, 256),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		done:       make(chan struct{}),
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run 处理注册、注销与广播，直到 ctx 结束
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mutex.Lock()
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.mutex.Unlock()
			return

		case c := <-h.register:
			h.mutex.Lock()
			h.clients[c.id] = c
			h.mutex.Unlock()
			h.logger.Debugf("Event subscriber %s connected (ticket=%d)", c.id, c.ticketID)

		case c := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
				h.logger.Debugf("Event subscriber %s disconnected", c.id)
			}
			h.mutex.Unlock()

		case e := <-h.broadcast:
			h.mutex.Lock()
			for id, c := range h.clients {
				if c.ticketID != 0 && c.ticketID != e.TicketID {
					continue
				}
				select {
				case c.send <- e:
				default:
					// slow consumer
					close(c.send)
					delete(h.clients, id)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Notify 投递事件到广播队列，不阻塞调用方
func (h *Hub) Notify(ctx context.Context, e Event) error {
	select {
	case h.broadcast <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errHubBusy
	}
}

// ClientCount 当前订阅者数量
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// HandleWebSocket 升级连接并订阅事件；?ticket_id= 可只订阅单个工单
func (h *Hub) HandleWebSocket(c *gin.Context) {
	var ticketID uint
	if raw := c.Query("ticket_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_TICKET_ID"})
			return
		}
		ticketID = uint(id)
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &hubClient{
		id:       uuid.NewString(),
		ticketID: ticketID,
		conn:     conn,
		send:     make(chan Event, 64),
		hub:      h,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump 只处理心跳与关闭；订阅者不发送业务消息
func (c *hubClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warnf("WebSocket error: %v", err)
			}
			return
		}
	}
}

func (c *hubClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case e, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(e); err != nil {
				c.hub.logger.Warnf("WriteJSON error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
