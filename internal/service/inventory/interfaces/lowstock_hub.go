// internal/service/inventory/interfaces/lowstock_hub.go
//
// 低水位告警的 WebSocket 推送：运营端通过 /ws/low-stock 订阅，
// low-stock 主题的每条消息向所有在线连接广播一次。
package interfaces

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"

	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/pkg/mq"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
		return true
	},
}

// LowStockHub 维护所有活跃的连接，并负责消息广播
type LowStockHub struct {
	clients    map[*lowStockClient]struct{}
	register   chan *lowStockClient
	unregister chan *lowStockClient
	broadcast  chan []byte
	lock       sync.RWMutex
}

func NewLowStockHub() *LowStockHub {
	return &LowStockHub{
		clients:    make(map[*lowStockClient]struct{}),
		register:   make(chan *lowStockClient),
		unregister: make(chan *lowStockClient),
		broadcast:  make(chan []byte, 64),
	}
}

// Run 驱动注册、注销与广播，ctx 取消后退出。
func (h *LowStockHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.lock.Lock()
			for client := range h.clients {
				close(client.send)
			}
			h.clients = make(map[*lowStockClient]struct{})
			h.lock.Unlock()
			return
		case client := <-h.register:
			h.lock.Lock()
			h.clients[client] = struct{}{}
			h.lock.Unlock()
			logger.Logger.Info().Str("remote", client.conn.RemoteAddr().String()).Msg("low-stock subscriber connected")
		case client := <-h.unregister:
			h.lock.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.lock.Unlock()
		case payload := <-h.broadcast:
			h.lock.RLock()
			for client := range h.clients {
				select {
				case client.send <- payload:
				default: // 写不进去的慢连接直接丢这条告警
				}
			}
			h.lock.RUnlock()
		}
	}
}

// NewBroadcastHandler 把 low-stock 主题的消息原样广播给所有订阅者。
func (h *LowStockHub) NewBroadcastHandler() mq.HandlerFunc {
	return func(ctx context.Context, msg kafka.Message) error {
		h.broadcast <- msg.Value
		return nil
	}
}

// ServeWS 把 HTTP 连接升级为 WebSocket 并注册到 Hub。
func (h *LowStockHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := &lowStockClient{hub: h, conn: conn, send: make(chan []byte, 16)}
	h.register <- client
	go client.writePump()
	go client.readPump()
}

type lowStockClient struct {
	hub  *LowStockHub
	conn *websocket.Conn
	send chan []byte
}

func (c *lowStockClient) writePump() {
	defer c.conn.Close()
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *lowStockClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		// 订阅端不发业务消息，读循环只为感知断连与心跳
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
