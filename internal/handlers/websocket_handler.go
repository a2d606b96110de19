package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	"github.com/Dungyy/Gerz-platform-sub000/internal/services"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/logger"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/queue"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 60 * time.Second
	pongWait     = 300 * time.Second
)

// WebSocketHandler 把 Redis 未读数频道转发给浏览器
type WebSocketHandler struct {
	upgrader      websocket.Upgrader
	bus           *queue.RedisBus
	notifications *services.NotificationService
	log           *logrus.Logger
}

// NewWebSocketHandler 创建WebSocket处理器，bus 为 nil 时推送不可用
func NewWebSocketHandler(bus *queue.RedisBus, notifications *services.NotificationService, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if allowed == "*" || matchOrigin(origin, allowed) {
						return true
					}
				}
				logger.GetLogger().Warnf("WebSocket连接被拒绝，非法Origin: %s", origin)
				return false
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		bus:           bus,
		notifications: notifications,
		log:           logger.GetLogger(),
	}
}

// Stream 订阅当前账号的未读数
func (h *WebSocketHandler) Stream(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if h.bus == nil {
		response.Error(c, http.StatusServiceUnavailable, "实时推送未启用")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	h.log.WithField("actor_id", actor.ID).Info("WebSocket connection established")
	h.forward(conn, actor)
}

func (h *WebSocketHandler) forward(conn *websocket.Conn, actor *models.Actor) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubsub := h.bus.SubscribeUnread(ctx, actor.ID)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		h.log.WithError(err).Error("Failed to subscribe to Redis channel")
		return
	}

	// 先推一次当前未读数
	if count, err := h.notifications.UnreadCount(ctx, actor); err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(queue.UnreadMessage{ActorID: actor.ID, Unread: count}); err != nil {
			return
		}
	}

	go h.readPump(conn, cancel)

	ch := pubsub.Channel()
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.log.WithError(err).Debug("Failed to send ping")
				return
			}

		case msg, open := <-ch:
			if !open {
				return
			}
			var payload queue.UnreadMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.log.WithError(err).Error("Failed to parse unread message")
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(payload); err != nil {
				h.log.WithError(err).Debug("Failed to send message to client")
				return
			}
		}
	}
}

// readPump 只处理 ping/pong 和关闭
func (h *WebSocketHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.WithError(err).Error("WebSocket unexpected close")
			}
			return
		}
	}
}

// matchOrigin 支持精确匹配和 *.example.com 通配
func matchOrigin(origin, allowed string) bool {
	if origin == allowed {
		return true
	}
	if !strings.HasPrefix(allowed, "*.") {
		return false
	}
	domain := allowed[2:]

	host := origin
	if idx := strings.Index(host, "://"); idx != -1 {
		host = host[idx+3:]
	}
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}
