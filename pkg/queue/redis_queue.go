package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisBus 基于Redis发布订阅的消息通道，用于未读数等轻量推送
type RedisBus struct {
	client *redis.Client
	prefix string
}

// Config Redis配置
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

// UnreadMessage 未读数变更消息
type UnreadMessage struct {
	ActorID        uint   `json:"actor_id"`
	Unread         int64  `json:"unread"`
	NotificationID uint   `json:"notification_id,omitempty"`
	Type           string `json:"type,omitempty"`
}

// NewRedisBus 创建Redis消息通道
func NewRedisBus(config *Config) *RedisBus {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})

	prefix := config.Prefix
	if prefix == "" {
		prefix = "gerz"
	}

	return &RedisBus{
		client: client,
		prefix: prefix,
	}
}

// Close 关闭Redis连接
func (b *RedisBus) Close() error {
	return b.client.Close()
}

// Ping 测试Redis连接
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// PublishUnread 发布某个用户的未读数
func (b *RedisBus) PublishUnread(ctx context.Context, msg UnreadMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %v", err)
	}
	if err := b.client.Publish(ctx, b.UnreadChannel(msg.ActorID), data).Err(); err != nil {
		return fmt.Errorf("发布消息失败: %v", err)
	}
	return nil
}

// SubscribeUnread 订阅某个用户的未读数频道
func (b *RedisBus) SubscribeUnread(ctx context.Context, actorID uint) *redis.PubSub {
	return b.client.Subscribe(ctx, b.UnreadChannel(actorID))
}

// UnreadChannel 频道名 <prefix>:notifications:<actor id>
func (b *RedisBus) UnreadChannel(actorID uint) string {
	return fmt.Sprintf("%s:notifications:%d", b.prefix, actorID)
}
