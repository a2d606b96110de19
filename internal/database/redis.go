package database

import (
	"sync"

	"github.com/Dungyy/Gerz-platform-sub000/pkg/config"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/queue"
)

var (
	redisBusInstance *queue.RedisBus
	redisBusOnce     sync.Once
)

// GetRedisBus 获取Redis消息通道的单例实例，未启用Redis时返回nil
func GetRedisBus() *queue.RedisBus {
	redisBusOnce.Do(func() {
		cfg := config.GetConfig()
		if !cfg.Redis.Enabled {
			return
		}
		redisBusInstance = queue.NewRedisBus(&queue.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	})
	return redisBusInstance
}

// CloseRedisBus 关闭Redis连接
func CloseRedisBus() error {
	if redisBusInstance != nil {
		return redisBusInstance.Close()
	}
	return nil
}
