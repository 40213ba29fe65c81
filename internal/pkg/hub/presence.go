package hub

import (
	"context"
	log "log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// PresenceStore 把在线状态镜像到持久层，离线用户的资料页据此展示最后在线时间
type PresenceStore interface {
	UpdatePresence(ctx context.Context, userID uint64, online bool, lastSeen time.Time) error
	BatchSetOffline(ctx context.Context, userIDs []uint64) error
}

// Registry 进程内在线注册表
// 以用户为单位聚合连接：第一条连接上线、最后一条连接下线才算状态变化
type Registry struct {
	mu      sync.RWMutex
	clients map[uint64]map[string]*Client

	store PresenceStore
}

func NewRegistry(store PresenceStore) *Registry {
	return &Registry{
		clients: make(map[uint64]map[string]*Client),
		store:   store,
	}
}

// Connect 登记一条连接，返回该用户是否由离线转为在线
func (r *Registry) Connect(ctx context.Context, c *Client) (bool, error) {
	r.mu.Lock()
	handles, ok := r.clients[c.UserID]
	if !ok {
		handles = make(map[string]*Client)
		r.clients[c.UserID] = handles
	}
	handles[c.HandleID] = c
	first := len(handles) == 1
	r.mu.Unlock()

	if !first {
		return false, nil
	}
	if err := r.store.UpdatePresence(ctx, c.UserID, true, time.Now()); err != nil {
		return true, errors.Wrap(err, "镜像上线状态失败")
	}
	return true, nil
}

// Disconnect 注销一条连接，返回该用户是否由在线转为离线
// 重复注销同一连接是安全的
func (r *Registry) Disconnect(ctx context.Context, c *Client) (bool, error) {
	r.mu.Lock()
	handles, ok := r.clients[c.UserID]
	if !ok {
		r.mu.Unlock()
		return false, nil
	}
	if _, ok := handles[c.HandleID]; !ok {
		r.mu.Unlock()
		return false, nil
	}
	delete(handles, c.HandleID)
	last := len(handles) == 0
	if last {
		delete(r.clients, c.UserID)
	}
	r.mu.Unlock()

	if !last {
		return false, nil
	}
	if err := r.store.UpdatePresence(ctx, c.UserID, false, time.Now()); err != nil {
		return true, errors.Wrap(err, "镜像下线状态失败")
	}
	return true, nil
}

// IsOnline 用户是否至少有一条活跃连接
func (r *Registry) IsOnline(userID uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients[userID]) > 0
}

// Snapshot 返回当前在线用户 ID 列表
func (r *Registry) Snapshot() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// ClientsOf 返回某个用户的所有连接
func (r *Registry) ClientsOf(userID uint64) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handles := r.clients[userID]
	list := make([]*Client, 0, len(handles))
	for _, c := range handles {
		list = append(list, c)
	}
	return list
}

// Each 遍历所有连接，用于全网广播
func (r *Registry) Each(fn func(c *Client)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, handles := range r.clients {
		for _, c := range handles {
			fn(c)
		}
	}
}

// Flush 停机时把仍在线的用户批量置为离线，避免重启后残留在线标记
func (r *Registry) Flush(ctx context.Context) {
	r.mu.Lock()
	ids := make([]uint64, 0, len(r.clients))
	for id, handles := range r.clients {
		ids = append(ids, id)
		for _, c := range handles {
			c.Close()
		}
	}
	r.clients = make(map[uint64]map[string]*Client)
	r.mu.Unlock()

	if len(ids) == 0 {
		return
	}
	if err := r.store.BatchSetOffline(ctx, ids); err != nil {
		log.Error("批量下线失败", "count", len(ids), "err", err)
		return
	}
	log.Info("presence flushed", "count", len(ids))
}
