// Package notification decides who hears about an event and pushes it
// out through the configured channels.
package notification

import (
	"context"
	"fmt"
	"sort"

	"fleettrack/internal/models"
)

// Notificator 通知渠道接口
type Notificator interface {
	Type() string
	Send(ctx context.Context, user *models.User, event *models.Event, position *models.Position) error
}

// Registry 通知渠道注册表
type Registry struct {
	notificators map[string]Notificator
}

// NewRegistry 创建通知渠道注册表
func NewRegistry(notificators ...Notificator) *Registry {
	r := &Registry{notificators: make(map[string]Notificator)}
	for _, n := range notificators {
		r.Register(n)
	}
	return r
}

// Register 注册渠道，同名覆盖
func (r *Registry) Register(n Notificator) {
	r.notificators[n.Type()] = n
}

// Get 按类型取渠道
func (r *Registry) Get(notificatorType string) (Notificator, error) {
	n, ok := r.notificators[notificatorType]
	if !ok {
		return nil, fmt.Errorf("unknown notificator type %q", notificatorType)
	}
	return n, nil
}

// Types 已注册渠道类型列表（有序）
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.notificators))
	for t := range r.notificators {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
