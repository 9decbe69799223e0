// Package bridge はカメラの起動・停止をビュー間で共有するための通知チャネル
//
// カメラを所有していないビューは、このブリッジを購読することでのみ
// カメラの状態を知ることができる。カメラの内部状態をポーリングしてはならない。
package bridge

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rockwatch/internal/logging"
)

// Notice はカメラ状態の変化通知
type Notice struct {
	Active bool      `json:"active"`
	At     time.Time `json:"at"`
}

// Handler は通知を受け取る関数
// Handler の中から Publish を呼び出したり、自身の購読を解除してはならない
type Handler func(Notice)

// Subscription は1件の購読を表す
type Subscription struct {
	id      string
	name    string
	handler Handler
	bridge  *Bridge

	// mu は配信中のハンドラー呼び出しと解除を排他する
	mu     sync.Mutex
	closed bool
}

// ID は購読IDを返す
func (s *Subscription) ID() string { return s.id }

// Name は購読者名を返す
func (s *Subscription) Name() string { return s.name }

// Close は購読を解除する。複数回呼んでもよい
func (s *Subscription) Close() {
	s.bridge.Unsubscribe(s)
}

// Bridge はプロセス内のpublish/subscribeチャネル
type Bridge struct {
	mu   sync.RWMutex
	subs []*Subscription

	// 配信順序を publish 順に揃える
	publishMu sync.Mutex
	published atomic.Uint64

	logger *logrus.Entry
	now    func() time.Time
}

// New は新しいBridgeを作成する
func New() *Bridge {
	return &Bridge{
		logger: logging.NewLogger("bridge"),
		now:    time.Now,
	}
}

// Subscribe はハンドラーを登録する
// 登録前に発行された通知は再送されない
func (b *Bridge) Subscribe(name string, handler Handler) *Subscription {
	sub := &Subscription{
		id:      uuid.New().String(),
		name:    name,
		handler: handler,
		bridge:  b,
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	count := len(b.subs)
	b.mu.Unlock()

	b.logger.WithFields(logrus.Fields{"subscriber": name, "total": count}).Debug("購読を登録しました")
	return sub
}

// Unsubscribe は購読を解除する
// 配信中であれば完了を待つ。戻った後にそのハンドラーが呼ばれることはない
func (b *Bridge) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	sub.mu.Lock()
	already := sub.closed
	sub.closed = true
	sub.mu.Unlock()
	if already {
		return
	}

	b.mu.Lock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	count := len(b.subs)
	b.mu.Unlock()

	b.logger.WithFields(logrus.Fields{"subscriber": sub.name, "remaining": count}).Debug("購読を解除しました")
}

// Publish は現在の全購読者に通知を配信する
// 配信は同期的に行い、応答は待たない
func (b *Bridge) Publish(active bool) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	notice := Notice{Active: active, At: b.now()}

	b.mu.RLock()
	targets := make([]*Subscription, len(b.subs))
	copy(targets, b.subs)
	b.mu.RUnlock()

	for _, sub := range targets {
		b.deliver(sub, notice)
	}

	b.published.Add(1)
	b.logger.WithFields(logrus.Fields{"active": active, "subscribers": len(targets)}).Info("カメラ状態を通知しました")
}

// deliver はハンドラーのpanicを他の購読者に波及させない
func (b *Bridge) deliver(sub *Subscription, notice Notice) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{"subscriber": sub.name, "panic": r}).Error("購読者のハンドラーでpanicが発生しました")
		}
	}()
	sub.handler(notice)
}

// SubscriberCount は現在の購読者数を返す
func (b *Bridge) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Published はこれまでに発行した通知の数を返す
func (b *Bridge) Published() uint64 {
	return b.published.Load()
}
