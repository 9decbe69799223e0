package camera

import (
	"fmt"
	"sync"
)

// Lease はプロセス内でカメラを同時に1つしか取得させないための排他権
type Lease struct {
	mu     sync.Mutex
	holder string
}

var sharedLease = &Lease{}

// SharedLease は実デバイス用のバックエンドが共有するプロセス全体の排他権を返す
func SharedLease() *Lease {
	return sharedLease
}

// NewLease は独立した排他権を作成する
func NewLease() *Lease {
	return &Lease{}
}

// TryAcquire は排他権を取得する。保持者がいれば ErrBusy
func (l *Lease) TryAcquire(owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.holder != "" {
		return fmt.Errorf("%w: %s が使用中です", ErrBusy, l.holder)
	}
	l.holder = owner
	return nil
}

// Release は owner が保持している場合のみ排他権を返却する
func (l *Lease) Release(owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.holder == owner {
		l.holder = ""
	}
}

// Holder は現在の保持者を返す
func (l *Lease) Holder() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder
}
