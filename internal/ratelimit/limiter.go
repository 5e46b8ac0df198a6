// Package ratelimit はログイン試行の回数制限を提供します。
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Options は制限の挙動を調整します。ゼロ値はデフォルト（5回/15分、ロック10分）です。
type Options struct {
	Window       time.Duration // 失敗回数を数える時間幅
	LockDuration time.Duration // 上限到達後のロック時間
	MaxAttempts  int           // ロックまでの失敗回数
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = 15 * time.Minute
	}
	if o.LockDuration <= 0 {
		o.LockDuration = 10 * time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	return o
}

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// Memory はプロセス内メモリで試行回数を管理します。単一プロセス構成向けです。
type Memory struct {
	opts     Options
	lock     sync.Mutex
	attempts map[string]*attemptState
}

// NewMemory はメモリ版の制限を作成します。
func NewMemory(opts Options) *Memory {
	return &Memory{
		opts:     opts.withDefaults(),
		attempts: make(map[string]*attemptState),
	}
}

// Check はロック中の場合に残り時間を返します。
func (m *Memory) Check(_ context.Context, key string) (time.Duration, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[key]
	if !ok {
		return 0, nil
	}
	now := time.Now()
	if now.After(state.lockedUntil) {
		return 0, nil
	}
	return time.Until(state.lockedUntil), nil
}

// RecordFailure は失敗を記録し、上限に達したらロックします。
func (m *Memory) RecordFailure(_ context.Context, key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := time.Now()
	state, ok := m.attempts[key]
	if !ok || now.Sub(state.firstAttempt) > m.opts.Window {
		state = &attemptState{firstAttempt: now}
		m.attempts[key] = state
	}

	state.count++
	if state.count >= m.opts.MaxAttempts {
		state.lockedUntil = now.Add(m.opts.LockDuration)
		state.count = m.opts.MaxAttempts
	}
	return nil
}

// Reset は失敗履歴を消去します。
func (m *Memory) Reset(_ context.Context, key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, key)
	return nil
}
