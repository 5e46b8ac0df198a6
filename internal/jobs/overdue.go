// Package jobs はバックグラウンドジョブ（延滞貸出チェック）を提供します。
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/yourusername/library-rental/internal/store"
)

const (
	taskTypeOverdue = "rental:overdue_check"
	queueName       = "maintenance"
)

// RentalStore は延滞チェックが必要とするストア操作です。
type RentalStore interface {
	ListOverdueRentals(ctx context.Context, now time.Time) ([]store.Rental, error)
}

// Manager は延滞チェックジョブの定期投入と実行を担います。
type Manager struct {
	client    *asynq.Client
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	rentals   RentalStore
	logger    *log.Logger
}

// NewManager は Manager を初期化します。interval ごとに延滞チェックを実行します。
func NewManager(redisURL string, interval time.Duration, rentals RentalStore, logger *log.Logger) (*Manager, error) {
	if rentals == nil {
		return nil, errors.New("rentals is nil")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 1,
			Queues: map[string]int{
				queueName: 1,
			},
		},
	)
	scheduler := asynq.NewScheduler(opt, nil)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client:    client,
		server:    server,
		scheduler: scheduler,
		mux:       mux,
		rentals:   rentals,
		logger:    logger,
	}
	mux.HandleFunc(taskTypeOverdue, manager.handleOverdueCheck)

	task := asynq.NewTask(taskTypeOverdue, nil, asynq.Queue(queueName))
	if _, err := scheduler.Register(fmt.Sprintf("@every %s", interval), task); err != nil {
		return nil, fmt.Errorf("failed to register overdue check: %w", err)
	}

	return manager, nil
}

// Start はワーカーとスケジューラーをバックグラウンドで起動します。
func (m *Manager) Start() error {
	if err := m.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Printf("asynq server stopped with error: %v", err)
		}
	}()
	return nil
}

// Shutdown はワーカー・スケジューラー・クライアントを停止します。
func (m *Manager) Shutdown() {
	m.scheduler.Shutdown()
	m.server.Shutdown()
	m.client.Close()
}

// handleOverdueCheck は返却期限を過ぎた貸出中レコードを洗い出してログに残します。
func (m *Manager) handleOverdueCheck(ctx context.Context, _ *asynq.Task) error {
	now := time.Now()
	rentals, err := m.rentals.ListOverdueRentals(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list overdue rentals: %w", err)
	}

	for _, r := range rentals {
		m.logger.Printf("overdue rental id=%d user=%d book=%d deadline=%s",
			r.ID, r.UserID, r.BookID, r.ReturnDeadline.Format(time.RFC3339))
	}
	if len(rentals) > 0 {
		m.logger.Printf("overdue check finished: %d rentals overdue", len(rentals))
	}
	return nil
}
