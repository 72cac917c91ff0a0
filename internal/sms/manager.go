package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const taskTypeSend = "sms:send"

// Manager は送信タスクの投入とワーカーの実行を担います。
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	sender Sender
	logger *log.Logger
}

// NewManager は Manager を初期化します。
func NewManager(redisURL string, sender Sender, logger *log.Logger) (*Manager, error) {
	if sender == nil {
		return nil, errors.New("sender is nil")
	}
	if logger == nil {
		logger = log.Default()
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				"sms": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client: client,
		server: server,
		mux:    mux,
		sender: sender,
		logger: logger,
	}
	mux.HandleFunc(taskTypeSend, manager.handleSendTask)
	return manager, nil
}

// StartWorker は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorker() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && err != asynq.ErrServerClosed {
			m.logger.Printf("asynq server stopped with error: %v", err)
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	m.client.Close()
	return nil
}

// Dispatch は送信タスクをキューに投入し、タスクIDを返します。
func (m *Manager) Dispatch(ctx context.Context, mobile, code string) (string, error) {
	payload := &TaskPayload{
		TaskID: uuid.NewString(),
		Mobile: mobile,
		Code:   code,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(taskTypeSend, body, asynq.Queue("sms"))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(2)); err != nil {
		return "", err
	}
	return payload.TaskID, nil
}

func (m *Manager) handleSendTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}
	if payload.Mobile == "" || payload.Code == "" {
		return fmt.Errorf("missing mobile or code in payload")
	}

	if err := m.sender.Send(ctx, payload.Mobile, payload.Code); err != nil {
		m.logger.Printf("sms: failed to send task=%s mobile=%s: %v", payload.TaskID, payload.Mobile, err)
		return err
	}
	return nil
}
