package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

// Publisher は AMQP チャネルのメッセージ送信部分です。*amqp.Channel が満たします。
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// StepSummary はジョブ終了イベントに含めるステップの結果です。
type StepSummary struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	ReadCount   int    `json:"read_count"`
	WriteCount  int    `json:"write_count"`
	CommitCount int    `json:"commit_count"`
}

// JobFinishedEvent はジョブ終了時に送信されるイベントです。
type JobFinishedEvent struct {
	ID          string               `json:"id"`
	JobName     string               `json:"job_name"`
	ExecutionID string               `json:"execution_id"`
	Status      string               `json:"status"`
	ExitStatus  string               `json:"exit_status"`
	ExitCode    int                  `json:"exit_code"`
	StartTime   time.Time            `json:"start_time"`
	EndTime     time.Time            `json:"end_time"`
	Steps       []StepSummary        `json:"steps"`
	Failures    []core.FailureDetail `json:"failures,omitempty"`
}

// NewJobFinishedEvent は JobExecution からイベントを組み立てます。
func NewJobFinishedEvent(je *core.JobExecution) JobFinishedEvent {
	ev := JobFinishedEvent{
		ID:          uuid.NewString(),
		JobName:     je.JobName,
		ExecutionID: je.ID,
		Status:      string(je.Status),
		ExitStatus:  string(je.ExitStatus),
		ExitCode:    je.ExitCode,
		StartTime:   je.StartTime,
		EndTime:     je.EndTime,
	}
	for _, se := range je.StepExecutions() {
		ev.Steps = append(ev.Steps, StepSummary{
			Name:        se.StepName,
			Status:      string(se.Status),
			ReadCount:   se.ReadCount,
			WriteCount:  se.WriteCount,
			CommitCount: se.CommitCount,
		})
	}
	for _, err := range je.Failures {
		ev.Failures = append(ev.Failures, core.NewFailureDetail(err))
	}
	return ev
}

// AMQPNotifier はジョブの終了を AMQP の exchange に JSON で通知する JobExecutionListener です。
// 送信に失敗してもジョブの結果は変わりません。
type AMQPNotifier struct {
	publisher  Publisher
	exchange   string
	routingKey string
	timeout    time.Duration
}

// NewAMQPNotifier は新しい AMQPNotifier を作成します。
func NewAMQPNotifier(publisher Publisher, exchange, routingKey string) *AMQPNotifier {
	return &AMQPNotifier{
		publisher:  publisher,
		exchange:   exchange,
		routingKey: routingKey,
		timeout:    5 * time.Second,
	}
}

func (n *AMQPNotifier) BeforeJob(ctx context.Context, je *core.JobExecution) {}

func (n *AMQPNotifier) AfterJob(ctx context.Context, je *core.JobExecution) {
	ev := NewJobFinishedEvent(je)
	body, err := json.Marshal(ev)
	if err != nil {
		logger.Errorf("ジョブ終了イベントのシリアライズに失敗しました: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	err = n.publisher.PublishWithContext(ctx, n.exchange, n.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    time.Now(),
		Type:         "job.finished",
		Body:         body,
	})
	if err != nil {
		logger.Errorf("ジョブ '%s' (Execution ID: %s) の終了イベントの送信に失敗しました: %v", je.JobName, je.ID, err)
		return
	}
	logger.Debugf("ジョブ '%s' の終了イベントを %s/%s に送信しました。", je.JobName, n.exchange, n.routingKey)
}

var _ core.JobExecutionListener = (*AMQPNotifier)(nil)

// AMQPChannel は AMQP 接続とチャネルをまとめたものです。
type AMQPChannel struct {
	conn *amqp.Connection
	*amqp.Channel
}

// DialAMQP は AMQP サーバーに接続し、topic 型の exchange を宣言したチャネルを返します。
func DialAMQP(url, exchange string) (*AMQPChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, exception.NewBatchError("notification", "AMQP サーバーへの接続に失敗しました", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, exception.NewBatchError("notification", "AMQP チャネルを開けませんでした", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, exception.NewBatchError("notification", fmt.Sprintf("exchange '%s' の宣言に失敗しました", exchange), err)
	}
	return &AMQPChannel{conn: conn, Channel: ch}, nil
}

// Close はチャネルと接続を閉じます。
func (c *AMQPChannel) Close() error {
	if err := c.Channel.Close(); err != nil {
		logger.Warnf("AMQP チャネルのクローズに失敗しました: %v", err)
	}
	return c.conn.Close()
}
