package listener

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(ctx, exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func finishedExecution() *core.JobExecution {
	je := core.NewJobExecution("ji-1", "parallelStepsJob", core.NewJobParameters(nil))
	je.MarkAsStarted()
	step1 := core.NewStepExecution("step1", je)
	step1.ReadCount, step1.WriteCount, step1.CommitCount = 250, 250, 3
	step1.MarkAsCompleted()
	je.AddStepExecution(step1)
	step2 := core.NewStepExecution("step2", je)
	step2.MarkAsFailed(exception.NewWriteError("writer", "書き込みに失敗しました", errors.New("deadlock")))
	je.AddStepExecution(step2)
	je.AddFailureException(step2.Failures[0])
	je.MarkAsFailed(nil)
	je.ExitCode = 1
	return je
}

func TestAMQPNotifier_PublishesJobFinishedEvent(t *testing.T) {
	pub := &mockPublisher{}
	var published amqp.Publishing
	pub.On("PublishWithContext", mock.Anything, "batch.events", "job.finished", false, false, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(5).(amqp.Publishing) }).
		Return(nil).Once()

	je := finishedExecution()
	NewAMQPNotifier(pub, "batch.events", "job.finished").AfterJob(t.Context(), je)

	pub.AssertExpectations(t)
	assert.Equal(t, "application/json", published.ContentType)
	assert.Equal(t, amqp.Persistent, published.DeliveryMode)

	var ev JobFinishedEvent
	require.NoError(t, json.Unmarshal(published.Body, &ev))
	assert.Equal(t, published.MessageId, ev.ID)
	assert.Equal(t, "parallelStepsJob", ev.JobName)
	assert.Equal(t, je.ID, ev.ExecutionID)
	assert.Equal(t, "FAILED", ev.Status)
	assert.Equal(t, 1, ev.ExitCode)
	require.Len(t, ev.Steps, 2)
	assert.Equal(t, StepSummary{Name: "step1", Status: "COMPLETED", ReadCount: 250, WriteCount: 250, CommitCount: 3}, ev.Steps[0])
	require.Len(t, ev.Failures, 1)
	assert.Equal(t, exception.KindWrite, ev.Failures[0].Kind)
}

func TestAMQPNotifier_PublishErrorDoesNotPanic(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything, false, false, mock.Anything).
		Return(errors.New("channel closed")).Once()

	n := NewAMQPNotifier(pub, "batch.events", "job.finished")
	n.BeforeJob(t.Context(), finishedExecution())
	assert.NotPanics(t, func() { n.AfterJob(t.Context(), finishedExecution()) })
	pub.AssertExpectations(t)
}

func TestLoggingJobListener(t *testing.T) {
	l := NewLoggingJobListener()
	je := finishedExecution()
	assert.NotPanics(t, func() {
		l.BeforeJob(t.Context(), je)
		l.AfterJob(t.Context(), je)
	})
}
