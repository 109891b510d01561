package deliverymq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webhookhub/webhookhub/internal/backoff"
	"github.com/webhookhub/webhookhub/internal/destwebhook"
	"github.com/webhookhub/webhookhub/internal/models"
	"github.com/webhookhub/webhookhub/internal/util/testutil"
)

type fakeAcknowledger struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcknowledger) Ack(_ uint64, _ bool) error {
	f.acked = true
	return nil
}

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

type statusCall struct {
	id        uuid.UUID
	attempts  int
	lastError string
	at        time.Time
}

type fakeDeliveryStore struct {
	delivered []statusCall
	retrying  []statusCall
	dead      []statusCall
	err       error
}

func (f *fakeDeliveryStore) MarkDelivered(_ context.Context, id uuid.UUID, attempts int, deliveredAt time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, statusCall{id: id, attempts: attempts, at: deliveredAt})
	return nil
}

func (f *fakeDeliveryStore) MarkRetrying(_ context.Context, id uuid.UUID, attempts int, lastError string, attemptAt time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.retrying = append(f.retrying, statusCall{id: id, attempts: attempts, lastError: lastError, at: attemptAt})
	return nil
}

func (f *fakeDeliveryStore) MarkDead(_ context.Context, id uuid.UUID, attempts int, lastError string, attemptAt time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.dead = append(f.dead, statusCall{id: id, attempts: attempts, lastError: lastError, at: attemptAt})
	return nil
}

type retryCall struct {
	job   models.DeliveryJob
	delay time.Duration
}

type fakeRetryPublisher struct {
	retries  []retryCall
	dlx      []models.DeliveryJob
	retryErr error
	dlxErr   error
}

func (f *fakeRetryPublisher) PublishRetry(_ context.Context, job models.DeliveryJob, delay time.Duration) error {
	if f.retryErr != nil {
		return f.retryErr
	}
	f.retries = append(f.retries, retryCall{job: job, delay: delay})
	return nil
}

func (f *fakeRetryPublisher) PublishDLX(_ context.Context, job models.DeliveryJob) error {
	if f.dlxErr != nil {
		return f.dlxErr
	}
	f.dlx = append(f.dlx, job)
	return nil
}

type fakeHTTPClient struct {
	outcome destwebhook.Outcome
	posted  []string
}

func (f *fakeHTTPClient) Post(_ context.Context, targetURL string, payload []byte) destwebhook.Outcome {
	f.posted = append(f.posted, string(payload))
	return f.outcome
}

type handlerFixture struct {
	store     *fakeDeliveryStore
	publisher *fakeRetryPublisher
	http      *fakeHTTPClient
	handler   *messageHandler
	now       time.Time
}

func setupHandler(t *testing.T, outcome destwebhook.Outcome) *handlerFixture {
	t.Helper()

	f := &handlerFixture{
		store:     &fakeDeliveryStore{},
		publisher: &fakeRetryPublisher{},
		http:      &fakeHTTPClient{outcome: outcome},
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.handler = NewMessageHandler(
		testutil.CreateTestLogger(t),
		f.store,
		f.publisher,
		f.http,
		&backoff.ExponentialBackoff{Interval: 5 * time.Second, Base: 2, Max: 30 * time.Minute},
		3,
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func makeMessage(t *testing.T, job models.DeliveryJob) (*amqp091.Delivery, *fakeAcknowledger) {
	t.Helper()

	body, err := job.Body()
	require.NoError(t, err)
	ack := &fakeAcknowledger{}
	return &amqp091.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		Body:         body,
	}, ack
}

func makeJob(attempt int) models.DeliveryJob {
	return models.DeliveryJob{
		DeliveryID:    uuid.New().String(),
		EventID:       uuid.New().String(),
		DestinationID: uuid.New().String(),
		TargetURL:     "https://example.com/hook",
		PayloadJSON:   `{"amount": 100}`,
		Attempt:       attempt,
		CorrelationID: uuid.New().String(),
	}
}

func TestHandleSuccess(t *testing.T) {
	t.Parallel()

	f := setupHandler(t, destwebhook.Outcome{Kind: destwebhook.OutcomeSuccess, StatusCode: 200})
	job := makeJob(1)
	msg, ack := makeMessage(t, job)

	require.NoError(t, f.handler.Handle(context.Background(), msg))

	require.Len(t, f.store.delivered, 1)
	assert.Equal(t, job.DeliveryID, f.store.delivered[0].id.String())
	assert.Equal(t, 1, f.store.delivered[0].attempts)
	assert.Equal(t, f.now, f.store.delivered[0].at)
	assert.Equal(t, []string{`{"amount": 100}`}, f.http.posted, "payload bytes are posted verbatim")
	assert.Empty(t, f.store.retrying)
	assert.Empty(t, f.publisher.retries)
	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
}

func TestHandleRetryableFailureSchedulesRetry(t *testing.T) {
	t.Parallel()

	f := setupHandler(t, destwebhook.Outcome{
		Kind:       destwebhook.OutcomeRetryableFailure,
		StatusCode: 503,
		Message:    "request failed with status 503",
	})
	job := makeJob(1)
	msg, ack := makeMessage(t, job)

	require.NoError(t, f.handler.Handle(context.Background(), msg))

	require.Len(t, f.store.retrying, 1)
	assert.Equal(t, 2, f.store.retrying[0].attempts, "row records the attempt being scheduled")
	assert.Equal(t, "request failed with status 503", f.store.retrying[0].lastError)

	require.Len(t, f.publisher.retries, 1)
	assert.Equal(t, 2, f.publisher.retries[0].job.Attempt)
	assert.Equal(t, 5*time.Second, f.publisher.retries[0].delay, "first retry uses the base delay")
	assert.Equal(t, job.PayloadJSON, f.publisher.retries[0].job.PayloadJSON)
	assert.Equal(t, job.CorrelationID, f.publisher.retries[0].job.CorrelationID)

	assert.Empty(t, f.publisher.dlx)
	assert.True(t, ack.acked)
}

func TestHandleRetryBackoffGrows(t *testing.T) {
	t.Parallel()

	f := setupHandler(t, destwebhook.Outcome{Kind: destwebhook.OutcomeRetryableFailure, StatusCode: 500})
	job := makeJob(2)
	msg, _ := makeMessage(t, job)

	require.NoError(t, f.handler.Handle(context.Background(), msg))

	require.Len(t, f.publisher.retries, 1)
	assert.Equal(t, 10*time.Second, f.publisher.retries[0].delay, "second failure doubles the delay")
}

func TestHandleRetryableFailureExhaustsAttempts(t *testing.T) {
	t.Parallel()

	f := setupHandler(t, destwebhook.Outcome{
		Kind:       destwebhook.OutcomeRetryableFailure,
		StatusCode: 500,
		Message:    "request failed with status 500",
	})
	job := makeJob(3) // maxAttempts in the fixture
	msg, ack := makeMessage(t, job)

	require.NoError(t, f.handler.Handle(context.Background(), msg))

	require.Len(t, f.store.dead, 1)
	assert.Equal(t, 3, f.store.dead[0].attempts)
	assert.Equal(t, "request failed with status 500", f.store.dead[0].lastError)
	require.Len(t, f.publisher.dlx, 1)
	assert.Equal(t, 3, f.publisher.dlx[0].Attempt)
	assert.Empty(t, f.publisher.retries)
	assert.True(t, ack.acked)
}

func TestHandleNonRetryableFailureDeadLettersImmediately(t *testing.T) {
	t.Parallel()

	f := setupHandler(t, destwebhook.Outcome{
		Kind:       destwebhook.OutcomeNonRetryableFailure,
		StatusCode: 400,
		Message:    "request failed with status 400",
	})
	job := makeJob(1)
	msg, ack := makeMessage(t, job)

	require.NoError(t, f.handler.Handle(context.Background(), msg))

	require.Len(t, f.store.dead, 1)
	assert.Equal(t, 1, f.store.dead[0].attempts)
	require.Len(t, f.publisher.dlx, 1)
	assert.Empty(t, f.store.retrying)
	assert.Empty(t, f.publisher.retries)
	assert.True(t, ack.acked)
}

func TestHandleMalformedBody(t *testing.T) {
	t.Parallel()

	f := setupHandler(t, destwebhook.Outcome{Kind: destwebhook.OutcomeSuccess})
	ack := &fakeAcknowledger{}
	msg := &amqp091.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte("not json")}

	err := f.handler.Handle(context.Background(), msg)
	require.Error(t, err)

	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue, "malformed messages are dead-lettered, not requeued")
	assert.Empty(t, f.http.posted, "no attempt is made for an undecodable job")
}

func TestHandleInvalidDeliveryID(t *testing.T) {
	t.Parallel()

	f := setupHandler(t, destwebhook.Outcome{Kind: destwebhook.OutcomeSuccess})
	job := makeJob(1)
	job.DeliveryID = "not-a-uuid"
	msg, ack := makeMessage(t, job)

	err := f.handler.Handle(context.Background(), msg)
	require.Error(t, err)

	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)
	assert.True(t, ack.nacked)
	assert.Empty(t, f.http.posted)
}

func TestHandleStorageFailure(t *testing.T) {
	t.Parallel()

	f := setupHandler(t, destwebhook.Outcome{Kind: destwebhook.OutcomeSuccess, StatusCode: 200})
	f.store.err = errors.New("connection lost")
	msg, ack := makeMessage(t, makeJob(1))

	err := f.handler.Handle(context.Background(), msg)
	require.Error(t, err)

	var storageErr *StorageError
	assert.ErrorAs(t, err, &storageErr)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
}

func TestHandleRetryPublishFailure(t *testing.T) {
	t.Parallel()

	f := setupHandler(t, destwebhook.Outcome{Kind: destwebhook.OutcomeRetryableFailure, StatusCode: 500})
	f.publisher.retryErr = errors.New("channel closed")
	msg, ack := makeMessage(t, makeJob(1))

	err := f.handler.Handle(context.Background(), msg)
	require.Error(t, err)

	var publishErr *PublishError
	assert.ErrorAs(t, err, &publishErr)
	require.Len(t, f.store.retrying, 1, "status write precedes the publish")
	assert.True(t, ack.nacked)
}
