package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"dbaccountsync/models"
	"dbaccountsync/pkg/storetest"
	"dbaccountsync/repository"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct {
	calls atomic.Int32
}

func (s *failingSink) Name() string { return "failing" }

func (s *failingSink) Emit(context.Context, Event) error {
	s.calls.Add(1)
	return errors.New("unreachable")
}

func fastRetry(attempts int) Config {
	var cfg Config
	cfg.Retry.MaxAttempts = attempts
	cfg.Retry.InitialDelay = time.Millisecond
	return cfg
}

func TestWebhookSink_SignsBody(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(WebhookConfig{Enabled: true, Endpoint: srv.URL, Secret: "s3cret"})
	require.NotNil(t, sink)

	d := NewDispatcher(fastRetry(1), nil, sink)
	d.Dispatch(context.Background(), New(AccountEvent(models.ChangeTypeAdd), map[string]string{"username": "alice"}))
	d.Wait()

	require.NotEmpty(t, gotBody)
	assert.Equal(t, "sha256="+Sign("s3cret", gotBody), gotSig)

	var e Event
	require.NoError(t, json.Unmarshal(gotBody, &e))
	assert.Equal(t, "account.add", e.Name)
}

func TestWebhookSink_DisabledIsNil(t *testing.T) {
	assert.Nil(t, NewWebhookSink(WebhookConfig{Endpoint: "http://x"}))
}

func TestRedisSink_Publishes(t *testing.T) {
	mr := miniredis.RunT(t)
	sink, err := NewRedisSink(RedisConfig{Enabled: true, DSN: "redis://" + mr.Addr(), Channel: "changes"})
	require.NoError(t, err)

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()
	ps := sub.Subscribe(context.Background(), "changes")
	defer ps.Close()
	_, err = ps.Receive(context.Background())
	require.NoError(t, err)

	require.NoError(t, sink.Emit(context.Background(), New(SessionCompleted, nil)))

	msg, err := ps.ReceiveMessage(context.Background())
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, SessionCompleted)
}

func TestKafkaSink_KeysByEventName(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewAsyncProducer(t, cfg)
	producer.ExpectInputAndSucceed()
	sink := &KafkaSink{Producer: producer, Topic: "dbsync"}

	require.NoError(t, sink.Emit(context.Background(), New(BatchEvent(models.BatchStatusCompleted), nil)))

	msg := <-producer.Successes()
	assert.Equal(t, "dbsync", msg.Topic)
	assert.Equal(t, sarama.StringEncoder("classification.batch.completed"), msg.Key)
	require.NoError(t, producer.Close())
}

func TestDispatcher_DeadLettersAfterRetries(t *testing.T) {
	db := storetest.New(t)
	repo := repository.NewEventFailureRepositoryWithDB(db)
	sink := &failingSink{}

	d := NewDispatcher(fastRetry(3), NewStoreDLQ(repo), sink)
	e := New(InstanceFailed, map[string]any{"instance_id": 7})
	d.Dispatch(context.Background(), e)
	d.Wait()

	assert.Equal(t, int32(3), sink.calls.Load())
	rows, err := repo.List(nil, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, e.ID, rows[0].EventID)
	assert.Equal(t, "failing", rows[0].Sink)
	assert.Equal(t, 3, rows[0].Attempts)
	assert.Equal(t, "unreachable", rows[0].Error)
}

func TestEmit_WithoutDefaultIsNoop(t *testing.T) {
	SetDefault(nil)
	assert.NotPanics(t, func() { Emit(context.Background(), New(SessionCompleted, nil)) })
}
