package messaging

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/doctext/internal/models"
)

type fakeAcker struct {
	acks    int
	nacks   int
	requeue bool
}

func (a *fakeAcker) Ack(uint64, bool) error { a.acks++; return nil }

func (a *fakeAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *fakeAcker) Reject(_ uint64, requeue bool) error { return a.Nack(0, false, requeue) }

type handlerFunc func(ctx context.Context, evt models.UploadEvent) error

func (f handlerFunc) HandleUpload(ctx context.Context, evt models.UploadEvent) error { return f(ctx, evt) }

func testConsumer(h UploadHandler) *Consumer {
	return &Consumer{
		topo:    Topology{Exchange: "documents", Queue: "q", UploadedKey: "document.uploaded", ProcessedKey: "document.processed"},
		handler: h,
		logger:  zap.NewNop(),
	}
}

func delivery(a *fakeAcker, key, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: a, RoutingKey: key, DeliveryTag: 7, Body: []byte(body)}
}

func TestHandleDeliveryAcksOnSuccess(t *testing.T) {
	var got models.UploadEvent
	c := testConsumer(handlerFunc(func(_ context.Context, evt models.UploadEvent) error {
		got = evt
		return nil
	}))
	a := &fakeAcker{}

	c.handleDelivery(context.Background(), delivery(a, "document.uploaded",
		`{"document_id":"doc-1","entity_type":"candidate","entity_id":"cand-1","file_path":"a/b.pdf","bucket_name":"docs","mime_type":"application/pdf","file_size":1024}`))

	assert.Equal(t, 1, a.acks)
	assert.Zero(t, a.nacks)
	assert.Equal(t, "doc-1", got.DocumentID)
	assert.Equal(t, models.EntityCandidate, got.EntityType)
	assert.Equal(t, int64(1024), got.FileSize)
}

func TestHandleDeliveryMalformedIsDropped(t *testing.T) {
	called := false
	c := testConsumer(handlerFunc(func(context.Context, models.UploadEvent) error {
		called = true
		return nil
	}))
	a := &fakeAcker{}

	c.handleDelivery(context.Background(), delivery(a, "document.uploaded", `{not json`))

	assert.False(t, called)
	assert.Equal(t, 1, a.nacks)
	assert.False(t, a.requeue)
}

func TestHandleDeliveryHandlerErrorNotRequeued(t *testing.T) {
	c := testConsumer(handlerFunc(func(context.Context, models.UploadEvent) error {
		return errors.New("store unavailable")
	}))
	a := &fakeAcker{}

	c.handleDelivery(context.Background(), delivery(a, "document.uploaded", `{"document_id":"doc-1"}`))

	assert.Zero(t, a.acks)
	assert.Equal(t, 1, a.nacks)
	assert.False(t, a.requeue)
}

func TestHandleDeliveryShutdownRequeues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := testConsumer(handlerFunc(func(ctx context.Context, _ models.UploadEvent) error {
		cancel()
		return ctx.Err()
	}))
	a := &fakeAcker{}

	c.handleDelivery(ctx, delivery(a, "document.uploaded", `{"document_id":"doc-1"}`))

	require.Equal(t, 1, a.nacks)
	assert.True(t, a.requeue)
}

func TestHandleDeliveryUnknownRoutingKeyAcked(t *testing.T) {
	called := false
	c := testConsumer(handlerFunc(func(context.Context, models.UploadEvent) error {
		called = true
		return nil
	}))
	a := &fakeAcker{}

	c.handleDelivery(context.Background(), delivery(a, "document.deleted", `{"document_id":"doc-1"}`))

	assert.False(t, called)
	assert.Equal(t, 1, a.acks)
}
