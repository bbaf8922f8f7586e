package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/goleak"

	"github.com/fiscalclm/clm/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func counter(n *atomic.Int32) domain.MessageHandler {
	return func(ctx context.Context, msg *domain.Message) error {
		n.Add(1)
		return nil
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		_, err := bus.Subscribe(ctx, tenantID, domain.TopicContractCreated, func(ctx context.Context, msg *domain.Message) error {
			got <- msg
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, tenantID, domain.TopicContractCreated, []byte("hello")))

		select {
		case msg := <-got:
			assert.Equal(t, "hello", string(msg.Payload))
			assert.Equal(t, tenantID, msg.TenantID)
			assert.Equal(t, domain.TopicContractCreated, msg.Topic)
			assert.NotEmpty(t, msg.ID)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		var received1, received2 atomic.Int32
		_, err := bus.Subscribe(ctx, "tenant-a", "isolation.topic", counter(&received1))
		require.NoError(t, err)
		_, err = bus.Subscribe(ctx, "tenant-b", "isolation.topic", counter(&received2))
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, "tenant-a", "isolation.topic", []byte("msg1")))

		require.Eventually(t, func() bool { return received1.Load() == 1 }, time.Second, 5*time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, int32(0), received2.Load())
	})

	t.Run("WildcardReceivesEveryTenant", func(t *testing.T) {
		var all, one atomic.Int32
		_, err := bus.Subscribe(ctx, domain.AllTenants, "wild.topic", counter(&all))
		require.NoError(t, err)
		_, err = bus.Subscribe(ctx, "tenant-a", "wild.topic", counter(&one))
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, "tenant-a", "wild.topic", nil))
		require.NoError(t, bus.Publish(ctx, "tenant-b", "wild.topic", nil))

		require.Eventually(t, func() bool { return all.Load() == 2 && one.Load() == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		assert.ErrorIs(t, bus.Publish(ctx, "", "topic", []byte("data")), ErrTenantRequired)
		assert.ErrorIs(t, bus.Publish(ctx, domain.AllTenants, "topic", nil), ErrWildcardPublish)
		assert.Error(t, bus.Publish(ctx, "bad.tenant", "topic", nil))

		_, err := bus.Subscribe(ctx, "", "topic", counter(new(atomic.Int32)))
		assert.ErrorIs(t, err, ErrTenantRequired)
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32
		sub, err := bus.Subscribe(ctx, tenantID, "unsub.topic", counter(&count))
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, tenantID, "unsub.topic", []byte("msg1")))
		require.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, 5*time.Millisecond)

		require.NoError(t, sub.Unsubscribe())
		require.NoError(t, bus.Publish(ctx, tenantID, "unsub.topic", []byte("msg2")))
		time.Sleep(20 * time.Millisecond)

		assert.Equal(t, int32(1), count.Load())
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var count1, count2 atomic.Int32
		_, err := bus.Subscribe(ctx, tenantID, "multi.topic", counter(&count1))
		require.NoError(t, err)
		_, err = bus.Subscribe(ctx, tenantID, "multi.topic", counter(&count2))
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, tenantID, "multi.topic", []byte("broadcast")))

		require.Eventually(t, func() bool { return count1.Load() == 1 && count2.Load() == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("Request", func(t *testing.T) {
		_, err := bus.Subscribe(ctx, tenantID, "echo", func(ctx context.Context, msg *domain.Message) error {
			return bus.Publish(ctx, msg.TenantID, ReplyTopic(msg.Topic), append([]byte("re:"), msg.Payload...))
		})
		require.NoError(t, err)

		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		reply, err := bus.Request(reqCtx, tenantID, "echo", []byte("ping"))
		require.NoError(t, err)
		assert.Equal(t, "re:ping", string(reply))
	})

	t.Run("RequestTimeout", func(t *testing.T) {
		reqCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := bus.Request(reqCtx, tenantID, "nobody.listens", nil)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, bus.Ping(ctx))
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, err := bus.Subscribe(ctx, tenantID, "my.topic", counter(new(atomic.Int32)))
		require.NoError(t, err)
		assert.Equal(t, "my.topic", sub.Topic())
	})
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)

	ctx := context.Background()
	tenantID := "tenant-001"

	_, err := bus.Subscribe(ctx, tenantID, "close.topic", counter(new(atomic.Int32)))
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(ctx, tenantID, "close.topic", []byte("data")), ErrClosed)
	assert.ErrorIs(t, bus.Ping(ctx), ErrClosed)
	_, err = bus.Subscribe(ctx, tenantID, "close.topic", counter(new(atomic.Int32)))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestChannelBusDropsWhenFull(t *testing.T) {
	bus := NewChannelBus(1)
	defer bus.Close()

	ctx := context.Background()
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	_, err := bus.Subscribe(ctx, "t1", "slow", func(ctx context.Context, msg *domain.Message) error {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "t1", "slow", nil))
	<-started

	// one message fills the buffer, the next is dropped
	require.NoError(t, bus.Publish(ctx, "t1", "slow", nil))
	require.NoError(t, bus.Publish(ctx, "t1", "slow", nil))
	assert.Equal(t, uint64(1), bus.Dropped())

	close(release)
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		require.NoError(t, err)
		defer b.Close()

		_, ok := b.(*ChannelBus)
		assert.True(t, ok, "expected ChannelBus for channel type")
	})

	t.Run("EmptyTypeDefaultsToChannel", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{})
		require.NoError(t, err)
		defer b.Close()

		_, ok := b.(*ChannelBus)
		assert.True(t, ok)
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		_, err := New(domain.EventBusConfig{Type: "kafka"})
		assert.Error(t, err)
	})
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "clm.tenant-1.clm.fiscal.alert", Subject("tenant-1", domain.TopicFiscalAlert))
	assert.Equal(t, "clm.*.clm.contract.created", Subject(domain.AllTenants, domain.TopicContractCreated))
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()
	tenantID := "tenant-load"
	const messageCount = 100

	var received atomic.Int32
	_, err := bus.Subscribe(ctx, tenantID, "load.topic", counter(&received))
	require.NoError(t, err)

	for i := 0; i < messageCount; i++ {
		require.NoError(t, bus.Publish(ctx, tenantID, "load.topic", []byte("msg")))
	}

	require.Eventually(t, func() bool { return received.Load() == messageCount }, 5*time.Second, 5*time.Millisecond)
}

func TestMessageCarriesTraceID(t *testing.T) {
	traceID := trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  trace.SpanID{0, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7},
	})

	msg := newMessage(trace.ContextWithSpanContext(context.Background(), sc), "tenant-001", "t", nil)
	assert.Equal(t, traceID.String(), msg.Metadata[domain.MetadataTraceID])

	msg = newMessage(context.Background(), "tenant-001", "t", nil)
	assert.NotContains(t, msg.Metadata, domain.MetadataTraceID)
	assert.NotEmpty(t, msg.ID)
}
