package channel

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/docflow/transport"
	"github.com/drblury/docflow/transport/transporttest"
)

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	t.Cleanup(func() { transport.DefaultRegistry = original })
	transport.DefaultRegistry = transport.NewRegistry()

	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "channel", caps.Name)
	assert.True(t, caps.SupportsReliableDelivery())
	assert.False(t, caps.SupportsCompetingConsumers)
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t, transport.ChannelCapabilities, Capabilities())
}

func TestBuildReplaysMessagesPublishedBeforeSubscribe(t *testing.T) {
	tr, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	require.NoError(t, tr.Publisher.Publish("requests", message.NewMessage("m-1", []byte("early"))))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := tr.Subscriber.Subscribe(ctx, "requests")
	require.NoError(t, err)

	select {
	case msg := <-messages:
		assert.Equal(t, "early", string(msg.Payload))
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("expected the early message to be replayed")
	}
}

func TestBuildUsesFactory(t *testing.T) {
	originalFactory := Factory
	t.Cleanup(func() { Factory = originalFactory })

	pub := &transporttest.Publisher{}
	sub := &transporttest.Subscriber{}
	var got gochannel.Config
	Factory = func(cfg gochannel.Config, _ watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
		got = cfg
		return pub, sub
	}

	tr, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)
	assert.Same(t, sub, tr.Subscriber)
	assert.True(t, got.Persistent)
	assert.Equal(t, int64(OutputBuffer), got.OutputChannelBuffer)
}
