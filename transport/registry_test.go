package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/docflow/transport/transporttest"
)

func fakeBuilder(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return Transport{
		Publisher:  &transporttest.Publisher{},
		Subscriber: &transporttest.Subscriber{},
	}, nil
}

func TestNewRegistryIsEmpty(t *testing.T) {
	reg := NewRegistry()
	require.NotNil(t, reg)
	assert.Empty(t, reg.Names())
}

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry()
	reg.Register("test-transport", fakeBuilder, Capabilities{SupportsAck: true, SupportsNack: true})

	assert.True(t, reg.Has("test-transport"))
	assert.False(t, reg.Has("other-transport"))

	caps := reg.Capabilities("test-transport")
	assert.Equal(t, "test-transport", caps.Name, "empty capability name defaults to the registered name")
	assert.True(t, caps.SupportsReliableDelivery())
}

func TestRegistryCapabilitiesUnknown(t *testing.T) {
	caps := NewRegistry().Capabilities("unknown")
	assert.Equal(t, Capabilities{Name: "unknown"}, caps)
}

func TestRegistryBuild(t *testing.T) {
	reg := NewRegistry()
	reg.Register("test-transport", fakeBuilder, Capabilities{})

	tr, err := reg.Build(context.Background(), &transporttest.Config{PubSubSystem: "test-transport"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, tr.Publisher)
	assert.NotNil(t, tr.Subscriber)
}

func TestRegistryBuildNilConfig(t *testing.T) {
	_, err := NewRegistry().Build(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")
}

func TestRegistryBuildUnknownTransport(t *testing.T) {
	reg := NewRegistry()
	reg.Register("kafka", fakeBuilder, KafkaCapabilities)

	_, err := reg.Build(context.Background(), &transporttest.Config{PubSubSystem: "carrier-pigeon"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown transport: "carrier-pigeon"`)
	assert.Contains(t, err.Error(), "kafka")
}

func TestRegistryBuildWrapsBuilderError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("builder error")
	reg.Register("failing", func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, boom
	}, Capabilities{})

	_, err := reg.Build(context.Background(), &transporttest.Config{PubSubSystem: "failing"}, nil)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "build failing transport")
}

func TestRegistryNamesAreSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register("rabbitmq", fakeBuilder, Capabilities{})
	reg.Register("aws", fakeBuilder, Capabilities{})
	reg.Register("kafka", fakeBuilder, Capabilities{})

	assert.Equal(t, []string{"aws", "kafka", "rabbitmq"}, reg.Names())
}

func TestTransportCloseClosesBothHalves(t *testing.T) {
	pub := &transporttest.Publisher{}
	sub := &transporttest.Subscriber{}

	require.NoError(t, Transport{Publisher: pub, Subscriber: sub}.Close())
	assert.True(t, pub.Closed())
	assert.True(t, sub.Closed())

	assert.NoError(t, Transport{}.Close())
}
