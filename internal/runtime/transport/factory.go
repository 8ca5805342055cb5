// Package transport selects and builds the broker transport named by the
// service configuration.
package transport

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/docflow/internal/runtime/config"
	brokers "github.com/drblury/docflow/transport"

	_ "github.com/drblury/docflow/transport/transports"
)

// Transport is a publisher and subscriber pair plus what the broker supports.
type Transport struct {
	Publisher    message.Publisher
	Subscriber   message.Subscriber
	Capabilities brokers.Capabilities
}

// Factory abstracts how the service initialises its transport.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)

func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory returns the factory backed by the transport registry.
func DefaultFactory() Factory {
	return registryFactory{registry: brokers.DefaultRegistry}
}

// RegistryFactory returns a factory backed by registry.
func RegistryFactory(registry *brokers.Registry) Factory {
	return registryFactory{registry: registry}
}

type registryFactory struct {
	registry *brokers.Registry
}

func (f registryFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	if conf == nil {
		return Transport{}, errors.New("config is required")
	}
	registry := f.registry
	if registry == nil {
		registry = brokers.DefaultRegistry
	}

	t, err := registry.Build(ctx, conf, logger)
	if err != nil {
		return Transport{}, err
	}

	return Transport{
		Publisher:    t.Publisher,
		Subscriber:   t.Subscriber,
		Capabilities: registry.Capabilities(conf.GetPubSubSystem()),
	}, nil
}
