package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/docflow/transport"
	"github.com/drblury/docflow/transport/transporttest"
)

func stubAWS(t *testing.T) {
	t.Helper()
	originalLoader := DefaultConfigLoader
	originalResolver := TopicResolverFactory
	originalPub := PublisherFactory
	originalSub := SubscriberFactory
	t.Cleanup(func() {
		DefaultConfigLoader = originalLoader
		TopicResolverFactory = originalResolver
		PublisherFactory = originalPub
		SubscriberFactory = originalSub
	})

	DefaultConfigLoader = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{Region: "us-east-1"}, nil
	}
	TopicResolverFactory = sns.NewGenerateArnTopicResolver
	PublisherFactory = func(sns.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
		return &transporttest.Publisher{}, nil
	}
	SubscriberFactory = func(sns.SubscriberConfig, sqs.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
		return &transporttest.Subscriber{}, nil
	}
}

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	t.Cleanup(func() { transport.DefaultRegistry = original })
	transport.DefaultRegistry = transport.NewRegistry()

	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "aws", caps.Name)
	assert.True(t, caps.SupportsCompetingConsumers)
	assert.True(t, caps.Fits(262144))
	assert.False(t, caps.Fits(262145))
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t, transport.AWSCapabilities, Capabilities())
}

func TestTopicName(t *testing.T) {
	assert.Equal(t, "document-requests", TopicName("document.requests"))
	assert.Equal(t, "a_b-c", TopicName("a_b-c"))
	assert.Equal(t, "x--y", TopicName("x/:y"))
}

func TestBuild(t *testing.T) {
	t.Run("wires publisher and subscriber", func(t *testing.T) {
		stubAWS(t)
		pub := &transporttest.Publisher{}
		sub := &transporttest.Subscriber{}

		var publisherCfg sns.PublisherConfig
		var subscriberCfg sns.SubscriberConfig
		PublisherFactory = func(cfg sns.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
			publisherCfg = cfg
			return pub, nil
		}
		SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
			subscriberCfg = cfg
			assert.Equal(t, "us-east-1", sqsCfg.AWSConfig.Region)
			return sub, nil
		}

		tr, err := Build(context.Background(), &transporttest.Config{
			ServiceName:  "docgen",
			AWSRegion:    "us-east-1",
			AWSAccountID: "123456789012",
		}, watermill.NopLogger{})
		require.NoError(t, err)
		assert.Same(t, pub, tr.Publisher)
		assert.Same(t, sub, tr.Subscriber)
		assert.Empty(t, publisherCfg.OptFns)

		arn, err := subscriberCfg.TopicResolver.ResolveTopic(context.Background(), "document.requests")
		require.NoError(t, err)
		assert.Equal(t, sns.TopicArn("arn:aws:sns:us-east-1:123456789012:document-requests"), arn)

		queue, err := subscriberCfg.GenerateSqsQueueName(context.Background(), arn)
		require.NoError(t, err)
		assert.Equal(t, "docgen-document-requests", queue)
	})

	t.Run("applies custom endpoint", func(t *testing.T) {
		stubAWS(t)
		var publisherCfg sns.PublisherConfig
		var sqsConfig sqs.SubscriberConfig
		PublisherFactory = func(cfg sns.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
			publisherCfg = cfg
			return &transporttest.Publisher{}, nil
		}
		SubscriberFactory = func(_ sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
			sqsConfig = sqsCfg
			return &transporttest.Subscriber{}, nil
		}

		_, err := Build(context.Background(), &transporttest.Config{
			AWSRegion:   "us-east-1",
			AWSEndpoint: "http://localhost:4566",
		}, watermill.NopLogger{})
		require.NoError(t, err)
		assert.Len(t, publisherCfg.OptFns, 1)
		assert.Len(t, sqsConfig.OptFns, 1)
	})

	t.Run("returns config loader error", func(t *testing.T) {
		stubAWS(t)
		DefaultConfigLoader = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
			return aws.Config{}, errors.New("config error")
		}

		_, err := Build(context.Background(), &transporttest.Config{AWSRegion: "us-east-1"}, watermill.NopLogger{})
		require.EqualError(t, err, "config error")
	})

	t.Run("returns publisher error", func(t *testing.T) {
		stubAWS(t)
		PublisherFactory = func(sns.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("publisher error")
		}

		_, err := Build(context.Background(), &transporttest.Config{AWSRegion: "us-east-1", AWSAccountID: "123456789012"}, watermill.NopLogger{})
		require.EqualError(t, err, "publisher error")
	})

	t.Run("closes publisher on subscriber error", func(t *testing.T) {
		stubAWS(t)
		pub := &transporttest.Publisher{}
		PublisherFactory = func(sns.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return pub, nil
		}
		SubscriberFactory = func(sns.SubscriberConfig, sqs.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
			return nil, errors.New("subscriber error")
		}

		_, err := Build(context.Background(), &transporttest.Config{AWSRegion: "us-east-1", AWSAccountID: "123456789012"}, watermill.NopLogger{})
		require.EqualError(t, err, "subscriber error")
		assert.True(t, pub.Closed())
	})
}

func TestResolveAccountAndRegion(t *testing.T) {
	t.Run("uses config values", func(t *testing.T) {
		cfg := &transporttest.Config{AWSAccountID: "123456789012", AWSRegion: "us-west-2"}
		accountID, region := resolveAccountAndRegion(cfg, watermill.NopLogger{}, "us-east-1")
		assert.Equal(t, "123456789012", accountID)
		assert.Equal(t, "us-west-2", region)
	})

	t.Run("uses fallback region when config region empty", func(t *testing.T) {
		cfg := &transporttest.Config{AWSAccountID: "123456789012"}
		_, region := resolveAccountAndRegion(cfg, watermill.NopLogger{}, "us-east-1")
		assert.Equal(t, "us-east-1", region)
	})

	t.Run("uses localstack default when endpoint set and account empty", func(t *testing.T) {
		cfg := &transporttest.Config{AWSEndpoint: "http://localhost:4566"}
		accountID, _ := resolveAccountAndRegion(cfg, watermill.NopLogger{}, "us-east-1")
		assert.Equal(t, localstackAccountID, accountID)
	})

	t.Run("replaces malformed account for localstack", func(t *testing.T) {
		cfg := &transporttest.Config{AWSEndpoint: "http://localhost:4566", AWSAccountID: "'123'"}
		accountID, _ := resolveAccountAndRegion(cfg, watermill.NopLogger{}, "us-east-1")
		assert.Equal(t, localstackAccountID, accountID)
	})

	t.Run("returns empty values for nil config", func(t *testing.T) {
		accountID, region := resolveAccountAndRegion(nil, watermill.NopLogger{}, "us-east-1")
		assert.Empty(t, accountID)
		assert.Equal(t, "us-east-1", region)
	})
}

func TestAwsEndpointURL(t *testing.T) {
	u, err := awsEndpointURL(&transporttest.Config{})
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = awsEndpointURL(&transporttest.Config{AWSEndpoint: "http://localhost:4566"})
	require.NoError(t, err)
	assert.Equal(t, "localhost:4566", u.Host)
}
