package transport

// Capabilities describes the delivery guarantees of a transport backend.
type Capabilities struct {
	// Name is the human-readable name of the transport.
	Name string `json:"name"`

	// SupportsAck indicates explicit acknowledgement removes a message.
	SupportsAck bool `json:"supports_ack"`

	// SupportsNack indicates a negative acknowledgement triggers redelivery.
	SupportsNack bool `json:"supports_nack"`

	// SupportsCompetingConsumers indicates several subscriptions on one topic
	// share its messages instead of each receiving a copy.
	SupportsCompetingConsumers bool `json:"supports_competing_consumers"`

	// SupportsOrdering indicates messages of a partition or queue arrive in
	// publish order.
	SupportsOrdering bool `json:"supports_ordering"`

	// MaxMessageSize is the largest payload in bytes, 0 when unlimited or unknown.
	MaxMessageSize int64 `json:"max_message_size"`
}

// SupportsReliableDelivery reports at-least-once semantics, which needs both
// ack and nack.
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Consumers returns how many subscriptions a consumer wanting the given
// concurrency should open on a single topic.
func (c Capabilities) Consumers(concurrency int) int {
	if !c.SupportsCompetingConsumers || concurrency < 1 {
		return 1
	}
	return concurrency
}

// Fits reports whether a payload of size bytes is within MaxMessageSize.
func (c Capabilities) Fits(size int) bool {
	return c.MaxMessageSize == 0 || int64(size) <= c.MaxMessageSize
}

// Capability sets of the built-in transports.
var (
	// ChannelCapabilities for the in-memory Go channel transport. Every
	// subscription receives its own copy of each message.
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsOrdering: true,
	}

	// KafkaCapabilities for Apache Kafka. Subscriptions in one consumer group
	// split the partitions; a nack stops the partition until redelivery.
	KafkaCapabilities = Capabilities{
		Name:                       "kafka",
		SupportsAck:                true,
		SupportsNack:               true,
		SupportsCompetingConsumers: true,
		SupportsOrdering:           true,
		MaxMessageSize:             1048576,
	}

	// RabbitMQCapabilities for RabbitMQ/AMQP with durable queues.
	RabbitMQCapabilities = Capabilities{
		Name:                       "rabbitmq",
		SupportsAck:                true,
		SupportsNack:               true,
		SupportsCompetingConsumers: true,
		SupportsOrdering:           true,
	}

	// NATSCapabilities for NATS with queue groups.
	NATSCapabilities = Capabilities{
		Name:                       "nats",
		SupportsAck:                true,
		SupportsNack:               true,
		SupportsCompetingConsumers: true,
		MaxMessageSize:             1048576,
	}

	// AWSCapabilities for SNS fan-out into SQS queues.
	AWSCapabilities = Capabilities{
		Name:                       "aws",
		SupportsAck:                true,
		SupportsNack:               true,
		SupportsCompetingConsumers: true,
		MaxMessageSize:             262144,
	}

	// HTTPCapabilities for the webhook transport. A nack only fails the
	// originating HTTP call.
	HTTPCapabilities = Capabilities{
		Name:        "http",
		SupportsAck: true,
	}

	// IOCapabilities for JSON lines read from a file or stdin. Lines are
	// delivered one at a time in file order; a nack skips the line.
	IOCapabilities = Capabilities{
		Name:             "io",
		SupportsAck:      true,
		SupportsOrdering: true,
	}
)
