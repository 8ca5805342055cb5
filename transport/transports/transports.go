// Package transports imports every built-in transport so that each registers
// itself with the default registry.
package transports

import (
	_ "github.com/drblury/docflow/transport/aws"
	_ "github.com/drblury/docflow/transport/channel"
	_ "github.com/drblury/docflow/transport/http"
	_ "github.com/drblury/docflow/transport/io"
	_ "github.com/drblury/docflow/transport/kafka"
	_ "github.com/drblury/docflow/transport/nats"
	_ "github.com/drblury/docflow/transport/rabbitmq"
)
