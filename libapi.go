package docflow

import (
	runtimepkg "github.com/drblury/docflow/internal/runtime"
	configpkg "github.com/drblury/docflow/internal/runtime/config"
	"github.com/drblury/docflow/internal/runtime/envelope"
	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/export"
	"github.com/drblury/docflow/internal/runtime/generators"
	idspkg "github.com/drblury/docflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/docflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/docflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/docflow/internal/runtime/metadata"
	"github.com/drblury/docflow/internal/runtime/rendering"
	transportpkg "github.com/drblury/docflow/internal/runtime/transport"
	brokers "github.com/drblury/docflow/transport"
)

type (
	Config               = configpkg.Config
	Service              = runtimepkg.Service
	ServiceDependencies  = runtimepkg.ServiceDependencies
	Status               = runtimepkg.Status
	StatsSnapshot        = runtimepkg.StatsSnapshot
	Transport            = transportpkg.Transport
	TransportFactory     = transportpkg.Factory
	TransportFactoryFunc = transportpkg.FactoryFunc

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	RequestContext = runtimepkg.RequestContext
	RequestHooks   = runtimepkg.RequestHooks

	ErrorClassifier = runtimepkg.ErrorClassifier
	ErrorCategory   = runtimepkg.ErrorCategory

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Request and response envelopes.
	Request         = envelope.Request
	RequestMetadata = envelope.Metadata
	Response        = envelope.Response
	ResponseStatus  = envelope.Status
	Document        = envelope.Document
	Format          = envelope.Format

	// Specification variants.
	Variant       = generators.Variant
	Rule          = generators.Rule
	DocumentModel = generators.DocumentModel

	// Pipeline extension points.
	Engine     = rendering.Engine
	Converter  = export.Converter
	Conversion = export.Conversion

	// Typed failures.
	ValidationError = errspkg.ValidationError
	RenderError     = errspkg.RenderError
	ExportError     = errspkg.ExportError
	ResourceError   = errspkg.ResourceError
	PublishError    = errspkg.PublishError
	TransportError  = errspkg.TransportError

	Capabilities      = brokers.Capabilities
	TransportBuilder  = brokers.Builder
	TransportConfig   = brokers.Config
	TransportRegistry = brokers.Registry
)

var (
	NewService     = runtimepkg.NewService
	LoadConfig     = configpkg.Load
	DefaultConfig  = configpkg.Default
	ValidateConfig = configpkg.ValidateConfig

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	RequestHooksMiddleware = runtimepkg.RequestHooksMiddleware
	LoggingHooks           = runtimepkg.LoggingHooks
	MetricsHooks           = runtimepkg.MetricsHooks

	NewResponseMessage = runtimepkg.NewResponseMessage
	ParseFormat        = envelope.ParseFormat
	BuiltinVariants    = generators.BuiltinVariants
	NewPongo2Engine    = rendering.NewPongo2Engine
	NewPandocConverter = export.NewPandocConverter

	// Data rules for custom variants.
	StringRule = generators.String
	NumberRule = generators.Number
	BoolRule   = generators.Bool
	ObjectRule = generators.Object
	ArrayRule  = generators.Array

	DefaultTransportRegistry = brokers.DefaultRegistry
	RegisterTransport        = brokers.Register
	GetCapabilities          = brokers.GetCapabilities

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrPublisherRequired    = errspkg.ErrPublisherRequired
	ErrSubscriberRequired   = errspkg.ErrSubscriberRequired
	ErrTopicRequired        = errspkg.ErrTopicRequired
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired
	ErrUnknownSpecification = errspkg.ErrUnknownSpecification
	ErrNoOutputFormats      = errspkg.ErrNoOutputFormats
	ErrUnsupportedFormat    = errspkg.ErrUnsupportedFormat
	IsPermanent             = errspkg.IsPermanent

	NewJSONServiceLogger = loggingpkg.NewJSONServiceLogger
	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NopLogger            = loggingpkg.NopLogger

	NewMetadata  = metadatapkg.New
	NewMessageID = idspkg.NewMessageID
)

// Output formats a request may ask for.
const (
	FormatMarkdown = envelope.FormatMarkdown
	FormatHTML     = envelope.FormatHTML
	FormatPDF      = envelope.FormatPDF
)

// Response statuses.
const (
	StatusSuccess = envelope.StatusSuccess
	StatusError   = envelope.StatusError
)

// Metadata keys - use these constants for standard metadata fields.
const (
	MetadataKeyCorrelationID     = metadatapkg.KeyCorrelationID
	MetadataKeyEventSchema       = metadatapkg.KeyEventSchema
	MetadataKeyRequestID         = metadatapkg.KeyRequestID
	MetadataKeyStatus            = metadatapkg.KeyStatus
	MetadataKeySpecificationType = metadatapkg.KeySpecificationType
)

// ResponseSchema is the event_message_schema value of every response.
const ResponseSchema = runtimepkg.ResponseSchema

// Built-in specification types.
const (
	ISO29148SoftwareRequirements    = generators.ISO29148SoftwareRequirements
	ISO29148StakeholderRequirements = generators.ISO29148StakeholderRequirements
	ISO29148SystemRequirements      = generators.ISO29148SystemRequirements
	ISO29148ConceptOfOperations     = generators.ISO29148ConceptOfOperations
	IEEE830SRS                      = generators.IEEE830SRS
	IEEE830DRD                      = generators.IEEE830DRD
	MilStd498SRS                    = generators.MilStd498SRS
	SecurityScanReport              = generators.SecurityScanReport
	ComplianceAuditReport           = generators.ComplianceAuditReport
	TestExecutionReport             = generators.TestExecutionReport
)
