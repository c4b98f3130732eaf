// Package config loads and validates the gateway's TOML configuration:
// app/log/proxy/storage settings plus the named network, endpoint, backend,
// middleware, middleware_type, pipeline, and service tables that the router
// resolves into running listeners.
package config

import "time"

// Config holds the full gateway configuration tree.
type Config struct {
	App             AppConfig                  `koanf:"app"`
	Log             LogConfig                  `koanf:"log"`
	Proxy           ProxyConfig                `koanf:"proxy"`
	Storage         StorageConfig              `koanf:"storage"`
	Network         map[string]NetworkConfig   `koanf:"network"`
	Endpoints       map[string]EndpointConfig  `koanf:"endpoints"`
	Backends        map[string]BackendConfig   `koanf:"backends"`
	Middleware      map[string]MiddlewareConfig `koanf:"middleware"`
	MiddlewareTypes map[string]MiddlewareTypeConfig `koanf:"middleware_types"`
	Pipelines       map[string]PipelineConfig  `koanf:"pipelines"`
	Services        map[string]ServiceConfig   `koanf:"services"`
	Management      ManagementConfig           `koanf:"management"`
}

// AppConfig holds process-wide application settings.
type AppConfig struct {
	Name string `koanf:"name"`
	Env  string `koanf:"env"` // development, staging, production
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

// ProxyConfig holds gateway-wide defaults applied when a more specific
// setting (endpoint, backend) does not override them.
type ProxyConfig struct {
	// MaxConcurrentAssociations bounds concurrent DIMSE associations per
	// listener; overflow connections are sent an A-ABORT (reason not
	// specified) and closed.
	MaxConcurrentAssociations int `koanf:"max_concurrent_associations"`
	// AssociationIdleTimeout is used by cmd/gatewayd as the shutdown drain
	// period. No idle deadline is applied to individual associations.
	AssociationIdleTimeout time.Duration `koanf:"association_idle_timeout"`
	// ConnectTimeout bounds outbound association establishment.
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// StorageConfig holds the filesystem storage backend's root path.
type StorageConfig struct {
	Path string `koanf:"path"`
}

// NetworkConfig names a bindable network interface that pipelines scope
// themselves to.
type NetworkConfig struct {
	BindAddr    string `koanf:"bind_addr"`
	Description string `koanf:"description"`
}

// EndpointKind is the set of endpoint kinds a router can bind.
type EndpointKind string

const (
	EndpointHTTP     EndpointKind = "http"
	EndpointDimseSCP EndpointKind = "dimse_scp"
)

// EndpointConfig describes one ingress surface: either an HTTP mount point
// or a long-lived DIMSE Storage SCP listener (DimseScpSpec in spec terms).
type EndpointConfig struct {
	Kind EndpointKind `koanf:"kind"`

	// HTTP endpoint fields.
	PathPrefix string `koanf:"path_prefix"`

	// DIMSE SCP endpoint fields.
	BindAddr   string `koanf:"bind_addr"`
	Port       int    `koanf:"port" validate:"omitempty,min=1,max=65535"`
	LocalAET   string `koanf:"local_aet" validate:"omitempty,min=1,max=16"`
	StorageDir string `koanf:"storage_dir"`
	Service    string `koanf:"service"`

	MaxPDUSize       int      `koanf:"max_pdu_size" validate:"omitempty,min=16384,max=131072"`
	TransferSyntaxes []string `koanf:"transfer_syntaxes"`
}

// ServiceConfig toggles which DIMSE services a DIMSE SCP endpoint offers.
type ServiceConfig struct {
	EnableEcho  bool `koanf:"enable_echo"`
	EnableFind  bool `koanf:"enable_find"`
	EnableGet   bool `koanf:"enable_get"`
	EnableMove  bool `koanf:"enable_move"`
	EnableStore bool `koanf:"enable_store"`
}

// BackendKind is the set of backend driver kinds.
type BackendKind string

const (
	BackendDimse BackendKind = "dimse"
	BackendFHIR  BackendKind = "fhir"
	BackendJMIX  BackendKind = "jmix"
	BackendEcho  BackendKind = "echo"
)

// BackendConfig describes one egress backend driver.
type BackendConfig struct {
	Kind BackendKind `koanf:"kind"`

	// DIMSE SCU backend fields.
	CalledAET  string `koanf:"called_aet" validate:"omitempty,min=1,max=16"`
	CallingAET string `koanf:"calling_aet" validate:"omitempty,min=1,max=16"`
	Host       string `koanf:"host"`
	Port       int    `koanf:"port" validate:"omitempty,min=1,max=65535"`

	// FHIR backend fields.
	BaseURL string `koanf:"base_url"`

	ConnectTimeout time.Duration    `koanf:"connect_timeout"`
	Resilience     ResilienceConfig `koanf:"resilience"`
}

// MiddlewareConfig is one configured instance of a middleware_type,
// referenced by name from a pipeline.
type MiddlewareConfig struct {
	Type    string         `koanf:"type"`
	Options map[string]any `koanf:"options"`
}

// MiddlewareTypeConfig declares a reusable middleware kind and its default
// failure policy.
type MiddlewareTypeConfig struct {
	Kind        string `koanf:"kind"`
	FailOnError bool   `koanf:"fail_on_error"`
}

// PipelineConfig binds endpoints, middleware, and backends to one or more
// networks (PipelineBinding in spec terms).
type PipelineConfig struct {
	Networks   []string `koanf:"networks"`
	Endpoints  []string `koanf:"endpoints"`
	Middleware []string `koanf:"middleware"`
	Backends   []string `koanf:"backends"`
}

// ManagementConfig controls the management/info HTTP surface. Its contents
// are an external collaborator; the gateway only needs to know where to
// bind it.
type ManagementConfig struct {
	Enabled  bool   `koanf:"enabled"`
	BindAddr string `koanf:"bind_addr"`
	Port     int    `koanf:"port"`
}
