package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var validAppEnvs = map[string]bool{
	"development": true,
	"staging":     true,
	"production":  true,
}

// ValidationError holds multiple configuration validation errors.
type ValidationError struct {
	Errors []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: %s", strings.Join(e.Errors, "; "))
}

// Is supports errors.Is() pattern for type checking.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// Validate checks configuration for required fields and valid ranges,
// enforcing spec §4.2's binding rules: AE titles 1-16 characters, ports
// non-zero, max PDU size in [16384, 131072], at least one preferred
// transfer syntax, and that every name a pipeline references actually
// exists. Returns ValidationError with all errors collected, not just the
// first.
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				errs = append(errs, fmt.Sprintf("%s: failed %q validation", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	errs = append(errs, c.validateApp()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateEndpoints()...)
	errs = append(errs, c.validateBackends()...)
	errs = append(errs, c.validatePipelines()...)

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func (c *Config) validateApp() []string {
	var errs []string
	if c.App.Env != "" && !validAppEnvs[c.App.Env] {
		errs = append(errs, "app.env must be one of: development, staging, production")
	}
	return errs
}

func (c *Config) validateStorage() []string {
	var errs []string
	if c.Storage.Path == "" {
		errs = append(errs, "storage.path is required")
	}
	return errs
}

// validateEndpoints checks the kind-specific required fields that struct
// tags can't express (which fields are required depends on ep.Kind).
func (c *Config) validateEndpoints() []string {
	var errs []string
	for name, ep := range c.Endpoints {
		switch ep.Kind {
		case EndpointHTTP:
			if ep.PathPrefix == "" {
				errs = append(errs, fmt.Sprintf("endpoints.%s: path_prefix is required for kind=http", name))
			}
		case EndpointDimseSCP:
			if ep.LocalAET == "" {
				errs = append(errs, fmt.Sprintf("endpoints.%s: local_aet is required for kind=dimse_scp", name))
			}
			if len(ep.LocalAET) > 16 {
				errs = append(errs, fmt.Sprintf("endpoints.%s: local_aet must be 1-16 characters", name))
			}
			if ep.Port == 0 {
				errs = append(errs, fmt.Sprintf("endpoints.%s: port is required for kind=dimse_scp", name))
			}
			if ep.MaxPDUSize == 0 {
				errs = append(errs, fmt.Sprintf("endpoints.%s: max_pdu_size is required for kind=dimse_scp", name))
			} else if ep.MaxPDUSize < 16384 || ep.MaxPDUSize > 131072 {
				errs = append(errs, fmt.Sprintf("endpoints.%s: max_pdu_size must be in [16384, 131072]", name))
			}
			if len(ep.TransferSyntaxes) == 0 {
				errs = append(errs, fmt.Sprintf("endpoints.%s: at least one preferred transfer syntax is required", name))
			}
			if ep.Service != "" {
				if _, ok := c.Services[ep.Service]; !ok {
					errs = append(errs, fmt.Sprintf("endpoints.%s: references unknown service %q", name, ep.Service))
				}
			}
		default:
			errs = append(errs, fmt.Sprintf("endpoints.%s: unknown kind %q", name, ep.Kind))
		}
	}
	return errs
}

// validateBackends checks the kind-specific required fields that struct
// tags can't express (which fields are required depends on b.Kind).
func (c *Config) validateBackends() []string {
	var errs []string
	for name, b := range c.Backends {
		switch b.Kind {
		case BackendFHIR:
			if b.BaseURL == "" {
				errs = append(errs, fmt.Sprintf("backends.%s: base_url is required for kind=fhir", name))
			}
		case BackendDimse:
			if b.CalledAET == "" {
				errs = append(errs, fmt.Sprintf("backends.%s: called_aet is required for kind=dimse", name))
			}
			if b.CallingAET == "" {
				errs = append(errs, fmt.Sprintf("backends.%s: calling_aet is required for kind=dimse", name))
			}
			if len(b.CalledAET) > 16 || len(b.CallingAET) > 16 {
				errs = append(errs, fmt.Sprintf("backends.%s: called_aet and calling_aet must be 1-16 characters", name))
			}
			if b.Port == 0 {
				errs = append(errs, fmt.Sprintf("backends.%s: port is required for kind=dimse", name))
			}
		case BackendJMIX, BackendEcho:
			// no backend-specific required fields beyond kind.
		default:
			errs = append(errs, fmt.Sprintf("backends.%s: unknown kind %q", name, b.Kind))
		}
	}
	return errs
}

func (c *Config) validatePipelines() []string {
	var errs []string
	for name, p := range c.Pipelines {
		for _, n := range p.Networks {
			if _, ok := c.Network[n]; !ok {
				errs = append(errs, fmt.Sprintf("pipelines.%s: references unknown network %q", name, n))
			}
		}
		if len(p.Endpoints) == 0 {
			errs = append(errs, fmt.Sprintf("pipelines.%s: at least one endpoint is required", name))
		}
		for _, n := range p.Endpoints {
			if _, ok := c.Endpoints[n]; !ok {
				errs = append(errs, fmt.Sprintf("pipelines.%s: references unknown endpoint %q", name, n))
			}
		}
		if len(p.Backends) == 0 {
			errs = append(errs, fmt.Sprintf("pipelines.%s: at least one backend is required", name))
		}
		for _, n := range p.Backends {
			if _, ok := c.Backends[n]; !ok {
				errs = append(errs, fmt.Sprintf("pipelines.%s: references unknown backend %q", name, n))
			}
		}
		for _, n := range p.Middleware {
			if _, ok := c.Middleware[n]; !ok {
				errs = append(errs, fmt.Sprintf("pipelines.%s: references unknown middleware %q", name, n))
			}
		}
	}
	return errs
}
