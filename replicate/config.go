package replicate

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/net/idna"
)

// Direction selects push (local -> remote) or pull (remote -> local).
type Direction int

const (
	Push Direction = iota
	Pull
)

func (d Direction) String() string {
	if d == Push {
		return "push"
	}
	return "pull"
}

var forbiddenHeaderNames = map[string]bool{
	"host":           true,
	"content-length": true,
	"connection":     true,
}

// ReplicatorConfiguration is an immutable descriptor for a single
// replication session (spec C4). Construct it with NewReplicatorConfiguration,
// which validates and defensively copies every field; the value returned
// is thereafter read-only, matching the teacher's *Settings structs
// (ContractManagerSettings et al.) that are built once via a
// DefaultXSettings() constructor and never mutated after use.
type ReplicatorConfiguration struct {
	direction       Direction
	local           string
	remote          *url.URL
	optionalHeaders map[string]string
	filterName      string
	filterParams    FilterParams
	pushFilter      UserFilter
	username        string
	password        string
	interceptors    []Interceptor
}

// NewReplicatorConfiguration validates opts and returns an immutable
// configuration, or a *Error tagged ConfigInvalid / UndefinedSource.
func NewReplicatorConfiguration(opts ReplicatorOptions) (*ReplicatorConfiguration, error) {
	if opts.Local == "" || opts.Remote == "" {
		return nil, replicatorError(ErrUndefinedSource, "both local and remote endpoints are required", nil)
	}

	remoteURL, err := url.Parse(opts.Remote)
	if err != nil {
		return nil, replicatorError(ErrConfigInvalid, "remote is not a valid URL", err)
	}
	if remoteURL.Host == "" {
		return nil, replicatorError(ErrUndefinedSource, "remote URL has no host", nil)
	}
	asciiHost, err := idna.Lookup.ToASCII(remoteURL.Hostname())
	if err != nil {
		return nil, replicatorError(ErrConfigInvalid, fmt.Sprintf("remote host %q is not valid IDNA", remoteURL.Hostname()), err)
	}
	_ = asciiHost // validated for acceptance; remoteURL keeps its original form for display/logging

	headers := map[string]string{}
	for name, value := range opts.OptionalHeaders {
		if err := validateHeader(name, value); err != nil {
			return nil, err
		}
		headers[name] = value
	}

	if opts.PushFilter != nil && opts.Direction != Push {
		return nil, replicatorError(ErrConfigInvalid, "push_filter is only valid for a push replication", nil)
	}

	interceptors := append([]Interceptor{}, opts.HttpInterceptors...)
	if opts.Username != "" || opts.Password != "" {
		interceptors = append(interceptors, NewSessionCookieInterceptor(opts.Username, opts.Password, remoteURL))
	}

	return &ReplicatorConfiguration{
		direction:       opts.Direction,
		local:           opts.Local,
		remote:          remoteURL,
		optionalHeaders: headers,
		filterName:      opts.FilterName,
		filterParams:    maps.Clone(opts.FilterParams),
		pushFilter:      opts.PushFilter,
		username:        opts.Username,
		password:        opts.Password,
		interceptors:    interceptors,
	}, nil
}

// ReplicatorOptions is the mutable, user-facing builder handed to
// NewReplicatorConfiguration. Mutating an ReplicatorOptions after
// construction has no effect on any ReplicatorConfiguration already built
// from it, since every field is copied during validation.
type ReplicatorOptions struct {
	Direction        Direction
	Local            string
	Remote           string
	OptionalHeaders  map[string]string
	FilterName       string
	FilterParams     FilterParams
	PushFilter       UserFilter
	Username         string
	Password         string
	HttpInterceptors []Interceptor
}

func validateHeader(name, value string) error {
	if name == "" {
		return replicatorError(ErrConfigInvalid, "header name must not be empty", nil)
	}
	if forbiddenHeaderNames[strings.ToLower(name)] {
		return replicatorError(ErrConfigInvalid, fmt.Sprintf("header %q may not be set explicitly", name), nil)
	}
	if containsControlChar(name) || containsControlChar(value) {
		return replicatorError(ErrConfigInvalid, fmt.Sprintf("header %q contains control characters", name), nil)
	}
	return nil
}

func containsControlChar(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return true
		}
	}
	return false
}

func (c *ReplicatorConfiguration) Direction() Direction { return c.direction }
func (c *ReplicatorConfiguration) Local() string        { return c.local }
func (c *ReplicatorConfiguration) Remote() *url.URL     { return c.remote }

// Headers returns a defensive copy so callers cannot mutate the
// configuration's internal map.
func (c *ReplicatorConfiguration) Headers() map[string]string {
	return maps.Clone(c.optionalHeaders)
}

func (c *ReplicatorConfiguration) Interceptors() []Interceptor {
	return append([]Interceptor{}, c.interceptors...)
}

func (c *ReplicatorConfiguration) FilterName() string        { return c.filterName }
func (c *ReplicatorConfiguration) FilterParams() FilterParams { return c.filterParams }
func (c *ReplicatorConfiguration) PushFilter() UserFilter     { return c.pushFilter }
func (c *ReplicatorConfiguration) HasCredentials() bool {
	return c.username != "" || c.password != ""
}
