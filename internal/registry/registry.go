// Package registry implements the scheme registry of spec §4.1/§6: a
// map from URL scheme to connector_info (type tag, factory) and a set
// of query-parameter option mappers whose contributions are OR'd into
// the options bitset before the factory sanitizes and constructs.
package registry

import (
	"net/url"
	"strings"
	"sync"

	"github.com/packetio/packetio/connector"
	"github.com/packetio/packetio/internal/perror"
)

// Factory builds a Connector from a parsed URL and the options derived
// from its query string. Each Factory is expected to call
// connector.Sanitize internally against its own kind's default/possible
// option sets (spec invariant 5); the registry does not duplicate that
// policy.
type Factory func(u *url.URL, opts connector.Options) (connector.Connector, error)

// Info is the registry's per-scheme record.
type Info struct {
	Type    connector.Type
	Scheme  string
	Factory Factory
}

// OptionMapper translates one query-string key's values into a partial
// Options contribution. Returning the zero Options with ok=false means
// "this key does not apply"; unknown keys are ignored entirely (spec
// §6: "Unknown keys are ignored").
type OptionMapper func(key string, values []string) (opts connector.Options, ok bool, err error)

// Registry owns the scheme→Info map and the option-mapper list. It is
// owned by one API instance, not process-wide (spec §9: "Global mutable
// scheme and option-mapper maps → owned by the api instance").
type Registry struct {
	mu       sync.RWMutex
	byScheme map[string]Info
	mappers  []OptionMapper
}

// New returns a Registry pre-populated with the built-in schemes
// (tcp/tcp4/tcp6/udp/udp4/udp6/local/anon/fd/filedesc, plus the
// platform-specific fifo or pipe, and tun/tap where supported) and the
// built-in behaviour/blocking option mappers.
func New() *Registry {
	r := &Registry{byScheme: make(map[string]Info)}

	r.RegisterMapper(behaviourMapper)
	r.RegisterMapper(blockingMapper)

	r.Register(Info{Type: connector.TCP, Scheme: "tcp", Factory: connector.NewTCP})
	r.Register(Info{Type: connector.TCP4, Scheme: "tcp4", Factory: connector.NewTCP})
	r.Register(Info{Type: connector.TCP6, Scheme: "tcp6", Factory: connector.NewTCP})
	r.Register(Info{Type: connector.UDP, Scheme: "udp", Factory: connector.NewUDP})
	r.Register(Info{Type: connector.UDP4, Scheme: "udp4", Factory: connector.NewUDP})
	r.Register(Info{Type: connector.UDP6, Scheme: "udp6", Factory: connector.NewUDP})
	r.Register(Info{Type: connector.FileDesc, Scheme: "fd", Factory: connector.NewFileDesc})
	r.Register(Info{Type: connector.FileDesc, Scheme: "filedesc", Factory: connector.NewFileDesc})

	registerPlatformSchemes(r)

	return r
}

// Register adds or replaces a scheme's Info.
func (r *Registry) Register(info Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byScheme[info.Scheme] = info
}

// RegisterMapper appends an OptionMapper consulted for every query key.
func (r *Registry) RegisterMapper(m OptionMapper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappers = append(r.mappers, m)
}

// Lookup returns the Info registered for scheme.
func (r *Registry) Lookup(scheme string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byScheme[strings.ToLower(scheme)]

	return info, ok
}

// Build parses rawURL, resolves its scheme to a Factory, translates the
// query string into an Options contribution by OR-ing every mapper's
// result, and invokes the factory. Mutually exclusive values for the
// same field supplied by different query keys are rejected with
// perror.InvalidOption (spec §4.1).
func (r *Registry) Build(rawURL string) (connector.Connector, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return connector.Zero, perror.Wrap(perror.Format, err, "invalid URL")
	}

	info, ok := r.Lookup(u.Scheme)
	if !ok {
		return connector.Zero, perror.New(perror.InvalidValue, "unrecognized connector scheme", map[string]any{"scheme": u.Scheme})
	}

	opts, err := r.mergeQueryOptions(u)
	if err != nil {
		return connector.Zero, err
	}

	return info.Factory(u, opts)
}

func (r *Registry) mergeQueryOptions(u *url.URL) (connector.Options, error) {
	r.mu.RLock()
	mappers := append([]OptionMapper(nil), r.mappers...)
	r.mu.RUnlock()

	var out connector.Options

	for key, values := range u.Query() {
		for _, m := range mappers {
			contrib, ok, err := m(key, values)
			if err != nil {
				return connector.Options{}, err
			}

			if !ok {
				continue
			}

			if contrib.Behavior != connector.BehaviorDefault {
				if out.Behavior != connector.BehaviorDefault && out.Behavior != contrib.Behavior {
					return connector.Options{}, perror.New(perror.InvalidOption, "conflicting behaviour option values", nil)
				}

				out.Behavior = contrib.Behavior
			}

			if contrib.Blocking != connector.BlockingDefault {
				if out.Blocking != connector.BlockingDefault && out.Blocking != contrib.Blocking {
					return connector.Options{}, perror.New(perror.InvalidOption, "conflicting blocking option values", nil)
				}

				out.Blocking = contrib.Blocking
			}
		}
	}

	return out, nil
}

func behaviourMapper(key string, values []string) (connector.Options, bool, error) {
	if key != "behaviour" && key != "behavior" {
		return connector.Options{}, false, nil
	}

	if len(values) == 0 {
		return connector.Options{}, false, nil
	}

	switch strings.ToLower(values[0]) {
	case "stream":
		return connector.Options{Behavior: connector.Stream}, true, nil
	case "datagram", "dgram":
		return connector.Options{Behavior: connector.Datagram}, true, nil
	default:
		return connector.Options{}, false, perror.New(perror.InvalidOption, "unrecognized behaviour value", map[string]any{"value": values[0]})
	}
}

func blockingMapper(key string, values []string) (connector.Options, bool, error) {
	if key != "blocking" {
		return connector.Options{}, false, nil
	}

	if len(values) == 0 {
		return connector.Options{}, false, nil
	}

	switch strings.ToLower(values[0]) {
	case "1", "true", "yes":
		return connector.Options{Blocking: connector.BlockModeBlocking}, true, nil
	case "0", "false", "no":
		return connector.Options{Blocking: connector.BlockModeNonBlocking}, true, nil
	default:
		return connector.Options{}, false, perror.New(perror.InvalidOption, "unrecognized blocking value", map[string]any{"value": values[0]})
	}
}
