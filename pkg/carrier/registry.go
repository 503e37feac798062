package carrier

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Discoverer is the late-loading path the registry falls back to when a
// lookup misses. It returns a prototype to register, or an error.
type Discoverer interface {
	ByName(name string) (Carrier, error)
	ByHeader(spec Specifier) (Carrier, error)
}

// Registry holds carrier prototypes in registration order. All access goes
// through one mutex. Build it once at process start, pass it to every
// connection, and Reset it at shutdown.
type Registry struct {
	mu     sync.Mutex
	protos []Carrier
	byName map[string]Carrier
	disc   Discoverer
	log    *zap.Logger
}

type Option func(*Registry)

func WithDiscoverer(d Discoverer) Option { return func(r *Registry) { r.disc = d } }
func WithLogger(l *zap.Logger) Option    { return func(r *Registry) { r.log = l } }

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{byName: make(map[string]Carrier), log: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds proto unless a carrier with the same name exists; the first
// registration wins. It reports whether proto was added.
func (r *Registry) Register(proto Carrier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(proto)
}

func (r *Registry) registerLocked(proto Carrier) bool {
	name := proto.Capabilities().Name
	if _, ok := r.byName[name]; ok {
		r.log.Debug("carrier already registered", zap.String("carrier", name))
		return false
	}
	r.byName[name] = proto
	r.protos = append(r.protos, proto)
	r.log.Debug("carrier registered", zap.String("carrier", name), zap.Stringer("specifier", proto.Specifier()))
	return true
}

// ChooseByName returns the prototype registered under name. On a miss it
// asks the discoverer once and retries.
func (r *Registry) ChooseByName(name string) (Carrier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byName[name]; ok {
		return c, nil
	}
	if r.disc != nil {
		if c, err := r.disc.ByName(name); err == nil && c != nil {
			r.registerLocked(c)
		} else if err != nil {
			r.log.Debug("carrier discovery failed", zap.String("carrier", name), zap.Error(err))
		}
		if c, ok := r.byName[name]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: no carrier named %q", ErrHeaderMismatch, name)
}

// ChooseByHeader returns the first prototype, in registration order, that
// accepts spec. On a miss it asks the discoverer once and rescans.
func (r *Registry) ChooseByHeader(spec Specifier) (Carrier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.scanLocked(spec); c != nil {
		return c, nil
	}
	if r.disc != nil {
		if c, err := r.disc.ByHeader(spec); err == nil && c != nil {
			r.registerLocked(c)
		} else if err != nil {
			r.log.Debug("carrier discovery failed", zap.Stringer("specifier", spec), zap.Error(err))
		}
		if c := r.scanLocked(spec); c != nil {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: no carrier for header %q", ErrHeaderMismatch, spec.String())
}

func (r *Registry) scanLocked(spec Specifier) Carrier {
	for _, c := range r.protos {
		if c.CheckHeader(spec) {
			return c
		}
	}
	return nil
}

// Names lists registered carriers in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.protos))
	for i, c := range r.protos {
		out[i] = c.Capabilities().Name
	}
	return out
}

// Reset drops every registration.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.protos = nil
	r.byName = make(map[string]Carrier)
}
