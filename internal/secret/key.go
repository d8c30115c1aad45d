package secret

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const redacted = "[REDACTED]"

// ErrUnavailable is returned when a key is read after being scrubbed or was never provided.
var ErrUnavailable = errors.New("secret: key unavailable")

// Key is an opaque handle around credential material. Every formatting and
// serialisation path renders a redacted placeholder; the raw bytes are only
// reachable through Use.
type Key struct {
	mu    sync.RWMutex
	name  string
	value []byte
}

// New copies value into a fresh handle. name is the configuration key the
// material came from and is safe to log.
func New(name, value string) *Key {
	v := strings.TrimSpace(value)
	k := &Key{name: name}
	if v != "" {
		k.value = []byte(v)
	}
	return k
}

// Name reports the configuration key this secret was loaded from.
func (k *Key) Name() string {
	if k == nil {
		return ""
	}
	return k.name
}

// Available reports whether the handle still holds usable material.
func (k *Key) Available() bool {
	if k == nil {
		return false
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.value) > 0
}

// Use lends the raw bytes to fn. fn must not retain the slice.
func (k *Key) Use(fn func([]byte) error) error {
	if k == nil {
		return ErrUnavailable
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if len(k.value) == 0 {
		return ErrUnavailable
	}
	return fn(k.value)
}

// Scrub zeroes the in-memory copy. The handle is unusable afterwards.
func (k *Key) Scrub() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for i := range k.value {
		k.value[i] = 0
	}
	k.value = nil
}

func (k *Key) String() string { return redacted }

func (k *Key) GoString() string { return "secret.Key{" + redacted + "}" }

// Format keeps %v, %+v, %#v, %s and %q from ever reaching the struct fields.
func (k *Key) Format(f fmt.State, verb rune) {
	switch verb {
	case 'q':
		_, _ = fmt.Fprintf(f, "%q", redacted)
	case 'v':
		if f.Flag('#') {
			_, _ = f.Write([]byte(k.GoString()))
			return
		}
		_, _ = f.Write([]byte(redacted))
	default:
		_, _ = f.Write([]byte(redacted))
	}
}

// MarshalJSON emits an empty string.
func (k *Key) MarshalJSON() ([]byte, error) { return []byte(`""`), nil }

// MarshalText emits nothing.
func (k *Key) MarshalText() ([]byte, error) { return []byte{}, nil }

// MarshalZerologObject logs only the source name.
func (k *Key) MarshalZerologObject(e *zerolog.Event) {
	e.Str("name", k.Name()).Bool("set", k.Available())
}
