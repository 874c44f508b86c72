// Package vedbus models a Venus OS D-Bus service in process: a registry
// of hierarchical paths, each carrying a value, a text formatter and a
// writability policy. The bus wire protocol itself lives in an external
// collaborator; this package only maintains the service model it exports.
package vedbus

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrNotFound    = errors.New("vedbus: path not found")
	ErrPathExists  = errors.New("vedbus: path already registered")
	ErrNotWritable = errors.New("vedbus: path not writable")
)

// TextFormatter renders a path value as a unit-suffixed display string.
// It receives nil for invalid values.
type TextFormatter func(path string, value any) string

// ChangeCallback is invoked when an external bus client writes a
// writable path. Returning false rejects the write.
type ChangeCallback func(path string, value any) bool

// ValueChangedFunc is the service-level notification hook, invoked for
// every value written by the owning service (the bus layer would emit
// PropertiesChanged from here).
type ValueChangedFunc func(path string, value any)

type entry struct {
	value    any
	text     TextFormatter
	writable bool
	onChange ChangeCallback
}

// Service is a named set of exported paths. Values are written by a
// single owner; concurrent readers get consistent snapshots.
type Service struct {
	name string

	mu           sync.RWMutex
	entries      map[string]*entry
	valueChanged ValueChangedFunc
}

type ServiceOption func(*Service)

// OnValueChanged registers the service-level notification hook.
func OnValueChanged(fn ValueChangedFunc) ServiceOption {
	return func(s *Service) {
		s.valueChanged = fn
	}
}

func NewService(name string, opts ...ServiceOption) *Service {
	s := &Service{
		name:    name,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Name() string {
	return s.name
}

type PathOption func(*entry)

// WithText sets the display formatter for a path.
func WithText(f TextFormatter) PathOption {
	return func(e *entry) {
		e.text = f
	}
}

// Writable marks a path writable from the bus. onChange may be nil, in
// which case external writes are accepted unconditionally.
func Writable(onChange ChangeCallback) PathOption {
	return func(e *entry) {
		e.writable = true
		e.onChange = onChange
	}
}

// AddPath registers a path with its initial value. initial may be nil
// for paths that start invalid.
func (s *Service) AddPath(path string, initial any, opts ...PathOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[path]; ok {
		return fmt.Errorf("%w: %s", ErrPathExists, path)
	}
	e := &entry{value: initial}
	for _, opt := range opts {
		opt(e)
	}
	s.entries[path] = e
	return nil
}

// Set writes a path value on behalf of the owning service. It always
// overwrites, including values previously set from the bus, and fires
// the value-changed hook.
func (s *Service) Set(path string, value any) error {
	s.mu.Lock()
	e, ok := s.entries[path]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	e.value = value
	hook := s.valueChanged
	s.mu.Unlock()

	if hook != nil {
		hook(path, value)
	}
	return nil
}

// SetExternal applies a write initiated by a bus client. The per-path
// change callback decides acceptance; accepted values are stored but
// the owner remains authoritative and may overwrite at any time.
func (s *Service) SetExternal(path string, value any) error {
	s.mu.Lock()
	e, ok := s.entries[path]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if !e.writable {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotWritable, path)
	}
	onChange := e.onChange
	s.mu.Unlock()

	if onChange != nil && !onChange(path, value) {
		return nil
	}

	s.mu.Lock()
	e.value = value
	s.mu.Unlock()
	return nil
}

func (s *Service) Get(path string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return e.value, nil
}

// GetInt reads a path holding an integer value, returning 0 when the
// path is invalid or holds another type.
func (s *Service) GetInt(path string) (int, error) {
	v, err := s.Get(path)
	if err != nil {
		return 0, err
	}
	i, ok := v.(int)
	if !ok {
		return 0, nil
	}
	return i, nil
}

// Text renders the formatted display string for a path. Paths without a
// formatter render with %v; invalid values render empty.
func (s *Service) Text(path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[path]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if e.text != nil {
		return e.text(path, e.value), nil
	}
	if e.value == nil {
		return "", nil
	}
	return fmt.Sprintf("%v", e.value), nil
}

// Paths returns the registered paths in lexical order.
func (s *Service) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.entries))
	for p := range s.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Snapshot copies the current value of every path.
func (s *Service) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(map[string]any, len(s.entries))
	for p, e := range s.entries {
		snap[p] = e.value
	}
	return snap
}
