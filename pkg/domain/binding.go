package domain

// Binding holds a value that moves from unset to set exactly once.
type Binding[T comparable] struct {
	value T
	set   bool
}

// BoundTo returns a binding already set to value. Stores use it to restore
// persisted bindings.
func BoundTo[T comparable](value T) Binding[T] {
	return Binding[T]{value: value, set: true}
}

// Set binds value. A second call fails with ErrAlreadyBound.
func (b *Binding[T]) Set(value T) error {
	if b.set {
		return ErrAlreadyBound
	}
	b.value = value
	b.set = true
	return nil
}

// Get returns the bound value and whether it is set.
func (b Binding[T]) Get() (T, bool) {
	return b.value, b.set
}

// Is reports whether the binding is set to value.
func (b Binding[T]) Is(value T) bool {
	return b.set && b.value == value
}
