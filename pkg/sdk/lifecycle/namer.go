package lifecycle

import (
	"fmt"
	"reflect"
)

// Namer derives a component's display name from the component value.
type Namer interface {
	Name(component any) string
}

// NamerFunc adapts a function to Namer.
type NamerFunc func(component any) string

// Name calls f.
func (f NamerFunc) Name(component any) string {
	return f(component)
}

// ComponentNamer is implemented by components that name themselves.
type ComponentNamer interface {
	ComponentName() string
}

// DefaultNamer prefers ComponentName, then String, then the dynamic type.
type DefaultNamer struct{}

// Name implements Namer.
func (DefaultNamer) Name(component any) string {
	switch c := component.(type) {
	case nil:
		return "anonymous"
	case ComponentNamer:
		if n := c.ComponentName(); n != "" {
			return n
		}
	case fmt.Stringer:
		if n := c.String(); n != "" {
			return n
		}
	case string:
		if c != "" {
			return c
		}
	}
	return typeName(component)
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}
