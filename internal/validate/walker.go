package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// walker accumulates violations while descending a decoded JSON value.
type walker struct {
	out Violations
}

func (w *walker) fail(path, format string, args ...any) {
	w.out = append(w.out, Violation{Path: path, Message: fmt.Sprintf(format, args...)})
}

func child(path, key string) string {
	return path + "." + key
}

func index(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

func (w *walker) object(v any, path string) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		w.fail(path, "must be an object")
	}
	return m, ok
}

func (w *walker) obj(m map[string]any, key, path string) (map[string]any, bool) {
	return w.object(m[key], child(path, key))
}

func (w *walker) str(m map[string]any, key, path string) (string, bool) {
	s, ok := m[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		w.fail(child(path, key), "must be a non-empty string")
		return "", false
	}
	return s, true
}

func (w *walker) num(m map[string]any, key, path string) (float64, bool) {
	f, ok := finite(m[key])
	if !ok {
		w.fail(child(path, key), "must be a finite number")
	}
	return f, ok
}

func (w *walker) boolean(m map[string]any, key, path string) (bool, bool) {
	b, ok := m[key].(bool)
	if !ok {
		w.fail(child(path, key), "must be a boolean")
	}
	return b, ok
}

func (w *walker) list(m map[string]any, key, path string) ([]any, bool) {
	l, ok := m[key].([]any)
	if !ok {
		w.fail(child(path, key), "must be an array")
	}
	return l, ok
}

func (w *walker) stringList(m map[string]any, key, path string) []string {
	l, ok := w.list(m, key, path)
	if !ok {
		return nil
	}
	p := child(path, key)
	out := make([]string, 0, len(l))
	for i, item := range l {
		s, ok := item.(string)
		if !ok {
			w.fail(index(p, i), "must be a string")
			continue
		}
		out = append(out, s)
	}
	return out
}

func (w *walker) deltas(m map[string]any, key, path string) {
	d, ok := w.obj(m, key, path)
	if !ok {
		return
	}
	p := child(path, key)
	w.num(d, "gold", p)
	w.num(d, "happiness", p)
	w.num(d, "soul", p)
}

// finite accepts the numeric forms a decoded document can hold and rejects
// NaN, infinities and everything that is not a number.
func finite(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		x, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = x
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
