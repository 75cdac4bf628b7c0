package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrInvalidPath = errors.New("invalid document path")
)

// MaxBatchSize caps the number of documents a single DeleteBatch call accepts.
const MaxBatchSize = 500

// TimeLayout is the fixed-width UTC layout every backend stores timestamps in,
// so that lexical and chronological ordering agree.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

type Fields map[string]any

type Document struct {
	ID        string
	Path      string
	Fields    Fields
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Decode unmarshals the document fields into target through their JSON form.
func (d Document) Decode(target any) error {
	raw, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Errorf("encode fields %s: %w", d.Path, err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode fields %s: %w", d.Path, err)
	}
	return nil
}

type Query struct {
	OrderBy    string
	Descending bool
	Limit      int
}

type Store interface {
	List(ctx context.Context, collection string, q Query) ([]Document, error)
	Get(ctx context.Context, path string) (Document, error)
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	Set(ctx context.Context, path string, fields Fields, merge bool) error
	Update(ctx context.Context, path string, fields Fields) error
	Append(ctx context.Context, path, field string, elem any) error
	Delete(ctx context.Context, path string) error
	DeleteBatch(ctx context.Context, paths []string) error
	Subscribe(collection string, q Query, onChange func([]Document), onError func(error)) Subscription
	Ping(ctx context.Context) error
	Close() error
}

// Subscription is a live listener on a collection. Cancel is idempotent and
// waits for a callback already running; no callback starts after it returns.
// Calling Cancel from inside a callback deadlocks.
type Subscription interface {
	Cancel()
}

type serverTimestamp struct{}

// ServerTimestamp is replaced by the commit time when written.
var ServerTimestamp = serverTimestamp{}

type arrayAppend struct {
	elems []any
}

// ArrayAppend appends elems to an array field as part of the same atomic write.
// A missing field starts as an empty array.
func ArrayAppend(elems ...any) any {
	return arrayAppend{elems: elems}
}

// Collection joins segments into a collection path (odd segment count).
func Collection(segments ...string) string {
	return strings.Join(segments, "/")
}

// Doc joins segments into a document path (even segment count).
func Doc(segments ...string) string {
	return strings.Join(segments, "/")
}

// SplitPath returns the collection and id of a document path.
func SplitPath(path string) (collection, id string, err error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || len(parts)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for _, part := range parts {
		if part == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1], nil
}

func validCollection(collection string) error {
	parts := strings.Split(strings.Trim(collection, "/"), "/")
	if len(parts)%2 != 1 {
		return fmt.Errorf("%w: %q", ErrInvalidPath, collection)
	}
	for _, part := range parts {
		if part == "" {
			return fmt.Errorf("%w: %q", ErrInvalidPath, collection)
		}
	}
	return nil
}

// splitTransforms separates plain values from append transforms and resolves
// server timestamps against now.
func splitTransforms(fields Fields, now time.Time) (Fields, map[string][]any) {
	plain := Fields{}
	var appends map[string][]any
	for key, value := range fields {
		if app, ok := value.(arrayAppend); ok {
			if appends == nil {
				appends = map[string][]any{}
			}
			elems := make([]any, len(app.elems))
			for i, elem := range app.elems {
				elems[i] = normalizeValue(elem, now)
			}
			appends[key] = append(appends[key], elems...)
			continue
		}
		plain[key] = normalizeValue(value, now)
	}
	return plain, appends
}

// normalizeValue converts a field value into the backend-neutral form:
// timestamps become TimeLayout strings, nested maps and slices are copied.
func normalizeValue(value any, now time.Time) any {
	switch v := value.(type) {
	case serverTimestamp:
		return now.UTC().Format(TimeLayout)
	case time.Time:
		return v.UTC().Format(TimeLayout)
	case *time.Time:
		if v == nil {
			return nil
		}
		return v.UTC().Format(TimeLayout)
	case Fields:
		return normalizeMap(v, now)
	case map[string]any:
		return normalizeMap(v, now)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeValue(item, now)
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out
	case string, bool, nil, int, int32, int64, float32, float64, json.Number:
		return v
	default:
		// Structs and other types go through JSON so all backends see plain maps.
		raw, err := json.Marshal(v)
		if err != nil {
			return v
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return v
		}
		return normalizeValue(generic, now)
	}
}

func normalizeMap(in map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = normalizeValue(value, now)
	}
	return out
}

func normalizeFields(fields Fields, now time.Time) Fields {
	return Fields(normalizeMap(fields, now))
}

// ParseTime reads a stored timestamp value. Unknown shapes yield the zero time.
func ParseTime(value any) time.Time {
	switch v := value.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	case time.Time:
		return v
	}
	return time.Time{}
}
