package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// notifyChannel matches the channel raised by the documents_notify trigger.
const notifyChannel = "document_changes"

type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PostgresStore) List(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	collection = strings.Trim(collection, "/")

	query := `SELECT path, doc_id, fields::text, created_at, updated_at FROM documents WHERE collection = $1`
	args := []any{collection}
	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		args = append(args, q.OrderBy)
		query += fmt.Sprintf(` ORDER BY fields->$2::text %s NULLS LAST, doc_id`, dir)
	} else {
		query += ` ORDER BY created_at, doc_id`
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return docs, nil
}

func (s *PostgresStore) Get(ctx context.Context, path string) (Document, error) {
	collection, id, err := SplitPath(path)
	if err != nil {
		return Document{}, err
	}
	row := s.pool.QueryRow(ctx, `
		SELECT path, doc_id, fields::text, created_at, updated_at
		FROM documents
		WHERE path = $1
	`, Doc(collection, id))
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, fmt.Errorf("get %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get %s: %w", path, err)
	}
	return doc, nil
}

func (s *PostgresStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	if err := validCollection(collection); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := s.Set(ctx, Doc(strings.Trim(collection, "/"), id), fields, false); err != nil {
		return "", err
	}
	return id, nil
}

func (s *PostgresStore) Set(ctx context.Context, path string, fields Fields, merge bool) error {
	collection, id, err := SplitPath(path)
	if err != nil {
		return err
	}
	path = Doc(collection, id)
	plain, appends := splitTransforms(fields, s.now())

	initial := Fields{}
	for key, value := range plain {
		initial[key] = value
	}
	for key, elems := range appends {
		initial[key] = elems
	}
	initialJSON, err := json.Marshal(initial)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	args := []any{path, collection, id, string(initialJSON)}
	onConflict := `EXCLUDED.fields`
	if merge {
		onConflict, args, err = updateExpression(`documents.fields`, plain, appends, args)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (path, collection, doc_id, fields)
		VALUES ($1, $2, $3, $4::text::jsonb)
		ON CONFLICT (path) DO UPDATE SET fields = `+onConflict+`, updated_at = NOW()
	`, args...)
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, path string, fields Fields) error {
	collection, id, err := SplitPath(path)
	if err != nil {
		return err
	}
	path = Doc(collection, id)
	plain, appends := splitTransforms(fields, s.now())

	expr, args, err := updateExpression(`fields`, plain, appends, []any{path})
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE documents SET fields = `+expr+`, updated_at = NOW() WHERE path = $1`, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s: %w", path, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, path, field string, elem any) error {
	return s.Update(ctx, path, Fields{field: ArrayAppend(elem)})
}

func (s *PostgresStore) Delete(ctx context.Context, path string) error {
	collection, id, err := SplitPath(path)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE path = $1`, Doc(collection, id)); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (s *PostgresStore) DeleteBatch(ctx context.Context, paths []string) error {
	if len(paths) > MaxBatchSize {
		return fmt.Errorf("delete batch of %d exceeds %d documents", len(paths), MaxBatchSize)
	}
	clean := make([]string, 0, len(paths))
	for _, path := range paths {
		collection, id, err := SplitPath(path)
		if err != nil {
			return err
		}
		clean = append(clean, Doc(collection, id))
	}
	if len(clean) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE path = ANY($1)`, clean); err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	return nil
}

// Subscribe listens for change notifications on a dedicated connection and
// re-reads the collection whenever it changes. Lost connections are retried
// with backoff; each failure is reported to onError.
func (s *PostgresStore) Subscribe(collection string, q Query, onChange func([]Document), onError func(error)) Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	d := newDelivery(onChange, onError)
	sub := &cancelSubscription{cancel: cancel, delivery: d}

	if err := validCollection(collection); err != nil {
		go d.fail(err)
		return sub
	}

	go func() {
		backoff := time.Second
		for {
			err := s.listen(ctx, strings.Trim(collection, "/"), q, d.change)
			if ctx.Err() != nil {
				return
			}
			d.fail(err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()
	return sub
}

func (s *PostgresStore) listen(ctx context.Context, collection string, q Query, onChange func([]Document)) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener: %w", err)
	}
	defer func() {
		if !conn.Conn().IsClosed() {
			unlistenCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if _, err := conn.Exec(unlistenCtx, `UNLISTEN `+notifyChannel); err != nil {
				log.Printf("unlisten %s: %v", notifyChannel, err)
			}
			cancel()
		}
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, `LISTEN `+notifyChannel); err != nil {
		return fmt.Errorf("listen %s: %w", notifyChannel, err)
	}

	deliver := func() error {
		docs, err := s.List(ctx, collection, q)
		if err != nil {
			return err
		}
		if ctx.Err() == nil && onChange != nil {
			onChange(docs)
		}
		return nil
	}
	if err := deliver(); err != nil {
		return err
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for %s: %w", notifyChannel, err)
		}
		if notification.Payload != collection {
			continue
		}
		if err := deliver(); err != nil {
			return err
		}
	}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// updateExpression builds a jsonb expression that merges plain into base and
// appends each array transform in place, so the whole write is one statement.
func updateExpression(base string, plain Fields, appends map[string][]any, args []any) (string, []any, error) {
	expr := base
	if len(plain) > 0 {
		raw, err := json.Marshal(plain)
		if err != nil {
			return "", nil, err
		}
		args = append(args, string(raw))
		expr = fmt.Sprintf(`(%s || $%d::text::jsonb)`, expr, len(args))
	}
	for field, elems := range appends {
		raw, err := json.Marshal(elems)
		if err != nil {
			return "", nil, err
		}
		args = append(args, field)
		fieldArg := len(args)
		args = append(args, string(raw))
		elemsArg := len(args)
		expr = fmt.Sprintf(
			`jsonb_set(%s, ARRAY[$%d::text], COALESCE(%s->$%d::text, '[]'::jsonb) || $%d::text::jsonb, true)`,
			expr, fieldArg, base, fieldArg, elemsArg,
		)
	}
	return expr, args, nil
}

func scanDocument(row pgx.Row) (Document, error) {
	var (
		doc    Document
		fields string
	)
	if err := row.Scan(&doc.Path, &doc.ID, &fields, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return Document{}, err
	}
	doc.Fields = Fields{}
	if err := json.Unmarshal([]byte(fields), &doc.Fields); err != nil {
		return Document{}, fmt.Errorf("decode fields %s: %w", doc.Path, err)
	}
	return doc, nil
}
