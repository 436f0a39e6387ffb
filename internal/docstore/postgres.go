package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps documents as JSONB rows in the documents table
// (see migrations/002_documents.sql). Server timestamps come from NOW()
// of the write transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Add(ctx context.Context, collectionPath string, data Fields) (string, error) {
	segments, err := parseCollection(collectionPath)
	if err != nil {
		return "", err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now, err := serverNow(ctx, tx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(resolve(data, now))
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}

	var parent *string
	if p := parentDoc(segments); p != "" {
		parent = &p
	}

	id := uuid.NewString()
	tag, err := tx.Exec(ctx, `
		INSERT INTO documents (path, collection, parent, data)
		SELECT $1, $2, $3::text, $4::jsonb
		WHERE $3::text IS NULL
		   OR EXISTS (SELECT 1 FROM documents WHERE path = $3::text)
	`, collectionPath+"/"+id, collectionPath, parent, string(body))
	if err != nil {
		return "", fmt.Errorf("failed to insert document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", ErrParentNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit document: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Update(ctx context.Context, docPath string, fields Fields) error {
	if _, err := parseDoc(docPath); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now, err := serverNow(ctx, tx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(resolve(fields, now))
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}

	tag, err := tx.Exec(ctx,
		"UPDATE documents SET data = data || $2::jsonb, updated_at = NOW() WHERE path = $1",
		docPath, string(body),
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, docPath string) (*Document, error) {
	segments, err := parseDoc(docPath)
	if err != nil {
		return nil, err
	}

	var body []byte
	err = s.pool.QueryRow(ctx, "SELECT data FROM documents WHERE path = $1", docPath).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return jsonDocument(docPath, segments[len(segments)-1], body), nil
}

func (s *PostgresStore) List(ctx context.Context, collectionPath string) ([]*Document, error) {
	if _, err := parseCollection(collectionPath); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		"SELECT path, data FROM documents WHERE collection = $1 ORDER BY created_at, path",
		collectionPath,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var path string
		var body []byte
		if err := rows.Scan(&path, &body); err != nil {
			return nil, err
		}
		docs = append(docs, jsonDocument(path, path[len(collectionPath)+1:], body))
	}
	return docs, rows.Err()
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresStore) Close(ctx context.Context) error {
	return nil
}

func serverNow(ctx context.Context, tx pgx.Tx) (time.Time, error) {
	var now time.Time
	if err := tx.QueryRow(ctx, "SELECT NOW()").Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("failed to read server time: %w", err)
	}
	return now.UTC(), nil
}

func jsonDocument(path, id string, body []byte) *Document {
	return &Document{
		ID:   id,
		Path: path,
		decode: func(out interface{}) error {
			return json.Unmarshal(body, out)
		},
	}
}
