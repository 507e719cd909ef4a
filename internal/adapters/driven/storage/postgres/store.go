// Package postgres implements the persistence ports on PostgreSQL with
// the pgvector extension. Similarity search runs server-side through the
// cosine distance operator, so only matching chunks cross the wire.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formsage/formsage/internal/core/domain"
	"github.com/formsage/formsage/internal/core/ports/driven"
)

// DefaultDimensions is the embedding width the schema is created with.
const DefaultDimensions = 768

// Store is a unified PostgreSQL-based storage that provides access to all
// persistence interfaces through wrapper types.
type Store struct {
	pool *pgxpool.Pool
	dims int
}

// NewStore connects to PostgreSQL and verifies the connection. dims is
// the embedding width; zero uses DefaultDimensions.
func NewStore(ctx context.Context, connStr string, dims int) (*Store, error) {
	if dims <= 0 {
		dims = DefaultDimensions
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Store{pool: pool, dims: dims}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Initialize creates the schema and the vector index.
func (s *Store) Initialize(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("creating vector extension: %w", err)
	}

	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			storage_ref TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			size_bytes BIGINT NOT NULL DEFAULT 0,
			filing_year INTEGER NOT NULL DEFAULT 0,
			ingest_status TEXT NOT NULL DEFAULT 'pending',
			error_message TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}

	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			content TEXT NOT NULL,
			page INTEGER NOT NULL DEFAULT 0,
			form_fields JSONB,
			embedding vector(%d)
		)
	`, s.dims)); err != nil {
		return fmt.Errorf("creating chunks table: %w", err)
	}

	if _, err := s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS chunks_embedding_idx ON chunks
		USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)
	`); err != nil {
		return fmt.Errorf("creating vector index: %w", err)
	}

	if _, err := s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS chunks_document_idx ON chunks (document_id, position);
		CREATE INDEX IF NOT EXISTS documents_filing_year_idx ON documents (filing_year)
	`); err != nil {
		return fmt.Errorf("creating indices: %w", err)
	}

	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_sessions (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating chat_sessions table: %w", err)
	}

	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			language TEXT NOT NULL DEFAULT '',
			sources JSONB,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS chat_messages_session_idx ON chat_messages (session_id, created_at)
	`); err != nil {
		return fmt.Errorf("creating chat_messages table: %w", err)
	}

	return nil
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// ChunkStore returns a ChunkStore interface backed by this store.
func (s *Store) ChunkStore() driven.ChunkStore {
	return &chunkStore{store: s}
}

// ChatStore returns a ChatStore interface backed by this store.
func (s *Store) ChatStore() driven.ChatStore {
	return &chatStore{store: s}
}

// ==================== Document Store ====================

type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := s.store.pool.Exec(ctx, `
		INSERT INTO documents
			(id, filename, storage_ref, mime_type, size_bytes, filing_year,
			 ingest_status, error_message, summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			storage_ref = EXCLUDED.storage_ref,
			mime_type = EXCLUDED.mime_type,
			size_bytes = EXCLUDED.size_bytes,
			filing_year = EXCLUDED.filing_year,
			ingest_status = EXCLUDED.ingest_status,
			error_message = EXCLUDED.error_message,
			summary = EXCLUDED.summary,
			updated_at = EXCLUDED.updated_at
	`, doc.ID, doc.Filename, doc.StorageRef, doc.MimeType, doc.SizeBytes, doc.FilingYear,
		string(doc.IngestStatus), doc.ErrorMessage, doc.Summary, doc.CreatedAt, doc.UpdatedAt)

	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.pool.QueryRow(ctx, `
		SELECT id, filename, storage_ref, mime_type, size_bytes, filing_year,
		       ingest_status, error_message, summary, created_at, updated_at
		FROM documents WHERE id = $1
	`, id)

	doc, err := scanDocumentRow(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return doc, err
}

func (s *documentStore) ListDocuments(ctx context.Context, filingYear int) ([]domain.Document, error) {
	query := `
		SELECT id, filename, storage_ref, mime_type, size_bytes, filing_year,
		       ingest_status, error_message, summary, created_at, updated_at
		FROM documents`
	args := []any{}
	if filingYear != 0 {
		query += " WHERE filing_year = $1"
		args = append(args, filingYear)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.store.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocumentRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return docs, nil
}

func (s *documentStore) SetStatus(ctx context.Context, id string, status domain.IngestStatus, errMsg string) error {
	if status != domain.IngestError {
		errMsg = ""
	}

	tag, err := s.store.pool.Exec(ctx, `
		UPDATE documents SET ingest_status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`, string(status), errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *documentStore) SetSummary(ctx context.Context, id string, summary string) error {
	tag, err := s.store.pool.Exec(ctx, `
		UPDATE documents SET summary = $1, updated_at = $2 WHERE id = $3
	`, summary, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.store.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// ==================== Chunk Store ====================

type chunkStore struct {
	store *Store
}

var _ driven.ChunkStore = (*chunkStore)(nil)

// SaveChunks stores all chunks of one ingestion run in a transaction.
func (s *chunkStore) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, chunk := range chunks {
		fieldsJSON, err := json.Marshal(chunk.Metadata.FormFields)
		if err != nil {
			return fmt.Errorf("marshalling chunk fields: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO chunks (id, document_id, position, content, page, form_fields, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				document_id = EXCLUDED.document_id,
				position = EXCLUDED.position,
				content = EXCLUDED.content,
				page = EXCLUDED.page,
				form_fields = EXCLUDED.form_fields,
				embedding = EXCLUDED.embedding
		`, chunk.ID, chunk.DocumentID, chunk.Index, chunk.Text,
			chunk.Metadata.Page, fieldsJSON, vectorLiteral(chunk.Embedding)); err != nil {
			return fmt.Errorf("saving chunk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *chunkStore) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.store.pool.Exec(ctx, "DELETE FROM chunks WHERE document_id = $1", documentID)
	if err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// Search runs cosine search server-side. pgvector's <=> is cosine
// distance, so similarity is 1 - distance.
func (s *chunkStore) Search(ctx context.Context, queryEmbedding []float32, documentID string, matchCount int, matchThreshold float64) ([]domain.SimilarityResult, error) {
	rows, err := s.store.pool.Query(ctx, `
		SELECT id, document_id, position, content, page, form_fields,
		       1 - (embedding <=> $1) AS similarity
		FROM chunks
		WHERE document_id = $2 AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1
		LIMIT $4
	`, vectorLiteral(queryEmbedding), documentID, matchThreshold, matchCount)
	if err != nil {
		return nil, fmt.Errorf("querying similar chunks: %w", err)
	}
	defer rows.Close()

	var results []domain.SimilarityResult //nolint:prealloc // size unknown from query
	for rows.Next() {
		var (
			r          domain.SimilarityResult
			fieldsJSON []byte
		)
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.DocumentID, &r.Chunk.Index,
			&r.Chunk.Text, &r.Chunk.Metadata.Page, &fieldsJSON, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning similar chunk: %w", err)
		}
		if err := unmarshalFields(fieldsJSON, &r.Chunk.Metadata.FormFields); err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating similar chunks: %w", err)
	}

	return results, nil
}

func (s *chunkStore) ListByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.store.pool.Query(ctx, `
		SELECT id, document_id, position, content, page, form_fields
		FROM chunks WHERE document_id = $1
		ORDER BY position
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var (
			chunk      domain.Chunk
			fieldsJSON []byte
		)
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Index,
			&chunk.Text, &chunk.Metadata.Page, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if err := unmarshalFields(fieldsJSON, &chunk.Metadata.FormFields); err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return chunks, nil
}

// ==================== Chat Store ====================

type chatStore struct {
	store *Store
}

var _ driven.ChatStore = (*chatStore)(nil)

func (s *chatStore) CreateSession(ctx context.Context, session *domain.ChatSession) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	_, err := s.store.pool.Exec(ctx, `
		INSERT INTO chat_sessions (id, document_id, title, created_at)
		VALUES ($1, $2, $3, $4)
	`, session.ID, session.DocumentID, session.Title, session.CreatedAt)

	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

func (s *chatStore) GetSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	row := s.store.pool.QueryRow(ctx, `
		SELECT id, document_id, title, created_at
		FROM chat_sessions WHERE id = $1
	`, id)

	var session domain.ChatSession
	if err := row.Scan(&session.ID, &session.DocumentID, &session.Title, &session.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return &session, nil
}

func (s *chatStore) AppendMessage(ctx context.Context, msg *domain.ChatMessage) error {
	sourcesJSON, err := json.Marshal(msg.Sources)
	if err != nil {
		return fmt.Errorf("marshalling sources: %w", err)
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err = s.store.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, language, sources, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.SessionID, msg.Role, msg.Content, msg.Language, sourcesJSON, msg.CreatedAt)

	if err != nil {
		return fmt.Errorf("appending message: %w", err)
	}
	return nil
}

func (s *chatStore) ListMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	rows, err := s.store.pool.Query(ctx, `
		SELECT id, session_id, role, content, language, sources, created_at
		FROM chat_messages WHERE session_id = $1
		ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.ChatMessage //nolint:prealloc // size unknown from query
	for rows.Next() {
		var (
			msg         domain.ChatMessage
			sourcesJSON []byte
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content,
			&msg.Language, &sourcesJSON, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if len(sourcesJSON) > 0 && string(sourcesJSON) != "null" {
			if err := json.Unmarshal(sourcesJSON, &msg.Sources); err != nil {
				return nil, fmt.Errorf("unmarshaling sources: %w", err)
			}
		}
		msgs = append(msgs, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return msgs, nil
}

// ==================== Helper Functions ====================

// vectorLiteral renders a vector in pgvector's text form, e.g. [1,2,3].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// unmarshalFields decodes the optional form_fields column.
func unmarshalFields(data []byte, dst *map[string]string) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshaling chunk fields: %w", err)
	}
	return nil
}

// scanDocumentRow scans one document row via the given Scan func.
func scanDocumentRow(scan func(...any) error) (*domain.Document, error) {
	var (
		doc    domain.Document
		status string
	)
	if err := scan(&doc.ID, &doc.Filename, &doc.StorageRef, &doc.MimeType,
		&doc.SizeBytes, &doc.FilingYear, &status, &doc.ErrorMessage,
		&doc.Summary, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.IngestStatus = domain.IngestStatus(status)
	return &doc, nil
}
