package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dukerupert/tareas/internal/model"
)

var studySessionTable = Table[model.StudySession]{
	Name:   "study_sessions",
	Owner:  "user_id",
	Order:  "created_at DESC, id DESC",
	Select: []string{"id", "user_id", "type", "topic", "content", "document_key", "uses_rag", "total_chunks", "created_at"},
	Scan: func(scanner Scanner) (*model.StudySession, error) {
		var s model.StudySession
		err := scanner.Scan(&s.ID, &s.UserID, &s.Type, &s.Topic, &s.Content, &s.DocumentKey, &s.UsesRAG, &s.TotalChunks, &s.CreatedAt)
		if err != nil {
			return nil, err
		}
		return &s, nil
	},
	Writable: []string{"type", "topic", "content", "document_key", "uses_rag", "total_chunks"},
	Values: func(s *model.StudySession) []any {
		return []any{s.Type, s.Topic, s.Content, s.DocumentKey, s.UsesRAG, s.TotalChunks}
	},
	OwnerOf: func(s *model.StudySession) any { return s.UserID },
}

func NewStudySessionStore(db *sql.DB) *Repository[model.StudySession] {
	return NewRepository(db, studySessionTable)
}

// ChunkStore keeps document chunks with their embeddings encoded as
// little-endian float32 blobs.
type ChunkStore struct {
	db *sql.DB
}

func NewChunkStore(db *sql.DB) *ChunkStore {
	return &ChunkStore{db: db}
}

const chunkCols = `id, user_id, session_id, document_name, chunk_index, content, embedding, dimensions, token_count, created_at`

func scanChunk(scanner Scanner) (*model.DocumentChunk, error) {
	var c model.DocumentChunk
	var blob []byte
	var dims int
	err := scanner.Scan(&c.ID, &c.UserID, &c.SessionID, &c.DocumentName, &c.ChunkIndex, &c.Content, &blob, &dims, &c.TokenCount, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Embedding = blobToFloat32(blob, dims)
	return &c, nil
}

// Insert stores chunks in one transaction.
func (s *ChunkStore) Insert(chunks []model.DocumentChunk) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin insert chunks: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO document_chunks (user_id, session_id, document_name, chunk_index, content, embedding, dimensions, token_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert chunk: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		_, err := stmt.Exec(c.UserID, c.SessionID, c.DocumentName, c.ChunkIndex, c.Content,
			float32ToBlob(c.Embedding), len(c.Embedding), c.TokenCount)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.ChunkIndex, err)
		}
	}
	return tx.Commit()
}

// ForSession returns a user's chunks for one study session in index order.
func (s *ChunkStore) ForSession(userID, sessionID int64) ([]model.DocumentChunk, error) {
	rows, err := s.db.Query(
		`SELECT `+chunkCols+` FROM document_chunks WHERE user_id = ? AND session_id = ? ORDER BY chunk_index`,
		userID, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []model.DocumentChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, *c)
	}
	return chunks, rows.Err()
}

func float32ToBlob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func blobToFloat32(b []byte, dims int) []float32 {
	v := make([]float32, dims)
	for i := 0; i < dims && i*4+4 <= len(b); i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
