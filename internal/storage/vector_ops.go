package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// searchVector performs vector similarity search over symbol embeddings.
// An empty projectID searches across all projects. The querier keeps
// in-transaction searches on the transaction's connection; with a single
// pooled connection, reaching for the DB mid-transaction would deadlock.
func searchVector(ctx context.Context, q querier, projectID string, queryVector []float32, limit int) ([]ScoredSymbol, error) {
	if limit <= 0 {
		return []ScoredSymbol{}, nil
	}
	// Use SQL-based search when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, q, projectID, queryVector, limit)
	}
	// Fall back to Go-based computation for purego builds
	return searchVectorFallback(ctx, q, projectID, queryVector, limit)
}

// searchVectorOptimized uses the sqlite-vec extension to compute distance
// at the database layer. vec_distance_cosine returns distance (lower is
// better); we convert to similarity to keep one score convention.
func searchVectorOptimized(ctx context.Context, q querier, projectID string, queryVector []float32, limit int) ([]ScoredSymbol, error) {
	queryBlob := serializeVector(queryVector)

	query := `
		SELECT ` + symbolColumns + `,
		       1.0 - vec_distance_cosine(embedding, ?) AS similarity
		FROM symbols
		WHERE embedding IS NOT NULL`
	args := []interface{}{queryBlob}
	if projectID != "" {
		query += ` AND project_id = ?`
		args = append(args, projectID)
	}
	query += `
		ORDER BY similarity DESC
		LIMIT ?
	`
	args = append(args, limit)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]ScoredSymbol, 0, limit)
	for rows.Next() {
		var scored ScoredSymbol
		sym := &Symbol{}
		var docstring, parent sql.NullString
		err := rows.Scan(
			&sym.ID, &sym.ProjectID, &sym.Name, &sym.Kind, &sym.FilePath,
			&sym.StartLine, &sym.EndLine, &sym.Code, &docstring, &parent,
			&sym.Embedding, &sym.CreatedAt, &sym.UpdatedAt, &scored.Similarity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		sym.Docstring = docstring.String
		sym.Parent = parent.String
		scored.Symbol = sym
		results = append(results, scored)
	}
	return results, rows.Err()
}

// searchVectorFallback loads candidate embeddings and ranks them with
// Go-computed cosine similarity. Used when sqlite-vec is not compiled in.
func searchVectorFallback(ctx context.Context, q querier, projectID string, queryVector []float32, limit int) ([]ScoredSymbol, error) {
	query := `
		SELECT ` + symbolColumns + `
		FROM symbols
		WHERE embedding IS NOT NULL`
	var args []interface{}
	if projectID != "" {
		query += ` AND project_id = ?`
		args = append(args, projectID)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]ScoredSymbol, 0, 1000)
	for rows.Next() {
		sym, err := scanSymbol(rows.Scan)
		if err != nil {
			return nil, err
		}

		vector := deserializeVector(sym.Embedding)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		candidates = append(candidates, ScoredSymbol{
			Symbol:     sym,
			Similarity: cosineSimilarity(queryVector, vector),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})

	if limit > len(candidates) {
		limit = len(candidates)
	}
	return candidates[:limit], nil
}

// searchDocuments ranks a project's documents by cosine similarity. The
// document count per project stays small, so the Go fallback path is used
// in both builds.
func searchDocuments(ctx context.Context, q querier, projectID string, queryVector []float32, limit int) ([]ScoredDocument, error) {
	if limit <= 0 {
		return []ScoredDocument{}, nil
	}

	query := `
		SELECT id, project_id, title, content, embedding, created_at
		FROM documents
		WHERE project_id = ? AND embedding IS NOT NULL
	`
	rows, err := q.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]ScoredDocument, 0)
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.ProjectID, &doc.Title, &doc.Content, &doc.Embedding, &doc.CreatedAt); err != nil {
			return nil, err
		}

		vector := deserializeVector(doc.Embedding)
		if len(vector) != len(queryVector) {
			continue
		}

		candidates = append(candidates, ScoredDocument{
			Document:   &doc,
			Similarity: cosineSimilarity(queryVector, vector),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})

	if limit > len(candidates) {
		limit = len(candidates)
	}
	return candidates[:limit], nil
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SerializeVector is an exported helper for callers storing embeddings
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for callers reading embeddings
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
