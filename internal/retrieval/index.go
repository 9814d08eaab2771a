package retrieval

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/contractclarity/engine/internal/domain"
)

// Index reads the category-partitioned provision chunks the offline
// ingest job persisted to sqlite. The engine never writes to it.
type Index struct {
	db *sql.DB
}

// OpenIndex opens the sqlite index read-only.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	return &Index{db: db}, nil
}

// Close releases the underlying database handle.
func (ix *Index) Close() error { return ix.db.Close() }

// NoIndex is the Searcher used when no index file is configured. Every
// search comes back empty, so analysis runs ungrounded.
type NoIndex struct{}

func (NoIndex) Search(context.Context, domain.Category, []float32, int, float64) ([]domain.Citation, error) {
	return nil, nil
}

// Search scans the partition for category, scores every chunk by cosine
// similarity against query, drops entries below floor, and returns the
// topK best. Ties on score break by ascending chunk ID, the stable
// ingest order.
func (ix *Index) Search(ctx context.Context, category domain.Category, query []float32, topK int, floor float64) ([]domain.Citation, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT id, source, body, embedding FROM chunks WHERE category = ? ORDER BY id`,
		string(category))
	if err != nil {
		return nil, fmt.Errorf("query partition %s: %w", category, err)
	}
	defer rows.Close()

	var hits []domain.Citation
	for rows.Next() {
		var (
			id     int64
			source string
			body   string
			blob   []byte
		)
		if err := rows.Scan(&id, &source, &body, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", id, err)
		}
		score := Cosine(query, vec)
		if score < floor {
			continue
		}
		hits = append(hits, domain.Citation{
			ChunkID:   id,
			Source:    source,
			Provision: body,
			Score:     score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan partition %s: %w", category, err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Cosine computes cosine similarity between two vectors. Mismatched or
// zero-length vectors score zero.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// EncodeVector packs a vector as little-endian float32s, the on-disk
// format the ingest job writes.
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector unpacks an embedding blob.
func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
