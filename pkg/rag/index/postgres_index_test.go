package index

import (
	"context"
	"errors"
	"os"
	"testing"

	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/internal/model"
	"oncare-chatbot-be/internal/repository/unitofwork"
	"oncare-chatbot-be/pkg/apperror"
	"oncare-chatbot-be/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real pgvector database when DB_CONNECTION_STRING is set.
func newPostgresIndex(t *testing.T) *PostgresIndex {
	t.Helper()
	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("DB_CONNECTION_STRING not set")
	}

	db, err := database.NewGormDBFromDSN(dsn, database.DefaultPoolConfig(), "silent")
	require.NoError(t, err)
	require.NoError(t, model.Migrate(db, 16, 64))
	return NewPostgresIndex(unitofwork.NewRepositoryFactory(db), 40)
}

func unitVector(axis int) []float32 {
	v := make([]float32, entity.EmbeddingDimension)
	v[axis] = 1
	return v
}

func TestPostgresIndex_RoundTrip(t *testing.T) {
	idx := newPostgresIndex(t)
	ctx := context.Background()

	doc := &entity.Document{
		SourceURL:  "https://hospital.example/it/" + uuid.NewString(),
		Title:      "독감",
		SourceType: entity.SourceTypeBlog,
		Category:   "general",
		RawText:    "독감 예방접종",
	}
	require.NoError(t, idx.SaveDocument(ctx, doc))
	t.Cleanup(func() { idx.Delete(context.Background(), doc.Id) })

	chunks := []*entity.Chunk{
		newChunk(0, "독감 예방접종 "+doc.SourceURL, unitVector(0)...),
		newChunk(1, "항암 치료 식단 "+doc.SourceURL, unitVector(1)...),
	}
	for _, c := range chunks {
		c.Metadata.SourceURL = doc.SourceURL
	}

	stats, err := idx.Upsert(ctx, doc.Id, chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Inserted)

	stats, err = idx.Upsert(ctx, doc.Id, chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Unchanged)
	assert.False(t, stats.Changed())

	hits, err := idx.VectorSearch(ctx, unitVector(0), 1)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)

	hits, err = idx.KeywordSearch(ctx, "예방접종", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)

	require.NoError(t, idx.Delete(ctx, doc.Id))
	_, err = idx.GetDocument(ctx, doc.Id)
	assert.True(t, errors.Is(err, apperror.ErrDocumentNotFound))
}
