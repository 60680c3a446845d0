package implementation

import (
	"context"
	"errors"
	"testing"
	"time"

	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/internal/repository/specification"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestBuildTsQuery(t *testing.T) {
	tests := []struct {
		name  string
		terms []string
		want  string
	}{
		{name: "joins terms with OR", terms: []string{"독감", "예방접종"}, want: "독감 | 예방접종"},
		{name: "strips tsquery operators", terms: []string{"flu&shot", "(cancer)", "!nerve:*"}, want: "flushot | cancer | nerve"},
		{name: "lower-cases and dedupes", terms: []string{"MRI", "mri", "Mri"}, want: "mri"},
		{name: "drops empty terms", terms: []string{"", "&|", "통증"}, want: "통증"},
		{name: "empty input", terms: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildTsQuery(tt.terms))
		})
	}
}

func TestChunkRepository_KeywordSearch(t *testing.T) {
	t.Run("ranks matches with ts_rank_cd", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewChunkRepository(db)
		chunkId, docId := uuid.New(), uuid.New()

		mock.ExpectQuery(`SELECT id AS chunk_id, document_id, ts_rank_cd\(search_vector, q\) AS score`).
			WithArgs("독감 | 예방접종", 5).
			WillReturnRows(sqlmock.NewRows([]string{"chunk_id", "document_id", "score"}).
				AddRow(chunkId.String(), docId.String(), 0.42))

		hits, err := repo.KeywordSearch(context.Background(), []string{"독감", "예방접종"}, 5)

		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, chunkId, hits[0].ChunkId)
		assert.Equal(t, docId, hits[0].DocumentId)
		assert.InDelta(t, 0.42, hits[0].Score, 1e-9)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips the database when no term survives", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewChunkRepository(db)

		hits, err := repo.KeywordSearch(context.Background(), []string{"&", "|"}, 5)

		require.NoError(t, err)
		assert.Empty(t, hits)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestChunkRepository_VectorSearch(t *testing.T) {
	t.Run("sets ef_search inside the transaction", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewChunkRepository(db)
		chunkId, docId := uuid.New(), uuid.New()

		mock.ExpectBegin()
		mock.ExpectExec(`SET LOCAL hnsw.ef_search = 40`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT id AS chunk_id, document_id, 1 - \(embedding <=> .+\) AS score`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 3).
			WillReturnRows(sqlmock.NewRows([]string{"chunk_id", "document_id", "score"}).
				AddRow(chunkId.String(), docId.String(), 0.91))
		mock.ExpectCommit()

		hits, err := repo.VectorSearch(context.Background(), []float32{1, 0}, 3, 40)

		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, chunkId, hits[0].ChunkId)
		assert.InDelta(t, 0.91, hits[0].Score, 1e-9)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on query failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewChunkRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`SET LOCAL hnsw.ef_search`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`FROM chunks`).WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		_, err := repo.VectorSearch(context.Background(), []float32{1, 0}, 3, 40)

		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestChunkRepository_FindHashesByDocumentId(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChunkRepository(db)
	docId, first, second := uuid.New(), uuid.New(), uuid.New()

	published := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, content_hash, position, source_url, title, source_type, published_at, timestamp_range, metadata FROM "chunks" WHERE document_id = \$1`).
		WithArgs(docId).
		WillReturnRows(sqlmock.NewRows([]string{"id", "content_hash", "position", "source_url", "title", "source_type", "published_at", "timestamp_range", "metadata"}).
			AddRow(first.String(), "aaa", 0, "https://hospital.example/blog/flu", "독감 관리", "blog", published, nil, []byte(`{"category":"general"}`)).
			AddRow(second.String(), "bbb", 1, "https://hospital.example/blog/flu", "독감 관리", "blog", published, nil, []byte(`{}`)))

	refs, err := repo.FindHashesByDocumentId(context.Background(), docId)

	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, first, refs["aaa"].Id)
	assert.Equal(t, 1, refs["bbb"].Position)
	assert.Equal(t, "독감 관리", refs["aaa"].Metadata.Title)
	assert.Equal(t, "general", refs["aaa"].Metadata.Category)
	assert.True(t, published.Equal(refs["bbb"].PublishedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkRepository_UpdateKept(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChunkRepository(db)
	id := uuid.New()

	mock.ExpectExec(`UPDATE "chunks" SET .*"metadata"=.*"position"=.*"published_at"=.*"search_terms"=.*"source_type"=.*"source_url"=.*"timestamp_range"=.*"title"=.* WHERE id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateKept(context.Background(), id, &entity.Chunk{
		Position:    2,
		SearchTerms: "독감 예방접종 2025",
		PublishedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Metadata: entity.ChunkMetadata{
			SourceURL:  "https://hospital.example/blog/flu",
			Title:      "독감 예방접종 2025",
			SourceType: entity.SourceTypeBlog,
			Category:   "general",
		},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkRepository_LockDocument(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChunkRepository(db)
	docId := uuid.New()

	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs(docId.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.LockDocument(context.Background(), docId))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_FindOne(t *testing.T) {
	t.Run("returns nil when nothing matches", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewDocumentRepository(db)

		mock.ExpectQuery(`SELECT \* FROM "documents" WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		doc, err := repo.FindOne(context.Background(), specification.ByID{ID: uuid.New()})

		require.NoError(t, err)
		assert.Nil(t, doc)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps the stored row", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewDocumentRepository(db)
		id := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "documents" WHERE source_url = \$1`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "source_url", "title", "source_type", "category", "chunk_count", "incomplete"}).
				AddRow(id.String(), "https://hospital.example/blog/flu", "독감 관리", "blog", "general", 3, false))

		doc, err := repo.FindOne(context.Background(), specification.BySourceURL{URL: "https://hospital.example/blog/flu"})

		require.NoError(t, err)
		require.NotNil(t, doc)
		assert.Equal(t, id, doc.Id)
		assert.Equal(t, "독감 관리", doc.Title)
		assert.Equal(t, 3, doc.ChunkCount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDocumentRepository_UpdateIngestState(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectExec(`UPDATE "documents" SET .*"chunk_count"=.*"incomplete"=`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateIngestState(context.Background(), uuid.New(), 4, true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_Delete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)
	id := uuid.New()

	mock.ExpectExec(`DELETE FROM "documents" WHERE id = \$1`).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}
