package service

import (
	"context"
	"log"
	"os"
	"testing"

	"ai-library-agent/internal/pkg/logger"
	"ai-library-agent/internal/repository/unitofwork"
	"ai-library-agent/pkg/database"
	"ai-library-agent/pkg/library"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryService_Postgres(t *testing.T) {
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found, using system env")
	}
	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	db, err := database.NewGormDBFromDSN(dsn, false)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	// A fresh library id keeps runs independent of existing rows.
	libraryID := int(uuid.New().ID()%1_000_000) + 1_000_000
	svc := NewLibraryService(unitofwork.NewRepositoryFactory(db), nil, libraryID, logger.NewNopLogger())
	ctx := context.Background()

	ref := library.Reference{
		SourceID: "it-" + uuid.NewString(),
		Title:    "Attention Is All You Need",
		Date:     "2017-06-12",
		DOI:      "10.48550/arXiv.1706." + uuid.NewString()[:5],
		Creators: []library.Creator{{FirstName: "Ashish", LastName: "Vaswani"}},
	}

	coord, err := svc.CreateRecord(ctx, ref, nil)
	require.NoError(t, err)
	assert.Equal(t, libraryID, coord.LibraryID)
	assert.Len(t, coord.Key, keyLength)

	t.Run("search by doi", func(t *testing.T) {
		found, err := svc.Search(ctx, library.BuildQuery(library.Reference{DOI: ref.DOI}))
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, coord, *found)
	})

	t.Run("search by title and creator", func(t *testing.T) {
		found, err := svc.Search(ctx, library.BuildQuery(library.Reference{
			Title:    "attention is all you need",
			Date:     "2017",
			Creators: []library.Creator{{LastName: "Vaswani"}},
		}))
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, coord.Key, found.Key)
	})

	t.Run("soft delete keeps the record visible to validation", func(t *testing.T) {
		require.NoError(t, svc.DeleteRecord(ctx, coord))

		deleted, err := svc.IsSoftDeleted(ctx, coord)
		require.NoError(t, err)
		assert.True(t, deleted)

		err = svc.DeleteRecord(ctx, coord)
		assert.ErrorIs(t, err, library.ErrNotFound)

		found, err := svc.Search(ctx, library.BuildQuery(library.Reference{DOI: ref.DOI}))
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}
