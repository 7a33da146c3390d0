package service

import (
	"context"
	"fmt"
	"time"

	"ai-library-agent/internal/dto"
	"ai-library-agent/internal/entity"
	"ai-library-agent/internal/pkg/logger"
	"ai-library-agent/internal/repository/specification"
	"ai-library-agent/internal/repository/unitofwork"
	"ai-library-agent/pkg/backend"
	"ai-library-agent/pkg/library"

	"github.com/google/uuid"
)

const (
	keyAlphabet = "23456789ABCDEFGHIJKLMNPQRSTUVWXYZ"
	keyLength   = 8
	keyAttempts = 5
)

// RecordIndexer pushes records into the origin service's search index.
type RecordIndexer interface {
	IndexRecord(ctx context.Context, doc backend.IndexDocument) error
}

type ILibraryService interface {
	library.Store
	AttachmentTitle(ctx context.Context, c library.Coordinate) (string, error)
	SaveAttachment(ctx context.Context, req *dto.SaveAttachmentRequest) (*dto.AttachmentResponse, error)
	ShowRecord(ctx context.Context, key string) (*dto.RecordResponse, error)
	ListRecords(ctx context.Context, limit, offset int) ([]*dto.RecordResponse, error)
}

type libraryService struct {
	uowFactory unitofwork.RepositoryFactory
	indexer    RecordIndexer
	libraryID  int
	logger     logger.ILogger
}

func NewLibraryService(
	uowFactory unitofwork.RepositoryFactory,
	indexer RecordIndexer,
	libraryID int,
	log logger.ILogger,
) ILibraryService {
	return &libraryService{
		uowFactory: uowFactory,
		indexer:    indexer,
		libraryID:  libraryID,
		logger:     log,
	}
}

var _ library.Store = &libraryService{}

// GetRecord returns the record including soft-deleted ones, flagged by
// IsDeleted.
func (s *libraryService) GetRecord(ctx context.Context, c library.Coordinate) (*library.Record, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	rec, err := uow.RecordRepository().FindOneUnscoped(ctx, specification.ByLibraryKey{LibraryID: c.LibraryID, Key: c.Key})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("record %s: %w", c, library.ErrNotFound)
	}
	return &library.Record{
		Coordinate: rec.Coordinate(),
		Title:      rec.Title,
		SourceID:   rec.SourceID,
		IsDeleted:  rec.IsDeleted,
	}, nil
}

func (s *libraryService) IsSoftDeleted(ctx context.Context, c library.Coordinate) (bool, error) {
	rec, err := s.GetRecord(ctx, c)
	if err != nil {
		return false, err
	}
	return rec.IsDeleted, nil
}

// Search matches by DOI, then ISBN, then normalized title within the year.
// A title match must share a creator surname when both sides list creators.
func (s *libraryService) Search(ctx context.Context, q library.SearchQuery) (*library.Coordinate, error) {
	if q.IsEmpty() {
		return nil, nil
	}
	uow := s.uowFactory.NewUnitOfWork(ctx)
	repo := uow.RecordRepository()
	inLibrary := specification.ByLibrary{LibraryID: s.libraryID}

	if q.DOI != "" {
		rec, err := repo.FindOne(ctx, inLibrary, specification.ByDOI{DOI: q.DOI})
		if err != nil {
			return nil, err
		}
		if rec != nil {
			c := rec.Coordinate()
			return &c, nil
		}
	}

	if q.ISBN != "" {
		rec, err := repo.FindOne(ctx, inLibrary, specification.ByISBN{ISBN: q.ISBN})
		if err != nil {
			return nil, err
		}
		if rec != nil {
			c := rec.Coordinate()
			return &c, nil
		}
	}

	if q.Title == "" {
		return nil, nil
	}
	candidates, err := repo.FindAll(ctx,
		inLibrary,
		specification.ByNormalizedTitle{Title: q.Title},
		specification.ByYearOrUnknown{Year: q.Year},
	)
	if err != nil {
		return nil, err
	}
	for _, rec := range candidates {
		if creatorsOverlap(q.Creators, rec.CreatorSurnames) {
			c := rec.Coordinate()
			return &c, nil
		}
	}
	return nil, nil
}

func creatorsOverlap(query, stored []string) bool {
	if len(query) == 0 || len(stored) == 0 {
		return true
	}
	seen := make(map[string]struct{}, len(stored))
	for _, s := range stored {
		seen[s] = struct{}{}
	}
	for _, q := range query {
		if _, ok := seen[q]; ok {
			return true
		}
	}
	return false
}

func (s *libraryService) CreateRecord(ctx context.Context, ref library.Reference, collections []string) (library.Coordinate, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return library.Coordinate{}, err
	}
	defer uow.Rollback()

	repo := uow.RecordRepository()
	key, err := newKey(func(k string) (int64, error) {
		return repo.Count(ctx, specification.ByLibraryKey{LibraryID: s.libraryID, Key: k})
	})
	if err != nil {
		return library.Coordinate{}, err
	}

	surnames := make([]string, 0, len(ref.Creators))
	for _, c := range ref.Creators {
		if n := library.NormalizeSurname(c.Surname()); n != "" {
			surnames = append(surnames, n)
		}
	}
	identifiers := map[string]string{}
	if ref.DOI != "" {
		identifiers["doi"] = ref.DOI
	}
	if ref.ISBN != "" {
		identifiers["isbn"] = ref.ISBN
	}
	if ref.SourceID != "" {
		identifiers["source_id"] = ref.SourceID
	}

	rec := entity.Record{
		Id:              uuid.New(),
		LibraryID:       s.libraryID,
		Key:             key,
		ItemType:        ref.ItemType,
		Title:           ref.Title,
		NormalizedTitle: library.NormalizeTitle(ref.Title),
		Date:            ref.Date,
		Year:            library.ExtractYear(ref.Date),
		DOI:             library.NormalizeDOI(ref.DOI),
		ISBN:            library.NormalizeISBN(ref.ISBN),
		Abstract:        ref.Abstract,
		Publication:     ref.Publication,
		URL:             ref.URL,
		SourceID:        ref.SourceID,
		Creators:        ref.Creators,
		CreatorSurnames: surnames,
		CollectionKeys:  collections,
		Identifiers:     identifiers,
		CreatedAt:       time.Now(),
	}
	if err := repo.Create(ctx, &rec); err != nil {
		return library.Coordinate{}, err
	}
	if err := uow.Commit(); err != nil {
		return library.Coordinate{}, err
	}

	s.logger.Info("LIBRARY", "Record created", map[string]interface{}{
		"key":       rec.Key,
		"source_id": rec.SourceID,
		"title":     rec.Title,
	})
	return rec.Coordinate(), nil
}

func newKey(count func(string) (int64, error)) (string, error) {
	for i := 0; i < keyAttempts; i++ {
		key := generateKey()
		n, err := count(key)
		if err != nil {
			return "", err
		}
		if n == 0 {
			return key, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique record key")
}

func generateKey() string {
	id := uuid.New()
	out := make([]byte, keyLength)
	for i := range out {
		out[i] = keyAlphabet[int(id[i])%len(keyAlphabet)]
	}
	return string(out)
}

// DeleteRecord soft-deletes a live record.
func (s *libraryService) DeleteRecord(ctx context.Context, c library.Coordinate) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	repo := uow.RecordRepository()
	rec, err := repo.FindOne(ctx, specification.ByLibraryKey{LibraryID: c.LibraryID, Key: c.Key})
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("record %s: %w", c, library.ErrNotFound)
	}
	if err := repo.Delete(ctx, rec.Id); err != nil {
		return err
	}
	s.logger.Info("LIBRARY", "Record deleted", map[string]interface{}{"key": c.Key})
	return nil
}

func (s *libraryService) IndexForSearch(ctx context.Context, c library.Coordinate) error {
	if s.indexer == nil {
		return nil
	}
	uow := s.uowFactory.NewUnitOfWork(ctx)
	rec, err := uow.RecordRepository().FindOne(ctx, specification.ByLibraryKey{LibraryID: c.LibraryID, Key: c.Key})
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("record %s: %w", c, library.ErrNotFound)
	}

	creators := make([]string, 0, len(rec.Creators))
	for _, cr := range rec.Creators {
		if cr.Name != "" {
			creators = append(creators, cr.Name)
			continue
		}
		creators = append(creators, fmt.Sprintf("%s, %s", cr.LastName, cr.FirstName))
	}
	return s.indexer.IndexRecord(ctx, backend.IndexDocument{
		LibraryID:   rec.LibraryID,
		Key:         rec.Key,
		ItemType:    rec.ItemType,
		Title:       rec.Title,
		Date:        rec.Date,
		DOI:         rec.DOI,
		ISBN:        rec.ISBN,
		Creators:    creators,
		Abstract:    rec.Abstract,
		Publication: rec.Publication,
	})
}

// AttachmentTitle resolves an attachment's display title, falling back to the
// title of its parent record.
func (s *libraryService) AttachmentTitle(ctx context.Context, c library.Coordinate) (string, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	att, err := uow.AttachmentRepository().FindOne(ctx, specification.ByLibraryKey{LibraryID: c.LibraryID, Key: c.Key})
	if err != nil {
		return "", err
	}
	if att == nil {
		return "", fmt.Errorf("attachment %s: %w", c, library.ErrNotFound)
	}
	if att.Title != "" || att.ParentKey == "" {
		return att.Title, nil
	}
	parent, err := uow.RecordRepository().FindOne(ctx, specification.ByLibraryKey{LibraryID: c.LibraryID, Key: att.ParentKey})
	if err != nil {
		return "", err
	}
	if parent == nil {
		return "", nil
	}
	return parent.Title, nil
}

func (s *libraryService) SaveAttachment(ctx context.Context, req *dto.SaveAttachmentRequest) (*dto.AttachmentResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	att := entity.Attachment{
		Id:          uuid.New(),
		LibraryID:   s.libraryID,
		Key:         req.Key,
		ParentKey:   req.ParentKey,
		Title:       req.Title,
		ContentType: req.ContentType,
		CreatedAt:   time.Now(),
	}
	if err := uow.AttachmentRepository().Save(ctx, &att); err != nil {
		return nil, err
	}
	return &dto.AttachmentResponse{
		LibraryID:   att.LibraryID,
		Key:         att.Key,
		ParentKey:   att.ParentKey,
		Title:       att.Title,
		ContentType: att.ContentType,
	}, nil
}

func (s *libraryService) ShowRecord(ctx context.Context, key string) (*dto.RecordResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	rec, err := uow.RecordRepository().FindOneUnscoped(ctx, specification.ByLibraryKey{LibraryID: s.libraryID, Key: key})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, library.ErrNotFound
	}
	return toRecordResponse(rec), nil
}

func (s *libraryService) ListRecords(ctx context.Context, limit, offset int) ([]*dto.RecordResponse, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	uow := s.uowFactory.NewUnitOfWork(ctx)
	recs, err := uow.RecordRepository().FindAll(ctx,
		specification.ByLibrary{LibraryID: s.libraryID},
		specification.Pagination{Limit: limit, Offset: offset},
	)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.RecordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toRecordResponse(rec))
	}
	return out, nil
}

func toRecordResponse(rec *entity.Record) *dto.RecordResponse {
	return &dto.RecordResponse{
		LibraryID: rec.LibraryID,
		Key:       rec.Key,
		ItemType:  rec.ItemType,
		Title:     rec.Title,
		Date:      rec.Date,
		DOI:       rec.DOI,
		ISBN:      rec.ISBN,
		SourceID:  rec.SourceID,
		Creators:  rec.Creators,
		IsDeleted: rec.IsDeleted,
		CreatedAt: rec.CreatedAt,
	}
}
