package implementation

import (
	"context"
	"errors"

	"ai-library-agent/internal/entity"
	"ai-library-agent/internal/mapper"
	"ai-library-agent/internal/model"
	"ai-library-agent/internal/repository/contract"
	"ai-library-agent/internal/repository/scope"
	"ai-library-agent/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RecordRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.RecordMapper
}

func NewRecordRepository(db *gorm.DB) contract.RecordRepository {
	return &RecordRepositoryImpl{
		db:     db,
		mapper: mapper.NewRecordMapper(),
	}
}

func (r *RecordRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *RecordRepositoryImpl) Create(ctx context.Context, record *entity.Record) error {
	m := r.mapper.ToModel(record)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*record = *r.mapper.ToEntity(m)
	return nil
}

func (r *RecordRepositoryImpl) Update(ctx context.Context, record *entity.Record) error {
	m := r.mapper.ToModel(record)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	*record = *r.mapper.ToEntity(m)
	return nil
}

func (r *RecordRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.Record{}, id).Error
}

func (r *RecordRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Record, error) {
	return r.findOne(r.db.WithContext(ctx), specs...)
}

func (r *RecordRepositoryImpl) FindOneUnscoped(ctx context.Context, specs ...specification.Specification) (*entity.Record, error) {
	return r.findOne(scope.WithSoftDelete(r.db.WithContext(ctx)), specs...)
}

func (r *RecordRepositoryImpl) findOne(db *gorm.DB, specs ...specification.Specification) (*entity.Record, error) {
	var m model.Record
	query := r.applySpecifications(db, specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *RecordRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Record, error) {
	var models []*model.Record
	query := r.applySpecifications(scope.OrderByCreatedAsc(r.db.WithContext(ctx)), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *RecordRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(scope.WithSoftDelete(r.db.WithContext(ctx)).Model(&model.Record{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
