package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/orris-inc/cellcore/internal/domain/shared"
	"github.com/orris-inc/cellcore/internal/infrastructure/persistence/models"
	"github.com/orris-inc/cellcore/internal/shared/biztime"
	"github.com/orris-inc/cellcore/internal/shared/logger"
)

// SectionStoreRepository keeps sections as rows keyed by (section, key).
type SectionStoreRepository struct {
	db     *gorm.DB
	logger logger.Interface
}

// NewSectionStoreRepository creates the repository; call Migrate before use.
func NewSectionStoreRepository(db *gorm.DB, logger logger.Interface) *SectionStoreRepository {
	return &SectionStoreRepository{
		db:     db,
		logger: logger,
	}
}

var _ shared.SectionStore = (*SectionStoreRepository)(nil)

// Migrate creates the section table when it does not exist.
func (r *SectionStoreRepository) Migrate() error {
	if err := r.db.AutoMigrate(&models.SectionEntryModel{}); err != nil {
		return fmt.Errorf("failed to migrate section entries: %w", err)
	}
	return nil
}

func (r *SectionStoreRepository) Load(ctx context.Context, section string) (map[string]string, error) {
	var rows []models.SectionEntryModel
	if err := r.db.WithContext(ctx).Where("section = ?", section).Find(&rows).Error; err != nil {
		r.logger.Errorw("failed to load section", "section", section, "error", err)
		return nil, fmt.Errorf("failed to load section %s: %w", section, err)
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

func (r *SectionStoreRepository) Set(ctx context.Context, section, key, value string) error {
	row := models.SectionEntryModel{
		Section:   section,
		Key:       key,
		Value:     value,
		UpdatedAt: biztime.NowUTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "section"}, {Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", section, key, err)
	}
	return nil
}

func (r *SectionStoreRepository) Delete(ctx context.Context, section, key string) error {
	err := r.db.WithContext(ctx).
		Where("section = ? AND entry_key = ?", section, key).
		Delete(&models.SectionEntryModel{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", section, key, err)
	}
	return nil
}

// Counts returns the number of entries per section.
func (r *SectionStoreRepository) Counts(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Section string
		Total   int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.SectionEntryModel{}).
		Select("section, COUNT(*) AS total").
		Group("section").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count section entries: %w", err)
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Section] = row.Total
	}
	return out, nil
}
