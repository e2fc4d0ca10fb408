package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Cloudtempmonitor/templogger/internal/models"

	"go.uber.org/zap"
)

// UnitRepository 组织单元仓库
type UnitRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUnitRepository 创建组织单元仓库
func NewUnitRepository(db *sql.DB, logger *zap.Logger) *UnitRepository {
	return &UnitRepository{
		db:     db,
		logger: logger,
	}
}

// GetUnit 获取组织单元
func (r *UnitRepository) GetUnit(ctx context.Context, unitID string) (*models.Unit, error) {
	if unitID == "" {
		return nil, fmt.Errorf("unit_id is required")
	}

	query := `
		SELECT
			unit_id,
			unit_name,
			region_code
		FROM units
		WHERE unit_id = $1
	`

	var unit models.Unit
	var name, regionCode sql.NullString
	err := r.db.QueryRowContext(ctx, query, unitID).Scan(&unit.UnitID, &name, &regionCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("unit not found: %s: %w", unitID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}
	unit.Name = name.String
	unit.RegionCode = regionCode.String

	return &unit, nil
}
