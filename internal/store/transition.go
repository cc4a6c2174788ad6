package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/feichai0017/rag-service/internal/models"
)

// transition applies a status change as one conditional UPDATE keyed by id and the
// expected current status. When nothing matched it tells a missing record apart from
// a record in another state.
func transition(ctx context.Context, db *gorm.DB, model interface{}, id uuid.UUID, from, to string, fields map[string]interface{}) error {
	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to

	res := db.WithContext(ctx).Model(model).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update status: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check record: %w", err)
	}
	if count == 0 {
		return models.ErrNotFound
	}
	return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
}
