package repository

import (
	"context"

	"newsfromai/internal/domain/entity"
)

type TaskLogRepository interface {
	Record(ctx context.Context, entry *entity.AITaskLog) error
}
