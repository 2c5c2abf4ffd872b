package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/repository"
)

type TaskLogRepo struct{ db *sql.DB }

func NewTaskLogRepo(db *sql.DB) repository.TaskLogRepository {
	return &TaskLogRepo{db: db}
}

func (repo *TaskLogRepo) Record(ctx context.Context, entry *entity.AITaskLog) error {
	const query = `
INSERT INTO ai_task_log (task, model, status, repair_step, duration_ms, error, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := repo.db.ExecContext(ctx, query,
		entry.Task, entry.Model, string(entry.Status), entry.RepairStep,
		entry.Duration.Milliseconds(), entry.Error, createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("Record: %w", err)
	}
	return nil
}
