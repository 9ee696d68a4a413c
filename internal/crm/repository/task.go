package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/database"
)

var taskColumns = []string{"id", "tenant_id", "deal_id", "assignee_id", "title", "due_at", "done", "created_at"}

// TaskFilter narrows a task listing
type TaskFilter struct {
	TenantID   string
	DealID     string
	AssigneeID string
	Done       *bool
}

// TaskRepository handles task persistence
type TaskRepository struct {
	db *database.DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *database.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// List returns tasks matching f, soonest due first.
func (r *TaskRepository) List(ctx context.Context, f TaskFilter) ([]domain.Task, error) {
	sb := database.TenantSelect("tasks", f.TenantID, taskColumns...)
	if f.DealID != "" {
		sb.Where(sb.Equal("deal_id", f.DealID))
	}
	if f.AssigneeID != "" {
		sb.Where(sb.Equal("assignee_id", f.AssigneeID))
	}
	if f.Done != nil {
		sb.Where(sb.Equal("done", *f.Done))
	}
	sb.OrderBy("due_at NULLS LAST", "created_at")
	query, args := sb.Build()

	tasks := []domain.Task{}
	if err := r.db.Q(ctx).SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Get returns one task of the tenant.
func (r *TaskRepository) Get(ctx context.Context, tenantID, id string) (*domain.Task, error) {
	sb := database.TenantSelect("tasks", tenantID, taskColumns...)
	sb.Where(sb.Equal("id", id))
	query, args := sb.Build()

	var t domain.Task
	if err := r.db.Q(ctx).GetContext(ctx, &t, query, args...); err != nil {
		return nil, notFound(err, "task")
	}
	return &t, nil
}

// Create inserts a task.
func (r *TaskRepository) Create(ctx context.Context, t *domain.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("tasks").
		Cols("id", "tenant_id", "deal_id", "assignee_id", "title", "due_at", "done").
		Values(t.ID, t.TenantID, t.DealID, t.AssigneeID, t.Title, t.DueAt, t.Done)
	ib.Returning("created_at")
	query, args := ib.Build()

	err := r.db.Q(ctx).QueryRowxContext(ctx, query, args...).Scan(&t.CreatedAt)
	return mapWriteErr(err)
}

// Update replaces a task's fields.
func (r *TaskRepository) Update(ctx context.Context, t *domain.Task) error {
	ub := database.TenantUpdate("tasks", t.ID, t.TenantID)
	ub.Set(
		ub.Assign("title", t.Title),
		ub.Assign("deal_id", t.DealID),
		ub.Assign("assignee_id", t.AssigneeID),
		ub.Assign("due_at", t.DueAt),
		ub.Assign("done", t.Done),
	)
	query, args := ub.Build()

	res, err := r.db.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return mapWriteErr(err)
	}
	return expectOne(res, "task")
}

// Delete removes a task.
func (r *TaskRepository) Delete(ctx context.Context, tenantID, id string) error {
	res, err := r.db.Q(ctx).ExecContext(ctx, `DELETE FROM tasks WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return err
	}
	return expectOne(res, "task")
}

// CountOpen counts undone tasks, optionally for one assignee.
func (r *TaskRepository) CountOpen(ctx context.Context, tenantID, assigneeID string) (int, error) {
	sb := database.TenantSelect("tasks", tenantID, "COUNT(*)")
	sb.Where(sb.Equal("done", false))
	if assigneeID != "" {
		sb.Where(sb.Equal("assignee_id", assigneeID))
	}
	query, args := sb.Build()

	var n int
	if err := r.db.Q(ctx).GetContext(ctx, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}
