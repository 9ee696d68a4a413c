package service

import (
	"context"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/internal/crm/repository"
	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/permissions"
)

// TaskService handles tasks
type TaskService struct {
	caps   CapsSource
	roles  *RoleResolver
	tasks  TaskStore
	deals  DealStore
	users  UserStore
	logger *logger.Logger
}

// NewTaskService creates a new task service
func NewTaskService(caps CapsSource, roles *RoleResolver, tasks TaskStore, deals DealStore, users UserStore, log *logger.Logger) *TaskService {
	return &TaskService{
		caps:   caps,
		roles:  roles,
		tasks:  tasks,
		deals:  deals,
		users:  users,
		logger: log.WithComponent("tasks"),
	}
}

// List returns the tenant's tasks matching the filter.
func (s *TaskService) List(ctx context.Context, caller *actor.Actor, f repository.TaskFilter) ([]domain.Task, error) {
	if _, err := s.roles.RequirePermission(ctx, caller, permissions.TasksRead); err != nil {
		return nil, err
	}
	f.TenantID = caller.TenantID
	return s.tasks.List(ctx, f)
}

// Create adds a task. Deal and assignee must belong to the tenant.
func (s *TaskService) Create(ctx context.Context, caller *actor.Actor, in domain.TaskInput) (*domain.Task, error) {
	if _, err := s.roles.RequirePermission(ctx, caller, permissions.TasksWrite); err != nil {
		return nil, err
	}

	t := &domain.Task{TenantID: caller.TenantID}
	if err := s.apply(ctx, caller.TenantID, t, in); err != nil {
		return nil, err
	}
	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Update replaces a task's fields.
func (s *TaskService) Update(ctx context.Context, caller *actor.Actor, id string, in domain.TaskInput) (*domain.Task, error) {
	if _, err := s.roles.RequirePermission(ctx, caller, permissions.TasksWrite); err != nil {
		return nil, err
	}

	t, err := s.tasks.Get(ctx, caller.TenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, caller.TenantID, t, in); err != nil {
		return nil, err
	}
	if err := s.tasks.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a task.
func (s *TaskService) Delete(ctx context.Context, caller *actor.Actor, id string) error {
	if _, err := s.roles.RequirePermission(ctx, caller, permissions.TasksWrite); err != nil {
		return err
	}
	return s.tasks.Delete(ctx, caller.TenantID, id)
}

func (s *TaskService) apply(ctx context.Context, tenantID string, t *domain.Task, in domain.TaskInput) error {
	caps, err := s.caps.Caps(ctx)
	if err != nil {
		return err
	}

	t.DealID = nil
	if in.DealID != nil && *in.DealID != "" {
		if _, err := s.deals.Get(ctx, caps, repository.DealFilter{TenantID: tenantID}, *in.DealID); err != nil {
			return err
		}
		t.DealID = in.DealID
	}

	t.AssigneeID = nil
	if in.AssigneeID != nil && *in.AssigneeID != "" {
		if _, err := s.users.Get(ctx, caps, tenantID, *in.AssigneeID); err != nil {
			return err
		}
		t.AssigneeID = in.AssigneeID
	}

	t.Title = in.Title
	t.DueAt = in.DueAt
	t.Done = in.Done
	return nil
}
