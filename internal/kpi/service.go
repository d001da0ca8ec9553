// Package kpi implements the KPI lifecycle: creation with status derivation,
// the field-lock update policy, admin deletion and the listing paths.
package kpi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"performa-system/internal/auditlog"
	"performa-system/internal/auth"
	"performa-system/internal/database/models"
	"performa-system/internal/errs"
)

type Service struct {
	db    *gorm.DB
	audit *auditlog.Service
}

func NewService(db *gorm.DB, audit *auditlog.Service) *Service {
	return &Service{db: db, audit: audit}
}

type CreateInput struct {
	Name          string
	Definition    string
	KraID         int64
	DueDate       time.Time
	ScoringMethod string
	Target        *float64
}

func (s *Service) Create(ctx context.Context, in CreateInput, actor auth.Actor) (*models.KPI, error) {
	if !auth.CanWriteKpis(actor.Role) {
		return nil, fmt.Errorf("%w: role %q cannot create KPIs", errs.ErrPermissionDenied, actor.Role)
	}
	if in.Name == "" || in.Definition == "" || in.KraID == 0 || in.DueDate.IsZero() || in.ScoringMethod == "" {
		return nil, fmt.Errorf("%w: name, def, kra_id, due_date and scoring_method are required", errs.ErrInvalidInput)
	}
	if !models.KnownScoringMethod(in.ScoringMethod) {
		return nil, fmt.Errorf("%w: unknown scoring method %q", errs.ErrInvalidInput, in.ScoringMethod)
	}
	if in.Target != nil && (*in.Target < 0 || *in.Target > 100) {
		return nil, fmt.Errorf("%w: target must be between 0 and 100", errs.ErrInvalidInput)
	}

	var kra models.KRA
	if err := s.db.WithContext(ctx).First(&kra, in.KraID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: kra %d", errs.ErrNotFound, in.KraID)
		}
		return nil, err
	}
	if !auth.CanAccessKra(actor, &kra) {
		return nil, fmt.Errorf("%w: no access to kra %d", errs.ErrPermissionDenied, kra.ID)
	}

	kpi := &models.KPI{
		Name:          in.Name,
		Definition:    in.Definition,
		KraID:         kra.ID,
		KraName:       kra.Name,
		DueDate:       in.DueDate,
		ScoringMethod: in.ScoringMethod,
		Target:        in.Target,
		CreatedBy:     actor.Name,
		Status:        models.StatusFromDueDate(in.DueDate, time.Now()),
	}

	err := auditlog.RunWithRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(kpi).Error; err != nil {
				return err
			}
			// Creation snapshot, version 0, changes null.
			_, err := s.audit.Append(tx, kpi, &kra, nil, actor.Name)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return kpi, nil
}

// UpdateInput carries the two mutable fields plus the locked ones. Locked
// fields are bound so an attempt to set them can be rejected rather than
// silently ignored; changing them goes through the approval-request workflow.
type UpdateInput struct {
	Score    *float64
	Comments *string

	Name          *string
	Definition    *string
	DueDate       *string
	ScoringMethod *string
	Target        *float64
}

func (in UpdateInput) lockedField() string {
	switch {
	case in.Name != nil:
		return "name"
	case in.Definition != nil:
		return "def"
	case in.DueDate != nil:
		return "due_date"
	case in.ScoringMethod != nil:
		return "scoring_method"
	case in.Target != nil:
		return "target"
	}
	return ""
}

func (s *Service) Update(ctx context.Context, id int64, in UpdateInput, actor auth.Actor) (*models.KPI, error) {
	if !auth.CanWriteKpis(actor.Role) {
		return nil, fmt.Errorf("%w: role %q cannot update KPIs", errs.ErrPermissionDenied, actor.Role)
	}
	if field := in.lockedField(); field != "" {
		return nil, fmt.Errorf("%w: changing %q requires an approval request", errs.ErrPermissionDenied, field)
	}

	var result *models.KPI
	err := auditlog.RunWithRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var kpi models.KPI
			if err := tx.First(&kpi, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: kpi %d", errs.ErrNotFound, id)
				}
				return err
			}
			var kra models.KRA
			if err := tx.First(&kra, kpi.KraID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: kra %d", errs.ErrNotFound, kpi.KraID)
				}
				return err
			}
			if !auth.CanAccessKra(actor, &kra) {
				return fmt.Errorf("%w: no access to kra %d", errs.ErrPermissionDenied, kra.ID)
			}
			if kpi.Status != models.StatusActive {
				return fmt.Errorf("%w: kpi %d has ended", errs.ErrInvalidState, id)
			}

			changes := models.ChangeMap{}
			kpi.Score = models.ApplyFloatChange(changes, "score", kpi.Score, in.Score)
			kpi.Comments = models.ApplyStringChange(changes, "comments", kpi.Comments, in.Comments)
			kpi.Status = models.StatusFromDueDate(kpi.DueDate, time.Now())

			if err := tx.Save(&kpi).Error; err != nil {
				return err
			}
			if len(changes) > 0 {
				if _, err := s.audit.Append(tx, &kpi, &kra, changes, actor.Name); err != nil {
					return err
				}
			}
			result = &kpi
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete hard-deletes a KPI. Log rows stay behind for history until the
// retention sweep collects them.
func (s *Service) Delete(ctx context.Context, id int64, actor auth.Actor) error {
	if actor.Role != auth.RoleAdmin {
		return fmt.Errorf("%w: only admins can delete KPIs", errs.ErrPermissionDenied)
	}
	res := s.db.WithContext(ctx).Delete(&models.KPI{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: kpi %d", errs.ErrNotFound, id)
	}
	return nil
}

// ListByCreator returns the actor's own KPIs, optionally filtered by status,
// soonest due first.
func (s *Service) ListByCreator(ctx context.Context, actor auth.Actor, statusFilter string) ([]models.KPI, error) {
	if !auth.CanWriteKpis(actor.Role) {
		return nil, fmt.Errorf("%w: role %q has no KPIs of its own", errs.ErrPermissionDenied, actor.Role)
	}
	q := s.db.WithContext(ctx).Where("created_by = ?", actor.Name)
	if statusFilter == models.StatusActive || statusFilter == models.StatusEnd {
		q = q.Where("status = ?", statusFilter)
	}
	var kpis []models.KPI
	if err := q.Order("due_date ASC").Find(&kpis).Error; err != nil {
		return nil, err
	}
	return kpis, nil
}

// ListAvailableKras returns the KRAs the actor may file KPIs under. Managers
// act on KRAs assigned to them by an Admin, not ones they created themselves.
func (s *Service) ListAvailableKras(ctx context.Context, actor auth.Actor) ([]models.KRA, error) {
	q := s.db.WithContext(ctx).Model(&models.KRA{})
	switch actor.Role {
	case auth.RoleAdmin:
	case auth.RoleManager:
		q = q.Where("manager_name = ? AND created_by <> ?", actor.Name, actor.Name)
	case auth.RoleEmployee:
		q = q.Where("employee_name = ?", actor.Name)
	default:
		return nil, fmt.Errorf("%w: role %q has no available KRAs", errs.ErrPermissionDenied, actor.Role)
	}
	var kras []models.KRA
	if err := q.Find(&kras).Error; err != nil {
		return nil, err
	}
	return kras, nil
}

// ListByDepartment returns KPIs filed under a department's KRAs. Admins may
// read any department, managers only their own.
func (s *Service) ListByDepartment(ctx context.Context, dept string, actor auth.Actor) ([]models.KPI, error) {
	switch actor.Role {
	case auth.RoleAdmin:
	case auth.RoleManager:
		if actor.Dept != dept {
			return nil, fmt.Errorf("%w: manager %q cannot read dept %q", errs.ErrPermissionDenied, actor.Name, dept)
		}
	default:
		return nil, fmt.Errorf("%w: role %q cannot read department KPIs", errs.ErrPermissionDenied, actor.Role)
	}

	kraIDs := s.db.Model(&models.KRA{}).Select("id").Where("dept = ?", dept)
	var kpis []models.KPI
	if err := s.db.WithContext(ctx).
		Where("kra_id IN (?)", kraIDs).
		Order("due_date ASC").
		Find(&kpis).Error; err != nil {
		return nil, err
	}
	return kpis, nil
}
