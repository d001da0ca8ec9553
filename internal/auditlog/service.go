// Package auditlog owns the append-only, per-KPI versioned change log: one
// immutable snapshot row per accepted mutation, versions dense from 0.
package auditlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"performa-system/internal/auth"
	"performa-system/internal/database/models"
	"performa-system/internal/errs"
)

// Appends race under concurrency on the read-max-then-insert sequence; the
// unique (kpi_id, version) index rejects the loser, which retries the whole
// transaction against fresh state.
const maxAppendRetries = 3

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Append writes the next snapshot for a KPI inside the caller's transaction.
// With no prior rows the entry lands at version 0 (the creation snapshot,
// changes == nil); otherwise at max+1.
func (s *Service) Append(tx *gorm.DB, kpi *models.KPI, kra *models.KRA, changes models.ChangeMap, updatedBy string) (*models.KPILog, error) {
	var max sql.NullInt64
	if err := tx.Model(&models.KPILog{}).
		Where("kpi_id = ?", kpi.ID).
		Select("MAX(version)").
		Scan(&max).Error; err != nil {
		return nil, fmt.Errorf("failed to read max version for kpi %d: %w", kpi.ID, err)
	}

	version := 0
	if max.Valid {
		version = int(max.Int64) + 1
	}

	entry := &models.KPILog{
		KpiID:        kpi.ID,
		Version:      version,
		KpiName:      kpi.Name,
		KraID:        kra.ID,
		KraName:      kra.Name,
		Dept:         kra.Dept,
		Target:       kpi.Target,
		Score:        kpi.Score,
		Comments:     kpi.Comments,
		KpiCreatedBy: kpi.CreatedBy,
		KraCreatedBy: kra.CreatedBy,
		DueDate:      kpi.DueDate,
		UpdatedBy:    updatedBy,
		UpdatedAt:    time.Now(),
		Changes:      changes,
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to append log for kpi %d: %w", kpi.ID, err)
	}
	return entry, nil
}

// RunWithRetry executes a mutation transaction, retrying when a concurrent
// writer claimed the same version number first.
func RunWithRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxAppendRetries; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
	}
	return err
}

type Filters struct {
	Dept     string
	Manager  string
	Employee string
}

// Query returns audit rows the actor may see, restricted to snapshots whose
// due date has not passed, newest first.
//
// Scope rules: Admin filters freely by dept and employee-or-manager name;
// a Manager sees their own rows unless asking for a specific employee, in
// which case the rows are restricted to KRAs the manager can reach; an
// Employee sees only rows they authored.
func (s *Service) Query(ctx context.Context, f Filters, actor auth.Actor) ([]models.KPILog, error) {
	q := s.db.WithContext(ctx).
		Model(&models.KPILog{}).
		Where("due_date >= ?", models.DateOnly(time.Now()))

	switch actor.Role {
	case auth.RoleAdmin:
		if f.Dept != "" {
			q = q.Where("dept = ?", f.Dept)
		}
		if f.Employee != "" {
			q = q.Where("updated_by = ?", f.Employee)
		} else if f.Manager != "" {
			q = q.Where("updated_by = ?", f.Manager)
		}
	case auth.RoleManager:
		if f.Employee == "" {
			q = q.Where("updated_by = ?", actor.Name)
		} else {
			q = q.Where("updated_by = ?", f.Employee).
				Where("dept = ? OR kra_created_by = ?", actor.Dept, actor.Name)
		}
	case auth.RoleEmployee:
		q = q.Where("updated_by = ?", actor.Name)
	default:
		return nil, fmt.Errorf("%w: role %q cannot view logs", errs.ErrPermissionDenied, actor.Role)
	}

	var logs []models.KPILog
	if err := q.Order("updated_at DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// PurgeExpired deletes log rows whose snapshot due date has passed, but only
// once the owning KPI is itself past due or gone. Purging on the snapshot
// date alone would drop history for KPIs whose due date was later extended.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	today := models.DateOnly(time.Now())
	live := s.db.Model(&models.KPI{}).Select("id").Where("due_date >= ?", today)

	res := s.db.WithContext(ctx).
		Where("due_date < ?", today).
		Where("kpi_id NOT IN (?)", live).
		Delete(&models.KPILog{})
	return res.RowsAffected, res.Error
}

// RunPurgeSweep runs PurgeExpired once immediately and then on every tick
// until the context is cancelled. Meant to run in its own goroutine with a
// 24h interval.
func (s *Service) RunPurgeSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := s.PurgeExpired(ctx); err != nil {
			log.Printf("audit log purge failed: %v", err)
		} else if n > 0 {
			log.Printf("audit log purge removed %d expired entries", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
