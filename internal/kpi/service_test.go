package kpi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"performa-system/internal/auditlog"
	"performa-system/internal/auth"
	"performa-system/internal/database/models"
	"performa-system/internal/errs"
	"performa-system/internal/testutil"
)

func fptr(v float64) *float64 { return &v }
func sptr(s string) *string   { return &s }

type fixture struct {
	db       *gorm.DB
	svc      *Service
	kra      *models.KRA
	manager  auth.Actor
	employee auth.Actor
	admin    auth.Actor
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewTestDB(t)
	kra := testutil.SeedKra(t, db, models.KRA{
		Name: "Ship v2", Dept: "Engineering",
		ManagerName: "Maya Chen", EmployeeName: "Dev Patel", CreatedBy: "Root",
	})
	return &fixture{
		db:       db,
		svc:      NewService(db, auditlog.NewService(db)),
		kra:      kra,
		manager:  auth.Actor{Email: "maya@corp.io", Name: "Maya Chen", Dept: "Engineering", Role: auth.RoleManager},
		employee: auth.Actor{Email: "dev@corp.io", Name: "Dev Patel", Dept: "Engineering", Role: auth.RoleEmployee},
		admin:    auth.Actor{Email: "root@corp.io", Name: "Root", Dept: "HQ", Role: auth.RoleAdmin},
	}
}

func (f *fixture) createKpi(t *testing.T, dueIn time.Duration) *models.KPI {
	t.Helper()
	kpi, err := f.svc.Create(context.Background(), CreateInput{
		Name:          "API latency",
		Definition:    "p95 latency under 200ms",
		KraID:         f.kra.ID,
		DueDate:       time.Now().Add(dueIn),
		ScoringMethod: models.MethodPercentage,
	}, f.employee)
	require.NoError(t, err)
	return kpi
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("future due date is active with creation snapshot", func(t *testing.T) {
		kpi := f.createKpi(t, 24*time.Hour)
		assert.Equal(t, models.StatusActive, kpi.Status)
		assert.Equal(t, f.kra.Name, kpi.KraName)
		assert.Equal(t, "Dev Patel", kpi.CreatedBy)

		var entry models.KPILog
		require.NoError(t, f.db.Where("kpi_id = ?", kpi.ID).First(&entry).Error)
		assert.Equal(t, 0, entry.Version)
		assert.Nil(t, entry.Changes)
		assert.Equal(t, "Dev Patel", entry.UpdatedBy)
	})

	t.Run("past due date starts ended", func(t *testing.T) {
		kpi := f.createKpi(t, -24*time.Hour)
		assert.Equal(t, models.StatusEnd, kpi.Status)
	})

	t.Run("admin cannot create", func(t *testing.T) {
		_, err := f.svc.Create(ctx, CreateInput{
			Name: "x", Definition: "y", KraID: f.kra.ID,
			DueDate: time.Now(), ScoringMethod: models.MethodPercentage,
		}, f.admin)
		assert.True(t, errors.Is(err, errs.ErrPermissionDenied))
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		_, err := f.svc.Create(ctx, CreateInput{Name: "x", KraID: f.kra.ID}, f.employee)
		assert.True(t, errors.Is(err, errs.ErrInvalidInput))
	})

	t.Run("unknown scoring method rejected", func(t *testing.T) {
		_, err := f.svc.Create(ctx, CreateInput{
			Name: "x", Definition: "y", KraID: f.kra.ID,
			DueDate: time.Now(), ScoringMethod: "Letter-Grade",
		}, f.employee)
		assert.True(t, errors.Is(err, errs.ErrInvalidInput))
	})

	t.Run("target out of range rejected", func(t *testing.T) {
		_, err := f.svc.Create(ctx, CreateInput{
			Name: "x", Definition: "y", KraID: f.kra.ID,
			DueDate: time.Now(), ScoringMethod: models.MethodPercentage,
			Target: fptr(130),
		}, f.employee)
		assert.True(t, errors.Is(err, errs.ErrInvalidInput))
	})

	t.Run("missing kra", func(t *testing.T) {
		_, err := f.svc.Create(ctx, CreateInput{
			Name: "x", Definition: "y", KraID: 999,
			DueDate: time.Now(), ScoringMethod: models.MethodPercentage,
		}, f.employee)
		assert.True(t, errors.Is(err, errs.ErrNotFound))
	})

	t.Run("employee not assigned to kra denied", func(t *testing.T) {
		other := auth.Actor{Name: "Someone Else", Dept: "Engineering", Role: auth.RoleEmployee}
		_, err := f.svc.Create(ctx, CreateInput{
			Name: "x", Definition: "y", KraID: f.kra.ID,
			DueDate: time.Now(), ScoringMethod: models.MethodPercentage,
		}, other)
		assert.True(t, errors.Is(err, errs.ErrPermissionDenied))
	})
}

func TestUpdateFieldLock(t *testing.T) {
	f := newFixture(t)
	kpi := f.createKpi(t, 24*time.Hour)

	locked := []UpdateInput{
		{Name: sptr("renamed"), Score: fptr(10)},
		{Definition: sptr("rewritten")},
		{DueDate: sptr("2030-01-01")},
		{ScoringMethod: sptr(models.MethodRating)},
		{Target: fptr(90)},
	}
	for _, in := range locked {
		_, err := f.svc.Update(context.Background(), kpi.ID, in, f.employee)
		assert.True(t, errors.Is(err, errs.ErrPermissionDenied))
	}

	// Nothing leaked through the rejected patches.
	var stored models.KPI
	require.NoError(t, f.db.First(&stored, kpi.ID).Error)
	assert.Equal(t, "API latency", stored.Name)
	assert.Nil(t, stored.Score)
}

func TestUpdateDiffsAndLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kpi := f.createKpi(t, 24*time.Hour)

	updated, err := f.svc.Update(ctx, kpi.ID, UpdateInput{Score: fptr(45)}, f.employee)
	require.NoError(t, err)
	require.NotNil(t, updated.Score)
	assert.Equal(t, 45.0, *updated.Score)

	var entry models.KPILog
	require.NoError(t, f.db.Where("kpi_id = ? AND version = 1", kpi.ID).First(&entry).Error)
	require.Contains(t, entry.Changes, "score")
	assert.Nil(t, entry.Changes["score"].From)
	assert.Equal(t, 45.0, entry.Changes["score"].To)

	// Same value again: accepted, but no new log row.
	_, err = f.svc.Update(ctx, kpi.ID, UpdateInput{Score: fptr(45)}, f.employee)
	require.NoError(t, err)
	var count int64
	require.NoError(t, f.db.Model(&models.KPILog{}).Where("kpi_id = ?", kpi.ID).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	// Comments diff from a previous value.
	_, err = f.svc.Update(ctx, kpi.ID, UpdateInput{Comments: sptr("on track")}, f.manager)
	require.NoError(t, err)
	entry = models.KPILog{}
	require.NoError(t, f.db.Where("kpi_id = ? AND version = 2", kpi.ID).First(&entry).Error)
	require.Contains(t, entry.Changes, "comments")
	assert.Equal(t, "on track", entry.Changes["comments"].To)
	assert.Equal(t, "Maya Chen", entry.UpdatedBy)
}

func TestUpdateRecomputesStatus(t *testing.T) {
	f := newFixture(t)
	kpi := f.createKpi(t, 24*time.Hour)

	// Due date slides into the past behind the cached status.
	require.NoError(t, f.db.Model(&models.KPI{}).Where("id = ?", kpi.ID).
		Update("due_date", time.Now().Add(-48*time.Hour)).Error)

	updated, err := f.svc.Update(context.Background(), kpi.ID, UpdateInput{Score: fptr(80)}, f.employee)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEnd, updated.Status)
}

func TestUpdateEndedKpiRejected(t *testing.T) {
	f := newFixture(t)
	kpi := f.createKpi(t, -24*time.Hour)

	_, err := f.svc.Update(context.Background(), kpi.ID, UpdateInput{Score: fptr(80)}, f.employee)
	assert.True(t, errors.Is(err, errs.ErrInvalidState))
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kpi := f.createKpi(t, 24*time.Hour)

	err := f.svc.Delete(ctx, kpi.ID, f.employee)
	assert.True(t, errors.Is(err, errs.ErrPermissionDenied))

	require.NoError(t, f.svc.Delete(ctx, kpi.ID, f.admin))

	// Hard delete leaves log history behind.
	var count int64
	require.NoError(t, f.db.Model(&models.KPILog{}).Where("kpi_id = ?", kpi.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	err = f.svc.Delete(ctx, kpi.ID, f.admin)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestListByCreator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	later := f.createKpi(t, 96*time.Hour)
	sooner := f.createKpi(t, 24*time.Hour)
	ended := f.createKpi(t, -24*time.Hour)

	all, err := f.svc.ListByCreator(ctx, f.employee, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Soonest due first.
	assert.Equal(t, ended.ID, all[0].ID)
	assert.Equal(t, sooner.ID, all[1].ID)
	assert.Equal(t, later.ID, all[2].ID)

	active, err := f.svc.ListByCreator(ctx, f.employee, models.StatusActive)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	endedOnly, err := f.svc.ListByCreator(ctx, f.employee, models.StatusEnd)
	require.NoError(t, err)
	require.Len(t, endedOnly, 1)
	assert.Equal(t, ended.ID, endedOnly[0].ID)

	none, err := f.svc.ListByCreator(ctx, f.manager, "")
	require.NoError(t, err)
	assert.Len(t, none, 0)

	_, err = f.svc.ListByCreator(ctx, f.admin, "")
	assert.True(t, errors.Is(err, errs.ErrPermissionDenied))
}

func TestListAvailableKras(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A KRA the manager created themselves is not available to them.
	testutil.SeedKra(t, f.db, models.KRA{
		Name: "Self-authored", Dept: "Engineering",
		ManagerName: "Maya Chen", EmployeeName: "Dev Patel", CreatedBy: "Maya Chen",
	})

	forManager, err := f.svc.ListAvailableKras(ctx, f.manager)
	require.NoError(t, err)
	require.Len(t, forManager, 1)
	assert.Equal(t, f.kra.ID, forManager[0].ID)

	forEmployee, err := f.svc.ListAvailableKras(ctx, f.employee)
	require.NoError(t, err)
	assert.Len(t, forEmployee, 2)

	forAdmin, err := f.svc.ListAvailableKras(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, forAdmin, 2)

	_, err = f.svc.ListAvailableKras(ctx, auth.Actor{Name: "X", Role: auth.Role("Auditor")})
	assert.True(t, errors.Is(err, errs.ErrPermissionDenied))
}

func TestListByDepartment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createKpi(t, 24*time.Hour)

	kpis, err := f.svc.ListByDepartment(ctx, "Engineering", f.manager)
	require.NoError(t, err)
	assert.Len(t, kpis, 1)

	kpis, err = f.svc.ListByDepartment(ctx, "Engineering", f.admin)
	require.NoError(t, err)
	assert.Len(t, kpis, 1)

	_, err = f.svc.ListByDepartment(ctx, "Sales", f.manager)
	assert.True(t, errors.Is(err, errs.ErrPermissionDenied))

	_, err = f.svc.ListByDepartment(ctx, "Engineering", f.employee)
	assert.True(t, errors.Is(err, errs.ErrPermissionDenied))
}
