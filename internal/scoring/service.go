// Package scoring owns score submission and the KRA roll-up: a score write
// diffs against stored state, appends an audit snapshot, and synchronously
// recomputes the owning KRA's overall percentage.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"performa-system/internal/auditlog"
	"performa-system/internal/auth"
	"performa-system/internal/database/models"
	"performa-system/internal/errs"
)

const (
	KRA_AGGREGATE_CACHE_PREFIX = "kra:aggregate:"
	CACHE_TTL_MEDIUM           = 30 * time.Minute
)

type Service struct {
	db    *gorm.DB
	redis *redis.Client
	audit *auditlog.Service
}

func NewService(db *gorm.DB, redisClient *redis.Client, audit *auditlog.Service) *Service {
	return &Service{db: db, redis: redisClient, audit: audit}
}

// AddOrUpdateScore writes a score/comment onto a KPI and rolls the owning
// KRA's overall score up as part of the same logical operation.
func (s *Service) AddOrUpdateScore(ctx context.Context, kpiID int64, score *float64, comments *string, actor auth.Actor) (*models.KPI, error) {
	if !auth.CanWriteKpis(actor.Role) {
		return nil, fmt.Errorf("%w: role %q cannot score KPIs", errs.ErrPermissionDenied, actor.Role)
	}

	var result *models.KPI
	err := auditlog.RunWithRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var kpi models.KPI
			if err := tx.First(&kpi, kpiID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: kpi %d", errs.ErrNotFound, kpiID)
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
				return fmt.Errorf("%w: kpi %d has ended", errs.ErrInvalidState, kpiID)
			}

			changes := models.ChangeMap{}
			kpi.Score = models.ApplyFloatChange(changes, "score", kpi.Score, score)
			kpi.Comments = models.ApplyStringChange(changes, "comments", kpi.Comments, comments)
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

	if err := s.UpdateKraOverall(ctx, result.KraID); err != nil {
		return nil, fmt.Errorf("score saved but roll-up failed for kra %d: %w", result.KraID, err)
	}
	return result, nil
}

type AggregateResult struct {
	KraID      int64   `json:"kra_id"`
	Percentage float64 `json:"percentage"`
	Count      int     `json:"count"`
}

// AggregateKraPercentage computes the mean normalized percentage across the
// KRA's counting KPIs, rounded to 2 decimals. A KPI counts if it has a
// normalizable score and is Active by stored status OR by due date; the OR
// keeps a KPI with a stale cached status in the aggregate.
func (s *Service) AggregateKraPercentage(ctx context.Context, kraID int64) (*AggregateResult, error) {
	var kpis []models.KPI
	if err := s.db.WithContext(ctx).
		Where("kra_id = ?", kraID).
		Order("due_date ASC").
		Find(&kpis).Error; err != nil {
		return nil, err
	}

	today := models.DateOnly(time.Now())
	sum := decimal.Zero
	count := 0
	for _, k := range kpis {
		pct := Normalize(k.ScoringMethod, k.Score)
		if pct == nil {
			continue
		}
		if k.Status != models.StatusActive && models.DateOnly(k.DueDate).Before(today) {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(*pct))
		count++
	}

	result := &AggregateResult{KraID: kraID}
	if count > 0 {
		result.Percentage = sum.Div(decimal.NewFromInt(int64(count))).Round(2).InexactFloat64()
		result.Count = count
	}
	return result, nil
}

// UpdateKraOverall persists the aggregate into the KRA's overall_score. This
// is the only writer of that field. The cached aggregate is refreshed rather
// than just invalidated so dashboard reads stay warm.
func (s *Service) UpdateKraOverall(ctx context.Context, kraID int64) error {
	agg, err := s.AggregateKraPercentage(ctx, kraID)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).
		Model(&models.KRA{}).
		Where("id = ?", kraID).
		Update("overall_score", agg.Percentage)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: kra %d", errs.ErrNotFound, kraID)
	}

	s.cacheAggregate(ctx, agg)
	return nil
}

// KraAggregate is the read path behind the aggregate endpoint, served from
// redis when warm.
func (s *Service) KraAggregate(ctx context.Context, kraID int64) (*AggregateResult, error) {
	cacheKey := fmt.Sprintf("%s%d", KRA_AGGREGATE_CACHE_PREFIX, kraID)
	if cached, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
		var agg AggregateResult
		if err := json.Unmarshal([]byte(cached), &agg); err == nil {
			return &agg, nil
		}
	}

	var kra models.KRA
	if err := s.db.WithContext(ctx).First(&kra, kraID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: kra %d", errs.ErrNotFound, kraID)
		}
		return nil, err
	}

	agg, err := s.AggregateKraPercentage(ctx, kraID)
	if err != nil {
		return nil, err
	}
	s.cacheAggregate(ctx, agg)
	return agg, nil
}

func (s *Service) cacheAggregate(ctx context.Context, agg *AggregateResult) {
	cacheKey := fmt.Sprintf("%s%d", KRA_AGGREGATE_CACHE_PREFIX, agg.KraID)
	if data, err := json.Marshal(agg); err == nil {
		_ = s.redis.Set(ctx, cacheKey, data, CACHE_TTL_MEDIUM)
	}
}

// KPIScore is the normalized read view of a single KPI.
type KPIScore struct {
	KpiID         int64     `json:"kpi_id"`
	KpiName       string    `json:"kpi_name"`
	KraID         int64     `json:"kra_id"`
	ScoringMethod string    `json:"scoring_method"`
	Status        string    `json:"status"`
	DueDate       time.Time `json:"due_date"`
	Score         *float64  `json:"score"`
	Percentage    *float64  `json:"percentage"`
	Comments      *string   `json:"comments"`
	Target        *float64  `json:"target"`
}

func scoreView(k *models.KPI) KPIScore {
	return KPIScore{
		KpiID:         k.ID,
		KpiName:       k.Name,
		KraID:         k.KraID,
		ScoringMethod: k.ScoringMethod,
		Status:        k.Status,
		DueDate:       k.DueDate,
		Score:         k.Score,
		Percentage:    Normalize(k.ScoringMethod, k.Score),
		Comments:      k.Comments,
		Target:        k.Target,
	}
}

func (s *Service) KpiScore(ctx context.Context, kpiID int64) (*KPIScore, error) {
	var kpi models.KPI
	if err := s.db.WithContext(ctx).First(&kpi, kpiID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: kpi %d", errs.ErrNotFound, kpiID)
		}
		return nil, err
	}
	view := scoreView(&kpi)
	return &view, nil
}

func (s *Service) KraScores(ctx context.Context, kraID int64) ([]KPIScore, error) {
	var kra models.KRA
	if err := s.db.WithContext(ctx).First(&kra, kraID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: kra %d", errs.ErrNotFound, kraID)
		}
		return nil, err
	}

	var kpis []models.KPI
	if err := s.db.WithContext(ctx).
		Where("kra_id = ?", kraID).
		Order("due_date ASC").
		Find(&kpis).Error; err != nil {
		return nil, err
	}

	views := make([]KPIScore, 0, len(kpis))
	for i := range kpis {
		views = append(views, scoreView(&kpis[i]))
	}
	return views, nil
}
