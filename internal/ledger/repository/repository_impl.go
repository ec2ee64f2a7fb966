package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/resumekit/entitled/internal/ledger/domain"
	"github.com/resumekit/entitled/internal/plan"
	"github.com/resumekit/entitled/pkg/db"
	"gorm.io/gorm"
)

type repo struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func Provide(conn *gorm.DB, genID *snowflake.Node) ledgerdomain.Repository {
	return &repo{db: conn, genID: genID}
}

func (r *repo) CurrentCount(ctx context.Context, accountID string, resource plan.Resource, period ledgerdomain.Period) (int64, error) {
	var counter ledgerdomain.UsageCounter
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, used FROM usage_counters
		 WHERE account_id = ? AND resource = ? AND period = ?`,
		accountID,
		string(resource),
		period.String(),
	).Scan(&counter).Error
	if err != nil {
		return 0, err
	}
	if counter.ID == 0 {
		return 0, nil
	}
	return counter.Used, nil
}

func (r *repo) CountsForPeriod(ctx context.Context, accountID string, period ledgerdomain.Period) (map[plan.Resource]int64, error) {
	var counters []ledgerdomain.UsageCounter
	err := r.db.WithContext(ctx).Raw(
		`SELECT resource, used FROM usage_counters
		 WHERE account_id = ? AND period = ?`,
		accountID,
		period.String(),
	).Scan(&counters).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[plan.Resource]int64, len(counters))
	for _, c := range counters {
		counts[plan.Resource(c.Resource)] = c.Used
	}
	return counts, nil
}

// TryIncrement performs the check-and-increment as one conditional UPDATE so
// the bound check and the write are indivisible in the database. The first
// consumption in a period inserts the row; losing that insert race falls back
// to the conditional UPDATE on the row the winner created.
func (r *repo) TryIncrement(ctx context.Context, accountID string, resource plan.Resource, period ledgerdomain.Period, bound plan.Limit) (ledgerdomain.ConsumptionResult, error) {
	for attempt := 0; attempt < 2; attempt++ {
		accepted, count, err := r.conditionalIncrement(ctx, accountID, resource, period, bound)
		if err != nil {
			return ledgerdomain.ConsumptionResult{}, err
		}
		if accepted {
			return ledgerdomain.ConsumptionResult{Accepted: true, NewCount: count}, nil
		}

		var counter ledgerdomain.UsageCounter
		err = r.db.WithContext(ctx).Raw(
			`SELECT id, used FROM usage_counters
			 WHERE account_id = ? AND resource = ? AND period = ?`,
			accountID,
			string(resource),
			period.String(),
		).Scan(&counter).Error
		if err != nil {
			return ledgerdomain.ConsumptionResult{}, err
		}
		if counter.ID != 0 {
			// Row exists, so the UPDATE was rejected by the bound.
			return ledgerdomain.ConsumptionResult{Accepted: false, NewCount: counter.Used}, nil
		}

		if !bound.Allows(0) {
			return ledgerdomain.ConsumptionResult{Accepted: false, NewCount: 0}, nil
		}

		now := time.Now().UTC()
		err = r.db.WithContext(ctx).Exec(
			`INSERT INTO usage_counters (id, account_id, resource, period, used, created_at, updated_at)
			 VALUES (?, ?, ?, ?, 1, ?, ?)`,
			r.genID.Generate(),
			accountID,
			string(resource),
			period.String(),
			now,
			now,
		).Error
		if err == nil {
			return ledgerdomain.ConsumptionResult{Accepted: true, NewCount: 1}, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return ledgerdomain.ConsumptionResult{}, err
		}
		// Lost the first-consumption race; retry against the winner's row.
	}
	return ledgerdomain.ConsumptionResult{}, fmt.Errorf("usage counter contention for %s/%s/%s", accountID, resource, period)
}

func (r *repo) conditionalIncrement(ctx context.Context, accountID string, resource plan.Resource, period ledgerdomain.Period, bound plan.Limit) (bool, int64, error) {
	now := time.Now().UTC()

	var tx *gorm.DB
	if bound.IsUnbounded() {
		tx = r.db.WithContext(ctx).Exec(
			`UPDATE usage_counters SET used = used + 1, updated_at = ?
			 WHERE account_id = ? AND resource = ? AND period = ?`,
			now,
			accountID,
			string(resource),
			period.String(),
		)
	} else {
		tx = r.db.WithContext(ctx).Exec(
			`UPDATE usage_counters SET used = used + 1, updated_at = ?
			 WHERE account_id = ? AND resource = ? AND period = ? AND used < ?`,
			now,
			accountID,
			string(resource),
			period.String(),
			bound.Value(),
		)
	}
	if tx.Error != nil {
		return false, 0, tx.Error
	}
	if tx.RowsAffected == 0 {
		return false, 0, nil
	}

	count, err := r.CurrentCount(ctx, accountID, resource, period)
	if err != nil {
		return false, 0, err
	}
	return true, count, nil
}

func (r *repo) CurrentCapacity(ctx context.Context, accountID string, resource plan.Resource) (int64, error) {
	var snapshot ledgerdomain.CapacitySnapshot
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, total FROM capacity_snapshots
		 WHERE account_id = ? AND resource = ?`,
		accountID,
		string(resource),
	).Scan(&snapshot).Error
	if err != nil {
		return 0, err
	}
	if snapshot.ID == 0 {
		return 0, nil
	}
	return snapshot.Total, nil
}

func (r *repo) ReportCapacity(ctx context.Context, accountID string, resource plan.Resource, total int64) error {
	now := time.Now().UTC()

	tx := r.db.WithContext(ctx).Exec(
		`UPDATE capacity_snapshots SET total = ?, updated_at = ?
		 WHERE account_id = ? AND resource = ?`,
		total,
		now,
		accountID,
		string(resource),
	)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 1 {
		return nil
	}

	err := r.db.WithContext(ctx).Exec(
		`INSERT INTO capacity_snapshots (id, account_id, resource, total, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.genID.Generate(),
		accountID,
		string(resource),
		total,
		now,
		now,
	).Error
	if err == nil {
		return nil
	}
	if !db.IsDuplicateKeyErr(err) {
		return err
	}

	// Lost the first-report race; write through the existing row.
	return r.db.WithContext(ctx).Exec(
		`UPDATE capacity_snapshots SET total = ?, updated_at = ?
		 WHERE account_id = ? AND resource = ?`,
		total,
		now,
		accountID,
		string(resource),
	).Error
}

func (r *repo) History(ctx context.Context, accountID string, before *ledgerdomain.Period, limit int) ([]ledgerdomain.HistoryEntry, error) {
	if limit <= 0 {
		return nil, nil
	}

	var periods []string
	var err error
	if before != nil {
		err = r.db.WithContext(ctx).Raw(
			`SELECT DISTINCT period FROM usage_counters
			 WHERE account_id = ? AND period < ?
			 ORDER BY period DESC LIMIT ?`,
			accountID,
			before.String(),
			limit,
		).Scan(&periods).Error
	} else {
		err = r.db.WithContext(ctx).Raw(
			`SELECT DISTINCT period FROM usage_counters
			 WHERE account_id = ?
			 ORDER BY period DESC LIMIT ?`,
			accountID,
			limit,
		).Scan(&periods).Error
	}
	if err != nil {
		return nil, err
	}
	if len(periods) == 0 {
		return nil, nil
	}

	var entries []ledgerdomain.HistoryEntry
	err = r.db.WithContext(ctx).Raw(
		`SELECT period, resource, used FROM usage_counters
		 WHERE account_id = ? AND period IN ?
		 ORDER BY period DESC, resource ASC`,
		accountID,
		periods,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
