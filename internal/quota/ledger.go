// Package quota tracks per-user, per-feature usage tiers and gates batches
// against them.
package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/optiview/adminrelay/internal/models"
)

// TierLimit is one quota row: per user, per feature, a limit and a usage
// counter for each operation kind. Usage never exceeds its limit and is only
// incremented after a confirmed remote success.
type TierLimit struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"index:idx_user_feature,unique"`
	Feature     string `gorm:"index:idx_user_feature,unique"`
	CreateLimit int64
	CreateUsage int64
	UpdateLimit int64
	UpdateUsage int64
	DeleteLimit int64
	DeleteUsage int64
	UpdatedAt   time.Time
}

// ResourceMapping links a user to the remote account/property identifiers the
// orchestrator needs for cache invalidation. The orchestrator only reads these
// rows; ownership of the schema lives elsewhere.
type ResourceMapping struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"index"`
	AccountID  string
	PropertyID string
	CreatedAt  time.Time
}

// ErrNoTier indicates the user has no tier row for the requested feature.
var ErrNoTier = errors.New("no tier limit configured for user and feature")

// Check is the result of a limit pre-check. LedgerID keys the subsequent
// IncrementUsage calls so usage lands on the exact row that was checked.
type Check struct {
	LedgerID     string
	Limit        int64
	Usage        int64
	LimitReached bool
}

// Available returns how many more operations of the checked kind may proceed.
func (c Check) Available() int64 {
	if c.Limit <= c.Usage {
		return 0
	}
	return c.Limit - c.Usage
}

// Ledger reads and mutates TierLimit rows.
type Ledger struct {
	db *gorm.DB
}

// NewLedger wraps an open gorm handle and migrates the quota tables.
func NewLedger(db *gorm.DB) (*Ledger, error) {
	if err := db.AutoMigrate(&TierLimit{}, &ResourceMapping{}); err != nil {
		return nil, fmt.Errorf("migrate quota tables: %w", err)
	}
	return &Ledger{db: db}, nil
}

// CheckLimit reads the tier row for (userID, feature) and reports the limit
// and usage for the requested operation.
func (l *Ledger) CheckLimit(ctx context.Context, userID, feature string, op models.Operation) (Check, error) {
	var row TierLimit
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND feature = ?", userID, feature).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Check{}, ErrNoTier
	}
	if err != nil {
		return Check{}, fmt.Errorf("read tier limit: %w", err)
	}

	limit, usage := row.limitUsage(op)
	return Check{
		LedgerID:     row.ID,
		Limit:        limit,
		Usage:        usage,
		LimitReached: usage >= limit,
	}, nil
}

// IncrementUsage bumps the usage counter for one confirmed remote success.
// The update is a single guarded UPDATE keyed by the ledger row id from
// CheckLimit, so concurrent successes within one batch each land exactly once
// and the counter can never pass its limit. Transient sqlite write contention
// is retried on a short constant backoff.
func (l *Ledger) IncrementUsage(ctx context.Context, ledgerID string, op models.Operation) error {
	usageCol, limitCol := columns(op)

	operation := func() error {
		res := l.db.WithContext(ctx).Model(&TierLimit{}).
			Where("id = ?", ledgerID).
			Where(fmt.Sprintf("%s < %s", usageCol, limitCol)).
			UpdateColumn(usageCol, gorm.Expr(usageCol+" + 1"))
		if res.Error != nil {
			if isBusy(res.Error) {
				return res.Error // retryable
			}
			return backoff.Permanent(res.Error)
		}
		if res.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("usage increment rejected for ledger %s (%s at limit or row missing)", ledgerID, op))
		}
		return nil
	}

	return backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 3), ctx))
}

// SetTier creates or replaces a tier row. Used by provisioning and tests. An
// existing row for the same (user, feature) pair keeps its id.
func (l *Ledger) SetTier(ctx context.Context, row TierLimit) (string, error) {
	if row.ID == "" {
		var existing TierLimit
		err := l.db.WithContext(ctx).
			Where("user_id = ? AND feature = ?", row.UserID, row.Feature).
			First(&existing).Error
		switch {
		case err == nil:
			row.ID = existing.ID
		case errors.Is(err, gorm.ErrRecordNotFound):
			row.ID = uuid.NewString()
		default:
			return "", fmt.Errorf("read tier limit: %w", err)
		}
	}
	err := l.db.WithContext(ctx).Save(&row).Error
	if err != nil {
		return "", fmt.Errorf("save tier limit: %w", err)
	}
	return row.ID, nil
}

// Mappings returns the resource mapping rows for a user.
func (l *Ledger) Mappings(ctx context.Context, userID string) ([]ResourceMapping, error) {
	var rows []ResourceMapping
	err := l.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("read resource mappings: %w", err)
	}
	return rows, nil
}

func (t *TierLimit) limitUsage(op models.Operation) (int64, int64) {
	switch op {
	case models.OpCreate:
		return t.CreateLimit, t.CreateUsage
	case models.OpUpdate:
		return t.UpdateLimit, t.UpdateUsage
	default:
		return t.DeleteLimit, t.DeleteUsage
	}
}

func columns(op models.Operation) (usage, limit string) {
	switch op {
	case models.OpCreate:
		return "create_usage", "create_limit"
	case models.OpUpdate:
		return "update_usage", "update_limit"
	default:
		return "delete_usage", "delete_limit"
	}
}

// isBusy reports whether an error looks like transient sqlite write contention.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
