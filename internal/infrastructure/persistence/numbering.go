package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/erp/custody/internal/domain/shared"
	"gorm.io/gorm"
)

// sequenceDigits is the width of the running number in generated references
const sequenceDigits = 5

// nextSequenceNumber returns "<prefix>-YYYYMM-NNNNN" following the highest number of
// the current month in column. Suffixed references such as transfer successors are skipped.
// Two concurrent callers may compute the same number; the unique index rejects the loser.
func nextSequenceNumber(ctx context.Context, db *gorm.DB, model any, column, prefix string, scope shared.Scope, now time.Time) (string, error) {
	base := fmt.Sprintf("%s-%s-", prefix, now.Format("200601"))
	pattern := base + strings.Repeat("_", sequenceDigits)

	var last []string
	err := db.WithContext(ctx).
		Model(model).
		Where("tenant_id = ? AND "+column+" LIKE ?", scope.TenantID, pattern).
		Order(column + " DESC").
		Limit(1).
		Pluck(column, &last).Error
	if err != nil {
		return "", err
	}

	next := 1
	if len(last) > 0 {
		var n int
		if _, scanErr := fmt.Sscanf(strings.TrimPrefix(last[0], base), "%d", &n); scanErr == nil {
			next = n + 1
		}
	}
	return fmt.Sprintf("%s%0*d", base, sequenceDigits, next), nil
}
