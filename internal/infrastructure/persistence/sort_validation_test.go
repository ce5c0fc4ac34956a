package persistence

import (
	"testing"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestValidateSortOrder(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "DESC"},
		{"asc", "ASC"},
		{"  ASC  ", "ASC"},
		{"desc", "DESC"},
		{"sideways", "DESC"},
		{"ASC; DROP TABLE stock_movements;--", "DESC"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortOrder(tt.input))
		})
	}
}

func TestValidateSortField(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty uses default", "", "created_at"},
		{"whitelisted field", "amount", "amount"},
		{"surrounding whitespace", "  remaining_balance ", "remaining_balance"},
		{"case sensitive", "AMOUNT", "created_at"},
		{"id is only a tie breaker", "id", "created_at"},
		{"unknown column", "reason", "created_at"},
		{"injected statement", "amount; DROP TABLE stock_movements;--", "created_at"},
		{"injected subquery", "amount, (SELECT unit_price FROM stock_variants)", "created_at"},
		{"injected comment", "amount/**/DESC", "created_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortField(tt.input, MovementSortFields, "created_at"))
		})
	}

	assert.Equal(t, "", ValidateSortField("reason", MovementSortFields, ""), "empty default passes through")
}

func TestApplyPaging(t *testing.T) {
	db := setupStockTestDB(t)

	render := func(filter shared.Filter) string {
		return db.ToSQL(func(tx *gorm.DB) *gorm.DB {
			var rows []models.MovementModel
			return applyPaging(tx.Model(&models.MovementModel{}), filter, MovementSortFields, "created_at").Find(&rows)
		})
	}

	t.Run("page bounds and stable tie breaker", func(t *testing.T) {
		sql := render(shared.Filter{Page: 3, PageSize: 20, OrderBy: "amount", OrderDir: "asc"})

		assert.Contains(t, sql, "ORDER BY amount ASC,id ASC")
		assert.Contains(t, sql, "LIMIT 20")
		assert.Contains(t, sql, "OFFSET 40")
	})

	t.Run("rejected field falls back to default", func(t *testing.T) {
		sql := render(shared.Filter{OrderBy: "amount; DROP TABLE stock_movements", OrderDir: "up"})

		assert.Contains(t, sql, "ORDER BY created_at DESC,id DESC")
		assert.NotContains(t, sql, "DROP")
		assert.NotContains(t, sql, "LIMIT")
	})
}
