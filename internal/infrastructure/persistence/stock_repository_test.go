package persistence

import (
	"context"
	"testing"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormPartRepository(t *testing.T) {
	ctx := context.Background()
	db := setupStockTestDB(t)
	parts := NewGormPartRepository(db)
	variants := NewGormVariantRepository(db)

	part := newTestPart(t, "P-100")
	require.NoError(t, parts.Create(ctx, part))

	t.Run("finds by part number and ID", func(t *testing.T) {
		found, err := parts.FindByPartNo(ctx, "P-100")
		require.NoError(t, err)
		assert.Equal(t, part.ID, found.ID)

		found, err = parts.FindByIDForUpdate(ctx, part.ID)
		require.NoError(t, err)
		assert.Equal(t, "Part P-100", found.Name)
	})

	t.Run("missing part maps to not found", func(t *testing.T) {
		_, err := parts.FindByPartNo(ctx, "NOPE")
		assert.ErrorIs(t, err, shared.ErrNotFound)
		_, err = parts.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("save persists refreshed totals", func(t *testing.T) {
		v1 := newTestVariant(part.ID, "V1", "2.00", "4.00", day(0))
		v2 := newTestVariant(part.ID, "V2", "3.00", "6.00", day(1))
		require.NoError(t, variants.Create(ctx, v1))
		require.NoError(t, variants.Create(ctx, v2))

		current, err := parts.FindByID(ctx, part.ID)
		require.NoError(t, err)
		require.True(t, current.Refresh([]stock.Variant{*v1, *v2}))
		require.NoError(t, parts.Save(ctx, current))

		stored, err := parts.FindByID(ctx, part.ID)
		require.NoError(t, err)
		assertDecimal(t, "5.00", stored.Totals().Available)
		assertDecimal(t, "5.20", stored.Totals().AveragePrice)
		assert.Equal(t, current.Version, stored.Version)
	})

	t.Run("stale version is a concurrency conflict", func(t *testing.T) {
		stale, err := parts.FindByID(ctx, part.ID)
		require.NoError(t, err)
		err = parts.Save(ctx, stale)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})

	t.Run("duplicate part number", func(t *testing.T) {
		err := parts.Create(ctx, newTestPart(t, "P-100"))
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})

	t.Run("lists part numbers in order", func(t *testing.T) {
		require.NoError(t, parts.Create(ctx, newTestPart(t, "P-050")))

		partNos, err := parts.ListPartNos(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"P-050", "P-100"}, partNos)
	})

	t.Run("delete", func(t *testing.T) {
		other := newTestPart(t, "P-200")
		require.NoError(t, parts.Create(ctx, other))
		require.NoError(t, parts.Delete(ctx, other.ID))
		assert.ErrorIs(t, parts.Delete(ctx, other.ID), shared.ErrNotFound)
	})
}

func TestGormVariantRepository(t *testing.T) {
	ctx := context.Background()
	db := setupStockTestDB(t)
	parts := NewGormPartRepository(db)
	repo := NewGormVariantRepository(db)

	part := newTestPart(t, "P-100")
	require.NoError(t, parts.Create(ctx, part))
	newer := newTestVariant(part.ID, "NEW", "3.00", "6.00", day(5))
	older := newTestVariant(part.ID, "OLD", "2.00", "4.00", day(1))
	require.NoError(t, repo.Create(ctx, newer))
	require.NoError(t, repo.Create(ctx, older))

	t.Run("scan codes are unique", func(t *testing.T) {
		err := repo.Create(ctx, newTestVariant(part.ID, "OLD", "1", "1", day(2)))
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, shared.CodeDuplicateScanCode, domainErr.Code)

		exists, err := repo.ExistsByScanCode(ctx, "OLD")
		require.NoError(t, err)
		assert.True(t, exists)
		exists, err = repo.ExistsByScanCode(ctx, "NONE")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("lists by received date", func(t *testing.T) {
		list, err := repo.FindByPartID(ctx, part.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "OLD", list[0].ScanCode)
		assert.Equal(t, "NEW", list[1].ScanCode)
		assert.True(t, list[0].ReceivedDate.Equal(day(1)))

		count, err := repo.CountByPartID(ctx, part.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("locking list is in ID order", func(t *testing.T) {
		list, err := repo.FindByPartIDForUpdate(ctx, part.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Less(t, list[0].ID.String(), list[1].ID.String())
	})

	t.Run("save round trips quantities with version check", func(t *testing.T) {
		v, err := repo.FindByScanCode(ctx, "OLD")
		require.NoError(t, err)
		require.NoError(t, v.Transfer(stock.BucketAvailable, stock.BucketUsing, dec("0.34")))
		v.IncrementVersion()
		require.NoError(t, repo.Save(ctx, v))

		stored, err := repo.FindByIDForUpdate(ctx, v.ID)
		require.NoError(t, err)
		assertDecimal(t, "1.66", stored.AvailableQty)
		assertDecimal(t, "0.34", stored.UsingQty)
		assert.Equal(t, v.Version, stored.Version)

		assert.ErrorIs(t, repo.Save(ctx, stored), shared.ErrConcurrencyConflict)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, newer.ID))
		_, err := repo.FindByID(ctx, newer.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, newer.ID), shared.ErrNotFound)
	})
}

func TestGormMovementRepository(t *testing.T) {
	ctx := context.Background()
	db := setupStockTestDB(t)
	repo := NewGormMovementRepository(db)

	v := newTestVariant(uuid.New(), "V1", "10.00", "1.00", day(0))
	for i := 0; i < 3; i++ {
		require.NoError(t, v.Transfer(stock.BucketAvailable, stock.BucketUsing, dec("1")))
		entry, err := stock.NewMovementEntry(v, stock.DirectionOut, stock.BucketAvailable, dec("1"), stock.RefProduction)
		require.NoError(t, err)
		entry.CreatedAt = day(i)
		require.NoError(t, repo.Append(ctx, entry.WithReference("DEPT-1")))
	}

	t.Run("pages newest first", func(t *testing.T) {
		filter := shared.DefaultFilter()
		filter.PageSize = 2
		page, err := repo.FindByVariantID(ctx, v.ID, filter)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assertDecimal(t, "7.00", page[0].RemainingBalance)
		assertDecimal(t, "8.00", page[1].RemainingBalance)
		assert.Equal(t, "DEPT-1", page[0].ReferenceID)

		filter.Page = 2
		page, err = repo.FindByVariantID(ctx, v.ID, filter)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assertDecimal(t, "9.00", page[0].RemainingBalance)
	})

	t.Run("ascending order and unknown sort field", func(t *testing.T) {
		filter := shared.DefaultFilter()
		filter.OrderBy = "reason; DROP TABLE stock_movements"
		filter.OrderDir = "asc"
		entries, err := repo.FindByPartID(ctx, v.PartID, filter)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assertDecimal(t, "9.00", entries[0].RemainingBalance)
	})

	t.Run("count", func(t *testing.T) {
		count, err := repo.CountByVariantID(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})
}

func TestGormDestinationRepositories(t *testing.T) {
	ctx := context.Background()
	db := setupStockTestDB(t)
	v := newTestVariant(uuid.New(), "V1", "10.00", "1.00", day(0))

	t.Run("production items", func(t *testing.T) {
		repo := NewGormProductionItemRepository(db)
		item := stock.NewProductionItem(v, "DEPT-1")
		item.Add(dec("2.5"))
		require.NoError(t, repo.Create(ctx, item))

		found, err := repo.FindByVariantAndDepartment(ctx, v.ID, "DEPT-1")
		require.NoError(t, err)
		assertDecimal(t, "2.50", found.MoveQty)

		require.NoError(t, found.Release("production item", dec("1")))
		require.NoError(t, repo.Save(ctx, found))
		stored, err := repo.FindByID(ctx, item.ID)
		require.NoError(t, err)
		assertDecimal(t, "1.50", stored.MoveQty)

		err = repo.Create(ctx, stock.NewProductionItem(v, "DEPT-1"))
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

		list, err := repo.FindByVariantID(ctx, v.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		require.NoError(t, repo.Delete(ctx, item.ID))
		_, err = repo.FindByVariantAndDepartment(ctx, v.ID, "DEPT-1")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("sale items", func(t *testing.T) {
		repo := NewGormSaleItemRepository(db)
		item := stock.NewSaleItem(v, "SO-1")
		item.Add(dec("1"))
		require.NoError(t, repo.Create(ctx, item))

		found, err := repo.FindByVariantAndSale(ctx, v.ID, "SO-1")
		require.NoError(t, err)
		assert.Equal(t, item.ID, found.ID)

		list, err := repo.FindByVariantID(ctx, v.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		require.NoError(t, repo.Delete(ctx, item.ID))
		assert.ErrorIs(t, repo.Save(ctx, item), shared.ErrNotFound)
	})
}

func TestGormBMRTemplateRepository(t *testing.T) {
	ctx := context.Background()
	db := setupStockTestDB(t)
	repo := NewGormBMRTemplateRepository(db)
	variantA, variantB := uuid.New(), uuid.New()
	partID := uuid.New()

	line, err := stock.NewBMRTemplateLine("TPL-1", "P-100")
	require.NoError(t, err)
	_, err = line.Merge(variantA, partID, stock.ContributionDetail{Barcode: "A", UnitPrice: dec("4.00"), Quantity: dec("2")})
	require.NoError(t, err)
	second, err := line.Merge(variantB, partID, stock.ContributionDetail{Barcode: "B", UnitPrice: dec("6.00"), Quantity: dec("3")})
	require.NoError(t, err)
	secondID := second.ID
	require.NoError(t, repo.SaveLine(ctx, line))

	t.Run("loads line with contributions in position order", func(t *testing.T) {
		found, err := repo.FindLine(ctx, "TPL-1", "P-100")
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, found.Barcodes)
		assertDecimal(t, "5.00", found.Quantity)
		assertDecimal(t, "5.20", found.AveragePrice)
		assert.Equal(t, line.Version, found.Version)

		byContribution, err := repo.FindLineByContributionID(ctx, secondID)
		require.NoError(t, err)
		assert.Equal(t, line.ID, byContribution.ID)

		contributions, err := repo.FindContributionsByVariantID(ctx, variantB)
		require.NoError(t, err)
		require.Len(t, contributions, 1)
		assert.Equal(t, "B", contributions[0].Barcode)
	})

	t.Run("settled contributions are removed on save", func(t *testing.T) {
		current, err := repo.FindLineByID(ctx, line.ID)
		require.NoError(t, err)
		_, settled, err := current.Release(secondID, dec("3"))
		require.NoError(t, err)
		require.True(t, settled)
		_, err = current.Merge(variantA, partID, stock.ContributionDetail{Barcode: "A", UnitPrice: dec("5.00"), Quantity: dec("1")})
		require.NoError(t, err)
		require.NoError(t, repo.SaveLine(ctx, current))

		stored, err := repo.FindLineByID(ctx, line.ID)
		require.NoError(t, err)
		require.Len(t, stored.Contributions, 1)
		assertDecimal(t, "3.00", stored.Quantity)
		assertDecimal(t, "5.00", stored.AveragePrice)

		_, err = repo.FindLineByContributionID(ctx, secondID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("stale line is a concurrency conflict", func(t *testing.T) {
		assert.ErrorIs(t, repo.SaveLine(ctx, line), shared.ErrConcurrencyConflict)
	})

	t.Run("lists template lines by part number", func(t *testing.T) {
		other, err := stock.NewBMRTemplateLine("TPL-1", "P-050")
		require.NoError(t, err)
		_, err = other.Merge(variantA, partID, stock.ContributionDetail{Barcode: "C", UnitPrice: dec("1"), Quantity: dec("1")})
		require.NoError(t, err)
		require.NoError(t, repo.SaveLine(ctx, other))

		lines, err := repo.FindLinesByTemplate(ctx, "TPL-1")
		require.NoError(t, err)
		require.Len(t, lines, 2)
		assert.Equal(t, "P-050", lines[0].PartNo)
		assert.Equal(t, "P-100", lines[1].PartNo)
	})

	t.Run("delete line removes contributions", func(t *testing.T) {
		require.NoError(t, repo.DeleteLine(ctx, line.ID))
		_, err := repo.FindLineByID(ctx, line.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		contributions, err := repo.FindContributionsByVariantID(ctx, variantB)
		require.NoError(t, err)
		assert.Empty(t, contributions)
		assert.ErrorIs(t, repo.DeleteLine(ctx, line.ID), shared.ErrNotFound)
	})
}
