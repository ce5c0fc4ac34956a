package stock

import (
	"errors"
	"testing"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestination_Validate(t *testing.T) {
	tests := []struct {
		name    string
		dest    Destination
		wantErr bool
	}{
		{"production with department", Destination{Kind: DestinationProduction, DepartmentID: "DeptA"}, false},
		{"sales with reference", Destination{Kind: DestinationSales, SaleRef: "SO-1"}, false},
		{"bmr with template", Destination{Kind: DestinationBMR, TemplateID: "TPL-1"}, false},
		{"production without department", Destination{Kind: DestinationProduction, SaleRef: "SO-1"}, true},
		{"unknown kind", Destination{Kind: "scrap", DepartmentID: "DeptA"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dest.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDestinationKind_References(t *testing.T) {
	assert.Equal(t, RefProduction, DestinationProduction.MoveReference())
	assert.Equal(t, RefProductionReturn, DestinationProduction.ReturnReference())
	assert.Equal(t, RefSales, DestinationSales.MoveReference())
	assert.Equal(t, RefSalesReturn, DestinationSales.ReturnReference())
	assert.Equal(t, RefBMRProcessing, DestinationBMR.MoveReference())
	assert.Equal(t, RefBMRReturn, DestinationBMR.ReturnReference())
}

func TestAllocation(t *testing.T) {
	v := createTestVariant(uuid.New(), "V1", "10.00", "5.00", day(0))
	item := NewProductionItem(&v, " DeptA ")

	assert.Equal(t, "DeptA", item.DepartmentID)
	assert.Equal(t, v.PartID, item.PartID)

	item.Add(dec("4"))
	item.Add(dec("0.005"))
	assertDecimal(t, "4.01", item.MoveQty)

	err := item.Release("production item", dec("5"))
	assert.True(t, errors.Is(err, shared.ErrInsufficientQuantity))
	assertDecimal(t, "4.01", item.MoveQty)

	require.NoError(t, item.Release("production item", dec("4.01")))
	assert.True(t, item.IsSettled())
}

func TestNewSaleItem(t *testing.T) {
	v := createTestVariant(uuid.New(), "V1", "10.00", "5.00", day(0))
	item := NewSaleItem(&v, "SO-1")

	assert.Equal(t, v.ID, item.VariantID)
	assert.Equal(t, "SO-1", item.SaleRef)
	assert.True(t, item.IsSettled())
}
