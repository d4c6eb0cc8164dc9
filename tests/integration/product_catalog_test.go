package integration

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printcraftAPI/internal/design"
	"printcraftAPI/services"
	"printcraftAPI/tests/helpers"
)

// TestSaveAndLoadDesignRoundTrip needs a real database; it skips when
// TEST_DATABASE_URL / DATABASE_URL is unset.
func TestSaveAndLoadDesignRoundTrip(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	ctx := context.Background()
	svc := services.NewProductService(pool)

	productID := uuid.New()
	_, err := pool.Exec(ctx, `
		INSERT INTO products (id, name, slug, category, brand, canvas_width, canvas_height,
		                      price, inventory, image_url, is_active, created_at, updated_at)
		VALUES ($1, 'Test Shirt', 'test-shirt', 'shirts', 'printcraft', 300, 600,
		        2999, 5, '', true, NOW(), NOW())
	`, productID)
	require.NoError(t, err)

	userID := "user_test_roundtrip"

	doc, err := design.Encode([]design.Element{{
		ID:    "el-rt-1",
		Type:  design.TypeText,
		Value: "round trip",
		X:     10,
		Y:     20,
	}})
	require.NoError(t, err)

	saved, err := svc.SaveDesign(ctx, productID.String(), userID, doc)
	require.NoError(t, err)
	require.NotNil(t, saved)

	loaded, err := svc.GetSavedDesign(ctx, productID.String(), userID)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	elements, err := design.Decode(loaded.Design)
	require.NoError(t, err)
	require.Len(t, elements, 1)
	assert.Equal(t, "round trip", elements[0].Value)

	// saving again overwrites, it never duplicates
	saved2, err := svc.SaveDesign(ctx, productID.String(), userID, doc)
	require.NoError(t, err)
	require.NotNil(t, saved2)

	detail, err := svc.GetDetail(ctx, productID.String(), userID)
	require.NoError(t, err)
	assert.Equal(t, 300.0, detail.Product.CanvasWidth)
	require.NotNil(t, detail.SavedDesign)

	// inventory mirror stops at zero
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.DecrementInventory(ctx, productID.String()))
	}
	assert.Error(t, svc.DecrementInventory(ctx, productID.String()))
}
