package sync

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"storebridge/internal/database"
	"storebridge/internal/logger"
	"storebridge/internal/models"
	"storebridge/internal/services/erp"
	"storebridge/internal/store"
)

// fakeClient serves canned ERP responses and counts calls per endpoint.
type fakeClient struct {
	categories  []erp.RawCategory
	products    []erp.RawProduct
	productByID map[int64]*erp.RawProduct
	variants    map[int64][]erp.RawVariant
	stock       map[int64]*erp.StockResponse
	productCats map[int64][]erp.RawCategory
	calls       map[string]int
}

func (f *fakeClient) count(endpoint string) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[endpoint]++
}

func pageOf[T any](items []T, page, pageSize int) []T {
	start := page * pageSize
	if start >= len(items) {
		return nil
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func (f *fakeClient) FetchCategories(_ context.Context, page, pageSize int) ([]erp.RawCategory, error) {
	f.count("categories")
	return pageOf(f.categories, page, pageSize), nil
}

func (f *fakeClient) FetchCategoryByID(_ context.Context, externalID int64) (*erp.RawCategory, error) {
	f.count("category_by_id")
	for i := range f.categories {
		if f.categories[i].ID.String() == strconv.FormatInt(externalID, 10) {
			return &f.categories[i], nil
		}
	}
	return nil, erp.ErrNotFound
}

func (f *fakeClient) FetchProducts(_ context.Context, page, pageSize int) ([]erp.RawProduct, error) {
	f.count("products")
	return pageOf(f.products, page, pageSize), nil
}

func (f *fakeClient) FetchProductByID(_ context.Context, externalID int64) (*erp.RawProduct, error) {
	f.count("product_by_id")
	if p, ok := f.productByID[externalID]; ok {
		return p, nil
	}
	for i := range f.products {
		if f.products[i].ID.String() == strconv.FormatInt(externalID, 10) {
			return &f.products[i], nil
		}
	}
	return nil, erp.ErrNotFound
}

func (f *fakeClient) FetchProductVariants(_ context.Context, externalID int64) ([]erp.RawVariant, error) {
	f.count("variants")
	return f.variants[externalID], nil
}

func (f *fakeClient) FetchProductStock(_ context.Context, externalID int64) (*erp.StockResponse, error) {
	f.count("stock")
	if resp, ok := f.stock[externalID]; ok {
		return resp, nil
	}
	return nil, erp.ErrNotFound
}

func (f *fakeClient) FetchProductCategories(_ context.Context, externalID int64) ([]erp.RawCategory, error) {
	f.count("product_categories")
	return f.productCats[externalID], nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "cache.db")), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return store.New(db, logger.New("error"))
}

func newTestEngine(t *testing.T, client Client) (*Engine, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	engine := NewEngine(client, st, erp.NewTransformer("https://cdn.test/cache"), logger.New("error"), 50)
	return engine, st
}

// fullCatalogClient is the shared fixture: a two-level category tree, a
// parent product with two suffix-named variants, and a standalone
// product.
func fullCatalogClient() *fakeClient {
	return &fakeClient{
		categories: []erp.RawCategory{
			{ID: "1", Label: "Lighting"},
			{ID: "2", Label: "Desk Lamps", FkParent: "1"},
		},
		products: []erp.RawProduct{
			{ID: "100", Ref: "LAMP", Label: "Lamp", Description: "A lamp.", Price: "10"},
			{ID: "101", Ref: "LAMP_C1", Label: "Lamp Red", Description: "A lamp. Color: Red", Price: "12"},
			{ID: "102", Ref: "LAMP_C2", Label: "Lamp Blue", Description: "A lamp. Color: Blue", Price: "15"},
			{ID: "200", Ref: "VASE", Label: "Vase", Price: "8"},
		},
		productByID: map[int64]*erp.RawProduct{
			100: {ID: "100", Ref: "LAMP", Label: "Lamp", Description: "A lamp.", Price: "10",
				Photos: []erp.RawImage{{ID: "900", Filename: "LAMP-front.jpg", Position: "1"}}},
			200: {ID: "200", Ref: "VASE", Label: "Vase", Price: "8"},
		},
		stock: map[int64]*erp.StockResponse{
			100: {StockWarehouses: map[string]erp.RawWarehouseStock{"1": {Real: "5"}}},
			101: {StockWarehouses: map[string]erp.RawWarehouseStock{"1": {Real: "7"}}},
		},
		productCats: map[int64][]erp.RawCategory{
			100: {{ID: "2"}},
			200: {{ID: "1"}},
		},
	}
}

func TestRunFullSync(t *testing.T) {
	client := fullCatalogClient()
	engine, st := newTestEngine(t, client)

	run, err := engine.RunFullSync(context.Background(), "test")
	if err != nil {
		t.Fatalf("full sync: %v", err)
	}
	if run.Status != models.SyncRunCompleted {
		t.Fatalf("expected completed run, got %s", run.Status)
	}
	if run.Errors != 0 {
		t.Fatalf("expected no errors, got %d", run.Errors)
	}
	if run.Categories != 2 || run.Products != 2 || run.Variants != 2 {
		t.Fatalf("unexpected counts: %d categories, %d products, %d variants",
			run.Categories, run.Products, run.Variants)
	}

	// Parent tree resolved to local ids.
	parent, err := st.CategoryByExternalID(1)
	if err != nil || parent == nil {
		t.Fatalf("missing parent category: %v", err)
	}
	child, err := st.CategoryByExternalID(2)
	if err != nil || child == nil {
		t.Fatalf("missing child category: %v", err)
	}
	if child.ParentID == nil || *child.ParentID != parent.ID {
		t.Fatalf("expected child parent_id %d, got %v", parent.ID, child.ParentID)
	}

	// Suffix-named products became variants, not products.
	if p, _ := st.ProductByExternalID(101); p != nil {
		t.Fatalf("LAMP_C1 should not be a product row")
	}
	lamp, err := st.ProductByExternalID(100)
	if err != nil || lamp == nil {
		t.Fatalf("missing lamp product: %v", err)
	}
	variants, err := st.VariantsByProductID(lamp.ID)
	if err != nil {
		t.Fatalf("list variants: %v", err)
	}
	if len(variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(variants))
	}
	var red *models.Variant
	for i := range variants {
		if variants[i].ExternalID == 101 {
			red = &variants[i]
		}
	}
	if red == nil {
		t.Fatalf("variant 101 not found")
	}
	if red.PriceModifier != 2 {
		t.Fatalf("expected price modifier 2, got %v", red.PriceModifier)
	}
	if red.Attributes["Color"] != "Red" {
		t.Fatalf("expected inferred attribute Color=Red, got %v", red.Attributes)
	}

	// Category links follow the live membership list.
	linkIDs, err := st.CategoryIDsForProduct(lamp.ID)
	if err != nil {
		t.Fatalf("list links: %v", err)
	}
	if len(linkIDs) != 1 || linkIDs[0] != child.ID {
		t.Fatalf("expected lamp linked to %d, got %v", child.ID, linkIDs)
	}

	// One base image plus a copy inherited by each variant.
	if run.Images != 3 {
		t.Fatalf("expected 3 image rows, got %d", run.Images)
	}
	base, err := st.BaseImagesForProduct(lamp.ID)
	if err != nil || len(base) != 1 {
		t.Fatalf("expected 1 base image, got %d (%v)", len(base), err)
	}
	if base[0].CDNURL != "https://cdn.test/cache/LAMP/LAMP-front.jpg" {
		t.Fatalf("unexpected cdn url %q", base[0].CDNURL)
	}
	for _, v := range variants {
		hasImages, err := st.VariantHasImages(v.ID)
		if err != nil || !hasImages {
			t.Fatalf("variant %d should have inherited the base image (%v)", v.ExternalID, err)
		}
	}

	// Stock exists for the product and the variant that report it.
	if run.Stock != 2 {
		t.Fatalf("expected 2 stock rows, got %d", run.Stock)
	}
	var levels []models.StockLevel
	if err := st.DB().Where("product_id = ?", lamp.ID).Order("id ASC").Find(&levels).Error; err != nil {
		t.Fatalf("list stock: %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("expected 2 stock rows for lamp, got %d", len(levels))
	}
	for _, level := range levels {
		if level.VariantID == nil && level.Quantity != 5 {
			t.Fatalf("expected base stock 5, got %d", level.Quantity)
		}
		if level.VariantID != nil && level.Quantity != 7 {
			t.Fatalf("expected variant stock 7, got %d", level.Quantity)
		}
		if level.LastCheckedAt.IsZero() {
			t.Fatalf("last_checked_at not set")
		}
	}
}

func TestRunFullSyncIsIdempotent(t *testing.T) {
	client := fullCatalogClient()
	engine, st := newTestEngine(t, client)
	ctx := context.Background()

	if _, err := engine.RunFullSync(ctx, "test"); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if _, err := engine.RunFullSync(ctx, "test"); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	counts := map[string]interface{}{
		"products":       &models.Product{},
		"variants":       &models.Variant{},
		"images":         &models.ProductImage{},
		"stock levels":   &models.StockLevel{},
		"categories":     &models.Category{},
		"category links": &models.ProductCategoryLink{},
	}
	want := map[string]int64{
		"products": 2, "variants": 2, "images": 3,
		"stock levels": 2, "categories": 2, "category links": 2,
	}
	for name, model := range counts {
		var n int64
		if err := st.DB().Model(model).Count(&n).Error; err != nil {
			t.Fatalf("count %s: %v", name, err)
		}
		if n != want[name] {
			t.Fatalf("expected %d %s after replay, got %d", want[name], name, n)
		}
	}
}

func TestRunFullSyncConvergesOnUpstreamEdit(t *testing.T) {
	client := fullCatalogClient()
	engine, st := newTestEngine(t, client)
	ctx := context.Background()

	if _, err := engine.RunFullSync(ctx, "test"); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	client.products[0].Label = "Lamp Deluxe"
	client.products[0].Price = "11"
	if _, err := engine.RunFullSync(ctx, "test"); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	lamp, err := st.ProductByExternalID(100)
	if err != nil || lamp == nil {
		t.Fatalf("missing lamp: %v", err)
	}
	if lamp.Name != "Lamp Deluxe" || lamp.Price != 11 {
		t.Fatalf("row did not converge: name %q price %v", lamp.Name, lamp.Price)
	}

	var n int64
	if err := st.DB().Model(&models.Product{}).Where("external_id = ?", 100).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected a single row for external id 100, got %d", n)
	}
}

func TestVariantFullReplacePrunesStale(t *testing.T) {
	client := fullCatalogClient()
	client.products = append(client.products,
		erp.RawProduct{ID: "103", Ref: "LAMP_C3", Label: "Lamp Green", Description: "A lamp. Color: Green", Price: "13"})
	engine, st := newTestEngine(t, client)
	ctx := context.Background()

	if _, err := engine.RunFullSync(ctx, "test"); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	lamp, _ := st.ProductByExternalID(100)
	variants, _ := st.VariantsByProductID(lamp.ID)
	if len(variants) != 3 {
		t.Fatalf("expected 3 variants, got %d", len(variants))
	}
	var prunedID uint
	for _, v := range variants {
		if v.ExternalID == 102 {
			prunedID = v.ID
		}
	}

	// Variant 102 disappears upstream.
	var remaining []erp.RawProduct
	for _, p := range client.products {
		if p.ID.String() != "102" {
			remaining = append(remaining, p)
		}
	}
	client.products = remaining

	if _, err := engine.RunFullSync(ctx, "test"); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	variants, _ = st.VariantsByProductID(lamp.ID)
	got := make(map[int64]bool, len(variants))
	for _, v := range variants {
		got[v.ExternalID] = true
	}
	if len(variants) != 2 || !got[101] || !got[103] {
		t.Fatalf("expected variants {101, 103}, got %v", got)
	}

	// Rows owned by the pruned variant went with it.
	var n int64
	if err := st.DB().Model(&models.ProductImage{}).Where("variant_id = ?", prunedID).Count(&n).Error; err != nil {
		t.Fatalf("count orphan images: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected pruned variant's images gone, found %d", n)
	}
}

func TestCategoryLinkRebuild(t *testing.T) {
	client := fullCatalogClient()
	engine, st := newTestEngine(t, client)
	ctx := context.Background()

	if _, err := engine.RunFullSync(ctx, "test"); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	// Lamp moves from Desk Lamps to Lighting upstream.
	client.productCats[100] = []erp.RawCategory{{ID: "1"}}
	if _, err := engine.RunFullSync(ctx, "test"); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	lamp, _ := st.ProductByExternalID(100)
	lighting, _ := st.CategoryByExternalID(1)
	linkIDs, err := st.CategoryIDsForProduct(lamp.ID)
	if err != nil {
		t.Fatalf("list links: %v", err)
	}
	if len(linkIDs) != 1 || linkIDs[0] != lighting.ID {
		t.Fatalf("expected single link to %d, got %v", lighting.ID, linkIDs)
	}
}

func TestSyncProductByIDUsesVariantAPI(t *testing.T) {
	client := &fakeClient{
		productByID: map[int64]*erp.RawProduct{
			300: {ID: "300", Ref: "CHAIR", Label: "Chair", Price: "40"},
		},
		variants: map[int64][]erp.RawVariant{
			300: {
				{ID: "310", Ref: "CHAIR_C1", PriceVar: "5",
					Attributes: json.RawMessage(`[{"code":"fabric","value":"wool"}]`)},
			},
		},
		stock: map[int64]*erp.StockResponse{
			300: {StockWarehouses: map[string]erp.RawWarehouseStock{"2": {Real: "3"}}},
			310: {StockWarehouses: map[string]erp.RawWarehouseStock{"2": {Real: "1"}}},
		},
	}
	engine, st := newTestEngine(t, client)

	if err := engine.SyncProductByID(context.Background(), 300); err != nil {
		t.Fatalf("sync product: %v", err)
	}

	chair, err := st.ProductByExternalID(300)
	if err != nil || chair == nil {
		t.Fatalf("missing chair: %v", err)
	}
	variants, err := st.VariantsByProductID(chair.ID)
	if err != nil || len(variants) != 1 {
		t.Fatalf("expected 1 variant, got %d (%v)", len(variants), err)
	}
	if variants[0].PriceModifier != 5 || variants[0].Attributes["fabric"] != "wool" {
		t.Fatalf("unexpected variant %+v", variants[0])
	}

	// Stock was pulled for both the product and its variant.
	var n int64
	if err := st.DB().Model(&models.StockLevel{}).Count(&n).Error; err != nil {
		t.Fatalf("count stock: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 stock rows, got %d", n)
	}
}

func TestDeleteProductCascades(t *testing.T) {
	client := fullCatalogClient()
	engine, st := newTestEngine(t, client)
	ctx := context.Background()

	if _, err := engine.RunFullSync(ctx, "test"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := engine.DeleteProduct(ctx, 100); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if p, _ := st.ProductByExternalID(100); p != nil {
		t.Fatalf("product still present after delete")
	}
	for name, model := range map[string]interface{}{
		"variants":     &models.Variant{},
		"images":       &models.ProductImage{},
		"stock levels": &models.StockLevel{},
	} {
		var n int64
		if err := st.DB().Model(model).Count(&n).Error; err != nil {
			t.Fatalf("count %s: %v", name, err)
		}
		if n != 0 {
			t.Fatalf("expected no %s after cascade, got %d", name, n)
		}
	}

	// Deleting again is a no-op.
	if err := engine.DeleteProduct(ctx, 100); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
}

func TestSyncProductByIDMissingUpstreamIsNoOp(t *testing.T) {
	engine, st := newTestEngine(t, &fakeClient{})

	// An event arriving after the product was deleted upstream.
	if err := engine.SyncProductByID(context.Background(), 404); err != nil {
		t.Fatalf("expected vanished product to be skipped, got %v", err)
	}
	if p, _ := st.ProductByExternalID(404); p != nil {
		t.Fatalf("no row should be created for a vanished product")
	}

	if err := engine.SyncCategory(context.Background(), 404); err != nil {
		t.Fatalf("expected vanished category to be skipped, got %v", err)
	}
}

func TestSyncStockForUnknownProductIsNoOp(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeClient{})
	if err := engine.SyncStockForProduct(context.Background(), 999); err != nil {
		t.Fatalf("expected unknown product to be skipped, got %v", err)
	}
}
