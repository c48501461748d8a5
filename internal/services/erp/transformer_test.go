package erp

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTransformProductSlugDerivation(t *testing.T) {
	tr := NewTransformer("https://cdn.example.com/cache/")

	p := tr.TransformProduct(&RawProduct{ID: "3", Ref: "Widget #1"})
	if p.Slug != "widget-1" {
		t.Fatalf("expected slug widget-1, got %q", p.Slug)
	}

	p = tr.TransformProduct(&RawProduct{ID: "7"})
	if p.Slug != "product-7" {
		t.Fatalf("expected fallback slug product-7, got %q", p.Slug)
	}
}

func TestTransformProductPriceAndActive(t *testing.T) {
	tr := NewTransformer("https://cdn.example.com/cache/")

	p := tr.TransformProduct(&RawProduct{ID: "1", Ref: "A", Price: "19.90", StatusToSell: "1"})
	if p.Price != 19.90 {
		t.Fatalf("expected price 19.90, got %v", p.Price)
	}
	if !p.IsActive {
		t.Fatalf("expected product to be active")
	}

	p = tr.TransformProduct(&RawProduct{ID: "2", Ref: "B", Price: "not-a-price", StatusToSell: "0"})
	if p.Price != 0 {
		t.Fatalf("expected malformed price to default to 0, got %v", p.Price)
	}
	if p.IsActive {
		t.Fatalf("expected status_tosell=0 to deactivate the product")
	}

	// Absent flag means sellable.
	p = tr.TransformProduct(&RawProduct{ID: "3", Ref: "C"})
	if !p.IsActive {
		t.Fatalf("expected product without status flag to be active")
	}
}

func TestTransformProductAttributesFromExtrafields(t *testing.T) {
	tr := NewTransformer("https://cdn.example.com/cache/")

	p := tr.TransformProduct(&RawProduct{
		ID:           "1",
		Ref:          "A",
		ArrayOptions: json.RawMessage(`{"options_brand": "Acme", "options_material": "", "weight": "2kg"}`),
	})
	if p.Attributes["brand"] != "Acme" {
		t.Fatalf("expected prefix stripped from extrafield key, got %v", p.Attributes)
	}
	if _, ok := p.Attributes["material"]; ok {
		t.Fatalf("expected empty extrafields dropped, got %v", p.Attributes)
	}
	if p.Attributes["weight"] != "2kg" {
		t.Fatalf("expected unprefixed key kept as-is, got %v", p.Attributes)
	}

	// The ERP sends an empty array instead of an object when no
	// extrafields are set.
	p = tr.TransformProduct(&RawProduct{ID: "2", Ref: "B", ArrayOptions: json.RawMessage(`[]`)})
	if len(p.Attributes) != 0 {
		t.Fatalf("expected no attributes, got %v", p.Attributes)
	}
}

func TestTransformCategoryNameFallbackAndTimestamps(t *testing.T) {
	tr := NewTransformer("https://cdn.example.com/cache/")

	c := tr.TransformCategory(&RawCategory{ID: "5", Name: "Lamps", FkParent: "2", DateCreation: "1700000000"})
	if c.Name != "Lamps" {
		t.Fatalf("expected name fallback to second field, got %q", c.Name)
	}
	if c.ParentExternalID == nil || *c.ParentExternalID != 2 {
		t.Fatalf("expected parent external id 2, got %v", c.ParentExternalID)
	}
	want := time.Unix(1700000000, 0).UTC()
	if c.ExternalCreated == nil || !c.ExternalCreated.Equal(want) {
		t.Fatalf("expected created %v, got %v", want, c.ExternalCreated)
	}

	c = tr.TransformCategory(&RawCategory{ID: "6", Label: "Vases", TMS: "garbage"})
	if c.Name != "Vases" {
		t.Fatalf("expected label to win, got %q", c.Name)
	}
	if c.ExternalUpdated != nil {
		t.Fatalf("expected garbage timestamp to become nil, got %v", c.ExternalUpdated)
	}
	if c.ParentExternalID != nil {
		t.Fatalf("expected no parent, got %v", c.ParentExternalID)
	}
}

func TestTransformVariantAttributes(t *testing.T) {
	tr := NewTransformer("https://cdn.example.com/cache/")

	// Pair-array encoding.
	v := tr.TransformVariant(&RawVariant{
		ID:         "10",
		Ref:        "LAMP_C1",
		Attributes: json.RawMessage(`[{"code":"color","value":"red"},{"option":"size","value":"XL"}]`),
	}, 1)
	if v.Attributes["color"] != "red" || v.Attributes["size"] != "XL" {
		t.Fatalf("unexpected attributes from pair array: %v", v.Attributes)
	}

	// Already-flat object encoding.
	v = tr.TransformVariant(&RawVariant{
		ID:         "11",
		Ref:        "LAMP_C2",
		Attributes: json.RawMessage(`{"material":"brass"}`),
	}, 1)
	if v.Attributes["material"] != "brass" {
		t.Fatalf("unexpected attributes from object: %v", v.Attributes)
	}

	// Missing SKU is synthesized from the parent ref.
	v = tr.TransformVariant(&RawVariant{ID: "12", ParentRef: "LAMP"}, 1)
	if v.SKUVariant != "LAMP-var-12" {
		t.Fatalf("expected synthesized sku LAMP-var-12, got %q", v.SKUVariant)
	}
}

func TestTransformProductImageCDNURL(t *testing.T) {
	tr := NewTransformer("https://cdn.example.com/cache/")

	productID := uint(4)
	img := tr.TransformProductImage(&RawImage{ID: "77", Position: "2"}, &productID, nil, "LAMP-front.jpg")
	if img.CDNURL != "https://cdn.example.com/cache/LAMP/LAMP-front.jpg" {
		t.Fatalf("unexpected cdn url %q", img.CDNURL)
	}
	if img.DisplayOrder != 2 {
		t.Fatalf("expected display order 2, got %d", img.DisplayOrder)
	}
	if img.AltText != "LAMP-front.jpg" {
		t.Fatalf("expected alt fallback to filename, got %q", img.AltText)
	}

	// No dash: the whole filename doubles as the directory.
	img = tr.TransformProductImage(&RawImage{}, &productID, nil, "solo.jpg")
	if img.CDNURL != "https://cdn.example.com/cache/solo.jpg/solo.jpg" {
		t.Fatalf("unexpected cdn url %q", img.CDNURL)
	}
}

func TestTransformStockLevelGracefulDegradation(t *testing.T) {
	tr := NewTransformer("https://cdn.example.com/cache/")

	productID := uint(9)
	level := tr.TransformStockLevel(StockEntry{}, &productID, nil)
	if level.Quantity != 0 {
		t.Fatalf("expected quantity 0, got %d", level.Quantity)
	}
	if level.WarehouseExternalID != "default" {
		t.Fatalf("expected warehouse default, got %q", level.WarehouseExternalID)
	}

	level = tr.TransformStockLevel(StockEntry{Qty: "42.0", WarehouseID: "3", TMS: "1700000500"}, &productID, nil)
	if level.Quantity != 42 {
		t.Fatalf("expected quantity 42, got %d", level.Quantity)
	}
	if level.WarehouseExternalID != "3" {
		t.Fatalf("expected warehouse 3, got %q", level.WarehouseExternalID)
	}
	if level.ExternalUpdated == nil {
		t.Fatalf("expected external timestamp to parse")
	}
}

func TestFlexStringAcceptsNumbers(t *testing.T) {
	var p RawProduct
	if err := json.Unmarshal([]byte(`{"id": 42, "price": 10.5, "ref": "X"}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.ID.String() != "42" {
		t.Fatalf("expected id 42, got %q", p.ID.String())
	}
	if p.Price.String() != "10.5" {
		t.Fatalf("expected price 10.5, got %q", p.Price.String())
	}
}
