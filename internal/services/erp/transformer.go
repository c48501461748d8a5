package erp

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"storebridge/internal/models"
)

// Transformer maps raw ERP objects into local cache rows. Every method
// is pure and total: malformed input degrades to zero values, it never
// fails.
type Transformer struct {
	cdnBaseURL string
}

func NewTransformer(cdnBaseURL string) *Transformer {
	return &Transformer{cdnBaseURL: strings.TrimRight(cdnBaseURL, "/")}
}

// TransformCategory converts an ERP category to its local row shape.
// The parent reference is left unresolved; the engine maps it to a
// local id.
func (t *Transformer) TransformCategory(raw *RawCategory) *models.Category {
	name := raw.Label
	if name == "" {
		name = raw.Name
	}

	return &models.Category{
		ExternalID:       parseID(raw.ID),
		Name:             name,
		Description:      raw.Description,
		ParentExternalID: parseOptionalID(raw.FkParent, raw.ParentID),
		ExternalCreated:  parseEpoch(raw.DateCreation),
		ExternalUpdated:  parseEpoch(raw.TMS),
	}
}

// TransformProduct converts an ERP product to its local row shape.
func (t *Transformer) TransformProduct(raw *RawProduct) *models.Product {
	externalID := parseID(raw.ID)

	name := raw.Label
	if name == "" {
		name = raw.Name
	}

	longDescription := raw.NotePublic
	if longDescription == "" {
		longDescription = raw.LongDescription
	}

	// Active unless the ERP explicitly flags the product as not for
	// sale.
	isActive := true
	if s := raw.StatusToSell.String(); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v != 1 {
			isActive = false
		}
	}

	return &models.Product{
		ExternalID:      externalID,
		SKU:             raw.Ref,
		Name:            name,
		Description:     raw.Description,
		LongDescription: longDescription,
		Price:           parseFloat(raw.Price),
		IsActive:        isActive,
		Slug:            slugify(raw.Ref, externalID),
		Attributes:      productAttributes(raw.ArrayOptions),
		ExternalCreated: parseEpoch(raw.DateCreation),
		ExternalUpdated: parseEpoch(raw.TMS),
	}
}

// TransformVariant converts an ERP variant, attached to an already
// resolved local parent product.
func (t *Transformer) TransformVariant(raw *RawVariant, productID uint) *models.Variant {
	externalID := parseID(raw.ID)

	sku := raw.Ref
	if sku == "" {
		sku = fmt.Sprintf("%s-var-%d", raw.ParentRef, externalID)
	}

	return &models.Variant{
		ExternalID:      externalID,
		ProductID:       productID,
		SKUVariant:      sku,
		PriceModifier:   parseFloat(raw.PriceVar),
		Attributes:      normalizeAttributes(raw.Attributes),
		ExternalCreated: parseEpoch(raw.DateCreation),
		ExternalUpdated: parseEpoch(raw.TMS),
	}
}

// TransformProductImage converts one image entry. The CDN URL is derived
// from the filename: the product's ref is its first dash-delimited
// segment and doubles as the CDN directory.
func (t *Transformer) TransformProductImage(raw *RawImage, productID, variantID *uint, filename string) *models.ProductImage {
	sanitized := sanitizeFilename(filename)

	alt := raw.Alt
	if alt == "" {
		alt = raw.Label
	}
	if alt == "" {
		alt = sanitized
	}

	externalImageID := raw.ID.String()
	if externalImageID == "" {
		externalImageID = raw.Ref
	}

	displayOrder := 0
	if v, err := strconv.Atoi(raw.Position.String()); err == nil {
		displayOrder = v
	}

	return &models.ProductImage{
		ProductID:        productID,
		VariantID:        variantID,
		CDNURL:           t.cdnURL(sanitized),
		AltText:          alt,
		DisplayOrder:     displayOrder,
		IsThumbnail:      raw.IsThumbnail,
		ExternalImageID:  externalImageID,
		OriginalFilename: filename,
		OriginalPath:     raw.SourcePath(),
	}
}

// StockEntry is one warehouse's quantity, flattened from the ERP stock
// response before transformation.
type StockEntry struct {
	Qty         FlexString
	WarehouseID string
	TMS         FlexString
}

// TransformStockLevel converts one warehouse stock entry.
func (t *Transformer) TransformStockLevel(entry StockEntry, productID, variantID *uint) *models.StockLevel {
	warehouseID := entry.WarehouseID
	if warehouseID == "" {
		warehouseID = "default"
	}

	quantity := 0
	if v, err := strconv.Atoi(strings.TrimSpace(entry.Qty.String())); err == nil {
		quantity = v
	} else if f, err := strconv.ParseFloat(entry.Qty.String(), 64); err == nil {
		quantity = int(f)
	}

	return &models.StockLevel{
		ProductID:           productID,
		VariantID:           variantID,
		WarehouseExternalID: warehouseID,
		Quantity:            quantity,
		ExternalUpdated:     parseEpoch(entry.TMS),
	}
}

func (t *Transformer) cdnURL(filename string) string {
	dir := filename
	if i := strings.Index(filename, "-"); i > 0 {
		dir = filename[:i]
	}
	return collapseSlashes(t.cdnBaseURL + "/" + dir + "/" + filename)
}

var nonAlphanumRun = regexp.MustCompile(`[^a-z0-9]+`)

// slugify derives the storefront URL slug from the product ref, falling
// back to a synthetic slug when the ref is absent.
func slugify(ref string, externalID int64) string {
	if ref == "" {
		return fmt.Sprintf("product-%d", externalID)
	}
	slug := nonAlphanumRun.ReplaceAllString(strings.ToLower(ref), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return fmt.Sprintf("product-%d", externalID)
	}
	return slug
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func sanitizeFilename(filename string) string {
	if filename == "" {
		return fmt.Sprintf("placeholder_image_%d.jpg", time.Now().UnixNano())
	}
	return unsafeFilenameChars.ReplaceAllString(filename, "_")
}

// collapseSlashes removes accidental double slashes in the path part of
// a URL, leaving the scheme separator alone.
func collapseSlashes(u string) string {
	scheme := ""
	rest := u
	if i := strings.Index(u, "://"); i >= 0 {
		scheme = u[:i+3]
		rest = u[i+3:]
	}
	for strings.Contains(rest, "//") {
		rest = strings.ReplaceAll(rest, "//", "/")
	}
	return scheme + rest
}

// normalizeAttributes flattens the ERP's two attribute encodings (pair
// array or plain object) into one map.
func normalizeAttributes(raw json.RawMessage) models.JSONMap {
	attrs := models.JSONMap{}
	if len(raw) == 0 {
		return attrs
	}

	var pairs []struct {
		Code   string      `json:"code"`
		Option string      `json:"option"`
		Value  interface{} `json:"value"`
	}
	if err := json.Unmarshal(raw, &pairs); err == nil {
		for _, p := range pairs {
			key := p.Code
			if key == "" {
				key = p.Option
			}
			if key != "" {
				attrs[key] = p.Value
			}
		}
		return attrs
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err == nil {
		for k, v := range obj {
			attrs[k] = v
		}
	}
	return attrs
}

// productAttributes flattens the ERP's extrafield block into the
// product attribute map. Keys carry an "options_" prefix upstream and
// the block arrives as an empty array when no extrafields are set.
func productAttributes(raw json.RawMessage) models.JSONMap {
	attrs := models.JSONMap{}
	for k, v := range normalizeAttributes(raw) {
		if v == nil || v == "" {
			continue
		}
		attrs[strings.TrimPrefix(k, "options_")] = v
	}
	return attrs
}

func parseID(s FlexString) int64 {
	v, _ := strconv.ParseInt(strings.TrimSpace(s.String()), 10, 64)
	return v
}

// parseOptionalID returns the first parseable positive id among the
// candidates, or nil.
func parseOptionalID(candidates ...FlexString) *int64 {
	for _, c := range candidates {
		if v, err := strconv.ParseInt(strings.TrimSpace(c.String()), 10, 64); err == nil && v > 0 {
			return &v
		}
	}
	return nil
}

func parseFloat(s FlexString) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s.String()), 64)
	if err != nil {
		return 0
	}
	return v
}

// parseEpoch converts the ERP's epoch-second timestamps to UTC times.
// Absent or garbage values become nil.
func parseEpoch(s FlexString) *time.Time {
	secs, err := strconv.ParseInt(strings.TrimSpace(s.String()), 10, 64)
	if err != nil || secs <= 0 {
		return nil
	}
	ts := time.Unix(secs, 0).UTC()
	return &ts
}
