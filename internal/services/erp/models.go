package erp

import (
	"bytes"
	"encoding/json"
)

// FlexString tolerates upstream fields that arrive either as JSON
// strings or bare numbers. The ERP is not consistent about this, even
// within one payload.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	*s = FlexString(b)
	return nil
}

func (s FlexString) String() string { return string(s) }

// RawCategory is one category object as returned by the ERP.
type RawCategory struct {
	ID           FlexString `json:"id"`
	Label        string     `json:"label"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	FkParent     FlexString `json:"fk_parent"`
	ParentID     FlexString `json:"parent_id"`
	DateCreation FlexString `json:"date_creation"`
	TMS          FlexString `json:"tms"`
}

// RawProduct is one product object as returned by the ERP. Photos is
// only populated by FetchProductByID, which joins in the documents
// endpoint.
type RawProduct struct {
	ID              FlexString      `json:"id"`
	Ref             string          `json:"ref"`
	Label           string          `json:"label"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	NotePublic      string          `json:"note_public"`
	LongDescription string          `json:"long_description"`
	Price           FlexString      `json:"price"`
	StatusToSell    FlexString      `json:"status_tosell"`
	DateCreation    FlexString      `json:"date_creation"`
	TMS             FlexString      `json:"tms"`
	ArrayOptions    json.RawMessage `json:"array_options"`
	Photos          []RawImage      `json:"photos"`
	Images          []RawImage      `json:"images"`
}

// ImageList returns whichever of the two image fields the ERP filled.
func (p *RawProduct) ImageList() []RawImage {
	if len(p.Photos) > 0 {
		return p.Photos
	}
	return p.Images
}

// RawVariant is one product variant. Attributes is kept raw because the
// ERP ships it either as an array of {code|option, value} pairs or as an
// already-flat object.
type RawVariant struct {
	ID           FlexString      `json:"id"`
	Ref          string          `json:"ref"`
	ParentRef    string          `json:"parent_ref"`
	PriceVar     FlexString      `json:"price_var"`
	Attributes   json.RawMessage `json:"attributes"`
	DateCreation FlexString      `json:"date_creation"`
	TMS          FlexString      `json:"tms"`
}

// RawImage is one document/photo entry attached to a product.
type RawImage struct {
	ID               FlexString `json:"id"`
	Ref              string     `json:"ref"`
	Filename         string     `json:"filename"`
	Alt              string     `json:"alt"`
	Label            string     `json:"label"`
	Position         FlexString `json:"position"`
	IsThumbnail      bool       `json:"is_thumbnail"`
	Path             string     `json:"path"`
	Filepath         string     `json:"filepath"`
	URLPhotoAbsolute string     `json:"url_photo_absolute"`
	URL              string     `json:"url"`
}

// SourcePath returns the first non-empty location hint for the image.
func (i *RawImage) SourcePath() string {
	for _, p := range []string{i.Path, i.Filepath, i.URLPhotoAbsolute, i.URL} {
		if p != "" {
			return p
		}
	}
	return ""
}

// RawWarehouseStock is the per-warehouse entry inside a stock response.
type RawWarehouseStock struct {
	Real FlexString `json:"real"`
}

// StockResponse is the ERP's per-product stock breakdown.
type StockResponse struct {
	StockWarehouses map[string]RawWarehouseStock `json:"stock_warehouses"`
	TMS             FlexString                   `json:"tms"`
}
