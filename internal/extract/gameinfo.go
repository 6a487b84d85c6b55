// Package extract locates a game's identifier and title in a page snapshot.
// It runs an ordered chain of strategies of decreasing reliability over a
// parsed document; the page structure is owned by a third party and changes
// without notice, so every strategy is best effort and the result carries a
// confidence score instead of a guarantee.
package extract

import (
	"github.com/playsense/storewatch/internal/classify"
)

// Method names the strategy that produced the title.
type Method string

const (
	MethodMetaTag    Method = "meta_tag"
	MethodAppHub     Method = "apphub_element"
	MethodJSONLD     Method = "json_ld"
	MethodBreadcrumb Method = "breadcrumb"
	MethodDocTitle   Method = "document_title"
	MethodHeading    Method = "heading_fallback"
	MethodURLSegment Method = "url_segment"
)

// Metadata is the best-effort page metadata. Any field may be absent.
type Metadata struct {
	Developer   string   `json:"developer,omitempty"`
	Publisher   string   `json:"publisher,omitempty"`
	ReleaseDate string   `json:"release_date,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Price       string   `json:"price,omitempty"`
	Images      []string `json:"images,omitempty"`
}

// GameInfo is the result of a successful detection. Never mutated after
// construction: a navigation produces a fresh value or discards it.
type GameInfo struct {
	AppID       string               `json:"app_id"`
	Title       string               `json:"title"`
	RawTitle    string               `json:"raw_title"`
	PageType    classify.PageType    `json:"page_type"`
	ProductType classify.ProductType `json:"product_type"`
	Confidence  float64              `json:"confidence"`
	SourceURL   string               `json:"source_url"`
	Metadata    Metadata             `json:"metadata"`
	Method      Method               `json:"extraction_method"`
	DetectedAt  int64                `json:"detected_at"` // epoch milliseconds
}
