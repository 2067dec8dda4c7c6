// Package api holds the record shapes tarim reads from the catalog feeds and
// the two views it materializes. JSON field names are the contract with
// downstream consumers (search, stats, agents) and must stay stable.
package api

import (
	"encoding/json"
	"fmt"
)

// Lang selects one of the fixed catalog languages.
type Lang string

const (
	LangEN Lang = "en"
	LangRO Lang = "ro"
	LangRU Lang = "ru"
)

// Languages lists every supported language in output order.
var Languages = []Lang{LangEN, LangRO, LangRU}

// ParseLang validates a language selector such as "en".
func ParseLang(s string) (Lang, error) {
	for _, l := range Languages {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("unsupported language %q (want en, ro or ru)", s)
}

// Text is the localized part of a catalog record.
type Text struct {
	Name string `json:"name"`
	Info string `json:"info"`
}

// I18n is the per-language bundle of a record. Unknown languages in the feed
// are ignored.
type I18n struct {
	EN Text `json:"en"`
	RO Text `json:"ro"`
	RU Text `json:"ru"`
}

// Get returns the bundle for lang; an unknown selector yields the zero Text.
func (b I18n) Get(lang Lang) Text {
	switch lang {
	case LangEN:
		return b.EN
	case LangRO:
		return b.RO
	case LangRU:
		return b.RU
	}
	return Text{}
}

// RawRecord is one item of the nomenclature feed.
type RawRecord struct {
	ID          int64             `json:"id"`
	Parent      *int64            `json:"parent"`
	NC          string            `json:"nc"`
	I18n        I18n              `json:"i18n"`
	Children    int               `json:"children"`
	ImportActs  []json.RawMessage `json:"import_acts"`
	ExportActs  []json.RawMessage `json:"export_acts"`
	TransitActs []json.RawMessage `json:"transit_acts"`
	ValidFrom   *string           `json:"valid_from"`
	ValidTo     *string           `json:"valid_to"`
}

// RawPage is one cached response page of the nomenclature feed.
type RawPage struct {
	Count   int         `json:"count"`
	Next    *string     `json:"next"`
	Results []RawRecord `json:"results"`
}

// TaxInfo is the enrichment sub-record derived from a tax payload.
type TaxInfo struct {
	VAT              any    `json:"vat"`
	Excise           any    `json:"excise"`
	VATExemptionRO   string `json:"vat_exemption_ro"`
	VATExemptionRU   string `json:"vat_exemption_ru"`
	VATExemptionEN   string `json:"vat_exemption_en"`
	TaxCustomsRO     string `json:"tax_customs_ro"`
	TaxCustomsRU     string `json:"tax_customs_ru"`
	TaxCustomsEN     string `json:"tax_customs_en"`
	ExciseExemptedRO string `json:"excise_exempted_ro"`
	ExciseExemptedRU string `json:"excise_exempted_ru"`
	ExciseExemptedEN string `json:"excise_exempted_en"`
	ExportRO         string `json:"export_ro"`
	ExportRU         string `json:"export_ru"`
	ExportEN         string `json:"export_en"`
	TaxValues        []any  `json:"tax_values"`
	ValidFrom        any    `json:"valid_from"`
	ValidTo          any    `json:"valid_to"`
}

// TaxText groups the localized descriptive strings of a TaxInfo.
type TaxText struct {
	VATExemption   string
	TaxCustoms     string
	ExciseExempted string
	Export         string
}

// Localized returns the descriptive strings for lang.
func (t *TaxInfo) Localized(lang Lang) TaxText {
	switch lang {
	case LangEN:
		return TaxText{t.VATExemptionEN, t.TaxCustomsEN, t.ExciseExemptedEN, t.ExportEN}
	case LangRO:
		return TaxText{t.VATExemptionRO, t.TaxCustomsRO, t.ExciseExemptedRO, t.ExportRO}
	case LangRU:
		return TaxText{t.VATExemptionRU, t.TaxCustomsRU, t.ExciseExemptedRU, t.ExportRU}
	}
	return TaxText{}
}

// SetLocalized stores the descriptive strings for lang.
func (t *TaxInfo) SetLocalized(lang Lang, tt TaxText) {
	switch lang {
	case LangEN:
		t.VATExemptionEN, t.TaxCustomsEN, t.ExciseExemptedEN, t.ExportEN = tt.VATExemption, tt.TaxCustoms, tt.ExciseExempted, tt.Export
	case LangRO:
		t.VATExemptionRO, t.TaxCustomsRO, t.ExciseExemptedRO, t.ExportRO = tt.VATExemption, tt.TaxCustoms, tt.ExciseExempted, tt.Export
	case LangRU:
		t.VATExemptionRU, t.TaxCustomsRU, t.ExciseExemptedRU, t.ExportRU = tt.VATExemption, tt.TaxCustoms, tt.ExciseExempted, tt.Export
	}
}

// FlatEntry is one row of the flat view.
type FlatEntry struct {
	ID            int64             `json:"id"`
	NC            string            `json:"nc"`
	ParentID      *int64            `json:"parent_id"`
	ParentChain   []int64           `json:"parent_chain"`
	PathEN        string            `json:"path_en"`
	PathRO        string            `json:"path_ro"`
	PathRU        string            `json:"path_ru"`
	NameEN        string            `json:"name_en"`
	NameRO        string            `json:"name_ro"`
	NameRU        string            `json:"name_ru"`
	InfoEN        string            `json:"info_en"`
	InfoRO        string            `json:"info_ro"`
	InfoRU        string            `json:"info_ru"`
	ChildrenCount int               `json:"children_count"`
	ImportActs    []json.RawMessage `json:"import_acts"`
	ExportActs    []json.RawMessage `json:"export_acts"`
	TransitActs   []json.RawMessage `json:"transit_acts"`
	ValidFrom     *string           `json:"valid_from"`
	ValidTo       *string           `json:"valid_to"`
	TaxInfo       *TaxInfo          `json:"tax_info,omitempty"`
}

// Path returns the breadcrumb in lang.
func (e *FlatEntry) Path(lang Lang) string {
	return pick(lang, e.PathEN, e.PathRO, e.PathRU)
}

// Name returns the record name in lang.
func (e *FlatEntry) Name(lang Lang) string {
	return pick(lang, e.NameEN, e.NameRO, e.NameRU)
}

// Info returns the descriptive text in lang.
func (e *FlatEntry) Info(lang Lang) string {
	return pick(lang, e.InfoEN, e.InfoRO, e.InfoRU)
}

// SetPath stores the breadcrumb for lang.
func (e *FlatEntry) SetPath(lang Lang, path string) {
	switch lang {
	case LangEN:
		e.PathEN = path
	case LangRO:
		e.PathRO = path
	case LangRU:
		e.PathRU = path
	}
}

// TreeNode is one node of the nested view.
type TreeNode struct {
	ID          int64             `json:"id"`
	NC          string            `json:"nc"`
	NameEN      string            `json:"name_en"`
	NameRO      string            `json:"name_ro"`
	NameRU      string            `json:"name_ru"`
	InfoEN      string            `json:"info_en"`
	InfoRO      string            `json:"info_ro"`
	InfoRU      string            `json:"info_ru"`
	ImportActs  []json.RawMessage `json:"import_acts"`
	ExportActs  []json.RawMessage `json:"export_acts"`
	TransitActs []json.RawMessage `json:"transit_acts"`
	TaxInfo     *TaxInfo          `json:"tax_info,omitempty"`
	Children    []*TreeNode       `json:"children,omitempty"`
}

// Name returns the node name in lang.
func (n *TreeNode) Name(lang Lang) string {
	return pick(lang, n.NameEN, n.NameRO, n.NameRU)
}

// Info returns the descriptive text in lang.
func (n *TreeNode) Info(lang Lang) string {
	return pick(lang, n.InfoEN, n.InfoRO, n.InfoRU)
}

func pick(lang Lang, en, ro, ru string) string {
	switch lang {
	case LangEN:
		return en
	case LangRO:
		return ro
	case LangRU:
		return ru
	}
	return ""
}
