package enrich

import (
	"fmt"
	"strconv"

	"github.com/ohler55/ojg/jp"

	"github.com/agentic-research/tarim/api"
)

// Selectors into a tax feed payload. A payload is the response for one
// code lookup; only its first result is meaningful.
var (
	codeSel    = jp.MustParseString("$.results[0].tarim.nc")
	resultSel  = jp.MustParseString("$.results[0]")
	resultsSel = jp.MustParseString("$.results")
)

// Selectors relative to a result object.
var (
	vatSel       = jp.MustParseString("$.vat")
	exciseSel    = jp.MustParseString("$.excise")
	taxValuesSel = jp.MustParseString("$.taxvalues_set")
	validFromSel = jp.MustParseString("$.valid_from")
	validToSel   = jp.MustParseString("$.valid_to")
)

type localizedSel struct {
	vatExemption, taxCustoms, exciseExempted, export jp.Expr
}

var localizedSels = func() map[api.Lang]localizedSel {
	out := make(map[api.Lang]localizedSel, len(api.Languages))
	for _, lang := range api.Languages {
		base := fmt.Sprintf("$.i18n.%s.", lang)
		out[lang] = localizedSel{
			vatExemption:   jp.MustParseString(base + "vat_exemption"),
			taxCustoms:     jp.MustParseString(base + "tax_customs"),
			exciseExempted: jp.MustParseString(base + "excise_exempted"),
			export:         jp.MustParseString(base + "export"),
		}
	}
	return out
}()

// PayloadCode returns the classification code a payload is keyed by.
func PayloadCode(payload any) (string, bool) {
	code := scalar(first(codeSel, payload))
	return code, code != ""
}

// hasResults reports whether the payload carries at least one result.
func hasResults(payload any) bool {
	results, _ := first(resultsSel, payload).([]any)
	return len(results) > 0
}

// Extract derives the enrichment sub-record from a payload. Rates and
// validity dates are kept as decoded, so 20 stays a number and null stays
// null. Missing localized strings become empty and an absent tax value list
// becomes empty.
func Extract(payload any) *api.TaxInfo {
	res := first(resultSel, payload)
	if res == nil {
		return nil
	}

	info := &api.TaxInfo{
		VAT:       first(vatSel, res),
		Excise:    first(exciseSel, res),
		ValidFrom: first(validFromSel, res),
		ValidTo:   first(validToSel, res),
		TaxValues: []any{},
	}
	if values, ok := first(taxValuesSel, res).([]any); ok {
		info.TaxValues = values
	}
	for _, lang := range api.Languages {
		sel := localizedSels[lang]
		info.SetLocalized(lang, api.TaxText{
			VATExemption:   scalar(first(sel.vatExemption, res)),
			TaxCustoms:     scalar(first(sel.taxCustoms, res)),
			ExciseExempted: scalar(first(sel.exciseExempted, res)),
			Export:         scalar(first(sel.export, res)),
		})
	}
	return info
}

func first(x jp.Expr, data any) any {
	if data == nil {
		return nil
	}
	got := x.Get(data)
	if len(got) == 0 {
		return nil
	}
	return got[0]
}

// scalar renders a JSON scalar as text.
func scalar(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case int64:
		return strconv.FormatInt(s, 10)
	case int:
		return strconv.Itoa(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	}
	return fmt.Sprint(v)
}
