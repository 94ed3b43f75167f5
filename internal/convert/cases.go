package convert

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/and161185/hcservices/internal/errs"
	model "github.com/and161185/hcservices/internal/model"
)

// --- search ---

// SearchResult converts a decrypted search payload. The gateway answers with a mapping keyed by
// case identifier; scalar members at the top level (status, Msg) carry no cases.
// A bare status reply is an empty result only when it says nothing matched.
func SearchResult(plaintext []byte) (model.CaseSearchResult, error) {
	raw, err := unwrap(plaintext)
	if err != nil {
		return model.CaseSearchResult{}, malformed("search payload", err)
	}
	if msg, ok := statusReply(raw); ok {
		if notFound(msg) {
			return model.CaseSearchResult{Cases: []model.CaseSummary{}}, nil
		}
		return model.CaseSearchResult{}, fmt.Errorf("%w: search: gateway says %q", errs.ErrMalformedResponse, msg)
	}
	recs, err := records(raw)
	if err != nil {
		return model.CaseSearchResult{}, malformed("search payload", err)
	}
	out := model.CaseSearchResult{Cases: []model.CaseSummary{}}
	for _, r := range recs {
		if !isObject(r.raw) {
			continue
		}
		f, err := objectFields(r.raw)
		if err != nil {
			return model.CaseSearchResult{}, malformed("search entry "+r.key, err)
		}
		if nested, ok := nestedSummaries(f); ok {
			out.Cases = append(out.Cases, nested...)
			continue
		}
		out.Cases = append(out.Cases, summary(r.key, f))
	}
	return out, nil
}

// nestedSummaries expands one wrapping level ({"casenos": {"0": {...}}}): an entry without a
// cino whose members are all objects.
func nestedSummaries(f fields) ([]model.CaseSummary, bool) {
	if f.str("cino", "cnr", "cnr_number") != "" || len(f) == 0 {
		return nil, false
	}
	var out []model.CaseSummary
	for _, raw := range f {
		if !isObject(raw) {
			return nil, false
		}
	}
	for _, r := range members(f) {
		inner, err := objectFields(r.raw)
		if err != nil {
			return nil, false
		}
		out = append(out, summary(r.key, inner))
	}
	return out, true
}

func summary(key string, f fields) model.CaseSummary {
	return model.CaseSummary{
		Key:       key,
		Cino:      f.pop("cino", "cnr", "cnr_number"),
		CaseNo:    f.pop("case_no", "case_number"),
		TypeName:  f.pop("type_name", "case_type_name"),
		RegNo:     f.pop("reg_no"),
		RegYear:   f.pop("reg_year"),
		PetName:   f.pop("pet_name", "petitioner"),
		ResName:   f.pop("res_name", "respondent"),
		Status:    f.pop("status", "case_status", "pend_disp"),
		EstCode:   f.pop("est_code", "court_code"),
		CourtName: f.pop("court_name", "est_name"),
		Extra:     f.rest(),
	}
}

// --- detail ---

// CaseDetail converts a decrypted CNR payload into a typed detail; unknown members land in Extra.
func CaseDetail(plaintext []byte) (model.CaseDetail, error) {
	raw, err := unwrap(plaintext)
	if err != nil {
		return model.CaseDetail{}, malformed("case detail", err)
	}
	if !isObject(raw) {
		return model.CaseDetail{}, malformed("case detail", errNotObject)
	}
	if msg, ok := statusReply(raw); ok {
		return model.CaseDetail{}, fmt.Errorf("%w: case detail: gateway says %q", errs.ErrMalformedResponse, msg)
	}
	f, err := objectFields(raw)
	if err != nil {
		return model.CaseDetail{}, malformed("case detail", err)
	}

	d := model.CaseDetail{
		Cino:     f.pop("cino"),
		CaseNo:   f.pop("case_no"),
		TypeName: f.pop("type_name"),
		RegNo:    f.pop("reg_no"),
		RegYear:  f.pop("reg_year"),
		FilNo:    f.pop("fil_no"),
		FilYear:  f.pop("fil_year"),

		DateOfFiling:   f.pop("date_of_filing"),
		DateRegistered: f.pop("dt_regis", "date_of_registration"),
		DateFirstList:  f.pop("date_first_list"),
		DateNextList:   f.pop("date_next_list"),
		DateLastList:   f.pop("date_last_list"),
		DateOfDecision: f.pop("date_of_decision"),

		CourtNo:   f.pop("court_no"),
		Judge:     f.pop("desgname", "judge_name", "coram"),
		Purpose:   f.pop("purpose_name", "purpose"),
		Disposal:  f.pop("disp_name", "disposal_type"),
		StateName: f.pop("state_name"),
		BenchName: f.pop("bench_name", "est_name"),

		PetName:     f.pop("pet_name"),
		ResName:     f.pop("res_name"),
		PetAdvocate: f.pop("pet_adv", "pet_adv_name"),
		ResAdvocate: f.pop("res_adv", "res_adv_name"),
	}

	pend := strings.ToUpper(f.pop("pend_disp"))
	switch pend {
	case "P":
		d.Pending = true
	case "D":
		d.Pending = false
	default:
		d.Pending = d.DateOfDecision == "" && d.Disposal == ""
	}

	if d.ExtraPetitioners, err = parties(f, "petparty_name", "extra_petitioners"); err != nil {
		return model.CaseDetail{}, malformed("extra petitioners", err)
	}
	if d.ExtraRespondents, err = parties(f, "resparty_name", "extra_respondents"); err != nil {
		return model.CaseDetail{}, malformed("extra respondents", err)
	}
	if d.Hearings, err = collect(f, hearing, "historyofcasehearing", "history_of_case_hearing", "hearings"); err != nil {
		return model.CaseDetail{}, malformed("hearings", err)
	}
	if d.InterimOrders, err = collect(f, order, "interimorder", "interim_orders"); err != nil {
		return model.CaseDetail{}, malformed("interim orders", err)
	}
	if d.FinalOrders, err = collect(f, order, "finalorder", "final_orders"); err != nil {
		return model.CaseDetail{}, malformed("final orders", err)
	}
	if d.Acts, err = collect(f, act, "acts", "act"); err != nil {
		return model.CaseDetail{}, malformed("acts", err)
	}
	d.Extra = f.rest()
	return d, nil
}

// collect decodes a record collection stored under any of keys.
func collect[T any](f fields, conv func(fields) T, keys ...string) ([]T, error) {
	raw, ok := f.take(keys...)
	if !ok {
		return nil, nil
	}
	for _, k := range keys {
		delete(f, k)
	}
	recs, err := records(raw)
	if err != nil {
		return nil, err
	}
	var out []T
	for _, r := range recs {
		if !isObject(r.raw) {
			continue
		}
		rf, err := objectFields(r.raw)
		if err != nil {
			return nil, err
		}
		out = append(out, conv(rf))
	}
	return out, nil
}

func hearing(f fields) model.Hearing {
	return model.Hearing{
		JudgeName:        f.str("judge_name", "desgname", "coram"),
		BusinessOnDate:   f.str("business_on_date", "business_date"),
		HearingDate:      f.str("hearing_date", "next_date"),
		PurposeOfHearing: f.str("purpose_of_listing", "purpose_of_hearing", "purpose_name"),
		CauseListType:    f.str("causelist_type", "cause_list_type"),
	}
}

func order(f fields) model.Order {
	return model.Order{
		OrderNo:   f.str("order_no", "order_number"),
		OrderDate: f.str("order_date", "order_dt"),
		JudgeName: f.str("judge_name", "coram"),
		Details:   f.str("order_details", "order_type"),
	}
}

func act(f fields) model.Act {
	return model.Act{
		Name:    f.str("actname", "act_name", "act"),
		Section: f.str("section", "sections", "under_section"),
	}
}

// parties accepts either a record collection or a newline separated name list.
func parties(f fields, keys ...string) ([]model.Party, error) {
	raw, ok := f.take(keys...)
	if !ok {
		return nil, nil
	}
	for _, k := range keys {
		delete(f, k)
	}
	if s := scalar(raw); s != "" {
		var out []model.Party
		for _, line := range strings.Split(s, "\n") {
			if name := strings.TrimSpace(line); name != "" {
				out = append(out, model.Party{Name: name})
			}
		}
		return out, nil
	}
	return collect(fields{"p": raw}, func(pf fields) model.Party {
		return model.Party{
			Name:     pf.str("name", "party_name"),
			Advocate: pf.str("advocate", "adv_name"),
		}
	}, "p")
}

// --- order ---

// OrderDocument wraps a decrypted order payload. The plaintext is base64 PDF data, sometimes
// JSON-quoted.
func OrderDocument(plaintext string) model.OrderDocument {
	s := strings.TrimSpace(plaintext)
	if len(s) >= 2 && s[0] == '"' {
		var inner string
		if json.Unmarshal([]byte(s), &inner) == nil {
			s = strings.TrimSpace(inner)
		}
	}
	return model.OrderDocument{PDFBase64: s}
}
