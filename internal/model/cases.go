package model

import "encoding/json"

// CaseSummary is one entry of a registration search result.
type CaseSummary struct {
	Key       string `json:"key"` // mapping key on the wire
	Cino      string `json:"cino"`
	CaseNo    string `json:"case_no,omitempty"`
	TypeName  string `json:"type_name,omitempty"`
	RegNo     string `json:"reg_no,omitempty"`
	RegYear   string `json:"reg_year,omitempty"`
	PetName   string `json:"pet_name,omitempty"`
	ResName   string `json:"res_name,omitempty"`
	Status    string `json:"status,omitempty"`
	EstCode   string `json:"est_code,omitempty"`
	CourtName string `json:"court_name,omitempty"`

	Extra map[string]json.RawMessage `json:"extra,omitempty"`
}

// CaseSearchResult is the ordered set of cases matched by a registration search.
type CaseSearchResult struct {
	Cases []CaseSummary `json:"cases"`
}

// First returns the first entry that carries a CNR number.
func (r CaseSearchResult) First() (CaseSummary, bool) {
	for _, c := range r.Cases {
		if c.Cino != "" {
			return c, true
		}
	}
	return CaseSummary{}, false
}

// Empty reports whether the search matched nothing usable.
func (r CaseSearchResult) Empty() bool {
	_, ok := r.First()
	return !ok
}

// Party is an additional petitioner or respondent listed on a case.
type Party struct {
	Name     string `json:"name"`
	Advocate string `json:"advocate,omitempty"`
}

// Hearing is one row of the hearing history.
type Hearing struct {
	JudgeName        string `json:"judge_name,omitempty"`
	BusinessOnDate   string `json:"business_on_date,omitempty"`
	HearingDate      string `json:"hearing_date,omitempty"`
	PurposeOfHearing string `json:"purpose_of_hearing,omitempty"`
	CauseListType    string `json:"causelist_type,omitempty"`
}

// Order is an interim or final order reference; OrderNo and OrderDate feed an OrderQuery.
type Order struct {
	OrderNo   string `json:"order_no"`
	OrderDate string `json:"order_date,omitempty"`
	JudgeName string `json:"judge_name,omitempty"`
	Details   string `json:"order_details,omitempty"`
}

// Act is a statute and section the case is filed under.
type Act struct {
	Name    string `json:"act_name"`
	Section string `json:"section,omitempty"`
}

// CaseDetail describes one case as returned by the CNR lookup. Every field is optional on the wire.
type CaseDetail struct {
	Cino     string `json:"cino"`
	CaseNo   string `json:"case_no,omitempty"`
	TypeName string `json:"type_name,omitempty"`
	RegNo    string `json:"reg_no,omitempty"`
	RegYear  string `json:"reg_year,omitempty"`
	FilNo    string `json:"fil_no,omitempty"`
	FilYear  string `json:"fil_year,omitempty"`

	DateOfFiling   string `json:"date_of_filing,omitempty"`
	DateRegistered string `json:"dt_regis,omitempty"`
	DateFirstList  string `json:"date_first_list,omitempty"`
	DateNextList   string `json:"date_next_list,omitempty"`
	DateLastList   string `json:"date_last_list,omitempty"`
	DateOfDecision string `json:"date_of_decision,omitempty"`

	CourtNo   string `json:"court_no,omitempty"`
	Judge     string `json:"judge,omitempty"`
	Purpose   string `json:"purpose,omitempty"`
	Disposal  string `json:"disposal,omitempty"`
	Pending   bool   `json:"pending"`
	StateName string `json:"state_name,omitempty"`
	BenchName string `json:"bench_name,omitempty"`

	PetName          string  `json:"pet_name,omitempty"`
	ResName          string  `json:"res_name,omitempty"`
	PetAdvocate      string  `json:"pet_adv,omitempty"`
	ResAdvocate      string  `json:"res_adv,omitempty"`
	ExtraPetitioners []Party `json:"extra_petitioners,omitempty"`
	ExtraRespondents []Party `json:"extra_respondents,omitempty"`

	Hearings      []Hearing `json:"hearings,omitempty"`
	InterimOrders []Order   `json:"interim_orders,omitempty"`
	FinalOrders   []Order   `json:"final_orders,omitempty"`
	Acts          []Act     `json:"acts,omitempty"`

	// Summary is the search entry this detail was reached from (composite lookup only).
	Summary *CaseSummary `json:"summary,omitempty"`

	Extra map[string]json.RawMessage `json:"extra,omitempty"`
}

// Orders returns interim then final orders.
func (d CaseDetail) Orders() []Order {
	out := make([]Order, 0, len(d.InterimOrders)+len(d.FinalOrders))
	out = append(out, d.InterimOrders...)
	return append(out, d.FinalOrders...)
}
