// Package service composes gateway lookups into the operations offered to the facade and CLI.
package service

import (
	"context"

	"go.uber.org/zap"

	model "github.com/and161185/hcservices/internal/model"
)

// Gateway is the lookup surface of the gateway client.
type Gateway interface {
	SearchByRegistration(ctx context.Context, q model.RegistrationQuery) (model.CaseSearchResult, error)
	CnrDetail(ctx context.Context, q model.CnrQuery) (model.CaseDetail, error)
	OrderDocument(ctx context.Context, q model.OrderQuery) (model.OrderDocument, error)
}

// LookupService defines the case lookups.
type LookupService interface {
	// Search lists cases matching a registration.
	Search(ctx context.Context, q model.RegistrationQuery) (model.CaseSearchResult, error)
	// Cnr returns one case by CNR number.
	Cnr(ctx context.Context, q model.CnrQuery) (model.CaseDetail, error)
	// Order returns one order document, still base64-encoded.
	Order(ctx context.Context, q model.OrderQuery) (model.OrderDocument, error)
	// CaseDetails searches and, when a case is found, fetches the first one's detail.
	CaseDetails(ctx context.Context, q model.RegistrationQuery) (model.CaseDetails, error)
}

type LookupServiceImpl struct {
	gw  Gateway
	log *zap.Logger
}

var _ LookupService = (*LookupServiceImpl)(nil)

// NewLookupService constructs LookupService over gw.
func NewLookupService(gw Gateway, log *zap.Logger) *LookupServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &LookupServiceImpl{gw: gw, log: log}
}

func (s *LookupServiceImpl) Search(ctx context.Context, q model.RegistrationQuery) (model.CaseSearchResult, error) {
	return s.gw.SearchByRegistration(ctx, q)
}

func (s *LookupServiceImpl) Cnr(ctx context.Context, q model.CnrQuery) (model.CaseDetail, error) {
	return s.gw.CnrDetail(ctx, q)
}

func (s *LookupServiceImpl) Order(ctx context.Context, q model.OrderQuery) (model.OrderDocument, error) {
	return s.gw.OrderDocument(ctx, q)
}

// CaseDetails runs the search leg, then at most one CNR leg for the first case found.
func (s *LookupServiceImpl) CaseDetails(ctx context.Context, q model.RegistrationQuery) (model.CaseDetails, error) {
	return caseDetails(ctx, s.log, q, s.Search, s.Cnr)
}

// caseDetails chains search and detail. No matching case is a normal outcome: Detail stays nil.
func caseDetails(
	ctx context.Context,
	log *zap.Logger,
	q model.RegistrationQuery,
	search func(context.Context, model.RegistrationQuery) (model.CaseSearchResult, error),
	cnr func(context.Context, model.CnrQuery) (model.CaseDetail, error),
) (model.CaseDetails, error) {
	res, err := search(ctx, q)
	if err != nil {
		return model.CaseDetails{}, err
	}
	first, ok := res.First()
	if !ok {
		log.Debug("no case found", zap.String("est_code", q.EstCode), zap.String("reg_year", q.RegYear))
		return model.CaseDetails{Search: res}, nil
	}
	detail, err := cnr(ctx, model.CnrQuery{Cino: first.Cino})
	if err != nil {
		return model.CaseDetails{Search: res}, err
	}
	detail.Summary = &first
	return model.CaseDetails{Search: res, Detail: &detail}, nil
}
