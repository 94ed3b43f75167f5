// Package httpserver exposes the case lookups as a JSON-over-HTTP facade.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/hcservices/internal/gateway"
	model "github.com/and161185/hcservices/internal/model"
	"github.com/and161185/hcservices/internal/service"
	"github.com/and161185/hcservices/internal/suggest"
)

const suggestLimit = 20

// forgetter is implemented by caching lookups that can drop one case detail.
type forgetter interface {
	Forget(ctx context.Context, cino string) error
}

// Handler wires facade endpoints to the lookup service.
type Handler struct {
	svc        service.LookupService
	log        *zap.Logger
	gatherer   prometheus.Gatherer
	suggesters map[string]*suggest.Suggester[model.CaseSummary]
}

// New constructs a Handler. deb is shared by all suggestion fields; gatherer may be nil.
func New(svc service.LookupService, deb *suggest.Debouncer, gatherer prometheus.Gatherer, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{
		svc:        svc,
		log:        log,
		gatherer:   gatherer,
		suggesters: map[string]*suggest.Suggester[model.CaseSummary]{},
	}
	for _, name := range []string{"pet_name", "res_name"} {
		field, _ := suggest.CaseField(name)
		h.suggesters[name] = suggest.New(deb, field, suggestLimit)
	}
	return h
}

// Router builds the chi router with middleware and all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, Logging(h.log), Recover(h.log))
	h.Register(r)
	return r
}

// Register mounts facade endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.HandleHealth)
	r.Get("/cases/search", h.HandleSearch)
	r.Get("/cases/details", h.HandleDetails)
	r.Get("/cases/{cino}", h.HandleCnr)
	r.Get("/cases/{cino}/orders/{order_no}", h.HandleOrder)
	r.Get("/suggest/parties", h.HandleSuggestParties)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
}

// NewServer builds an HTTP server with project defaults.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func registration(r *http.Request) model.RegistrationQuery {
	q := r.URL.Query()
	return model.RegistrationQuery{
		EstCode:  q.Get("est_code"),
		CaseType: q.Get("case_type"),
		RegYear:  q.Get("reg_year"),
		RegNo:    q.Get("reg_no"),
	}
}

// HandleSearch handles GET /cases/search.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Search(r.Context(), registration(r))
	if err != nil {
		h.fail(w, r, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleDetails handles GET /cases/details. No match answers 200 with a null detail.
func (h *Handler) HandleDetails(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.CaseDetails(r.Context(), registration(r))
	if err != nil {
		h.fail(w, r, "details", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleCnr handles GET /cases/{cino}; ?fresh=1 drops the cached detail, in every cache tier,
// before the lookup.
func (h *Handler) HandleCnr(w http.ResponseWriter, r *http.Request) {
	cino := chi.URLParam(r, "cino")
	if fresh, _ := strconv.ParseBool(r.URL.Query().Get("fresh")); fresh {
		if f, ok := h.svc.(forgetter); ok {
			if err := f.Forget(r.Context(), cino); err != nil {
				h.log.Warn("forget cached detail", zap.String("cino", cino), zap.Error(err))
			}
		}
	}
	d, err := h.svc.Cnr(r.Context(), model.CnrQuery{Cino: cino})
	if err != nil {
		h.fail(w, r, "cnr", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleOrder handles GET /cases/{cino}/orders/{order_no}?order_date= and streams the PDF.
func (h *Handler) HandleOrder(w http.ResponseWriter, r *http.Request) {
	q := model.OrderQuery{
		Cino:      chi.URLParam(r, "cino"),
		OrderNo:   chi.URLParam(r, "order_no"),
		OrderDate: r.URL.Query().Get("order_date"),
	}
	doc, err := h.svc.Order(r.Context(), q)
	if err != nil {
		h.fail(w, r, "order", err)
		return
	}
	pdf, err := gateway.DecodeBinaryPayload(doc.PDFBase64)
	if err != nil {
		h.fail(w, r, "order", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+safeName(q.Cino+"_"+q.OrderNo)+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// HandleSuggestParties handles GET /suggest/parties. Calls superseded within the debounce window
// for the same session and field answer 204.
func (h *Handler) HandleSuggestParties(w http.ResponseWriter, r *http.Request) {
	field := r.URL.Query().Get("field")
	if field == "" {
		field = "pet_name"
	}
	sg, ok := h.suggesters[field]
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "incomplete", Message: "field must be pet_name or res_name"})
		return
	}
	session := r.URL.Query().Get("session")
	if session == "" {
		session = r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			session = host
		}
	}
	q := registration(r)
	values, fired, err := sg.Suggest(r.Context(), session+"|"+field, r.URL.Query().Get("q"),
		func(ctx context.Context) ([]model.CaseSummary, error) {
			res, err := h.svc.Search(ctx, q)
			return res.Cases, err
		})
	if err != nil {
		h.fail(w, r, "suggest", err)
		return
	}
	if !fired {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"field": field, "values": values})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	lvl := h.log.Info
	if status >= 500 {
		lvl = h.log.Warn
	}
	lvl("lookup failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.Error(err),
	)
	writeError(w, err)
}

// safeName keeps letters, digits, dash and underscore.
func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, s)
}
