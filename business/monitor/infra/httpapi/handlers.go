package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/fd1az/pricegap-monitor/business/monitor/domain"
	pricingDomain "github.com/fd1az/pricegap-monitor/business/pricing/domain"
	"github.com/fd1az/pricegap-monitor/internal/apperror"
)

// minTaskInterval is the shortest tick interval a task may request.
const minTaskInterval = time.Second

type chainView struct {
	Name    string   `json:"name"`
	Pair    string   `json:"pair"`
	Sources []string `json:"sources"`
}

func ListChains(registry *pricingDomain.ChainRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chains := lo.Map(registry.AllChains(), func(name string, _ int) chainView {
			desc, _ := registry.Describe(name)
			v := chainView{Name: name, Pair: desc.Pair, Sources: []string{}}
			if desc.HasPool() {
				v.Sources = append(v.Sources, "pool")
			}
			if desc.HasOracle() {
				v.Sources = append(v.Sources, "oracle")
			}
			if desc.HasApi() {
				v.Sources = append(v.Sources, "api")
			}
			return v
		})
		writeJSON(w, http.StatusOK, chains)
	}
}

// BatchPrices answers ?chains=a,b; all configured chains when omitted.
// Chains without a price are left out.
func BatchPrices(m MonitorService, registry *pricingDomain.ChainRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chains := registry.AllChains()
		if raw := r.URL.Query().Get("chains"); raw != "" {
			chains = lo.Compact(lo.Map(strings.Split(raw, ","), func(s string, _ int) string {
				return strings.TrimSpace(s)
			}))
		}
		writeJSON(w, http.StatusOK, m.BatchGetPrices(r.Context(), chains))
	}
}

func GetPrice(m MonitorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := m.GetPrice(r.Context(), chi.URLParam(r, "chain"))
		if err != nil {
			writeError(w, err)
			return
		}
		if !q.Success {
			writeError(w, apperror.New(apperror.CodeAllSourcesFailed, apperror.WithContext(q.Error)))
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

type spreadView struct {
	A                pricingDomain.PriceQuote    `json:"a"`
	B                pricingDomain.PriceQuote    `json:"b"`
	Spread           pricingDomain.SpreadReading `json:"spread"`
	ThresholdPercent float64                     `json:"thresholdPercent"`
	Abnormal         bool                        `json:"abnormal"`
}

// GetSpread answers ?a=chain:pair&b=chain:pair&threshold=x.
func GetSpread(m MonitorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		a, err := pricingDomain.ParseChainPair(query.Get("a"))
		if err != nil {
			writeError(w, err)
			return
		}
		b, err := pricingDomain.ParseChainPair(query.Get("b"))
		if err != nil {
			writeError(w, err)
			return
		}

		var threshold float64
		if raw := query.Get("threshold"); raw != "" {
			threshold, err = strconv.ParseFloat(raw, 64)
			if err != nil || threshold < 0 {
				writeError(w, apperror.Validation(apperror.CodeInvalidInput, "threshold must be a non-negative number"))
				return
			}
		}

		qa, err := m.GetPrice(r.Context(), a.Chain)
		if err != nil {
			writeError(w, err)
			return
		}
		qb, err := m.GetPrice(r.Context(), b.Chain)
		if err != nil {
			writeError(w, err)
			return
		}
		for _, q := range []pricingDomain.PriceQuote{qa, qb} {
			if !q.Success {
				writeError(w, apperror.New(apperror.CodeAllSourcesFailed, apperror.WithContext(q.Chain+": "+q.Error)))
				return
			}
		}

		reading := pricingDomain.ReadSpread(qa.Price, qb.Price)
		writeJSON(w, http.StatusOK, spreadView{
			A:                qa,
			B:                qb,
			Spread:           reading,
			ThresholdPercent: threshold,
			Abnormal:         reading.Exceeds(threshold),
		})
	}
}

func ListTasks(m MonitorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, m.Tasks())
	}
}

func GetTask(m MonitorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		snap, ok := m.Task(id)
		if !ok {
			writeError(w, apperror.NotFound(apperror.CodeTaskNotFound, id))
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func StartTask(m MonitorService) http.HandlerFunc {
	type request struct {
		ID               string  `json:"id"`
		ChainA           string  `json:"chainA"`
		ChainB           string  `json:"chainB"`
		ThresholdPercent float64 `json:"thresholdPercent"`
		CooldownSeconds  int64   `json:"cooldownSeconds"`
		Interval         string  `json:"interval"`
		Active           *bool   `json:"active"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperror.Validation(apperror.CodeInvalidInput, "invalid request body"))
			return
		}

		var interval time.Duration
		if req.Interval != "" {
			d, err := time.ParseDuration(req.Interval)
			if err != nil {
				writeError(w, apperror.Validation(apperror.CodeInvalidInput, "interval must be a duration like 15s"))
				return
			}
			if d < minTaskInterval {
				writeError(w, apperror.Validation(apperror.CodeInvalidInput,
					"interval must be at least "+minTaskInterval.String()))
				return
			}
			interval = d
		}

		task, err := domain.NewMonitoringTask(req.ID, req.ChainA, req.ChainB, req.ThresholdPercent, req.CooldownSeconds)
		if err != nil {
			writeError(w, err)
			return
		}
		if req.Active != nil {
			task.Active = *req.Active
		}
		if err := m.StartTask(task, interval); err != nil {
			writeError(w, err)
			return
		}

		snap, _ := m.Task(task.ID)
		writeJSON(w, http.StatusCreated, snap)
	}
}

func StopTask(m MonitorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !m.StopTask(id) {
			writeError(w, apperror.NotFound(apperror.CodeTaskNotFound, id))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
