package server

import (
	"math"
	"net/http"
	"strconv"

	"github.com/cosflow/cosflow-web/budget"
	"github.com/cosflow/cosflow-web/upstream"
)

type budgetResponse struct {
	Total     float64            `json:"total"`
	Subtotals map[string]float64 `json:"subtotals"`
}

func newBudgetResponse(items []budget.Item) budgetResponse {
	subtotals := budget.Subtotals(items)
	out := budgetResponse{
		Total:     roundCents(budget.Total(items)),
		Subtotals: make(map[string]float64, len(subtotals)),
	}
	for id, amount := range subtotals {
		out.Subtotals[strconv.FormatInt(id, 10)] = roundCents(amount)
	}
	return out
}

func roundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// BudgetHandler rolls up a project's element prices (GET /api/projects/{id}/budget)
func (s *Server) BudgetHandler() http.HandlerFunc {
	messages := ResourceMessages{Forbidden: msgProjectAccessDenied, NotFound: msgProjectNotFound, Failed: msgBudgetFetchFailed}

	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.PathValue("id")

		var elements upstream.ProjectElements
		_, err := s.coordinator.Do(r.Context(), w, s.requestSession(r), func(accessToken string) error {
			var err error
			elements, err = s.upstream.ProjectElements(r.Context(), accessToken, projectID)
			return err
		})
		if err != nil {
			s.writeUpstreamError(w, r, err, messages)
			return
		}
		writeJSON(w, http.StatusOK, newBudgetResponse(elements.BudgetItems()))
	}
}
