package api

import "net/http"

// NewRouter wires the versioned HTTP surface. Sub-resource dispatch under
// /v1/decisions/ happens in the handler because the tree mixes static verbs
// and path parameters.
func NewRouter(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/decisions/approve", requireMethod(http.MethodPost, h.SubmitApproval))
	mux.HandleFunc("/v1/decisions/reject", requireMethod(http.MethodPost, h.SubmitRejection))
	mux.HandleFunc("/v1/decisions/", h.Decisions)
	mux.HandleFunc("/v1/applications/", h.ApplicationDecisions)
	mux.HandleFunc("/v1/audit/records", requireMethod(http.MethodPost, h.CreateAuditRecord))
	mux.HandleFunc("/v1/audit/export", requireMethod(http.MethodPost, h.Export))
	mux.HandleFunc("/v1/reports/", requireMethod(http.MethodGet, h.GenerateReport))
	mux.HandleFunc("/v1/authority/validate", requireMethod(http.MethodPost, h.ValidateAuthority))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}

func requireMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeJSON(w, http.StatusMethodNotAllowed, envelope{
				Success: false,
				Error:   &errorBody{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"},
			})
			return
		}
		next(w, r)
	}
}
