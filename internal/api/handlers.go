package api

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hirewire/decree/internal/auth"
	"github.com/hirewire/decree/internal/compliance"
	"github.com/hirewire/decree/internal/integrity"
	"github.com/hirewire/decree/internal/ledger"
	"github.com/hirewire/decree/internal/workflow"
	"github.com/hirewire/decree/pkg/types"
)

type Handler struct {
	Auth      auth.Authenticator
	Workflow  *workflow.Orchestrator
	Ledger    ledger.Store
	Integrity *integrity.Verifier
	Reports   *compliance.Generator

	// Now is injectable for tests; nil means wall clock.
	Now func() string
}

func (h *Handler) now() string {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC().Format(time.RFC3339)
}

type decisionRequest struct {
	ApplicationID      string `json:"application_id"`
	DecisionReason     string `json:"decision_reason"`
	DecisionRationale  string `json:"decision_rationale"`
	DecisionConfidence int    `json:"decision_confidence"`
}

type delegateRequest struct {
	ToActorID string `json:"to_actor_id"`
	Reason    string `json:"reason"`
}

type appealRequest struct {
	Reason string `json:"reason"`
}

type appealReviewRequest struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason"`
}

type exportRequest struct {
	DecisionID     string   `json:"decision_id"`
	EventTypes     []string `json:"event_types"`
	ComplianceFlag *bool    `json:"compliance_flag"`
	From           string   `json:"from"`
	To             string   `json:"to"`
}

type auditRecordRequest struct {
	DecisionID     string `json:"decision_id"`
	EventType      string `json:"event_type"`
	ChangeReason   string `json:"change_reason"`
	ComplianceFlag bool   `json:"compliance_flag"`
}

type validateRequest struct {
	ActorID      string `json:"actor_id"`
	DecisionType string `json:"decision_type"`
}

// SubmitApproval handles POST /v1/decisions/approve.
func (h *Handler) SubmitApproval(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, types.DecisionApproved)
}

// SubmitRejection handles POST /v1/decisions/reject.
func (h *Handler) SubmitRejection(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, types.DecisionRejected)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, dt types.DecisionType) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json", types.ErrValidation))
		return
	}

	wreq := workflow.DecisionRequest{
		DecisionReason:     req.DecisionReason,
		DecisionRationale:  req.DecisionRationale,
		DecisionConfidence: req.DecisionConfidence,
		ClientIP:           clientIP(r),
	}

	var d types.HiringDecision
	var err error
	switch dt {
	case types.DecisionApproved:
		d, err = h.Workflow.SubmitApproval(claims.Actor(), req.ApplicationID, wreq, h.now())
	default:
		d, err = h.Workflow.SubmitRejection(claims.Actor(), req.ApplicationID, wreq, h.now())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, d)
}

// Decisions dispatches /v1/decisions/{id} and its sub-resources.
func (h *Handler) Decisions(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/decisions/")
	decisionID, action, _ := strings.Cut(rest, "/")
	if decisionID == "" {
		writeError(w, fmt.Errorf("%w: missing decision_id", types.ErrValidation))
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.getDecision(w, decisionID)
	case action == "audit" && r.Method == http.MethodGet:
		h.listAudit(w, r, decisionID)
	case action == "integrity" && r.Method == http.MethodGet:
		h.verifyIntegrity(w, decisionID)
	case action == "modify" && r.Method == http.MethodPost:
		h.modify(w, r, claims, decisionID)
	case action == "delegate" && r.Method == http.MethodPost:
		h.delegate(w, r, claims, decisionID)
	case action == "appeal" && r.Method == http.MethodPost:
		h.appeal(w, r, claims, decisionID)
	case action == "appeal-review" && r.Method == http.MethodPost:
		h.reviewAppeal(w, r, claims, decisionID)
	default:
		writeError(w, fmt.Errorf("%w: unknown decision operation", types.ErrNotFound))
	}
}

func (h *Handler) getDecision(w http.ResponseWriter, decisionID string) {
	d, ok := h.Ledger.GetDecision(decisionID)
	if !ok {
		writeError(w, fmt.Errorf("%w: decision %s", types.ErrNotFound, decisionID))
		return
	}
	writeData(w, http.StatusOK, d)
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request, decisionID string) {
	if _, ok := h.Ledger.GetDecision(decisionID); !ok {
		writeError(w, fmt.Errorf("%w: decision %s", types.ErrNotFound, decisionID))
		return
	}
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := h.Ledger.ListAudit(decisionID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"decision_id": decisionID,
		"records":     records,
	})
}

func (h *Handler) verifyIntegrity(w http.ResponseWriter, decisionID string) {
	report, err := h.Integrity.Verify(decisionID, h.now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

func (h *Handler) modify(w http.ResponseWriter, r *http.Request, claims auth.Claims, decisionID string) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json", types.ErrValidation))
		return
	}
	d, err := h.Workflow.Modify(claims.Actor(), decisionID, workflow.DecisionRequest{
		DecisionReason:     req.DecisionReason,
		DecisionRationale:  req.DecisionRationale,
		DecisionConfidence: req.DecisionConfidence,
		ClientIP:           clientIP(r),
	}, h.now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, d)
}

func (h *Handler) delegate(w http.ResponseWriter, r *http.Request, claims auth.Claims, decisionID string) {
	var req delegateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json", types.ErrValidation))
		return
	}
	if req.ToActorID == "" {
		writeError(w, fmt.Errorf("%w: to_actor_id is required", types.ErrValidation))
		return
	}
	successor, err := h.Workflow.Delegate(claims.Actor(), decisionID, req.ToActorID, req.Reason, h.now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, successor)
}

func (h *Handler) appeal(w http.ResponseWriter, r *http.Request, claims auth.Claims, decisionID string) {
	var req appealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json", types.ErrValidation))
		return
	}
	d, err := h.Workflow.Appeal(claims.Actor(), decisionID, req.Reason, h.now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, d)
}

func (h *Handler) reviewAppeal(w http.ResponseWriter, r *http.Request, claims auth.Claims, decisionID string) {
	var req appealReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json", types.ErrValidation))
		return
	}
	d, err := h.Workflow.ReviewAppeal(claims.Actor(), decisionID, workflow.AppealOutcome(req.Outcome), req.Reason, h.now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, d)
}

// ApplicationDecisions handles GET /v1/applications/{id}/decisions.
func (h *Handler) ApplicationDecisions(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/applications/")
	applicationID, tail, _ := strings.Cut(rest, "/")
	if applicationID == "" || tail != "decisions" {
		writeError(w, fmt.Errorf("%w: unknown application resource", types.ErrNotFound))
		return
	}

	decisions, err := h.Ledger.ListDecisionsByApplication(applicationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"application_id": applicationID,
		"decisions":      decisions,
	})
}

// CreateAuditRecord handles POST /v1/audit/records.
func (h *Handler) CreateAuditRecord(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req auditRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json", types.ErrValidation))
		return
	}

	rec, err := h.Workflow.RecordAuditEvent(claims.Actor(), workflow.AuditEventInput{
		DecisionID:     req.DecisionID,
		EventType:      types.AuditEventType(req.EventType),
		ChangeReason:   req.ChangeReason,
		ComplianceFlag: req.ComplianceFlag,
		ClientIP:       clientIP(r),
	}, h.now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, rec)
}

// Export handles POST /v1/audit/export.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json", types.ErrValidation))
		return
	}

	filter := ledger.AuditFilter{
		ComplianceFlag: req.ComplianceFlag,
		From:           req.From,
		To:             req.To,
	}
	for _, et := range req.EventTypes {
		eventType := types.AuditEventType(et)
		if !types.ValidAuditEventType(eventType) {
			writeError(w, fmt.Errorf("%w: invalid event type: %s", types.ErrValidation, et))
			return
		}
		filter.EventTypes = append(filter.EventTypes, eventType)
	}

	result, err := ledger.Export(h.Ledger, h.Workflow.Signer, ledger.ExportInput{
		DecisionID: req.DecisionID,
		Filter:     filter,
		Actor:      claims.Actor(),
		ClientIP:   clientIP(r),
		CreatedAt:  h.now(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

// GenerateReport handles GET /v1/reports/{type}.
func (h *Handler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	reportType := types.ReportType(strings.TrimPrefix(r.URL.Path, "/v1/reports/"))
	q := r.URL.Query()
	report, err := h.Reports.Generate(reportType, compliance.Filters{
		From:         q.Get("from"),
		To:           q.Get("to"),
		DecisionType: types.DecisionType(q.Get("decision_type")),
	}, h.now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

// ValidateAuthority handles POST /v1/authority/validate.
func (h *Handler) ValidateAuthority(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json", types.ErrValidation))
		return
	}

	allowed, err := h.Workflow.ValidateAuthority(req.ActorID, types.DecisionType(req.DecisionType))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"actor_id":      req.ActorID,
		"decision_type": req.DecisionType,
		"allowed":       allowed,
	})
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (auth.Claims, bool) {
	claims, err := h.Auth.Authenticate(r)
	if err != nil {
		writeError(w, err)
		return auth.Claims{}, false
	}
	return claims, true
}

func auditFilterFromQuery(r *http.Request) (ledger.AuditFilter, error) {
	q := r.URL.Query()
	filter := ledger.AuditFilter{
		From:       q.Get("from"),
		To:         q.Get("to"),
		Descending: q.Get("order") == "desc",
	}
	for _, et := range q["event_type"] {
		eventType := types.AuditEventType(et)
		if !types.ValidAuditEventType(eventType) {
			return ledger.AuditFilter{}, fmt.Errorf("%w: invalid event type: %s", types.ErrValidation, et)
		}
		filter.EventTypes = append(filter.EventTypes, eventType)
	}
	if v := q.Get("compliance_flag"); v != "" {
		flag := v == "true"
		filter.ComplianceFlag = &flag
	}
	return filter, nil
}

func clientIP(r *http.Request) *string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return nil
	}
	return &host
}
