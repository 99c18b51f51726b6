// Package http exposes the ledger, account, category and recurring-rule
// services as a JSON API.
//
// This file holds the response side: JSON encoding, error mapping and the
// wire shapes of the domain types.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"moneyflow/internal/core"
	"moneyflow/internal/services"
)

// errorBody is the envelope of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const codeUnauthorized = "unauthorized"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind core.ErrorKind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindForbidden:
		return http.StatusForbidden
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict, core.KindDuplicate:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and error body. Internal errors are
// logged and their text is not sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := core.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		writeErrorCode(w, status, string(core.KindInternal), "internal server error")
		return
	}
	writeErrorCode(w, status, string(kind), err.Error())
}

func amountString(d decimal.Decimal) string { return core.FormatAmount(d) }

func optionalAmount(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := core.FormatAmount(*d)
	return &s
}

type transactionJSON struct {
	ID              int64                `json:"id"`
	OwnerID         int64                `json:"owner_id"`
	Type            core.TransactionType `json:"type"`
	Amount          string               `json:"amount"`
	Currency        string               `json:"currency,omitempty"`
	OriginalAmount  *string              `json:"original_amount,omitempty"`
	Date            core.Date            `json:"date"`
	CategoryID      *int64               `json:"category_id"`
	AccountID       int64                `json:"account_id"`
	TargetAccountID *int64               `json:"target_account_id"`
	Note            string               `json:"note"`
	RuleID          *int64               `json:"rule_id"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

func newTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:              t.ID,
		OwnerID:         t.OwnerID,
		Type:            t.Type,
		Amount:          amountString(t.Amount),
		Currency:        t.Currency,
		OriginalAmount:  optionalAmount(t.OriginalAmount),
		Date:            t.Date,
		CategoryID:      t.CategoryID,
		AccountID:       t.AccountID,
		TargetAccountID: t.TargetAccountID,
		Note:            t.Note,
		RuleID:          t.RuleID,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func newTransactionList(ts []core.Transaction) []transactionJSON {
	out := make([]transactionJSON, 0, len(ts))
	for _, t := range ts {
		out = append(out, newTransactionJSON(t))
	}
	return out
}

type accountJSON struct {
	ID             int64            `json:"id"`
	OwnerID        int64            `json:"owner_id"`
	Name           string           `json:"name"`
	Type           core.AccountType `json:"type"`
	Icon           string           `json:"icon"`
	InitialBalance string           `json:"initial_balance"`
	CurrentBalance string           `json:"current_balance"`
	SortOrder      int              `json:"sort_order"`
	System         bool             `json:"system"`
}

func newAccountJSON(v services.AccountView) accountJSON {
	return accountJSON{
		ID:             v.ID,
		OwnerID:        v.OwnerID,
		Name:           v.Name,
		Type:           v.Type,
		Icon:           v.Icon,
		InitialBalance: amountString(v.InitialBalance),
		CurrentBalance: amountString(v.CurrentBalance),
		SortOrder:      v.SortOrder,
		System:         v.System,
	}
}

type balanceJSON struct {
	AccountID int64      `json:"account_id"`
	Balance   string     `json:"balance"`
	AsOf      *core.Date `json:"as_of,omitempty"`
}

type categoryJSON struct {
	ID        int64                `json:"id"`
	OwnerID   *int64               `json:"owner_id"`
	ParentID  *int64               `json:"parent_id"`
	Name      string               `json:"name"`
	Type      core.TransactionType `json:"type"`
	Icon      string               `json:"icon"`
	SortOrder int                  `json:"sort_order"`
	Global    bool                 `json:"global"`
}

func newCategoryJSON(c core.Category) categoryJSON {
	return categoryJSON{
		ID:        c.ID,
		OwnerID:   c.OwnerID,
		ParentID:  c.ParentID,
		Name:      c.Name,
		Type:      c.Type,
		Icon:      c.Icon,
		SortOrder: c.SortOrder,
		Global:    c.Global(),
	}
}

type ruleJSON struct {
	ID                int64                `json:"id"`
	OwnerID           int64                `json:"owner_id"`
	Type              core.TransactionType `json:"type"`
	Amount            string               `json:"amount"`
	CategoryID        int64                `json:"category_id"`
	AccountID         int64                `json:"account_id"`
	Frequency         core.Frequency       `json:"frequency"`
	StartDate         core.Date            `json:"start_date"`
	NextExecutionDate core.Date            `json:"next_execution_date"`
	Enabled           bool                 `json:"enabled"`
	Description       string               `json:"description"`
	Version           int64                `json:"version"`
}

func newRuleJSON(r core.RecurringRule) ruleJSON {
	return ruleJSON{
		ID:                r.ID,
		OwnerID:           r.OwnerID,
		Type:              r.Type,
		Amount:            amountString(r.Amount),
		CategoryID:        r.CategoryID,
		AccountID:         r.AccountID,
		Frequency:         r.Frequency,
		StartDate:         r.StartDate,
		NextExecutionDate: r.NextExecutionDate,
		Enabled:           r.Enabled,
		Description:       r.Description,
		Version:           r.Version,
	}
}

type outcomeJSON struct {
	RuleID            int64              `json:"rule_id"`
	OwnerID           int64              `json:"owner_id"`
	Status            core.OutcomeStatus `json:"status"`
	Reason            string             `json:"reason,omitempty"`
	TransactionID     int64              `json:"transaction_id,omitempty"`
	FiredFor          core.Date          `json:"fired_for"`
	NextExecutionDate core.Date          `json:"next_execution_date"`
}

type runReportJSON struct {
	RunID        string            `json:"run_id"`
	Scope        string            `json:"scope"`
	Today        core.Date         `json:"today"`
	Generated    int               `json:"generated"`
	Skipped      int               `json:"skipped"`
	Duplicates   int               `json:"duplicates"`
	Failed       int               `json:"failed"`
	Total        string            `json:"total"`
	Outcomes     []outcomeJSON     `json:"outcomes"`
	Transactions []transactionJSON `json:"transactions"`
}

func newRunReportJSON(r core.RunReport) runReportJSON {
	out := runReportJSON{
		RunID:        r.RunID,
		Scope:        r.Scope.Key(),
		Today:        r.Today,
		Generated:    r.Count(core.OutcomeGenerated),
		Skipped:      r.Count(core.OutcomeSkipped),
		Duplicates:   r.Count(core.OutcomeDuplicate),
		Failed:       r.Count(core.OutcomeFailed),
		Total:        amountString(r.Total()),
		Outcomes:     make([]outcomeJSON, 0, len(r.Outcomes)),
		Transactions: newTransactionList(r.Generated),
	}
	for _, o := range r.Outcomes {
		out.Outcomes = append(out.Outcomes, outcomeJSON{
			RuleID:            o.RuleID,
			OwnerID:           o.OwnerID,
			Status:            o.Status,
			Reason:            o.Reason,
			TransactionID:     o.TransactionID,
			FiredFor:          o.FiredFor,
			NextExecutionDate: o.NextExecution,
		})
	}
	return out
}
