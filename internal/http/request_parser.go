package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"moneyflow/internal/core"
	"moneyflow/internal/services"
	"moneyflow/internal/storage"
)

// UserHeader carries the caller's owner id.
const UserHeader = "X-User-ID"

const maxBodyBytes = 1 << 20

var errMissingUser = errors.New("missing or invalid " + UserHeader + " header")

// ownerFromRequest returns the positive owner id in the user header.
func ownerFromRequest(r *http.Request) (int64, error) {
	v := strings.TrimSpace(r.Header.Get(UserHeader))
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, errMissingUser
	}
	return id, nil
}

// decodeJSON reads a single JSON object from the body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var ce *core.Error
		if errors.As(err, &ce) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return core.Validationf("request body is empty")
		}
		return core.Validationf("invalid request body: %v", err)
	}
	if dec.More() {
		return core.Validationf("request body must contain a single JSON object")
	}
	return nil
}

// pathID parses a positive id path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	v := chi.URLParam(r, name)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.Validationf("invalid %s %q", name, v)
	}
	return id, nil
}

func queryDate(q url.Values, key string) (*core.Date, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return nil, core.Validationf("invalid %s: expected YYYY-MM-DD", key)
	}
	return &d, nil
}

func queryID(q url.Values, key string) (*int64, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return nil, core.Validationf("invalid %s %q", key, v)
	}
	return &id, nil
}

func queryInt(q url.Values, key string, max int) (int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > max {
		return 0, core.Validationf("invalid %s %q", key, v)
	}
	return n, nil
}

// parseTransactionFilter reads the ledger list query: from, to, type,
// account_id, category_id, rule_id, limit and offset.
func parseTransactionFilter(q url.Values) (storage.TransactionFilter, error) {
	var (
		f   storage.TransactionFilter
		err error
	)
	if f.From, err = queryDate(q, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryDate(q, "to"); err != nil {
		return f, err
	}
	f.Type = core.TransactionType(strings.TrimSpace(q.Get("type")))
	if f.AccountID, err = queryID(q, "account_id"); err != nil {
		return f, err
	}
	if f.CategoryID, err = queryID(q, "category_id"); err != nil {
		return f, err
	}
	if f.RuleID, err = queryID(q, "rule_id"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(q, "limit", 1000); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(q, "offset", 1<<30); err != nil {
		return f, err
	}
	return f, nil
}

type transactionRequest struct {
	Type            core.TransactionType `json:"type"`
	Amount          decimal.Decimal      `json:"amount"`
	Currency        string               `json:"currency"`
	OriginalAmount  *decimal.Decimal     `json:"original_amount"`
	Date            core.Date            `json:"date"`
	CategoryID      *int64               `json:"category_id"`
	AccountID       int64                `json:"account_id"`
	TargetAccountID *int64               `json:"target_account_id"`
	Note            string               `json:"note"`
}

func (req transactionRequest) toTransaction() core.Transaction {
	return core.Transaction{
		Type:            core.TransactionType(strings.TrimSpace(string(req.Type))),
		Amount:          req.Amount,
		Currency:        strings.TrimSpace(req.Currency),
		OriginalAmount:  req.OriginalAmount,
		Date:            req.Date,
		CategoryID:      req.CategoryID,
		AccountID:       req.AccountID,
		TargetAccountID: req.TargetAccountID,
		Note:            sanitizeInput(req.Note),
	}
}

type transactionPatchRequest struct {
	Type            *core.TransactionType `json:"type"`
	Amount          *decimal.Decimal      `json:"amount"`
	Currency        *string               `json:"currency"`
	OriginalAmount  *decimal.Decimal      `json:"original_amount"`
	Date            *core.Date            `json:"date"`
	CategoryID      *int64                `json:"category_id"`
	AccountID       *int64                `json:"account_id"`
	TargetAccountID *int64                `json:"target_account_id"`
	Note            *string               `json:"note"`
}

func (req transactionPatchRequest) toPatch() services.TransactionPatch {
	if req.Note != nil {
		n := sanitizeInput(*req.Note)
		req.Note = &n
	}
	return services.TransactionPatch{
		Type:            req.Type,
		Amount:          req.Amount,
		Currency:        req.Currency,
		OriginalAmount:  req.OriginalAmount,
		Date:            req.Date,
		CategoryID:      req.CategoryID,
		AccountID:       req.AccountID,
		TargetAccountID: req.TargetAccountID,
		Note:            req.Note,
	}
}

type accountRequest struct {
	Name           string           `json:"name"`
	Type           core.AccountType `json:"type"`
	Icon           string           `json:"icon"`
	InitialBalance decimal.Decimal  `json:"initial_balance"`
	SortOrder      int              `json:"sort_order"`
}

func (req accountRequest) toAccount() core.Account {
	return core.Account{
		Name:           sanitizeInput(req.Name),
		Type:           req.Type,
		Icon:           strings.TrimSpace(req.Icon),
		InitialBalance: req.InitialBalance,
		SortOrder:      req.SortOrder,
	}
}

type accountPatchRequest struct {
	Name           *string           `json:"name"`
	Type           *core.AccountType `json:"type"`
	Icon           *string           `json:"icon"`
	InitialBalance *decimal.Decimal  `json:"initial_balance"`
	SortOrder      *int              `json:"sort_order"`
}

func (req accountPatchRequest) toPatch() services.AccountPatch {
	if req.Name != nil {
		n := sanitizeInput(*req.Name)
		req.Name = &n
	}
	return services.AccountPatch{
		Name:           req.Name,
		Type:           req.Type,
		Icon:           req.Icon,
		InitialBalance: req.InitialBalance,
		SortOrder:      req.SortOrder,
	}
}

type categoryRequest struct {
	Name      string               `json:"name"`
	Type      core.TransactionType `json:"type"`
	Icon      string               `json:"icon"`
	ParentID  *int64               `json:"parent_id"`
	SortOrder int                  `json:"sort_order"`
}

func (req categoryRequest) toCategory() core.Category {
	return core.Category{
		Name:      sanitizeInput(req.Name),
		Type:      req.Type,
		Icon:      strings.TrimSpace(req.Icon),
		ParentID:  req.ParentID,
		SortOrder: req.SortOrder,
	}
}

type ruleRequest struct {
	Type        core.TransactionType `json:"type"`
	Amount      decimal.Decimal      `json:"amount"`
	CategoryID  int64                `json:"category_id"`
	AccountID   int64                `json:"account_id"`
	Frequency   core.Frequency       `json:"frequency"`
	StartDate   core.Date            `json:"start_date"`
	Enabled     *bool                `json:"enabled"`
	Description string               `json:"description"`
}

// toRule defaults Enabled to true when the field is absent.
func (req ruleRequest) toRule() core.RecurringRule {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return core.RecurringRule{
		Type:        req.Type,
		Amount:      req.Amount,
		CategoryID:  req.CategoryID,
		AccountID:   req.AccountID,
		Frequency:   req.Frequency,
		StartDate:   req.StartDate,
		Enabled:     enabled,
		Description: sanitizeInput(req.Description),
	}
}

type rulePatchRequest struct {
	Type        *core.TransactionType `json:"type"`
	Amount      *decimal.Decimal      `json:"amount"`
	CategoryID  *int64                `json:"category_id"`
	AccountID   *int64                `json:"account_id"`
	Frequency   *core.Frequency       `json:"frequency"`
	StartDate   *core.Date            `json:"start_date"`
	Enabled     *bool                 `json:"enabled"`
	Description *string               `json:"description"`
}

func (req rulePatchRequest) toPatch() services.RulePatch {
	if req.Description != nil {
		d := sanitizeInput(*req.Description)
		req.Description = &d
	}
	return services.RulePatch{
		Type:        req.Type,
		Amount:      req.Amount,
		CategoryID:  req.CategoryID,
		AccountID:   req.AccountID,
		Frequency:   req.Frequency,
		StartDate:   req.StartDate,
		Enabled:     req.Enabled,
		Description: req.Description,
	}
}

// sanitizeInput trims whitespace and drops control characters other than
// tab, newline and carriage return.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
