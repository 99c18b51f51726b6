package http

import (
	"net/http"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	views, err := s.svc.Accounts.List(r.Context(), ownerOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]accountJSON, 0, len(views))
	for _, v := range views {
		out = append(out, newAccountJSON(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.svc.Accounts.Create(r.Context(), ownerOf(r), req.toAccount())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAccountJSON(view))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.svc.Accounts.Get(r.Context(), ownerOf(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountJSON(view))
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req accountPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.svc.Accounts.Update(r.Context(), ownerOf(r), id, req.toPatch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountJSON(view))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Accounts.Delete(r.Context(), ownerOf(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAccountBalance derives the balance, optionally as of a date.
func (s *Server) handleAccountBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	asOf, err := queryDate(r.URL.Query(), "as_of")
	if err != nil {
		writeError(w, r, err)
		return
	}
	balance, err := s.svc.Balances.GetAccountBalance(r.Context(), ownerOf(r), id, asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceJSON{AccountID: id, Balance: amountString(balance), AsOf: asOf})
}
