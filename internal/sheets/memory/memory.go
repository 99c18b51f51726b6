package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"moneyflow/internal/core"
	ports "moneyflow/internal/sheets"
)

// Row is an exported ledger entry together with its export status.
type Row struct {
	Transaction core.Transaction
	Status      string
}

// Store is an in-process LedgerExporter for development and tests.
type Store struct {
	mu    sync.Mutex
	rows  []Row
	index map[int64]int
}

var _ ports.LedgerExporter = (*Store)(nil)

func New() *Store {
	return &Store{index: map[int64]int{}}
}

// Append stores the entry, replacing an earlier export of the same id,
// and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, t core.Transaction) (string, error) {
	if t.ID == 0 {
		return "", errors.New("transaction has no id")
	}
	status := ports.StatusLive
	if t.Deleted {
		status = ports.StatusDeleted
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[t.ID]; ok {
		s.rows[i] = Row{Transaction: t, Status: status}
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	s.rows = append(s.rows, Row{Transaction: t, Status: status})
	s.index[t.ID] = len(s.rows) - 1
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// MarkDeleted flags the row of t; unknown entries are ignored.
func (s *Store) MarkDeleted(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[t.ID]; ok {
		s.rows[i].Status = ports.StatusDeleted
	}
	return nil
}

// Rows returns a copy of every exported row in export order.
func (s *Store) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Row(nil), s.rows...)
}
