package queue

import "context"

// ExecSQL runs raw SQL against the journal for tests that need to corrupt it.
func ExecSQL(s *Store, query string) error {
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}
