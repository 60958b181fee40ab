package sessionstore

import "fmt"

// DropByProvider deletes every session (and its messages/summaries) locked
// to providerID, across every context root, and clears any
// current-session pointer that referred to one of the deleted sessions.
func (s *Store) DropByProvider(providerID string) (MigrationReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id FROM sessions WHERE provider_id = ?`, providerID)
	if err != nil {
		return MigrationReport{}, fmt.Errorf("sessionstore: drop by provider: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return MigrationReport{}, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if len(ids) == 0 {
		return MigrationReport{}, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return MigrationReport{}, err
	}
	var report MigrationReport
	for _, id := range ids {
		res, err := tx.Exec(`DELETE FROM session_messages WHERE session_id = ?`, id)
		if err != nil {
			tx.Rollback()
			return MigrationReport{}, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			report.DeletedMessages += int(n)
		}
		res, err = tx.Exec(`DELETE FROM session_summaries WHERE session_id = ?`, id)
		if err != nil {
			tx.Rollback()
			return MigrationReport{}, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			report.DeletedSummaries += int(n)
		}
		res, err = tx.Exec(`UPDATE session_state SET current_session_id = NULL WHERE current_session_id = ?`, id)
		if err != nil {
			tx.Rollback()
			return MigrationReport{}, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			report.FixedCurrentStateRows += int(n)
		}
		if _, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
			tx.Rollback()
			return MigrationReport{}, err
		}
		report.DeletedSessions++
	}
	if err := tx.Commit(); err != nil {
		return MigrationReport{}, err
	}
	return report, nil
}
