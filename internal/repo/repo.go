package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"capeline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetSave loads and normalizes the documents of a slot.
func (r Repo) GetSave(ctx context.Context, slot string) (domain.SaveFile, error) {
	return getSave(ctx, r.DB, slot)
}

// GetSaveTx is GetSave inside a transaction.
func (r Repo) GetSaveTx(ctx context.Context, tx *sql.Tx, slot string) (domain.SaveFile, error) {
	return getSave(ctx, tx, slot)
}

func getSave(ctx context.Context, q queryer, slot string) (domain.SaveFile, error) {
	var playerJSON, stateJSON string
	err := q.QueryRowContext(ctx, `SELECT player_json,game_state_json FROM saves WHERE slot=?`, slot).Scan(&playerJSON, &stateJSON)
	if err == sql.ErrNoRows {
		return domain.SaveFile{}, fmt.Errorf("save %s: %w", slot, ErrNotFound)
	}
	if err != nil {
		return domain.SaveFile{}, err
	}
	return DecodeSave([]byte(playerJSON), []byte(stateJSON))
}

// DecodeSave parses the two documents and merges them against defaults.
func DecodeSave(playerJSON, stateJSON []byte) (domain.SaveFile, error) {
	var s domain.SaveFile
	if err := json.Unmarshal(playerJSON, &s.Player); err != nil {
		return domain.SaveFile{}, fmt.Errorf("decode player: %w", err)
	}
	if err := json.Unmarshal(stateJSON, &s.GameState); err != nil {
		return domain.SaveFile{}, fmt.Errorf("decode game state: %w", err)
	}
	domain.Normalize(&s)
	return s, nil
}

// UpsertSaveTx writes both documents of a slot, keeping the original creation time.
func (r Repo) UpsertSaveTx(ctx context.Context, tx *sql.Tx, slot string, s domain.SaveFile, now string) error {
	playerJSON, err := json.Marshal(s.Player)
	if err != nil {
		return fmt.Errorf("encode player: %w", err)
	}
	stateJSON, err := json.Marshal(s.GameState)
	if err != nil {
		return fmt.Errorf("encode game state: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO saves(slot,player_json,game_state_json,day,created_at,updated_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(slot) DO UPDATE SET player_json=excluded.player_json, game_state_json=excluded.game_state_json, day=excluded.day, updated_at=excluded.updated_at`,
		slot, string(playerJSON), string(stateJSON), s.GameState.Day, now, now)
	return err
}

func (r Repo) SaveExists(ctx context.Context, slot string) (bool, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM saves WHERE slot=?`, slot).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) ListSaves(ctx context.Context) ([]domain.SaveSummary, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT slot,day,player_json,created_at,updated_at FROM saves ORDER BY slot`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.SaveSummary{}
	for rows.Next() {
		var sum domain.SaveSummary
		var playerJSON string
		if err := rows.Scan(&sum.Slot, &sum.Day, &playerJSON, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, err
		}
		var p domain.Player
		if err := json.Unmarshal([]byte(playerJSON), &p); err == nil {
			sum.Name = p.DisplayName()
			sum.Money = p.Resources.Money
		}
		res = append(res, sum)
	}
	return res, rows.Err()
}

func (r Repo) DeleteSaveTx(ctx context.Context, tx *sql.Tx, slot string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM saves WHERE slot=?`, slot)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("save %s: %w", slot, ErrNotFound)
	}
	return nil
}

// InsertReportTx stores the report for a committed day. A replayed day overwrites it.
func (r Repo) InsertReportTx(ctx context.Context, tx *sql.Tx, slot string, rep domain.DailyReport, now string) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO reports(slot,day,report_json,created_at) VALUES (?,?,?,?)
ON CONFLICT(slot,day) DO UPDATE SET report_json=excluded.report_json, created_at=excluded.created_at`,
		slot, rep.Day, string(data), now)
	return err
}

// ListReports returns the newest reports first.
func (r Repo) ListReports(ctx context.Context, slot string, limit int) ([]domain.StoredReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT slot,day,report_json,created_at FROM reports WHERE slot=? ORDER BY day DESC LIMIT ?`, slot, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.StoredReport{}
	for rows.Next() {
		var sr domain.StoredReport
		var data string
		if err := rows.Scan(&sr.Slot, &sr.Day, &data, &sr.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &sr.Report); err != nil {
			return nil, fmt.Errorf("decode report day %d: %w", sr.Day, err)
		}
		res = append(res, sr)
	}
	return res, rows.Err()
}

func (r Repo) GetReport(ctx context.Context, slot string, day int) (domain.StoredReport, error) {
	var sr domain.StoredReport
	var data string
	err := r.DB.QueryRowContext(ctx, `SELECT slot,day,report_json,created_at FROM reports WHERE slot=? AND day=?`, slot, day).
		Scan(&sr.Slot, &sr.Day, &data, &sr.CreatedAt)
	if err == sql.ErrNoRows {
		return sr, fmt.Errorf("report %s/%d: %w", slot, day, ErrNotFound)
	}
	if err != nil {
		return sr, err
	}
	if err := json.Unmarshal([]byte(data), &sr.Report); err != nil {
		return sr, fmt.Errorf("decode report: %w", err)
	}
	return sr, nil
}

func (r Repo) LatestEvents(ctx context.Context, limit int, slot, evtType string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, slot, evtType)
}

// LatestEventsFrom pages backwards from cursor (exclusive), newest first.
func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, slot, evtType string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if slot != "" {
		clauses = append(clauses, "slot=?")
		args = append(args, slot)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(slot,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`,
		strings.Join(clauses, " AND "))
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, slot string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"id>?"}
	args := []any{cursor}
	if slot != "" {
		clauses = append(clauses, "slot=?")
		args = append(args, slot)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(slot,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE %s ORDER BY id ASC LIMIT ?`,
		strings.Join(clauses, " AND "))
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// LatestEventID returns the most recent event ID, across slots when slot is empty.
func (r Repo) LatestEventID(ctx context.Context, slot string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if slot != "" {
		query += ` WHERE slot=?`
		args = append(args, slot)
	}
	var id int64
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.Slot, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
