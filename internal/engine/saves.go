package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"capeline/internal/domain"
	"capeline/internal/events"
	"capeline/internal/repo"
	"capeline/internal/rules"
)

var ErrSaveExists = errors.New("save already exists")

// NewGame seeds a day-zero save in slot. Existing saves are only replaced with overwrite.
func (e Engine) NewGame(ctx context.Context, slot string, opts domain.NewGameOptions, overwrite bool) (domain.SaveFile, error) {
	if err := validSlot(slot); err != nil {
		return domain.SaveFile{}, err
	}
	cfg := e.config()
	if opts.CivilianName == "" {
		opts.CivilianName = cfg.Game.CivilianName
	}
	if opts.SuperName == "" {
		opts.SuperName = cfg.Game.SuperName
	}
	if opts.StartingMoney == 0 {
		opts.StartingMoney = cfg.Economy.StartingMoney
	}
	if opts.DowntimeTokens == 0 {
		opts.DowntimeTokens = cfg.Economy.DowntimeTokens
	}
	if opts.Model == "" {
		opts.Model = cfg.Game.Model
	}
	s := domain.NewSave(opts)
	s.GameState.Timeline = append(s.GameState.Timeline, domain.TimelineEntry{
		Day: 0, Kind: "story", Text: fmt.Sprintf("%s moves to the city", s.Player.CivilianName),
	})
	if err := e.writeSave(ctx, slot, s, overwrite, "save.created"); err != nil {
		return domain.SaveFile{}, err
	}
	return s, nil
}

func validSlot(slot string) error {
	if strings.TrimSpace(slot) == "" {
		return domain.ValidationError{Field: "slot", Reason: "required"}
	}
	if strings.ContainsAny(slot, "/\\ \t\n") {
		return domain.ValidationError{Field: "slot", Reason: "must not contain slashes or whitespace"}
	}
	return nil
}

func (e Engine) writeSave(ctx context.Context, slot string, s domain.SaveFile, overwrite bool, evtType string) error {
	if e.runtime().Busy(slot) {
		return ErrTransitionInProgress
	}
	exists, err := e.Repo.SaveExists(ctx, slot)
	if err != nil {
		return err
	}
	if exists && !overwrite {
		return fmt.Errorf("save %s: %w", slot, ErrSaveExists)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.UpsertSaveTx(ctx, tx, slot, s, e.stamp()); err != nil {
		return fmt.Errorf("save %s: %w", slot, err)
	}
	if err := e.Events.Append(ctx, tx, evtType, slot, "save", slot, actorFrom(ctx), events.EventPayload{
		"day":       s.GameState.Day,
		"overwrite": exists,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// Load returns the save with task locks evaluated against its current state.
func (e Engine) Load(ctx context.Context, slot string) (domain.SaveFile, error) {
	s, err := e.Repo.GetSave(ctx, slot)
	if err != nil {
		return domain.SaveFile{}, err
	}
	s.GameState.ActiveTasks = rules.WithLocks(s.GameState.ActiveTasks, s.Player, s.GameState)
	return s, nil
}

// Export renders a save as the {player, gameState} document pair.
func (e Engine) Export(ctx context.Context, slot string) ([]byte, error) {
	s, err := e.Repo.GetSave(ctx, slot)
	if err != nil {
		return nil, err
	}
	return EncodeSave(s)
}

// EncodeSave is the canonical export encoding. Import followed by export reproduces it
// byte for byte.
func EncodeSave(s domain.SaveFile) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode save: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeExport parses an exported save, merging it against defaults.
func DecodeExport(data []byte) (domain.SaveFile, error) {
	var raw struct {
		Player    json.RawMessage `json:"player"`
		GameState json.RawMessage `json:"gameState"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return domain.SaveFile{}, domain.ValidationError{Field: "save", Reason: fmt.Sprintf("not a save file: %v", err)}
	}
	if len(raw.Player) == 0 || len(raw.GameState) == 0 {
		return domain.SaveFile{}, domain.ValidationError{Field: "save", Reason: "save needs both player and gameState"}
	}
	s, err := repo.DecodeSave(raw.Player, raw.GameState)
	if err != nil {
		return domain.SaveFile{}, domain.ValidationError{Field: "save", Reason: err.Error()}
	}
	return s, nil
}

// Import replaces slot with an exported save.
func (e Engine) Import(ctx context.Context, slot string, data []byte, overwrite bool) (domain.SaveFile, error) {
	if err := validSlot(slot); err != nil {
		return domain.SaveFile{}, err
	}
	s, err := DecodeExport(data)
	if err != nil {
		return domain.SaveFile{}, err
	}
	if err := e.writeSave(ctx, slot, s, overwrite, "save.imported"); err != nil {
		return domain.SaveFile{}, err
	}
	return s, nil
}

func (e Engine) DeleteSave(ctx context.Context, slot string) error {
	if e.runtime().Busy(slot) {
		return ErrTransitionInProgress
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteSaveTx(ctx, tx, slot); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "save.deleted", slot, "save", slot, actorFrom(ctx), nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) ListSaves(ctx context.Context) ([]domain.SaveSummary, error) {
	return e.Repo.ListSaves(ctx)
}

func (e Engine) Reports(ctx context.Context, slot string, limit int) ([]domain.StoredReport, error) {
	return e.Repo.ListReports(ctx, slot, limit)
}

func (e Engine) Report(ctx context.Context, slot string, day int) (domain.StoredReport, error) {
	return e.Repo.GetReport(ctx, slot, day)
}

func (e Engine) Progress(slot string) Progress {
	return e.runtime().Progress(slot)
}

// CancelDay asks a running transition to stop before it commits.
func (e Engine) CancelDay(slot string) bool {
	return e.runtime().Cancel(slot)
}

func (e Engine) DismissProgress(slot string) {
	e.runtime().Dismiss(slot)
}

// SubscribeProgress streams progress snapshots for slot until the returned stop is called.
func (e Engine) SubscribeProgress(slot string) (<-chan Progress, func()) {
	return e.runtime().Subscribe(slot)
}
