package service

import (
	"context"
	"encoding/json"
	"fmt"

	"support-bot-backend/internal/common/logger"
)

// AdminState is the pending free-input action of an admin, persisted in the
// config table so it survives restarts.
type AdminState struct {
	// Action is "input" (panel value entry) or "input_note" (per-user note).
	Action string `json:"action"`
	Key    string `json:"key,omitempty"`
	Target int64  `json:"target,omitempty"`
}

func stateKey(adminID int64) string {
	return fmt.Sprintf("admin_state:%d", adminID)
}

// State returns the pending input state for adminID, if any.
func (s *Service) State(ctx context.Context, adminID int64) (*AdminState, bool) {
	raw := s.settings.Get(ctx, stateKey(adminID))
	if raw == "" {
		return nil, false
	}
	var st AdminState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		logger.Warn().Err(err).Int64("admin_id", adminID).Msg("Bad admin state value")
		return nil, false
	}
	return &st, true
}

func (s *Service) SetState(ctx context.Context, adminID int64, st AdminState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.settings.Set(ctx, stateKey(adminID), string(data))
}

func (s *Service) ClearState(ctx context.Context, adminID int64) error {
	return s.settings.Delete(ctx, stateKey(adminID))
}
