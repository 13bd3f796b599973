package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/safar/checkout-lifecycle/internal/models"
)

var ErrCorruptData = errors.New("corrupt stored data")

func encodeSnapshot(s models.CustomerSnapshot) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode customer snapshot: %w", err)
	}
	return string(data), nil
}

// legacySnapshot accepts older row shapes: the address may be missing, null,
// an empty string, or an object double-encoded as a JSON string.
type legacySnapshot struct {
	Name    string          `json:"name"`
	Email   string          `json:"email"`
	Phone   string          `json:"phone"`
	Address json.RawMessage `json:"address"`
}

// decodeSnapshot never fails the read. Empty or null columns give an empty
// snapshot; malformed JSON is reported as ErrCorruptData alongside the
// best-effort value so callers can log it and carry on.
func decodeSnapshot(raw string) (models.CustomerSnapshot, error) {
	var snap models.CustomerSnapshot

	data := bytes.TrimSpace([]byte(raw))
	if isEmptyJSON(data) {
		return snap, nil
	}

	var legacy legacySnapshot
	if err := json.Unmarshal(data, &legacy); err != nil {
		return snap, fmt.Errorf("%w: customer snapshot: %v", ErrCorruptData, err)
	}

	snap.Name = legacy.Name
	snap.Email = legacy.Email
	snap.Phone = legacy.Phone

	addr, err := decodeAddress(legacy.Address)
	if err != nil {
		return snap, err
	}
	snap.Address = addr

	return snap, nil
}

func decodeAddress(data json.RawMessage) (models.Address, error) {
	var addr models.Address

	data = bytes.TrimSpace(data)
	if isEmptyJSON(data) {
		return addr, nil
	}

	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return addr, fmt.Errorf("%w: address: %v", ErrCorruptData, err)
		}
		return decodeAddress(json.RawMessage(inner))
	}

	if err := json.Unmarshal(data, &addr); err != nil {
		return models.Address{}, fmt.Errorf("%w: address: %v", ErrCorruptData, err)
	}
	return addr, nil
}

func isEmptyJSON(data []byte) bool {
	switch string(data) {
	case "", "null", `""`, "{}":
		return true
	}
	return false
}

func snapshotOrEmpty(orderID int64, raw string) models.CustomerSnapshot {
	snap, err := decodeSnapshot(raw)
	if err != nil {
		slog.Warn("recovered corrupt customer snapshot", "order_id", orderID, "error", err)
	}
	return snap
}
