package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainEvent prefixes event hashes. The version suffix allows a later
// algorithm change.
const DomainEvent = "restq/event/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes a content-addressed id for a service event.
// The same (model, event, payload) triple always yields the same id, which
// lets subscribers drop duplicate deliveries.
func EventID(model, event string, payload any) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"model":   model,
		"event":   event,
		"payload": payload,
	})
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}
