package main

import (
	"encoding/json"
	"log/slog"

	"relayhub/internal/pairing"
)

// pairingEventData is the shape of the devices plugin's pairing_request
// event, as marshalled by channelplugin/devices.Plugin.readFrames.
type pairingEventData struct {
	RequestID       string `json:"request_id"`
	PairingCode     string `json:"pairing_code"`
	DevicePublicKey []byte `json:"device_public_key"`
}

// pairingResponseEvent mirrors what channelplugin/devices.Plugin.OnPairingResponse expects.
type pairingResponseEvent struct {
	RequestID   string          `json:"request_id"`
	Status      string          `json:"status"`
	DeviceID    string          `json:"device_id,omitempty"`
	Attestation json.RawMessage `json:"attestation,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

// eventSender is the narrow supervisor surface the pairing bridge needs.
type eventSender interface {
	SendEvent(channelID, event string, data any) error
}

// handlePairingRequestEvent resolves one pairing_request event from the
// devices channel and sends the pairing controller's verdict back to
// the same channel as a pairing_response event.
func handlePairingRequestEvent(ctrl *pairing.Controller, sup eventSender, channelID string, raw json.RawMessage, logger *slog.Logger) {
	var evt pairingEventData
	if err := json.Unmarshal(raw, &evt); err != nil {
		logger.Warn("hub: malformed pairing_request event", "error", err)
		return
	}

	res := ctrl.HandlePairingRequest(evt.PairingCode, evt.DevicePublicKey)

	resp := pairingResponseEvent{RequestID: evt.RequestID}
	if res.Approved {
		resp.Status = "approved"
		resp.DeviceID = res.DeviceID
		att, err := json.Marshal(res.Attestation)
		if err != nil {
			logger.Error("hub: failed to marshal attestation", "error", err)
			return
		}
		resp.Attestation = att
	} else {
		resp.Status = "rejected"
		resp.Reason = res.Reason
	}

	if err := sup.SendEvent(channelID, "pairing_response", resp); err != nil {
		logger.Error("hub: failed to forward pairing_response", "error", err)
	}
}
