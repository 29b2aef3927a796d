package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/chargepoint/ocpp16cp/internal/ocpperr"
)

// messageType is the first element of every OCPP-J frame.
type messageType int

const (
	typeCall       messageType = 2
	typeCallResult messageType = 3
	typeCallError  messageType = 4
)

// callFrame is `[2, messageId, action, payload]`.
type callFrame struct {
	messageId string
	action    string
	payload   json.RawMessage
}

func (f callFrame) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{typeCall, f.messageId, f.action, f.payload})
}

// callResultFrame is `[3, messageId, payload]`.
type callResultFrame struct {
	messageId string
	payload   json.RawMessage
}

func (f callResultFrame) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{typeCallResult, f.messageId, f.payload})
}

// callErrorFrame is `[4, messageId, errorCode, errorDescription, errorDetails]`.
type callErrorFrame struct {
	messageId   string
	errorCode   ocpperr.Code
	description string
	details     any
}

func (f callErrorFrame) MarshalJSON() ([]byte, error) {
	details := f.details
	if details == nil {
		details = struct{}{}
	}
	return json.Marshal([]any{typeCallError, f.messageId, f.errorCode, f.description, details})
}

// parseFrame decodes a raw frame into one of the three shapes above.
func parseFrame(raw []byte) (any, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, ocpperr.New(ocpperr.FormationViolation, "not a JSON array")
	}
	if len(parts) < 3 {
		return nil, ocpperr.New(ocpperr.FormationViolation, "frame too short")
	}

	var mt int
	if err := json.Unmarshal(parts[0], &mt); err != nil {
		return nil, ocpperr.New(ocpperr.FormationViolation, "invalid message type id")
	}

	var messageId string
	if err := json.Unmarshal(parts[1], &messageId); err != nil {
		return nil, ocpperr.New(ocpperr.FormationViolation, "invalid message id")
	}

	switch messageType(mt) {
	case typeCall:
		if len(parts) != 4 {
			return nil, ocpperr.New(ocpperr.FormationViolation, "CALL must have 4 elements")
		}
		var action string
		if err := json.Unmarshal(parts[2], &action); err != nil {
			return nil, ocpperr.New(ocpperr.FormationViolation, "invalid action")
		}
		return callFrame{messageId: messageId, action: action, payload: parts[3]}, nil

	case typeCallResult:
		if len(parts) != 3 {
			return nil, ocpperr.New(ocpperr.FormationViolation, "CALLRESULT must have 3 elements")
		}
		return callResultFrame{messageId: messageId, payload: parts[2]}, nil

	case typeCallError:
		if len(parts) != 5 {
			return nil, ocpperr.New(ocpperr.FormationViolation, "CALLERROR must have 5 elements")
		}
		var code string
		var desc string
		_ = json.Unmarshal(parts[2], &code)
		_ = json.Unmarshal(parts[3], &desc)
		var details any
		_ = json.Unmarshal(parts[4], &details)
		return callErrorFrame{messageId: messageId, errorCode: ocpperr.Code(code), description: desc, details: details}, nil

	default:
		return nil, ocpperr.New(ocpperr.FormationViolation, fmt.Sprintf("unknown message type %d", mt))
	}
}
