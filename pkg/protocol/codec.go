package protocol

import (
	"encoding/json"
	"fmt"
)

// EncodeDispatch serializes a DispatchMessage to its canonical JSON encoding.
// The message is validated first so a malformed message never reaches the wire.
func EncodeDispatch(m DispatchMessage) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal dispatch: %w", err)
	}
	return data, nil
}

// DecodeDispatch parses a DispatchMessage from JSON. Unknown fields are
// ignored; missing required fields or unrecognized enum values fail with a
// MalformedMessageError.
func DecodeDispatch(data []byte) (DispatchMessage, error) {
	var m DispatchMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return DispatchMessage{}, &MalformedMessageError{Field: "dispatch", Reason: err.Error()}
	}
	if err := m.Validate(); err != nil {
		return DispatchMessage{}, err
	}
	return m, nil
}

// EncodeCompletion serializes a CompletionMessage to its canonical JSON
// encoding after validation.
func EncodeCompletion(m CompletionMessage) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal completion: %w", err)
	}
	return data, nil
}

// DecodeCompletion parses a CompletionMessage from JSON with the same
// tolerance and validation rules as DecodeDispatch.
func DecodeCompletion(data []byte) (CompletionMessage, error) {
	var m CompletionMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return CompletionMessage{}, &MalformedMessageError{Field: "completion", Reason: err.Error()}
	}
	if err := m.Validate(); err != nil {
		return CompletionMessage{}, err
	}
	return m, nil
}
