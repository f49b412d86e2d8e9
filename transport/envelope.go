// Package transport carries messages between the editor and the frame
// that hosts the cloned document. Every inbound message is checked for
// shape and origin before its payload is looked at.
package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Source identifies the sending application context.
type Source string

const (
	SourceEditor Source = "CLONEPAGES_EDITOR"
	SourceFrame  Source = "CLONEPAGES_IFRAME"
)

// MessageType is the discriminator of an envelope.
type MessageType string

// Editor to frame.
const (
	TypeLoadURL       MessageType = "LOAD_URL"
	TypeApplyUpdate   MessageType = "APPLY_UPDATE"
	TypeGetHTML       MessageType = "GET_HTML"
	TypeListSections  MessageType = "LIST_SECTIONS"
	TypeSelectElement MessageType = "SELECT_ELEMENT"
)

// Frame to editor.
const (
	TypeFrameReady      MessageType = "FRAME_READY"
	TypeCloneError      MessageType = "CLONE_ERROR"
	TypeHTMLResult      MessageType = "HTML_RESULT"
	TypeSectionsResult  MessageType = "SECTIONS_RESULT"
	TypeElementSelected MessageType = "ELEMENT_SELECTED"
)

// Envelope is the wire form of every message.
type Envelope struct {
	Source  Source          `json:"source"`
	Type    MessageType     `json:"type"`
	ID      string          `json:"id,omitempty"`
	ReplyTo string          `json:"reply_to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
	URL     string          `json:"url,omitempty"`
}

// Message is a decoded envelope together with the origin of the peer
// that sent it.
type Message struct {
	Origin string
	Envelope
}

var (
	// ErrUnrecognizedShape means the bytes are not a valid envelope.
	ErrUnrecognizedShape = errors.New("transport: unrecognized message shape")

	// ErrOriginRejected means the sender origin failed the policy.
	ErrOriginRejected = errors.New("transport: origin rejected")

	// ErrCommsTimeout means no reply arrived within the timeout.
	ErrCommsTimeout = errors.New("transport: reply timeout")

	// ErrClosed is returned by a closed connection or endpoint.
	ErrClosed = errors.New("transport: closed")
)

const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["source", "type"],
  "properties": {
    "source":   {"enum": ["CLONEPAGES_EDITOR", "CLONEPAGES_IFRAME"]},
    "type":     {"enum": ["LOAD_URL", "APPLY_UPDATE", "GET_HTML", "LIST_SECTIONS", "SELECT_ELEMENT",
                          "FRAME_READY", "CLONE_ERROR", "HTML_RESULT", "SECTIONS_RESULT", "ELEMENT_SELECTED"]},
    "id":       {"type": "string", "maxLength": 128},
    "reply_to": {"type": "string", "maxLength": 128},
    "payload":  {},
    "error":    {"type": "string"},
    "url":      {"type": "string"}
  },
  "allOf": [
    {
      "if":   {"properties": {"type": {"const": "CLONE_ERROR"}}},
      "then": {"required": ["error"]}
    },
    {
      "if":   {"properties": {"type": {"const": "LOAD_URL"}}},
      "then": {"required": ["url"], "properties": {"url": {"minLength": 1}}}
    },
    {
      "if":   {"properties": {"type": {"const": "APPLY_UPDATE"}}},
      "then": {
        "required": ["payload"],
        "properties": {"payload": {
          "type": "object",
          "required": ["xpath", "type"],
          "properties": {
            "xpath":    {"type": "string"},
            "type":     {"type": "string"},
            "property": {"type": "string"},
            "value":    {"type": "string"},
            "metadata": {"type": "object", "additionalProperties": {"type": "string"}}
          }
        }}
      }
    },
    {
      "if":   {"properties": {"type": {"const": "SELECT_ELEMENT"}}},
      "then": {
        "required": ["payload"],
        "properties": {"payload": {"type": "object", "required": ["xpath"], "properties": {"xpath": {"type": "string"}}}}
      }
    },
    {
      "if":   {"properties": {"type": {"enum": ["HTML_RESULT", "SECTIONS_RESULT", "ELEMENT_SELECTED"]}}},
      "then": {"required": ["reply_to"]}
    }
  ]
}`

var schema = jsonschema.MustCompileString("clonepages://envelope.json", envelopeSchema)

// MaxMessageSize bounds one encoded envelope. HTML_RESULT carries a whole
// page.
const MaxMessageSize = 16 << 20

// Decode validates data against the envelope schema and decodes it.
func Decode(data []byte) (Envelope, error) {
	if len(data) > MaxMessageSize {
		return Envelope{}, fmt.Errorf("%w: %d bytes", ErrUnrecognizedShape, len(data))
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
	}
	if err := schema.Validate(doc); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
	}
	return env, nil
}

// Encode serialises env. The result is checked against the schema so a
// sender never emits what its peer would drop.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("transport: encode: %w", err)
	}
	if _, err := Decode(data); err != nil {
		return nil, err
	}
	return data, nil
}

// DecodePayload unmarshals the envelope payload into v.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("transport: %s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("transport: %s: payload: %w", e.Type, err)
	}
	return nil
}

// WithPayload returns a copy of e carrying v as payload. A nil v clears
// the payload.
func (e Envelope) WithPayload(v any) (Envelope, error) {
	if v == nil {
		e.Payload = nil
		return e, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return e, fmt.Errorf("transport: %s: payload: %w", e.Type, err)
	}
	e.Payload = raw
	return e, nil
}
