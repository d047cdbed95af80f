package core

import (
	"encoding/json"
	"fmt"
)

// Room channel message types. The wire format is a JSON envelope
// {"type": "...", ...fields}. Unknown types decode to
// ErrMalformedMessage rather than being silently ignored.
const (
	TypeContentUpdate = "content_update"
	TypeTitleUpdate   = "title_update"
	TypeCellChange    = "cell_change"
	TypeUserJoined    = "user_joined"
	TypeUserLeft      = "user_left"
	TypeActiveUsers   = "active_users"
	TypeError         = "error"
)

type (
	// Message is the tagged union over the enumerated room channel
	// message types.
	Message interface {
		MessageType() string
	}

	// ContentUpdate carries a full document content snapshot.
	ContentUpdate struct {
		Content string `json:"content"`
	}

	// TitleUpdate carries the resource title.
	TitleUpdate struct {
		Title string `json:"title"`
	}

	// CellEdit is one cell mutation within a CellChange batch.
	CellEdit struct {
		Row   int             `json:"row"`
		Col   int             `json:"col"`
		Value json.RawMessage `json:"value"`
	}

	// CellChange carries a batch of spreadsheet cell edits.
	CellChange struct {
		Changes []CellEdit `json:"changes"`
	}

	// UserJoined announces a new presence to existing room members.
	UserJoined struct {
		Username string `json:"username"`
	}

	// UserLeft announces that an identity's last connection closed.
	UserLeft struct {
		Username string `json:"username"`
	}

	// ActiveUsers is the full presence set, sent to a new joiner only.
	ActiveUsers struct {
		Users []string `json:"users"`
	}

	// ErrorMessage reports a per-message failure back to its sender.
	ErrorMessage struct {
		Message string `json:"message"`
	}
)

func (ContentUpdate) MessageType() string { return TypeContentUpdate }
func (TitleUpdate) MessageType() string   { return TypeTitleUpdate }
func (CellChange) MessageType() string    { return TypeCellChange }
func (UserJoined) MessageType() string    { return TypeUserJoined }
func (UserLeft) MessageType() string      { return TypeUserLeft }
func (ActiveUsers) MessageType() string   { return TypeActiveUsers }
func (ErrorMessage) MessageType() string  { return TypeError }

// Privileged reports whether a message type mutates the resource and
// therefore requires an editor-level role to publish.
func Privileged(m Message) bool {
	switch m.(type) {
	case ContentUpdate, TitleUpdate, CellChange:
		return true
	}
	return false
}

// DecodeMessage parses a wire envelope into its concrete message type.
func DecodeMessage(data []byte) (Message, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var (
		msg Message
		err error
	)
	switch envelope.Type {
	case TypeContentUpdate:
		var m ContentUpdate
		if err = json.Unmarshal(data, &m); err == nil {
			msg = m
		}
	case TypeTitleUpdate:
		var m TitleUpdate
		if err = json.Unmarshal(data, &m); err == nil {
			msg = m
		}
	case TypeCellChange:
		var m CellChange
		if err = json.Unmarshal(data, &m); err == nil {
			msg = m
		}
	case TypeUserJoined:
		var m UserJoined
		if err = json.Unmarshal(data, &m); err == nil {
			msg = m
		}
	case TypeUserLeft:
		var m UserLeft
		if err = json.Unmarshal(data, &m); err == nil {
			msg = m
		}
	case TypeActiveUsers:
		var m ActiveUsers
		if err = json.Unmarshal(data, &m); err == nil {
			msg = m
		}
	case TypeError:
		var m ErrorMessage
		if err = json.Unmarshal(data, &m); err == nil {
			msg = m
		}
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, envelope.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return msg, nil
}

// EncodeMessage renders a message as its wire envelope.
func EncodeMessage(m Message) ([]byte, error) {
	type envelope struct {
		Type string `json:"type"`
	}
	switch msg := m.(type) {
	case ContentUpdate:
		return json.Marshal(struct {
			envelope
			ContentUpdate
		}{envelope{TypeContentUpdate}, msg})
	case TitleUpdate:
		return json.Marshal(struct {
			envelope
			TitleUpdate
		}{envelope{TypeTitleUpdate}, msg})
	case CellChange:
		return json.Marshal(struct {
			envelope
			CellChange
		}{envelope{TypeCellChange}, msg})
	case UserJoined:
		return json.Marshal(struct {
			envelope
			UserJoined
		}{envelope{TypeUserJoined}, msg})
	case UserLeft:
		return json.Marshal(struct {
			envelope
			UserLeft
		}{envelope{TypeUserLeft}, msg})
	case ActiveUsers:
		return json.Marshal(struct {
			envelope
			ActiveUsers
		}{envelope{TypeActiveUsers}, msg})
	case ErrorMessage:
		return json.Marshal(struct {
			envelope
			ErrorMessage
		}{envelope{TypeError}, msg})
	}
	return nil, fmt.Errorf("cannot encode message type %T", m)
}
