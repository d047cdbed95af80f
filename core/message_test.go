package core

import (
	"errors"
	"testing"
)

func TestDecodeContentUpdate(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type":"content_update","content":"<p>hi</p>"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	update, ok := msg.(ContentUpdate)
	if !ok {
		t.Fatalf("expected ContentUpdate, got %T", msg)
	}
	if update.Content != "<p>hi</p>" {
		t.Errorf("expected content %q, got %q", "<p>hi</p>", update.Content)
	}
}

func TestDecodeCellChange(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type":"cell_change","changes":[{"row":2,"col":3,"value":"42"}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	change, ok := msg.(CellChange)
	if !ok {
		t.Fatalf("expected CellChange, got %T", msg)
	}
	if len(change.Changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(change.Changes))
	}
	if change.Changes[0].Row != 2 || change.Changes[0].Col != 3 {
		t.Errorf("expected cell (2,3), got (%d,%d)", change.Changes[0].Row, change.Changes[0].Col)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"type":"selection_update","selection":{}}`))
	if !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("expected ErrMalformedMessage for unknown type, got %v", err)
	}
}

func TestDecodeMissingType(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"content":"<p>hi</p>"}`))
	if !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("expected ErrMalformedMessage for missing type, got %v", err)
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	_, err := DecodeMessage([]byte(`not json`))
	if !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("expected ErrMalformedMessage for invalid JSON, got %v", err)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data, err := EncodeMessage(ActiveUsers{Users: []string{"alice", "bob"}})
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}

	msg, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	users, ok := msg.(ActiveUsers)
	if !ok {
		t.Fatalf("expected ActiveUsers, got %T", msg)
	}
	if len(users.Users) != 2 || users.Users[0] != "alice" || users.Users[1] != "bob" {
		t.Errorf("unexpected users: %v", users.Users)
	}
}

func TestPrivileged(t *testing.T) {
	if !Privileged(ContentUpdate{}) || !Privileged(TitleUpdate{}) || !Privileged(CellChange{}) {
		t.Error("expected edit messages to be privileged")
	}
	if Privileged(UserJoined{}) || Privileged(ActiveUsers{}) || Privileged(ErrorMessage{}) {
		t.Error("expected presence and error messages not to be privileged")
	}
}

func TestRoleOrdering(t *testing.T) {
	if !RoleOwner.CanEdit() || !RoleEditor.CanEdit() {
		t.Error("expected owner and editor to be able to edit")
	}
	if RoleCommenter.CanEdit() || RoleViewer.CanEdit() {
		t.Error("expected commenter and viewer not to be able to edit")
	}
	if !RoleOwner.AtLeast(RoleViewer) {
		t.Error("expected owner to satisfy viewer requirement")
	}
	if RoleViewer.AtLeast(RoleEditor) {
		t.Error("expected viewer not to satisfy editor requirement")
	}
}
