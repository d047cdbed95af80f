package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"docshub/collab"
	"docshub/core"
	"docshub/handlers/auth"
	"docshub/stores/memory"
)

type gatewayFixture struct {
	server *httptest.Server
	store  core.ResourceStore
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	auth.InitAuth()

	store := memory.NewStore()
	gateway := NewGateway(collab.NewRegistry(), store, auth.Resolver{})

	r := chi.NewRouter()
	r.Get("/ws/{resourceType}/{id}", gateway.HandleRoom())
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &gatewayFixture{server: server, store: store}
}

func (f *gatewayFixture) seedDocument(t *testing.T, owner string) core.ResourceKey {
	t.Helper()
	id, err := f.store.Create(context.Background(), &core.Resource{
		Kind:    core.KindDocument,
		OwnerID: owner,
	})
	if err != nil {
		t.Fatalf("failed to seed resource: %v", err)
	}
	return core.ResourceKey{Kind: core.KindDocument, ID: id}
}

func (f *gatewayFixture) dial(t *testing.T, key core.ResourceKey, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/" + string(key.Kind) + "/" + key.ID
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func mintToken(t *testing.T, subject, username string) string {
	t.Helper()
	token, err := auth.CreateJWT(core.UserIdentity{Subject: subject, Username: username})
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}
	return token
}

func readEnvelope(t *testing.T, ws *websocket.Conn) core.Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	msg, err := core.DecodeMessage(data)
	if err != nil {
		t.Fatalf("server sent undecodable message %s: %v", data, err)
	}
	return msg
}

func expectCloseCode(t *testing.T, ws *websocket.Conn, code int) {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != code {
		t.Errorf("expected close code %d, got %d", code, closeErr.Code)
	}
}

func TestUnauthenticatedConnectionIsRejected(t *testing.T) {
	f := newGatewayFixture(t)
	key := f.seedDocument(t, "owner-1")

	ws := f.dial(t, key, "")
	expectCloseCode(t, ws, core.CloseUnauthenticated)
}

func TestInvalidTokenIsRejected(t *testing.T) {
	f := newGatewayFixture(t)
	key := f.seedDocument(t, "owner-1")

	ws := f.dial(t, key, "not-a-jwt")
	expectCloseCode(t, ws, core.CloseUnauthenticated)
}

func TestConnectionWithoutRoleIsRejected(t *testing.T) {
	f := newGatewayFixture(t)
	key := f.seedDocument(t, "owner-1")

	ws := f.dial(t, key, mintToken(t, "stranger", "mallory"))
	expectCloseCode(t, ws, core.CloseForbidden)
}

func TestMissingResourceIsRejectedAsForbidden(t *testing.T) {
	f := newGatewayFixture(t)
	key := core.ResourceKey{Kind: core.KindDocument, ID: "does-not-exist"}

	// Admission does not reveal whether the resource exists.
	ws := f.dial(t, key, mintToken(t, "owner-1", "alice"))
	expectCloseCode(t, ws, core.CloseForbidden)
}

func TestTokenViaQueryParameter(t *testing.T) {
	f := newGatewayFixture(t)
	key := f.seedDocument(t, "owner-1")

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") +
		"/ws/document/" + key.ID + "?token=" + mintToken(t, "owner-1", "alice")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer ws.Close()

	if _, ok := readEnvelope(t, ws).(core.ActiveUsers); !ok {
		t.Error("expected active_users after admission")
	}
}

func TestBroadcastBetweenClients(t *testing.T) {
	f := newGatewayFixture(t)
	key := f.seedDocument(t, "owner-1")
	f.store.SetPermission(context.Background(), key, "editor-1", core.RoleEditor)

	alice := f.dial(t, key, mintToken(t, "owner-1", "alice"))
	if users, ok := readEnvelope(t, alice).(core.ActiveUsers); !ok || len(users.Users) != 1 {
		t.Fatalf("expected alice to see presence of herself, got %#v", users)
	}

	bob := f.dial(t, key, mintToken(t, "editor-1", "bob"))
	if users, ok := readEnvelope(t, bob).(core.ActiveUsers); !ok || len(users.Users) != 2 {
		t.Fatalf("expected bob to see both users, got %#v", users)
	}
	if joined, ok := readEnvelope(t, alice).(core.UserJoined); !ok || joined.Username != "bob" {
		t.Fatalf("expected alice to see user_joined bob")
	}

	if err := bob.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"content_update","content":"<p>from bob</p>"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	update, ok := readEnvelope(t, alice).(core.ContentUpdate)
	if !ok {
		t.Fatalf("expected alice to receive the content update")
	}
	if update.Content != "<p>from bob</p>" {
		t.Errorf("unexpected content: %q", update.Content)
	}

	// Bob must not hear his own edit echoed back.
	bob.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, data, err := bob.ReadMessage(); err == nil {
		t.Errorf("expected no echo to the sender, got %s", data)
	}
}

func TestViewerEditIsRefusedButConnectionSurvives(t *testing.T) {
	f := newGatewayFixture(t)
	key := f.seedDocument(t, "owner-1")
	f.store.SetPermission(context.Background(), key, "viewer-1", core.RoleViewer)

	alice := f.dial(t, key, mintToken(t, "owner-1", "alice"))
	readEnvelope(t, alice) // active_users

	eve := f.dial(t, key, mintToken(t, "viewer-1", "eve"))
	readEnvelope(t, eve)   // active_users
	readEnvelope(t, alice) // user_joined

	if err := eve.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"content_update","content":"<p>sneaky</p>"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, ok := readEnvelope(t, eve).(core.ErrorMessage); !ok {
		t.Fatal("expected an error message back to the viewer")
	}

	// Nobody else saw the refused edit, and eve still receives broadcasts.
	alice.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, data, err := alice.ReadMessage(); err == nil {
		t.Fatalf("expected refused edit to reach nobody, got %s", data)
	}

	if err := alice.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"title_update","title":"Renamed"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if title, ok := readEnvelope(t, eve).(core.TitleUpdate); !ok || title.Title != "Renamed" {
		t.Error("expected the viewer to keep receiving broadcasts")
	}
}

func TestMalformedMessageAnswersSender(t *testing.T) {
	f := newGatewayFixture(t)
	key := f.seedDocument(t, "owner-1")

	ws := f.dial(t, key, mintToken(t, "owner-1", "alice"))
	readEnvelope(t, ws) // active_users

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"selection_update"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, ok := readEnvelope(t, ws).(core.ErrorMessage); !ok {
		t.Error("expected error message for unknown type")
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, ok := readEnvelope(t, ws).(core.ErrorMessage); !ok {
		t.Error("expected error message for invalid JSON")
	}

	// Server-only envelope types are not accepted from clients.
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"user_joined","username":"ghost"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, ok := readEnvelope(t, ws).(core.ErrorMessage); !ok {
		t.Error("expected error message for server-only type")
	}
}

func TestLeaveAnnouncedToPeers(t *testing.T) {
	f := newGatewayFixture(t)
	key := f.seedDocument(t, "owner-1")
	f.store.SetPermission(context.Background(), key, "editor-1", core.RoleEditor)

	alice := f.dial(t, key, mintToken(t, "owner-1", "alice"))
	readEnvelope(t, alice) // active_users

	bob := f.dial(t, key, mintToken(t, "editor-1", "bob"))
	readEnvelope(t, bob)   // active_users
	readEnvelope(t, alice) // user_joined

	bob.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	bob.Close()

	if left, ok := readEnvelope(t, alice).(core.UserLeft); !ok || left.Username != "bob" {
		t.Error("expected alice to see user_left bob")
	}
}
