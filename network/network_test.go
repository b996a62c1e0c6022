package network

import (
	"bytes"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

// testPair returns both ends of a live websocket connection.
func testPair(t *testing.T) (client, server *WSConnection) {
	t.Helper()
	serverConns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	client = NewWSConnection(conn)
	server = NewWSConnection(<-serverConns)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestSendReadRoundTrip(t *testing.T) {
	client, server := testPair(t)

	payload := []byte(`{"event":"update_bet"}`)
	if err := client.Send(MsgBroadcast, payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	packet, err := server.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	if packet.MsgID != MsgBroadcast {
		t.Errorf("MsgID = %d, want %d", packet.MsgID, MsgBroadcast)
	}
	if !bytes.Equal(packet.Data, payload) {
		t.Errorf("Data = %q, want %q", packet.Data, payload)
	}
}

func TestSend_RejectsOversizedPayload(t *testing.T) {
	client, _ := testPair(t)

	// The 2-byte length field caps a frame at 64 KiB; anything bigger would
	// wrap and mis-slice on the receiving side.
	if err := client.Send(MsgBroadcast, make([]byte, math.MaxUint16+1)); err != ErrPayloadTooLarge {
		t.Errorf("Expected ErrPayloadTooLarge, got %v", err)
	}
	if err := client.Send(MsgBroadcast, make([]byte, math.MaxUint16)); err != nil {
		t.Errorf("A frame at the limit should pass, got %v", err)
	}
}

func TestReadPacket_RejectsShortFrame(t *testing.T) {
	client, server := testPair(t)

	if err := client.conn.WriteMessage(websocket.BinaryMessage, []byte{0, 1}); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if _, err := server.ReadPacket(); err != io.ErrShortBuffer {
		t.Errorf("Expected io.ErrShortBuffer, got %v", err)
	}
}
