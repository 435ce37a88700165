package obs

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const (
	testSalt      = "lM1GncleQOaCu9lT1yeUZhFYnqhsLLP1G5lAGo3ixaI="
	testChallenge = "+IxH4CnCiqpX1rM9scsNynZzbOe4KhDeYcTNS3PDaeY="
)

// obs-websocket v5 opcodes spoken by the fake server.
const (
	opHello           = 0
	opIdentify        = 1
	opIdentified      = 2
	opRequest         = 6
	opRequestResponse = 7
)

type message struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type identify struct {
	RPCVersion     int    `json:"rpcVersion"`
	Authentication string `json:"authentication,omitempty"`
}

// authResponse computes base64(sha256(base64(sha256(password+salt)) + challenge)).
func authResponse(password, salt, challenge string) string {
	secret := sha256.Sum256([]byte(password + salt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])
	resp := sha256.Sum256([]byte(secretB64 + challenge))
	return base64.StdEncoding.EncodeToString(resp[:])
}

func encode(op int, d any) ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return json.Marshal(message{Op: op, D: raw})
}

// handlerFunc answers one request: status code and response data.
type handlerFunc func(requestType string, data json.RawMessage) (int, any)

// fakeServer is a minimal obs-websocket server. Requests without a handler
// answer with success and no data.
type fakeServer struct {
	t        *testing.T
	password string
	handle   handlerFunc

	// dropAfterIdentify closes this many sessions right after Identified.
	dropAfterIdentify int

	mu       sync.Mutex
	sessions int
	requests []string

	srv *httptest.Server
}

func newFakeServer(t *testing.T, password string, handle handlerFunc) *fakeServer {
	t.Helper()
	f := &fakeServer{t: t, password: password, handle: handle}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeServer) requestTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeServer) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions
}

func (f *fakeServer) send(conn *websocket.Conn, op int, d any) error {
	frame, err := encode(op, d)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (f *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	h := map[string]any{"obsWebSocketVersion": "5.4.2", "rpcVersion": 1}
	if f.password != "" {
		h["authentication"] = map[string]string{"challenge": testChallenge, "salt": testSalt}
	}
	if err := f.send(conn, opHello, h); err != nil {
		return
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return
	}
	var m message
	var id identify
	if json.Unmarshal(data, &m) != nil || m.Op != opIdentify || json.Unmarshal(m.D, &id) != nil {
		return
	}
	if f.password != "" && id.Authentication != authResponse(f.password, testSalt, testChallenge) {
		//nolint:errcheck // Test server
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseAuthenticationFailed, "Authentication failed."),
			time.Now().Add(time.Second))
		return
	}
	if err := f.send(conn, opIdentified, map[string]int{"negotiatedRpcVersion": 1}); err != nil {
		return
	}

	f.mu.Lock()
	f.sessions++
	drop := f.sessions <= f.dropAfterIdentify
	f.mu.Unlock()
	if drop {
		//nolint:errcheck // Test server
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "restarting"),
			time.Now().Add(time.Second))
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var m message
		var req struct {
			RequestType string          `json:"requestType"`
			RequestID   string          `json:"requestId"`
			RequestData json.RawMessage `json:"requestData"`
		}
		if json.Unmarshal(data, &m) != nil || m.Op != opRequest || json.Unmarshal(m.D, &req) != nil {
			continue
		}

		f.mu.Lock()
		f.requests = append(f.requests, req.RequestType)
		f.mu.Unlock()

		code, respData := StatusSuccess, any(nil)
		if f.handle != nil {
			code, respData = f.handle(req.RequestType, req.RequestData)
		}
		status := map[string]any{
			"result": code == StatusSuccess,
			"code":   code,
		}
		if code != StatusSuccess {
			status["comment"] = "fake failure"
		}
		resp := map[string]any{
			"requestType":   req.RequestType,
			"requestId":     req.RequestID,
			"requestStatus": status,
		}
		if respData != nil {
			resp["responseData"] = respData
		}
		if err := f.send(conn, opRequestResponse, resp); err != nil {
			return
		}
	}
}
