package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/and161185/hcservices/internal/crypto/gatewaycrypto"
	model "github.com/and161185/hcservices/internal/model"
)

func testCreds() model.Credentials {
	return model.Credentials{
		AuthKey:      "0123456789abcdef0123456789abcdef",
		IV:           "fedcba9876543210",
		HMACKey:      "hmac-secret",
		ClientID:     "client",
		ClientSecret: "s3cret",
		DeptID:       "D42",
	}
}

// fakeGateway verifies requests the way the real gateway does and answers with encrypted payloads.
type fakeGateway struct {
	t     *testing.T
	creds model.Credentials
	srv   *httptest.Server

	// configured before the first request
	tokenStatus int
	tokenBody   string
	answers     map[string]string // path -> decrypted payload
	rawBodies   map[string]string // path -> verbatim response body
	release     chan struct{}     // when set, token requests block until closed

	reject      atomic.Int32 // lookups left to answer with 401
	tokenCalls  atomic.Int32
	lookupCalls atomic.Int32

	mu       sync.Mutex
	commands []string
	tokens   []string
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	g := &fakeGateway{
		t:         t,
		creds:     testCreds(),
		answers:   map[string]string{},
		rawBodies: map[string]string{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", g.token)
	mux.HandleFunc("/search", g.lookup)
	mux.HandleFunc("/cnr", g.lookup)
	mux.HandleFunc("/order", g.lookup)
	g.srv = httptest.NewServer(mux)
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGateway) options() Options {
	return Options{
		Endpoints: Endpoints{
			Token:  g.srv.URL + "/token",
			Search: g.srv.URL + "/search",
			CNR:    g.srv.URL + "/cnr",
			Order:  g.srv.URL + "/order",
		},
		HTTPClient: g.srv.Client(),
	}
}

func (g *fakeGateway) client(opts Options) *Client {
	return NewClient(g.creds, NewAuthenticator(g.creds, opts), opts)
}

func (g *fakeGateway) token(w http.ResponseWriter, r *http.Request) {
	n := g.tokenCalls.Add(1)
	if g.release != nil {
		<-g.release
	}
	user, pass, ok := r.BasicAuth()
	if r.Method != http.MethodPost || !ok || user != g.creds.ClientID || pass != g.creds.ClientSecret {
		http.Error(w, "bad client", http.StatusUnauthorized)
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("scope") != "napix" || r.PostForm.Get("grant_type") != "client_credentials" {
		http.Error(w, "bad grant", http.StatusBadRequest)
		return
	}
	if g.tokenStatus != 0 {
		http.Error(w, "token endpoint down", g.tokenStatus)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if g.tokenBody != "" {
		_, _ = w.Write([]byte(g.tokenBody))
		return
	}
	_, _ = fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"bearer"}`, n)
}

func (g *fakeGateway) lookup(w http.ResponseWriter, r *http.Request) {
	g.lookupCalls.Add(1)
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") || r.Header.Get("Accept") != "application/json" {
		http.Error(w, "no bearer", http.StatusUnauthorized)
		return
	}
	if g.reject.Load() > 0 {
		g.reject.Add(-1)
		http.Error(w, "token expired", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	cmd, err := gatewaycrypto.AESDecrypt(q.Get("request_str"), g.creds.AuthKey, g.creds.IV)
	if err != nil || q.Get("request_token") != gatewaycrypto.HMACSHA256Hex(cmd, g.creds.HMACKey) ||
		q.Get("version") != APIVersion || q.Get("dept_id") != g.creds.DeptID {
		http.Error(w, "signature mismatch", http.StatusBadRequest)
		return
	}
	g.mu.Lock()
	g.commands = append(g.commands, cmd)
	g.tokens = append(g.tokens, strings.TrimPrefix(auth, "Bearer "))
	g.mu.Unlock()

	if raw, ok := g.rawBodies[r.URL.Path]; ok {
		_, _ = w.Write([]byte(raw))
		return
	}
	ct, err := gatewaycrypto.AESEncrypt(g.answers[r.URL.Path], g.creds.AuthKey, g.creds.IV)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"response_str": ct})
}

func (g *fakeGateway) seen() (commands, tokens []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.commands...), append([]string(nil), g.tokens...)
}
