package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// TelegramCall is one Bot API request received by FakeTelegram.
type TelegramCall struct {
	Method string
	Params map[string]interface{}
}

// Text returns the "text" parameter of a sendMessage call.
func (c TelegramCall) Text() string {
	s, _ := c.Params["text"].(string)
	return s
}

// ReplyMarkup returns the raw reply_markup JSON, if any.
func (c TelegramCall) ReplyMarkup() string {
	switch v := c.Params["reply_markup"].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// FakeTelegram is an in-process Bot API that records every call.
type FakeTelegram struct {
	Server *httptest.Server
	Token  string

	mu      sync.RWMutex
	calls   []TelegramCall
	failing map[string]bool
}

// NewFakeTelegram starts a fake Bot API server closed at test cleanup.
func NewFakeTelegram(t *testing.T, token string) *FakeTelegram {
	t.Helper()

	f := &FakeTelegram{Token: token, failing: make(map[string]bool)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *FakeTelegram) URL() string {
	return f.Server.URL
}

func (f *FakeTelegram) handle(w http.ResponseWriter, r *http.Request) {
	prefix := "/bot" + f.Token + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
		return
	}
	method := strings.TrimPrefix(r.URL.Path, prefix)

	params := map[string]interface{}{}
	body, _ := io.ReadAll(r.Body)
	if len(body) > 0 {
		_ = json.Unmarshal(body, &params)
	}

	f.mu.Lock()
	f.calls = append(f.calls, TelegramCall{Method: method, Params: params})
	fail := f.failing[method]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
		return
	}

	if strings.HasPrefix(method, "send") {
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":1700000000,"chat":{"id":1,"type":"private"},"text":"ok"}}`))
		return
	}
	_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
}

// FailMethod makes every subsequent call to method return an API error.
func (f *FakeTelegram) FailMethod(method string) {
	f.mu.Lock()
	f.failing[method] = true
	f.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (f *FakeTelegram) Calls() []TelegramCall {
	f.mu.RLock()
	defer f.mu.RUnlock()

	calls := make([]TelegramCall, len(f.calls))
	copy(calls, f.calls)
	return calls
}

// CallsTo returns the recorded calls of a single method.
func (f *FakeTelegram) CallsTo(method string) []TelegramCall {
	var out []TelegramCall
	for _, c := range f.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeTelegram) Reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}
