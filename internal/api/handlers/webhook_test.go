package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"storebridge/internal/config"
	"storebridge/internal/logger"
	syncpkg "storebridge/internal/sync"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []syncpkg.Event
}

func (r *recordingDispatcher) Handle(_ context.Context, event syncpkg.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingDispatcher) received() []syncpkg.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]syncpkg.Event(nil), r.events...)
}

func newWebhookRouter(secret string) (*gin.Engine, *recordingDispatcher) {
	gin.SetMode(gin.TestMode)
	dispatcher := &recordingDispatcher{}
	handler := NewWebhookHandler(dispatcher, &config.Config{WebhookSecret: secret}, logger.New("error"))
	router := gin.New()
	router.POST("/webhooks/erp", handler.Receive)
	return router, dispatcher
}

func postWebhook(router *gin.Engine, body, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/erp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Webhook-Secret", secret)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	router, dispatcher := newWebhookRouter("s3cret")

	w := postWebhook(router, `{"triggercode": "PRODUCT_MODIFY", "object": {"id": "1"}}`, "wrong")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	w = postWebhook(router, `{"triggercode": "PRODUCT_MODIFY", "object": {"id": "1"}}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing secret, got %d", w.Code)
	}
	if len(dispatcher.received()) != 0 {
		t.Fatalf("rejected webhooks must not be dispatched")
	}
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	router, dispatcher := newWebhookRouter("")

	for _, body := range []string{
		`not json`,
		`{"object": {"id": "1"}}`,
		`{"triggercode": "PRODUCT_MODIFY"}`,
	} {
		w := postWebhook(router, body, "")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, w.Code)
		}
	}
	if len(dispatcher.received()) != 0 {
		t.Fatalf("malformed webhooks must not be dispatched")
	}
}

func TestWebhookAcknowledgesThenDispatches(t *testing.T) {
	router, dispatcher := newWebhookRouter("s3cret")

	w := postWebhook(router, `{"triggercode": "STOCK_MOVEMENT", "object": {"id": "42"}}`, "s3cret")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	// Dispatch happens after the ack, off the request goroutine.
	deadline := time.Now().Add(2 * time.Second)
	for {
		events := dispatcher.received()
		if len(events) == 1 {
			if events[0].TriggerCode != "STOCK_MOVEMENT" {
				t.Fatalf("unexpected trigger %q", events[0].TriggerCode)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("dispatcher never received the event")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
