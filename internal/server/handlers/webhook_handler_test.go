package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/mamadbah2/herdbook/internal/config"
	"github.com/mamadbah2/herdbook/internal/domain/models"
	"github.com/mamadbah2/herdbook/internal/service/whatsapp"
)

type recordingClient struct {
	sent []string
}

func (r *recordingClient) SendText(_ context.Context, to, _ string) (string, error) {
	r.sent = append(r.sent, to)
	return "wamid", nil
}

type echoDispatcher struct{}

func (echoDispatcher) HandleCommand(_ context.Context, cmd models.Command, _ string) (string, error) {
	return string(cmd.Type), nil
}

const webhookBody = `{"entry":[{"changes":[{"value":{"messages":[{"from":"9725","id":"m1","type":"text","text":{"body":"/help"}}]}}]}]}`

func newWebhookEngine(secret string) (*gin.Engine, *recordingClient) {
	gin.SetMode(gin.TestMode)
	client := &recordingClient{}
	svc := whatsapp.NewMetaWhatsAppService(config.WhatsAppConfig{AppSecret: secret}, client, echoDispatcher{}, nil)
	h := NewWebhookHandler(svc, nil)

	engine := gin.New()
	engine.POST("/webhook", h.Receive)
	return engine, client
}

func postWebhook(engine *gin.Engine, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestReceiveRequiresSignature(t *testing.T) {
	engine, client := newWebhookEngine("app-secret")

	if rec := postWebhook(engine, webhookBody, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without signature got %d", rec.Code)
	}
	if rec := postWebhook(engine, webhookBody, "sha256=00"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong signature got %d", rec.Code)
	}
	if len(client.sent) != 0 {
		t.Fatalf("unsigned callbacks must not be answered: %v", client.sent)
	}

	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write([]byte(webhookBody))
	signature := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if rec := postWebhook(engine, webhookBody, signature); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(client.sent) != 1 || client.sent[0] != "9725" {
		t.Fatalf("expected one reply to 9725, got %v", client.sent)
	}
}

func TestReceiveRejectsMalformedPayload(t *testing.T) {
	engine, _ := newWebhookEngine("")
	if rec := postWebhook(engine, "{not json", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}
