package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"billing-workers/internal/common/config"
	commonhttp "billing-workers/internal/common/http"
	"billing-workers/internal/common/logger"
	"billing-workers/internal/notification"
)

// WhatsAppAdapter sends text messages through the WhatsApp Cloud API.
type WhatsAppAdapter struct {
	cfg    config.WhatsAppConfig
	rules  PhoneRules
	client *commonhttp.Client
	logger logger.Logger
}

func NewWhatsAppAdapter(cfg config.WhatsAppConfig, rules PhoneRules, timeout time.Duration, log logger.Logger) *WhatsAppAdapter {
	return &WhatsAppAdapter{
		cfg:    cfg,
		rules:  rules,
		client: commonhttp.NewClient(timeout),
		logger: log.WithFields(map[string]interface{}{"channel": notification.ChannelWhatsApp}),
	}
}

func (a *WhatsAppAdapter) Channel() notification.Channel { return notification.ChannelWhatsApp }

type whatsappText struct {
	Body string `json:"body"`
}

type whatsappRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsappText `json:"text"`
}

type whatsappResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (a *WhatsAppAdapter) Deliver(ctx context.Context, msg Message) DeliveryResult {
	if a.cfg.AccessToken == "" || a.cfg.PhoneNumberID == "" {
		return Misconfigured("whatsapp access token or phone number id not configured")
	}

	phone := NormalizePhone(msg.Recipient.Phone, a.rules)
	if phone == "" {
		return Misconfigured("recipient %s has no phone number", msg.Recipient.ID)
	}

	url := fmt.Sprintf("%s/%s/messages", strings.TrimRight(a.cfg.BaseURL, "/"), a.cfg.PhoneNumberID)
	req := whatsappRequest{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(phone, "+"),
		Type:             "text",
		Text:             whatsappText{Body: msg.Body},
	}

	var resp whatsappResponse
	err := a.client.PostJSON(ctx, url, map[string]string{"Authorization": "Bearer " + a.cfg.AccessToken}, req, &resp)
	if err != nil {
		a.logger.Warn("whatsapp send failed", map[string]interface{}{
			"notificationId": msg.NotificationID,
			"error":          err.Error(),
		})
		var statusErr *commonhttp.StatusError
		if errors.As(err, &statusErr) && (statusErr.StatusCode == 401 || statusErr.StatusCode == 403) {
			return Misconfigured("whatsapp rejected credentials: %s", statusErr.Error())
		}
		return Failed("whatsapp: %v", err)
	}

	if len(resp.Messages) == 0 {
		return Failed("whatsapp: response contained no message id")
	}
	return Delivered(resp.Messages[0].ID)
}
