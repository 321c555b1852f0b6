package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"scholarwatch/internal/types"
)

const sendGridAPIBase = "https://api.sendgrid.com"

// EmailProvider sends one templated email and returns the provider's
// message id.
type EmailProvider interface {
	Send(ctx context.Context, input types.SendInput) (string, error)
}

// SendGridConfig configures a SendGridClient.
type SendGridConfig struct {
	APIKey  types.SecretString
	BaseURL string
	Logger  *slog.Logger
}

// SendGridClient calls the SendGrid v3 Mail Send API with dynamic templates.
type SendGridClient struct {
	base    *BaseClient
	apiKey  types.SecretString
	baseURL string
	logger  *slog.Logger
}

var _ EmailProvider = (*SendGridClient)(nil)

// NewSendGridClient creates a client with the default retry policy.
func NewSendGridClient(httpClient *http.Client, cfg SendGridConfig) *SendGridClient {
	return NewSendGridClientWithBase(
		NewBaseClient(httpClient, "sendgrid", DefaultRetryPolicy(), "Scholarwatch/1.0"),
		cfg,
	)
}

// NewSendGridClientWithBase creates a client over a preconfigured BaseClient.
func NewSendGridClientWithBase(base *BaseClient, cfg SendGridConfig) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SendGridClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

type sgMail struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	TemplateID       string              `json:"template_id"`
	CustomArgs       map[string]string   `json:"custom_args,omitempty"`
}

type sgPersonalization struct {
	To          []sgAddress            `json:"to"`
	DynamicData map[string]interface{} `json:"dynamic_template_data,omitempty"`
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgErrors struct {
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

// Send posts input to /v3/mail/send. SendGrid answers 202 with the message id
// in X-Message-Id. A 403 means the recipient is suppressed and maps to
// ErrCodeEmailBlocked; other 4xx map to ErrCodeUpstreamEmailProvider.
func (s *SendGridClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	mail := sgMail{
		Personalizations: []sgPersonalization{{
			To:          []sgAddress{{Email: input.To}},
			DynamicData: input.TemplateData,
		}},
		From:       sgAddress{Email: input.From.Address, Name: input.From.Name},
		TemplateID: input.TemplateID,
	}
	if input.ReferenceID != "" {
		mail.CustomArgs = map[string]string{"reference_id": input.ReferenceID}
	}

	body, err := json.Marshal(mail)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode mail", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build mail request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey.Unmask())

	start := time.Now()
	resp, err := s.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		id := resp.Header.Get("X-Message-Id")
		s.logger.DebugContext(ctx, "sendgrid accepted mail",
			"message_id", id,
			"reference_id", input.ReferenceID,
			"latency_ms", time.Since(start).Milliseconds(),
		)
		return id, nil
	}
	return "", sendGridError(resp)
}

func sendGridError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(raw))
	var parsed sgErrors
	if json.Unmarshal(raw, &parsed) == nil && len(parsed.Errors) > 0 {
		msg = parsed.Errors[0].Message
	}

	if resp.StatusCode == http.StatusForbidden {
		return types.NewAppError(types.ErrCodeEmailBlocked, "sendgrid blocked delivery: "+msg, nil)
	}
	return types.NewAppError(types.ErrCodeUpstreamEmailProvider,
		fmt.Sprintf("sendgrid error (%d): %s", resp.StatusCode, msg), nil)
}
