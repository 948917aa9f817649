// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody bounds how much of a failed provider response is kept for logs.
const maxErrorBody = 1 << 10

// ResendSender delivers mail through the Resend REST API.
type ResendSender struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
}

// NewResendSender builds a sender for the Resend API at baseURL.
func NewResendSender(apiKey, from, baseURL string) *ResendSender {
	return &ResendSender{
		apiKey:  apiKey,
		from:    from,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// Send implements [Sender].
func (sender *ResendSender) Send(ctx context.Context, message Message) error {
	payload, err := json.Marshal(resendRequest{
		From:    sender.from,
		To:      []string{message.To},
		Subject: message.Subject,
		HTML:    message.HTML,
		Text:    message.Text,
	})
	if err != nil {
		return fmt.Errorf("resend_encode: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, sender.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("resend_request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+sender.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := sender.client.Do(request)
	if err != nil {
		return fmt.Errorf("resend_send: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
		return fmt.Errorf("resend_send: status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}

	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}
