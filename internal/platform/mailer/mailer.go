// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package mailer delivers transactional email outside the request path.

Handlers enqueue a [Message] on a [Dispatcher] after their database write has
committed and return immediately. Background workers then deliver through a
[Sender] under their own timeout and a shared send-rate limit. A slow or failed
provider therefore never rolls back, blocks or fails the request that produced
the email.

Senders:

  - ResendSender: the Resend HTTP API, used in every deployed environment.
  - LogSender: writes the message to the log, for local development only.
*/
package mailer

import (
	"context"
	"log/slog"
)

// Kinds label messages in logs and metrics.
const (
	KindVerification  = "verification"
	KindPasswordReset = "password_reset"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
	Kind    string
}

// Sender performs the actual delivery of one message.
type Sender interface {
	Send(ctx context.Context, message Message) error
}

// LogSender prints messages instead of sending them.
//
// The body contains live tokens, so configuration refuses this sender in production.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender builds a development [LogSender].
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send implements [Sender].
func (sender *LogSender) Send(ctx context.Context, message Message) error {
	sender.logger.InfoContext(ctx, "mail_logged",
		slog.String("kind", message.Kind),
		slog.String("to", message.To),
		slog.String("subject", message.Subject),
		slog.String("text", message.Text),
	)
	return nil
}
