// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package provider abstracts the upstream image generation API behind a
// small chat interface so the orchestration layer stays testable.
package provider

import "context"

// Part is one piece of a chat message, either text or inline image data.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// Content is one turn of chat history. Role is "user" or "model".
type Content struct {
	Role  string
	Parts []Part
}

// Reply is the provider's answer to a single message.
type Reply struct {
	Parts []Part
}

// ChatOptions configure a chat. AspectRatio "auto" leaves the choice to the
// model.
type ChatOptions struct {
	Model       string
	AspectRatio string
	ImageSize   string
}

// Chat is a stateful conversation with the upstream model.
type Chat interface {
	Send(ctx context.Context, parts []Part) (*Reply, error)
}

// ChatProvider hands out chats keyed by session id. GetOrCreate returns a
// cached chat when one exists with matching options, otherwise it builds a
// new one from the stored history; history is only called in that case.
type ChatProvider interface {
	GetOrCreate(ctx context.Context, sessionID string, opts ChatOptions, history func() []Content) (Chat, error)
	Remove(sessionID string)
}
