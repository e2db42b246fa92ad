// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package provider

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"codeberg.org/oliverandrich/nanobanana/internal/config"
	"google.golang.org/genai"
)

// Gemini talks to the Gemini API. Chats are cached per session so follow-up
// turns reuse the server-side conversation state instead of resending the
// full history. The cache is never evicted on its own; Remove drops an
// entry when its session is deleted.
type Gemini struct {
	client *genai.Client

	mu    sync.Mutex
	chats map[string]*cachedChat
}

type cachedChat struct {
	chat *genai.Chat
	opts ChatOptions
}

// NewGemini creates a provider from configuration.
func NewGemini(ctx context.Context, cfg *config.GeminiConfig) (*Gemini, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		chats:  make(map[string]*cachedChat),
	}, nil
}

// GetOrCreate returns the cached chat for the session, rebuilding it from
// history when none exists or the options changed.
func (g *Gemini) GetOrCreate(ctx context.Context, sessionID string, opts ChatOptions, history func() []Content) (Chat, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cached, ok := g.chats[sessionID]; ok && cached.opts == opts {
		return &geminiChat{chat: cached.chat}, nil
	}

	chat, err := g.createChat(ctx, opts, history())
	if err != nil {
		return nil, classifyError(err)
	}
	g.chats[sessionID] = &cachedChat{chat: chat, opts: opts}
	return &geminiChat{chat: chat}, nil
}

// Remove drops the cached chat for a session.
func (g *Gemini) Remove(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.chats, sessionID)
}

func (g *Gemini) createChat(ctx context.Context, opts ChatOptions, history []Content) (*genai.Chat, error) {
	genConfig := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	imageConfig := &genai.ImageConfig{}
	if opts.AspectRatio != "" && opts.AspectRatio != "auto" {
		imageConfig.AspectRatio = opts.AspectRatio
	}
	if opts.ImageSize != "" {
		imageConfig.ImageSize = opts.ImageSize
	}
	if imageConfig.AspectRatio != "" || imageConfig.ImageSize != "" {
		genConfig.ImageConfig = imageConfig
	}

	return g.client.Chats.Create(ctx, opts.Model, genConfig, toGenaiHistory(history))
}

func toGenaiHistory(history []Content) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, content := range history {
		parts := make([]*genai.Part, 0, len(content.Parts))
		for _, part := range content.Parts {
			parts = append(parts, toGenaiPart(part))
		}
		out = append(out, &genai.Content{Role: content.Role, Parts: parts})
	}
	return out
}

func toGenaiPart(part Part) *genai.Part {
	if part.Data != nil {
		return &genai.Part{InlineData: &genai.Blob{MIMEType: part.MIMEType, Data: part.Data}}
	}
	return &genai.Part{Text: part.Text}
}

type geminiChat struct {
	chat *genai.Chat
}

func (c *geminiChat) Send(ctx context.Context, parts []Part) (*Reply, error) {
	genaiParts := make([]genai.Part, 0, len(parts))
	for _, part := range parts {
		genaiParts = append(genaiParts, *toGenaiPart(part))
	}

	resp, err := c.chat.SendMessage(ctx, genaiParts...)
	if err != nil {
		return nil, classifyError(err)
	}

	reply := &Reply{}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return reply, nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil {
			reply.Parts = append(reply.Parts, Part{
				Data:     part.InlineData.Data,
				MIMEType: part.InlineData.MIMEType,
			})
			continue
		}
		if part.Text != "" {
			reply.Parts = append(reply.Parts, Part{Text: part.Text})
		}
	}
	return reply, nil
}
