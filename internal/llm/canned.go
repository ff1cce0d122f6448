package llm

import (
	"context"
	"strings"
	"sync"
)

// Canned is a deterministic Port for tests. Classify returns the response
// registered for the exact message, else Default. Summarize keeps the last
// maxTokens words.
type Canned struct {
	Responses map[string]*ExtractionResponse
	Default   *ExtractionResponse
	Err       error // returned by Classify when set
	SumErr    error // returned by Summarize when set

	mu       sync.Mutex
	requests []ExtractionRequest
}

func (c *Canned) Classify(_ context.Context, req ExtractionRequest) (*ExtractionResponse, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	if c.Err != nil {
		return nil, &ClassificationError{Err: c.Err}
	}
	if resp, ok := c.Responses[req.Message]; ok {
		return Normalize(resp), nil
	}
	return Normalize(c.Default), nil
}

func (c *Canned) Summarize(_ context.Context, text string, maxTokens int) (string, error) {
	if c.SumErr != nil {
		return "", c.SumErr
	}
	words := strings.Fields(text)
	if maxTokens > 0 && len(words) > maxTokens {
		words = words[len(words)-maxTokens:]
	}
	return strings.Join(words, " "), nil
}

// Requests returns the classification requests seen so far.
func (c *Canned) Requests() []ExtractionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ExtractionRequest(nil), c.requests...)
}
