package types

import (
	"encoding/json"
	"strings"
)

// PayloadKind is the result of classifying one inbound live-agent frame.
type PayloadKind int

const (
	// PayloadContent is a normal agent message to render.
	PayloadContent PayloadKind = iota
	// PayloadCompleted is an explicit end-of-session signal.
	PayloadCompleted
	// PayloadTerminal is a message whose text matches a known end-of-session
	// phrase ("no agents available", ...). It is not rendered as content.
	PayloadTerminal
	// PayloadMalformed is a frame that failed to parse.
	PayloadMalformed
)

// BodyEntry is one typed entry of a nested payload body. The backend uses
// these for wait-time announcements and plain output text.
type BodyEntry struct {
	UIType string `json:"uiType"`
	Value  string `json:"value"`
}

// AgentPayload is the wire shape of an inbound live-agent frame. Depending
// on the backend path the text arrives either as a flat field or inside a
// body list.
type AgentPayload struct {
	Text      string      `json:"text"`
	Body      []BodyEntry `json:"body"`
	Completed bool        `json:"completed"`
	AgentName string      `json:"agentName"`
}

// ClassifiedPayload is an AgentPayload after the up-front classification
// step: a single text, the detected kind and the agent name if any.
type ClassifiedPayload struct {
	Kind      PayloadKind
	Text      string
	AgentName string
}

// ClassifyAgentPayload parses a raw frame and classifies it. Terminal-phrase
// matching is a case-insensitive substring check on purpose: the backend's
// phrasing varies and exact matching would silently miss it.
func ClassifyAgentPayload(raw []byte, terminalPhrases []string) ClassifiedPayload {
	var p AgentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ClassifiedPayload{Kind: PayloadMalformed}
	}

	text := p.Text
	if text == "" {
		for _, entry := range p.Body {
			if entry.UIType == "OutputText" && entry.Value != "" {
				text = entry.Value
				break
			}
		}
	}

	if p.Completed {
		return ClassifiedPayload{Kind: PayloadCompleted, Text: text, AgentName: p.AgentName}
	}

	lower := strings.ToLower(text)
	for _, phrase := range terminalPhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return ClassifiedPayload{Kind: PayloadTerminal, Text: text, AgentName: p.AgentName}
		}
	}

	return ClassifiedPayload{Kind: PayloadContent, Text: text, AgentName: p.AgentName}
}
