package mapper

import (
	"encoding/json"

	"github.com/vibium/mapper/internal/bidierr"
)

func unmarshalParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return bidierr.InvalidArgumentf("malformed params: %v", err)
	}
	return nil
}

func (s *Session) cmdSessionStatus() (any, error) {
	return map[string]any{"ready": false, "message": "already connected"}, nil
}

type sessionNewParams struct {
	Capabilities map[string]any `json:"capabilities"`
}

func (s *Session) cmdSessionNew(raw json.RawMessage) (any, error) {
	var p sessionNewParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	return map[string]any{
		"sessionId": "1",
		"capabilities": map[string]any{
			"browserName":    "mapper",
			"acceptInsecureCerts": false,
		},
	}, nil
}

func (s *Session) cmdSessionEnd() (any, error) {
	return map[string]any{}, s.Close()
}

type subscriptionParams struct {
	Events   []string `json:"events"`
	Contexts []string `json:"contexts,omitempty"`
}

func (s *Session) cmdSessionSubscribe(raw json.RawMessage, channel string) (any, error) {
	var p subscriptionParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if len(p.Contexts) == 0 {
		for _, event := range p.Events {
			s.subs.Subscribe(event, "", channel)
		}
		return map[string]any{}, nil
	}
	for _, context := range p.Contexts {
		if _, err := s.ctxs.Get(context); err != nil {
			return nil, err
		}
		for _, event := range p.Events {
			s.subs.Subscribe(event, context, channel)
		}
	}
	return map[string]any{}, nil
}

func (s *Session) cmdSessionUnsubscribe(raw json.RawMessage, channel string) (any, error) {
	var p subscriptionParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	contexts := p.Contexts
	if len(contexts) == 0 {
		contexts = []string{""}
	}
	entries := make([]UnsubscribeAllEntry, 0, len(p.Events)*len(contexts))
	for _, context := range contexts {
		for _, event := range p.Events {
			entries = append(entries, UnsubscribeAllEntry{Event: event, Context: context})
		}
	}
	if err := s.subs.UnsubscribeAll(entries, channel); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}
