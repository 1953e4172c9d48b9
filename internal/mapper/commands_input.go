package mapper

import (
	"encoding/json"
	"time"

	"github.com/vibium/mapper/internal/bidierr"
	"github.com/vibium/mapper/internal/cdp"
)

type inputPerformActionsParams struct {
	Context string            `json:"context"`
	Actions []inputSourceActions `json:"actions"`
}

type inputSourceActions struct {
	Type       string       `json:"type"`
	ID         string       `json:"id"`
	Parameters *inputPointerParameters `json:"parameters,omitempty"`
	Actions    []inputAction `json:"actions"`
}

type inputPointerParameters struct {
	PointerType string `json:"pointerType,omitempty"`
}

type inputAction struct {
	Type     string  `json:"type"`
	Value    string  `json:"value,omitempty"`
	Button   int     `json:"button,omitempty"`
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
	DeltaX   float64 `json:"deltaX,omitempty"`
	DeltaY   float64 `json:"deltaY,omitempty"`
	DurationMs int   `json:"duration,omitempty"`
	Origin   json.RawMessage `json:"origin,omitempty"`
}

// parseOrigin decodes an action's "origin" field, which the wire format
// overloads: the strings "viewport"/"pointer", or an element reference
// object {type:"element", element:{sharedId|handle}}. The element's
// sharedId/handle passes through as the CDP object id the same way
// input.setFiles resolves its element reference.
func parseOrigin(raw json.RawMessage) (Origin, error) {
	if len(raw) == 0 {
		return Origin{Type: OriginViewport}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "viewport":
			return Origin{Type: OriginViewport}, nil
		case "pointer":
			return Origin{Type: OriginPointer}, nil
		default:
			return Origin{}, bidierr.InvalidArgumentf("unknown origin %q", s)
		}
	}
	var obj struct {
		Type    string          `json:"type"`
		Element sharedReference `json:"element"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Origin{}, bidierr.InvalidArgumentf("malformed origin: %v", err)
	}
	if obj.Type != "element" {
		return Origin{}, bidierr.InvalidArgumentf("unknown origin type %q", obj.Type)
	}
	objectID := obj.Element.Handle
	if objectID == "" {
		objectID = obj.Element.SharedID
	}
	if objectID == "" {
		return Origin{}, bidierr.New(bidierr.NoSuchElement, "element origin did not resolve to an element")
	}
	return Origin{Type: OriginElement, ElementObjectID: objectID}, nil
}

func (s *Session) cmdInputPerformActions(raw json.RawMessage) (any, error) {
	var p inputPerformActionsParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	bc, err := s.ctxs.Get(p.Context)
	if err != nil {
		return nil, err
	}
	target, ok := s.targets.Target(bc.TargetID)
	if !ok {
		return nil, bidierr.NoSuchFrameErr(p.Context)
	}

	ticks, err := buildTicks(p.Actions)
	if err != nil {
		return nil, err
	}

	topLevelID, _ := s.ctxs.TopLevelID(p.Context)
	dispatcher := NewActionDispatcher(s.inputs.Get(topLevelID), target)
	if err := dispatcher.Dispatch(ticks); err != nil {
		if _, ok := bidierr.As(err); ok {
			return nil, err
		}
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "input dispatch failed")
	}
	return map[string]any{}, nil
}

// buildTicks transposes per-source action lists into a tick-major matrix:
// ticks[i][sourceID] is source sourceID's action for tick i, per the
// WebDriver Actions synchronization model.
func buildTicks(sources []inputSourceActions) ([]map[string]sourceAction, error) {
	maxTicks := 0
	for _, src := range sources {
		if len(src.Actions) > maxTicks {
			maxTicks = len(src.Actions)
		}
	}
	ticks := make([]map[string]sourceAction, maxTicks)
	for i := range ticks {
		ticks[i] = make(map[string]sourceAction)
	}

	for _, src := range sources {
		subtype := PointerMouse
		if src.Parameters != nil && src.Parameters.PointerType != "" {
			subtype = PointerSubtype(src.Parameters.PointerType)
		}
		for i, a := range src.Actions {
			origin, err := parseOrigin(a.Origin)
			if err != nil {
				return nil, err
			}
			action := Action{
				Type:     a.Type,
				Key:      a.Value,
				Button:   a.Button,
				X:        a.X,
				Y:        a.Y,
				DeltaX:   a.DeltaX,
				DeltaY:   a.DeltaY,
				Duration: time.Duration(a.DurationMs) * time.Millisecond,
				Origin:   origin,
			}
			ticks[i][src.ID] = sourceAction{
				typ:     SourceType(src.Type),
				subtype: subtype,
				action:  action,
			}
		}
	}
	return ticks, nil
}

type inputSetFilesParams struct {
	Context string           `json:"context"`
	Element sharedReference  `json:"element"`
	Files   []string         `json:"files"`
}

type sharedReference struct {
	SharedID string `json:"sharedId,omitempty"`
	Handle   string `json:"handle,omitempty"`
}

// cmdInputSetFiles resolves element to a backing DOM node and sets its file
// input's selected files via CDP. Per the BiDi spec this is "no such element" if
// the shared reference can't be resolved to an Element (a full
// implementation would walk the serialized-node-cache the script realm
// bookkeeping populates; here the handle/sharedId is passed straight
// through to DOM.setFileInputFiles as a CDP objectId, since this core
// doesn't maintain that node cache independently of Runtime's own object
// ids).
func (s *Session) cmdInputSetFiles(raw json.RawMessage) (any, error) {
	var p inputSetFilesParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	bc, err := s.ctxs.Get(p.Context)
	if err != nil {
		return nil, err
	}
	target, ok := s.targets.Target(bc.TargetID)
	if !ok {
		return nil, bidierr.NoSuchFrameErr(p.Context)
	}
	objectID := p.Element.Handle
	if objectID == "" {
		objectID = p.Element.SharedID
	}
	if objectID == "" {
		return nil, bidierr.New(bidierr.NoSuchElement, "element reference did not resolve to an element")
	}
	if err := target.Call("DOM.setFileInputFiles", cdp.SetFileInputFilesParams{
		Files: p.Files, ObjectID: objectID,
	}, nil); err != nil {
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "DOM.setFileInputFiles failed")
	}
	return map[string]any{}, nil
}

type inputReleaseActionsParams struct {
	Context string `json:"context"`
}

// cmdInputReleaseActions replays the context's cancel list in reverse — a
// synthetic keyUp for every key still held, a pointerUp for every button
// still pressed — then forgets that top-level context's input state
// entirely.
func (s *Session) cmdInputReleaseActions(raw json.RawMessage) (any, error) {
	var p inputReleaseActionsParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	bc, err := s.ctxs.Get(p.Context)
	if err != nil {
		return nil, err
	}
	target, ok := s.targets.Target(bc.TargetID)
	if !ok {
		return nil, bidierr.NoSuchFrameErr(p.Context)
	}

	topLevelID, _ := s.ctxs.TopLevelID(p.Context)
	dispatcher := NewActionDispatcher(s.inputs.Get(topLevelID), target)
	dispatcher.ReleaseAll()
	s.inputs.Forget(topLevelID)
	return map[string]any{}, nil
}
