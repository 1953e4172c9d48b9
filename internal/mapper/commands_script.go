package mapper

import (
	"context"
	"encoding/json"

	"github.com/vibium/mapper/internal/bidierr"
	"github.com/vibium/mapper/internal/cdp"
)

type remoteValue struct {
	Type  string `json:"type"`
	Value any    `json:"value,omitempty"`
}

type scriptEvaluateParams struct {
	Expression   string `json:"expression"`
	Target       scriptTarget `json:"target"`
	AwaitPromise bool   `json:"awaitPromise,omitempty"`
}

type scriptTarget struct {
	Context string `json:"context,omitempty"`
	Realm   string `json:"realm,omitempty"`
	Sandbox string `json:"sandbox,omitempty"`
}

func (s *Session) resolveRealm(t scriptTarget) (*Realm, error) {
	if t.Realm != "" {
		return s.realms.Get(t.Realm)
	}
	if t.Context == "" {
		return nil, bidierr.InvalidArgumentf("script target must name a context or realm")
	}
	r, ok := s.realms.FindBySandbox(t.Context, t.Sandbox)
	if !ok {
		return nil, bidierr.NoSuchFrameErr(t.Context)
	}
	return r, nil
}

func (s *Session) realmTarget(r *Realm) (*CdpTarget, error) {
	target, ok := s.targets.Target(r.ContextID)
	if !ok {
		return nil, bidierr.NoSuchFrameErr(r.ContextID)
	}
	return target, nil
}

func (s *Session) cmdScriptEvaluate(ctx context.Context, raw json.RawMessage) (any, error) {
	var p scriptEvaluateParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	realm, err := s.resolveRealm(p.Target)
	if err != nil {
		return nil, err
	}
	target, err := s.realmTarget(realm)
	if err != nil {
		return nil, err
	}

	var result struct {
		Result struct {
			Type  string `json:"type"`
			Value any    `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails,omitempty"`
	}
	if err := target.Call("Runtime.evaluate", map[string]any{
		"expression":            p.Expression,
		"contextId":             realm.ExecutionCtxID,
		"awaitPromise":          p.AwaitPromise,
		"returnByValue":         true,
	}, &result); err != nil {
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "Runtime.evaluate failed")
	}
	if result.ExceptionDetails != nil {
		return map[string]any{
			"type":       "exception",
			"realm":      realm.ID,
			"exceptionDetails": map[string]any{"text": result.ExceptionDetails.Text},
		}, nil
	}
	return map[string]any{
		"type":   "success",
		"realm":  realm.ID,
		"result": remoteValue{Type: result.Result.Type, Value: result.Result.Value},
	}, nil
}

type scriptCallFunctionParams struct {
	FunctionDeclaration string       `json:"functionDeclaration"`
	Target              scriptTarget `json:"target"`
	Arguments           []remoteValue `json:"arguments,omitempty"`
	AwaitPromise        bool         `json:"awaitPromise,omitempty"`
}

func (s *Session) cmdScriptCallFunction(ctx context.Context, raw json.RawMessage) (any, error) {
	var p scriptCallFunctionParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	realm, err := s.resolveRealm(p.Target)
	if err != nil {
		return nil, err
	}
	target, err := s.realmTarget(realm)
	if err != nil {
		return nil, err
	}

	args := make([]map[string]any, 0, len(p.Arguments))
	for _, a := range p.Arguments {
		args = append(args, map[string]any{"value": a.Value})
	}

	var result struct {
		Result struct {
			Type  string `json:"type"`
			Value any    `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails,omitempty"`
	}
	if err := target.Call("Runtime.callFunctionOn", map[string]any{
		"functionDeclaration": p.FunctionDeclaration,
		"executionContextId":  realm.ExecutionCtxID,
		"arguments":           args,
		"awaitPromise":        p.AwaitPromise,
		"returnByValue":       true,
	}, &result); err != nil {
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "Runtime.callFunctionOn failed")
	}
	if result.ExceptionDetails != nil {
		return map[string]any{
			"type":             "exception",
			"realm":            realm.ID,
			"exceptionDetails": map[string]any{"text": result.ExceptionDetails.Text},
		}, nil
	}
	return map[string]any{
		"type":   "success",
		"realm":  realm.ID,
		"result": remoteValue{Type: result.Result.Type, Value: result.Result.Value},
	}, nil
}

type scriptDisownParams struct {
	Handles []string     `json:"handles"`
	Target  scriptTarget `json:"target"`
}

// cmdScriptDisown releases object handles a prior evaluate/callFunction
// returned by reference.
// CDP's Runtime.releaseObject errors on an already-released or unknown
// objectId; those errors are swallowed the same way CdpTarget.Unblock
// swallows session-closure races, since disowning twice is not meaningfully
// different from disowning once.
func (s *Session) cmdScriptDisown(raw json.RawMessage) (any, error) {
	var p scriptDisownParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	realm, err := s.resolveRealm(p.Target)
	if err != nil {
		return nil, err
	}
	target, err := s.realmTarget(realm)
	if err != nil {
		return nil, err
	}
	for _, handle := range p.Handles {
		_ = target.Call("Runtime.releaseObject", cdp.ReleaseObjectParams{ObjectID: handle}, nil)
	}
	return map[string]any{}, nil
}

type scriptAddPreloadScriptParams struct {
	FunctionDeclaration string   `json:"functionDeclaration"`
	Sandbox              string   `json:"sandbox,omitempty"`
	Contexts             []string `json:"contexts,omitempty"`
}

func (s *Session) cmdScriptAddPreloadScript(raw json.RawMessage) (any, error) {
	var p scriptAddPreloadScriptParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	ps := s.preloadScripts.Add(p.FunctionDeclaration, p.Sandbox, p.Contexts)

	// Install on every currently attached target this script applies to;
	// CdpTarget.Unblock runs installPreloadScriptsOn for targets that
	// attach later, after Page.enable and before the unblocked latch
	// resolves, so the script applies to their very first document.
	targets := p.Contexts
	if len(targets) == 0 {
		targets = s.ctxs.AllTopLevel()
	}
	for _, contextID := range targets {
		bc, err := s.ctxs.Get(contextID)
		if err != nil {
			continue
		}
		target, ok := s.targets.Target(bc.TargetID)
		if !ok {
			continue
		}
		s.installPreloadScript(target, ps)
	}
	return map[string]any{"script": ps.ID}, nil
}

// installPreloadScriptsOn installs every currently registered preload
// script on a freshly attached target. CdpTarget.Unblock invokes it right
// after Page.enable and before the unblocked latch resolves.
func (s *Session) installPreloadScriptsOn(target *CdpTarget) {
	for _, ps := range s.preloadScripts.All() {
		if len(ps.Contexts) > 0 && !containsString(ps.Contexts, target.ContextID) {
			continue
		}
		s.installPreloadScript(target, ps)
	}
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (s *Session) installPreloadScript(target *CdpTarget, ps *PreloadScript) {
	var result cdp.AddScriptToEvaluateOnNewDocumentResult
	if err := target.Call("Page.addScriptToEvaluateOnNewDocument", cdp.AddScriptToEvaluateOnNewDocumentParams{
		Source: ps.Source, WorldName: ps.Sandbox,
	}, &result); err == nil {
		s.preloadScripts.BindIdentifier(ps.ID, target.TargetID, result.Identifier)
	}
}

type scriptRemovePreloadScriptParams struct {
	Script string `json:"script"`
}

func (s *Session) cmdScriptRemovePreloadScript(raw json.RawMessage) (any, error) {
	var p scriptRemovePreloadScriptParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	bindings, err := s.preloadScripts.Remove(p.Script)
	if err != nil {
		return nil, err
	}
	for _, b := range bindings {
		target, ok := s.targets.Target(b.TargetID)
		if !ok {
			continue
		}
		_ = target.Call("Page.removeScriptToEvaluateOnNewDocument", cdp.RemoveScriptToEvaluateOnNewDocumentParams{
			Identifier: b.Identifier,
		}, nil)
	}
	return map[string]any{}, nil
}

type scriptGetRealmsParams struct {
	Context string `json:"context,omitempty"`
}

func (s *Session) cmdScriptGetRealms(raw json.RawMessage) (any, error) {
	var p scriptGetRealmsParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Context == "" {
		return nil, bidierr.InvalidArgumentf("script.getRealms without a context is not supported")
	}
	realms := s.realms.ByContext(p.Context)
	out := make([]any, 0, len(realms))
	for _, r := range realms {
		realmType := r.Type
		if realmType == "" {
			realmType = "window"
		}
		out = append(out, map[string]any{
			"realm":   r.ID,
			"origin":  r.Origin,
			"type":    realmType,
			"context": r.ContextID,
		})
	}
	return map[string]any{"realms": out}, nil
}
