package mapper

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vibium/mapper/internal/bidierr"
	"github.com/vibium/mapper/internal/cdp"
)

type browsingContextCreateParams struct {
	Type            string `json:"type"` // "tab" | "window"
	ReferenceContext string `json:"referenceContext,omitempty"`
}

func (s *Session) cmdBrowsingContextCreate(ctx context.Context, raw json.RawMessage) (any, error) {
	var p browsingContextCreateParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}

	var result struct {
		TargetID string `json:"targetId"`
	}
	root := cdp.Root(s.cdpClient)
	if err := root.Call("Target.createTarget", map[string]any{"url": "about:blank", "newWindow": p.Type == "window"}, &result); err != nil {
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "Target.createTarget failed")
	}

	bc, err := s.awaitContext(ctx, result.TargetID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"context": bc.ID}, nil
}

// awaitContext polls for a context to appear in storage, bridging the gap
// between issuing Target.createTarget and the asynchronous
// Target.attachedToTarget event that actually registers it (the Target
// Manager's handleAttached runs on its own goroutine off the CDP read
// loop). A condition variable would avoid the poll, but a short busy-wait
// is simpler for a single call site than adding a new synchronization
// primitive just for this gap.
func (s *Session) awaitContext(ctx context.Context, targetID string) (*BrowsingContext, error) {
	deadline := time.Now().Add(5 * time.Second)
	for {
		if bc, err := s.ctxs.Get(targetID); err == nil {
			return bc, nil
		}
		select {
		case <-ctx.Done():
			return nil, bidierr.Wrap(bidierr.UnknownError, ctx.Err(), "context never attached")
		case <-time.After(10 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			return nil, bidierr.New(bidierr.UnknownError, "timed out waiting for context %s to attach", targetID)
		}
	}
}

type browsingContextNavigateParams struct {
	Context string `json:"context"`
	URL     string `json:"url"`
	Wait    string `json:"wait,omitempty"`
}

func (s *Session) cmdBrowsingContextNavigate(ctx context.Context, raw json.RawMessage) (any, error) {
	var p browsingContextNavigateParams
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
	if err := target.WaitUnblocked(ctx); err != nil {
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "target never finished attaching")
	}

	// The navigation is registered before Page.navigate is issued so that
	// any CDP event the call itself provokes (frameRequestedNavigation,
	// lifecycleEvent) lands against this navigation rather than whatever
	// was previously current on the context).
	nav := s.nav.StartNavigation(p.Context, "", p.URL)
	s.events.Emit("browsingContext.navigationStarted", p.Context, func() (any, error) {
		return map[string]any{"context": p.Context, "navigation": nav.ID, "url": p.URL}, nil
	})

	var navResult cdp.NavigateResult
	if err := target.Call("Page.navigate", cdp.NavigateParams{URL: p.URL, FrameID: bc.TargetID}, &navResult); err != nil {
		s.nav.Failed(p.Context, nav.ID, err)
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "Page.navigate failed")
	}
	if navResult.ErrorText != "" {
		cause := bidierr.New(bidierr.UnknownError, "navigation failed: %s", navResult.ErrorText)
		s.nav.Failed(p.Context, nav.ID, cause)
		return nil, cause
	}
	// An empty loader id means CDP treated this as a same-document
	// navigation; the within-document handler resolves the latches then.
	if navResult.LoaderID != "" {
		s.nav.SetLoader(p.Context, navResult.LoaderID)
	}

	s.ctxs.RecordNavigation(p.Context, p.URL)
	wait := WaitCondition(p.Wait)
	if wait == "" {
		wait = WaitComplete
	}
	if err := s.nav.Wait(ctx, nav, wait); err != nil {
		// A navigation canceled by a superseding one
		// still resolves this command successfully: navigationAborted has
		// already been emitted for it by the time Wait returns.
		if isCanceledNavigation(err) {
			return map[string]any{"navigation": nav.ID, "url": p.URL}, nil
		}
		return nil, wrapNavigationErr(err)
	}
	return map[string]any{"navigation": nav.ID, "url": p.URL}, nil
}

type browsingContextCloseParams struct {
	Context string `json:"context"`
}

func (s *Session) cmdBrowsingContextClose(raw json.RawMessage) (any, error) {
	var p browsingContextCloseParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	bc, err := s.ctxs.Get(p.Context)
	if err != nil {
		return nil, err
	}
	root := cdp.Root(s.cdpClient)
	if err := root.Call("Target.closeTarget", map[string]any{"targetId": bc.TargetID}, nil); err != nil {
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "Target.closeTarget failed")
	}
	return map[string]any{}, nil
}

type browsingContextGetTreeParams struct {
	Root string `json:"root,omitempty"`
}

func (s *Session) cmdBrowsingContextGetTree(raw json.RawMessage) (any, error) {
	var p browsingContextGetTreeParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}

	roots := []string{p.Root}
	if p.Root == "" {
		roots = s.ctxs.AllTopLevel()
	}

	infos := make([]any, 0, len(roots))
	for _, id := range roots {
		info, err := s.contextInfo(id)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return map[string]any{"contexts": infos}, nil
}

type browsingContextReloadParams struct {
	Context     string `json:"context"`
	IgnoreCache bool   `json:"ignoreCache,omitempty"`
	Wait        string `json:"wait,omitempty"`
}

func (s *Session) cmdBrowsingContextReload(ctx context.Context, raw json.RawMessage) (any, error) {
	var p browsingContextReloadParams
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
	if err := target.WaitUnblocked(ctx); err != nil {
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "target never finished attaching")
	}

	nav := s.nav.StartNavigation(p.Context, "", bc.URL)
	s.events.Emit("browsingContext.navigationStarted", p.Context, func() (any, error) {
		return map[string]any{"context": p.Context, "navigation": nav.ID, "url": nav.URL}, nil
	})
	if err := target.Call("Page.reload", cdp.ReloadParams{IgnoreCache: p.IgnoreCache}, nil); err != nil {
		s.nav.Failed(p.Context, nav.ID, err)
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "Page.reload failed")
	}

	wait := WaitCondition(p.Wait)
	if wait == "" {
		wait = WaitComplete
	}
	if err := s.nav.Wait(ctx, nav, wait); err != nil {
		if isCanceledNavigation(err) {
			return map[string]any{"navigation": nav.ID, "url": bc.URL}, nil
		}
		return nil, wrapNavigationErr(err)
	}
	return map[string]any{"navigation": nav.ID, "url": bc.URL}, nil
}

type browsingContextTraverseHistoryParams struct {
	Context string `json:"context"`
	Delta   int    `json:"delta"`
}

func (s *Session) cmdBrowsingContextTraverseHistory(raw json.RawMessage) (any, error) {
	var p browsingContextTraverseHistoryParams
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

	bc.mu.Lock()
	newIndex := bc.HistoryIndex + p.Delta
	if newIndex < 0 || newIndex >= len(bc.History) {
		bc.mu.Unlock()
		return nil, bidierr.NoSuchHistoryEntryErr(p.Delta)
	}
	url := bc.History[newIndex]
	bc.HistoryIndex = newIndex
	bc.mu.Unlock()

	// CDP's own history entries are addressed by an opaque integer id from
	// Page.getNavigationHistory; without a live CDP round trip to resolve
	// delta -> entryId this falls back to a plain Page.navigate to the
	// recorded URL, which produces the same end state for same-document as
	// well as cross-document history entries.
	if err := target.Call("Page.navigate", cdp.NavigateParams{URL: url, FrameID: bc.TargetID}, nil); err != nil {
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "Page.navigate failed")
	}
	return map[string]any{}, nil
}

type browsingContextCaptureScreenshotParams struct {
	Context string                   `json:"context"`
	Origin  string                   `json:"origin,omitempty"` // "viewport" | "document"
	Format  *screenshotFormatParams `json:"format,omitempty"`
	Clip    *screenshotClipParams   `json:"clip,omitempty"`
}

type screenshotFormatParams struct {
	Type    string `json:"type,omitempty"`
	Quality float64 `json:"quality,omitempty"`
}

type screenshotClipParams struct {
	Type   string  `json:"type"` // "box" | "element"
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

func (s *Session) cmdBrowsingContextCaptureScreenshot(raw json.RawMessage) (any, error) {
	var p browsingContextCaptureScreenshotParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	bc, err := s.ctxs.Get(p.Context)
	if err != nil {
		return nil, err
	}
	if bc.Parent != "" {
		return nil, bidierr.UnsupportedOperationErr("captureScreenshot on a non-top-level context")
	}
	target, ok := s.targets.Target(bc.TargetID)
	if !ok {
		return nil, bidierr.NoSuchFrameErr(p.Context)
	}

	params := cdp.CaptureScreenshotParams{Format: "png"}
	if p.Format != nil && p.Format.Type != "" {
		params.Format = p.Format.Type
		params.Quality = int(p.Format.Quality)
	}
	if p.Clip != nil {
		if p.Clip.Width <= 0 || p.Clip.Height <= 0 {
			return nil, bidierr.New(bidierr.UnableToCaptureScreen, "clip resolves to zero area")
		}
		params.Clip = &cdp.ScreenshotClip{X: p.Clip.X, Y: p.Clip.Y, Width: p.Clip.Width, Height: p.Clip.Height, Scale: 1}
	}

	var result cdp.CaptureScreenshotResult
	if err := target.Call("Page.captureScreenshot", params, &result); err != nil {
		return nil, bidierr.Wrap(bidierr.UnableToCaptureScreen, err, "Page.captureScreenshot failed")
	}
	return map[string]any{"data": result.Data}, nil
}

type browsingContextPrintParams struct {
	Context     string  `json:"context"`
	Background  bool    `json:"background,omitempty"`
	Orientation string  `json:"orientation,omitempty"` // "portrait" | "landscape"
	Page        *printPageSize `json:"page,omitempty"`
}

type printPageSize struct {
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

func (s *Session) cmdBrowsingContextPrint(raw json.RawMessage) (any, error) {
	var p browsingContextPrintParams
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

	params := cdp.PrintToPDFParams{
		Landscape:       p.Orientation == "landscape",
		PrintBackground: p.Background,
	}
	if p.Page != nil {
		if p.Page.Width <= 0 || p.Page.Height <= 0 {
			return nil, bidierr.UnsupportedOperationErr("print content area is empty")
		}
		params.PaperWidth = p.Page.Width
		params.PaperHeight = p.Page.Height
	}
	var result cdp.PrintToPDFResult
	if err := target.Call("Page.printToPDF", params, &result); err != nil {
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "Page.printToPDF failed")
	}
	return map[string]any{"data": result.Data}, nil
}

type browsingContextSetViewportParams struct {
	Context           string   `json:"context"`
	Viewport          *viewportSize `json:"viewport,omitempty"`
	DevicePixelRatio  float64  `json:"devicePixelRatio,omitempty"`
}

type viewportSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s *Session) cmdBrowsingContextSetViewport(raw json.RawMessage) (any, error) {
	var p browsingContextSetViewportParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	bc, err := s.ctxs.Get(p.Context)
	if err != nil {
		return nil, err
	}
	if bc.Parent != "" {
		return nil, bidierr.UnsupportedOperationErr("setViewport on a non-top-level context")
	}
	target, ok := s.targets.Target(bc.TargetID)
	if !ok {
		return nil, bidierr.NoSuchFrameErr(p.Context)
	}
	if p.Viewport == nil {
		return map[string]any{}, nil
	}
	if p.Viewport.Width <= 0 || p.Viewport.Height <= 0 {
		return nil, bidierr.UnsupportedOperationErr("viewport dimensions are not supported")
	}
	dpr := p.DevicePixelRatio
	if dpr == 0 {
		dpr = 1
	}
	if err := target.Call("Emulation.setDeviceMetricsOverride", cdp.SetDeviceMetricsOverrideParams{
		Width: p.Viewport.Width, Height: p.Viewport.Height, DeviceScaleFactor: dpr,
	}, nil); err != nil {
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "Emulation.setDeviceMetricsOverride failed")
	}
	return map[string]any{}, nil
}

type browsingContextHandleUserPromptParams struct {
	Context    string `json:"context"`
	Accept     bool   `json:"accept,omitempty"`
	UserText   string `json:"userText,omitempty"`
}

func (s *Session) cmdBrowsingContextHandleUserPrompt(raw json.RawMessage) (any, error) {
	var p browsingContextHandleUserPromptParams
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
	if err := target.Call("Page.handleJavaScriptDialog", cdp.HandleJavaScriptDialogParams{
		Accept: p.Accept, PromptText: p.UserText,
	}, nil); err != nil {
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "Page.handleJavaScriptDialog failed")
	}
	bc.mu.Lock()
	bc.PendingPrompt = nil
	bc.mu.Unlock()
	return map[string]any{}, nil
}

type browsingContextActivateParams struct {
	Context string `json:"context"`
}

func (s *Session) cmdBrowsingContextActivate(raw json.RawMessage) (any, error) {
	var p browsingContextActivateParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	bc, err := s.ctxs.Get(p.Context)
	if err != nil {
		return nil, err
	}
	root := cdp.Root(s.cdpClient)
	if err := root.Call("Target.activateTarget", cdp.ActivateTargetParams{TargetID: bc.TargetID}, nil); err != nil {
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "Target.activateTarget failed")
	}
	target, ok := s.targets.Target(bc.TargetID)
	if ok {
		_ = target.Call("Page.bringToFront", cdp.BringToFrontParams{}, nil)
	}
	return map[string]any{}, nil
}

func (s *Session) contextInfo(id string) (map[string]any, error) {
	bc, err := s.ctxs.Get(id)
	if err != nil {
		return nil, err
	}
	children := make([]any, 0, len(bc.Children))
	for _, childID := range bc.Children {
		child, err := s.contextInfo(childID)
		if err != nil {
			continue
		}
		children = append(children, child)
	}
	return map[string]any{
		"context":  bc.ID,
		"url":      bc.URL,
		"children": children,
		"parent":   nullableString(bc.Parent),
	}, nil
}
