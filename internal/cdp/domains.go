package cdp

// Typed parameter/result/event structs for the subset of CDP domains the
// mapper core drives: Target, Page, Network, Fetch, Runtime, Input, DOM,
// Browser, Emulation, Security, Log. Field and event names are grounded on
// the domain package layout of daabr/chrome-vision's pkg/cdp/{target,page,
// network,fetch,runtime,input,dom} (reference material enumerating exactly
// these CDP methods/events), not copied from it — these are plain structs
// built for this mapper's own call sites.

// ---- Target domain ----

type TargetInfo struct {
	TargetID string `json:"targetId"`
	Type     string `json:"type"` // "page", "iframe", "worker", "shared_worker", "service_worker", "browser", "tab"
	Title    string `json:"title"`
	URL      string `json:"url"`
	Attached bool   `json:"attached"`
	OpenerID string `json:"openerId,omitempty"`
	BrowserContextID string `json:"browserContextId,omitempty"`
}

type AttachedToTargetEvent struct {
	SessionID          string     `json:"sessionId"`
	TargetInfo         TargetInfo `json:"targetInfo"`
	WaitingForDebugger bool       `json:"waitingForDebugger"`
}

type DetachedFromTargetEvent struct {
	SessionID string `json:"sessionId"`
	TargetID  string `json:"targetId,omitempty"`
}

type TargetInfoChangedEvent struct {
	TargetInfo TargetInfo `json:"targetInfo"`
}

type SetAutoAttachParams struct {
	AutoAttach             bool `json:"autoAttach"`
	WaitForDebuggerOnStart bool `json:"waitForDebuggerOnStart"`
	Flatten                bool `json:"flatten"`
}

type AttachToTargetParams struct {
	TargetID string `json:"targetId"`
	Flatten  bool   `json:"flatten"`
}

type AttachToTargetResult struct {
	SessionID string `json:"sessionId"`
}

// ---- Page domain ----

type FrameAttachedEvent struct {
	FrameID       string `json:"frameId"`
	ParentFrameID string `json:"parentFrameId"`
}

type FrameDetachedEvent struct {
	FrameID string `json:"frameId"`
	Reason  string `json:"reason,omitempty"` // "remove" | "swap"
}

type Frame struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId,omitempty"`
	LoaderID string `json:"loaderId,omitempty"`
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
}

type FrameNavigatedEvent struct {
	Frame Frame  `json:"frame"`
	Type  string `json:"type,omitempty"`
}

type NavigatedWithinDocumentEvent struct {
	FrameID string `json:"frameId"`
	URL     string `json:"url"`
	NavigationType string `json:"navigationType"` // "fragment" | "historyApi" | "other"
}

type FrameRequestedNavigationEvent struct {
	FrameID string `json:"frameId"`
	URL     string `json:"url"`
	Reason  string `json:"reason"`
}

type FrameSubtreeWillBeDetachedEvent struct {
	FrameID string `json:"frameId"`
}

type SetLifecycleEventsEnabledParams struct {
	Enabled bool `json:"enabled"`
}

type LifecycleEventEvent struct {
	FrameID   string  `json:"frameId"`
	LoaderID  string  `json:"loaderId"`
	Name      string  `json:"name"` // init, commit, DOMContentLoaded, load, ...
	Timestamp float64 `json:"timestamp"`
}

type FileChooserOpenedEvent struct {
	FrameID string `json:"frameId"`
	Mode    string `json:"mode"`
}

type JavascriptDialogOpeningEvent struct {
	URL     string `json:"url"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type NavigateParams struct {
	URL            string `json:"url"`
	FrameID        string `json:"frameId,omitempty"`
	Referrer       string `json:"referrer,omitempty"`
	TransitionType string `json:"transitionType,omitempty"`
}

type NavigateResult struct {
	FrameID   string `json:"frameId"`
	LoaderID  string `json:"loaderId,omitempty"`
	ErrorText string `json:"errorText,omitempty"`
}

type GetFrameTreeResult struct {
	FrameTree FrameTree `json:"frameTree"`
}

type FrameTree struct {
	Frame    Frame       `json:"frame"`
	Children []FrameTree `json:"childFrames,omitempty"`
}

// ---- Network / Fetch domains ----

type RequestWillBeSentEvent struct {
	RequestID        string           `json:"requestId"`
	LoaderID         string           `json:"loaderId"`
	Request          NetworkRequestPayload `json:"request"`
	Timestamp        float64          `json:"timestamp"`
	RedirectResponse *ResponsePayload `json:"redirectResponse,omitempty"`
	Type             string           `json:"type"`
	FrameID          string           `json:"frameId,omitempty"`
}

type NetworkRequestPayload struct {
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers"`
	HasPostData bool           `json:"hasPostData,omitempty"`
}

type RequestWillBeSentExtraInfoEvent struct {
	RequestID string            `json:"requestId"`
	Headers   map[string]string `json:"headers"`
}

type ResponsePayload struct {
	URL        string            `json:"url"`
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	FromDiskCache bool           `json:"fromDiskCache,omitempty"`
}

type ResponseReceivedEvent struct {
	RequestID string          `json:"requestId"`
	LoaderID  string          `json:"loaderId"`
	FrameID   string          `json:"frameId"`
	Type      string          `json:"type"`
	Response  ResponsePayload `json:"response"`
	Timestamp float64         `json:"timestamp"`
}

type ResponseReceivedExtraInfoEvent struct {
	RequestID string            `json:"requestId"`
	Headers   map[string]string `json:"headers"`
}

type LoadingFinishedEvent struct {
	RequestID string  `json:"requestId"`
	Timestamp float64 `json:"timestamp"`
}

type LoadingFailedEvent struct {
	RequestID     string  `json:"requestId"`
	Timestamp     float64 `json:"timestamp"`
	ErrorText     string  `json:"errorText"`
	Canceled      bool    `json:"canceled,omitempty"`
}

type RequestServedFromCacheEvent struct {
	RequestID string `json:"requestId"`
}

type FetchRequestPausedEvent struct {
	RequestID          string                `json:"requestId"`
	Request            NetworkRequestPayload `json:"request"`
	FrameID             string               `json:"frameId"`
	ResourceType        string               `json:"resourceType"`
	ResponseStatusCode  int                  `json:"responseStatusCode,omitempty"`
	ResponseHeaders     []HeaderEntry        `json:"responseHeaders,omitempty"`
	NetworkID           string               `json:"networkId,omitempty"`
}

type FetchAuthRequiredEvent struct {
	RequestID     string           `json:"requestId"`
	Request       NetworkRequestPayload `json:"request"`
	FrameID       string           `json:"frameId"`
	ResourceType  string           `json:"resourceType"`
	AuthChallenge AuthChallenge    `json:"authChallenge"`
}

type AuthChallenge struct {
	Source string `json:"source,omitempty"`
	Origin string `json:"origin"`
	Scheme string `json:"scheme"`
	Realm  string `json:"realm"`
}

type HeaderEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type RequestPattern struct {
	URLPattern   string `json:"urlPattern,omitempty"`
	ResourceType string `json:"resourceType,omitempty"`
	RequestStage string `json:"requestStage,omitempty"` // "Request" | "Response"
}

type FetchEnableParams struct {
	Patterns []RequestPattern `json:"patterns,omitempty"`
	HandleAuthRequests bool   `json:"handleAuthRequests,omitempty"`
}

type FetchContinueRequestParams struct {
	RequestID string        `json:"requestId"`
	URL       string        `json:"url,omitempty"`
	Method    string        `json:"method,omitempty"`
	PostData  string        `json:"postData,omitempty"`
	Headers   []HeaderEntry `json:"headers,omitempty"`
}

type FetchFailRequestParams struct {
	RequestID   string `json:"requestId"`
	ErrorReason string `json:"errorReason"`
}

type FetchFulfillRequestParams struct {
	RequestID       string        `json:"requestId"`
	ResponseCode    int           `json:"responseCode"`
	ResponseHeaders []HeaderEntry `json:"responseHeaders,omitempty"`
	Body            string        `json:"body,omitempty"`
	ResponsePhrase  string        `json:"responsePhrase,omitempty"`
}

type FetchContinueWithAuthParams struct {
	RequestID    string             `json:"requestId"`
	AuthChallengeResponse AuthChallengeResponse `json:"authChallengeResponse"`
}

type AuthChallengeResponse struct {
	Response string `json:"response"` // "Default" | "CancelAuth" | "ProvideCredentials"
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// ---- Runtime domain ----

type ExecutionContextDescription struct {
	ID     int                    `json:"id"`
	Origin string                 `json:"origin"`
	Name   string                 `json:"name"`
	AuxData map[string]any        `json:"auxData,omitempty"`
}

type ExecutionContextCreatedEvent struct {
	Context ExecutionContextDescription `json:"context"`
}

type ExecutionContextDestroyedEvent struct {
	ExecutionContextID int `json:"executionContextId"`
}

type ExecutionContextsClearedEvent struct{}

// ---- Input domain ----

type DispatchKeyEventParams struct {
	Type                  string `json:"type"` // keyDown, keyUp, rawKeyDown, char
	Modifiers             int    `json:"modifiers,omitempty"`
	Text                  string `json:"text,omitempty"`
	UnmodifiedText        string `json:"unmodifiedText,omitempty"`
	Code                  string `json:"code,omitempty"`
	Key                   string `json:"key,omitempty"`
	WindowsVirtualKeyCode int    `json:"windowsVirtualKeyCode,omitempty"`
	NativeVirtualKeyCode  int    `json:"nativeVirtualKeyCode,omitempty"`
	Location              int    `json:"location,omitempty"`
	Commands              []string `json:"commands,omitempty"`
}

type DispatchMouseEventParams struct {
	Type       string  `json:"type"` // mousePressed, mouseReleased, mouseMoved, mouseWheel
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Modifiers  int     `json:"modifiers,omitempty"`
	Button     string  `json:"button,omitempty"`
	Buttons    int     `json:"buttons,omitempty"`
	ClickCount int     `json:"clickCount,omitempty"`
	DeltaX     float64 `json:"deltaX,omitempty"`
	DeltaY     float64 `json:"deltaY,omitempty"`
	PointerType string `json:"pointerType,omitempty"`
}

type DispatchTouchEventParams struct {
	Type      string       `json:"type"` // touchStart, touchMove, touchEnd, touchCancel
	TouchPoints []TouchPoint `json:"touchPoints"`
	Modifiers int          `json:"modifiers,omitempty"`
}

type TouchPoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	RadiusX float64 `json:"radiusX,omitempty"`
	RadiusY float64 `json:"radiusY,omitempty"`
	Force   float64 `json:"force,omitempty"`
	ID      int64   `json:"id,omitempty"`
}

type CancelDraggingParams struct{}

// ---- DOM domain ----

type DOMResolveNodeParams struct {
	ObjectID string `json:"objectId,omitempty"`
	BackendNodeID int `json:"backendNodeId,omitempty"`
}

type GetBoxModelParams struct {
	ObjectID      string `json:"objectId,omitempty"`
	BackendNodeID int    `json:"backendNodeId,omitempty"`
}

type GetBoxModelResult struct {
	Model BoxModel `json:"model"`
}

// BoxModel quads are [x1,y1,x2,y2,x3,y3,x4,y4], clockwise from top-left.
type BoxModel struct {
	Content []float64 `json:"content"`
	Border  []float64 `json:"border"`
	Width   float64   `json:"width"`
	Height  float64   `json:"height"`
}

// ---- Emulation domain ----

type SetDeviceMetricsOverrideParams struct {
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	DeviceScaleFactor float64 `json:"deviceScaleFactor"`
	Mobile            bool    `json:"mobile"`
}

type SetGeolocationOverrideParams struct {
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// ---- Browser domain ----

type GetWindowForTargetParams struct {
	TargetID string `json:"targetId,omitempty"`
}

type GetWindowForTargetResult struct {
	WindowID int `json:"windowId"`
	Bounds   WindowBounds `json:"bounds"`
}

type WindowBounds struct {
	Left        int    `json:"left,omitempty"`
	Top         int    `json:"top,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	WindowState string `json:"windowState,omitempty"`
}

type SetWindowBoundsParams struct {
	WindowID int          `json:"windowId"`
	Bounds   WindowBounds `json:"bounds"`
}

// ---- Page domain: reload/history/capture ----

type ReloadParams struct {
	IgnoreCache bool `json:"ignoreCache,omitempty"`
}

type NavigateToHistoryEntryParams struct {
	EntryID int `json:"entryId"`
}

type GetNavigationHistoryResult struct {
	CurrentIndex int                `json:"currentIndex"`
	Entries      []NavigationEntry `json:"entries"`
}

type NavigationEntry struct {
	ID  int    `json:"id"`
	URL string `json:"url"`
}

type CaptureScreenshotParams struct {
	Format  string        `json:"format,omitempty"`
	Quality int           `json:"quality,omitempty"`
	Clip    *ScreenshotClip `json:"clip,omitempty"`
}

type ScreenshotClip struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Scale  float64 `json:"scale"`
}

type CaptureScreenshotResult struct {
	Data string `json:"data"`
}

type PrintToPDFParams struct {
	Landscape       bool    `json:"landscape,omitempty"`
	PrintBackground bool    `json:"printBackground,omitempty"`
	PaperWidth      float64 `json:"paperWidth,omitempty"`
	PaperHeight     float64 `json:"paperHeight,omitempty"`
}

type PrintToPDFResult struct {
	Data string `json:"data"`
}

type HandleJavaScriptDialogParams struct {
	Accept     bool   `json:"accept"`
	PromptText string `json:"promptText,omitempty"`
}

type GetLayoutMetricsResult struct {
	CSSContentSize LayoutRect `json:"cssContentSize"`
}

type LayoutRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type AddScriptToEvaluateOnNewDocumentParams struct {
	Source       string `json:"source"`
	WorldName    string `json:"worldName,omitempty"`
}

type AddScriptToEvaluateOnNewDocumentResult struct {
	Identifier string `json:"identifier"`
}

type RemoveScriptToEvaluateOnNewDocumentParams struct {
	Identifier string `json:"identifier"`
}

type BringToFrontParams struct{}

// ---- Target domain: activation ----

type ActivateTargetParams struct {
	TargetID string `json:"targetId"`
}

// ---- Runtime domain: object lifetime ----

type ReleaseObjectParams struct {
	ObjectID string `json:"objectId"`
}

// ---- DOM domain: file input ----

type SetFileInputFilesParams struct {
	Files         []string `json:"files"`
	ObjectID      string   `json:"objectId,omitempty"`
	BackendNodeID int      `json:"backendNodeId,omitempty"`
}

// ---- Network domain: cookies ----

type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	Size     int     `json:"size,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

type GetCookiesParams struct {
	URLs []string `json:"urls,omitempty"`
}

type GetCookiesResult struct {
	Cookies []Cookie `json:"cookies"`
}

type SetCookieParams struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	URL      string  `json:"url,omitempty"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

type DeleteCookiesParams struct {
	Name   string `json:"name"`
	URL    string `json:"url,omitempty"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}
