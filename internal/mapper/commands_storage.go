package mapper

import (
	"encoding/json"

	"github.com/vibium/mapper/internal/bidierr"
	"github.com/vibium/mapper/internal/cdp"
)

// storagePartitionDescriptor names the partition storage.getCookies/setCookie/
// deleteCookies operate on. This core does not yet model BiDi's storage
// partition descriptor beyond a single browsing context, so sourceOrigin and
// userContext selectors are accepted but only context is honored.
type storagePartitionDescriptor struct {
	Context string `json:"context,omitempty"`
}

func (s *Session) partitionTarget(p storagePartitionDescriptor) (*CdpTarget, error) {
	if p.Context == "" {
		return nil, bidierr.InvalidArgumentf("storage commands require a context partition")
	}
	bc, err := s.ctxs.Get(p.Context)
	if err != nil {
		return nil, err
	}
	target, ok := s.targets.Target(bc.TargetID)
	if !ok {
		return nil, bidierr.NoSuchFrameErr(p.Context)
	}
	return target, nil
}

type storageGetCookiesParams struct {
	Filter    *storageCookieFilter       `json:"filter,omitempty"`
	Partition storagePartitionDescriptor `json:"partition,omitempty"`
}

type storageCookieFilter struct {
	Name   string `json:"name,omitempty"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

func (s *Session) cmdStorageGetCookies(raw json.RawMessage) (any, error) {
	var p storageGetCookiesParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	target, err := s.partitionTarget(p.Partition)
	if err != nil {
		return nil, err
	}

	var result cdp.GetCookiesResult
	if err := target.Call("Network.getCookies", cdp.GetCookiesParams{}, &result); err != nil {
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "Network.getCookies failed")
	}

	cookies := make([]any, 0, len(result.Cookies))
	for _, c := range result.Cookies {
		if p.Filter != nil {
			if p.Filter.Name != "" && p.Filter.Name != c.Name {
				continue
			}
			if p.Filter.Domain != "" && p.Filter.Domain != c.Domain {
				continue
			}
			if p.Filter.Path != "" && p.Filter.Path != c.Path {
				continue
			}
		}
		cookies = append(cookies, bidiCookie(c))
	}
	return map[string]any{"cookies": cookies}, nil
}

// bidiCookie maps a CDP cookie record onto the BiDi network.Cookie shape,
// always reporting the value as a "string" BytesValue, since CDP exposes
// cookie values as plain strings.
func bidiCookie(c cdp.Cookie) map[string]any {
	return map[string]any{
		"name":     c.Name,
		"value":    map[string]any{"type": "string", "value": c.Value},
		"domain":   c.Domain,
		"path":     c.Path,
		"size":     c.Size,
		"httpOnly": c.HTTPOnly,
		"secure":   c.Secure,
		"sameSite": "none",
		"expiry":   int64(c.Expires),
	}
}

type storageSetCookieParams struct {
	Cookie    storagePartialCookie       `json:"cookie"`
	Partition storagePartitionDescriptor `json:"partition,omitempty"`
}

type storagePartialCookie struct {
	Name     string          `json:"name"`
	Value    cookieValue     `json:"value"`
	Domain   string          `json:"domain"`
	Path     string          `json:"path,omitempty"`
	HTTPOnly bool            `json:"httpOnly,omitempty"`
	Secure   bool            `json:"secure,omitempty"`
	Expiry   int64           `json:"expiry,omitempty"`
}

type cookieValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (s *Session) cmdStorageSetCookie(raw json.RawMessage) (any, error) {
	var p storageSetCookieParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	target, err := s.partitionTarget(p.Partition)
	if err != nil {
		return nil, err
	}
	if err := target.Call("Network.setCookie", cdp.SetCookieParams{
		Name:     p.Cookie.Name,
		Value:    p.Cookie.Value.Value,
		Domain:   p.Cookie.Domain,
		Path:     p.Cookie.Path,
		HTTPOnly: p.Cookie.HTTPOnly,
		Secure:   p.Cookie.Secure,
		Expires:  float64(p.Cookie.Expiry),
	}, nil); err != nil {
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "Network.setCookie failed")
	}
	return map[string]any{"partition": p.Partition.Context}, nil
}

type storageDeleteCookiesParams struct {
	Filter    *storageCookieFilter       `json:"filter,omitempty"`
	Partition storagePartitionDescriptor `json:"partition,omitempty"`
}

func (s *Session) cmdStorageDeleteCookies(raw json.RawMessage) (any, error) {
	var p storageDeleteCookiesParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	target, err := s.partitionTarget(p.Partition)
	if err != nil {
		return nil, err
	}

	name, domain, path := "", "", ""
	if p.Filter != nil {
		name, domain, path = p.Filter.Name, p.Filter.Domain, p.Filter.Path
	}
	if err := target.Call("Network.deleteCookies", cdp.DeleteCookiesParams{
		Name: name, Domain: domain, Path: path,
	}, nil); err != nil {
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "Network.deleteCookies failed")
	}
	return map[string]any{"partition": p.Partition.Context}, nil
}
