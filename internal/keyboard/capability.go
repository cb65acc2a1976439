package keyboard

import "regexp"

// mobileViewportMax is the widest viewport still treated as a phone or tablet.
const mobileViewportMax = 768

var mobileAgent = regexp.MustCompile(`(?i)android|webos|iphone|ipad|ipod|blackberry|iemobile|opera mini|mobile|tablet`)

// Capabilities answers platform questions the engine cannot observe itself.
type Capabilities interface {
	IsMobile() bool
}

// CapabilityFunc adapts a function to Capabilities.
type CapabilityFunc func() bool

// IsMobile calls the underlying function.
func (f CapabilityFunc) IsMobile() bool { return f() }

// DeviceProfile is what the page reports about its device at connect time.
type DeviceProfile struct {
	UserAgent      string `json:"userAgent"`
	MaxTouchPoints int    `json:"maxTouchPoints"`
	HasTouchEvents bool   `json:"touchEvents"`
	ViewportWidth  int    `json:"viewportWidth"`
}

// IsMobile applies the touch/mobile heuristic: user agent, touch points,
// touch events, then viewport width.
func (p DeviceProfile) IsMobile() bool {
	if mobileAgent.MatchString(p.UserAgent) {
		return true
	}
	if p.MaxTouchPoints > 0 || p.HasTouchEvents {
		return true
	}
	return p.ViewportWidth > 0 && p.ViewportWidth <= mobileViewportMax
}
