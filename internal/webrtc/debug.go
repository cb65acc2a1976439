package webrtc

import (
	"sync/atomic"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v3"
)

// debugPion controls whether pion's own debug logs are emitted.
var debugPion atomic.Bool

// SetDebugLogging enables/disables verbose pion logs. The level is fixed when
// a Factory is built, so it applies to factories created afterwards and to
// every peer they create.
func SetDebugLogging(enabled bool) {
	debugPion.Store(enabled)
}

// debugEnabled reports whether pion debug logs are enabled.
func debugEnabled() bool {
	return debugPion.Load()
}

// settingEngine returns a setting engine logging at debug level when asked.
func settingEngine(debug bool) webrtc.SettingEngine {
	lf := logging.NewDefaultLoggerFactory()
	lf.DefaultLogLevel = logging.LogLevelWarn
	if debug {
		lf.DefaultLogLevel = logging.LogLevelDebug
	}
	se := webrtc.SettingEngine{LoggerFactory: lf}
	return se
}
