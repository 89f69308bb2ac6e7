package portaudio

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/JayTiptown/Conduit-coding-test/core/audio/portaudio"

var logger = otelslog.NewLogger(scopeName)
