package miniaudio

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/JayTiptown/Conduit-coding-test/core/audio/miniaudio"

var logger = otelslog.NewLogger(scopeName)
