package httpserver

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/koscakluka/ema-screening/internal/httpserver"

var logger = otelslog.NewLogger(scopeName)
