package playback

import "go.opentelemetry.io/otel"

const scopeName = "github.com/cheerrun/cheercast/internal/playback"

var tracer = otel.Tracer(scopeName)
