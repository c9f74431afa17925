package audit

import (
	"context"
	"time"

	"github.com/nerrad567/expo-client-core/internal/infrastructure/logging"
)

// SourceSession marks events reported by the session manager.
const SourceSession = "session"

const writeTimeout = 2 * time.Second

// Recorder journals session outcomes. It satisfies session.Telemetry.
// Write failures are logged, never returned.
type Recorder struct {
	repo   Repository
	source string
	logger *logging.Logger
}

// NewRecorder creates a Recorder writing to repo.
func NewRecorder(repo Repository, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Recorder{repo: repo, source: SourceSession, logger: logger.With("component", "audit")}
}

// WriteAuthEvent records one outcome.
func (r *Recorder) WriteAuthEvent(operation string, success bool) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	e := &Event{Action: operation, Success: success, Source: r.source}
	if err := r.repo.Create(ctx, e); err != nil {
		r.logger.Warn("recording auth event failed", "action", operation, "error", err)
	}
}
