// Package notify bridges coordinator lifecycle events to the external
// notification pipeline. The log notifier is the dev/default sink.
package notify

import (
	"github.com/rs/zerolog/log"

	"github.com/koinonia/liveworkshop/internal/domain"
)

type LogNotifier struct{}

func NewLogNotifier() LogNotifier { return LogNotifier{} }

// Notify is fire-and-forget; no acknowledgement is expected by the caller.
func (LogNotifier) Notify(event string, workshopID domain.WorkshopID) {
	log.Info().Str("module", "notify").Str("event", event).Str("workshop", string(workshopID)).Msg("lifecycle event")
}
