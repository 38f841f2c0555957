package notify

import (
	evbus "github.com/asaskevich/EventBus"

	"voicepipe-server-go/internal/domain/session/model"
	"voicepipe-server-go/internal/utils"
)

// Handler receives one pushed result.
type Handler func(result model.Result)

// Notifier fans a finalized result out to the listeners subscribed to its
// session at broadcast time. Delivery is fire-and-forget: no retries, no
// queueing for listeners that subscribe later — they fall back to the
// session store.
type Notifier struct {
	bus    evbus.Bus
	logger *utils.Logger
}

// New creates a notifier on its own bus.
func New(logger *utils.Logger) *Notifier {
	return &Notifier{
		bus:    evbus.New(),
		logger: logger,
	}
}

func topic(sessionID string) string {
	return "session:" + sessionID
}

// Subscribe registers a handler for one session id. The same handler
// value must be passed to Unsubscribe.
func (n *Notifier) Subscribe(sessionID string, handler Handler) error {
	return n.bus.SubscribeAsync(topic(sessionID), handler, false)
}

// Unsubscribe removes a previously subscribed handler.
func (n *Notifier) Unsubscribe(sessionID string, handler Handler) error {
	return n.bus.Unsubscribe(topic(sessionID), handler)
}

// Broadcast pushes the result to current subscribers and returns
// immediately.
func (n *Notifier) Broadcast(sessionID string, result model.Result) {
	n.logger.DebugTag("PIPELINE", "broadcast result for session %s", sessionID)
	n.bus.Publish(topic(sessionID), result)
}

// Close waits for in-flight async deliveries to finish.
func (n *Notifier) Close() {
	n.bus.WaitAsync()
}
