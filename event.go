package swirl

// eventKind enumerates the outcomes a worker task reports back to the
// drain loop.
type eventKind int

const (
	// eventWorking is sent as soon as a worker has claimed a job row
	// and is about to run its performer.
	eventWorking eventKind = iota
	// eventNoJobAvailable is sent when the claim query found no
	// eligible row.
	eventNoJobAvailable
	// eventErrorLoadingJob is sent when the claim query itself
	// failed.
	eventErrorLoadingJob
	// eventFailedToAcquireConnection is sent when the worker could
	// not obtain a pooled connection at all.
	eventFailedToAcquireConnection
)

// event is a single message sent from a worker task to the drain
// loop.
type event struct {
	kind eventKind
	err  error
}

// eventSender is the write side of the bounded worker-to-orchestrator
// channel. It is an interface so tests can substitute dummySender.
type eventSender interface {
	send(event)
}

// channelSender sends onto a real, bounded channel. It is used by
// production worker tasks.
type channelSender struct {
	c chan<- event
}

func (s channelSender) send(e event) {
	s.c <- e
}

// dummySender discards every event without blocking. It exists so
// that tests exercising a single worker task directly (outside of
// RunAllPendingJobs) don't need a live receiver on the other end of a
// channel.
type dummySender struct{}

func (dummySender) send(event) {}

// newEventChannel returns a channel/sender pair sized to capacity, so
// the channel stays bounded to the size of the thread pool.
func newEventChannel(capacity int) (chan event, eventSender) {
	c := make(chan event, capacity)
	return c, channelSender{c: c}
}
