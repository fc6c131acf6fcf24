// SPDX-License-Identifier: GPL-3.0-or-later

package tracker

// Event qualifies an announce within the torrent lifecycle. The
// numeric values follow the UDP tracker protocol convention.
type Event int32

const (
	// EventNone is a periodic announce.
	EventNone = Event(iota)

	// EventCompleted reports that the download just completed. It
	// must not be sent when the torrent starts already complete.
	EventCompleted

	// EventStarted reports that the torrent just joined the swarm.
	EventStarted

	// EventStopped reports that the torrent is leaving the swarm.
	EventStopped
)

// String returns the representation used in the announce query
// string, which is empty for [EventNone].
func (e Event) String() string {
	switch e {
	case EventCompleted:
		return "completed"
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	default:
		return ""
	}
}

// AnnounceRequest contains the parameters of a tracker announce.
type AnnounceRequest struct {
	// InfoHash identifies the torrent being announced.
	InfoHash [20]byte

	// PeerID is our peer identifier.
	PeerID [20]byte

	// Port is the TCP port where we accept peer connections.
	Port uint16

	// Uploaded is the total number of bytes uploaded so far.
	Uploaded int64

	// Downloaded is the total number of bytes downloaded so far.
	Downloaded int64

	// Left is the number of bytes left to download, with zero
	// meaning we are seeding.
	Left int64

	// Event qualifies the announce within the torrent lifecycle.
	Event Event

	// NumWant is the number of peers we would like to receive.
	// Values <= 0 leave the choice to the tracker.
	NumWant int
}
