// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"net/netip"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rbmk-project/btcore/tracker"
)

// defaultAnnounceInterval is used when the tracker response does
// not mandate a re-announce interval.
const defaultAnnounceInterval = 30 * time.Minute

// defaultNumWant is the number of peers requested per announce.
const defaultNumWant = 50

// announceTimeout bounds a whole announce cycle.
const announceTimeout = 30 * time.Second

// stopAnnounceTimeout bounds the final stopped announce.
const stopAnnounceTimeout = 5 * time.Second

// announceRetryMin and announceRetryMax bound the delay between
// retries of a failing announce.
const (
	announceRetryMin = time.Second
	announceRetryMax = 5 * time.Minute
)

// errTrackerBlocked indicates the installed IP filter blocks every
// resolved tracker endpoint.
var errTrackerBlocked = errors.New("all tracker endpoints are blocked")

// errNoEndpoints indicates resolution produced no usable endpoint.
var errNoEndpoints = errors.New("no usable tracker endpoints")

// announcer periodically announces a torrent to a single tracker.
//
// Each announcer runs the event lifecycle independently: started on
// the first successful announce cycle, completed exactly once when
// the torrent completes, the empty event on periodic re-announces,
// and stopped when the announcer stops, provided the tracker ever
// acknowledged an announce.
type announcer struct {
	// client is the per-torrent tracker client whose network
	// enforces the torrent admission policy.
	client *tracker.Client

	// completedCh signals that the torrent completed.
	completedCh chan struct{}

	// session is the owning session.
	session *Session

	// stopCh signals that the announcer must stop.
	stopCh chan struct{}

	// stopOnce guards closing stopCh.
	stopOnce sync.Once

	// succeeded records whether the tracker ever acknowledged an
	// announce. Only the run goroutine accesses it.
	succeeded bool

	// torrent is the announced torrent.
	torrent *Torrent

	// trackerURL is the parsed tracker URL.
	trackerURL *url.URL
}

// newAnnouncer creates an announcer for the given tracker URL.
func newAnnouncer(sess *Session, torrent *Torrent, trackerURL *url.URL) *announcer {
	return &announcer{
		client: &tracker.Client{
			HTTPClient: nil,
			Logger:     sess.logger,
			Network:    sess.newTrackerNetwork(torrent),
			UserAgent:  "",
		},
		completedCh: make(chan struct{}, 1),
		session:     sess,
		stopCh:      make(chan struct{}),
		stopOnce:    sync.Once{},
		succeeded:   false,
		torrent:     torrent,
		trackerURL:  trackerURL,
	}
}

// stop tells the announcer to stop. Idempotent.
func (a *announcer) stop() {
	a.stopOnce.Do(func() {
		close(a.stopCh)
	})
}

// signalCompleted tells the announcer to announce completed as its
// next event. Never blocks.
func (a *announcer) signalCompleted() {
	select {
	case a.completedCh <- struct{}{}:
	default:
	}
}

// run is the announcer main loop. Successful cycles are rescheduled
// after the tracker-mandated interval; failing cycles are retried
// with exponential backoff, reset on the next success.
func (a *announcer) run() {
	defer a.session.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = announceRetryMin
	bo.MaxInterval = announceRetryMax
	bo.MaxElapsedTime = 0
	bo.Reset()

	event := tracker.EventStarted
	for {
		interval, err := a.announce(a.session.ctx, event)
		var delay time.Duration
		if err != nil {
			delay = bo.NextBackOff()
		} else {
			a.succeeded = true
			bo.Reset()
			if event == tracker.EventStarted || event == tracker.EventCompleted {
				event = tracker.EventNone
			}
			delay = interval
		}

		timer := a.session.clk.Timer(delay)
		select {
		case <-a.stopCh:
			timer.Stop()
			a.finalStop()
			return
		case <-a.completedCh:
			timer.Stop()
			event = tracker.EventCompleted
		case <-timer.C:
		}
	}
}

// finalStop sends the final stopped announce with a short deadline,
// provided the tracker ever acknowledged an announce.
func (a *announcer) finalStop() {
	if !a.succeeded {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopAnnounceTimeout)
	defer cancel()
	a.announce(ctx, tracker.EventStopped)
}

// announce performs one announce cycle: it resolves the tracker
// host, admits each resolved endpoint individually, then issues one
// HTTP announce per admitted address family, keeping the smallest
// mandated interval. The cycle outcome surfaces as alerts; blocked
// endpoints are not errors and surface as [TrackerSkippedAlert].
func (a *announcer) announce(ctx context.Context, event tracker.Event) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, announceTimeout)
	defer cancel()

	endpoints, err := a.resolveAdmitted(ctx)
	if err != nil {
		if !errors.Is(err, errTrackerBlocked) {
			a.session.emit(TrackerAnnounceAlert{
				Err:   err,
				Event: event,
				URL:   a.trackerURL.String(),
			})
		}
		return 0, err
	}

	req := a.torrent.announceRequest(event)
	var (
		errv     []error
		interval time.Duration
	)
	for _, endpoint := range endpoints {
		resp, err := a.client.Announce(ctx, a.endpointURL(endpoint), req)
		if err != nil {
			errv = append(errv, err)
			continue
		}
		if mandated := announceInterval(resp); interval == 0 || mandated < interval {
			interval = mandated
		}
		if event != tracker.EventStopped && len(resp.Peers) > 0 {
			a.torrent.AddPeers(resp.Peers...)
		}
	}

	if len(errv) >= len(endpoints) {
		err := errors.Join(errv...)
		a.session.emit(TrackerAnnounceAlert{
			Err:   err,
			Event: event,
			URL:   a.trackerURL.String(),
		})
		return 0, err
	}
	a.session.emit(TrackerAnnounceAlert{
		Err:   nil,
		Event: event,
		URL:   a.trackerURL.String(),
	})
	return interval, nil
}

// resolveAdmitted resolves the tracker host and returns the first
// admitted endpoint per address family. Endpoints blocked by the
// torrent admission policy raise [TrackerSkippedAlert] and, when no
// endpoint survives, the whole announce is skipped as if the
// tracker were unreachable.
func (a *announcer) resolveAdmitted(ctx context.Context) ([]netip.AddrPort, error) {
	port, err := trackerPort(a.trackerURL)
	if err != nil {
		return nil, err
	}
	addrs, err := a.session.netx.LookupHost(ctx, a.trackerURL.Hostname())
	if err != nil {
		return nil, err
	}

	var (
		admitted []netip.AddrPort
		blocked  int
		seen4    bool
		seen6    bool
	)
	for _, candidate := range addrs {
		addr, err := netip.ParseAddr(candidate)
		if err != nil {
			continue
		}
		addr = addr.Unmap()
		if !a.torrent.disableIPFilter && a.session.ipBlocked(addr) {
			blocked++
			a.session.emit(TrackerSkippedAlert{
				Addr: addr,
				URL:  a.trackerURL.String(),
			})
			continue
		}
		if addr.Is4() {
			if seen4 {
				continue
			}
			seen4 = true
		} else {
			if seen6 {
				continue
			}
			seen6 = true
		}
		admitted = append(admitted, netip.AddrPortFrom(addr, port))
	}

	if len(admitted) <= 0 {
		if blocked > 0 {
			return nil, errTrackerBlocked
		}
		return nil, errNoEndpoints
	}
	return admitted, nil
}

// endpointURL pins the tracker URL to a specific resolved endpoint,
// preserving the path and query.
func (a *announcer) endpointURL(endpoint netip.AddrPort) string {
	pinned := *a.trackerURL
	pinned.Host = endpoint.String()
	return pinned.String()
}

// trackerPort returns the port of the tracker URL, defaulting to
// the http port.
func trackerPort(trackerURL *url.URL) (uint16, error) {
	if trackerURL.Port() == "" {
		return 80, nil
	}
	port, err := strconv.ParseUint(trackerURL.Port(), 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(port), nil
}

// announceInterval returns the re-announce delay mandated by a
// successful response, applying the default when the tracker sent
// no interval and the minimum interval as a floor.
func announceInterval(resp *tracker.AnnounceResponse) time.Duration {
	interval := resp.Interval
	if interval <= 0 {
		interval = defaultAnnounceInterval
	}
	if resp.MinInterval > interval {
		interval = resp.MinInterval
	}
	return interval
}
