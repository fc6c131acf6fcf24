// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package tracker implements the HTTP tracker announce protocol.

A [*Client] announces the state of a torrent to an HTTP tracker
with [*Client.Announce] and decodes the bencoded response into an
[*AnnounceResponse], parsing both the compact (BEP 23, BEP 7) and
the dictionary peer representations.

The [*Client] dials through an optional [*netcore.Network], whose
DialFilter hook allows enforcing admission policies on every
announce connection, including connections created when following
HTTP redirects.
*/
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rbmk-project/btcore/netcore"
	"github.com/rbmk-project/common/errclass"
)

// ErrUnsupportedScheme indicates the tracker URL scheme is not HTTP.
var ErrUnsupportedScheme = errors.New("unsupported tracker URL scheme")

// maxResponseBodySize bounds the size of the response body we are
// willing to read from a tracker.
const maxResponseBodySize = 1 << 20

// defaultUserAgent is the User-Agent header value we send unless
// the [*Client] overrides it.
const defaultUserAgent = "btcore/0.1.0"

// Client performs HTTP tracker announces.
//
// The zero value is ready to use. Do not copy a [*Client] after use.
//
// A [*Client] is safe for concurrent use by multiple goroutines as
// long as you don't modify its fields after construction.
type Client struct {
	// HTTPClient is the optional HTTP client to use for announces.
	// If this field is nil, we build a client around Network, or use
	// an internal default client when Network is also nil.
	HTTPClient *http.Client

	// Logger is the optional structured logger for emitting
	// structured diagnostic events. If this field is nil, we
	// will not be emitting structured logs.
	Logger *slog.Logger

	// Network is the optional [*netcore.Network] used to create
	// announce connections when HTTPClient is nil.
	Network *netcore.Network

	// UserAgent is the optional User-Agent header value. If this
	// field is empty, we send a default identifier.
	UserAgent string

	// initOnce ensures we initialize httpc just once.
	initOnce sync.Once

	// httpc is the HTTP client we actually use.
	httpc *http.Client
}

// Announce sends an announce for req to the tracker at trackerURL
// and returns the decoded response. A failure reason carried by a
// well-formed tracker response is returned as an [*Error].
//
// Query parameters already present in trackerURL are preserved, so
// trackers using passkey-style URLs keep working.
func (c *Client) Announce(ctx context.Context, trackerURL string, req *AnnounceRequest) (*AnnounceResponse, error) {
	// parse and validate the tracker URL
	parsed, err := url.Parse(trackerURL)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme != "http" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, parsed.Scheme)
	}

	// add the announce parameters to the query string, letting
	// the encoder percent-escape the binary info-hash and peer-ID
	query := parsed.Query()
	query.Set("info_hash", string(req.InfoHash[:]))
	query.Set("peer_id", string(req.PeerID[:]))
	query.Set("port", strconv.FormatUint(uint64(req.Port), 10))
	query.Set("uploaded", strconv.FormatInt(req.Uploaded, 10))
	query.Set("downloaded", strconv.FormatInt(req.Downloaded, 10))
	query.Set("left", strconv.FormatInt(req.Left, 10))
	query.Set("compact", "1")
	if req.Event != EventNone {
		query.Set("event", req.Event.String())
	}
	if req.NumWant > 0 {
		query.Set("numwant", strconv.Itoa(req.NumWant))
	}
	parsed.RawQuery = query.Encode()

	// emit structured event before announcing
	t0 := c.emitAnnounceStart(ctx, trackerURL, req)

	// perform the actual announce
	resp, err := c.announce(ctx, parsed)

	// emit structured event after announcing
	c.emitAnnounceDone(ctx, trackerURL, req, t0, resp, err)

	return resp, err
}

// announce performs the announce HTTP round trip.
func (c *Client) announce(ctx context.Context, announceURL *url.URL) (*AnnounceResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, announceURL.String(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", c.userAgent())

	httpResp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBodySize))
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tracker response: %s", httpResp.Status)
	}
	return decodeAnnounceResponse(body)
}

// userAgent returns the User-Agent header value to send.
func (c *Client) userAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return defaultUserAgent
}

// httpClient returns the HTTP client to use.
func (c *Client) httpClient() *http.Client {
	c.initOnce.Do(func() {
		switch {
		case c.HTTPClient != nil:
			c.httpc = c.HTTPClient
		case c.Network != nil:
			c.httpc = &http.Client{Transport: &http.Transport{
				DialContext: c.Network.DialContext,
			}}
		default:
			c.httpc = http.DefaultClient
		}
	})
	return c.httpc
}

// emitAnnounceStart emits a structured event before the announce.
func (c *Client) emitAnnounceStart(ctx context.Context, trackerURL string, req *AnnounceRequest) time.Time {
	t0 := c.timeNow()
	if c.Logger != nil {
		c.Logger.InfoContext(
			ctx,
			"trackerAnnounceStart",
			slog.String("trackerURL", trackerURL),
			slog.String("trackerEvent", req.Event.String()),
			slog.Int64("trackerLeft", req.Left),
			slog.Time("t", t0),
		)
	}
	return t0
}

// emitAnnounceDone emits a structured event after the announce.
func (c *Client) emitAnnounceDone(ctx context.Context, trackerURL string,
	req *AnnounceRequest, t0 time.Time, resp *AnnounceResponse, err error) {
	if c.Logger != nil {
		numPeers := 0
		var interval time.Duration
		if resp != nil {
			numPeers = len(resp.Peers)
			interval = resp.Interval
		}
		c.Logger.InfoContext(
			ctx,
			"trackerAnnounceDone",
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("trackerURL", trackerURL),
			slog.String("trackerEvent", req.Event.String()),
			slog.Duration("trackerInterval", interval),
			slog.Int("trackerNumPeers", numPeers),
			slog.Time("t0", t0),
			slog.Time("t", c.timeNow()),
		)
	}
}

// timeNow returns the current time using the Network's clock when
// available so that tests may freeze the time.
func (c *Client) timeNow() time.Time {
	if c.Network != nil && c.Network.TimeNow != nil {
		return c.Network.TimeNow()
	}
	return time.Now()
}
