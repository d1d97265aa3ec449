// Package tracker implements the HTTP announce protocol: building the
// request a tracker expects, decoding its bencoded response, and rotating
// across several trackers per §4.3.
package tracker

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorent/core/bencode"
	"github.com/pkg/errors"
)

// requestTimeout bounds a single announce request so a tracker that accepts
// the TCP connection and never responds cannot hang the whole announce
// indefinitely (the distilled reference implementation used the zero-value
// http.Get, which has no timeout at all).
const requestTimeout = 15 * time.Second

// AnnounceRequest carries the parameters a client sends on every announce.
type AnnounceRequest struct {
	InfoHash   [20]byte
	PeerID     [20]byte
	Port       uint16
	Uploaded   int64
	Downloaded int64
	Left       int64
	Event      string // "started", "completed", "stopped", or "" for a regular re-announce
	TrackerID  string // echoed back if the tracker supplied one previously
}

// Response is a decoded, validated announce response.
type Response struct {
	Interval   time.Duration
	Peers      []Endpoint
	TrackerID  string
	Complete   int
	Incomplete int
}

// Client announces to a single tracker's HTTP endpoint.
type Client struct {
	AnnounceURL string
	HTTP        *http.Client
}

// NewClient builds a Client for announceURL with a bounded request
// timeout.
func NewClient(announceURL string) *Client {
	return &Client{
		AnnounceURL: announceURL,
		HTTP:        &http.Client{Timeout: requestTimeout},
	}
}

// Announce issues one GET request to the tracker and decodes its bencoded
// response.
func (c *Client) Announce(ctx context.Context, req AnnounceRequest) (*Response, error) {
	u, err := c.buildURL(req)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: building announce URL")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: building request")
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newError("unexpected HTTP status %d", resp.StatusCode)
	}

	v, err := bencode.Decode(resp.Body)
	if err != nil {
		return nil, newError("non-bencoded response body: %s", err)
	}
	if v.Kind != bencode.KindDict {
		return nil, newError("response body is not a dictionary")
	}

	if reason, ok := v.Dict.Get("failure reason"); ok && reason.Kind == bencode.KindString {
		return nil, newError("tracker reported failure: %s", reason.Str)
	}

	return parseResponse(v.Dict)
}

func parseResponse(d *bencode.Dict) (*Response, error) {
	interval, ok := d.Get("interval")
	if !ok || interval.Kind != bencode.KindInt {
		return nil, newError("missing or malformed 'interval'")
	}

	peersVal, ok := d.Get("peers")
	if !ok || peersVal.Kind != bencode.KindString {
		return nil, newError("missing or malformed 'peers'")
	}
	peers, err := decodeCompactPeers(peersVal.Str)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Interval: time.Duration(interval.Int) * time.Second,
		Peers:    peers,
	}
	if tid, ok := d.Get("tracker id"); ok && tid.Kind == bencode.KindString {
		resp.TrackerID = string(tid.Str)
	}
	if complete, ok := d.Get("complete"); ok && complete.Kind == bencode.KindInt {
		resp.Complete = int(complete.Int)
	}
	if incomplete, ok := d.Get("incomplete"); ok && incomplete.Kind == bencode.KindInt {
		resp.Incomplete = int(incomplete.Int)
	}
	return resp, nil
}

func (c *Client) buildURL(req AnnounceRequest) (string, error) {
	base, err := url.Parse(c.AnnounceURL)
	if err != nil {
		return "", err
	}
	values := url.Values{
		"port":       []string{strconv.Itoa(int(req.Port))},
		"uploaded":   []string{strconv.FormatInt(req.Uploaded, 10)},
		"downloaded": []string{strconv.FormatInt(req.Downloaded, 10)},
		"left":       []string{strconv.FormatInt(req.Left, 10)},
		"compact":    []string{"1"},
	}
	if req.Event != "" {
		values.Set("event", req.Event)
	}
	if req.TrackerID != "" {
		values.Set("trackerid", req.TrackerID)
	}
	base.RawQuery = values.Encode() +
		"&info_hash=" + percentEncode(req.InfoHash[:]) +
		"&peer_id=" + percentEncode(req.PeerID[:])
	return base.String(), nil
}

// percentEncode applies the %XX-per-byte encoding the protocol requires
// for info_hash and peer_id: url.QueryEscape would leave some bytes
// unescaped and escape others (like space as "+") in ways trackers don't
// expect for these two raw 20-byte fields.
func percentEncode(b []byte) string {
	out := make([]byte, 0, len(b)*3)
	for _, c := range b {
		out = append(out, '%')
		out = append(out, hexDigit(c>>4), hexDigit(c&0xf))
	}
	return string(out)
}

func hexDigit(n byte) byte {
	const digits = "0123456789ABCDEF"
	return digits[n]
}
