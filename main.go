// Command gorent-core is the CLI entry point (C9): it wires the
// metainfo loader, tracker client, peer sessions, swarm coordinator and
// file writer together behind a single required flag and blocks until
// the download completes or every peer and tracker has been exhausted.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorent/core/metainfo"
	"github.com/gorent/core/peer"
	"github.com/gorent/core/swarm"
	"github.com/gorent/core/tracker"
	"github.com/gorent/core/writer"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// errNoPeersRemaining is returned from the re-announce loop once no
// session is active and the most recent round of announces turned up no
// address we haven't already tried. Without this, a run whose initial
// peers all fail to dial would sit forever re-polling trackers that keep
// handing back the same addresses (§7: "every peer has been dropped").
var errNoPeersRemaining = errors.New("no active peers and no new peers from any tracker")

// reannounceIdle is how often the re-announce loop polls the tracker
// manager for eligibility, and the fallback interval a tracker gets
// before it has ever returned one of its own.
const reannounceIdle = 30 * time.Second

// listenPort is the local peer-listen port advertised to trackers. This
// core never actually listens (no seed direction, per §1's non-goals),
// but trackers still require a port value in the announce request.
const listenPort = 6881

func main() {
	torrentFile := flag.String("torrent-file", "", "path to the .torrent file to download")
	outDir := flag.String("out", ".", "directory to write downloaded files into")
	verbose := flag.Bool("verbose", false, "enable debug-level logging")
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if err := run(*torrentFile, *outDir, log); err != nil {
		log.WithError(err).Error("run failed")
		os.Exit(1)
	}
}

func run(torrentFilePath, outDir string, log *logrus.Logger) error {
	if torrentFilePath == "" {
		return errors.New("--torrent-file is required")
	}

	f, err := os.Open(torrentFilePath)
	if err != nil {
		return errors.Wrap(err, "opening torrent file")
	}
	defer f.Close()

	tf, err := metainfo.Load(f)
	if err != nil {
		return errors.Wrap(err, "loading metainfo")
	}
	entry := log.WithField("torrent", tf.Info.Name)
	entry.Info("loaded metainfo")

	asm := writer.NewAssembler(outDir, &tf.Info)
	defer func() {
		if cerr := asm.Close(); cerr != nil {
			entry.WithError(cerr).Warn("closing output files")
		}
	}()

	coord := swarm.New(tf, asm, entry)

	trackerURLs := append([]string{tf.Announce}, tf.AnnounceList...)
	mgr := tracker.NewManager(trackerURLs, reannounceIdle)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req := tracker.AnnounceRequest{
		InfoHash: tf.InfoHash,
		PeerID:   coord.PeerID(),
		Port:     listenPort,
		Left:     tf.Info.Length,
		Event:    "started",
	}

	peers, errs := mgr.AnnounceAll(ctx, req, time.Now())
	for _, e := range errs {
		entry.WithError(e).Warn("tracker announce failed")
	}
	if len(peers) == 0 {
		return errors.New("no tracker returned any peers")
	}
	entry.WithField("count", len(peers)).Info("discovered peers")

	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return coord.Run(gctx)
	})

	// Once the coordinator reports completion, cancel gctx so every
	// still-running session's read loop unblocks and errgroup.Wait
	// returns instead of hanging on peers we no longer need.
	eg.Go(func() error {
		select {
		case <-coord.Done():
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	st := newSessionTracker()
	for _, p := range peers {
		st.tryDial(eg, gctx, p.String(), tf.InfoHash, coord, entry)
	}

	eg.Go(func() error {
		return reannounceLoop(eg, gctx, mgr, req, coord, entry, st)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	entry.Info("download finished")
	return nil
}

// sessionTracker records which peer addresses have already been dialed
// and how many sessions are currently live, so the re-announce loop can
// tell whether the swarm has been exhausted (§7: no peer left to try and
// no tracker yielding anything new).
type sessionTracker struct {
	mu     sync.Mutex
	dialed map[string]bool
	active int
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{dialed: make(map[string]bool)}
}

// tryDial records addr as seen and launches a session for it if it
// hasn't already been dialed this run. It reports whether it actually
// started a new dial.
func (st *sessionTracker) tryDial(eg *errgroup.Group, gctx context.Context, addr string, infoHash [20]byte, coord *swarm.Coordinator, log *logrus.Entry) bool {
	st.mu.Lock()
	if st.dialed[addr] {
		st.mu.Unlock()
		return false
	}
	st.dialed[addr] = true
	st.active++
	st.mu.Unlock()

	// The goroutine launched below dials addr, completes the
	// handshake and serves the session until it fails or gctx is
	// cancelled. A per-session failure is logged and swallowed rather
	// than propagated: per §7 it is recoverable and must not abort the
	// other sessions, but it still needs to be reflected in active so
	// exhaustion can be detected.
	eg.Go(func() error {
		defer st.sessionDone()
		sess, err := peer.Dial(addr, infoHash, coord.PeerID(), coord, log)
		if err != nil {
			log.WithError(err).WithField("peer", addr).Debug("dial failed")
			return nil
		}
		if err := sess.Serve(gctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).WithField("peer", addr).Debug("session ended")
		}
		return nil
	})
	return true
}

func (st *sessionTracker) sessionDone() {
	st.mu.Lock()
	st.active--
	st.mu.Unlock()
}

func (st *sessionTracker) activeCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.active
}

// reannounceLoop polls the tracker manager for newly eligible trackers
// and dials any peer endpoint not already seen (§4.3's rotation: each
// tracker is only re-contacted once its own interval elapses). It runs
// until gctx is cancelled, or returns errNoPeersRemaining once a tick
// finds no live session and no new address from any tracker, since no
// further progress is possible from that point on.
func reannounceLoop(eg *errgroup.Group, gctx context.Context, mgr *tracker.Manager, req tracker.AnnounceRequest, coord *swarm.Coordinator, log *logrus.Entry, st *sessionTracker) error {
	// Re-announces are regular announces: "started" goes only with the
	// first one, made by run.
	req.Event = ""
	ticker := time.NewTicker(reannounceIdle)
	defer ticker.Stop()
	for {
		select {
		case <-gctx.Done():
			return nil
		case <-ticker.C:
			peers, errs := mgr.AnnounceAll(gctx, req, time.Now())
			for _, e := range errs {
				log.WithError(e).Debug("re-announce failed")
			}
			newlyDialed := 0
			for _, p := range peers {
				addr := p.String()
				if st.tryDial(eg, gctx, addr, req.InfoHash, coord, log) {
					newlyDialed++
					log.WithField("peer", addr).Debug("dialing newly discovered peer")
				}
			}
			if newlyDialed == 0 && st.activeCount() == 0 {
				log.Warn("no active peers and no new peers from any tracker")
				return errNoPeersRemaining
			}
		}
	}
}
