package antientropy

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// PeerLister exposes the current cluster membership the daemon picks a
// random partner from, excluding the local node.
type PeerLister interface {
	Peers() []AntiEntropyPeer
}

// Daemon runs fixed-interval anti-entropy rounds against a randomly chosen
// peer. It is a single-threaded cooperative scheduler: exactly one round
// runs at a time, and shutdown only takes effect between ticks.
type Daemon struct {
	session  *Session
	peers    PeerLister
	shard    ShardRange
	interval time.Duration
	log      *zap.Logger
	rng      *rand.Rand
}

// NewDaemon constructs a Daemon. shard is the configured range to run
// rounds over (FullRange() for the single-shard demo configuration).
func NewDaemon(session *Session, peers PeerLister, shard ShardRange, interval time.Duration, log *zap.Logger) *Daemon {
	if log == nil {
		log = zap.NewNop()
	}
	return &Daemon{
		session:  session,
		peers:    peers,
		shard:    shard,
		interval: interval,
		log:      log,
		rng:      rand.New(rand.NewSource(1)),
	}
}

// Run loops until ctx is cancelled, running one round per tick. A tick with
// no peers is skipped; a round's error is logged and the loop continues.
// The loop only checks ctx.Done() between ticks, so Run returns only after
// an in-flight round has returned; ctx is also passed into the round, so
// cancelling it aborts that round's outstanding peer calls.
func (d *Daemon) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("antientropy daemon stopping")
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Daemon) tick(ctx context.Context) {
	peers := d.peers.Peers()
	if len(peers) == 0 {
		return
	}

	peer := peers[d.rng.Intn(len(peers))]
	outcome, err := d.session.Run(ctx, peer, d.shard)
	if err != nil {
		d.log.Warn("antientropy round failed", zap.String("peer", peer.NodeID()), zap.Error(err))
		return
	}

	if outcome.InSync {
		d.log.Debug("antientropy round in sync", zap.String("peer", peer.NodeID()))
		return
	}
	d.log.Info("antientropy round found divergence",
		zap.String("peer", peer.NodeID()),
		zap.Int("pulled", len(outcome.Pulled)),
		zap.Int("pushed", len(outcome.Pushed)),
	)
}
