package antientropy

// StaticPeers is a fixed PeerLister over a slice configured once at
// startup; there is no runtime join/leave.
type StaticPeers []AntiEntropyPeer

func (p StaticPeers) Peers() []AntiEntropyPeer { return p }
