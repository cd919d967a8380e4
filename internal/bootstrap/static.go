package bootstrap

import "context"

// StaticBootstrap hands back a fixed, operator-supplied list of peers.
type StaticBootstrap struct {
	peers []string
}

// NewStaticBootstrap builds a StaticBootstrap over peers.
func NewStaticBootstrap(peers []string) *StaticBootstrap {
	return &StaticBootstrap{peers: peers}
}

func (s *StaticBootstrap) Discover(ctx context.Context) ([]string, error) {
	return s.peers, nil
}

func (s *StaticBootstrap) Register(ctx context.Context, self SelfInfo) error { return nil }

func (s *StaticBootstrap) Deregister(ctx context.Context, self SelfInfo) error { return nil }
