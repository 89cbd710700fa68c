//go:build !cgo

package audio

// OtoFactory is unavailable without cgo.
type OtoFactory struct{}

// NewOtoFactory always fails: the audio device backend requires cgo.
func NewOtoFactory(cfg PlayerConfig) (*OtoFactory, error) {
	return nil, ErrPlaybackUnavailable
}

// CreatePlayer always fails.
func (f *OtoFactory) CreatePlayer(uri string) (Player, error) {
	return nil, ErrPlaybackUnavailable
}
