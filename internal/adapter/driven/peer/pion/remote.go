package pion

import (
	"context"
	"errors"
	"io"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// RemoteTrack is the handle passed to CallObserver.OnRemoteTrack.
type RemoteTrack struct {
	*webrtc.TrackRemote
}

// Consume reads RTP packets until the track ends or ctx is done, handing
// each one to fn.
func (t *RemoteTrack) Consume(ctx context.Context, fn func(*rtp.Packet)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pkt, _, err := t.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		fn(pkt)
	}
}
