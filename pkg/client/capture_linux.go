//go:build linux && cgo

package client

import (
	"sync"

	"github.com/liveclass/liveclass/pkg/logger"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// deviceCapture captures camera/microphone/screen via pion/mediadevices
// (V4L2 + malgo + X11 on Linux), encoding VP8 and Opus.
type deviceCapture struct {
	selector *mediadevices.CodecSelector
	log      *logger.Logger

	mu     sync.Mutex
	tracks []mediadevices.Track
}

func NewDeviceCapture(log *logger.Logger) (Capture, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}
	return &deviceCapture{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
		log: log,
	}, nil
}

func (c *deviceCapture) Acquire() ([]LocalTrack, error) {
	if len(mediadevices.EnumerateDevices()) == 0 {
		return nil, ErrNoDevice
	}
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Codec: c.selector,
		Video: func(mtc *mediadevices.MediaTrackConstraints) {
			// raw formats only; MJPEG nodes can poison the VP8 encoder
			mtc.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			mtc.Width = prop.IntRanged{Max: 1280}
			mtc.Height = prop.IntRanged{Max: 720}
		},
		Audio: func(*mediadevices.MediaTrackConstraints) {},
	})
	if err != nil {
		return nil, classifyCaptureErr(err)
	}
	var out []LocalTrack
	c.mu.Lock()
	for _, t := range stream.GetTracks() {
		t.OnEnded(func(err error) {
			if err != nil {
				c.log.Debug().Err(err).Msg("local track ended")
			}
		})
		c.tracks = append(c.tracks, t)
		out = append(out, &mdTrack{t: t})
	}
	c.mu.Unlock()
	return out, nil
}

func (c *deviceCapture) AcquireScreen() (LocalTrack, error) {
	stream, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Codec: c.selector,
		Video: func(*mediadevices.MediaTrackConstraints) {},
	})
	if err != nil {
		return nil, classifyCaptureErr(err)
	}
	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, ErrNoDevice
	}
	t := tracks[0]
	c.mu.Lock()
	c.tracks = append(c.tracks, t)
	c.mu.Unlock()
	return &mdTrack{t: t}, nil
}

func (c *deviceCapture) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tracks {
		_ = t.Close()
	}
	c.tracks = nil
}

type mdTrack struct{ t mediadevices.Track }

func (m *mdTrack) ID() string { return m.t.ID() }
func (m *mdTrack) Kind() string {
	if m.t.Kind() == webrtc.RTPCodecTypeAudio {
		return "audio"
	}
	return "video"
}
func (m *mdTrack) Unwrap() any { return m.t }
func (m *mdTrack) Close() error { return m.t.Close() }
