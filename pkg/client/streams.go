package client

import "sync"

// RemoteTrack is one subscribed track of a remote participant.
type RemoteTrack struct {
	ID       string
	Identity string
	Kind     string // audio|video
	Screen   bool   // source tag from the publication metadata
	Track    any    // underlying transport track
}

// StreamKey groups tracks into per-identity streams; screen-share tracks
// stay in a separate stream from camera/microphone tracks.
type StreamKey struct {
	Identity string
	Screen   bool
}

// Stream is an owned, mutable collection of a remote identity's tracks,
// keyed by track id so merge and removal stay O(1) per track.
type Stream struct {
	Key    StreamKey
	tracks map[string]RemoteTrack
}

func (s *Stream) Tracks() []RemoteTrack {
	out := make([]RemoteTrack, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *Stream) Track(kind string) (RemoteTrack, bool) {
	for _, t := range s.tracks {
		if t.Kind == kind {
			return t, true
		}
	}
	return RemoteTrack{}, false
}

// Streams merges remote tracks into per-identity streams.
type Streams struct {
	mu      sync.Mutex
	streams map[StreamKey]*Stream
	byTrack map[string]StreamKey
}

func NewStreams() *Streams {
	return &Streams{
		streams: make(map[StreamKey]*Stream),
		byTrack: make(map[string]StreamKey),
	}
}

// Add merges the track into its identity's stream and returns that stream.
func (s *Streams) Add(t RemoteTrack) *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := StreamKey{Identity: t.Identity, Screen: t.Screen}
	st, ok := s.streams[key]
	if !ok {
		st = &Stream{Key: key, tracks: make(map[string]RemoteTrack, 2)}
		s.streams[key] = st
	}
	st.tracks[t.ID] = t
	s.byTrack[t.ID] = key
	return st
}

// RemoveByTrackID removes one track; an emptied stream is dropped and
// reported so the UI can tear the tile down.
func (s *Streams) RemoveByTrackID(trackID string) (key StreamKey, emptied, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok = s.byTrack[trackID]
	if !ok {
		return StreamKey{}, false, false
	}
	delete(s.byTrack, trackID)
	st := s.streams[key]
	delete(st.tracks, trackID)
	if len(st.tracks) == 0 {
		delete(s.streams, key)
		emptied = true
	}
	return key, emptied, true
}

// RemoveIdentity drops all streams of a departed participant.
func (s *Streams) RemoveIdentity(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, st := range s.streams {
		if key.Identity != identity {
			continue
		}
		for id := range st.tracks {
			delete(s.byTrack, id)
		}
		delete(s.streams, key)
	}
}

func (s *Streams) Get(key StreamKey) (*Stream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[key]
	return st, ok
}

func (s *Streams) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

func (s *Streams) Clear() {
	s.mu.Lock()
	s.streams = make(map[StreamKey]*Stream)
	s.byTrack = make(map[string]StreamKey)
	s.mu.Unlock()
}
