package client

import "testing"

func track(id, identity, kind string, screen bool) RemoteTrack {
	return RemoteTrack{ID: id, Identity: identity, Kind: kind, Screen: screen}
}

func TestStreamsMergeByIdentity(t *testing.T) {
	t.Parallel()
	s := NewStreams()

	s.Add(track("v1", "alice", "video", false))
	st := s.Add(track("a1", "alice", "audio", false))

	if s.Len() != 1 {
		t.Fatalf("streams = %d, want audio+video merged into one", s.Len())
	}
	if _, ok := st.Track("video"); !ok {
		t.Error("video track missing from merged stream")
	}
	if _, ok := st.Track("audio"); !ok {
		t.Error("audio track missing from merged stream")
	}
}

func TestStreamsScreenShareIsSeparate(t *testing.T) {
	t.Parallel()
	s := NewStreams()

	s.Add(track("v1", "alice", "video", false))
	s.Add(track("s1", "alice", "video", true))

	if s.Len() != 2 {
		t.Fatalf("streams = %d, want camera and screen kept apart", s.Len())
	}
	if _, ok := s.Get(StreamKey{Identity: "alice", Screen: true}); !ok {
		t.Error("screen stream not found under its own key")
	}
}

func TestStreamsRemoveByTrackID(t *testing.T) {
	t.Parallel()
	s := NewStreams()
	s.Add(track("v1", "alice", "video", false))
	s.Add(track("a1", "alice", "audio", false))

	key, emptied, ok := s.RemoveByTrackID("v1")
	if !ok || emptied {
		t.Fatalf("remove v1: ok=%v emptied=%v", ok, emptied)
	}
	key, emptied, ok = s.RemoveByTrackID("a1")
	if !ok || !emptied {
		t.Fatalf("remove a1: ok=%v emptied=%v", ok, emptied)
	}
	if key != (StreamKey{Identity: "alice"}) {
		t.Errorf("key = %+v", key)
	}
	if s.Len() != 0 {
		t.Errorf("streams left = %d", s.Len())
	}
	if _, _, ok := s.RemoveByTrackID("v1"); ok {
		t.Error("removing an unknown track reported ok")
	}
}

func TestStreamsRemoveIdentity(t *testing.T) {
	t.Parallel()
	s := NewStreams()
	s.Add(track("v1", "alice", "video", false))
	s.Add(track("s1", "alice", "video", true))
	s.Add(track("v2", "bob", "video", false))

	s.RemoveIdentity("alice")
	if s.Len() != 1 {
		t.Fatalf("streams = %d, want only bob left", s.Len())
	}
	if _, _, ok := s.RemoveByTrackID("v1"); ok {
		t.Error("alice's track index survived identity removal")
	}
}
