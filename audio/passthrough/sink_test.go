package passthrough

import "testing"

func TestNewSinkNotReadyBeforeAnnounce(t *testing.T) {
	s := NewSink(nil)
	if s.ready {
		t.Fatal("expected sink to be unready before AnnounceFormat")
	}

	// SampleData before any format has been announced must be a no-op,
	// not a panic on a nil pipe writer.
	s.SampleData([]byte{0x01, 0x02, 0x03})
}

func TestCloseBeforeOpenIsSafe(t *testing.T) {
	s := NewSink(nil)
	if err := s.Close(); err != nil {
		t.Fatalf("Close on unopened sink returned error: %v", err)
	}
}
