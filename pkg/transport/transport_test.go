package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestDownsampleTo16kDecimatesByThree(t *testing.T) {
	// Six samples (12 bytes) of 48kHz PCM should collapse to two 16kHz samples.
	pcm := []byte{
		0x01, 0x02, // sample 0 (kept)
		0x03, 0x04, // sample 1
		0x05, 0x06, // sample 2
		0x07, 0x08, // sample 3 (kept)
		0x09, 0x0a, // sample 4
		0x0b, 0x0c, // sample 5
	}

	out := DownsampleTo16k(pcm)

	want := []byte{0x01, 0x02, 0x07, 0x08}
	if string(out) != string(want) {
		t.Fatalf("expected %v, got %v", want, out)
	}
}

func TestDownsampleTo16kDropsTrailingPartialSample(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04, 0x05} // fewer than 6 bytes
	out := DownsampleTo16k(pcm)
	if len(out) != 0 {
		t.Fatalf("expected no output for a single incomplete group, got %v", out)
	}
}

func TestDownsampleTo16kEmptyInput(t *testing.T) {
	if out := DownsampleTo16k(nil); len(out) != 0 {
		t.Fatalf("expected empty output for empty input, got %v", out)
	}
}

func TestHandleOfferRejectsNonPOST(t *testing.T) {
	srv, err := NewServer(func(pc *webrtc.PeerConnection) error { return nil }, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/offer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestHandleOfferRejectsInvalidBody(t *testing.T) {
	srv, err := NewServer(func(pc *webrtc.PeerConnection) error { return nil }, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/offer", "application/json", strings.NewReader("not json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHandleOfferSurfacesSessionBuilderError(t *testing.T) {
	boom := errBoom{}
	srv, err := NewServer(func(pc *webrtc.PeerConnection) error { return boom }, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body := `{"sdp":"","type":"offer"}`
	resp, err := http.Post(ts.URL+"/offer", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 when the session builder fails, got %d", resp.StatusCode)
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
