// Package transport wires a WebRTC peer connection to the voice pipeline:
// SDP signaling over HTTP, a control data channel, and the inbound/outbound
// media tracks.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pion/webrtc/v4"
)

// SessionBuilder creates the per-connection pipeline (VAD/STT/LLM/TTS stack)
// and attaches its tracks and handlers to pc itself; it returns only an
// error.
type SessionBuilder func(pc *webrtc.PeerConnection) error

// Server is the minimal signaling surface: POST /offer, plus static files
// for the reference client. The handshake itself is intentionally thin —
// everything interesting happens inside SessionBuilder.
type Server struct {
	api     *webrtc.API
	build   SessionBuilder
	staticFS http.FileSystem
}

type offerRequest struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

type answerResponse struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// NewServer builds a Server. staticFS serves "/" and "/client.js"; pass nil
// to disable static file serving.
func NewServer(build SessionBuilder, staticFS http.FileSystem) (*Server, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("transport: register codecs: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m))
	return &Server{api: api, build: build, staticFS: staticFS}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/offer", s.handleOffer)
	if s.staticFS != nil {
		fileServer := http.FileServer(s.staticFS)
		mux.Handle("/", fileServer)
		mux.Handle("/client.js", fileServer)
	}
	return mux
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req offerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid offer body", http.StatusBadRequest)
		return
	}

	pc, err := s.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		http.Error(w, "failed to create peer connection", http.StatusInternalServerError)
		return
	}

	if err := s.build(pc); err != nil {
		pc.Close()
		http.Error(w, "failed to build session: "+err.Error(), http.StatusInternalServerError)
		return
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: req.SDP}
	if err := pc.SetRemoteDescription(offer); err != nil {
		http.Error(w, "failed to set remote description", http.StatusBadRequest)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		http.Error(w, "failed to create answer", http.StatusInternalServerError)
		return
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		http.Error(w, "failed to set local description", http.StatusInternalServerError)
		return
	}
	<-gatherComplete

	local := pc.LocalDescription()
	resp := answerResponse{SDP: local.SDP, Type: local.Type.String()}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
