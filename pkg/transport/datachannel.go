package transport

import (
	"strings"

	"github.com/pion/webrtc/v4"
)

// KindSTTSave is the bus event published when the save_audio control
// message arrives.
const KindSTTSave = "stt_save"

// ControlHandlers reacts to data-channel text control messages.
type ControlHandlers struct {
	OnSaveAudio  func()
	OnForceAbort func()
	OnOther      func(msg string)
}

// WireControlChannel installs the standard control protocol on dc: ping
// replies with pong, save_audio/f3 are dispatched to the handlers, and
// everything else falls through to OnOther.
func WireControlChannel(dc *webrtc.DataChannel, h ControlHandlers) {
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		text := string(msg.Data)

		switch {
		case strings.HasPrefix(text, "ping"):
			dc.SendText("pong" + strings.TrimPrefix(text, "ping"))
		case text == "save_audio":
			if h.OnSaveAudio != nil {
				h.OnSaveAudio()
			}
		case text == "f3":
			if h.OnForceAbort != nil {
				h.OnForceAbort()
			}
		default:
			if h.OnOther != nil {
				h.OnOther(text)
			}
		}
	})
}
