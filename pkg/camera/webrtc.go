package camera

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"
)

// maxGOPBytes bounds the H264 buffer kept between keyframes.
const maxGOPBytes = 8 << 20

// H264Decoder turns an H264 Annex-B buffer into a JPEG of its last frame.
type H264Decoder func(ctx context.Context, h264 []byte, quality int) ([]byte, error)

// WebRTC receives an H264 video track from a GStreamer webrtcsink
// signalling server and delivers decoded JPEG frames.
type WebRTC struct {
	url      string
	producer string
	interval time.Duration
	quality  int
	logger   *slog.Logger

	// Decode converts buffered H264 to JPEG. Defaults to FFmpegDecode.
	Decode H264Decoder

	// ReconnectDelay is the pause between session attempts.
	ReconnectDelay time.Duration
}

// NewWebRTC creates a WebRTC frame source.
func NewWebRTC(cfg Config, logger *slog.Logger) *WebRTC {
	return &WebRTC{
		url:            cfg.URL,
		producer:       cfg.Producer,
		interval:       cfg.Interval(),
		quality:        cfg.Quality,
		logger:         logger.With("component", "camera.webrtc"),
		Decode:         FFmpegDecode,
		ReconnectDelay: 3 * time.Second,
	}
}

// Name implements Source.
func (s *WebRTC) Name() string {
	return "webrtc:" + s.url
}

// Run implements Source.
func (s *WebRTC) Run(ctx context.Context, h Handler) error {
	for {
		err := s.session(ctx, h)
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("video session ended, reconnecting",
			"error", err,
			"delay", s.ReconnectDelay,
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.ReconnectDelay):
		}
	}
}

func (s *WebRTC) session(ctx context.Context, h Handler) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("signalling connect failed: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	sig := &signalling{conn: conn}
	if _, err := sig.welcome(); err != nil {
		return fmt.Errorf("welcome failed: %w", err)
	}
	producerID, err := sig.findProducer(s.producer)
	if err != nil {
		return fmt.Errorf("find producer failed: %w", err)
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return fmt.Errorf("peer connection failed: %w", err)
	}
	defer pc.Close()

	if _, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		s.logger.Info("track received",
			"kind", track.Kind().String(),
			"codec", track.Codec().MimeType,
		)
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			go s.readTrack(ctx, track, h)
		}
	})
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate != nil {
			sig.sendICE(candidate.ToJSON())
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Debug("connection state", "state", state.String())
	})

	if err := sig.startSession(producerID); err != nil {
		return fmt.Errorf("start session failed: %w", err)
	}
	return sig.loop(pc, s.logger)
}

// readTrack depacketizes H264 and decodes the current GOP at the
// configured rate. Only one decode runs at a time.
func (s *WebRTC) readTrack(ctx context.Context, track *webrtc.TrackRemote, h Handler) {
	var (
		depack   codecs.H264Packet
		gop      []byte
		last     time.Time
		decoding atomic.Bool
	)

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		nal, err := depack.Unmarshal(pkt.Payload)
		if err != nil || len(nal) == 0 {
			continue
		}

		if containsNALType(nal, 7) {
			gop = gop[:0]
		}
		gop = append(gop, nal...)
		if len(gop) > maxGOPBytes {
			gop = gop[:0]
			continue
		}

		if time.Since(last) < s.interval || !containsNALType(gop, 5) || !decoding.CompareAndSwap(false, true) {
			continue
		}
		last = time.Now()

		buf := make([]byte, len(gop))
		copy(buf, gop)
		go func(at time.Time) {
			defer decoding.Store(false)
			data, err := s.Decode(ctx, buf, s.quality)
			if err != nil {
				s.logger.Debug("decode failed", "error", err)
				return
			}
			h(jpegFrame(data, at))
		}(last)
	}
}

// FFmpegDecode pipes H264 through ffmpeg and returns the last decoded frame.
func FFmpegDecode(ctx context.Context, h264 []byte, quality int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	// ffmpeg's mjpeg q:v runs 2 (best) to 31 (worst).
	q := 2 + (100-quality)*29/100

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", strconv.Itoa(q),
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(h264)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil && stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	jpg := lastJPEG(stdout.Bytes())
	if jpg == nil {
		return nil, fmt.Errorf("ffmpeg: no frame decoded")
	}
	return jpg, nil
}

// lastJPEG returns a copy of the last JPEG in a concatenated MJPEG stream.
func lastJPEG(stream []byte) []byte {
	idx := bytes.LastIndex(stream, []byte{0xFF, 0xD8, 0xFF})
	if idx < 0 {
		return nil
	}
	out := make([]byte, len(stream)-idx)
	copy(out, stream[idx:])
	return out
}

// containsNALType reports whether an Annex-B buffer holds a NAL unit of type t.
func containsNALType(annexB []byte, t byte) bool {
	for i := 0; i+3 < len(annexB); i++ {
		if annexB[i] == 0 && annexB[i+1] == 0 && annexB[i+2] == 1 {
			if annexB[i+3]&0x1F == t {
				return true
			}
			i += 2
		}
	}
	return false
}

// signalling speaks the GStreamer webrtcsink JSON protocol.
type signalling struct {
	conn *websocket.Conn

	mu        sync.Mutex
	sessionID string
}

func (s *signalling) send(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *signalling) read(timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(timeout))
		defer s.conn.SetReadDeadline(time.Time{})
	}
	_, msg, err := s.conn.ReadMessage()
	return msg, err
}

func (s *signalling) welcome() (string, error) {
	msg, err := s.read(10 * time.Second)
	if err != nil {
		return "", err
	}
	var welcome struct {
		Type   string `json:"type"`
		PeerID string `json:"peerId"`
	}
	if err := json.Unmarshal(msg, &welcome); err != nil {
		return "", err
	}
	if welcome.Type != "welcome" {
		return "", fmt.Errorf("expected welcome, got %s", welcome.Type)
	}
	return welcome.PeerID, nil
}

func (s *signalling) findProducer(name string) (string, error) {
	if err := s.send(map[string]string{"type": "list"}); err != nil {
		return "", err
	}
	msg, err := s.read(5 * time.Second)
	if err != nil {
		return "", err
	}

	var listResp struct {
		Type      string `json:"type"`
		Producers []struct {
			ID   string            `json:"id"`
			Meta map[string]string `json:"meta"`
		} `json:"producers"`
	}
	if err := json.Unmarshal(msg, &listResp); err != nil {
		return "", err
	}

	for _, p := range listResp.Producers {
		if name == "" || p.Meta["name"] == name {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("producer %q not found in %d producers", name, len(listResp.Producers))
}

func (s *signalling) startSession(producerID string) error {
	return s.send(map[string]string{
		"type":   "startSession",
		"peerId": producerID,
	})
}

func (s *signalling) session() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *signalling) sendICE(c webrtc.ICECandidateInit) {
	id := s.session()
	if id == "" {
		return
	}
	s.send(map[string]interface{}{
		"type":      "peer",
		"sessionId": id,
		"ice": map[string]interface{}{
			"candidate":     c.Candidate,
			"sdpMid":        c.SDPMid,
			"sdpMLineIndex": c.SDPMLineIndex,
		},
	})
}

type peerMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	SDP       *struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	} `json:"sdp"`
	ICE *struct {
		Candidate     string  `json:"candidate"`
		SDPMid        *string `json:"sdpMid"`
		SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
	} `json:"ice"`
}

// loop answers offers and forwards ICE candidates until the session ends.
func (s *signalling) loop(pc *webrtc.PeerConnection, logger *slog.Logger) error {
	for {
		raw, err := s.read(0)
		if err != nil {
			return err
		}
		var msg peerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "sessionStarted":
			s.mu.Lock()
			s.sessionID = msg.SessionID
			s.mu.Unlock()

		case "peer":
			if msg.SDP != nil && msg.SDP.Type == "offer" {
				if err := s.answer(pc, msg.SDP.SDP); err != nil {
					return err
				}
			}
			if msg.ICE != nil {
				if err := pc.AddICECandidate(webrtc.ICECandidateInit{
					Candidate:     msg.ICE.Candidate,
					SDPMid:        msg.ICE.SDPMid,
					SDPMLineIndex: msg.ICE.SDPMLineIndex,
				}); err != nil {
					logger.Debug("ice candidate rejected", "error", err)
				}
			}

		case "endSession":
			return fmt.Errorf("session ended by producer")
		}
	}
}

func (s *signalling) answer(pc *webrtc.PeerConnection, sdp string) error {
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return s.send(map[string]interface{}{
		"type":      "peer",
		"sessionId": s.session(),
		"sdp": map[string]string{
			"type": answer.Type.String(),
			"sdp":  answer.SDP,
		},
	})
}

// Verify WebRTC implements Source at compile time.
var _ Source = (*WebRTC)(nil)
