// Package transport adapts the engine's per-tick DmxCommand stream onto a
// wire-level sink. The engine core has no opinion on how its output reaches
// hardware (spec.md's DMX wire-level transport is an external collaborator);
// this package is the host's concrete answer: an adaptive-rate Art-Net
// broadcaster.
package transport

import (
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/chromaworks/lumen-engine/internal/lighting/compositor"
	"github.com/chromaworks/lumen-engine/pkg/artnet"
)

// UniverseSize is the number of channels per DMX universe.
const UniverseSize = 512

// ArtNetSink receives DmxCommand batches from an engine tick and forwards
// them as Art-Net DMX packets, stepping transmission rate up while values
// are actively changing and back down to an idle keep-alive rate once
// things settle.
type ArtNetSink struct {
	mu sync.RWMutex

	universes map[uint16][]byte
	dirty     map[uint16]bool
	isDirty   bool

	enabled          bool
	broadcastAddr    string
	port             int
	activeRateHz     int
	idleRateHz       int
	highRateDuration time.Duration

	currentRate      int
	isInHighRateMode bool
	lastChangeTime   time.Time

	sequence byte
	conn     *net.UDPConn

	stopChan        chan struct{}
	resetTickerChan chan struct{}
	running         bool
}

// Config holds ArtNetSink configuration.
type Config struct {
	Enabled          bool
	BroadcastAddr    string
	Port             int
	ActiveRateHz     int
	IdleRateHz       int
	HighRateDuration time.Duration
}

// NewArtNetSink creates a new sink. Universes are allocated lazily as
// DmxCommands reference them.
func NewArtNetSink(cfg Config) *ArtNetSink {
	activeRate := cfg.ActiveRateHz
	if activeRate <= 0 {
		activeRate = 60
	}
	idleRate := cfg.IdleRateHz
	if idleRate <= 0 {
		idleRate = 1
	}
	highRateDuration := cfg.HighRateDuration
	if highRateDuration <= 0 {
		highRateDuration = 2 * time.Second
	}
	port := cfg.Port
	if port <= 0 {
		port = artnet.DefaultPort
	}

	return &ArtNetSink{
		universes:        make(map[uint16][]byte),
		dirty:            make(map[uint16]bool),
		enabled:          cfg.Enabled,
		broadcastAddr:    cfg.BroadcastAddr,
		port:             port,
		activeRateHz:     activeRate,
		idleRateHz:       idleRate,
		highRateDuration: highRateDuration,
		currentRate:      idleRate,
		stopChan:         make(chan struct{}),
		resetTickerChan:  make(chan struct{}, 1),
	}
}

// Start opens the broadcast socket (if enabled) and begins the adaptive
// transmission loop.
func (s *ArtNetSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if s.enabled {
		addr, err := net.ResolveUDPAddr("udp4", s.broadcastAddr+":"+strconv.Itoa(s.port))
		if err != nil {
			return err
		}
		conn, err := net.DialUDP("udp4", nil, addr)
		if err != nil {
			return err
		}
		s.conn = conn
		log.Printf("📡 Art-Net sink started, broadcasting to %s:%d (%dHz active / %dHz idle)",
			s.broadcastAddr, s.port, s.activeRateHz, s.idleRateHz)
	} else {
		log.Printf("🎭 Art-Net sink started in simulation mode (output disabled)")
	}

	s.running = true
	go s.transmitLoop()
	return nil
}

// transmitLoop runs the adaptive-rate transmission ticker.
func (s *ArtNetSink) transmitLoop() {
	s.mu.RLock()
	interval := time.Second / time.Duration(s.currentRate)
	s.mu.RUnlock()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastRate := 0
	for {
		select {
		case <-s.stopChan:
			return
		case <-s.resetTickerChan:
			s.mu.RLock()
			rate := s.currentRate
			s.mu.RUnlock()
			if rate != lastRate {
				ticker.Stop()
				ticker = time.NewTicker(time.Second / time.Duration(rate))
				lastRate = rate
			}
		case <-ticker.C:
			s.transmit()
			s.mu.RLock()
			rate := s.currentRate
			s.mu.RUnlock()
			if rate != lastRate {
				ticker.Stop()
				ticker = time.NewTicker(time.Second / time.Duration(rate))
				lastRate = rate
			}
		}
	}
}

// ApplyFrame applies a batch of DmxCommands produced by a single engine
// tick, allocating universe buffers lazily and triggering high-rate
// transmission if anything actually changed.
func (s *ArtNetSink) ApplyFrame(cmds []compositor.DmxCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, cmd := range cmds {
		buf := s.universes[cmd.Universe]
		if buf == nil {
			buf = make([]byte, UniverseSize)
			s.universes[cmd.Universe] = buf
		}
		idx := int(cmd.Channel) - 1
		if idx < 0 || idx >= UniverseSize {
			continue
		}
		if buf[idx] != cmd.Value {
			buf[idx] = cmd.Value
			s.dirty[cmd.Universe] = true
			changed = true
		}
	}

	if changed {
		s.isDirty = true
		s.triggerHighRateLocked()
	}
}

func (s *ArtNetSink) triggerHighRateLocked() {
	wasIdle := !s.isInHighRateMode
	s.lastChangeTime = time.Now()
	if !s.isInHighRateMode {
		s.isInHighRateMode = true
		s.currentRate = s.activeRateHz
	}
	if wasIdle {
		select {
		case s.resetTickerChan <- struct{}{}:
		default:
		}
	}
}

// transmit sends one Art-Net packet per known universe, stepping the rate
// back down to idle once nothing has changed for highRateDuration.
func (s *ArtNetSink) transmit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isInHighRateMode && !s.lastChangeTime.IsZero() && time.Since(s.lastChangeTime) > s.highRateDuration {
		s.isInHighRateMode = false
		s.currentRate = s.idleRateHz
	}

	if !s.enabled || s.conn == nil {
		s.isDirty = false
		s.dirty = make(map[uint16]bool)
		return
	}

	for universe, buf := range s.universes {
		s.sequence++
		packet := artnet.BuildDMXPacket(int(universe), buf, s.sequence)
		if _, err := s.conn.Write(packet); err != nil {
			log.Printf("Art-Net send error for universe %d: %v", universe, err)
		}
	}

	s.isDirty = false
	s.dirty = make(map[uint16]bool)
}

// Snapshot returns a copy of the current per-universe channel state, for
// diagnostics.
func (s *ArtNetSink) Snapshot() map[uint16][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uint16][]byte, len(s.universes))
	for universe, buf := range s.universes {
		cp := make([]byte, len(buf))
		copy(cp, buf)
		out[universe] = cp
	}
	return out
}

// Stop halts transmission, sends a final blackout packet, and closes the
// socket.
func (s *ArtNetSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	close(s.stopChan)
	s.running = false

	if s.enabled && s.conn != nil {
		for universe := range s.universes {
			blank := make([]byte, UniverseSize)
			s.sequence++
			packet := artnet.BuildDMXPacket(int(universe), blank, s.sequence)
			_, _ = s.conn.Write(packet)
		}
		_ = s.conn.Close()
		s.conn = nil
	}
	log.Printf("🎭 Art-Net sink stopped")
}
