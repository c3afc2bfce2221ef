package voice

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"Nightjar/queue"
	"Nightjar/session"

	"github.com/Strum355/log"
	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"
)

const (
	sampleRate       = 48000
	channels         = 2
	frameSize        = 960
	maxOpusFrameSize = 4000
	frameDuration    = 20 * time.Millisecond
)

var errNotSubscribed = errors.New("player has no voice connection")

// playback is a single stream being encoded and sent to Discord.
type playback struct {
	stream queue.Stream
	cmd    *exec.Cmd
	stop   chan struct{} // closed to end playback early
	resume chan struct{} // non-nil while paused, closed on resume
	frames atomic.Int64
	mu     sync.Mutex
	ended  bool
}

func (p *playback) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resume != nil
}

// Pause blocks the send loop until Resume is called. Pausing twice keeps the same resume channel.
func (p *playback) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resume == nil {
		p.resume = make(chan struct{})
	}
}

func (p *playback) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resume != nil {
		close(p.resume)
		p.resume = nil
	}
}

// End stops the playback, kills ffmpeg and closes the stream. Safe to call twice.
func (p *playback) End() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ended {
		return
	}
	p.ended = true

	if p.stop != nil {
		close(p.stop)
	}
	if p.resume != nil {
		close(p.resume)
		p.resume = nil
	}
	if p.cmd != nil && p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	if p.stream != nil {
		p.stream.Close()
	}
}

func (p *playback) waitIfPaused() bool {
	p.mu.Lock()
	resume, ended := p.resume, p.ended
	p.mu.Unlock()
	if ended {
		return false
	}
	if resume != nil {
		select {
		case <-resume:
		case <-p.stop:
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.ended
}

type stateChange struct {
	prev, next session.PlayerState
}

// Player sends one stream at a time to the voice connection it is subscribed to.
type Player struct {
	mu      sync.Mutex
	vc      *discordgo.VoiceConnection
	state   session.PlayerState
	current *playback

	eventsMu sync.Mutex
	pending  []stateChange
	wake     chan struct{}

	listenersMu sync.Mutex
	listeners   []session.StateListener
}

// NewPlayer creates an idle player. State changes are delivered from a dedicated goroutine.
func NewPlayer() *Player {
	p := &Player{
		state: session.PlayerIdle,
		wake:  make(chan struct{}, 1),
	}
	go p.dispatch()
	return p
}

func (p *Player) dispatch() {
	for range p.wake {
		p.eventsMu.Lock()
		events := p.pending
		p.pending = nil
		p.eventsMu.Unlock()

		p.listenersMu.Lock()
		listeners := append([]session.StateListener(nil), p.listeners...)
		p.listenersMu.Unlock()

		for _, ev := range events {
			for _, l := range listeners {
				l(ev.prev, ev.next)
			}
		}
	}
}

func (p *Player) emit(prev, next session.PlayerState) {
	p.eventsMu.Lock()
	p.pending = append(p.pending, stateChange{prev: prev, next: next})
	p.eventsMu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Player) OnStateChange(l session.StateListener) {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	p.listeners = append(p.listeners, l)
}

func (p *Player) subscribe(vc *discordgo.VoiceConnection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vc = vc
}

func (p *Player) unsubscribe(vc *discordgo.VoiceConnection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.vc == vc {
		p.vc = nil
	}
}

func (p *Player) setStateLocked(next session.PlayerState) {
	if p.state == next {
		return
	}
	prev := p.state
	p.state = next
	p.emit(prev, next)
}

func (p *Player) State() session.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) PlaybackDuration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return 0
	}
	return time.Duration(p.current.frames.Load()) * frameDuration
}

// Play replaces whatever is playing with stream. The replaced stream does not
// produce an Idle event.
func (p *Player) Play(stream queue.Stream) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.vc == nil {
		return errNotSubscribed
	}
	if p.current != nil {
		p.current.End()
	}

	pb := &playback{stream: stream, stop: make(chan struct{})}
	p.current = pb
	p.setStateLocked(session.PlayerBuffering)

	go p.run(p.vc, pb)
	return nil
}

func (p *Player) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil || p.state != session.PlayerPlaying {
		return false
	}
	p.current.Pause()
	p.setStateLocked(session.PlayerPaused)
	return true
}

func (p *Player) Unpause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil || p.state != session.PlayerPaused {
		return false
	}
	p.current.Resume()
	p.setStateLocked(session.PlayerPlaying)
	return true
}

// Stop ends the current stream. The player reports Idle once the send loop exits.
func (p *Player) Stop() bool {
	p.mu.Lock()
	pb := p.current
	p.mu.Unlock()
	if pb == nil {
		return false
	}
	pb.End()
	return true
}

func (p *Player) run(vc *discordgo.VoiceConnection, pb *playback) {
	err := p.send(vc, pb)
	if err != nil && !errors.Is(err, io.EOF) {
		log.WithError(err).Error("Playback error")
	}
	pb.End()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == pb {
		p.current = nil
		p.setStateLocked(session.PlayerIdle)
	}
}

func waitReady(vc *discordgo.VoiceConnection) error {
	if vc.Ready {
		return nil
	}
	for i := 0; i < 20; i++ {
		time.Sleep(250 * time.Millisecond)
		if vc.Ready {
			return nil
		}
	}
	return fmt.Errorf("voice connection never became ready")
}

// send pipes the source through ffmpeg into PCM, encodes it with Opus and sends it to Discord.
func (p *Player) send(vc *discordgo.VoiceConnection, pb *playback) error {
	if err := waitReady(vc); err != nil {
		return err
	}

	vc.Speaking(true)
	defer vc.Speaking(false)

	cmd := exec.Command("ffmpeg",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"pipe:1",
	)
	cmd.Stdin = pb.stream

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	pb.mu.Lock()
	pb.cmd = cmd
	pb.mu.Unlock()
	defer func() {
		cmd.Process.Kill()
		pb.stream.Close()
		cmd.Wait()
	}()

	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.current == pb && p.state == session.PlayerBuffering {
		p.setStateLocked(session.PlayerPlaying)
	}
	p.mu.Unlock()

	buf := make([]int16, frameSize*channels)
	for {
		if !pb.waitIfPaused() {
			return nil
		}

		if err := binary.Read(stdout, binary.LittleEndian, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}

		opus, err := encoder.Encode(buf, frameSize, maxOpusFrameSize)
		if err != nil {
			return err
		}

		if len(opus) > 0 {
			select {
			case vc.OpusSend <- opus:
				pb.frames.Add(1)
			case <-time.After(time.Second):
				return fmt.Errorf("timeout sending opus frame")
			case <-pb.stop:
				return nil
			}
		}
	}
}
