package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"navsense/internal/location"
)

// Config controls the GPS reader.
//
// Device may be empty to auto-detect (/dev/ttyACM*, /dev/ttyUSB*).
// Baud must be a supported rate by the platform implementation.
type Config struct {
	Enable bool

	// Source selects how GPS is ingested: "nmea" (direct serial), "gpsd", or
	// "tcp" (NMEA lines from a TCP endpoint). When empty, defaults to "nmea".
	Source string

	// GPSDAddr is host:port for gpsd when Source=="gpsd".
	GPSDAddr string

	// TCPAddr is host:port of an NMEA line feed when Source=="tcp".
	TCPAddr string

	// Device is the serial device path for Source=="nmea".
	Device string
	Baud   int
}

// Snapshot is the receiver diagnostic view, independent of what listeners
// have been sent.
type Snapshot struct {
	Enabled bool `json:"enabled"`
	Valid   bool `json:"valid"`

	Source   string       `json:"source,omitempty"`
	GPSDAddr string       `json:"gpsd_addr,omitempty"`
	TCP      *TCPSnapshot `json:"tcp,omitempty"`

	Device string `json:"device,omitempty"`
	Baud   int    `json:"baud,omitempty"`

	LatDeg      float64  `json:"lat_deg,omitempty"`
	LonDeg      float64  `json:"lon_deg,omitempty"`
	AltFeet     *int     `json:"alt_feet,omitempty"`
	GroundKt    *int     `json:"ground_kt,omitempty"`
	TrackDeg    *float64 `json:"track_deg,omitempty"`
	TrackErrDeg *float64 `json:"track_err_deg,omitempty"`
	HeadingDeg  *float64 `json:"heading_deg,omitempty"`
	FixQuality  *int     `json:"fix_quality,omitempty"`
	FixMode     *int     `json:"fix_mode,omitempty"`
	Satellites  *int     `json:"satellites,omitempty"`
	HDOP        *float64 `json:"hdop,omitempty"`
	HorizAccM   *float64 `json:"horiz_acc_m,omitempty"`
	VertAccM    *float64 `json:"vert_acc_m,omitempty"`

	FixesPublished uint64 `json:"fixes_published"`
	FixesDropped   uint64 `json:"fixes_dropped"`

	LastFixUTC string `json:"last_fix_utc,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

// readingState is implemented by the NMEA and gpsd parsers. take* report
// readings completed since the previous call.
type readingState interface {
	snapshot() Snapshot
	takeFix() (fixReading, bool)
	takeHeading() (float64, bool)
}

// Service reads a receiver and is a location.Source.
type Service struct {
	cfg  Config
	disp *location.Dispatcher

	cancel context.CancelFunc
	wg     sync.WaitGroup

	last atomic.Value // Snapshot

	published atomic.Uint64
	dropped   atomic.Uint64

	mu     sync.Mutex
	closer io.Closer

	tcp atomic.Pointer[tcpLineReader]
}

var _ location.Source = (*Service)(nil)

func New(cfg Config) *Service {
	s := &Service{cfg: cfg, disp: location.NewDispatcher()}
	s.last.Store(Snapshot{Enabled: cfg.Enable, Source: sourceName(cfg.Source), GPSDAddr: strings.TrimSpace(cfg.GPSDAddr), Device: cfg.Device, Baud: cfg.Baud})
	return s
}

func sourceName(src string) string {
	src = strings.ToLower(strings.TrimSpace(src))
	if src == "" {
		return "nmea"
	}
	return src
}

func (s *Service) LastLocation() (location.Sample, bool) { return s.disp.LastLocation() }
func (s *Service) LastHeading() (float64, bool)          { return s.disp.LastHeading() }

func (s *Service) AddListener(l location.Listener, e location.Executor) error {
	return s.disp.AddListener(l, e)
}

func (s *Service) RemoveListener(l location.Listener) { s.disp.RemoveListener(l) }

func (s *Service) Stats() location.Stats { return s.disp.Stats() }

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps: service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("gps: ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	switch src := sourceName(s.cfg.Source); src {
	case "gpsd":
		return s.startGPSDLocked(ctx)
	case "nmea":
		return s.startNMEALocked(ctx)
	case "tcp":
		return s.startTCPLocked(ctx)
	default:
		return fmt.Errorf("gps: unknown source %q", src)
	}
}

func (s *Service) startNMEALocked(ctx context.Context) error {
	device := strings.TrimSpace(s.cfg.Device)
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			s.setErrorLocked("gps auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
			return fmt.Errorf("gps: auto-detect failed")
		}
	}

	baud := s.cfg.Baud
	if baud == 0 {
		baud = 9600
	}

	f, err := openSerial(device, baud)
	if err != nil {
		s.setErrorLocked(fmt.Sprintf("gps open failed device=%s baud=%d: %v", device, baud, err))
		return fmt.Errorf("gps: open %s: %w", device, err)
	}
	s.closer = f

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			_ = f.Close()
		}()

		log.Printf("gps enabled device=%s baud=%d", device, baud)
		st := &nmeaState{device: device, baud: baud}
		err := s.readNMEA(childCtx, f, st)
		if childCtx.Err() == nil {
			s.setError(fmt.Sprintf("gps read stopped: %v", err))
		}
	}()

	s.last.Store(Snapshot{Enabled: true, Valid: false, Source: "nmea", Device: device, Baud: baud})
	return nil
}

// readNMEA consumes sentences until r fails or ctx is done.
func (s *Service) readNMEA(ctx context.Context, r io.Reader, st *nmeaState) error {
	reader := bufio.NewScanner(r)
	// NMEA sentences are typically < 82 chars, but allow some headroom.
	reader.Buffer(make([]byte, 0, 256), 4096)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !reader.Scan() {
			err := reader.Err()
			if err == nil {
				err = io.EOF
			}
			return err
		}

		line := strings.TrimSpace(reader.Text())
		// Some receivers include non-NMEA chatter; filter quickly.
		if line == "" || !strings.HasPrefix(line, "$") {
			continue
		}

		sent, perr := parseNMEASentence(line)
		if perr != nil {
			s.setError(perr.Error())
			continue
		}

		if updated := st.apply(time.Now().UTC(), sent); updated {
			s.publish(st)
		}
	}
}

func (s *Service) startTCPLocked(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.TCPAddr)
	if addr == "" {
		s.setErrorLocked("gps tcp source requires an address")
		return fmt.Errorf("gps: tcp addr is required")
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	reader := newTCPLineReader(addr)
	s.tcp.Store(reader)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		log.Printf("gps enabled source=tcp addr=%s", addr)
		st := &nmeaState{device: "tcp:" + addr}
		reader.run(childCtx, func(line string) error {
			// Multiplexers may interleave AIS or proprietary chatter.
			if !strings.HasPrefix(line, "$") {
				return nil
			}
			sent, err := parseNMEASentence(line)
			if err != nil {
				s.setError(err.Error())
				return err
			}
			if st.apply(time.Now().UTC(), sent) {
				s.publish(st)
			}
			return nil
		})
	}()

	s.last.Store(Snapshot{Enabled: true, Valid: false, Source: "tcp", Device: "tcp:" + addr})
	return nil
}

func (s *Service) startGPSDLocked(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.GPSDAddr)
	if addr == "" {
		addr = gpsdDefaultAddr
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		log.Printf("gps enabled source=gpsd addr=%s", addr)
		st := newGPSDState(addr)
		backoff := 250 * time.Millisecond
		maxBackoff := 10 * time.Second

		for {
			select {
			case <-childCtx.Done():
				return
			default:
			}

			conn, err := dialGPSD(childCtx, addr)
			if err != nil {
				s.setError(fmt.Sprintf("gpsd dial failed addr=%s: %v", addr, err))
				t := backoff
				if t > maxBackoff {
					t = maxBackoff
				}
				select {
				case <-childCtx.Done():
					return
				case <-time.After(t):
				}
				if backoff < maxBackoff {
					backoff *= 2
				}
				continue
			}

			backoff = 250 * time.Millisecond

			s.mu.Lock()
			// Swap the closer so Close() can interrupt an active connection.
			s.closer = conn
			s.mu.Unlock()

			func() {
				defer func() { _ = conn.Close() }()

				if err := gpsdWatch(conn); err != nil {
					s.setError(fmt.Sprintf("gpsd watch failed: %v", err))
					return
				}
				if err := s.readGPSD(childCtx, conn, st); err != nil && childCtx.Err() == nil {
					s.setError(fmt.Sprintf("gpsd read stopped: %v", err))
				}
			}()
		}
	}()

	s.last.Store(Snapshot{Enabled: true, Valid: false, Source: "gpsd", GPSDAddr: addr, Device: "gpsd"})
	return nil
}

// readGPSD consumes gpsd JSON reports until r fails or ctx is done.
func (s *Service) readGPSD(ctx context.Context, r io.Reader, st *gpsdState) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 256*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !scanner.Scan() {
			err := scanner.Err()
			if err == nil {
				err = io.EOF
			}
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		updated, perr := st.applyLine(time.Now().UTC(), line)
		if perr != nil {
			s.setError(perr.Error())
			continue
		}
		if updated {
			s.publish(st)
		}
	}
}

// publish stores the diagnostic snapshot, then dispatches whatever readings
// the parser completed. Fixes that fail validation are dropped and recorded.
func (s *Service) publish(st readingState) {
	snap := st.snapshot()

	healthy := false
	if fix, ok := st.takeFix(); ok {
		sample, err := fix.sample()
		if err != nil {
			s.dropped.Add(1)
			snap.LastError = fmt.Sprintf("gps: dropped fix: %v", err)
		} else {
			s.published.Add(1)
			s.disp.PublishLocation(sample)
			healthy = true
		}
	}
	if h, ok := st.takeHeading(); ok {
		s.disp.PublishHeading(h)
	}

	snap.FixesPublished = s.published.Load()
	snap.FixesDropped = s.dropped.Load()
	// A validated fix clears any earlier error.
	if snap.LastError == "" && !healthy {
		snap.LastError = s.stored().LastError
	}
	s.last.Store(snap)
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	snap := s.stored()
	if tcp := s.tcp.Load(); tcp != nil {
		ts := tcp.snapshot()
		snap.TCP = &ts
	}
	return snap
}

func (s *Service) stored() Snapshot {
	v := s.last.Load()
	if v == nil {
		return Snapshot{}
	}
	return v.(Snapshot)
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(msg)
}

func (s *Service) setErrorLocked(msg string) {
	cur := s.stored()
	cur.LastError = msg
	// Do not force Valid=false here; transient parse issues shouldn't flip validity.
	s.last.Store(cur)
}

func autoDetectDevice() string {
	candidates := []string{}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
