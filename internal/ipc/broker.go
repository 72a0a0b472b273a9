package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/srg/inoli/internal/groutine"
)

const (
	DefaultQueueSize    = 64
	DefaultWriteTimeout = 5 * time.Second

	readChunk      = 256
	mergedCapacity = 64
)

// Options tunes a Broker. Zero values select the defaults.
type Options struct {
	// QueueSize bounds the shared command queue. When it is full the oldest
	// command is dropped.
	QueueSize int
	// FrameLimit caps the unparsed bytes kept per client.
	FrameLimit int
	// WriteTimeout bounds a single message write to one client.
	WriteTimeout time.Duration
}

// Broker bridges telemetry streams and local clients.
type Broker struct {
	listener net.Listener
	opts     Options
	logger   *logrus.Logger

	merged   chan Message
	slot     *Slot[Message]
	commands *RingChannel[Command]

	mu      sync.Mutex
	clients map[string]net.Conn
	wg      sync.WaitGroup
}

func New(listener net.Listener, opts Options, logger *logrus.Logger) *Broker {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.FrameLimit <= 0 {
		opts.FrameLimit = DefaultFrameLimit
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}

	return &Broker{
		listener: listener,
		opts:     opts,
		logger:   logger,
		merged:   make(chan Message, mergedCapacity),
		slot:     NewSlot[Message](),
		commands: NewRingChannel[Command](opts.QueueSize),
		clients:  make(map[string]net.Conn),
	}
}

// Commands yields decoded commands from every client. It is closed when
// Serve returns.
func (b *Broker) Commands() <-chan Command {
	return b.commands.C()
}

// AddMessenger merges src into the outbound stream. It may be called at any
// time; forwarding stops when src is closed or ctx is done.
func (b *Broker) AddMessenger(ctx context.Context, name string, src <-chan Message) {
	b.logger.WithField("messenger", name).Debug("Messenger added")

	groutine.Go(ctx, "ipc-messenger-"+name, func(ctx context.Context) {
		defer b.logger.WithField("messenger", name).Debug("Messenger finished")
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-src:
				if !ok {
					return
				}
				select {
				case b.merged <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	})
}

// Publish enqueues a single message behind the merged streams.
func (b *Broker) Publish(ctx context.Context, m Message) error {
	select {
	case b.merged <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transmit moves merged messages into the broadcast slot until ctx is done.
// It never waits on clients.
func (b *Broker) Transmit(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-b.merged:
			b.logger.WithField("message", m.String()).Debug("Transmitting message")
			b.slot.Publish(m)
		}
	}
}

// Serve accepts clients until ctx is done or the listener fails. It closes
// the listener, every client connection and the command queue on return.
func (b *Broker) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = b.listener.Close() })
	defer stop()
	defer b.closeQueue()
	defer b.wg.Wait()
	defer b.closeClients()

	b.logger.WithField("address", b.listener.Addr().String()).Info("IPC broker listening")

	for {
		conn, err := b.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept IPC client: %w", err)
		}

		id := ulid.Make().String()
		if !b.track(id, conn) {
			_ = conn.Close()
			return nil
		}

		b.wg.Add(1)
		groutine.Go(ctx, "ipc-client-"+id, func(ctx context.Context) {
			defer b.wg.Done()
			defer b.untrack(id)
			b.handleClient(ctx, id, conn)
		})
	}
}

// QueueMetrics reports how many commands were queued and how many were
// overwritten before the orchestrator consumed them.
func (b *Broker) QueueMetrics() Metrics {
	return b.commands.GetMetrics()
}

func (b *Broker) closeQueue() {
	b.commands.Close()
	m := b.commands.GetMetrics()
	b.logger.WithFields(logrus.Fields{
		"written":     m.Written,
		"overwritten": m.Overwritten,
	}).Info("Command queue closed")
}

// Clients reports how many clients are attached.
func (b *Broker) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Broker) track(id string, conn net.Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.clients == nil {
		return false
	}
	b.clients[id] = conn
	return true
}

func (b *Broker) untrack(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, id)
}

func (b *Broker) closeClients() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, conn := range b.clients {
		_ = conn.Close()
	}
	b.clients = nil
}

// handleClient runs one client until either side closes. Errors end only
// this client.
func (b *Broker) handleClient(ctx context.Context, id string, conn net.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()

	logger := b.logger.WithField("client_id", id)
	if fields, ok := peerCredentials(conn); ok {
		logger = logger.WithFields(fields)
	}
	logger.Info("IPC client attached")

	reads := make(chan []byte)
	readErr := make(chan error, 1)
	groutine.Go(ctx, "ipc-reader-"+id, func(ctx context.Context) {
		readLoop(ctx, conn, reads, readErr)
	})

	scanner := NewCommandScanner(b.opts.FrameLimit)
	var seen uint64

	for {
		select {
		case <-ctx.Done():
			logger.Debug("IPC client handler stopped")
			return

		case <-b.slot.Changed(seen):
			var m Message
			m, seen = b.slot.Load()
			if err := b.send(conn, m); err != nil {
				logger.WithError(err).Info("IPC client detached on write")
				return
			}
			logger.WithField("message", m.String()).Debug("Sent message")

		case chunk := <-reads:
			scanner.Write(chunk)
			b.drain(scanner, logger)

		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				logger.Info("IPC client detached")
			} else {
				logger.WithError(err).Warn("IPC client read failed")
			}
			return
		}
	}
}

// drain forwards every complete command in the scanner to the queue.
func (b *Broker) drain(scanner *FrameScanner[Command], logger *logrus.Entry) {
	for {
		cmd, ok, err := scanner.Next()
		if !ok {
			return
		}
		if err != nil {
			logger.WithError(err).Warn("Dropped malformed command frame")
			continue
		}

		logger.WithField("command", cmd.String()).Debug("Received command")
		if dropped, accepted := b.commands.Send(cmd); !accepted {
			logger.WithField("command", cmd.String()).Warn("Command queue closed, command dropped")
		} else if dropped {
			logger.Warn("Command queue full, oldest command dropped")
		}
	}
}

func (b *Broker) send(conn net.Conn, m Message) error {
	frame, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(b.opts.WriteTimeout))
	n, err := conn.Write(frame)
	if err != nil {
		return err
	}
	if n == 0 {
		return io.ErrClosedPipe
	}
	return nil
}

// readLoop copies chunks from conn until it fails. A zero-length read counts
// as a disconnect.
func readLoop(ctx context.Context, conn net.Conn, reads chan<- []byte, readErr chan<- error) {
	buf := make([]byte, readChunk)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case reads <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err == nil && n == 0 {
			err = io.EOF
		}
		if err != nil {
			readErr <- err
			return
		}
	}
}
