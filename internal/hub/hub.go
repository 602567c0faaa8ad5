package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"thoughtswap/internal/dispatch"
	"thoughtswap/internal/websocket"
	"thoughtswap/pkg/types"
)

// limiterSweepInterval is how often the run loop drops stale rate limiter
// windows.
const limiterSweepInterval = 5 * time.Minute

// Hub serializes all room-mutating work onto one goroutine. Every command
// executes to completion before the next is processed, which is the
// correctness argument for the collector's upsert semantics and the state
// machine's transition guards: a swap can never race a submit for the same
// room. Connection read pumps only enqueue here.
type Hub struct {
	commandChannel    chan *CommandContext       // buffered for classroom submission bursts
	disconnectChannel chan *websocket.Connection // connection teardown events
	shutdownChannel   chan struct{}

	dispatcher *dispatch.Dispatcher

	running bool
	mu      sync.RWMutex
}

// CommandContext pairs an inbound command with its issuing connection.
type CommandContext struct {
	Conn     *websocket.Connection
	Command  *types.Command
	Received time.Time
}

// NewHub creates a hub driving the given dispatcher.
func NewHub(dispatcher *dispatch.Dispatcher) *Hub {
	return &Hub{
		commandChannel:    make(chan *CommandContext, 1000),
		disconnectChannel: make(chan *websocket.Connection, 100),
		shutdownChannel:   make(chan struct{}),
		dispatcher:        dispatcher,
	}
}

// Start begins hub processing. A stopped hub can be started again.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	// A fresh channel per run: the previous Stop closed the old one, and a
	// closed channel would end the new loop immediately.
	h.shutdownChannel = make(chan struct{})
	shutdown := h.shutdownChannel
	h.mu.Unlock()

	log.Println("Starting command hub...")

	go h.run(ctx, shutdown)

	return nil
}

// Stop gracefully shuts down the hub.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	log.Println("Stopping command hub...")
	close(h.shutdownChannel)

	return nil
}

// SubmitCommand queues a command for serialized processing. Non-blocking:
// a full channel is reported to the caller instead of stalling a read pump.
func (h *Hub) SubmitCommand(conn *websocket.Connection, cmd *types.Command) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	commandCtx := &CommandContext{
		Conn:     conn,
		Command:  cmd,
		Received: time.Now(),
	}

	select {
	case h.commandChannel <- commandCtx:
		return nil
	default:
		return ErrCommandChannelFull
	}
}

// Disconnect queues a connection teardown so leave processing is serialized
// with commands for the same room.
func (h *Hub) Disconnect(conn *websocket.Connection) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	select {
	case h.disconnectChannel <- conn:
		return nil
	default:
		return ErrDisconnectChannelFull
	}
}

// run is the single processing loop.
func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}) {
	defer log.Println("Hub processing stopped")

	sweep := time.NewTicker(limiterSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case commandCtx := <-h.commandChannel:
			h.dispatcher.HandleCommand(ctx, commandCtx.Conn, commandCtx.Command)

		case conn := <-h.disconnectChannel:
			h.dispatcher.HandleDisconnect(conn)

		case <-sweep.C:
			h.dispatcher.Cleanup()

		case <-shutdown:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			return
		}
	}
}
