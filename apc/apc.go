// Package apc implements the asynchronous procedure call layer: a fixed
// pool of cooperative workers that run AsyncProcedure functions off the
// main thread and ferry typed Message replies back through bounded,
// non-blocking mailboxes.
package apc

import (
	"context"
	"errors"
	"math/rand/v2"

	"github.com/gogpu/maptile/internal/logging"
	"github.com/gogpu/maptile/internal/worker"
	"github.com/gogpu/maptile/source"
)

// mailboxCapacity is the per-worker reply mailbox size, so the aggregate
// transport holds 64 x worker count messages; sized per worker here since
// each worker owns its own channel.
const mailboxCapacity = 64

// Context is passed to every AsyncProcedure invocation. It exposes the
// one-way channel back to the main thread and the source client used to
// fetch tile bytes.
type Context struct {
	reply  chan<- Message
	client *source.Client
}

// Send delivers a Message to the main thread's mailbox for this
// procedure's worker. It never blocks: if the mailbox is saturated it
// returns ErrSend. The caller has already recorded whatever state it
// could (e.g. prior layer messages).
func (c *Context) Send(m Message) error {
	select {
	case c.reply <- m:
		return nil
	default:
		return ErrSend
	}
}

// SourceClient returns the ambient HTTP tile-fetch client.
func (c *Context) SourceClient() *source.Client { return c.client }

// KernelEnvironment is the ambient, cheaply-cloned environment handed to
// every procedure invocation. It carries only the on-disk cache directory;
// the HTTP client is not part of it and reaches procedures through
// Context.SourceClient. It carries no synchronization state of its own.
type KernelEnvironment struct {
	CacheDir string
}

// Clone returns a copy suitable for handing to a new invocation. The zero
// value already clones by Go's ordinary value-copy semantics; Clone exists
// to name the operation calls out explicitly.
func (e KernelEnvironment) Clone() KernelEnvironment { return e }

// AsyncProcedure is a unit of work dispatched to a worker: a pure function
// from an Input value to a result, communicating progress back to the
// main thread exclusively through Context.Send.
type AsyncProcedure[I any] func(ctx context.Context, input I, pctx *Context, env KernelEnvironment) error

// APC dispatches AsyncProcedure calls onto a worker.Pool and buffers their
// Message replies until the main thread drains them with Receive.
type APC struct {
	pool      *worker.Pool
	mailboxes []chan Message
	client    *source.Client
	env       KernelEnvironment

	pending []Message
}

// New creates an APC with the given number of workers (0 uses GOMAXPROCS)
// backed by client for tile fetches and env as the ambient environment
// cloned into every procedure call.
func New(workers int, client *source.Client, env KernelEnvironment) *APC {
	pool := worker.New(workers, 0)
	mailboxes := make([]chan Message, pool.Workers())
	for i := range mailboxes {
		mailboxes[i] = make(chan Message, mailboxCapacity)
	}
	return &APC{pool: pool, mailboxes: mailboxes, client: client, env: env}
}

// Workers returns the number of workers backing this APC.
func (a *APC) Workers() int { return len(a.mailboxes) }

// Close stops the worker pool.
func (a *APC) Close() { a.pool.Close() }

// Call dispatches proc(input) onto a worker chosen uniformly at random
// (or the sole worker), returning CallError with Schedule set if that
// worker's mailbox is saturated — the caller may retry on the next frame.
// Call is a package-level generic function rather than a method because
// Go methods cannot carry their own type parameters.
func Call[I any](a *APC, input I, proc AsyncProcedure[I]) error {
	idx := 0
	if n := len(a.mailboxes); n > 1 {
		idx = rand.IntN(n)
	}
	reply := a.mailboxes[idx]
	client := a.client
	env := a.env.Clone()

	job := func() {
		pctx := &Context{reply: reply, client: client}
		if err := proc(context.Background(), input, pctx, env); err != nil {
			logging.Logger().Warn("apc: procedure failed", "error", err)
		}
	}

	if err := a.pool.Dispatch(idx, job); err != nil {
		if errors.Is(err, worker.ErrQueueFull) {
			return scheduleError(err)
		}
		return err
	}
	return nil
}

// Receive drains every worker mailbox into an internal pending buffer,
// then extracts and returns (in arrival order, per-worker-FIFO with
// cross-worker interleaving left unspecified) every buffered message
// matching predicate. Messages that do not match remain pending for a
// future Receive call with a different predicate, so two systems draining
// disjoint message kinds from the same frame's replies never lose
// messages to each other.
func (a *APC) Receive(predicate func(Message) bool) []Message {
	for _, mailbox := range a.mailboxes {
	drain:
		for {
			select {
			case m := <-mailbox:
				a.pending = append(a.pending, m)
			default:
				break drain
			}
		}
	}

	var matched []Message
	kept := a.pending[:0]
	for _, m := range a.pending {
		if predicate(m) {
			matched = append(matched, m)
		} else {
			kept = append(kept, m)
		}
	}
	a.pending = kept
	return matched
}
