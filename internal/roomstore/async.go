package roomstore

import (
	"context"
	"log"
	"time"
)

// AsyncWriter decouples the room actor's fan-out path from persistence
// latency: writes are queued on a bounded channel and applied by a
// single background goroutine draining that channel, the same pattern
// the room actor itself uses for its own run loop, rather than
// spawning a goroutine per write. When the queue is full the oldest
// pending write is dropped so a slow or down database never backs up
// the room actor.
type AsyncWriter struct {
	store  *Store
	logger *log.Logger
	jobs   chan chatWriteJob
	done   chan struct{}
}

type chatWriteJob struct {
	roomId string
	msg    ChatMessage
}

func NewAsyncWriter(store *Store, logger *log.Logger, queueSize int) *AsyncWriter {
	w := &AsyncWriter{
		store:  store,
		logger: logger,
		jobs:   make(chan chatWriteJob, queueSize),
		done:   make(chan struct{}),
	}

	go w.run()

	return w
}

func (w *AsyncWriter) run() {
	defer close(w.done)

	for job := range w.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := w.store.AppendChat(ctx, job.roomId, job.msg); err != nil {
			w.logger.Printf("roomstore: async write for room %s failed: %v", job.roomId, err)
		}
		cancel()
	}
}

// Enqueue never blocks: if the queue is full it drops the oldest
// pending job to make room for this one.
func (w *AsyncWriter) Enqueue(roomId string, msg ChatMessage) {
	job := chatWriteJob{roomId: roomId, msg: msg}

	select {
	case w.jobs <- job:
		return
	default:
	}

	select {
	case dropped := <-w.jobs:
		w.logger.Printf("roomstore: async write queue full, dropping oldest pending write for room %s", dropped.roomId)
	default:
	}

	select {
	case w.jobs <- job:
	default:
	}
}

// Stop closes the queue and waits for the drain goroutine to finish
// flushing in-flight jobs.
func (w *AsyncWriter) Stop() {
	close(w.jobs)
	<-w.done
}
