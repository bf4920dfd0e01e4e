package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// sendBufferSize absorbs check-in bursts (a whole class scanning at once)
	// before a slow observer starts missing events.
	sendBufferSize = 64

	writeTimeout = 5 * time.Second
)

// subscriber wraps one observer connection. All writes go through a single
// writer goroutine; gorilla connections do not allow concurrent writers.
type subscriber struct {
	id   uuid.UUID
	conn *websocket.Conn

	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscriber(conn *websocket.Conn) *subscriber {
	return &subscriber{
		id:     uuid.New(),
		conn:   conn,
		sendCh: make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// send queues a payload without ever blocking the publisher. A full buffer or
// a closed subscriber drops the payload.
func (sub *subscriber) send(payload []byte) {
	select {
	case <-sub.done:
	case sub.sendCh <- payload:
	default:
	}
}

func (sub *subscriber) writeLoop() {
	for {
		select {
		case payload := <-sub.sendCh:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				sub.close()
				return
			}
		case <-sub.done:
			return
		}
	}
}

func (sub *subscriber) close() {
	sub.closeOnce.Do(func() {
		close(sub.done)
		_ = sub.conn.Close()
	})
}
