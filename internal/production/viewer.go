package production

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// LiveViewer streams freeze-boundary snapshots to connected websocket
// clients. It is an output-only surface: viewers receive JSON snapshot
// batches and never feed anything back into the simulation. Slow or dead
// clients are dropped rather than allowed to stall a broadcast.
type LiveViewer struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewLiveViewer creates a viewer with no connected clients.
func NewLiveViewer() *LiveViewer {
	return &LiveViewer{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request to a websocket and registers the client
// for snapshot broadcasts.
func (v *LiveViewer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := v.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("LOG: viewer upgrade failed: %v", err)
		return
	}
	v.mu.Lock()
	v.clients[conn] = struct{}{}
	v.mu.Unlock()

	// Drain (and discard) client frames so pings and closes are processed;
	// unregister on the first read error.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				v.drop(conn)
				return
			}
		}
	}()
}

// Broadcast sends the snapshot batch to every connected client as one JSON
// message, dropping clients whose writes fail.
func (v *LiveViewer) Broadcast(snapshots []Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for conn := range v.clients {
		if err := conn.WriteJSON(snapshots); err != nil {
			conn.Close()
			delete(v.clients, conn)
		}
	}
}

// ClientCount reports the number of currently connected viewers.
func (v *LiveViewer) ClientCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.clients)
}

// Close disconnects every client.
func (v *LiveViewer) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for conn := range v.clients {
		conn.Close()
		delete(v.clients, conn)
	}
}

func (v *LiveViewer) drop(conn *websocket.Conn) {
	v.mu.Lock()
	defer v.mu.Unlock()
	conn.Close()
	delete(v.clients, conn)
}
