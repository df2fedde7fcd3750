package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"

	"lumixd/src/notify"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const writeTimeout = 10 * time.Second

// StreamOrdersHandler upgrades to a websocket and pushes every order
// status change as a JSON message. Delivery is at-least-once; clients
// de-duplicate by (order_id, new_status).
func StreamOrdersHandler(hub *notify.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.WithError(err).Error("Failed to upgrade status stream connection")
			return
		}
		defer conn.Close()

		sub := hub.Subscribe()
		defer hub.Unsubscribe(sub)

		// Drain reads so close frames are processed.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case change, ok := <-sub:
				if !ok {
					return
				}

				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(change); err != nil {
					logger.WithError(err).Debug("Status stream consumer gone")
					return
				}

			case <-r.Context().Done():
				return
			}
		}
	}
}
