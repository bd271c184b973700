package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"gpsreader/internal/gps"
)

// UpdateSource is satisfied by *gps.Service.
type UpdateSource interface {
	Subscribe(buffer int) (int, <-chan gps.Update)
	Unsubscribe(id int)
}

const (
	streamWriteWait  = 5 * time.Second
	streamPingPeriod = 20 * time.Second
	streamPongWait   = 2 * streamPingPeriod
)

var upgrader = websocket.Upgrader{
	// The UI is served from the same device; any origin on the local
	// network may watch the stream.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamHandler pushes every parsed sentence to a websocket client.
// ?format=nmea sends the raw sentence text instead of JSON updates.
func StreamHandler(src UpdateSource, log logrus.FieldLogger) http.Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "web")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.EqualFold(r.URL.Query().Get("format"), "nmea")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Debug("websocket upgrade failed")
			return
		}
		defer conn.Close()

		id, updates := src.Subscribe(64)
		defer src.Unsubscribe(id)
		log.WithField("remote", r.RemoteAddr).Info("stream client connected")

		// Reads only serve to notice the client going away.
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(streamPongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(streamPingPeriod)
		defer ping.Stop()

		for {
			select {
			case <-done:
				log.WithField("remote", r.RemoteAddr).Info("stream client disconnected")
				return
			case <-ping.C:
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case u, ok := <-updates:
				if !ok {
					_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
					_ = conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "gps stopped"))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if raw {
					err = conn.WriteMessage(websocket.TextMessage, []byte(u.Sentence))
				} else {
					err = conn.WriteJSON(u)
				}
				if err != nil {
					log.WithError(err).Debug("stream write failed")
					return
				}
			}
		}
	})
}
