package http

import (
	"net/http"
	"time"

	"fils-quiz-bot/internal/domain"
	"go.uber.org/zap"
)

const feedWriteTimeout = 10 * time.Second

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// serveLeadFeed upgrades to a websocket that first replays recent leads, then pushes each new one.
// The connection is read only to notice the client going away.
func (d *Dashboard) serveLeadFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	// the server's read/write timeouts would otherwise cut the feed
	_ = conn.SetReadDeadline(time.Time{})

	leads, cancel := d.leads.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	feedDone := make(chan struct{})

	// single writer: gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				d.logger.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	recent := d.leads.Recent()
	if recent == nil {
		recent = []domain.Lead{}
	}
	send <- outboundMessage[any]{Type: "recent", Payload: recent}

	go func() {
		defer close(feedDone)
		for {
			select {
			case lead, ok := <-leads:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "lead", Payload: lead}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(closeSignals)
	<-feedDone
	close(send)
	<-writerDone
}
