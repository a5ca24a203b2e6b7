package server

import (
	"github.com/gorilla/websocket"
	"github.com/toicours/fundme-go/pkg/rpc/response"
)

type (
	// subscriber is an event subscriber.
	subscriber struct {
		writer chan<- *websocket.PreparedMessage
		ws     *websocket.Conn

		// These work like slots as there is not a lot of them (it's
		// cheaper doing it this way rather than creating a map).
		feeds [maxFeeds]response.EventID
	}
)

const (
	// Maximum number of subscriptions per one client.
	maxFeeds = 4

	// This sets notification messages buffer depth. Contributions can come
	// in bursts while websocket writes block on the network, so some
	// slack between the two is needed.
	notificationBufSize = 1024
)
