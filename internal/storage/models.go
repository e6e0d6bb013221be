package storage

import (
	"time"
)

// Relay is one message delivered along a bind
type Relay struct {
	ID                 string    `db:"id" json:"id"`
	SourceNetwork      string    `db:"source_network" json:"source_network"`
	SourceChannel      string    `db:"source_channel" json:"source_channel"`
	DestinationNetwork string    `db:"destination_network" json:"destination_network"`
	DestinationChannel string    `db:"destination_channel" json:"destination_channel"`
	Nick               string    `db:"nick" json:"nick"`
	Kinds              string    `db:"kinds" json:"kinds"` // comma separated
	Content            string    `db:"content" json:"content"`
	Response           string    `db:"response" json:"response"` // line as sent
	Timestamp          time.Time `db:"timestamp" json:"timestamp"`
}

// Connection event names
const (
	ConnectionConnected    = "connect"
	ConnectionRegistered   = "registered"
	ConnectionDisconnected = "disconnect"
	ConnectionQuit         = "quit"
)

// Connection is one lifecycle transition of a network connection
type Connection struct {
	ID        int64     `db:"id" json:"id"`
	Network   string    `db:"network" json:"network"`
	Server    string    `db:"server" json:"server"`
	Event     string    `db:"event" json:"event"`
	Detail    string    `db:"detail" json:"detail"` // error or quit reason
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}
