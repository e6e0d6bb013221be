// Package storage keeps the relay journal: a SQLite record of relayed
// messages and connection lifecycle events.
package storage

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/matt0x6f/irc-relay/internal/events"
	"github.com/matt0x6f/irc-relay/internal/relay"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by writes after Close
var ErrClosed = errors.New("journal is closed")

// Journal buffers relay records and flushes them in batches
type Journal struct {
	db            *sqlx.DB
	log           zerolog.Logger
	writeBuffer   chan Relay
	flushInterval time.Duration
	flushMu       sync.Mutex
	stopCh        chan struct{}
	wg            sync.WaitGroup
	closed        bool
	closedMu      sync.RWMutex
}

const insertRelay = `INSERT OR IGNORE INTO relays
	(id, source_network, source_channel, destination_network, destination_channel, nick, kinds, content, response, timestamp)
	VALUES (:id, :source_network, :source_channel, :destination_network, :destination_channel, :nick, :kinds, :content, :response, :timestamp)`

const insertConnection = `INSERT INTO connections (network, server, event, detail, timestamp)
	VALUES (:network, :server, :event, :detail, :timestamp)`

// NewJournal opens (creating if needed) the database at dbPath
func NewJournal(dbPath string, bufferSize int, flushInterval time.Duration, log zerolog.Logger) (*Journal, error) {
	db, err := sqlx.Connect("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}

	j := &Journal{
		db:            db,
		log:           log,
		writeBuffer:   make(chan Relay, bufferSize),
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
	}

	j.wg.Add(1)
	go j.flushLoop()

	return j, nil
}

// Close flushes pending records and closes the database
func (j *Journal) Close() error {
	j.closedMu.Lock()
	if j.closed {
		j.closedMu.Unlock()
		return nil
	}
	j.closed = true
	j.closedMu.Unlock()

	close(j.stopCh)
	j.wg.Wait()

	if err := j.Flush(); err != nil {
		j.log.Warn().Err(err).Msg("Failed to flush journal on close")
	}
	return j.db.Close()
}

func (j *Journal) flushLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := j.Flush(); err != nil {
				j.log.Warn().Err(err).Msg("Failed to flush journal")
			}
		case <-j.stopCh:
			return
		}
	}
}

// Flush writes every buffered relay record
func (j *Journal) Flush() error {
	j.flushMu.Lock()
	defer j.flushMu.Unlock()

	var batch []Relay
drain:
	for {
		select {
		case r := <-j.writeBuffer:
			batch = append(batch, r)
		default:
			break drain
		}
	}
	if len(batch) == 0 {
		return nil
	}

	if _, err := j.db.NamedExec(insertRelay, batch); err != nil {
		return fmt.Errorf("failed to write %d relay records: %w", len(batch), err)
	}
	j.log.Trace().Int("count", len(batch)).Msg("Flushed relay records")
	return nil
}

// RecordRelay queues a relayed message. When the buffer is full it is
// flushed first; a record that still does not fit is logged and dropped.
func (j *Journal) RecordRelay(m relay.Message) {
	rec := relayRecord(m)

	j.closedMu.RLock()
	defer j.closedMu.RUnlock()
	if j.closed {
		return
	}

	select {
	case j.writeBuffer <- rec:
		return
	default:
	}

	if err := j.Flush(); err != nil {
		j.log.Warn().Err(err).Msg("Failed to flush journal")
	}
	select {
	case j.writeBuffer <- rec:
	default:
		j.log.Warn().Str("id", rec.ID).Msg("Journal buffer full, dropping relay record")
	}
}

func relayRecord(m relay.Message) Relay {
	rec := Relay{
		ID:            m.ID.String(),
		SourceNetwork: m.Network,
		SourceChannel: m.ChannelName(),
		Nick:          m.Nick,
		Content:       m.Content,
		Response:      m.Response,
		Timestamp:     m.Time.UTC(),
	}
	if m.Bind != nil {
		dst := m.Bind.Destination()
		rec.DestinationNetwork = dst.Network
		rec.DestinationChannel = dst.Channel
	}
	kinds := make([]string, len(m.Kinds))
	for i, k := range m.Kinds {
		kinds[i] = string(k)
	}
	rec.Kinds = strings.Join(kinds, ",")
	return rec
}

// RecordConnection writes a lifecycle event immediately
func (j *Journal) RecordConnection(c Connection) error {
	j.closedMu.RLock()
	defer j.closedMu.RUnlock()
	if j.closed {
		return ErrClosed
	}

	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	if _, err := j.db.NamedExec(insertConnection, c); err != nil {
		return fmt.Errorf("failed to write connection event: %w", err)
	}
	return nil
}

// OnEvent journals connection lifecycle events from the bus
func (j *Journal) OnEvent(e events.Event) {
	var name string
	switch e.Type {
	case events.EventConnect:
		name = ConnectionConnected
	case events.EventRegistered:
		name = ConnectionRegistered
	case events.EventDisconnect:
		name = ConnectionDisconnected
	case events.EventQuit:
		name = ConnectionQuit
	default:
		return
	}

	detail := e.Context
	if e.Err != nil {
		detail = e.Err.Error()
	}
	err := j.RecordConnection(Connection{
		Network:   e.Network,
		Server:    e.Server,
		Event:     name,
		Detail:    detail,
		Timestamp: e.Timestamp.UTC(),
	})
	if err != nil && !errors.Is(err, ErrClosed) {
		j.log.Warn().Err(err).Str("network", e.Network).Msg("Failed to journal connection event")
	}
}

// Relays returns the most recent relays out of network, oldest first
func (j *Journal) Relays(network string, limit int) ([]Relay, error) {
	var relays []Relay
	err := j.db.Select(&relays,
		`SELECT * FROM relays
		 WHERE source_network = ? COLLATE NOCASE
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`,
		network, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get relays: %w", err)
	}

	slices.Reverse(relays)
	return relays, nil
}

// Connections returns the most recent lifecycle events of network, oldest
// first
func (j *Journal) Connections(network string, limit int) ([]Connection, error) {
	var conns []Connection
	err := j.db.Select(&conns,
		`SELECT * FROM connections
		 WHERE network = ? COLLATE NOCASE
		 ORDER BY id DESC
		 LIMIT ?`,
		network, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get connections: %w", err)
	}

	slices.Reverse(conns)
	return conns, nil
}
