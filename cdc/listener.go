package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/lavraseats/lavraseats/config"
	"github.com/lib/pq"
)

const (
	outputPlugin   = "wal2json"
	standbyTimeout = 10 * time.Second
)

// Listener streams wal2json changes from a logical replication slot into a
// Router. Progress is confirmed to the server with standby status updates,
// so a restart resumes from the last confirmed position.
type Listener struct {
	postgres    config.Postgres
	replication config.Replication
	router      *Router

	conn     *pgx.Conn
	replConn *pgconn.PgConn
	position pglogrepl.LSN
}

func NewListener(cfg *config.Config, router *Router) *Listener {
	return &Listener{
		postgres:    cfg.Postgres,
		replication: cfg.Replication,
		router:      router,
	}
}

func (l *Listener) Run(ctx context.Context) error {
	start, err := l.prepare(ctx)
	if err != nil {
		return err
	}

	err = pglogrepl.StartReplication(ctx, l.replConn, l.replication.Slot, start,
		pglogrepl.StartReplicationOptions{
			PluginArgs: []string{
				`"pretty-print" 'false'`,
				`"include-xids" 'false'`,
				`"include-timestamp" 'false'`,
				`"include-lsn" 'false'`,
				addTablesArg(),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("start replication: %w", err)
	}

	slog.Info("replication started", "slot", l.replication.Slot, "lsn", start, "tables", replicatedTables)

	l.position = start
	return l.stream(ctx)
}

// prepare opens both connections, makes sure the publication and slot exist
// and returns the position to stream from.
func (l *Listener) prepare(ctx context.Context) (pglogrepl.LSN, error) {
	var err error
	if l.conn, err = pgx.Connect(ctx, l.postgres.ConnStr()); err != nil {
		return 0, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := l.ensurePublication(ctx); err != nil {
		return 0, err
	}

	confirmed, exists, err := l.slotPosition(ctx)
	if err != nil {
		return 0, fmt.Errorf("inspect replication slot: %w", err)
	}

	if l.replConn, err = pgconn.Connect(ctx, l.postgres.ReplicationConnStr()); err != nil {
		return 0, fmt.Errorf("connect for replication: %w", err)
	}

	if !exists {
		slot, err := pglogrepl.CreateReplicationSlot(ctx, l.replConn, l.replication.Slot, outputPlugin,
			pglogrepl.CreateReplicationSlotOptions{})
		if err != nil {
			return 0, fmt.Errorf("create replication slot: %w", err)
		}
		slog.Info("created replication slot", "slot", l.replication.Slot)
		return pglogrepl.ParseLSN(slot.ConsistentPoint)
	}
	if confirmed != 0 {
		return confirmed, nil
	}

	sys, err := pglogrepl.IdentifySystem(ctx, l.replConn)
	if err != nil {
		return 0, fmt.Errorf("identify system: %w", err)
	}
	return sys.XLogPos, nil
}

func (l *Listener) stream(ctx context.Context) error {
	deadline := time.Now().Add(standbyTimeout)

	for {
		if !time.Now().Before(deadline) {
			if err := l.confirm(ctx); err != nil {
				return err
			}
			deadline = time.Now().Add(standbyTimeout)
		}

		receiveCtx, cancel := context.WithDeadline(ctx, deadline)
		raw, err := l.replConn.ReceiveMessage(receiveCtx)
		cancel()
		if err != nil {
			if pgconn.Timeout(err) {
				continue
			}
			return fmt.Errorf("receive message: %w", err)
		}

		replyNow, err := l.handle(raw)
		if err != nil {
			return err
		}
		if replyNow {
			deadline = time.Time{}
		}
	}
}

// handle processes one backend message and reports whether the server asked
// for an immediate status reply.
func (l *Listener) handle(raw pgproto3.BackendMessage) (bool, error) {
	switch msg := raw.(type) {
	case *pgproto3.ErrorResponse:
		return false, fmt.Errorf("replication error: %s", msg.Message)
	case *pgproto3.CopyData:
		return l.handleCopyData(msg.Data)
	default:
		return false, nil
	}
}

func (l *Listener) handleCopyData(data []byte) (bool, error) {
	if len(data) == 0 {
		return false, nil
	}

	switch data[0] {
	case pglogrepl.PrimaryKeepaliveMessageByteID:
		keepalive, err := pglogrepl.ParsePrimaryKeepaliveMessage(data[1:])
		if err != nil {
			return false, fmt.Errorf("parse keepalive: %w", err)
		}
		l.advance(keepalive.ServerWALEnd)
		return keepalive.ReplyRequested, nil

	case pglogrepl.XLogDataByteID:
		xld, err := pglogrepl.ParseXLogData(data[1:])
		if err != nil {
			return false, fmt.Errorf("parse xlog data: %w", err)
		}
		if len(xld.WALData) > 0 {
			if _, err := l.router.HandleWAL(xld.WALData); err != nil {
				slog.Error("skipping undecodable wal payload", "lsn", xld.WALStart, "error", err)
			}
		}
		l.advance(xld.WALStart)
	}

	return false, nil
}

func (l *Listener) advance(lsn pglogrepl.LSN) {
	if lsn > l.position {
		l.position = lsn
	}
}

func (l *Listener) confirm(ctx context.Context) error {
	err := pglogrepl.SendStandbyStatusUpdate(ctx, l.replConn, pglogrepl.StandbyStatusUpdate{
		WALWritePosition: l.position,
	})
	if err != nil {
		return fmt.Errorf("send standby status: %w", err)
	}
	return nil
}

func (l *Listener) Close(ctx context.Context) {
	if l.conn != nil {
		_ = l.conn.Close(ctx)
	}
	if l.replConn != nil {
		_ = l.replConn.Close(ctx)
	}
}

func (l *Listener) ensurePublication(ctx context.Context) error {
	var exists bool
	err := l.conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_publication WHERE pubname = $1)",
		l.replication.Name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check publication: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := l.conn.Exec(ctx, publicationSQL(l.replication.Name)); err != nil {
		return fmt.Errorf("create publication: %w", err)
	}
	slog.Info("created publication", "name", l.replication.Name)

	return nil
}

func publicationSQL(name string) string {
	tables := make([]string, len(replicatedTables))
	for i, t := range replicatedTables {
		tables[i] = pq.QuoteIdentifier(t)
	}
	return fmt.Sprintf("CREATE PUBLICATION %s FOR TABLE %s", pq.QuoteIdentifier(name), strings.Join(tables, ", "))
}

// slotPosition reports whether the slot exists and its confirmed flush
// position, which is zero when nothing was confirmed yet.
func (l *Listener) slotPosition(ctx context.Context) (pglogrepl.LSN, bool, error) {
	var confirmed *string
	err := l.conn.QueryRow(ctx,
		"SELECT confirmed_flush_lsn::text FROM pg_replication_slots WHERE slot_name = $1",
		l.replication.Slot).Scan(&confirmed)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if confirmed == nil {
		return 0, true, nil
	}

	lsn, err := pglogrepl.ParseLSN(*confirmed)
	if err != nil {
		return 0, true, err
	}
	return lsn, true, nil
}
