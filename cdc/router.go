package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"
	"github.com/lavraseats/lavraseats/config"
	"github.com/lavraseats/lavraseats/events"
	"github.com/lavraseats/lavraseats/metrics"
)

// replicatedTables are the public tables the slot streams.
var replicatedTables = []string{events.TableRestaurants, events.TableReviews}

type WAL2JSONMessage struct {
	Change []WAL2JSONChange `json:"change"`
}

type WAL2JSONChange struct {
	Kind         string        `json:"kind"`
	Table        string        `json:"table"`
	ColumnNames  []string      `json:"columnnames,omitempty"`
	ColumnValues []interface{} `json:"columnvalues,omitempty"`
}

// column returns the value of name, if the change carries it.
func (c WAL2JSONChange) column(name string) (interface{}, bool) {
	for i, col := range c.ColumnNames {
		if col == name && i < len(c.ColumnValues) {
			return c.ColumnValues[i], true
		}
	}
	return nil, false
}

type Publisher interface {
	PublishChange(subject string, ev events.ChangeEvent) error
}

// Router decides which replicated rows are announced and on which subject.
type Router struct {
	publisher Publisher
	subjects  map[string]string
}

func NewRouter(publisher Publisher, cfg config.Nats) *Router {
	return &Router{
		publisher: publisher,
		subjects: map[string]string{
			events.TableRestaurants: cfg.RestaurantsSubject,
			events.TableReviews:     cfg.ReviewsSubject,
		},
	}
}

// addTablesArg is the wal2json "add-tables" plugin argument.
func addTablesArg() string {
	qualified := make([]string, len(replicatedTables))
	for i, t := range replicatedTables {
		qualified[i] = "public." + t
	}
	return fmt.Sprintf(`"add-tables" '%s'`, strings.Join(qualified, ","))
}

// HandleWAL decodes one wal2json payload and forwards its changes.
func (r *Router) HandleWAL(data []byte) (int, error) {
	var msg WAL2JSONMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return 0, fmt.Errorf("decode wal2json: %w", err)
	}
	return r.Forward(msg.Change), nil
}

// Forward publishes inserts and the updates that left the row without an
// embedding. Updates that carry an embedding are the embedder's own writes.
func (r *Router) Forward(changes []WAL2JSONChange) int {
	published := 0
	for _, change := range changes {
		subject, ev, ok := r.route(change)
		if !ok {
			metrics.CDCChanges.WithLabelValues(change.Table, "skipped").Inc()
			continue
		}

		if err := r.publisher.PublishChange(subject, ev); err != nil {
			slog.Error("publish change", "subject", subject, "id", ev.ID, "error", err)
			metrics.CDCChanges.WithLabelValues(change.Table, "failed").Inc()
			continue
		}
		metrics.CDCChanges.WithLabelValues(change.Table, "published").Inc()
		published++
	}

	return published
}

func (r *Router) route(change WAL2JSONChange) (string, events.ChangeEvent, bool) {
	subject, ok := r.subjects[change.Table]
	if !ok {
		return "", events.ChangeEvent{}, false
	}

	switch change.Kind {
	case events.KindInsert:
	case events.KindUpdate:
		if v, ok := change.column("embedding"); ok && v != nil {
			return "", events.ChangeEvent{}, false
		}
	default:
		return "", events.ChangeEvent{}, false
	}

	id := extractID(change)
	if id == 0 {
		return "", events.ChangeEvent{}, false
	}

	return subject, events.ChangeEvent{Table: change.Table, Kind: change.Kind, ID: id}, true
}

func extractID(change WAL2JSONChange) uint64 {
	v, _ := change.column("id")
	if id, ok := v.(float64); ok && id > 0 {
		return uint64(id)
	}
	return 0
}
