package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/buntdb"

	"github.com/pathlake/slideagent/cmn"
)

const outboxPrefix = "outbox:"

// OutboxStore is the append-only record of domain events destined for
// external consumers (spec.md §3, §4.9 step 5) — separate from the
// in-process event bus (C10), which is ephemeral.
type OutboxStore struct {
	db *DB
}

func NewOutboxStore(db *DB) *OutboxStore { return &OutboxStore{db: db} }

func outboxKey(id string) string { return outboxPrefix + id }

func (o *OutboxStore) Append(entityType, entityID, operation string, payload map[string]interface{}) (*cmn.OutboxEvent, error) {
	ev := cmn.OutboxEvent{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  operation,
		Payload:    payload,
		CreatedAt:  time.Now(),
	}
	buf, err := json.Marshal(&ev)
	if err != nil {
		return nil, cmn.NewError("store.outbox.append", cmn.KindIO, "marshal", err)
	}
	err = o.db.bunt.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(outboxKey(ev.ID), string(buf), nil)
		return err
	})
	if err != nil {
		return nil, cmn.NewError("store.outbox.append", cmn.KindIO, "buntdb set", err)
	}
	return &ev, nil
}

func (o *OutboxStore) Unsynced() ([]*cmn.OutboxEvent, error) {
	var out []*cmn.OutboxEvent
	err := o.db.bunt.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, value string) bool {
			if len(key) < len(outboxPrefix) || key[:len(outboxPrefix)] != outboxPrefix {
				return true
			}
			var ev cmn.OutboxEvent
			if json.Unmarshal([]byte(value), &ev) == nil && ev.SyncedAt == nil {
				out = append(out, &ev)
			}
			return true
		})
	})
	if err != nil {
		return nil, cmn.NewError("store.outbox.unsynced", cmn.KindIO, "buntdb scan", err)
	}
	return out, nil
}

func (o *OutboxStore) MarkSynced(id string) error {
	now := time.Now()
	err := o.db.bunt.Update(func(tx *buntdb.Tx) error {
		val, err := tx.Get(outboxKey(id))
		if err != nil {
			return err
		}
		var ev cmn.OutboxEvent
		if err := json.Unmarshal([]byte(val), &ev); err != nil {
			return err
		}
		ev.SyncedAt = &now
		buf, err := json.Marshal(&ev)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(outboxKey(id), string(buf), nil)
		return err
	})
	if err != nil {
		return cmn.NewError("store.outbox.markSynced", cmn.KindIO, "buntdb update", err)
	}
	return nil
}
