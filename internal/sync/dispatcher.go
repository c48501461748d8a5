package sync

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"storebridge/internal/logger"
	"storebridge/internal/services/erp"
)

// Trigger codes sent by the ERP's webhook module.
const (
	TriggerProductCreate  = "PRODUCT_CREATE"
	TriggerProductModify  = "PRODUCT_MODIFY"
	TriggerProductDelete  = "PRODUCT_DELETE"
	TriggerCategoryCreate = "CATEGORY_CREATE"
	TriggerCategoryModify = "CATEGORY_MODIFY"
	TriggerCategoryDelete = "CATEGORY_DELETE"
	TriggerStockMovement  = "STOCK_MOVEMENT"
)

// Event is the inbound webhook payload: a trigger code plus the changed
// object. Only the object's id is trusted; entity state is always
// re-fetched from the ERP so replayed or reordered events converge.
type Event struct {
	TriggerCode string          `json:"triggercode"`
	Object      json.RawMessage `json:"object"`
}

type eventObject struct {
	ID erp.FlexString `json:"id"`
}

// Dispatcher maps trigger codes to the engine's single-entity
// reconciliation routines.
type Dispatcher struct {
	engine *Engine
	logger *logger.Logger
}

func NewDispatcher(engine *Engine, log *logger.Logger) *Dispatcher {
	return &Dispatcher{engine: engine, logger: log}
}

// Handle processes one event. Unknown trigger codes and events without
// a usable object id are logged no-ops; errors from the underlying
// reconciliation propagate for observability (the webhook was already
// acknowledged by the boundary).
func (d *Dispatcher) Handle(ctx context.Context, event Event) error {
	log := d.logger.WithField("trigger", event.TriggerCode)

	var obj eventObject
	if len(event.Object) > 0 {
		if err := json.Unmarshal(event.Object, &obj); err != nil {
			log.Warn("unparseable event object, skipping: %v", err)
			return nil
		}
	}

	externalID, err := strconv.ParseInt(strings.TrimSpace(obj.ID.String()), 10, 64)
	if err != nil || externalID <= 0 {
		log.Warn("event carries no usable object id, skipping")
		return nil
	}

	log = log.WithField("external_id", externalID)
	log.Info("dispatching webhook event")

	switch event.TriggerCode {
	case TriggerProductCreate, TriggerProductModify:
		return d.engine.SyncProductByID(ctx, externalID)
	case TriggerProductDelete:
		return d.engine.DeleteProduct(ctx, externalID)
	case TriggerCategoryCreate, TriggerCategoryModify:
		return d.engine.SyncCategory(ctx, externalID)
	case TriggerCategoryDelete:
		return d.engine.DeleteCategory(ctx, externalID)
	case TriggerStockMovement:
		return d.engine.SyncStockForProduct(ctx, externalID)
	default:
		log.Info("unrecognized trigger code, ignoring")
		return nil
	}
}
