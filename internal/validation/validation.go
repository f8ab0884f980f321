// Package validation executes the draft item schema: struct tags plus the
// cross-field rules of each draft type.
package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"example.com/backstage/services/drafts/internal/draft"
)

// Custom tags reported by the struct-level rules
const (
	tagAvailable   = "lte_available"
	tagBatch       = "batch_required"
	tagOtherReason = "other_reason_required"
	tagAllocation  = "allocation_exceeds_available"
)

// Executor validates draft items. It is safe for concurrent use.
type Executor struct {
	validate     *validator.Validate
	otherReasons map[int64]struct{}
}

// NewExecutor creates an executor. otherReasonIDs lists the reason ids that
// denote "other" and therefore need a free-text explanation.
func NewExecutor(otherReasonIDs ...int64) *Executor {
	e := &Executor{
		validate:     validator.New(),
		otherReasons: make(map[int64]struct{}, len(otherReasonIDs)),
	}
	for _, id := range otherReasonIDs {
		e.otherReasons[id] = struct{}{}
	}

	e.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	e.validate.RegisterStructValidation(e.itemRules, draft.Item{})

	return e
}

// Validate runs the schema for an item of the given draft type
func (e *Executor) Validate(t draft.Type, item draft.Item) draft.Result {
	errs := make(map[string]string)

	if err := e.validate.Struct(item); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			errs["item"] = err.Error()
		}
		for _, fe := range verrs {
			errs[fieldPath(fe)] = message(fe)
		}
	}

	for field, msg := range typeRules(t, item) {
		if _, exists := errs[field]; !exists {
			errs[field] = msg
		}
	}

	if len(errs) == 0 {
		return draft.Result{Valid: true}
	}
	return draft.Result{Valid: false, Errors: errs}
}

// itemRules holds the cross-field rules shared by every draft type
func (e *Executor) itemRules(sl validator.StructLevel) {
	item := sl.Current().Interface().(draft.Item)

	// Stale read: the quantity must fit the snapshot taken at selection.
	if item.Quantity > item.Available {
		sl.ReportError(item.Quantity, "quantity", "Quantity", tagAvailable, formatQty(item.Available))
	}

	if item.BatchManaged && item.Batch == nil {
		sl.ReportError(item.Batch, "batch", "Batch", tagBatch, "")
	}

	if _, other := e.otherReasons[item.ReasonID]; other && strings.TrimSpace(item.OtherReasonText) == "" {
		sl.ReportError(item.OtherReasonText, "other_reason_text", "OtherReasonText", tagOtherReason, "")
	}

	if d := item.Payload.Disposal; d != nil && d.Total() > item.Available {
		sl.ReportError(d, "disposal", "Disposal", tagAllocation, formatQty(item.Available))
	}
}

// reasonRules requires a reason on every row that selects a quantity. Keys
// carry the row's position on its own side.
func reasonRules(errs map[string]string, side string, rows []draft.ReasonQuantity) {
	for i, rq := range rows {
		if rq.Quantity > 0 && rq.ReasonID == 0 {
			errs[fmt.Sprintf("payload.disposal.%s[%d].reason_id", side, i)] = "is required for a selected quantity"
		}
	}
}

// typeRules holds the rules that depend on the draft type
func typeRules(t draft.Type, item draft.Item) map[string]string {
	errs := make(map[string]string)

	kind := item.Payload.Kind()
	switch {
	case !item.Payload.IsEmpty() && kind == "":
		errs["payload"] = "must carry exactly one flow payload"
	case kind != "" && kind != t:
		errs["payload"] = fmt.Sprintf("%s payload is not allowed in a %s draft", kind, t)
	}

	switch t {
	case draft.TypeDisposal:
		if item.Payload.Disposal == nil {
			errs["payload.disposal"] = "is required"
			break
		}
		reasonRules(errs, "discard", item.Payload.Disposal.Discard)
		reasonRules(errs, "received", item.Payload.Disposal.Received)
	case draft.TypeTicket:
		if item.ReasonID == 0 {
			errs["reason_id"] = "is required"
		}
	case draft.TypeTransaction, draft.TypeRelocation:
		if item.TemperatureSensitive && item.Quantity > 0 && item.ReasonID == 0 {
			errs["reason_id"] = "is required for temperature-sensitive material"
		}
	}

	return errs
}

// fieldPath strips the root struct name from the namespace
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		ns = rest
	}
	if fe.Tag() == tagAllocation {
		return "payload.disposal"
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case tagAvailable:
		return "exceeds available quantity " + fe.Param()
	case tagBatch:
		return "is required for batch-managed material"
	case tagOtherReason:
		return "is required when the reason is other"
	case tagAllocation:
		return "allocated quantity exceeds available quantity " + fe.Param()
	default:
		return fmt.Sprintf("failed on %s", fe.Tag())
	}
}

func formatQty(v float64) string {
	return fmt.Sprintf("%g", v)
}
