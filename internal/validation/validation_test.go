package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/drafts/internal/draft"
)

const otherReason int64 = 99

func baseItem() draft.Item {
	return draft.Item{
		Key:        draft.StockKey(1),
		MaterialID: 10,
		StockID:    1,
		Quantity:   4,
		Available:  10,
	}
}

func disposalItem(discard, received []draft.ReasonQuantity) draft.Item {
	item := baseItem()
	item.Quantity = 0
	item.Payload.Disposal = &draft.DisposalExtra{Discard: discard, Received: received}
	return item
}

func TestValidItem(t *testing.T) {
	res := NewExecutor(otherReason).Validate(draft.TypeRegularOrder, baseItem())

	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestRequiredFields(t *testing.T) {
	item := baseItem()
	item.Key = ""
	item.MaterialID = 0
	item.Quantity = -1

	res := NewExecutor().Validate(draft.TypeRegularOrder, item)

	require.False(t, res.Valid)
	assert.Equal(t, "is required", res.Errors["key"])
	assert.Equal(t, "is required", res.Errors["material_id"])
	assert.Equal(t, "must be greater than or equal to 0", res.Errors["quantity"])
}

func TestQuantityAboveAvailable(t *testing.T) {
	item := baseItem()
	item.Quantity = 11

	res := NewExecutor().Validate(draft.TypeRegularOrder, item)

	require.False(t, res.Valid)
	assert.Equal(t, "exceeds available quantity 10", res.Errors["quantity"])
}

func TestBatchRequiredForBatchManagedMaterial(t *testing.T) {
	e := NewExecutor()
	item := baseItem()
	item.BatchManaged = true

	res := e.Validate(draft.TypeRegularOrder, item)
	require.False(t, res.Valid)
	assert.Contains(t, res.Errors, "batch")

	item.Batch = &draft.Batch{}
	res = e.Validate(draft.TypeRegularOrder, item)
	require.False(t, res.Valid)
	assert.Equal(t, "is required", res.Errors["batch.code"])

	item.Batch.Code = "LOT-7"
	assert.True(t, e.Validate(draft.TypeRegularOrder, item).Valid)
}

func TestOtherReasonNeedsText(t *testing.T) {
	e := NewExecutor(otherReason)
	item := baseItem()
	item.ReasonID = otherReason
	item.OtherReasonText = "  "

	res := e.Validate(draft.TypeRegularOrder, item)
	require.False(t, res.Valid)
	assert.Equal(t, "is required when the reason is other", res.Errors["other_reason_text"])

	item.OtherReasonText = "damaged in transit"
	assert.True(t, e.Validate(draft.TypeRegularOrder, item).Valid)
}

func TestPayloadMustMatchDraftType(t *testing.T) {
	e := NewExecutor()
	item := baseItem()
	item.Payload.Relocation = &draft.RelocationExtra{DestinationActivityID: 2}

	res := e.Validate(draft.TypeRegularOrder, item)
	require.False(t, res.Valid)
	assert.Contains(t, res.Errors["payload"], "relocation payload")

	item.Payload.Order = &draft.OrderExtra{}
	res = e.Validate(draft.TypeRegularOrder, item)
	require.False(t, res.Valid)
	assert.Equal(t, "must carry exactly one flow payload", res.Errors["payload"])

	assert.True(t, e.Validate(draft.TypeRelocation, baseItem()).Valid)
}

func TestDisposalAllocationBound(t *testing.T) {
	e := NewExecutor()

	over := disposalItem(
		[]draft.ReasonQuantity{{ReasonID: 1, Quantity: 5}, {ReasonID: 2, Quantity: 0}},
		[]draft.ReasonQuantity{{ReasonID: 3, Quantity: 7}},
	)
	res := e.Validate(draft.TypeDisposal, over)
	require.False(t, res.Valid)
	assert.Equal(t, "allocated quantity exceeds available quantity 10", res.Errors["payload.disposal"])

	exact := disposalItem(
		[]draft.ReasonQuantity{{ReasonID: 1, Quantity: 5}, {ReasonID: 2, Quantity: 0}},
		[]draft.ReasonQuantity{{ReasonID: 3, Quantity: 5}},
	)
	res = e.Validate(draft.TypeDisposal, exact)
	assert.True(t, res.Valid, "%v", res.Errors)
}

func TestDisposalRequiresPayloadAndReasons(t *testing.T) {
	e := NewExecutor()

	res := e.Validate(draft.TypeDisposal, baseItem())
	require.False(t, res.Valid)
	assert.Equal(t, "is required", res.Errors["payload.disposal"])

	item := disposalItem([]draft.ReasonQuantity{{Quantity: 2}}, nil)
	res = e.Validate(draft.TypeDisposal, item)
	require.False(t, res.Valid)
	assert.Contains(t, res.Errors, "payload.disposal.discard[0].reason_id")

	item = disposalItem(
		[]draft.ReasonQuantity{{ReasonID: 4}, {Quantity: 2}},
		[]draft.ReasonQuantity{{Quantity: 1}},
	)
	res = e.Validate(draft.TypeDisposal, item)
	require.False(t, res.Valid)
	assert.Contains(t, res.Errors, "payload.disposal.discard[1].reason_id")
	assert.Contains(t, res.Errors, "payload.disposal.received[0].reason_id")
	assert.NotContains(t, res.Errors, "payload.disposal.discard[0].reason_id")
}

func TestTicketRequiresReason(t *testing.T) {
	e := NewExecutor()
	item := baseItem()

	res := e.Validate(draft.TypeTicket, item)
	require.False(t, res.Valid)
	assert.Equal(t, "is required", res.Errors["reason_id"])

	item.ReasonID = 4
	assert.True(t, e.Validate(draft.TypeTicket, item).Valid)
}

func TestTemperatureSensitiveTransactionNeedsReason(t *testing.T) {
	e := NewExecutor()
	item := baseItem()
	item.TemperatureSensitive = true

	assert.False(t, e.Validate(draft.TypeTransaction, item).Valid)
	assert.True(t, e.Validate(draft.TypeRegularOrder, item).Valid)

	item.ReasonID = 2
	assert.True(t, e.Validate(draft.TypeTransaction, item).Valid)
}
