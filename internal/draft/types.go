package draft

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Type identifies the flow a draft belongs to
type Type string

// Supported draft types
const (
	TypeRegularOrder Type = "regular-order"
	TypeRelocation   Type = "relocation"
	TypeDisposal     Type = "disposal"
	TypeTransaction  Type = "transaction"
	TypeTicket       Type = "ticket"
)

// ErrUnknownType is returned when a draft type string is not recognised
var ErrUnknownType = errors.New("unknown draft type")

// Types lists every supported draft type
func Types() []Type {
	return []Type{TypeRegularOrder, TypeRelocation, TypeDisposal, TypeTransaction, TypeTicket}
}

// ParseType converts a string into a draft type
func ParseType(s string) (Type, error) {
	for _, t := range Types() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownType, "%q", s)
}

// RequiresEntity reports whether the flow is scoped to a customer or vendor
// in addition to the activity.
func (t Type) RequiresEntity() bool {
	switch t {
	case TypeRegularOrder, TypeRelocation, TypeTicket:
		return true
	default:
		return false
	}
}

// Context identifies the scope of an in-progress draft
type Context struct {
	Type       Type  `json:"drafttype"`
	ProgramID  int64 `json:"program_id"`
	ActivityID int64 `json:"activity_id"`
	EntityID   int64 `json:"entity_id,omitempty"`
}

// IsZero reports whether no context has been selected yet
func (c Context) IsZero() bool {
	return c.ActivityID == 0 && c.EntityID == 0
}

// SameScope compares the key fields of two contexts. Server objects can be
// refetched with new references but the same ids, so only ids are compared.
func (c Context) SameScope(other Context) bool {
	return c.Type == other.Type &&
		c.ProgramID == other.ProgramID &&
		c.ActivityID == other.ActivityID &&
		c.EntityID == other.EntityID
}

func (c Context) String() string {
	return fmt.Sprintf("%s/%d activity=%d entity=%d", c.Type, c.ProgramID, c.ActivityID, c.EntityID)
}

// Key addresses an item in the keyed record store
type Key string

// StockKey builds the key of a stock-addressed item
func StockKey(id int64) Key {
	return Key("stock:" + strconv.FormatInt(id, 10))
}

// MaterialKey builds the key of a material-addressed item
func MaterialKey(id int64) Key {
	return Key("material:" + strconv.FormatInt(id, 10))
}

// ParseKey validates a key received from outside the process
func ParseKey(s string) (Key, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || (kind != "stock" && kind != "material") {
		return "", errors.Errorf("invalid draft key %q", s)
	}
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return "", errors.Wrapf(err, "invalid draft key %q", s)
	}
	return Key(s), nil
}

// Batch identifies a specific lot of a batch-managed material
type Batch struct {
	Code         string     `json:"code" validate:"required"`
	ExpiredAt    *time.Time `json:"expired_at,omitempty"`
	ProducedAt   *time.Time `json:"produced_at,omitempty"`
	Manufacturer string     `json:"manufacturer,omitempty"`
}

// Item is one leaf unit of user input
type Item struct {
	Key              Key     `json:"key" validate:"required"`
	MaterialID       int64   `json:"material_id" validate:"required"`
	StockID          int64   `json:"stock_id,omitempty"`
	ParentMaterialID int64   `json:"parent_material_id,omitempty"`
	Quantity         float64 `json:"quantity" validate:"gte=0"`

	// Available is the quantity snapshot captured when the item was selected.
	Available float64 `json:"available" validate:"gte=0"`

	ReasonID        int64  `json:"reason_id,omitempty"`
	OtherReasonText string `json:"other_reason_text,omitempty"`
	Batch           *Batch `json:"batch,omitempty"`

	BatchManaged         bool `json:"batch_managed,omitempty"`
	TemperatureSensitive bool `json:"temperature_sensitive,omitempty"`

	Min         float64 `json:"min,omitempty"`
	Max         float64 `json:"max,omitempty"`
	Recommended float64 `json:"recommended,omitempty"`

	Payload Payload `json:"payload"`
}

// ReasonQuantity is one (reason, quantity) pair of a disposal allocation
type ReasonQuantity struct {
	ReasonID int64   `json:"reason_id"`
	Quantity float64 `json:"quantity" validate:"gte=0"`
}

// OrderExtra carries regular-order specific fields
type OrderExtra struct {
	RecommendedQty float64 `json:"recommended_qty"`
	StockOnHand    float64 `json:"stock_on_hand"`
}

// RelocationExtra carries relocation specific fields
type RelocationExtra struct {
	DestinationActivityID int64 `json:"destination_activity_id"`
}

// DisposalExtra splits a stock quantity across discard and received reasons
type DisposalExtra struct {
	Discard  []ReasonQuantity `json:"discard" validate:"dive"`
	Received []ReasonQuantity `json:"received" validate:"dive"`
}

// Total sums every allocated quantity on both sides. Zero entries count as
// not selected and contribute nothing.
func (d DisposalExtra) Total() float64 {
	var total float64
	for _, rq := range d.Discard {
		total += rq.Quantity
	}
	for _, rq := range d.Received {
		total += rq.Quantity
	}
	return total
}

// TransactionExtra carries stock transaction specific fields
type TransactionExtra struct {
	TransactionTypeID int64   `json:"transaction_type_id"`
	OpenVialQty       float64 `json:"open_vial_qty,omitempty"`
}

// TicketExtra carries ticket-material specific fields
type TicketExtra struct {
	ReceivedQty float64 `json:"received_qty"`
	Note        string  `json:"note,omitempty"`
}

// Payload is a tagged union of per-flow extras. At most one field is set and
// it must match the draft type.
type Payload struct {
	Order       *OrderExtra       `json:"order,omitempty"`
	Relocation  *RelocationExtra  `json:"relocation,omitempty"`
	Disposal    *DisposalExtra    `json:"disposal,omitempty"`
	Transaction *TransactionExtra `json:"transaction,omitempty"`
	Ticket      *TicketExtra      `json:"ticket,omitempty"`
}

// Kind returns the draft type whose extra is set, or "" when none or more
// than one is set.
func (p Payload) Kind() Type {
	var kind Type
	set := 0
	if p.Order != nil {
		kind, set = TypeRegularOrder, set+1
	}
	if p.Relocation != nil {
		kind, set = TypeRelocation, set+1
	}
	if p.Disposal != nil {
		kind, set = TypeDisposal, set+1
	}
	if p.Transaction != nil {
		kind, set = TypeTransaction, set+1
	}
	if p.Ticket != nil {
		kind, set = TypeTicket, set+1
	}
	if set != 1 {
		return ""
	}
	return kind
}

// IsEmpty reports whether no extra is set
func (p Payload) IsEmpty() bool {
	return p.Order == nil && p.Relocation == nil && p.Disposal == nil &&
		p.Transaction == nil && p.Ticket == nil
}
