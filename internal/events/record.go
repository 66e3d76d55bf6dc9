package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/efreitasn/tokenexchange/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Record is the wire form of an event. Amounts are decimal strings of the
// smallest unit and addresses are hex. Fields a kind does not carry are
// omitted.
type Record struct {
	Seq       uint64 `json:"seq"`
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Symbol    string `json:"symbol,omitempty"`
	Handle    string `json:"handle,omitempty"`
	Key       uint64 `json:"key,omitempty"`
	Price     string `json:"price,omitempty"`
	Volume    string `json:"volume,omitempty"`
	Placed    string `json:"placed_volume,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Trader    string `json:"trader,omitempty"`
}

// NewRecord converts e into its wire form.
func NewRecord(e domain.Event) Record {
	r := Record{
		Seq:       e.Seq,
		Event:     string(e.Kind),
		Timestamp: e.Time.UTC().Format(time.RFC3339Nano),
		Symbol:    e.Symbol,
		Key:       e.Key,
		Price:     decimalOrEmpty(&e.Price),
		Volume:    decimalOrEmpty(&e.Volume),
		Placed:    decimalOrEmpty(&e.Placed),
		Amount:    decimalOrEmpty(&e.Amount),
	}
	if e.Handle != (common.Address{}) {
		r.Handle = e.Handle.Hex()
	}
	if e.Trader != (common.Address{}) {
		r.Trader = e.Trader.Hex()
	}
	return r
}

// ToEvent parses r back into an event.
func (r Record) ToEvent() (domain.Event, error) {
	kind := domain.EventKind(r.Event)
	if !domain.ValidEventKind(kind) {
		return domain.Event{}, fmt.Errorf("unknown event kind %q", r.Event)
	}
	ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return domain.Event{}, fmt.Errorf("parse timestamp: %w", err)
	}
	e := domain.Event{
		Seq:    r.Seq,
		Kind:   kind,
		Time:   ts,
		Symbol: r.Symbol,
		Key:    r.Key,
	}
	if r.Handle != "" {
		if !common.IsHexAddress(r.Handle) {
			return domain.Event{}, fmt.Errorf("invalid handle %q", r.Handle)
		}
		e.Handle = common.HexToAddress(r.Handle)
	}
	if r.Trader != "" {
		if !common.IsHexAddress(r.Trader) {
			return domain.Event{}, fmt.Errorf("invalid trader %q", r.Trader)
		}
		e.Trader = common.HexToAddress(r.Trader)
	}
	for _, f := range []struct {
		name string
		src  string
		dst  *uint256.Int
	}{
		{"price", r.Price, &e.Price},
		{"volume", r.Volume, &e.Volume},
		{"placed_volume", r.Placed, &e.Placed},
		{"amount", r.Amount, &e.Amount},
	} {
		if f.src == "" {
			continue
		}
		v, err := uint256.FromDecimal(f.src)
		if err != nil {
			return domain.Event{}, fmt.Errorf("parse %s: %w", f.name, err)
		}
		*f.dst = *v
	}
	return e, nil
}

// Marshal encodes e as a JSON record.
func Marshal(e domain.Event) ([]byte, error) {
	return json.Marshal(NewRecord(e))
}

// Unmarshal decodes a JSON record produced by Marshal.
func Unmarshal(data []byte) (domain.Event, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.Event{}, err
	}
	return r.ToEvent()
}

func decimalOrEmpty(x *uint256.Int) string {
	if x.IsZero() {
		return ""
	}
	return x.Dec()
}
