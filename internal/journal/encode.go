package journal

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"

	"burnvault/internal/vault"
)

// encodeEvent produces the canonical bytes an entry hash covers. Keys are
// written in a fixed order and optional fields appear only when set, so a
// given event always encodes to the same payload.
func encodeEvent(ev vault.Event) ([]byte, error) {
	mapLen := 5
	if ev.Amount != "" {
		mapLen++
	}
	if ev.From != nil {
		mapLen++
	}
	if ev.To != nil {
		mapLen++
	}
	if ev.Outcome != "" {
		mapLen++
	}
	if ev.Spend != "" {
		mapLen++
	}
	if ev.Reward != "" {
		mapLen++
	}
	if ev.Burned != "" {
		mapLen++
	}
	if ev.LastPurchaseTick != 0 {
		mapLen++
	}
	if ev.Backdated {
		mapLen++
	}
	if ev.MultiplierBps != 0 {
		mapLen++
	}
	if ev.Authority != nil {
		mapLen++
	}
	if ev.Address != nil {
		mapLen++
	}
	if ev.Enabled {
		mapLen++
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeMapLen(mapLen); err != nil {
		return nil, err
	}
	if err := putString(enc, "type", string(ev.Type)); err != nil {
		return nil, err
	}
	if err := putString(enc, "call_id", ev.CallID); err != nil {
		return nil, err
	}
	if err := putString(enc, "caller", ev.Caller.Hex()); err != nil {
		return nil, err
	}
	if err := putUint(enc, "tick", uint64(ev.Tick)); err != nil {
		return nil, err
	}
	if err := putInt(enc, "at", ev.At.UnixMilli()); err != nil {
		return nil, err
	}
	if ev.Amount != "" {
		if err := putString(enc, "amount", ev.Amount); err != nil {
			return nil, err
		}
	}
	if ev.From != nil {
		if err := putString(enc, "from", ev.From.Hex()); err != nil {
			return nil, err
		}
	}
	if ev.To != nil {
		if err := putString(enc, "to", ev.To.Hex()); err != nil {
			return nil, err
		}
	}
	if ev.Outcome != "" {
		if err := putString(enc, "outcome", ev.Outcome); err != nil {
			return nil, err
		}
	}
	if ev.Spend != "" {
		if err := putString(enc, "spend", ev.Spend); err != nil {
			return nil, err
		}
	}
	if ev.Reward != "" {
		if err := putString(enc, "reward", ev.Reward); err != nil {
			return nil, err
		}
	}
	if ev.Burned != "" {
		if err := putString(enc, "burned", ev.Burned); err != nil {
			return nil, err
		}
	}
	if ev.LastPurchaseTick != 0 {
		if err := putUint(enc, "last_purchase_tick", uint64(ev.LastPurchaseTick)); err != nil {
			return nil, err
		}
	}
	if ev.Backdated {
		if err := putBool(enc, "backdated", true); err != nil {
			return nil, err
		}
	}
	if ev.MultiplierBps != 0 {
		if err := putUint(enc, "multiplier_bps", ev.MultiplierBps); err != nil {
			return nil, err
		}
	}
	if ev.Authority != nil {
		if err := putString(enc, "authority", ev.Authority.Hex()); err != nil {
			return nil, err
		}
	}
	if ev.Address != nil {
		if err := putString(enc, "address", ev.Address.Hex()); err != nil {
			return nil, err
		}
	}
	if ev.Enabled {
		if err := putBool(enc, "enabled", true); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func putString(enc *msgpack.Encoder, key, value string) error {
	if err := enc.EncodeString(key); err != nil {
		return err
	}
	return enc.EncodeString(value)
}

func putUint(enc *msgpack.Encoder, key string, value uint64) error {
	if err := enc.EncodeString(key); err != nil {
		return err
	}
	return enc.EncodeUint(value)
}

func putInt(enc *msgpack.Encoder, key string, value int64) error {
	if err := enc.EncodeString(key); err != nil {
		return err
	}
	return enc.EncodeInt(value)
}

func putBool(enc *msgpack.Encoder, key string, value bool) error {
	if err := enc.EncodeString(key); err != nil {
		return err
	}
	return enc.EncodeBool(value)
}
