// Package decoder maps opaque contract logs to typed events through the
// contract's ABI.
package decoder

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrNoTopics is returned for anonymous logs that carry no topic hash.
var ErrNoTopics = errors.New("log has no topics")

// DecodedEvent is the typed view of one raw log.
type DecodedEvent struct {
	Name      string
	Signature string
	Topic     string
	Args      map[string]interface{}
}

// Decoder decodes logs against a single contract interface description.
type Decoder struct {
	contractABI abi.ABI
}

// New parses the ABI JSON and builds a Decoder.
func New(abiJSON string) (*Decoder, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}
	return &Decoder{contractABI: parsed}, nil
}

// Decode maps a raw log into a named event with typed arguments. Logs whose
// topic does not match any ABI event fail with an error; callers are expected
// to skip such logs without aborting the batch.
func (d *Decoder) Decode(lg types.Log) (*DecodedEvent, error) {
	if len(lg.Topics) == 0 {
		return nil, ErrNoTopics
	}

	event, err := d.contractABI.EventByID(lg.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("no matching event for topic %s: %w", lg.Topics[0].Hex(), err)
	}

	args := make(map[string]interface{})

	// Non-indexed arguments live in the data section
	if len(lg.Data) > 0 {
		if err := d.contractABI.UnpackIntoMap(args, event.Name, lg.Data); err != nil {
			return nil, fmt.Errorf("failed to unpack data for %s: %w", event.Name, err)
		}
	}

	// Indexed arguments live in the remaining topics
	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
			return nil, fmt.Errorf("failed to parse topics for %s: %w", event.Name, err)
		}
	}

	return &DecodedEvent{
		Name:      event.Name,
		Signature: event.Sig,
		Topic:     lg.Topics[0].Hex(),
		Args:      sanitizeArgs(args),
	}, nil
}

// sanitizeArgs converts decoded values into string-safe representations so
// large integers survive JSON storage without precision loss.
func sanitizeArgs(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for name, value := range args {
		out[name] = sanitizeValue(value)
	}
	return out
}

func sanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case *big.Int:
		return val.String()
	case common.Address:
		return val.Hex()
	case common.Hash:
		return val.Hex()
	case []byte:
		return hexutil.Encode(val)
	case [32]byte:
		return hexutil.Encode(val[:])
	case bool, string:
		return val
	}

	// Fixed-size byte arrays and nested slices fall through to reflection
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Array, reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			raw := make([]byte, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				raw[i] = byte(rv.Index(i).Uint())
			}
			return hexutil.Encode(raw)
		}
		out := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = sanitizeValue(rv.Index(i).Interface())
		}
		return out
	}

	return v
}
