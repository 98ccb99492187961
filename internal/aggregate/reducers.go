package aggregate

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"statsScope/internal/model"
)

// TicketCount returns how many tickets one purchase event represents: the
// length of a list-valued field, or one for a scalar.
func TicketCount(ev model.LogEvent, field string) (uint64, error) {
	if ev.DecodeErr != "" {
		return 0, &ParseError{EventID: ev.ID(), Field: field, Reason: ev.DecodeErr}
	}
	value, ok := ev.Args.Get(field)
	if !ok || value == nil {
		return 0, &ParseError{EventID: ev.ID(), Field: field, Reason: "missing"}
	}

	switch v := value.(type) {
	case []*big.Int:
		return uint64(len(v)), nil
	case []interface{}:
		return uint64(len(v)), nil
	case *big.Int, uint64, uint32, int64, int, string, json.Number, common.Hash:
		return 1, nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return 1, nil
		}
		return uint64(rv.Len()), nil
	case reflect.Array:
		// fixed-size byte arrays (bytes32 ids) are a single ticket
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return 1, nil
		}
		return uint64(rv.Len()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return 1, nil
	}

	return 0, &ParseError{EventID: ev.ID(), Field: field, Reason: fmt.Sprintf("unsupported type %T", value)}
}

// PrizeAmount returns the non-negative base-unit amount of a prize event.
func PrizeAmount(ev model.LogEvent, field string) (*big.Int, error) {
	if ev.DecodeErr != "" {
		return nil, &ParseError{EventID: ev.ID(), Field: field, Reason: ev.DecodeErr}
	}
	value, ok := ev.Args.Get(field)
	if !ok || value == nil {
		return nil, &ParseError{EventID: ev.ID(), Field: field, Reason: "missing"}
	}

	amount, err := parseBigInt(value)
	if err != nil {
		return nil, &ParseError{EventID: ev.ID(), Field: field, Reason: err.Error()}
	}
	if amount.Sign() < 0 {
		return nil, &ParseError{EventID: ev.ID(), Field: field, Reason: "negative amount"}
	}
	return amount, nil
}

func parseBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case int:
		return big.NewInt(int64(v)), nil
	case json.Number:
		return parseBigIntString(v.String())
	case string:
		return parseBigIntString(v)
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func parseBigIntString(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("empty int")
	}
	base := 10
	if strings.HasPrefix(value, "0x") {
		value = value[2:]
		base = 16
	}
	parsed, ok := new(big.Int).SetString(value, base)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}
