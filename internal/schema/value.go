package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/timex"
)

// Normalize converts a value coming from JSON, SQLite or PostgreSQL into
// the canonical Go representation of the column type:
// string, int64, float64, bool or time.Time (UTC). nil is kept for
// nullable columns.
func (c Column) Normalize(v any) (any, error) {
	if v == nil {
		if !c.Nullable {
			return nil, fmt.Errorf("%w: %s must not be null", common.ErrorValidation, c.Name)
		}
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	var (
		out any
		err error
	)
	switch c.Type {
	case TypeText:
		out, err = toText(v)
	case TypeInteger:
		out, err = toInteger(v)
	case TypeReal:
		out, err = toReal(v)
	case TypeBoolean:
		out, err = toBoolean(v)
	case TypeTimestamp:
		out, err = toTimestamp(v)
	default:
		err = fmt.Errorf("unsupported type %q", c.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrorValidation, c.Name, err)
	}
	return out, nil
}

// SQLiteValue converts a normalised value into what the local store keeps:
// booleans as 0/1 and timestamps as sortable text.
func (c Column) SQLiteValue(v any) any {
	switch value := v.(type) {
	case bool:
		if value {
			return int64(1)
		}
		return int64(0)
	case time.Time:
		return timex.FormatSortable(value)
	default:
		return v
	}
}

func toText(v any) (any, error) {
	switch value := v.(type) {
	case string:
		return value, nil
	case json.Number:
		return value.String(), nil
	default:
		return nil, fmt.Errorf("expected text, got %T", v)
	}
}

func toInteger(v any) (any, error) {
	switch value := v.(type) {
	case int64:
		return value, nil
	case int:
		return int64(value), nil
	case int32:
		return int64(value), nil
	case json.Number:
		n, err := value.Int64()
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %s", value)
		}
		return n, nil
	case float64:
		if value != math.Trunc(value) || math.IsInf(value, 0) {
			return nil, fmt.Errorf("expected integer, got %v", value)
		}
		return int64(value), nil
	case string:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %q", value)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("expected integer, got %T", v)
	}
}

func toReal(v any) (any, error) {
	switch value := v.(type) {
	case float64:
		return value, nil
	case float32:
		return float64(value), nil
	case int64:
		return float64(value), nil
	case int:
		return float64(value), nil
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			return nil, fmt.Errorf("expected real, got %s", value)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("expected real, got %q", value)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("expected real, got %T", v)
	}
}

func toBoolean(v any) (any, error) {
	switch value := v.(type) {
	case bool:
		return value, nil
	case int64:
		return value != 0, nil
	case int:
		return value != 0, nil
	case json.Number:
		n, err := value.Int64()
		if err != nil || (n != 0 && n != 1) {
			return nil, fmt.Errorf("expected boolean, got %s", value)
		}
		return n == 1, nil
	case string:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("expected boolean, got %q", value)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("expected boolean, got %T", v)
	}
}

func toTimestamp(v any) (any, error) {
	switch value := v.(type) {
	case time.Time:
		return value.UTC(), nil
	case string:
		return timex.ParseSortable(value)
	default:
		return nil, fmt.Errorf("expected timestamp, got %T", v)
	}
}

// NormalizeValues validates every key of values against the table and
// returns a copy holding normalised values. Unknown keys fail.
func (t *Table) NormalizeValues(values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for name, v := range values {
		col, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		n, err := col.Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.Name, err)
		}
		out[name] = n
	}
	return out, nil
}
