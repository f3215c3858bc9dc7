package telemetry

import (
	"fmt"
	"math"
	"sort"

	"go.opentelemetry.io/otel/attribute"
)

func convertTypeToAttribute(value interface{}) attribute.Value {
	switch v := value.(type) {
	case string:
		return attribute.StringValue(v)
	case bool:
		return attribute.BoolValue(v)
	case int:
		return attribute.IntValue(v)
	case int64:
		return attribute.Int64Value(v)
	case uint32:
		return attribute.Int64Value(int64(v))
	case uint64:
		// object versions and checkpoints can exceed int64
		if v > math.MaxInt64 {
			return attribute.StringValue(fmt.Sprintf("%d", v))
		}

		return attribute.Int64Value(int64(v))
	case float64:
		return attribute.Float64Value(v)
	case []string:
		return attribute.StringSliceValue(v)
	case fmt.Stringer:
		return attribute.StringValue(v.String())
	default:
		return attribute.StringValue(fmt.Sprintf("%v", v))
	}
}

// toKeyValues converts attributes in key order
func toKeyValues(attributes map[string]interface{}) []attribute.KeyValue {
	keys := make([]string, 0, len(attributes))
	for k := range attributes {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	kvs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		kvs = append(kvs, attribute.KeyValue{
			Key:   attribute.Key(k),
			Value: convertTypeToAttribute(attributes[k]),
		})
	}

	return kvs
}
