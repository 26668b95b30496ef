package fusion

import (
	"time"
	"unsafe"
)

const (
	mapHeaderBytes   = 48
	mapEntryOverhead = 16
	interfaceBytes   = int64(unsafe.Sizeof(any(nil)))
	stringHeader     = int64(unsafe.Sizeof(""))
)

func estimateSnapshot(s Snapshot) int64 {
	size := int64(unsafe.Sizeof(s)) + int64(len(s.ID))
	size += mapHeaderBytes
	for source, payload := range s.Data {
		size += mapEntryOverhead + stringHeader + int64(len(source))
		size += estimateValue(payload)
	}
	size += estimateValue(s.Metadata)
	return size
}

// estimateValue approximates the heap footprint of decoded payload values.
// Unknown types count as a single interface slot.
func estimateValue(v any) int64 {
	switch x := v.(type) {
	case nil:
		return 0
	case string:
		return stringHeader + int64(len(x))
	case bool:
		return 1
	case int, int64, uint64, float64, uint, int32, uint32, float32:
		return 8
	case time.Time:
		return int64(unsafe.Sizeof(x))
	case []byte:
		return int64(len(x)) + 24
	case []string:
		size := int64(24)
		for _, s := range x {
			size += stringHeader + int64(len(s))
		}
		return size
	case []any:
		size := int64(24)
		for _, e := range x {
			size += interfaceBytes + estimateValue(e)
		}
		return size
	case map[string]any:
		size := int64(mapHeaderBytes)
		for k, e := range x {
			size += mapEntryOverhead + stringHeader + int64(len(k)) + interfaceBytes + estimateValue(e)
		}
		return size
	case map[string]time.Time:
		size := int64(mapHeaderBytes)
		for k := range x {
			size += mapEntryOverhead + stringHeader + int64(len(k)) + int64(unsafe.Sizeof(time.Time{}))
		}
		return size
	default:
		return interfaceBytes
	}
}
