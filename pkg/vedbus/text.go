package vedbus

import (
	"fmt"
	"math"
)

// Formatters matching the GX display conventions. Numeric formatters
// accept float64 and int values; anything else renders empty.

func Watts(_ string, value any) string {
	f, ok := asFloat(value)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%dW", int(math.Round(f)))
}

func Volts(_ string, value any) string {
	f, ok := asFloat(value)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%.1fV", f)
}

func Amps(_ string, value any) string {
	f, ok := asFloat(value)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%.2fA", f)
}

func KWh(_ string, value any) string {
	f, ok := asFloat(value)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%.2fkWh", f)
}

func Hertz(_ string, value any) string {
	f, ok := asFloat(value)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%.2fHz", f)
}

func Integer(_ string, value any) string {
	f, ok := asFloat(value)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%d", int(f))
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
