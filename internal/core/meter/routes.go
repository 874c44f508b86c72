package meter

import "math"

// Route maps one topic suffix onto the field store, including the
// ingest transform for that suffix (unit conversion, sign convention,
// phase split).
type Route func(store *FieldStore, raw float64)

func setField(field Field) Route {
	return func(store *FieldStore, raw float64) {
		store.Set(field, raw)
	}
}

// gridRoutes covers the grid meter topic set. Energy counters arrive in
// Wh and are exposed in kWh. The aggregate power suffix splits sum/3
// into every phase that has never received a direct reading.
func gridRoutes() map[string]Route {
	return map[string]Route{
		"/power": func(store *FieldStore, raw float64) {
			store.Set(FieldPower, raw)
			for _, phase := range phaseFields {
				store.SetSynthesized(phase, raw/3)
			}
		},
		"/p_l1": setField(FieldPowerL1),
		"/p_l2": setField(FieldPowerL2),
		"/p_l3": setField(FieldPowerL3),
		"/180": func(store *FieldStore, raw float64) {
			store.Set(FieldEnergyForward, round(raw/1000, 3))
		},
		"/280": func(store *FieldStore, raw float64) {
			store.Set(FieldEnergyReverse, round(raw/1000, 3))
		},
	}
}

// pvRoutes covers the PV inverter topic set. The source publishes power
// and current with the opposite sign of the exposed AC convention, so
// both are negated before storage.
func pvRoutes() map[string]Route {
	return map[string]Route{
		"/power": func(store *FieldStore, raw float64) {
			store.Set(FieldPower, -raw)
		},
		"/voltage": setField(FieldVoltage),
		"/current": func(store *FieldStore, raw float64) {
			store.Set(FieldCurrent, -raw)
		},
		"/frequency": setField(FieldFrequency),
		"/energy_180": func(store *FieldStore, raw float64) {
			store.Set(FieldEnergyForward, raw/1000)
		},
		"/energy_280": func(store *FieldStore, raw float64) {
			store.Set(FieldEnergyReverse, raw/1000)
		},
	}
}

func round(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
