package meter

// Field identifies one measured quantity of a meter. Every field starts
// unknown and independently holds the last received value.
type Field string

const (
	FieldPower         Field = "power"
	FieldPowerL1       Field = "power_l1"
	FieldPowerL2       Field = "power_l2"
	FieldPowerL3       Field = "power_l3"
	FieldCurrent       Field = "current"
	FieldVoltage       Field = "voltage"
	FieldFrequency     Field = "frequency"
	FieldEnergyForward Field = "energy_forward"
	FieldEnergyReverse Field = "energy_reverse"
)

var phaseFields = [3]Field{FieldPowerL1, FieldPowerL2, FieldPowerL3}

type origin uint8

const (
	originMeasured origin = iota
	originSynthesized
)

type fieldValue struct {
	value  float64
	origin origin
}

// FieldStore holds the latest known value per field. It is mutated only
// by the owning update coordinator; derivation reads it as a snapshot.
type FieldStore struct {
	values map[Field]fieldValue
}

func NewFieldStore() *FieldStore {
	return &FieldStore{
		values: make(map[Field]fieldValue),
	}
}

// Set stores a directly measured value, overwriting any previous one.
func (s *FieldStore) Set(field Field, value float64) {
	s.values[field] = fieldValue{value: value, origin: originMeasured}
}

// SetSynthesized stores a derived value. It never replaces a measured
// value: a real reading owns the field permanently.
func (s *FieldStore) SetSynthesized(field Field, value float64) {
	if cur, ok := s.values[field]; ok && cur.origin == originMeasured {
		return
	}
	s.values[field] = fieldValue{value: value, origin: originSynthesized}
}

// Get returns the last known value, with ok=false while the field has
// never been set.
func (s *FieldStore) Get(field Field) (float64, bool) {
	v, ok := s.values[field]
	return v.value, ok
}

// Measured reports whether the field holds a directly measured value.
func (s *FieldStore) Measured(field Field) bool {
	v, ok := s.values[field]
	return ok && v.origin == originMeasured
}
