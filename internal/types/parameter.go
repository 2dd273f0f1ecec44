package types

type Category string

const (
	CategoryByte    Category = "byte"
	CategoryDouble  Category = "double"
	CategoryChannel Category = "channel"
)

type Direction string

const (
	DirectionWriteOnly      Direction = "write_only"
	DirectionReadOnly       Direction = "read_only"
	DirectionReadAfterWrite Direction = "read_after_write"
)

// ParameterDescriptor describes one named instrument parameter. ID is the
// parameter number the instrument expects for byte and double writes.
type ParameterDescriptor struct {
	Name      string
	Category  Category
	ID        uint8
	Direction Direction
	Min       float64
	Max       float64
	Integral  bool
	Unit      string
}

func (d ParameterDescriptor) Writable() bool {
	return d.Direction != DirectionReadOnly
}
