package can

// MaxFilters is the number of acceptance filters per controller instance,
// one per dedicated receive message buffer.
const MaxFilters = 5

// Filter is a 29-bit acceptance pattern. A received identifier is accepted
// when the bits selected by Mask equal the corresponding bits of ID.
type Filter struct {
	ID   uint32
	Mask uint32
}

// Match reports whether the extended identifier id passes the filter.
func (f Filter) Match(id uint32) bool {
	return (id^f.ID)&f.Mask&EFFMask == 0
}
