package dimse

// Well-known DIMSE status codes.
const (
	StatusSuccess            uint16 = 0x0000
	StatusOutOfResources     uint16 = 0xA700
	StatusSOPClassNotSupport uint16 = 0x0122
	StatusProcessingFailure  uint16 = 0x0110
	StatusCannotUnderstand   uint16 = 0xC000
	StatusCoercionOfElements uint16 = 0xB000
	StatusElementsDiscarded  uint16 = 0xB006
	StatusDataSetMismatch    uint16 = 0xB007
)

// IsSuccess reports whether the status is 0x0000.
func IsSuccess(status uint16) bool {
	return status == StatusSuccess
}

// IsWarning reports whether the status is in the 0xBxxx warning range.
// The instance was stored but the peer flagged something about it.
func IsWarning(status uint16) bool {
	return status&0xF000 == 0xB000
}

// IsFailure reports whether the status is neither success nor warning.
func IsFailure(status uint16) bool {
	return !IsSuccess(status) && !IsWarning(status)
}
