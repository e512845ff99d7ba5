package types

// Transfer Syntax UIDs, DICOM Part 5, Section 8. Encapsulated PDF objects
// carry no pixel data, so only the uncompressed syntaxes matter here.
const (
	// ImplicitVRLittleEndian - the default DICOM transfer syntax.
	ImplicitVRLittleEndian = "1.2.840.10008.1.2"

	// ExplicitVRLittleEndian - preferred for general use due to explicit
	// data types; the syntax this system writes Part 10 files in.
	ExplicitVRLittleEndian = "1.2.840.10008.1.2.1"
)

// DefaultTransferSyntaxes returns the transfer syntaxes proposed on an
// association, in preference order.
func DefaultTransferSyntaxes() []string {
	return []string{
		ExplicitVRLittleEndian,
		ImplicitVRLittleEndian,
	}
}

// IsSupportedTransferSyntax reports whether datasets can be encoded or
// decoded in the given transfer syntax.
func IsSupportedTransferSyntax(uid string) bool {
	switch uid {
	case ImplicitVRLittleEndian, ExplicitVRLittleEndian:
		return true
	}
	return false
}
