// Package types contains the DICOM UID vocabulary used by the uploader.
package types

// ApplicationContextUID identifies the DICOM application context proposed
// on every association.
const ApplicationContextUID = "1.2.840.10008.3.1.1.1"

// Verification Service
const (
	VerificationSOPClass = "1.2.840.10008.1.1"
)

// Encapsulated Document Storage SOP Classes, DICOM Part 4, Annex B.
// EncapsulatedPDFStorage is the SOP class carried by every object this
// system builds; the remaining document classes are recognized so the
// receiving side can accept them too.
const (
	EncapsulatedPDFStorage = "1.2.840.10008.5.1.4.1.1.104.1"
	EncapsulatedCDAStorage = "1.2.840.10008.5.1.4.1.1.104.2"
	EncapsulatedSTLStorage = "1.2.840.10008.5.1.4.1.1.104.3"
)

// SecondaryCaptureImageStorage is recognized on the receiving side only;
// the uploader never emits it (PDF rendering is out of scope).
const SecondaryCaptureImageStorage = "1.2.840.10008.5.1.4.1.1.7"

// SOPClassInfo provides human-readable information about a SOP Class UID.
type SOPClassInfo struct {
	UID      string
	Name     string
	Category string
}

// sopClassRegistry maps the SOP Class UIDs this system deals with to
// their information.
var sopClassRegistry = map[string]SOPClassInfo{
	VerificationSOPClass: {
		UID:      VerificationSOPClass,
		Name:     "Verification SOP Class",
		Category: "Verification",
	},
	EncapsulatedPDFStorage: {
		UID:      EncapsulatedPDFStorage,
		Name:     "Encapsulated PDF Storage",
		Category: "Storage",
	},
	EncapsulatedCDAStorage: {
		UID:      EncapsulatedCDAStorage,
		Name:     "Encapsulated CDA Storage",
		Category: "Storage",
	},
	EncapsulatedSTLStorage: {
		UID:      EncapsulatedSTLStorage,
		Name:     "Encapsulated STL Storage",
		Category: "Storage",
	},
	SecondaryCaptureImageStorage: {
		UID:      SecondaryCaptureImageStorage,
		Name:     "Secondary Capture Image Storage",
		Category: "Storage",
	},
}

// GetSOPClassInfo returns information about a SOP Class UID.
func GetSOPClassInfo(uid string) *SOPClassInfo {
	info, ok := sopClassRegistry[uid]
	if !ok {
		return &SOPClassInfo{
			UID:      uid,
			Name:     "Unknown",
			Category: "Unknown",
		}
	}
	return &info
}

// IsStorageSOPClass returns true if the UID is a storage SOP class known
// to this system.
func IsStorageSOPClass(uid string) bool {
	return GetSOPClassInfo(uid).Category == "Storage"
}
