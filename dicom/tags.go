package dicom

// File meta information (group 0002)
var (
	TagFileMetaGroupLength        = Tag{0x0002, 0x0000}
	TagFileMetaVersion            = Tag{0x0002, 0x0001}
	TagMediaStorageSOPClassUID    = Tag{0x0002, 0x0002}
	TagMediaStorageSOPInstanceUID = Tag{0x0002, 0x0003}
	TagTransferSyntaxUID          = Tag{0x0002, 0x0010}
	TagImplementationClassUID     = Tag{0x0002, 0x0012}
	TagImplementationVersionName  = Tag{0x0002, 0x0013}
)

// Data set tags
var (
	TagSpecificCharacterSet   = Tag{0x0008, 0x0005}
	TagInstanceCreationDate   = Tag{0x0008, 0x0012}
	TagInstanceCreationTime   = Tag{0x0008, 0x0013}
	TagSOPClassUID            = Tag{0x0008, 0x0016}
	TagSOPInstanceUID         = Tag{0x0008, 0x0018}
	TagStudyDate              = Tag{0x0008, 0x0020}
	TagContentDate            = Tag{0x0008, 0x0023}
	TagStudyTime              = Tag{0x0008, 0x0030}
	TagContentTime            = Tag{0x0008, 0x0033}
	TagAccessionNumber        = Tag{0x0008, 0x0050}
	TagModality               = Tag{0x0008, 0x0060}
	TagConversionType         = Tag{0x0008, 0x0064}
	TagReferringPhysicianName = Tag{0x0008, 0x0090}
	TagStudyDescription       = Tag{0x0008, 0x1030}
	TagSeriesDescription      = Tag{0x0008, 0x103E}
	TagPatientName            = Tag{0x0010, 0x0010}
	TagPatientID              = Tag{0x0010, 0x0020}
	TagPatientBirthDate       = Tag{0x0010, 0x0030}
	TagPatientSex             = Tag{0x0010, 0x0040}
	TagBurnedInAnnotation     = Tag{0x0028, 0x0301}
	TagStudyInstanceUID       = Tag{0x0020, 0x000D}
	TagSeriesInstanceUID      = Tag{0x0020, 0x000E}
	TagStudyID                = Tag{0x0020, 0x0010}
	TagSeriesNumber           = Tag{0x0020, 0x0011}
	TagInstanceNumber         = Tag{0x0020, 0x0013}
	TagDocumentTitle          = Tag{0x0042, 0x0010}
	TagEncapsulatedDocument   = Tag{0x0042, 0x0011}
	TagMIMETypeOfEncapDoc     = Tag{0x0042, 0x0012}
)

var tagVRs = map[Tag]string{
	TagFileMetaGroupLength:        VR_UL,
	TagFileMetaVersion:            VR_OB,
	TagMediaStorageSOPClassUID:    VR_UI,
	TagMediaStorageSOPInstanceUID: VR_UI,
	TagTransferSyntaxUID:          VR_UI,
	TagImplementationClassUID:     VR_UI,
	TagImplementationVersionName:  VR_SH,

	TagSpecificCharacterSet:   VR_CS,
	TagInstanceCreationDate:   VR_DA,
	TagInstanceCreationTime:   VR_TM,
	TagSOPClassUID:            VR_UI,
	TagSOPInstanceUID:         VR_UI,
	TagStudyDate:              VR_DA,
	TagContentDate:            VR_DA,
	TagStudyTime:              VR_TM,
	TagContentTime:            VR_TM,
	TagAccessionNumber:        VR_SH,
	TagModality:               VR_CS,
	TagConversionType:         VR_CS,
	TagReferringPhysicianName: VR_PN,
	TagStudyDescription:       VR_LO,
	TagSeriesDescription:      VR_LO,
	TagPatientName:            VR_PN,
	TagPatientID:              VR_LO,
	TagPatientBirthDate:       VR_DA,
	TagPatientSex:             VR_CS,
	TagBurnedInAnnotation:     VR_CS,
	TagStudyInstanceUID:       VR_UI,
	TagSeriesInstanceUID:      VR_UI,
	TagStudyID:                VR_SH,
	TagSeriesNumber:           VR_IS,
	TagInstanceNumber:         VR_IS,
	TagDocumentTitle:          VR_ST,
	TagEncapsulatedDocument:   VR_OB,
	TagMIMETypeOfEncapDoc:     VR_LO,
}

// determineVR maps a tag to its VR for Implicit VR decoding. Tags outside
// the dictionary decode as UN, which preserves their raw bytes.
func determineVR(tag Tag) string {
	if vr, ok := tagVRs[tag]; ok {
		return vr
	}
	return VR_UN
}
