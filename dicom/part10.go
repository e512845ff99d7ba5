package dicom

import (
	"fmt"
	"strings"
)

// FileMeta describes the File Meta Information (group 0x0002) written at the
// head of a DICOM Part 10 file.
type FileMeta struct {
	MediaStorageSOPClassUID    string
	MediaStorageSOPInstanceUID string
	TransferSyntaxUID          string
	ImplementationClassUID     string
	ImplementationVersionName  string
}

// EncodePart10 builds a complete Part 10 file:
//   - 128 byte preamble of zeros
//   - 4 byte "DICM" prefix
//   - File Meta Information elements (group 0x0002, always Explicit VR
//     Little Endian, with a computed group length)
//   - the dataset, encoded in meta.TransferSyntaxUID
func EncodePart10(meta FileMeta, dataset *Dataset) ([]byte, error) {
	datasetBytes, err := EncodeDatasetWithTransferSyntax(dataset, meta.TransferSyntaxUID)
	if err != nil {
		return nil, err
	}

	metaSet := NewDataset()
	metaSet.AddElement(TagFileMetaVersion, VR_OB, []byte{0x00, 0x01})
	metaSet.AddElement(TagMediaStorageSOPClassUID, VR_UI, meta.MediaStorageSOPClassUID)
	metaSet.AddElement(TagMediaStorageSOPInstanceUID, VR_UI, meta.MediaStorageSOPInstanceUID)
	metaSet.AddElement(TagTransferSyntaxUID, VR_UI, meta.TransferSyntaxUID)
	metaSet.AddElement(TagImplementationClassUID, VR_UI, meta.ImplementationClassUID)
	if meta.ImplementationVersionName != "" {
		metaSet.AddElement(TagImplementationVersionName, VR_SH, meta.ImplementationVersionName)
	}
	metaBytes, err := metaSet.EncodeDataset()
	if err != nil {
		return nil, err
	}

	// Group length covers every group 0x0002 byte after its own element.
	groupLength := NewDataset()
	groupLength.AddElement(TagFileMetaGroupLength, VR_UL, uint32(len(metaBytes)))
	groupLengthBytes, err := groupLength.EncodeDataset()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 132+len(groupLengthBytes)+len(metaBytes)+len(datasetBytes))
	out = append(out, make([]byte, 128)...)
	out = append(out, []byte("DICM")...)
	out = append(out, groupLengthBytes...)
	out = append(out, metaBytes...)
	out = append(out, datasetBytes...)
	return out, nil
}

// HasPart10Header checks if the data starts with a DICOM Part 10 header:
// a 128-byte preamble followed by "DICM".
func HasPart10Header(data []byte) bool {
	if len(data) < 132 {
		return false
	}
	return string(data[128:132]) == "DICM"
}

// StripPart10Header removes the preamble and File Meta Information and
// returns the dataset bytes plus the transfer syntax they are encoded in.
// DIMSE operations carry only the bare dataset, so this is what a C-STORE
// sends from a file on disk.
func StripPart10Header(data []byte) (dataset []byte, transferSyntaxUID string, err error) {
	if !HasPart10Header(data) {
		return nil, "", fmt.Errorf("not a DICOM Part 10 file")
	}

	offset := 132
	for offset+8 <= len(data) {
		group := uint16(data[offset]) | uint16(data[offset+1])<<8
		element := uint16(data[offset+2]) | uint16(data[offset+3])<<8
		if group != 0x0002 {
			break
		}

		vr := string(data[offset+4 : offset+6])

		var length uint32
		var valueOffset int
		if longVRs[vr] {
			if offset+12 > len(data) {
				return nil, "", fmt.Errorf("truncated file meta element")
			}
			length = uint32(data[offset+8]) | uint32(data[offset+9])<<8 |
				uint32(data[offset+10])<<16 | uint32(data[offset+11])<<24
			valueOffset = offset + 12
		} else {
			length = uint32(data[offset+6]) | uint32(data[offset+7])<<8
			valueOffset = offset + 8
		}

		if valueOffset+int(length) > len(data) {
			return nil, "", fmt.Errorf("truncated file meta element")
		}

		if element == 0x0010 {
			transferSyntaxUID = strings.TrimRight(string(data[valueOffset:valueOffset+int(length)]), "\x00 ")
		}

		offset = valueOffset + int(length)
	}

	if offset >= len(data) {
		return nil, "", fmt.Errorf("no dataset after file meta information")
	}
	return data[offset:], transferSyntaxUID, nil
}
