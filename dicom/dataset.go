// Package dicom implements the data set encoding used on the wire and in
// Part 10 files, plus the construction of Encapsulated PDF objects.
package dicom

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/Algernon72/PDF2PACS/types"
)

// VR (Value Representation) constants
const (
	VR_AE = "AE" // Application Entity
	VR_AS = "AS" // Age String
	VR_CS = "CS" // Code String
	VR_DA = "DA" // Date
	VR_DT = "DT" // Date Time
	VR_IS = "IS" // Integer String
	VR_LO = "LO" // Long String
	VR_LT = "LT" // Long Text
	VR_OB = "OB" // Other Byte
	VR_OW = "OW" // Other Word
	VR_PN = "PN" // Person Name
	VR_SH = "SH" // Short String
	VR_SQ = "SQ" // Sequence of Items
	VR_ST = "ST" // Short Text
	VR_TM = "TM" // Time
	VR_UI = "UI" // Unique Identifier
	VR_UL = "UL" // Unsigned Long
	VR_UN = "UN" // Unknown
	VR_US = "US" // Unsigned Short
	VR_UT = "UT" // Unlimited Text
)

// Common transfer syntax UIDs
const (
	TransferSyntaxImplicitVRLittleEndian = types.ImplicitVRLittleEndian
	TransferSyntaxExplicitVRLittleEndian = types.ExplicitVRLittleEndian
)

// Tag represents a DICOM tag (group, element)
type Tag struct {
	Group   uint16
	Element uint16
}

// String returns the tag as a string in (GGGG,EEEE) format
func (t Tag) String() string {
	return fmt.Sprintf("(%04x,%04x)", t.Group, t.Element)
}

// Less orders tags by group, then element.
func (t Tag) Less(other Tag) bool {
	if t.Group != other.Group {
		return t.Group < other.Group
	}
	return t.Element < other.Element
}

// Element represents a DICOM data element
type Element struct {
	Tag   Tag
	VR    string
	Value interface{}
}

// Dataset represents a collection of DICOM elements
type Dataset struct {
	Elements map[Tag]*Element
}

// NewDataset creates a new empty dataset
func NewDataset() *Dataset {
	return &Dataset{
		Elements: make(map[Tag]*Element),
	}
}

// AddElement adds an element to the dataset, replacing any existing value.
func (d *Dataset) AddElement(tag Tag, vr string, value interface{}) {
	d.Elements[tag] = &Element{Tag: tag, VR: vr, Value: value}
}

// GetElement returns an element by tag
func (d *Dataset) GetElement(tag Tag) (*Element, bool) {
	element, exists := d.Elements[tag]
	return element, exists
}

// GetString returns a string value for a tag
func (d *Dataset) GetString(tag Tag) string {
	if element, exists := d.Elements[tag]; exists {
		if str, ok := element.Value.(string); ok {
			return strings.TrimSpace(str)
		}
	}
	return ""
}

// GetBytes returns a raw byte value for a tag.
func (d *Dataset) GetBytes(tag Tag) []byte {
	if element, exists := d.Elements[tag]; exists {
		if b, ok := element.Value.([]byte); ok {
			return b
		}
	}
	return nil
}

// GetUint16 returns a binary unsigned short value for a tag.
func (d *Dataset) GetUint16(tag Tag) (uint16, bool) {
	if element, exists := d.Elements[tag]; exists {
		if v, ok := element.Value.(uint16); ok {
			return v, true
		}
	}
	return 0, false
}

// sortedTags returns the dataset's tags in ascending order. DICOM requires
// elements to appear in tag order.
func (d *Dataset) sortedTags() []Tag {
	tags := make([]Tag, 0, len(d.Elements))
	for tag := range d.Elements {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Less(tags[j]) })
	return tags
}

// longVRs have a 12-byte explicit header: 2 reserved bytes followed by a
// 4-byte length.
var longVRs = map[string]bool{
	VR_OB: true, VR_OW: true, VR_SQ: true, VR_UN: true, VR_UT: true,
}

// padByte returns the byte used to pad an odd-length value to even length.
// UI values and binary VRs pad with NUL, text values with space.
func padByte(vr string) byte {
	switch vr {
	case VR_UI, VR_OB, VR_OW, VR_UN:
		return 0x00
	default:
		return 0x20
	}
}

// Length fields on the wire: short VRs carry 16 bits, long VRs and
// Implicit VR carry 32 bits with 0xFFFFFFFF reserved for undefined length.
const (
	maxShortVRLength = 0xFFFF
	maxLongVRLength  = 0xFFFFFFFE
)

// EncodeDataset encodes a dataset to bytes (Explicit VR Little Endian)
func (d *Dataset) EncodeDataset() ([]byte, error) {
	var result []byte

	for _, tag := range d.sortedTags() {
		element := d.Elements[tag]

		tagBytes := make([]byte, 4)
		binary.LittleEndian.PutUint16(tagBytes[0:2], tag.Group)
		binary.LittleEndian.PutUint16(tagBytes[2:4], tag.Element)
		result = append(result, tagBytes...)
		result = append(result, []byte(element.VR)...)

		valueBytes := encodeElementValue(element)
		if len(valueBytes)%2 == 1 {
			valueBytes = append(valueBytes, padByte(element.VR))
		}

		if longVRs[element.VR] {
			if len(valueBytes) > maxLongVRLength {
				return nil, fmt.Errorf("element %s value length %d exceeds VR %s limit", tag, len(valueBytes), element.VR)
			}
			result = append(result, 0x00, 0x00)
			lengthBytes := make([]byte, 4)
			binary.LittleEndian.PutUint32(lengthBytes, uint32(len(valueBytes)))
			result = append(result, lengthBytes...)
		} else {
			if len(valueBytes) > maxShortVRLength {
				return nil, fmt.Errorf("element %s value length %d exceeds VR %s limit", tag, len(valueBytes), element.VR)
			}
			lengthBytes := make([]byte, 2)
			binary.LittleEndian.PutUint16(lengthBytes, uint16(len(valueBytes)))
			result = append(result, lengthBytes...)
		}

		result = append(result, valueBytes...)
	}

	return result, nil
}

func encodeImplicitVRDataset(d *Dataset) ([]byte, error) {
	var result []byte

	for _, tag := range d.sortedTags() {
		element := d.Elements[tag]

		tagBytes := make([]byte, 4)
		binary.LittleEndian.PutUint16(tagBytes[0:2], tag.Group)
		binary.LittleEndian.PutUint16(tagBytes[2:4], tag.Element)
		result = append(result, tagBytes...)

		valueBytes := encodeElementValue(element)
		if len(valueBytes)%2 == 1 {
			valueBytes = append(valueBytes, padByte(element.VR))
		}

		if len(valueBytes) > maxLongVRLength {
			return nil, fmt.Errorf("element %s value length %d exceeds VR %s limit", tag, len(valueBytes), element.VR)
		}
		lengthBytes := make([]byte, 4)
		binary.LittleEndian.PutUint32(lengthBytes, uint32(len(valueBytes)))
		result = append(result, lengthBytes...)
		result = append(result, valueBytes...)
	}

	return result, nil
}

// EncodeDatasetWithTransferSyntax encodes a dataset using the provided transfer syntax.
func EncodeDatasetWithTransferSyntax(dataset *Dataset, transferSyntaxUID string) ([]byte, error) {
	if dataset == nil {
		return nil, nil
	}

	switch transferSyntaxUID {
	case "", TransferSyntaxExplicitVRLittleEndian:
		return dataset.EncodeDataset()
	case TransferSyntaxImplicitVRLittleEndian:
		return encodeImplicitVRDataset(dataset)
	default:
		return nil, fmt.Errorf("unsupported transfer syntax %s", transferSyntaxUID)
	}
}

// ParseDataset parses a DICOM dataset from raw bytes (Explicit VR Little Endian)
func ParseDataset(data []byte) (*Dataset, error) {
	dataset := NewDataset()

	offset := 0
	for offset+8 <= len(data) {
		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		tag := Tag{Group: group, Element: element}

		vr := string(data[offset+4 : offset+6])

		var length uint32
		var valueOffset int
		if longVRs[vr] {
			if offset+12 > len(data) {
				return nil, fmt.Errorf("truncated element header at %s", tag)
			}
			length = binary.LittleEndian.Uint32(data[offset+8 : offset+12])
			valueOffset = offset + 12
		} else {
			length = uint32(binary.LittleEndian.Uint16(data[offset+6 : offset+8]))
			valueOffset = offset + 8
		}

		if valueOffset+int(length) > len(data) {
			return nil, fmt.Errorf("element %s value exceeds data length", tag)
		}

		valueData := data[valueOffset : valueOffset+int(length)]
		dataset.AddElement(tag, vr, parseElementValue(vr, valueData))

		offset = valueOffset + int(length)
	}

	return dataset, nil
}

// ParseDatasetWithTransferSyntax parses a dataset using the provided transfer syntax.
func ParseDatasetWithTransferSyntax(data []byte, transferSyntaxUID string) (*Dataset, error) {
	switch transferSyntaxUID {
	case "", TransferSyntaxExplicitVRLittleEndian:
		return ParseDataset(data)
	case TransferSyntaxImplicitVRLittleEndian:
		return parseImplicitVRDataset(data)
	default:
		return nil, fmt.Errorf("unsupported transfer syntax %s", transferSyntaxUID)
	}
}

func parseImplicitVRDataset(data []byte) (*Dataset, error) {
	dataset := NewDataset()

	offset := 0
	for offset+8 <= len(data) {
		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		tag := Tag{Group: group, Element: element}

		length := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		valueOffset := offset + 8

		if valueOffset+int(length) > len(data) {
			return nil, fmt.Errorf("element %s value exceeds data length", tag)
		}

		valueData := data[valueOffset : valueOffset+int(length)]
		vr := determineVR(tag)
		dataset.AddElement(tag, vr, parseElementValue(vr, valueData))

		offset = valueOffset + int(length)
	}

	return dataset, nil
}

// parseElementValue decodes a raw value. Binary VRs keep their bytes,
// everything else becomes a string with trailing padding removed.
func parseElementValue(vr string, data []byte) interface{} {
	switch vr {
	case VR_OB, VR_OW, VR_UN:
		return data
	case VR_US:
		if len(data) == 2 {
			return binary.LittleEndian.Uint16(data)
		}
		return data
	case VR_UL:
		if len(data) == 4 {
			return binary.LittleEndian.Uint32(data)
		}
		return data
	default:
		return strings.TrimRight(string(data), "\x00 ")
	}
}

// encodeElementValue encodes an element value to bytes
func encodeElementValue(element *Element) []byte {
	switch v := element.Value.(type) {
	case string:
		return []byte(strings.TrimRight(v, "\x00"))
	case []string:
		return []byte(strings.Join(v, "\\"))
	case []byte:
		return v
	case int:
		return []byte(fmt.Sprintf("%d", v))
	case uint16:
		result := make([]byte, 2)
		binary.LittleEndian.PutUint16(result, v)
		return result
	case uint32:
		result := make([]byte, 4)
		binary.LittleEndian.PutUint32(result, v)
		return result
	default:
		return []byte(fmt.Sprintf("%v", v))
	}
}
