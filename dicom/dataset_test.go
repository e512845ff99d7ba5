package dicom

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestTag_String(t *testing.T) {
	tests := []struct {
		name     string
		tag      Tag
		expected string
	}{
		{"Patient Name", Tag{0x0010, 0x0010}, "(0010,0010)"},
		{"Study Instance UID", Tag{0x0020, 0x000D}, "(0020,000d)"},
		{"Encapsulated Document", Tag{0x0042, 0x0011}, "(0042,0011)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tag.String(); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestExplicitVRRoundTrip(t *testing.T) {
	ds := NewDataset()
	ds.AddElement(TagPatientName, VR_PN, "ROSSI^MARIO")
	ds.AddElement(TagPatientID, VR_LO, "ICCPV20250101")
	ds.AddElement(TagSOPInstanceUID, VR_UI, "1.2.3.4")
	ds.AddElement(TagEncapsulatedDocument, VR_OB, []byte("%PDF-1.4 data"))

	encoded, err := ds.EncodeDataset()
	if err != nil {
		t.Fatalf("EncodeDataset failed: %v", err)
	}
	parsed, err := ParseDataset(encoded)
	if err != nil {
		t.Fatalf("ParseDataset failed: %v", err)
	}

	if got := parsed.GetString(TagPatientName); got != "ROSSI^MARIO" {
		t.Errorf("patient name: got %q", got)
	}
	if got := parsed.GetString(TagSOPInstanceUID); got != "1.2.3.4" {
		t.Errorf("SOP instance UID: got %q", got)
	}
	doc := parsed.GetBytes(TagEncapsulatedDocument)
	if !bytes.HasPrefix(doc, []byte("%PDF-1.4 data")) {
		t.Errorf("document payload: got % x", doc)
	}
}

func TestImplicitVRRoundTrip(t *testing.T) {
	ds := NewDataset()
	ds.AddElement(TagModality, VR_CS, "DOC")
	ds.AddElement(TagStudyInstanceUID, VR_UI, "1.2.840.10008.999")
	ds.AddElement(TagEncapsulatedDocument, VR_OB, []byte("%PDF-1.7"))

	encoded, err := EncodeDatasetWithTransferSyntax(ds, TransferSyntaxImplicitVRLittleEndian)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	parsed, err := ParseDatasetWithTransferSyntax(encoded, TransferSyntaxImplicitVRLittleEndian)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got := parsed.GetString(TagModality); got != "DOC" {
		t.Errorf("modality: got %q", got)
	}
	if got := parsed.GetBytes(TagEncapsulatedDocument); !bytes.Equal(got, []byte("%PDF-1.7")) {
		t.Errorf("document payload: got % x", got)
	}
}

func TestOddLengthPadding(t *testing.T) {
	tests := []struct {
		name string
		tag  Tag
		vr   string
		val  interface{}
		pad  byte
	}{
		{"UI pads with NUL", TagSOPInstanceUID, VR_UI, "1.2.3", 0x00},
		{"OB pads with NUL", TagEncapsulatedDocument, VR_OB, []byte("%PDF-1.4."), 0x00},
		{"LO pads with space", TagPatientID, VR_LO, "ABC", 0x20},
		{"PN pads with space", TagPatientName, VR_PN, "A^B^C", 0x20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := NewDataset()
			ds.AddElement(tt.tag, tt.vr, tt.val)
			encoded, err := ds.EncodeDataset()
			if err != nil {
				t.Fatalf("EncodeDataset failed: %v", err)
			}

			if len(encoded)%2 != 0 {
				t.Fatalf("encoded element has odd length %d", len(encoded))
			}
			if got := encoded[len(encoded)-1]; got != tt.pad {
				t.Errorf("pad byte: expected 0x%02x, got 0x%02x", tt.pad, got)
			}
		})
	}
}

func TestEvenLengthNotPadded(t *testing.T) {
	ds := NewDataset()
	ds.AddElement(TagModality, VR_CS, "DOC1")
	encoded, err := ds.EncodeDataset()
	if err != nil {
		t.Fatalf("EncodeDataset failed: %v", err)
	}

	length := binary.LittleEndian.Uint16(encoded[6:8])
	if length != 4 {
		t.Errorf("expected length 4, got %d", length)
	}
}

func TestEncodedTagOrdering(t *testing.T) {
	ds := NewDataset()
	ds.AddElement(TagEncapsulatedDocument, VR_OB, []byte("%PDF-1.4"))
	ds.AddElement(TagPatientName, VR_PN, "X^Y")
	ds.AddElement(TagSpecificCharacterSet, VR_CS, "ISO_IR 100")

	encoded, err := ds.EncodeDataset()
	if err != nil {
		t.Fatalf("EncodeDataset failed: %v", err)
	}

	var lastGroup, lastElement uint16
	offset := 0
	for offset+8 <= len(encoded) {
		group := binary.LittleEndian.Uint16(encoded[offset : offset+2])
		element := binary.LittleEndian.Uint16(encoded[offset+2 : offset+4])
		if group < lastGroup || (group == lastGroup && element < lastElement) {
			t.Fatalf("tag (%04x,%04x) out of order after (%04x,%04x)", group, element, lastGroup, lastElement)
		}
		lastGroup, lastElement = group, element

		vr := string(encoded[offset+4 : offset+6])
		if longVRs[vr] {
			length := binary.LittleEndian.Uint32(encoded[offset+8 : offset+12])
			offset += 12 + int(length)
		} else {
			length := binary.LittleEndian.Uint16(encoded[offset+6 : offset+8])
			offset += 8 + int(length)
		}
	}
}

func TestParseTruncatedValue(t *testing.T) {
	ds := NewDataset()
	ds.AddElement(TagPatientID, VR_LO, "PATIENT01")
	encoded, err := ds.EncodeDataset()
	if err != nil {
		t.Fatalf("EncodeDataset failed: %v", err)
	}

	if _, err := ParseDataset(encoded[:len(encoded)-2]); err == nil {
		t.Fatal("expected error for truncated value")
	}
}

func TestUnsupportedTransferSyntax(t *testing.T) {
	ds := NewDataset()
	ds.AddElement(TagModality, VR_CS, "DOC")

	if _, err := EncodeDatasetWithTransferSyntax(ds, "1.2.840.10008.1.2.4.50"); err == nil {
		t.Fatal("expected error for unsupported transfer syntax")
	}
	if _, err := ParseDatasetWithTransferSyntax(nil, "1.2.840.10008.1.2.4.50"); err == nil {
		t.Fatal("expected error for unsupported transfer syntax")
	}
}

func TestEncodeRejectsOversizedShortVRValue(t *testing.T) {
	// Short VRs carry a 16-bit length; a value over 65535 bytes must be
	// rejected, not wrapped into a length the receiver misparses.
	oversized := string(bytes.Repeat([]byte("A"), 0x10000+10))

	ds := NewDataset()
	ds.AddElement(TagStudyDescription, VR_LO, oversized)

	if _, err := ds.EncodeDataset(); err == nil {
		t.Fatal("expected error for oversized LO value")
	}
	if _, err := EncodeDatasetWithTransferSyntax(ds, TransferSyntaxExplicitVRLittleEndian); err == nil {
		t.Fatal("expected error for oversized LO value")
	}
}

func TestEncodeAcceptsLargeOBValue(t *testing.T) {
	// OB uses a 32-bit length, so payloads past the short-VR limit
	// round-trip intact.
	payload := bytes.Repeat([]byte{0xAB}, 0x10000+10)

	ds := NewDataset()
	ds.AddElement(TagEncapsulatedDocument, VR_OB, payload)

	encoded, err := ds.EncodeDataset()
	if err != nil {
		t.Fatalf("EncodeDataset failed: %v", err)
	}
	parsed, err := ParseDataset(encoded)
	if err != nil {
		t.Fatalf("ParseDataset failed: %v", err)
	}
	if !bytes.Equal(parsed.GetBytes(TagEncapsulatedDocument), payload) {
		t.Error("payload altered in round trip")
	}
}
