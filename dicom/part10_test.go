package dicom

import (
	"bytes"
	"testing"

	"github.com/Algernon72/PDF2PACS/types"
)

func buildTestFile(t *testing.T, transferSyntax string) []byte {
	t.Helper()
	ds := NewDataset()
	ds.AddElement(TagSOPClassUID, VR_UI, types.EncapsulatedPDFStorage)
	ds.AddElement(TagSOPInstanceUID, VR_UI, "1.2.3.4.5")
	ds.AddElement(TagPatientName, VR_PN, "BIANCHI^ANNA")

	file, err := EncodePart10(FileMeta{
		MediaStorageSOPClassUID:    types.EncapsulatedPDFStorage,
		MediaStorageSOPInstanceUID: "1.2.3.4.5",
		TransferSyntaxUID:          transferSyntax,
		ImplementationClassUID:     ImplementationClassUID,
		ImplementationVersionName:  ImplementationVersionName,
	}, ds)
	if err != nil {
		t.Fatalf("EncodePart10 failed: %v", err)
	}
	return file
}

func TestEncodePart10Layout(t *testing.T) {
	file := buildTestFile(t, types.ExplicitVRLittleEndian)

	if !HasPart10Header(file) {
		t.Fatal("missing Part 10 header")
	}
	for i := 0; i < 128; i++ {
		if file[i] != 0 {
			t.Fatalf("preamble byte %d is 0x%02x, want 0x00", i, file[i])
		}
	}
	if string(file[128:132]) != "DICM" {
		t.Errorf("prefix: got %q", string(file[128:132]))
	}

	// First element after DICM must be the group length (0002,0000) UL.
	if !bytes.Equal(file[132:136], []byte{0x02, 0x00, 0x00, 0x00}) {
		t.Errorf("first meta element is not group length: % x", file[132:136])
	}
	if string(file[136:138]) != VR_UL {
		t.Errorf("group length VR: got %q", string(file[136:138]))
	}
}

func TestStripPart10HeaderRoundTrip(t *testing.T) {
	file := buildTestFile(t, types.ExplicitVRLittleEndian)

	dataset, transferSyntax, err := StripPart10Header(file)
	if err != nil {
		t.Fatalf("StripPart10Header failed: %v", err)
	}
	if transferSyntax != types.ExplicitVRLittleEndian {
		t.Errorf("transfer syntax: got %q", transferSyntax)
	}

	parsed, err := ParseDatasetWithTransferSyntax(dataset, transferSyntax)
	if err != nil {
		t.Fatalf("parse stripped dataset: %v", err)
	}
	if got := parsed.GetString(TagPatientName); got != "BIANCHI^ANNA" {
		t.Errorf("patient name: got %q", got)
	}
	if _, exists := parsed.GetElement(TagTransferSyntaxUID); exists {
		t.Error("file meta leaked into stripped dataset")
	}
}

func TestStripPart10HeaderImplicitDataset(t *testing.T) {
	file := buildTestFile(t, types.ImplicitVRLittleEndian)

	dataset, transferSyntax, err := StripPart10Header(file)
	if err != nil {
		t.Fatalf("StripPart10Header failed: %v", err)
	}
	if transferSyntax != types.ImplicitVRLittleEndian {
		t.Errorf("transfer syntax: got %q", transferSyntax)
	}

	parsed, err := ParseDatasetWithTransferSyntax(dataset, transferSyntax)
	if err != nil {
		t.Fatalf("parse stripped dataset: %v", err)
	}
	if got := parsed.GetString(TagSOPInstanceUID); got != "1.2.3.4.5" {
		t.Errorf("SOP instance UID: got %q", got)
	}
}

func TestStripPart10HeaderRejectsGarbage(t *testing.T) {
	if _, _, err := StripPart10Header([]byte("not a dicom file")); err == nil {
		t.Fatal("expected error for non-DICOM input")
	}
	if HasPart10Header([]byte("short")) {
		t.Error("HasPart10Header accepted short input")
	}
}
