package dicom

import (
	"bytes"
	"fmt"

	dcmerr "github.com/Algernon72/PDF2PACS/errors"
	"github.com/Algernon72/PDF2PACS/types"
)

var pdfMagic = []byte("%PDF-")

// Implementation identity written into file meta information and announced
// during association negotiation.
const (
	ImplementationClassUID    = "1.2.826.0.1.3680043.9.9999.2"
	ImplementationVersionName = "ModalityPDFUploa"
)

// EncapsulatedObject is a complete Encapsulated PDF Storage instance: the
// structured dataset plus enough context to serialize it for the wire or
// for a Part 10 file.
type EncapsulatedObject struct {
	dataset        *Dataset
	sopInstanceUID string
}

// EncapsulatePDF wraps a PDF document and its resolved metadata into an
// Encapsulated PDF Storage instance. The document must carry the %PDF-
// magic bytes.
func EncapsulatePDF(pdf []byte, meta *ObjectMetadata) (*EncapsulatedObject, error) {
	if len(pdf) < len(pdfMagic) || !bytes.HasPrefix(pdf, pdfMagic) {
		return nil, fmt.Errorf("%w: missing %%PDF- header", dcmerr.ErrInvalidDocument)
	}
	if meta == nil || meta.SOPInstanceUID == "" {
		return nil, fmt.Errorf("%w: missing SOP instance UID", dcmerr.ErrInvalidMetadata)
	}

	ds := NewDataset()
	ds.AddElement(TagSpecificCharacterSet, VR_CS, "ISO_IR 100")
	ds.AddElement(TagSOPClassUID, VR_UI, types.EncapsulatedPDFStorage)
	ds.AddElement(TagSOPInstanceUID, VR_UI, meta.SOPInstanceUID)
	ds.AddElement(TagModality, VR_CS, "DOC")
	ds.AddElement(TagBurnedInAnnotation, VR_CS, "NO")

	ds.AddElement(TagPatientName, VR_PN, meta.PatientName)
	ds.AddElement(TagPatientID, VR_LO, meta.PatientID)
	if meta.PatientBirthDate != "" {
		ds.AddElement(TagPatientBirthDate, VR_DA, meta.PatientBirthDate)
	}
	if meta.PatientSex != "" {
		ds.AddElement(TagPatientSex, VR_CS, meta.PatientSex)
	}

	ds.AddElement(TagStudyDate, VR_DA, meta.StudyDate)
	ds.AddElement(TagStudyTime, VR_TM, meta.StudyTime)
	ds.AddElement(TagContentDate, VR_DA, meta.StudyDate)
	ds.AddElement(TagContentTime, VR_TM, meta.StudyTime)
	ds.AddElement(TagInstanceCreationDate, VR_DA, meta.StudyDate)
	ds.AddElement(TagInstanceCreationTime, VR_TM, meta.StudyTime)

	ds.AddElement(TagStudyDescription, VR_LO, meta.StudyDescription)
	ds.AddElement(TagSeriesDescription, VR_LO, meta.SeriesDescription)
	ds.AddElement(TagReferringPhysicianName, VR_PN, meta.ReferringPhysicianName)
	ds.AddElement(TagAccessionNumber, VR_SH, meta.AccessionNumber)

	ds.AddElement(TagStudyInstanceUID, VR_UI, meta.StudyInstanceUID)
	ds.AddElement(TagSeriesInstanceUID, VR_UI, meta.SeriesInstanceUID)
	ds.AddElement(TagSeriesNumber, VR_IS, meta.SeriesNumber)
	ds.AddElement(TagInstanceNumber, VR_IS, meta.InstanceNumber)

	if meta.DocumentTitle != "" {
		ds.AddElement(TagDocumentTitle, VR_ST, meta.DocumentTitle)
	}
	ds.AddElement(TagMIMETypeOfEncapDoc, VR_LO, "application/pdf")
	ds.AddElement(TagEncapsulatedDocument, VR_OB, pdf)

	return &EncapsulatedObject{
		dataset:        ds,
		sopInstanceUID: meta.SOPInstanceUID,
	}, nil
}

// SOPClassUID returns the storage SOP class of the object.
func (o *EncapsulatedObject) SOPClassUID() string {
	return types.EncapsulatedPDFStorage
}

// SOPInstanceUID returns the instance UID assigned at encapsulation.
func (o *EncapsulatedObject) SOPInstanceUID() string {
	return o.sopInstanceUID
}

// Dataset exposes the structured dataset.
func (o *EncapsulatedObject) Dataset() *Dataset {
	return o.dataset
}

// DatasetBytes serializes the dataset in the given transfer syntax, as
// sent inside a C-STORE.
func (o *EncapsulatedObject) DatasetBytes(transferSyntaxUID string) ([]byte, error) {
	return EncodeDatasetWithTransferSyntax(o.dataset, transferSyntaxUID)
}

// FileBytes serializes the object as a Part 10 file in Explicit VR Little
// Endian, suitable for writing to disk.
func (o *EncapsulatedObject) FileBytes() ([]byte, error) {
	return EncodePart10(FileMeta{
		MediaStorageSOPClassUID:    o.SOPClassUID(),
		MediaStorageSOPInstanceUID: o.sopInstanceUID,
		TransferSyntaxUID:          types.ExplicitVRLittleEndian,
		ImplementationClassUID:     ImplementationClassUID,
		ImplementationVersionName:  ImplementationVersionName,
	}, o.dataset)
}
