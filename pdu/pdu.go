// Package pdu implements the DICOM Upper Layer Protocol data units:
// framing plus the association negotiation, release and abort PDUs.
package pdu

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PDU types
const (
	TypeAssociateRQ = 0x01
	TypeAssociateAC = 0x02
	TypeAssociateRJ = 0x03
	TypePDataTF     = 0x04
	TypeReleaseRQ   = 0x05
	TypeReleaseRP   = 0x06
	TypeAbort       = 0x07
)

// maxPDUSize bounds what ReadPDU will allocate for a single PDU. DICOM
// peers negotiate far smaller values; anything beyond this is a framing
// error or a hostile peer.
const maxPDUSize = 64 * 1024 * 1024

// PDU represents one Protocol Data Unit.
type PDU struct {
	Type byte
	Data []byte
}

// ReadPDU reads a complete PDU from r. The 6-byte header carries the PDU
// type, a reserved byte and a big-endian 32-bit payload length.
func ReadPDU(r io.Reader) (*PDU, error) {
	header := make([]byte, 6)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	pduType := header[0]
	pduLength := binary.BigEndian.Uint32(header[2:6])
	if pduLength > maxPDUSize {
		return nil, fmt.Errorf("PDU length %d exceeds limit", pduLength)
	}

	data := make([]byte, pduLength)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read PDU data: %w", err)
	}

	return &PDU{Type: pduType, Data: data}, nil
}

// WritePDU frames data as a PDU of the given type and writes it to w in a
// single call, so a PDU is never interleaved with another write.
func WritePDU(w io.Writer, pduType byte, data []byte) error {
	buf := make([]byte, 6, 6+len(data))
	buf[0] = pduType
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(data)))
	buf = append(buf, data...)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write PDU: %w", err)
	}
	return nil
}

// ReleaseData returns the payload of an A-RELEASE-RQ or A-RELEASE-RP PDU
// (four reserved bytes).
func ReleaseData() []byte {
	return make([]byte, 4)
}

// AbortData returns the payload of an A-ABORT PDU.
func AbortData(source, reason byte) []byte {
	return []byte{0x00, 0x00, source, reason}
}

// ParseAbort extracts source and reason from an A-ABORT payload.
func ParseAbort(data []byte) (source, reason byte) {
	if len(data) >= 4 {
		return data[2], data[3]
	}
	return 0, 0
}
