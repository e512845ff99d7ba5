package dimse

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	dcmerr "github.com/Algernon72/PDF2PACS/errors"
	"github.com/Algernon72/PDF2PACS/pdu"
)

// ErrReleaseRequested is returned by ReadMessage when the peer sends an
// A-RELEASE-RQ instead of a DIMSE message. The caller should answer with
// A-RELEASE-RP and close the connection.
var ErrReleaseRequested = errors.New("release requested by peer")

// Message control header bits in a PDV.
const (
	pdvCommand      = 0x01
	pdvLastFragment = 0x02
)

// WriteMessage sends a DIMSE command and optional dataset as one or more
// P-DATA-TF PDUs on the given presentation context, fragmenting to honor
// the peer's maximum PDU length.
func WriteMessage(w io.Writer, presContextID byte, maxPDULength uint32, command *Message, dataset []byte) error {
	commandData := EncodeCommand(command)
	if err := writePDVs(w, presContextID, maxPDULength, commandData, true); err != nil {
		return err
	}
	if len(dataset) > 0 {
		if err := writePDVs(w, presContextID, maxPDULength, dataset, false); err != nil {
			return err
		}
	}
	return nil
}

func writePDVs(w io.Writer, presContextID byte, maxPDULength uint32, data []byte, isCommand bool) error {
	// PDU header (6) plus PDV length, context ID and control header (6).
	maxPDVData := int(maxPDULength) - 12
	if maxPDVData < 1 {
		return fmt.Errorf("maximum PDU length %d too small", maxPDULength)
	}

	offset := 0
	for offset < len(data) {
		chunkSize := len(data) - offset
		last := true
		if chunkSize > maxPDVData {
			chunkSize = maxPDVData
			last = false
		}

		pdv := make([]byte, 0, 6+chunkSize)
		pdvLength := make([]byte, 4)
		binary.BigEndian.PutUint32(pdvLength, uint32(chunkSize+2))
		pdv = append(pdv, pdvLength...)
		pdv = append(pdv, presContextID)

		control := byte(0)
		if isCommand {
			control |= pdvCommand
		}
		if last {
			control |= pdvLastFragment
		}
		pdv = append(pdv, control)
		pdv = append(pdv, data[offset:offset+chunkSize]...)

		if err := pdu.WritePDU(w, pdu.TypePDataTF, pdv); err != nil {
			return err
		}
		offset += chunkSize
	}
	return nil
}

// ReadMessage reads PDUs until a complete DIMSE message (command and, if
// announced, dataset) has been reassembled, returning the presentation
// context it arrived on. An A-ABORT from the peer is returned as an
// AbortError; an A-RELEASE-RQ as ErrReleaseRequested.
func ReadMessage(r io.Reader) (*Message, byte, []byte, error) {
	var commandData, datasetData []byte
	var msg *Message
	var presContextID byte
	commandComplete := false
	datasetComplete := false

	for {
		p, err := pdu.ReadPDU(r)
		if err != nil {
			return nil, 0, nil, err
		}

		switch p.Type {
		case pdu.TypePDataTF:
			offset := 0
			for offset < len(p.Data) {
				if offset+6 > len(p.Data) {
					return nil, 0, nil, fmt.Errorf("malformed PDV")
				}
				pdvLength := binary.BigEndian.Uint32(p.Data[offset : offset+4])
				end := offset + 4 + int(pdvLength)
				if pdvLength < 2 || end > len(p.Data) {
					return nil, 0, nil, fmt.Errorf("PDV length exceeds PDU payload")
				}

				presContextID = p.Data[offset+4]
				control := p.Data[offset+5]
				value := p.Data[offset+6 : end]

				if control&pdvCommand != 0 {
					commandData = append(commandData, value...)
					if control&pdvLastFragment != 0 {
						msg, err = DecodeCommand(commandData)
						if err != nil {
							return nil, 0, nil, fmt.Errorf("failed to decode command: %w", err)
						}
						commandComplete = true
						if !msg.HasDataSet() {
							datasetComplete = true
						}
					}
				} else {
					datasetData = append(datasetData, value...)
					if control&pdvLastFragment != 0 {
						datasetComplete = true
					}
				}

				offset = end
			}

		case pdu.TypeAbort:
			source, reason := pdu.ParseAbort(p.Data)
			return nil, 0, nil, &dcmerr.AbortError{Source: source, Reason: reason}

		case pdu.TypeReleaseRQ:
			return nil, 0, nil, ErrReleaseRequested

		default:
			return nil, 0, nil, fmt.Errorf("unexpected PDU type 0x%02x", p.Type)
		}

		if commandComplete && datasetComplete {
			return msg, presContextID, datasetData, nil
		}
	}
}
