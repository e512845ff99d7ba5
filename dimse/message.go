// Package dimse implements the DIMSE command set encoding and the P-DATA-TF
// transport used to exchange C-STORE and C-ECHO messages.
package dimse

import (
	"encoding/binary"
	"strings"
)

// DIMSE command fields
const (
	CStoreRQ  uint16 = 0x0001
	CStoreRSP uint16 = 0x8001
	CEchoRQ   uint16 = 0x0030
	CEchoRSP  uint16 = 0x8030
)

// CommandDataSetType values
const (
	DataSetPresent uint16 = 0x0000
	NoDataSet      uint16 = 0x0101
)

// Priority values
const (
	PriorityMedium uint16 = 0x0000
	PriorityHigh   uint16 = 0x0001
	PriorityLow    uint16 = 0x0002
)

// Message represents a DIMSE command set.
type Message struct {
	CommandField              uint16
	MessageID                 uint16
	MessageIDBeingRespondedTo uint16
	Priority                  uint16
	CommandDataSetType        uint16
	Status                    uint16
	AffectedSOPClassUID       string
	AffectedSOPInstanceUID    string
}

// HasDataSet reports whether a dataset follows this command.
func (m *Message) HasDataSet() bool {
	return m.CommandDataSetType != NoDataSet
}

// IsResponse reports whether the command field is a response.
func (m *Message) IsResponse() bool {
	return m.CommandField&0x8000 != 0
}

// EncodeCommand serializes a command set using Implicit VR Little Endian,
// the mandated encoding for group 0x0000 elements. The group length is
// computed over every byte that follows it.
func EncodeCommand(msg *Message) []byte {
	buf := make([]byte, 0, 256)

	buf = appendImplicitElement(buf, 0x0000, 0x0000, make([]byte, 4))
	lengthPos := len(buf) - 4

	if msg.AffectedSOPClassUID != "" {
		buf = appendImplicitElement(buf, 0x0000, 0x0002, padUID(msg.AffectedSOPClassUID))
	}
	buf = appendImplicitElement(buf, 0x0000, 0x0100, uint16LE(msg.CommandField))
	if msg.IsResponse() {
		buf = appendImplicitElement(buf, 0x0000, 0x0120, uint16LE(msg.MessageIDBeingRespondedTo))
	} else {
		buf = appendImplicitElement(buf, 0x0000, 0x0110, uint16LE(msg.MessageID))
		if msg.CommandField == CStoreRQ {
			buf = appendImplicitElement(buf, 0x0000, 0x0700, uint16LE(msg.Priority))
		}
	}
	buf = appendImplicitElement(buf, 0x0000, 0x0800, uint16LE(msg.CommandDataSetType))
	if msg.IsResponse() {
		buf = appendImplicitElement(buf, 0x0000, 0x0900, uint16LE(msg.Status))
	}
	if msg.AffectedSOPInstanceUID != "" {
		buf = appendImplicitElement(buf, 0x0000, 0x1000, padUID(msg.AffectedSOPInstanceUID))
	}

	groupLength := uint32(len(buf) - lengthPos - 4)
	binary.LittleEndian.PutUint32(buf[lengthPos:lengthPos+4], groupLength)
	return buf
}

// DecodeCommand parses an Implicit VR Little Endian command set.
func DecodeCommand(data []byte) (*Message, error) {
	msg := &Message{CommandDataSetType: NoDataSet}

	offset := 0
	for offset+8 <= len(data) {
		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		length := binary.LittleEndian.Uint32(data[offset+4 : offset+8])

		if offset+8+int(length) > len(data) {
			break
		}
		value := data[offset+8 : offset+8+int(length)]

		if group == 0x0000 {
			switch element {
			case 0x0002:
				msg.AffectedSOPClassUID = trimUID(value)
			case 0x0100:
				msg.CommandField = uint16Value(value)
			case 0x0110:
				msg.MessageID = uint16Value(value)
			case 0x0120:
				msg.MessageIDBeingRespondedTo = uint16Value(value)
			case 0x0700:
				msg.Priority = uint16Value(value)
			case 0x0800:
				msg.CommandDataSetType = uint16Value(value)
			case 0x0900:
				msg.Status = uint16Value(value)
			case 0x1000:
				msg.AffectedSOPInstanceUID = trimUID(value)
			}
		}

		offset += 8 + int(length)
	}

	return msg, nil
}

func appendImplicitElement(buf []byte, group, element uint16, value []byte) []byte {
	buf = append(buf, byte(group), byte(group>>8))
	buf = append(buf, byte(element), byte(element>>8))
	length := uint32(len(value))
	buf = append(buf, byte(length), byte(length>>8), byte(length>>16), byte(length>>24))
	return append(buf, value...)
}

func padUID(uid string) []byte {
	b := []byte(uid)
	if len(b)%2 == 1 {
		b = append(b, 0x00)
	}
	return b
}

func trimUID(value []byte) string {
	return strings.TrimRight(string(value), "\x00 ")
}

func uint16LE(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func uint16Value(value []byte) uint16 {
	if len(value) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(value[:2])
}
