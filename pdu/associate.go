package pdu

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/Algernon72/PDF2PACS/types"
)

// Variable item types inside A-ASSOCIATE PDUs.
const (
	itemApplicationContext = 0x10
	itemPresentationCtxRQ  = 0x20
	itemPresentationCtxAC  = 0x21
	subItemAbstractSyntax  = 0x30
	subItemTransferSyntax  = 0x40
	itemUserInformation    = 0x50
	subItemMaxLength       = 0x51
	subItemImplClassUID    = 0x52
	subItemImplVersionName = 0x55
)

// Presentation context negotiation results (A-ASSOCIATE-AC).
const (
	ContextAccepted             byte = 0x00
	ContextUserRejection        byte = 0x01
	ContextNoReason             byte = 0x02
	ContextAbstractSyntaxReject byte = 0x03
	ContextTransferSyntaxReject byte = 0x04
)

// ProposedContext is one presentation context offered in an A-ASSOCIATE-RQ.
type ProposedContext struct {
	ID               byte
	AbstractSyntax   string
	TransferSyntaxes []string
}

// ResultContext is one presentation context answered in an A-ASSOCIATE-AC.
type ResultContext struct {
	ID             byte
	Result         byte
	TransferSyntax string
}

// AssociateRQ carries the negotiable content of an A-ASSOCIATE-RQ PDU.
type AssociateRQ struct {
	CalledAETitle             string
	CallingAETitle            string
	MaxPDULength              uint32
	ImplementationClassUID    string
	ImplementationVersionName string
	Contexts                  []ProposedContext
}

// AssociateAC carries the negotiable content of an A-ASSOCIATE-AC PDU.
type AssociateAC struct {
	CalledAETitle             string
	CallingAETitle            string
	MaxPDULength              uint32
	ImplementationClassUID    string
	ImplementationVersionName string
	Contexts                  []ResultContext
}

// AssociateRJ carries the content of an A-ASSOCIATE-RJ PDU.
type AssociateRJ struct {
	Result byte // 1 = rejected-permanent, 2 = rejected-transient
	Source byte
	Reason byte
}

// Encode serializes the A-ASSOCIATE-RQ payload (without the PDU header).
func (rq *AssociateRQ) Encode() []byte {
	buf := encodeFixedFields(rq.CalledAETitle, rq.CallingAETitle)

	buf = appendItem(buf, itemApplicationContext, []byte(types.ApplicationContextUID))

	for _, ctx := range rq.Contexts {
		var body []byte
		body = append(body, ctx.ID, 0x00, 0x00, 0x00)
		body = appendItem(body, subItemAbstractSyntax, []byte(ctx.AbstractSyntax))
		for _, ts := range ctx.TransferSyntaxes {
			body = appendItem(body, subItemTransferSyntax, []byte(ts))
		}
		buf = appendItem(buf, itemPresentationCtxRQ, body)
	}

	buf = append(buf, encodeUserInformation(rq.MaxPDULength, rq.ImplementationClassUID, rq.ImplementationVersionName)...)
	return buf
}

// Encode serializes the A-ASSOCIATE-AC payload (without the PDU header).
// Rejected contexts are answered with their result code and no transfer
// syntax sub-item, per DICOM Part 8, Section 9.3.3.
func (ac *AssociateAC) Encode() []byte {
	buf := encodeFixedFields(ac.CalledAETitle, ac.CallingAETitle)

	buf = appendItem(buf, itemApplicationContext, []byte(types.ApplicationContextUID))

	for _, ctx := range ac.Contexts {
		var body []byte
		body = append(body, ctx.ID, ctx.Result, 0x00, 0x00)
		if ctx.Result == ContextAccepted {
			body = appendItem(body, subItemTransferSyntax, []byte(ctx.TransferSyntax))
		}
		buf = appendItem(buf, itemPresentationCtxAC, body)
	}

	buf = append(buf, encodeUserInformation(ac.MaxPDULength, ac.ImplementationClassUID, ac.ImplementationVersionName)...)
	return buf
}

// Encode serializes the A-ASSOCIATE-RJ payload.
func (rj *AssociateRJ) Encode() []byte {
	return []byte{0x00, rj.Result, rj.Source, rj.Reason}
}

// ParseAssociateRJ decodes an A-ASSOCIATE-RJ payload.
func ParseAssociateRJ(data []byte) (*AssociateRJ, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("A-ASSOCIATE-RJ too short: %d bytes", len(data))
	}
	return &AssociateRJ{Result: data[1], Source: data[2], Reason: data[3]}, nil
}

// ParseAssociateRQ decodes an A-ASSOCIATE-RQ payload.
func ParseAssociateRQ(data []byte) (*AssociateRQ, error) {
	called, calling, items, err := parseFixedFields(data)
	if err != nil {
		return nil, err
	}

	rq := &AssociateRQ{
		CalledAETitle:  called,
		CallingAETitle: calling,
		MaxPDULength:   16384,
	}

	err = forEachItem(items, func(itemType byte, itemData []byte) error {
		switch itemType {
		case itemPresentationCtxRQ:
			ctx, err := parseProposedContext(itemData)
			if err != nil {
				return err
			}
			rq.Contexts = append(rq.Contexts, *ctx)
		case itemUserInformation:
			maxLen, classUID, version := parseUserInformation(itemData)
			if maxLen > 0 {
				rq.MaxPDULength = maxLen
			}
			rq.ImplementationClassUID = classUID
			rq.ImplementationVersionName = version
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rq, nil
}

// ParseAssociateAC decodes an A-ASSOCIATE-AC payload.
func ParseAssociateAC(data []byte) (*AssociateAC, error) {
	called, calling, items, err := parseFixedFields(data)
	if err != nil {
		return nil, err
	}

	ac := &AssociateAC{
		CalledAETitle:  called,
		CallingAETitle: calling,
		MaxPDULength:   16384,
	}

	err = forEachItem(items, func(itemType byte, itemData []byte) error {
		switch itemType {
		case itemPresentationCtxAC:
			if len(itemData) < 4 {
				return fmt.Errorf("presentation context reply too short")
			}
			ctx := ResultContext{ID: itemData[0], Result: itemData[1]}
			err := forEachItem(itemData[4:], func(subType byte, subData []byte) error {
				if subType == subItemTransferSyntax {
					ctx.TransferSyntax = normalizeUID(subData)
				}
				return nil
			})
			if err != nil {
				return err
			}
			ac.Contexts = append(ac.Contexts, ctx)
		case itemUserInformation:
			maxLen, classUID, version := parseUserInformation(itemData)
			if maxLen > 0 {
				ac.MaxPDULength = maxLen
			}
			ac.ImplementationClassUID = classUID
			ac.ImplementationVersionName = version
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ac, nil
}

// encodeFixedFields builds the 68-byte fixed part shared by RQ and AC:
// protocol version, reserved bytes and the two space-padded AE titles.
func encodeFixedFields(calledAE, callingAE string) []byte {
	buf := make([]byte, 68)
	binary.BigEndian.PutUint16(buf[0:2], 0x0001)
	copy(buf[4:20], padAETitle(calledAE))
	copy(buf[20:36], padAETitle(callingAE))
	return buf
}

func parseFixedFields(data []byte) (calledAE, callingAE string, items []byte, err error) {
	if len(data) < 68 {
		return "", "", nil, fmt.Errorf("associate PDU too short: %d bytes", len(data))
	}
	calledAE = trimAETitle(data[4:20])
	callingAE = trimAETitle(data[20:36])
	return calledAE, callingAE, data[68:], nil
}

func encodeUserInformation(maxPDULength uint32, implClassUID, implVersionName string) []byte {
	var body []byte

	maxLen := make([]byte, 4)
	binary.BigEndian.PutUint32(maxLen, maxPDULength)
	body = appendItem(body, subItemMaxLength, maxLen)

	if implClassUID != "" {
		body = appendItem(body, subItemImplClassUID, []byte(implClassUID))
	}
	if implVersionName != "" {
		body = appendItem(body, subItemImplVersionName, []byte(implVersionName))
	}

	return appendItem(nil, itemUserInformation, body)
}

func parseUserInformation(data []byte) (maxPDULength uint32, implClassUID, implVersionName string) {
	_ = forEachItem(data, func(subType byte, subData []byte) error {
		switch subType {
		case subItemMaxLength:
			if len(subData) == 4 {
				maxPDULength = binary.BigEndian.Uint32(subData)
			}
		case subItemImplClassUID:
			implClassUID = normalizeUID(subData)
		case subItemImplVersionName:
			implVersionName = strings.TrimRight(string(subData), "\x00 ")
		}
		return nil
	})
	return maxPDULength, implClassUID, implVersionName
}

func parseProposedContext(data []byte) (*ProposedContext, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("presentation context too short: %d bytes", len(data))
	}

	ctx := &ProposedContext{ID: data[0]}
	err := forEachItem(data[4:], func(subType byte, subData []byte) error {
		switch subType {
		case subItemAbstractSyntax:
			ctx.AbstractSyntax = normalizeUID(subData)
		case subItemTransferSyntax:
			ctx.TransferSyntaxes = append(ctx.TransferSyntaxes, normalizeUID(subData))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if ctx.AbstractSyntax == "" {
		return nil, fmt.Errorf("presentation context %d missing abstract syntax", ctx.ID)
	}
	return ctx, nil
}

// forEachItem walks a sequence of TLV items (type, reserved, 16-bit
// big-endian length, value) and calls fn for each.
func forEachItem(data []byte, fn func(itemType byte, itemData []byte) error) error {
	offset := 0
	for offset+4 <= len(data) {
		itemType := data[offset]
		itemLength := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		valueStart := offset + 4
		valueEnd := valueStart + int(itemLength)
		if valueEnd > len(data) {
			return fmt.Errorf("item 0x%02x exceeds enclosing length", itemType)
		}
		if err := fn(itemType, data[valueStart:valueEnd]); err != nil {
			return err
		}
		offset = valueEnd
	}
	return nil
}

func appendItem(buf []byte, itemType byte, value []byte) []byte {
	buf = append(buf, itemType, 0x00)
	length := make([]byte, 2)
	binary.BigEndian.PutUint16(length, uint16(len(value)))
	buf = append(buf, length...)
	return append(buf, value...)
}

func padAETitle(title string) []byte {
	if len(title) > 16 {
		title = title[:16]
	}
	return []byte(fmt.Sprintf("%-16s", title))
}

func trimAETitle(raw []byte) string {
	title := string(raw)
	if idx := strings.IndexByte(title, 0); idx != -1 {
		title = title[:idx]
	}
	return strings.TrimSpace(title)
}

func normalizeUID(raw []byte) string {
	return strings.TrimRight(string(raw), "\x00 ")
}
