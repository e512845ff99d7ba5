package client

import (
	"errors"
	"fmt"

	"github.com/Algernon72/PDF2PACS/dicom"
	"github.com/Algernon72/PDF2PACS/dimse"
	dcmerr "github.com/Algernon72/PDF2PACS/errors"
	"github.com/Algernon72/PDF2PACS/types"
)

// CStoreResponse carries the outcome of a C-STORE exchange.
type CStoreResponse struct {
	Status         uint16
	MessageID      uint16
	SOPInstanceUID string
}

// SendCStore transmits an encapsulated object over the storage
// presentation context and waits for the C-STORE-RSP. The dataset is
// encoded in whichever transfer syntax the peer accepted.
func (a *Association) SendCStore(obj *dicom.EncapsulatedObject) (*CStoreResponse, error) {
	pc, err := a.GetPresentationContext(obj.SOPClassUID())
	if err != nil {
		return nil, err
	}

	dataset, err := obj.DatasetBytes(pc.TransferSyntax)
	if err != nil {
		return nil, fmt.Errorf("failed to encode dataset: %w", err)
	}

	messageID := a.messageID()
	command := &dimse.Message{
		CommandField:           dimse.CStoreRQ,
		MessageID:              messageID,
		Priority:               dimse.PriorityMedium,
		CommandDataSetType:     dimse.DataSetPresent,
		AffectedSOPClassUID:    obj.SOPClassUID(),
		AffectedSOPInstanceUID: obj.SOPInstanceUID(),
	}

	if err := a.refreshWriteDeadline(); err != nil {
		return nil, err
	}
	if err := dimse.WriteMessage(a.conn, pc.ID, a.maxPDULength, command, dataset); err != nil {
		a.aborted = true
		return nil, &dcmerr.NetworkError{Op: "C-STORE", Err: fmt.Errorf("%w: %v", dcmerr.ErrAssociationLost, err)}
	}

	a.logger.Debug("sent C-STORE-RQ",
		"sop_instance", obj.SOPInstanceUID(),
		"transfer_syntax", pc.TransferSyntax,
		"dataset_size", len(dataset))

	resp, err := a.receiveResponse(dimse.CStoreRSP, "C-STORE")
	if err != nil {
		return nil, err
	}

	return &CStoreResponse{
		Status:         resp.Status,
		MessageID:      resp.MessageIDBeingRespondedTo,
		SOPInstanceUID: resp.AffectedSOPInstanceUID,
	}, nil
}

// SendCEcho verifies the association with a C-ECHO exchange. The
// Verification context must have been proposed and accepted.
func (a *Association) SendCEcho() error {
	pc, err := a.GetPresentationContext(types.VerificationSOPClass)
	if err != nil {
		return err
	}

	command := &dimse.Message{
		CommandField:        dimse.CEchoRQ,
		MessageID:           a.messageID(),
		CommandDataSetType:  dimse.NoDataSet,
		AffectedSOPClassUID: types.VerificationSOPClass,
	}

	if err := a.refreshWriteDeadline(); err != nil {
		return err
	}
	if err := dimse.WriteMessage(a.conn, pc.ID, a.maxPDULength, command, nil); err != nil {
		a.aborted = true
		return &dcmerr.NetworkError{Op: "C-ECHO", Err: err}
	}

	resp, err := a.receiveResponse(dimse.CEchoRSP, "C-ECHO")
	if err != nil {
		return err
	}
	if !dimse.IsSuccess(resp.Status) {
		return &dcmerr.DIMSEError{Operation: "C-ECHO", Status: resp.Status}
	}
	return nil
}

func (a *Association) receiveResponse(expected uint16, op string) (*dimse.Message, error) {
	if err := a.refreshReadDeadline(); err != nil {
		return nil, err
	}

	msg, _, _, err := dimse.ReadMessage(a.conn)
	if err != nil {
		var abortErr *dcmerr.AbortError
		if errors.As(err, &abortErr) {
			a.aborted = true
			return nil, err
		}
		a.aborted = true
		return nil, &dcmerr.NetworkError{Op: op, Err: fmt.Errorf("%w: %v", dcmerr.ErrAssociationLost, err)}
	}

	if msg.CommandField != expected {
		return nil, fmt.Errorf("unexpected command 0x%04x in %s response", msg.CommandField, op)
	}
	return msg, nil
}
