// Package errors defines the error types reported by the association,
// DIMSE and upload layers.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classifying failures with errors.Is.
var (
	// ErrInvalidDocument marks a payload that is not a usable PDF.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidMetadata marks metadata that cannot form a valid object.
	ErrInvalidMetadata = errors.New("invalid metadata")

	// ErrAssociationRejected marks an A-ASSOCIATE-RJ from the peer.
	ErrAssociationRejected = errors.New("association rejected")

	// ErrNoPresentationContext marks an association in which the peer
	// accepted none of the proposed presentation contexts.
	ErrNoPresentationContext = errors.New("no presentation context accepted")

	// ErrAssociationLost marks an association that failed mid-exchange.
	ErrAssociationLost = errors.New("association lost")
)

// Association reject sources (A-ASSOCIATE-RJ).
const (
	RejectSourceServiceUser     byte = 1
	RejectSourceServiceProvider byte = 2
	RejectSourceProviderPresent byte = 3
)

// Association reject reasons for source 1 (service user).
const (
	RejectReasonNoReason             byte = 1
	RejectReasonAppContextNotSupport byte = 2
	RejectReasonCallingAENotRecog    byte = 3
	RejectReasonCalledAENotRecog     byte = 7
)

// AssociationError describes an association rejected by the peer.
type AssociationError struct {
	Result byte // 1 = rejected-permanent, 2 = rejected-transient
	Source byte
	Reason byte
}

func (e *AssociationError) Error() string {
	return fmt.Sprintf("association rejected (%s): source=%s reason=%s",
		e.resultString(), e.SourceString(), e.ReasonString())
}

// Unwrap allows errors.Is(err, ErrAssociationRejected).
func (e *AssociationError) Unwrap() error {
	return ErrAssociationRejected
}

func (e *AssociationError) resultString() string {
	switch e.Result {
	case 1:
		return "permanent"
	case 2:
		return "transient"
	default:
		return fmt.Sprintf("result %d", e.Result)
	}
}

// SourceString names the rejecting party.
func (e *AssociationError) SourceString() string {
	switch e.Source {
	case RejectSourceServiceUser:
		return "service-user"
	case RejectSourceServiceProvider:
		return "service-provider-acse"
	case RejectSourceProviderPresent:
		return "service-provider-presentation"
	default:
		return fmt.Sprintf("%d", e.Source)
	}
}

// ReasonString names the reject reason for service-user rejects; other
// sources report the numeric code.
func (e *AssociationError) ReasonString() string {
	if e.Source == RejectSourceServiceUser {
		switch e.Reason {
		case RejectReasonNoReason:
			return "no reason given"
		case RejectReasonAppContextNotSupport:
			return "application context not supported"
		case RejectReasonCallingAENotRecog:
			return "calling AE title not recognized"
		case RejectReasonCalledAENotRecog:
			return "called AE title not recognized"
		}
	}
	return fmt.Sprintf("%d", e.Reason)
}

// NetworkError wraps a transport failure with the operation that hit it.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AbortError describes an A-ABORT received from the peer.
type AbortError struct {
	Source byte
	Reason byte
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("association aborted by peer: source=%d reason=%d", e.Source, e.Reason)
}

func (e *AbortError) Unwrap() error {
	return ErrAssociationLost
}

// DIMSEError describes a non-success DIMSE status returned by the peer.
type DIMSEError struct {
	Operation string
	Status    uint16
}

func (e *DIMSEError) Error() string {
	return fmt.Sprintf("%s failed with status 0x%04X", e.Operation, e.Status)
}
