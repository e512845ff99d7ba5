// Package client implements the SCU side: association negotiation and the
// C-STORE and C-ECHO service users.
package client

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Algernon72/PDF2PACS/dicom"
	dcmerr "github.com/Algernon72/PDF2PACS/errors"
	"github.com/Algernon72/PDF2PACS/pdu"
	"github.com/Algernon72/PDF2PACS/types"
)

// Presentation context IDs proposed by this client. Odd values only, per
// DICOM Part 8.
const (
	ctxIDStorage      byte = 1
	ctxIDVerification byte = 3
)

// PresentationContext holds one negotiated presentation context.
type PresentationContext struct {
	ID             byte
	AbstractSyntax string
	TransferSyntax string
	Accepted       bool
}

// Config holds client configuration
type Config struct {
	CallingAETitle            string
	CalledAETitle             string
	MaxPDULength              uint32
	ConnectTimeout            time.Duration // Timeout for establishing connection (default: 30s)
	ReadTimeout               time.Duration // Timeout for read operations (default: 60s)
	WriteTimeout              time.Duration // Timeout for write operations (default: 60s)
	Logger                    *slog.Logger  // Logger for the association (default: slog.Default())
	PreferredTransferSyntaxes []string      // Transfer syntaxes to propose (default: Explicit VR, Implicit VR)
	ProposeVerification       bool          // Also propose the Verification SOP class for C-ECHO
}

// Association represents a client-side DICOM association
type Association struct {
	conn             net.Conn
	config           Config
	logger           *slog.Logger
	maxPDULength     uint32 // peer's announced maximum, bounds what we send
	presentationCtxs map[byte]*PresentationContext
	nextMessageID    uint16

	closeOnce sync.Once
	aborted   bool
}

// Connect establishes an association with a remote SCP, proposing the
// Encapsulated PDF Storage SOP class and optionally Verification.
func Connect(address string, config Config) (*Association, error) {
	if config.MaxPDULength == 0 {
		config.MaxPDULength = 16384
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 60 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 60 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if len(config.PreferredTransferSyntaxes) == 0 {
		config.PreferredTransferSyntaxes = types.DefaultTransferSyntaxes()
	}

	dialer := &net.Dialer{Timeout: config.ConnectTimeout}
	conn, err := dialer.Dial("tcp", address)
	if err != nil {
		return nil, &dcmerr.NetworkError{Op: "connect", Err: err}
	}

	assoc := &Association{
		conn:             conn,
		config:           config,
		logger:           config.Logger,
		maxPDULength:     config.MaxPDULength,
		presentationCtxs: make(map[byte]*PresentationContext),
	}

	if err := assoc.negotiate(); err != nil {
		conn.Close()
		return nil, err
	}

	config.Logger.Info("association established",
		"remote_addr", address,
		"calling_ae", config.CallingAETitle,
		"called_ae", config.CalledAETitle,
		"max_pdu_length", assoc.maxPDULength)

	return assoc, nil
}

func (a *Association) negotiate() error {
	contexts := []pdu.ProposedContext{
		{
			ID:               ctxIDStorage,
			AbstractSyntax:   types.EncapsulatedPDFStorage,
			TransferSyntaxes: a.config.PreferredTransferSyntaxes,
		},
	}
	if a.config.ProposeVerification {
		contexts = append(contexts, pdu.ProposedContext{
			ID:               ctxIDVerification,
			AbstractSyntax:   types.VerificationSOPClass,
			TransferSyntaxes: a.config.PreferredTransferSyntaxes,
		})
	}

	rq := &pdu.AssociateRQ{
		CalledAETitle:             a.config.CalledAETitle,
		CallingAETitle:            a.config.CallingAETitle,
		MaxPDULength:              a.config.MaxPDULength,
		ImplementationClassUID:    dicom.ImplementationClassUID,
		ImplementationVersionName: dicom.ImplementationVersionName,
		Contexts:                  contexts,
	}

	if err := a.refreshWriteDeadline(); err != nil {
		return err
	}
	if err := pdu.WritePDU(a.conn, pdu.TypeAssociateRQ, rq.Encode()); err != nil {
		return &dcmerr.NetworkError{Op: "associate", Err: err}
	}

	if err := a.refreshReadDeadline(); err != nil {
		return err
	}
	reply, err := pdu.ReadPDU(a.conn)
	if err != nil {
		return &dcmerr.NetworkError{Op: "associate", Err: err}
	}

	switch reply.Type {
	case pdu.TypeAssociateAC:
		return a.handleAssociateAC(reply.Data, contexts)

	case pdu.TypeAssociateRJ:
		rj, err := pdu.ParseAssociateRJ(reply.Data)
		if err != nil {
			return fmt.Errorf("malformed A-ASSOCIATE-RJ: %w", err)
		}
		return &dcmerr.AssociationError{Result: rj.Result, Source: rj.Source, Reason: rj.Reason}

	case pdu.TypeAbort:
		source, reason := pdu.ParseAbort(reply.Data)
		return &dcmerr.AbortError{Source: source, Reason: reason}

	default:
		return fmt.Errorf("unexpected PDU type 0x%02x during negotiation", reply.Type)
	}
}

func (a *Association) handleAssociateAC(data []byte, proposed []pdu.ProposedContext) error {
	ac, err := pdu.ParseAssociateAC(data)
	if err != nil {
		return fmt.Errorf("malformed A-ASSOCIATE-AC: %w", err)
	}

	if ac.MaxPDULength > 0 && ac.MaxPDULength < a.maxPDULength {
		a.maxPDULength = ac.MaxPDULength
	}

	abstractByID := make(map[byte]string, len(proposed))
	for _, p := range proposed {
		abstractByID[p.ID] = p.AbstractSyntax
	}

	accepted := 0
	for _, ctx := range ac.Contexts {
		pc := &PresentationContext{
			ID:             ctx.ID,
			AbstractSyntax: abstractByID[ctx.ID],
			TransferSyntax: ctx.TransferSyntax,
			Accepted:       ctx.Result == pdu.ContextAccepted,
		}
		a.presentationCtxs[ctx.ID] = pc
		if pc.Accepted {
			accepted++
		} else {
			a.logger.Debug("presentation context refused",
				"context_id", ctx.ID,
				"abstract_syntax", pc.AbstractSyntax,
				"result", ctx.Result)
		}
	}

	// The storage context is what the association exists for.
	if pc, ok := a.presentationCtxs[ctxIDStorage]; !ok || !pc.Accepted {
		return dcmerr.ErrNoPresentationContext
	}
	if accepted == 0 {
		return dcmerr.ErrNoPresentationContext
	}
	return nil
}

// GetPresentationContext returns the accepted context for an abstract
// syntax.
func (a *Association) GetPresentationContext(abstractSyntax string) (*PresentationContext, error) {
	for _, pc := range a.presentationCtxs {
		if pc.AbstractSyntax == abstractSyntax && pc.Accepted {
			return pc, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", dcmerr.ErrNoPresentationContext, abstractSyntax)
}

// MaxPDULength returns the negotiated maximum PDU length for sending.
func (a *Association) MaxPDULength() uint32 {
	return a.maxPDULength
}

// Close releases the association and closes the connection. It never
// fails: if the orderly release exchange cannot complete, the connection
// is torn down anyway.
func (a *Association) Close() error {
	a.closeOnce.Do(func() {
		if !a.aborted && !a.release() {
			a.abort()
		}
		a.conn.Close()
	})
	return nil
}

func (a *Association) release() bool {
	if err := a.refreshWriteDeadline(); err == nil {
		if err := pdu.WritePDU(a.conn, pdu.TypeReleaseRQ, pdu.ReleaseData()); err != nil {
			a.logger.Warn("failed to send release request", "error", err)
			return false
		}
	}

	if err := a.refreshReadDeadline(); err != nil {
		return false
	}
	// Drain until A-RELEASE-RP or the peer hangs up; stray P-DATA-TF
	// from an unfinished exchange is discarded.
	for {
		reply, err := pdu.ReadPDU(a.conn)
		if err != nil {
			a.logger.Debug("no release response", "error", err)
			return false
		}
		if reply.Type == pdu.TypeReleaseRP {
			return true
		}
		if reply.Type == pdu.TypeAbort {
			return true
		}
	}
}

// abort sends an A-ABORT and marks the association so Close skips the
// release exchange.
func (a *Association) abort() {
	a.aborted = true
	if err := a.refreshWriteDeadline(); err == nil {
		pdu.WritePDU(a.conn, pdu.TypeAbort, pdu.AbortData(0, 0))
	}
}

func (a *Association) messageID() uint16 {
	a.nextMessageID++
	return a.nextMessageID
}

func (a *Association) refreshReadDeadline() error {
	if err := a.conn.SetReadDeadline(time.Now().Add(a.config.ReadTimeout)); err != nil {
		return &dcmerr.NetworkError{Op: "set read deadline", Err: err}
	}
	return nil
}

func (a *Association) refreshWriteDeadline() error {
	if err := a.conn.SetWriteDeadline(time.Now().Add(a.config.WriteTimeout)); err != nil {
		return &dcmerr.NetworkError{Op: "set write deadline", Err: err}
	}
	return nil
}
