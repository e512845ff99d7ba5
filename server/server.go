// Package server implements a storage SCP: it accepts associations and
// receives C-STORE and C-ECHO requests.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Algernon72/PDF2PACS/dimse"
	"github.com/Algernon72/PDF2PACS/pdu"
	"github.com/Algernon72/PDF2PACS/types"
)

// StoreFunc handles one received instance. The returned value becomes the
// C-STORE-RSP status.
type StoreFunc func(sopClassUID, sopInstanceUID, transferSyntaxUID string, dataset []byte) uint16

// Option configures a Server instance.
type Option func(*Server)

// WithLogger overrides the logger used by the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.Logger = logger
	}
}

// WithReadTimeout sets the read timeout for client connections.
func WithReadTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.ReadTimeout = timeout
	}
}

// WithWriteTimeout sets the write timeout for client connections.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.WriteTimeout = timeout
	}
}

// WithMaxPDULength sets the maximum PDU length announced to peers.
func WithMaxPDULength(length uint32) Option {
	return func(s *Server) {
		s.MaxPDULength = length
	}
}

// Server is a storage SCP listener.
type Server struct {
	AETitle      string
	Store        StoreFunc
	Logger       *slog.Logger
	ReadTimeout  time.Duration // Read timeout for connections (default: 60s)
	WriteTimeout time.Duration // Write timeout for connections (default: 60s)
	MaxPDULength uint32        // Announced maximum PDU length (default: 16384)
}

// New builds a Server with the provided AE title and store handler.
func New(aeTitle string, store StoreFunc, opts ...Option) *Server {
	srv := &Server{AETitle: aeTitle, Store: store}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// ListenAndServe listens on the given address and serves until the context
// is done or an error occurs.
func ListenAndServe(ctx context.Context, address, aeTitle string, store StoreFunc, opts ...Option) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	defer listener.Close()

	srv := New(aeTitle, store, opts...)
	return srv.Serve(ctx, listener)
}

// Serve accepts connections from listener until ctx is cancelled or an
// unrecoverable error occurs.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if listener == nil {
		return errors.New("server: listener is required")
	}
	if s.Store == nil {
		return errors.New("server: store handler is required")
	}
	if s.AETitle == "" {
		return errors.New("server: AE title is required")
	}

	logger := s.logger()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	logger.Info("storage SCP listening",
		"address", listener.Addr().String(),
		"ae_title", s.AETitle)

	var (
		wg       sync.WaitGroup
		serveErr error
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				logger.Warn("accept timeout", "error", err)
				continue
			}
			serveErr = err
			break
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			s.handleConnection(ctx, c, logger)
		}(conn)
	}

	wg.Wait()
	return serveErr
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, logger *slog.Logger) {
	defer conn.Close()

	// The watcher must not outlive this connection.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	assoc := &acceptedAssociation{
		server: s,
		conn:   conn,
		logger: logger.With("remote_addr", conn.RemoteAddr().String()),
	}
	if err := assoc.negotiate(); err != nil {
		assoc.logger.Warn("association negotiation failed", "error", err)
		return
	}

	assoc.serve()
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) readTimeout() time.Duration {
	if s.ReadTimeout > 0 {
		return s.ReadTimeout
	}
	return 60 * time.Second
}

func (s *Server) writeTimeout() time.Duration {
	if s.WriteTimeout > 0 {
		return s.WriteTimeout
	}
	return 60 * time.Second
}

func (s *Server) maxPDULength() uint32 {
	if s.MaxPDULength > 0 {
		return s.MaxPDULength
	}
	return 16384
}

// acceptedAssociation is the SCP side of one association.
type acceptedAssociation struct {
	server *Server
	conn   net.Conn
	logger *slog.Logger

	peerMaxPDULength uint32
	// negotiated transfer syntax per accepted presentation context
	contexts map[byte]string
}

func (a *acceptedAssociation) negotiate() error {
	if err := a.conn.SetReadDeadline(time.Now().Add(a.server.readTimeout())); err != nil {
		return err
	}
	p, err := pdu.ReadPDU(a.conn)
	if err != nil {
		return err
	}
	if p.Type != pdu.TypeAssociateRQ {
		a.reject(pdu.AssociateRJ{Result: 1, Source: 2, Reason: 2})
		return errors.New("first PDU is not A-ASSOCIATE-RQ")
	}

	rq, err := pdu.ParseAssociateRQ(p.Data)
	if err != nil {
		a.reject(pdu.AssociateRJ{Result: 1, Source: 2, Reason: 1})
		return err
	}
	if rq.CalledAETitle != a.server.AETitle {
		a.reject(pdu.AssociateRJ{Result: 1, Source: 1, Reason: 7})
		return errors.New("called AE title not recognized: " + rq.CalledAETitle)
	}

	a.peerMaxPDULength = rq.MaxPDULength
	a.contexts = make(map[byte]string)

	results := make([]pdu.ResultContext, 0, len(rq.Contexts))
	for _, ctx := range rq.Contexts {
		result := pdu.ResultContext{ID: ctx.ID}
		switch {
		case !a.supportsAbstractSyntax(ctx.AbstractSyntax):
			result.Result = pdu.ContextAbstractSyntaxReject
		default:
			ts, ok := pickTransferSyntax(ctx.TransferSyntaxes)
			if !ok {
				result.Result = pdu.ContextTransferSyntaxReject
			} else {
				result.Result = pdu.ContextAccepted
				result.TransferSyntax = ts
				a.contexts[ctx.ID] = ts
			}
		}
		results = append(results, result)
	}

	ac := &pdu.AssociateAC{
		CalledAETitle:  rq.CalledAETitle,
		CallingAETitle: rq.CallingAETitle,
		MaxPDULength:   a.server.maxPDULength(),
		Contexts:       results,
	}
	if err := a.conn.SetWriteDeadline(time.Now().Add(a.server.writeTimeout())); err != nil {
		return err
	}
	if err := pdu.WritePDU(a.conn, pdu.TypeAssociateAC, ac.Encode()); err != nil {
		return err
	}

	a.logger.Info("association accepted",
		"calling_ae", rq.CallingAETitle,
		"accepted_contexts", len(a.contexts))
	return nil
}

func (a *acceptedAssociation) supportsAbstractSyntax(uid string) bool {
	return uid == types.VerificationSOPClass || types.IsStorageSOPClass(uid)
}

func pickTransferSyntax(proposed []string) (string, bool) {
	// Prefer Explicit VR when the peer offers it.
	for _, ts := range proposed {
		if ts == types.ExplicitVRLittleEndian {
			return ts, true
		}
	}
	for _, ts := range proposed {
		if types.IsSupportedTransferSyntax(ts) {
			return ts, true
		}
	}
	return "", false
}

func (a *acceptedAssociation) reject(rj pdu.AssociateRJ) {
	a.conn.SetWriteDeadline(time.Now().Add(a.server.writeTimeout()))
	pdu.WritePDU(a.conn, pdu.TypeAssociateRJ, rj.Encode())
}

// serve processes DIMSE messages until release, abort or a transport error.
func (a *acceptedAssociation) serve() {
	for {
		if err := a.conn.SetReadDeadline(time.Now().Add(a.server.readTimeout())); err != nil {
			return
		}
		msg, presContextID, dataset, err := dimse.ReadMessage(a.conn)
		if err != nil {
			if errors.Is(err, dimse.ErrReleaseRequested) {
				a.conn.SetWriteDeadline(time.Now().Add(a.server.writeTimeout()))
				pdu.WritePDU(a.conn, pdu.TypeReleaseRP, pdu.ReleaseData())
				a.logger.Debug("association released")
				return
			}
			a.logger.Debug("association ended", "error", err)
			return
		}

		switch msg.CommandField {
		case dimse.CEchoRQ:
			err = a.respond(presContextID, &dimse.Message{
				CommandField:              dimse.CEchoRSP,
				MessageIDBeingRespondedTo: msg.MessageID,
				CommandDataSetType:        dimse.NoDataSet,
				Status:                    dimse.StatusSuccess,
				AffectedSOPClassUID:       msg.AffectedSOPClassUID,
			})

		case dimse.CStoreRQ:
			status := a.server.Store(msg.AffectedSOPClassUID, msg.AffectedSOPInstanceUID,
				a.contexts[presContextID], dataset)
			a.logger.Info("stored instance",
				"sop_instance", msg.AffectedSOPInstanceUID,
				"bytes", len(dataset),
				"status", status)
			err = a.respond(presContextID, &dimse.Message{
				CommandField:              dimse.CStoreRSP,
				MessageIDBeingRespondedTo: msg.MessageID,
				CommandDataSetType:        dimse.NoDataSet,
				Status:                    status,
				AffectedSOPClassUID:       msg.AffectedSOPClassUID,
				AffectedSOPInstanceUID:    msg.AffectedSOPInstanceUID,
			})

		default:
			a.logger.Warn("unsupported command", "command_field", msg.CommandField)
			a.conn.SetWriteDeadline(time.Now().Add(a.server.writeTimeout()))
			pdu.WritePDU(a.conn, pdu.TypeAbort, pdu.AbortData(2, 0))
			return
		}

		if err != nil {
			a.logger.Warn("failed to send response", "error", err)
			return
		}
	}
}

func (a *acceptedAssociation) respond(presContextID byte, msg *dimse.Message) error {
	if err := a.conn.SetWriteDeadline(time.Now().Add(a.server.writeTimeout())); err != nil {
		return err
	}
	return dimse.WriteMessage(a.conn, presContextID, a.peerMaxPDULength, msg, nil)
}
