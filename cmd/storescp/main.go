package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Algernon72/PDF2PACS/dicom"
	"github.com/Algernon72/PDF2PACS/dimse"
	"github.com/Algernon72/PDF2PACS/server"
)

// fileStore writes each received instance as a Part 10 file named after
// its SOP instance UID.
type fileStore struct {
	dir    string
	logger *slog.Logger
}

func (s *fileStore) store(sopClassUID, sopInstanceUID, transferSyntaxUID string, dataset []byte) uint16 {
	parsed, err := dicom.ParseDatasetWithTransferSyntax(dataset, transferSyntaxUID)
	if err != nil {
		s.logger.Error("Failed to parse received dataset", "sop_instance", sopInstanceUID, "error", err)
		return dimse.StatusCannotUnderstand
	}

	meta := dicom.FileMeta{
		MediaStorageSOPClassUID:    sopClassUID,
		MediaStorageSOPInstanceUID: sopInstanceUID,
		TransferSyntaxUID:          transferSyntaxUID,
		ImplementationClassUID:     dicom.ImplementationClassUID,
		ImplementationVersionName:  dicom.ImplementationVersionName,
	}
	file, err := dicom.EncodePart10(meta, parsed)
	if err != nil {
		s.logger.Error("Failed to encode Part 10 file", "sop_instance", sopInstanceUID, "error", err)
		return dimse.StatusProcessingFailure
	}

	path := filepath.Join(s.dir, sopInstanceUID+".dcm")
	if err := os.WriteFile(path, file, 0o644); err != nil {
		s.logger.Error("Failed to write file", "path", path, "error", err)
		return dimse.StatusOutOfResources
	}

	s.logger.Info("Stored instance",
		"path", path,
		"sop_class", sopClassUID,
		"patient", parsed.GetString(dicom.TagPatientName),
		"size_bytes", len(file))
	return dimse.StatusSuccess
}

func main() {
	port := flag.Int("port", 11112, "TCP port to listen on")
	aeTitle := flag.String("ae", "STORE_SCP", "Server AE title")
	outDir := flag.String("dir", ".", "Directory for received files")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Error("Failed to create output directory", "dir", *outDir, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := &fileStore{dir: *outDir, logger: logger}
	address := fmt.Sprintf(":%d", *port)

	err := server.ListenAndServe(ctx, address, *aeTitle, store.store, server.WithLogger(logger))
	switch {
	case err == nil:
		logger.Info("Server shutdown complete")
	case errors.Is(err, context.Canceled):
		logger.Info("Server stopped", "reason", err.Error())
	default:
		logger.Error("Server terminated unexpectedly", "error", err)
		os.Exit(1)
	}
}
