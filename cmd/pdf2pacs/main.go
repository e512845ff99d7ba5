package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Algernon72/PDF2PACS/dicom"
	"github.com/Algernon72/PDF2PACS/upload"
)

func main() {
	host := flag.String("host", "127.0.0.1", "PACS host")
	port := flag.Int("port", 104, "PACS port")
	calledAE := flag.String("called-ae", "", "Called AE title (the PACS)")
	callingAE := flag.String("calling-ae", "PDF2PACS", "Calling AE title")

	patientName := flag.String("patient-name", "", "Patient name (free form, e.g. \"Rossi Mario\")")
	patientID := flag.String("patient-id", "", "Patient ID (generated when empty)")
	birthDate := flag.String("birth-date", "", "Patient birth date (tolerant format, e.g. 31/12/1970)")
	sex := flag.String("sex", "", "Patient sex (M/F/O)")
	accession := flag.String("accession", "", "Accession number")
	studyDesc := flag.String("study-desc", "", "Study description")
	seriesDesc := flag.String("series-desc", "", "Series description")
	title := flag.String("title", "", "Document title (defaults to each file name)")

	seriesPerFile := flag.Bool("series-per-file", false, "Put each file in its own series")
	verify := flag.Bool("verify", false, "Run a C-ECHO before storing")
	timeout := flag.Duration("timeout", 30*time.Second, "Network timeout")
	maxPDU := flag.Uint("max-pdu", 16384, "Maximum PDU length to propose")
	verbose := flag.Bool("v", false, "Verbose logging")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] file.pdf [file.pdf ...]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *calledAE == "" {
		fmt.Fprintln(os.Stderr, "error: -called-ae is required")
		flag.Usage()
		os.Exit(2)
	}
	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "error: no PDF files given")
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	uploader, err := upload.New(upload.Target{
		Host:           *host,
		Port:           *port,
		CalledAETitle:  *calledAE,
		CallingAETitle: *callingAE,
	}, upload.Options{
		Metadata: dicom.Input{
			PatientName:       *patientName,
			PatientID:         *patientID,
			PatientBirthDate:  *birthDate,
			PatientSex:        *sex,
			AccessionNumber:   *accession,
			StudyDescription:  *studyDesc,
			SeriesDescription: *seriesDesc,
			DocumentTitle:     *title,
		},
		SeriesPerFile:  *seriesPerFile,
		VerifyFirst:    *verify,
		ConnectTimeout: *timeout,
		ReadTimeout:    *timeout,
		WriteTimeout:   *timeout,
		MaxPDULength:   uint32(*maxPDU),
		Logger:         logger,
		OnResult: func(r upload.Result) {
			switch r.Status {
			case upload.StatusSuccess:
				fmt.Printf("OK       %s\n", r.FilePath)
			case upload.StatusWarning:
				fmt.Printf("WARNING  %s (%s)\n", r.FilePath, r.Detail)
			default:
				fmt.Printf("FAILED   %s (%s)\n", r.FilePath, r.Detail)
			}
		},
	})
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(2)
	}

	report := uploader.Run(ctx, paths)
	success, warning, failure := report.Counts()
	fmt.Printf("\n%d sent, %d warnings, %d failed\n", success+warning, warning, failure)

	switch {
	case report.Err != nil:
		logger.Error("Batch ended early", "error", report.Err)
		os.Exit(1)
	case failure > 0:
		os.Exit(1)
	}
}
