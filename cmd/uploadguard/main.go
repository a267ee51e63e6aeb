// Command uploadguard scans a local file through the upload validation
// pipeline and prints the verdict as JSON. No database or redis required.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/uploadguard/uploadguard/internal/clamav"
	"github.com/uploadguard/uploadguard/internal/filetype"
	"github.com/uploadguard/uploadguard/internal/models"
	"github.com/uploadguard/uploadguard/internal/pipeline"
	"github.com/uploadguard/uploadguard/internal/storage"
)

func main() {
	category := flag.String("category", "image", "File category: image, pdf or document")
	owner := flag.String("owner", "cli", "Owner identifier recorded with the upload")
	folder := flag.String("folder", "scans", "Folder tag under the category")
	output := flag.String("output", filepath.Join(os.TempDir(), "uploadguard"), "Media root for accepted files")
	withClamAV := flag.Bool("clamav", false, "Invoke the external ClamAV scanner")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: uploadguard [flags] <file>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	path := flag.Arg(0)
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stat file: %v\n", err)
		os.Exit(1)
	}

	paths, err := storage.NewPathBuilder(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "media root: %v\n", err)
		os.Exit(1)
	}

	external := clamav.New(clamav.Config{Enabled: *withClamAV}, logger)
	p := pipeline.New(filetype.NewRegistry(), paths, external, logger)

	req := &pipeline.Request{
		Reader:       f,
		Filename:     filepath.Base(path),
		DeclaredSize: info.Size(),
		Category:     models.FileCategory(*category),
		OwnerID:      *owner,
		FolderTag:    *folder,
	}

	meta, err := p.Process(context.Background(), req)
	if err != nil {
		var rejection *pipeline.Rejection
		if errors.As(err, &rejection) {
			printJSON(map[string]interface{}{
				"accepted":       false,
				"kind":           rejection.Kind,
				"reason":         rejection.Reason,
				"correlation_id": rejection.CorrelationID,
				"assessment":     rejection.Assessment,
				"quarantine":     rejection.Quarantine,
				"malware_scan":   rejection.Scan,
				"behavioral":     rejection.Behavioral,
				"external_scan":  rejection.External,
			})
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
		os.Exit(1)
	}

	printJSON(map[string]interface{}{
		"accepted": true,
		"metadata": meta,
	})
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
