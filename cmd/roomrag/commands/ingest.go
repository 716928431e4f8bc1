package commands

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/54b3r/roomrag-go/internal/documents"
	"github.com/54b3r/roomrag-go/internal/ingestion"
	"github.com/54b3r/roomrag-go/internal/logging"
)

// NewIngestCmd constructs the `roomrag ingest` command, which uploads local
// files into a room and indexes them.
func NewIngestCmd() *cobra.Command {
	var roomID int64
	var async bool
	var requeue []int64

	cmd := &cobra.Command{
		Use:   "ingest --room ID [FILE...]",
		Short: "Upload and index documents into a room",
		Long: `Upload local PDF, Word or text files into a room and index them.

By default each file is ingested in this process before the command returns.
With --async the files are only queued; this requires ingestion.queue=amqp so
that the workers of a running 'roomrag serve' pick them up.

--requeue re-indexes existing documents by ID, e.g. after a failed ingestion.

Examples:
  roomrag ingest --room 1 handbook.pdf leave-policy.docx
  roomrag ingest --room 1 --async notes.txt
  roomrag ingest --requeue 12 --requeue 13`,
		RunE: func(cmd *cobra.Command, files []string) error {
			cfg, log := state.cfg, state.log
			if len(files) == 0 && len(requeue) == 0 {
				return errors.New("ingest: at least one file or --requeue is required")
			}
			if len(files) > 0 && roomID <= 0 {
				return fmt.Errorf("ingest: %w", errRoomRequired)
			}
			if async && cfg.Ingestion.Queue != "amqp" {
				return errors.New("ingest: --async requires ingestion.queue=amqp")
			}

			ctx := logging.WithLogger(cmd.Context(), log)
			opts := appOptions{}
			if !async {
				opts.memoryQueue = len(files) + len(requeue)
			}
			a, err := newApp(ctx, cfg, log, opts)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer a.Close()

			var worker *ingestion.Worker
			if !async {
				if worker, err = a.worker(ctx); err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			var ids []int64
			for _, path := range files {
				id, err := uploadFile(cmd, a.docs, roomID, path)
				if err != nil {
					return fmt.Errorf("ingest: %s: %w", path, err)
				}
				fmt.Fprintf(out, "queued %s as document %d\n", path, id)
				ids = append(ids, id)
			}
			for _, id := range requeue {
				if err := a.docs.Requeue(ctx, id); err != nil {
					return fmt.Errorf("ingest: requeue %d: %w", id, err)
				}
				fmt.Fprintf(out, "requeued document %d\n", id)
				ids = append(ids, id)
			}
			if async {
				return nil
			}

			var failed int
			for _, id := range ids {
				if err := worker.Handle(ctx, ingestion.Job{DocumentID: id}); err != nil {
					failed++
					fmt.Fprintf(out, "document %d failed: %v\n", id, err)
					continue
				}
				doc, err := a.docs.Get(ctx, id)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				fmt.Fprintf(out, "document %d (%s) %s, %d chunks\n",
					doc.ID, doc.Filename, documents.StatusLabel(doc), doc.ChunkCount)
			}
			if failed > 0 {
				return fmt.Errorf("ingest: %d of %d documents failed", failed, len(ids))
			}
			return nil
		},
	}

	cmd.Flags().Int64VarP(&roomID, "room", "r", 0, "Room ID to upload into")
	cmd.Flags().BoolVar(&async, "async", false, "Queue only; leave indexing to the serve workers")
	cmd.Flags().Int64SliceVar(&requeue, "requeue", nil, "Re-index an existing document by ID (repeatable)")

	return cmd
}

// uploadFile stores one local file through the documents service.
func uploadFile(cmd *cobra.Command, docs *documents.Service, roomID int64, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	doc, err := docs.Upload(cmd.Context(), documents.Upload{
		RoomID:   roomID,
		Filename: filepath.Base(path),
		MimeType: mime.TypeByExtension(filepath.Ext(path)),
		Body:     f,
	})
	if err != nil {
		return 0, err
	}
	return doc.ID, nil
}
