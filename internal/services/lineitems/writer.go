package lineitems

import (
    "context"
    "encoding/json"
    "fmt"

    "go.uber.org/zap"

    "orderbridge/internal/ports"
)

const DefaultChunkSize = 50

// BatchError reports a failed bulk create. Chunks before Chunk stay committed,
// and Committed also counts records of the failed chunk the store reported.
type BatchError struct {
    Chunk     int
    Committed int
    First     ports.Fields
    Err       error
}

func (e *BatchError) Error() string {
    first, err := json.Marshal(e.First)
    if err != nil {
        first = []byte(fmt.Sprintf("%v", err))
    }
    return fmt.Sprintf("create chunk %d failed after %d committed records: %v (first record in failed chunk: %s)", e.Chunk, e.Committed, e.Err, first)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Writer creates records in fixed-size chunks.
type Writer struct {
    store ports.RecordStore
    table string
    size  int
    log   *zap.SugaredLogger
}

func NewWriter(store ports.RecordStore, table string, size int, log *zap.SugaredLogger) *Writer {
    if size <= 0 { size = DefaultChunkSize }
    return &Writer{store: store, table: table, size: size, log: log}
}

// Write issues one CreateBatch per chunk, front to back. The first failing
// chunk stops the write; every id the store reported, including those of the
// failed chunk, is returned with a *BatchError.
func (w *Writer) Write(ctx context.Context, queue []ports.Fields) ([]string, error) {
    ids := make([]string, 0, len(queue))
    committed := 0
    for chunk := 0; len(queue) > 0; chunk++ {
        n := min(w.size, len(queue))
        batch := queue[:n]
        created, err := w.store.CreateBatch(ctx, w.table, batch)
        // a store that splits the chunk may have committed part of it
        for _, id := range created {
            if id == "" { continue }
            ids = append(ids, id)
            committed++
        }
        if err != nil {
            w.log.Errorw("bulk create failed", "table", w.table, "batch", chunk, "batch_size", n, "partial", len(created), "error", err)
            return ids, &BatchError{Chunk: chunk, Committed: committed, First: batch[0], Err: err}
        }
        queue = queue[n:]
        w.log.Infow("bulk create committed", "table", w.table, "batch", chunk, "batch_size", n, "created", len(created))
    }
    return ids, nil
}
