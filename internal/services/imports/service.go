package imports

import (
    "context"
    "strings"

    "github.com/cockroachdb/errors"

    "orderbridge/internal/domain"
    "orderbridge/internal/ports"
)

var ErrInvalidRecordID = errors.New("source record id is required")

type Service struct {
    jobs ports.JobRepository
}

var _ ports.Imports = (*Service)(nil)

func New(jobs ports.JobRepository) *Service {
    return &Service{jobs: jobs}
}

func (s *Service) Enqueue(ctx context.Context, sourceRecordID string) (string, error) {
    sourceRecordID = strings.TrimSpace(sourceRecordID)
    if sourceRecordID == "" {
        return "", ErrInvalidRecordID
    }
    id, err := s.jobs.CreateImport(ctx, sourceRecordID)
    if err != nil {
        return "", errors.Wrap(err, "enqueue import")
    }
    return id, nil
}

func (s *Service) Status(ctx context.Context, importID string) (domain.Import, error) {
    return s.jobs.GetImport(ctx, importID)
}
