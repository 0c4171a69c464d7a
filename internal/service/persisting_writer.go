package service

import (
	"context"

	"go-linkrot/internal/model"

	"github.com/sirupsen/logrus"
)

// PersistingWriter saves every report to a primary repository, which
// also serves reads, and then mirrors it to secondary writers such as a
// database. A mirror failure is logged and does not fail the save.
type PersistingWriter struct {
	primary ReportRepository
	mirrors []ReportWriter
	log     logrus.FieldLogger
}

func NewPersistingWriter(primary ReportRepository, log logrus.FieldLogger, mirrors ...ReportWriter) *PersistingWriter {
	return &PersistingWriter{
		primary: primary,
		mirrors: mirrors,
		log:     log,
	}
}

func (w *PersistingWriter) SaveReport(ctx context.Context, jobID string, report *model.Report) error {
	if err := w.primary.SaveReport(ctx, jobID, report); err != nil {
		return err
	}
	for _, m := range w.mirrors {
		if err := m.SaveReport(ctx, jobID, report); err != nil && w.log != nil {
			w.log.WithField("job", jobID).WithError(err).Error("mirror report")
		}
	}
	return nil
}

func (w *PersistingWriter) GetReport(ctx context.Context, jobID string) (*model.Report, error) {
	return w.primary.GetReport(ctx, jobID)
}
