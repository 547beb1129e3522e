package worker

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// Engine port (implementation: pipeline.Engine).
type Engine interface {
	Execute(ctx context.Context, jobID uuid.UUID) error
}

type Processor struct {
	engine Engine
}

func NewProcessor(engine Engine) *Processor {
	return &Processor{engine: engine}
}

// Process runs one claimed job to a terminal state. An execution error has
// already been committed to the job record as FAILED; it is returned here
// only for operational visibility in the worker log.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	start := time.Now()

	id, err := uuid.Parse(jobID)
	if err != nil {
		log.Printf("[worker] job_id=%s parse_error=%v", jobID, err)
		return err
	}

	if err := p.engine.Execute(ctx, id); err != nil {
		log.Printf("[worker] job_id=%s status=failed duration_ms=%d error=%v",
			id, time.Since(start).Milliseconds(), err)
		return err
	}

	log.Printf("[worker] job_id=%s status=done duration_ms=%d",
		id, time.Since(start).Milliseconds())
	return nil
}
