package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"docuquery/internal/model"
	"docuquery/internal/platform/rabbitmq"
)

type DocumentProcessor interface {
	Process(ctx context.Context, documentID string) bool
	Reprocess(ctx context.Context, documentID string) bool
}

// DocumentProcessWorker consumes processing jobs. Pipeline failures are
// recorded on the document by the processor, so every decodable job is
// acked once the processor returns.
type DocumentProcessWorker struct {
	conn        *amqp.Connection
	processor   DocumentProcessor
	queueName   string
	concurrency int
	log         logrus.FieldLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDocumentProcessWorker(
	conn *amqp.Connection,
	processor DocumentProcessor,
	queueName string,
	concurrency int,
	log logrus.FieldLogger,
) *DocumentProcessWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &DocumentProcessWorker{
		conn:        conn,
		processor:   processor,
		queueName:   queueName,
		concurrency: concurrency,
		log:         log,
	}
}

func (w *DocumentProcessWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}

	if err := ch.Qos(w.concurrency, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	var consumers sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					if w.handle(workerCtx, d.Body) {
						_ = d.Ack(false)
					} else {
						_ = d.Nack(false, false)
					}
				}
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		consumers.Wait()
		_ = ch.Close()
	}()

	w.log.WithFields(logrus.Fields{"queue": w.queueName, "concurrency": w.concurrency}).Info("document worker started")
	return nil
}

// handle runs one job and reports whether the delivery should be acked.
func (w *DocumentProcessWorker) handle(ctx context.Context, body []byte) bool {
	var job model.DocumentJob
	if err := json.Unmarshal(body, &job); err != nil {
		w.log.WithError(err).Error("worker decode job failed")
		return false
	}
	if job.DocumentID == "" {
		w.log.Error("worker job has no document id")
		return false
	}

	log := w.log.WithFields(logrus.Fields{"document_id": job.DocumentID, "action": job.Action})
	var ok bool
	switch job.Action {
	case model.JobProcess, "":
		ok = w.processor.Process(ctx, job.DocumentID)
	case model.JobReprocess:
		ok = w.processor.Reprocess(ctx, job.DocumentID)
	default:
		log.Error("worker job has unknown action")
		return false
	}
	log.WithField("ready", ok).Debug("worker job finished")
	return true
}

func (w *DocumentProcessWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
