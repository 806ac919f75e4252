package vectorindex

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	payloadDocumentID = "document_id"
	payloadChunkIndex = "chunk_index"
	payloadText       = "text"
)

// QdrantIndex maps each tenant collection onto a Qdrant collection with
// cosine distance.
type QdrantIndex struct {
	client *qdrant.Client
	dim    int
	log    logrus.FieldLogger

	known sync.Map // collection name -> struct{}
}

func NewQdrantIndex(client *qdrant.Client, dim int, log logrus.FieldLogger) *QdrantIndex {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &QdrantIndex{client: client, dim: dim, log: log}
}

func (q *QdrantIndex) exists(ctx context.Context, c Collection) (bool, error) {
	if _, ok := q.known.Load(c.Name()); ok {
		return true, nil
	}
	ok, err := q.client.CollectionExists(ctx, c.Name())
	if err != nil {
		return false, fmt.Errorf("qdrant collection exists failed: %w", err)
	}
	if ok {
		q.known.Store(c.Name(), struct{}{})
	}
	return ok, nil
}

// forgetOnMissing drops the cached existence of a collection another
// process deleted. It reports whether err was such a not-found error.
func (q *QdrantIndex) forgetOnMissing(c Collection, err error) bool {
	if status.Code(err) != codes.NotFound {
		return false
	}
	q.known.Delete(c.Name())
	q.log.WithField("collection", c.Name()).Debug("collection disappeared")
	return true
}

// EnsureCollection creates the collection if it is absent. A create that
// loses a race with another caller is accepted once the collection exists.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, c Collection) error {
	if err := checkCollection(c); err != nil {
		return err
	}
	ok, err := q.exists(ctx, c)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	createErr := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.Name(),
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if createErr != nil {
		ok, err := q.client.CollectionExists(ctx, c.Name())
		if err != nil || !ok {
			return fmt.Errorf("qdrant create collection failed: %w", createErr)
		}
		q.log.WithField("collection", c.Name()).Debug("collection created concurrently")
	}
	q.known.Store(c.Name(), struct{}{})
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, c Collection, documentID string, chunks []string, embeddings [][]float32) error {
	if err := checkUpsert(c, chunks, embeddings, q.dim); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := q.EnsureCollection(ctx, c); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(uuid.NewString()),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadDocumentID: documentID,
				payloadChunkIndex: int64(i),
				payloadText:       chunks[i],
			}),
		}
	}

	req := &qdrant.UpsertPoints{
		CollectionName: c.Name(),
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	}
	_, err := q.client.Upsert(ctx, req)
	if q.forgetOnMissing(c, err) {
		if err := q.EnsureCollection(ctx, c); err != nil {
			return err
		}
		_, err = q.client.Upsert(ctx, req)
	}
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, c Collection, query []float32, opts SearchOptions) ([]SearchResult, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}
	ok, err := q.exists(ctx, c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []SearchResult{}, nil
	}

	req := &qdrant.QueryPoints{
		CollectionName: c.Name(),
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(topK(opts))),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(opts.DocumentIDs) > 0 {
		// any-of match: a point qualifies if its document_id is in the set
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchKeywords(payloadDocumentID, opts.DocumentIDs...),
			},
		}
	}

	points, err := q.client.Query(ctx, req)
	if q.forgetOnMissing(c, err) {
		return []SearchResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		results = append(results, SearchResult{
			Score:      p.GetScore(),
			DocumentID: payload[payloadDocumentID].GetStringValue(),
			ChunkIndex: int(payload[payloadChunkIndex].GetIntegerValue()),
			Text:       payload[payloadText].GetStringValue(),
		})
	}
	return results, nil
}

func (q *QdrantIndex) DeleteByDocument(ctx context.Context, c Collection, documentID string) error {
	if err := checkCollection(c); err != nil {
		return err
	}
	ok, err := q.exists(ctx, c)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	_, err = q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.Name(),
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(payloadDocumentID, documentID),
			},
		}),
	})
	if q.forgetOnMissing(c, err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("qdrant delete points failed: %w", err)
	}
	return nil
}

// DeleteCollection drops the collection. Failures are logged and swallowed.
func (q *QdrantIndex) DeleteCollection(ctx context.Context, c Collection) error {
	q.known.Delete(c.Name())
	if err := q.client.DeleteCollection(ctx, c.Name()); err != nil {
		q.log.WithError(err).WithField("collection", c.Name()).Warn("qdrant delete collection failed")
	}
	return nil
}

func (q *QdrantIndex) Ping(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
