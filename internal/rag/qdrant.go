package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Payload keys written with every point.
const (
	payloadNamespace  = "namespace"
	payloadVectorID   = "vector_id"
	payloadDocumentID = "document_id"
	payloadFilename   = "filename"
	payloadChunkIndex = "chunk_index"
	payloadText       = "text"
)

// pointIDSpace is the UUIDv5 namespace used to derive Qdrant point IDs from
// vector IDs, which are not UUIDs themselves.
var pointIDSpace = uuid.MustParse("6f1c3a52-8d0e-4f43-9a57-1e2b7c9d4a10")

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the collection shared by all namespaces.
	Collection string

	// VectorSize is the dimensionality of the stored embeddings.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements VectorIndex on a single Qdrant collection. The
// namespace is stored in the point payload and applied as a mandatory filter
// on every query and delete.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration.
	cfg *QdrantConfig
}

// NewQdrantIndex connects to Qdrant and makes sure the collection and the
// namespace payload index exist.
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name must not be empty")
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size must be positive")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

// ensureCollection creates the collection and its namespace keyword index
// if the collection does not already exist.
func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", q.cfg.Collection, err)
	}

	_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.cfg.Collection,
		FieldName:      payloadNamespace,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to index %q payload: %w", payloadNamespace, err)
	}
	return nil
}

// Upsert implements VectorIndex.
func (q *QdrantIndex) Upsert(ctx context.Context, namespace string, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		points = append(points, &qdrant.PointStruct{
			Id:      pointID(r.ID),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(recordPayload(namespace, r)),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: %w: upsert failed: %w", ErrVectorIndex, err)
	}
	return nil
}

// Query implements VectorIndex.
func (q *QdrantIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return []Match{}, nil
	}
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         namespaceFilter(namespace),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: %w: query failed: %w", ErrVectorIndex, err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, matchFromPayload(r.Score, r.Payload))
	}
	return matches, nil
}

// Delete implements VectorIndex.
func (q *QdrantIndex) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, pointID(id))
	}

	filter := namespaceFilter(namespace)
	filter.Must = append(filter.Must, qdrant.NewHasID(pointIDs...))

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return fmt.Errorf("qdrant: %w: delete failed: %w", ErrVectorIndex, err)
	}
	return nil
}

// HealthCheck reports whether the Qdrant server is reachable.
func (q *QdrantIndex) HealthCheck(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// pointID derives the deterministic Qdrant point ID for a vector ID.
func pointID(vectorID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(pointIDSpace, []byte(vectorID)).String())
}

func namespaceFilter(namespace string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(payloadNamespace, namespace)},
	}
}

func recordPayload(namespace string, r VectorRecord) map[string]any {
	return map[string]any{
		payloadNamespace:  namespace,
		payloadVectorID:   r.ID,
		payloadDocumentID: r.Metadata.DocumentID,
		payloadFilename:   r.Metadata.Filename,
		payloadChunkIndex: int64(r.Metadata.ChunkIndex),
		payloadText:       TruncateText(r.Metadata.Text),
	}
}

func matchFromPayload(score float32, p map[string]*qdrant.Value) Match {
	m := Match{Score: score}
	if v, ok := p[payloadVectorID]; ok {
		m.ID = v.GetStringValue()
	}
	if v, ok := p[payloadDocumentID]; ok {
		m.DocumentID = v.GetIntegerValue()
	}
	if v, ok := p[payloadFilename]; ok {
		m.Filename = v.GetStringValue()
	}
	if v, ok := p[payloadChunkIndex]; ok {
		m.ChunkIndex = int(v.GetIntegerValue())
	}
	if v, ok := p[payloadText]; ok {
		m.Text = v.GetStringValue()
	}
	return m
}
