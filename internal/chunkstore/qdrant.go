package chunkstore

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"ragdocs/internal/models"
	"ragdocs/internal/util"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

const (
	payloadText       = "text"
	payloadSource     = "source"
	payloadDocumentID = "document_id"
	payloadPage       = "page"
	payloadIndex      = "index"
	payloadInsertedAt = "inserted_at"

	scrollPageSize = 100
)

type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	Collection string
}

// QdrantStore keeps chunks as points in a single collection, payload indexed
// on document_id and source.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	// seq orders points written by this process; seeded from wall clock so
	// restarts keep increasing.
	seq atomic.Int64
}

func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(64 << 20)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect qdrant: %w", util.ErrStore, err)
	}
	s := &QdrantStore{client: client, collection: cfg.Collection}
	s.seq.Store(time.Now().UnixNano())
	return s, nil
}

func (s *QdrantStore) EnsureSchema(ctx context.Context, dim int, distance Distance) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: check collection %s: %w", util.ErrStore, s.collection, err)
	}
	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrantDistance(distance),
			}),
		})
		if err != nil {
			// another process may have won the race
			again, checkErr := s.client.CollectionExists(ctx, s.collection)
			if checkErr != nil || !again {
				return fmt.Errorf("%w: create collection %s: %w", util.ErrStore, s.collection, err)
			}
		} else {
			log.Printf("chunkstore: created qdrant collection=%s dim=%d distance=%s", s.collection, dim, distance)
		}
	} else if err := s.checkDimension(ctx, dim); err != nil {
		return err
	}
	for _, field := range []string{payloadDocumentID, payloadSource} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			log.Printf("chunkstore: payload index collection=%s field=%s err=%v", s.collection, field, err)
		}
	}
	return nil
}

func (s *QdrantStore) checkDimension(ctx context.Context, dim int) error {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: describe collection %s: %w", util.ErrStore, s.collection, err)
	}
	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if size != 0 && size != uint64(dim) {
		return fmt.Errorf("%w: collection %s has dimension %d, want %d", util.ErrStore, s.collection, size, dim)
	}
	return nil
}

func (s *QdrantStore) UpsertBatch(ctx context.Context, chunks []models.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuid.NewString()),
			Vectors: qdrant.NewVectors(c.Vector...),
			Payload: qdrant.NewValueMap(chunkPayload(c.Chunk, s.seq.Add(1))),
		})
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("%w: upsert %d points: %w", util.ErrStore, len(points), err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, vector []float32, opts SearchOptions) ([]models.RetrievalResult, error) {
	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if opts.TopK > 0 {
		req.Limit = qdrant.PtrOf(uint64(opts.TopK))
	}
	if opts.ScoreThreshold != nil {
		req.ScoreThreshold = qdrant.PtrOf(float32(*opts.ScoreThreshold))
	}
	points, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: query collection %s: %w", util.ErrStore, s.collection, err)
	}
	items := make([]scored, 0, len(points))
	for _, p := range points {
		chunk, seq := parsePayload(p.GetPayload())
		idx := chunk.Index
		items = append(items, scored{
			seq: seq,
			result: models.RetrievalResult{
				Text:       chunk.Text,
				Source:     chunk.Source,
				DocumentID: chunk.DocumentID,
				Page:       chunk.Page,
				Index:      &idx,
				Score:      float64(p.GetScore()),
			},
		})
	}
	return rank(items, opts), nil
}

func (s *QdrantStore) DeleteByDocumentID(ctx context.Context, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(documentFilter(documentID)),
	})
	if err != nil {
		return fmt.Errorf("%w: delete points for %s: %w", util.ErrStore, documentID, err)
	}
	return nil
}

func (s *QdrantStore) FindByDocumentID(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	out := make([]models.DocumentChunk, 0)
	var offset *qdrant.PointId
	for {
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         documentFilter(documentID),
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: scroll points for %s: %w", util.ErrStore, documentID, err)
		}
		fresh := 0
		for _, p := range points {
			if offset != nil && p.GetId().GetUuid() == offset.GetUuid() {
				continue
			}
			chunk, _ := parsePayload(p.GetPayload())
			out = append(out, chunk)
			fresh++
		}
		if len(points) < scrollPageSize || fresh == 0 {
			break
		}
		offset = points[len(points)-1].GetId()
	}
	sortForDisplay(out)
	return out, nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func qdrantDistance(d Distance) qdrant.Distance {
	switch d {
	case DistanceDot:
		return qdrant.Distance_Dot
	case DistanceEuclid:
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

func documentFilter(documentID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocumentID, documentID)},
	}
}

func chunkPayload(c models.DocumentChunk, seq int64) map[string]any {
	payload := map[string]any{
		payloadText:       c.Text,
		payloadSource:     c.Source,
		payloadDocumentID: c.DocumentID,
		payloadIndex:      int64(c.Index),
		payloadInsertedAt: seq,
	}
	if c.Page != nil {
		payload[payloadPage] = int64(*c.Page)
	}
	return payload
}

func parsePayload(payload map[string]*qdrant.Value) (models.DocumentChunk, int64) {
	var c models.DocumentChunk
	c.Text = payload[payloadText].GetStringValue()
	c.Source = payload[payloadSource].GetStringValue()
	c.DocumentID = payload[payloadDocumentID].GetStringValue()
	c.Index = int(payload[payloadIndex].GetIntegerValue())
	if v, ok := payload[payloadPage]; ok && v != nil {
		page := int(v.GetIntegerValue())
		c.Page = &page
	}
	return c, payload[payloadInsertedAt].GetIntegerValue()
}
