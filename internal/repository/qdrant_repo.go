package repository

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	defaultVectorDimension = 1024
)

// QdrantConnectionConfig holds configuration for Qdrant connection
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS          bool   // Explicitly enable TLS without API Key
	VectorDimension int
}

// apiKeyInterceptor creates a unary interceptor that adds API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantRepository stores run text embeddings in Qdrant
type QdrantRepository struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	vectorDimension int
}

// NewQdrantRepository creates a new QdrantRepository
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key)
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	vectorDimension := cfg.VectorDimension
	if vectorDimension <= 0 {
		vectorDimension = defaultVectorDimension
	}

	// Build gRPC dial options
	var opts []grpc.DialOption

	// Determine if TLS should be used
	// TLS is enabled if: APIKey is set OR UseTLS is explicitly true
	useTLS := cfg.UseTLS || cfg.APIKey != ""

	if useTLS {
		// Use TLS with system root certificates (TLS 1.3 minimum for Qdrant Cloud)
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
		creds := credentials.NewTLS(tlsConfig)
		opts = append(opts, grpc.WithTransportCredentials(creds))

		// Add API Key authentication if provided (using unary interceptor)
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		// Local mode: no TLS, no authentication
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantRepository{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: vectorDimension,
	}, nil
}

// Close closes the gRPC connection
func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist
func (r *QdrantRepository) EnsureCollection(ctx context.Context) error {
	// Check if collection exists
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok {
			if size != uint64(r.vectorDimension) {
				return fmt.Errorf("collection %s has vector size %d, expected %d", r.collectionName, size, r.vectorDimension)
			}
		}
		return nil // Collection exists
	}

	// Create collection
	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}

	config := info.GetConfig()
	if config == nil {
		return 0, false
	}

	params := config.GetParams()
	if params == nil {
		return 0, false
	}

	vectors := params.GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}

	if single := vectors.GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}

	if paramsMap := vectors.GetParamsMap(); paramsMap != nil {
		for _, vectorParams := range paramsMap.GetMap() {
			if vectorParams == nil {
				continue
			}
			if size := vectorParams.GetSize(); size > 0 {
				return size, true
			}
		}
	}

	return 0, false
}

// RunPayload is stored with each run vector.
type RunPayload struct {
	RunID      string  `json:"run_id"`
	SourceID   string  `json:"source_id"`
	FrameLabel string  `json:"frame_label"`
	FrameIndex int64   `json:"frame_index"`
	Text       string  `json:"text"`
	Timestamp  float64 `json:"timestamp"`
	Episode    int     `json:"episode"`
}

// RunPoint is one vector to upsert.
type RunPoint struct {
	PointID string
	Vector  []float32
	Payload *RunPayload
}

// UpsertBatch inserts or replaces vectors. Point IDs must be UUIDs.
func (r *QdrantRepository) UpsertBatch(ctx context.Context, batch []RunPoint) error {
	if len(batch) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, 0, len(batch))
	for _, p := range batch {
		uid, err := uuid.Parse(p.PointID)
		if err != nil {
			return fmt.Errorf("invalid point ID: %w", err)
		}
		points = append(points, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: p.Vector},
				},
			},
			Payload: map[string]*pb.Value{
				"run_id":      {Kind: &pb.Value_StringValue{StringValue: p.Payload.RunID}},
				"source_id":   {Kind: &pb.Value_StringValue{StringValue: p.Payload.SourceID}},
				"frame_label": {Kind: &pb.Value_StringValue{StringValue: p.Payload.FrameLabel}},
				"frame_index": {Kind: &pb.Value_IntegerValue{IntegerValue: p.Payload.FrameIndex}},
				"text":        {Kind: &pb.Value_StringValue{StringValue: p.Payload.Text}},
				"timestamp":   {Kind: &pb.Value_DoubleValue{DoubleValue: p.Payload.Timestamp}},
				"episode":     {Kind: &pb.Value_IntegerValue{IntegerValue: int64(p.Payload.Episode)}},
			},
		})
	}

	wait := true
	_, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// SearchResult represents a search result from Qdrant
type SearchResult struct {
	ID      string
	Score   float32
	Payload *RunPayload
}

// Search performs a vector similarity search, optionally restricted to one source.
func (r *QdrantRepository) Search(ctx context.Context, vector []float32, topK int, sourceID string, scoreThreshold float32) ([]SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: r.collectionName,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	}
	if scoreThreshold > 0 {
		req.ScoreThreshold = &scoreThreshold
	}
	if sourceID != "" {
		req.Filter = sourceFilter(sourceID)
	}

	resp, err := r.pointsClient.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, len(resp.Result))
	for i, scored := range resp.Result {
		results[i] = SearchResult{
			ID:      scored.Id.GetUuid(),
			Score:   scored.Score,
			Payload: parsePayload(scored.Payload),
		}
	}
	return results, nil
}

func sourceFilter(sourceID string) *pb.Filter {
	return &pb.Filter{
		Must: []*pb.Condition{
			{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key: "source_id",
						Match: &pb.Match{
							MatchValue: &pb.Match_Keyword{Keyword: sourceID},
						},
					},
				},
			},
		},
	}
}

func parsePayload(payload map[string]*pb.Value) *RunPayload {
	if payload == nil {
		return nil
	}

	p := &RunPayload{}
	if v, ok := payload["run_id"]; ok {
		p.RunID = v.GetStringValue()
	}
	if v, ok := payload["source_id"]; ok {
		p.SourceID = v.GetStringValue()
	}
	if v, ok := payload["frame_label"]; ok {
		p.FrameLabel = v.GetStringValue()
	}
	if v, ok := payload["frame_index"]; ok {
		p.FrameIndex = v.GetIntegerValue()
	}
	if v, ok := payload["text"]; ok {
		p.Text = v.GetStringValue()
	}
	if v, ok := payload["timestamp"]; ok {
		p.Timestamp = v.GetDoubleValue()
	}
	if v, ok := payload["episode"]; ok {
		p.Episode = int(v.GetIntegerValue())
	}
	return p
}

// DeleteBySource removes every vector of one source, so a re-index drops deleted runs.
func (r *QdrantRepository) DeleteBySource(ctx context.Context, sourceID string) error {
	wait := true
	_, err := r.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collectionName,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: sourceFilter(sourceID),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points for %s: %w", sourceID, err)
	}
	return nil
}
