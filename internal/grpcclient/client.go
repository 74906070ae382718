// Package grpcclient forwards released batches to the Forwarder service. The
// messages are google.protobuf.Struct values so no generated stubs are needed.
package grpcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"avl-gateway/internal/dispatcher"
	"avl-gateway/internal/pipeline"
)

const sendBatchMethod = "/forwarder.Forwarder/SendBatch"

type GRPCClient struct {
	conn *grpc.ClientConn
}

func NewGRPCClient(addr string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn}, nil
}

func (g *GRPCClient) Close() error {
	return g.conn.Close()
}

func (g *GRPCClient) Name() string { return "grpc" }

// Deliver sends b as one SendBatch call and fails unless the reply carries
// success=true.
func (g *GRPCClient) Deliver(ctx context.Context, b dispatcher.Batch) error {
	req, err := batchStruct(b)
	if err != nil {
		return err
	}
	res := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, sendBatchMethod, req, res); err != nil {
		return fmt.Errorf("forwarder SendBatch: %w", err)
	}
	if v := res.GetFields()["success"]; !v.GetBoolValue() {
		return fmt.Errorf("forwarder rejected batch for %s", b.IMEI)
	}
	return nil
}

func batchStruct(b dispatcher.Batch) (*structpb.Struct, error) {
	at := b.At
	if at.IsZero() {
		at = time.Now()
	}
	raw, err := json.Marshal(pipeline.Track(b.IMEI, b.Packets, at))
	if err != nil {
		return nil, err
	}
	var records []any
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{
		"device_id": b.IMEI,
		"remote":    b.Remote,
		"final":     b.Final,
		"records":   records,
	})
}
