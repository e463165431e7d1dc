package subscriber

import (
	"context"

	vo "github.com/orris-inc/cellcore/internal/domain/subscriber/valueobjects"
)

// VectorRequest asks the vector service for the expected answers to a challenge.
type VectorRequest struct {
	Algorithm vo.AlgorithmFamily `json:"algorithm"`
	Key       string             `json:"key"`
	OP        string             `json:"op,omitempty"`
	AMF       string             `json:"amf,omitempty"`
	Sequence  string             `json:"sqn,omitempty"`
	Challenge string             `json:"rand"`
	// Resync carries the AUTS reported by the handset.
	Resync string `json:"auts,omitempty"`
}

// Vector is the vector service answer.
type Vector struct {
	Response         string `json:"sres,omitempty"`
	ExtendedResponse string `json:"xres,omitempty"`
	AUTN             string `json:"autn,omitempty"`
	// RecoveredSequence is set when the request carried a resync value.
	RecoveredSequence string `json:"sqn,omitempty"`
}

// VectorComputer is the opaque authentication cipher service.
type VectorComputer interface {
	ComputeVector(ctx context.Context, req VectorRequest) (*Vector, error)
}
