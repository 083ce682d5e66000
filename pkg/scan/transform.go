package scan

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/deltascan/pkg/expr"
)

// ApplyTransform turns the physical record rec into a logical record.
//
// ApplyTransform takes ownership of rec. A nil transform is the identity and
// rec itself is returned. Otherwise an evaluator is built for this call only,
// rec is released and the evaluated record is returned. On failure rec is
// released as well.
func ApplyTransform(ctx context.Context, engine Engine, rec arrow.Record, transform expr.Expression, input, output *arrow.Schema) (arrow.Record, error) {
	if transform == nil {
		return rec, nil
	}
	defer rec.Release()

	evaluator, err := engine.NewEvaluator(input, transform, output)
	if err != nil {
		return nil, fmt.Errorf("building evaluator for %s: %w", transform, err)
	}

	out, err := evaluator.Evaluate(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", transform, err)
	}
	return out, nil
}

func newTransformReader(engine Engine, transform expr.Expression, input, output *arrow.Schema, r ChunkReader) *GenericReader {
	return newGenericReader(func(ctx context.Context, inputs []ChunkReader) (arrow.Record, error) {
		rec, err := inputs[0].Read(ctx)
		if err != nil {
			return nil, err
		}
		return ApplyTransform(ctx, engine, rec, transform, input, output)
	}, r)
}
