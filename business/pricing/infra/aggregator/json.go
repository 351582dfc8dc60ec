package aggregator

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/pricegap-monitor/internal/apperror"
)

const tracerName = "github.com/fd1az/pricegap-monitor/business/pricing/infra/aggregator"

var zeroAddress common.Address

func otelTracer() trace.Tracer { return otel.Tracer(tracerName) }

// positive reads res as a number, accepting numeric strings, and requires it to be > 0.
func positive(res gjson.Result, path string) (float64, error) {
	if !res.Exists() {
		return 0, apperror.New(apperror.CodeMalformedResponse,
			apperror.WithContext(fmt.Sprintf("missing %s", path)))
	}

	var v float64
	switch res.Type {
	case gjson.Number:
		v = res.Num
	case gjson.String:
		r := gjson.Parse(res.Str)
		if r.Type != gjson.Number {
			return 0, apperror.New(apperror.CodeMalformedResponse,
				apperror.WithContext(fmt.Sprintf("%s is not numeric: %q", path, res.Str)))
		}
		v = r.Num
	default:
		return 0, apperror.New(apperror.CodeMalformedResponse,
			apperror.WithContext(fmt.Sprintf("%s has type %s", path, res.Type)))
	}

	if v <= 0 {
		return 0, apperror.New(apperror.CodeMalformedResponse,
			apperror.WithContext(fmt.Sprintf("%s is %v", path, v)))
	}
	return v, nil
}
