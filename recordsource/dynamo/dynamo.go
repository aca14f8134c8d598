// Package dynamo implements recordsource.Source over a DynamoDB table scan.
package dynamo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/vecpipe/vecpipe/model"
	"github.com/vecpipe/vecpipe/recordsource"
)

// Client is the narrow DynamoDB interface the source needs.
type Client interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Options configures a Source.
type Options struct {
	// PageSize limits items per scan page. 0 lets the service decide.
	PageSize int32
}

// DefaultOptions are the options used when none are given.
var DefaultOptions = Options{}

// Source yields every item of a table as a record. Number attributes are
// surfaced as json.Number so integer and floating values stay
// distinguishable downstream.
type Source struct {
	client   Client
	table    string
	pageSize int32
}

// New creates a Source scanning the given table.
func New(client Client, table string, optFns ...func(o *Options)) *Source {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Source{
		client:   client,
		table:    table,
		pageSize: opts.PageSize,
	}
}

// Query starts a new paginated scan.
func (s *Source) Query(_ context.Context) (recordsource.Iterator, error) {
	return &scanIterator{src: s}, nil
}

type scanIterator struct {
	src     *Source
	buffer  []model.Record
	lastKey map[string]types.AttributeValue
	started bool
	done    bool
}

func (it *scanIterator) Next(ctx context.Context) (model.Record, error) {
	for len(it.buffer) == 0 {
		if it.done {
			return nil, io.EOF
		}
		if err := it.fetchPage(ctx); err != nil {
			return nil, err
		}
	}

	rec := it.buffer[0]
	it.buffer = it.buffer[1:]
	return rec, nil
}

func (it *scanIterator) fetchPage(ctx context.Context) error {
	input := &dynamodb.ScanInput{
		TableName: aws.String(it.src.table),
	}
	if it.src.pageSize > 0 {
		input.Limit = aws.Int32(it.src.pageSize)
	}
	if it.started {
		input.ExclusiveStartKey = it.lastKey
	}

	out, err := it.src.client.Scan(ctx, input)
	if err != nil {
		return fmt.Errorf("scan %s: %w", it.src.table, err)
	}

	it.started = true
	it.lastKey = out.LastEvaluatedKey
	it.done = len(out.LastEvaluatedKey) == 0

	for _, item := range out.Items {
		it.buffer = append(it.buffer, decodeItem(item))
	}
	return nil
}

func (it *scanIterator) Close() error {
	it.buffer = nil
	it.done = true
	return nil
}

// decodeItem converts a DynamoDB item into a plain record.
func decodeItem(item map[string]types.AttributeValue) model.Record {
	rec := make(model.Record, len(item))
	for k, v := range item {
		rec[k] = decodeValue(v)
	}
	return rec
}

func decodeValue(v types.AttributeValue) any {
	switch t := v.(type) {
	case *types.AttributeValueMemberS:
		return t.Value
	case *types.AttributeValueMemberN:
		return json.Number(t.Value)
	case *types.AttributeValueMemberBOOL:
		return t.Value
	case *types.AttributeValueMemberNULL:
		return nil
	case *types.AttributeValueMemberB:
		return string(t.Value)
	case *types.AttributeValueMemberSS:
		out := make([]any, len(t.Value))
		for i, s := range t.Value {
			out[i] = s
		}
		return out
	case *types.AttributeValueMemberNS:
		out := make([]any, len(t.Value))
		for i, n := range t.Value {
			out[i] = json.Number(n)
		}
		return out
	case *types.AttributeValueMemberL:
		out := make([]any, len(t.Value))
		for i, e := range t.Value {
			out[i] = decodeValue(e)
		}
		return out
	case *types.AttributeValueMemberM:
		out := make(map[string]any, len(t.Value))
		for k, e := range t.Value {
			out[k] = decodeValue(e)
		}
		return out
	default:
		return nil
	}
}
